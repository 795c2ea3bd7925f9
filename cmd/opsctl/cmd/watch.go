package cmd

import (
	"encoding/json"
	"strings"

	"opsplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var watchCmd = &cobra.Command{
	Use:   "watch [job_id]",
	Short: "Follow a job's lifecycle and output events",
	Long:  `Stream a job's events as they happen: queueing, attempt starts, live output chunks and the terminal outcome. The stream ends when the job finishes.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("api_key"))
		watchJob(cmd, client, args[0])
	},
}

func watchJob(cmd *cobra.Command, client *JobClient, jobID string) {
	err := client.Watch(cmd.Context(), jobID, func(msg api.EventMessage) {
		switch msg.Kind {
		case "log":
			var chunk struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(msg.Payload, &chunk); err == nil {
				cmd.Print(chunk.Text)
				if !strings.HasSuffix(chunk.Text, "\n") {
					cmd.Println()
				}
			}
		default:
			cmd.Printf("%s[%s]%s %s\n", colorDim, msg.Timestamp.Format("15:04:05"), colorReset, colorizeStatus(msg.Kind))
		}
	})
	if err != nil {
		cmd.Printf("Watch failed: %v\n", err)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
