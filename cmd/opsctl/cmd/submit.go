package cmd

import (
	"encoding/json"
	"os"

	"opsplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	submitType        string
	submitName        string
	submitPayload     string
	submitPayloadFile string
	submitAttempts    int
	submitDelay       string
	submitBackoff     string
	submitWatch       bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new automation job",
	Long: `Submit a job for execution. The payload is the type-specific JSON
document: playbook-run takes playbook/inventory/extra_vars, plan and
apply take working_dir/vars, echo takes a message.`,
	Run: func(cmd *cobra.Command, args []string) {
		payload := submitPayload
		if submitPayloadFile != "" {
			data, err := os.ReadFile(submitPayloadFile)
			if err != nil {
				cmd.Printf("Failed to read payload file: %v\n", err)
				return
			}
			payload = string(data)
		}
		if payload == "" {
			cmd.Println("A payload is required, via --payload or --payload-file")
			return
		}
		if !json.Valid([]byte(payload)) {
			cmd.Println("Payload is not valid JSON")
			return
		}

		client := NewJobClient(viper.GetString("url"), viper.GetString("api_key"))
		resp, err := client.Submit(api.SubmitJobRequest{
			Type:        submitType,
			Name:        submitName,
			Payload:     json.RawMessage(payload),
			Attempts:    submitAttempts,
			Delay:       submitDelay,
			BackoffBase: submitBackoff,
		})
		if err != nil {
			cmd.Printf("Submission failed: %v\n", err)
			return
		}

		cmd.Printf("Job submitted: %s\n", resp.JobID)

		if submitWatch {
			watchJob(cmd, client, resp.JobID)
		}
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitType, "type", "", "job type: playbook-run, plan, apply or echo")
	submitCmd.Flags().StringVar(&submitName, "name", "", "human-readable job name")
	submitCmd.Flags().StringVar(&submitPayload, "payload", "", "type-specific JSON payload")
	submitCmd.Flags().StringVar(&submitPayloadFile, "payload-file", "", "read the payload from a file")
	submitCmd.Flags().IntVar(&submitAttempts, "attempts", 0, "retry ceiling (0 uses the server default)")
	submitCmd.Flags().StringVar(&submitDelay, "delay", "", "defer the first attempt, e.g. 30s")
	submitCmd.Flags().StringVar(&submitBackoff, "backoff", "", "base retry delay, e.g. 5s")
	submitCmd.Flags().BoolVarP(&submitWatch, "watch", "w", false, "follow the job's events after submitting")

	submitCmd.MarkFlagRequired("type")
	submitCmd.MarkFlagRequired("name")
}
