package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a queued or running job",
	Long:  `Cancel a job. A queued job is removed from the queue; a running job has its subprocess killed. Either way the job ends in the cancelled state.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("api_key"))

		if err := client.Cancel(args[0]); err != nil {
			cmd.Printf("Cancel failed: %v\n", err)
			return
		}
		cmd.Printf("Job %s cancelling\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
