package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue occupancy",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("api_key"))

		stats, err := client.Stats()
		if err != nil {
			cmd.Printf("Request failed: %v\n", err)
			return
		}

		cmd.Printf("%sQueue%s\n", colorBold, colorReset)
		cmd.Println("──────────────────────────────")
		cmd.Printf("%sWaiting:%s    %d\n", colorDim, colorReset, stats.Waiting)
		cmd.Printf("%sActive:%s     %d\n", colorDim, colorReset, stats.Active)
		cmd.Printf("%sCompleted:%s  %s%d%s\n", colorDim, colorReset, colorGreen, stats.Completed, colorReset)
		cmd.Printf("%sFailed:%s     %s%d%s\n", colorDim, colorReset, colorRed, stats.Failed, colorReset)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
