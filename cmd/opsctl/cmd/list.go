package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List retained jobs, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("api_key"))

		jobs, err := client.List()
		if err != nil {
			cmd.Printf("Request failed: %v\n", err)
			return
		}
		if len(jobs) == 0 {
			cmd.Println("No jobs")
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tNAME\tSTATUS\tATTEMPT\tCREATED")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				j.ID, j.Type, j.Name, j.Status, j.Attempt,
				j.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
