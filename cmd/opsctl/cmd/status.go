package cmd

import (
	"fmt"
	"time"

	"opsplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusShowLogs bool

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a job",
	Long:  `Retrieve the job record, including its current state (pending, queued, running, completed, failed, cancelled), attempt count, result and timestamps.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewJobClient(viper.GetString("url"), viper.GetString("api_key"))

		j, err := client.Get(args[0])
		if err != nil {
			cmd.Printf("Request failed: %v\n", err)
			return
		}

		printStatus(cmd, j)
		if statusShowLogs && j.Logs != "" {
			cmd.Printf("\n%sLogs:%s\n%s", colorDim, colorReset, j.Logs)
		}
	},
}

func printStatus(cmd *cobra.Command, j *api.JobResponse) {
	icon := statusIcon(j.Status)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, j.ID)
	cmd.Printf("%sName:%s        %s\n", colorDim, colorReset, j.Name)
	cmd.Printf("%sType:%s        %s\n", colorDim, colorReset, j.Type)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(j.Status))
	cmd.Printf("%sAttempt:%s     %d\n", colorDim, colorReset, j.Attempt)

	if j.Result != nil {
		if j.Result.ExitCode == 0 {
			cmd.Printf("%sExit Code:%s   %s%d%s\n", colorDim, colorReset, colorGreen, j.Result.ExitCode, colorReset)
		} else {
			cmd.Printf("%sExit Code:%s   %s%d%s\n", colorDim, colorReset, colorRed, j.Result.ExitCode, colorReset)
		}
		if j.Result.Error != "" {
			cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, j.Result.Error, colorReset)
		}
		if j.Result.Summary != "" {
			cmd.Printf("%sSummary:%s     %s\n", colorDim, colorReset, j.Result.Summary)
		}
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(j.StartedAt))

	if j.StartedAt != nil && j.CompletedAt != nil {
		duration := j.CompletedAt.Sub(*j.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(j.CompletedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(j.CompletedAt))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "completed":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "cancelled":
		return colorRed + "⊘" + colorReset
	case "running":
		return colorYellow + "⏳" + colorReset
	case "pending", "queued":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "completed":
		return icon + " " + colorGreen + status + colorReset
	case "failed", "cancelled":
		return icon + " " + colorRed + status + colorReset
	case "running":
		return icon + " " + colorYellow + status + colorReset
	case "pending", "queued":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusShowLogs, "logs", false, "also print captured job output")
}
