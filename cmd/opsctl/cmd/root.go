package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "opsctl",
	Short: "Opsctl is a command line tool for the opsplane automation worker",
	Long: `opsctl is the command-line interface for opsplane, a control plane for
infrastructure-automation jobs.

Opsplane accepts automation jobs (ansible playbook runs, terraform plan
and apply, echo test jobs), queues them with retry and backoff, and
executes them in containers or local subprocesses while streaming output
to watchers.

Common workflows:

  Submit an echo test job:
    opsctl submit --type echo --name smoke --payload '{"message":"hello"}'

  Submit a playbook run from a payload file:
    opsctl submit --type playbook-run --name patching --payload-file patching.json

  Check a job:
    opsctl status <job-id>

  Follow a job's output:
    opsctl watch <job-id>

  Queue occupancy:
    opsctl stats

Configuration:
  Set the API endpoint and key via flags, environment variables or a
  config file:
    OPSPLANE_URL        API endpoint (default: http://localhost:8080)
    OPSPLANE_API_KEY    API key, when the worker requires one`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".opsctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".opsctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "OPSPLANE_VARNAME"
	viper.SetEnvPrefix("OPSPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.opsctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "Opsplane worker URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("api-key", "k", "", "API key for authentication")
	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
}
