package main

import (
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
)

var (
	configPath string
	silent     bool
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jenkinsctl",
		Short: "Operate a blue-green Jenkins fleet offline",
		Long: "jenkinsctl resolves Jenkins plugin dependencies for offline installation,\n" +
			"prefetches plugin artifacts, and switches teams between their blue and\n" +
			"green environments.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional YAML config file")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "Suppress informational and warning output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newEnvCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging wires apex/log. Silent still lets fatal errors through on
// the error level.
func setupLogging() {
	log.SetHandler(clihandler.New(os.Stderr))
	switch {
	case silent:
		log.SetLevel(log.ErrorLevel)
	case verbose:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
