package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag   string
	logLevelFlag string
	logJSONFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "callspec",
	Short: "Run async API test plans and correlate their callbacks.",
	Long: `callspec executes test plans against asynchronous HTTP APIs. Each
request is sent, its callback is awaited on the built-in receiver, and
the assertions of the plan are evaluated against both.`,
	SilenceUsage: true,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", getEnvString("CALLSPEC_CONFIG", ""), "Path to config file (env: CALLSPEC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", getEnvString("CALLSPEC_LOG_LEVEL", "warn"), "Log level: debug, info, warn, error (env: CALLSPEC_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&logJSONFlag, "log-json", getEnvBool("CALLSPEC_LOG_JSON", false), "Write logs as JSON (env: CALLSPEC_LOG_JSON)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}
