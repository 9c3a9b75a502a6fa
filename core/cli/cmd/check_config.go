package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yetii/yetii/core/application/report"
	"github.com/yetii/yetii/core/cli/internal"
	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/logger"
)

// checkConfigCmd validates the configuration file without touching any database
var checkConfigCmd = &cobra.Command{
	Use:           "check-config",
	Short:         "Validate the configuration file",
	Args:          cobra.NoArgs,
	RunE:          checkConfig,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func checkConfig(cmd *cobra.Command, args []string) error {
	console := logger.NewConsole(cmd.OutOrStdout())

	cfg, result, err := internal.LoadConfig(configFile, newContainer().Drivers)
	if err != nil {
		return withExitCode(report.ExitInvalid, logger.WithTag("check-config", err))
	}
	if !result.Valid() {
		console.Problems(fmt.Sprintf("%s is invalid", configFile), result.Located())
		return withExitCode(report.ExitInvalid, nil)
	}

	printConfigSummary(console, cfg)
	console.Success("Configuration is valid: %s", configFile)
	return nil
}

func printConfigSummary(console *logger.Console, cfg *config.Config) {
	console.Line("%s (version %s): %d connection(s), %d quer%s", cfg.Name, cfg.Version,
		len(cfg.Connections), len(cfg.Queries), pluralY(len(cfg.Queries)))

	if len(cfg.Queries) == 0 {
		return
	}
	rows := make([][]string, 0, len(cfg.Queries))
	for _, q := range cfg.Queries {
		backend := ""
		if conn, ok := cfg.Connection(q.ConnectionID); ok {
			backend = connectionBackend(conn)
		}
		rows = append(rows, []string{
			q.Name,
			q.ConnectionID,
			backend,
			strconv.FormatBool(q.Enabled),
			strconv.Itoa(len(q.Parameters)),
		})
	}
	console.Table([]string{"QUERY", "CONNECTION", "BACKEND", "ENABLED", "PARAMETERS"}, rows)
}

func connectionBackend(conn *config.Connection) string {
	switch conn.BackendKind {
	case config.BackendGenericDriver:
		return fmt.Sprintf("%s (%s)", conn.BackendKind, conn.Driver)
	case config.BackendDirectWire:
		return fmt.Sprintf("%s (%s)", conn.BackendKind, conn.Protocol)
	}
	return string(conn.BackendKind)
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
