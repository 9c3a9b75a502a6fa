package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yetii/yetii/core/logger"
)

// odbcCmd lists the drivers the engine can use on this host
var odbcCmd = &cobra.Command{
	Use:   "odbc",
	Short: "List the database drivers installed on this host",
	Long: `List the database/sql drivers linked into yetii, the wire protocols it speaks
natively and the ODBC drivers registered with the operating system.`,
	Args:          cobra.NoArgs,
	RunE:          listDrivers,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(odbcCmd)
}

func listDrivers(cmd *cobra.Command, args []string) error {
	console := logger.NewConsole(cmd.OutOrStdout())
	inv := newContainer().Drivers.ListInstalled(cmd.Context())

	for _, w := range inv.Warnings {
		console.Warning("%s", w)
	}
	if len(inv.Drivers) == 0 {
		console.Warning("No drivers found")
		return nil
	}

	rows := make([][]string, 0, len(inv.Drivers))
	for _, d := range inv.Drivers {
		rows = append(rows, []string{d.Name, string(d.Kind), d.Version, d.Source})
	}
	console.Table([]string{"NAME", "KIND", "VERSION", "SOURCE"}, rows)
	return nil
}
