package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/logger"
)

var (
	initPath  string
	initName  string
	initForce bool
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:           "init",
	Short:         "Initialize a new yetii configuration file",
	Args:          cobra.NoArgs,
	RunE:          runInit,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initPath, "path", "p", ".", "Directory to create the configuration file in")
	initCmd.Flags().StringVarP(&initName, "name", "n", "my-yetii", "Name recorded in the configuration")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

// Starter document layout. Field order is the order written to the file.
type starterConfig struct {
	Version     string              `yaml:"version"`
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Connections []starterConnection `yaml:"connections"`
	Queries     []starterQuery      `yaml:"queries"`
	Settings    config.Settings     `yaml:"settings"`
}

type starterConnection struct {
	ID            string `yaml:"id"`
	BackendKind   string `yaml:"backend_kind"`
	DSN           string `yaml:"dsn_or_address"`
	Driver        string `yaml:"driver,omitempty"`
	Protocol      string `yaml:"protocol,omitempty"`
	CredentialRef string `yaml:"credential_ref,omitempty"`
}

type starterQuery struct {
	Name         string             `yaml:"name"`
	Description  string             `yaml:"description,omitempty"`
	ConnectionID string             `yaml:"connection_id"`
	Template     string             `yaml:"template"`
	Parameters   []starterParameter `yaml:"parameters"`
	Enabled      bool               `yaml:"enabled"`
}

type starterParameter struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value any    `yaml:"value,omitempty"`
}

func runInit(cmd *cobra.Command, args []string) error {
	log := logger.New("init")
	console := logger.NewConsole(cmd.OutOrStdout())

	target := filepath.Join(initPath, filepath.Base(configFile))
	if _, err := os.Stat(target); err == nil && !initForce {
		return withExitCode(1, log.Errorf("file '%s' already exists. Use --force to overwrite it", target))
	}

	content, err := yaml.Marshal(generateStarterConfig(initName))
	if err != nil {
		return withExitCode(1, log.Errorf("failed to render configuration: %w", err))
	}

	if err := os.MkdirAll(initPath, 0o755); err != nil {
		return withExitCode(1, log.Errorf("failed to create directory: %w", err))
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return withExitCode(1, log.Errorf("failed to write config file: %w", err))
	}

	console.Success("Created configuration file: %s", target)
	console.Line("\nNext steps:")
	console.Line("  1. Edit %s and declare your connections and queries", target)
	console.Line("  2. Run: yetii check-config -f %s", target)
	console.Line("  3. Run: yetii run -f %s", target)
	return nil
}

// generateStarterConfig returns a document that validates as-is: a local SQLite
// database with two enabled queries, and a disabled PostgreSQL example.
func generateStarterConfig(name string) starterConfig {
	return starterConfig{
		Version:     "1.0.0",
		Name:        name,
		Description: "Queries managed by yetii",
		Connections: []starterConnection{
			{
				ID:          "local",
				BackendKind: string(config.BackendGenericDriver),
				DSN:         "file:yetii.db",
				Driver:      "sqlite",
			},
			{
				ID:            "warehouse",
				BackendKind:   string(config.BackendDirectWire),
				DSN:           "postgres://yetii@localhost:5432/warehouse?sslmode=disable",
				Protocol:      "postgres",
				CredentialRef: "env:WAREHOUSE_PASSWORD",
			},
		},
		Queries: []starterQuery{
			{
				Name:         "create_heartbeat",
				Description:  "Create the heartbeat table",
				ConnectionID: "local",
				Template:     "CREATE TABLE IF NOT EXISTS heartbeat (id INTEGER PRIMARY KEY, note TEXT, seen_at TEXT)",
				Parameters:   []starterParameter{},
				Enabled:      true,
			},
			{
				Name:         "record_heartbeat",
				Description:  "Record that yetii ran",
				ConnectionID: "local",
				Template:     "INSERT INTO heartbeat (note, seen_at) VALUES ({{ params.note }}, CURRENT_TIMESTAMP)",
				Parameters:   []starterParameter{{Name: "note", Type: string(config.ParamString), Value: "hello from yetii"}},
				Enabled:      true,
			},
			{
				Name:         "archive_orders",
				Description:  "Delete orders older than the cutoff. Run with: yetii run --query archive_orders --force",
				ConnectionID: "warehouse",
				Template:     "DELETE FROM orders WHERE created_at < {{ params.cutoff }}",
				Parameters:   []starterParameter{{Name: "cutoff", Type: string(config.ParamDatetime), Value: "2024-01-01T00:00:00Z"}},
				Enabled:      false,
			},
		},
		Settings: config.DefaultSettings(),
	}
}
