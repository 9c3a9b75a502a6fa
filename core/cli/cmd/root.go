package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/infrastructure/di"
	"github.com/yetii/yetii/core/logger"
)

// version stores the version string, set via SetVersion()
var version = "dev"

// SetVersion sets the version string (called from main.init())
func SetVersion(v string) {
	version = v
}

// GetVersion returns the current version string
func GetVersion() string {
	return version
}

var (
	configFile  string
	logLevel    int
	verbose     bool
	logTags     string
	logFile     bool
	showVersion bool
)

// newContainer builds the collaborators of one command invocation.
var newContainer = func() *di.Container {
	return di.NewContainer()
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:               "yetii",
	Short:             "yetii\nRun the database queries declared in one YAML file",
	PersistentPreRunE: prepareLogging,
	SilenceUsage:      true,
	SilenceErrors:     true, // Errors are already logged, suppress Cobra's error output
}

// completionCmd is a hidden command used by install scripts to generate shell completions
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for yetii.
This command is used internally by install scripts and is hidden from help.`,
	Hidden:       true,
	ValidArgs:    []string{"bash", "zsh", "fish", "powershell"},
	Args:         cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add hidden completion command for install scripts
	rootCmd.AddCommand(completionCmd)
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print the installed version and exit")

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "file", "f", config.DefaultFileName, "Path to the configuration file")
	flags.IntVar(&logLevel, "log-level", 0, "Log level: 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG (overrides config file)")
	flags.BoolVar(&verbose, "verbose", false, "Enable verbose logging (sets log level to DEBUG)")
	flags.StringVar(&logTags, "log-tags", "", "Filter logs by tags (comma-separated, use -tag to exclude). Overrides YETII_LOG_TAGS env var")
	flags.BoolVar(&logFile, "log-file", false, "Stream logs to a file in the temp directory")

	// Root command should only print help.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		}
		return cmd.Help()
	}
}

// prepareLogging applies the global logging flags before any command runs. The
// configuration file may lower or raise the level later when no flag was given.
func prepareLogging(cmd *cobra.Command, args []string) error {
	if logLevel < 0 || logLevel > logger.LogLevelDebug {
		return withExitCode(1, logger.New("cli").Errorf("invalid --log-level %d: must be between 1 and 4", logLevel))
	}

	// Set log level early based on CLI flags (before loading config)
	switch {
	case verbose:
		logger.SetLogLevel(logger.LogLevelDebug)
	case logLevel > 0:
		logger.SetLogLevel(logLevel)
	default:
		logger.SetLogLevel(logger.LogLevelInfo)
	}

	// CLI flag takes precedence over env var
	tagFilterStr := logTags
	if tagFilterStr == "" {
		tagFilterStr = os.Getenv("YETII_LOG_TAGS")
	}
	if tagFilterStr != "" {
		logger.SetTagFilter(tagFilterStr)
	}

	if logFile {
		filePath, err := logger.SetLogFile("")
		if err != nil {
			return withExitCode(1, logger.New("cli").Errorf("failed to initialize log file: %w", err))
		}
		logger.New("cli").Infof("Log file: %s", filePath)
	}

	// .env files next to the config file win over the working directory
	configDir := ""
	if dir := filepath.Dir(configFile); dir != "" && dir != "." {
		configDir = dir
	}
	LoadEnvFiles(configDir)
	return nil
}

// LoadEnvFiles attempts to load .env files from multiple locations.
// It tries each location in order and stops at the first successful load.
// Priority order:
// 1. From the provided directory (if not empty)
// 2. From the current working directory
// 3. From the directory containing the executable binary
// System environment variables always take precedence over .env file values.
func LoadEnvFiles(fromDir string) {
	envFiles := []string{".env.local", ".env.development", ".env"}

	if fromDir != "" {
		for _, envFile := range envFiles {
			if err := godotenv.Load(filepath.Join(fromDir, envFile)); err == nil {
				return
			}
		}
	}

	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			return
		}
	}

	if execPath, err := os.Executable(); err == nil {
		if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = realPath
		}
		execDir := filepath.Dir(execPath)
		for _, envFile := range envFiles {
			if err := godotenv.Load(filepath.Join(execDir, envFile)); err == nil {
				return
			}
		}
	}
}
