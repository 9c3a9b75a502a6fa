package internal

import (
	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/drivers"
	"github.com/yetii/yetii/core/logger"
	"github.com/yetii/yetii/core/parser"
)

// LoadConfig reads, parses and validates the configuration file at filePath.
// A parse failure is returned as err; validation problems are returned in the
// result with a nil Config.
func LoadConfig(filePath string, reg drivers.Registry) (*config.Config, parser.ValidationResult, error) {
	doc, err := parser.Load(filePath)
	if err != nil {
		return nil, parser.ValidationResult{}, err
	}
	cfg, result := parser.Validate(doc, reg)
	return cfg, result, nil
}

// ResolveLogLevel resolves the log level from verbose flag, CLI flag, config file, or default
func ResolveLogLevel(verbose bool, cliLogLevel int, cfg *config.Config) int {
	if verbose {
		return logger.LogLevelDebug
	}
	if cliLogLevel > 0 {
		return cliLogLevel
	}
	if cfg != nil {
		if level, err := logger.ParseLevel(cfg.Settings.Logging.Level); err == nil {
			return level
		}
	}
	return logger.LogLevelInfo
}

// ApplyLogSettings switches logging to the levels and format of cfg. Explicit CLI
// flags keep precedence over the file.
func ApplyLogSettings(verbose bool, cliLogLevel int, cfg *config.Config) {
	logger.SetLogLevel(ResolveLogLevel(verbose, cliLogLevel, cfg))
	if cfg != nil && cfg.Settings.Logging.Format != "" {
		logger.SetFormat(cfg.Settings.Logging.Format)
	}
}
