package cli

import (
	"github.com/yetii/yetii/core/cli/cmd"
	"github.com/yetii/yetii/core/logger"
)

// Execute runs the CLI and returns the process exit code
func Execute() int {
	defer func() { _ = logger.CloseLogFile() }()

	err := cmd.Execute()
	if err != nil && err.Error() != "" {
		tag := logger.ErrorTag(err)
		if tag == "" {
			tag = "cli"
		}
		logger.New(tag).Error(err.Error())
	}
	return cmd.ExitCode(err)
}
