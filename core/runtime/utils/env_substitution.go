package utils

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	// Environment variable pattern: {{ env.VARIABLE_NAME }}
	envVarPattern = regexp.MustCompile(`\{\{\s*env\.(\w+)\s*\}\}`)
)

// SubstituteEnvVars replaces {{ env.VARIABLE_NAME }} placeholders with environment
// variable values. A reference to an unset variable is an error; a variable set to
// the empty string substitutes as empty.
func SubstituteEnvVars(value string) (string, error) {
	result := value
	matches := envVarPattern.FindAllStringSubmatch(value, -1)
	seen := make(map[string]bool)

	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		envVarName := match[1]
		placeholder := match[0]

		// Avoid processing the same placeholder multiple times
		if seen[placeholder] {
			continue
		}
		seen[placeholder] = true

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			return "", fmt.Errorf("environment variable '%s' is not set", envVarName)
		}

		// Replace all occurrences of this placeholder
		result = strings.ReplaceAll(result, placeholder, envValue)
	}

	return result, nil
}
