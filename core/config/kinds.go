package config

import (
	"fmt"
	"strings"
)

// BackendKind is the connectivity mechanism a connection uses.
type BackendKind string

const (
	// BackendGenericDriver routes through a database/sql driver registered on the host.
	BackendGenericDriver BackendKind = "generic-driver"
	// BackendDirectWire speaks a database's network protocol natively.
	BackendDirectWire BackendKind = "direct-wire"
)

var validBackendKinds = []BackendKind{BackendGenericDriver, BackendDirectWire}

// ParseBackendKind converts the document spelling into a BackendKind.
func ParseBackendKind(s string) (BackendKind, error) {
	for _, k := range validBackendKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown backend kind '%s'", s)
}

// GetValidBackendKinds returns the spellings accepted for backend_kind.
func GetValidBackendKinds() []string {
	out := make([]string, len(validBackendKinds))
	for i, k := range validBackendKinds {
		out[i] = string(k)
	}
	return out
}

// ParamType is the declared type of a template parameter.
type ParamType string

const (
	ParamString   ParamType = "string"
	ParamInt      ParamType = "int"
	ParamFloat    ParamType = "float"
	ParamBoolean  ParamType = "boolean"
	ParamDatetime ParamType = "datetime"
	ParamUUID     ParamType = "uuid"
)

var validParamTypes = []ParamType{ParamString, ParamInt, ParamFloat, ParamBoolean, ParamDatetime, ParamUUID}

// IsValidParamType reports whether s names a supported parameter type.
func IsValidParamType(s string) bool {
	for _, t := range validParamTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

// GetValidParamTypes returns the supported parameter type names.
func GetValidParamTypes() []string {
	out := make([]string, len(validParamTypes))
	for i, t := range validParamTypes {
		out[i] = string(t)
	}
	return out
}

// InferDriver guesses the database/sql driver name from a DSN. It returns "" when the
// DSN carries no recognisable marker.
func InferDriver(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "@tcp("), strings.Contains(lower, "@unix("):
		return "mysql"
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"), lower == ":memory:",
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return "sqlite"
	case strings.HasPrefix(lower, "dsn="), strings.HasPrefix(lower, "driver="):
		return "odbc"
	}
	return ""
}

// InferProtocol guesses the wire protocol from an address. It returns "" for a bare
// host:port.
func InferProtocol(address string) string {
	lower := strings.ToLower(strings.TrimSpace(address))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return "redis"
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		return "mongodb"
	}
	return ""
}
