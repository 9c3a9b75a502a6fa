package observability

import (
	"strings"
)

const (
	AttrRunID        = "yetii.run.id"
	AttrQueryName    = "yetii.query.name"
	AttrConnectionID = "yetii.connection.id"
	AttrBackendKind  = "yetii.backend.kind"
	AttrDriver       = "yetii.connection.driver"
	AttrStatus       = "yetii.query.status"
	AttrRows         = "yetii.query.rows"
	AttrErrorType    = "error.type"
)

var secretKeySubstrings = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credential",
	"dsn",
}

// RedactAttributeValue masks values for known-sensitive attribute keys.
func RedactAttributeValue(key string, value string) string {
	lower := strings.ToLower(key)
	for _, needle := range secretKeySubstrings {
		if strings.Contains(lower, needle) {
			return "[REDACTED]"
		}
	}
	return value
}
