package connectors

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/shared/errors"
)

const envCredentialPrefix = "env:"

// resolveCredential turns a credential_ref into a password. "env:NAME" reads the
// variable NAME at connect time; any other non-empty reference is the password itself.
func resolveCredential(conn *config.Connection) (string, error) {
	ref := conn.CredentialRef
	if name, ok := strings.CutPrefix(ref, envCredentialPrefix); ok {
		value, exists := os.LookupEnv(name)
		if !exists {
			return "", errors.NewAppError(errors.ErrCodeConnectionFailed,
				fmt.Sprintf("connection '%s': credential_ref environment variable '%s' is not set", conn.ID, name), nil)
		}
		return value, nil
	}
	return ref, nil
}

// buildDSN merges options and the resolved password into a database/sql DSN.
func buildDSN(driver, dsn string, options map[string]string, password string) (string, error) {
	switch {
	case driver == "mysql":
		return mysqlDSN(dsn, options, password)
	case driver == "sqlite":
		return appendQuery(sqliteDSN(dsn), options), nil
	case strings.Contains(dsn, "://"):
		return urlDSN(dsn, options, password)
	case driver == "postgres" || driver == "pgx":
		return keyValueDSN(dsn, options, password), nil
	default:
		return appendQuery(dsn, options), nil
	}
}

// urlDSN sets the password and appends options as query parameters of a URL DSN.
func urlDSN(dsn string, options map[string]string, password string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid connection URL: %w", err)
	}
	if password != "" {
		username := ""
		if u.User != nil {
			username = u.User.Username()
		}
		u.User = url.UserPassword(username, password)
	}
	if len(options) > 0 {
		query := u.Query()
		for key, value := range options {
			query.Set(key, value)
		}
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// mysqlDSN handles the user:pass@tcp(host)/db form understood by go-sql-driver/mysql.
func mysqlDSN(dsn string, options map[string]string, password string) (string, error) {
	dsn = strings.TrimPrefix(dsn, "mysql://")
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	if password != "" {
		cfg.Passwd = password
	}
	return appendQuery(cfg.FormatDSN(), options), nil
}

// sqliteDSN rewrites a sqlite://PATH URL into the file:PATH form modernc.org/sqlite
// opens. Other forms pass through unchanged.
func sqliteDSN(dsn string) string {
	const scheme = "sqlite://"
	trimmed := strings.TrimSpace(dsn)
	if len(trimmed) < len(scheme) || !strings.EqualFold(trimmed[:len(scheme)], scheme) {
		return dsn
	}
	return "file:" + trimmed[len(scheme):]
}

// keyValueDSN appends settings to a libpq "host=... user=..." connection string.
func keyValueDSN(dsn string, options map[string]string, password string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(dsn))
	if password != "" {
		fmt.Fprintf(&b, " password=%s", quoteKeyValue(password))
	}
	for _, key := range sortedOptionKeys(options) {
		fmt.Fprintf(&b, " %s=%s", key, quoteKeyValue(options[key]))
	}
	return b.String()
}

func quoteKeyValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// appendQuery adds options as ?key=value pairs, used for SQLite file DSNs.
func appendQuery(dsn string, options map[string]string) string {
	if len(options) == 0 {
		return dsn
	}
	values := url.Values{}
	for key, value := range options {
		values.Set(key, value)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + values.Encode()
}

func sortedOptionKeys(options map[string]string) []string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
