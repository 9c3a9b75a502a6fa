package connectors

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/shared/errors"
)

func TestResolveCredential(t *testing.T) {
	t.Setenv("YETII_TEST_ERP_PASSWORD", "s3cret")

	password, err := resolveCredential(&config.Connection{ID: "erp", CredentialRef: "env:YETII_TEST_ERP_PASSWORD"})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", password)

	password, err = resolveCredential(&config.Connection{ID: "erp", CredentialRef: "literal-password"})
	require.NoError(t, err)
	assert.Equal(t, "literal-password", password)

	password, err = resolveCredential(&config.Connection{ID: "erp"})
	require.NoError(t, err)
	assert.Empty(t, password)

	_, err = resolveCredential(&config.Connection{ID: "erp", CredentialRef: "env:YETII_TEST_NOT_SET"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailed))
	assert.Contains(t, err.Error(), "credential_ref environment variable 'YETII_TEST_NOT_SET' is not set")
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		dsn      string
		options  map[string]string
		password string
		expected string
	}{
		{
			name:     "postgres url",
			driver:   "postgres",
			dsn:      "postgres://erp@db:5432/erp",
			options:  map[string]string{"sslmode": "disable"},
			password: "p w",
			expected: "postgres://erp:p%20w@db:5432/erp?sslmode=disable",
		},
		{
			name:     "url without password",
			driver:   "pgx",
			dsn:      "postgres://erp@db:5432/erp",
			expected: "postgres://erp@db:5432/erp",
		},
		{
			name:     "postgres key value",
			driver:   "postgres",
			dsn:      "host=db user=erp dbname=erp",
			options:  map[string]string{"sslmode": "disable", "application_name": "yetii sync"},
			password: "it's",
			expected: `host=db user=erp dbname=erp password='it\'s' application_name='yetii sync' sslmode=disable`,
		},
		{
			name:     "sqlite file",
			driver:   "sqlite",
			dsn:      "file:erp.db",
			options:  map[string]string{"_pragma": "busy_timeout(5000)"},
			expected: "file:erp.db?_pragma=busy_timeout%285000%29",
		},
		{
			name:     "sqlite absolute url",
			driver:   "sqlite",
			dsn:      "sqlite:///var/lib/yetii/erp.db",
			options:  map[string]string{"mode": "ro"},
			expected: "file:/var/lib/yetii/erp.db?mode=ro",
		},
		{
			name:     "sqlite relative url",
			driver:   "sqlite",
			dsn:      "SQLite://erp.db?cache=shared",
			expected: "file:erp.db?cache=shared",
		},
		{
			name:     "sqlite with existing query",
			driver:   "sqlite",
			dsn:      "file:erp.db?mode=ro",
			options:  map[string]string{"cache": "shared"},
			expected: "file:erp.db?mode=ro&cache=shared",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := buildDSN(tt.driver, tt.dsn, tt.options, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, dsn)
		})
	}
}

func TestBuildDSN_MySQL(t *testing.T) {
	dsn, err := buildDSN("mysql", "erp@tcp(db:3306)/erp", map[string]string{"parseTime": "true"}, "secret")
	require.NoError(t, err)
	assert.Contains(t, dsn, "erp:secret@tcp(db:3306)/erp")
	assert.Contains(t, dsn, "parseTime=true")

	dsn, err = buildDSN("mysql", "mysql://erp@tcp(db:3306)/erp", nil, "")
	require.NoError(t, err)
	assert.Contains(t, dsn, "erp@tcp(db:3306)/erp")

	_, err = buildDSN("mysql", "not a dsn", nil, "")
	assert.Error(t, err)
}

func TestBuildDSN_InvalidURL(t *testing.T) {
	_, err := buildDSN("postgres", "postgres://erp@db:port/erp", nil, "")
	assert.Error(t, err)
}

func TestGenericAdapter_ConnectSQLiteURL(t *testing.T) {
	ctx := context.Background()
	path := filepath.ToSlash(filepath.Join(t.TempDir(), "erp.db"))
	c := &config.Connection{
		ID:          "local",
		BackendKind: config.BackendGenericDriver,
		DSN:         "sqlite://" + path,
		Driver:      config.InferDriver("sqlite://" + path),
	}
	require.Equal(t, "sqlite", c.Driver)

	conn, err := NewGenericAdapter().Connect(ctx, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(ctx) })

	_, err = run(ctx, conn, "CREATE TABLE orders (id INTEGER)")
	require.NoError(t, err)
	assert.FileExists(t, filepath.FromSlash(path))
}
