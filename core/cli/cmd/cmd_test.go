package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yetii/yetii/core/drivers"
	"github.com/yetii/yetii/core/infrastructure/di"
	"github.com/yetii/yetii/core/runtime/connectors"
)

// execute runs the root command with args and returns its output and exit code.
// Flags start from their defaults on every call.
func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), ExitCode(err)
}

func resetFlags() {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	reset(rootCmd.Flags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}
}

// withoutODBC keeps tests from shelling out to the host ODBC tools.
func withoutODBC(t *testing.T) {
	t.Helper()
	previous := newContainer
	newContainer = func() *di.Container {
		return di.NewContainer(di.WithDrivers(drivers.NewHostRegistry(
			drivers.WithWireProtocols(connectors.WireProtocols),
			drivers.WithGOOS("linux"),
			drivers.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
				return nil, errors.New("odbcinst: not found")
			}),
		)))
	}
	t.Cleanup(func() { newContainer = previous })
}

// writeConfig writes a config over a SQLite database in a temp directory and
// returns its path.
func writeConfig(t *testing.T, queries string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`version: "1.0.0"
name: cli-test
connections:
  - id: db1
    backend_kind: generic-driver
    driver: sqlite
    dsn_or_address: "file:%s"
queries:
%s`, filepath.ToSlash(filepath.Join(dir, "test.db")), queries)

	path := filepath.Join(dir, "yetii.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const selectOne = `  - name: q1
    connection_id: db1
    template: SELECT 1
    parameters: []
    enabled: true
`

func TestCheckConfig_Valid(t *testing.T) {
	withoutODBC(t)
	path := writeConfig(t, selectOne)

	first, code := execute(t, "check-config", "-f", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, first, "Configuration is valid")
	assert.Contains(t, first, "q1")

	second, code := execute(t, "check-config", "-f", path)
	assert.Equal(t, 0, code)
	assert.Equal(t, first, second)
}

func TestCheckConfig_UnknownConnection(t *testing.T) {
	withoutODBC(t)
	path := writeConfig(t, strings.Replace(selectOne, "connection_id: db1", "connection_id: missing", 1))

	out, code := execute(t, "check-config", "-f", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "queries[0].connection_id")
	assert.Contains(t, out, "(1)")
}

func TestCheckConfig_ParseError(t *testing.T) {
	withoutODBC(t)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: [1.0\nname: x\n"), 0o644))

	_, code := execute(t, "check-config", "-f", path)
	assert.Equal(t, 1, code)

	_, code = execute(t, "check-config", "-f", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, 1, code)
}

func TestRun_SingleQuery(t *testing.T) {
	withoutODBC(t)
	path := writeConfig(t, selectOne)

	out, code := execute(t, "run", "-f", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "q1")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "Run 1 succeeded, 0 failed, 0 skipped")
}

func TestRun_InvalidConfig(t *testing.T) {
	withoutODBC(t)
	path := writeConfig(t, strings.Replace(selectOne, "connection_id: db1", "connection_id: missing", 1))

	out, code := execute(t, "run", "-f", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "queries[0].connection_id")
}

func TestRun_DisabledQuery(t *testing.T) {
	withoutODBC(t)
	path := writeConfig(t, strings.Replace(selectOne, "enabled: true", "enabled: false", 1))

	out, code := execute(t, "run", "-f", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "No queries to run")

	out, code = execute(t, "run", "-f", path, "--force")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "No queries to run")

	_, code = execute(t, "run", "-f", path, "--query", "q1")
	assert.Equal(t, 1, code)

	out, code = execute(t, "run", "-f", path, "--query", "q1", "--force")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "succeeded")
}

func TestRun_UnknownQuery(t *testing.T) {
	withoutODBC(t)
	path := writeConfig(t, selectOne)

	_, code := execute(t, "run", "-f", path, "--query", "nope")
	assert.Equal(t, 1, code)
}

func TestRun_ExecutionFailure(t *testing.T) {
	withoutODBC(t)
	path := writeConfig(t, `  - name: broken
    connection_id: db1
    template: SELECT no_such_column FROM no_such_table
    enabled: true
  - name: fine
    connection_id: db1
    template: SELECT 1
    enabled: true
`)

	out, code := execute(t, "run", "-f", path)
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "EXECUTION_FAILED")
	assert.Contains(t, out, "Run failed: 1 succeeded, 1 failed, 0 skipped")
}

func TestRun_ForcedFailureIsWarning(t *testing.T) {
	withoutODBC(t)
	path := writeConfig(t, `  - name: broken
    connection_id: db1
    template: SELECT no_such_column FROM no_such_table
    enabled: false
`)

	out, code := execute(t, "run", "-f", path, "--query", "broken", "--force")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "forced query 'broken' failed")
}

func TestRun_ParamOverrides(t *testing.T) {
	withoutODBC(t)
	path := writeConfig(t, `  - name: create
    connection_id: db1
    template: CREATE TABLE t (n INTEGER)
    enabled: true
  - name: fill
    connection_id: db1
    template: INSERT INTO t (n) VALUES (1), (2), (3)
    enabled: true
  - name: above
    connection_id: db1
    template: SELECT n FROM t WHERE n > {{ params.min }}
    parameters:
      - name: min
        type: int
        value: 0
    enabled: true
`)

	out, code := execute(t, "run", "-f", path, "--param", "min=2")
	require.Equal(t, 0, code, out)
	assert.Regexp(t, `above\s+db1\s+succeeded\s+1\s`, out)

	_, code = execute(t, "run", "-f", path, "--query", "above", "--param", "limit=2")
	assert.Equal(t, 1, code)

	_, code = execute(t, "run", "-f", path, "--query", "above", "--param", "min=two")
	assert.Equal(t, 2, code)

	_, code = execute(t, "run", "-f", path, "--param", "novalue")
	assert.Equal(t, 1, code)
}

func TestExecute_FlagsDoNotLeakBetweenCalls(t *testing.T) {
	withoutODBC(t)
	path := writeConfig(t, strings.Replace(selectOne, "enabled: true", "enabled: false", 1))

	_, code := execute(t, "run", "-f", path, "--query", "q1", "--force", "--param", "x=1")
	assert.Equal(t, 1, code)
	assert.Equal(t, []string{"x=1"}, runParams)

	_, code = execute(t, "run", "-f", path, "--query", "q1")
	assert.Equal(t, 1, code)
	assert.False(t, runForce)
	assert.Empty(t, runParams)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"a=1", "b=x=y", "a=2", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "2", "b": "x=y", "empty": ""}, params)

	_, err = parseParams([]string{"=1"})
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	withoutODBC(t)
	dir := filepath.Join(t.TempDir(), "project")

	out, code := execute(t, "init", "--path", dir, "--name", "nightly")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Created configuration file")

	path := filepath.Join(dir, "yetii.yaml")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "name: nightly")

	_, code = execute(t, "init", "--path", dir)
	assert.Equal(t, 1, code)

	_, code = execute(t, "init", "--path", dir, "--force")
	assert.Equal(t, 0, code)

	out, code = execute(t, "check-config", "-f", path)
	assert.Equal(t, 0, code, out)
}

func TestInit_UsesFileName(t *testing.T) {
	dir := t.TempDir()

	_, code := execute(t, "init", "--path", dir, "-f", "custom.yaml")
	require.Equal(t, 0, code)
	assert.FileExists(t, filepath.Join(dir, "custom.yaml"))
}

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) ListInstalled(ctx context.Context) drivers.Inventory {
	args := m.Called(ctx)
	return args.Get(0).(drivers.Inventory)
}

func TestODBC(t *testing.T) {
	reg := &mockRegistry{}
	reg.On("ListInstalled", mock.Anything).Return(drivers.Inventory{
		Drivers: []drivers.Descriptor{
			{Name: "sqlite", Kind: drivers.KindSQL, Version: "v1.38.0", Source: "modernc.org/sqlite"},
			{Name: "redis", Kind: drivers.KindWire, Version: "v9.17.2", Source: "github.com/redis/go-redis/v9"},
			{Name: "PostgreSQL Unicode", Kind: drivers.KindODBC, Version: drivers.UnknownVersion, Source: "odbcinst"},
		},
		Warnings: []string{"odbcinst reported a malformed line"},
	})
	previous := newContainer
	newContainer = func() *di.Container { return di.NewContainer(di.WithDrivers(reg)) }
	t.Cleanup(func() { newContainer = previous })

	out, code := execute(t, "odbc")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "! odbcinst reported a malformed line")
	assert.Regexp(t, `PostgreSQL Unicode\s+odbc\s+unknown\s+odbcinst`, out)
	assert.Regexp(t, `sqlite\s+database/sql\s+v1.38.0\s+modernc.org/sqlite`, out)
	reg.AssertExpectations(t)
}

func TestODBC_HostProbeFailure(t *testing.T) {
	withoutODBC(t)

	out, code := execute(t, "odbc")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "sqlite")
	assert.Contains(t, out, "redis")
	assert.Contains(t, out, "odbcinst")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("unknown flag")))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("wrapped: %w", withExitCode(2, nil))))
	assert.Empty(t, withExitCode(2, nil).Error())
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3")
	t.Cleanup(func() { SetVersion("dev") })

	out, code := execute(t, "--version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "1.2.3\n", out)
}
