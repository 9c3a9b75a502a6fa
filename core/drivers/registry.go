// Package drivers enumerates the database drivers available to this process and
// to the host: database/sql drivers linked into the binary, natively spoken wire
// protocols, and ODBC drivers registered with the operating system.
package drivers

import (
	"context"
	"database/sql"
	"runtime"
	"runtime/debug"
	"sort"
)

// Kind groups descriptors by how a driver is reached.
type Kind string

const (
	// KindSQL is a database/sql driver linked into the binary.
	KindSQL Kind = "database/sql"
	// KindWire is a natively spoken network protocol.
	KindWire Kind = "wire"
	// KindODBC is a driver registered with the host ODBC driver manager.
	KindODBC Kind = "odbc"
)

// UnknownVersion is reported when a driver's version cannot be determined.
const UnknownVersion = "unknown"

// Descriptor describes one installed driver.
type Descriptor struct {
	Name    string
	Version string
	Kind    Kind
	// Source names where the driver comes from: a Go module path or the host tool
	// that reported it.
	Source string
}

// Inventory is the result of one enumeration. Warnings collect probe failures; they
// never abort the enumeration.
type Inventory struct {
	Drivers  []Descriptor
	Warnings []string
}

// Has reports whether a driver of the given kind and name is installed.
func (inv Inventory) Has(kind Kind, name string) bool {
	_, ok := inv.Lookup(kind, name)
	return ok
}

// Lookup returns the descriptor of the given kind and name.
func (inv Inventory) Lookup(kind Kind, name string) (Descriptor, bool) {
	for _, d := range inv.Drivers {
		if d.Kind == kind && d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Names returns the installed driver names of one kind.
func (inv Inventory) Names(kind Kind) []string {
	var names []string
	for _, d := range inv.Drivers {
		if d.Kind == kind {
			names = append(names, d.Name)
		}
	}
	return names
}

// Registry lists installed drivers.
type Registry interface {
	// ListInstalled enumerates drivers. It never fails; problems end up in
	// Inventory.Warnings.
	ListInstalled(ctx context.Context) Inventory
}

// knownModules maps driver and protocol names to the Go module that provides them,
// so versions can be read from the binary's build info.
var knownModules = map[Kind]map[string]string{
	KindSQL: {
		"postgres": "github.com/lib/pq",
		"pgx":      "github.com/jackc/pgx/v5",
		"mysql":    "github.com/go-sql-driver/mysql",
		"sqlite":   "modernc.org/sqlite",
	},
	KindWire: {
		"postgres": "github.com/jackc/pgx/v5",
		"redis":    "github.com/redis/go-redis/v9",
		"mongodb":  "go.mongodb.org/mongo-driver/v2",
	},
}

// HostRegistry is the Registry backed by the running process and host.
type HostRegistry struct {
	sqlDrivers    func() []string
	wireProtocols func() []string
	runner        CommandRunner
	goos          string
	moduleVersion func(path string) string
}

// Option configures a HostRegistry.
type Option func(*HostRegistry)

// WithWireProtocols sets the source of natively spoken protocol names.
func WithWireProtocols(fn func() []string) Option {
	return func(r *HostRegistry) { r.wireProtocols = fn }
}

// WithSQLDrivers replaces sql.Drivers as the source of database/sql driver names.
func WithSQLDrivers(fn func() []string) Option {
	return func(r *HostRegistry) { r.sqlDrivers = fn }
}

// WithCommandRunner replaces the runner used for the ODBC probe.
func WithCommandRunner(runner CommandRunner) Option {
	return func(r *HostRegistry) { r.runner = runner }
}

// WithGOOS overrides the operating system used to pick the ODBC probe.
func WithGOOS(goos string) Option {
	return func(r *HostRegistry) { r.goos = goos }
}

// NewHostRegistry creates a registry for the current process.
func NewHostRegistry(opts ...Option) *HostRegistry {
	r := &HostRegistry{
		sqlDrivers:    sql.Drivers,
		wireProtocols: func() []string { return nil },
		runner:        execRunner,
		goos:          runtime.GOOS,
		moduleVersion: buildInfoVersion,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListInstalled implements Registry.
func (r *HostRegistry) ListInstalled(ctx context.Context) Inventory {
	var inv Inventory

	for _, name := range sorted(r.sqlDrivers()) {
		inv.Drivers = append(inv.Drivers, r.describe(KindSQL, name))
	}
	for _, name := range sorted(r.wireProtocols()) {
		inv.Drivers = append(inv.Drivers, r.describe(KindWire, name))
	}

	odbc, warning := probeODBC(ctx, r.runner, r.goos)
	inv.Drivers = append(inv.Drivers, odbc...)
	if warning != "" {
		inv.Warnings = append(inv.Warnings, warning)
	}

	return inv
}

func (r *HostRegistry) describe(kind Kind, name string) Descriptor {
	d := Descriptor{Name: name, Kind: kind, Version: UnknownVersion, Source: "unknown"}
	if path, ok := knownModules[kind][name]; ok {
		d.Source = path
		if v := r.moduleVersion(path); v != "" {
			d.Version = v
		}
	}
	return d
}

func buildInfoVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, dep := range info.Deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		return dep.Version
	}
	return ""
}

func sorted(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
