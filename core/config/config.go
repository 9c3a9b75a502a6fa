// Package config holds the validated, immutable configuration model.
//
// A *Config is produced once per invocation by the parser package and then lent
// read-only to every later stage. Nothing downstream of validation mutates it.
package config

import "time"

// DefaultFileName is the configuration file looked up when --file is not given.
const DefaultFileName = "yetii.yaml"

// Config is the root of a validated configuration document.
type Config struct {
	Version     string
	Name        string
	Description string
	Connections []*Connection
	Queries     []*QueryDefinition
	Settings    Settings
}

// Connection describes one database a query can run against.
type Connection struct {
	ID          string
	BackendKind BackendKind
	// DSN is the dsn_or_address field: a driver DSN for generic-driver connections,
	// a network address or URL for direct-wire connections.
	DSN string
	// CredentialRef is opaque to the engine; it is handed to the adapter as-is
	// after environment substitution.
	CredentialRef string
	// Driver is the database/sql driver name (generic-driver only). Empty when it
	// could not be resolved at validation time.
	Driver string
	// Protocol is the native wire protocol (direct-wire only). Empty when it could
	// not be resolved at validation time.
	Protocol string
	Options  map[string]string
	Line     int
}

// QueryDefinition is a named, parameterized statement bound to a connection.
type QueryDefinition struct {
	Name         string
	Description  string
	ConnectionID string
	Template     string
	Parameters   []Parameter
	Enabled      bool
	// Timeout overrides Settings.TimeoutSeconds when non-zero.
	Timeout time.Duration
	// Index is the position of the query in the document.
	Index int
	Line  int
}

// Parameter is a declared template parameter together with its configured value.
type Parameter struct {
	Name     string
	Type     ParamType
	Value    any
	HasValue bool
	Nullable bool
}

// Connection returns the connection with the given id.
func (c *Config) Connection(id string) (*Connection, bool) {
	for _, conn := range c.Connections {
		if conn.ID == id {
			return conn, true
		}
	}
	return nil, false
}

// Query returns the query definition with the given name.
func (c *Config) Query(name string) (*QueryDefinition, bool) {
	for _, q := range c.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return nil, false
}

// QueryTimeout returns the deadline applied to one execution of q.
func (c *Config) QueryTimeout(q *QueryDefinition) time.Duration {
	if q != nil && q.Timeout > 0 {
		return q.Timeout
	}
	if c.Settings.TimeoutSeconds > 0 {
		return time.Duration(c.Settings.TimeoutSeconds) * time.Second
	}
	return DefaultTimeoutSeconds * time.Second
}

// ParameterNames returns the declared parameter names in order.
func (q *QueryDefinition) ParameterNames() []string {
	names := make([]string, len(q.Parameters))
	for i, p := range q.Parameters {
		names[i] = p.Name
	}
	return names
}
