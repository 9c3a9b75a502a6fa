// Package connectors implements the backend adapters that open connections and run
// statements: the generic-driver adapter on top of database/sql and the direct-wire
// adapter that speaks native protocols.
package connectors

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/domain/interfaces"
)

// WireDialer opens a native protocol connection. password is the resolved
// credential, empty when the connection has none.
type WireDialer func(ctx context.Context, conn *config.Connection, password string) (interfaces.Conn, error)

var (
	mu            sync.RWMutex
	adapters      = make(map[config.BackendKind]interfaces.Adapter)
	wireProtocols = make(map[string]WireDialer)
)

func init() {
	Register(NewGenericAdapter())
	Register(NewWireAdapter())
	RegisterWireProtocol("postgres", dialPostgres)
	RegisterWireProtocol("redis", dialRedis)
	RegisterWireProtocol("mongodb", dialMongoDB)
}

// Register makes an adapter available for its backend kind. It panics if adapter is
// nil or its kind is already registered.
func Register(adapter interfaces.Adapter) {
	mu.Lock()
	defer mu.Unlock()
	if adapter == nil {
		panic("connectors: Register adapter is nil")
	}
	if _, dup := adapters[adapter.Kind()]; dup {
		panic(fmt.Sprintf("connectors: Register called twice for backend kind '%s'", adapter.Kind()))
	}
	adapters[adapter.Kind()] = adapter
}

// Adapters returns a copy of the adapter table.
func Adapters() map[config.BackendKind]interfaces.Adapter {
	mu.RLock()
	defer mu.RUnlock()
	return maps.Clone(adapters)
}

// RegisterWireProtocol makes a native protocol available to direct-wire connections.
// It panics if dial is nil or the protocol is already registered.
func RegisterWireProtocol(name string, dial WireDialer) {
	mu.Lock()
	defer mu.Unlock()
	if dial == nil {
		panic("connectors: RegisterWireProtocol dialer is nil")
	}
	if _, dup := wireProtocols[name]; dup {
		panic(fmt.Sprintf("connectors: RegisterWireProtocol called twice for protocol '%s'", name))
	}
	wireProtocols[name] = dial
}

// WireProtocols returns the registered protocol names in sorted order.
func WireProtocols() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(wireProtocols))
	for name := range wireProtocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupWireProtocol(name string) (WireDialer, bool) {
	mu.RLock()
	defer mu.RUnlock()
	dial, ok := wireProtocols[name]
	return dial, ok
}
