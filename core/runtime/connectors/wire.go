package connectors

import (
	"context"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/domain/interfaces"
	"github.com/yetii/yetii/core/logger"
	"github.com/yetii/yetii/core/shared/errors"
)

// WireAdapter opens direct-wire connections through the registered protocol
// dialers.
type WireAdapter struct {
	lookup func(name string) (WireDialer, bool)
}

// NewWireAdapter creates the direct-wire adapter backed by the protocol table.
func NewWireAdapter() *WireAdapter {
	return &WireAdapter{lookup: lookupWireProtocol}
}

// Kind implements interfaces.Adapter.
func (a *WireAdapter) Kind() config.BackendKind {
	return config.BackendDirectWire
}

// Connect implements interfaces.Adapter.
func (a *WireAdapter) Connect(ctx context.Context, c *config.Connection) (interfaces.Conn, error) {
	if c.Protocol == "" {
		return nil, driverUnavailable(c, "no wire protocol could be determined from the address; set 'protocol'")
	}
	dial, ok := a.lookup(c.Protocol)
	if !ok {
		return nil, driverUnavailable(c, "wire protocol '%s' is not supported", c.Protocol)
	}

	password, err := resolveCredential(c)
	if err != nil {
		return nil, err
	}

	log := logger.New("connector:" + c.Protocol)
	log.Debugf("Dialing connection '%s'", c.ID)

	conn, err := dial(ctx, c, password)
	if err != nil {
		if errors.Code(err) != "" {
			return nil, err
		}
		return nil, connectionFailed(c, "failed to connect", err)
	}

	log.Debugf("Connection '%s' established", c.ID)
	return conn, nil
}
