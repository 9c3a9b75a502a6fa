package di

import (
	"context"

	"github.com/yetii/yetii/core/application/dispatcher"
	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/drivers"
	"github.com/yetii/yetii/core/observability"
	"github.com/yetii/yetii/core/runtime/connectors"
)

// Container holds the collaborators shared by the commands of one invocation
type Container struct {
	Drivers    drivers.Registry
	Dispatcher *dispatcher.Dispatcher
	providers  *observability.Providers
}

// Option configures a Container
type Option func(*Container)

// WithDrivers replaces the driver registry
func WithDrivers(reg drivers.Registry) Option {
	return func(c *Container) { c.Drivers = reg }
}

// WithDispatcher replaces the dispatcher
func WithDispatcher(d *dispatcher.Dispatcher) Option {
	return func(c *Container) { c.Dispatcher = d }
}

// NewContainer creates a new dependency injection container
func NewContainer(opts ...Option) *Container {
	c := &Container{}
	for _, opt := range opts {
		opt(c)
	}
	if c.Drivers == nil {
		c.Drivers = drivers.NewHostRegistry(drivers.WithWireProtocols(connectors.WireProtocols))
	}
	if c.Dispatcher == nil {
		c.Dispatcher = dispatcher.New()
	}
	return c
}

// StartObservability installs tracer and meter providers for cfg. It is a no-op
// after the first successful call.
func (c *Container) StartObservability(ctx context.Context, cfg *config.Config, version string) error {
	if c.providers != nil {
		return nil
	}
	p, err := observability.Setup(ctx, cfg, version)
	if err != nil {
		return err
	}
	c.providers = p
	return nil
}

// Close flushes and releases all resources
func (c *Container) Close(ctx context.Context) error {
	if c.providers == nil {
		return nil
	}
	err := c.providers.Shutdown(ctx)
	c.providers = nil
	return err
}
