// Package di wires the node's collaborators together: one container
// owns construction order, sharing and shutdown of the store, engine
// and server-facing services.
package di

import (
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Container manages service registration and lazy resolution.
type Container struct {
	mu       sync.RWMutex
	services map[string]interface{}
	builders map[string]Builder
	group    singleflight.Group
	// order records instantiation order so Close can run in reverse.
	order []string
}

// Builder is a function that creates a service instance.
type Builder func(c *Container) (interface{}, error)

// New creates an empty container.
func New() *Container {
	return &Container{
		services: make(map[string]interface{}),
		builders: make(map[string]Builder),
	}
}

// Register registers a ready service instance.
func (c *Container) Register(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.services[name]; !exists {
		c.order = append(c.order, name)
	}
	c.services[name] = service
}

// RegisterBuilder registers a builder for lazy instantiation.
func (c *Container) RegisterBuilder(name string, builder Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builders[name] = builder
}

// Get retrieves a service, building it on first use. Builders run
// outside the container lock so they can resolve their own dependencies
// through Get; singleflight collapses concurrent builds of one name.
func (c *Container) Get(name string) (interface{}, error) {
	c.mu.RLock()
	service, exists := c.services[name]
	c.mu.RUnlock()
	if exists {
		return service, nil
	}

	service, err, _ := c.group.Do(name, func() (interface{}, error) {
		c.mu.RLock()
		if service, exists := c.services[name]; exists {
			c.mu.RUnlock()
			return service, nil
		}
		builder, hasBuilder := c.builders[name]
		c.mu.RUnlock()
		if !hasBuilder {
			return nil, errors.New("service not found: " + name)
		}

		service, err := builder(c)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.services[name] = service
		c.order = append(c.order, name)
		c.mu.Unlock()
		return service, nil
	})
	return service, err
}

// MustGet retrieves a service or panics.
func (c *Container) MustGet(name string) interface{} {
	service, err := c.Get(name)
	if err != nil {
		panic(err)
	}
	return service
}

// Has reports whether a service or builder is registered.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, exists := c.services[name]; exists {
		return true
	}
	_, exists := c.builders[name]
	return exists
}

// Close shuts built services down in reverse instantiation order, so
// consumers close before the stores they depend on.
func (c *Container) Close() error {
	c.mu.Lock()
	order := c.order
	services := c.services
	c.order = nil
	c.services = make(map[string]interface{})
	c.builders = make(map[string]Builder)
	c.mu.Unlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		closer, ok := services[order[i]].(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Service names for type-safe access.
const (
	ServiceConfig        = "config"
	ServiceLogger        = "logger"
	ServiceErrorSink     = "error.sink"
	ServiceMetrics       = "metrics"
	ServiceStore         = "store"
	ServiceArchiver      = "archiver"
	ServiceLedger        = "ledger"
	ServiceSubscriptions = "subscriptions"
	ServicePublisher     = "event.publisher"
)
