/*
Package container provides dependency injection capabilities for the sentiment backend.

This package implements a simple dependency injection container that helps manage
service dependencies and reduces tight coupling between components.
*/
package container

import (
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/sirupsen/logrus"

	"github.com/marketpulse-labs/sentiment-backend/backfill"
	"github.com/marketpulse-labs/sentiment-backend/cache"
	"github.com/marketpulse-labs/sentiment-backend/handlers"
	"github.com/marketpulse-labs/sentiment-backend/upstream"
)

// ServiceSet carries the core services the container wires together
type ServiceSet struct {
	DatastoreClient *datastore.Client
	CacheManager    *cache.Manager
	Gateway         *upstream.Gateway
	Orchestrator    *backfill.Orchestrator
	Location        *time.Location
	Logger          *logrus.Logger
	AsyncConfig     handlers.AsyncConfig
}

// Container holds all service dependencies
type Container struct {
	mu              sync.RWMutex
	services        map[string]interface{}
	factories       map[string]func() (interface{}, error)
	singletons      map[string]interface{}
	datastoreClient *datastore.Client
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		services:   make(map[string]interface{}),
		factories:  make(map[string]func() (interface{}, error)),
		singletons: make(map[string]interface{}),
	}
}

// Register registers a service instance
func (c *Container) Register(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
}

// RegisterFactory registers a factory function for lazy service creation
func (c *Container) RegisterFactory(name string, factory func() (interface{}, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

// RegisterSingleton registers a singleton service
func (c *Container) RegisterSingleton(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singletons[name] = service
}

// Get retrieves a service by name
func (c *Container) Get(name string) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Check if service is already registered
	if service, exists := c.services[name]; exists {
		return service, nil
	}

	// Check if it's a singleton
	if singleton, exists := c.singletons[name]; exists {
		return singleton, nil
	}

	// Check if there's a factory for this service
	if factory, exists := c.factories[name]; exists {
		service, err := factory()
		if err != nil {
			return nil, fmt.Errorf("failed to create service %s: %v", name, err)
		}
		return service, nil
	}

	return nil, fmt.Errorf("service %s not found", name)
}

// GetLogger retrieves the logger service
func (c *Container) GetLogger() (*logrus.Logger, error) {
	service, err := c.Get("logger")
	if err != nil {
		return nil, err
	}
	logger, ok := service.(*logrus.Logger)
	if !ok {
		return nil, fmt.Errorf("logger service is not of expected type")
	}
	return logger, nil
}

// GetDatastoreClient retrieves the datastore client service
func (c *Container) GetDatastoreClient() (*datastore.Client, error) {
	service, err := c.Get("datastore")
	if err != nil {
		return nil, err
	}
	client, ok := service.(*datastore.Client)
	if !ok {
		return nil, fmt.Errorf("datastore service is not of expected type")
	}
	return client, nil
}

// GetCacheManager retrieves the cache manager service
func (c *Container) GetCacheManager() (*cache.Manager, error) {
	service, err := c.Get("cache")
	if err != nil {
		return nil, err
	}
	manager, ok := service.(*cache.Manager)
	if !ok {
		return nil, fmt.Errorf("cache service is not of expected type")
	}
	return manager, nil
}

// GetGateway retrieves the upstream gateway service
func (c *Container) GetGateway() (*upstream.Gateway, error) {
	service, err := c.Get("gateway")
	if err != nil {
		return nil, err
	}
	gateway, ok := service.(*upstream.Gateway)
	if !ok {
		return nil, fmt.Errorf("gateway service is not of expected type")
	}
	return gateway, nil
}

// GetOrchestrator retrieves the backfill orchestrator service
func (c *Container) GetOrchestrator() (*backfill.Orchestrator, error) {
	service, err := c.Get("orchestrator")
	if err != nil {
		return nil, err
	}
	orchestrator, ok := service.(*backfill.Orchestrator)
	if !ok {
		return nil, fmt.Errorf("orchestrator service is not of expected type")
	}
	return orchestrator, nil
}

// GetHandler retrieves the handler service
func (c *Container) GetHandler() (*handlers.Handler, error) {
	service, err := c.Get("handler")
	if err != nil {
		return nil, err
	}
	handler, ok := service.(*handlers.Handler)
	if !ok {
		return nil, fmt.Errorf("handler service is not of expected type")
	}
	return handler, nil
}

// InitializeServices initializes all core services with proper dependencies
func (c *Container) InitializeServices(set ServiceSet) error {
	// Register core services
	c.RegisterSingleton("logger", set.Logger)
	c.RegisterSingleton("datastore", set.DatastoreClient)
	c.RegisterSingleton("cache", set.CacheManager)
	c.RegisterSingleton("gateway", set.Gateway)
	c.RegisterSingleton("orchestrator", set.Orchestrator)

	c.mu.Lock()
	c.datastoreClient = set.DatastoreClient
	c.mu.Unlock()

	// Register handler factory that depends on other services
	c.RegisterFactory("handler", func() (interface{}, error) {
		asyncConfig := set.AsyncConfig
		if asyncConfig.Workers <= 0 {
			asyncConfig = handlers.DefaultAsyncConfig()
		}
		return handlers.NewHandler(set.Gateway, set.CacheManager, set.Orchestrator, set.Location, set.Logger, asyncConfig), nil
	})

	return nil
}

// Close gracefully closes all service connections
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.datastoreClient != nil {
		if err := c.datastoreClient.Close(); err != nil {
			return fmt.Errorf("failed to close datastore client: %v", err)
		}
	}

	return nil
}
