// Package registry maps connector names to the factories that build them.
// Connector packages register themselves from init, so importing a
// connector package for its side effect makes it available here.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/connector/writer"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
)

// Registry manages connector registration and instantiation
type Registry struct {
	sources      map[string]SourceFactory
	destinations map[string]DestinationFactory
	mu           sync.RWMutex
	logger       *zap.Logger
}

// SourceFactory creates a source connector from its specification
type SourceFactory func(spec core.ConnectorSpec) (core.Source, error)

// DestinationFactory creates a destination connector from its specification
type DestinationFactory func(spec core.ConnectorSpec) (core.Destination, error)

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]SourceFactory),
		destinations: make(map[string]DestinationFactory),
		logger:       logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// RegisterSource registers a source connector factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source connector %s already registered", name))
	}

	r.sources[name] = factory
	r.logger.Debug("source connector registered", zap.String("name", name))
	return nil
}

// RegisterDestination registers a destination connector factory
func (r *Registry) RegisterDestination(name string, factory DestinationFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("destination connector %s already registered", name))
	}

	r.destinations[name] = factory
	r.logger.Debug("destination connector registered", zap.String("name", name))
	return nil
}

// CreateSource creates a source connector instance
func (r *Registry) CreateSource(spec core.ConnectorSpec) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[spec.ConnectorName]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("source connector %s not found", spec.ConnectorName))
	}

	source, err := factory(spec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create source connector %s", spec.ConnectorName))
	}

	return source, nil
}

// CreateDestination creates a destination connector instance
func (r *Registry) CreateDestination(spec core.ConnectorSpec) (core.Destination, error) {
	r.mu.RLock()
	factory, exists := r.destinations[spec.ConnectorName]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("destination connector %s not found", spec.ConnectorName))
	}

	destination, err := factory(spec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create destination connector %s", spec.ConnectorName))
	}

	return destination, nil
}

// CreateWriter creates a destination and its write path: the returned
// Writer rate limits and full-refresh clears before reaching the
// destination. Close the destination when done.
func (r *Registry) CreateWriter(spec core.ConnectorSpec, opts ...writer.Option) (core.Destination, core.Writer, error) {
	destination, err := r.CreateDestination(spec)
	if err != nil {
		return nil, nil, err
	}
	return destination, writer.Chain(destination, opts...), nil
}

// ListSources returns the registered source connectors, sorted
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.sources))
	for name := range r.sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// ListDestinations returns the registered destination connectors, sorted
func (r *Registry) ListDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	destinations := make([]string, 0, len(r.destinations))
	for name := range r.destinations {
		destinations = append(destinations, name)
	}
	sort.Strings(destinations)
	return destinations
}

// HasSource checks if a source connector is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// HasDestination checks if a destination connector is registered
func (r *Registry) HasDestination(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.destinations[name]
	return exists
}

// Global registry functions

// RegisterSource registers a source connector in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterDestination registers a destination connector in the global registry
func RegisterDestination(name string, factory DestinationFactory) error {
	return globalRegistry.RegisterDestination(name, factory)
}

// CreateSource creates a source connector from the global registry
func CreateSource(spec core.ConnectorSpec) (core.Source, error) {
	return globalRegistry.CreateSource(spec)
}

// CreateDestination creates a destination connector from the global registry
func CreateDestination(spec core.ConnectorSpec) (core.Destination, error) {
	return globalRegistry.CreateDestination(spec)
}

// CreateWriter creates a destination and its write path from the global registry
func CreateWriter(spec core.ConnectorSpec, opts ...writer.Option) (core.Destination, core.Writer, error) {
	return globalRegistry.CreateWriter(spec, opts...)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListDestinations returns registered destinations from the global registry
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}
