package service

import (
	"caprouter/internal/domain/registry"
	"caprouter/internal/port/outbound"
)

// RegistryService is a thin, stable read interface over a RegistryLoader
// (or any other snapshot publisher), decoupling the planner's dependency
// from the loader's lifecycle/watch concerns.
type RegistryService struct {
	loader *RegistryLoader
}

// NewRegistryService wraps a loader.
func NewRegistryService(loader *RegistryLoader) *RegistryService {
	return &RegistryService{loader: loader}
}

// List returns the tools in the currently published snapshot.
func (s *RegistryService) List() []registry.Tool {
	return s.loader.List()
}

// GetRegistry returns the currently published snapshot.
func (s *RegistryService) GetRegistry() (*registry.Snapshot, error) {
	return s.loader.GetRegistry()
}

// Compile-time interface verification.
var _ outbound.RegistryService = (*RegistryService)(nil)
