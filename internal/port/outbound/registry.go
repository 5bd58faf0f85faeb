package outbound

import "caprouter/internal/domain/registry"

// RegistryService is the stable read interface the planner consumes. List
// and GetRegistry must be snapshot-stable for the duration of a single
// call: a Plan call reads the registry exactly once.
type RegistryService interface {
	List() []registry.Tool
	GetRegistry() (*registry.Snapshot, error)
}
