package executor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Device name constants.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceGPU  = "gpu"
)

// autoRouting maps the auto device to its default target.
var autoRouting = map[string]string{
	DeviceAuto: DeviceCPU,
}

// EngineInfo pairs a registered device name with its factory's capabilities.
type EngineInfo struct {
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds registered engine factories and resolves which one to use
// for a given device name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the registry under the given device name.
func (r *Registry) Register(device string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[device] = f
}

// Resolve returns the factory to use for the given device. "auto" routes to
// the default device, and an instance suffix such as "gpu.1" resolves to its
// base device name. Returns an error if no factory is registered.
func (r *Registry) Resolve(device string) (Factory, error) {
	target := normalizeDevice(device)
	if routed, ok := autoRouting[target]; ok {
		target = routed
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[target]
	if !ok {
		return nil, fmt.Errorf("no engine registered for device %q", device)
	}
	return f, nil
}

// List returns information about all registered factories, sorted by device
// name for a stable API response.
func (r *Registry) List() []EngineInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]EngineInfo, 0, len(r.factories))
	for name, f := range r.factories {
		infos = append(infos, EngineInfo{
			Name:         name,
			Capabilities: f.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// normalizeDevice lowercases a device name and strips an instance suffix,
// so "GPU.1" resolves under "gpu".
func normalizeDevice(device string) string {
	base, _, _ := strings.Cut(strings.ToLower(device), ".")
	return base
}
