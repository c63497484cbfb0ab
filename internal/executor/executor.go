package executor

// Request is one reusable inference request slot owned by an engine. Inputs
// and outputs are named blobs; the runtime invokes the completion callback
// exactly once per StartAsync, on a goroutine it owns, possibly concurrently
// with callbacks of other requests.
type Request interface {
	// SetInput stores the payload for the named input location. Must not be
	// called while the request is in flight.
	SetInput(name string, data []byte)

	// Output returns the payload at the named output location. Valid only
	// after the completion callback has fired; the returned slice may alias
	// engine-owned memory and must be copied by callers that retain it.
	Output(name string) ([]byte, error)

	// SetCompletionCallback registers the function invoked when the next
	// asynchronous execution finishes. Replaces any previous callback.
	SetCompletionCallback(fn func())

	// StartAsync begins execution and returns immediately.
	StartAsync() error
}

// Engine is a loaded model bound to a device, able to mint inference
// requests. Implementations must support concurrent in-flight requests up to
// their reported capacity.
type Engine interface {
	// NewRequest creates a reusable inference request for this engine.
	NewRequest() (Request, error)

	// Capabilities reports what this engine supports.
	Capabilities() Capabilities

	// Close releases the engine after all in-flight requests have completed.
	Close() error
}

// Factory opens engines for a given device. Registered with the Registry
// under a device name.
type Factory interface {
	// Open loads the model at modelPath and returns a ready engine.
	Open(modelPath string, cfg RuntimeConfig) (Engine, error)

	// Capabilities reports what engines from this factory support.
	Capabilities() Capabilities
}

// RuntimeConfig carries device and tuning settings for opening an engine.
type RuntimeConfig struct {
	// Devices lists target devices in preference order, e.g. ["cpu", "gpu.0"].
	Devices []string `json:"devices"`

	// ExtensionsPath points at optional runtime extension libraries.
	ExtensionsPath string `json:"extensions_path,omitempty"`

	// TuningKeys holds engine-specific configuration key/value pairs passed
	// through opaquely.
	TuningKeys map[string]string `json:"tuning_keys,omitempty"`

	// MaxRequests is the maximum number of concurrently in-flight requests.
	MaxRequests int `json:"max_requests"`
}

// Capabilities describes what an engine supports.
type Capabilities struct {
	Name        string   `json:"name"`
	Devices     []string `json:"devices"`
	MaxRequests int      `json:"max_requests"`
}
