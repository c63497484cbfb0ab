// Package local provides an in-process inference engine backed by a
// caller-supplied compute function. Each started request runs on its own
// goroutine and fires its completion callback from there, which gives the
// scheduler the same concurrency contract a hardware runtime would: callbacks
// arrive on engine-owned goroutines, exactly once per start, in no
// particular order.
package local

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tserav/inferno/internal/executor"
)

// ErrEngineClosed is returned when starting a request on a closed engine.
var ErrEngineClosed = errors.New("local engine is closed")

// ComputeFunc maps named input blobs to named output blobs for one frame.
type ComputeFunc func(inputs map[string][]byte) (map[string][]byte, error)

// Compile-time interface satisfaction checks.
var (
	_ executor.Engine  = (*Engine)(nil)
	_ executor.Factory = (*Factory)(nil)
	_ executor.Request = (*request)(nil)
)

// Factory opens local engines that run the configured compute function.
type Factory struct {
	compute ComputeFunc
}

// NewFactory creates a factory whose engines execute compute per frame.
func NewFactory(compute ComputeFunc) *Factory {
	return &Factory{compute: compute}
}

// Open returns a ready engine. The model path is accepted for interface
// compatibility; the compute function already embodies the model.
func (f *Factory) Open(_ string, cfg executor.RuntimeConfig) (executor.Engine, error) {
	if f.compute == nil {
		return nil, errors.New("local: compute function is required")
	}
	return &Engine{
		compute: f.compute,
		caps: executor.Capabilities{
			Name:        "local",
			Devices:     []string{executor.DeviceCPU},
			MaxRequests: cfg.MaxRequests,
		},
	}, nil
}

// Capabilities reports what engines from this factory support.
func (f *Factory) Capabilities() executor.Capabilities {
	return executor.Capabilities{
		Name:    "local",
		Devices: []string{executor.DeviceCPU},
	}
}

// Engine runs inference requests on dedicated goroutines.
type Engine struct {
	compute ComputeFunc
	caps    executor.Capabilities

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// New creates a standalone engine without going through a Factory.
func New(compute ComputeFunc, maxRequests int) *Engine {
	return &Engine{
		compute: compute,
		caps: executor.Capabilities{
			Name:        "local",
			Devices:     []string{executor.DeviceCPU},
			MaxRequests: maxRequests,
		},
	}
}

// NewRequest creates a reusable request bound to this engine.
func (e *Engine) NewRequest() (executor.Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	return &request{engine: e}, nil
}

// Capabilities reports what this engine supports.
func (e *Engine) Capabilities() executor.Capabilities {
	return e.caps
}

// Close waits for all in-flight requests to finish, then marks the engine
// closed. Subsequent NewRequest and StartAsync calls fail.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

// request is one reusable inference slot of a local engine.
type request struct {
	engine *Engine

	mu       sync.Mutex
	inputs   map[string][]byte
	outputs  map[string][]byte
	callback func()
	done     bool
	execErr  error
}

// SetInput stores the payload for the named input location.
func (r *request) SetInput(name string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inputs == nil {
		r.inputs = make(map[string][]byte)
	}
	r.inputs[name] = data
}

// Output returns the named output blob of the last completed execution.
func (r *request) Output(name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		return nil, errors.New("local: request has not completed")
	}
	if r.execErr != nil {
		return nil, fmt.Errorf("local: execution failed: %w", r.execErr)
	}
	out, ok := r.outputs[name]
	if !ok {
		return nil, fmt.Errorf("local: no output named %q", name)
	}
	return out, nil
}

// SetCompletionCallback registers the function invoked when the next
// execution finishes.
func (r *request) SetCompletionCallback(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = fn
}

// StartAsync launches the compute function on a new goroutine and returns
// immediately. The completion callback fires on that goroutine.
func (r *request) StartAsync() error {
	e := r.engine

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()

	r.mu.Lock()
	r.done = false
	r.execErr = nil
	inputs := make(map[string][]byte, len(r.inputs))
	for name, data := range r.inputs {
		inputs[name] = data
	}
	r.mu.Unlock()

	go func() {
		defer e.wg.Done()

		outputs, err := e.compute(inputs)

		r.mu.Lock()
		r.outputs = outputs
		r.execErr = err
		r.done = true
		cb := r.callback
		r.mu.Unlock()

		if cb != nil {
			cb()
		}
	}()

	return nil
}
