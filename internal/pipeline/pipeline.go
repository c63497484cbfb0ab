package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tserav/inferno/internal/executor"
)

// ErrOutputNotSet is returned by Submit when no output blob name has been
// configured. The call has no side effects.
var ErrOutputNotSet = errors.New("output name is not set")

// ErrPoolExhausted is returned by Submit when every request slot is in
// flight. It is backpressure, not a fault: retry after draining results.
var ErrPoolExhausted = errors.New("all inference requests are in use")

// Result is one completed frame, handed to the consumer in submission order.
// Payload is an owned copy of the engine's output blob.
type Result struct {
	FrameID   uint64    `json:"frame_id"`
	Payload   []byte    `json:"payload"`
	StartTime time.Time `json:"start_time"`
}

// PerfSnapshot is a read-only view of the running session counters.
type PerfSnapshot struct {
	FPS             float64       `json:"fps"`
	MeanLatency     time.Duration `json:"mean_latency"`
	CumulativeLat   time.Duration `json:"cumulative_latency"`
	FramesCompleted uint64        `json:"frames_completed"`
	InUse           int           `json:"in_use"`
	Capacity        int           `json:"capacity"`
}

// Config describes how to build a Pipeline.
type Config struct {
	// Engine, when non-nil, is borrowed: the pipeline will not close it.
	// When nil, an engine is resolved through Registry and owned.
	Engine executor.Engine

	// Registry resolves a device to an engine factory when Engine is nil.
	Registry *executor.Registry

	// ModelPath is passed to the resolved factory when opening an engine.
	ModelPath string

	// Runtime carries device and tuning settings for an internally opened
	// engine. Its first device (default "auto") selects the factory.
	Runtime executor.RuntimeConfig

	// OutputName is the engine output blob the scheduler copies out after
	// each completion. Submit fails until it is set.
	OutputName string

	// MaxRequests is the slot pool size, the ceiling on concurrently
	// in-flight frames.
	MaxRequests int
}

// Pipeline schedules frames onto the slot pool and reorders completions.
type Pipeline struct {
	engine     executor.Engine
	ownsEngine bool
	outputName string
	logger     *slog.Logger

	mu   sync.Mutex
	cond *sync.Cond

	pool      *requestPool
	completed map[uint64]Result // completion buffer, keyed by frame sequence
	fault     error             // first callback fault, never overwritten

	inputSeq  uint64 // next submission sequence number, wraps to zero
	outputSeq uint64 // next sequence number the consumer drains

	perf perfCounters
}

// perfCounters holds the session metrics, mutated only under Pipeline.mu
// during retrieval.
type perfCounters struct {
	sessionStart    time.Time
	framesCompleted uint64
	latencySum      time.Duration
	fps             float64
}

// New builds a pipeline with a pre-populated slot pool. A caller-supplied
// engine is borrowed; an internally opened one is owned and closed with the
// pipeline.
func New(cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg.MaxRequests <= 0 {
		return nil, errors.New("max requests must be positive")
	}

	eng := cfg.Engine
	ownsEngine := false
	if eng == nil {
		if cfg.Registry == nil {
			return nil, errors.New("either an engine or a registry is required")
		}
		device := executor.DeviceAuto
		if len(cfg.Runtime.Devices) > 0 {
			device = cfg.Runtime.Devices[0]
		}
		factory, err := cfg.Registry.Resolve(device)
		if err != nil {
			return nil, fmt.Errorf("resolve engine: %w", err)
		}
		eng, err = factory.Open(cfg.ModelPath, cfg.Runtime)
		if err != nil {
			return nil, fmt.Errorf("open engine: %w", err)
		}
		ownsEngine = true
		logger.Info("engine opened",
			"device", device,
			"model", cfg.ModelPath,
			"max_requests", cfg.MaxRequests,
		)
	}

	pool, err := newRequestPool(eng, cfg.MaxRequests)
	if err != nil {
		if ownsEngine {
			eng.Close()
		}
		return nil, fmt.Errorf("populate request pool: %w", err)
	}

	p := &Pipeline{
		engine:     eng,
		ownsEngine: ownsEngine,
		outputName: cfg.OutputName,
		logger:     logger,
		pool:       pool,
		completed:  make(map[uint64]Result),
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Submit schedules one frame for asynchronous execution and returns its
// sequence number immediately; it never blocks on completion. It returns
// ErrOutputNotSet before any state changes when no output name is
// configured, and ErrPoolExhausted when every slot is in flight. A start
// failure is recorded as the session's first fault: the frame's sequence
// number is already assigned and will never complete, so later frames
// could not be drained past it anyway.
func (p *Pipeline) Submit(inputs map[string][]byte) (uint64, error) {
	if p.outputName == "" {
		return 0, ErrOutputNotSet
	}

	p.mu.Lock()
	s := p.pool.tryAcquire()
	if s == nil {
		p.mu.Unlock()
		return 0, ErrPoolExhausted
	}

	frameStart := time.Now()
	if p.perf.sessionStart.IsZero() {
		p.perf.sessionStart = frameStart
	}

	frameID := p.inputSeq
	p.inputSeq++ // uint64: wraps to zero on overflow, matching the drain counter
	p.mu.Unlock()

	for name, data := range inputs {
		s.req.SetInput(name, data)
	}
	s.req.SetCompletionCallback(func() {
		p.complete(s, frameID, frameStart)
	})

	if err := s.req.StartAsync(); err != nil {
		err = fmt.Errorf("start request: %w", err)
		p.mu.Lock()
		p.pool.release(s)
		if p.fault == nil {
			p.fault = err
			framesFaulted.Inc()
			p.logger.Error("frame start fault", "frame_id", frameID, "error", err)
		}
		p.mu.Unlock()
		p.cond.Broadcast()
		return 0, err
	}

	framesSubmitted.Inc()
	inflightRequests.Inc()
	return frameID, nil
}

// complete is the completion handler, invoked once per frame on an
// engine-owned goroutine. It copies the output blob into an owned buffer,
// deposits the result keyed by frame sequence and releases the slot. Any
// failure during that extraction is captured as the session's first fault
// and the slot is left in flight: its state is unknown after a failed copy.
func (p *Pipeline) complete(s *slot, frameID uint64, frameStart time.Time) {
	p.mu.Lock()

	payload, err := s.req.Output(p.outputName)
	if err != nil {
		if p.fault == nil {
			p.fault = err
			framesFaulted.Inc()
			p.logger.Error("frame completion fault", "frame_id", frameID, "error", err)
		}
	} else {
		owned := make([]byte, len(payload))
		copy(owned, payload)
		p.completed[frameID] = Result{
			FrameID:   frameID,
			Payload:   owned,
			StartTime: frameStart,
		}
		p.pool.release(s)
		inflightRequests.Dec()
	}

	p.mu.Unlock()
	p.cond.Broadcast()
}

// WaitForData blocks until a fault is pending, at least one frame is in
// flight, or at least one completed result is buffered. The predicate wakes
// the consumer whenever there is something productive to do, so it cannot
// deadlock waiting for a sequence number that will never complete. If a
// fault is pending it is returned with its original identity; this is the
// only place callback faults surface.
func (p *Pipeline) WaitForData() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.fault == nil && p.pool.inUseCount() == 0 && len(p.completed) == 0 {
		p.cond.Wait()
	}

	if p.fault != nil {
		return p.fault
	}
	return nil
}

// GetResult is a non-blocking point lookup of the next expected sequence
// number. It returns false while that frame has not completed; callers that
// want to block should call WaitForData first. On a hit it removes the
// entry, advances the drain counter, updates the perf counters and
// transfers payload ownership to the caller.
func (p *Pipeline) GetResult() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, ok := p.completed[p.outputSeq]
	if !ok {
		return Result{}, false
	}
	delete(p.completed, p.outputSeq)
	p.outputSeq++ // same wraparound policy as the submission counter

	now := time.Now()
	latency := now.Sub(res.StartTime)
	p.perf.latencySum += latency
	p.perf.framesCompleted++
	if elapsed := now.Sub(p.perf.sessionStart).Milliseconds(); elapsed > 0 {
		p.perf.fps = float64(p.perf.framesCompleted) * 1000.0 / float64(elapsed)
	}

	framesCompleted.Inc()
	frameLatency.Observe(latency.Seconds())

	return res, true
}

// Perf returns a snapshot of the session counters.
func (p *Pipeline) Perf() PerfSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := PerfSnapshot{
		FPS:             p.perf.fps,
		CumulativeLat:   p.perf.latencySum,
		FramesCompleted: p.perf.framesCompleted,
		InUse:           p.pool.inUseCount(),
		Capacity:        p.pool.capacity(),
	}
	if p.perf.framesCompleted > 0 {
		snap.MeanLatency = p.perf.latencySum / time.Duration(p.perf.framesCompleted)
	}
	return snap
}

// InUse returns the number of frames currently in flight. Callers may use
// it with Capacity for out-of-band admission control.
func (p *Pipeline) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool.inUseCount()
}

// Capacity returns the fixed slot pool size.
func (p *Pipeline) Capacity() int {
	return p.pool.capacity()
}

// Drain blocks until every in-flight frame has completed or ctx is done.
// A faulted session stops draining early: the faulted slot is never
// released, so waiting on it would never return.
func (p *Pipeline) Drain(ctx context.Context) error {
	stop := context.AfterFunc(ctx, p.cond.Broadcast)
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	for p.fault == nil && p.pool.inUseCount() > 0 && ctx.Err() == nil {
		p.cond.Wait()
	}
	return ctx.Err()
}

// Close drains in-flight frames, then closes the engine if the pipeline
// owns it. Borrowed engines are left untouched.
func (p *Pipeline) Close() error {
	if err := p.Drain(context.Background()); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	if p.ownsEngine {
		return p.engine.Close()
	}
	return nil
}
