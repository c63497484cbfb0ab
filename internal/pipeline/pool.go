package pipeline

import (
	"fmt"

	"github.com/tserav/inferno/internal/executor"
)

// slot is one reusable inference request handle. Slots live for the whole
// pipeline session and are never destroyed while in flight.
type slot struct {
	req   executor.Request
	inUse bool
}

// requestPool tracks which request slots are idle vs in flight. It does no
// locking of its own: every method must be called with the owning Pipeline's
// mutex held, keeping pool state in the same mutual-exclusion domain as the
// completion buffer, the first fault and the perf counters.
type requestPool struct {
	slots []*slot
}

// newRequestPool creates size requests up front from the engine.
func newRequestPool(eng executor.Engine, size int) (*requestPool, error) {
	slots := make([]*slot, 0, size)
	for i := 0; i < size; i++ {
		req, err := eng.NewRequest()
		if err != nil {
			return nil, fmt.Errorf("create request %d: %w", i, err)
		}
		slots = append(slots, &slot{req: req})
	}
	return &requestPool{slots: slots}, nil
}

// tryAcquire marks an idle slot in use and returns it, or nil when every
// slot is in flight. Exhaustion is backpressure, not an error.
func (p *requestPool) tryAcquire() *slot {
	for _, s := range p.slots {
		if !s.inUse {
			s.inUse = true
			return s
		}
	}
	return nil
}

// release returns a slot to the idle state. Called from completion-callback
// context, exactly once per acquired slot.
func (p *requestPool) release(s *slot) {
	s.inUse = false
}

// inUseCount returns the number of slots currently in flight.
func (p *requestPool) inUseCount() int {
	n := 0
	for _, s := range p.slots {
		if s.inUse {
			n++
		}
	}
	return n
}

// capacity returns the fixed pool size.
func (p *requestPool) capacity() int {
	return len(p.slots)
}
