package local_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tserav/inferno/internal/executor"
	"github.com/tserav/inferno/internal/executor/local"
)

// echo copies the "data" input to the "output" blob.
func echo(inputs map[string][]byte) (map[string][]byte, error) {
	return map[string][]byte{"output": inputs["data"]}, nil
}

func TestRequestCompletesWithOutput(t *testing.T) {
	eng := local.New(echo, 2)
	defer eng.Close()

	req, err := eng.NewRequest()
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	done := make(chan struct{})
	req.SetInput("data", []byte("hello"))
	req.SetCompletionCallback(func() { close(done) })

	if err := req.StartAsync(); err != nil {
		t.Fatalf("StartAsync: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}

	out, err := req.Output("output")
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !bytes.Equal(out, []byte("hello")) {
		t.Errorf("Output = %q, want %q", out, "hello")
	}
}

func TestCallbackFiresExactlyOncePerStart(t *testing.T) {
	eng := local.New(echo, 4)

	var mu sync.Mutex
	calls := 0

	req, err := eng.NewRequest()
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.SetInput("data", []byte("x"))
	req.SetCompletionCallback(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	const starts = 5
	for n := 0; n < starts; n++ {
		if err := req.StartAsync(); err != nil {
			t.Fatalf("StartAsync: %v", err)
		}
		// Reuse requires the previous execution to finish first.
		waitFor(t, func() bool {
			_, outErr := req.Output("output")
			return outErr == nil
		})
	}

	eng.Close()

	mu.Lock()
	defer mu.Unlock()
	if calls != starts {
		t.Errorf("callback fired %d times, want %d", calls, starts)
	}
}

func TestOutputBeforeCompletionFails(t *testing.T) {
	eng := local.New(echo, 1)
	defer eng.Close()

	req, err := eng.NewRequest()
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	if _, err := req.Output("output"); err == nil {
		t.Error("expected error reading output before completion, got nil")
	}
}

func TestComputeErrorSurfacesThroughOutput(t *testing.T) {
	computeErr := errors.New("tensor shape mismatch")
	eng := local.New(func(_ map[string][]byte) (map[string][]byte, error) {
		return nil, computeErr
	}, 1)
	defer eng.Close()

	req, err := eng.NewRequest()
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	done := make(chan struct{})
	req.SetCompletionCallback(func() { close(done) })
	if err := req.StartAsync(); err != nil {
		t.Fatalf("StartAsync: %v", err)
	}
	<-done

	if _, err := req.Output("output"); !errors.Is(err, computeErr) {
		t.Errorf("Output error = %v, want wrapped %v", err, computeErr)
	}
}

func TestClosedEngineRejectsWork(t *testing.T) {
	eng := local.New(echo, 1)

	req, err := eng.NewRequest()
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := req.StartAsync(); !errors.Is(err, local.ErrEngineClosed) {
		t.Errorf("StartAsync after Close = %v, want ErrEngineClosed", err)
	}
	if _, err := eng.NewRequest(); !errors.Is(err, local.ErrEngineClosed) {
		t.Errorf("NewRequest after Close = %v, want ErrEngineClosed", err)
	}
}

func TestFactoryOpen(t *testing.T) {
	f := local.NewFactory(echo)

	eng, err := f.Open("model.xml", executor.RuntimeConfig{MaxRequests: 3})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	caps := eng.Capabilities()
	if caps.Name != "local" {
		t.Errorf("Capabilities().Name = %q, want local", caps.Name)
	}
	if caps.MaxRequests != 3 {
		t.Errorf("Capabilities().MaxRequests = %d, want 3", caps.MaxRequests)
	}
}

func TestFactoryRequiresCompute(t *testing.T) {
	f := local.NewFactory(nil)
	if _, err := f.Open("model.xml", executor.RuntimeConfig{}); err == nil {
		t.Error("expected error opening factory without compute func, got nil")
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never held")
}
