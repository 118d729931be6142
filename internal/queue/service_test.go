package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ltxd/internal/bridge"
	"ltxd/pkg/types"
)

// fakeGenerator simulates the bridge with a configurable per-call delay,
// per-prompt failures, and a cancel channel.
type fakeGenerator struct {
	mu       sync.Mutex
	delay    time.Duration
	order    []string
	fail     map[string]error
	inFlight int32
	maxSeen  int32
	cancelCh chan struct{}
}

func newFakeGenerator(delay time.Duration) *fakeGenerator {
	return &fakeGenerator{delay: delay, fail: map[string]error{}}
}

func (g *fakeGenerator) Generate(ctx context.Context, req bridge.Request) (bridge.Result, error) {
	n := atomic.AddInt32(&g.inFlight, 1)
	defer atomic.AddInt32(&g.inFlight, -1)
	for {
		max := atomic.LoadInt32(&g.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&g.maxSeen, max, n) {
			break
		}
	}

	g.mu.Lock()
	g.order = append(g.order, req.Prompt)
	failErr := g.fail[req.Prompt]
	delay := g.delay
	cancelCh := make(chan struct{})
	g.cancelCh = cancelCh
	g.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-cancelCh:
		return bridge.Result{}, bridge.ErrCancelled("generation cancelled")
	case <-ctx.Done():
		return bridge.Result{}, bridge.ErrCancelled("generation cancelled")
	}
	if failErr != nil {
		return bridge.Result{}, failErr
	}
	return bridge.Result{VideoPath: "/out/" + req.Prompt + ".mp4", Seed: 42, Mode: "text-to-video"}, nil
}

func (g *fakeGenerator) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelCh != nil {
		select {
		case <-g.cancelCh:
		default:
			close(g.cancelCh)
		}
	}
}

func (g *fakeGenerator) setDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = d
}

func (g *fakeGenerator) prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

func waitIdle(t *testing.T, s *Service) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Processing() && s.PendingCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("service did not drain in time")
}

func findStatus(t *testing.T, s *Service, id string) Status {
	t.Helper()
	for _, r := range s.Snapshot() {
		if r.ID == id {
			return r.Status
		}
	}
	t.Fatalf("request %s not in snapshot", id)
	return ""
}

func TestServiceSingleFlight(t *testing.T) {
	gen := newFakeGenerator(20 * time.Millisecond)
	s := NewService(gen, zerolog.Nop())
	s.Start()
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Submit("p", "", types.DefaultParameters())
		}()
	}
	wg.Wait()
	waitIdle(t, s)

	if got := atomic.LoadInt32(&gen.maxSeen); got != 1 {
		t.Errorf("max concurrent generations = %d, want 1", got)
	}
	if got := len(gen.prompts()); got != 8 {
		t.Errorf("generations run = %d, want 8", got)
	}
}

func TestServiceFIFOWithReorder(t *testing.T) {
	gen := newFakeGenerator(30 * time.Millisecond)
	s := NewService(gen, zerolog.Nop())

	// Enqueue before starting so reordering races nothing.
	s.Submit("a", "", types.DefaultParameters())
	idB := s.Submit("b", "", types.DefaultParameters())
	idC := s.Submit("c", "", types.DefaultParameters())
	if !s.Reorder(idC, MoveUp) {
		t.Fatal("Reorder(c, up) failed")
	}
	_ = idB

	s.Start()
	defer s.Stop()
	waitIdle(t, s)

	got := gen.prompts()
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("generation order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("generation order = %v, want %v", got, want)
		}
	}
}

func TestServiceCancelCurrentMovesOn(t *testing.T) {
	gen := newFakeGenerator(10 * time.Second)
	s := NewService(gen, zerolog.Nop())
	idA := s.Submit("a", "", types.DefaultParameters())
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for !s.Processing() {
		if time.Now().After(deadline) {
			t.Fatal("first generation never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	gen.setDelay(10 * time.Millisecond)
	idB := s.Submit("b", "", types.DefaultParameters())
	if !s.CancelCurrent() {
		t.Fatal("CancelCurrent = false with an in-flight item")
	}
	waitIdle(t, s)

	if got := findStatus(t, s, idA); got != StatusCancelled {
		t.Errorf("first item status = %q, want cancelled", got)
	}
	if got := findStatus(t, s, idB); got != StatusCompleted {
		t.Errorf("second item status = %q, want completed", got)
	}
}

func TestServiceFailureDoesNotStall(t *testing.T) {
	gen := newFakeGenerator(5 * time.Millisecond)
	gen.fail["bad"] = bridge.ErrWorkerCrashed("model server exited unexpectedly")
	s := NewService(gen, zerolog.Nop())
	idBad := s.Submit("bad", "", types.DefaultParameters())
	idOK := s.Submit("ok", "", types.DefaultParameters())
	s.Start()
	defer s.Stop()
	waitIdle(t, s)

	if got := findStatus(t, s, idBad); got != StatusFailed {
		t.Errorf("failed item status = %q, want failed", got)
	}
	if got := findStatus(t, s, idOK); got != StatusCompleted {
		t.Errorf("second item status = %q, want completed", got)
	}
	for _, r := range s.Snapshot() {
		if r.ID == idBad && r.Error == "" {
			t.Error("failed item has no error recorded")
		}
	}
}

func TestServiceCancelCurrentIdle(t *testing.T) {
	s := NewService(newFakeGenerator(0), zerolog.Nop())
	if s.CancelCurrent() {
		t.Error("CancelCurrent = true with nothing in flight")
	}
}

func TestServiceSnapshotDuringDrain(t *testing.T) {
	gen := newFakeGenerator(time.Millisecond)
	s := NewService(gen, zerolog.Nop())
	s.Start()
	defer s.Stop()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				for _, r := range s.Snapshot() {
					// Touch the terminal fields so racy writes surface.
					_ = r.VideoPath
					_ = r.Error
				}
			}
		}
	}()

	for i := 0; i < 50; i++ {
		s.Submit("p", "", types.DefaultParameters())
	}
	waitIdle(t, s)
	close(stop)
	wg.Wait()

	for _, r := range s.Snapshot() {
		if r.Status == StatusCompleted && r.VideoPath == "" {
			t.Errorf("completed item %s has no video path", r.ID)
		}
	}
}

func TestServiceResultRecorded(t *testing.T) {
	gen := newFakeGenerator(time.Millisecond)
	s := NewService(gen, zerolog.Nop())
	id := s.Submit("sunrise", "", types.DefaultParameters())
	s.Start()
	defer s.Stop()
	waitIdle(t, s)

	for _, r := range s.Snapshot() {
		if r.ID != id {
			continue
		}
		if r.VideoPath != "/out/sunrise.mp4" {
			t.Errorf("VideoPath = %q", r.VideoPath)
		}
		if r.Seed != 42 {
			t.Errorf("Seed = %d, want 42", r.Seed)
		}
		if r.Mode != "text-to-video" {
			t.Errorf("Mode = %q", r.Mode)
		}
		return
	}
	t.Fatalf("request %s not in snapshot", id)
}
