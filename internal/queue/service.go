package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"ltxd/internal/bridge"
	"ltxd/pkg/types"
)

// Generator is the subset of the bridge the drain loop needs.
type Generator interface {
	Generate(ctx context.Context, req bridge.Request) (bridge.Result, error)
	Cancel()
}

// Service owns the queue and the single drain goroutine. Exactly one
// generation is in flight at any time; everything else waits in FIFO order.
type Service struct {
	q    *Queue
	gen  Generator
	log  zerolog.Logger
	kick chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService wires a queue to a generator. Call Start before submitting.
func NewService(gen Generator, log zerolog.Logger) *Service {
	return &Service{
		q:    New(),
		gen:  gen,
		log:  log,
		kick: make(chan struct{}, 1),
	}
}

// Start launches the drain loop. It runs until Stop is called.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.drain(ctx, s.done)
}

// Stop halts the drain loop and cancels any in-flight generation. Pending
// items stay queued; they are not marked failed.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.gen.Cancel()
	<-done
}

// Submit enqueues a new request and wakes the drain loop. The returned id
// identifies the item for later status and removal calls.
func (s *Service) Submit(prompt, negativePrompt string, params types.GenerationParameters) string {
	r := NewRequest(prompt, negativePrompt, params)
	s.q.Enqueue(r)
	s.log.Info().Str("id", r.ID).Int("pending", s.q.PendingCount()).Msg("request queued")
	s.wake()
	return r.ID
}

// Remove drops a pending item. Returns ErrCurrentlyProcessing for the
// in-flight item and ErrNotFound for unknown ids.
func (s *Service) Remove(id string) error {
	return s.q.Remove(id)
}

// Reorder moves a pending item one position up or down.
func (s *Service) Reorder(id string, dir Direction) bool {
	return s.q.Reorder(id, dir)
}

// Clear drops every pending item and reports how many were removed.
func (s *Service) Clear() int {
	return s.q.Clear()
}

// CancelCurrent aborts the in-flight generation, if any. The drain loop
// marks the item cancelled and moves on to the next one.
func (s *Service) CancelCurrent() bool {
	if s.q.Current() == nil {
		return false
	}
	s.gen.Cancel()
	return true
}

// PendingCount returns the number of queued (not in-flight) items.
func (s *Service) PendingCount() int { return s.q.PendingCount() }

// Processing reports whether a generation is in flight.
func (s *Service) Processing() bool { return s.q.Current() != nil }

// Snapshot returns the queue contents for display.
func (s *Service) Snapshot() []Request { return s.q.Snapshot() }

func (s *Service) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Service) drain(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		for {
			r := s.q.popNext()
			if r == nil {
				break
			}
			s.process(ctx, r)
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		}
	}
}

func (s *Service) process(ctx context.Context, r *Request) {
	s.log.Info().Str("id", r.ID).Msg("generation started")
	res, err := s.gen.Generate(ctx, bridge.Request{
		Prompt:         r.Prompt,
		NegativePrompt: r.NegativePrompt,
		Params:         r.Params,
	})
	switch {
	case err == nil:
		s.q.finish(r, StatusCompleted, func(r *Request) {
			r.VideoPath = res.VideoPath
			r.Seed = res.Seed
			r.Mode = res.Mode
			r.HasAudio = res.HasAudio
			r.EnhancedPrompt = res.EnhancedPrompt
		})
		s.log.Info().Str("id", r.ID).Str("video", res.VideoPath).Msg("generation completed")
	case bridge.IsCancelled(err) || ctx.Err() != nil:
		s.q.finish(r, StatusCancelled, func(r *Request) { r.Error = err.Error() })
		s.log.Info().Str("id", r.ID).Msg("generation cancelled")
	default:
		s.q.finish(r, StatusFailed, func(r *Request) { r.Error = err.Error() })
		s.log.Error().Str("id", r.ID).Err(err).Msg("generation failed")
	}
}
