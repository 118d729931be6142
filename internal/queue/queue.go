// Package queue holds the FIFO of generation requests and the drain loop
// that feeds them, one at a time, into the generation bridge.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ltxd/pkg/types"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Request is one generation job. The queue is the only writer of Status and
// the terminal result fields; all transitions happen on the drain path.
type Request struct {
	ID             string
	Prompt         string
	NegativePrompt string
	Params         types.GenerationParameters
	CreatedAt      time.Time
	Status         Status
	// Terminal fields.
	Error          string
	VideoPath      string
	Seed           int64
	Mode           string
	HasAudio       bool
	EnhancedPrompt string
}

// NewRequest builds a pending request with a fresh identity.
func NewRequest(prompt, negativePrompt string, params types.GenerationParameters) *Request {
	return &Request{
		ID:             uuid.NewString(),
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
		Params:         params,
		CreatedAt:      time.Now(),
		Status:         StatusPending,
	}
}

// Item converts a request to its public API view.
func (r Request) Item() types.QueueItem {
	return types.QueueItem{
		ID:             r.ID,
		Prompt:         r.Prompt,
		NegativePrompt: r.NegativePrompt,
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt.Unix(),
		Parameters:     r.Params,
		Error:          r.Error,
		VideoPath:      r.VideoPath,
		Seed:           r.Seed,
		Mode:           r.Mode,
		HasAudio:       r.HasAudio,
		EnhancedPrompt: r.EnhancedPrompt,
	}
}

// Direction selects which way Reorder moves an item.
type Direction int

const (
	MoveUp Direction = iota
	MoveDown
)

// notFoundError signals an unknown request id.
type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "request not found: " + e.id }

// ErrNotFound constructs a notFoundError.
func ErrNotFound(id string) error { return notFoundError{id: id} }

// IsNotFound reports whether err indicates an unknown request id.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// currentlyProcessingError signals the id belongs to the in-flight item.
type currentlyProcessingError struct{ id string }

func (e currentlyProcessingError) Error() string { return "request is currently processing: " + e.id }

// ErrCurrentlyProcessing constructs a currentlyProcessingError.
func ErrCurrentlyProcessing(id string) error { return currentlyProcessingError{id: id} }

// IsCurrentlyProcessing reports whether err names the in-flight item.
func IsCurrentlyProcessing(err error) bool {
	_, ok := err.(currentlyProcessingError)
	return ok
}

// historyLimit caps how many terminal items are retained for display.
const historyLimit = 100

// Queue is the ordered collection of pending requests plus the distinguished
// current slot. All access is mutex-guarded; methods never block.
type Queue struct {
	mu      sync.Mutex
	pending []*Request
	current *Request
	history []*Request
}

// New constructs an empty queue.
func New() *Queue { return &Queue{} }

// Enqueue appends a request. It does not start processing; draining is the
// service's job.
func (q *Queue) Enqueue(r *Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r.Status = StatusPending
	q.pending = append(q.pending, r)
}

// Remove drops a pending item by identity. The current item cannot be
// removed; cancelling it is a separate, heavier operation.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil && q.current.ID == id {
		return ErrCurrentlyProcessing(id)
	}
	for i, r := range q.pending {
		if r.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return nil
		}
	}
	return ErrNotFound(id)
}

// Reorder swaps a pending item with its neighbor. No-op at the boundaries
// and for ids that are not pending.
func (q *Queue) Reorder(id string, dir Direction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.pending {
		if r.ID != id {
			continue
		}
		j := i - 1
		if dir == MoveDown {
			j = i + 1
		}
		if j < 0 || j >= len(q.pending) {
			return false
		}
		q.pending[i], q.pending[j] = q.pending[j], q.pending[i]
		return true
	}
	return false
}

// Clear removes all pending (non-current) items and reports how many.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = nil
	return n
}

// PendingCount returns the number of queued (not in-flight) items.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Current returns the in-flight item, or nil.
func (q *Queue) Current() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// popNext promotes the head of the queue into the current slot and marks it
// processing. Returns nil when the queue is idle or empty.
func (q *Queue) popNext() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil || len(q.pending) == 0 {
		return nil
	}
	r := q.pending[0]
	q.pending = q.pending[1:]
	r.Status = StatusProcessing
	q.current = r
	return r
}

// finish records the terminal state of the current item and frees the slot.
// apply assigns the terminal result fields; it runs under the lock so that
// Snapshot never observes a half-written item.
func (q *Queue) finish(r *Request, status Status, apply func(*Request)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if apply != nil {
		apply(r)
	}
	r.Status = status
	if q.current == r {
		q.current = nil
	}
	q.history = append(q.history, r)
	if len(q.history) > historyLimit {
		q.history = q.history[len(q.history)-historyLimit:]
	}
}

// Snapshot returns copies of the current item first, then pending items in
// order, then retained terminal items newest-first.
func (q *Queue) Snapshot() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, 0, 1+len(q.pending)+len(q.history))
	if q.current != nil {
		out = append(out, *q.current)
	}
	for _, r := range q.pending {
		out = append(out, *r)
	}
	for i := len(q.history) - 1; i >= 0; i-- {
		out = append(out, *q.history[i])
	}
	return out
}
