package backend

import (
	"fmt"

	"github.com/gogpu/pal"
)

// CaptureBackend records every submission into an inspectable trace
// instead of driving a device. It is the fallback backend and the main
// tool for verifying what the engine planned.
type CaptureBackend struct {
	initialized bool
	trace       []CapturedBatch
	nextID      int
}

// CapturedBatch is one submitted batch as the backend saw it.
type CapturedBatch struct {
	Queue  pal.QueueID
	Label  string
	Events []CapturedEvent
	Waits  []pal.SemaphoreWait
	Signal pal.SemaphoreSignal
}

// CapturedEvent is a single recorded call within a batch: either a
// barrier (Barrier != nil) or an operation.
type CapturedEvent struct {
	Barrier *pal.Barrier
	Op      pal.OperationID
}

// captureBatch is the in-flight recording of one batch.
type captureBatch struct {
	id     int
	queue  pal.QueueID
	label  string
	events []CapturedEvent
}

// init registers the capture backend on package import.
func init() {
	Register(BackendCapture, func() Backend {
		return &CaptureBackend{}
	})
}

// NewCaptureBackend creates a new recording backend.
func NewCaptureBackend() *CaptureBackend {
	return &CaptureBackend{}
}

// Name returns the backend identifier.
func (b *CaptureBackend) Name() string {
	return BackendCapture
}

// Init initializes the backend.
func (b *CaptureBackend) Init() error {
	b.initialized = true
	return nil
}

// Close releases all backend resources.
func (b *CaptureBackend) Close() {
	b.trace = nil
	b.initialized = false
}

// BeginBatch opens a new recording.
func (b *CaptureBackend) BeginBatch(queue pal.QueueID, label string) (pal.CommandBatch, error) {
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	cb := &captureBatch{id: b.nextID, queue: queue, label: label}
	b.nextID++
	return cb, nil
}

// InsertBarrier records a barrier event.
func (b *CaptureBackend) InsertBarrier(cb pal.CommandBatch, barrier pal.Barrier) error {
	rec, err := b.recording(cb)
	if err != nil {
		return err
	}
	rec.events = append(rec.events, CapturedEvent{Barrier: &barrier, Op: pal.InvalidOperation})
	return nil
}

// RecordOperation records an operation event.
func (b *CaptureBackend) RecordOperation(cb pal.CommandBatch, op pal.OperationID) error {
	rec, err := b.recording(cb)
	if err != nil {
		return err
	}
	rec.events = append(rec.events, CapturedEvent{Op: op})
	return nil
}

// Submit closes the recording and appends it to the trace.
func (b *CaptureBackend) Submit(queue pal.QueueID, cb pal.CommandBatch, waits []pal.SemaphoreWait, signal pal.SemaphoreSignal) error {
	rec, err := b.recording(cb)
	if err != nil {
		return err
	}
	if rec.queue != queue {
		return fmt.Errorf("backend: batch began on %s but submitted on %s", rec.queue, queue)
	}
	b.trace = append(b.trace, CapturedBatch{
		Queue:  queue,
		Label:  rec.label,
		Events: rec.events,
		Waits:  append([]pal.SemaphoreWait(nil), waits...),
		Signal: signal,
	})
	return nil
}

// Trace returns the batches submitted so far, in submission order.
func (b *CaptureBackend) Trace() []CapturedBatch {
	return b.trace
}

// Reset clears the trace without closing the backend.
func (b *CaptureBackend) Reset() {
	b.trace = nil
	b.nextID = 0
}

func (b *CaptureBackend) recording(cb pal.CommandBatch) (*captureBatch, error) {
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	rec, ok := cb.(*captureBatch)
	if !ok {
		return nil, fmt.Errorf("backend: foreign command batch %T", cb)
	}
	return rec, nil
}
