package pal

import "fmt"

// OperationID identifies an operation within one epoch. IDs are only
// meaningful on the epoch that issued them.
type OperationID int

// InvalidOperation is returned by Begin on error.
const InvalidOperation OperationID = -1

// operation is one recorded unit of GPU work: its target queue and the
// merged set of (resource, access) declarations describing how it
// touches each resource.
type operation struct {
	queue     QueueID
	decls     []declaration
	declIndex map[Handle]int
	sealed    bool
}

// Epoch records one batch of operations built up and sequenced together
// before submission. Recording is a pure declaration surface: nothing
// here has an ordering effect until Flush consumes the full declared set.
//
// An Epoch is not safe for concurrent use.
//
// Example:
//
//	epoch := pal.NewEpoch(reg, pal.WithLabel("frame 42"))
//	op, _ := epoch.Begin(pal.QueueMain)
//	epoch.Declare(op, img, pal.StageColorAttachmentOutput,
//	    pal.AccessColorAttachmentWrite, pal.LayoutColorAttachment)
//	epoch.End(op)
//	seq, err := epoch.Flush()
type Epoch struct {
	reg   *Registry
	label string
	ops   []*operation
	done  bool
}

// NewEpoch creates an epoch recording against the given registry.
// NewEpoch panics if reg is nil: every epoch needs the shared
// synchronization state, and a nil registry is a programming error.
func NewEpoch(reg *Registry, opts ...Option) *Epoch {
	if reg == nil {
		panic("pal: NewEpoch called with nil registry")
	}
	e := &Epoch{
		reg: reg,
		ops: make([]*operation, 0, 32),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Label returns the epoch's debug label.
func (e *Epoch) Label() string { return e.label }

// Begin opens a new operation targeting the given queue and returns its
// ID. Operations are sequenced on their queue in the order they are
// begun.
func (e *Epoch) Begin(queue QueueID) (OperationID, error) {
	if e.done {
		return InvalidOperation, ErrEpochFlushed
	}
	if queue >= queueCount {
		return InvalidOperation, fmt.Errorf("pal: invalid queue %d", queue)
	}
	e.ops = append(e.ops, &operation{
		queue:     queue,
		declIndex: make(map[Handle]int, 8),
	})
	return OperationID(len(e.ops) - 1), nil
}

// Declare appends a resource access declaration to an open operation.
// Declaring the same resource again merges the declarations: stage and
// access masks are unioned, and layouts must agree. Two different
// layouts for one resource within one operation fail with
// ErrConflictingAccess before the operation can be sealed.
//
// The layout argument expresses a required image layout; pass
// LayoutUndefined for buffers or when any layout is acceptable.
func (e *Epoch) Declare(id OperationID, h Handle, stage Stage, access Access, layout Layout) error {
	op, err := e.open(id)
	if err != nil {
		return err
	}
	res, err := e.reg.Resource(h)
	if err != nil {
		return err
	}
	if res.Kind == KindBuffer && layout != LayoutUndefined {
		return fmt.Errorf("%w: layout %s declared for buffer %q",
			ErrConflictingAccess, layout, res.Label)
	}

	if i, ok := op.declIndex[h]; ok {
		d := &op.decls[i]
		if d.layout != LayoutUndefined && layout != LayoutUndefined && d.layout != layout {
			return fmt.Errorf("%w: %q declared as both %s and %s",
				ErrConflictingAccess, res.Label, d.layout, layout)
		}
		if layout != LayoutUndefined {
			d.layout = layout
		}
		d.stage |= stage
		d.access |= access
		return nil
	}
	op.declIndex[h] = len(op.decls)
	op.decls = append(op.decls, declaration{
		handle: h,
		stage:  stage,
		access: access,
		layout: layout,
	})
	// The declaration pins the resource: Registry.Unregister fails with
	// ErrResourceInUse until the epoch is flushed or discarded.
	e.reg.pin(h)
	return nil
}

// End seals an operation for hazard analysis. Declaring further accesses
// on a sealed operation fails with ErrOperationSealed.
func (e *Epoch) End(id OperationID) error {
	op, err := e.open(id)
	if err != nil {
		return err
	}
	op.sealed = true
	return nil
}

// Discard abandons the epoch without sequencing anything. Pinned
// resources are released. Discarding an already flushed or discarded
// epoch is a no-op.
func (e *Epoch) Discard() {
	if e.done {
		return
	}
	e.release()
	e.done = true
}

// release unpins every resource referenced by a recorded operation.
func (e *Epoch) release() {
	for _, op := range e.ops {
		for _, d := range op.decls {
			e.reg.unpin(d.handle)
		}
	}
}

// open validates id and returns the operation if it is still recording.
func (e *Epoch) open(id OperationID) (*operation, error) {
	if e.done {
		return nil, ErrEpochFlushed
	}
	if id < 0 || int(id) >= len(e.ops) {
		return nil, ErrUnknownOperation
	}
	op := e.ops[id]
	if op.sealed {
		return nil, ErrOperationSealed
	}
	return op, nil
}

// Flush analyzes the recorded operations, plans the minimal set of
// barriers and semaphore operations that satisfy every hazard, advances
// the registry's per-resource state, and returns the sequenced batches
// ready for submission.
//
// Flush is atomic: on any error nothing is sequenced, no registry state
// is advanced, and the epoch may be discarded. An unsealed operation
// fails with ErrOperationOpen; a *SequencingError reports an internal
// invariant violation and should be treated as a bug in pal itself.
func (e *Epoch) Flush() (*SequencedEpoch, error) {
	if e.done {
		return nil, ErrEpochFlushed
	}
	for i, op := range e.ops {
		if !op.sealed {
			return nil, fmt.Errorf("%w: operation %d on %s", ErrOperationOpen, i, op.queue)
		}
	}

	hazards, shadows := buildHazards(e.reg, e.ops)
	plans := planSync(e.reg, e.ops, hazards)
	seq, err := sequence(e.reg, e.label, e.ops, plans, shadows)
	if err != nil {
		return nil, err
	}

	Logger().Debug("pal: epoch flushed",
		"label", e.label,
		"operations", len(e.ops),
		"hazards", len(hazards),
		"batches", len(seq.Batches))

	e.release()
	e.done = true
	return seq, nil
}
