package pal

import "fmt"

// BatchItem is one operation within a batch, preceded by its planned
// barrier (nil when the operation needs none).
type BatchItem struct {
	Barrier *Barrier
	Op      OperationID
}

// Batch is a per-queue group of operations submitted together. Waits
// attach at the start of the batch, the signal fires when the batch
// completes, and barriers ride inline with their operations.
type Batch struct {
	Queue  QueueID
	Label  string
	Waits  []SemaphoreWait
	Items  []BatchItem
	Signal SemaphoreSignal
}

// SequencedEpoch is a fully planned epoch: per-queue batches in
// submission order, with every hazard resolved by a barrier or a
// semaphore pair. Every wait's signal appears strictly earlier in
// Batches (or was sequenced by a previous epoch).
type SequencedEpoch struct {
	Batches []*Batch
	label   string
}

// Label returns the epoch's debug label.
func (s *SequencedEpoch) Label() string { return s.label }

// Submit hands the sequenced batches to a driver in submission order.
// Submission is the only point where driver calls happen; everything
// before was pure planning.
func (s *SequencedEpoch) Submit(d Driver) error {
	for bi, b := range s.Batches {
		cb, err := d.BeginBatch(b.Queue, b.Label)
		if err != nil {
			return fmt.Errorf("pal: begin batch %d on %s: %w", bi, b.Queue, err)
		}
		for _, item := range b.Items {
			if !item.Barrier.Empty() {
				if err := d.InsertBarrier(cb, *item.Barrier); err != nil {
					return fmt.Errorf("pal: barrier before op %d: %w", item.Op, err)
				}
			}
			if err := d.RecordOperation(cb, item.Op); err != nil {
				return fmt.Errorf("pal: record op %d: %w", item.Op, err)
			}
		}
		if err := d.Submit(b.Queue, cb, b.Waits, b.Signal); err != nil {
			return fmt.Errorf("pal: submit batch %d on %s: %w", bi, b.Queue, err)
		}
	}
	return nil
}

// sequencer carries the working state of one sequencing pass.
type sequencer struct {
	reg    *Registry
	label  string
	open   [queueCount]*Batch
	closed []*Batch
	// tl is the working copy of per-queue timelines; committed to the
	// registry only after validation passes.
	tl [queueCount]uint64
	// opBatch maps an operation to the batch holding it while that batch
	// is still open; opSignal records its batch's signal value once the
	// batch closes.
	opBatch  map[OperationID]*Batch
	opSignal map[OperationID]uint64
}

// sequence orders the planned operations into per-queue batches.
// Within a queue, operations keep declaration order. A cross-queue wait
// forces the source queue's open batch to close first, so its signal
// lands strictly before the wait in submission order, and moves the
// destination onto a fresh batch unless its open batch already performs
// an equal or later wait on the same source queue.
//
// On success the registry's per-resource state and queue timelines are
// advanced; on failure nothing is committed.
func sequence(reg *Registry, label string, ops []*operation, plans []opPlan, shadows map[Handle]*shadowState) (*SequencedEpoch, error) {
	seq := &sequencer{
		reg:      reg,
		label:    label,
		tl:       reg.timelines,
		opBatch:  make(map[OperationID]*Batch, len(ops)),
		opSignal: make(map[OperationID]uint64, len(ops)),
	}

	for i, op := range ops {
		id := OperationID(i)
		plan := &plans[i]

		var waits []SemaphoreWait
		for _, w := range plan.waits {
			value := w.value
			if w.srcOp >= 0 {
				// In-epoch dependency: the source batch must be closed
				// (and thus signaled) before this wait can reference it.
				if b := seq.opBatch[w.srcOp]; b != nil && b == seq.open[w.srcQueue] {
					seq.closeBatch(w.srcQueue)
				}
				value = seq.opSignal[w.srcOp]
			}
			waits = mergeWait(waits, SemaphoreWait{Queue: w.srcQueue, Value: value, Stage: w.stage})
		}

		q := op.queue
		if len(waits) > 0 && seq.open[q] != nil && len(seq.open[q].Items) > 0 &&
			!waitsCovered(seq.open[q].Waits, waits) {
			// Waits attach at batch start, so an uncovered wait splits the
			// open batch. Operations whose waits the batch already
			// performs share them instead.
			seq.closeBatch(q)
		}
		b := seq.openBatch(q)
		for _, w := range waits {
			b.Waits = mergeWait(b.Waits, w)
		}
		b.Items = append(b.Items, BatchItem{Barrier: plan.barrier, Op: id})
		seq.opBatch[id] = b
	}
	for q := QueueID(0); q < queueCount; q++ {
		seq.closeBatch(q)
	}

	if err := seq.validate(); err != nil {
		return nil, err
	}
	seq.commit(shadows)
	return &SequencedEpoch{Batches: seq.closed, label: label}, nil
}

// openBatch returns the queue's open batch, starting one if needed.
func (s *sequencer) openBatch(q QueueID) *Batch {
	if s.open[q] == nil {
		s.open[q] = &Batch{Queue: q, Label: s.label}
	}
	return s.open[q]
}

// closeBatch seals the queue's open batch, assigning its timeline signal.
func (s *sequencer) closeBatch(q QueueID) {
	b := s.open[q]
	if b == nil {
		return
	}
	s.tl[q]++
	b.Signal = SemaphoreSignal{Queue: q, Value: s.tl[q]}
	for _, item := range b.Items {
		s.opSignal[item.Op] = s.tl[q]
	}
	s.closed = append(s.closed, b)
	s.open[q] = nil
}

// validate replays the batches in submission order and checks the core
// invariant: every wait references a timeline value already signaled,
// either by an earlier batch of this epoch or by a previous epoch. A
// violation is a planner defect, never a user error.
func (s *sequencer) validate() error {
	signaled := s.reg.timelines
	waiters := make(map[SemaphoreSignal]int)
	for _, b := range s.closed {
		for _, w := range b.Waits {
			if w.Value > signaled[w.Queue] {
				return &SequencingError{
					Queue:  w.Queue,
					Value:  w.Value,
					Detail: fmt.Sprintf("batch on %s", b.Queue),
				}
			}
			waiters[SemaphoreSignal{Queue: w.Queue, Value: w.Value}]++
		}
		signaled[b.Queue] = b.Signal.Value
	}
	for _, b := range s.closed {
		b.Signal.Waiters = waiters[SemaphoreSignal{Queue: b.Signal.Queue, Value: b.Signal.Value}]
	}
	return nil
}

// commit advances registry state past the sequenced epoch: per-resource
// access state picks up the timeline values of the batches that touched
// it, and the queue timelines move to their new baselines.
func (s *sequencer) commit(shadows map[Handle]*shadowState) {
	for h, sh := range shadows {
		e := s.reg.entry(h)
		if e == nil {
			continue
		}
		e.layout = sh.layout
		e.external = sh.external
		if sh.hasWrite && sh.write.op >= 0 {
			e.write = AccessState{
				Stage:    sh.write.stage,
				Access:   sh.write.access,
				Queue:    sh.write.queue,
				Layout:   sh.layout,
				Timeline: s.opSignal[sh.write.op],
				Valid:    true,
			}
			e.readers = e.readers[:0]
		}
		// Readers carried from before the epoch are already recorded;
		// only in-epoch readers are appended.
		for _, rd := range sh.readers {
			if rd.op < 0 {
				continue
			}
			e.readers = append(e.readers, readerRecord{
				queue:    rd.queue,
				timeline: s.opSignal[rd.op],
				stage:    rd.stage,
				access:   rd.access,
			})
		}
	}
	s.reg.timelines = s.tl
}

// waitsCovered reports whether every wanted wait is already satisfied by
// the batch's wait set: a wait for an equal or later value on the same
// source queue covers it, since queues signal in submission order.
func waitsCovered(have, want []SemaphoreWait) bool {
	for _, w := range want {
		ok := false
		for _, h := range have {
			if h.Queue == w.Queue && h.Value >= w.Value {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// mergeWait folds a wait into a wait set keyed by source queue, keeping
// the highest value and the union of destination stages.
func mergeWait(waits []SemaphoreWait, w SemaphoreWait) []SemaphoreWait {
	for i := range waits {
		if waits[i].Queue == w.Queue {
			if w.Value > waits[i].Value {
				waits[i].Value = w.Value
			}
			waits[i].Stage |= w.Stage
			return waits
		}
	}
	return append(waits, w)
}
