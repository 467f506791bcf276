package pal

import (
	"errors"
	"testing"
)

// recordedEvent is one driver call captured by testDriver.
type recordedEvent struct {
	kind    string // "begin", "barrier", "op", "submit"
	queue   QueueID
	op      OperationID
	barrier Barrier
	waits   []SemaphoreWait
	signal  SemaphoreSignal
}

// testDriver records every call in order.
type testDriver struct {
	events []recordedEvent
	failOn string
}

type testDriverBatch struct {
	queue QueueID
}

func (d *testDriver) BeginBatch(queue QueueID, label string) (CommandBatch, error) {
	if d.failOn == "begin" {
		return nil, errors.New("begin failed")
	}
	d.events = append(d.events, recordedEvent{kind: "begin", queue: queue})
	return &testDriverBatch{queue: queue}, nil
}

func (d *testDriver) InsertBarrier(cb CommandBatch, b Barrier) error {
	if d.failOn == "barrier" {
		return errors.New("barrier failed")
	}
	d.events = append(d.events, recordedEvent{kind: "barrier", queue: cb.(*testDriverBatch).queue, barrier: b})
	return nil
}

func (d *testDriver) RecordOperation(cb CommandBatch, op OperationID) error {
	d.events = append(d.events, recordedEvent{kind: "op", queue: cb.(*testDriverBatch).queue, op: op})
	return nil
}

func (d *testDriver) Submit(queue QueueID, cb CommandBatch, waits []SemaphoreWait, signal SemaphoreSignal) error {
	d.events = append(d.events, recordedEvent{
		kind:   "submit",
		queue:  queue,
		waits:  append([]SemaphoreWait(nil), waits...),
		signal: signal,
	})
	return nil
}

func (d *testDriver) byKind(kind string) []recordedEvent {
	var out []recordedEvent
	for _, ev := range d.events {
		if ev.kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestSequenceCrossQueueWriteRead(t *testing.T) {
	// Write on one queue, read on another: exactly one signal on the
	// source, one wait on the destination, signal strictly before the
	// wait, and no same-queue barriers anywhere.
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("x", "native:x"))
	epoch := NewEpoch(reg, WithLabel("cross"))
	record(t, epoch, QueueMain, h, StageTransfer, AccessTransferWrite, LayoutUndefined)
	record(t, epoch, QueueCompute, h, StageComputeShader, AccessShaderRead, LayoutUndefined)

	seq, err := epoch.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(seq.Batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(seq.Batches))
	}

	first, second := seq.Batches[0], seq.Batches[1]
	if first.Queue != QueueMain || second.Queue != QueueCompute {
		t.Fatalf("batch order = %s, %s; want main then compute", first.Queue, second.Queue)
	}
	if len(first.Waits) != 0 {
		t.Errorf("source batch has %d waits", len(first.Waits))
	}
	if first.Signal.Waiters != 1 {
		t.Errorf("source signal Waiters = %d, want 1", first.Signal.Waiters)
	}
	if len(second.Waits) != 1 {
		t.Fatalf("destination batch has %d waits, want 1", len(second.Waits))
	}
	w := second.Waits[0]
	if w.Queue != QueueMain || w.Value != first.Signal.Value {
		t.Errorf("wait = %s:%d, want %s:%d", w.Queue, w.Value, QueueMain, first.Signal.Value)
	}
	if w.Stage != StageComputeShader {
		t.Errorf("wait stage = %s, want compute-shader", w.Stage)
	}
	for _, b := range seq.Batches {
		for _, item := range b.Items {
			if !item.Barrier.Empty() {
				t.Error("cross-queue dependency planned a same-queue barrier")
			}
		}
	}
}

func TestSequenceSameQueueRelayout(t *testing.T) {
	// Two writes to the same image in different layouts on one queue:
	// exactly one barrier between them carrying the transition.
	reg := NewRegistry()
	h, _ := reg.Register(testTexture("y", "native:y"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, h, StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment)
	b := record(t, epoch, QueueMain, h, StageTransfer, AccessTransferWrite, LayoutTransferDst)

	seq, err := epoch.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(seq.Batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(seq.Batches))
	}
	batch := seq.Batches[0]
	if len(batch.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(batch.Items))
	}
	item := batch.Items[1]
	if item.Op != b {
		t.Fatalf("second item is op %d, want %d", item.Op, b)
	}
	if item.Barrier.Empty() {
		t.Fatal("no barrier between the relayouting writes")
	}
	if len(item.Barrier.Textures) != 1 {
		t.Fatalf("barrier has %d texture entries, want 1", len(item.Barrier.Textures))
	}
	tr := item.Barrier.Textures[0]
	if tr.OldLayout != LayoutColorAttachment || tr.NewLayout != LayoutTransferDst {
		t.Errorf("transition %s -> %s, want color-attachment -> transfer-dst", tr.OldLayout, tr.NewLayout)
	}
	if tr.SrcAccess != AccessColorAttachmentWrite {
		t.Errorf("SrcAccess = %s, want the prior write visible", tr.SrcAccess)
	}
}

func TestSequenceThreeReadsNoBarriers(t *testing.T) {
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("z", "native:z"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, h, StageVertexInput, AccessVertexAttributeRead, LayoutUndefined)
	record(t, epoch, QueueMain, h, StageComputeShader, AccessShaderRead, LayoutUndefined)
	record(t, epoch, QueueMain, h, StageFragmentShader, AccessUniformRead, LayoutUndefined)

	seq, err := epoch.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	for _, b := range seq.Batches {
		if len(b.Waits) != 0 {
			t.Error("read-only epoch planned waits")
		}
		for _, item := range b.Items {
			if !item.Barrier.Empty() {
				t.Error("read-only epoch planned a barrier")
			}
		}
	}
}

func TestSequenceCarriedTimeline(t *testing.T) {
	// A second epoch waiting on work sequenced by the first must wait on
	// the carried timeline value, and validation accepts it because the
	// registry remembers the signal.
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("x", "native:x"))

	e1 := NewEpoch(reg, WithLabel("first"))
	record(t, e1, QueueTransfer, h, StageTransfer, AccessTransferWrite, LayoutUndefined)
	if _, err := e1.Flush(); err != nil {
		t.Fatalf("first Flush() error = %v", err)
	}
	if reg.Timeline(QueueTransfer) != 1 {
		t.Fatalf("Timeline(transfer) = %d, want 1", reg.Timeline(QueueTransfer))
	}

	e2 := NewEpoch(reg, WithLabel("second"))
	record(t, e2, QueueMain, h, StageVertexInput, AccessVertexAttributeRead, LayoutUndefined)
	seq, err := e2.Flush()
	if err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	if len(seq.Batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(seq.Batches))
	}
	waits := seq.Batches[0].Waits
	if len(waits) != 1 {
		t.Fatalf("got %d waits, want 1", len(waits))
	}
	if waits[0].Queue != QueueTransfer || waits[0].Value != 1 {
		t.Errorf("wait = %s:%d, want transfer:1", waits[0].Queue, waits[0].Value)
	}
}

func TestSequenceBatchSplitOnWait(t *testing.T) {
	// An operation with a wait cannot join an already populated batch:
	// waits attach at batch start. The destination queue's open batch is
	// closed first.
	reg := NewRegistry()
	other, _ := reg.Register(testBuffer("other", "native:other"))
	shared, _ := reg.Register(testBuffer("shared", "native:shared"))

	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, other, StageComputeShader, AccessShaderWrite, LayoutUndefined)
	record(t, epoch, QueueTransfer, shared, StageTransfer, AccessTransferWrite, LayoutUndefined)
	record(t, epoch, QueueMain, shared, StageVertexInput, AccessVertexAttributeRead, LayoutUndefined)

	seq, err := epoch.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	// main split into two batches around the wait.
	var mainBatches []*Batch
	for _, b := range seq.Batches {
		if b.Queue == QueueMain {
			mainBatches = append(mainBatches, b)
		}
	}
	if len(mainBatches) != 2 {
		t.Fatalf("main has %d batches, want 2 (split at the wait)", len(mainBatches))
	}
	if len(mainBatches[0].Waits) != 0 {
		t.Error("first main batch should not wait")
	}
	if len(mainBatches[1].Waits) != 1 {
		t.Fatalf("second main batch has %d waits, want 1", len(mainBatches[1].Waits))
	}
}

func TestSequenceSharedWaitJoinsBatch(t *testing.T) {
	// Two reads on one queue after a cross-queue write share one batch
	// and one wait; the source signal has a single waiter.
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("shared", "native:shared"))

	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, h, StageComputeShader, AccessShaderWrite, LayoutUndefined)
	record(t, epoch, QueueCompute, h, StageComputeShader, AccessShaderRead, LayoutUndefined)
	record(t, epoch, QueueCompute, h, StageComputeShader, AccessShaderRead, LayoutUndefined)

	seq, err := epoch.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(seq.Batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(seq.Batches))
	}
	compute := seq.Batches[1]
	if compute.Queue != QueueCompute || len(compute.Items) != 2 {
		t.Fatalf("second batch = %s with %d items, want compute with 2",
			compute.Queue, len(compute.Items))
	}
	if len(compute.Waits) != 1 {
		t.Fatalf("compute batch has %d waits, want 1 shared", len(compute.Waits))
	}
	if w := compute.Waits[0]; w.Queue != QueueMain || w.Value != seq.Batches[0].Signal.Value {
		t.Errorf("wait = %s:%d, want main:%d", w.Queue, w.Value, seq.Batches[0].Signal.Value)
	}
	if got := seq.Batches[0].Signal.Waiters; got != 1 {
		t.Errorf("Waiters = %d, want 1 (wait shared by both reads)", got)
	}
}

func TestSequenceInvalidatedStateBarrier(t *testing.T) {
	// A tracked write, an external access, then a tracked read: the read
	// carries a full barrier even though the cached state was reset, and
	// the reset is consumed once the barrier is sequenced.
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("buf", "native:buf"))

	epoch := NewEpoch(reg)
	record(t, epoch, QueueTransfer, h, StageTransfer, AccessTransferWrite, LayoutUndefined)
	if _, err := epoch.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := reg.InvalidateState(h); err != nil {
		t.Fatalf("InvalidateState() error = %v", err)
	}

	epoch = NewEpoch(reg)
	record(t, epoch, QueueTransfer, h, StageTransfer, AccessTransferRead, LayoutUndefined)
	seq, err := epoch.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(seq.Batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(seq.Batches))
	}
	b := seq.Batches[0]
	if len(b.Waits) != 0 {
		t.Errorf("read after invalidation planned %d waits, want 0", len(b.Waits))
	}
	br := b.Items[0].Barrier
	if br.Empty() {
		t.Fatal("read after invalidation planned no barrier")
	}
	if br.SrcStage != StageAllCommands {
		t.Errorf("SrcStage = %s, want all-commands", br.SrcStage)
	}
	if len(br.Buffers) != 1 || br.Buffers[0].SrcAccess != AccessMemoryRead|AccessMemoryWrite {
		t.Errorf("buffer transition = %+v, want full memory source", br.Buffers)
	}

	// The conservative barrier re-established known state: the next use
	// plans nothing.
	epoch = NewEpoch(reg)
	record(t, epoch, QueueTransfer, h, StageTransfer, AccessTransferRead, LayoutUndefined)
	seq, err = epoch.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if b := seq.Batches[0]; !b.Items[0].Barrier.Empty() || len(b.Waits) != 0 {
		t.Error("second read after re-established state planned synchronization")
	}
}

func TestSequenceSignalBeforeWaitOrder(t *testing.T) {
	// Chain across three queues: every wait's signal must appear in an
	// earlier batch.
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("chain", "native:chain"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueTransfer, h, StageTransfer, AccessTransferWrite, LayoutUndefined)
	record(t, epoch, QueueCompute, h, StageComputeShader, AccessShaderWrite, LayoutUndefined)
	record(t, epoch, QueueMain, h, StageVertexInput, AccessVertexAttributeRead, LayoutUndefined)

	seq, err := epoch.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	type point struct {
		queue QueueID
		value uint64
	}
	signaled := map[point]bool{}
	for _, b := range seq.Batches {
		for _, w := range b.Waits {
			if !signaled[point{w.Queue, w.Value}] {
				t.Errorf("batch on %s waits on %s:%d before it is signaled", b.Queue, w.Queue, w.Value)
			}
		}
		signaled[point{b.Signal.Queue, b.Signal.Value}] = true
	}
}

func TestSequenceOrphanWait(t *testing.T) {
	// A wait on a timeline value nothing signaled is an internal
	// invariant violation surfacing as *SequencingError.
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("x", "native:x"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, h, StageVertexInput, AccessVertexAttributeRead, LayoutUndefined)

	plans := []opPlan{{waits: []waitReq{{
		srcQueue: QueueCompute,
		srcOp:    InvalidOperation,
		value:    7,
		stage:    StageVertexInput,
	}}}}
	_, shadows := buildHazards(reg, epoch.ops)
	_, err := sequence(reg, "orphan", epoch.ops, plans, shadows)
	var seqErr *SequencingError
	if !errors.As(err, &seqErr) {
		t.Fatalf("sequence() error = %v, want *SequencingError", err)
	}
	if seqErr.Queue != QueueCompute || seqErr.Value != 7 {
		t.Errorf("SequencingError = %s:%d, want compute:7", seqErr.Queue, seqErr.Value)
	}
	// Nothing committed.
	if reg.Timeline(QueueMain) != 0 {
		t.Error("failed sequencing advanced a timeline")
	}
}

func TestSequenceCommitsRegistryState(t *testing.T) {
	reg := NewRegistry()
	h, _ := reg.Register(testTexture("img", "native:img"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, h, StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment)
	if _, err := epoch.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	s, err := reg.CurrentState(h)
	if err != nil {
		t.Fatalf("CurrentState() error = %v", err)
	}
	if !s.Valid {
		t.Fatal("state not committed after Flush")
	}
	if s.Access != AccessColorAttachmentWrite || s.Queue != QueueMain {
		t.Errorf("committed state = %+v", s)
	}
	if s.Layout != LayoutColorAttachment {
		t.Errorf("committed layout = %s, want color-attachment", s.Layout)
	}
	if s.Timeline != 1 {
		t.Errorf("committed timeline = %d, want 1", s.Timeline)
	}
}

func TestSequencedEpochSubmit(t *testing.T) {
	reg := NewRegistry()
	h, _ := reg.Register(testTexture("img", "native:img"))
	epoch := NewEpoch(reg, WithLabel("submit"))
	a := record(t, epoch, QueueMain, h, StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment)
	b := record(t, epoch, QueueTransfer, h, StageTransfer, AccessTransferRead, LayoutTransferSrc)

	seq, err := epoch.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if seq.Label() != "submit" {
		t.Errorf("Label() = %q", seq.Label())
	}

	d := &testDriver{}
	if err := seq.Submit(d); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ops := d.byKind("op")
	if len(ops) != 2 || ops[0].op != a || ops[1].op != b {
		t.Fatalf("recorded ops = %v, want [%d %d]", ops, a, b)
	}
	submits := d.byKind("submit")
	if len(submits) != 2 {
		t.Fatalf("got %d submits, want 2", len(submits))
	}
	if len(submits[1].waits) != 1 {
		t.Errorf("second submit has %d waits, want 1", len(submits[1].waits))
	}

	// The driver sees barriers in-stream before their operations.
	var sawBarrierBeforeB bool
	for i, ev := range d.events {
		if ev.kind == "op" && ev.op == b {
			for _, prev := range d.events[:i] {
				if prev.kind == "barrier" && prev.queue == QueueTransfer {
					sawBarrierBeforeB = true
				}
			}
		}
	}
	if !sawBarrierBeforeB {
		t.Error("relayout barrier not recorded before the dependent operation")
	}
}

func TestSequencedEpochSubmitDriverError(t *testing.T) {
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("x", "native:x"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, h, StageTransfer, AccessTransferWrite, LayoutUndefined)
	seq, err := epoch.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	d := &testDriver{failOn: "begin"}
	if err := seq.Submit(d); err == nil {
		t.Error("Submit() error = nil, want driver error propagated")
	}
}
