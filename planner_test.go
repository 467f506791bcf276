package pal

import "testing"

func TestPlanSyncSameQueueBarrier(t *testing.T) {
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("buf", "native:buf"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, h, StageTransfer, AccessTransferWrite, LayoutUndefined)
	b := record(t, epoch, QueueMain, h, StageComputeShader, AccessShaderRead, LayoutUndefined)

	hazards, _ := buildHazards(reg, epoch.ops)
	plans := planSync(reg, epoch.ops, hazards)

	if plans[0].barrier != nil || len(plans[0].waits) != 0 {
		t.Error("first operation should need no synchronization")
	}
	plan := plans[b]
	if plan.barrier == nil {
		t.Fatal("dependent operation has no barrier")
	}
	if len(plan.waits) != 0 {
		t.Errorf("same-queue hazard produced %d waits", len(plan.waits))
	}
	if plan.barrier.SrcStage != StageTransfer || plan.barrier.DstStage != StageComputeShader {
		t.Errorf("barrier stages %s -> %s", plan.barrier.SrcStage, plan.barrier.DstStage)
	}
	if len(plan.barrier.Buffers) != 1 {
		t.Fatalf("barrier has %d buffer entries, want 1", len(plan.barrier.Buffers))
	}
	tr := plan.barrier.Buffers[0]
	if tr.Handle != h || tr.SrcAccess != AccessTransferWrite || tr.DstAccess != AccessShaderRead {
		t.Errorf("buffer transition = %+v", tr)
	}
}

func TestPlanSyncWriteAfterReadExecutionOnly(t *testing.T) {
	// The prior access read, so the barrier needs no source access mask:
	// there is nothing to make visible, only execution to order.
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("buf", "native:buf"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, h, StageVertexInput, AccessVertexAttributeRead, LayoutUndefined)
	w := record(t, epoch, QueueMain, h, StageTransfer, AccessTransferWrite, LayoutUndefined)

	hazards, _ := buildHazards(reg, epoch.ops)
	plans := planSync(reg, epoch.ops, hazards)

	plan := plans[w]
	if plan.barrier == nil || len(plan.barrier.Buffers) != 1 {
		t.Fatal("write-after-read produced no barrier entry")
	}
	if got := plan.barrier.Buffers[0].SrcAccess; got != 0 {
		t.Errorf("SrcAccess = %s, want none for a read source", got)
	}
	if plan.barrier.SrcStage != StageVertexInput {
		t.Errorf("SrcStage = %s, want the reader's stage", plan.barrier.SrcStage)
	}
}

func TestPlanSyncMergesBarriers(t *testing.T) {
	// Two hazards into one operation share one barrier with unioned
	// masks and per-resource entries.
	reg := NewRegistry()
	bufA, _ := reg.Register(testBuffer("a", "native:a"))
	bufB, _ := reg.Register(testBuffer("b", "native:b"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, bufA, StageTransfer, AccessTransferWrite, LayoutUndefined)
	record(t, epoch, QueueMain, bufB, StageComputeShader, AccessShaderWrite, LayoutUndefined)

	op, err := epoch.Begin(QueueMain)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := epoch.Declare(op, bufA, StageVertexInput, AccessVertexAttributeRead, LayoutUndefined); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	if err := epoch.Declare(op, bufB, StageVertexShader, AccessShaderRead, LayoutUndefined); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	if err := epoch.End(op); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	hazards, _ := buildHazards(reg, epoch.ops)
	plans := planSync(reg, epoch.ops, hazards)

	plan := plans[op]
	if plan.barrier == nil {
		t.Fatal("no barrier planned")
	}
	wantSrc := StageTransfer | StageComputeShader
	wantDst := StageVertexInput | StageVertexShader
	if plan.barrier.SrcStage != wantSrc || plan.barrier.DstStage != wantDst {
		t.Errorf("barrier stages %s -> %s, want %s -> %s",
			plan.barrier.SrcStage, plan.barrier.DstStage, wantSrc, wantDst)
	}
	if len(plan.barrier.Buffers) != 2 {
		t.Errorf("barrier has %d buffer entries, want one per resource", len(plan.barrier.Buffers))
	}
}

func TestPlanSyncCrossQueueWait(t *testing.T) {
	reg := NewRegistry()
	h, _ := reg.Register(testBuffer("buf", "native:buf"))
	epoch := NewEpoch(reg)
	a := record(t, epoch, QueueTransfer, h, StageTransfer, AccessTransferWrite, LayoutUndefined)
	b := record(t, epoch, QueueMain, h, StageVertexInput, AccessVertexAttributeRead, LayoutUndefined)

	hazards, _ := buildHazards(reg, epoch.ops)
	plans := planSync(reg, epoch.ops, hazards)

	plan := plans[b]
	if !plan.barrier.Empty() {
		t.Error("cross-queue buffer hazard planned a barrier")
	}
	if len(plan.waits) != 1 {
		t.Fatalf("got %d waits, want 1", len(plan.waits))
	}
	w := plan.waits[0]
	if w.srcQueue != QueueTransfer || w.srcOp != a {
		t.Errorf("wait = %+v, want source %s op %d", w, QueueTransfer, a)
	}
	if w.stage != StageVertexInput {
		t.Errorf("wait stage = %s, want the destination stage", w.stage)
	}
}

func TestPlanSyncWaitDeduplicatedPerSourceQueue(t *testing.T) {
	// Several hazards from the same source queue collapse into one wait
	// targeting the latest dependency.
	reg := NewRegistry()
	bufA, _ := reg.Register(testBuffer("a", "native:a"))
	bufB, _ := reg.Register(testBuffer("b", "native:b"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueTransfer, bufA, StageTransfer, AccessTransferWrite, LayoutUndefined)
	late := record(t, epoch, QueueTransfer, bufB, StageTransfer, AccessTransferWrite, LayoutUndefined)

	op, err := epoch.Begin(QueueMain)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	_ = epoch.Declare(op, bufA, StageVertexInput, AccessVertexAttributeRead, LayoutUndefined)
	_ = epoch.Declare(op, bufB, StageVertexShader, AccessShaderRead, LayoutUndefined)
	_ = epoch.End(op)

	hazards, _ := buildHazards(reg, epoch.ops)
	plans := planSync(reg, epoch.ops, hazards)

	plan := plans[op]
	if len(plan.waits) != 1 {
		t.Fatalf("got %d waits, want 1 merged wait", len(plan.waits))
	}
	w := plan.waits[0]
	if w.srcOp != late {
		t.Errorf("merged wait targets op %d, want the later op %d", w.srcOp, late)
	}
	if w.stage != StageVertexInput|StageVertexShader {
		t.Errorf("merged wait stage = %s, want the union", w.stage)
	}
}

func TestPlanSyncCrossQueueLayoutTransition(t *testing.T) {
	// A cross-queue relayout needs both the wait and a destination-side
	// transition whose execution dependency the semaphore already covers.
	reg := NewRegistry()
	h, _ := reg.Register(testTexture("img", "native:img"))
	epoch := NewEpoch(reg)
	record(t, epoch, QueueMain, h, StageColorAttachmentOutput, AccessColorAttachmentWrite, LayoutColorAttachment)
	b := record(t, epoch, QueueTransfer, h, StageTransfer, AccessTransferRead, LayoutTransferSrc)

	hazards, _ := buildHazards(reg, epoch.ops)
	plans := planSync(reg, epoch.ops, hazards)

	plan := plans[b]
	if len(plan.waits) != 1 {
		t.Fatalf("got %d waits, want 1", len(plan.waits))
	}
	if plan.barrier.Empty() {
		t.Fatal("cross-queue transition planned no destination barrier")
	}
	tr := plan.barrier.Textures[0]
	if tr.OldLayout != LayoutColorAttachment || tr.NewLayout != LayoutTransferSrc {
		t.Errorf("transition %s -> %s", tr.OldLayout, tr.NewLayout)
	}
	if tr.SrcAccess != 0 || plan.barrier.SrcStage != 0 {
		t.Error("semaphored transition must carry no source masks")
	}
}

func TestBarrierEmpty(t *testing.T) {
	var b *Barrier
	if !b.Empty() {
		t.Error("nil barrier should be empty")
	}
	if !(&Barrier{SrcStage: StageTransfer}).Empty() {
		t.Error("barrier with no entries should be empty")
	}
	if (&Barrier{Buffers: []BufferTransition{{}}}).Empty() {
		t.Error("barrier with entries should not be empty")
	}
}
