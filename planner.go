package pal

// BufferTransition is one buffer entry riding in a barrier. SrcAccess is
// zero when the prior access was a read: write-after-read needs only an
// execution dependency, not memory visibility.
type BufferTransition struct {
	Handle    Handle
	SrcAccess Access
	DstAccess Access
}

// TextureTransition is one texture entry riding in a barrier, optionally
// carrying an image layout transition. OldLayout equals NewLayout when
// no transition is required.
type TextureTransition struct {
	Handle    Handle
	SrcAccess Access
	DstAccess Access
	OldLayout Layout
	NewLayout Layout
}

// Barrier is a same-queue synchronization directive: all source-stage
// work must complete, and its listed memory effects become visible,
// before destination-stage work begins. Several resource transitions may
// ride in one barrier, but each resource appears at most once.
//
// A zero SrcStage means "no prior work to wait on"; backends map it to
// their top-of-pipe equivalent.
type Barrier struct {
	SrcStage Stage
	DstStage Stage
	Buffers  []BufferTransition
	Textures []TextureTransition
}

// Empty reports whether the barrier constrains anything.
func (b *Barrier) Empty() bool {
	return b == nil || (len(b.Buffers) == 0 && len(b.Textures) == 0)
}

// SemaphoreWait makes a batch wait, at the given destination stages, for
// a source queue's timeline to reach Value.
type SemaphoreWait struct {
	Queue QueueID
	Value uint64
	Stage Stage
}

// SemaphoreSignal advances a queue's timeline to Value when the batch
// completes. Waiters is the number of waits planned against this signal
// within the same epoch; backends emulating timelines with binary
// semaphores allocate one per waiter.
type SemaphoreSignal struct {
	Queue   QueueID
	Value   uint64
	Waiters int
}

// waitReq is an unresolved cross-queue dependency of one operation: the
// destination must wait for the source queue to pass srcOp (in-epoch) or
// the carried timeline value (srcOp < 0).
type waitReq struct {
	srcQueue QueueID
	srcOp    OperationID
	value    uint64
	stage    Stage
}

// opPlan is the planned synchronization preceding one operation.
type opPlan struct {
	barrier *Barrier
	waits   []waitReq
}

// planSync reduces the hazard set into per-operation plans. All
// same-queue hazards targeting one operation merge into a single barrier
// whose masks are the union of the individual requirements; multiple
// cross-queue hazards from the same source queue share one wait.
// Merging is conservative: masks are unioned, never narrowed.
func planSync(reg *Registry, ops []*operation, hazards []Hazard) []opPlan {
	plans := make([]opPlan, len(ops))

	for _, hz := range hazards {
		plan := &plans[hz.Dst]
		if hz.CrossQueue {
			planWait(plan, hz)
			// A cross-queue layout transition still needs the transition
			// itself on the destination queue; the semaphore covers
			// execution and memory, so the barrier carries no source.
			if hz.OldLayout != hz.NewLayout {
				mergeTexture(ensureBarrier(plan), hz, true)
			}
			continue
		}

		b := ensureBarrier(plan)
		b.SrcStage |= hz.SrcStage
		b.DstStage |= hz.DstStage
		res, err := reg.Resource(hz.Handle)
		if err != nil {
			// Unreachable: declarations validated handles at record time.
			continue
		}
		if res.Kind == KindBuffer {
			mergeBuffer(b, hz)
		} else {
			mergeTexture(b, hz, false)
		}
	}
	return plans
}

// ensureBarrier returns the plan's barrier, allocating it on first use.
func ensureBarrier(p *opPlan) *Barrier {
	if p.barrier == nil {
		p.barrier = &Barrier{}
	}
	return p.barrier
}

// planWait merges a cross-queue hazard into the plan's wait set. One
// wait per source queue: waiting for the latest dependency covers every
// earlier one, since work on a queue completes in submission order.
func planWait(p *opPlan, hz Hazard) {
	for i := range p.waits {
		w := &p.waits[i]
		if w.srcQueue != hz.SrcQueue {
			continue
		}
		if hz.SrcOp > w.srcOp {
			w.srcOp = hz.SrcOp
		}
		if hz.SrcTimeline > w.value {
			w.value = hz.SrcTimeline
		}
		w.stage |= hz.DstStage
		return
	}
	p.waits = append(p.waits, waitReq{
		srcQueue: hz.SrcQueue,
		srcOp:    hz.SrcOp,
		value:    hz.SrcTimeline,
		stage:    hz.DstStage,
	})
}

// mergeBuffer folds a buffer hazard into the barrier, unioning masks
// with any earlier entry for the same resource. The source access joins
// the barrier only if it wrote; visibility of reads is meaningless.
func mergeBuffer(b *Barrier, hz Hazard) {
	src := hz.SrcAccess
	if !src.Writes() {
		src = 0
	}
	for i := range b.Buffers {
		if b.Buffers[i].Handle == hz.Handle {
			b.Buffers[i].SrcAccess |= src
			b.Buffers[i].DstAccess |= hz.DstAccess
			return
		}
	}
	b.Buffers = append(b.Buffers, BufferTransition{
		Handle:    hz.Handle,
		SrcAccess: src,
		DstAccess: hz.DstAccess,
	})
}

// mergeTexture folds a texture hazard into the barrier. Layout
// transitions are never merged across resources: each resource keeps its
// own transition entry, though several entries ride one barrier call.
// When semaphored is true the execution dependency is carried by a
// cross-queue wait and the entry contributes no source masks.
func mergeTexture(b *Barrier, hz Hazard, semaphored bool) {
	src := hz.SrcAccess
	if !src.Writes() || semaphored {
		src = 0
	}
	if !semaphored {
		b.SrcStage |= hz.SrcStage
	}
	b.DstStage |= hz.DstStage
	for i := range b.Textures {
		if b.Textures[i].Handle == hz.Handle {
			t := &b.Textures[i]
			t.SrcAccess |= src
			t.DstAccess |= hz.DstAccess
			if hz.OldLayout != hz.NewLayout {
				t.OldLayout = hz.OldLayout
				t.NewLayout = hz.NewLayout
			}
			return
		}
	}
	b.Textures = append(b.Textures, TextureTransition{
		Handle:    hz.Handle,
		SrcAccess: src,
		DstAccess: hz.DstAccess,
		OldLayout: hz.OldLayout,
		NewLayout: hz.NewLayout,
	})
}
