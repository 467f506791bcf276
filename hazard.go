package pal

// HazardKind classifies a detected conflict between two operations over
// a shared resource.
type HazardKind uint8

// Hazard kinds.
const (
	// HazardReadAfterWrite: the destination reads data the source wrote.
	HazardReadAfterWrite HazardKind = iota
	// HazardWriteAfterWrite: both source and destination write.
	HazardWriteAfterWrite
	// HazardWriteAfterRead: the destination overwrites data the source
	// is still reading. Execution ordering only; no memory visibility
	// is required since the prior access produced nothing.
	HazardWriteAfterRead
	// HazardLayoutTransition: the destination requires a different image
	// layout. Layout transitions always serialize, regardless of access
	// mode on either side.
	HazardLayoutTransition
)

// hazardKindNames maps HazardKind values to their string representation.
var hazardKindNames = [...]string{
	HazardReadAfterWrite:   "read-after-write",
	HazardWriteAfterWrite:  "write-after-write",
	HazardWriteAfterRead:   "write-after-read",
	HazardLayoutTransition: "layout-transition",
}

// String returns the string representation of a HazardKind.
func (k HazardKind) String() string {
	if int(k) < len(hazardKindNames) {
		return hazardKindNames[k]
	}
	return "unknown"
}

// Hazard is a directed edge between two accesses of one resource: the
// destination operation must not perform its access before the source
// access completes. The source is either an operation in the same epoch
// (SrcOp >= 0) or state carried in the registry from a previous epoch
// (SrcOp < 0, SrcTimeline holds the wait target).
type Hazard struct {
	Kind   HazardKind
	Handle Handle

	Dst       OperationID
	DstQueue  QueueID
	DstStage  Stage
	DstAccess Access

	SrcOp       OperationID
	SrcQueue    QueueID
	SrcTimeline uint64
	SrcStage    Stage
	SrcAccess   Access

	OldLayout Layout
	NewLayout Layout

	// CrossQueue is true when source and destination run on different
	// queues; such hazards resolve to semaphore waits instead of
	// barriers. Decided purely by queue equality.
	CrossQueue bool
}

// accessPoint is one access to a resource, either by an in-epoch
// operation (op >= 0) or carried from the registry (op < 0, timeline
// identifies the batch that performed it).
type accessPoint struct {
	op       OperationID
	queue    QueueID
	timeline uint64
	stage    Stage
	access   Access
}

// shadowState is the builder's working copy of a resource's
// synchronization state. The registry itself is not mutated until the
// epoch sequences successfully.
type shadowState struct {
	write    accessPoint
	hasWrite bool
	readers  []accessPoint
	layout   Layout
	// external is carried from the registry: the first access must
	// synchronize against all stages, since nothing is known about the
	// untracked work that invalidated the state.
	external bool
}

// newShadow seeds a shadow from the registry's carried state.
func newShadow(e *resourceEntry) *shadowState {
	sh := &shadowState{layout: e.layout, external: e.external}
	if e.write.Valid {
		sh.write = accessPoint{
			op:       InvalidOperation,
			queue:    e.write.Queue,
			timeline: e.write.Timeline,
			stage:    e.write.Stage,
			access:   e.write.Access,
		}
		sh.hasWrite = true
	}
	for _, rd := range e.readers {
		sh.readers = append(sh.readers, accessPoint{
			op:       InvalidOperation,
			queue:    rd.queue,
			timeline: rd.timeline,
			stage:    rd.stage,
			access:   rd.access,
		})
	}
	return sh
}

// buildHazards walks the sealed operations in declaration order and,
// comparing each declared access against the resource's (shadowed)
// current state, emits the hazard edges that sequencing must satisfy.
//
// Hazard rules:
//   - prior write, new read or write: hazard (RAW / WAW)
//   - prior read(s), new write: hazard against the entire outstanding
//     reader set, which each write clears
//   - read after read: no edge
//   - declared layout differing from the current layout: hazard
//     regardless of access mode
//   - first use after InvalidateState: hazard against all stages and
//     all memory, regardless of access mode
func buildHazards(reg *Registry, ops []*operation) ([]Hazard, map[Handle]*shadowState) {
	var hazards []Hazard
	shadows := make(map[Handle]*shadowState, 16)

	for i, op := range ops {
		id := OperationID(i)
		for _, d := range op.decls {
			sh, ok := shadows[d.handle]
			if !ok {
				sh = newShadow(reg.entry(d.handle))
				shadows[d.handle] = sh
			}

			writes := d.access.Writes()
			transition := d.layout != LayoutUndefined && d.layout != sh.layout

			// Collect the accesses this one must be ordered after.
			var srcs []accessPoint
			switch {
			case sh.external:
				// First use after InvalidateState: whatever the external
				// access did is unknown, so order after every stage and
				// make all memory effects visible.
				srcs = []accessPoint{{
					op:     InvalidOperation,
					queue:  op.queue,
					stage:  StageAllCommands,
					access: AccessMemoryRead | AccessMemoryWrite,
				}}
				sh.external = false
			case transition:
				// A layout transition serializes against everything
				// still outstanding on the resource.
				srcs = append(srcs, sh.readers...)
				if sh.hasWrite {
					srcs = append(srcs, sh.write)
				}
			case writes && len(sh.readers) > 0:
				// The readers already waited on the previous write, so
				// ordering after every reader orders after the write too.
				srcs = sh.readers
			case writes && sh.hasWrite:
				srcs = []accessPoint{sh.write}
			case !writes && sh.hasWrite:
				srcs = []accessPoint{sh.write}
			}

			if transition && len(srcs) == 0 {
				// First use of a fresh image with a layout requirement:
				// the transition itself still needs a barrier, sourced
				// from the top of the pipe on the operation's own queue.
				srcs = []accessPoint{{op: InvalidOperation, queue: op.queue}}
			}

			for _, src := range srcs {
				kind := classify(src.access, d.access, transition)
				hz := Hazard{
					Kind:        kind,
					Handle:      d.handle,
					Dst:         id,
					DstQueue:    op.queue,
					DstStage:    d.stage,
					DstAccess:   d.access,
					SrcOp:       src.op,
					SrcQueue:    src.queue,
					SrcTimeline: src.timeline,
					SrcStage:    src.stage,
					SrcAccess:   src.access,
					OldLayout:   sh.layout,
					NewLayout:   sh.layout,
					CrossQueue:  src.queue != op.queue,
				}
				if transition {
					hz.NewLayout = d.layout
				}
				hazards = append(hazards, hz)
			}

			// Advance the shadow past this access.
			if d.layout != LayoutUndefined {
				sh.layout = d.layout
			}
			pt := accessPoint{op: id, queue: op.queue, stage: d.stage, access: d.access}
			if writes {
				sh.write = pt
				sh.hasWrite = true
				sh.readers = sh.readers[:0]
			} else {
				sh.readers = append(sh.readers, pt)
			}
		}
	}
	return hazards, shadows
}

// classify picks the hazard kind for a (source access, destination
// access) pair. Layout transitions dominate.
func classify(src, dst Access, transition bool) HazardKind {
	switch {
	case transition:
		return HazardLayoutTransition
	case src.Writes() && dst.Writes():
		return HazardWriteAfterWrite
	case src.Writes():
		return HazardReadAfterWrite
	default:
		return HazardWriteAfterRead
	}
}
