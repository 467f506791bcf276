package pal

// Registry tracks live GPU resources and their current synchronization
// state. It is the single mutable source of truth: only the hazard
// builder and planner mutate it, in program order, within one recording
// goroutine. No GPU calls happen here; it is purely bookkeeping.
//
// Registry is not safe for concurrent use. Callers must serialize all
// access per recording epoch.
type Registry struct {
	resources map[Handle]*resourceEntry
	byNative  map[any]Handle
	next      Handle

	// timelines holds, per queue, the highest timeline value assigned to
	// a sequenced batch. Cross-epoch waits validate against these.
	timelines [queueCount]uint64
}

// resourceEntry is the registry's per-resource record. The last write
// and the outstanding reader set are kept separately: a new writer must
// synchronize against every reader since the last write, not just the
// most recent access.
type resourceEntry struct {
	res     Resource
	write   AccessState
	readers []readerRecord
	layout  Layout
	// pins counts declarations in unflushed epochs referencing the
	// resource. Unregister fails while pins > 0.
	pins int
	// external is set by InvalidateState; the first tracked use after it
	// synchronizes against all stages instead of trusting cached state.
	external bool
}

// NewRegistry creates an empty resource registry.
func NewRegistry() *Registry {
	return &Registry{
		resources: make(map[Handle]*resourceEntry, 64),
		byNative:  make(map[any]Handle, 64),
	}
}

// Register adds a resource to the registry and returns its handle.
// Resource identity follows the native handle: registering a resource
// whose Native is already tracked fails with ErrAlreadyRegistered.
// The new resource starts in the uninitialized state (no known access,
// layout undefined).
func (r *Registry) Register(res Resource) (Handle, error) {
	if res.Native != nil {
		if _, dup := r.byNative[res.Native]; dup {
			return 0, ErrAlreadyRegistered
		}
	}
	r.next++
	h := r.next
	r.resources[h] = &resourceEntry{
		res:    res,
		layout: LayoutUndefined,
	}
	if res.Native != nil {
		r.byNative[res.Native] = h
	}
	return h, nil
}

// Unregister removes a resource from the registry. It fails with
// ErrResourceInUse while any operation of an unflushed epoch still
// references the resource, sealed or not; the caller must flush or
// discard the epoch first.
func (r *Registry) Unregister(h Handle) error {
	e, ok := r.resources[h]
	if !ok {
		return ErrUnknownResource
	}
	if e.pins > 0 {
		return ErrResourceInUse
	}
	if e.res.Native != nil {
		delete(r.byNative, e.res.Native)
	}
	delete(r.resources, h)
	return nil
}

// CurrentState returns the last known access state of a resource: the
// most recent outstanding read if any, otherwise the last write. A
// resource that has never been accessed (or whose state was invalidated)
// reports the uninitialized sentinel: Valid is false and Layout is
// LayoutUndefined.
func (r *Registry) CurrentState(h Handle) (AccessState, error) {
	e, ok := r.resources[h]
	if !ok {
		return AccessState{}, ErrUnknownResource
	}
	if n := len(e.readers); n > 0 {
		rd := e.readers[n-1]
		return AccessState{
			Stage:    rd.stage,
			Access:   rd.access,
			Queue:    rd.queue,
			Layout:   e.layout,
			Timeline: rd.timeline,
			Valid:    true,
		}, nil
	}
	s := e.write
	s.Layout = e.layout
	return s, nil
}

// UpdateState records a new access against a resource. A writing (or
// invalid) state replaces the last write and clears the outstanding
// reader set; a read-only state joins the reader set. The planner calls
// this as it advances state past each sequenced operation; applications
// normally never need it.
func (r *Registry) UpdateState(h Handle, s AccessState) error {
	e, ok := r.resources[h]
	if !ok {
		return ErrUnknownResource
	}
	e.layout = s.Layout
	if !s.Valid || s.Access.Writes() {
		e.write = s
		e.readers = e.readers[:0]
		return nil
	}
	e.readers = append(e.readers, readerRecord{
		queue:    s.Queue,
		timeline: s.Timeline,
		stage:    s.Stage,
		access:   s.Access,
	})
	return nil
}

// InvalidateState marks a resource as externally accessed: its cached
// state is reset to the uninitialized sentinel so the next tracked use
// synchronizes conservatively instead of trusting stale state. Call this
// after issuing unmanaged native calls against the resource.
func (r *Registry) InvalidateState(h Handle) error {
	e, ok := r.resources[h]
	if !ok {
		return ErrUnknownResource
	}
	Logger().Warn("pal: resource state invalidated after external access",
		"resource", e.res.Label)
	e.write = AccessState{}
	e.readers = e.readers[:0]
	e.layout = LayoutUndefined
	e.external = true
	return nil
}

// Resource returns the descriptor the resource was registered with.
func (r *Registry) Resource(h Handle) (Resource, error) {
	e, ok := r.resources[h]
	if !ok {
		return Resource{}, ErrUnknownResource
	}
	return e.res, nil
}

// Native returns the backend handle for a resource. This is the escape
// hatch for issuing unmanaged native calls; any such access must be
// followed by InvalidateState so the registry does not plan against
// stale state.
func (r *Registry) Native(h Handle) (any, error) {
	e, ok := r.resources[h]
	if !ok {
		return nil, ErrUnknownResource
	}
	return e.res.Native, nil
}

// Len returns the number of registered resources.
func (r *Registry) Len() int { return len(r.resources) }

// Timeline returns the highest timeline value sequenced on a queue.
func (r *Registry) Timeline(q QueueID) uint64 {
	if int(q) >= len(r.timelines) {
		return 0
	}
	return r.timelines[q]
}

// entry returns the mutable record for a handle, or nil.
func (r *Registry) entry(h Handle) *resourceEntry {
	return r.resources[h]
}

// pin marks a resource as referenced by a declaration in an unflushed
// epoch.
func (r *Registry) pin(h Handle) {
	if e, ok := r.resources[h]; ok {
		e.pins++
	}
}

// unpin releases one pending reference.
func (r *Registry) unpin(h Handle) {
	if e, ok := r.resources[h]; ok && e.pins > 0 {
		e.pins--
	}
}
