package pal

// AccessState records the last known synchronization state of a resource
// after the most recently sequenced operation that touched it.
type AccessState struct {
	// Stage is the pipeline stage mask of the last access.
	Stage Stage
	// Access is the access mask of the last access.
	Access Access
	// Queue is the queue the resource was last touched on.
	Queue QueueID
	// Layout is the current image layout (LayoutUndefined for buffers).
	Layout Layout
	// Timeline is the source queue's timeline value at which the last
	// access completes. Cross-queue hazards against this state wait on it.
	Timeline uint64
	// Valid is false for the uninitialized sentinel: the resource has
	// never been accessed, or its cached state was invalidated after an
	// untracked external access.
	Valid bool
}

// readerRecord is one outstanding read of a resource since its last
// write, carried in the registry across epochs. A subsequent writer must
// synchronize against every outstanding reader, not just the latest.
type readerRecord struct {
	queue    QueueID
	timeline uint64
	stage    Stage
	access   Access
}

// declaration is one merged (resource, access) pair on an operation.
// Repeated declarations of the same resource union their stage and
// access masks; layouts must agree (one layout per resource per scope).
type declaration struct {
	handle Handle
	stage  Stage
	access Access
	layout Layout
}
