package pal

// QueueID identifies a logical GPU queue. Work submitted to a single
// queue executes in submission order; work on different queues has no
// ordering guarantee except what planned semaphores impose.
type QueueID uint8

// Well-known queue identities. Backends map these onto whatever hardware
// queue families the device exposes; a backend with fewer queues may
// alias several IDs onto one hardware queue.
const (
	QueueMain QueueID = iota
	QueueCompute
	QueueTransfer
	QueuePresent

	queueCount
)

// queueNames maps QueueID values to their string representation.
var queueNames = [...]string{
	QueueMain:     "main",
	QueueCompute:  "compute",
	QueueTransfer: "transfer",
	QueuePresent:  "present",
}

// String returns the string representation of a QueueID.
func (q QueueID) String() string {
	if int(q) < len(queueNames) {
		return queueNames[q]
	}
	return "unknown"
}

// Stage is a pipeline stage mask. Stages identify where in the GPU
// pipeline an access happens; barriers are expressed as "all work in
// the source stages must complete before any work in the destination
// stages begins".
type Stage uint32

// Pipeline stages, in rough pipeline order.
const (
	StageTopOfPipe Stage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageHost
	StageBottomOfPipe

	// StageAllCommands covers every stage; used for conservative
	// synchronization after external (untracked) access.
	StageAllCommands Stage = 1<<31 - 1
)

// stageNames maps single stage bits to their string representation.
var stageNames = map[Stage]string{
	StageTopOfPipe:             "top-of-pipe",
	StageDrawIndirect:          "draw-indirect",
	StageVertexInput:           "vertex-input",
	StageVertexShader:          "vertex-shader",
	StageFragmentShader:        "fragment-shader",
	StageEarlyFragmentTests:    "early-fragment-tests",
	StageLateFragmentTests:     "late-fragment-tests",
	StageColorAttachmentOutput: "color-attachment-output",
	StageComputeShader:         "compute-shader",
	StageTransfer:              "transfer",
	StageHost:                  "host",
	StageBottomOfPipe:          "bottom-of-pipe",
}

// String returns a "|"-joined representation of the stage mask.
func (s Stage) String() string {
	if s == StageAllCommands {
		return "all-commands"
	}
	out := ""
	for bit := Stage(1); bit != 0 && bit <= s; bit <<= 1 {
		if s&bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		if name, ok := stageNames[bit]; ok {
			out += name
		} else {
			out += "?"
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

// Access is a memory access mask describing how an operation touches a
// resource. Read bits and write bits may be combined (for example a
// color attachment that is both loaded and stored).
type Access uint32

// Access kinds.
const (
	AccessIndirectRead Access = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite
)

// readAccessMask is the set of all read-only access bits. An access
// contained entirely within this mask cannot produce data, so two such
// accesses in sequence need no synchronization.
const readAccessMask = AccessIndirectRead | AccessIndexRead |
	AccessVertexAttributeRead | AccessUniformRead | AccessShaderRead |
	AccessColorAttachmentRead | AccessDepthStencilRead |
	AccessTransferRead | AccessHostRead | AccessMemoryRead

// accessNames maps single access bits to their string representation.
var accessNames = map[Access]string{
	AccessIndirectRead:         "indirect-read",
	AccessIndexRead:            "index-read",
	AccessVertexAttributeRead:  "vertex-attribute-read",
	AccessUniformRead:          "uniform-read",
	AccessShaderRead:           "shader-read",
	AccessShaderWrite:          "shader-write",
	AccessColorAttachmentRead:  "color-attachment-read",
	AccessColorAttachmentWrite: "color-attachment-write",
	AccessDepthStencilRead:     "depth-stencil-read",
	AccessDepthStencilWrite:    "depth-stencil-write",
	AccessTransferRead:         "transfer-read",
	AccessTransferWrite:        "transfer-write",
	AccessHostRead:             "host-read",
	AccessHostWrite:            "host-write",
	AccessMemoryRead:           "memory-read",
	AccessMemoryWrite:          "memory-write",
}

// ReadOnly reports whether the access contains no write bits.
// Read-after-read needs no synchronization; everything else does.
func (a Access) ReadOnly() bool {
	return a&^readAccessMask == 0
}

// Writes reports whether the access contains any write bits.
func (a Access) Writes() bool {
	return a&^readAccessMask != 0
}

// String returns a "|"-joined representation of the access mask.
func (a Access) String() string {
	out := ""
	for bit := Access(1); bit != 0 && bit <= a; bit <<= 1 {
		if a&bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		if name, ok := accessNames[bit]; ok {
			out += name
		} else {
			out += "?"
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

// Layout is the GPU-internal memory organization of an image resource.
// Images must be transitioned explicitly between certain uses; buffers
// always use LayoutUndefined.
type Layout uint8

// Image layouts.
const (
	// LayoutUndefined means no layout requirement. It is the initial
	// layout of every image and the permanent layout of buffers.
	// Transitioning out of LayoutUndefined discards image contents.
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

// layoutNames maps Layout values to their string representation.
var layoutNames = [...]string{
	LayoutUndefined:              "undefined",
	LayoutGeneral:                "general",
	LayoutColorAttachment:        "color-attachment",
	LayoutDepthStencilAttachment: "depth-stencil-attachment",
	LayoutDepthStencilReadOnly:   "depth-stencil-read-only",
	LayoutShaderReadOnly:         "shader-read-only",
	LayoutTransferSrc:            "transfer-src",
	LayoutTransferDst:            "transfer-dst",
	LayoutPresent:                "present",
}

// String returns the string representation of a Layout.
func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "unknown"
}
