package pal

import "github.com/gogpu/gputypes"

// Handle is an opaque reference to a registered resource. The zero value
// is never a valid handle.
type Handle uint64

// IsValid returns true if the handle refers to a registered resource slot.
func (h Handle) IsValid() bool { return h != 0 }

// ResourceKind identifies the kind of a resource.
type ResourceKind uint8

// Resource kinds.
const (
	KindBuffer ResourceKind = iota
	KindTexture
)

// kindNames maps ResourceKind values to their string representation.
var kindNames = [...]string{
	KindBuffer:  "buffer",
	KindTexture: "texture",
}

// String returns the string representation of a ResourceKind.
func (k ResourceKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// BufferDesc describes a buffer resource for synchronization purposes.
type BufferDesc struct {
	Size  uint64
	Usage gputypes.BufferUsage
}

// TextureDesc describes a texture resource for synchronization purposes.
// MipLevelCount is needed so backends can build full-subresource layout
// transitions; zero is treated as one.
type TextureDesc struct {
	Format        gputypes.TextureFormat
	Size          gputypes.Extent3D
	Usage         gputypes.TextureUsage
	MipLevelCount uint32
	ArrayLayers   uint32
}

// Resource describes a GPU resource tracked by the Registry. The
// registry owns only the synchronization metadata; physical memory
// ownership stays with the external allocator that created Native.
//
// Native is the backend handle (for example a vk.Buffer or hal.Texture)
// and establishes resource identity: registering the same native handle
// twice fails with ErrAlreadyRegistered. Native must be comparable.
type Resource struct {
	Kind   ResourceKind
	Label  string
	Native any

	// Buffer is consulted when Kind is KindBuffer.
	Buffer BufferDesc
	// Texture is consulted when Kind is KindTexture.
	Texture TextureDesc
}
