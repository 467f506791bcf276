package backend

import (
	"errors"

	"github.com/gogpu/pal"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// Backend names, in rough priority order.
const (
	// BackendVulkan is the name of the Vulkan backend (goki/vulkan bindings).
	BackendVulkan = "vulkan"
	// BackendWGPU is the name of the Pure Go GPU backend (gogpu/wgpu HAL).
	BackendWGPU = "wgpu"
	// BackendCapture is the name of the recording backend used for
	// inspection and testing.
	BackendCapture = "capture"
)

// Backend is a pal.Driver with an explicit lifecycle. It abstracts the
// submission target, allowing the engine to drive a real GPU queue or a
// recording sink through the same planning pipeline.
//
// Backends must be registered via Register() and are selected via
// Get() or Default().
type Backend interface {
	pal.Driver

	// Name returns the backend identifier (e.g., "capture", "vulkan").
	Name() string

	// Init initializes the backend.
	// This should be called before any submissions.
	Init() error

	// Close releases all backend resources.
	// The backend should not be used after Close is called.
	Close()
}
