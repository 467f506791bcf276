// Package backend provides a pluggable execution backend abstraction.
//
// The backend package lets the pal engine submit sequenced work through
// multiple drivers. The capture backend is always available and records
// every call for inspection; GPU-backed drivers live in subpackages and
// register themselves on import:
//
//	import _ "github.com/gogpu/pal/backend/vulkan"
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// The capture backend is automatically registered on import of this
// package.
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	// Get the default (best available) backend
//	b := backend.Default()
//
//	// Or request a specific backend
//	b := backend.Get("capture")
//
// # Usage
//
// A backend is a pal.Driver with a lifecycle:
//
//	b := backend.MustDefault()
//	if err := b.Init(); err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	seq, _ := epoch.Flush()
//	if err := seq.Submit(b); err != nil {
//		log.Fatal(err)
//	}
package backend
