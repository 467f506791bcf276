// Package pal provides automatic synchronization for explicit GPU APIs.
//
// # Overview
//
// pal sits between application rendering code and an explicit,
// Vulkan-style GPU API. The application declares which resources each
// operation reads and writes; pal infers the pipeline barriers, image
// layout transitions, and cross-queue semaphore waits and signals needed
// for that work to execute correctly on an out-of-order GPU timeline.
//
// # Quick Start
//
//	import "github.com/gogpu/pal"
//
//	reg := pal.NewRegistry()
//	buf, _ := reg.Register(pal.Resource{Kind: pal.KindBuffer, Native: myBuffer})
//
//	epoch := pal.NewEpoch(reg)
//	op, _ := epoch.Begin(pal.QueueMain)
//	epoch.Declare(op, buf, pal.StageComputeShader, pal.AccessShaderWrite, pal.LayoutUndefined)
//	epoch.End(op)
//
//	seq, err := epoch.Flush()
//	if err != nil {
//	    // declaration or sequencing failure; nothing was submitted
//	}
//	seq.Submit(driver)
//
// # Architecture
//
// The library is organized into:
//   - Registry: per-resource synchronization state, carried across epochs
//   - Epoch: per-frame recording of operations and their declared accesses
//   - Hazard analysis: detects read/write conflicts between operations
//   - Planner: reduces hazards to merged barriers and semaphore operations
//   - Sequencer: orders per-queue batches and hands them to a Driver
//
// Driver adapters live under backend/ (capture, vulkan, wgpu).
//
// # Concurrency
//
// Recording is single-threaded: one epoch is built up by one goroutine,
// and all planning is synchronous in-memory computation. The
// asynchrony lives on the GPU timeline, which is exactly what the planned
// barriers and semaphores constrain. Callers that record from multiple
// goroutines must funnel declarations into a single recording goroutine.
package pal

// Version information
const (
	// Version is the current version of the library
	Version = "0.2.0"
)
