// Command paltrace plans a sample frame through the synchronization
// engine and prints the sequenced batches, barriers, and semaphore
// operations it produced.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pal"
	"github.com/gogpu/pal/backend"
)

func main() {
	var (
		frames  = flag.Int("frames", 1, "number of frames to plan")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		pal.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	reg := pal.NewRegistry()
	vertices, err := reg.Register(pal.Resource{
		Kind:   pal.KindBuffer,
		Label:  "vertices",
		Native: "buffer:vertices",
		Buffer: pal.BufferDesc{Size: 64 << 10, Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst},
	})
	if err != nil {
		log.Fatalf("register vertices: %v", err)
	}
	color, err := reg.Register(pal.Resource{
		Kind:   pal.KindTexture,
		Label:  "color-target",
		Native: "texture:color",
		Texture: pal.TextureDesc{
			Format: gputypes.TextureFormatRGBA8Unorm,
			Size:   gputypes.Extent3D{Width: 1920, Height: 1080, DepthOrArrayLayers: 1},
			Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		},
	})
	if err != nil {
		log.Fatalf("register color target: %v", err)
	}

	b := backend.Get(backend.BackendCapture).(*backend.CaptureBackend)
	if err := b.Init(); err != nil {
		log.Fatalf("init backend: %v", err)
	}
	defer b.Close()

	for frame := 0; frame < *frames; frame++ {
		seq, err := planFrame(reg, vertices, color, frame)
		if err != nil {
			log.Fatalf("frame %d: %v", frame, err)
		}
		if err := seq.Submit(b); err != nil {
			log.Fatalf("frame %d submit: %v", frame, err)
		}
	}

	printTrace(b.Trace())
}

// planFrame declares one upload-draw-readback frame: a transfer queue
// upload into the vertex buffer, a main queue draw reading it, and a
// transfer queue readback of the color target.
func planFrame(reg *pal.Registry, vertices, color pal.Handle, frame int) (*pal.SequencedEpoch, error) {
	epoch := pal.NewEpoch(reg, pal.WithLabel(fmt.Sprintf("frame-%d", frame)))

	upload, err := epoch.Begin(pal.QueueTransfer)
	if err != nil {
		return nil, err
	}
	if err := epoch.Declare(upload, vertices, pal.StageTransfer, pal.AccessTransferWrite, pal.LayoutUndefined); err != nil {
		return nil, err
	}
	if err := epoch.End(upload); err != nil {
		return nil, err
	}

	draw, err := epoch.Begin(pal.QueueMain)
	if err != nil {
		return nil, err
	}
	if err := epoch.Declare(draw, vertices, pal.StageVertexInput, pal.AccessVertexAttributeRead, pal.LayoutUndefined); err != nil {
		return nil, err
	}
	if err := epoch.Declare(draw, color, pal.StageColorAttachmentOutput, pal.AccessColorAttachmentWrite, pal.LayoutColorAttachment); err != nil {
		return nil, err
	}
	if err := epoch.End(draw); err != nil {
		return nil, err
	}

	readback, err := epoch.Begin(pal.QueueTransfer)
	if err != nil {
		return nil, err
	}
	if err := epoch.Declare(readback, color, pal.StageTransfer, pal.AccessTransferRead, pal.LayoutTransferSrc); err != nil {
		return nil, err
	}
	if err := epoch.End(readback); err != nil {
		return nil, err
	}

	return epoch.Flush()
}

func printTrace(trace []backend.CapturedBatch) {
	for i, b := range trace {
		fmt.Printf("batch %d  queue=%s  label=%q  signal=%s:%d\n",
			i, b.Queue, b.Label, b.Signal.Queue, b.Signal.Value)
		for _, w := range b.Waits {
			fmt.Printf("  wait   %s:%d at %s\n", w.Queue, w.Value, w.Stage)
		}
		for _, ev := range b.Events {
			if ev.Barrier != nil {
				fmt.Printf("  barrier %s -> %s  buffers=%d textures=%d\n",
					ev.Barrier.SrcStage, ev.Barrier.DstStage,
					len(ev.Barrier.Buffers), len(ev.Barrier.Textures))
				for _, tr := range ev.Barrier.Textures {
					if tr.OldLayout != tr.NewLayout {
						fmt.Printf("    transition %d: %s -> %s\n", tr.Handle, tr.OldLayout, tr.NewLayout)
					}
				}
				continue
			}
			fmt.Printf("  op      %d\n", ev.Op)
		}
	}
}
