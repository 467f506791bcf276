// Package wgpu submits sequenced batches through the gogpu/wgpu HAL.
//
// The HAL exposes one hardware queue, so every engine queue maps onto
// it and submission order alone satisfies cross-queue dependencies. A
// shared fence still tracks each signal's completion, and waits whose
// signal has not yet been submitted degrade to a CPU-side fence wait.
// Buffer barriers are dropped entirely: the HAL tracks buffer state
// internally. Texture layout changes become usage transitions.
package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pal"
	"github.com/gogpu/pal/backend"
)

// waitTimeout bounds CPU-side fence waits for degraded cross-queue
// dependencies.
const waitTimeout = 5 * time.Second

// Config supplies the HAL device and queue the backend drives. Leave
// it zero to let Init open the default adapter.
type Config struct {
	Device hal.Device
	Queue  hal.Queue

	// Registry resolves resource handles to their native hal.Texture
	// objects recorded at registration.
	Registry *pal.Registry

	// Record replays the commands of one operation into the encoder.
	Record func(enc hal.CommandEncoder, op pal.OperationID) error
}

// init registers the backend factory; the instance reports unavailable
// from Init until a Config is installed.
func init() {
	backend.Register(backend.BackendWGPU, func() backend.Backend {
		configMu.Lock()
		defer configMu.Unlock()
		if config == nil {
			return nil
		}
		return &Backend{cfg: *config}
	})
}

var (
	configMu sync.Mutex
	config   *Config
)

// SetConfig installs the device configuration used by new backend
// instances.
func SetConfig(cfg *Config) {
	configMu.Lock()
	config = cfg
	configMu.Unlock()
}

// Backend drives the HAL queue. Not safe for concurrent use.
type Backend struct {
	cfg         Config
	initialized bool

	fence     hal.Fence
	nextFence uint64
	// signals maps a timeline point to the fence value of the
	// submission that produced it.
	signals map[signalKey]uint64
}

type signalKey struct {
	queue pal.QueueID
	value uint64
}

// batch is one in-flight encoder.
type batch struct {
	queue   pal.QueueID
	encoder hal.CommandEncoder
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return backend.BackendWGPU
}

// Init opens the device if one was not configured and creates the
// shared fence.
func (b *Backend) Init() error {
	if b.cfg.Record == nil {
		return fmt.Errorf("wgpu: %w: no record callback configured", backend.ErrBackendNotAvailable)
	}
	if b.cfg.Device == nil {
		dev, queue, err := openDefault()
		if err != nil {
			return err
		}
		b.cfg.Device = dev
		b.cfg.Queue = queue
	}
	fence, err := b.cfg.Device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	b.fence = fence
	b.signals = make(map[signalKey]uint64)
	b.initialized = true
	return nil
}

// Close waits for outstanding work and releases the device objects.
func (b *Backend) Close() {
	if !b.initialized {
		return
	}
	if b.nextFence > 0 {
		_, _ = b.cfg.Device.Wait(b.fence, b.nextFence, waitTimeout)
	}
	b.cfg.Device.DestroyFence(b.fence)
	b.signals = nil
	b.initialized = false
}

// BeginBatch opens a command encoder.
func (b *Backend) BeginBatch(queue pal.QueueID, label string) (pal.CommandBatch, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	encoder, err := b.cfg.Device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	return &batch{queue: queue, encoder: encoder}, nil
}

// InsertBarrier records texture usage transitions. Buffer entries are
// dropped; the HAL synchronizes buffer memory itself.
func (b *Backend) InsertBarrier(cb pal.CommandBatch, barrier pal.Barrier) error {
	bt, err := b.recording(cb)
	if err != nil {
		return err
	}
	var transitions []hal.TextureBarrier
	for _, tr := range barrier.Textures {
		if tr.OldLayout == tr.NewLayout {
			continue
		}
		tex, err := b.nativeTexture(tr.Handle)
		if err != nil {
			return err
		}
		transitions = append(transitions, hal.TextureBarrier{
			Texture: tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: usageForLayout(tr.OldLayout),
				NewUsage: usageForLayout(tr.NewLayout),
			},
		})
	}
	if len(transitions) > 0 {
		bt.encoder.TransitionTextures(transitions)
	}
	return nil
}

// RecordOperation delegates to the configured record callback.
func (b *Backend) RecordOperation(cb pal.CommandBatch, op pal.OperationID) error {
	bt, err := b.recording(cb)
	if err != nil {
		return err
	}
	return b.cfg.Record(bt.encoder, op)
}

// Submit ends encoding and submits to the single hardware queue.
// Because batches arrive in submission order, a wait on a signal
// already submitted here is satisfied by queue order alone; a wait on
// anything older degrades to a CPU fence wait.
func (b *Backend) Submit(queue pal.QueueID, cb pal.CommandBatch, waits []pal.SemaphoreWait, signal pal.SemaphoreSignal) error {
	bt, err := b.recording(cb)
	if err != nil {
		return err
	}
	if bt.queue != queue {
		return fmt.Errorf("wgpu: batch began on %s but submitted on %s", bt.queue, queue)
	}

	for _, w := range waits {
		if _, ok := b.signals[signalKey{queue: w.Queue, value: w.Value}]; ok {
			// Submitted earlier this session; queue order covers it.
			continue
		}
		if b.nextFence > 0 {
			if _, err := b.cfg.Device.Wait(b.fence, b.nextFence, waitTimeout); err != nil {
				bt.encoder.DiscardEncoding()
				return fmt.Errorf("wgpu: wait for prior work: %w", err)
			}
		}
	}

	cmdBuf, err := bt.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}

	b.nextFence++
	if err := b.cfg.Queue.Submit([]hal.CommandBuffer{cmdBuf}, b.fence, b.nextFence); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	b.signals[signalKey{queue: signal.Queue, value: signal.Value}] = b.nextFence
	return nil
}

func (b *Backend) recording(cb pal.CommandBatch) (*batch, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	bt, ok := cb.(*batch)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign command batch %T", cb)
	}
	return bt, nil
}

func (b *Backend) nativeTexture(h pal.Handle) (hal.Texture, error) {
	res, err := b.cfg.Registry.Resource(h)
	if err != nil {
		return nil, err
	}
	tex, ok := res.Native.(hal.Texture)
	if !ok {
		return nil, fmt.Errorf("wgpu: resource %q native is %T, want hal.Texture", res.Label, res.Native)
	}
	return tex, nil
}

// usageForLayout maps an image layout to the HAL usage that implies it.
func usageForLayout(l pal.Layout) gputypes.TextureUsage {
	switch l {
	case pal.LayoutColorAttachment, pal.LayoutDepthStencilAttachment:
		return gputypes.TextureUsageRenderAttachment
	case pal.LayoutShaderReadOnly, pal.LayoutDepthStencilReadOnly:
		return gputypes.TextureUsageTextureBinding
	case pal.LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case pal.LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	case pal.LayoutPresent:
		return gputypes.TextureUsageRenderAttachment
	default:
		return gputypes.TextureUsageStorageBinding
	}
}

// openDefault opens the first available adapter on the default backend.
func openDefault() (hal.Device, hal.Queue, error) {
	be, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, nil, fmt.Errorf("wgpu: %w: no HAL backend", backend.ErrBackendNotAvailable)
	}
	instance, err := be.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, nil, fmt.Errorf("wgpu: %w: no adapters", backend.ErrBackendNotAvailable)
	}
	openDev, err := adapters[0].Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: open adapter: %w", err)
	}
	return openDev.Device, openDev.Queue, nil
}
