// Package vulkan submits sequenced batches to Vulkan queues using the
// goki/vulkan bindings. Barriers become vkCmdPipelineBarrier calls and
// cross-queue dependencies become binary semaphore pairs.
//
// The backend does not own the device. The caller creates the instance,
// device, and queues, then hands them over through Config. Importing
// the package registers the "vulkan" backend only when a Config has
// been installed with SetConfig, so plain imports never fail on
// machines without a Vulkan driver.
package vulkan

import (
	"errors"
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/gogpu/pal"
	"github.com/gogpu/pal/backend"
)

// QueueInfo identifies one hardware queue.
type QueueInfo struct {
	Queue  vk.Queue
	Family uint32
}

// Config supplies the device objects the backend drives. Queues may
// alias: mapping several engine queues to one QueueInfo is valid and
// common on hardware with a single family.
type Config struct {
	Device vk.Device
	Queues map[pal.QueueID]QueueInfo

	// Registry resolves resource handles to their native vk.Buffer and
	// vk.Image objects recorded at registration.
	Registry *pal.Registry

	// Record replays the commands of one operation into the command
	// buffer. The engine orders operations; the caller knows what they
	// contain.
	Record func(cmd vk.CommandBuffer, op pal.OperationID) error
}

var (
	configMu sync.Mutex
	config   *Config
)

// SetConfig installs the device configuration and registers the backend.
// Call once after device creation, before backend.Default().
func SetConfig(cfg *Config) {
	configMu.Lock()
	config = cfg
	configMu.Unlock()
	backend.Register(backend.BackendVulkan, func() backend.Backend {
		configMu.Lock()
		defer configMu.Unlock()
		if config == nil {
			return nil
		}
		return &Backend{cfg: *config}
	})
}

// semKey identifies one signaled timeline point.
type semKey struct {
	queue pal.QueueID
	value uint64
}

// Backend drives Vulkan queues. Not safe for concurrent use; submit
// sequenced epochs from one goroutine.
type Backend struct {
	cfg         Config
	initialized bool

	pools map[pal.QueueID]vk.CommandPool

	// pending holds signal semaphores not yet consumed by a waiter,
	// keyed by timeline point. Each entry is a stack; one waiter pops
	// one semaphore.
	pending map[semKey][]vk.Semaphore

	// retired semaphores and command buffers are destroyed at Close,
	// after the queues drain.
	retired []vk.Semaphore
	cmds    map[pal.QueueID][]vk.CommandBuffer
}

// batch is one in-flight command buffer.
type batch struct {
	queue pal.QueueID
	cmd   vk.CommandBuffer
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return backend.BackendVulkan
}

// Init creates a command pool per distinct queue family.
func (b *Backend) Init() error {
	if b.cfg.Device == nil || len(b.cfg.Queues) == 0 {
		return fmt.Errorf("vulkan: %w: no device configured", backend.ErrBackendNotAvailable)
	}
	if b.cfg.Record == nil {
		return errors.New("vulkan: no record callback configured")
	}
	b.pools = make(map[pal.QueueID]vk.CommandPool, len(b.cfg.Queues))
	b.pending = make(map[semKey][]vk.Semaphore)
	b.cmds = make(map[pal.QueueID][]vk.CommandBuffer)
	for q, info := range b.cfg.Queues {
		var pool vk.CommandPool
		ret := vk.CreateCommandPool(b.cfg.Device, &vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			QueueFamilyIndex: info.Family,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		}, nil, &pool)
		if err := vk.Error(ret); err != nil {
			b.Close()
			return fmt.Errorf("vulkan: create command pool for %s: %w", q, err)
		}
		b.pools[q] = pool
	}
	b.initialized = true
	return nil
}

// Close drains all queues and destroys pools and semaphores.
func (b *Backend) Close() {
	if b.cfg.Device == nil {
		return
	}
	for _, info := range b.cfg.Queues {
		vk.QueueWaitIdle(info.Queue)
	}
	for _, sems := range b.pending {
		b.retired = append(b.retired, sems...)
	}
	for _, sem := range b.retired {
		vk.DestroySemaphore(b.cfg.Device, sem, nil)
	}
	for q, bufs := range b.cmds {
		if len(bufs) > 0 {
			vk.FreeCommandBuffers(b.cfg.Device, b.pools[q], uint32(len(bufs)), bufs)
		}
	}
	for _, pool := range b.pools {
		vk.DestroyCommandPool(b.cfg.Device, pool, nil)
	}
	b.pools = nil
	b.pending = nil
	b.retired = nil
	b.cmds = nil
	b.initialized = false
}

// BeginBatch allocates and begins a primary command buffer.
func (b *Backend) BeginBatch(queue pal.QueueID, label string) (pal.CommandBatch, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	pool, ok := b.pools[queue]
	if !ok {
		return nil, fmt.Errorf("vulkan: no queue configured for %s", queue)
	}
	cmds := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(b.cfg.Device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds)
	if err := vk.Error(ret); err != nil {
		return nil, fmt.Errorf("vulkan: allocate command buffer: %w", err)
	}
	ret = vk.BeginCommandBuffer(cmds[0], &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if err := vk.Error(ret); err != nil {
		vk.FreeCommandBuffers(b.cfg.Device, pool, 1, cmds)
		return nil, fmt.Errorf("vulkan: begin command buffer: %w", err)
	}
	b.cmds[queue] = append(b.cmds[queue], cmds[0])
	return &batch{queue: queue, cmd: cmds[0]}, nil
}

// InsertBarrier records a pipeline barrier. Queue family ownership is
// not transferred; resources stay in concurrent sharing mode.
func (b *Backend) InsertBarrier(cb pal.CommandBatch, barrier pal.Barrier) error {
	bt, err := b.recording(cb)
	if err != nil {
		return err
	}

	var bufs []vk.BufferMemoryBarrier
	for _, tr := range barrier.Buffers {
		buf, err := b.nativeBuffer(tr.Handle)
		if err != nil {
			return err
		}
		bufs = append(bufs, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vkAccess(tr.SrcAccess),
			DstAccessMask:       vkAccess(tr.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buf,
			Offset:              0,
			Size:                vk.DeviceSize(vk.WholeSize),
		})
	}

	var imgs []vk.ImageMemoryBarrier
	for _, tr := range barrier.Textures {
		img, levels, layers, err := b.nativeImage(tr.Handle)
		if err != nil {
			return err
		}
		imgs = append(imgs, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vkAccess(tr.SrcAccess),
			DstAccessMask:       vkAccess(tr.DstAccess),
			OldLayout:           vkLayout(tr.OldLayout),
			NewLayout:           vkLayout(tr.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: aspectForLayout(tr.NewLayout),
				LevelCount: levels,
				LayerCount: layers,
			},
		})
	}

	vk.CmdPipelineBarrier(bt.cmd,
		vkStages(barrier.SrcStage), vkStages(barrier.DstStage), 0,
		0, nil,
		uint32(len(bufs)), bufs,
		uint32(len(imgs)), imgs)
	return nil
}

// RecordOperation delegates to the configured record callback.
func (b *Backend) RecordOperation(cb pal.CommandBatch, op pal.OperationID) error {
	bt, err := b.recording(cb)
	if err != nil {
		return err
	}
	return b.cfg.Record(bt.cmd, op)
}

// Submit ends the command buffer and submits it with its semaphore set.
// Each waiter consumes one binary semaphore from the signal's stack; a
// wait with no pending semaphore refers to work submitted before this
// backend session and degrades to a queue drain on the source.
func (b *Backend) Submit(queue pal.QueueID, cb pal.CommandBatch, waits []pal.SemaphoreWait, signal pal.SemaphoreSignal) error {
	bt, err := b.recording(cb)
	if err != nil {
		return err
	}
	if bt.queue != queue {
		return fmt.Errorf("vulkan: batch began on %s but submitted on %s", bt.queue, queue)
	}
	if ret := vk.EndCommandBuffer(bt.cmd); vk.Error(ret) != nil {
		return fmt.Errorf("vulkan: end command buffer: %w", vk.Error(ret))
	}

	var waitSems []vk.Semaphore
	var waitStages []vk.PipelineStageFlags
	for _, w := range waits {
		key := semKey{queue: w.Queue, value: w.Value}
		stack := b.pending[key]
		if len(stack) == 0 {
			// The signal predates this session; no semaphore exists.
			vk.QueueWaitIdle(b.cfg.Queues[w.Queue].Queue)
			continue
		}
		sem := stack[len(stack)-1]
		b.pending[key] = stack[:len(stack)-1]
		b.retired = append(b.retired, sem)
		waitSems = append(waitSems, sem)
		waitStages = append(waitStages, vkStages(w.Stage))
	}

	var signalSems []vk.Semaphore
	for i := 0; i < signal.Waiters; i++ {
		var sem vk.Semaphore
		ret := vk.CreateSemaphore(b.cfg.Device, &vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}, nil, &sem)
		if err := vk.Error(ret); err != nil {
			return fmt.Errorf("vulkan: create semaphore: %w", err)
		}
		signalSems = append(signalSems, sem)
	}

	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{bt.cmd},
	}
	if len(waitSems) > 0 {
		info.WaitSemaphoreCount = uint32(len(waitSems))
		info.PWaitSemaphores = waitSems
		info.PWaitDstStageMask = waitStages
	}
	if len(signalSems) > 0 {
		info.SignalSemaphoreCount = uint32(len(signalSems))
		info.PSignalSemaphores = signalSems
	}

	ret := vk.QueueSubmit(b.cfg.Queues[queue].Queue, 1, []vk.SubmitInfo{info}, vk.NullFence)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("vulkan: queue submit on %s: %w", queue, err)
	}

	key := semKey{queue: signal.Queue, value: signal.Value}
	b.pending[key] = append(b.pending[key], signalSems...)
	return nil
}

func (b *Backend) recording(cb pal.CommandBatch) (*batch, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	bt, ok := cb.(*batch)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign command batch %T", cb)
	}
	return bt, nil
}

func (b *Backend) nativeBuffer(h pal.Handle) (vk.Buffer, error) {
	res, err := b.cfg.Registry.Resource(h)
	if err != nil {
		return vk.NullBuffer, err
	}
	buf, ok := res.Native.(vk.Buffer)
	if !ok {
		return vk.NullBuffer, fmt.Errorf("vulkan: resource %q native is %T, want vk.Buffer", res.Label, res.Native)
	}
	return buf, nil
}

func (b *Backend) nativeImage(h pal.Handle) (vk.Image, uint32, uint32, error) {
	res, err := b.cfg.Registry.Resource(h)
	if err != nil {
		return vk.NullImage, 0, 0, err
	}
	img, ok := res.Native.(vk.Image)
	if !ok {
		return vk.NullImage, 0, 0, fmt.Errorf("vulkan: resource %q native is %T, want vk.Image", res.Label, res.Native)
	}
	levels, layers := uint32(1), uint32(1)
	if res.Texture.MipLevelCount > 0 {
		levels = res.Texture.MipLevelCount
	}
	if res.Texture.ArrayLayers > 0 {
		layers = res.Texture.ArrayLayers
	}
	return img, levels, layers, nil
}
