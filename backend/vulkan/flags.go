package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/gogpu/pal"
)

// stageBits maps engine pipeline stages to Vulkan stage flag bits.
var stageBits = map[pal.Stage]vk.PipelineStageFlagBits{
	pal.StageTopOfPipe:             vk.PipelineStageTopOfPipeBit,
	pal.StageDrawIndirect:          vk.PipelineStageDrawIndirectBit,
	pal.StageVertexInput:           vk.PipelineStageVertexInputBit,
	pal.StageVertexShader:          vk.PipelineStageVertexShaderBit,
	pal.StageFragmentShader:        vk.PipelineStageFragmentShaderBit,
	pal.StageEarlyFragmentTests:    vk.PipelineStageEarlyFragmentTestsBit,
	pal.StageLateFragmentTests:     vk.PipelineStageLateFragmentTestsBit,
	pal.StageColorAttachmentOutput: vk.PipelineStageColorAttachmentOutputBit,
	pal.StageComputeShader:         vk.PipelineStageComputeShaderBit,
	pal.StageTransfer:              vk.PipelineStageTransferBit,
	pal.StageHost:                  vk.PipelineStageHostBit,
	pal.StageBottomOfPipe:          vk.PipelineStageBottomOfPipeBit,
}

// accessBits maps engine access kinds to Vulkan access flag bits.
var accessBits = map[pal.Access]vk.AccessFlagBits{
	pal.AccessIndirectRead:         vk.AccessIndirectCommandReadBit,
	pal.AccessIndexRead:            vk.AccessIndexReadBit,
	pal.AccessVertexAttributeRead:  vk.AccessVertexAttributeReadBit,
	pal.AccessUniformRead:          vk.AccessUniformReadBit,
	pal.AccessShaderRead:           vk.AccessShaderReadBit,
	pal.AccessShaderWrite:          vk.AccessShaderWriteBit,
	pal.AccessColorAttachmentRead:  vk.AccessColorAttachmentReadBit,
	pal.AccessColorAttachmentWrite: vk.AccessColorAttachmentWriteBit,
	pal.AccessDepthStencilRead:     vk.AccessDepthStencilAttachmentReadBit,
	pal.AccessDepthStencilWrite:    vk.AccessDepthStencilAttachmentWriteBit,
	pal.AccessTransferRead:         vk.AccessTransferReadBit,
	pal.AccessTransferWrite:        vk.AccessTransferWriteBit,
	pal.AccessHostRead:             vk.AccessHostReadBit,
	pal.AccessHostWrite:            vk.AccessHostWriteBit,
	pal.AccessMemoryRead:           vk.AccessMemoryReadBit,
	pal.AccessMemoryWrite:          vk.AccessMemoryWriteBit,
}

// layouts maps engine image layouts to Vulkan image layouts.
var layouts = map[pal.Layout]vk.ImageLayout{
	pal.LayoutUndefined:              vk.ImageLayoutUndefined,
	pal.LayoutGeneral:                vk.ImageLayoutGeneral,
	pal.LayoutColorAttachment:        vk.ImageLayoutColorAttachmentOptimal,
	pal.LayoutDepthStencilAttachment: vk.ImageLayoutDepthStencilAttachmentOptimal,
	pal.LayoutDepthStencilReadOnly:   vk.ImageLayoutDepthStencilReadOnlyOptimal,
	pal.LayoutShaderReadOnly:         vk.ImageLayoutShaderReadOnlyOptimal,
	pal.LayoutTransferSrc:            vk.ImageLayoutTransferSrcOptimal,
	pal.LayoutTransferDst:            vk.ImageLayoutTransferDstOptimal,
	pal.LayoutPresent:                vk.ImageLayoutPresentSrc,
}

// vkStages converts a stage mask, widening unknown bits to all commands.
// An empty source mask becomes top-of-pipe, matching the planner's
// convention for barriers with no execution dependency on the source.
func vkStages(s pal.Stage) vk.PipelineStageFlags {
	if s == 0 {
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if s == pal.StageAllCommands {
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	var out vk.PipelineStageFlags
	for bit, flag := range stageBits {
		if s&bit != 0 {
			out |= vk.PipelineStageFlags(flag)
			s &^= bit
		}
	}
	if s != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	return out
}

// vkAccess converts an access mask. Unknown bits widen to memory
// read and write.
func vkAccess(a pal.Access) vk.AccessFlags {
	var out vk.AccessFlags
	for bit, flag := range accessBits {
		if a&bit != 0 {
			out |= vk.AccessFlags(flag)
			a &^= bit
		}
	}
	if a != 0 {
		out |= vk.AccessFlags(vk.AccessMemoryReadBit) | vk.AccessFlags(vk.AccessMemoryWriteBit)
	}
	return out
}

// vkLayout converts an image layout. Unknown layouts fall back to
// general, which is always valid if never optimal.
func vkLayout(l pal.Layout) vk.ImageLayout {
	if out, ok := layouts[l]; ok {
		return out
	}
	return vk.ImageLayoutGeneral
}

// aspectForLayout picks the subresource aspect from the target layout.
// Depth-stencil layouts imply depth and stencil aspects; everything
// else is color.
func aspectForLayout(l pal.Layout) vk.ImageAspectFlags {
	switch l {
	case pal.LayoutDepthStencilAttachment, pal.LayoutDepthStencilReadOnly:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}
