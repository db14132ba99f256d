// Package mixbuf implements the sink-owned mix buffer: a fixed-size ring
// of interleaved 32-bit signed frames at the sink's rate/channel layout,
// with peek/write/blend/advance primitives and per-channel volume (spec
// §3, §4.1). Grounded on AudioMixBuffer.{h,cpp} in
// _examples/original_source, restructured around owned slices instead of
// cyclic pointers (spec §9 design notes).
package mixbuf

import (
	"fmt"

	"github.com/doismellburning/ac97mixer/pcm"
)

// Buffer is the sink's intermediate ring of interleaved int32 samples.
type Buffer struct {
	name     string
	props    pcm.Properties // always signed 32-bit internally
	capacity int            // frames
	data     []int32        // capacity * props.Channels

	readCur  int
	writeCur int
	used     int

	volume pcm.Volume
}

// NewBuffer allocates a Buffer named name with the given channel count,
// sample rate and frame capacity (spec §4.1 Init).
func NewBuffer(name string, channels, hz, capacityFrames int) (*Buffer, error) {
	if channels <= 0 || channels > pcm.MaxChannels {
		return nil, fmt.Errorf("mixbuf: invalid channel count %d", channels)
	}
	if capacityFrames <= 0 {
		return nil, fmt.Errorf("mixbuf: invalid capacity %d", capacityFrames)
	}
	return &Buffer{
		name:     name,
		props:    pcm.Internal(channels, hz),
		capacity: capacityFrames,
		data:     make([]int32, capacityFrames*channels),
		volume:   pcm.UnityVolume(),
	}, nil
}

func (b *Buffer) Name() string           { return b.name }
func (b *Buffer) Props() pcm.Properties  { return b.props }
func (b *Buffer) Size() int              { return b.capacity }
func (b *Buffer) Used() int              { return b.used }
func (b *Buffer) Free() int              { return b.capacity - b.used }
func (b *Buffer) Readable() int          { return b.used }
func (b *Buffer) Writable() int          { return b.Free() }
func (b *Buffer) SetVolume(v pcm.Volume) { b.volume = v }
func (b *Buffer) Volume() pcm.Volume     { return b.volume }

// Drop empties the buffer, discarding all content (spec §4.1 Drop).
func (b *Buffer) Drop() {
	b.used = 0
	b.writeCur = b.readCur
}

// InitPeekState builds a decoder from the buffer's internal format to the
// caller's external props (spec §4.1 InitPeekState).
func (b *Buffer) InitPeekState(external pcm.Properties) *PeekState {
	return newPeekState(b.props, external)
}

// InitWriteState builds an encoder from the caller's external props into
// the buffer's internal format (spec §4.1 InitWriteState).
func (b *Buffer) InitWriteState(external pcm.Properties) *WriteState {
	return newWriteState(b.props, external)
}

func (b *Buffer) frameAt(idx int) []int32 {
	pos := idx % b.capacity
	ch := b.props.Channels
	return b.data[pos*ch : pos*ch+ch]
}

// readInternal copies up to n frames starting at (readCur+off)%capacity
// into a freshly-allocated contiguous int32 slice (channel-interleaved),
// handling ring wraparound.
func (b *Buffer) readInternal(off, n int) []int32 {
	ch := b.props.Channels
	out := make([]int32, n*ch)
	for i := 0; i < n; i++ {
		copy(out[i*ch:i*ch+ch], b.frameAt(b.readCur+off+i))
	}
	return out
}

// writeInternal writes n frames (channel-interleaved int32) to
// (writeCur+off)%capacity, handling ring wraparound.
func (b *Buffer) writeInternal(off int, frames []int32, n int) {
	ch := b.props.Channels
	for i := 0; i < n; i++ {
		copy(b.frameAt(b.writeCur+off+i), frames[i*ch:i*ch+ch])
	}
}

// Peek decodes up to cMaxSrc source frames starting at offSrcFrame (in
// source/internal frames, relative to the read cursor) into dst, applying
// the buffer's current volume. It never advances the read cursor (spec
// §4.1 Peek).
func (b *Buffer) Peek(offSrcFrame, cMaxSrc int, state *PeekState, dst []byte) (cPeekedSrc, cbPeekedDst int, err error) {
	avail := b.used - offSrcFrame
	if avail < 0 {
		avail = 0
	}
	maxSrc := cMaxSrc
	if avail < maxSrc {
		maxSrc = avail
	}
	if maxSrc <= 0 {
		return 0, 0, nil
	}

	src := b.readInternal(offSrcFrame, maxSrc)
	applyVolume(src, maxSrc, b.props.Channels, b.volume)

	dstFrameSize := state.externalPCM.FrameSize()
	maxDstFrames := len(dst) / dstFrameSize
	if maxDstFrames <= 0 {
		return 0, 0, nil
	}

	mapped := make([]int32, maxSrc*state.dstChannels)
	applyChannelMapInt32(src, maxSrc, state.srcChannels, mapped, state.dstChannels, state.channelMap)

	resampled := make([]int32, maxDstFrames*state.dstChannels)
	consumedSrc, producedDst := state.rate.resample(mapped, maxSrc, maxDstFrames, resampled)

	for i := 0; i < producedDst; i++ {
		for c := 0; c < state.dstChannels; c++ {
			v := resampled[i*state.dstChannels+c]
			off := i*dstFrameSize + c*state.externalPCM.SampleBytes
			if state.channelMap[c] == ChanZero {
				for k := 0; k < state.externalPCM.SampleBytes; k++ {
					dst[off+k] = 0
				}
			} else {
				encodeSample(dst[off:off+state.externalPCM.SampleBytes], state.externalPCM, v)
			}
		}
	}

	return consumedSrc, producedDst * dstFrameSize, nil
}

// Advance moves the read cursor forward by cFrames, decreasing used. It
// must not exceed used (spec §4.1 Advance).
func (b *Buffer) Advance(cFrames int) error {
	if cFrames > b.used {
		return fmt.Errorf("mixbuf: Advance(%d) exceeds used %d", cFrames, b.used)
	}
	b.readCur = (b.readCur + cFrames) % b.capacity
	b.used -= cFrames
	return nil
}

// Write decodes src (external encoding) and assigns it at offDstFrame
// (relative to the write cursor), overwriting any existing content. It
// does not advance the write cursor (spec §4.1 Write).
func (b *Buffer) Write(state *WriteState, src []byte, offDstFrame, cMaxDst int) (cWritten int, err error) {
	mapped, n, err := b.decodeExternal(state, src, cMaxDst)
	if err != nil {
		return 0, err
	}
	b.writeInternal(offDstFrame, mapped, n)
	return n, nil
}

// Blend decodes src and saturating-adds it into existing content at
// offDstFrame, used for input multi-stream mixing (spec §4.1 Blend).
func (b *Buffer) Blend(state *WriteState, src []byte, offDstFrame, cMaxDst int) (cWritten int, err error) {
	mapped, n, err := b.decodeExternal(state, src, cMaxDst)
	if err != nil {
		return 0, err
	}
	ch := b.props.Channels
	for i := 0; i < n; i++ {
		existing := b.frameAt(b.writeCur + offDstFrame + i)
		for c := 0; c < ch; c++ {
			existing[c] = saturatingAdd(existing[c], mapped[i*ch+c])
		}
	}
	return n, nil
}

// BlendGap advances state's rate-conversion phase as if cFrames of
// silence had been blended, without touching any samples (spec §4.1
// BlendGap).
func (b *Buffer) BlendGap(state *WriteState, cFrames int) {
	state.rate.blendGapAdvance(cFrames)
}

// Silence zero-fills cFrames of the buffer's content starting at
// offDstFrame (relative to the write cursor) — used by the sink's input
// update when an assigning stream under-delivers (spec §4.2.2).
func (b *Buffer) Silence(offDstFrame, cFrames int) {
	ch := b.props.Channels
	for i := 0; i < cFrames; i++ {
		f := b.frameAt(b.writeCur + offDstFrame + i)
		for c := 0; c < ch; c++ {
			f[c] = 0
		}
	}
}

// Commit advances the write cursor by cFrames and increases used. It
// must not cause used to exceed capacity (spec §4.1 Commit).
func (b *Buffer) Commit(cFrames int) error {
	if b.used+cFrames > b.capacity {
		return fmt.Errorf("mixbuf: Commit(%d) would overflow capacity %d (used=%d)", cFrames, b.capacity, b.used)
	}
	b.writeCur = (b.writeCur + cFrames) % b.capacity
	b.used += cFrames
	return nil
}

func (b *Buffer) decodeExternal(state *WriteState, src []byte, cMaxDst int) ([]int32, int, error) {
	srcFrameSize := state.externalPCM.FrameSize()
	if srcFrameSize <= 0 {
		return nil, 0, fmt.Errorf("mixbuf: invalid external frame size")
	}
	maxSrcFrames := len(src) / srcFrameSize

	decoded := make([]int32, maxSrcFrames*state.srcChannels)
	for i := 0; i < maxSrcFrames; i++ {
		for c := 0; c < state.srcChannels; c++ {
			off := i*srcFrameSize + c*state.externalPCM.SampleBytes
			decoded[i*state.srcChannels+c] = decodeSample(src[off:off+state.externalPCM.SampleBytes], state.externalPCM)
		}
	}

	maxDst := cMaxDst
	if b.capacity < maxDst {
		maxDst = b.capacity
	}

	mapped := make([]int32, maxSrcFrames*state.dstChannels)
	applyChannelMapInt32(decoded, maxSrcFrames, state.srcChannels, mapped, state.dstChannels, state.channelMap)

	resampled := make([]int32, maxDst*state.dstChannels)
	_, produced := state.rate.resample(mapped, maxSrcFrames, maxDst, resampled)

	return resampled, produced, nil
}

func applyChannelMapInt32(src []int32, frames, srcChannels int, dst []int32, dstChannels int, m [pcm.MaxChannels]int) {
	for i := 0; i < frames; i++ {
		for c := 0; c < dstChannels; c++ {
			srcIdx := m[c]
			switch srcIdx {
			case ChanZero, ChanSilenceMidpoint:
				dst[i*dstChannels+c] = 0
			default:
				if srcIdx >= 0 && srcIdx < srcChannels {
					dst[i*dstChannels+c] = src[i*srcChannels+srcIdx]
				} else {
					dst[i*dstChannels+c] = 0
				}
			}
		}
	}
}

func applyVolume(frames []int32, n, channels int, v pcm.Volume) {
	if v.Muted {
		for i := range frames {
			frames[i] = 0
		}
		return
	}
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			idx := i*channels + c
			gain := int64(v.Channels[c])
			frames[idx] = int32((int64(frames[idx]) * gain) / 255)
		}
	}
}

func saturatingAdd(a, b int32) int32 {
	sum := int64(a) + int64(b)
	switch {
	case sum > int64(^uint32(0)>>1):
		return int32(^uint32(0) >> 1)
	case sum < int64(-1)<<31:
		return int32(int64(-1) << 31)
	default:
		return int32(sum)
	}
}
