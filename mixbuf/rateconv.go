package mixbuf

import "github.com/doismellburning/ac97mixer/pcm"

// rateKind selects the resampling hot path at state-init time instead of
// an indirect function-pointer call (spec §9 design notes).
type rateKind int

const (
	rateIdentity rateKind = iota
	rateUp
	rateDown
	rateGeneric
)

// q32One is 1.0 in the Q32.32 fixed-point fractional position used to
// track the destination offset across calls (spec §4.1: "a fractional
// destination offset tracked as 64-bit").
const q32One = uint64(1) << 32

// rateConv is the rate-conversion sub-state shared by PeekState and
// WriteState: it tracks a source/destination Hz pair, the selected
// conversion kind, the fixed-point position, and one sample of history
// per channel so interpolation stays phase-continuous across calls.
type rateConv struct {
	kind       rateKind
	srcHz      int
	dstHz      int
	step       uint64 // Q32.32 source-frames-per-destination-frame
	fracPos    uint64 // Q32.32, in [0, step) conceptually
	lastSrc    [pcm.MaxChannels]int32
	channels   int // channel count in the domain resampling operates over
}

func newRateConv(srcHz, dstHz, channels int) rateConv {
	var rc = rateConv{srcHz: srcHz, dstHz: dstHz, channels: channels}
	switch {
	case srcHz == dstHz:
		rc.kind = rateIdentity
	case dstHz > srcHz:
		rc.kind = rateUp
	default:
		rc.kind = rateDown
	}
	if rc.kind != rateIdentity {
		rc.step = (uint64(srcHz) << 32) / uint64(dstHz)
	}
	return rc
}

// resample produces up to maxDst destination frames from src (channels
// interleaved int32, channels-per-frame == rc.channels), consuming as
// many whole source frames as needed. It returns the number of source
// frames consumed and destination frames produced. The identity path
// (srcHz == dstHz) is a straight copy with no interpolation lag, exactly
// matching spec §8 test 9's bit-exact identity requirement.
func (rc *rateConv) resample(src []int32, maxSrcFrames, maxDstFrames int, dst []int32) (consumedSrc, producedDst int) {
	ch := rc.channels

	if rc.kind == rateIdentity {
		n := maxSrcFrames
		if maxDstFrames < n {
			n = maxDstFrames
		}
		copy(dst[:n*ch], src[:n*ch])
		if n > 0 {
			copy(rc.lastSrc[:ch], src[(n-1)*ch:n*ch])
		}
		return n, n
	}

	srcIdx := 0
	pos := rc.fracPos

	for producedDst < maxDstFrames {
		if srcIdx >= maxSrcFrames {
			break
		}

		var v0 [pcm.MaxChannels]int32
		if srcIdx == 0 {
			v0 = rc.lastSrc
		} else {
			copy(v0[:ch], src[(srcIdx-1)*ch:srcIdx*ch])
		}
		v1 := src[srcIdx*ch : srcIdx*ch+ch]

		frac := int64(pos & (q32One - 1))
		for c := 0; c < ch; c++ {
			delta := int64(v1[c]) - int64(v0[c])
			dst[producedDst*ch+c] = int32(int64(v0[c]) + (delta*frac)>>32)
		}
		producedDst++

		pos += rc.step
		for pos >= q32One {
			pos -= q32One
			srcIdx++
		}
	}

	if srcIdx > maxSrcFrames {
		srcIdx = maxSrcFrames
	}
	if srcIdx > 0 {
		copy(rc.lastSrc[:ch], src[(srcIdx-1)*ch:srcIdx*ch])
	}
	rc.fracPos = pos

	return srcIdx, producedDst
}

// blendGapAdvance advances the rate state as if cFrames of silence had
// been blended, without the caller needing to supply any sample data —
// used to keep input resamplers phase-aligned when a source stream is
// silent (spec §4.1 BlendGap). It reuses resample against an all-zero
// source so the fractional position and last-sample history evolve
// exactly as they would for a genuinely silent source.
func (rc *rateConv) blendGapAdvance(cFrames int) {
	if cFrames <= 0 {
		return
	}
	zeros := make([]int32, cFrames*rc.channels)
	// Upsampling can need many more destination frames than source
	// frames to fully consume the source; size generously so the loop
	// below always drains every zero frame in one pass.
	maxDst := cFrames*16 + 16
	scratch := make([]int32, maxDst*rc.channels)
	consumed, _ := rc.resample(zeros, cFrames, maxDst, scratch)
	if consumed < cFrames {
		// Extremely high ratios: finish the remainder iteratively.
		remaining := cFrames - consumed
		for remaining > 0 {
			z := make([]int32, remaining*rc.channels)
			s := make([]int32, (remaining*16+16)*rc.channels)
			c, _ := rc.resample(z, remaining, remaining*16+16, s)
			if c == 0 {
				break
			}
			remaining -= c
		}
	}
}
