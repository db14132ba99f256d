// Package connector implements the connector-stream lifecycle state
// machine: Create/Destroy/Control, backend-state reconciliation,
// re-initialization, and the output/input Play/Capture dispatch tables
// (spec §4.3). Grounded on the request/accept/override shape of the
// teacher's audio device configuration path (src/audio.go's ACHAN
// parameters merged with command-line overrides), translated from a
// flat global-array config into the per-direction config.DirectionOverride
// the rest of this module already defines.
package connector

import (
	"time"

	"github.com/doismellburning/ac97mixer/config"
	"github.com/doismellburning/ac97mixer/pcm"
)

// ApplyOverride produces the "requested" PCM configuration for a stream
// by layering operator overrides over a backend-reported default (spec
// §4.3.1 step 2).
func ApplyOverride(dflt pcm.Properties, o config.DirectionOverride) pcm.Properties {
	out := dflt
	if o.PCMSampleBit != 0 {
		out.SampleBytes = o.PCMSampleBit / 8
	}
	if o.PCMSampleHz != 0 {
		out.FrequencyHz = o.PCMSampleHz
	}
	switch o.PCMSampleSigned {
	case 0:
		out.Signed = false
	case 1:
		out.Signed = true
	}
	switch o.PCMSampleSwapEndian {
	case 0:
		out.SwapEndian = false
	case 1:
		out.SwapEndian = true
	}
	if o.PCMSampleChannels != 0 {
		out.Channels = o.PCMSampleChannels
	}
	return out
}

// BufferSizing holds the derived buffer/period/pre-buffer sizes from
// spec §4.3.1 step 3.
type BufferSizing struct {
	BufferFrames    int
	PeriodFrames    int
	PreBufferFrames int
}

// DeriveBufferSizing computes buffer/period/pre-buffer sizes: buffer
// defaults to ~300ms unless overridden; period defaults to 1/4 buffer
// but under 1/2 buffer; pre-buffer defaults to 50% of buffer capped at
// 200ms.
func DeriveBufferSizing(props pcm.Properties, o config.DirectionOverride) BufferSizing {
	bufferMs := 300
	if o.BufferSizeMs != 0 {
		bufferMs = o.BufferSizeMs
	}
	bufferFrames := props.MillisToFrames(bufferMs)

	periodFrames := bufferFrames / 4
	if o.PeriodSizeMs != 0 {
		periodFrames = props.MillisToFrames(o.PeriodSizeMs)
	}
	if periodFrames >= bufferFrames/2 {
		periodFrames = bufferFrames/2 - 1
		if periodFrames < 1 {
			periodFrames = 1
		}
	}

	preBufferMs := bufferMs / 2
	if preBufferMs > 200 {
		preBufferMs = 200
	}
	if o.PreBufferSizeMs != config.Unset && o.PreBufferSizeMs != 0 {
		preBufferMs = int(o.PreBufferSizeMs)
	}
	preBufferFrames := props.MillisToFrames(preBufferMs)

	return BufferSizing{
		BufferFrames:    bufferFrames,
		PeriodFrames:    periodFrames,
		PreBufferFrames: preBufferFrames,
	}
}

// PreBufferRingSize computes the pre-buffer ring allocation size in
// bytes, rounded up to 4 KiB (spec §4.3.1 step 10).
func PreBufferRingSize(bufferBytes, preBufferThresholdBytes int) int {
	const eightKiB = 8 * 1024
	const fourKiB = 4 * 1024
	size := bufferBytes
	if alt := preBufferThresholdBytes + eightKiB; alt > size {
		size = alt
	}
	return (size + fourKiB - 1) / fourKiB * fourKiB
}

// reInitGate computes whether a retry attempt is due, given the attempt
// count so far and the time of the previous attempt (spec §4.3.5: "at
// most 5 tries, each gated by tryCount × 1s since the previous try").
func reInitGate(tryCount int, lastAttempt time.Time, now time.Time) bool {
	if tryCount >= 5 {
		return false
	}
	gate := time.Duration(tryCount) * time.Second
	return now.Sub(lastAttempt) >= gate
}
