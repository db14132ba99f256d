// Package pcm holds the value objects shared by every layer of the
// mixing core: PCM stream properties and per-channel volume.
package pcm

import (
	"fmt"
	"time"
)

// Properties describes the layout of a PCM stream: sample size, signedness,
// endianness, channel count and sample rate. It carries no buffers or
// cursors of its own; mixbuf.Buffer and each stream bound to a
// mixer.Sink hold one.
type Properties struct {
	SampleBytes  int  // 1, 2, 4 or 8
	Signed       bool
	SwapEndian   bool
	Channels     int // <= MaxChannels
	FrequencyHz  int // 6000..768000
}

// MaxChannels is the largest channel count a channel map can address.
const MaxChannels = 16

// MinHz and MaxHz bound a valid Properties.FrequencyHz.
const (
	MinHz = 6000
	MaxHz = 768000
)

// Internal is the PCM layout mix buffers always use internally: signed
// 32-bit samples, no endian swap (host order).
func Internal(channels, hz int) Properties {
	return Properties{SampleBytes: 4, Signed: true, SwapEndian: false, Channels: channels, FrequencyHz: hz}
}

// Validate rejects a Properties value outside the ranges spec'd in §3/§6.
// Grounded on the original's audioHlpStreamCfgIsValid: centralize the
// checks so Create and config-override application share one path.
func (p Properties) Validate() error {
	switch p.SampleBytes {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("pcm: invalid sample size %d bytes", p.SampleBytes)
	}
	if p.Channels <= 0 || p.Channels > MaxChannels {
		return fmt.Errorf("pcm: invalid channel count %d", p.Channels)
	}
	if p.FrequencyHz < MinHz || p.FrequencyHz > MaxHz {
		return fmt.Errorf("pcm: sample rate %d Hz out of range [%d,%d]", p.FrequencyHz, MinHz, MaxHz)
	}
	return nil
}

// FrameSize is the number of bytes for one sample of every channel.
func (p Properties) FrameSize() int {
	return p.SampleBytes * p.Channels
}

// FramesToBytes converts a frame count to a byte count at this layout.
func (p Properties) FramesToBytes(frames int) int {
	return frames * p.FrameSize()
}

// BytesToFrames converts a byte count to a (truncated) frame count.
func (p Properties) BytesToFrames(bytes int) int {
	fs := p.FrameSize()
	if fs == 0 {
		return 0
	}
	return bytes / fs
}

// FramesToDuration converts a frame count to wall-clock duration at this
// sample rate.
func (p Properties) FramesToDuration(frames int) time.Duration {
	if p.FrequencyHz == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(p.FrequencyHz)
}

// DurationToFrames converts a duration to a frame count at this sample rate,
// rounding down.
func (p Properties) DurationToFrames(d time.Duration) int {
	return int(d * time.Duration(p.FrequencyHz) / time.Second)
}

// MillisToFrames converts whole milliseconds to a frame count.
func (p Properties) MillisToFrames(ms int) int {
	return p.DurationToFrames(time.Duration(ms) * time.Millisecond)
}

// BytesPerSec is the nominal byte rate of a stream at this layout,
// used for drain-deadline arithmetic (spec §4.2.4 / §5).
func (p Properties) BytesPerSec() int {
	return p.FrequencyHz * p.FrameSize()
}

func (p Properties) String() string {
	endian := "le"
	if p.SwapEndian {
		endian = "be"
	}
	sign := "u"
	if p.Signed {
		sign = "s"
	}
	return fmt.Sprintf("%dch/%dHz/%d%s-%s", p.Channels, p.FrequencyHz, p.SampleBytes*8, sign, endian)
}
