package pcm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_Validate(t *testing.T) {
	require.NoError(t, Properties{SampleBytes: 2, Signed: true, Channels: 2, FrequencyHz: 48000}.Validate())

	assert.Error(t, Properties{SampleBytes: 3, Channels: 2, FrequencyHz: 48000}.Validate())
	assert.Error(t, Properties{SampleBytes: 2, Channels: 0, FrequencyHz: 48000}.Validate())
	assert.Error(t, Properties{SampleBytes: 2, Channels: 17, FrequencyHz: 48000}.Validate())
	assert.Error(t, Properties{SampleBytes: 2, Channels: 2, FrequencyHz: 5999}.Validate())
	assert.Error(t, Properties{SampleBytes: 2, Channels: 2, FrequencyHz: 768001}.Validate())
}

func Test_FrameSize(t *testing.T) {
	var p = Properties{SampleBytes: 2, Channels: 2, FrequencyHz: 44100}
	assert.Equal(t, 4, p.FrameSize())
	assert.Equal(t, 400, p.FramesToBytes(100))
	assert.Equal(t, 100, p.BytesToFrames(400))
}

func Test_FramesToDuration_roundtrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var hz = rapid.IntRange(MinHz, MaxHz).Draw(t, "hz")
		var p = Internal(2, hz)
		var frames = rapid.IntRange(0, hz*2).Draw(t, "frames")

		var d = p.FramesToDuration(frames)
		var back = p.DurationToFrames(d)

		// Integer division means this is only exact when hz divides
		// frames*1e9 evenly (no truncated nanoseconds); otherwise back may
		// fall one short of frames but never exceed it.
		assert.LessOrEqual(t, back, frames)
		assert.GreaterOrEqual(t, back, frames-1)
	})
}

func Test_MillisToFrames(t *testing.T) {
	var p = Internal(2, 48000)
	assert.Equal(t, 4800, p.MillisToFrames(100))
	assert.Equal(t, 0, p.MillisToFrames(0))
}

func Test_BytesPerSec(t *testing.T) {
	var p = Properties{SampleBytes: 2, Channels: 2, FrequencyHz: 48000}
	assert.Equal(t, 192000, p.BytesPerSec())
}

func Test_DurationToFrames_matchesTime(t *testing.T) {
	var p = Internal(1, 1000)
	assert.Equal(t, 500, p.DurationToFrames(500*time.Millisecond))
}
