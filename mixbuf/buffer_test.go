package mixbuf

import (
	"testing"

	"github.com/doismellburning/ac97mixer/pcm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_NewBuffer_usedFreeInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		channels := rapid.IntRange(1, 8).Draw(t, "channels")
		capacity := rapid.IntRange(1, 4096).Draw(t, "capacity")
		buf, err := NewBuffer("t", channels, 48000, capacity)
		require.NoError(t, err)

		commits := rapid.SliceOfN(rapid.IntRange(0, capacity), 0, 16).Draw(t, "commits")
		for _, c := range commits {
			if buf.Free() < c {
				continue
			}
			require.NoError(t, buf.Commit(c))
			assert.Equal(t, buf.capacity, buf.Used()+buf.Free())

			if buf.Used() > 0 {
				adv := rapid.IntRange(0, buf.Used()).Draw(t, "adv")
				require.NoError(t, buf.Advance(adv))
				assert.Equal(t, buf.capacity, buf.Used()+buf.Free())
			}
		}
	})
}

func Test_Commit_rejectsOverflow(t *testing.T) {
	buf, err := NewBuffer("t", 2, 48000, 10)
	require.NoError(t, err)
	require.NoError(t, buf.Commit(10))
	assert.Error(t, buf.Commit(1))
}

func Test_Advance_rejectsUnderflow(t *testing.T) {
	buf, err := NewBuffer("t", 2, 48000, 10)
	require.NoError(t, err)
	require.NoError(t, buf.Commit(3))
	assert.Error(t, buf.Advance(4))
}

func Test_Drop_emptiesBuffer(t *testing.T) {
	buf, err := NewBuffer("t", 2, 48000, 10)
	require.NoError(t, err)
	require.NoError(t, buf.Commit(5))
	buf.Drop()
	assert.Equal(t, 0, buf.Used())
	assert.Equal(t, buf.Size(), buf.Free())
}

func Test_WriteThenPeek_identityRoundTrip(t *testing.T) {
	props := pcm.Properties{SampleBytes: 2, Signed: true, Channels: 2, FrequencyHz: 48000}
	buf, err := NewBuffer("t", 2, 48000, 64)
	require.NoError(t, err)

	ws := buf.InitWriteState(props)
	ps := buf.InitPeekState(props)

	src := make([]byte, props.FrameSize()*8)
	for i := range src {
		src[i] = byte(i + 1)
	}
	// Force well-formed 16-bit samples: clear to a known pattern instead of
	// raw byte garbage, so round-trip comparison is exact.
	for i := 0; i < 8; i++ {
		v := int16(i * 100)
		off := i * props.FrameSize()
		src[off] = byte(v)
		src[off+1] = byte(v >> 8)
		src[off+2] = byte(v)
		src[off+3] = byte(v >> 8)
	}

	n, err := buf.Write(ws, src, 0, 8)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.NoError(t, buf.Commit(n))

	dst := make([]byte, props.FrameSize()*8)
	consumedSrc, cbDst, err := buf.Peek(0, 8, ps, dst)
	require.NoError(t, err)
	assert.Equal(t, 8, consumedSrc)
	assert.Equal(t, props.FrameSize()*8, cbDst)
	assert.Equal(t, src, dst)
}

func Test_Peek_appliesMute(t *testing.T) {
	props := pcm.Properties{SampleBytes: 2, Signed: true, Channels: 1, FrequencyHz: 48000}
	buf, err := NewBuffer("t", 1, 48000, 16)
	require.NoError(t, err)
	ws := buf.InitWriteState(props)
	ps := buf.InitPeekState(props)

	src := make([]byte, props.FrameSize()*4)
	for i := 0; i < 4; i++ {
		v := int16(1000)
		src[i*2] = byte(v)
		src[i*2+1] = byte(v >> 8)
	}
	n, err := buf.Write(ws, src, 0, 4)
	require.NoError(t, err)
	require.NoError(t, buf.Commit(n))

	vol := pcm.UnityVolume()
	vol.Muted = true
	buf.SetVolume(vol)

	dst := make([]byte, props.FrameSize()*4)
	_, _, err = buf.Peek(0, 4, ps, dst)
	require.NoError(t, err)
	for _, b := range dst {
		assert.EqualValues(t, 0, b)
	}
}

func Test_Blend_saturatesAdd(t *testing.T) {
	props := pcm.Properties{SampleBytes: 4, Signed: true, Channels: 1, FrequencyHz: 48000}
	buf, err := NewBuffer("t", 1, 48000, 4)
	require.NoError(t, err)
	ws := buf.InitWriteState(props)

	maxVal := make([]byte, 4)
	v := int32(1 << 30)
	maxVal[0] = byte(v)
	maxVal[1] = byte(v >> 8)
	maxVal[2] = byte(v >> 16)
	maxVal[3] = byte(v >> 24)

	_, err = buf.Write(ws, maxVal, 0, 1)
	require.NoError(t, err)
	require.NoError(t, buf.Commit(1))

	require.NoError(t, buf.Advance(1))
	require.Equal(t, 0, buf.Used())
	_, err = buf.Write(ws, maxVal, 0, 1)
	require.NoError(t, err)

	_, err = buf.Blend(ws, maxVal, 0, 1)
	require.NoError(t, err)
	require.NoError(t, buf.Commit(1))

	got := buf.frameAt(buf.writeCur - 1)[0]
	assert.Equal(t, int32(1<<31-1), got, "saturating add must clamp to int32 max")
}

func Test_ChannelMap_monoToStereo_duplicates(t *testing.T) {
	m := buildChannelMap(1, 2)
	assert.Equal(t, 0, m[0])
	assert.Equal(t, 0, m[1])
}

func Test_ChannelMap_stereoToMono_firstChannelOnly(t *testing.T) {
	m := buildChannelMap(2, 1)
	assert.Equal(t, 0, m[0])
}
