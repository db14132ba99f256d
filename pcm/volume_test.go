package pcm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_UnityVolume(t *testing.T) {
	var v = UnityVolume()
	assert.False(t, v.Muted)
	for _, c := range v.Channels {
		assert.EqualValues(t, 255, c)
	}
}

func Test_Combine_elementwiseMin(t *testing.T) {
	var a = UnityVolume()
	a.Channels[0] = 100

	var b = UnityVolume()
	b.Channels[0] = 50
	b.Channels[1] = 10

	var c = Combine(a, b)
	assert.EqualValues(t, 50, c.Channels[0])
	assert.EqualValues(t, 10, c.Channels[1])
	assert.EqualValues(t, 255, c.Channels[2])
	assert.False(t, c.Muted)
}

func Test_Combine_muteIsOr(t *testing.T) {
	var a = UnityVolume()
	var b = UnityVolume()
	b.Muted = true

	assert.True(t, Combine(a, b).Muted)
	assert.True(t, Combine(b, a).Muted)
}
