package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadYAML_nested(t *testing.T) {
	var data = []byte(`
DriverName: pulse
Out:
  PCMSampleHz: 44100
  PCMSampleChannels: 2
In:
  PCMSampleHz: 8000
`)
	var c, err = LoadYAML(data)
	require.NoError(t, err)
	assert.Equal(t, "pulse", c.DriverName)
	assert.Equal(t, 44100, c.Out.PCMSampleHz)
	assert.Equal(t, 2, c.Out.PCMSampleChannels)
	assert.Equal(t, 8000, c.In.PCMSampleHz)
}

func Test_LoadYAML_legacyFlatKeys(t *testing.T) {
	var data = []byte(`
PCMSampleHzOut: 48000
PCMSampleHzIn: 16000
BufferSizeMsOut: 300
`)
	var c, err = LoadYAML(data)
	require.NoError(t, err)
	assert.Equal(t, 48000, c.Out.PCMSampleHz)
	assert.Equal(t, 16000, c.In.PCMSampleHz)
	assert.Equal(t, 300, c.Out.BufferSizeMs)
}

func Test_Default_preBufferUnset(t *testing.T) {
	var c = Default()
	assert.EqualValues(t, Unset, c.Out.PreBufferSizeMs)
	assert.True(t, c.InputEnabled)
	assert.True(t, c.OutputEnabled)
}
