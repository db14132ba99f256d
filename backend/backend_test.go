package backend

import (
	"context"
	"testing"
	"time"

	"github.com/doismellburning/ac97mixer/pcm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Null_playDiscardsAndReportsFullWrite(t *testing.T) {
	var n Null
	s, _, res, err := n.StreamCreate(Out, pcm.Internal(2, 48000))
	require.NoError(t, err)
	require.Equal(t, CreateOK, res)

	written, err := n.StreamPlay(s, make([]byte, 128))
	require.NoError(t, err)
	assert.Equal(t, 128, written)
}

func Test_Null_captureReturnsSilence(t *testing.T) {
	var n Null
	s, _, _, _ := n.StreamCreate(In, pcm.Internal(2, 48000))
	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = 0xFF
	}
	_, err := n.StreamCapture(s, buf)
	require.NoError(t, err)
	for _, b := range buf {
		assert.EqualValues(t, 0, b)
	}
}

func Test_Null_doOnWorkerThreadRunsInline(t *testing.T) {
	var n Null
	ran := false
	n.DoOnWorkerThread(context.Background(), nil, func(context.Context) { ran = true })
	assert.True(t, ran)
}

func Test_DrainDeadline_scalesWithOutstandingBytes(t *testing.T) {
	props := pcm.Internal(2, 48000)
	now := time.Unix(1000, 0)
	d := DrainDeadline(now, props.BytesPerSec(), props)
	assert.Equal(t, now.Add(2*time.Second), d)
}
