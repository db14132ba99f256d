package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/ac97mixer/backend"
	"github.com/doismellburning/ac97mixer/config"
	"github.com/doismellburning/ac97mixer/pcm"
)

type fakeBackend struct {
	cfg          backend.Config
	state        backend.StreamState
	writable     int
	readable     int
	createResult backend.CreateResult
	createErr    error
}

type fakeBackendStream struct{ props pcm.Properties }

func (f *fakeBackend) GetConfig() backend.Config          { return f.cfg }
func (f *fakeBackend) GetStatus(backend.Direction) backend.Status { return backend.StatusWorking }
func (f *fakeBackend) StreamConfigHint(pcm.Properties)     {}

func (f *fakeBackend) StreamCreate(dir backend.Direction, cfgReq pcm.Properties) (backend.Stream, pcm.Properties, backend.CreateResult, error) {
	if f.createErr != nil {
		return nil, pcm.Properties{}, backend.CreateCouldNotCreate, f.createErr
	}
	res := f.createResult
	if res == 0 {
		res = backend.CreateOK
	}
	return &fakeBackendStream{props: cfgReq}, cfgReq, res, nil
}
func (f *fakeBackend) StreamInitAsync(backend.Stream, func() bool) error { return nil }
func (f *fakeBackend) StreamDestroy(backend.Stream, bool)                {}
func (f *fakeBackend) StreamEnable(backend.Stream) error                 { return nil }
func (f *fakeBackend) StreamDisable(backend.Stream) error                { return nil }
func (f *fakeBackend) StreamPause(backend.Stream) error                  { return nil }
func (f *fakeBackend) StreamResume(backend.Stream) error                 { return nil }
func (f *fakeBackend) StreamDrain(backend.Stream) error                  { return nil }
func (f *fakeBackend) StreamGetReadable(backend.Stream) int              { return f.readable }
func (f *fakeBackend) StreamGetWritable(backend.Stream) int              { return f.writable }
func (f *fakeBackend) StreamGetPending(backend.Stream) int               { return 0 }
func (f *fakeBackend) StreamGetState(backend.Stream) backend.StreamState { return f.state }
func (f *fakeBackend) StreamPlay(_ backend.Stream, buf []byte) (int, error) {
	return len(buf), nil
}
func (f *fakeBackend) StreamCapture(_ backend.Stream, buf []byte) (int, error) {
	return len(buf), nil
}
func (f *fakeBackend) StreamNotifyDeviceChanged(backend.Stream) {}
func (f *fakeBackend) GetDevices(backend.Direction) ([]backend.DeviceInfo, error) { return nil, nil }
func (f *fakeBackend) DoOnWorkerThread(ctx context.Context, _ backend.Stream, fn func(context.Context)) {
	fn(ctx)
}

func newTestManager(be *fakeBackend) *Manager {
	return NewManager(be, config.Default(), 4, 4, nil)
}

func Test_CreateStream_assignsSequentialNames(t *testing.T) {
	be := &fakeBackend{state: backend.StreamOkay, writable: 4096}
	m := newTestManager(be)

	s1, _, err := m.CreateStream("pa", backend.Out, pcm.Internal(2, 48000))
	require.NoError(t, err)
	s2, _, err := m.CreateStream("pa", backend.Out, pcm.Internal(2, 48000))
	require.NoError(t, err)

	assert.Equal(t, "pa:0", s1.Name())
	assert.Equal(t, "pa:1", s2.Name())
}

func Test_CreateStream_noFreeSlots(t *testing.T) {
	be := &fakeBackend{state: backend.StreamOkay, writable: 4096}
	m := NewManager(be, config.Default(), 0, 0, nil)

	_, _, err := m.CreateStream("pa", backend.Out, pcm.Internal(2, 48000))
	require.Error(t, err)
}

func Test_Stream_enableDisable(t *testing.T) {
	be := &fakeBackend{state: backend.StreamOkay, writable: 4096}
	m := newTestManager(be)
	s, _, err := m.CreateStream("pa", backend.Out, pcm.Internal(2, 48000))
	require.NoError(t, err)

	require.NoError(t, s.Control("ENABLE"))
	assert.True(t, s.Enabled())
	assert.Equal(t, Play, s.playState)

	require.NoError(t, s.Control("DISABLE"))
	assert.False(t, s.Enabled())
}

func Test_Stream_playDiscardsWhenNotReady(t *testing.T) {
	be := &fakeBackend{state: backend.StreamOkay, writable: 4096}
	m := newTestManager(be)
	s, _, err := m.CreateStream("pa", backend.Out, pcm.Internal(2, 48000))
	require.NoError(t, err)

	n, err := s.Play(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 64, n)
}

func Test_Stream_captureFailsWhenNotReady(t *testing.T) {
	be := &fakeBackend{state: backend.StreamOkay, readable: 4096}
	m := newTestManager(be)
	s, _, err := m.CreateStream("pa", backend.In, pcm.Internal(2, 48000))
	require.NoError(t, err)

	_, err = s.Capture(make([]byte, 64))
	require.Error(t, err)
}

func Test_Stream_prebufferFillsUntilThreshold(t *testing.T) {
	be := &fakeBackend{state: backend.StreamInitializing, writable: 4096}
	m := newTestManager(be)
	s, _, err := m.CreateStream("pa", backend.Out, pcm.Internal(2, 48000))
	require.NoError(t, err)
	require.NoError(t, s.Control("ENABLE"))
	assert.Equal(t, Prebuf, s.playState)

	_, err = s.Play(make([]byte, 32))
	require.NoError(t, err)
	assert.Equal(t, Prebuf, s.playState)
}

func Test_ApplyOverride_appliesSampleRateOverride(t *testing.T) {
	o := config.DirectionOverride{PCMSampleHz: 44100, PCMSampleSigned: 255, PCMSampleSwapEndian: 255}
	out := ApplyOverride(pcm.Internal(2, 48000), o)
	assert.Equal(t, 44100, out.FrequencyHz)
}

func Test_DeriveBufferSizing_periodUnderHalfBuffer(t *testing.T) {
	props := pcm.Internal(2, 48000)
	sizing := DeriveBufferSizing(props, config.DirectionOverride{})
	assert.Less(t, sizing.PeriodFrames, sizing.BufferFrames/2)
}

func Test_PreBufferRing_overwritesOldestWhenFull(t *testing.T) {
	r := newPreBufferRing(4)
	r.Write([]byte{1, 2, 3})
	r.Write([]byte{4, 5})
	out := make([]byte, 4)
	n := r.Read(out)
	require.Equal(t, 4, n)
	assert.Equal(t, []byte{2, 3, 4, 5}, out)
}

func Test_ReInit_throttlesRetries(t *testing.T) {
	assert.True(t, reInitGate(0, time.Time{}, time.Now()))
	now := time.Now()
	assert.False(t, reInitGate(2, now, now.Add(500*time.Millisecond)))
	assert.True(t, reInitGate(2, now, now.Add(3*time.Second)))
	assert.False(t, reInitGate(5, now, now.Add(time.Hour)))
}
