// Package portaudio implements backend.Backend on top of
// github.com/gordonklaus/portaudio, the host audio collaborator named
// in spec §6. Grounded on the teacher's hardware-boundary shape in
// src/audio.go (a thin Go wrapper around a blocking native audio API,
// with a background callback feeding/draining a ring buffer so the
// native thread never blocks on the mixer's lock), adapted to
// PortAudio's callback-stream model and the ring package already used
// for the DMA pump's device-side hand-off.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"

	"github.com/doismellburning/ac97mixer/backend"
	"github.com/doismellburning/ac97mixer/pcm"
	"github.com/doismellburning/ac97mixer/ring"
)

// Backend drives real host audio hardware via PortAudio. One Backend
// instance owns the shared PortAudio library handle; streams are
// created per connector.Stream via StreamCreate.
type Backend struct {
	log *log.Logger

	mu      sync.Mutex
	streams map[*stream]struct{}
}

// New initializes the PortAudio library and returns a ready Backend.
// Call Close to terminate the library once all streams are destroyed.
func New(logger *log.Logger) (*Backend, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Backend{log: logger, streams: map[*stream]struct{}{}}, nil
}

// Close terminates the PortAudio library. Any streams not already
// destroyed are closed first.
func (b *Backend) Close() error {
	b.mu.Lock()
	for s := range b.streams {
		s.closeNative()
	}
	b.streams = map[*stream]struct{}{}
	b.mu.Unlock()
	return portaudio.Terminate()
}

func (b *Backend) GetConfig() backend.Config {
	return backend.Config{
		Name:          "portaudio",
		Features:      0,
		StreamByteSize: 0,
		MaxStreamsIn:  8,
		MaxStreamsOut: 8,
	}
}

func (b *Backend) GetStatus(dir backend.Direction) backend.Status {
	if _, err := portaudio.DefaultHostApi(); err != nil {
		return backend.StatusNotAttached
	}
	return backend.StatusWorking
}

func (b *Backend) StreamConfigHint(cfg pcm.Properties) {}

// stream is the opaque handle handed back to the connector/mixer. It
// buffers PCM through a ring so the PortAudio native callback, which
// runs on its own real-time thread, never blocks on s.mu or the
// mixer's locks.
type stream struct {
	mu sync.Mutex

	dir   backend.Direction
	props pcm.Properties
	pa    *portaudio.Stream
	ring  *ring.Ring

	state   backend.StreamState
	paused  bool
	pending int
}

const ringCapacityFrames = 1 << 14

func (b *Backend) StreamCreate(dir backend.Direction, cfgReq pcm.Properties) (backend.Stream, pcm.Properties, backend.CreateResult, error) {
	props := cfgReq
	props.SampleBytes = 4
	props.Signed = true
	props.SwapEndian = false
	if err := props.Validate(); err != nil {
		return nil, pcm.Properties{}, backend.CreateCouldNotCreate, err
	}

	s := &stream{
		dir:   dir,
		props: props,
		ring:  ring.New(ringCapacityFrames * props.FrameSize()),
		state: backend.StreamInactive,
	}

	params := portaudio.StreamParameters{ //nolint:exhaustruct
		SampleRate:      float64(props.FrequencyHz),
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}
	if dir == backend.Out {
		host, err := portaudio.DefaultHostApi()
		if err != nil {
			return nil, pcm.Properties{}, backend.CreateCouldNotCreate, err
		}
		params.Output = portaudio.StreamDeviceParameters{ //nolint:exhaustruct
			Device:   host.DefaultOutputDevice,
			Channels: props.Channels,
			Latency:  host.DefaultOutputDevice.DefaultLowOutputLatency,
		}
	} else {
		host, err := portaudio.DefaultHostApi()
		if err != nil {
			return nil, pcm.Properties{}, backend.CreateCouldNotCreate, err
		}
		params.Input = portaudio.StreamDeviceParameters{ //nolint:exhaustruct
			Device:   host.DefaultInputDevice,
			Channels: props.Channels,
			Latency:  host.DefaultInputDevice.DefaultLowInputLatency,
		}
	}

	var (
		pa  *portaudio.Stream
		err error
	)
	if dir == backend.Out {
		pa, err = portaudio.OpenStream(params, s.outputCallback)
	} else {
		pa, err = portaudio.OpenStream(params, s.inputCallback)
	}
	if err != nil {
		return nil, pcm.Properties{}, backend.CreateCouldNotCreate, fmt.Errorf("portaudio: open stream: %w", err)
	}
	s.pa = pa

	b.mu.Lock()
	b.streams[s] = struct{}{}
	b.mu.Unlock()

	return s, props, backend.CreateOK, nil
}

// outputCallback runs on PortAudio's real-time thread: it pulls
// already-encoded bytes out of the ring and fills out, silence-padding
// any shortfall rather than blocking.
func (s *stream) outputCallback(out []int32) {
	buf := make([]byte, len(out)*4)
	got := s.ring.AcquireRead(buf)
	for i := 0; i < len(out); i++ {
		off := i * 4
		if off+4 <= got {
			out[i] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		} else {
			out[i] = 0
		}
	}
}

// inputCallback runs on PortAudio's real-time thread: it encodes in
// into bytes and pushes them into the ring for StreamCapture to drain.
func (s *stream) inputCallback(in []int32) {
	buf := make([]byte, len(in)*4)
	for i, v := range in {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], uint32(v))
	}
	s.ring.AcquireWrite(buf)
}

func (s *stream) closeNative() {
	if s.pa != nil {
		_ = s.pa.Stop()
		_ = s.pa.Close()
	}
}

func (b *Backend) StreamInitAsync(s backend.Stream, destroyed func() bool) error {
	return nil
}

func (b *Backend) StreamDestroy(sh backend.Stream, immediate bool) {
	s := sh.(*stream)
	b.mu.Lock()
	delete(b.streams, s)
	b.mu.Unlock()
	s.closeNative()
}

func (b *Backend) StreamEnable(sh backend.Stream) error {
	s := sh.(*stream)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pa.Start(); err != nil {
		s.state = backend.StreamNotWorking
		return fmt.Errorf("portaudio: start: %w", err)
	}
	s.state = backend.StreamOkay
	s.paused = false
	return nil
}

func (b *Backend) StreamDisable(sh backend.Stream) error {
	s := sh.(*stream)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = backend.StreamInactive
	return s.pa.Stop()
}

func (b *Backend) StreamPause(sh backend.Stream) error {
	s := sh.(*stream)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

func (b *Backend) StreamResume(sh backend.Stream) error {
	s := sh.(*stream)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

func (b *Backend) StreamDrain(sh backend.Stream) error {
	s := sh.(*stream)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = backend.StreamDraining
	return nil
}

func (b *Backend) StreamGetReadable(sh backend.Stream) int {
	s := sh.(*stream)
	return s.ring.Readable()
}

func (b *Backend) StreamGetWritable(sh backend.Stream) int {
	s := sh.(*stream)
	return s.ring.Writable()
}

func (b *Backend) StreamGetPending(sh backend.Stream) int {
	s := sh.(*stream)
	return s.ring.Readable()
}

func (b *Backend) StreamGetState(sh backend.Stream) backend.StreamState {
	s := sh.(*stream)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (b *Backend) StreamPlay(sh backend.Stream, buf []byte) (int, error) {
	s := sh.(*stream)
	return s.ring.AcquireWrite(buf), nil
}

func (b *Backend) StreamCapture(sh backend.Stream, buf []byte) (int, error) {
	s := sh.(*stream)
	return s.ring.AcquireRead(buf), nil
}

func (b *Backend) StreamNotifyDeviceChanged(sh backend.Stream) {}

func (b *Backend) GetDevices(dir backend.Direction) ([]backend.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: enumerate devices: %w", err)
	}

	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return nil, fmt.Errorf("portaudio: default host api: %w", err)
	}

	var out []backend.DeviceInfo
	for i, d := range devices {
		if dir == backend.Out && d.MaxOutputChannels == 0 {
			continue
		}
		if dir == backend.In && d.MaxInputChannels == 0 {
			continue
		}
		isDefault := (dir == backend.Out && d == host.DefaultOutputDevice) ||
			(dir == backend.In && d == host.DefaultInputDevice)
		out = append(out, backend.DeviceInfo{
			ID:        fmt.Sprintf("%d", i),
			Name:      d.Name,
			Direction: dir,
			Default:   isDefault,
		})
	}
	return out, nil
}

func (b *Backend) DoOnWorkerThread(ctx context.Context, sh backend.Stream, fn func(context.Context)) {
	go fn(ctx)
}
