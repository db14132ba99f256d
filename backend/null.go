package backend

import (
	"context"

	"github.com/doismellburning/ac97mixer/pcm"
)

// Null is the "dead letter" backend a stream is demoted to after an
// unrecoverable BackendInitFailed (spec §7): it discards everything
// written to it and returns silence on capture, so the guest-visible
// constant-rate DMA view is preserved even though no real hardware
// is behind it. Grounded on the same discard-on-failure shape the
// original's DrvAudio.cpp uses for a stream it cannot recover, adapted
// here as an always-available collaborator instead of a special-cased
// branch in the stream code.
type Null struct{}

type nullStream struct {
	props pcm.Properties
}

func (Null) GetConfig() Config {
	return Config{Name: "null", StreamByteSize: 0, MaxStreamsIn: 1 << 20, MaxStreamsOut: 1 << 20}
}

func (Null) GetStatus(Direction) Status { return StatusWorking }

func (Null) StreamConfigHint(pcm.Properties) {}

func (Null) StreamCreate(_ Direction, cfgReq pcm.Properties) (Stream, pcm.Properties, CreateResult, error) {
	return &nullStream{props: cfgReq}, cfgReq, CreateOK, nil
}

func (Null) StreamInitAsync(Stream, func() bool) error { return nil }
func (Null) StreamDestroy(Stream, bool)                {}

func (Null) StreamEnable(Stream) error  { return nil }
func (Null) StreamDisable(Stream) error { return nil }
func (Null) StreamPause(Stream) error   { return nil }
func (Null) StreamResume(Stream) error  { return nil }
func (Null) StreamDrain(Stream) error   { return nil }

func (Null) StreamGetReadable(Stream) int       { return 1 << 20 }
func (Null) StreamGetWritable(Stream) int       { return 1 << 20 }
func (Null) StreamGetPending(Stream) int        { return 0 }
func (Null) StreamGetState(Stream) StreamState  { return StreamOkay }

func (Null) StreamPlay(_ Stream, buf []byte) (int, error) { return len(buf), nil }

func (Null) StreamCapture(_ Stream, buf []byte) (int, error) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

func (Null) StreamNotifyDeviceChanged(Stream) {}

func (Null) GetDevices(Direction) ([]DeviceInfo, error) { return nil, nil }

func (Null) DoOnWorkerThread(ctx context.Context, _ Stream, fn func(context.Context)) {
	fn(ctx)
}
