// Package backend defines the contract a host audio collaborator (ALSA,
// PortAudio, a test double, …) must satisfy to be driven by a mixer sink
// and connector stream (spec §6). Grounded on the shape of the teacher's
// own hardware collaborator boundary in src/audio.go (CGo ALSA calls
// wrapped behind Go functions returning (n int, err error)), generalized
// to an interface so the core never depends on a concrete device API.
package backend

import (
	"context"
	"time"

	"github.com/doismellburning/ac97mixer/pcm"
)

// Direction is a stream's data flow relative to the backend device.
type Direction int

const (
	Out Direction = iota
	In
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Feature flags reported by GetConfig (spec §6).
type Feature int

const (
	FeatureAsyncHint Feature = 1 << iota
	FeatureAsyncStreamDestroy
)

// Config describes what a backend implementation supports.
type Config struct {
	Name            string
	Features        Feature
	StreamByteSize  int
	MaxStreamsIn    int
	MaxStreamsOut   int
}

func (c Config) Has(f Feature) bool { return c.Features&f != 0 }

// Status is the backend's overall attach state for a direction.
type Status int

const (
	StatusNotAttached Status = iota
	StatusWorking
)

// StreamState is a backend stream's current operating condition (spec
// §6 StreamGetState).
type StreamState int

const (
	StreamInitializing StreamState = iota
	StreamNotWorking
	StreamInactive
	StreamOkay
	StreamDraining
)

func (s StreamState) String() string {
	switch s {
	case StreamInitializing:
		return "initializing"
	case StreamNotWorking:
		return "not-working"
	case StreamInactive:
		return "inactive"
	case StreamOkay:
		return "okay"
	case StreamDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// CreateResult is returned by StreamCreate.
type CreateResult int

const (
	CreateOK CreateResult = iota
	CreateAsyncInitNeeded
	CreateNotSupported
	CreateCouldNotCreate
)

// Stream is the per-connection handle a backend hands back from
// StreamCreate; the core treats it opaquely.
type Stream interface{}

// Backend is the host audio collaborator contract (spec §6). The Stream*
// methods (other than StreamConfigHint and StreamCreate) and
// DoOnWorkerThread receive the Stream handle they operate on.
// Readable, writable and pending counts are in bytes of the stream's
// accepted layout.
type Backend interface {
	GetConfig() Config
	GetStatus(dir Direction) Status

	// StreamConfigHint may block; the caller dispatches it to a worker
	// pool when Config.Has(FeatureAsyncHint).
	StreamConfigHint(cfg pcm.Properties)

	StreamCreate(dir Direction, cfgReq pcm.Properties) (Stream, pcm.Properties, CreateResult, error)
	// StreamInitAsync runs on the worker pool when StreamCreate returned
	// CreateAsyncInitNeeded. destroyed is polled so a concurrent destroy
	// can be observed and aborted cheaply.
	StreamInitAsync(s Stream, destroyed func() bool) error
	StreamDestroy(s Stream, immediate bool)

	StreamEnable(s Stream) error
	StreamDisable(s Stream) error
	StreamPause(s Stream) error
	StreamResume(s Stream) error
	StreamDrain(s Stream) error

	StreamGetReadable(s Stream) int
	StreamGetWritable(s Stream) int
	StreamGetPending(s Stream) int
	StreamGetState(s Stream) StreamState

	StreamPlay(s Stream, buf []byte) (int, error)
	StreamCapture(s Stream, buf []byte) (int, error)

	// StreamNotifyDeviceChanged informs a backend of a device change on a
	// live stream. The connector does not call it: on a device change it
	// sets NEED_REINIT on its own streams and re-creates them (spec §4.3.5).
	StreamNotifyDeviceChanged(s Stream)

	GetDevices(dir Direction) ([]DeviceInfo, error)

	// DoOnWorkerThread runs fn as deferred backend work. Where it runs is
	// up to the implementation (Null runs it inline, the PortAudio backend
	// on a new goroutine); it does not go through the connector's worker
	// pool.
	DoOnWorkerThread(ctx context.Context, s Stream, fn func(context.Context))
}

// DeviceInfo describes one enumerable host device (spec §6 GetDevices).
type DeviceInfo struct {
	ID        string
	Name      string
	Direction Direction
	Default   bool
}

// DrainDeadline computes the 2x-drain-budget deadline from the bytes
// still outstanding across the mix buffer, DMA, and backend, at rate
// (spec §5 "Cancellation & timeouts").
func DrainDeadline(now time.Time, outstandingBytes int, props pcm.Properties) time.Time {
	if props.BytesPerSec() == 0 {
		return now
	}
	ns := 2 * int64(outstandingBytes) * int64(time.Second) / int64(props.BytesPerSec())
	return now.Add(time.Duration(ns))
}
