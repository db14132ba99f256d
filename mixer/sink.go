// Package mixer implements the sink half of the mixing core: a
// single-direction frame stream shared by N backend-facing streams, its
// mix buffer, drain state machine, and dedicated AIO worker (spec §4.2).
// Grounded on the teacher's single-goroutine-per-device-queue idiom in
// src/tq.go (a dedicated thread waiting on a condition variable per
// channel), rebuilt here with a buffered wake channel and
// context.Context cancellation instead of pthread-style cond/mutex
// pairs, in the manner of src/dns_sd.go's plain "go func()" launch.
package mixer

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/ac97mixer/backend"
	"github.com/doismellburning/ac97mixer/mixbuf"
	"github.com/doismellburning/ac97mixer/pcm"
)

// StatusBits are the sink status flags shared with the device DMA pump
// (spec §6 "Sink status bits"). The layout is part of the contract
// between a sink and its pump, not persisted.
type StatusBits uint32

const (
	Running StatusBits = 1 << iota
	Draining
	DrainedDMA
	DrainedMixbuf
	Dirty
)

func (s StatusBits) Has(b StatusBits) bool { return s&b != 0 }

// Stream is what a mixer sink needs from a connector stream: byte-level
// writable/readable queries and the Play/Capture entry points that
// already carry the stream's own pre-buffer and backend-state logic
// (spec §4.3.6, §4.3.7). The sink never talks to a backend.Backend
// directly.
type Stream interface {
	Name() string
	Enabled() bool
	Writable() int
	Readable() int
	Play(buf []byte) (int, error)
	Capture(buf []byte) (int, error)
	Drain() error
	Disable() error
	// BackendUpdate runs per-stream backend housekeeping once per AIO
	// tick (spec §4.2.3 step 2b).
	BackendUpdate()
	// Volume is this stream's own gain, combined into the sink's
	// effective volume by ApplyVolume (spec §3 Volume; SUPPLEMENTED
	// FEATURES #1).
	Volume() pcm.Volume
}

// UpdateJob is a callback registered against a sink and invoked once per
// AIO tick with the sink's status bits as of that tick (spec §4.2.3 step
// 2b). Used e.g. to drive a status-LED indicator off sink activity. Fn
// runs while the sink lock is held, so it receives a snapshot rather
// than the *Sink itself — calling back into any locking Sink method
// from Fn would deadlock.
type UpdateJob struct {
	Name     string
	Interval time.Duration
	Fn       func(status StatusBits)
}

const scratchBytes = 8 * 1024

// Sink is one direction's mixing point: a mix buffer plus the set of
// streams multiplexed onto it.
type Sink struct {
	name string
	dir  backend.Direction
	log  *log.Logger

	mu      sync.Mutex
	status  StatusBits
	buf     *mixbuf.Buffer
	streams []*streamBinding
	jobs    []UpdateJob
	volume  pcm.Volume

	drainDeadline    time.Time
	cbDmaLeftToDrain int
	lastUpdated      time.Time

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

type streamBinding struct {
	stream Stream
	props  pcm.Properties
	peek   *mixbuf.PeekState
	write  *mixbuf.WriteState
}

// NewSink allocates a sink's mix buffer and readies its worker loop
// (spec §4.1 Init, §4.2.3).
func NewSink(name string, dir backend.Direction, channels, hz, capacityFrames int, logger *log.Logger) (*Sink, error) {
	buf, err := mixbuf.NewBuffer(name, channels, hz, capacityFrames)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Sink{
		name:   name,
		dir:    dir,
		log:    logger.With("sink", name, "dir", dir.String()),
		buf:    buf,
		volume: pcm.UnityVolume(),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

func (s *Sink) Name() string              { return s.name }
func (s *Sink) Direction() backend.Direction { return s.dir }
func (s *Sink) Buffer() *mixbuf.Buffer     { return s.buf }

func (s *Sink) Status() StatusBits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AddStream attaches a stream to the sink, building its peek/write
// conversion state against the sink's internal mix-buffer format.
func (s *Sink) AddStream(stream Stream, props pcm.Properties) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = append(s.streams, &streamBinding{
		stream: stream,
		props:  props,
		peek:   s.buf.InitPeekState(props),
		write:  s.buf.InitWriteState(props),
	})
	s.applyVolumeLocked()
}

// SetVolume sets the sink's own volume and recombines it with every
// attached stream's volume before pushing the result to the mix buffer
// (spec §4.1 SetVolume; SUPPLEMENTED FEATURES #1, grounded on
// AudioMixer.cpp's audioMixerSinkUpdateVolume).
func (s *Sink) SetVolume(v pcm.Volume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	s.applyVolumeLocked()
}

// ApplyVolume recomputes the sink's effective volume from its own
// volume and every attached stream's volume and pushes it to the mix
// buffer. Exported for callers driving a volume change from outside a
// sink method that already holds s.mu (AddStream/SetVolume call the
// unexported variant directly instead).
func (s *Sink) ApplyVolume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyVolumeLocked()
}

func (s *Sink) applyVolumeLocked() {
	combined := s.volume
	for _, b := range s.streams {
		combined = pcm.Combine(combined, b.stream.Volume())
	}
	s.buf.SetVolume(combined)
}

// RemoveStream detaches a stream by name.
func (s *Sink) RemoveStream(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.streams {
		if b.stream.Name() == name {
			s.streams = append(s.streams[:i], s.streams[i+1:]...)
			return
		}
	}
}

// RegisterUpdateJob adds a job invoked on every AIO tick (spec §4.2.3).
func (s *Sink) RegisterUpdateJob(j UpdateJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
}

// StartDrain arms the drain deadline and marks the sink Draining (spec
// §4.2.1 step 6, §5 "drain has a deadline").
func (s *Sink) StartDrain(outstandingBytes int, props pcm.Properties) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status |= Draining
	s.cbDmaLeftToDrain = outstandingBytes
	s.drainDeadline = backend.DrainDeadline(time.Now(), outstandingBytes, props)
}

// SetRunning toggles the Running bit (spec §4.2.3 step 2).
func (s *Sink) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if running {
		s.status |= Running
	} else {
		s.status &^= Running
	}
}

// MarkDirty flags that sink content changed since the last drain check
// (spec §4.2.1 step 6: "(NOT DIRTY) and mix buffer empty").
func (s *Sink) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status |= Dirty
}

// Kick wakes the AIO worker for one immediate pass.
func (s *Sink) Kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run is the sink's dedicated AIO worker loop (spec §4.2.3). It runs
// until ctx is cancelled or Stop is called.
func (s *Sink) Run(ctx context.Context) {
	defer close(s.done)
	for {
		timeout := s.nextWaitTimeout()
		var timer *time.Timer
		var timerC <-chan time.Time
		if timeout > 0 {
			timer = time.NewTimer(timeout)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
		}

		s.tick()
	}
}

// Stop requests the worker loop to exit and waits up to 30s for it to do
// so (spec §5 "AIO worker join on shutdown waits up to 30 s").
func (s *Sink) Stop() {
	close(s.stop)
	select {
	case <-s.done:
	case <-time.After(30 * time.Second):
		s.log.Warn("AIO worker did not join within shutdown deadline")
	}
}

func (s *Sink) nextWaitTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Has(Draining) {
		return 0 // infinite: block on wake only
	}
	min := time.Duration(0)
	for _, j := range s.jobs {
		if min == 0 || j.Interval < min {
			min = j.Interval
		}
	}
	if min <= 0 {
		min = 10 * time.Millisecond
	}
	return min
}

func (s *Sink) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Has(Running) && !s.status.Has(Draining) {
		return
	}

	if age, stale := s.staleSinceLocked(time.Now()); stale {
		s.log.Warn("AIO worker resumed after an unusually long gap", "age", age)
	}
	s.lastUpdated = time.Now()

	if s.dir == backend.In {
		s.updateInputLocked()
	}
	for _, j := range s.jobs {
		j.Fn(s.status)
	}
	if s.dir == backend.Out {
		s.updateOutputLocked()
	}
}

// StaleSince reports how long it has been since the AIO worker last
// serviced this sink, and whether that exceeds what a healthy worker
// should ever leave unserviced (spec §5 AIO worker; SUPPLEMENTED
// FEATURES #3, grounded on AudioMixer.cpp's tsLastUpdatedMs stall
// detection). A never-updated sink (not yet ticked) is never stale.
func (s *Sink) StaleSince(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleSinceLocked(now)
}

func (s *Sink) staleSinceLocked(now time.Time) (time.Duration, bool) {
	if s.lastUpdated.IsZero() {
		return 0, false
	}
	age := now.Sub(s.lastUpdated)
	return age, age > staleThreshold
}

// staleThreshold is generous enough to tolerate a drain's self-paced
// wait interval (spec §4.2.3 step 1) without false-positiving on every
// idle sink.
const staleThreshold = 5 * time.Second
