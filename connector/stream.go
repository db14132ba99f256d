package connector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/ac97mixer/backend"
	"github.com/doismellburning/ac97mixer/cerr"
	"github.com/doismellburning/ac97mixer/config"
	"github.com/doismellburning/ac97mixer/pcm"
)

// StatusBits are the connector-stream status flags (spec §6
// "Connector-stream status bits").
type StatusBits uint32

const (
	Enabled StatusBits = 1 << iota
	Paused
	PendingDisable
	BackendCreated
	BackendReady
	NeedReinit
)

func (s StatusBits) Has(b StatusBits) bool { return s&b != 0 }

// PlayState is the output stream's pre-buffer/play sub-state (spec
// §4.3.6).
type PlayState int

const (
	NoPlay PlayState = iota
	Play
	PlayPrebuf
	Prebuf
	PrebufOverdue
	PrebufSwitching
	PrebufCommitting
)

// CaptureState is the input stream's pre-buffer/capture sub-state (spec
// §4.3.7).
type CaptureState int

const (
	NoCapture CaptureState = iota
	Capturing
	CapturePrebuf
)

// Stream is one connector stream: the lifecycle state machine sitting
// between a mixer sink and one backend.Backend stream handle (spec
// §4.3).
type Stream struct {
	name string
	dir  backend.Direction
	be   backend.Backend
	log  *log.Logger
	pool *workerPool

	mu            sync.Mutex
	status        StatusBits
	cfgReq        pcm.Properties
	cfgAcq        pcm.Properties
	sizing        BufferSizing
	backendStream backend.Stream

	preBuf               *preBufferRing
	preBufThresholdBytes int
	cbPreBuffered        int

	playState    PlayState
	captureState CaptureState
	offInternal  int64
	nsStarted    time.Time

	lastBackendState backend.StreamState

	reinitTryCount   int
	reinitLastAttempt time.Time

	refCount int32

	volume pcm.Volume

	destroyed int32 // observed by StreamInitAsync to abort cheaply
}

// Config returned from Create alongside the stream, so the caller can
// log/verify the accepted format (spec §4.3.1 step 7).
type CreateOutcome struct {
	Accepted pcm.Properties
	Sizing   BufferSizing
}

// Create implements spec §4.3.1. slotBudget is decremented by the
// caller; Create itself assumes the slot has already been reserved.
func Create(name string, dir backend.Direction, be backend.Backend, dflt pcm.Properties, override config.DirectionOverride, pool *workerPool, logger *log.Logger) (*Stream, CreateOutcome, error) {
	requested := ApplyOverride(dflt, override)
	if err := requested.Validate(); err != nil {
		return nil, CreateOutcome{}, cerr.Wrap(cerr.ConfigInvalid, "requested PCM configuration invalid", err)
	}

	sizing := DeriveBufferSizing(requested, override)

	if logger == nil {
		logger = log.Default()
	}
	s := &Stream{
		name:     name,
		dir:      dir,
		be:       be,
		log:      logger.With("stream", name, "dir", dir.String()),
		pool:     pool,
		cfgReq:   requested,
		sizing:   sizing,
		refCount: 1,
		volume:   pcm.UnityVolume(),
	}

	backendStream, accepted, result, err := be.StreamCreate(dir, requested)
	if err != nil {
		return nil, CreateOutcome{}, cerr.Wrap(cerr.StreamCouldNotCreate, "backend StreamCreate failed", err)
	}

	if accepted.FrequencyHz != requested.FrequencyHz || accepted.Channels != requested.Channels || accepted.Signed != requested.Signed {
		s.log.Info("backend adjusted accepted stream format", "requested", requested.String(), "accepted", accepted.String())
	}

	s.backendStream = backendStream
	s.cfgAcq = accepted

	switch result {
	case backend.CreateAsyncInitNeeded:
		s.status |= BackendCreated
		atomic.AddInt32(&s.refCount, 1)
		s.pool.Submit(func() {
			err := be.StreamInitAsync(backendStream, s.isDestroyed)
			s.mu.Lock()
			if err == nil {
				s.status |= BackendReady
			}
			s.reconcileLocked()
			s.mu.Unlock()
			s.dropRef()
		})
	case backend.CreateOK:
		s.status |= BackendCreated | BackendReady
	default:
		return nil, CreateOutcome{}, cerr.New(cerr.StreamCouldNotCreate, "backend rejected stream creation")
	}

	preBufBytes := accepted.FramesToBytes(sizing.BufferFrames)
	thresholdBytes := accepted.FramesToBytes(sizing.PreBufferFrames)
	ringSize := PreBufferRingSize(preBufBytes, thresholdBytes)
	s.preBuf = newPreBufferRing(ringSize)
	s.preBufThresholdBytes = thresholdBytes

	return s, CreateOutcome{Accepted: accepted, Sizing: sizing}, nil
}

func (s *Stream) isDestroyed() bool { return atomic.LoadInt32(&s.destroyed) != 0 }

func (s *Stream) Name() string                 { return s.name }
func (s *Stream) Direction() backend.Direction  { return s.dir }
func (s *Stream) AcceptedConfig() pcm.Properties { return s.cfgAcq }

func (s *Stream) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Has(Enabled)
}

// Volume satisfies mixer.Stream: the per-stream gain a sink combines
// with its own volume before pushing the result to the mix buffer
// (spec §3 Volume; SUPPLEMENTED FEATURES #1).
func (s *Stream) Volume() pcm.Volume {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetVolume sets this stream's own gain. Does not recombine the
// owning sink's effective volume; callers that need the change
// reflected immediately call Sink.ApplyVolume afterward.
func (s *Stream) SetVolume(v pcm.Volume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

// Destroy implements spec §4.3.2. If the backend advertises
// FeatureAsyncStreamDestroy, the actual teardown happens on the worker
// pool; immediate is passed through to the teardown either way.
func (s *Stream) Destroy(immediate bool) {
	atomic.StoreInt32(&s.destroyed, 1)

	cfg := s.be.GetConfig()
	if cfg.Has(backend.FeatureAsyncStreamDestroy) {
		s.pool.Submit(func() { s.destroySync(immediate) })
		return
	}
	s.destroySync(immediate)
}

func (s *Stream) destroySync(immediate bool) {
	s.mu.Lock()
	draining := s.status.Has(PendingDisable)
	if immediate || !draining {
		_ = s.be.StreamDisable(s.backendStream)
		s.resetLocked()
	}
	s.mu.Unlock()

	s.dropRef()
}

func (s *Stream) dropRef() {
	if atomic.AddInt32(&s.refCount, -1) == 0 {
		s.be.StreamDestroy(s.backendStream, true)
	}
}

// Control implements spec §4.3.3.
func (s *Stream) Control(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd {
	case "ENABLE":
		return s.enableLocked()
	case "DISABLE":
		s.disableLocked()
		return nil
	case "PAUSE":
		if s.status.Has(Enabled) && !s.status.Has(Paused) {
			s.status |= Paused
			return s.be.StreamPause(s.backendStream)
		}
		return nil
	case "RESUME":
		if s.status.Has(Paused) {
			s.status &^= Paused
			return s.be.StreamResume(s.backendStream)
		}
		return nil
	case "DRAIN":
		return s.drainLocked()
	}
	return nil
}

func (s *Stream) enableLocked() error {
	if s.status.Has(PendingDisable) {
		s.disableLocked()
	}

	s.offInternal = 0
	s.nsStarted = time.Now()

	beState := s.be.StreamGetState(s.backendStream)
	s.lastBackendState = beState

	if s.dir == backend.Out {
		switch beState {
		case backend.StreamOkay:
			if s.preBuf.Used() == 0 {
				s.playState = Play
			} else {
				s.playState = Prebuf
			}
		case backend.StreamInitializing:
			s.playState = Prebuf
		default:
			s.playState = NoPlay
		}
	} else {
		switch beState {
		case backend.StreamOkay:
			s.captureState = CapturePrebuf
		case backend.StreamInitializing:
			s.captureState = CapturePrebuf
		default:
			s.captureState = NoCapture
		}
	}

	s.status |= Enabled
	return s.be.StreamEnable(s.backendStream)
}

func (s *Stream) disableLocked() {
	_ = s.be.StreamDisable(s.backendStream)
	s.status &^= Enabled | Paused | PendingDisable
	s.playState = NoPlay
	s.captureState = NoCapture
}

func (s *Stream) drainLocked() error {
	if s.dir != backend.Out {
		return nil
	}
	if s.status.Has(PendingDisable) {
		return nil
	}
	switch {
	case s.preBuf.Used() > 0:
		s.playState = PrebufCommitting
		s.status |= PendingDisable
	case s.playState == Play:
		s.status |= PendingDisable
		return s.be.StreamDrain(s.backendStream)
	default:
		s.disableLocked()
	}
	return nil
}

func (s *Stream) resetLocked() {
	s.status = 0
	s.playState = NoPlay
	s.captureState = NoCapture
	s.offInternal = 0
	if s.preBuf != nil {
		s.preBuf.Reset()
	}
	s.cbPreBuffered = 0
}

// reconcileLocked implements spec §4.3.4. Caller holds s.mu.
func (s *Stream) reconcileLocked() {
	state := s.be.StreamGetState(s.backendStream)
	prevOkay := s.lastBackendState == backend.StreamOkay

	switch state {
	case backend.StreamInitializing:
		// nothing: waiting for async init
	case backend.StreamNotWorking, backend.StreamInactive:
		s.status &^= PendingDisable
		if s.dir == backend.Out {
			s.playState = NoPlay
		} else {
			s.captureState = NoCapture
		}
	case backend.StreamOkay:
		if !prevOkay {
			if s.dir == backend.Out {
				s.playState = Prebuf
			} else {
				s.captureState = CapturePrebuf
			}
		}
	case backend.StreamDraining:
		// observed only while PendingDisable
	}

	s.lastBackendState = state
}

// Reconcile runs reconciliation under lock, for callers outside
// Play/Capture (which run reconcileLocked themselves, spec §4.3.4).
func (s *Stream) Reconcile() {
	s.mu.Lock()
	s.reconcileLocked()
	s.mu.Unlock()
}
