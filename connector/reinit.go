package connector

import (
	"time"

	"github.com/doismellburning/ac97mixer/backend"
	"github.com/doismellburning/ac97mixer/cerr"
)

// NotifyDeviceChanged sets NEED_REINIT so the driver above knows to call
// ReInit (spec §4.3.5, §6 "StreamNotifyDeviceChanged ... if absent, the
// core sets NEED_REINIT instead").
func (s *Stream) NotifyDeviceChanged() {
	s.mu.Lock()
	s.status |= NeedReinit
	s.mu.Unlock()
}

// NeedsReInit reports whether the stream is waiting for ReInit.
func (s *Stream) NeedsReInit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Has(NeedReinit)
}

// ReInit implements spec §4.3.5: throttled reconnection to the backend
// using the stream's originally-stored configuration, with no rename and
// no re-read of operator overrides.
func (s *Stream) ReInit(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Has(NeedReinit) {
		return nil
	}
	if !reInitGate(s.reinitTryCount, s.reinitLastAttempt, now) {
		return cerr.New(cerr.StreamCouldNotCreate, "reinit throttled")
	}

	s.reinitTryCount++
	s.reinitLastAttempt = now

	wasEnabled := s.status.Has(Enabled)
	wasPaused := s.status.Has(Paused)

	s.be.StreamDestroy(s.backendStream, true)
	s.status &^= BackendCreated | BackendReady

	backendStream, accepted, result, err := s.be.StreamCreate(s.dir, s.cfgReq)
	if err != nil || result == backend.CreateNotSupported || result == backend.CreateCouldNotCreate {
		if s.reinitTryCount >= 5 {
			s.status &^= NeedReinit | Enabled
			return cerr.Wrap(cerr.BackendInitFailed, "reinit exhausted retries, stream is now a dead letter", err)
		}
		return cerr.Wrap(cerr.StreamCouldNotCreate, "reinit backend create failed", err)
	}

	s.backendStream = backendStream
	s.cfgAcq = accepted

	if result == backend.CreateAsyncInitNeeded {
		s.status |= BackendCreated
	} else {
		s.status |= BackendCreated | BackendReady
	}

	if wasEnabled {
		_ = s.enableLocked()
		if wasPaused {
			s.status |= Paused
			_ = s.be.StreamPause(s.backendStream)
		}
	}

	s.status &^= NeedReinit
	s.reinitTryCount = 0
	return nil
}
