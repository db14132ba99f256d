package connector

import (
	"time"

	"github.com/doismellburning/ac97mixer/backend"
	"github.com/doismellburning/ac97mixer/cerr"
)

// Play implements spec §4.3.6.
func (s *Stream) Play(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Has(BackendReady) || !s.status.Has(Enabled) {
		s.offInternal += int64(len(buf))
		return len(buf), nil
	}
	s.reconcileLocked()

	switch s.playState {
	case Play:
		return s.playBackendLocked(buf)

	case PlayPrebuf:
		n, err := s.playBackendLocked(buf)
		if n > 0 {
			s.preBuf.Write(buf[:n])
			s.cbPreBuffered = s.preBuf.Used()
		}
		return n, err

	case Prebuf:
		s.preBuf.Write(buf)
		s.cbPreBuffered = s.preBuf.Used()
		if s.cbPreBuffered >= s.preBufThresholdBytes {
			state := s.be.StreamGetState(s.backendStream)
			if state == backend.StreamOkay && s.status.Has(BackendReady) {
				s.playState = PrebufCommitting
			} else {
				s.playState = PrebufOverdue
				return len(buf), cerr.New(cerr.BufferOverflow, "pre-buffer threshold reached, backend not ready")
			}
		}
		return len(buf), nil

	case PrebufOverdue, PrebufSwitching:
		s.preBuf.Write(buf)
		s.cbPreBuffered = s.preBuf.Used()
		return len(buf), nil

	case PrebufCommitting:
		flush := make([]byte, s.preBuf.Used())
		got := s.preBuf.Read(flush)
		remaining := flush[:got]
		for len(remaining) > 0 {
			w := s.be.StreamGetWritable(s.backendStream)
			if w < 1 {
				break
			}
			if w > len(remaining) {
				w = len(remaining)
			}
			n, err := s.be.StreamPlay(s.backendStream, remaining[:w])
			if err != nil || n <= 0 {
				break
			}
			remaining = remaining[n:]
		}
		// Whatever didn't flush goes back to the front of the ring.
		if len(remaining) > 0 {
			s.preBuf.Write(remaining)
		}
		s.cbPreBuffered = s.preBuf.Used()

		n, err := s.playBackendLocked(buf)
		if s.cbPreBuffered == 0 {
			s.playState = Play
		}
		return n, err

	case NoPlay:
		s.offInternal += int64(len(buf))
		return len(buf), nil
	}
	return len(buf), nil
}

func (s *Stream) playBackendLocked(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		w := s.be.StreamGetWritable(s.backendStream)
		if w < s.cfgAcq.FrameSize() {
			break
		}
		chunk := buf[total:]
		if w < len(chunk) {
			chunk = chunk[:w]
		}
		n, err := s.be.StreamPlay(s.backendStream, chunk)
		if err != nil {
			return total, err
		}
		if n <= 0 {
			break
		}
		total += n
	}
	s.offInternal += int64(total)
	return total, nil
}

// Capture implements spec §4.3.7.
func (s *Stream) Capture(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Has(BackendReady) || !s.status.Has(Enabled) {
		return 0, cerr.New(cerr.StreamNotReady, "capture stream not ready")
	}
	s.reconcileLocked()

	if s.captureState == CapturePrebuf {
		readable := s.be.StreamGetReadable(s.backendStream)
		state := s.be.StreamGetState(s.backendStream)
		if state == backend.StreamOkay && readable >= s.preBufThresholdBytes {
			s.captureState = Capturing
		}
	}

	switch s.captureState {
	case Capturing:
		return s.captureBackendLocked(buf)

	case CapturePrebuf:
		elapsed := time.Since(s.nsStarted)
		wantBytes := int(elapsed.Seconds()*float64(s.cfgAcq.BytesPerSec())) - int(s.offInternal)
		if wantBytes > len(buf) {
			wantBytes = len(buf)
		}
		if wantBytes < 0 {
			wantBytes = 0
		}
		for i := 0; i < wantBytes; i++ {
			buf[i] = 0
		}
		s.offInternal += int64(wantBytes)
		return wantBytes, nil

	case NoCapture:
		return 0, nil
	}
	return 0, nil
}

func (s *Stream) captureBackendLocked(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		r := s.be.StreamGetReadable(s.backendStream)
		if r < s.cfgAcq.FrameSize() {
			break
		}
		chunk := buf[total:]
		if r < len(chunk) {
			chunk = chunk[:r]
		}
		n, err := s.be.StreamCapture(s.backendStream, chunk)
		if err != nil {
			return total, err
		}
		if n <= 0 {
			break
		}
		total += n
	}
	s.offInternal += int64(total)
	return total, nil
}

// Writable implements spec §4.3.8 (output direction).
func (s *Stream) Writable() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := s.cfgAcq.FrameSize()
	switch s.playState {
	case Play, PlayPrebuf:
		w := s.be.StreamGetWritable(s.backendStream)
		if s.playState == PlayPrebuf {
			if room := s.preBuf.Free(); room < w {
				w = room
			}
		}
		return alignDown(w, frame)
	case Prebuf:
		room := s.preBuf.Cap() - s.cbPreBuffered
		if room < 2*frame {
			room = 2 * frame
		}
		return room
	case PrebufOverdue, PrebufSwitching:
		if s.sizing.BufferFrames*frame > s.preBuf.Cap() {
			return s.sizing.BufferFrames * frame
		}
		return s.preBuf.Cap()
	case PrebufCommitting:
		w := s.be.StreamGetWritable(s.backendStream) - s.cbPreBuffered - 8*frame
		floor := 8 * frame
		if w < floor {
			w = floor
		}
		return w
	case NoPlay:
		return 0
	}
	return 0
}

// Readable implements spec §4.3.8 (input direction).
func (s *Stream) Readable() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.captureState {
	case Capturing:
		r := s.be.StreamGetReadable(s.backendStream)
		return alignDown(r, s.cfgAcq.FrameSize())
	case CapturePrebuf:
		elapsed := time.Since(s.nsStarted)
		arrears := int(elapsed.Seconds()*float64(s.cfgAcq.BytesPerSec())) - int(s.offInternal)
		if arrears < 0 {
			arrears = 0
		}
		if arrears > s.preBufThresholdBytes {
			return arrears
		}
		return s.preBufThresholdBytes
	case NoCapture:
		return 0
	}
	return 0
}

func alignDown(v, frame int) int {
	if frame <= 0 {
		return v
	}
	return v / frame * frame
}

// Drain satisfies mixer.Stream.
func (s *Stream) Drain() error { return s.Control("DRAIN") }

// Disable satisfies mixer.Stream.
func (s *Stream) Disable() error { return s.Control("DISABLE") }

// BackendUpdate satisfies mixer.Stream: per-tick backend housekeeping is
// just reconciliation (spec §4.3.4).
func (s *Stream) BackendUpdate() { s.Reconcile() }
