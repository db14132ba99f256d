package mixer

import (
	"time"
)

// updateOutputLocked implements spec §4.2.1. Caller holds s.mu.
func (s *Sink) updateOutputLocked() {
	writable := make([]int, len(s.streams)) // frames, sink rate
	unreliable := make([]bool, len(s.streams))
	anyWritable := false

	for i, b := range s.streams {
		frames := sinkFrames(b.stream.Writable(), b.props)
		writable[i] = frames
		if frames > 0 {
			anyWritable = true
		}
	}

	transfer := minReliable(writable, unreliable)
	for transfer == 0 && len(writable) > 1 && s.buf.Free() > 2 {
		idx := smallestWritable(writable, unreliable)
		if idx < 0 {
			break
		}
		unreliable[idx] = true
		transfer = minReliable(writable, unreliable)
	}

	if anyWritable && transfer > 0 {
		scratch := make([]byte, scratchBytes)
		for i, b := range s.streams {
			if writable[i] <= 0 {
				continue
			}
			remaining := transfer
			dstFrameSize := b.props.FrameSize()
			maxScratchFrames := len(scratch) / dstFrameSize
			for remaining > 0 {
				want := remaining
				if want > maxScratchFrames {
					want = maxScratchFrames
				}
				_, cb, err := s.buf.Peek(0, want, b.peek, scratch[:want*dstFrameSize])
				if err != nil || cb == 0 {
					break
				}
				n, err := b.stream.Play(scratch[:cb])
				if err != nil {
					s.log.Debug("stream play error, skipping stream this tick", "stream", b.stream.Name(), "err", err)
					break
				}
				played := n / dstFrameSize
				if played <= 0 {
					break
				}
				remaining -= played
			}
		}
	}

	if transfer > 0 {
		_ = s.buf.Advance(transfer)
	}

	if !anyWritable {
		s.buf.Drop()
	}

	for _, b := range s.streams {
		b.stream.BackendUpdate()
	}

	s.drainLocked()
}

// updateInputLocked implements spec §4.2.2. Caller holds s.mu.
func (s *Sink) updateInputLocked() {
	readable := make([]int, len(s.streams))
	unreliable := make([]bool, len(s.streams))
	for i, b := range s.streams {
		readable[i] = sinkFrames(b.stream.Readable(), b.props)
	}

	transfer := minReliable(readable, unreliable)
	for transfer == 0 && len(readable) > 1 {
		idx := smallestWritable(readable, unreliable)
		if idx < 0 {
			break
		}
		unreliable[idx] = true
		transfer = minReliable(readable, unreliable)
	}
	if transfer > s.buf.Free() {
		transfer = s.buf.Free()
	}
	if transfer <= 0 {
		return
	}

	scratch := make([]byte, scratchBytes)
	assigned := false
	for i, b := range s.streams {
		if readable[i] <= 0 {
			continue
		}
		srcFrameSize := b.props.FrameSize()
		maxScratchFrames := len(scratch) / srcFrameSize
		want := transfer
		if want > maxScratchFrames {
			want = maxScratchFrames
		}
		n, err := b.stream.Capture(scratch[:want*srcFrameSize])
		if err != nil {
			s.log.Debug("stream capture error", "stream", b.stream.Name(), "err", err)
			continue
		}
		gotFrames := n / srcFrameSize
		silent := isSilence(scratch[:n])

		first := !assigned
		var written int
		if first {
			if silent {
				s.buf.BlendGap(b.write, gotFrames)
				written = gotFrames
			} else {
				written, _ = s.buf.Write(b.write, scratch[:n], 0, transfer)
			}
			assigned = true
		} else {
			if silent {
				s.buf.BlendGap(b.write, gotFrames)
				written = gotFrames
			} else {
				written, _ = s.buf.Blend(b.write, scratch[:n], 0, transfer)
			}
		}

		if written < transfer {
			remainder := transfer - written
			if first && !silent {
				// First stream under-delivered: the gap must read as
				// silence rather than stale buffer content.
				s.buf.Silence(written, remainder)
			}
		}
	}

	_ = s.buf.Commit(transfer)

	for _, b := range s.streams {
		b.stream.BackendUpdate()
	}
}

// drainLocked implements spec §4.2.1 step 6. Caller holds s.mu.
func (s *Sink) drainLocked() {
	if !s.status.Has(Draining) {
		return
	}

	if time.Now().After(s.drainDeadline) {
		for _, b := range s.streams {
			_ = b.stream.Disable()
		}
		s.resetLocked()
		return
	}

	if !s.status.Has(DrainedMixbuf) && !s.status.Has(Dirty) && s.buf.Used() == 0 {
		s.status |= DrainedMixbuf
		for _, b := range s.streams {
			_ = b.stream.Drain()
		}
	}

	allDisabled := true
	for _, b := range s.streams {
		if b.stream.Enabled() {
			allDisabled = false
			break
		}
	}
	if allDisabled {
		s.resetLocked()
	}
}

func (s *Sink) resetLocked() {
	s.status = 0
	s.cbDmaLeftToDrain = 0
	s.buf.Drop()
}

func sinkFrames(bytes int, props interface{ FrameSize() int }) int {
	fs := props.FrameSize()
	if fs == 0 {
		return 0
	}
	return bytes / fs
}

func minReliable(vals []int, unreliable []bool) int {
	min := -1
	for i, v := range vals {
		if unreliable[i] {
			continue
		}
		if min < 0 || v < min {
			min = v
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// smallestWritable picks the smallest-valued stream not yet marked
// unreliable, including ones already reporting zero — a permanently
// stalled backend (writable/readable == 0) must be excludable from the
// minimum just like a merely-small one, or the transfer size never
// advances past zero (spec §4.2.1 step 1 / §4.2.2).
func smallestWritable(vals []int, unreliable []bool) int {
	idx := -1
	best := -1
	for i, v := range vals {
		if unreliable[i] {
			continue
		}
		if best < 0 || v < best {
			best = v
			idx = i
		}
	}
	return idx
}

func isSilence(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
