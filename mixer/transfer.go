package mixer

import (
	"github.com/doismellburning/ac97mixer/pcm"
	"github.com/doismellburning/ac97mixer/ring"
)

// TransferFromCircBuf implements spec §4.2.4 for an output sink: the
// device DMA pump calls this to push bytes it already has (decoded from
// guest memory) into the sink's mix buffer; the method takes the sink
// lock itself. deviceProps describes the ring's byte layout.
func (s *Sink) TransferFromCircBuf(r *ring.Ring, deviceProps pcm.Properties) (transferred int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writableFrames := s.buf.Free()
	ringFrames := r.Readable() / deviceProps.FrameSize()
	n := writableFrames
	if ringFrames < n {
		n = ringFrames
	}
	if n <= 0 {
		return 0, nil
	}

	write := s.buf.InitWriteState(deviceProps)
	scratch := make([]byte, n*deviceProps.FrameSize())
	got := r.AcquireRead(scratch)
	written, err := s.buf.Write(write, scratch[:got], 0, n)
	if err != nil {
		return 0, err
	}
	if commitErr := s.buf.Commit(written); commitErr != nil {
		return 0, commitErr
	}

	transferredBytes := got
	if s.status.Has(Draining) && !s.status.Has(DrainedDMA) {
		s.cbDmaLeftToDrain -= transferredBytes
		if s.cbDmaLeftToDrain <= 0 {
			s.status |= DrainedDMA
		}
	}

	return transferredBytes, nil
}

// TransferToCircBuf implements spec §4.2.4 for an input sink: pump the
// mix buffer's content into the device ring so the pump can write it out
// to guest memory.
func (s *Sink) TransferToCircBuf(r *ring.Ring, deviceProps pcm.Properties) (transferred int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	readableFrames := s.buf.Used()
	ringFrames := r.Writable() / deviceProps.FrameSize()
	n := readableFrames
	if ringFrames < n {
		n = ringFrames
	}
	if n <= 0 {
		return 0, nil
	}

	peek := s.buf.InitPeekState(deviceProps)
	scratch := make([]byte, scratchBytes)
	maxScratchFrames := len(scratch) / deviceProps.FrameSize()

	remaining := n
	total := 0
	for remaining > 0 {
		want := remaining
		if want > maxScratchFrames {
			want = maxScratchFrames
		}
		consumedSrc, cb, err := s.buf.Peek(0, want, peek, scratch[:want*deviceProps.FrameSize()])
		if err != nil || cb == 0 {
			break
		}
		accepted := r.AcquireWrite(scratch[:cb])
		if accepted < cb {
			// Ring couldn't take it all; stop rather than silently drop
			// mid-frame bytes.
			break
		}
		if err := s.buf.Advance(consumedSrc); err != nil {
			break
		}
		total += consumedSrc
		remaining -= consumedSrc
		if consumedSrc == 0 {
			break
		}
	}

	return total, nil
}
