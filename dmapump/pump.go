package dmapump

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/ac97mixer/backend"
	"github.com/doismellburning/ac97mixer/pcm"
	"github.com/doismellburning/ac97mixer/ring"
)

// GuestMemory is the narrow PCI physical-memory access the pump needs:
// reading a BDL entry or moving sample bytes to/from guest RAM (spec
// §4.4 step 3). A real device model backs this with its bus mastering
// DMA implementation.
type GuestMemory interface {
	ReadPhys(addr uint32, buf []byte) error
	WritePhys(addr uint32, buf []byte) error
}

// SinkTransfer is the mixer.Sink surface the pump drives (spec §4.2.4).
type SinkTransfer interface {
	TransferFromCircBuf(r *ring.Ring, props pcm.Properties) (int, error)
	TransferToCircBuf(r *ring.Ring, props pcm.Properties) (int, error)
}

// Pump is one emulated stream's DMA engine: a BDL cursor, status bits, a
// device-side ring, and the period-timing logic of spec §4.4.
type Pump struct {
	mu sync.Mutex

	dir      backend.Direction
	props    pcm.Properties
	mem      GuestMemory
	sink     SinkTransfer
	ring     *ring.Ring
	log      *log.Logger

	bdbar uint32
	lvi   uint8
	cursor BDLCursor
	status StatusBits

	curEntry        BDLEntry
	remainingSamples int
	cbDmaPeriod      int

	offStream  int
	timerHz    int

	flowErrors uint64
}

// New builds a Pump for one direction's emulated stream.
func New(dir backend.Direction, props pcm.Properties, mem GuestMemory, sink SinkTransfer, ringCap, timerHz int, logger *log.Logger) *Pump {
	if logger == nil {
		logger = log.Default()
	}
	return &Pump{
		dir:     dir,
		props:   props,
		mem:     mem,
		sink:    sink,
		ring:    ring.New(ringCap),
		timerHz: timerHz,
		log:     logger,
	}
}

// SetBDL configures the base address and last-valid-index for the
// active BDL and resets the cursor (called on a guest BDBAR/LVI write).
func (p *Pump) SetBDL(bdbar uint32, lvi uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bdbar = bdbar
	p.lvi = lvi
	p.cursor = BDLCursor{LVI: lvi}
	p.status = 0
}

func (p *Pump) readEntry(idx uint8) (BDLEntry, error) {
	buf := make([]byte, 8)
	if err := p.mem.ReadPhys(p.bdbar+uint32(idx)*8, buf); err != nil {
		return BDLEntry{}, err
	}
	return ParseBDLEntry(buf)
}

// FlowErrors reports the cumulative count of under/overrun events (spec
// §4.4.2 "counting the silence bytes as a flow error for statistics").
func (p *Pump) FlowErrors() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flowErrors
}

// Tick runs one DMA period per spec §4.4. Returns the duration to wait
// before the next tick (for re-arming the caller's timer).
func (p *Pump) Tick() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status.Has(DCH) {
		// spec §9 open question: the source clears BUPFlag only implicitly
		// and never re-arms it; the intended behavior is to keep emitting
		// silence every halted tick until the next SetBDL/ENABLE, not just
		// once. BUPFlag itself is cleared by SetBDL, which is the "next
		// ENABLE" in this model.
		if p.status.Has(BUPFlag) && p.dir == backend.Out {
			p.emitSilenceLocked(p.periodSampleBudget() * p.props.FrameSize())
		}
		return p.periodDuration()
	}
	if p.status.Has(BCIS) {
		return p.periodDuration()
	}

	if p.remainingSamples <= 0 {
		if err := p.fetchNextEntryLocked(); err != nil {
			p.log.Warn("BDL fetch failed, halting controller", "err", err)
			p.status |= DCH
			return p.periodDuration()
		}
	}

	p.cbDmaPeriod = p.remainingSamples * p.props.FrameSize()
	if max := p.periodSampleBudget(); p.remainingSamples > max {
		p.cbDmaPeriod = max * p.props.FrameSize()
	}

	p.transferLocked(p.cbDmaPeriod)

	consumedSamples := p.cbDmaPeriod / p.props.FrameSize()
	p.remainingSamples -= consumedSamples
	if p.remainingSamples <= 0 {
		p.status &^= CELV
		if p.curEntry.IOC {
			p.status |= BCIS
		}
		if p.cursor.CIV != p.cursor.LVI {
			if err := p.fetchNextEntryLocked(); err != nil {
				p.log.Warn("BDL fetch failed after entry completion", "err", err)
				p.status |= DCH
			}
		} else {
			p.status |= LVBCI | DCH | CELV
			if p.curEntry.BUP {
				p.status |= BUPFlag
			}
		}
	}

	return p.periodDuration()
}

func (p *Pump) fetchNextEntryLocked() error {
	entry, accumulated, err := p.cursor.FetchNext(p.readEntry)
	if err != nil {
		return err
	}
	p.curEntry = entry
	p.remainingSamples = int(entry.Samples)
	p.status |= accumulated
	return nil
}

func (p *Pump) periodSampleBudget() int {
	if p.timerHz <= 0 {
		return p.remainingSamples
	}
	return p.props.FrequencyHz / p.timerHz
}

func (p *Pump) periodDuration() time.Duration {
	if p.timerHz <= 0 {
		return time.Millisecond
	}
	return time.Second / time.Duration(p.timerHz)
}

// emitSilenceLocked keeps the sink fed at the nominal rate while the
// controller is halted under a BUP-flagged entry, instead of stalling
// it outright (spec §9 BUPFlag open question). Caller holds p.mu.
func (p *Pump) emitSilenceLocked(cb int) {
	if cb <= 0 {
		return
	}
	zero := make([]byte, cb)
	if accepted := p.ring.AcquireWrite(zero); accepted < cb {
		p.flowErrors++
	}
	if _, err := p.sink.TransferFromCircBuf(p.ring, p.props); err != nil {
		p.log.Warn("sink transfer-from-circbuf failed during BUP silence", "err", err)
	}
}

// transferLocked implements spec §4.4 step 3 plus the §4.4.2 under/
// overrun policy. Caller holds p.mu.
func (p *Pump) transferLocked(cb int) {
	if cb <= 0 {
		return
	}

	if p.dir == backend.Out {
		buf := make([]byte, cb)
		if err := p.mem.ReadPhys(p.curEntry.Addr+uint32(p.offStream), buf); err != nil {
			p.log.Warn("guest physical read failed", "err", err)
			return
		}
		accepted := p.ring.AcquireWrite(buf)
		if accepted < len(buf) {
			p.flowErrors++
		}

		transferred, err := p.sink.TransferFromCircBuf(p.ring, p.props)
		if err != nil {
			p.log.Warn("sink transfer-from-circbuf failed", "err", err)
		}
		if transferred < cb {
			// Backend under-fed: keep the DMA view moving at the nominal
			// rate by treating the shortfall as a flow error rather than
			// stalling the guest-visible cursor.
			p.flowErrors++
		}
	} else {
		if room := p.ring.Writable(); room < cb {
			// The device ring cannot accept a full period's worth of fresh
			// audio: evict the oldest backlog rather than stalling the
			// guest's steady DMA rate (spec §4.4.2 input overrun policy).
			if dropped := p.ring.DropOldest(cb - room); dropped > 0 {
				p.flowErrors++
			}
		}

		transferred, err := p.sink.TransferToCircBuf(p.ring, p.props)
		if err != nil {
			p.log.Warn("sink transfer-to-circbuf failed", "err", err)
		}
		buf := make([]byte, cb)
		got := p.ring.AcquireRead(buf)
		if got > 0 {
			if err := p.mem.WritePhys(p.curEntry.Addr+uint32(p.offStream), buf[:got]); err != nil {
				p.log.Warn("guest physical write failed", "err", err)
			}
		}
		_ = transferred
	}

	p.offStream += cb
}
