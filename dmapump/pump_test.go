package dmapump

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/ac97mixer/backend"
	"github.com/doismellburning/ac97mixer/pcm"
	"github.com/doismellburning/ac97mixer/ring"
)

type fakeGuestMemory struct {
	mu  sync.Mutex
	mem map[uint32][]byte
}

func newFakeGuestMemory() *fakeGuestMemory {
	return &fakeGuestMemory{mem: map[uint32][]byte{}}
}

func (f *fakeGuestMemory) putBDLEntry(bdbar uint32, idx uint8, addr uint32, samples uint16, bup, ioc bool) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], addr)
	ctl := uint32(samples)
	if bup {
		ctl |= 1 << 30
	}
	if ioc {
		ctl |= 1 << 31
	}
	binary.LittleEndian.PutUint32(buf[4:8], ctl)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mem[bdbar+uint32(idx)*8] = buf
}

func (f *fakeGuestMemory) ReadPhys(addr uint32, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.mem[addr]
	if !ok {
		src = make([]byte, len(buf))
	}
	n := copy(buf, src)
	for ; n < len(buf); n++ {
		buf[n] = 0
	}
	return nil
}

func (f *fakeGuestMemory) WritePhys(addr uint32, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.mem[addr] = cp
	return nil
}

type fakeSinkTransfer struct {
	fromCalls int
	toCalls   int
	accept    int
	fillByte  byte
}

func (s *fakeSinkTransfer) TransferFromCircBuf(r *ring.Ring, props pcm.Properties) (int, error) {
	s.fromCalls++
	n := s.accept
	if n <= 0 || n > r.Readable() {
		n = r.Readable()
	}
	buf := make([]byte, n)
	got := r.AcquireRead(buf)
	return got, nil
}

func (s *fakeSinkTransfer) TransferToCircBuf(r *ring.Ring, props pcm.Properties) (int, error) {
	s.toCalls++
	n := s.accept
	if n <= 0 {
		n = r.Writable()
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = s.fillByte
	}
	got := r.AcquireWrite(buf)
	return got, nil
}

func testProps() pcm.Properties {
	return pcm.Properties{SampleBytes: 2, Signed: true, Channels: 2, FrequencyHz: 48000}
}

func Test_Pump_tickDrivesEntryToCompletion(t *testing.T) {
	mem := newFakeGuestMemory()
	mem.putBDLEntry(0x8000, 0, 0x1000, 480, false, true)
	mem.putBDLEntry(0x8000, 1, 0x2000, 480, false, true)

	sink := &fakeSinkTransfer{}
	props := testProps()
	p := New(backend.Out, props, mem, sink, 1<<16, 100, nil)
	p.SetBDL(0x8000, 1)

	// The guest acknowledges each buffer-completion interrupt; Tick skips
	// its period while BCIS is still set.
	for i := 0; i < 200 && !p.status.Has(LVBCI); i++ {
		p.status &^= BCIS
		p.Tick()
	}

	assert.True(t, p.status.Has(DCH))
	assert.True(t, p.status.Has(LVBCI))
	assert.Equal(t, uint8(1), p.cursor.CIV)
}

func Test_Pump_inputOverrunDropsOldestAndCountsFlowError(t *testing.T) {
	mem := newFakeGuestMemory()
	// freq/timerHz gives a period budget of 16 samples => cb = 16*4 = 64
	// bytes; a 16-sample BDL entry keeps the whole tick within one period.
	mem.putBDLEntry(0x9000, 0, 0x4000, 16, false, false)

	sink := &fakeSinkTransfer{accept: 256, fillByte: 0xAA}
	props := testProps()
	const ringCap = 64 // exactly one period's worth: no slack to absorb backlog
	p := New(backend.In, props, mem, sink, ringCap, 3000, nil)
	p.SetBDL(0x9000, 0)

	// Simulate a full backlog of stale audio already sitting in the ring
	// from before this tick, leaving no room for fresh production.
	stale := make([]byte, ringCap)
	for i := range stale {
		stale[i] = 0x11
	}
	require.Equal(t, ringCap, p.ring.AcquireWrite(stale))
	require.Equal(t, 0, p.ring.Writable())

	p.Tick()

	assert.Equal(t, uint64(1), p.FlowErrors(), "overrun must evict the stale backlog exactly once")
	assert.Equal(t, 1, sink.toCalls)
	assert.Equal(t, 0, p.ring.Readable(), "fresh data delivered to guest, nothing left queued")

	got := make([]byte, 64)
	require.NoError(t, mem.ReadPhys(0x4000, got))
	for i, b := range got {
		assert.Equal(t, byte(0xAA), b, "byte %d: guest must receive freshly produced audio, not the dropped stale backlog", i)
	}
}

func Test_Pump_haltsControllerOnBadBDL(t *testing.T) {
	mem := newFakeGuestMemory()
	// Leave BDL unpopulated: ReadPhys returns zeroed bytes, address 0 is
	// aligned and reserved bits are zero, so this decodes as a valid
	// zero-length non-IOC entry forever, which FetchNext will spin on only
	// while CIV != LVI; with LVI=0 it returns immediately without looping.
	sink := &fakeSinkTransfer{}
	props := testProps()
	p := New(backend.Out, props, mem, sink, 1<<16, 100, nil)
	p.SetBDL(0xA000, 0)

	p.Tick()

	assert.Equal(t, uint8(0), p.cursor.CIV)
	assert.True(t, p.status.Has(DCH))
}

func Test_Pump_bupFlagKeepsEmittingSilenceUntilReset(t *testing.T) {
	mem := newFakeGuestMemory()
	mem.putBDLEntry(0xB000, 0, 0x1000, 480, true, true)

	sink := &fakeSinkTransfer{}
	props := testProps()
	p := New(backend.Out, props, mem, sink, 1<<16, 100, nil)
	p.SetBDL(0xB000, 0)

	for i := 0; i < 200 && !p.status.Has(DCH); i++ {
		p.Tick()
	}
	require.True(t, p.status.Has(DCH))
	require.True(t, p.status.Has(BUPFlag))

	callsBefore := sink.fromCalls
	for i := 0; i < 5; i++ {
		p.Tick()
	}
	assert.Greater(t, sink.fromCalls, callsBefore, "BUP-flagged halt should keep pushing silence to the sink every tick")

	p.SetBDL(0xB000, 0)
	assert.False(t, p.status.Has(BUPFlag), "SetBDL must clear the sticky BUP flag")
}

func Test_New_defaultsLoggerWhenNil(t *testing.T) {
	mem := newFakeGuestMemory()
	sink := &fakeSinkTransfer{}
	p := New(backend.Out, testProps(), mem, sink, 4096, 100, nil)
	require.NotNil(t, p.log)
}
