// Package dmapump implements the device DMA pump: the per-emulated-stream
// timer tick that walks a Buffer Descriptor List and hands bytes to/from
// a mixer.Sink's ring transfer, plus the under/overrun policy (spec
// §4.4). Grounded on the teacher's bit-exact little-endian wire-format
// parsing style in src/ax25_pad.go-adjacent KISS framing (explicit
// byte-shift decode, no unsafe pointer casts), generalized to the BDL
// entry layout.
package dmapump

import (
	"encoding/binary"

	"github.com/doismellburning/ac97mixer/cerr"
)

// MaxBDLEntries is the number of entries a 5-bit CIV/LVI/PIV cursor can
// address, indices 0..31 (spec §6 "at most 32 entries per list").
const MaxBDLEntries = 32

// BDLEntry is one decoded 8-byte BDL record (spec §6 "BDL format").
type BDLEntry struct {
	Addr    uint32
	Samples uint16
	BUP     bool
	IOC     bool
}

// ParseBDLEntry decodes one 8-byte little-endian BDL record at data[0:8]
// (spec §6 "BDL format (bit-exact, little-endian)"). Malformed guest
// data never panics: it is reported as a *cerr.GuestInputError and the
// caller decides how to degrade (spec §9 design notes).
func ParseBDLEntry(data []byte) (BDLEntry, error) {
	if len(data) < 8 {
		return BDLEntry{}, &cerr.GuestInputError{Msg: "BDL entry shorter than 8 bytes"}
	}

	addr := binary.LittleEndian.Uint32(data[0:4])
	if addr&0x3 != 0 {
		return BDLEntry{}, &cerr.GuestInputError{Msg: "BDL entry address not 4-byte aligned"}
	}

	ctlLen := binary.LittleEndian.Uint32(data[4:8])
	samples := uint16(ctlLen & 0xFFFF)
	reserved := (ctlLen >> 16) & 0x3FFF
	if reserved != 0 {
		return BDLEntry{}, &cerr.GuestInputError{Msg: "BDL entry reserved bits 16-29 not zero"}
	}
	bup := ctlLen&(1<<30) != 0
	ioc := ctlLen&(1<<31) != 0

	return BDLEntry{Addr: addr, Samples: samples, BUP: bup, IOC: ioc}, nil
}

// BDLCursor tracks CIV/LVI/PIV, all 5-bit indices into a 32-entry BDL
// (spec §4.4.1).
type BDLCursor struct {
	CIV uint8
	LVI uint8
	PIV uint8
}

func wrap5(v int) uint8 { return uint8(v % MaxBDLEntries) }

// StatusBits mirrors the device status register bits the pump
// manipulates (spec §4.4 step 4, Scenario 2).
type StatusBits uint32

const (
	CELV  StatusBits = 1 << iota // current-entry-last-valid cleared on fetch
	BCIS                         // buffer-completion-interrupt-status (IOC fired)
	LVBCI                        // last-valid-buffer-completion-interrupt
	DCH                          // controller halted
	BUPFlag
)

// Has reports whether all bits in o are set in b.
func (b StatusBits) Has(o StatusBits) bool { return b&o == o }

// FetchNext implements spec §4.4.1: advance CIV := PIV; PIV := PIV+1 mod
// 32; read the entry at bdbar+CIV*8 via readEntry. If the fetched entry
// has a zero length and CIV != LVI, advance again (carrying forward any
// BCIS the skipped entry's IOC bit would have set). If length is zero and
// CIV == LVI, stay and let the caller handle CELV.
func (c *BDLCursor) FetchNext(readEntry func(idx uint8) (BDLEntry, error)) (BDLEntry, StatusBits, error) {
	var accumulated StatusBits

	for {
		c.CIV = c.PIV
		c.PIV = wrap5(int(c.PIV) + 1)

		entry, err := readEntry(c.CIV)
		if err != nil {
			return BDLEntry{}, accumulated, err
		}

		if entry.Samples == 0 {
			if entry.IOC {
				accumulated |= BCIS
			}
			if c.CIV != c.LVI {
				continue
			}
		}
		return entry, accumulated, nil
	}
}
