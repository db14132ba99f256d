package dmapump

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeEntry(addr uint32, samples uint16, bup, ioc bool) []byte {
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
	return buf
}

func Test_ParseBDLEntry_decodesFields(t *testing.T) {
	buf := encodeEntry(0x1000, 0x1800, false, true)
	e, err := ParseBDLEntry(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1000), e.Addr)
	assert.Equal(t, uint16(0x1800), e.Samples)
	assert.True(t, e.IOC)
	assert.False(t, e.BUP)
}

func Test_ParseBDLEntry_rejectsMisalignedAddress(t *testing.T) {
	buf := encodeEntry(0x1001, 0x100, false, false)
	_, err := ParseBDLEntry(buf)
	assert.Error(t, err)
}

func Test_ParseBDLEntry_rejectsReservedBits(t *testing.T) {
	buf := encodeEntry(0x1000, 0x100, false, false)
	binary.LittleEndian.PutUint32(buf[4:8], binary.LittleEndian.Uint32(buf[4:8])|(1<<20))
	_, err := ParseBDLEntry(buf)
	assert.Error(t, err)
}

// Scenario 2 from the testable-properties list: BDL walk with IOC.
func Test_BDLWalk_scenario2(t *testing.T) {
	entries := map[uint8][]byte{
		0: encodeEntry(0x1000, 0x1000, false, true),
		1: encodeEntry(0x2000, 0x0800, false, false),
		2: encodeEntry(0x3000, 0x0800, false, true),
	}
	read := func(idx uint8) (BDLEntry, error) {
		return ParseBDLEntry(entries[idx])
	}

	cursor := BDLCursor{LVI: 2}

	e0, _, err := cursor.FetchNext(read)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), cursor.CIV)
	assert.Equal(t, uint8(1), cursor.PIV)
	assert.True(t, e0.IOC)

	e1, _, err := cursor.FetchNext(read)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), cursor.CIV)
	assert.Equal(t, uint8(2), cursor.PIV)
	assert.False(t, e1.IOC)

	e2, acc, err := cursor.FetchNext(read)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), cursor.CIV)
	assert.Equal(t, uint8(3), cursor.PIV)
	assert.True(t, e2.IOC)
	assert.Equal(t, uint8(2), cursor.LVI)
	assert.True(t, cursor.CIV == cursor.LVI)
	_ = acc
}

func Test_BDLWalk_skipsZeroLengthEntries(t *testing.T) {
	entries := map[uint8][]byte{
		0: encodeEntry(0x1000, 0, true, true), // zero-length, IOC set
		1: encodeEntry(0x2000, 0x100, false, false),
	}
	read := func(idx uint8) (BDLEntry, error) {
		return ParseBDLEntry(entries[idx])
	}
	cursor := BDLCursor{LVI: 1}
	e, acc, err := cursor.FetchNext(read)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x100), e.Samples)
	assert.True(t, acc.Has(BCIS))
}
