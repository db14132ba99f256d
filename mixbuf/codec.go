package mixbuf

import "github.com/doismellburning/ac97mixer/pcm"

// The mix buffer always stores samples internally as a signed value
// scaled to the top of the int32 range (native bit depth left-shifted),
// giving headroom for Blend's saturating add regardless of the external
// PCM properties' bit depth. decodeSample/encodeSample convert between
// that internal domain and an arbitrary external byte encoding.

func decodeSample(b []byte, p pcm.Properties) int32 {
	n := p.SampleBytes
	bits := uint(n * 8)

	var raw uint64
	if p.SwapEndian {
		for i := 0; i < n; i++ {
			raw |= uint64(b[i]) << uint(8*(n-1-i))
		}
	} else {
		for i := 0; i < n; i++ {
			raw |= uint64(b[i]) << uint(8*i)
		}
	}

	var v int64
	if p.Signed {
		shiftExt := 64 - bits
		v = int64(raw<<shiftExt) >> shiftExt
	} else {
		v = int64(raw) - int64(1)<<(bits-1)
	}

	shift := int(32) - int(bits)
	switch {
	case shift > 0:
		v <<= uint(shift)
	case shift < 0:
		v >>= uint(-shift)
	}
	return int32(v)
}

func encodeSample(dst []byte, p pcm.Properties, v32 int32) {
	n := p.SampleBytes
	bits := uint(n * 8)

	v := int64(v32)
	shift := int(32) - int(bits)
	switch {
	case shift > 0:
		v >>= uint(shift)
	case shift < 0:
		v <<= uint(-shift)
	}

	if !p.Signed {
		v += int64(1) << (bits - 1)
	}

	raw := uint64(v) & maskForBits(bits)
	if p.SwapEndian {
		for i := 0; i < n; i++ {
			dst[i] = byte(raw >> uint(8*(n-1-i)))
		}
	} else {
		for i := 0; i < n; i++ {
			dst[i] = byte(raw >> uint(8*i))
		}
	}
}

func maskForBits(bits uint) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}
