package mixbuf

import "github.com/doismellburning/ac97mixer/pcm"

// Channel map sentinel values (spec §3: "an array of up to 16 signed
// indices where -1 means emit zero and -2 means emit silence midpoint").
const (
	ChanZero            = -1
	ChanSilenceMidpoint = -2
)

// buildChannelMap computes, for each of dstChannels destination channels,
// which srcChannels source channel feeds it (or one of the sentinels
// above). This is deliberately simple index-based selection, not a
// real downmix matrix (spec §1 Non-goals).
func buildChannelMap(srcChannels, dstChannels int) [pcm.MaxChannels]int {
	var m [pcm.MaxChannels]int
	for i := range m {
		m[i] = ChanSilenceMidpoint
	}

	switch {
	case srcChannels == dstChannels:
		for i := 0; i < dstChannels; i++ {
			m[i] = i
		}
	case srcChannels == 1:
		// Mono source duplicated to every destination channel.
		for i := 0; i < dstChannels; i++ {
			m[i] = 0
		}
	case dstChannels == 1:
		// First source channel only.
		m[0] = 0
	default:
		for i := 0; i < dstChannels; i++ {
			if i < srcChannels {
				m[i] = i
			}
		}
	}
	return m
}
