package mixbuf

import "github.com/doismellburning/ac97mixer/pcm"

// PeekState decodes the mix buffer's internal signed-32 samples out to an
// external PCM layout (spec §3, §4.1). It is bound to one (Buffer,
// external Properties) pair; a format change mandates recreating it via
// Buffer.InitPeekState.
type PeekState struct {
	rate        rateConv
	externalHz  int
	srcChannels int // internal (mix buffer) channel count
	dstChannels int // external channel count
	channelMap  [pcm.MaxChannels]int
	externalPCM pcm.Properties
}

// WriteState encodes an external PCM layout into the mix buffer's
// internal signed-32 samples (spec §3, §4.1).
type WriteState struct {
	rate        rateConv
	srcChannels int // external channel count
	dstChannels int // internal (mix buffer) channel count
	channelMap  [pcm.MaxChannels]int
	externalPCM pcm.Properties
}

func newPeekState(internal, external pcm.Properties) *PeekState {
	return &PeekState{
		rate:        newRateConv(internal.FrequencyHz, external.FrequencyHz, external.Channels),
		externalHz:  external.FrequencyHz,
		srcChannels: internal.Channels,
		dstChannels: external.Channels,
		channelMap:  buildChannelMap(internal.Channels, external.Channels),
		externalPCM: external,
	}
}

func newWriteState(internal, external pcm.Properties) *WriteState {
	return &WriteState{
		rate:        newRateConv(external.FrequencyHz, internal.FrequencyHz, internal.Channels),
		srcChannels: external.Channels,
		dstChannels: internal.Channels,
		channelMap:  buildChannelMap(external.Channels, internal.Channels),
		externalPCM: external,
	}
}
