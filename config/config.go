// Package config loads the per-direction stream overrides and global
// keys of spec §6, mirroring the teacher's config.go / pflag+yaml split:
// a YAML file supplies the settings and cmd/acmixerd names it with
// --config. No command-line flag overrides an individual key.
package config

import (
	"gopkg.in/yaml.v3"
)

// Unset marks a PreBufferSizeMs override as not present (spec §6: "or
// 0xffffffff meaning unset").
const Unset = 0xffffffff

// DirectionOverride holds the §6 "Direction-specific configuration" keys
// for one direction (In or Out).
type DirectionOverride struct {
	PCMSampleBit        int  `yaml:"PCMSampleBit"`
	PCMSampleHz         int  `yaml:"PCMSampleHz"`
	PCMSampleSigned     int  `yaml:"PCMSampleSigned"` // 0, 1, or 255 (use default)
	PCMSampleSwapEndian int  `yaml:"PCMSampleSwapEndian"`
	PCMSampleChannels   int  `yaml:"PCMSampleChannels"`
	PeriodSizeMs        int  `yaml:"PeriodSizeMs"`
	BufferSizeMs        int  `yaml:"BufferSizeMs"`
	PreBufferSizeMs     uint `yaml:"PreBufferSizeMs"`
}

// Config is the full set of driver configuration: per-direction overrides
// plus the global keys.
type Config struct {
	DriverName     string             `yaml:"DriverName"`
	InputEnabled   bool               `yaml:"InputEnabled"`
	OutputEnabled  bool               `yaml:"OutputEnabled"`
	DebugEnabled   bool               `yaml:"DebugEnabled"`
	DebugPathOut   string             `yaml:"DebugPathOut"`
	In             DirectionOverride  `yaml:"In"`
	Out            DirectionOverride  `yaml:"Out"`
}

// Default returns a Config with both directions enabled and no overrides
// (PCMSampleSigned/SwapEndian at their "use default" sentinel of 255).
func Default() Config {
	return Config{
		InputEnabled:  true,
		OutputEnabled: true,
		In:            DirectionOverride{PCMSampleSigned: 255, PCMSampleSwapEndian: 255},
		Out:           DirectionOverride{PCMSampleSigned: 255, PCMSampleSwapEndian: 255, PreBufferSizeMs: Unset},
	}
}

// legacyKeys is the flat "<Key>In"/"<Key>Out" spelling accepted alongside
// the nested "In/<Key>"/"Out/<Key>" form (spec §6).
type legacyKeys struct {
	PCMSampleBitIn         *int  `yaml:"PCMSampleBitIn"`
	PCMSampleBitOut        *int  `yaml:"PCMSampleBitOut"`
	PCMSampleHzIn          *int  `yaml:"PCMSampleHzIn"`
	PCMSampleHzOut         *int  `yaml:"PCMSampleHzOut"`
	PCMSampleSignedIn      *int  `yaml:"PCMSampleSignedIn"`
	PCMSampleSignedOut     *int  `yaml:"PCMSampleSignedOut"`
	PCMSampleSwapEndianIn  *int  `yaml:"PCMSampleSwapEndianIn"`
	PCMSampleSwapEndianOut *int  `yaml:"PCMSampleSwapEndianOut"`
	PCMSampleChannelsIn    *int  `yaml:"PCMSampleChannelsIn"`
	PCMSampleChannelsOut   *int  `yaml:"PCMSampleChannelsOut"`
	PeriodSizeMsIn         *int  `yaml:"PeriodSizeMsIn"`
	PeriodSizeMsOut        *int  `yaml:"PeriodSizeMsOut"`
	BufferSizeMsIn         *int  `yaml:"BufferSizeMsIn"`
	BufferSizeMsOut        *int  `yaml:"BufferSizeMsOut"`
	PreBufferSizeMsIn      *uint `yaml:"PreBufferSizeMsIn"`
	PreBufferSizeMsOut     *uint `yaml:"PreBufferSizeMsOut"`
}

// LoadYAML parses cfg's nested In/Out keys plus any legacy flat spellings,
// normalizing everything into the nested form before returning.
func LoadYAML(data []byte) (Config, error) {
	var c = Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}

	var legacy legacyKeys
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return Config{}, err
	}
	applyLegacy(&c.In, legacyFor(legacy, "In"))
	applyLegacy(&c.Out, legacyFor(legacy, "Out"))

	return c, nil
}

type legacySide struct {
	pcmBit, pcmHz, pcmSigned, pcmSwap, pcmChan, period, buffer *int
	preBuffer                                                  *uint
}

func legacyFor(l legacyKeys, side string) legacySide {
	if side == "In" {
		return legacySide{l.PCMSampleBitIn, l.PCMSampleHzIn, l.PCMSampleSignedIn, l.PCMSampleSwapEndianIn, l.PCMSampleChannelsIn, l.PeriodSizeMsIn, l.BufferSizeMsIn, l.PreBufferSizeMsIn}
	}
	return legacySide{l.PCMSampleBitOut, l.PCMSampleHzOut, l.PCMSampleSignedOut, l.PCMSampleSwapEndianOut, l.PCMSampleChannelsOut, l.PeriodSizeMsOut, l.BufferSizeMsOut, l.PreBufferSizeMsOut}
}

func applyLegacy(d *DirectionOverride, l legacySide) {
	if l.pcmBit != nil {
		d.PCMSampleBit = *l.pcmBit
	}
	if l.pcmHz != nil {
		d.PCMSampleHz = *l.pcmHz
	}
	if l.pcmSigned != nil {
		d.PCMSampleSigned = *l.pcmSigned
	}
	if l.pcmSwap != nil {
		d.PCMSampleSwapEndian = *l.pcmSwap
	}
	if l.pcmChan != nil {
		d.PCMSampleChannels = *l.pcmChan
	}
	if l.period != nil {
		d.PeriodSizeMs = *l.period
	}
	if l.buffer != nil {
		d.BufferSizeMs = *l.buffer
	}
	if l.preBuffer != nil {
		d.PreBufferSizeMs = *l.preBuffer
	}
}
