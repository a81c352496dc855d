// Package convert implements PCM format conversion: sample-rate conversion,
// bit-depth reduction with optional dither, channel remapping and lossy
// degradation simulation against a fixed codec catalog.
package convert

import (
	"sort"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
)

// FormatSpec describes one entry of the codec catalog: its ceilings and,
// for lossy families, the quantizer resolution used by the degradation
// simulation.
type FormatSpec struct {
	Name          string
	Lossy         bool
	MaxChannels   int
	MaxSampleRate int
	QuantSteps    int // quantization levels for lossy simulation, 0 for lossless
}

// formatCatalog is built once and never mutated. Lookups go through
// LookupFormat.
var formatCatalog = map[string]FormatSpec{
	"wav":    {Name: "wav", Lossy: false, MaxChannels: 32, MaxSampleRate: 192000},
	"flac":   {Name: "flac", Lossy: false, MaxChannels: 8, MaxSampleRate: 192000},
	"mp3":    {Name: "mp3", Lossy: true, MaxChannels: 2, MaxSampleRate: 48000, QuantSteps: 4096},
	"aac":    {Name: "aac", Lossy: true, MaxChannels: 8, MaxSampleRate: 96000, QuantSteps: 8192},
	"opus":   {Name: "opus", Lossy: true, MaxChannels: 2, MaxSampleRate: 48000, QuantSteps: 2048},
	"vorbis": {Name: "vorbis", Lossy: true, MaxChannels: 8, MaxSampleRate: 96000, QuantSteps: 4096},
}

// LookupFormat returns the catalog entry for name.
func LookupFormat(name string) (FormatSpec, error) {
	spec, ok := formatCatalog[name]
	if !ok {
		return FormatSpec{}, errors.Newf("unknown audio format %q", name).
			Component(componentConverter).
			Category(errors.CategoryConversion).
			Context("format", name).
			Build()
	}
	return spec, nil
}

// SupportedFormats returns the catalog names in sorted order.
func SupportedFormats() []string {
	names := make([]string, 0, len(formatCatalog))
	for name := range formatCatalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
