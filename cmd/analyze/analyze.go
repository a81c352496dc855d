// Package analyze implements batch analysis of audio files: quality metrics,
// artifact detection and optional format conversion.
package analyze

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore/convert"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore/quality"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/conf"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
)

// Command returns the analyze subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var targetFormat string
	var targetRate int
	var outputPath string

	cmd := &cobra.Command{
		Use:   "analyze [input.wav]",
		Short: "Assess the quality of an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, args[0], targetFormat, targetRate, outputPath)
		},
	}

	cmd.Flags().StringVar(&targetFormat, "convert", "", "convert to this format after analysis (wav, flac, mp3, aac, opus, vorbis)")
	cmd.Flags().IntVar(&targetRate, "rate", 0, "target sample rate for conversion, defaults to the source rate")
	cmd.Flags().StringVar(&outputPath, "output", "", "write converted audio to this wav file")

	return cmd
}

func run(settings *conf.Settings, inputPath, targetFormat string, targetRate int, outputPath string) error {
	samples, sampleRate, channels, bitDepth, err := readWav(inputPath)
	if err != nil {
		return err
	}

	assessor, err := quality.NewAssessor(quality.AssessorConfig{
		SampleRate:   sampleRate,
		FFTSize:      settings.Quality.FFTSize,
		NoiseFloorDb: settings.Quality.NoiseFloorDb,
	})
	if err != nil {
		return err
	}

	metrics, err := assessor.Assess(samples, nil)
	if err != nil {
		return err
	}

	fmt.Printf("File:            %s\n", inputPath)
	fmt.Printf("Format:          %d Hz, %d ch, %d bit, %d frames\n", sampleRate, channels, bitDepth, len(samples)/channels)
	fmt.Printf("SNR:             %.1f dB\n", metrics.SNR)
	fmt.Printf("THD+N:           %.1f dB\n", metrics.THDDb)
	fmt.Printf("Dynamic range:   %.1f dB\n", metrics.DynamicRangeDb)
	fmt.Printf("Centroid:        %.0f Hz\n", metrics.SpectralCentroid)
	fmt.Printf("Flatness:        %.3f\n", metrics.SpectralFlatness)
	fmt.Printf("Bandwidth:       %.0f Hz\n", metrics.SpectralBandwidth)
	fmt.Printf("Rolloff (85%%):   %.0f Hz\n", metrics.SpectralRolloff)
	fmt.Printf("Perceptual:      %.2f / 5\n", metrics.PerceptualScore)

	detected := make([]string, 0, len(metrics.Artifacts))
	for _, art := range metrics.Artifacts {
		if art.Detected {
			detected = append(detected, fmt.Sprintf("%s (severity %.2f)", art.Type, art.Severity))
		}
	}
	if len(detected) > 0 {
		fmt.Printf("Artifacts:       %s\n", strings.Join(detected, ", "))
	} else {
		fmt.Printf("Artifacts:       none detected\n")
	}

	if targetFormat == "" {
		return nil
	}
	if targetRate == 0 {
		targetRate = sampleRate
	}

	converter := convert.NewConverter()
	converted, err := converter.Convert(samples, "wav", targetFormat, convert.ConversionParameters{
		SourceRate:     sampleRate,
		TargetRate:     targetRate,
		SourceChannels: channels,
		TargetChannels: channels,
		SourceBitDepth: bitDepth,
		TargetBitDepth: bitDepth,
		Quality:        convert.QualityBalanced,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Converted:       %s, %d frames at %d Hz\n", targetFormat, len(converted)/channels, targetRate)

	if outputPath != "" {
		if err := writeWav(outputPath, converted, targetRate, channels, bitDepth); err != nil {
			return err
		}
		fmt.Printf("Written:         %s\n", outputPath)
	}
	return nil
}

// readWav decodes a wav file into normalized float32 samples.
func readWav(path string) ([]float32, int, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, 0, errors.New(err).
			Component("analyze").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, 0, errors.New(err).
			Component("analyze").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Context("operation", "decode_wav").
			Build()
	}

	bitDepth := int(decoder.BitDepth)
	scale := float32(int64(1) << (bitDepth - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}

	return samples, buf.Format.SampleRate, buf.Format.NumChannels, bitDepth, nil
}

// writeWav encodes float32 samples back to integer PCM.
func writeWav(path string, samples []float32, sampleRate, channels, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Component("analyze").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	scale := float64(int64(1)<<(bitDepth-1) - 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(float64(s) * scale)
	}

	encoder := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	if err := encoder.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}); err != nil {
		return errors.New(err).
			Component("analyze").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Context("operation", "encode_wav").
			Build()
	}
	return encoder.Close()
}
