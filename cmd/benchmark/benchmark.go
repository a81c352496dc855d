// Package benchmark measures converter and assessor throughput against the
// real-time budget of the configured chunk size.
package benchmark

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore/convert"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore/quality"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/conf"
)

// Command returns the benchmark subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var iterations int
	var chunkSamples int

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure processing throughput on synthetic audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, iterations, chunkSamples)
		},
	}

	cmd.Flags().IntVar(&iterations, "iterations", 200, "chunks to process per stage")
	cmd.Flags().IntVar(&chunkSamples, "chunk", 4096, "frames per chunk")

	return cmd
}

func run(settings *conf.Settings, iterations, chunkSamples int) error {
	sampleRate := settings.Audio.SampleRate
	if sampleRate == 0 {
		sampleRate = 48000
	}
	budget := time.Duration(float64(chunkSamples) / float64(sampleRate) * float64(time.Second))
	chunk := sineChunk(1000, 0.5, chunkSamples, sampleRate)

	fmt.Printf("Benchmark:       %d iterations, %d-frame chunks at %d Hz\n", iterations, chunkSamples, sampleRate)
	fmt.Printf("Real-time budget %s per chunk\n\n", budget)

	report("ring buffer write+read", benchBuffer(chunk, chunkSamples, sampleRate), iterations, budget)
	report("resample 48k -> 44.1k", benchConvert(chunk, sampleRate), iterations, budget)
	report("quality assessment", benchAssess(chunk, sampleRate, settings), iterations, budget)
	report("real-time monitor", benchMonitor(chunk, sampleRate, settings), iterations, budget)

	return nil
}

func benchBuffer(chunk []float32, chunkSamples, sampleRate int) func(int) error {
	buffer, err := audiocore.NewCircularBuffer(audiocore.BufferConfig{
		SampleRate: sampleRate,
		Channels:   1,
		Capacity:   chunkSamples * 4,
		Format:     audiocore.FormatF32,
		Overflow:   audiocore.OverflowOverwrite,
	})
	return func(int) error {
		if err != nil {
			return err
		}
		if _, err := buffer.Write(chunk); err != nil {
			return err
		}
		_, err := buffer.Read(chunkSamples)
		return err
	}
}

func benchConvert(chunk []float32, sampleRate int) func(int) error {
	converter := convert.NewConverter()
	params := convert.ConversionParameters{
		SourceRate:     sampleRate,
		TargetRate:     44100,
		SourceChannels: 1,
		TargetChannels: 1,
		SourceBitDepth: 32,
		TargetBitDepth: 16,
		Quality:        convert.QualityBalanced,
	}
	return func(int) error {
		_, err := converter.Convert(chunk, "wav", "flac", params)
		return err
	}
}

func benchAssess(chunk []float32, sampleRate int, settings *conf.Settings) func(int) error {
	assessor, err := quality.NewAssessor(quality.AssessorConfig{
		SampleRate:   sampleRate,
		FFTSize:      settings.Quality.FFTSize,
		NoiseFloorDb: settings.Quality.NoiseFloorDb,
	})
	return func(int) error {
		if err != nil {
			return err
		}
		_, assessErr := assessor.Assess(chunk, nil)
		return assessErr
	}
}

func benchMonitor(chunk []float32, sampleRate int, settings *conf.Settings) func(int) error {
	assessor, err := quality.NewAssessor(quality.AssessorConfig{
		SampleRate:   sampleRate,
		FFTSize:      settings.Quality.FFTSize,
		NoiseFloorDb: settings.Quality.NoiseFloorDb,
	})
	if err != nil {
		return func(int) error { return err }
	}
	monitor := quality.NewMonitor(assessor)
	if _, startErr := monitor.StartRealTimeMonitoring(nil, quality.ThresholdConfig{
		PeakMax: settings.Quality.PeakMax,
		RMSMax:  settings.Quality.RMSMax,
	}); startErr != nil {
		return func(int) error { return startErr }
	}
	return func(int) error {
		_, _, procErr := monitor.ProcessChunk(chunk)
		return procErr
	}
}

// report runs one stage and prints throughput against the real-time budget.
func report(name string, step func(int) error, iterations int, budget time.Duration) {
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if err := step(i); err != nil {
			fmt.Printf("%-24s failed: %v\n", name, err)
			return
		}
	}
	elapsed := time.Since(start)
	perCall := elapsed / time.Duration(iterations)
	factor := float64(budget) / float64(perCall)
	fmt.Printf("%-24s %8s/call  %10.0f chunks/s  %8.1fx real-time\n",
		name, perCall.Round(time.Microsecond), float64(time.Second)/float64(perCall), factor)
}

func sineChunk(freq, amp float64, frames, sampleRate int) []float32 {
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return samples
}
