// Package realtime runs the live capture pipeline: soundcard to streaming
// processor with quality monitoring and optional metrics.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore"
	malgosource "github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore/sources/malgo"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore/streaming"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/conf"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/logging"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/observability"
)

// Command returns the realtime subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var listDevices bool

	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Capture and process live audio until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listDevices {
				return printDevices()
			}
			return run(settings)
		},
	}

	cmd.Flags().BoolVar(&listDevices, "list-devices", false, "list capture devices and exit")

	return cmd
}

func printDevices() error {
	devices, err := malgosource.EnumerateDevices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %d: %s [%s]\n", marker, d.Index, d.Name, d.ID)
	}
	return nil
}

func run(settings *conf.Settings) error {
	logger := logging.ForService("realtime")
	if logger == nil {
		logger = slog.Default()
	}

	var wg sync.WaitGroup
	quitChan := make(chan struct{})

	if settings.Metrics.Enabled {
		endpoint, err := observability.NewEndpoint(settings)
		if err != nil {
			return err
		}
		audiocore.InitMetrics(endpoint.Engine)
		endpoint.Start(&wg, quitChan)
	} else {
		audiocore.InitMetrics(nil)
	}

	processor, err := streaming.NewProcessor(settings)
	if err != nil {
		return err
	}

	streamID, err := processor.InitializeStream(streaming.StreamConfig{
		SampleRate:    settings.Audio.SampleRate,
		Channels:      settings.Audio.Channels,
		BufferSamples: settings.Streaming.BufferSamples,
		Priority:      1,
		CPUShare:      50,
		MemoryShare:   50,
		QualityChecks: true,
	})
	if err != nil {
		return err
	}

	source := malgosource.NewCaptureSource("capture-0", malgosource.CaptureConfig{
		DeviceName:   settings.Audio.Source,
		SampleRate:   settings.Audio.SampleRate,
		Channels:     settings.Audio.Channels,
		ChunkSamples: settings.Audio.ChunkSamples,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := source.Start(ctx); err != nil {
		processor.DestroyStream(streamID)
		return err
	}

	out, err := processor.RunStream(ctx, streamID, source.Chunks())
	if err != nil {
		_ = source.Stop()
		processor.DestroyStream(streamID)
		return err
	}

	// Drain processed chunks and side channels until shutdown.
	wg.Add(1)
	go func() {
		defer wg.Done()
		var processed int64
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case _, ok := <-out:
				if !ok {
					return
				}
				processed++
			case <-ticker.C:
				if info, err := processor.StreamInfo(streamID); err == nil {
					logger.Info("stream status",
						"stream_id", streamID,
						"status", info.Status.String(),
						"tier", info.Tier.String(),
						"chunks", info.ChunksProcessed,
						"overruns", info.Overruns,
						"buffer_level", info.BufferStats.Level,
						"dropped_bytes", source.DroppedBytes())
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case n, ok := <-processor.Notifications():
				if !ok {
					return
				}
				logger.Warn("stream notification",
					"stream_id", n.StreamID,
					"status", n.Status.String(),
					"reason", n.Reason)
			case captureErr, ok := <-source.Errors():
				if !ok {
					return
				}
				logger.Error("capture error", "error", captureErr)
			case <-quitChan:
				return
			}
		}
	}()

	logger.Info("realtime pipeline running",
		"stream_id", streamID,
		"device", settings.Audio.Source,
		"sample_rate", settings.Audio.SampleRate)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", "signal", sig.String())

	cancel()
	_ = source.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := processor.Shutdown(shutdownCtx); err != nil {
		logger.Error("processor shutdown failed", "error", err)
	}

	close(quitChan)
	wg.Wait()
	return nil
}
