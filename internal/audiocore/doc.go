// Package audiocore provides the real-time audio pipeline for the game-calls
// engine: capture, buffering, format conversion, streaming orchestration and
// quality assessment of multi-channel PCM audio.
//
// Architecture overview:
//
//	AudioSource -> streaming.Processor -> per-stream CircularBuffer
//	                    |                        |
//	                convert.Converter      quality.Assessor
//
// Key pieces:
//   - CircularBuffer: fixed-capacity ring store for interleaved float32
//     samples, one writer and one reader, explicit overflow policy
//   - ScratchPool: tiered pool of float32 scratch slices for per-call
//     converter and assessor workspaces
//   - convert: sample rate / bit depth / channel layout conversion
//   - quality: objective and perceptual metrics plus real-time monitoring
//   - streaming: multi-stream orchestration under per-chunk deadlines
//   - sources: audio inputs (microphone via malgo)
package audiocore
