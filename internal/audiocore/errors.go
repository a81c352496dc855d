package audiocore

import (
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

// Sentinel errors shared across the audiocore packages. Matching is by
// category via errors.Is, so wrapped instances compare equal to these.
var (
	// ErrStreamNotFound is returned when a stream ID is unknown
	ErrStreamNotFound = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryNotFound).
		Context("resource", "stream").
		Build()

	// ErrBufferBusy is returned when a second writer or reader enters the
	// ring buffer while a call is already in progress
	ErrBufferBusy = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryConflict).
		Context("resource", "ring_buffer").
		Build()

	// ErrInvalidRange is returned for out-of-range peek and skip requests
	ErrInvalidRange = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("resource", "ring_buffer").
		Build()

	// ErrStreamFailed is returned when a stream has exhausted recovery and
	// entered the failed state
	ErrStreamFailed = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryStream).
		Context("resource", "stream").
		Build()

	// ErrProcessingOverrun is the recoverable deadline-miss condition
	ErrProcessingOverrun = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryOverrun).
		Context("resource", "stream").
		Build()
)
