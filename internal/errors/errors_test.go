package errors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderBasics(t *testing.T) {
	err := Newf("device %s not responding", "hw:0").
		Component("capture").
		Category(CategoryAudio).
		Context("device", "hw:0").
		Build()

	assert.Equal(t, "device hw:0 not responding", err.Error())
	assert.Equal(t, "capture", err.GetComponent())
	assert.Equal(t, string(CategoryAudio), err.GetCategory())
	assert.Equal(t, "hw:0", err.GetContext()["device"])
	assert.WithinDuration(t, time.Now(), err.GetTimestamp(), time.Second)
}

func TestBuilderDefaults(t *testing.T) {
	err := Newf("something broke").Build()

	assert.Equal(t, ComponentUnknown, err.GetComponent())
	assert.Equal(t, string(CategoryGeneric), err.GetCategory())
	assert.Empty(t, err.GetPriority())
}

func TestNilBaseError(t *testing.T) {
	t.Run("message from context", func(t *testing.T) {
		err := New(nil).
			Category(CategoryState).
			Context("error", "stream already destroyed").
			Build()
		assert.Equal(t, "stream already destroyed", err.Error())
	})

	t.Run("message from category", func(t *testing.T) {
		err := New(nil).Category(CategoryTimeout).Build()
		assert.Equal(t, string(CategoryTimeout), err.Error())
	})
}

func TestWrapInheritsCategoryAndComponent(t *testing.T) {
	inner := Newf("buffer full").
		Component("audiocore.buffer").
		Category(CategoryBuffer).
		Build()

	outer := Wrap(inner).Context("stream_id", "s1").Build()

	assert.Equal(t, string(CategoryBuffer), outer.GetCategory())
	assert.Equal(t, "audiocore.buffer", outer.GetComponent())
	assert.True(t, IsCategory(outer, CategoryBuffer))
}

func TestWrapOverridesCategory(t *testing.T) {
	inner := Newf("low level failure").Category(CategoryBuffer).Build()
	outer := Wrap(inner).Category(CategoryStream).Build()

	assert.Equal(t, string(CategoryStream), outer.GetCategory())
}

func TestSentinelMatching(t *testing.T) {
	sentinel := Newf("stream not found").
		Category(CategoryNotFound).
		Build()

	wrapped := Wrap(sentinel).Context("stream_id", "missing").Build()

	require.Error(t, wrapped)
	assert.True(t, Is(wrapped, sentinel), "wrapped error must match its sentinel")
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsCategory(wrapped, CategoryTimeout))
}

func TestPriorityValidation(t *testing.T) {
	assert.Equal(t, PriorityCritical, Newf("x").Priority(PriorityCritical).Build().GetPriority())
	assert.Equal(t, PriorityMedium, Newf("x").Priority("bogus").Build().GetPriority())
	assert.Empty(t, Newf("x").Priority("").Build().GetPriority())
}

func TestTimingContext(t *testing.T) {
	err := Newf("deadline exceeded").
		Timing("process_chunk", 42*time.Millisecond).
		Build()

	ctx := err.GetContext()
	assert.Equal(t, "process_chunk", ctx["operation"])
	assert.Equal(t, int64(42), ctx["duration_ms"])
}

func TestContextIsCopied(t *testing.T) {
	err := Newf("x").Context("key", "original").Build()

	ctx := err.GetContext()
	ctx["key"] = "mutated"

	assert.Equal(t, "original", err.GetContext()["key"])
}

func TestValidationErrorHelper(t *testing.T) {
	err := ValidationError("sample rate out of range")
	assert.Equal(t, string(CategoryValidation), err.GetCategory())
	assert.Equal(t, "sample rate out of range", err.Error())
}
