package pipeline

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nvr-ai/go-mcdetect/frame"
)

func TestRegistry_RegisterAndOrder(t *testing.T) {
	r := NewRegistry(nil)
	var calls []string

	require.NoError(t, r.Register("first", func(frame.Frame) bool { calls = append(calls, "first"); return true }))
	require.NoError(t, r.Register("second", func(frame.Frame) bool { calls = append(calls, "second"); return true }))

	assert.Equal(t, []string{"first", "second"}, r.Names())
	assert.True(t, r.Dispatch(frame.NewVideoFrame(640, 360)))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestRegistry_RejectsDuplicateAndNil(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("detect", func(frame.Frame) bool { return true }))

	err := r.Register("detect", func(frame.Frame) bool { return true })
	assert.True(t, errors.Is(err, ErrDuplicateCallback))

	assert.Error(t, r.Register("nil", nil))
	assert.Equal(t, []string{"detect"}, r.Names())
}

func TestRegistry_DispatchFailureAndPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := NewRegistry(zap.New(core))
	ran := false

	require.NoError(t, r.Register("fails", func(frame.Frame) bool { return false }))
	require.NoError(t, r.Register("panics", func(frame.Frame) bool { panic("boom") }))
	require.NoError(t, r.Register("last", func(frame.Frame) bool { ran = true; return true }))

	assert.False(t, r.Dispatch(frame.NewVideoFrame(1, 1)))
	assert.True(t, ran)
	require.Equal(t, 1, logs.FilterMessage("callback panicked").Len())
	assert.Equal(t, "panics", logs.All()[0].ContextMap()["callback"])
}

func TestRegistry_Empty(t *testing.T) {
	assert.True(t, NewRegistry(nil).Dispatch(frame.NewVideoFrame(1, 1)))
}
