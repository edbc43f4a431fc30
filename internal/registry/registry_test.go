package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procbridge/coworker/internal/cancel"
)

func TestNew_RegistersHealth(t *testing.T) {
	r := New(nil)
	h, ok := r.Lookup("health")
	require.True(t, ok)
	assert.False(t, h.AcceptsCancel)

	result, err := h.Invoke(context.Background(), nil, nil)
	require.NoError(t, err)
	body, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "healthy", body["status"])
}

func TestRegister_DetectsPlainHandler(t *testing.T) {
	r := New(nil)
	r.Register("echo", HandlerFunc(func(_ context.Context, body any) (any, error) {
		return body, nil
	}))

	h, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.False(t, h.AcceptsCancel)

	out, err := h.Invoke(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestRegister_DetectsCancellableHandler(t *testing.T) {
	r := New(nil)
	r.Register("slow", CancellableHandlerFunc(func(_ context.Context, body any, sig *cancel.Signal) (any, error) {
		return sig.IsSet(), nil
	}))

	h, ok := r.Lookup("slow")
	require.True(t, ok)
	assert.True(t, h.AcceptsCancel)

	sig := cancel.NewSignal()
	sig.Set()
	out, err := h.Invoke(context.Background(), nil, sig)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestRegister_ReplacesOnReRegistration(t *testing.T) {
	r := New(nil)
	r.Register("dup", HandlerFunc(func(_ context.Context, _ any) (any, error) { return 1, nil }))
	r.Register("dup", HandlerFunc(func(_ context.Context, _ any) (any, error) { return 2, nil }))

	h, _ := r.Lookup("dup")
	out, _ := h.Invoke(context.Background(), nil, nil)
	assert.Equal(t, 2, out)
}

func TestLookup_UnknownMethod(t *testing.T) {
	r := New(nil)
	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}
