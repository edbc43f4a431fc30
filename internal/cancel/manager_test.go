package cancel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancel_Idempotent(t *testing.T) {
	m := NewManager(nil)
	m.Register(1)

	assert.True(t, m.Cancel(1, "first"))
	assert.False(t, m.Cancel(1, "second"))
	assert.True(t, m.IsCancelled(1))
}

func TestCancel_UnknownIDReturnsFalse(t *testing.T) {
	m := NewManager(nil)
	assert.False(t, m.Cancel(999, "no slot"))
	assert.False(t, m.IsCancelled(999))
}

func TestCleanup_RunsOnceInOrderAfterUnregister(t *testing.T) {
	m := NewManager(nil)
	m.Register(1)

	var order []int
	m.AddCleanup(1, func() { order = append(order, 1) })
	m.AddCleanup(1, func() { order = append(order, 2) })
	m.AddCleanup(1, func() { order = append(order, 3) })

	m.Unregister(1)
	assert.Equal(t, []int{1, 2, 3}, order)

	// Re-registration after unregister starts a fresh cleanup list.
	m.Register(1)
	m.Unregister(1)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestCleanup_PanicDoesNotBlockSubsequentCallbacks(t *testing.T) {
	m := NewManager(nil)
	m.Register(1)

	ran := false
	m.AddCleanup(1, func() { panic("boom") })
	m.AddCleanup(1, func() { ran = true })

	m.Unregister(1)
	assert.True(t, ran)
}

func TestTrack_ReturnsCancelledWhenSignalSetBeforeExit(t *testing.T) {
	m := NewManager(nil)

	err := m.Track(1, func(sig *Signal) error {
		m.Cancel(1, "user")
		return nil
	})

	require.Error(t, err)
	var c *Cancelled
	require.ErrorAs(t, err, &c)
	assert.Equal(t, "user", c.Reason)
	assert.Equal(t, "Cancelled: user", c.Error())
}

func TestTrack_PassesThroughHandlerError(t *testing.T) {
	m := NewManager(nil)

	want := assert.AnError
	err := m.Track(1, func(sig *Signal) error {
		return want
	})
	assert.Equal(t, want, err)
}

func TestTrack_AlwaysUnregisters(t *testing.T) {
	m := NewManager(nil)
	_ = m.Track(1, func(sig *Signal) error { return nil })
	assert.False(t, m.IsCancelled(1))
}

func TestCancelAll_CancelsEveryLiveSlot(t *testing.T) {
	m := NewManager(nil)
	m.Register(1)
	m.Register(2)

	m.CancelAll("connection closed")

	assert.True(t, m.IsCancelled(1))
	assert.True(t, m.IsCancelled(2))
}
