package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitOrderAndArgs(t *testing.T) {
	bus := New()

	var calls []string

	bus.On("chat", func(args ...any) {
		calls = append(calls, "first:"+args[0].(string))
	})
	bus.On("chat", func(args ...any) {
		calls = append(calls, "second:"+args[0].(string))
	})

	bus.Emit("chat", "hello")

	assert.Equal(t, []string{"first:hello", "second:hello"}, calls)
}

func TestBus_EmitWithoutListeners(t *testing.T) {
	bus := New()

	assert.NotPanics(t, func() {
		bus.Emit("nobody", 1, 2, 3)
	})
}

func TestBus_DuplicateRegistrationFiresTwice(t *testing.T) {
	bus := New()

	count := 0
	listener := func(...any) { count++ }

	bus.On("tick", listener)
	bus.On("tick", listener)
	bus.Emit("tick")

	assert.Equal(t, 2, count)
	assert.Equal(t, 2, bus.Listeners("tick"))
}

func TestBus_ListenCancel(t *testing.T) {
	bus := New()

	var calls []int

	cancelFirst := bus.Listen("x", func(...any) { calls = append(calls, 1) })
	bus.On("x", func(...any) { calls = append(calls, 2) })

	cancelFirst()
	cancelFirst()

	bus.Emit("x")

	assert.Equal(t, []int{2}, calls)
	assert.Equal(t, 1, bus.Listeners("x"))
}

func TestBus_ListenerRegisteredDuringEmit(t *testing.T) {
	bus := New()

	late := 0

	bus.On("x", func(...any) {
		bus.On("x", func(...any) { late++ })
	})

	bus.Emit("x")
	assert.Equal(t, 0, late)

	bus.Emit("x")
	assert.Equal(t, 1, late)
}

func TestBus_ListenerPanicPropagates(t *testing.T) {
	bus := New()

	bus.On("boom", func(...any) { panic("listener failed") })

	require.PanicsWithValue(t, "listener failed", func() {
		bus.Emit("boom")
	})
}

func TestBus_Clear(t *testing.T) {
	bus := New()

	fired := false
	bus.On("x", func(...any) { fired = true })

	bus.Clear()
	bus.Emit("x")

	assert.False(t, fired)
	assert.Zero(t, bus.Listeners("x"))
}
