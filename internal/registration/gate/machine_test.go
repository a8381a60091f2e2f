package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineSolve(t *testing.T) {
	m := NewMachine(5)
	require.NoError(t, m.Present(100))
	require.NoError(t, m.Attempt(104))
	assert.Equal(t, Solved, m.State())
	assert.ErrorIs(t, m.Attempt(104), ErrInvalidTransition)
	assert.ErrorIs(t, m.Dismiss(), ErrInvalidTransition)
}

func TestMachineFail(t *testing.T) {
	m := NewMachine(5)
	require.NoError(t, m.Present(100))
	assert.ErrorIs(t, m.Attempt(120), ErrVerificationFailed)
	assert.Equal(t, Failed, m.State())
	assert.ErrorIs(t, m.Attempt(100), ErrInvalidTransition)
}

func TestMachineDismiss(t *testing.T) {
	m := NewMachine(5)
	require.NoError(t, m.Present(100))
	require.NoError(t, m.Dismiss())
	assert.Equal(t, Dismissed, m.State())
	assert.ErrorIs(t, m.Attempt(100), ErrInvalidTransition)
	assert.ErrorIs(t, m.Present(100), ErrInvalidTransition)
}

func TestMachineInvalidTransitions(t *testing.T) {
	var m Machine
	assert.Equal(t, Idle, m.State())
	assert.ErrorIs(t, m.Attempt(1), ErrInvalidTransition)
	assert.ErrorIs(t, m.Dismiss(), ErrInvalidTransition)

	require.NoError(t, m.Present(10))
	assert.ErrorIs(t, m.Present(10), ErrInvalidTransition)
}

func TestWithin(t *testing.T) {
	assert.True(t, Within(100, 94, 6))
	assert.True(t, Within(100, 106, 6))
	assert.False(t, Within(100, 107, 6))
}
