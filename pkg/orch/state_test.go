package orch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	valid := []struct{ from, to State }{
		{StateRouting, StatePlanning},
		{StatePlanning, StateExecuting},
		{StatePlanning, StateDone},
		{StatePlanning, StateFailed},
		{StateExecuting, StateReflecting},
		{StateExecuting, StateAwaitingApproval},
		{StateReflecting, StatePlanning},
		{StateReflecting, StateDone},
		{StateAwaitingApproval, StateExecuting},
		{StateAwaitingApproval, StatePlanning},
	}
	for _, tt := range valid {
		assert.True(t, canTransition(tt.from, tt.to), "%s -> %s must be valid", tt.from, tt.to)
	}

	invalid := []struct{ from, to State }{
		{StatePlanning, StateRouting},
		{StateRouting, StateExecuting},
		{StateDone, StatePlanning},
		{StateFailed, StatePlanning},
		{StateExecuting, StatePlanning},
	}
	for _, tt := range invalid {
		assert.False(t, canTransition(tt.from, tt.to), "%s -> %s must be invalid", tt.from, tt.to)
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	for _, s := range []State{StateRouting, StatePlanning, StateExecuting, StateReflecting, StateAwaitingApproval} {
		assert.False(t, s.Terminal(), "%s is not terminal", s)
	}
}
