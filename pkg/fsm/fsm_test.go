package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/syncflow/pkg/errors"
)

const (
	green  State = "green"
	yellow State = "yellow"
	red    State = "red"
)

func lightTransitions() []Transition {
	return []Transition{
		{Event: "slow", From: []State{green}, To: yellow},
		{Event: "stop", From: []State{yellow, red}, To: red},
		{Event: "go", From: []State{red}, To: green},
	}
}

func TestNew_Valid(t *testing.T) {
	d, err := New(green, []State{green, yellow, red}, lightTransitions(), WithName("light"))
	require.NoError(t, err)

	assert.Equal(t, green, d.Initial())
	assert.Equal(t, "light", d.Name())
	assert.Equal(t, []State{green, yellow, red}, d.States())
	assert.Equal(t, []Event{"slow", "stop", "go"}, d.AllEvents())
	assert.Equal(t, []Event{"go", "stop"}, d.Events(red))
	assert.True(t, d.Whiny())
}

func TestNew_InvalidTables(t *testing.T) {
	tests := []struct {
		name        string
		initial     State
		states      []State
		transitions []Transition
	}{
		{name: "unknown initial", initial: "blue", states: []State{green}},
		{name: "duplicate state", initial: green, states: []State{green, green}},
		{name: "empty event", initial: green, states: []State{green, red},
			transitions: []Transition{{Event: "", From: []State{green}, To: red}}},
		{name: "unknown target", initial: green, states: []State{green},
			transitions: []Transition{{Event: "e", From: []State{green}, To: red}}},
		{name: "unknown source", initial: green, states: []State{green},
			transitions: []Transition{{Event: "e", From: []State{red}, To: green}}},
		{name: "no sources", initial: green, states: []State{green},
			transitions: []Transition{{Event: "e", To: green}}},
		{name: "duplicate source for event", initial: green, states: []State{green, red},
			transitions: []Transition{
				{Event: "e", From: []State{green}, To: red},
				{Event: "e", From: []State{green}, To: green},
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.initial, tt.states, tt.transitions)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestMustNew_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustNew("nowhere", []State{green}, nil)
	})
}

func TestFire_Whiny(t *testing.T) {
	d := MustNew(green, []State{green, yellow, red}, lightTransitions())

	to, changed, err := d.Fire(green, "slow")
	require.NoError(t, err)
	assert.Equal(t, yellow, to)
	assert.True(t, changed)

	to, changed, err = d.Fire(red, "stop")
	require.NoError(t, err)
	assert.Equal(t, red, to)
	assert.False(t, changed, "self loop does not change state")

	to, changed, err = d.Fire(green, "go")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransition))
	assert.Equal(t, green, to)
	assert.False(t, changed)
}

func TestFire_NotWhiny(t *testing.T) {
	d := MustNew(green, []State{green, yellow, red}, lightTransitions(), WithWhiny(false))

	to, changed, err := d.Fire(green, "go")
	require.NoError(t, err)
	assert.Equal(t, green, to)
	assert.False(t, changed)
	assert.False(t, d.Can(green, "go"))
	assert.True(t, d.Can(green, "slow"))
}
