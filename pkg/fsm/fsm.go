// Package fsm provides table driven finite state machines. A Definition
// holds the state -> event -> next state table and is validated when it
// is built; entities keep their own current state and ask the Definition
// where an event leads.
package fsm

import (
	"fmt"
	"sort"

	"github.com/ajitpratap0/syncflow/pkg/errors"
)

// State is a named state
type State string

// Event is a named event
type Event string

// Transition moves any of From to To when Event fires
type Transition struct {
	Event Event
	From  []State
	To    State
}

// Definition is an immutable transition table
type Definition struct {
	name    string
	initial State
	states  []State
	known   map[State]struct{}
	table   map[State]map[Event]State
	events  []Event
	whiny   bool
}

// Option configures a Definition
type Option func(*Definition)

// WithWhiny selects whether an invalid transition is an error (true, the
// default) or a silent no-op.
func WithWhiny(whiny bool) Option {
	return func(d *Definition) {
		d.whiny = whiny
	}
}

// WithName names the machine in errors
func WithName(name string) Option {
	return func(d *Definition) {
		d.name = name
	}
}

// New builds and validates a Definition. Every state referenced by a
// transition must be listed in states, event names must be non-empty and
// no state may have two transitions for the same event.
func New(initial State, states []State, transitions []Transition, opts ...Option) (*Definition, error) {
	d := &Definition{
		name:    "fsm",
		initial: initial,
		known:   make(map[State]struct{}, len(states)),
		table:   make(map[State]map[Event]State, len(states)),
		whiny:   true,
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, s := range states {
		if s == "" {
			return nil, d.configError("empty state name")
		}
		if _, dup := d.known[s]; dup {
			return nil, d.configError(fmt.Sprintf("state %q listed twice", s))
		}
		d.known[s] = struct{}{}
		d.states = append(d.states, s)
	}
	if _, ok := d.known[initial]; !ok {
		return nil, d.configError(fmt.Sprintf("initial state %q is not a known state", initial))
	}

	seenEvents := make(map[Event]struct{})
	for _, t := range transitions {
		if t.Event == "" {
			return nil, d.configError("empty event name")
		}
		if _, ok := d.known[t.To]; !ok {
			return nil, d.configError(fmt.Sprintf("event %q targets unknown state %q", t.Event, t.To))
		}
		if len(t.From) == 0 {
			return nil, d.configError(fmt.Sprintf("event %q has no source states", t.Event))
		}
		for _, from := range t.From {
			if _, ok := d.known[from]; !ok {
				return nil, d.configError(fmt.Sprintf("event %q leaves unknown state %q", t.Event, from))
			}
			row := d.table[from]
			if row == nil {
				row = make(map[Event]State)
				d.table[from] = row
			}
			if _, dup := row[t.Event]; dup {
				return nil, d.configError(fmt.Sprintf("event %q defined twice for state %q", t.Event, from))
			}
			row[t.Event] = t.To
		}
		if _, ok := seenEvents[t.Event]; !ok {
			seenEvents[t.Event] = struct{}{}
			d.events = append(d.events, t.Event)
		}
	}

	return d, nil
}

// MustNew is New for package level tables; it panics on an invalid table
func MustNew(initial State, states []State, transitions []Transition, opts ...Option) *Definition {
	d, err := New(initial, states, transitions, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Fire returns the state event leads to from from. changed is false for
// self loops. An event that is not allowed from from returns a transition
// error when the machine is whiny, and (from, false, nil) otherwise.
func (d *Definition) Fire(from State, event Event) (State, bool, error) {
	to, ok := d.table[from][event]
	if !ok {
		if !d.whiny {
			return from, false, nil
		}
		return from, false, errors.Newf(errors.ErrorTypeTransition,
			"%s: event '%s' cannot transition from '%s'", d.name, event, from).
			WithDetail("machine", d.name).
			WithDetail("event", string(event)).
			WithDetail("from", string(from))
	}

	return to, to != from, nil
}

// Can reports whether event is allowed from from
func (d *Definition) Can(from State, event Event) bool {
	_, ok := d.table[from][event]
	return ok
}

// Events returns the events allowed from from, sorted
func (d *Definition) Events(from State) []Event {
	row := d.table[from]
	events := make([]Event, 0, len(row))
	for e := range row {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events
}

// AllEvents returns every event in declaration order
func (d *Definition) AllEvents() []Event {
	return append([]Event(nil), d.events...)
}

// States returns the states in declaration order
func (d *Definition) States() []State {
	return append([]State(nil), d.states...)
}

// Initial returns the initial state
func (d *Definition) Initial() State {
	return d.initial
}

// Name returns the machine name
func (d *Definition) Name() string {
	return d.name
}

// Whiny reports whether invalid transitions are errors
func (d *Definition) Whiny() bool {
	return d.whiny
}

// IsKnown reports whether s is a state of the machine
func (d *Definition) IsKnown(s State) bool {
	_, ok := d.known[s]
	return ok
}

func (d *Definition) configError(msg string) error {
	return errors.New(errors.ErrorTypeConfig, d.name+": "+msg)
}
