package build

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/formulago/internal/ctxlog"
)

// State is a pipeline state.
type State string

const (
	StateLoaded      State = "loaded"
	StateResolved    State = "resolved"
	StateFetching    State = "fetching"
	StateConfiguring State = "configuring"
	StateBuilding    State = "building"
	StateInstalling  State = "installing"
	StateVerifying   State = "verifying"
	StateVerified    State = "verified"
	StateFailed      State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateVerified || s == StateFailed
}

var transitions = map[State]State{
	StateLoaded:      StateResolved,
	StateResolved:    StateFetching,
	StateFetching:    StateConfiguring,
	StateConfiguring: StateBuilding,
	StateBuilding:    StateInstalling,
	StateInstalling:  StateVerifying,
	StateVerifying:   StateVerified,
}

// Observer is notified of every state transition. Elapsed is the time
// spent in `from`; err is non-nil only when `to` is StateFailed.
type Observer interface {
	Transition(ctx context.Context, from, to State, elapsed time.Duration, err error)
}

// machine enforces the pipeline order and fans transitions out to observers.
type machine struct {
	state     State
	entered   time.Time
	observers []Observer
	timings   []StageTiming
}

// StageTiming records how long the pipeline spent in a state.
type StageTiming struct {
	State    State
	Duration time.Duration
}

func newMachine(start State, observers []Observer) *machine {
	return &machine{state: start, entered: time.Now(), observers: observers}
}

// advance moves to the next state. Skipping a state is a programming error.
func (m *machine) advance(ctx context.Context, to State) {
	if next, ok := transitions[m.state]; !ok || next != to {
		panic(fmt.Sprintf("build: illegal transition %s -> %s", m.state, to))
	}
	m.move(ctx, to, nil)
}

// fail moves to StateFailed from any non-terminal state.
func (m *machine) fail(ctx context.Context, err error) {
	if m.state.Terminal() {
		panic(fmt.Sprintf("build: cannot fail from terminal state %s", m.state))
	}
	m.move(ctx, StateFailed, err)
}

func (m *machine) move(ctx context.Context, to State, err error) {
	now := time.Now()
	elapsed := now.Sub(m.entered)
	from := m.state

	m.timings = append(m.timings, StageTiming{State: from, Duration: elapsed})
	m.state, m.entered = to, now

	ctxlog.FromContext(ctx).Debug("Pipeline state changed.", "from", from, "to", to, "elapsed", elapsed)
	for _, o := range m.observers {
		o.Transition(ctx, from, to, elapsed, err)
	}
}
