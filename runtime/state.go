package aerojs

import "sync/atomic"

// RunState is a Context's cooperative execution state: a lock-free CAS
// machine instead of a mutex-guarded enum, so DrainMicrotasks and Terminate
// can check and change it without contending on a lock.
type RunState uint32

const (
	// StateIdle is a Context that is not currently draining microtasks.
	StateIdle RunState = iota
	// StateDraining is set for the duration of DrainMicrotasks.
	StateDraining
	// StateAborting is entered when an execution-time-limit expires mid-
	// drain; the current DrainMicrotasks call unwinds cooperatively rather
	// than being killed outright, since this module has no interpreter
	// loop to preempt.
	StateAborting
	// StateTerminated is the final state; DrainMicrotasks on a terminated
	// Context is a no-op. Other Context operations do not check the state.
	StateTerminated
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateAborting:
		return "aborting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// runStateMachine is a cache-line-padded atomic state machine, padded to
// avoid false sharing between a Context's own goroutine and any background
// finalization-task producer.
type runStateMachine struct { // betteralign:ignore
	_ [64]byte
	v atomic.Uint32
	_ [60]byte
}

func newRunStateMachine() *runStateMachine {
	m := &runStateMachine{}
	m.v.Store(uint32(StateIdle))
	return m
}

func (m *runStateMachine) Load() RunState { return RunState(m.v.Load()) }

func (m *runStateMachine) Store(s RunState) { m.v.Store(uint32(s)) }

func (m *runStateMachine) TryTransition(from, to RunState) bool {
	return m.v.CompareAndSwap(uint32(from), uint32(to))
}

func (m *runStateMachine) IsTerminal() bool { return m.Load() == StateTerminated }
