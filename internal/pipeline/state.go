package pipeline

import (
	"sync"
)

// StateMachine holds the Idle/Active tracking state of a session
// It also remembers whether a cycle chain is scheduled so that a quick
// start/stop/start never leaves two chains running.
type StateMachine struct {
	state       TrackingState
	chainAlive  bool
	activations uint64
	mu          sync.Mutex
}

// NewStateMachine creates a machine in the Idle state
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateIdle}
}

// Start enters Active when the detector is ready and the machine is Idle
// changed reports whether the transition happened, schedule whether the caller
// must enqueue the first cycle.
func (m *StateMachine) Start(detectorReady bool) (changed bool, schedule bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !detectorReady || m.state != StateIdle {
		return false, false
	}

	m.state = StateActive
	m.activations++

	if m.chainAlive {
		// The pending cycle will pick up the new state
		return true, false
	}
	m.chainAlive = true
	return true, true
}

// Stop enters Idle when the machine is Active
func (m *StateMachine) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return false
	}
	m.state = StateIdle
	return true
}

// Continue is the checkpoint a cycle runs at entry and after its work
// It returns false, and marks the chain as ended, once the machine is Idle.
func (m *StateMachine) Continue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		m.chainAlive = false
		return false
	}
	return true
}

// State returns the current state
func (m *StateMachine) State() TrackingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Activations returns the number of Idle to Active transitions
func (m *StateMachine) Activations() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activations
}

// ChainAlive reports whether a cycle is scheduled or running
func (m *StateMachine) ChainAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainAlive
}
