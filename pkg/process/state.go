package process

import (
	"errors"
	"time"

	"os161/pkg/kern/errno"
)

// ErrInvalidTransition is returned for a state change the lifecycle does
// not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// StateTransition represents a valid state transition.
type StateTransition struct {
	From ProcessState
	To   ProcessState
}

// ValidTransitions defines all valid state transitions.
var ValidTransitions = []StateTransition{
	// The process exits: Running -> Zombie
	{From: StateRunning, To: StateZombie},
	// Its status is collected: Zombie -> Reaped
	{From: StateZombie, To: StateReaped},
}

// IsValidTransition checks if a state transition is valid.
func IsValidTransition(from, to ProcessState) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// State returns the lifecycle state.
func (p *Process) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// terminate records the exit status and fires the exit signal.
func (p *Process) terminate(code int) error {
	p.mu.Lock()
	if !IsValidTransition(p.state, StateZombie) {
		p.mu.Unlock()
		return ErrInvalidTransition
	}
	p.state = StateZombie
	p.exitCode = code
	p.finishedAt = time.Now()
	p.mu.Unlock()

	close(p.exited)
	return nil
}

// reap consumes the exit status. Only the first caller after exit
// succeeds; the others get errno.ErrNoSuchChild.
func (p *Process) reap() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !IsValidTransition(p.state, StateReaped) {
		return 0, errno.ErrNoSuchChild
	}
	p.state = StateReaped
	return p.exitCode, nil
}

// Lifetime returns how long the process ran, or has run so far.
func (p *Process) Lifetime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateRunning {
		return time.Since(p.CreatedAt)
	}
	return p.finishedAt.Sub(p.CreatedAt)
}
