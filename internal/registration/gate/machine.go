// Package gate implements the puzzle-piece human-verification step that must
// pass before a registration is submitted.
//
// A passing gate is a UX signal, not an authorization: the issuer never
// consults it.
package gate

import (
	"errors"
	"fmt"
)

type State string

const (
	Idle      State = "idle"
	Presented State = "presented"
	Solved    State = "solved"
	Failed    State = "failed"
	Dismissed State = "dismissed"
)

var (
	ErrVerificationFailed = errors.New("verification failed")
	ErrInvalidTransition  = errors.New("invalid gate transition")
)

// Machine tracks one gate session. The zero value is Idle. Sessions are not
// reused: a failed or dismissed gate is replaced by a fresh challenge, and a
// solved one is spent by redeeming its pass.
type Machine struct {
	state     State
	slotX     int
	tolerance int
}

func NewMachine(tolerance int) *Machine {
	return &Machine{state: Idle, tolerance: tolerance}
}

func (m *Machine) State() State {
	if m.state == "" {
		return Idle
	}
	return m.state
}

// Present shows a puzzle whose hidden slot sits at slotX.
func (m *Machine) Present(slotX int) error {
	if m.State() != Idle {
		return fmt.Errorf("%w: present from %s", ErrInvalidTransition, m.State())
	}
	m.state = Presented
	m.slotX = slotX
	return nil
}

// Attempt drops the piece at x. Within tolerance the gate is Solved,
// otherwise Failed and ErrVerificationFailed is returned.
func (m *Machine) Attempt(x int) error {
	if m.State() != Presented {
		return fmt.Errorf("%w: attempt from %s", ErrInvalidTransition, m.State())
	}
	if Within(m.slotX, x, m.tolerance) {
		m.state = Solved
		return nil
	}
	m.state = Failed
	return ErrVerificationFailed
}

func (m *Machine) Dismiss() error {
	if m.State() != Presented {
		return fmt.Errorf("%w: dismiss from %s", ErrInvalidTransition, m.State())
	}
	m.state = Dismissed
	return nil
}

func Within(slotX, x, tolerance int) bool {
	d := slotX - x
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
