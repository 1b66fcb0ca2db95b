// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package trust implements the four-color trust state used to summarize
// verified boot outcomes, and the raise-only algebra the rest of the
// pipeline is required to respect.
package trust

import "fmt"

// State is the verdict color of the verified boot pipeline. It is a total
// order, not a lattice: GREEN < YELLOW < ORANGE < RED.
type State uint8

const (
	// Green means the loaded image verified successfully against a locked
	// device.
	Green State = iota
	// Yellow sits between GREEN and ORANGE in the order; verify.Reduce
	// never assigns it.
	Yellow
	// Orange means the device is unlocked, or a verification error was
	// tolerated under the allow-error policy.
	Orange
	// Red means verification failed and the failure was not tolerated.
	Red
)

func (s State) String() string {
	switch s {
	case Green:
		return "GREEN"
	case Yellow:
		return "YELLOW"
	case Orange:
		return "ORANGE"
	case Red:
		return "RED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Compare returns -1, 0, 1 as s is less than, equal to, or greater than o.
func (s State) Compare(o State) int {
	switch {
	case s < o:
		return -1
	case s > o:
		return 1
	default:
		return 0
	}
}

// RaiseTo returns the greater of s and min. It never lowers the state: the
// reducer pipeline may only raise the trust color as it walks through its
// steps, never lower it.
func (s State) RaiseTo(min State) State {
	if min > s {
		return min
	}
	return s
}

// Latch marks a state as no longer lowerable even across re-verification
// passes within the same boot. verify.Reduce latches the ORANGE raised when
// EFI secure boot is off outside provisioning; the ORANGE raised for an
// unlocked device is not latched. Latching has no separate representation; callers that
// need latch semantics keep a boolean alongside the State and always pass
// the latched value as the floor to subsequent RaiseTo calls instead of
// recomputing from scratch.
type Latch struct {
	State   State
	Latched bool
}

// Apply folds candidate into the latch: if the latch is set, the result is
// never lower than the latched value; candidate may still raise it further.
func (l Latch) Apply(candidate State) Latch {
	if l.Latched {
		return Latch{State: candidate.RaiseTo(l.State), Latched: true}
	}
	return Latch{State: candidate}
}
