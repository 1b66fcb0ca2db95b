// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package watchdog implements the watchdog/panic reset-loop detector
//: persistent (counter, time_ref) state that escalates to
// the crash-event menu after too many consecutive watchdog/panic resets
// within a 10-minute window.
package watchdog

import (
	"encoding/binary"
	"time"
)

// RebootReason is the reason the platform recorded for the prior reset.
type RebootReason string

const (
	ReasonWatchdog      RebootReason = "watchdog"
	ReasonPanic         RebootReason = "panic"
	ReasonUserRequested RebootReason = "user_requested"
	ReasonUnknown       RebootReason = "unknown"
)

func (r RebootReason) isWatchdogOrPanic() bool {
	return r == ReasonWatchdog || r == ReasonPanic
}

// MaxAllowed is the policy constant bounding consecutive watchdog/panic
// resets inside the 10-minute window before escalation. It mirrors kernelflinger's default loop-detector threshold.
const MaxAllowed = 3

// Window is the sliding window within which consecutive resets count
// against MaxAllowed.
const Window = 10 * time.Minute

// stateSize is 1 byte counter + 8 bytes Unix-seconds time_ref, matching
// the fixed-offset, no-library ADV tag encoding (bootloader/adv.go).
const stateSize = 9

// State is the persistent watchdog loop-detector record.
type State struct {
	Counter byte
	TimeRef time.Time
}

// Decode parses the 9-byte firmware-variable payload into a State. A
// short or all-zero payload decodes to the zero State, matching first-
// boot behavior where the variable has never been written.
func Decode(data []byte) State {
	if len(data) < stateSize {
		return State{}
	}

	counter := data[0]
	secs := binary.LittleEndian.Uint64(data[1:9])

	var ref time.Time
	if secs != 0 {
		ref = time.Unix(int64(secs), 0).UTC()
	}

	return State{Counter: counter, TimeRef: ref}
}

// Encode serializes s back into the fixed 9-byte layout.
func (s State) Encode() []byte {
	buf := make([]byte, stateSize)
	buf[0] = s.Counter

	var secs uint64
	if !s.TimeRef.IsZero() {
		secs = uint64(s.TimeRef.Unix())
	}
	binary.LittleEndian.PutUint64(buf[1:9], secs)

	return buf
}

// Decision is the outcome of evaluating the loop detector for this boot.
type Decision struct {
	// NewState is what must be persisted back to the firmware variable.
	NewState State
	// ForceNormalBoot is set by step 1: a non-watchdog/panic reset with a
	// nonzero counter resets state and the detector's answer is
	// NORMAL_BOOT, so target selection goes on to its later rules.
	ForceNormalBoot bool
	// PowerOff is set by step 2 (production builds only): a user-
	// requested shutdown reason short-circuits straight to POWER_OFF.
	PowerOff bool
	// Escalate is set by step 4: more than MaxAllowed consecutive
	// watchdog/panic resets inside Window. The caller routes to the
	// crash-event menu.
	Escalate bool
}

// Evaluate runs the four-step loop detector. production
// gates step 2 (non-production builds never short-circuit on a user-
// requested shutdown reason, so engineering builds can still observe the
// resulting loop-counter state).
func Evaluate(state State, reason RebootReason, now time.Time, production bool) Decision {
	if !reason.isWatchdogOrPanic() && state.Counter > 0 {
		return Decision{NewState: State{}, ForceNormalBoot: true}
	}

	if production && reason == ReasonUserRequested {
		return Decision{NewState: state, PowerOff: true}
	}

	// A non-watchdog/panic reset with a zero counter is not counted.
	if !reason.isWatchdogOrPanic() {
		return Decision{NewState: state}
	}

	if now.Sub(state.TimeRef) > Window || now.Before(state.TimeRef) {
		state = State{Counter: 0, TimeRef: now}
	}

	state.Counter++

	if state.Counter > MaxAllowed {
		return Decision{NewState: State{}, Escalate: true}
	}

	return Decision{NewState: state}
}
