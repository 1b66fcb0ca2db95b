// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package watchdog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ironboot/ironboot/internal/watchdog"
)

var epoch = time.Unix(1_700_000_000, 0).UTC()

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := watchdog.State{Counter: 2, TimeRef: epoch}
	assert.Equal(t, s, watchdog.Decode(s.Encode()))
}

func TestDecode_ShortPayloadIsZeroState(t *testing.T) {
	assert.Equal(t, watchdog.State{}, watchdog.Decode([]byte{1, 2, 3}))
}

func TestEvaluate_NonWatchdogReasonWithNonzeroCounterForcesNormalBoot(t *testing.T) {
	d := watchdog.Evaluate(watchdog.State{Counter: 2, TimeRef: epoch}, watchdog.ReasonUnknown, epoch, true)
	assert.True(t, d.ForceNormalBoot)
	assert.Equal(t, watchdog.State{}, d.NewState)
}

func TestEvaluate_ProductionUserRequestedShortCircuitsToPowerOff(t *testing.T) {
	d := watchdog.Evaluate(watchdog.State{}, watchdog.ReasonUserRequested, epoch, true)
	assert.True(t, d.PowerOff)
}

func TestEvaluate_NonProductionUserRequestedDoesNotShortCircuit(t *testing.T) {
	d := watchdog.Evaluate(watchdog.State{}, watchdog.ReasonUserRequested, epoch, false)
	assert.False(t, d.PowerOff)
}

func TestEvaluate_WithinWindowIncrementsCounter(t *testing.T) {
	start := watchdog.State{Counter: 1, TimeRef: epoch}
	d := watchdog.Evaluate(start, watchdog.ReasonWatchdog, epoch.Add(5*time.Minute), true)
	assert.Equal(t, byte(2), d.NewState.Counter)
	assert.Equal(t, epoch, d.NewState.TimeRef, "time_ref unchanged while still inside the window")
}

func TestEvaluate_WindowExpiryResetsCounterBeforeIncrementing(t *testing.T) {
	start := watchdog.State{Counter: 3, TimeRef: epoch}
	now := epoch.Add(11 * time.Minute)
	d := watchdog.Evaluate(start, watchdog.ReasonWatchdog, now, true)
	assert.Equal(t, byte(1), d.NewState.Counter)
	assert.Equal(t, now, d.NewState.TimeRef)
}

func TestEvaluate_ClockRollbackResetsState(t *testing.T) {
	start := watchdog.State{Counter: 2, TimeRef: epoch}
	now := epoch.Add(-time.Minute)
	d := watchdog.Evaluate(start, watchdog.ReasonPanic, now, true)
	assert.Equal(t, byte(1), d.NewState.Counter)
}

func TestEvaluate_EscalatesAfterMaxAllowedConsecutiveResets(t *testing.T) {
	state := watchdog.State{}
	now := epoch

	var last watchdog.Decision
	for i := 0; i < int(watchdog.MaxAllowed); i++ {
		last = watchdog.Evaluate(state, watchdog.ReasonWatchdog, now, true)
		assert.False(t, last.Escalate)
		state = last.NewState
		now = now.Add(time.Second)
	}

	last = watchdog.Evaluate(state, watchdog.ReasonWatchdog, now, true)
	assert.True(t, last.Escalate)
	assert.Equal(t, watchdog.State{}, last.NewState, "escalation clears state")
}
