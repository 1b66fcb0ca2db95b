// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootenv_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironboot/ironboot/internal/bcb"
	"github.com/ironboot/ironboot/internal/bootenv"
	"github.com/ironboot/ironboot/internal/firmwarevar"
	"github.com/ironboot/ironboot/internal/watchdog"
)

func TestWrapAndPredicates(t *testing.T) {
	base := errors.New("boom")

	transient := bootenv.Wrap(bootenv.KindTransientEnvironmental, base)
	assert.True(t, bootenv.IsTransient(transient))
	assert.False(t, bootenv.IsPersistentPolicy(transient))

	policy := bootenv.Wrap(bootenv.KindPersistentPolicyFailure, base)
	assert.True(t, bootenv.IsPersistentPolicy(policy))

	verification := bootenv.Wrap(bootenv.KindVerificationFailure, base)
	assert.True(t, bootenv.IsVerificationFailure(verification))

	invariant := bootenv.Wrap(bootenv.KindInvariantViolation, base)
	assert.True(t, bootenv.IsInvariantViolation(invariant))
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, bootenv.Wrap(bootenv.KindTransientEnvironmental, nil))
}

func TestBCBStoreRoundTrip(t *testing.T) {
	var stored []byte
	store := bootenv.NewBCBStore(
		func() ([]byte, error) { return stored, nil },
		func(data []byte) error { stored = data; return nil },
	)

	b := bcb.BCB{Command: "boot-recovery"}
	require.NoError(t, store.Write(b))

	got, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "boot-recovery", got.Command)
}

func TestWatchdogStoreFirstBootIsZeroState(t *testing.T) {
	vars := firmwarevar.NewFake()
	store := bootenv.NewWatchdogStore(vars, firmwarevar.ScopeVendor)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, watchdog.State{}, state)
}

func TestWatchdogStoreRoundTrip(t *testing.T) {
	vars := firmwarevar.NewFake()
	store := bootenv.NewWatchdogStore(vars, firmwarevar.ScopeVendor)

	want := watchdog.State{Counter: 2, TimeRef: time.Unix(1_700_000_000, 0).UTC()}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEnvNowDefaultsToWallClock(t *testing.T) {
	env := &bootenv.Env{}
	assert.WithinDuration(t, time.Now(), env.Now(), time.Second)
}

func TestEnvNowUsesClockOverride(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0).UTC()
	env := &bootenv.Env{Clock: func() time.Time { return fixed }}
	assert.Equal(t, fixed, env.Now())
}
