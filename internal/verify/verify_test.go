// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package verify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ironboot/ironboot/internal/trust"
	"github.com/ironboot/ironboot/internal/verify"
)

func TestCheckMagic(t *testing.T) {
	assert.NoError(t, verify.CheckMagic(append([]byte("IRONBOOT"), []byte("...rest")...)))
	assert.ErrorIs(t, verify.CheckMagic([]byte("NOTMAGIC")), verify.ErrBadMagic)
	assert.ErrorIs(t, verify.CheckMagic([]byte("IRO")), verify.ErrBadMagic)
}

func TestMapOutcome_OKKeepsStateWhenNotAllowingError(t *testing.T) {
	assert.Equal(t, trust.Green, verify.MapOutcome(verify.OK, false, trust.Green))
}

func TestMapOutcome_OKRaisesToOrangeWhenAllowingError(t *testing.T) {
	assert.Equal(t, trust.Orange, verify.MapOutcome(verify.OK, true, trust.Green))
	assert.Equal(t, trust.Red, verify.MapOutcome(verify.OK, true, trust.Red), "raising never lowers an already-RED floor")
}

func TestMapOutcome_FailurePinsRedWhenNotAllowingError(t *testing.T) {
	assert.Equal(t, trust.Red, verify.MapOutcome(verify.VerificationFailed, false, trust.Green))
	assert.Equal(t, trust.Red, verify.MapOutcome(verify.RollbackIndex, false, trust.Green))
	assert.Equal(t, trust.Red, verify.MapOutcome(verify.KeyRejected, false, trust.Green))
}

func TestMapOutcome_FailureToleratedUpToOrange(t *testing.T) {
	assert.Equal(t, trust.Orange, verify.MapOutcome(verify.VerificationFailed, true, trust.Green))
	assert.Equal(t, trust.Orange, verify.MapOutcome(verify.VerificationFailed, true, trust.Orange))
	assert.Equal(t, trust.Red, verify.MapOutcome(verify.VerificationFailed, true, trust.Red))
}

func TestAllowError(t *testing.T) {
	assert.False(t, verify.AllowError(trust.Green))
	assert.True(t, verify.AllowError(trust.Yellow))
	assert.True(t, verify.AllowError(trust.Orange))
	assert.True(t, verify.AllowError(trust.Red))
}

func TestReduce_CleanLockedSignedOK(t *testing.T) {
	r := verify.Reduce(verify.ReduceInput{
		Lock:               verify.Locked,
		EFISecureBootOn:    true,
		Outcome:            verify.OK,
		DeclaredTargetName: "/boot",
		ExpectedTargetName: "/boot",
	})

	assert.Equal(t, trust.Green, r.State)
}

func TestReduce_UnlockedSignedOKYieldsOrange(t *testing.T) {
	r := verify.Reduce(verify.ReduceInput{
		Lock:               verify.Unlocked,
		EFISecureBootOn:    true,
		Outcome:            verify.OK,
		DeclaredTargetName: "/boot",
		ExpectedTargetName: "/boot",
	})

	assert.Equal(t, trust.Orange, r.State)
}

func TestReduce_SecureBootDisabledLatchesOrange(t *testing.T) {
	r := verify.Reduce(verify.ReduceInput{
		Lock:               verify.Locked,
		EFISecureBootOn:    false,
		Outcome:            verify.OK,
		DeclaredTargetName: "/boot",
		ExpectedTargetName: "/boot",
	})

	assert.Equal(t, trust.Orange, r.State)
	assert.True(t, r.Latch.Latched)
}

func TestReduce_RollbackAttackLockedYieldsRed(t *testing.T) {
	r := verify.Reduce(verify.ReduceInput{
		Lock:               verify.Locked,
		EFISecureBootOn:    true,
		Outcome:            verify.RollbackIndex,
		DeclaredTargetName: "/boot",
		ExpectedTargetName: "/boot",
	})

	assert.Equal(t, trust.Red, r.State)
}

func TestReduce_TargetNameMismatchPinsRed(t *testing.T) {
	r := verify.Reduce(verify.ReduceInput{
		Lock:               verify.Locked,
		EFISecureBootOn:    true,
		Outcome:            verify.OK,
		DeclaredTargetName: "/system",
		ExpectedTargetName: "/boot",
	})

	assert.Equal(t, trust.Red, r.State)
}

func TestReduce_RecoveryAcceptedForNormalBootMultistageOTA(t *testing.T) {
	r := verify.Reduce(verify.ReduceInput{
		Lock:               verify.Locked,
		EFISecureBootOn:    true,
		Outcome:            verify.OK,
		DeclaredTargetName: "/recovery",
		ExpectedTargetName: "/boot",
	})

	assert.Equal(t, trust.Green, r.State)
}

func TestExpectedTargetName(t *testing.T) {
	assert.Equal(t, "/boot", verify.ExpectedTargetName("NORMAL_BOOT", false))
	assert.Equal(t, "/recovery", verify.ExpectedTargetName("RECOVERY", false))
	assert.Equal(t, "/boot", verify.ExpectedTargetName("RECOVERY", true))
	assert.Equal(t, "", verify.ExpectedTargetName("FASTBOOT", false))
}
