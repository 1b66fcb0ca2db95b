// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package verify

import (
	"strings"

	"github.com/ironboot/ironboot/internal/trust"
)

// LockState is the device lock state persisted in a firmware variable.
type LockState uint8

const (
	Locked LockState = iota
	Unlocked
	Verified
)

// ReduceInput carries every signal the Trust-State Reducer needs: "(lock_state, efi_secure_boot_enabled, provisioning,
// verifier_outcome, target_name_matches_expected)".
type ReduceInput struct {
	Lock               LockState
	EFISecureBootOn    bool
	Provisioning       bool
	Outcome            Outcome
	DeclaredTargetName string
	ExpectedTargetName string
	RecoveryInBootPart bool
	// AllowRedContinuationForDebug is an explicit, audited opt-in for
	// non-production builds. It never changes the computed color, only
	// whether the orchestrator is permitted to continue past RED instead
	// of routing to the error UX.
	AllowRedContinuationForDebug bool
}

// Result is the reducer's output: the final color plus whether it was
// latched.
type Result struct {
	State trust.State
	Latch trust.Latch
}

// Reduce applies the five trust-state steps in order; each step may only
// raise the running state.
func Reduce(in ReduceInput) Result {
	latch := trust.Latch{State: trust.Green}

	// Step 2: secure boot disabled outside provisioning latches ORANGE.
	if !in.EFISecureBootOn && !in.Provisioning {
		latch = trust.Latch{State: trust.Orange, Latched: true}
	} else if in.Lock == Unlocked {
		// Step 3: unlocked device raises to ORANGE (not latched on its own —
		// only the secure-boot-disabled case latches).
		latch = latch.Apply(trust.Orange)
	}

	// Step 4: apply the verifier outcome mapping, never lowering the floor
	// established above.
	allowError := AllowError(latch.State)
	latch = latch.Apply(MapOutcome(in.Outcome, allowError, latch.State))

	// Step 5: declared target name must match the expected label for the
	// boot target actually being attempted.
	if !targetNameMatches(in) {
		latch = latch.Apply(trust.Red)
	}

	return Result{State: latch.State, Latch: latch}
}

func targetNameMatches(in ReduceInput) bool {
	if in.ExpectedTargetName == "" {
		return true
	}

	if strings.EqualFold(in.DeclaredTargetName, in.ExpectedTargetName) {
		return true
	}

	// "/recovery" is also accepted wherever "/boot" is expected, to support
	// multistage OTA. The boot target itself is not an input here, so this
	// applies to every target whose expected label is "/boot", not only
	// NORMAL_BOOT.
	if in.ExpectedTargetName == "/boot" && strings.EqualFold(in.DeclaredTargetName, "/recovery") {
		return true
	}

	return false
}

// ExpectedTargetName returns the expected declared-target label for a
// given boot target name.
func ExpectedTargetName(bootTarget string, recoveryInBootPartition bool) string {
	switch bootTarget {
	case "NORMAL_BOOT", "MEMORY", "CHARGER", "ESP_BOOTIMAGE":
		return "/boot"
	case "RECOVERY":
		if recoveryInBootPartition {
			return "/boot"
		}

		return "/recovery"
	default:
		return ""
	}
}
