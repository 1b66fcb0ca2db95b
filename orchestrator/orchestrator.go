// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package orchestrator wires the leaf packages into the single linear
// pipeline: Target Selector → Verifier → Policy Reducer →
// Command-Line Builder / Error UX → Kernel Handoff. It is the single
// place a failed result becomes a trust-state downgrade plus UX callout.
// The image loader (internal/image) is not called here: the verifier
// adapter is handed the "boot" partition name and returns the image in
// its SlotData.
package orchestrator

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/ironboot/ironboot/internal/bootenv"
	"github.com/ironboot/ironboot/internal/cmdline"
	"github.com/ironboot/ironboot/internal/firmwarevar"
	"github.com/ironboot/ironboot/internal/slot"
	"github.com/ironboot/ironboot/internal/target"
	"github.com/ironboot/ironboot/internal/trust"
	"github.com/ironboot/ironboot/internal/verify"
)

// BootStateVariable is the firmware variable the final trust color is
// persisted to before handoff.
const BootStateVariable = "BootState"

// HandoffPlan is everything the orchestrator hands to the (out-of-scope)
// kernel-handoff routine.
type HandoffPlan struct {
	Target     target.Target
	Cmdline    string
	TrustState trust.State
	SlotData   verify.SlotData
	UXDecision bootenv.UXDecision
}

// Run executes one full pipeline pass: it selects the target through
// chooser, verifies the "boot" partition through env.Verifier (ABFlow when
// env.Slots is set, Verify otherwise) whatever the target, reduces the
// outcome to a trust state, persists BootState, updates the slot counters,
// and assembles the command line. It loads no image itself.
func Run(env *bootenv.Env, chooser *target.Chooser, opts target.OsLoaderOptions) (HandoffPlan, error) {
	decision, err := chooser.Choose(context.Background(), opts)
	if err != nil {
		return HandoffPlan{}, fmt.Errorf("orchestrator: target selection: %w", err)
	}

	klog.V(2).Infof("orchestrator: selected target %s", decision.Target)

	if env.Slots != nil {
		if _, ok := env.Slots.Active(); !ok {
			if _, err := env.Slots.Select(); err != nil {
				klog.Warningf("orchestrator: initial slot selection failed: %v", err)
			}
		}
	}

	outcome, slotData, verifyErr := runVerification(env, decision)

	lock, err := readLockState(env)
	if err != nil {
		klog.Warningf("orchestrator: lock state read failed, treating as UNLOCKED: %v", err)
		lock = verify.Unlocked
	}

	secureBootOn, err := readSecureBootEnabled(env)
	if err != nil {
		klog.Warningf("orchestrator: secure boot state read failed, treating as disabled: %v", err)
		secureBootOn = false
	}

	expected := verify.ExpectedTargetName(string(decision.Target), env.Caps.RecoveryInBootPartition)

	result := verify.Reduce(verify.ReduceInput{
		Lock:                         lock,
		EFISecureBootOn:              secureBootOn,
		Outcome:                      outcome,
		DeclaredTargetName:           slotData.DeclaredTarget,
		ExpectedTargetName:           expected,
		RecoveryInBootPart:           env.Caps.RecoveryInBootPartition,
		AllowRedContinuationForDebug: env.Caps.AllowRedContinuation,
	})

	if verifyErr != nil {
		klog.Errorf("orchestrator: verification errored: %v", verifyErr)
	}

	if err := persistBootState(env, result.State); err != nil {
		klog.Errorf("orchestrator: failed to persist BootState: %v", err)
	}

	plan := HandoffPlan{
		Target:     decision.Target,
		TrustState: result.State,
		SlotData:   slotData,
	}

	// §7: every user-actionable state (YELLOW/ORANGE/RED) is handed to the
	// error UX exactly once; its return value is authoritative.
	if result.State != trust.Green && env.UX != nil {
		plan.UXDecision = env.UX.Warn(result.State, lock == verify.Unlocked)
	}

	redStop := result.State == trust.Red && (env.Caps.Production || !env.Caps.AllowRedContinuation)
	uxTerminal := plan.UXDecision == bootenv.UXPowerOff || plan.UXDecision == bootenv.UXCrashmode

	if redStop || uxTerminal {
		if env.Slots != nil {
			_ = env.Slots.BootFailed()
		}
		if plan.UXDecision == "" {
			plan.UXDecision = bootenv.UXCrashmode
		}
		return plan, nil
	}

	if env.Slots != nil {
		_ = env.Slots.BootOK()
	}

	activeSlot, _ := slotSuffix(env)

	plan.Cmdline = cmdline.Build(cmdline.Params{
		Target:              string(decision.Target),
		ActiveSlot:          activeSlot,
		SystemPartitionUUID: env.SystemPartitionUUID,
		VerifiedCmdline:     slotData.VerifiedCmdline,
	})

	return plan, nil
}

func runVerification(env *bootenv.Env, decision target.Decision) (verify.Outcome, verify.SlotData, error) {
	if env.Verifier == nil {
		return verify.OtherError, verify.SlotData{}, fmt.Errorf("orchestrator: no verifier adapter configured")
	}

	if env.Slots != nil {
		return env.Verifier.ABFlow([]string{"boot"}, 0)
	}

	return env.Verifier.Verify([]string{"boot"}, "", 0)
}

func readLockState(env *bootenv.Env) (verify.LockState, error) {
	if env.Vars == nil {
		return verify.Locked, nil
	}

	b, ok, err := firmwarevar.ReadByte(env.Vars, firmwarevar.ScopeVendor, "OemLock")
	if err != nil {
		return verify.Locked, err
	}
	if !ok {
		return verify.Locked, nil
	}

	return verify.LockState(b), nil
}

func readSecureBootEnabled(env *bootenv.Env) (bool, error) {
	if env.SecureBoot != nil {
		return env.SecureBoot.Enabled()
	}

	if env.Vars == nil {
		return true, nil
	}

	b, ok, err := firmwarevar.ReadByte(env.Vars, firmwarevar.ScopeGlobal, "SecureBoot")
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}

	return b != 0, nil
}

func persistBootState(env *bootenv.Env, state trust.State) error {
	if env.Vars == nil {
		return nil
	}

	return firmwarevar.WriteByte(env.Vars, firmwarevar.ScopeVendor, BootStateVariable, byte(state))
}

func slotSuffix(env *bootenv.Env) (slot.Label, bool) {
	if env.Slots == nil {
		return "", false
	}

	return env.Slots.Active()
}
