// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fastboot implements the fastboot re-entry loop state machine
//: it services commands until a target is chosen,
// then terminates in exactly one of Reboot, Chainload, Handoff, or Die.
// The USB protocol itself is out of scope here — this
// package only defines the narrow Session interface a real transport
// implements.
package fastboot

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/ironboot/ironboot/internal/verify"
)

// State is one of the loop's terminal transitions.
type State int

const (
	// Servicing is the loop's internal, non-terminal state.
	Servicing State = iota
	Reboot
	Chainload
	Handoff
	Die
)

func (s State) String() string {
	switch s {
	case Servicing:
		return "SERVICING"
	case Reboot:
		return "REBOOT"
	case Chainload:
		return "CHAINLOAD"
	case Handoff:
		return "HANDOFF"
	case Die:
		return "DIE"
	default:
		return "UNKNOWN"
	}
}

// Command is one inbound fastboot command, already decoded by the
// transport layer.
type Command struct {
	// Reboot requests the device reboot, optionally into a named target
	// ("bootloader", "recovery", or "" for normal).
	Reboot       bool
	RebootTarget string
	// RAMBootImage carries a "fastboot boot" image to verify and run
	// through the pipeline without writing it to any partition — this is
	// the MEMORY boot target.
	RAMBootImage []byte
	// ChainloadPath names an ESP EFI binary to chainload.
	ChainloadPath string
	// Continue requests the loop fall through to normal handoff.
	Continue bool
}

// Session is the external collaborator that decodes the USB wire
// protocol and yields one Command at a time.
type Session interface {
	NextCommand(ctx context.Context) (Command, error)
}

// Pipeline is the subset of the verify/trust machinery the loop re-runs
// for every inbound image.
type Pipeline interface {
	VerifyRAMImage(image []byte) (verify.Outcome, verify.SlotData, error)
}

// Result is what the loop produced on exit.
type Result struct {
	State     State
	SlotData  verify.SlotData
	RebootTo  string
	ChainPath string
}

// Loop drives the fastboot re-entry state machine. Each iteration
// constructs a fresh verify.SlotData so no iteration can leak a stale
// firmware-variable write into the next.
func Loop(ctx context.Context, session Session, pipeline Pipeline) (Result, error) {
	for {
		cmd, err := session.NextCommand(ctx)
		if err != nil {
			klog.Errorf("fastboot: session error, dying: %v", err)
			return Result{State: Die}, err
		}

		if cmd.Reboot {
			klog.V(2).Infof("fastboot: reboot requested (target=%q)", cmd.RebootTarget)
			return Result{State: Reboot, RebootTo: cmd.RebootTarget}, nil
		}

		if cmd.Continue {
			klog.V(2).Info("fastboot: continue requested, falling through to handoff")
			return Result{State: Handoff}, nil
		}

		if cmd.ChainloadPath != "" {
			klog.V(2).Infof("fastboot: chainload requested: %s", cmd.ChainloadPath)
			return Result{State: Chainload, ChainPath: cmd.ChainloadPath}, nil
		}

		if len(cmd.RAMBootImage) > 0 {
			if err := verify.CheckMagic(cmd.RAMBootImage); err != nil {
				klog.Errorf("fastboot: RAM boot image failed magic check: %v", err)
				continue
			}

			outcome, slotData, err := pipeline.VerifyRAMImage(cmd.RAMBootImage)
			if err != nil {
				klog.Errorf("fastboot: RAM image verification errored: %v", err)
				continue
			}

			if outcome != verify.OK {
				klog.Warningf("fastboot: RAM image verification outcome %v, staying in loop", outcome)
				continue
			}

			klog.V(2).Info("fastboot: RAM image verified OK, handing off")
			return Result{State: Handoff, SlotData: slotData}, nil
		}

		// No recognized action in this command: keep servicing.
	}
}
