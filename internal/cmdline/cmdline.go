// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cmdline assembles the final kernel command line by prepending
// fragments, so the kernel's last-wins argument parsing keeps later
// defaults overridable.
package cmdline

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ironboot/ironboot/internal/slot"
)

// Params carries the inputs the builder needs to assemble a line.
type Params struct {
	// Target is the boot target name, e.g. "NORMAL_BOOT", "RECOVERY",
	// "MEMORY". RECOVERY and MEMORY never get the synthesized root=
	// fragment.
	Target string
	// ActiveSlot is the resolved A/B slot suffix, empty when A/B is not
	// in use.
	ActiveSlot slot.Label
	// SystemPartitionUUID is used to synthesize root=PARTUUID=... when
	// the verified cmdline doesn't already carry a root= argument.
	SystemPartitionUUID uuid.UUID
	// VerifiedCmdline is the fragment the verifier returned as part of
	// SlotData, if any.
	VerifiedCmdline string
	// CallerFragment is appended last, after every prepended default.
	CallerFragment string
}

func rootSynthesisExcluded(target string) bool {
	return target == "RECOVERY" || target == "MEMORY"
}

// Build assembles the kernel command line: slot suffix fragment first,
// then the synthesized root= defaults (only when the
// verified cmdline lacks its own root= and the target isn't excluded),
// then the verified cmdline, then the caller's fragment last.
func Build(p Params) string {
	var fragments []string

	if p.ActiveSlot != "" {
		fragments = append(fragments, "androidboot.slot_suffix="+string(p.ActiveSlot))
	}

	if !strings.Contains(p.VerifiedCmdline, "root=") && !rootSynthesisExcluded(p.Target) {
		fragments = append(fragments, "skip_initramfs rootwait ro init=/init root=PARTUUID="+p.SystemPartitionUUID.String())
	}

	if p.VerifiedCmdline != "" {
		fragments = append(fragments, p.VerifiedCmdline)
	}

	if p.CallerFragment != "" {
		fragments = append(fragments, p.CallerFragment)
	}

	return strings.Join(fragments, " ")
}
