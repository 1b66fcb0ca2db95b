// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bcb

import "strings"

const (
	bootPrefix     = "boot-"
	bootoncePrefix = "bootonce-"
)

// Consumed is the result of applying the BCB ownership rules to a parsed
// record.
type Consumed struct {
	// RawTarget is the target name with any boot-/bootonce- prefix removed,
	// or "" if Command carried neither prefix (or was empty).
	RawTarget string
	// OneShot is true if Command used the bootonce- form.
	OneShot bool
	// Next is the record that must be written back before the resolved
	// target is honored: status is always cleared, and command is cleared
	// only for the bootonce- form.
	Next BCB
}

// Consume applies the BCB ownership invariant: the bootloader always clears
// status, and erases command only for the bootonce- form.
func Consume(b BCB) Consumed {
	next := b
	next.Status = ""

	switch {
	case strings.HasPrefix(b.Command, bootoncePrefix):
		target := strings.TrimPrefix(b.Command, bootoncePrefix)
		next.Command = ""

		return Consumed{RawTarget: target, OneShot: true, Next: next}

	case strings.HasPrefix(b.Command, bootPrefix):
		target := strings.TrimPrefix(b.Command, bootPrefix)

		return Consumed{RawTarget: target, OneShot: false, Next: next}

	default:
		return Consumed{RawTarget: "", OneShot: false, Next: next}
	}
}
