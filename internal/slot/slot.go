// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package slot implements A/B slot metadata and the active-slot selection
// rule.
package slot

import (
	"errors"
	"sort"

	"github.com/siderolabs/gen/xslices"
)

// Label identifies a slot, typically "_a" or "_b".
type Label string

// Metadata is the persistent, per-slot bookkeeping record.
type Metadata struct {
	Label           Label
	Priority        uint8 // 0..15; 0 means never chosen.
	TriesRemaining  uint8 // 0..7
	SuccessfulBoot  bool
	VerityCorrupted bool
}

// bootable reports whether m is eligible for selection at all: a
// priority-0 slot is never chosen, regardless of its other fields.
func (m Metadata) bootable() bool {
	return m.Priority > 0 && (m.TriesRemaining > 0 || m.SuccessfulBoot)
}

// ErrNoBootableSlot is returned when no slot qualifies for selection — this
// must be surfaced as a load failure that pins RED, never silently
// ignored.
var ErrNoBootableSlot = errors.New("slot: no bootable slot")

// SelectActive picks the highest-priority bootable slot. Ties are broken
// by the order slots appear in the input list (a stable label ordering),
// so callers control tie-break precedence by the order they pass slots
// in.
func SelectActive(slots []Metadata) (Metadata, error) {
	candidates := xslices.Filter(slots, Metadata.bootable)
	if len(candidates) == 0 {
		return Metadata{}, ErrNoBootableSlot
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	return candidates[0], nil
}

// MarkSuccess records a successful boot attempt: tries_remaining is left
// alone once successful_boot is latched, matching the
// tries-remaining/successful_boot split vocabulary
// (canonical-pebble bootloader.Status Try/Fail/Unbootable).
func MarkSuccess(m Metadata) Metadata {
	m.SuccessfulBoot = true
	return m
}

// MarkAttempted decrements tries_remaining before a boot attempt is made,
// unless the slot has already recorded a successful boot.
func MarkAttempted(m Metadata) Metadata {
	if !m.SuccessfulBoot && m.TriesRemaining > 0 {
		m.TriesRemaining--
	}

	return m
}

// MarkFailed marks a load/verify failure against the slot: tries_remaining
// is decremented, potentially reaching zero and
// removing the slot from future selection.
func MarkFailed(m Metadata) Metadata {
	if m.TriesRemaining > 0 {
		m.TriesRemaining--
	}

	return m
}

// SetVerityCorrupted sets the per-slot verity-corrupted flag.
func SetVerityCorrupted(m Metadata, corrupted bool) Metadata {
	m.VerityCorrupted = corrupted
	return m
}
