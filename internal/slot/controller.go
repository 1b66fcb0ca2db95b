// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package slot

import "fmt"

// Store persists slot metadata across boots. A real implementation backs
// onto the GPT partition attribute bits Android/AOSP conventionally use for
// this; raw partition/GPT parsing is out of scope here, so this core only
// depends on the narrow Store interface.
type Store interface {
	Load() ([]Metadata, error)
	Save([]Metadata) error
}

// Controller implements the slot management operations: init, get_active,
// set_active_cached, boot_ok/boot_failed, recovery gating, and the
// verity-corrupted flag.
type Controller struct {
	store  Store
	slots  []Metadata
	active *Label
}

// NewController loads slot metadata from store.
func NewController(store Store) (*Controller, error) {
	slots, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("slot: init: %w", err)
	}

	return &Controller{store: store, slots: slots}, nil
}

// Active returns the cached active slot label, if one has been resolved
// this boot.
func (c *Controller) Active() (Label, bool) {
	if c.active == nil {
		return "", false
	}

	return *c.active, true
}

// SetActiveCached caches the slot label the verifier's A/B flow resolved,
// without persisting it: the new active slot suffix is tracked in memory
// until a successful boot or failure commits the change.
func (c *Controller) SetActiveCached(label Label) {
	c.active = &label
}

// Select runs the active-slot selection rule over the loaded metadata and
// caches the result.
func (c *Controller) Select() (Metadata, error) {
	m, err := SelectActive(c.slots)
	if err != nil {
		return Metadata{}, err
	}

	c.SetActiveCached(m.Label)

	return m, nil
}

func (c *Controller) find(label Label) (int, bool) {
	for i, s := range c.slots {
		if s.Label == label {
			return i, true
		}
	}

	return -1, false
}

// BootOK marks the active slot's attempt in progress just before kernel
// handoff and persists the change.
func (c *Controller) BootOK() error {
	label, ok := c.Active()
	if !ok {
		return fmt.Errorf("slot: BootOK: no active slot cached")
	}

	i, ok := c.find(label)
	if !ok {
		return fmt.Errorf("slot: BootOK: unknown slot %q", label)
	}

	c.slots[i] = MarkAttempted(c.slots[i])

	return c.store.Save(c.slots)
}

// BootFailed records a load/verify failure against the active slot
// and re-selects a new active slot if any remains bootable.
// It returns ErrNoBootableSlot if none does, which the caller (image
// loader's failover loop) uses to stop retrying.
func (c *Controller) BootFailed() error {
	label, ok := c.Active()
	if !ok {
		return fmt.Errorf("slot: BootFailed: no active slot cached")
	}

	i, ok := c.find(label)
	if !ok {
		return fmt.Errorf("slot: BootFailed: unknown slot %q", label)
	}

	c.slots[i] = MarkFailed(c.slots[i])

	if err := c.store.Save(c.slots); err != nil {
		return err
	}

	c.active = nil

	_, err := c.Select()

	return err
}

// RecoveryTriesRemaining reports the tries remaining for the slot labeled
// "recovery", gating dedicated-partition recovery attempts.
func (c *Controller) RecoveryTriesRemaining() uint8 {
	i, ok := c.find("recovery")
	if !ok {
		return 0
	}

	return c.slots[i].TriesRemaining
}

// SetVerityCorrupted sets the corrupted flag on the currently active slot
// and persists it.
func (c *Controller) SetVerityCorrupted(corrupted bool) error {
	label, ok := c.Active()
	if !ok {
		return fmt.Errorf("slot: SetVerityCorrupted: no active slot cached")
	}

	i, ok := c.find(label)
	if !ok {
		return fmt.Errorf("slot: SetVerityCorrupted: unknown slot %q", label)
	}

	c.slots[i] = SetVerityCorrupted(c.slots[i], corrupted)

	return c.store.Save(c.slots)
}

// All returns a copy of the current slot metadata, for diagnostics/tests.
func (c *Controller) All() []Metadata {
	out := make([]Metadata, len(c.slots))
	copy(out, c.slots)

	return out
}
