// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package image locates, reads, and slot-routes a boot image. It performs no verification itself — that is the Verifier
// Adapter's job — and treats every failure here as non-fatal input to the
// Trust-State Reducer.
package image

import (
	"errors"
	"fmt"

	"github.com/ironboot/ironboot/internal/slot"
)

// Errors mirror the Image Loader's contract.
var (
	ErrNotFound        = errors.New("image: not found")
	ErrIO              = errors.New("image: i/o error")
	ErrInvalidTarget   = errors.New("image: unsupported target")
	ErrNoSlotAvailable = errors.New("image: no bootable slot available")
)

// PartitionReader is the external collaborator this loader needs to reach
// storage. GPT/partition parsing is out of scope here, so this interface
// is the boundary: a real implementation resolves a
// logical label to bytes however the platform does that (GPT partition
// table walk, block device probe, etc).
type PartitionReader interface {
	// ReadPartition reads the full contents of the GPT partition
	// identified by its logical label, returning ErrNotFound if no such
	// partition exists.
	ReadPartition(label string) ([]byte, error)
}

// ESPReader is the external collaborator for reading and deleting files on
// the EFI System Partition.
type ESPReader interface {
	ReadFile(path string) ([]byte, error)
	DeleteFile(path string) error
}

// SlotFailover captures the pieces of the Slot Controller the Image
// Loader drives directly when a partition read fails.
type SlotFailover interface {
	Active() (slot.Label, bool)
	BootFailed() error
}

// LoadBootPartition reads the GPT partition named label, suffixed with the
// active slot when failover is non-nil (A/B enabled). On read failure it
// marks the active slot failed and retries with whatever slot the
// controller selects next, until either a read succeeds or no bootable
// slot remains.
func LoadBootPartition(reader PartitionReader, failover SlotFailover, label string) ([]byte, slot.Label, error) {
	if failover == nil {
		data, err := reader.ReadPartition(label)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: %w", ErrIO, label, err)
		}

		return data, "", nil
	}

	for {
		active, ok := failover.Active()
		if !ok {
			return nil, "", ErrNoSlotAvailable
		}

		data, err := reader.ReadPartition(label + string(active))
		if err == nil {
			return data, active, nil
		}

		if failErr := failover.BootFailed(); failErr != nil {
			return nil, "", ErrNoSlotAvailable
		}
	}
}

// RecoveryTriesRemaining reports the recovery slot's remaining try count,
// matching the Slot Controller's recovery_tries_remaining accessor.
type RecoveryTriesRemaining interface {
	RecoveryTriesRemaining() uint8
}

// LoadRecovery loads the recovery image. When recoveryInBootPartition is
// true, this is identical to loading the normal boot partition. Otherwise it targets a dedicated "recovery" partition and
// requires at least one recovery try remaining.
func LoadRecovery(reader PartitionReader, failover SlotFailover, tries RecoveryTriesRemaining, recoveryInBootPartition bool, bootLabel string) ([]byte, slot.Label, error) {
	if recoveryInBootPartition {
		return LoadBootPartition(reader, failover, bootLabel)
	}

	if tries.RecoveryTriesRemaining() == 0 {
		return nil, "", fmt.Errorf("%w: recovery", ErrNoSlotAvailable)
	}

	data, err := reader.ReadPartition("recovery")
	if err != nil {
		return nil, "", fmt.Errorf("%w: recovery: %w", ErrIO, err)
	}

	return data, "", nil
}

// LoadFromESP reads path from the EFI System Partition. When
// deleteAfterRead is set, the file is removed before its bytes are
// returned to the caller, so a reset between the delete and verification
// still preserves one-shot semantics.
func LoadFromESP(reader ESPReader, path string, deleteAfterRead bool) ([]byte, error) {
	if !deleteAfterRead {
		data, err := reader.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
		}

		return data, nil
	}

	data, err := reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	}

	if err := reader.DeleteFile(path); err != nil {
		return nil, fmt.Errorf("%w: deleting %s: %w", ErrIO, path, err)
	}

	return data, nil
}
