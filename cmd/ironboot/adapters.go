// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Partition and ESP I/O are named external collaborators. What follows is the thin, non-GPT-aware plumbing a
// real deployment still needs to hand the core concrete bytes: resolving a
// partition label to a device node the platform's udev-style by-partlabel
// convention already publishes, and reading/deleting files under an
// already-mounted ESP. Neither function parses a partition table or a
// filesystem; they only do what any shell script calling `dd` or `rm`
// would.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/foxboron/go-uefi/efi"
	"gopkg.in/yaml.v3"

	"github.com/ironboot/ironboot/internal/slot"
)

// devicePartitionReader resolves a GPT partition label to
// "<byLabelDir>/<label>" the way /dev/disk/by-partlabel is populated on a
// running Linux/Android system, and reads the whole block device.
type devicePartitionReader struct {
	byLabelDir string
}

func (d devicePartitionReader) ReadPartition(label string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.byLabelDir, label))
	if err != nil {
		return nil, fmt.Errorf("ironboot: reading partition %q: %w", label, err)
	}
	return data, nil
}

// WritePartition is the write half, used only for the BCB record.
func (d devicePartitionReader) WritePartition(label string, data []byte) error {
	path := filepath.Join(d.byLabelDir, label)

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("ironboot: opening partition %q for write: %w", label, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("ironboot: writing partition %q: %w", label, err)
	}

	return nil
}

// espReader reads and deletes files relative to an already-mounted EFI
// System Partition root.
type espReader struct {
	root string
}

func (e espReader) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(e.root, path))
	if err != nil {
		return nil, fmt.Errorf("ironboot: reading ESP file %q: %w", path, err)
	}
	return data, nil
}

func (e espReader) DeleteFile(path string) error {
	if err := os.Remove(filepath.Join(e.root, path)); err != nil {
		return fmt.Errorf("ironboot: deleting ESP file %q: %w", path, err)
	}
	return nil
}

func (e espReader) Exists(path string) bool {
	_, err := os.Stat(filepath.Join(e.root, path))
	return err == nil
}

// slotMetadataFile persists slot.Metadata as a YAML sidecar document
// rather than GPT partition-entry attribute bits: real GPT attribute-bit
// I/O is the same out-of-scope surface devicePartitionReader already
// declines to implement. A platform build wires slot.Store
// to its own GPT writer; this is the file-backed stand-in used when no
// such writer is linked in.
type slotMetadataFile struct {
	path string
}

func (s slotMetadataFile) Load() ([]slot.Metadata, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ironboot: reading slot metadata %q: %w", s.path, err)
	}

	var slots []slot.Metadata
	if err := yaml.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("ironboot: parsing slot metadata %q: %w", s.path, err)
	}

	return slots, nil
}

func (s slotMetadataFile) Save(slots []slot.Metadata) error {
	data, err := yaml.Marshal(slots)
	if err != nil {
		return fmt.Errorf("ironboot: encoding slot metadata: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("ironboot: writing slot metadata %q: %w", s.path, err)
	}

	return nil
}

// uefiSecureBoot asks the firmware itself whether secure boot is on,
// rather than trusting a cached variable this core could have written.
// Setup mode (the state a platform enters while enrolling its own keys)
// is treated as secure boot disabled, since signature checks are bypassed
// in that mode regardless of the SecureBoot variable's value.
type uefiSecureBoot struct{}

func (uefiSecureBoot) Enabled() (bool, error) {
	return efi.GetSecureBoot() && !efi.GetSetupMode(), nil
}
