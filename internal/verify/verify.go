// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package verify adapts the external verified-boot cryptographic library
// (out of scope here) and reduces its outcome, together with device lock
// state, into the four-color trust state.
package verify

import "github.com/ironboot/ironboot/internal/slot"

// Outcome is the verifier's raw result for a single verification pass,
// matching the rows of the mapping table in MapOutcome.
type Outcome int

const (
	// OK means the image verified successfully.
	OK Outcome = iota
	// VerificationFailed means the signature/hash did not match.
	VerificationFailed
	// RollbackIndex means a valid signature was found but its rollback
	// index is behind the stored value.
	RollbackIndex
	// KeyRejected means the signing key is not trusted (revoked or not in
	// the key ring).
	KeyRejected
	// OtherError covers any other verifier failure (I/O, malformed image).
	OtherError
)

// SlotData is this core's owned copy of VerifiedBootData: the
// loaded partition bytes, the rollback indices asserted by the image, the
// slot suffix the verifier resolved (A/B flow only), and any verified
// command-line fragment. Go's ownership model means this is a plain value
// the caller holds for as long as it needs it — no manual lifetime or
// freeing to manage, unlike a pointer-aliased C struct.
type SlotData struct {
	Partition       string
	Image           []byte
	RollbackIndices map[uint32]uint64
	ResolvedSlot    slot.Label
	VerifiedCmdline string
	DeclaredTarget  string // the image's self-declared target name, for §4.4 step 5.
}

// Adapter is the capability set this core requires from the external
// verifier.
type Adapter interface {
	// Verify runs single-slot verification.
	Verify(partitions []string, slotSuffix slot.Label, flags uint32) (Outcome, SlotData, error)
	// ABFlow runs A/B verification, additionally choosing the active slot.
	ABFlow(partitions []string, flags uint32) (Outcome, SlotData, error)
	// ReadRollbackIndex reads the stored rollback index at location.
	ReadRollbackIndex(location uint32) (uint64, error)
	// WriteRollbackIndex writes the rollback index at location.
	WriteRollbackIndex(location uint32, value uint64) error
}
