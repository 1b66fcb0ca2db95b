// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package verify

import (
	"bytes"
	"errors"

	"github.com/ironboot/ironboot/internal/trust"
)

// BootMagic is the fixed 8-byte header every loaded boot image must begin
// with.
var BootMagic = []byte("IRONBOOT")

// ErrBadMagic is returned when the loaded payload does not begin with
// BootMagic. No payload with a wrong magic is ever allowed past this point
// regardless of AllowError.
var ErrBadMagic = errors.New("verify: boot image magic mismatch")

// CheckMagic validates image against BootMagic. It is always called before
// any AllowError-driven tolerance is applied, and its failure can never be
// downgraded to anything but NOT_FOUND-class handling.
func CheckMagic(image []byte) error {
	if len(image) < len(BootMagic) || !bytes.Equal(image[:len(BootMagic)], BootMagic) {
		return ErrBadMagic
	}

	return nil
}

// MapOutcome implements the §4.3 mapping table: the verifier outcome,
// combined with the allow_error policy, either keeps, raises to ORANGE, or
// pins RED. It never lowers incoming; callers pass the floor the state
// must not drop below.
//
//	outcome \ allowError | false        | true
//	OK                   | keep state   | raise to ORANGE if below
//	VERIFICATION/ROLLBACK| RED          | ORANGE if <= ORANGE, else RED
//	/KEY_REJECTED         |              |
//	other error           | RED          | ORANGE if <= ORANGE, else RED
func MapOutcome(outcome Outcome, allowError bool, floor trust.State) trust.State {
	if outcome == OK {
		if allowError {
			return floor.RaiseTo(trust.Orange)
		}

		return floor
	}

	// VerificationFailed, RollbackIndex, KeyRejected, OtherError all share
	// the same row in the mapping table.
	if allowError {
		if floor.Compare(trust.Orange) <= 0 {
			return trust.Orange
		}

		return trust.Red
	}

	return trust.Red
}

// AllowError derives the allow_error policy bit from the incoming trust
// state: allow_error is true whenever the incoming state is not GREEN.
func AllowError(incoming trust.State) bool {
	return incoming != trust.Green
}
