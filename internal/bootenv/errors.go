// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootenv

import "errors"

// Kind classifies every error this core produces, as a closed set of four
// kinds. Callers use the Is* predicates rather than comparing sentinel
// values directly, since a wrapped error still satisfies them.
type Kind int

const (
	// KindTransientEnvironmental covers a missing variable or a read-once
	// I/O glitch. The caller must degrade to a safe default (typically
	// NORMAL_BOOT) rather than propagate the error.
	KindTransientEnvironmental Kind = iota
	// KindPersistentPolicyFailure covers an unbootable slot, all slots
	// failed, or recovery exhausted. It is surfaced to the Trust-State
	// Reducer as an image-load failure and pins RED.
	KindPersistentPolicyFailure
	// KindVerificationFailure is any verifier outcome other than OK,
	// mapped through the trust-state table; it is never raw-propagated
	// past the reducer.
	KindVerificationFailure
	// KindInvariantViolation covers a corrupt boot image magic, malformed
	// BCB path, or TOS start failure under secure policy. It is fatal: the
	// process halts after a visible UX pause.
	KindInvariantViolation
)

type coreError struct {
	kind Kind
	err  error
}

func (e *coreError) Error() string { return e.err.Error() }
func (e *coreError) Unwrap() error { return e.err }

// Wrap annotates err with kind so the Is* predicates below can classify
// it.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &coreError{kind: kind, err: err}
}

func kindOf(err error) (Kind, bool) {
	var ce *coreError
	if errors.As(err, &ce) {
		return ce.kind, true
	}
	return 0, false
}

// IsTransient reports whether err is (or wraps) a TransientEnvironmental
// failure.
func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransientEnvironmental
}

// IsPersistentPolicy reports whether err is (or wraps) a
// PersistentPolicyFailure.
func IsPersistentPolicy(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindPersistentPolicyFailure
}

// IsVerificationFailure reports whether err is (or wraps) a verification
// failure.
func IsVerificationFailure(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindVerificationFailure
}

// IsInvariantViolation reports whether err is (or wraps) an invariant
// violation, the only fatal class in this taxonomy.
func IsInvariantViolation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindInvariantViolation
}
