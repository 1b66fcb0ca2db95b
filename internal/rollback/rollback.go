// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package rollback implements the monotone rollback index controller:
// per-location counters that are never allowed to decrease.
package rollback

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// MaxLocations bounds the location index space to [0, MaxLocations).
const MaxLocations = 32

// Store is the persistence boundary for rollback indices, backed in
// production by the verifier's read_rollback_index/write_rollback_index
// capability — this core never touches RPMB/eFuse storage
// directly.
type Store interface {
	Read(location uint32) (uint64, error)
	Write(location uint32, value uint64) error
}

// Asserted is the sparse set of (location, index) pairs a verified image
// asserts, as returned by the verifier in VerifiedBootData.
type Asserted map[uint32]uint64

// AdvanceAll advances every asserted location whose value exceeds the
// currently stored one. Locations are visited in ascending order. Every
// stored value is read before any write, so a read error aborts the update
// with nothing advanced. A write error stops the update at that location;
// the locations before it have already been advanced.
func AdvanceAll(store Store, asserted Asserted) error {
	locations := sortedLocations(asserted)

	var errs *multierror.Error

	staged := make(map[uint32]uint64, len(locations))

	for _, loc := range locations {
		want := asserted[loc]
		if want == 0 {
			continue
		}

		stored, err := store.Read(loc)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("rollback: reading location %d: %w", loc, err))
			continue
		}

		if want > stored {
			staged[loc] = want
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	// All reads succeeded; now perform the writes. A write failure aborts
	// immediately rather than continuing to the next location, so no
	// out-of-order partial state can be observed by a concurrent reboot.
	for _, loc := range locations {
		value, needsWrite := staged[loc]
		if !needsWrite {
			continue
		}

		if err := store.Write(loc, value); err != nil {
			return fmt.Errorf("rollback: writing location %d: %w", loc, err)
		}
	}

	return nil
}

func sortedLocations(asserted Asserted) []uint32 {
	locations := make([]uint32, 0, len(asserted))
	for loc := range asserted {
		locations = append(locations, loc)
	}

	// Simple insertion sort: location counts are tiny (bounded by
	// MaxLocations) so this avoids pulling in sort for a handful of
	// elements while still guaranteeing ascending order.
	for i := 1; i < len(locations); i++ {
		for j := i; j > 0 && locations[j-1] > locations[j]; j-- {
			locations[j-1], locations[j] = locations[j], locations[j-1]
		}
	}

	return locations
}
