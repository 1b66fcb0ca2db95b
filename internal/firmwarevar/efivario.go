// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package firmwarevar

import (
	"errors"
	"fmt"

	"github.com/ecks/uefi/efi/efiguid"
	"github.com/ecks/uefi/efi/efivario"
)

// EFIVarStore adapts efivario.Context to the ReadWriter interface, exactly
// the way sdboot drives efivario directly instead of hand-rolling
// /sys/firmware/efi/efivars parsing.
type EFIVarStore struct {
	Context efivario.Context
}

func toGUID(s Scope) efiguid.GUID {
	return efiguid.MustFromString(s.GUID.String())
}

func (e EFIVarStore) Read(scope Scope, name string) ([]byte, Attr, error) {
	attrs, data, err := efivario.ReadAll(e.Context, name, toGUID(scope))
	if err != nil {
		if errors.Is(err, efivario.ErrNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("firmwarevar: reading %s: %w", name, err)
	}

	return data, convertAttrsFromEFI(attrs), nil
}

func (e EFIVarStore) Write(scope Scope, name string, attrs Attr, data []byte) error {
	return e.Context.Set(name, toGUID(scope), convertAttrsToEFI(attrs), data)
}

func (e EFIVarStore) Delete(scope Scope, name string) error {
	err := e.Context.Set(name, toGUID(scope), 0, nil)
	if err != nil && !errors.Is(err, efivario.ErrNotFound) {
		return fmt.Errorf("firmwarevar: deleting %s: %w", name, err)
	}

	return nil
}

// NewEFIVarStore opens the real firmware variable store by calling
// efivario.NewDefaultContext(), the same call
// talos/internal/app/machined/pkg/controllers/runtime/security_state.go
// makes.
func NewEFIVarStore() EFIVarStore {
	return EFIVarStore{Context: efivario.NewDefaultContext()}
}

func convertAttrsFromEFI(a efivario.Attributes) Attr {
	var out Attr
	if a&efivario.NonVolatile != 0 {
		out |= AttrNonVolatile
	}
	if a&efivario.BootServiceAccess != 0 {
		out |= AttrBootAccess
	}
	if a&efivario.RuntimeAccess != 0 {
		out |= AttrRuntimeAccess
	}
	return out
}

func convertAttrsToEFI(a Attr) efivario.Attributes {
	var out efivario.Attributes
	if a&AttrNonVolatile != 0 {
		out |= efivario.NonVolatile
	}
	if a&AttrBootAccess != 0 {
		out |= efivario.BootServiceAccess
	}
	if a&AttrRuntimeAccess != 0 {
		out |= efivario.RuntimeAccess
	}
	return out
}
