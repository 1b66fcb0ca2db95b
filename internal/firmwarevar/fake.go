// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package firmwarevar

// Fake is an in-memory ReadWriter for tests, mirroring the shape of the
// fake used in bootloader/sdboot/efivars_test.go.
type Fake struct {
	vars map[Scope]map[string]entry
}

type entry struct {
	data  []byte
	attrs Attr
}

// NewFake returns an empty in-memory variable store.
func NewFake() *Fake {
	return &Fake{vars: make(map[Scope]map[string]entry)}
}

func (f *Fake) Read(scope Scope, name string) ([]byte, Attr, error) {
	byName, ok := f.vars[scope]
	if !ok {
		return nil, 0, ErrNotFound
	}

	e, ok := byName[name]
	if !ok {
		return nil, 0, ErrNotFound
	}

	out := make([]byte, len(e.data))
	copy(out, e.data)

	return out, e.attrs, nil
}

func (f *Fake) Write(scope Scope, name string, attrs Attr, data []byte) error {
	if f.vars[scope] == nil {
		f.vars[scope] = make(map[string]entry)
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	f.vars[scope][name] = entry{data: stored, attrs: attrs}

	return nil
}

func (f *Fake) Delete(scope Scope, name string) error {
	byName, ok := f.vars[scope]
	if !ok {
		return nil
	}

	delete(byName, name)

	return nil
}

// Has reports whether a variable is currently set, for test assertions.
func (f *Fake) Has(scope Scope, name string) bool {
	byName, ok := f.vars[scope]
	if !ok {
		return false
	}

	_, ok = byName[name]

	return ok
}
