// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package firmwarevar abstracts the UEFI firmware variable store. The real
// implementation is backed by github.com/ecks/uefi/efi/efivario; tests use
// the in-memory Fake in fake.go. This is the boundary to the UEFI firmware
// services (variable store) external collaborator:
// this package only defines the interface and codecs the rest of the core
// is written against.
package firmwarevar

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

// ErrNotFound is returned when a variable does not exist.
var ErrNotFound = errors.New("firmwarevar: not found")

// Scope identifies the GUID namespace a variable lives in, mirroring
// efivarfs.Scope's split between the global EFI namespace and a
// vendor-specific one.
type Scope struct {
	Name string
	GUID uuid.UUID
}

// ScopeGlobal is the well-known EFI_GLOBAL_VARIABLE namespace.
var ScopeGlobal = Scope{Name: "global", GUID: uuid.MustParse("8be4df61-93ca-11d2-aa0d-00e098032b8c")}

// ScopeVendor is this bootloader's own vendor-specific namespace, used for
// BootState, MagicKeyTimeout, LoaderEntryOneShot, OemLock and the watchdog
// counter.
var ScopeVendor = Scope{Name: "ironboot", GUID: uuid.MustParse("c1e3b1a0-6b9f-4c3a-8f0e-1a2b3c4d5e6f")}

// Attr are variable attributes, mirroring EFI_VARIABLE_* bits.
type Attr uint32

const (
	AttrNonVolatile   Attr = 1 << 0
	AttrBootAccess    Attr = 1 << 1
	AttrRuntimeAccess Attr = 1 << 2
)

// ReadWriter is the capability this module needs from the firmware variable
// store. Production code is backed by efivario.Context; tests use Fake.
type ReadWriter interface {
	Read(scope Scope, name string) (data []byte, attrs Attr, err error)
	Write(scope Scope, name string, attrs Attr, data []byte) error
	Delete(scope Scope, name string) error
}

// ReadAndDelete reads a variable and, if present, deletes it — the pattern
// LoaderEntryOneShot requires.
func ReadAndDelete(rw ReadWriter, scope Scope, name string) ([]byte, error) {
	data, _, err := rw.Read(scope, name)
	if err != nil {
		return nil, err
	}

	if err := rw.Delete(scope, name); err != nil {
		return nil, fmt.Errorf("firmwarevar: deleting %s after read: %w", name, err)
	}

	return data, nil
}

// Encoding is the UTF-16LE codec used for string-valued firmware variables,
// matching sdboot's ReadVariable/WriteVariable.
var Encoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ReadString reads a UTF-16LE, NUL-terminated variable as a Go string.
func ReadString(rw ReadWriter, scope Scope, name string) (string, error) {
	data, _, err := rw.Read(scope, name)
	if err != nil {
		return "", err
	}

	return decodeUTF16(data)
}

// ReadAndDeleteString reads and deletes a UTF-16LE variable, decoding it.
func ReadAndDeleteString(rw ReadWriter, scope Scope, name string) (string, error) {
	data, err := ReadAndDelete(rw, scope, name)
	if err != nil {
		return "", err
	}

	return decodeUTF16(data)
}

// WriteString writes s as a UTF-16LE, NUL-terminated variable.
func WriteString(rw ReadWriter, scope Scope, name string, s string) error {
	out := make([]byte, (len(s)+1)*2)

	n, _, err := Encoding.NewEncoder().Transform(out, []byte(s), true)
	if err != nil {
		return fmt.Errorf("firmwarevar: encoding %s: %w", name, err)
	}

	out = append(out[:n], 0, 0)

	return rw.Write(scope, name, AttrNonVolatile|AttrBootAccess|AttrRuntimeAccess, out)
}

func decodeUTF16(data []byte) (string, error) {
	out := make([]byte, len(data))

	n, _, err := Encoding.NewDecoder().Transform(out, data, true)
	if err != nil {
		return "", fmt.Errorf("firmwarevar: decoding: %w", err)
	}

	if n > 0 && out[n-1] == 0 {
		n--
	}

	return string(out[:n]), nil
}

// ReadByte reads a single-byte variable, used for LockState/BootState.
func ReadByte(rw ReadWriter, scope Scope, name string) (byte, bool, error) {
	data, _, err := rw.Read(scope, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}

	if len(data) < 1 {
		return 0, false, fmt.Errorf("firmwarevar: %s is empty", name)
	}

	return data[0], true, nil
}

// WriteByte writes a single-byte variable.
func WriteByte(rw ReadWriter, scope Scope, name string, v byte) error {
	return rw.Write(scope, name, AttrNonVolatile|AttrBootAccess|AttrRuntimeAccess, []byte{v})
}
