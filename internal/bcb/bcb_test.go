// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bcb_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironboot/ironboot/internal/bcb"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	b := bcb.BCB{Command: "boot-recovery", Status: "ok", Recovery: "", Stage: ""}

	raw, err := b.Marshal()
	require.NoError(t, err)
	require.Len(t, raw, bcb.Size)

	got, err := bcb.Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestParseFromReader(t *testing.T) {
	b := bcb.BCB{Command: "bootonce-fastboot"}
	raw, err := b.Marshal()
	require.NoError(t, err)

	got, err := bcb.Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "bootonce-fastboot", got.Command)
}

func TestUnmarshalRejectsShortRecord(t *testing.T) {
	_, err := bcb.Unmarshal(make([]byte, bcb.Size-1))
	assert.Error(t, err)
}

func TestMarshalRejectsOversizedField(t *testing.T) {
	b := bcb.BCB{Command: strings.Repeat("x", 32)}
	_, err := b.Marshal()
	assert.Error(t, err)
}

func TestConsume_BootIsPersistent(t *testing.T) {
	c := bcb.Consume(bcb.BCB{Command: "boot-recovery", Status: "prior"})

	assert.Equal(t, "recovery", c.RawTarget)
	assert.False(t, c.OneShot)
	assert.Equal(t, "boot-recovery", c.Next.Command, "persistent command must survive being read")
	assert.Empty(t, c.Next.Status, "status is always cleared")
}

func TestConsume_BootonceIsOneShot(t *testing.T) {
	c := bcb.Consume(bcb.BCB{Command: "bootonce-recovery", Status: "prior"})

	assert.Equal(t, "recovery", c.RawTarget)
	assert.True(t, c.OneShot)
	assert.Empty(t, c.Next.Command, "bootonce- form must be cleared before the target is honored")
	assert.Empty(t, c.Next.Status)
}

func TestConsume_OneShotHonoredOnlyOnce(t *testing.T) {
	first := bcb.Consume(bcb.BCB{Command: "bootonce-recovery"})
	assert.Equal(t, "recovery", first.RawTarget)

	second := bcb.Consume(first.Next)
	assert.Empty(t, second.RawTarget, "next read must return an empty command")
}

func TestConsume_EmptyCommandYieldsNoTarget(t *testing.T) {
	c := bcb.Consume(bcb.BCB{Status: "leftover"})
	assert.Empty(t, c.RawTarget)
	assert.Empty(t, c.Next.Status)
}
