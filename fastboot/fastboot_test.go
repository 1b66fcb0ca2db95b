// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fastboot_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironboot/ironboot/fastboot"
	"github.com/ironboot/ironboot/internal/verify"
)

type scriptedSession struct {
	commands []fastboot.Command
	i        int
}

func (s *scriptedSession) NextCommand(ctx context.Context) (fastboot.Command, error) {
	if s.i >= len(s.commands) {
		return fastboot.Command{}, errors.New("session exhausted")
	}
	c := s.commands[s.i]
	s.i++
	return c, nil
}

type fakePipeline struct {
	outcome verify.Outcome
	slot    verify.SlotData
	err     error
}

func (f fakePipeline) VerifyRAMImage(img []byte) (verify.Outcome, verify.SlotData, error) {
	return f.outcome, f.slot, f.err
}

func validImage() []byte {
	return append([]byte("IRONBOOT"), []byte("...payload")...)
}

func TestLoop_RebootTerminatesWithRebootState(t *testing.T) {
	session := &scriptedSession{commands: []fastboot.Command{{Reboot: true, RebootTarget: "bootloader"}}}

	result, err := fastboot.Loop(context.Background(), session, fakePipeline{})
	require.NoError(t, err)
	assert.Equal(t, fastboot.Reboot, result.State)
	assert.Equal(t, "bootloader", result.RebootTo)
}

func TestLoop_ContinueFallsThroughToHandoff(t *testing.T) {
	session := &scriptedSession{commands: []fastboot.Command{{Continue: true}}}

	result, err := fastboot.Loop(context.Background(), session, fakePipeline{})
	require.NoError(t, err)
	assert.Equal(t, fastboot.Handoff, result.State)
}

func TestLoop_ChainloadCommandTerminates(t *testing.T) {
	session := &scriptedSession{commands: []fastboot.Command{{ChainloadPath: `\loader.efi`}}}

	result, err := fastboot.Loop(context.Background(), session, fakePipeline{})
	require.NoError(t, err)
	assert.Equal(t, fastboot.Chainload, result.State)
	assert.Equal(t, `\loader.efi`, result.ChainPath)
}

func TestLoop_RAMBootImageVerifiedOKHandsOff(t *testing.T) {
	session := &scriptedSession{commands: []fastboot.Command{{RAMBootImage: validImage()}}}
	pipeline := fakePipeline{outcome: verify.OK, slot: verify.SlotData{DeclaredTarget: "/boot"}}

	result, err := fastboot.Loop(context.Background(), session, pipeline)
	require.NoError(t, err)
	assert.Equal(t, fastboot.Handoff, result.State)
	assert.Equal(t, "/boot", result.SlotData.DeclaredTarget)
}

func TestLoop_RAMBootImageBadMagicStaysInLoop(t *testing.T) {
	session := &scriptedSession{commands: []fastboot.Command{
		{RAMBootImage: []byte("NOTMAGIC")},
		{Reboot: true},
	}}

	result, err := fastboot.Loop(context.Background(), session, fakePipeline{outcome: verify.OK})
	require.NoError(t, err)
	assert.Equal(t, fastboot.Reboot, result.State, "bad magic must not hand off; loop continues to next command")
}

func TestLoop_RAMBootImageVerificationFailureStaysInLoop(t *testing.T) {
	session := &scriptedSession{commands: []fastboot.Command{
		{RAMBootImage: validImage()},
		{Reboot: true},
	}}

	result, err := fastboot.Loop(context.Background(), session, fakePipeline{outcome: verify.VerificationFailed})
	require.NoError(t, err)
	assert.Equal(t, fastboot.Reboot, result.State)
}

func TestLoop_SessionErrorDies(t *testing.T) {
	session := &scriptedSession{}

	result, err := fastboot.Loop(context.Background(), session, fakePipeline{})
	assert.Error(t, err)
	assert.Equal(t, fastboot.Die, result.State)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "HANDOFF", fastboot.Handoff.String())
	assert.Equal(t, "DIE", fastboot.Die.String())
}
