// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bootenv aggregates every external collaborator and policy flag
// the core's pipeline needs, threaded through by reference rather than
// held in package-level state.
package bootenv

import (
	"time"

	"github.com/google/uuid"

	"github.com/ironboot/ironboot/internal/bcb"
	"github.com/ironboot/ironboot/internal/firmwarevar"
	"github.com/ironboot/ironboot/internal/image"
	"github.com/ironboot/ironboot/internal/slot"
	"github.com/ironboot/ironboot/internal/target"
	"github.com/ironboot/ironboot/internal/trust"
	"github.com/ironboot/ironboot/internal/verify"
	"github.com/ironboot/ironboot/internal/watchdog"
)

// ErrorUX is the external collaborator that renders the warning/error
// screen for a user-actionable trust state and returns the user's choice.
// It is never invoked for GREEN.
type ErrorUX interface {
	Warn(state trust.State, unlocked bool) UXDecision
}

// SecureBootSource reports whether EFI secure boot is currently enabled.
// A production build backs this with the firmware's own secure-boot
// attestation rather than a variable this core could forge; when unset,
// callers fall back to reading the cached SecureBoot firmware variable.
type SecureBootSource interface {
	Enabled() (bool, error)
}

// UXDecision is ErrorUX's response.
type UXDecision string

const (
	UXContinue  UXDecision = "CONTINUE"
	UXPowerOff  UXDecision = "POWER_OFF"
	UXCrashmode UXDecision = "CRASHMODE"
	UXFastboot  UXDecision = "FASTBOOT"
)

// Capabilities are the build/device-time policy toggles this core treats
// as documented fixed configuration rather than feature flags it wires
// itself.
type Capabilities struct {
	Production              bool `yaml:"production"`
	OffModeChargeEnabled    bool `yaml:"off_mode_charge_enabled"`
	RecoveryInBootPartition bool `yaml:"recovery_in_boot_partition"`
	AllowRedContinuation    bool `yaml:"allow_red_continuation_for_debug"`
	BootOSBatteryThreshold  int  `yaml:"boot_os_battery_threshold_percent"`
}

// Env is the single aggregate the orchestrator reads every collaborator
// from. target.Chooser carries its own collaborator set; cmd/ironboot
// wires the same stores into both.
type Env struct {
	Vars       firmwarevar.ReadWriter
	Partition  image.PartitionReader
	ESP        image.ESPReader
	Verifier   verify.Adapter
	Slots      *slot.Controller
	BCB        target.BCBStore
	Watchdog   target.WatchdogStore
	UX         ErrorUX
	SecureBoot SecureBootSource

	Caps Capabilities

	// SystemPartitionUUID backs the root=PARTUUID= synthesis in
	// internal/cmdline. GPT parsing itself is out of scope;
	// a real binary resolves this once at startup and stores it here.
	SystemPartitionUUID uuid.UUID

	// Clock lets tests and the watchdog loop detector control "now"
	// without depending on wall time.
	Clock func() time.Time
}

// Now returns Clock() if set, else time.Now().
func (e *Env) Now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// bcbVarStore adapts a raw partition reader/writer pair into the
// target.BCBStore the Selector expects, isolating the misc-partition
// offset bookkeeping from target's rule logic.
type bcbVarStore struct {
	read  func() ([]byte, error)
	write func([]byte) error
}

// NewBCBStore wraps raw misc-partition read/write functions into a
// target.BCBStore.
func NewBCBStore(read func() ([]byte, error), write func([]byte) error) target.BCBStore {
	return &bcbVarStore{read: read, write: write}
}

func (s *bcbVarStore) Read() (bcb.BCB, error) {
	data, err := s.read()
	if err != nil {
		return bcb.BCB{}, err
	}
	return bcb.Unmarshal(data)
}

func (s *bcbVarStore) Write(b bcb.BCB) error {
	data, err := b.Marshal()
	if err != nil {
		return err
	}
	return s.write(data)
}

// firmwareWatchdogStore adapts firmwarevar.ReadWriter into
// target.WatchdogStore, under the fixed WatchdogCounterVariable name.
type firmwareWatchdogStore struct {
	vars  firmwarevar.ReadWriter
	scope firmwarevar.Scope
	name  string
}

// WatchdogCounterVariable is the firmware variable name the loop
// detector's (counter, time_ref) state is persisted under.
const WatchdogCounterVariable = "WatchdogLoopState"

// NewWatchdogStore builds a target.WatchdogStore backed by vars.
func NewWatchdogStore(vars firmwarevar.ReadWriter, scope firmwarevar.Scope) target.WatchdogStore {
	return &firmwareWatchdogStore{vars: vars, scope: scope, name: WatchdogCounterVariable}
}

func (s *firmwareWatchdogStore) Load() (watchdog.State, error) {
	data, _, err := s.vars.Read(s.scope, s.name)
	if err != nil {
		if err == firmwarevar.ErrNotFound {
			return watchdog.State{}, nil
		}
		return watchdog.State{}, err
	}
	return watchdog.Decode(data), nil
}

func (s *firmwareWatchdogStore) Save(state watchdog.State) error {
	return s.vars.Write(s.scope, s.name, firmwarevar.AttrNonVolatile|firmwarevar.AttrBootAccess|firmwarevar.AttrRuntimeAccess, state.Encode())
}
