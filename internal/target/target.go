// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package target implements the Target Selector: a strict
// priority-ordered rule chain that inspects command-line flags, on-disk
// sentinels, a magic-key hold, the watchdog/panic loop detector, wake
// source, the BCB control record, a one-shot loader variable, and battery
// state, yielding exactly one boot target.
package target

import (
	"context"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/ironboot/ironboot/internal/bcb"
	"github.com/ironboot/ironboot/internal/watchdog"
)

// Target is one of the small set of outcomes the Selector can yield.
type Target string

const (
	NormalBoot    Target = "NORMAL_BOOT"
	Fastboot      Target = "FASTBOOT"
	Recovery      Target = "RECOVERY"
	PowerOff      Target = "POWER_OFF"
	ExitShell     Target = "EXIT_SHELL"
	Charger       Target = "CHARGER"
	Crashmode     Target = "CRASHMODE"
	ESPEFIBinary  Target = "ESP_EFI_BINARY"
	ESPBootimage  Target = "ESP_BOOTIMAGE"
	Memory        Target = "MEMORY"
	DNX           Target = "DNX"
	UnknownTarget Target = "UNKNOWN_TARGET"
)

// Decision is the Selector's full result: a target, an optional ESP path
// for the ESP_* variants, and whether the choice was one-shot.
type Decision struct {
	Target  Target
	ESPPath string
	OneShot bool
}

// NameToTarget resolves a BCB-command name to a Target. Exported so callers
// (and tests) can extend it.
var NameToTarget = map[string]Target{
	"":         NormalBoot,
	"recovery": Recovery,
	"fastboot": Fastboot,
}

// OsLoaderOptions are command-line flags forwarded from a chained loader,
// grounded on kernelflinger's `-f`/`-a`/`-U` parsing.
type OsLoaderOptions struct {
	Force          bool   // -f
	RAMAddrIgnored bool   // -a <addr>, historical, now ignored but still forces FASTBOOT
	SelfTestName   string // -U [name]
	SelfTestAsked  bool
}

// WakeSource mirrors kernelflinger's wake-source enum.
type WakeSource string

const (
	WakeNotApplicable   WakeSource = "WAKE_NOT_APPLICABLE"
	WakeBatteryInserted WakeSource = "WAKE_BATTERY_INSERTED"
	WakeUSBCharger      WakeSource = "WAKE_USB_CHARGER_INSERTED"
	WakeACDCCharger     WakeSource = "WAKE_ACDC_CHARGER_INSERTED"
	WakeKeyInserted     WakeSource = "WAKE_KEY_INSERTED"
	WakeOther           WakeSource = "WAKE_OTHER"
)

// KeyPoller abstracts firmware key-input polling.
// The Selector bounds its own poll loop with a context deadline; real
// implementations must return promptly once ctx is done.
type KeyPoller interface {
	// PollDownArrow polls until the down-arrow key is released or ctx is
	// done, returning whether it was ever observed and how long it stayed
	// held.
	PollDownArrow(ctx context.Context) (held time.Duration, pressed bool)
}

// ESPChecker abstracts presence checks on the EFI System Partition.
type ESPChecker interface {
	Exists(path string) bool
}

// BCBStore abstracts reading and rewriting the misc partition's BCB record.
type BCBStore interface {
	Read() (bcb.BCB, error)
	Write(bcb.BCB) error
}

// WatchdogStore persists the loop detector's (counter, time_ref) state.
type WatchdogStore interface {
	Load() (watchdog.State, error)
	Save(watchdog.State) error
}

// OneShotVarStore abstracts the LoaderEntryOneShot firmware variable:
// read-and-delete semantics.
type OneShotVarStore interface {
	ReadAndDeleteOneShot() (string, bool, error)
}

// VerityMarker lets rule 7 flag the active slot's dm-verity-corrupted bit
// without this package depending on the full slot controller.
type VerityMarker interface {
	SetVerityCorrupted(bool) error
}

// BatterySource abstracts battery level and charger-attachment state.
type BatterySource interface {
	BelowBootThreshold() bool
	ChargerAttached() bool
}

// Capabilities are policy flags that vary by build/device.
type Capabilities struct {
	Production              bool
	OffModeChargeEnabled    bool
	RecoveryInBootPartition bool
}

// SelfTests is the registry rule 1's `-U [name]` dispatches into,
// mirroring the list-of-constructors pattern
// (bootloader.Bootloaders) generalized to name-keyed self-tests.
type SelfTests map[string]func() error

// Chooser bundles every external collaborator the Selector needs. All
// fields are optional; a nil collaborator causes its rule to be skipped
// rather than panicking, so callers can exercise individual rules in
// isolation during tests.
type Chooser struct {
	Keys            KeyPoller
	ESP             ESPChecker
	BCB             BCBStore
	Watchdog        WatchdogStore
	OneShot         OneShotVarStore
	Verity          VerityMarker
	Battery         BatterySource
	SelfTests       SelfTests
	Caps            Capabilities
	MagicKeyTimeout time.Duration

	RebootReason watchdog.RebootReason
	WakeSource   WakeSource
	Now          func() time.Time
}

func (c *Chooser) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Choose evaluates the rule chain in strict priority order.
// The first rule to produce a non-NORMAL_BOOT result wins; every
// environmental read failure degrades that rule to "did not fire" rather
// than surfacing an error, per the same section.
func (c *Chooser) Choose(ctx context.Context, opts OsLoaderOptions) (Decision, error) {
	if d, ok := c.ruleCommandLineFlags(opts); ok {
		return d, nil
	}

	if d, ok := c.ruleFastbootSentinel(); ok {
		return d, nil
	}

	if d, ok := c.ruleMagicKey(ctx); ok {
		return d, nil
	}

	if d, ok := c.ruleWatchdogLoop(); ok {
		return d, nil
	}

	if d, ok := c.ruleBatteryInsertWake(); ok {
		return d, nil
	}

	if d, ok := c.ruleBCBCommand(); ok {
		return d, nil
	}

	if d, ok := c.ruleOneShotVariable(); ok {
		return d, nil
	}

	if d, ok := c.ruleBatteryLevel(); ok {
		return d, nil
	}

	if d, ok := c.ruleChargerWake(); ok {
		return d, nil
	}

	klog.V(2).Info("target: no rule fired, defaulting to NORMAL_BOOT")
	return Decision{Target: NormalBoot}, nil
}

func (c *Chooser) ruleCommandLineFlags(opts OsLoaderOptions) (Decision, bool) {
	if opts.Force || opts.RAMAddrIgnored {
		klog.V(2).Info("target: rule 1 cmdline flag forces FASTBOOT")
		return Decision{Target: Fastboot}, true
	}

	if opts.SelfTestAsked && !c.Caps.Production {
		klog.V(2).Infof("target: rule 1 self-test %q requested", opts.SelfTestName)
		if fn, ok := c.SelfTests[opts.SelfTestName]; ok {
			if err := fn(); err != nil {
				klog.Errorf("target: self-test %q failed: %v", opts.SelfTestName, err)
			}
		}
		return Decision{Target: ExitShell}, true
	}

	return Decision{}, false
}

func (c *Chooser) ruleFastbootSentinel() (Decision, bool) {
	if c.ESP == nil {
		return Decision{}, false
	}

	if c.ESP.Exists(`\force_fastboot`) {
		klog.V(2).Info("target: rule 2 fastboot sentinel present")
		return Decision{Target: Fastboot}, true
	}

	return Decision{}, false
}

func (c *Chooser) ruleMagicKey(ctx context.Context) (Decision, bool) {
	if c.Keys == nil {
		return Decision{}, false
	}

	timeout := c.MagicKeyTimeout
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	if timeout > time.Second {
		timeout = time.Second
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	held, pressed := c.Keys.PollDownArrow(pollCtx)
	if !pressed {
		return Decision{}, false
	}

	if held >= 2*time.Second {
		klog.V(2).Info("target: rule 3 magic key held >=2s, FASTBOOT")
		return Decision{Target: Fastboot}, true
	}

	klog.V(2).Info("target: rule 3 magic key short press, RECOVERY")
	return Decision{Target: Recovery}, true
}

func (c *Chooser) ruleWatchdogLoop() (Decision, bool) {
	if c.Watchdog == nil {
		return Decision{}, false
	}

	state, err := c.Watchdog.Load()
	if err != nil {
		klog.V(2).Infof("target: rule 4 watchdog state load failed, degrading: %v", err)
		return Decision{}, false
	}

	decision := watchdog.Evaluate(state, c.RebootReason, c.now(), c.Caps.Production)

	if err := c.Watchdog.Save(decision.NewState); err != nil {
		klog.Errorf("target: rule 4 watchdog state save failed: %v", err)
	}

	if decision.ForceNormalBoot {
		klog.V(2).Info("target: rule 4 non-watchdog reset clears loop state")
		return Decision{}, false
	}

	if decision.PowerOff {
		klog.V(2).Info("target: rule 4 production user-requested shutdown")
		return Decision{Target: PowerOff}, true
	}

	if decision.Escalate {
		klog.Warning("target: rule 4 watchdog/panic loop escalated to crash menu")
		return Decision{Target: Crashmode}, true
	}

	return Decision{}, false
}

func (c *Chooser) ruleBatteryInsertWake() (Decision, bool) {
	if !c.Caps.OffModeChargeEnabled || c.WakeSource != WakeBatteryInserted {
		return Decision{}, false
	}

	klog.V(2).Info("target: rule 5 battery-insert wake, POWER_OFF")
	return Decision{Target: PowerOff}, true
}

func (c *Chooser) ruleBCBCommand() (Decision, bool) {
	if c.BCB == nil {
		return Decision{}, false
	}

	record, err := c.BCB.Read()
	if err != nil {
		klog.V(2).Infof("target: rule 6 BCB read failed, degrading: %v", err)
		return Decision{}, false
	}

	consumed := bcb.Consume(record)

	if err := c.BCB.Write(consumed.Next); err != nil {
		klog.Errorf("target: rule 6 BCB write-back failed: %v", err)
	}

	if consumed.RawTarget == "" {
		return Decision{}, false
	}

	if strings.HasPrefix(consumed.RawTarget, `\`) {
		if strings.HasSuffix(strings.ToLower(consumed.RawTarget), ".efi") {
			return Decision{Target: ESPEFIBinary, ESPPath: consumed.RawTarget, OneShot: consumed.OneShot}, true
		}
		return Decision{Target: ESPBootimage, ESPPath: consumed.RawTarget, OneShot: consumed.OneShot}, true
	}

	resolved, ok := NameToTarget[consumed.RawTarget]
	if !ok {
		klog.V(2).Infof("target: rule 6 BCB name %q not in name_to_target, ignoring", consumed.RawTarget)
		return Decision{}, false
	}

	if resolved == NormalBoot {
		return Decision{}, false
	}

	return Decision{Target: resolved, OneShot: consumed.OneShot}, true
}

const verityCorruptedCommand = "dm-verity device corrupted"

func (c *Chooser) ruleOneShotVariable() (Decision, bool) {
	if c.OneShot == nil {
		return Decision{}, false
	}

	value, present, err := c.OneShot.ReadAndDeleteOneShot()
	if err != nil {
		klog.V(2).Infof("target: rule 7 one-shot variable read failed, degrading: %v", err)
		return Decision{}, false
	}
	if !present {
		return Decision{}, false
	}

	if value == verityCorruptedCommand {
		if c.Verity != nil {
			if err := c.Verity.SetVerityCorrupted(true); err != nil {
				klog.Errorf("target: rule 7 marking verity corrupted failed: %v", err)
			}
		}
		return Decision{}, false
	}

	// Only a non-NORMAL_BOOT resolved target is honored; NORMAL_BOOT falls
	// through exactly as if no one-shot variable had been present at all
	// (kernelflinger's check_loader_entry_one_shot only special-cases
	// targets other than NORMAL_BOOT/DNX — DNX itself is honored like any
	// other resolved target, not suppressed).
	resolved := Target(value)
	if resolved == NormalBoot {
		return Decision{}, false
	}

	if resolved == Charger && !c.Caps.OffModeChargeEnabled {
		klog.V(2).Info("target: rule 7 CHARGER one-shot degraded to POWER_OFF (off-mode-charge disabled)")
		return Decision{Target: PowerOff}, true
	}

	return Decision{Target: resolved}, true
}

func (c *Chooser) ruleBatteryLevel() (Decision, bool) {
	if c.Battery == nil || !c.Battery.BelowBootThreshold() {
		return Decision{}, false
	}

	if c.Battery.ChargerAttached() {
		klog.V(2).Info("target: rule 8 battery below threshold with charger, CHARGER")
		return Decision{Target: Charger}, true
	}

	klog.V(2).Info("target: rule 8 battery below threshold, no charger, POWER_OFF")
	return Decision{Target: PowerOff}, true
}

func (c *Chooser) ruleChargerWake() (Decision, bool) {
	if !c.Caps.OffModeChargeEnabled {
		return Decision{}, false
	}

	if c.WakeSource == WakeUSBCharger || c.WakeSource == WakeACDCCharger {
		klog.V(2).Info("target: rule 9 charger wake, CHARGER")
		return Decision{Target: Charger}, true
	}

	return Decision{}, false
}
