// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command ironboot is the thin front door the core needs: argv parsing
// and process wiring live outside the core, here, using
// github.com/jessevdk/go-flags the way canonical-secboot and
// linuxboot-fiano's own firmware tooling do. This binary contains no
// policy logic of its own — it only assembles a bootenv.Env from the
// platform's real collaborators and hands it to orchestrator.Run.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"k8s.io/klog/v2"

	"github.com/ironboot/ironboot/internal/bootenv"
	"github.com/ironboot/ironboot/internal/firmwarevar"
	"github.com/ironboot/ironboot/internal/slot"
	"github.com/ironboot/ironboot/internal/target"
	"github.com/ironboot/ironboot/internal/trust"
	"github.com/ironboot/ironboot/orchestrator"
)

type options struct {
	Force    bool   `short:"f" description:"force FASTBOOT, matching a chained loader's -f"`
	RAMAddr  string `short:"a" description:"historical RAM-boot address, ignored; presence alone forces FASTBOOT"`
	SelfTest string `short:"U" optional:"true" optional-value:"default" description:"run a named internal self-test (non-production builds only)"`

	Config       string `long:"config" default:"/etc/ironboot.yaml" description:"path to the BootConfig YAML document"`
	ByLabelDir   string `long:"by-label-dir" default:"/dev/disk/by-partlabel" description:"directory publishing partition-label symlinks"`
	ESPRoot      string `long:"esp-root" default:"/boot" description:"mounted EFI System Partition root"`
	SlotMetadata string `long:"slot-metadata" default:"/mnt/vendor/persist/slot_metadata.yaml" description:"slot metadata sidecar file"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		klog.Errorf("ironboot: %v", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	caps, err := bootenv.LoadConfig(opts.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	vars := firmwarevar.NewEFIVarStore()
	partitions := devicePartitionReader{byLabelDir: opts.ByLabelDir}
	esp := espReader{root: opts.ESPRoot}

	slots, err := slot.NewController(slotMetadataFile{path: opts.SlotMetadata})
	if err != nil {
		return fmt.Errorf("initializing slot controller: %w", err)
	}

	bcbStore := bootenv.NewBCBStore(
		func() ([]byte, error) { return partitions.ReadPartition("misc") },
		func(data []byte) error { return partitions.WritePartition("misc", data) },
	)

	watchdogStore := bootenv.NewWatchdogStore(vars, firmwarevar.ScopeVendor)

	// env.Verifier and env.SystemPartitionUUID are left for a platform
	// build to fill in: image verification is an external collaborator
	// entirely outside the core, and the system partition's PARTUUID is
	// resolved once by whatever GPT tooling that platform already links.
	// orchestrator.Run fails loudly if env.Verifier is nil rather than
	// silently no-op'ing.
	env := &bootenv.Env{
		Vars:       vars,
		Partition:  partitions,
		ESP:        esp,
		Slots:      slots,
		BCB:        bcbStore,
		Watchdog:   watchdogStore,
		Caps:       caps,
		UX:         klogUX{},
		SecureBoot: uefiSecureBoot{},
	}

	chooser := &target.Chooser{
		ESP:       esp,
		BCB:       bcbStore,
		Watchdog:  watchdogStore,
		OneShot:   oneShotStore{vars: vars},
		Verity:    slots,
		SelfTests: target.SelfTests{},
		Caps: target.Capabilities{
			Production:              caps.Production,
			OffModeChargeEnabled:    caps.OffModeChargeEnabled,
			RecoveryInBootPartition: caps.RecoveryInBootPartition,
		},
	}

	loaderOpts := target.OsLoaderOptions{
		Force:          opts.Force,
		RAMAddrIgnored: opts.RAMAddr != "",
		SelfTestName:   opts.SelfTest,
		SelfTestAsked:  opts.SelfTest != "",
	}

	plan, err := orchestrator.Run(env, chooser, loaderOpts)
	if err != nil {
		return fmt.Errorf("running boot pipeline: %w", err)
	}

	klog.Infof("ironboot: target=%s trust=%s ux=%s cmdline=%q", plan.Target, plan.TrustState, plan.UXDecision, plan.Cmdline)

	return nil
}

// oneShotStore adapts firmwarevar into target.OneShotVarStore under the
// fixed LoaderEntryOneShot variable name.
type oneShotStore struct {
	vars firmwarevar.ReadWriter
}

func (o oneShotStore) ReadAndDeleteOneShot() (string, bool, error) {
	value, err := firmwarevar.ReadAndDeleteString(o.vars, firmwarevar.ScopeVendor, "LoaderEntryOneShot")
	if err != nil {
		if err == firmwarevar.ErrNotFound {
			return "", false, nil
		}
		return "", false, err
	}

	return value, value != "", nil
}

// klogUX is the minimal ErrorUX: it logs the trust-state warning and always
// lets the boot continue. A production deployment replaces this with a
// real on-screen prompt.
type klogUX struct{}

func (klogUX) Warn(state trust.State, unlocked bool) bootenv.UXDecision {
	klog.Warningf("ironboot: trust state %s (unlocked=%v)", state, unlocked)
	return bootenv.UXContinue
}
