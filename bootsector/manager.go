// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2025 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package bootsector manages the boot sectors of the disks a boot loader
// is installed to: it backs them up, writes generic boot code to the MBR
// and marks partitions active.
package bootsector

import (
	"errors"
	"fmt"

	"github.com/snapcore/stage1/arch"
	"github.com/snapcore/stage1/devspec"
	"github.com/snapcore/stage1/logger"
	"github.com/snapcore/stage1/resolver"
	"github.com/snapcore/stage1/strutil"
	"github.com/snapcore/stage1/topology"
)

// Options configure a Manager.
type Options struct {
	Mode devspec.Mode
	// Arch is the architecture of the machine, defaults to the one of
	// the running kernel.
	Arch arch.ArchitectureType
	// MBRDisk is the disk holding the MBR the system boots from,
	// detected from the mount points when empty.
	MBRDisk string
	// Config defaults to DefaultConfig().
	Config *Config
}

// Manager updates boot sectors and partition flags for one boot loader
// installation.
type Manager struct {
	oracle   topology.Oracle
	resolver *resolver.Resolver
	mode     devspec.Mode
	ppc      bool
	mbrDisk  string
	conf     *Config
	backup   *BootRecordBackup

	ddFound bool
}

// Plan lists what Run does for a stage1 configuration.
type Plan struct {
	// MBRDisk is the disk holding the MBR the system boots from.
	MBRDisk string `yaml:"mbr-disk"`
	// Backups are the devices whose boot sector is backed up.
	Backups []string `yaml:"backups"`
	// RewriteDisks are the disks considered for generic boot code.
	RewriteDisks []string `yaml:"rewrite-disks"`
	// Rewrite is set when generic boot code is written to RewriteDisks.
	Rewrite bool `yaml:"rewrite"`
	// Activations are the partitions marked active.
	Activations []ActivationRecord `yaml:"activations,omitempty"`
}

// New returns a Manager working on the given storage topology.
func New(oracle topology.Oracle, opts Options) (*Manager, error) {
	if oracle == nil {
		return nil, errors.New("internal error: cannot manage boot sectors without a storage topology")
	}
	conf := opts.Config
	if conf == nil {
		conf = DefaultConfig()
	}
	a := opts.Arch
	if a == "" {
		kernelArch, err := arch.DpkgKernelArchitecture()
		if err != nil {
			logger.Debugf("cannot determine kernel architecture: %v", err)
			kernelArch = arch.DpkgArchitecture()
		}
		a = arch.ArchitectureType(kernelArch)
	}
	m := &Manager{
		oracle:   oracle,
		resolver: resolver.New(oracle, opts.Mode),
		mode:     opts.Mode,
		ppc:      arch.IsPowerPC(a),
		conf:     conf,
		backup: &BootRecordBackup{
			Dir:  conf.BackupDir,
			Keep: conf.Keep,
			DD:   conf.DD,
		},
	}
	if opts.MBRDisk != "" {
		dev, err := m.lookup(opts.MBRDisk)
		if err != nil {
			return nil, fmt.Errorf("cannot use MBR disk: %v", err)
		}
		m.mbrDisk = dev.Name()
	} else {
		mbrDisk, err := FindMBRDisk(oracle)
		if err != nil {
			return nil, err
		}
		m.mbrDisk = mbrDisk
	}
	return m, nil
}

// Resolver returns the resolver used for boot loader devices.
func (m *Manager) Resolver() *resolver.Resolver {
	return m.resolver
}

// Backup returns the boot sector backup store.
func (m *Manager) Backup() *BootRecordBackup {
	return m.backup
}

// MBRDisk returns the kernel name of the disk holding the MBR.
func (m *Manager) MBRDisk() string {
	return m.mbrDisk
}

// FindMBRDisk returns the disk the system boots from: the disk holding
// /boot, or / if there is no separate /boot, or the first disk.
func FindMBRDisk(oracle topology.Oracle) (string, error) {
	disks := oracle.Disks()
	for _, mnt := range []string{"/boot", "/"} {
		dev := mountedAt(disks, mnt)
		if dev == nil {
			continue
		}
		members := dev.RealDevices()
		if len(members) == 0 {
			continue
		}
		first := members[0]
		if p, ok := first.(topology.Partition); ok {
			return p.Disk().Name(), nil
		}
		if topology.IsPartitionable(first) {
			return first.Name(), nil
		}
	}
	if len(disks) == 0 {
		return "", errors.New("cannot find the MBR disk: no disks")
	}
	logger.Debugf("no disk holds /boot or /, using %s", disks[0].Name())
	return disks[0].Name(), nil
}

func mountedAt(disks []topology.Device, mountPoint string) topology.Device {
	for _, disk := range disks {
		for _, dev := range append([]topology.Device{disk}, disk.Descendants()...) {
			if fs := dev.Filesystem(); fs != nil && fs.MountPoint() == mountPoint {
				return dev
			}
		}
	}
	return nil
}

// DetectMBR sets st.MBR when one of the boot loader devices is the MBR
// disk.
func (m *Manager) DetectMBR(st *Stage1) error {
	for _, spec := range st.Devices {
		dev, err := m.lookup(spec)
		if err != nil {
			return err
		}
		if dev.Name() == m.mbrDisk {
			st.MBR = true
			return nil
		}
	}
	return nil
}

func (m *Manager) realDeviceNames(name string) []string {
	dev := m.oracle.FindByName(name)
	if dev == nil {
		return []string{name}
	}
	var names []string
	for _, r := range dev.RealDevices() {
		names = append(names, r.Name())
	}
	return names
}

// disksToRewrite returns the disks whose MBR may get generic boot code:
// the MBR disk, and when the boot loader goes to partitions of it, the
// disks of all real devices backing the boot loader devices, as with RAID
// members spread over several disks. memberRecords holds one activation
// record per real device; devices without a usable record count as the
// MBR disk.
func (m *Manager) disksToRewrite(memberRecords []ActivationRecord) []string {
	disks := []string{m.mbrDisk}

	var recordDisks []string
	onMBRDisk := false
	for _, rec := range memberRecords {
		disk := m.mbrDisk
		if !rec.IsEmpty() && m.activatable(rec) {
			disk = rec.Disk
		}
		if disk == m.mbrDisk {
			onMBRDisk = true
		}
		recordDisks = append(recordDisks, disk)
	}
	if onMBRDisk {
		disks = append(disks, recordDisks...)
	}

	var out []string
	for _, d := range disks {
		out = strutil.AppendUnique(out, m.realDeviceNames(d)...)
	}
	return out
}

// Plan computes what Run does for st, without touching any device.
func (m *Manager) Plan(st *Stage1) (*Plan, error) {
	records := make([]ActivationRecord, 0, len(st.Devices))
	var memberRecords []ActivationRecord
	for _, spec := range st.Devices {
		recs, err := m.memberRecords(spec)
		if err != nil {
			return nil, err
		}
		// only the first member is activated
		records = append(records, recs[0])
		memberRecords = append(memberRecords, recs...)
	}

	rewrite := m.disksToRewrite(memberRecords)
	plan := &Plan{
		MBRDisk:      m.mbrDisk,
		RewriteDisks: rewrite,
		Rewrite:      st.GenericMBR && !st.MBR,
	}

	plan.Backups = strutil.AppendUnique(plan.Backups, rewrite...)
	for _, spec := range st.Devices {
		dev, err := m.lookup(spec)
		if err != nil {
			return nil, err
		}
		for _, r := range dev.RealDevices() {
			plan.Backups = strutil.AppendUnique(plan.Backups, r.Name())
		}
	}
	plan.Backups = strutil.AppendUnique(plan.Backups, m.mbrDisk)

	if !st.Activate {
		return plan, nil
	}
	for _, rec := range records {
		switch {
		case rec.IsEmpty():
			continue
		case !m.activatable(rec):
			logger.Debugf("not activating %s: not supported on this disk", rec)
			continue
		case containsRecord(plan.Activations, rec):
			continue
		}
		plan.Activations = append(plan.Activations, rec)
	}
	return plan, nil
}

func containsRecord(recs []ActivationRecord, rec ActivationRecord) bool {
	for _, r := range recs {
		if r == rec {
			return true
		}
	}
	return false
}

// Run backs up the boot sectors of all devices involved, writes generic
// boot code to the MBR and marks partitions active, as configured by st.
// Nothing is modified unless all backups succeed.
func (m *Manager) Run(st *Stage1) error {
	if m.mode == devspec.ConfigOnly {
		return errors.New("cannot modify boot sectors in config-only mode")
	}
	if err := m.ensureCopyTool(); err != nil {
		return err
	}
	plan, err := m.Plan(st)
	if err != nil {
		return err
	}

	for _, dev := range plan.Backups {
		if err := m.backup.Write(dev, dev == plan.MBRDisk); err != nil {
			return err
		}
	}

	if plan.Rewrite {
		for _, disk := range plan.RewriteDisks {
			if err := m.installGenericMBR(disk); err != nil {
				return err
			}
		}
	}

	for _, rec := range plan.Activations {
		if err := m.activate(rec); err != nil {
			return err
		}
	}
	return nil
}

// Restore writes back the latest boot sector backup of the device named
// by spec.
func (m *Manager) Restore(spec string) error {
	if m.mode == devspec.ConfigOnly {
		return errors.New("cannot modify boot sectors in config-only mode")
	}
	dev, err := m.lookup(spec)
	if err != nil {
		return err
	}
	_, isPartition := dev.(topology.Partition)
	return m.backup.Restore(dev.Name(), !isPartition)
}
