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

package bootsector

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/snapcore/stage1/devspec"
	"github.com/snapcore/stage1/logger"
	"github.com/snapcore/stage1/osutil"
	"github.com/snapcore/stage1/topology"
)

// ActivationRecord names the partition to mark active for a boot loader
// device. The zero value means there is nothing to activate.
type ActivationRecord struct {
	// Disk is the kernel name of the disk holding the partition table.
	Disk string `yaml:"disk"`
	// Number is the number of the partition to mark active.
	Number int `yaml:"number"`
	// Table is the partition table kind of Disk.
	Table topology.TableKind `yaml:"table"`
}

func (rec ActivationRecord) IsEmpty() bool {
	return rec == ActivationRecord{}
}

// Flag returns the name of the partition flag marking the partition
// active.
func (rec ActivationRecord) Flag() string {
	if rec.Table == topology.TableGPT {
		return "legacy_boot"
	}
	return "boot"
}

func (rec ActivationRecord) String() string {
	return fmt.Sprintf("%s partition %d", rec.Disk, rec.Number)
}

// Activatable returns whether partition number num of a disk may carry the
// active flag. PowerPC firmware does not boot from GPT disks this way and
// DOS tables have only four primary slots.
func Activatable(ppc, gpt bool, num int) bool {
	if ppc && gpt {
		return false
	}
	return gpt || num <= 4
}

func (m *Manager) activatable(rec ActivationRecord) bool {
	return Activatable(m.ppc, rec.Table == topology.TableGPT, rec.Number)
}

// lookup finds the topology device for a boot loader device spec.
func (m *Manager) lookup(spec string) (topology.Device, error) {
	kernel, err := m.resolver.ResolveToKernelDevice(spec)
	if err != nil {
		return nil, err
	}
	if dev := m.oracle.FindByName(kernel); dev != nil {
		return dev, nil
	}
	// config-only mode hands back the spec as is
	if dev := m.oracle.FindByAnyName(devspec.Parse(kernel).Path()); dev != nil {
		return dev, nil
	}
	return nil, &InvalidLoaderDeviceError{Device: spec}
}

// activationRecord computes the partition to mark active for the boot
// loader device spec.
func (m *Manager) activationRecord(spec string) (ActivationRecord, error) {
	recs, err := m.memberRecords(spec)
	if err != nil {
		return ActivationRecord{}, err
	}
	// without firmware disk ordering hints any member will do
	return recs[0], nil
}

// memberRecords computes an activation record for every real device
// backing the boot loader device spec, in the order of RealDevices.
func (m *Manager) memberRecords(spec string) ([]ActivationRecord, error) {
	dev, err := m.lookup(spec)
	if err != nil {
		return nil, err
	}
	members := dev.RealDevices()
	if len(members) == 0 {
		return nil, &InvalidLoaderDeviceError{Device: spec}
	}
	if members[0].Name() != dev.Name() {
		logger.Debugf("using %s for boot loader device %s", members[0].Name(), dev.Name())
	}
	recs := make([]ActivationRecord, 0, len(members))
	for _, member := range members {
		rec, err := m.recordFor(spec, member)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// recordFor computes the activation record of a single real device
// backing the boot loader device spec.
func (m *Manager) recordFor(spec string, member topology.Device) (ActivationRecord, error) {
	var disk topology.Device
	var part topology.Partition
	if p, ok := member.(topology.Partition); ok {
		disk = p.Disk()
		if !topology.IsSwap(p) && !topology.IsBIOSBoot(p) {
			part = p
		}
	} else if topology.IsPartitionable(member) {
		disk = member
	}
	if disk == nil {
		return ActivationRecord{}, &InvalidLoaderDeviceError{Device: spec}
	}
	if part == nil {
		part = firstActivatable(m.oracle, disk)
	}
	if part == nil {
		logger.Noticef("cannot find a partition to activate on %s", disk.Name())
		return ActivationRecord{}, nil
	}

	if part.Kind() == topology.Logical {
		ext := extendedPartition(m.oracle, disk)
		if ext == nil {
			logger.Noticef("cannot find the extended partition holding %s", part.Name())
			return ActivationRecord{}, nil
		}
		logger.Debugf("using extended partition %s instead of logical partition %s", ext.Name(), part.Name())
		part = ext
	}

	rec := ActivationRecord{
		Disk:   disk.Name(),
		Number: part.Number(),
		Table:  disk.PartitionTable(),
	}
	if rec.Disk == "" || rec.Number <= 0 {
		return ActivationRecord{}, &InternalDataError{Device: spec, Record: rec}
	}
	return rec, nil
}

func firstActivatable(o topology.Oracle, disk topology.Device) topology.Partition {
	for _, p := range topology.PartitionsOn(o, disk) {
		if topology.IsSwap(p) || topology.IsBIOSBoot(p) {
			continue
		}
		return p
	}
	return nil
}

func extendedPartition(o topology.Oracle, disk topology.Device) topology.Partition {
	for _, p := range topology.PartitionsOn(o, disk) {
		if p.Kind() == topology.Extended {
			return p
		}
	}
	return nil
}

// partitionsWithFlag returns the numbers of the partitions carrying flag in
// the machine readable output of "parted -sm <disk> print":
//
//	BYT;
//	/dev/sda:21.5GB:scsi:512:512:msdos:ATA QEMU HARDDISK:;
//	1:1049kB:538MB:537MB:ext4::boot, lba;
//	2:538MB:21.5GB:21.0GB:ext4::;
func partitionsWithFlag(listing []byte, flag string) []int {
	var nums []int
	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		fields := strings.Split(strings.TrimSuffix(strings.TrimSpace(scanner.Text()), ";"), ":")
		if len(fields) < 7 {
			continue
		}
		num, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		flags := strings.FieldsFunc(fields[6], func(r rune) bool {
			return r == ',' || r == ' '
		})
		for _, f := range flags {
			if f == flag {
				nums = append(nums, num)
				break
			}
		}
	}
	return nums
}

// activate marks the partition of rec active, clearing the flag from any
// other partition of the disk first.
func (m *Manager) activate(rec ActivationRecord) error {
	flag := rec.Flag()
	listing, err := osutil.RunCmd(m.conf.Parted, "-sm", rec.Disk, "print")
	if err != nil {
		return fmt.Errorf("cannot list partitions of %s: %v", rec.Disk, err)
	}
	for _, num := range partitionsWithFlag(listing, flag) {
		if num == rec.Number {
			continue
		}
		logger.Debugf("clearing %s flag of %s partition %d", flag, rec.Disk, num)
		if _, err := osutil.RunCmd(m.conf.Parted, "-s", rec.Disk, "set", strconv.Itoa(num), flag, "off"); err != nil {
			return fmt.Errorf("cannot clear %s flag of %s partition %d: %v", flag, rec.Disk, num, err)
		}
	}
	if _, err := osutil.RunCmd(m.conf.Parted, "-s", rec.Disk, "set", strconv.Itoa(rec.Number), flag, "on"); err != nil {
		return fmt.Errorf("cannot set %s flag on %s: %v", flag, rec, err)
	}
	logger.Noticef("set %s flag on %s", flag, rec)
	return nil
}
