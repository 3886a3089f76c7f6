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

// Package topology provides a read-only view of the storage devices of a
// system: disks, partitions and the composite devices (multipath, RAID,
// LVM) built on top of them.
package topology

import (
	"sort"
	"strconv"
	"strings"
)

// Tag classifies a device.
type Tag string

const (
	TagDisk      Tag = "disk"
	TagPartition Tag = "partition"
	TagMultipath Tag = "multipath"
	TagRAID      Tag = "raid"
	TagLVM       Tag = "lvm"
	TagCrypt     Tag = "crypt"
)

// TableKind is the kind of partition table found on a device.
type TableKind string

const (
	TableNone TableKind = ""
	TableDOS  TableKind = "dos"
	TableGPT  TableKind = "gpt"
)

// PartitionKind is the type of a partition within its table. GPT only
// knows primary partitions.
type PartitionKind string

const (
	Primary  PartitionKind = "primary"
	Logical  PartitionKind = "logical"
	Extended PartitionKind = "extended"
)

const (
	gptSwapID     = "0657fd6d-a4ab-43c4-84e5-0933c84b4f4f"
	gptBIOSBootID = "21686148-6449-6e6f-744e-656564454649"

	dosSwapID = 0x82
)

// Device is a block device known to the oracle.
type Device interface {
	// Name is the kernel device name, e.g. /dev/sda or /dev/dm-0.
	Name() string
	// Aliases are the udev symlinks pointing to the device.
	Aliases() []string
	// Is returns whether the device carries the given tag.
	Is(tag Tag) bool
	// Ancestors are the devices this device is built from, nearest first.
	Ancestors() []Device
	// Descendants are the devices built on top of this one, nearest first.
	Descendants() []Device
	// PartitionTable is the kind of partition table on the device.
	PartitionTable() TableKind
	// Filesystem returns the filesystem directly on the device, or nil.
	Filesystem() Filesystem
	// PreferredAlias is the most stable name to refer to the device by.
	PreferredAlias() string
	// RealDevices expands composite devices (RAID, LVM, crypt) into the
	// devices they are built from. Other devices expand to themselves.
	RealDevices() []Device
}

// Partition is a Device that is a partition of a disk.
type Partition interface {
	Device
	// Number is the partition number within the table.
	Number() int
	// Kind is the primary/logical/extended type of the partition.
	Kind() PartitionKind
	// ID is the partition type id, a hex byte for DOS tables (e.g. 0x83)
	// and a GUID for GPT.
	ID() string
	// Disk is the device holding the partition table.
	Disk() Device
}

// Filesystem is a filesystem found on a device.
type Filesystem interface {
	Type() string
	UUID() string
	Label() string
	MountPoint() string
	// MountByConfigured is the name the filesystem was configured to be
	// mounted by, or "" if there is no such configuration.
	MountByConfigured() string
	// PreferredAlias is the most stable name to mount the filesystem by.
	PreferredAlias() string
}

// Oracle answers questions about the storage topology.
type Oracle interface {
	// FindByName finds a device by its kernel name.
	FindByName(name string) Device
	// FindByAnyName finds a device by its kernel name, any of its udev
	// aliases or the by-uuid/by-label path of its filesystem.
	FindByAnyName(name string) Device
	// Disks lists the partitionable devices.
	Disks() []Device
	// Partitions lists all partitions.
	Partitions() []Partition
}

// PartitionsOn returns the partitions of the given disk, ordered by number.
func PartitionsOn(o Oracle, disk Device) []Partition {
	var parts []Partition
	for _, p := range o.Partitions() {
		if d := p.Disk(); d != nil && d.Name() == disk.Name() {
			parts = append(parts, p)
		}
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Number() < parts[j].Number()
	})
	return parts
}

// IsSwap returns whether the partition is a swap partition, either by its
// partition id or by the filesystem on it.
func IsSwap(p Partition) bool {
	if fs := p.Filesystem(); fs != nil && fs.Type() == "swap" {
		return true
	}
	if n, ok := dosID(p.ID()); ok {
		return n == dosSwapID
	}
	return strings.EqualFold(p.ID(), gptSwapID)
}

// IsBIOSBoot returns whether the partition is a BIOS boot partition
// reserved for the bootloader core image.
func IsBIOSBoot(p Partition) bool {
	return strings.EqualFold(p.ID(), gptBIOSBootID)
}

// IsPartitionable returns whether the device can hold partitions.
func IsPartitionable(d Device) bool {
	return d.Is(TagDisk) || d.Is(TagMultipath) || d.PartitionTable() != TableNone
}

func dosID(id string) (uint64, bool) {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, "0x") {
		return 0, false
	}
	n, err := strconv.ParseUint(id[2:], 16, 8)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isExtendedID(id string) bool {
	n, ok := dosID(id)
	if !ok {
		return false
	}
	switch n {
	case 0x05, 0x0f, 0x85:
		return true
	}
	return false
}
