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

package topology

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DeviceInfo describes a single device when building a Snapshot. Type uses
// the lsblk vocabulary: disk, part, mpath, raid1 (or any raid level), lvm,
// crypt, loop.
type DeviceInfo struct {
	Name           string          `yaml:"name"`
	Type           string          `yaml:"type"`
	Parents        []string        `yaml:"parents,omitempty"`
	Aliases        []string        `yaml:"aliases,omitempty"`
	PartitionTable TableKind       `yaml:"partition-table,omitempty"`
	Number         int             `yaml:"number,omitempty"`
	PartitionKind  PartitionKind   `yaml:"partition-kind,omitempty"`
	PartitionID    string          `yaml:"partition-id,omitempty"`
	Filesystem     *FilesystemInfo `yaml:"filesystem,omitempty"`
}

// FilesystemInfo describes the filesystem on a device. MountBy is one of
// uuid, label, id, path or device.
type FilesystemInfo struct {
	Type       string `yaml:"type"`
	UUID       string `yaml:"uuid,omitempty"`
	Label      string `yaml:"label,omitempty"`
	MountPoint string `yaml:"mount-point,omitempty"`
	MountBy    string `yaml:"mount-by,omitempty"`
}

// Snapshot is an immutable Oracle built from a list of device
// descriptions.
type Snapshot struct {
	infos   []DeviceInfo
	devices []node
	byName  map[string]node
	byAlias map[string]node
}

// node is implemented by both plain devices and partitions.
type node interface {
	Device
	base() *device
}

var _ Oracle = (*Snapshot)(nil)

type device struct {
	snap *Snapshot
	info *DeviceInfo

	tag      Tag
	children []string
	fs       *filesystem
}

type partition struct {
	*device
	kind PartitionKind
}

type filesystem struct {
	dev  *device
	info *FilesystemInfo
}

func tagForType(typ string) Tag {
	switch {
	case typ == "disk", typ == "loop":
		return TagDisk
	case typ == "part":
		return TagPartition
	case typ == "mpath":
		return TagMultipath
	case typ == "md", strings.HasPrefix(typ, "raid"):
		return TagRAID
	case typ == "lvm":
		return TagLVM
	case typ == "crypt":
		return TagCrypt
	}
	return Tag(typ)
}

// New builds a Snapshot out of the given device descriptions. Devices may be
// listed in any order but every parent must be described.
func New(infos []DeviceInfo) (*Snapshot, error) {
	s := &Snapshot{
		infos:   make([]DeviceInfo, len(infos)),
		byName:  make(map[string]node, len(infos)),
		byAlias: make(map[string]node),
	}
	copy(s.infos, infos)

	raw := make(map[string]*device, len(infos))
	for i := range s.infos {
		info := &s.infos[i]
		if info.Name == "" {
			return nil, fmt.Errorf("cannot use device #%d: missing name", i)
		}
		if _, ok := raw[info.Name]; ok {
			return nil, fmt.Errorf("cannot use device %q: duplicate name", info.Name)
		}
		d := &device{snap: s, info: info, tag: tagForType(info.Type)}
		if info.Filesystem != nil {
			d.fs = &filesystem{dev: d, info: info.Filesystem}
		}
		raw[info.Name] = d
	}

	for i := range s.infos {
		info := &s.infos[i]
		for _, p := range info.Parents {
			parent, ok := raw[p]
			if !ok {
				return nil, fmt.Errorf("cannot use device %q: unknown parent %q", info.Name, p)
			}
			parent.children = append(parent.children, info.Name)
		}
	}

	for i := range s.infos {
		info := &s.infos[i]
		d := raw[info.Name]
		var dev node = d
		if d.tag == TagPartition {
			if len(info.Parents) == 0 {
				return nil, fmt.Errorf("cannot use partition %q: missing disk", info.Name)
			}
			if info.Number <= 0 {
				return nil, fmt.Errorf("cannot use partition %q: invalid number %v", info.Name, info.Number)
			}
			dev = &partition{device: d, kind: partitionKind(info, raw[info.Parents[0]])}
		}
		s.devices = append(s.devices, dev)
		s.byName[info.Name] = dev
	}

	for _, dev := range s.devices {
		for _, a := range dev.Aliases() {
			if _, ok := s.byAlias[a]; !ok {
				s.byAlias[a] = dev
			}
		}
	}
	return s, nil
}

func partitionKind(info *DeviceInfo, disk *device) PartitionKind {
	if info.PartitionKind != "" {
		return info.PartitionKind
	}
	if disk.PartitionTable() != TableDOS {
		return Primary
	}
	switch {
	case isExtendedID(info.PartitionID):
		return Extended
	case info.Number > 4:
		return Logical
	}
	return Primary
}

// Infos returns the descriptions the snapshot was built from.
func (s *Snapshot) Infos() []DeviceInfo {
	infos := make([]DeviceInfo, len(s.infos))
	copy(infos, s.infos)
	return infos
}

func (s *Snapshot) FindByName(name string) Device {
	if d, ok := s.byName[name]; ok {
		return d
	}
	return nil
}

func (s *Snapshot) FindByAnyName(name string) Device {
	if d, ok := s.byName[name]; ok {
		return d
	}
	if d, ok := s.byAlias[name]; ok {
		return d
	}
	if uuid := strings.TrimPrefix(name, "/dev/disk/by-uuid/"); uuid != name {
		return s.findFilesystem(func(fs *FilesystemInfo) bool {
			return strings.EqualFold(fs.UUID, uuid)
		})
	}
	if label := strings.TrimPrefix(name, "/dev/disk/by-label/"); label != name {
		decoded, err := BlkIDDecodeLabel(label)
		if err != nil {
			decoded = label
		}
		return s.findFilesystem(func(fs *FilesystemInfo) bool {
			return fs.Label != "" && (fs.Label == decoded || fs.Label == label)
		})
	}
	// aliases unknown to the snapshot may still be there as udev symlinks
	if filepath.IsAbs(name) {
		if target, err := readDevLink(name); err == nil {
			if d, ok := s.byName[target]; ok {
				return d
			}
		}
	}
	return nil
}

func (s *Snapshot) findFilesystem(match func(fs *FilesystemInfo) bool) Device {
	for _, d := range s.devices {
		if fs := d.base().info.Filesystem; fs != nil && match(fs) {
			return d
		}
	}
	return nil
}

func (s *Snapshot) Disks() []Device {
	var disks []Device
	for _, d := range s.devices {
		if d.Is(TagDisk) || d.Is(TagMultipath) {
			disks = append(disks, d)
		}
	}
	return disks
}

func (s *Snapshot) Partitions() []Partition {
	var parts []Partition
	for _, d := range s.devices {
		if p, ok := d.(Partition); ok {
			parts = append(parts, p)
		}
	}
	return parts
}

func (s *Snapshot) lookup(names []string) []Device {
	devs := make([]Device, 0, len(names))
	for _, n := range names {
		devs = append(devs, s.byName[n])
	}
	return devs
}

// walk visits the devices reachable through next breadth first, nearest
// first and each device once.
func (s *Snapshot) walk(start string, next func(d *device) []string) []Device {
	var out []Device
	seen := map[string]bool{start: true}
	queue := next(s.byName[start].base())
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		dev := s.byName[name]
		out = append(out, dev)
		queue = append(queue, next(dev.base())...)
	}
	return out
}

func (d *device) base() *device {
	return d
}

func (d *device) self() Device {
	return d.snap.byName[d.info.Name]
}

func (d *device) Name() string {
	return d.info.Name
}

func (d *device) Aliases() []string {
	return d.info.Aliases
}

func (d *device) Is(tag Tag) bool {
	return d.tag == tag
}

func (d *device) Ancestors() []Device {
	return d.snap.walk(d.info.Name, func(d *device) []string { return d.info.Parents })
}

func (d *device) Descendants() []Device {
	return d.snap.walk(d.info.Name, func(d *device) []string { return d.children })
}

func (d *device) PartitionTable() TableKind {
	return d.info.PartitionTable
}

func (d *device) Filesystem() Filesystem {
	if d.fs == nil {
		return nil
	}
	return d.fs
}

func (d *device) aliasWithPrefix(prefixes ...string) string {
	for _, prefix := range prefixes {
		for _, a := range d.info.Aliases {
			if strings.HasPrefix(a, prefix) {
				return a
			}
		}
	}
	return ""
}

func (d *device) PreferredAlias() string {
	if a := d.aliasWithPrefix("/dev/disk/by-id/", "/dev/mapper/", "/dev/disk/by-path/"); a != "" {
		return a
	}
	return d.info.Name
}

func (d *device) isComposite() bool {
	return d.tag == TagRAID || d.tag == TagLVM || d.tag == TagCrypt
}

func (d *device) RealDevices() []Device {
	if !d.isComposite() || len(d.info.Parents) == 0 {
		return []Device{d.self()}
	}
	var members []Device
	seen := make(map[string]bool)
	for _, parent := range d.snap.lookup(d.info.Parents) {
		for _, r := range parent.RealDevices() {
			if !seen[r.Name()] {
				seen[r.Name()] = true
				members = append(members, r)
			}
		}
	}
	return members
}

func (p *partition) Number() int {
	return p.info.Number
}

func (p *partition) Kind() PartitionKind {
	return p.kind
}

func (p *partition) ID() string {
	return p.info.PartitionID
}

func (p *partition) Disk() Device {
	return p.snap.byName[p.info.Parents[0]]
}

// RealDevices of a partition on a composite device, like a partitioned
// RAID, are the real devices of that composite device.
func (p *partition) RealDevices() []Device {
	if disk := p.snap.byName[p.info.Parents[0]]; disk.base().isComposite() {
		return disk.RealDevices()
	}
	return []Device{p}
}

func (fs *filesystem) Type() string {
	return fs.info.Type
}

func (fs *filesystem) UUID() string {
	return fs.info.UUID
}

func (fs *filesystem) Label() string {
	return fs.info.Label
}

func (fs *filesystem) MountPoint() string {
	return fs.info.MountPoint
}

func (fs *filesystem) byUUID() string {
	if fs.info.UUID == "" {
		return ""
	}
	return "/dev/disk/by-uuid/" + fs.info.UUID
}

func (fs *filesystem) byLabel() string {
	if fs.info.Label == "" {
		return ""
	}
	return "/dev/disk/by-label/" + BlkIDEncodeLabel(fs.info.Label)
}

func (fs *filesystem) MountByConfigured() string {
	switch fs.info.MountBy {
	case "uuid":
		return fs.byUUID()
	case "label":
		return fs.byLabel()
	case "id":
		return fs.dev.aliasWithPrefix("/dev/disk/by-id/")
	case "path":
		return fs.dev.aliasWithPrefix("/dev/disk/by-path/")
	case "device":
		return fs.dev.info.Name
	}
	return ""
}

func (fs *filesystem) PreferredAlias() string {
	if a := fs.byUUID(); a != "" {
		return a
	}
	if a := fs.byLabel(); a != "" {
		return a
	}
	return fs.dev.self().PreferredAlias()
}
