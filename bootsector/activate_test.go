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

package bootsector_test

import (
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/snapcore/stage1/bootsector"
	"github.com/snapcore/stage1/resolver"
	"github.com/snapcore/stage1/testutil"
	"github.com/snapcore/stage1/topology"
)

type activateSuite struct {
	baseSuite
}

var _ = Suite(&activateSuite{})

func (s *activateSuite) TestActivatable(c *C) {
	for _, tc := range []struct {
		ppc, gpt    bool
		num         int
		activatable bool
	}{
		{ppc: true, gpt: true, num: 1, activatable: false},
		{ppc: true, gpt: true, num: 99, activatable: false},
		{ppc: true, gpt: false, num: 1, activatable: true},
		{ppc: false, gpt: false, num: 5, activatable: false},
		{ppc: false, gpt: false, num: 4, activatable: true},
		{ppc: false, gpt: true, num: 99, activatable: true},
	} {
		c.Check(bootsector.Activatable(tc.ppc, tc.gpt, tc.num), Equals, tc.activatable, Commentf("%+v", tc))
	}
}

func (s *activateSuite) TestActivationRecord(c *C) {
	m := s.manager(c, bootsector.Options{})
	for _, tc := range []struct {
		spec string
		rec  bootsector.ActivationRecord
	}{
		// partitions are used as they are
		{"/dev/sda1", bootsector.ActivationRecord{Disk: "/dev/sda", Number: 1, Table: topology.TableDOS}},
		{`UUID="b007-0001"`, bootsector.ActivationRecord{Disk: "/dev/sda", Number: 1, Table: topology.TableDOS}},
		// swap is never activated, the first usable partition is
		{"/dev/sda2", bootsector.ActivationRecord{Disk: "/dev/sda", Number: 1, Table: topology.TableDOS}},
		// disks get their first partition that is not swap
		{"/dev/sdf", bootsector.ActivationRecord{Disk: "/dev/sdf", Number: 2, Table: topology.TableDOS}},
		// or BIOS boot
		{"/dev/sdc", bootsector.ActivationRecord{Disk: "/dev/sdc", Number: 2, Table: topology.TableGPT}},
		// logical partitions are replaced by the extended one
		{"/dev/sdb5", bootsector.ActivationRecord{Disk: "/dev/sdb", Number: 2, Table: topology.TableDOS}},
		{`LABEL="data"`, bootsector.ActivationRecord{Disk: "/dev/sdb", Number: 2, Table: topology.TableDOS}},
		// RAID uses its first member
		{"/dev/md0", bootsector.ActivationRecord{Disk: "/dev/sda", Number: 3, Table: topology.TableDOS}},
	} {
		rec, err := m.ActivationRecord(tc.spec)
		c.Assert(err, IsNil, Commentf("%s", tc.spec))
		c.Check(rec, Equals, tc.rec, Commentf("%s", tc.spec))
	}
}

func (s *activateSuite) TestActivationRecordNothingToActivate(c *C) {
	m := s.manager(c, bootsector.Options{})
	rec, err := m.ActivationRecord("/dev/sde")
	c.Assert(err, IsNil)
	c.Check(rec.IsEmpty(), Equals, true)
	c.Check(s.logbuf.String(), testutil.Contains, "cannot find a partition to activate on /dev/sde")

	// swap partition on a disk with nothing else
	rec, err = m.ActivationRecord("/dev/sde1")
	c.Assert(err, IsNil)
	c.Check(rec.IsEmpty(), Equals, true)
}

func (s *activateSuite) TestActivationRecordLogicalWithoutExtended(c *C) {
	snap, err := topology.New([]topology.DeviceInfo{
		{Name: "/dev/vda", Type: "disk", PartitionTable: "dos"},
		{Name: "/dev/vda5", Type: "part", Parents: []string{"/dev/vda"}, Number: 5},
	})
	c.Assert(err, IsNil)
	m, err := bootsector.New(snap, bootsector.Options{Arch: "amd64", MBRDisk: "/dev/vda"})
	c.Assert(err, IsNil)

	rec, err := m.ActivationRecord("/dev/vda5")
	c.Assert(err, IsNil)
	c.Check(rec.IsEmpty(), Equals, true)
	c.Check(s.logbuf.String(), testutil.Contains, "cannot find the extended partition holding /dev/vda5")
}

func (s *activateSuite) TestActivationRecordErrors(c *C) {
	m := s.manager(c, bootsector.Options{})

	_, err := m.ActivationRecord("/dev/dm-5")
	c.Check(err, testutil.ErrorIs, bootsector.ErrInvalidLoaderDevice)
	c.Check(err, ErrorMatches, `cannot determine the disk of boot loader device "/dev/dm-5"`)

	_, err = m.ActivationRecord("/dev/sdz")
	c.Check(err, testutil.ErrorIs, resolver.ErrDeviceNotFound)
}

func (s *activateSuite) TestActivationRecordFlag(c *C) {
	c.Check(bootsector.ActivationRecord{Table: topology.TableGPT}.Flag(), Equals, "legacy_boot")
	c.Check(bootsector.ActivationRecord{Table: topology.TableDOS}.Flag(), Equals, "boot")
	c.Check(bootsector.ActivationRecord{}.IsEmpty(), Equals, true)
	c.Check(bootsector.ActivationRecord{Disk: "/dev/sda", Number: 1}.String(), Equals, "/dev/sda partition 1")
}

func (s *activateSuite) TestInternalDataError(c *C) {
	err := &bootsector.InternalDataError{Device: "/dev/sda", Record: bootsector.ActivationRecord{Number: 1}}
	c.Check(err, ErrorMatches, `internal error: invalid activation record for "/dev/sda": disk "", partition 1`)
}

func (s *activateSuite) TestPartitionsWithFlag(c *C) {
	listing := []byte(`BYT;
/dev/sda:21.5GB:scsi:512:512:msdos:ATA QEMU HARDDISK:;
1:1049kB:538MB:537MB:ext4::boot, lba;
2:538MB:1000MB:462MB:linux-swap(v1)::;
3:1000MB:2000MB:1000MB:::legacy_boot;
5:2000MB:21.5GB:19.5GB:xfs::lba, boot;
`)
	c.Check(bootsector.PartitionsWithFlag(listing, "boot"), DeepEquals, []int{1, 5})
	c.Check(bootsector.PartitionsWithFlag(listing, "legacy_boot"), DeepEquals, []int{3})
	c.Check(bootsector.PartitionsWithFlag(listing, "esp"), HasLen, 0)
	c.Check(bootsector.PartitionsWithFlag(nil, "boot"), HasLen, 0)
}

func (s *activateSuite) TestActivateErrors(c *C) {
	parted := testutil.MockCommand(c, "parted", `
if [ "$1" = "-sm" ]; then
	echo "1:1MB:2MB:1MB:ext4::boot;"
	exit 0
fi
echo "Error: Partition(s) on /dev/sdf are being used." >&2
exit 1
`)
	defer parted.Restore()
	sector := filepath.Join(c.MkDir(), "sector")
	c.Assert(os.WriteFile(sector, []byte("boot sector"), 0644), IsNil)
	s.mockDD(c, sector)

	m := s.manager(c, bootsector.Options{MBRDisk: "/dev/sdf"})
	err := m.Run(&bootsector.Stage1{Devices: []string{"/dev/sdf2"}, Activate: true})
	c.Check(err, ErrorMatches, `cannot clear boot flag of /dev/sdf partition 1: cannot run "parted -s /dev/sdf set 1 boot off": Error: Partition\(s\) on /dev/sdf are being used.`)
}
