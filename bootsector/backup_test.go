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
	"sort"
	"time"

	. "gopkg.in/check.v1"

	"github.com/snapcore/stage1/bootsector"
	"github.com/snapcore/stage1/dirs"
	"github.com/snapcore/stage1/testutil"
)

type backupSuite struct {
	baseSuite

	sector string
	backup *bootsector.BootRecordBackup
	dd     *testutil.MockCmd
	now    time.Time
}

var _ = Suite(&backupSuite{})

func (s *backupSuite) SetUpTest(c *C) {
	s.baseSuite.SetUpTest(c)

	s.sector = filepath.Join(c.MkDir(), "sector")
	s.setSector(c, "v1")
	s.dd = s.mockDD(c, s.sector)

	s.now = time.Unix(1700000000, 0)
	s.AddCleanup(bootsector.MockTimeNow(func() time.Time { return s.now }))

	s.backup = &bootsector.BootRecordBackup{
		Dir:  dirs.BootSectorBackupDir,
		Keep: 2,
		DD:   "dd",
	}
}

func (s *backupSuite) setSector(c *C, content string) {
	c.Assert(os.WriteFile(s.sector, []byte(content), 0644), IsNil)
}

func (s *backupSuite) backupFiles(c *C) []string {
	entries, err := os.ReadDir(s.backup.Dir)
	c.Assert(err, IsNil)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func (s *backupSuite) TestPath(c *C) {
	c.Check(s.backup.Path("/dev/sda"), Equals, filepath.Join(dirs.BootSectorBackupDir, "_dev_sda"))
	c.Check(s.backup.Path("/dev/mapper/mpatha"), Equals, filepath.Join(dirs.BootSectorBackupDir, "_dev_mapper_mpatha"))
}

func (s *backupSuite) TestWrite(c *C) {
	c.Assert(s.backup.Write("/dev/sda", false), IsNil)
	c.Check(s.backup.Path("/dev/sda"), testutil.FileEquals, "v1")
	c.Check(s.backupFiles(c), DeepEquals, []string{"_dev_sda"})
	c.Check(dirs.BootBackupMBR, testutil.FileAbsent)
	c.Check(s.dd.Calls(), DeepEquals, [][]string{
		{"dd", "if=/dev/sda", "of=" + s.backup.Path("/dev/sda") + ".new", "bs=512", "count=1"},
	})
	c.Check(s.logbuf.String(), testutil.Contains, "backed up boot sector to "+s.backup.Path("/dev/sda"))
}

func (s *backupSuite) TestWriteUnchanged(c *C) {
	c.Assert(s.backup.Write("/dev/sda", false), IsNil)
	s.now = s.now.Add(time.Hour)
	c.Assert(s.backup.Write("/dev/sda", false), IsNil)

	c.Check(s.backupFiles(c), DeepEquals, []string{"_dev_sda"})
	c.Check(s.backup.Path("/dev/sda"), testutil.FileEquals, "v1")
}

func (s *backupSuite) TestWriteRotates(c *C) {
	current := s.backup.Path("/dev/sda")
	for i, content := range []string{"v1", "v2", "v3", "v4"} {
		s.setSector(c, content)
		s.now = time.Unix(int64(1000*(i+1)), 0)
		c.Assert(s.backup.Write("/dev/sda", false), IsNil)
	}

	// v1 was rotated at 2000 and dropped as only two copies are kept
	c.Check(s.backupFiles(c), DeepEquals, []string{"_dev_sda", "_dev_sda-3000", "_dev_sda-4000"})
	c.Check(current, testutil.FileEquals, "v4")
	c.Check(current+"-3000", testutil.FileEquals, "v2")
	c.Check(current+"-4000", testutil.FileEquals, "v3")
}

func (s *backupSuite) TestWriteKeepsOtherDevices(c *C) {
	c.Assert(s.backup.Write("/dev/sda", false), IsNil)
	c.Assert(s.backup.Write("/dev/sda1", false), IsNil)
	for i, content := range []string{"v2", "v3", "v4"} {
		s.setSector(c, content)
		s.now = time.Unix(int64(1000*(i+1)), 0)
		c.Assert(s.backup.Write("/dev/sda", false), IsNil)
	}
	c.Check(s.backupFiles(c), DeepEquals, []string{"_dev_sda", "_dev_sda-2000", "_dev_sda-3000", "_dev_sda1"})
	c.Check(s.backup.Path("/dev/sda1"), testutil.FileEquals, "v1")
}

func (s *backupSuite) TestWriteMBRDisk(c *C) {
	c.Assert(s.backup.Write("/dev/sda", true), IsNil)
	c.Check(dirs.BootBackupMBR, testutil.FileEquals, "v1")

	s.setSector(c, "v2")
	c.Assert(s.backup.Write("/dev/sda", true), IsNil)
	c.Check(dirs.BootBackupMBR, testutil.FileEquals, "v2")
}

func (s *backupSuite) TestWriteFails(c *C) {
	dd := testutil.MockCommand(c, "dd", `echo "dd: failed to open '/dev/sdx': No such file or directory" >&2; exit 1`)
	defer dd.Restore()

	err := s.backup.Write("/dev/sdx", false)
	c.Check(err, ErrorMatches, `cannot back up boot sector of /dev/sdx: cannot run "dd if=/dev/sdx .*": dd: failed to open '/dev/sdx': No such file or directory`)
	c.Check(s.backupFiles(c), HasLen, 0)
}

func (s *backupSuite) TestRestore(c *C) {
	c.Assert(s.backup.Write("/dev/sda", false), IsNil)
	c.Assert(s.backup.Write("/dev/sda1", false), IsNil)
	s.dd.ForgetCalls()

	c.Assert(s.backup.Restore("/dev/sda", true), IsNil)
	c.Assert(s.backup.Restore("/dev/sda1", false), IsNil)
	c.Check(s.dd.Calls(), DeepEquals, [][]string{
		{"dd", "if=" + s.backup.Path("/dev/sda"), "of=/dev/sda", "bs=440", "count=1"},
		{"dd", "if=" + s.backup.Path("/dev/sda1"), "of=/dev/sda1", "bs=512", "count=1"},
	})
	c.Check(s.logbuf.String(), testutil.Contains, "restored boot sector of /dev/sda from "+s.backup.Path("/dev/sda"))

	c.Check(s.backup.Restore("/dev/sdb", true), ErrorMatches, "cannot find boot sector backup of /dev/sdb")
}
