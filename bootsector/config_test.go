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
	"github.com/snapcore/stage1/dirs"
	"github.com/snapcore/stage1/testutil"
)

type configSuite struct {
	testutil.BaseTest
}

var _ = Suite(&configSuite{})

func (s *configSuite) SetUpTest(c *C) {
	s.BaseTest.SetUpTest(c)
	dirs.SetRootDir(c.MkDir())
	s.AddCleanup(func() { dirs.SetRootDir("") })
}

func (s *configSuite) TestDefaultConfig(c *C) {
	conf := bootsector.DefaultConfig()
	c.Check(conf, DeepEquals, &bootsector.Config{
		BackupDir:   filepath.Join(dirs.GlobalRootDir, "/var/lib/stage1/backup_boot_sectors"),
		Keep:        10,
		GPTBootCode: filepath.Join(dirs.GlobalRootDir, "/usr/share/syslinux/gptmbr.bin"),
		DOSBootCode: filepath.Join(dirs.GlobalRootDir, "/usr/share/syslinux/mbr.bin"),
		DD:          "dd",
		Parted:      "parted",
	})
}

func (s *configSuite) TestLoadConfigMissingFile(c *C) {
	conf, err := bootsector.LoadConfig(dirs.ConfigFile)
	c.Assert(err, IsNil)
	c.Check(conf, DeepEquals, bootsector.DefaultConfig())
}

func (s *configSuite) writeConfig(c *C, content string) {
	c.Assert(os.MkdirAll(filepath.Dir(dirs.ConfigFile), 0755), IsNil)
	c.Assert(os.WriteFile(dirs.ConfigFile, []byte(content), 0644), IsNil)
}

func (s *configSuite) TestLoadConfig(c *C) {
	s.writeConfig(c, `[backup]
dir = /srv/backups
keep = 3

[bootcode]
dos = /usr/lib/syslinux/mbr/mbr.bin

[tools]
parted = /usr/local/sbin/parted
`)
	conf, err := bootsector.LoadConfig(dirs.ConfigFile)
	c.Assert(err, IsNil)
	c.Check(conf.BackupDir, Equals, "/srv/backups")
	c.Check(conf.Keep, Equals, 3)
	c.Check(conf.DOSBootCode, Equals, "/usr/lib/syslinux/mbr/mbr.bin")
	c.Check(conf.GPTBootCode, Equals, filepath.Join(dirs.BootCodeDir, "gptmbr.bin"))
	c.Check(conf.Parted, Equals, "/usr/local/sbin/parted")
	c.Check(conf.DD, Equals, "dd")
}

func (s *configSuite) TestLoadConfigInvalidKeep(c *C) {
	for _, keep := range []string{"many", "-1"} {
		s.writeConfig(c, "[backup]\nkeep = "+keep+"\n")
		_, err := bootsector.LoadConfig(dirs.ConfigFile)
		c.Check(err, ErrorMatches, `cannot use configuration: invalid backup keep value ".*"`)
	}
}

func (s *configSuite) TestLoadConfigUnparsable(c *C) {
	s.writeConfig(c, "keep = 3\n")
	_, err := bootsector.LoadConfig(dirs.ConfigFile)
	c.Check(err, ErrorMatches, "cannot read configuration: .*")
}
