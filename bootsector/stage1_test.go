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
	"strings"

	. "gopkg.in/check.v1"

	"github.com/snapcore/stage1/bootsector"
	"github.com/snapcore/stage1/testutil"
)

type stage1Suite struct{}

var _ = Suite(&stage1Suite{})

func (s *stage1Suite) TestParseInstallDevice(c *C) {
	st, err := bootsector.ParseInstallDevice(strings.NewReader(`/dev/disk/by-id/ata-DISK_A
# comment

  /dev/disk/by-uuid/1234-abcd  
/dev/disk/by-id/ata-DISK_A
activate
generic_mbr
`))
	c.Assert(err, IsNil)
	c.Check(st, DeepEquals, &bootsector.Stage1{
		Devices:    []string{"/dev/disk/by-id/ata-DISK_A", "/dev/disk/by-uuid/1234-abcd"},
		GenericMBR: true,
		Activate:   true,
	})
}

func (s *stage1Suite) TestParseInstallDeviceEmpty(c *C) {
	st, err := bootsector.ParseInstallDevice(strings.NewReader(""))
	c.Assert(err, IsNil)
	c.Check(st, DeepEquals, &bootsector.Stage1{})
}

func (s *stage1Suite) TestWriteReadInstallDevice(c *C) {
	p := filepath.Join(c.MkDir(), "grub_installdevice")
	st := &bootsector.Stage1{
		Devices:  []string{"/dev/sda", `UUID="1234"`},
		Activate: true,
		MBR:      true,
	}
	c.Assert(st.WriteInstallDevice(p), IsNil)
	c.Check(p, testutil.FileEquals, "/dev/sda\nUUID=\"1234\"\nactivate\n")

	again, err := bootsector.ReadInstallDevice(p)
	c.Assert(err, IsNil)
	// the MBR setting is derived from the devices, it is not stored
	c.Check(again, DeepEquals, &bootsector.Stage1{
		Devices:  []string{"/dev/sda", `UUID="1234"`},
		Activate: true,
	})
}

func (s *stage1Suite) TestReadInstallDeviceMissing(c *C) {
	_, err := bootsector.ReadInstallDevice(filepath.Join(c.MkDir(), "missing"))
	c.Check(os.IsNotExist(err), Equals, true)
}

func (s *stage1Suite) TestReadStage1Yaml(c *C) {
	p := filepath.Join(c.MkDir(), "stage1.yaml")
	c.Assert(os.WriteFile(p, []byte(`devices:
- /dev/md0
- LABEL="boot"
generic-mbr: true
activate: true
`), 0644), IsNil)

	st, err := bootsector.ReadStage1Yaml(p)
	c.Assert(err, IsNil)
	c.Check(st, DeepEquals, &bootsector.Stage1{
		Devices:    []string{"/dev/md0", `LABEL="boot"`},
		GenericMBR: true,
		Activate:   true,
	})

	c.Assert(os.WriteFile(p, []byte("devices: [/dev/sda]\nactive: true\n"), 0644), IsNil)
	_, err = bootsector.ReadStage1Yaml(p)
	c.Check(err, ErrorMatches, `(?s)cannot parse .*/stage1.yaml: .*field active not found.*`)
}
