// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2016-2025 Canonical Ltd
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

package osutil_test

import (
	"errors"

	. "gopkg.in/check.v1"
	"golang.org/x/sys/unix"

	"github.com/snapcore/stage1/osutil"
)

type sysSuite struct{}

var _ = Suite(&sysSuite{})

func (s *sysSuite) TestMachineName(c *C) {
	restore := osutil.MockUname(func(u *unix.Utsname) error {
		copy(u.Machine[:], "ppc64le")
		return nil
	})
	defer restore()

	c.Check(osutil.MachineName(), Equals, "ppc64le")
}

func (s *sysSuite) TestMachineNameError(c *C) {
	restore := osutil.MockUname(func(u *unix.Utsname) error {
		return errors.New("boom")
	})
	defer restore()

	c.Check(osutil.MachineName(), Equals, "")
}

