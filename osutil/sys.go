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

package osutil

import (
	"golang.org/x/sys/unix"
)

var unixUname = unix.Uname

// MachineName returns the machine name as reported by uname(2), e.g.
// "x86_64" or "ppc64le".
func MachineName() string {
	var u unix.Utsname
	if err := unixUname(&u); err != nil {
		return ""
	}
	return unix.ByteSliceToString(u.Machine[:])
}

