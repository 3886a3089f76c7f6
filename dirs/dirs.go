// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2014-2025 Canonical Ltd
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

package dirs

import (
	"path/filepath"
)

// the various file paths
var (
	GlobalRootDir string

	ConfigFile        string
	InstallDeviceFile string

	BootSectorBackupDir string
	BootBackupMBR       string

	BootCodeDir string
)

func init() {
	// init the global directories at startup
	SetRootDir("")
}

// SetRootDir allows settings a new global root directory, this is useful
// for e.g. chroot operations
func SetRootDir(rootdir string) {
	if rootdir == "" {
		rootdir = "/"
	}
	GlobalRootDir = rootdir

	ConfigFile = filepath.Join(rootdir, "/etc/stage1/stage1.conf")
	InstallDeviceFile = filepath.Join(rootdir, "/etc/default/grub_installdevice")

	BootSectorBackupDir = filepath.Join(rootdir, "/var/lib/stage1/backup_boot_sectors")
	BootBackupMBR = filepath.Join(rootdir, "/boot/backup_mbr")

	BootCodeDir = filepath.Join(rootdir, "/usr/share/syslinux")
}
