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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/snapcore/stage1/dirs"
	"github.com/snapcore/stage1/logger"
	"github.com/snapcore/stage1/osutil"
)

var timeNow = time.Now

// BootRecordBackup keeps copies of the first sector of devices before
// they get modified. The latest copy of /dev/sda is <dir>/_dev_sda, older
// ones carry the time they were replaced, e.g. <dir>/_dev_sda-1700000000.
type BootRecordBackup struct {
	Dir  string
	Keep int
	DD   string
}

// Path returns the path of the latest backup of dev.
func (b *BootRecordBackup) Path(dev string) string {
	return filepath.Join(b.Dir, strings.Replace(dev, "/", "_", -1))
}

func (b *BootRecordBackup) copySector(src, dst string, size int) error {
	_, err := osutil.RunCmd(b.DD, "if="+src, "of="+dst, fmt.Sprintf("bs=%d", size), "count=1")
	return err
}

// Write backs up the boot sector of dev. The previous backup is rotated
// unless it is identical to the current sector. The backup of the MBR
// disk is also copied to /boot/backup_mbr.
func (b *BootRecordBackup) Write(dev string, mbrDisk bool) error {
	if err := os.MkdirAll(b.Dir, 0755); err != nil {
		return fmt.Errorf("cannot create backup directory: %v", err)
	}
	current := b.Path(dev)
	fresh := current + ".new"
	if err := b.copySector(dev, fresh, 512); err != nil {
		os.Remove(fresh)
		return fmt.Errorf("cannot back up boot sector of %s: %v", dev, err)
	}

	if err := b.rotate(current, fresh); err != nil {
		return err
	}

	if mbrDisk {
		if err := os.MkdirAll(filepath.Dir(dirs.BootBackupMBR), 0755); err != nil {
			return fmt.Errorf("cannot create %s: %v", filepath.Dir(dirs.BootBackupMBR), err)
		}
		if err := osutil.CopyFile(current, dirs.BootBackupMBR); err != nil {
			return fmt.Errorf("cannot copy MBR backup: %v", err)
		}
	}
	return nil
}

func (b *BootRecordBackup) rotate(current, fresh string) error {
	newData, err := os.ReadFile(fresh)
	if err != nil {
		return fmt.Errorf("cannot read boot sector backup: %v", err)
	}
	oldData, err := os.ReadFile(current)
	switch {
	case err == nil && bytes.Equal(oldData, newData):
		logger.Debugf("boot sector backup %s is up to date", current)
		return os.Remove(fresh)
	case err == nil:
		rotated := fmt.Sprintf("%s-%d", current, timeNow().Unix())
		if err := os.Rename(current, rotated); err != nil {
			return fmt.Errorf("cannot rotate boot sector backup: %v", err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("cannot read boot sector backup: %v", err)
	}
	if err := os.Rename(fresh, current); err != nil {
		return fmt.Errorf("cannot store boot sector backup: %v", err)
	}
	logger.Noticef("backed up boot sector to %s", current)
	return b.prune(current)
}

// rotated returns the rotated copies of the backup at current, oldest
// first.
func (b *BootRecordBackup) rotated(current string) ([]string, error) {
	base := filepath.Base(current)
	matches, err := doublestar.Glob(os.DirFS(filepath.Dir(current)), base+"-*")
	if err != nil {
		return nil, err
	}
	stamps := make(map[string]int64, len(matches))
	var backups []string
	for _, m := range matches {
		ts, err := strconv.ParseInt(strings.TrimPrefix(m, base+"-"), 10, 64)
		if err != nil {
			continue
		}
		p := filepath.Join(filepath.Dir(current), m)
		stamps[p] = ts
		backups = append(backups, p)
	}
	sort.Slice(backups, func(i, j int) bool {
		return stamps[backups[i]] < stamps[backups[j]]
	})
	return backups, nil
}

func (b *BootRecordBackup) prune(current string) error {
	backups, err := b.rotated(current)
	if err != nil {
		return fmt.Errorf("cannot list boot sector backups: %v", err)
	}
	for len(backups) > b.Keep {
		if err := os.Remove(backups[0]); err != nil {
			return fmt.Errorf("cannot remove old boot sector backup: %v", err)
		}
		backups = backups[1:]
	}
	return nil
}

// Restore writes the latest backup of dev back to the device. Only the
// boot code area is restored on disks, the partition table is left alone.
func (b *BootRecordBackup) Restore(dev string, disk bool) error {
	current := b.Path(dev)
	if !osutil.FileExists(current) {
		return fmt.Errorf("cannot find boot sector backup of %s", dev)
	}
	size := 512
	if disk {
		size = bootCodeSize
	}
	if err := b.copySector(current, dev, size); err != nil {
		return fmt.Errorf("cannot restore boot sector of %s: %v", dev, err)
	}
	logger.Noticef("restored boot sector of %s from %s", dev, current)
	return nil
}
