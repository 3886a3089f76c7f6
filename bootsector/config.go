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
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mvo5/goconfigparser"

	"github.com/snapcore/stage1/dirs"
)

const defaultKeep = 10

// Config holds the tool settings of the boot sector manager.
type Config struct {
	// BackupDir is where boot sector backups are kept.
	BackupDir string
	// Keep is the number of rotated backups kept per device.
	Keep int

	// GPTBootCode and DOSBootCode are the generic boot code images
	// written to the MBR of GPT and DOS partitioned disks.
	GPTBootCode string
	DOSBootCode string

	DD     string
	Parted string
}

// DefaultConfig returns the configuration used when no configuration file
// is present, relative to the current global root directory.
func DefaultConfig() *Config {
	return &Config{
		BackupDir:   dirs.BootSectorBackupDir,
		Keep:        defaultKeep,
		GPTBootCode: filepath.Join(dirs.BootCodeDir, "gptmbr.bin"),
		DOSBootCode: filepath.Join(dirs.BootCodeDir, "mbr.bin"),
		DD:          "dd",
		Parted:      "parted",
	}
}

// LoadConfig reads the ini style configuration file at path, e.g.:
//
//	[backup]
//	dir = /var/lib/stage1/backup_boot_sectors
//	keep = 10
//
//	[bootcode]
//	gpt = /usr/share/syslinux/gptmbr.bin
//	dos = /usr/share/syslinux/mbr.bin
//
//	[tools]
//	dd = /usr/bin/dd
//	parted = /usr/sbin/parted
//
// Settings missing from the file keep their defaults, a missing file
// yields the default configuration.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()

	cfg := goconfigparser.New()
	if err := cfg.ReadFile(path); err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return nil, fmt.Errorf("cannot read configuration: %v", err)
	}

	for _, opt := range []struct {
		section, option string
		value           *string
	}{
		{"backup", "dir", &conf.BackupDir},
		{"bootcode", "gpt", &conf.GPTBootCode},
		{"bootcode", "dos", &conf.DOSBootCode},
		{"tools", "dd", &conf.DD},
		{"tools", "parted", &conf.Parted},
	} {
		if v, err := cfg.Get(opt.section, opt.option); err == nil && v != "" {
			*opt.value = v
		}
	}
	if v, err := cfg.Get("backup", "keep"); err == nil && v != "" {
		keep, err := strconv.Atoi(v)
		if err != nil || keep < 0 {
			return nil, fmt.Errorf("cannot use configuration: invalid backup keep value %q", v)
		}
		conf.Keep = keep
	}
	return conf, nil
}
