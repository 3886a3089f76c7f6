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

// Package devspec parses the device specifications used to name the
// targets of a bootloader installation.
package devspec

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/snapcore/stage1/dirs"
	"github.com/snapcore/stage1/osutil"
)

// Mode is the execution mode components run in.
type Mode int

const (
	// Normal is a running, installed system.
	Normal Mode = iota
	// Installation is a system being installed, filesystems referred to by
	// UUID or label may not have been created yet.
	Installation
	// ConfigOnly works on the configuration alone, there are no real
	// devices to look at.
	ConfigOnly
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Installation:
		return "installation"
	case ConfigOnly:
		return "config"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode returns the Mode for its string representation.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "normal":
		return Normal, nil
	case "installation", "install":
		return Installation, nil
	case "config", "config-only":
		return ConfigOnly, nil
	}
	return Normal, fmt.Errorf("invalid mode %q", s)
}

// Kind is the form a Spec was given in.
type Kind int

const (
	KindPath Kind = iota
	KindUUID
	KindLabel
)

const (
	byUUIDDir  = "/dev/disk/by-uuid/"
	byLabelDir = "/dev/disk/by-label/"
)

var (
	uuidRe  = regexp.MustCompile(`^UUID="?([^"]*)"?$`)
	labelRe = regexp.MustCompile(`^LABEL="?([^"]*)"?$`)
)

// Spec is a parsed device specification, either a path like /dev/sda1, or
// the fstab-like UUID="<uuid>" and LABEL="<label>" forms.
type Spec struct {
	raw  string
	kind Kind
	path string
}

// Parse parses the given device specification. UUID and LABEL forms are
// rewritten to their /dev/disk/by-uuid and /dev/disk/by-label paths,
// anything else is kept as is.
func Parse(s string) Spec {
	s = strings.TrimSpace(s)
	spec := Spec{raw: s, kind: KindPath, path: s}
	if m := uuidRe.FindStringSubmatch(s); m != nil {
		spec.kind = KindUUID
		spec.path = byUUIDDir + m[1]
	} else if m := labelRe.FindStringSubmatch(s); m != nil {
		spec.kind = KindLabel
		spec.path = byLabelDir + m[1]
	}
	return spec
}

// Path returns the device path the spec refers to.
func (s Spec) Path() string {
	return s.path
}

// Kind returns the form the spec was given in.
func (s Spec) Kind() Kind {
	return s.kind
}

// String returns the spec as it was given, minus surrounding white space.
func (s Spec) String() string {
	return s.raw
}

// Exists returns whether the device the spec refers to is available. In
// config-only mode every device exists; during installation devices named
// by UUID or label are created only when formatting, so they are assumed
// to exist too.
func (s Spec) Exists(mode Mode) bool {
	switch {
	case mode == ConfigOnly:
		return true
	case mode == Installation && s.kind != KindPath:
		return true
	}
	return osutil.FileExists(filepath.Join(dirs.GlobalRootDir, s.path))
}
