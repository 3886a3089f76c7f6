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
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/snapcore/stage1/osutil"
	"github.com/snapcore/stage1/strutil"
)

const (
	keywordActivate   = "activate"
	keywordGenericMBR = "generic_mbr"
)

// Stage1 describes where the first stage of the boot loader goes.
type Stage1 struct {
	// Devices are the specifications of the devices the boot loader is
	// installed to, in any form understood by the resolver.
	Devices []string `yaml:"devices"`
	// GenericMBR requests writing generic boot code to the MBR.
	GenericMBR bool `yaml:"generic-mbr,omitempty"`
	// MBR is set when the boot loader itself goes to the MBR.
	MBR bool `yaml:"mbr,omitempty"`
	// Activate requests setting the boot flag on a partition.
	Activate bool `yaml:"activate,omitempty"`
}

// ParseInstallDevice parses the grub_installdevice format: one device per
// line, plus the "activate" and "generic_mbr" keywords. Empty lines and
// lines starting with # are ignored.
func ParseInstallDevice(r io.Reader) (*Stage1, error) {
	st := &Stage1{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "", strings.HasPrefix(line, "#"):
			continue
		case line == keywordActivate:
			st.Activate = true
		case line == keywordGenericMBR:
			st.GenericMBR = true
		default:
			if !strutil.ListContains(st.Devices, line) {
				st.Devices = append(st.Devices, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return st, nil
}

// ReadInstallDevice reads the grub_installdevice file at path.
func ReadInstallDevice(path string) (*Stage1, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := ParseInstallDevice(f)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %v", path, err)
	}
	return st, nil
}

// ReadStage1Yaml reads a stage1 description in YAML.
func ReadStage1Yaml(path string) (*Stage1, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st Stage1
	if err := yaml.UnmarshalStrict(data, &st); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %v", path, err)
	}
	return &st, nil
}

// WriteInstallDevice writes st to path in the grub_installdevice format.
func (st *Stage1) WriteInstallDevice(path string) error {
	var buf bytes.Buffer
	for _, dev := range st.Devices {
		fmt.Fprintln(&buf, dev)
	}
	if st.Activate {
		fmt.Fprintln(&buf, keywordActivate)
	}
	if st.GenericMBR {
		fmt.Fprintln(&buf, keywordGenericMBR)
	}
	return osutil.AtomicWriteFile(path, buf.Bytes(), 0644)
}
