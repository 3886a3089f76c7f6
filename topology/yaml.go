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

package topology

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

type snapshotYaml struct {
	Devices []DeviceInfo `yaml:"devices"`
}

// ReadYaml reads a Snapshot from the YAML file at the given path.
func ReadYaml(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	snap, err := ParseYaml(data)
	if err != nil {
		return nil, fmt.Errorf("cannot read topology from %q: %v", path, err)
	}
	return snap, nil
}

// ParseYaml builds a Snapshot from its YAML description:
//
//	devices:
//	  - name: /dev/sda
//	    type: disk
//	    partition-table: dos
//	  - name: /dev/sda1
//	    type: part
//	    parents: [/dev/sda]
//	    number: 1
//	    partition-id: "0x83"
//	    filesystem:
//	      type: ext4
//	      uuid: 3e6c2a7b-f09c-4a60-a4c6-8bd2b3c1d07e
//	      mount-point: /
func ParseYaml(data []byte) (*Snapshot, error) {
	var sy snapshotYaml
	if err := yaml.UnmarshalStrict(data, &sy); err != nil {
		return nil, err
	}
	return New(sy.Devices)
}

// WriteYaml writes the descriptions the snapshot was built from in the
// format understood by ParseYaml.
func (s *Snapshot) WriteYaml(w io.Writer) error {
	data, err := yaml.Marshal(&snapshotYaml{Devices: s.Infos()})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
