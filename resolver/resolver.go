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

// Package resolver translates between the names a block device is known
// by: kernel device names, udev aliases and the UUID/LABEL device
// specifications.
package resolver

import (
	"errors"
	"fmt"

	"github.com/snapcore/stage1/devspec"
	"github.com/snapcore/stage1/logger"
	"github.com/snapcore/stage1/topology"
)

var ErrDeviceNotFound = errors.New("device not found")

// DeviceNotFoundError is returned when a device specification matches no
// device of the storage topology.
type DeviceNotFoundError struct {
	Spec string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("cannot find device %q", e.Spec)
}

func (e *DeviceNotFoundError) Is(target error) bool {
	return target == ErrDeviceNotFound
}

// Resolver resolves device specifications against a storage topology. The
// topology is expected not to change during the lifetime of a Resolver,
// results are cached.
type Resolver struct {
	oracle topology.Oracle
	mode   devspec.Mode

	kernel map[string]string
}

// New returns a Resolver looking devices up in the given oracle. In
// config-only mode the oracle is never used and may be nil.
func New(oracle topology.Oracle, mode devspec.Mode) *Resolver {
	return &Resolver{
		oracle: oracle,
		mode:   mode,
		kernel: make(map[string]string),
	}
}

// Mode returns the mode the resolver runs in.
func (r *Resolver) Mode() devspec.Mode {
	return r.mode
}

// Oracle returns the topology the resolver looks devices up in.
func (r *Resolver) Oracle() topology.Oracle {
	return r.oracle
}

// ResolveToKernelDevice returns the kernel device name for the given
// device specification. In config-only mode the specification is returned
// unchanged.
//
// Disks that are a path of a multipath map resolve to the map, as the
// paths share their udev identities with it.
func (r *Resolver) ResolveToKernelDevice(spec string) (string, error) {
	if r.mode == devspec.ConfigOnly {
		return spec, nil
	}
	if name, ok := r.kernel[spec]; ok {
		return name, nil
	}

	dev := r.oracle.FindByAnyName(devspec.Parse(spec).Path())
	if dev == nil {
		return "", &DeviceNotFoundError{Spec: spec}
	}
	name := dev.Name()
	if dev.Is(topology.TagDisk) {
		for _, desc := range dev.Descendants() {
			if desc.Is(topology.TagMultipath) {
				logger.Debugf("using multipath device %s instead of %s", desc.Name(), name)
				name = desc.Name()
				break
			}
		}
	}
	r.kernel[spec] = name
	return name, nil
}

// ResolveToPreferredAlias returns the most suitable name to refer to the
// device by in configuration files. The mount-by setting of a filesystem on
// the device wins, otherwise the most stable alias is picked.
func (r *Resolver) ResolveToPreferredAlias(spec string) (string, error) {
	name, err := r.ResolveToKernelDevice(spec)
	if err != nil {
		return "", err
	}
	var dev topology.Device
	if r.oracle != nil {
		dev = r.oracle.FindByName(name)
	}
	if dev == nil {
		logger.Noticef("cannot find device %s in the storage topology, using it as is", name)
		return name, nil
	}
	if fs := dev.Filesystem(); fs != nil {
		if alias := fs.MountByConfigured(); alias != "" {
			return alias, nil
		}
		return fs.PreferredAlias(), nil
	}
	return dev.PreferredAlias(), nil
}

// Exists returns whether the device named by spec is available.
func (r *Resolver) Exists(spec string) bool {
	return devspec.Parse(spec).Exists(r.mode)
}
