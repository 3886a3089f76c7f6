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
	"errors"
	"fmt"
)

var ErrInvalidLoaderDevice = errors.New("invalid loader device")

// InvalidLoaderDeviceError is returned when no disk can be determined for
// a device the boot loader is installed to.
type InvalidLoaderDeviceError struct {
	Device string
}

func (e *InvalidLoaderDeviceError) Error() string {
	return fmt.Sprintf("cannot determine the disk of boot loader device %q", e.Device)
}

func (e *InvalidLoaderDeviceError) Is(target error) bool {
	return target == ErrInvalidLoaderDevice
}

// InternalDataError reports an activation record that lacks its disk or
// partition number.
type InternalDataError struct {
	Device string
	Record ActivationRecord
}

func (e *InternalDataError) Error() string {
	return fmt.Sprintf("internal error: invalid activation record for %q: disk %q, partition %d",
		e.Device, e.Record.Disk, e.Record.Number)
}
