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

	"github.com/snapcore/stage1/logger"
	"github.com/snapcore/stage1/osutil"
	"github.com/snapcore/stage1/topology"
)

// bootCodeSize is the size of the boot code area of the MBR, the disk
// signature and the partition table follow it.
const bootCodeSize = 440

func (m *Manager) bootCodeFor(table topology.TableKind) string {
	if table == topology.TableGPT {
		return m.conf.GPTBootCode
	}
	return m.conf.DOSBootCode
}

func (m *Manager) ensureCopyTool() error {
	if m.ddFound {
		return nil
	}
	if _, err := osutil.LookPath(m.conf.DD); err != nil {
		return err
	}
	m.ddFound = true
	return nil
}

// installGenericMBR writes generic boot code to the boot code area of the
// MBR of disk, leaving its partition table alone.
func (m *Manager) installGenericMBR(disk string) error {
	var table topology.TableKind
	if dev := m.oracle.FindByName(disk); dev != nil {
		table = dev.PartitionTable()
	}
	code := m.bootCodeFor(table)
	if !osutil.FileExists(code) {
		return fmt.Errorf("cannot find boot code %s", code)
	}
	if err := m.ensureCopyTool(); err != nil {
		return err
	}
	if _, err := osutil.RunCmd(m.conf.DD, fmt.Sprintf("bs=%d", bootCodeSize), "count=1", "if="+code, "of="+disk); err != nil {
		return fmt.Errorf("cannot write generic boot code to %s: %v", disk, err)
	}
	logger.Noticef("wrote generic boot code %s to %s", code, disk)
	return nil
}
