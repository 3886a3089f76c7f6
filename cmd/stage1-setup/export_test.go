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

package main

import (
	"github.com/snapcore/stage1/logger"
	"github.com/snapcore/stage1/topology"
)

var Run = run

func MockTopologyProbe(f func() (*topology.Snapshot, error)) (restore func()) {
	old := topologyProbe
	topologyProbe = f
	return func() {
		topologyProbe = old
	}
}

func MockSetupLogger(f func(opts *logger.Options) error) (restore func()) {
	old := setupLogger
	setupLogger = f
	return func() {
		setupLogger = old
	}
}
