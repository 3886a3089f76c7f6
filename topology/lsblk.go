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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/snapcore/stage1/dirs"
	"github.com/snapcore/stage1/logger"
	"github.com/snapcore/stage1/osutil"
	"github.com/snapcore/stage1/strutil"
)

const lsblkColumns = "NAME,KNAME,TYPE,PTTYPE,PARTN,PARTTYPE,FSTYPE,UUID,LABEL,MOUNTPOINT"

var runLsblk = func() ([]byte, error) {
	return osutil.RunCmd("lsblk", "--json", "--paths", "--output", lsblkColumns)
}

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	KName      string        `json:"kname"`
	Type       string        `json:"type"`
	PTType     string        `json:"pttype"`
	PartN      lsblkNumber   `json:"partn"`
	PartType   string        `json:"parttype"`
	FSType     string        `json:"fstype"`
	UUID       string        `json:"uuid"`
	Label      string        `json:"label"`
	MountPoint string        `json:"mountpoint"`
	Children   []lsblkDevice `json:"children,omitempty"`
}

// lsblkNumber accepts numeric columns encoded as numbers, strings or
// null, depending on the util-linux version.
type lsblkNumber int

func (n *lsblkNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("cannot parse number %q: %v", s, err)
	}
	*n = lsblkNumber(v)
	return nil
}

var trailingNumberRe = regexp.MustCompile(`[0-9]+$`)

// partitionNumberFromName derives the number of a partition lsblk reports
// no partn for. Device mapper partitions carry none, their number is the
// suffix of the map name (mpatha-part2, mpatha2, mpathap2); the dm-N
// kernel name only holds the dm index.
func partitionNumberFromName(name, kname string) int {
	candidates := []string{name}
	if !strings.HasPrefix(filepath.Base(kname), "dm-") {
		candidates = append(candidates, kname)
	}
	for _, c := range candidates {
		if n, err := strconv.Atoi(trailingNumberRe.FindString(c)); err == nil {
			return n
		}
	}
	return 0
}

// Probe builds a Snapshot of the storage devices of the running system,
// using lsblk(8) for the device tree and the udev symlinks below /dev for
// the aliases.
func Probe() (*Snapshot, error) {
	out, err := runLsblk()
	if err != nil {
		return nil, fmt.Errorf("cannot list block devices: %v", err)
	}
	infos, err := parseLsblk(out)
	if err != nil {
		return nil, fmt.Errorf("cannot parse lsblk output: %v", err)
	}
	aliases, err := udevAliases()
	if err != nil {
		return nil, fmt.Errorf("cannot collect device aliases: %v", err)
	}
	for i := range infos {
		infos[i].Aliases = strutil.AppendUnique(infos[i].Aliases, aliases[infos[i].Name]...)
		sort.Strings(infos[i].Aliases)
	}
	return New(infos)
}

func parseLsblk(out []byte) ([]DeviceInfo, error) {
	var lo lsblkOutput
	if err := json.Unmarshal(out, &lo); err != nil {
		return nil, err
	}

	var infos []DeviceInfo
	index := make(map[string]int)
	var visit func(dev lsblkDevice, parent string)
	visit = func(dev lsblkDevice, parent string) {
		name := dev.KName
		if name == "" {
			name = dev.Name
		}
		// devices with several parents, like multipath maps or RAID
		// arrays, are listed below each of them
		i, ok := index[name]
		if !ok {
			infos = append(infos, lsblkDeviceInfo(name, dev))
			i = len(infos) - 1
			index[name] = i
		}
		if parent != "" && !strutil.ListContains(infos[i].Parents, parent) {
			infos[i].Parents = append(infos[i].Parents, parent)
		}
		if ok {
			return
		}
		for _, child := range dev.Children {
			visit(child, name)
		}
	}
	for _, dev := range lo.BlockDevices {
		visit(dev, "")
	}
	return infos, nil
}

func lsblkDeviceInfo(name string, dev lsblkDevice) DeviceInfo {
	info := DeviceInfo{
		Name:           name,
		Type:           dev.Type,
		PartitionTable: tableKind(dev.PTType),
	}
	if dev.Name != "" && dev.Name != name {
		info.Aliases = append(info.Aliases, dev.Name)
	}
	if dev.Type == "part" {
		info.Number = int(dev.PartN)
		if info.Number == 0 {
			info.Number = partitionNumberFromName(dev.Name, name)
		}
		info.PartitionID = strings.ToLower(dev.PartType)
		// partitions report the table of their disk
		info.PartitionTable = TableNone
	}
	if dev.FSType != "" {
		info.Filesystem = &FilesystemInfo{
			Type:       dev.FSType,
			UUID:       dev.UUID,
			Label:      dev.Label,
			MountPoint: dev.MountPoint,
		}
	}
	return info
}

func tableKind(pttype string) TableKind {
	switch pttype {
	case "gpt":
		return TableGPT
	case "dos", "msdos":
		return TableDOS
	}
	return TableNone
}

// udevAliases maps kernel device names to the udev managed symlinks
// pointing to them.
func udevAliases() (map[string][]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dirs.GlobalRootDir), "dev/{disk/by-*,mapper}/*")
	if err != nil {
		return nil, err
	}
	aliases := make(map[string][]string)
	for _, m := range matches {
		link := "/" + m
		if !osutil.IsSymlink(filepath.Join(dirs.GlobalRootDir, link)) {
			// e.g. /dev/mapper/control
			continue
		}
		target, err := readDevLink(link)
		if err != nil {
			logger.Debugf("ignoring %s: %v", link, err)
			continue
		}
		aliases[target] = append(aliases[target], link)
	}
	for _, links := range aliases {
		sort.Strings(links)
	}
	return aliases, nil
}

// readDevLink returns the device a symlink below /dev points to, relative
// to the global root directory. Only one level of indirection is followed
// as this is how udev lays out its links.
func readDevLink(link string) (string, error) {
	target, err := os.Readlink(filepath.Join(dirs.GlobalRootDir, link))
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}
	return filepath.Clean(target), nil
}
