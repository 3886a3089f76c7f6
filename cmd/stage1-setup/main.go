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
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v2"

	"github.com/snapcore/stage1/arch"
	"github.com/snapcore/stage1/bootsector"
	"github.com/snapcore/stage1/devspec"
	"github.com/snapcore/stage1/dirs"
	"github.com/snapcore/stage1/logger"
	"github.com/snapcore/stage1/resolver"
	"github.com/snapcore/stage1/topology"
)

var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr

	topologyProbe = topology.Probe
	setupLogger   = func(opts *logger.Options) error {
		return logger.SimpleSetup(opts)
	}
)

type globalOptions struct {
	Mode     string `long:"mode" description:"execution mode: normal, installation or config" default:"normal"`
	Topology string `long:"topology" description:"read the storage topology from a YAML snapshot instead of probing the system"`
	Config   string `long:"config" description:"path to the configuration file"`
	Arch     string `long:"arch" description:"architecture of the machine, defaults to the one of the running kernel"`
	Debug    bool   `long:"debug" description:"show debug messages"`
	Quiet    bool   `short:"q" long:"quiet" description:"only show errors"`
}

type stage1Mixin struct {
	InstallDevice string `long:"install-device" description:"grub_installdevice file listing the boot loader devices"`
	Stage1        string `long:"stage1" description:"YAML file describing the boot loader devices, instead of --install-device"`
	MBRDisk       string `long:"mbr-disk" description:"disk holding the MBR, detected from the mount points by default"`
}

type specArgs struct {
	Specs []string `positional-arg-name:"<device>" required:"1"`
}

type cmdResolve struct {
	global     *globalOptions
	Positional specArgs `positional-args:"yes"`
}

type cmdAlias struct {
	global     *globalOptions
	Positional specArgs `positional-args:"yes"`
}

type cmdProbe struct {
	global *globalOptions
}

type cmdPlan struct {
	global *globalOptions
	stage1Mixin
}

type cmdApply struct {
	global *globalOptions
	stage1Mixin
}

type cmdRestore struct {
	global     *globalOptions
	MBRDisk    string   `long:"mbr-disk" description:"disk holding the MBR, detected from the mount points by default"`
	Positional specArgs `positional-args:"yes"`
}

type cmdSetInstallDevice struct {
	global        *globalOptions
	InstallDevice string   `long:"install-device" description:"grub_installdevice file to write"`
	Activate      bool     `long:"activate" description:"mark a partition active"`
	GenericMBR    bool     `long:"generic-mbr" description:"write generic boot code to the MBR"`
	Positional    specArgs `positional-args:"yes"`
}

type options struct {
	Global globalOptions `group:"Global options"`

	CmdResolve          cmdResolve          `command:"resolve" description:"Print the kernel device names of devices"`
	CmdAlias            cmdAlias            `command:"alias" description:"Print the preferred names of devices for configuration files"`
	CmdProbe            cmdProbe            `command:"probe" description:"Print the storage topology as YAML"`
	CmdPlan             cmdPlan             `command:"plan" description:"Print the boot sector changes without applying them"`
	CmdApply            cmdApply            `command:"apply" description:"Back up boot sectors, write generic boot code and mark partitions active"`
	CmdRestore          cmdRestore          `command:"restore" description:"Restore the latest boot sector backup of devices"`
	CmdSetInstallDevice cmdSetInstallDevice `command:"set-install-device" description:"Write the boot loader devices to grub_installdevice"`
}

func (g *globalOptions) mode() (devspec.Mode, error) {
	return devspec.ParseMode(g.Mode)
}

func (g *globalOptions) oracle(mode devspec.Mode) (topology.Oracle, error) {
	if g.Topology != "" {
		return topology.ReadYaml(g.Topology)
	}
	if mode == devspec.ConfigOnly {
		return nil, fmt.Errorf("cannot probe the storage topology in config-only mode, use --topology")
	}
	return topologyProbe()
}

func (g *globalOptions) resolver() (*resolver.Resolver, error) {
	mode, err := g.mode()
	if err != nil {
		return nil, err
	}
	if mode == devspec.ConfigOnly && g.Topology == "" {
		return resolver.New(nil, mode), nil
	}
	oracle, err := g.oracle(mode)
	if err != nil {
		return nil, err
	}
	return resolver.New(oracle, mode), nil
}

func (g *globalOptions) manager(mbrDisk string) (*bootsector.Manager, error) {
	mode, err := g.mode()
	if err != nil {
		return nil, err
	}
	oracle, err := g.oracle(mode)
	if err != nil {
		return nil, err
	}
	configFile := g.Config
	if configFile == "" {
		configFile = dirs.ConfigFile
	}
	conf, err := bootsector.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	return bootsector.New(oracle, bootsector.Options{
		Mode:    mode,
		Arch:    arch.ArchitectureType(g.Arch),
		MBRDisk: mbrDisk,
		Config:  conf,
	})
}

// stage1 reads the boot loader devices, the MBR setting is derived from
// them unless given in a YAML description.
func (s *stage1Mixin) stage1(m *bootsector.Manager) (*bootsector.Stage1, error) {
	if s.Stage1 != "" {
		return bootsector.ReadStage1Yaml(s.Stage1)
	}
	path := s.InstallDevice
	if path == "" {
		path = dirs.InstallDeviceFile
	}
	st, err := bootsector.ReadInstallDevice(path)
	if err != nil {
		return nil, err
	}
	if err := m.DetectMBR(st); err != nil {
		return nil, err
	}
	return st, nil
}

func (x *cmdResolve) Execute(args []string) error {
	r, err := x.global.resolver()
	if err != nil {
		return err
	}
	for _, spec := range x.Positional.Specs {
		name, err := r.ResolveToKernelDevice(spec)
		if err != nil {
			return err
		}
		fmt.Fprintln(Stdout, name)
	}
	return nil
}

func (x *cmdAlias) Execute(args []string) error {
	r, err := x.global.resolver()
	if err != nil {
		return err
	}
	for _, spec := range x.Positional.Specs {
		alias, err := r.ResolveToPreferredAlias(spec)
		if err != nil {
			return err
		}
		fmt.Fprintln(Stdout, alias)
	}
	return nil
}

func (x *cmdProbe) Execute(args []string) error {
	snap, err := topologyProbe()
	if err != nil {
		return err
	}
	return snap.WriteYaml(Stdout)
}

func (x *cmdPlan) Execute(args []string) error {
	m, err := x.global.manager(x.MBRDisk)
	if err != nil {
		return err
	}
	st, err := x.stage1(m)
	if err != nil {
		return err
	}
	plan, err := m.Plan(st)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = Stdout.Write(data)
	return err
}

func (x *cmdApply) Execute(args []string) error {
	m, err := x.global.manager(x.MBRDisk)
	if err != nil {
		return err
	}
	st, err := x.stage1(m)
	if err != nil {
		return err
	}
	return m.Run(st)
}

func (x *cmdRestore) Execute(args []string) error {
	m, err := x.global.manager(x.MBRDisk)
	if err != nil {
		return err
	}
	for _, spec := range x.Positional.Specs {
		if err := m.Restore(spec); err != nil {
			return err
		}
	}
	return nil
}

func (x *cmdSetInstallDevice) Execute(args []string) error {
	r, err := x.global.resolver()
	if err != nil {
		return err
	}
	st := &bootsector.Stage1{
		Activate:   x.Activate,
		GenericMBR: x.GenericMBR,
	}
	for _, spec := range x.Positional.Specs {
		if !r.Exists(spec) {
			return fmt.Errorf("cannot use %s: device does not exist", spec)
		}
		alias, err := r.ResolveToPreferredAlias(spec)
		if err != nil {
			return err
		}
		st.Devices = append(st.Devices, alias)
	}
	path := x.InstallDevice
	if path == "" {
		path = dirs.InstallDeviceFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := st.WriteInstallDevice(path); err != nil {
		return fmt.Errorf("cannot write %s: %v", path, err)
	}
	return nil
}

func run(osArgs1 []string) error {
	var opts options
	opts.CmdResolve.global = &opts.Global
	opts.CmdAlias.global = &opts.Global
	opts.CmdProbe.global = &opts.Global
	opts.CmdPlan.global = &opts.Global
	opts.CmdApply.global = &opts.Global
	opts.CmdRestore.global = &opts.Global
	opts.CmdSetInstallDevice.global = &opts.Global

	p := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	p.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}
		if err := setupLogger(&logger.Options{Debug: opts.Global.Debug, Quiet: opts.Global.Quiet}); err != nil {
			return err
		}
		return cmd.Execute(args)
	}
	if _, err := p.ParseArgs(osArgs1); err != nil {
		return err
	}
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(Stdout, err)
			return
		}
		fmt.Fprintf(Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
