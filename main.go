// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/beevik/gopdp11/host"
	"github.com/beevik/gopdp11/loader"
	"github.com/beevik/gopdp11/machine"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
)

// octal is an integer flag written in octal.
type octal int

func (o *octal) Decode(ctx *kong.DecodeContext) error {
	var s string
	if err := ctx.Scan.PopValueInto("octal", &s); err != nil {
		return err
	}
	v, err := strconv.ParseInt(s, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid octal number '%s'", s)
	}
	*o = octal(v)
	return nil
}

type cli struct {
	Memory   octal    `default:"160000" help:"Bytes of memory, in octal."`
	Boot     octal    `default:"100" help:"Boot address, in octal."`
	Clock    int      `default:"60" help:"Line clock frequency in Hz. 0 stops the clock."`
	ROM      []string `name:"rom" sep:"none" placeholder:"FILE@ADDR" help:"Install a ROM image. Paper tape images need no address."`
	Tape     string   `type:"existingfile" help:"Mount a file in the paper tape reader."`
	Punch    string   `type:"path" help:"Write paper tape punch output to a file."`
	LogLevel string   `default:"warn" enum:"trace,debug,info,warn,error" help:"Log level (${enum})."`
	Profile  string   `type:"path" help:"Write a CPU profile to this directory."`
	Scripts  []string `arg:"" optional:"" type:"existingfile" help:"Command scripts to run before the interactive prompt."`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("gopdp11"),
		kong.Description("A PDP-11 emulator with an interactive monitor."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(run(&c))
}

func run(c *cli) error {
	if c.Profile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(c.Profile), profile.NoShutdownHook).Stop()
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	cfg := machine.DefaultConfig()
	cfg.MemorySize = int(c.Memory)
	cfg.BootAddress = uint16(c.Boot)
	cfg.ClockHz = c.Clock
	cfg.Logger = log

	for _, r := range c.ROM {
		roms, err := readROM(r)
		if err != nil {
			return err
		}
		cfg.ROMs = append(cfg.ROMs, roms...)
	}

	if c.Tape != "" {
		f, err := os.Open(c.Tape)
		if err != nil {
			return err
		}
		defer f.Close()
		cfg.Tape = f
	}
	if c.Punch != "" {
		f, err := os.Create(c.Punch)
		if err != nil {
			return err
		}
		defer f.Close()
		cfg.Punch = f
	}

	m, err := machine.New(cfg)
	if err != nil {
		return err
	}
	m.Start(context.Background())
	defer func() {
		if err := m.Close(); err != nil {
			log.WithError(err).Error("device failure")
		}
	}()

	h := host.New(m)

	// Run commands contained in command-line files.
	for _, filename := range c.Scripts {
		file, err := os.Open(filename)
		if err != nil {
			return err
		}
		err = h.RunCommands(file, os.Stdout, false)
		file.Close()
		if errors.Is(err, host.ErrQuit) {
			return nil
		}
	}

	// Break on Ctrl-C.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go handleInterrupt(h, sig)

	// Run commands interactively.
	err = h.RunCommands(host.NewKeyboard(os.Stdin), os.Stdout, true)
	if errors.Is(err, host.ErrQuit) {
		return nil
	}
	return err
}

func handleInterrupt(h *host.Host, c chan os.Signal) {
	for range c {
		h.Break()
	}
}

// readROM reads a ROM given as FILE@ADDR for a raw image, or FILE for an
// absolute loader tape, whose blocks each become a ROM.
func readROM(arg string) ([]machine.ROMImage, error) {
	filename, addr, hasAddr := arg, "", false
	if i := strings.LastIndexByte(arg, '@'); i >= 0 {
		filename, addr, hasAddr = arg[:i], arg[i+1:], true
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var img *loader.Image
	if hasAddr {
		base, perr := strconv.ParseUint(addr, 8, 16)
		if perr != nil {
			return nil, fmt.Errorf("rom %s: invalid address '%s'", filepath.Base(filename), addr)
		}
		img, err = loader.ReadRaw(file, uint16(base))
	} else {
		img, err = loader.ReadAbsolute(file)
	}
	if err != nil {
		return nil, fmt.Errorf("rom %s: %w", filepath.Base(filename), err)
	}

	var roms []machine.ROMImage
	for _, b := range img.Blocks {
		roms = append(roms, machine.ROMImage{Addr: b.Addr, Words: b.Words()})
	}
	return roms, nil
}
