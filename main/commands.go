/*
 * Copyright 2025 Ted Dunning
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"clocksynth/src/si5351"
	"github.com/golang/glog"
	"github.com/google/shlex"
)

var errUsage = errors.New("usage")

// runner executes clockctl commands against one device.
type runner struct {
	dev  *si5351.Device
	load si5351.CrystalLoad
	out  io.Writer
}

type command struct {
	args  string
	help  string
	nargs []int
	run   func(r *runner, args []string) error
}

var commands = map[string]command{
	"init":    {"[6|8|10]", "wait for the chip and power down all outputs", []int{0, 1}, (*runner).initDevice},
	"freq":    {"A|B clk hz [spread]", "drive clk from a PLL near its maximum", []int{3, 4}, (*runner).freq},
	"precise": {"A|B clk hz", "drive clk using best rational ratios", []int{3}, (*runner).precise},
	"enable":  {"clk", "power up clk and enable its output", []int{1}, (*runner).enable},
	"disable": {"clk", "power down clk and disable its output", []int{1}, (*runner).disable},
	"phase":   {"clk offset", "set the phase offset of CLK0..CLK5", []int{2}, (*runner).phase},
	"drive":   {"clk 2|4|6|8", "set the output drive in mA", []int{2}, (*runner).drive},
	"aux":     {"6|7 div", "set the integer divider of MS6 or MS7", []int{2}, (*runner).aux},
	"reset":   {"A|B", "reset a PLL", []int{1}, (*runner).reset},
	"status":  {"", "read the device status register", []int{0}, (*runner).status},
	"mirrors": {"", "show the driver's view of the clock control bits", []int{0}, (*runner).mirrors},
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "commands:")
	for _, name := range []string{"init", "freq", "precise", "enable", "disable", "phase", "drive", "aux", "reset", "status", "mirrors"} {
		cmd := commands[name]
		fmt.Fprintf(out, "  %-8s %-20s %s\n", name, cmd.args, cmd.help)
	}
}

// exec runs a single command line. Blank lines and # comments are ignored.
func (r *runner) exec(line string) error {
	words, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("%q: %w", line, err)
	}
	if len(words) == 0 {
		return nil
	}
	name, args := strings.ToLower(words[0]), words[1:]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	argsOK := false
	for _, n := range cmd.nargs {
		argsOK = argsOK || n == len(args)
	}
	if !argsOK {
		return fmt.Errorf("%w: %s %s", errUsage, name, cmd.args)
	}
	glog.V(1).Infof("clockctl: %s %v", name, args)
	return cmd.run(r, args)
}

// script runs every line of in, stopping at the first failure.
func (r *runner) script(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	n := 0
	for scanner.Scan() {
		n++
		if err := r.exec(scanner.Text()); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return scanner.Err()
}

func (r *runner) initDevice(args []string) error {
	load := r.load
	if len(args) == 1 {
		var err error
		if load, err = parseLoad(args[0]); err != nil {
			return err
		}
	}
	if err := r.dev.Init(load); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "si5351@%#02x ready, xtal %d Hz\n", r.dev.Address(), r.dev.XtalFreq())
	return nil
}

func (r *runner) freq(args []string) error {
	pll, clk, err := parsePLLClock(args[0], args[1])
	if err != nil {
		return err
	}
	hz, err := parseHz(args[2])
	if err != nil {
		return err
	}
	if hz > 0xffffffff {
		return fmt.Errorf("%w: %s is too high", si5351.ErrInvalidParameter, args[2])
	}
	var spread *float32
	if len(args) == 4 {
		s, err := parseSpread(args[3])
		if err != nil {
			return err
		}
		spread = &s
	}
	if err := r.dev.SetFrequency(pll, clk, uint32(hz), spread); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%v from %v at %d Hz\n", clk, pll, uint32(hz))
	return nil
}

func (r *runner) precise(args []string) error {
	pll, clk, err := parsePLLClock(args[0], args[1])
	if err != nil {
		return err
	}
	hz, err := parseHz(args[2])
	if err != nil {
		return err
	}
	f, err := r.dev.SetFrequencyPrecise(pll, clk, hz)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%v from %v at %.4f Hz, error %.3g Hz\n", clk, pll, f, hz-f)
	return nil
}

func (r *runner) enable(args []string) error {
	clk, err := parseClock(args[0])
	if err != nil {
		return err
	}
	r.dev.SetClockEnabled(clk, true)
	if err := r.dev.FlushClockControl(clk); err != nil {
		return err
	}
	return r.dev.FlushOutputEnabled()
}

func (r *runner) disable(args []string) error {
	clk, err := parseClock(args[0])
	if err != nil {
		return err
	}
	return r.dev.DisableOutput(clk)
}

func (r *runner) phase(args []string) error {
	clk, err := parseClock(args[0])
	if err != nil {
		return err
	}
	offset, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return fmt.Errorf("%w: phase offset %q", si5351.ErrInvalidParameter, args[1])
	}
	return r.dev.SetPhaseOffset(clk, uint8(offset))
}

func (r *runner) drive(args []string) error {
	clk, err := parseClock(args[0])
	if err != nil {
		return err
	}
	var current si5351.Current
	switch strings.TrimSuffix(strings.ToLower(args[1]), "ma") {
	case "2":
		current = si5351.Output2mA
	case "4":
		current = si5351.Output4mA
	case "6":
		current = si5351.Output6mA
	case "8":
		current = si5351.Output8mA
	default:
		return fmt.Errorf("%w: drive %q, want 2, 4, 6 or 8", si5351.ErrInvalidParameter, args[1])
	}
	return r.dev.SetCurrent(clk, current)
}

func (r *runner) aux(args []string) error {
	var ms si5351.AuxMultisynth
	switch strings.TrimPrefix(strings.ToLower(args[0]), "ms") {
	case "6":
		ms = si5351.MS6
	case "7":
		ms = si5351.MS7
	default:
		return fmt.Errorf("%w: aux multisynth %q", si5351.ErrInvalidParameter, args[0])
	}
	div, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return fmt.Errorf("%w: divider %q", si5351.ErrInvalidParameter, args[1])
	}
	return r.dev.SetupAuxMultisynth(ms, uint8(div))
}

func (r *runner) reset(args []string) error {
	pll, err := parsePLL(args[0])
	if err != nil {
		return err
	}
	return r.dev.ResetPLL(pll)
}

func (r *runner) status(args []string) error {
	s, err := r.dev.ReadDeviceStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "status %v\n", s)
	return nil
}

func (r *runner) mirrors(args []string) error {
	m := r.dev.Mirrors()
	fmt.Fprintf(r.out, "enabled %08b int %08b pllb %08b\n", m.Enabled, m.IntMode, m.PLLSource)
	return nil
}

func parseLoad(s string) (si5351.CrystalLoad, error) {
	switch strings.TrimSuffix(strings.ToLower(s), "pf") {
	case "6":
		return si5351.CrystalLoad6PF, nil
	case "8":
		return si5351.CrystalLoad8PF, nil
	case "10":
		return si5351.CrystalLoad10PF, nil
	}
	return 0, fmt.Errorf("%w: crystal load %q, want 6, 8 or 10", si5351.ErrInvalidParameter, s)
}

func parsePLL(s string) (si5351.PLL, error) {
	switch strings.ToUpper(strings.TrimPrefix(strings.ToLower(s), "pll")) {
	case "A":
		return si5351.PLLA, nil
	case "B":
		return si5351.PLLB, nil
	}
	return 0, fmt.Errorf("%w: PLL %q", si5351.ErrInvalidParameter, s)
}

// parseClock accepts 3 or clk3.
func parseClock(s string) (si5351.ClockOutput, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "clk"), 10, 8)
	if err != nil || n > uint64(si5351.Clk7) {
		return 0, fmt.Errorf("%w: clock %q", si5351.ErrInvalidParameter, s)
	}
	return si5351.ClockOutput(n), nil
}

func parsePLLClock(p, c string) (si5351.PLL, si5351.ClockOutput, error) {
	pll, err := parsePLL(p)
	if err != nil {
		return 0, 0, err
	}
	clk, err := parseClock(c)
	return pll, clk, err
}

// parseHz accepts plain numbers, exponents and k, M or G suffixes.
func parseHz(s string) (float64, error) {
	scale := 1.0
	v := strings.TrimSuffix(s, "Hz")
	switch {
	case strings.HasSuffix(v, "k"):
		scale, v = 1e3, strings.TrimSuffix(v, "k")
	case strings.HasSuffix(v, "M"):
		scale, v = 1e6, strings.TrimSuffix(v, "M")
	case strings.HasSuffix(v, "G"):
		scale, v = 1e9, strings.TrimSuffix(v, "G")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !(f >= 0) {
		return 0, fmt.Errorf("%w: frequency %q", si5351.ErrInvalidParameter, s)
	}
	return f * scale, nil
}

// parseSpread accepts a fraction or a percentage.
func parseSpread(s string) (float32, error) {
	pct := strings.HasSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 32)
	if err != nil {
		return 0, fmt.Errorf("%w: spread %q", si5351.ErrInvalidParameter, s)
	}
	if pct {
		f /= 100
	}
	return float32(f), nil
}
