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

/*
Command clockctl programs a Si5351 clock generator.

Each argument is one command, or commands are read a line at a time from
-script:

	clockctl -bus /dev/i2c-1 init "freq A 0 10M" "freq B 2 12.288M 1%"
	clockctl -dry-run -hex "precise A 1 14.0956M"
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"clocksynth/src/i2cdev"
	"clocksynth/src/si5351"
	"github.com/golang/glog"
	"tinygo.org/x/drivers"
)

var (
	busPath = flag.String("bus", "/dev/i2c-1", "i2c-dev adapter the chip is on")
	addrBit = flag.Bool("addr-bit", false, "A0 is strapped high, the chip answers at 0x61")
	xtal    = flag.Uint("xtal", 25_000_000, "crystal frequency in Hz")
	load    = flag.String("load", "10", "crystal load capacitance in pF used by init: 6, 8 or 10")
	dryRun  = flag.Bool("dry-run", false, "run against an in-memory register file instead of hardware")
	script  = flag.String("script", "", "file of commands, one per line, - for stdin")
	hexDump = flag.Bool("hex", false, "with -dry-run, print the register file when done")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] command...\n", os.Args[0])
		flag.PrintDefaults()
		usage(flag.CommandLine.Output())
	}
	flag.Parse()
	defer glog.Flush()

	if err := run(os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			flag.Usage()
			os.Exit(2)
		}
		glog.Exitf("clockctl: %v", err)
	}
}

func run(out io.Writer) error {
	var bus drivers.I2C
	var recorder *i2cdev.Recorder
	if *dryRun {
		recorder = i2cdev.NewRecorder()
		bus = recorder
	} else {
		b, err := i2cdev.Open(*busPath)
		if err != nil {
			return err
		}
		defer b.Close()
		bus = b
	}

	if *xtal == 0 || *xtal > 0xffffffff {
		return fmt.Errorf("%w: -xtal %d", errUsage, *xtal)
	}
	cl, err := parseLoad(*load)
	if err != nil {
		return fmt.Errorf("%w: -load %s", errUsage, *load)
	}
	r := &runner{
		dev:  si5351.New(bus, *addrBit, uint32(*xtal)),
		load: cl,
		out:  out,
	}
	if recorder != nil {
		r.dev.ReadyInterval = 0
	}

	if err := runCommands(r, flag.Args(), *script); err != nil {
		return err
	}
	if recorder != nil && *hexDump {
		return recorder.Dump(out, r.dev.Address(), 0, uint8(si5351.RegCrystalLoad))
	}
	return nil
}

func runCommands(r *runner, args []string, script string) error {
	for _, line := range args {
		if err := r.exec(line); err != nil {
			return err
		}
	}
	switch script {
	case "":
		if len(args) == 0 {
			return fmt.Errorf("%w: no commands", errUsage)
		}
		return nil
	case "-":
		return r.script(os.Stdin)
	}
	f, err := os.Open(script)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.script(f)
}
