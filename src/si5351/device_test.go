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

package si5351

import (
	"errors"
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/tester"
)

// loggingBus remembers every write so the order can be checked, and can be
// told to start failing after a number of writes.
type loggingBus struct {
	drivers.I2C
	writes    [][]byte
	failAfter int
}

var errBus = errors.New("bus stuck")

func (b *loggingBus) Tx(addr uint16, w, r []byte) error {
	if len(w) > 1 {
		if b.failAfter > 0 && len(b.writes) >= b.failAfter {
			return errBus
		}
		b.writes = append(b.writes, append([]byte(nil), w...))
	}
	return b.I2C.Tx(addr, w, r)
}

// registers returns the first register of each write since mark.
func (b *loggingBus) registers(mark int) []Register {
	var regs []Register
	for _, w := range b.writes[mark:] {
		regs = append(regs, Register(w[0]))
	}
	return regs
}

func newTestDevice(c *qt.C) (*Device, *tester.I2CDevice8, *loggingBus) {
	bus := tester.NewI2CBus(c)
	chip := bus.NewDevice(Address)
	log := &loggingBus{I2C: bus}
	d := NewAdafruitModule(log)
	d.ReadyInterval = 0
	return d, chip, log
}

func newReadyDevice(c *qt.C) (*Device, *tester.I2CDevice8, *loggingBus) {
	d, chip, log := newTestDevice(c)
	c.Assert(d.InitAdafruitModule(), qt.IsNil)
	return d, chip, log
}

func TestInit(t *testing.T) {
	c := qt.New(t)
	d, chip, log := newTestDevice(c)
	c.Assert(d.State(), qt.Equals, Uninitialized)
	for i := RegClk0Control; i < RegClk0Control+8; i++ {
		chip.Registers[i] = 0x0f
	}

	c.Assert(d.Init(CrystalLoad8PF), qt.IsNil)
	c.Assert(d.State(), qt.Equals, Ready)
	c.Assert(chip.Registers[RegOutputEnable], qt.Equals, uint8(0xff))
	for i := RegClk0Control; i < RegClk0Control+8; i++ {
		c.Assert(chip.Registers[i], qt.Equals, uint8(0x80), qt.Commentf("register %d", i))
	}
	c.Assert(chip.Registers[RegCrystalLoad], qt.Equals, uint8(0x92))
	c.Assert(log.registers(0), qt.DeepEquals, []Register{3, 16, 17, 18, 19, 20, 21, 22, 23, 183})
}

func TestInitCrystalLoad(t *testing.T) {
	c := qt.New(t)
	for load, want := range map[CrystalLoad]uint8{
		CrystalLoad6PF:  0x52,
		CrystalLoad8PF:  0x92,
		CrystalLoad10PF: 0xd2,
	} {
		d, chip, _ := newTestDevice(c)
		c.Assert(d.Init(load), qt.IsNil)
		c.Assert(chip.Registers[RegCrystalLoad], qt.Equals, want)
	}
	d, _, log := newTestDevice(c)
	c.Assert(d.Init(CrystalLoad(7)), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(log.writes, qt.HasLen, 0)
}

func TestInitTimeout(t *testing.T) {
	c := qt.New(t)
	d, chip, log := newTestDevice(c)
	chip.Registers[RegDeviceStatus] = uint8(StatusSysInit)
	d.ReadyPolls = 3

	err := d.Init(CrystalLoad10PF)
	c.Assert(err, qt.ErrorIs, ErrTimeout)
	c.Assert(d.State(), qt.Equals, Uninitialized)
	c.Assert(log.writes, qt.HasLen, 0)

	// the device comes up later and a second attempt works
	chip.Registers[RegDeviceStatus] = 0
	c.Assert(d.Init(CrystalLoad10PF), qt.IsNil)
	c.Assert(d.State(), qt.Equals, Ready)
}

func TestCommunicationError(t *testing.T) {
	c := qt.New(t)
	d, chip, _ := newTestDevice(c)
	chip.Err = errBus

	err := d.Init(CrystalLoad10PF)
	c.Assert(err, qt.ErrorIs, ErrCommunication)
	c.Assert(err, qt.ErrorIs, errBus)
	c.Assert(d.State(), qt.Equals, Uninitialized)

	_, err = d.ReadDeviceStatus()
	c.Assert(err, qt.ErrorIs, ErrCommunication)
}

func TestReadDeviceStatus(t *testing.T) {
	c := qt.New(t)
	d, chip, _ := newTestDevice(c)

	chip.Registers[RegDeviceStatus] = 0xff
	s, err := d.ReadDeviceStatus()
	c.Assert(err, qt.IsNil)
	c.Assert(s, qt.Equals, StatusSysInit|StatusLolB|StatusLolA|StatusLos)
	c.Assert(s.String(), qt.Equals, "SYS_INIT|LOL_B|LOL_A|LOS")

	// never cached
	chip.Registers[RegDeviceStatus] = uint8(StatusLolA) | 0x03
	s, err = d.ReadDeviceStatus()
	c.Assert(err, qt.IsNil)
	c.Assert(s, qt.Equals, StatusLolA)
	c.Assert(s.Has(StatusLolA), qt.IsTrue)
	c.Assert(s.Has(StatusLolB), qt.IsFalse)
}

func TestSetFrequencyNotReady(t *testing.T) {
	c := qt.New(t)
	d, _, log := newTestDevice(c)
	c.Assert(d.SetFrequency(PLLA, Clk0, 74_250_000, nil), qt.ErrorIs, ErrNotReady)
	_, err := d.SetFrequencyPrecise(PLLA, Clk0, 10e6)
	c.Assert(err, qt.ErrorIs, ErrNotReady)
	c.Assert(log.writes, qt.HasLen, 0)
}

func TestSetFrequency(t *testing.T) {
	c := qt.New(t)
	d, chip, log := newReadyDevice(c)
	mark := len(log.writes)

	spread := float32(0.015)
	c.Assert(d.SetFrequency(PLLA, Clk0, 74_250_000, &spread), qt.IsNil)

	// spread, PLL, multisynth, clock control, reset, output enable
	c.Assert(log.registers(mark), qt.DeepEquals, []Register{0x95, 26, 42, 16, 177, 3})

	c.Assert(chip.Registers[0x95:0x95+13], qt.DeepEquals,
		[]byte{0xab, 0x94, 0xff, 0xff, 0x00, 0x00, 0xc6, 0x2c, 0xe8, 0x7f, 0xff, 0x00, 0x00})
	c.Assert(chip.Registers[26:34], qt.DeepEquals, []byte{0xff, 0xff, 0x00, 0x0f, 0xd1, 0xfe, 0xb8, 0x51})
	// 12 in integer mode: P1 = 128*12-512 = 1024
	c.Assert(chip.Registers[42:50], qt.DeepEquals, []byte{0x00, 0x01, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00})
	c.Assert(chip.Registers[16], qt.Equals, uint8(clkIntMode|clkSrcMS|clkDrive8mA))
	c.Assert(chip.Registers[RegPLLReset], qt.Equals, uint8(pllResetA))
	c.Assert(chip.Registers[RegOutputEnable], qt.Equals, uint8(0xfe))

	c.Assert(d.Mirrors(), qt.Equals, Mirrors{Enabled: 0x01, IntMode: 0x01, PLLSource: 0})
}

func TestSetFrequencyPLLB(t *testing.T) {
	c := qt.New(t)
	d, chip, log := newReadyDevice(c)
	c.Assert(d.SetFrequency(PLLA, Clk0, 1_000_000, nil), qt.IsNil)
	mark := len(log.writes)

	c.Assert(d.SetFrequency(PLLB, Clk2, 12_288_000, nil), qt.IsNil)
	c.Assert(log.registers(mark), qt.DeepEquals, []Register{34, 58, 18, 177, 3})
	c.Assert(chip.Registers[18], qt.Equals, uint8(clkIntMode|clkSourcePLLB|clkSrcMS|clkDrive8mA))
	c.Assert(chip.Registers[RegPLLReset], qt.Equals, uint8(pllResetB))
	c.Assert(chip.Registers[RegOutputEnable], qt.Equals, uint8(0xfa))

	// 1MHz runs PLLA at exactly 36 so its feedback is integer, 12.288MHz is not
	m := d.Mirrors()
	c.Assert(m.Enabled, qt.Equals, uint8(0x05))
	c.Assert(m.PLLSource, qt.Equals, uint8(0x04))
	c.Assert(m.IntMode, qt.Equals, uint8(0x45))
}

func TestSetFrequencyInvalid(t *testing.T) {
	c := qt.New(t)
	d, _, log := newReadyDevice(c)
	mark := len(log.writes)
	before := d.Mirrors()

	bad := float32(1.5)
	tests := []struct {
		name   string
		pll    PLL
		clk    ClockOutput
		freq   uint32
		spread *float32
	}{
		{"no multisynth for clk6", PLLA, Clk6, 10_000_000, nil},
		{"no multisynth for clk7", PLLA, Clk7, 10_000_000, nil},
		{"zero frequency", PLLA, Clk0, 0, nil},
		{"too slow", PLLA, Clk0, 10_000, nil},
		{"bad spread", PLLA, Clk0, 10_000_000, &bad},
		{"bad pll", PLL(2), Clk0, 10_000_000, nil},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			err := d.SetFrequency(tt.pll, tt.clk, tt.freq, tt.spread)
			c.Assert(err, qt.ErrorIs, ErrInvalidParameter)
		})
	}
	c.Assert(log.writes[mark:], qt.HasLen, 0)
	c.Assert(d.Mirrors(), qt.Equals, before)
}

func TestSetFrequencyPartialFailure(t *testing.T) {
	c := qt.New(t)
	d, chip, log := newReadyDevice(c)

	// let the PLL and multisynth writes through, then fail
	log.failAfter = len(log.writes) + 2
	err := d.SetFrequency(PLLA, Clk1, 74_250_000, nil)
	c.Assert(err, qt.ErrorIs, ErrCommunication)
	c.Assert(err, qt.ErrorIs, errBus)

	// the ratios reached the chip, the clock was never powered up
	c.Assert(chip.Registers[26:34], qt.DeepEquals, []byte{0xff, 0xff, 0x00, 0x0f, 0xd1, 0xfe, 0xb8, 0x51})
	c.Assert(chip.Registers[17], qt.Equals, uint8(clkPowerDown))

	// Init recovers
	log.failAfter = 0
	c.Assert(d.InitAdafruitModule(), qt.IsNil)
	c.Assert(d.Mirrors(), qt.Equals, Mirrors{})
}

func TestSetFrequencyPrecise(t *testing.T) {
	c := qt.New(t)
	d, chip, log := newReadyDevice(c)
	mark := len(log.writes)

	f, err := d.SetFrequencyPrecise(PLLA, Clk3, 12_288_000)
	c.Assert(err, qt.IsNil)
	c.Assert(math.Abs(f-12_288_000) < 1e-3, qt.IsTrue, qt.Commentf("got %f", f))
	c.Assert(log.registers(mark), qt.DeepEquals, []Register{26, 66, 19, 177, 3})

	// 800MHz is 32 * 25MHz, the output divider 65 + 5/48 is fractional
	c.Assert(chip.Registers[26:34], qt.DeepEquals, []byte{0x00, 0x01, 0x00, 0x0e, 0x00, 0x00, 0x00, 0x00})
	c.Assert(chip.Registers[19], qt.Equals, uint8(clkSrcMS|clkDrive8mA))
	c.Assert(d.Mirrors().IntMode, qt.Equals, uint8(0x40))

	// 160MHz needs an output divider of 4, which this driver does not program
	_, err = d.SetFrequencyPrecise(PLLA, Clk3, 160e6)
	c.Assert(err, qt.ErrorIs, ErrInvalidParameter)
	_, err = d.SetFrequencyPrecise(PLLA, Clk3, 1)
	c.Assert(err, qt.ErrorIs, ErrInvalidParameter)
}

func TestSetClockEnabledIdempotent(t *testing.T) {
	c := qt.New(t)
	d, _, _ := newTestDevice(c)

	d.SetClockEnabled(Clk3, true)
	d.SetClockEnabled(Clk3, true)
	c.Assert(d.Mirrors().Enabled, qt.Equals, uint8(0x08))

	d.SetClockEnabled(Clk5, true)
	d.SetClockEnabled(Clk3, false)
	c.Assert(d.Mirrors().Enabled, qt.Equals, uint8(0x20))
	d.SetClockEnabled(Clk3, false)
	c.Assert(d.Mirrors().Enabled, qt.Equals, uint8(0x20))
}

func TestFlushClockControl(t *testing.T) {
	c := qt.New(t)
	d, chip, _ := newReadyDevice(c)

	c.Assert(d.FlushClockControl(Clk4), qt.IsNil)
	c.Assert(chip.Registers[20], qt.Equals, uint8(clkPowerDown|clkSrcMS|clkDrive8mA))

	d.SetClockEnabled(Clk4, true)
	d.SelectClockPLL(Clk4, PLLB)
	c.Assert(d.FlushClockControl(Clk4), qt.IsNil)
	c.Assert(chip.Registers[20], qt.Equals, uint8(clkSourcePLLB|clkSrcMS|clkDrive8mA))

	d.SelectClockPLL(Clk4, PLLA)
	c.Assert(d.FlushClockControl(Clk4), qt.IsNil)
	c.Assert(chip.Registers[20], qt.Equals, uint8(clkSrcMS|clkDrive8mA))

	c.Assert(d.FlushClockControl(ClockOutput(8)), qt.ErrorIs, ErrInvalidParameter)

	c.Assert(d.FlushOutputEnabled(), qt.IsNil)
	c.Assert(chip.Registers[RegOutputEnable], qt.Equals, uint8(0xef))
}

func TestSetupPLL(t *testing.T) {
	c := qt.New(t)
	d, chip, log := newReadyDevice(c)
	mark := len(log.writes)

	c.Assert(d.SetupPLL(PLLA, 14, 0, 1), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(d.SetupPLL(PLLA, 91, 0, 1), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(d.SetupPLL(PLLB, 36, 1, 0), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(d.SetupPLL(PLL(5), 36, 0, 1), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(log.writes[mark:], qt.HasLen, 0)

	c.Assert(d.SetupPLLInt(PLLA, 36), qt.IsNil)
	c.Assert(chip.Registers[26:34], qt.DeepEquals, []byte{0x00, 0x01, 0x00, 0x10, 0x00, 0x00, 0x00, 0x00})
	c.Assert(d.Mirrors().IntMode, qt.Equals, uint8(0x40))

	// the feedback integer flag lives in the CLK6 control register
	c.Assert(d.FlushClockControl(Clk6), qt.IsNil)
	c.Assert(chip.Registers[22]&clkIntMode, qt.Equals, uint8(clkIntMode))

	c.Assert(d.SetupPLL(PLLB, 35, 671088, PLLDenominator), qt.IsNil)
	c.Assert(d.Mirrors().IntMode, qt.Equals, uint8(0x40))
	c.Assert(d.SetupPLLInt(PLLB, 90), qt.IsNil)
	c.Assert(d.Mirrors().IntMode, qt.Equals, uint8(0xc0))

	c.Assert(d.ResetPLL(PLLB), qt.IsNil)
	c.Assert(chip.Registers[RegPLLReset], qt.Equals, uint8(0x80))
	c.Assert(d.ResetPLL(PLLA), qt.IsNil)
	c.Assert(chip.Registers[RegPLLReset], qt.Equals, uint8(0x20))
}

func TestSetupMultisynth(t *testing.T) {
	c := qt.New(t)
	d, chip, log := newReadyDevice(c)
	mark := len(log.writes)

	c.Assert(d.SetupMultisynth(MS0, 5, 0, 1, Div1), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(d.SetupMultisynth(MS0, 1801, 0, 1, Div1), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(d.SetupMultisynth(Multisynth(6), 100, 0, 1, Div1), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(log.writes[mark:], qt.HasLen, 0)

	c.Assert(d.SetupMultisynthInt(MS5, 6, Div128), qt.IsNil)
	c.Assert(chip.Registers[82:90], qt.DeepEquals, []byte{0x00, 0x01, 0x70, 0x01, 0x00, 0x00, 0x00, 0x00})
	c.Assert(d.Mirrors().IntMode, qt.Equals, uint8(0x20))

	c.Assert(d.SetupMultisynth(MS5, 1800, 1, 3, Div1), qt.IsNil)
	c.Assert(d.Mirrors().IntMode, qt.Equals, uint8(0x00))
}

func TestSetupAuxMultisynth(t *testing.T) {
	c := qt.New(t)
	d, chip, _ := newReadyDevice(c)

	c.Assert(d.SetupAuxMultisynth(MS6, 100), qt.IsNil)
	c.Assert(d.SetupAuxMultisynth(MS7, 254), qt.IsNil)
	c.Assert(chip.Registers[90], qt.Equals, uint8(100))
	c.Assert(chip.Registers[91], qt.Equals, uint8(254))

	c.Assert(d.SetupAuxMultisynth(MS6, 4), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(d.SetupAuxMultisynth(MS6, 7), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(d.SetupAuxMultisynth(AuxMultisynth(2), 8), qt.ErrorIs, ErrInvalidParameter)
}

func TestSetPhaseOffset(t *testing.T) {
	c := qt.New(t)
	d, chip, log := newReadyDevice(c)
	mark := len(log.writes)

	c.Assert(d.SetPhaseOffset(Clk0, 3), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(d.SetPhaseOffset(Clk6, 2), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(d.SetPhaseOffset(Clk7, 2), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(log.writes[mark:], qt.HasLen, 0)

	for clk := Clk0; clk <= Clk5; clk++ {
		c.Assert(d.SetPhaseOffset(clk, 2*uint8(clk)+10), qt.IsNil)
		c.Assert(chip.Registers[165+int(clk)], qt.Equals, 2*uint8(clk)+10)
	}
}

func TestSetCurrent(t *testing.T) {
	c := qt.New(t)
	d, chip, _ := newReadyDevice(c)

	c.Assert(d.SetCurrent(Clk7, Output4mA), qt.IsNil)
	c.Assert(chip.Registers[23], qt.Equals, uint8(0x01))
	c.Assert(d.SetCurrent(Clk0, Output8mA), qt.IsNil)
	c.Assert(chip.Registers[16], qt.Equals, uint8(0x03))

	c.Assert(d.SetCurrent(ClockOutput(8), Output2mA), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(d.SetCurrent(Clk0, Current(4)), qt.ErrorIs, ErrInvalidParameter)
}

func TestDisableOutput(t *testing.T) {
	c := qt.New(t)
	d, chip, _ := newReadyDevice(c)
	c.Assert(d.SetFrequency(PLLA, Clk1, 10_000_000, nil), qt.IsNil)
	c.Assert(chip.Registers[RegOutputEnable], qt.Equals, uint8(0xfd))

	c.Assert(d.DisableOutput(Clk1), qt.IsNil)
	c.Assert(chip.Registers[RegOutputEnable], qt.Equals, uint8(0xff))
	c.Assert(chip.Registers[17]&clkPowerDown, qt.Equals, uint8(clkPowerDown))
	c.Assert(d.Mirrors().Enabled, qt.Equals, uint8(0))
}

func TestAddress(t *testing.T) {
	c := qt.New(t)
	bus := tester.NewI2CBus(c)
	chip := bus.NewDevice(Address | 1)
	d := New(bus, true, 27_000_000)
	d.ReadyInterval = 0
	c.Assert(d.Address(), qt.Equals, uint16(0x61))
	c.Assert(d.XtalFreq(), qt.Equals, uint32(27_000_000))
	c.Assert(d.Init(CrystalLoad6PF), qt.IsNil)
	c.Assert(chip.Registers[RegCrystalLoad], qt.Equals, uint8(0x52))
}

func TestSetupSpreadSpectrum(t *testing.T) {
	c := qt.New(t)
	d, chip, log := newReadyDevice(c)
	mark := len(log.writes)

	p := SpreadParams{PFD: 25e6, A: 35, B: 671088, C: PLLDenominator, Amplitude: 0.015}
	c.Assert(d.SetupSpreadSpectrum(PLLA, p), qt.IsNil)
	c.Assert(chip.Registers[0x95:0x95+13], qt.DeepEquals,
		[]byte{0xab, 0x94, 0xff, 0xff, 0x00, 0x00, 0xc6, 0x2c, 0xe8, 0x7f, 0xff, 0x00, 0x00})

	// PLLB only warns
	c.Assert(d.SetupSpreadSpectrum(PLLB, p), qt.IsNil)
	c.Assert(log.registers(mark), qt.DeepEquals, []Register{0x95, 0x95})

	p.Amplitude = -1
	c.Assert(d.SetupSpreadSpectrum(PLLA, p), qt.ErrorIs, ErrInvalidParameter)
	c.Assert(log.writes[mark:], qt.HasLen, 2)
}
