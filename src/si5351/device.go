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

// Package si5351 drives the Si5351 two-PLL clock generator over I2C.
package si5351

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"tinygo.org/x/drivers"
)

const (
	DefaultReadyPolls    = 1000
	DefaultReadyInterval = time.Millisecond
)

// State tracks whether the device has been through Init.
type State uint8

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

/*
Mirrors remembers what the driver last decided for each clock.

The clock control register packs power-down, integer mode, PLL source and
drive strength into one byte that cannot be cheaply read back, so each flush
recomposes the whole byte from these masks. Bit n of Enabled and PLLSource is
CLK n. Bit n of IntMode belongs to the Synth with Index n.
*/
type Mirrors struct {
	Enabled   uint8
	IntMode   uint8
	PLLSource uint8
}

func setBit(mask *uint8, bit uint8, on bool) {
	if on {
		*mask |= bit
	} else {
		*mask &^= bit
	}
}

// control composes the clock control byte for clk.
func (m Mirrors) control(clk ClockOutput) uint8 {
	bit := clk.bit()
	v := uint8(clkSrcMS | clkDrive8mA)
	if m.Enabled&bit == 0 {
		v |= clkPowerDown
	}
	if m.IntMode&bit != 0 {
		v |= clkIntMode
	}
	if m.PLLSource&bit != 0 {
		v |= clkSourcePLLB
	}
	return v
}

// outputEnable is the value of register 3, where a set bit disables the output.
func (m Mirrors) outputEnable() uint8 {
	return ^m.Enabled
}

/*
Device is a Si5351 on an I2C bus.

A Device does no locking. The mirrored masks are updated across several bus
transactions during SetFrequency, so all calls must come from one goroutine or
be serialized by the owner.
*/
type Device struct {
	bus      drivers.I2C
	address  uint16
	xtalFreq uint32
	mirrors  Mirrors
	state    State

	// ReadyPolls and ReadyInterval bound the wait for SYS_INIT to clear in Init.
	ReadyPolls    int
	ReadyInterval time.Duration
}

// New returns a driver for the chip at Address, or Address+1 if addressBit is
// set. xtalFreq is the reference crystal in Hz.
func New(bus drivers.I2C, addressBit bool, xtalFreq uint32) *Device {
	addr := uint16(Address)
	if addressBit {
		addr |= 1
	}
	return &Device{
		bus:           bus,
		address:       addr,
		xtalFreq:      xtalFreq,
		ReadyPolls:    DefaultReadyPolls,
		ReadyInterval: DefaultReadyInterval,
	}
}

// NewAdafruitModule matches the Adafruit breakout: 25MHz crystal, A0 low.
func NewAdafruitModule(bus drivers.I2C) *Device {
	return New(bus, false, 25_000_000)
}

func (d *Device) Address() uint16 {
	return d.address
}

func (d *Device) XtalFreq() uint32 {
	return d.xtalFreq
}

func (d *Device) State() State {
	return d.state
}

// Mirrors returns a copy of the soft state.
func (d *Device) Mirrors() Mirrors {
	return d.mirrors
}

// InitAdafruitModule is Init with the 10pF load the breakout crystal needs.
func (d *Device) InitAdafruitModule() error {
	return d.Init(CrystalLoad10PF)
}

/*
Init waits for the device to finish its own power-on sequence, powers down all
outputs and sets the crystal load capacitance.

The soft state is cleared first so Init can also be used to recover after a
failed SetFrequency.
*/
func (d *Device) Init(load CrystalLoad) error {
	loadBits, err := load.bits()
	if err != nil {
		return err
	}

	d.state = Initializing
	d.mirrors = Mirrors{}
	if err := d.init(loadBits); err != nil {
		d.state = Uninitialized
		return err
	}
	d.state = Ready
	glog.V(1).Infof("si5351@%#x: ready, xtal %d Hz", d.address, d.xtalFreq)
	return nil
}

func (d *Device) init(loadBits uint8) error {
	if err := d.waitReady(); err != nil {
		return err
	}
	if err := d.FlushOutputEnabled(); err != nil {
		return err
	}
	for clk := Clk0; clk < numClocks; clk++ {
		if err := d.writeRegister(clk.control(), clkPowerDown); err != nil {
			return err
		}
	}
	return d.writeRegister(RegCrystalLoad, loadBits)
}

func (d *Device) waitReady() error {
	polls := d.ReadyPolls
	if polls <= 0 {
		polls = 1
	}
	for i := 0; i < polls; i++ {
		status, err := d.ReadDeviceStatus()
		if err != nil {
			return err
		}
		if !status.Has(StatusSysInit) {
			glog.V(2).Infof("si5351@%#x: SYS_INIT clear after %d polls", d.address, i+1)
			return nil
		}
		if i+1 < polls {
			time.Sleep(d.ReadyInterval)
		}
	}
	return fmt.Errorf("%w: SYS_INIT still set after %d polls", ErrTimeout, polls)
}

// ReadDeviceStatus reads register 0. Nothing is cached.
func (d *Device) ReadDeviceStatus() (DeviceStatus, error) {
	v, err := d.readRegister(RegDeviceStatus)
	if err != nil {
		return 0, err
	}
	return DeviceStatus(v) & statusMask, nil
}

// SetClockEnabled records whether clk should run. Nothing is written until
// FlushClockControl or FlushOutputEnabled.
func (d *Device) SetClockEnabled(clk ClockOutput, enabled bool) {
	setBit(&d.mirrors.Enabled, clk.bit(), enabled)
}

// SelectClockPLL records which PLL feeds the multisynth behind clk.
func (d *Device) SelectClockPLL(clk ClockOutput, pll PLL) {
	setBit(&d.mirrors.PLLSource, clk.bit(), pll == PLLB)
}

func (d *Device) FlushOutputEnabled() error {
	return d.writeRegister(RegOutputEnable, d.mirrors.outputEnable())
}

func (d *Device) FlushClockControl(clk ClockOutput) error {
	if !clk.valid() {
		return invalid("clock %d", clk)
	}
	return d.writeRegister(clk.control(), d.mirrors.control(clk))
}

// DisableOutput powers down clk and removes it from the output enable mask.
func (d *Device) DisableOutput(clk ClockOutput) error {
	if !clk.valid() {
		return invalid("clock %d", clk)
	}
	d.SetClockEnabled(clk, false)
	if err := d.FlushClockControl(clk); err != nil {
		return err
	}
	return d.FlushOutputEnabled()
}

func (d *Device) SetupPLLInt(pll PLL, mult uint8) error {
	return d.SetupPLL(pll, mult, 0, 1)
}

// SetupPLL programs the feedback multisynth of pll to mult + num/denom.
func (d *Device) SetupPLL(pll PLL, mult uint8, num, denom uint32) error {
	if !pll.valid() {
		return invalid("PLL %d", pll)
	}
	if mult < MinPLLMult || mult > MaxPLLMult {
		return invalid("PLL multiplier %d outside [%d, %d]", mult, MinPLLMult, MaxPLLMult)
	}
	return d.writeSynth(pll.Multisynth(), uint16(mult), num, denom, Div1)
}

func (d *Device) SetupMultisynthInt(ms Multisynth, div uint16, r OutputDivider) error {
	return d.SetupMultisynth(ms, div, 0, 1, r)
}

// SetupMultisynth programs output multisynth ms to div + num/denom followed by r.
func (d *Device) SetupMultisynth(ms Multisynth, div uint16, num, denom uint32, r OutputDivider) error {
	if !ms.valid() {
		return invalid("multisynth %d", ms)
	}
	if div < MinMSDivider || div > MaxMSDivider {
		return invalid("multisynth divider %d outside [%d, %d]", div, MinMSDivider, MaxMSDivider)
	}
	return d.writeSynth(ms, div, num, denom, r)
}

func (d *Device) writeSynth(s Synth, a uint16, b, c uint32, r OutputDivider) error {
	payload, integer, err := EncodeRatio(a, b, c, r)
	if err != nil {
		return err
	}
	if err := d.writeBlock(s.BaseAddr(), payload[:]); err != nil {
		return err
	}
	setBit(&d.mirrors.IntMode, 1<<s.Index(), integer)
	return nil
}

// SetupAuxMultisynth sets the integer divider of MS6 or MS7.
func (d *Device) SetupAuxMultisynth(ms AuxMultisynth, div uint8) error {
	if !ms.valid() {
		return invalid("aux multisynth %d", ms)
	}
	if div < MinMSDivider || div&1 != 0 {
		return invalid("aux multisynth divider %d must be even and at least %d", div, MinMSDivider)
	}
	return d.writeRegister(ms.BaseAddr(), div)
}

// SetupSpreadSpectrum writes center-spread parameters. The chip only
// implements spread spectrum on PLLA.
func (d *Device) SetupSpreadSpectrum(pll PLL, params SpreadParams) error {
	payload, err := params.Encode()
	if err != nil {
		return err
	}
	if pll != PLLA {
		glog.Warningf("si5351@%#x: spread spectrum requested on %v, only PLLA supports it", d.address, pll)
	}
	return d.writeBlock(RegSpreadSpectrum, payload[:])
}

// ResetPLL strobes the reset bit so pll relocks after its ratio changed.
func (d *Device) ResetPLL(pll PLL) error {
	if !pll.valid() {
		return invalid("PLL %d", pll)
	}
	return d.writeRegister(RegPLLReset, pll.resetBits())
}

// SetPhaseOffset sets the phase offset of CLK0..CLK5. Odd offsets are refused.
func (d *Device) SetPhaseOffset(clk ClockOutput, offset uint8) error {
	reg, ok := clk.phaseOffset()
	if !ok {
		return invalid("%v has no phase offset register", clk)
	}
	if offset&1 == 1 {
		return invalid("odd phase offset %d", offset)
	}
	return d.writeRegister(reg, offset)
}

// SetCurrent writes the drive strength code straight into the clock control
// register of clk. The other control bits are cleared until the next
// FlushClockControl.
func (d *Device) SetCurrent(clk ClockOutput, current Current) error {
	if !clk.valid() {
		return invalid("clock %d", clk)
	}
	if current > Output8mA {
		return invalid("drive strength code %d", current)
	}
	return d.writeRegister(clk.control(), uint8(current))
}

func (d *Device) readRegister(reg Register) (uint8, error) {
	var buf [1]byte
	if err := d.bus.Tx(d.address, []byte{uint8(reg)}, buf[:]); err != nil {
		return 0, busError(err)
	}
	return buf[0], nil
}

func (d *Device) writeRegister(reg Register, v uint8) error {
	return d.writeBlock(reg, []byte{v})
}

func (d *Device) writeBlock(reg Register, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, uint8(reg))
	w = append(w, data...)
	glog.V(2).Infof("si5351@%#x: write %d % x", d.address, reg, data)
	if err := d.bus.Tx(d.address, w, nil); err != nil {
		return busError(err)
	}
	return nil
}
