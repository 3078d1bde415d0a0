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
	"fmt"
	"strings"
)

// Address is the fixed 7-bit bus address. The A0 pin selects the low bit.
const Address = 0b0110_0000

// Register is a byte offset in the device register file.
type Register uint8

const (
	RegDeviceStatus Register = 0
	RegOutputEnable Register = 3
	RegClk0Control  Register = 16
	RegClk0PhaseOff Register = 165
	RegPLLReset     Register = 177
	RegCrystalLoad  Register = 183

	// start of the 13 byte spread spectrum block
	RegSpreadSpectrum Register = 0x95
)

// DeviceStatus mirrors register 0. It is always read fresh from the device.
type DeviceStatus uint8

const (
	StatusSysInit DeviceStatus = 0b1000_0000
	StatusLolB    DeviceStatus = 0b0100_0000
	StatusLolA    DeviceStatus = 0b0010_0000
	StatusLos     DeviceStatus = 0b0001_0000

	statusMask = StatusSysInit | StatusLolB | StatusLolA | StatusLos
)

func (s DeviceStatus) Has(bits DeviceStatus) bool {
	return s&bits == bits
}

func (s DeviceStatus) String() string {
	var out []string
	if s&StatusSysInit != 0 {
		out = append(out, "SYS_INIT")
	}
	if s&StatusLolB != 0 {
		out = append(out, "LOL_B")
	}
	if s&StatusLolA != 0 {
		out = append(out, "LOL_A")
	}
	if s&StatusLos != 0 {
		out = append(out, "LOS")
	}
	if len(out) == 0 {
		return "OK"
	}
	return strings.Join(out, "|")
}

// CrystalLoad is the internal load capacitance presented to the crystal.
type CrystalLoad uint8

const (
	CrystalLoad6PF CrystalLoad = iota
	CrystalLoad8PF
	CrystalLoad10PF
)

const (
	crystalLoadReserved = 0b00_010010
	crystalLoad6        = 0b01_000000
	crystalLoad8        = 0b10_000000
	crystalLoad10       = 0b11_000000
)

func (l CrystalLoad) bits() (uint8, error) {
	switch l {
	case CrystalLoad6PF:
		return crystalLoadReserved | crystalLoad6, nil
	case CrystalLoad8PF:
		return crystalLoadReserved | crystalLoad8, nil
	case CrystalLoad10PF:
		return crystalLoadReserved | crystalLoad10, nil
	}
	return 0, fmt.Errorf("%w: crystal load %d", ErrInvalidParameter, l)
}

// clock control register bits
const (
	clkPowerDown  = 0b1000_0000
	clkIntMode    = 0b0100_0000
	clkSourcePLLB = 0b0010_0000
	clkInvert     = 0b0001_0000
	clkSrcXtal    = 0b0000_0000
	clkSrcClkIn   = 0b0000_0100
	clkSrcMSAlt   = 0b0000_1000
	clkSrcMS      = 0b0000_1100
	clkDrive8mA   = 0b0000_0011
)

const (
	pllResetB = 0b1000_0000
	pllResetA = 0b0010_0000
)

// ClockOutput is one of the eight output pins.
type ClockOutput uint8

const (
	Clk0 ClockOutput = iota
	Clk1
	Clk2
	Clk3
	Clk4
	Clk5
	Clk6
	Clk7
)

const numClocks = 8

func (c ClockOutput) valid() bool {
	return c < numClocks
}

func (c ClockOutput) bit() uint8 {
	return 1 << c
}

func (c ClockOutput) control() Register {
	return RegClk0Control + Register(c)
}

// phaseOffset returns the phase register. Only CLK0..CLK5 have one.
func (c ClockOutput) phaseOffset() (Register, bool) {
	if c > Clk5 {
		return 0, false
	}
	return RegClk0PhaseOff + Register(c), true
}

// multisynth is the fractional output stage that drives this clock.
func (c ClockOutput) multisynth() (Multisynth, bool) {
	if c > Clk5 {
		return 0, false
	}
	return Multisynth(c), true
}

func (c ClockOutput) String() string {
	return fmt.Sprintf("CLK%d", uint8(c))
}

// PLL selects one of the two phase locked loops.
type PLL uint8

const (
	PLLA PLL = iota
	PLLB
)

func (p PLL) valid() bool {
	return p == PLLA || p == PLLB
}

// Multisynth returns the feedback multisynth that closes this PLL's loop.
func (p PLL) Multisynth() FeedbackMultisynth {
	if p == PLLB {
		return MSNB
	}
	return MSNA
}

func (p PLL) resetBits() uint8 {
	if p == PLLB {
		return pllResetB
	}
	return pllResetA
}

func (p PLL) String() string {
	if p == PLLB {
		return "PLLB"
	}
	return "PLLA"
}

// Current is the output drive strength code.
type Current uint8

const (
	Output2mA Current = 0b00
	Output4mA Current = 0b01
	Output6mA Current = 0b10
	Output8mA Current = 0b11
)

// OutputDivider is the power-of-two R divider after an output multisynth.
type OutputDivider uint8

const (
	Div1 OutputDivider = iota
	Div2
	Div4
	Div8
	Div16
	Div32
	Div64
	Div128
)

// Bits returns the R_DIV field as it sits in the third multisynth byte.
func (r OutputDivider) Bits() uint8 {
	return uint8(r&0x7) << 4
}

// Denominator is the division ratio, 1..128.
func (r OutputDivider) Denominator() uint32 {
	return 1 << (r & 0x7)
}

func (r OutputDivider) String() string {
	return fmt.Sprintf("R/%d", r.Denominator())
}
