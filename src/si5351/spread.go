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

import "math"

const (
	sscEnable     = 0x80
	sscModeCenter = 0x80
	sscNClk       = 0x00

	// modulation rate of the spread is f_pfd / (4 * ssudp), about 31.5kHz
	sscModulationRate = 31500

	sscP3 = 0x7fff
)

/*
SpreadParams describes center-spread dithering of a PLL whose feedback ratio
is A + B/C and whose phase detector runs at PFD Hz (the crystal frequency
here). Amplitude is the fractional spread, 0.01 for 1%.

The numbers are computed in float32, the precision the chip's reference
procedure uses.
*/
type SpreadParams struct {
	PFD       float32
	A, B, C   float32
	Amplitude float32
}

// SpreadCoeffs are the up and down step parameters for center spread.
type SpreadCoeffs struct {
	UpP1, UpP2, UpP3       uint16
	DownP1, DownP2, DownP3 uint16
}

// SSUDP is the 11 bit up/down period.
func (p SpreadParams) SSUDP() uint16 {
	return sat16(floor32(p.PFD/(4.0*sscModulationRate))) & 0x7ff
}

func (p SpreadParams) validate() error {
	amp := float64(p.Amplitude)
	if math.IsNaN(amp) || amp < 0 || amp >= 1 {
		return invalid("spread amplitude %g", p.Amplitude)
	}
	if !(p.C > 0) {
		return invalid("spread ratio denominator %g", p.C)
	}
	if p.SSUDP() == 0 {
		return invalid("phase detector frequency %g too low for spread", p.PFD)
	}
	return nil
}

// CenterSpread computes the step parameters. Callers should validate first;
// a zero SSUDP gives meaningless (saturated) values.
func (p SpreadParams) CenterSpread() SpreadCoeffs {
	ssudp := float32(p.SSUDP())
	ratio := p.A + p.B/p.C

	up := 128.0 * ratio * (p.Amplitude / ((1.0 - p.Amplitude) * ssudp))
	down := 128.0 * ratio * (p.Amplitude / ((1.0 + p.Amplitude) * ssudp))

	var r SpreadCoeffs
	r.UpP1, r.UpP2 = spreadSplit(up)
	r.DownP1, r.DownP2 = spreadSplit(down)
	r.UpP3 = sscP3
	r.DownP3 = sscP3
	return r
}

// spreadSplit returns the 11 bit integer part and 14 bit fraction of v.
func spreadSplit(v float32) (p1, p2 uint16) {
	p1 = sat16(floor32(v)) & 0x7ff
	p2 = sat16(32767.0*(v-float32(p1))) & 0x3fff
	return p1, p2
}

// Encode returns the 13 register bytes starting at RegSpreadSpectrum.
func (p SpreadParams) Encode() ([13]byte, error) {
	if err := p.validate(); err != nil {
		return [13]byte{}, err
	}
	ssudp := p.SSUDP()
	c := p.CenterSpread()
	return [13]byte{
		byte(sscEnable | c.DownP2>>8),
		byte(c.DownP2),
		byte(sscModeCenter | c.DownP3>>8),
		byte(c.DownP3),
		byte(c.DownP1),
		byte((ssudp>>4)&0xf0 | (c.DownP1>>8)&0x0f),
		byte(ssudp),
		byte(c.UpP2 >> 8),
		byte(c.UpP2),
		byte(c.UpP3 >> 8),
		byte(c.UpP3),
		byte(c.UpP1),
		byte(sscNClk | (c.UpP1>>8)&0x0f),
	}, nil
}

func floor32(v float32) float32 {
	return float32(math.Floor(float64(v)))
}

// sat16 truncates toward zero and saturates to the uint16 range.
func sat16(v float32) uint16 {
	switch {
	case v != v || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}
