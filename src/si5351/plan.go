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
	"math/bits"

	"clocksynth/src/support"
	"github.com/golang/glog"
)

// Fraction is a divider a + b/c.
type Fraction struct {
	A, B, C uint32
}

func (f Fraction) Float() float64 {
	return float64(f.A) + float64(f.B)/float64(f.C)
}

type registerWrite struct {
	step string
	reg  Register
	data []byte
}

/*
frequencyPlan is everything SetFrequency will send, computed and checked before
the first bus transaction. The order of writes matters:

  - spread spectrum parameters before the PLL ratio they describe
  - PLL feedback ratio
  - output multisynth ratio
  - clock control byte (power, integer mode, source)
  - PLL reset so the loop relocks on the new ratio
  - output enable
*/
type frequencyPlan struct {
	pll     PLL
	clk     ClockOutput
	feed    Fraction
	ms      Fraction
	r       OutputDivider
	mirrors Mirrors
	writes  []registerWrite
}

// output is the frequency the plan will produce from a crystal of xtal Hz.
func (p *frequencyPlan) output(xtal uint32) float64 {
	return float64(xtal) * p.feed.Float() / p.ms.Float() / float64(p.r.Denominator())
}

func (d *Device) plan(pll PLL, clk ClockOutput, feed, ms Fraction, r OutputDivider, spread *float32) (*frequencyPlan, error) {
	if d.state != Ready {
		return nil, ErrNotReady
	}
	if !pll.valid() {
		return nil, invalid("PLL %d", pll)
	}
	synth, ok := clk.multisynth()
	if !ok {
		return nil, invalid("%v has no fractional multisynth", clk)
	}
	if feed.A < MinPLLMult || feed.A > MaxPLLMult {
		return nil, invalid("PLL multiplier %d outside [%d, %d]", feed.A, MinPLLMult, MaxPLLMult)
	}
	if ms.A < MinMSDivider || ms.A > MaxMSDivider {
		return nil, invalid("multisynth divider %d outside [%d, %d]", ms.A, MinMSDivider, MaxMSDivider)
	}

	p := &frequencyPlan{
		pll:     pll,
		clk:     clk,
		feed:    feed,
		ms:      ms,
		r:       r,
		mirrors: d.mirrors,
	}

	if spread != nil {
		params := SpreadParams{
			PFD:       float32(d.xtalFreq),
			A:         float32(feed.A),
			B:         float32(feed.B),
			C:         float32(feed.C),
			Amplitude: *spread,
		}
		payload, err := params.Encode()
		if err != nil {
			return nil, err
		}
		if pll != PLLA {
			glog.Warningf("si5351@%#x: spread spectrum requested on %v, only PLLA supports it", d.address, pll)
		}
		p.writes = append(p.writes, registerWrite{"spread spectrum", RegSpreadSpectrum, payload[:]})
	}

	feedback := pll.Multisynth()
	pllRegs, integer, err := EncodeRatio(uint16(feed.A), feed.B, feed.C, Div1)
	if err != nil {
		return nil, err
	}
	setBit(&p.mirrors.IntMode, 1<<feedback.Index(), integer)
	p.writes = append(p.writes, registerWrite{"PLL ratio", feedback.BaseAddr(), pllRegs[:]})

	msRegs, integer, err := EncodeRatio(uint16(ms.A), ms.B, ms.C, r)
	if err != nil {
		return nil, err
	}
	setBit(&p.mirrors.IntMode, 1<<synth.Index(), integer)
	p.writes = append(p.writes, registerWrite{"multisynth ratio", synth.BaseAddr(), msRegs[:]})

	setBit(&p.mirrors.PLLSource, clk.bit(), pll == PLLB)
	setBit(&p.mirrors.Enabled, clk.bit(), true)

	p.writes = append(p.writes,
		registerWrite{"clock control", clk.control(), []byte{p.mirrors.control(clk)}},
		registerWrite{"PLL reset", RegPLLReset, []byte{pll.resetBits()}},
		registerWrite{"output enable", RegOutputEnable, []byte{p.mirrors.outputEnable()}},
	)
	return p, nil
}

/*
apply commits the plan's mirrors and sends its writes in order.

A bus failure part way through leaves the chip partly reprogrammed. Nothing is
rolled back; the caller should run Init again before trusting the clock.
*/
func (d *Device) apply(p *frequencyPlan) error {
	d.mirrors = p.mirrors
	for _, w := range p.writes {
		glog.V(1).Infof("si5351@%#x: %v %v: %s", d.address, p.pll, p.clk, w.step)
		if err := d.writeBlock(w.reg, w.data); err != nil {
			glog.Errorf("si5351@%#x: %s failed, %v left in an unknown state: %v", d.address, w.step, p.clk, err)
			return err
		}
	}
	return nil
}

/*
SetFrequency drives clk at freq Hz from pll, optionally with center-spread
dithering of `spread` (0.01 for 1%).

The PLL is run as close to MaxPLLFreq as an even integer output divider
allows and the fraction lives in the PLL with denominator PLLDenominator. The
output can differ from freq by the rounding of those integer divisions.
*/
func (d *Device) SetFrequency(pll PLL, clk ClockOutput, freq uint32, spread *float32) error {
	if d.state != Ready {
		return ErrNotReady
	}
	msDiv, r, err := FindDividers(MaxPLLFreq, freq)
	if err != nil {
		return err
	}
	totalDiv := uint32(msDiv) * r.Denominator()
	mult, num, err := d.FindPLLCoeffs(totalDiv, PLLDenominator, freq)
	if err != nil {
		return err
	}

	p, err := d.plan(pll, clk,
		Fraction{uint32(mult), num, PLLDenominator},
		Fraction{uint32(msDiv), 0, 1},
		r, spread)
	if err != nil {
		return err
	}
	glog.V(1).Infof("si5351@%#x: %v from %v at %d Hz: pll %d+%d/%d, ms %d, %v",
		d.address, clk, pll, freq, mult, num, PLLDenominator, msDiv, r)
	return d.apply(p)
}

/*
SetFrequencyPrecise drives clk at freq Hz using best rational approximations
for both the PLL and output multisynth ratios. This gets well below a
millihertz of error where SetFrequency can be off by hertz. The achieved
frequency is returned.
*/
func (d *Device) SetFrequencyPrecise(pll PLL, clk ClockOutput, freq float64) (float64, error) {
	if d.state != Ready {
		return 0, ErrNotReady
	}
	cfg, err := support.New(float64(d.xtalFreq), 0, freq)
	if err != nil {
		return 0, invalid("%v", err)
	}
	a0, b0, c0 := cfg.PLLRatio()
	a1, b1, c1 := cfg.MultisynthRatio()
	r := OutputDivider(bits.TrailingZeros32(cfg.R()))

	p, err := d.plan(pll, clk, Fraction{a0, b0, c0}, Fraction{a1, b1, c1}, r, nil)
	if err != nil {
		return 0, err
	}
	f := p.output(d.xtalFreq)
	glog.V(1).Infof("si5351@%#x: %v from %v at %.3f Hz: pll %d+%d/%d, ms %d+%d/%d, %v, error %.3g Hz",
		d.address, clk, pll, freq, a0, b0, c0, a1, b1, c1, r, freq-f)
	return f, d.apply(p)
}
