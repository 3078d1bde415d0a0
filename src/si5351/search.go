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

import "math/bits"

const (
	// MaxPLLFreq is the PLL ceiling used by SetFrequency.
	MaxPLLFreq = 900_000_000
	// PLLDenominator is the fixed fraction denominator used by SetFrequency.
	PLLDenominator = 1_048_575

	MinPLLMult = 15
	MaxPLLMult = 90

	MinMSDivider = 6
	MaxMSDivider = 1800

	// largest multisynth divider the search aims for before adding R stages
	targetMSDivider = 900
)

/*
FindDividers picks the output stage dividers for a target frequency `freq`
given the highest PLL frequency we are willing to run.

The total divider max_pll/freq is split into a power-of-two R divider and an
even multisynth divider. R is the smallest power of two that brings the
multisynth divider near 900 so the PLL runs as fast as possible, which gives
the finest fractional resolution. The multisynth divider is halved, clamped to
at least 6 and doubled to force it to be even.
*/
func FindDividers(maxPLLFreq, freq uint32) (msDiv uint16, r OutputDivider, err error) {
	if freq == 0 {
		return 0, 0, invalid("zero output frequency")
	}
	total := maxPLLFreq / freq
	if total > 0xffff {
		return 0, 0, invalid("total divider %d does not fit 16 bits", total)
	}

	r, err = minDivider(uint16(total) / targetMSDivider)
	if err != nil {
		return 0, 0, err
	}

	half := total / (2 * r.Denominator())
	msDiv = uint16(half * 2)
	if msDiv < MinMSDivider {
		msDiv = MinMSDivider
	}
	if msDiv > MaxMSDivider {
		return 0, 0, invalid("multisynth divider %d above %d", msDiv, MaxMSDivider)
	}
	return msDiv, r, nil
}

// minDivider returns the smallest R whose ratio is at least `desired`.
func minDivider(desired uint16) (OutputDivider, error) {
	if desired < 1 {
		desired = 1
	}
	n := bits.Len16(desired - 1)
	if n > int(Div128) {
		return 0, invalid("no output divider reaches %d", desired)
	}
	return OutputDivider(n), nil
}

/*
PLLCoeffs finds the feedback ratio mult + num/denom such that a crystal of
`xtal` Hz lands on freq*totalDiv. The fraction is truncated, not rounded.
*/
func PLLCoeffs(xtal, totalDiv, denom, freq uint32) (mult uint8, num uint32, err error) {
	if denom == 0 || denom > MaxDenominator {
		return 0, 0, invalid("PLL denominator %d", denom)
	}
	if xtal == 0 {
		return 0, 0, invalid("zero crystal frequency")
	}
	pll := uint64(freq) * uint64(totalDiv)
	m := pll / uint64(xtal)
	if m > 0xff {
		return 0, 0, invalid("PLL multiplier %d", m)
	}
	num = uint32(pll % uint64(xtal) * uint64(denom) / uint64(xtal))
	return uint8(m), num, nil
}

// FindPLLCoeffs is PLLCoeffs for this device's crystal.
func (d *Device) FindPLLCoeffs(totalDiv, denom, freq uint32) (uint8, uint32, error) {
	return PLLCoeffs(d.xtalFreq, totalDiv, denom, freq)
}

// FindDividers is the package level FindDividers, kept on the device for symmetry
// with FindPLLCoeffs.
func (d *Device) FindDividers(maxPLLFreq, freq uint32) (uint16, OutputDivider, error) {
	return FindDividers(maxPLLFreq, freq)
}
