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

package support

import (
	"errors"
	"fmt"
	"math"
)

const (
	// largest 20 bit denominator
	maxDenominator = 1<<20 - 1

	// largest output multisynth ratio the driver will program
	maxMultisynth = 1800

	// fixed point scale used to turn ratios into integers for NearestFraction
	ratioScale = 1_000_000_000_000
)

type Si5351Config struct {
	f0, pll, f                float64 // clock, pll and output frequencies
	a0, b0, c0, a1, b1, c1, r uint32  // chip parameters
	eps                       float64 // error in output frequency (Hz)
}

/*
New computes configuration parameters for the PLL and multi-synth
fractional dividers in a Si5351 clock generator.

The parameter `f0` is the reference frequency (in Hz) for the generator (typically
25 or 27MHz), `pll` is the PLL frequency (in Hz) in the range of 600..900MHz, `f` is the
desired output frequency (in Hz). If `pll` is zero, then a suitable value will be
chosen.

The output will be values such that f0 * (a0 + b0/c0) / (a1 + b1/c1) / r is f to
within as small a tolerance as possible.

An error is returned if the routine cannot find good parameters for the dividers
or if the input is invalid.
*/
func New(f0, pll, f float64) (Si5351Config, error) {
	if f0 < 10e6 || f0 > 27e6 {
		return Si5351Config{}, errors.New("Si5351Config: invalid clock frequency")
	}
	if !(f > 0) {
		return Si5351Config{}, errors.New("Si5351Config: output frequency must be positive")
	}
	if f > 200e6 {
		return Si5351Config{}, errors.New("Si5351Config: output frequency > 200MHz")
	}

	if f > 150e6 {
		pll = 4 * f
	} else if f >= 100e6 {
		pll = 6 * f
	} else if pll == 0 {
		if f < 5e6 {
			pll = 600e6
		} else {
			pll = 800e6
		}
	} else if pll < 600e6 || pll > 900e6 {
		return Si5351Config{}, errors.New("Si5351Config: pll is out of range")
	}

	z := pll / f0
	if z < 15 {
		return Si5351Config{}, errors.New("Si5351Config: can't happen, feedback ratio too small")
	}
	if z > 90 {
		return Si5351Config{}, errors.New("Si5351Config: can't happen, feedback ratio too big")
	}
	r := Si5351Config{
		f0:  f0,
		pll: pll,
		f:   f,
	}
	r.a0, r.b0, r.c0 = splitRatio(z)

	z = f0 * (float64(r.a0) + float64(r.b0)/float64(r.c0)) / f
	if !near(z, 4, 1e-9) && !near(z, 6, 1e-9) && z < 8 {
		return Si5351Config{}, fmt.Errorf("Si5351Config: output multi-synth ratio too small: %.5g", z)
	}
	r.r = 1
	for z/float64(r.r) > maxMultisynth && r.r <= 128 {
		r.r = r.r * 2
	}
	if r.r > 128 {
		return Si5351Config{}, errors.New("Si5351Config: output divider ratio too big, f_out too low")
	}
	r.a1, r.b1, r.c1 = splitRatio(z / float64(r.r))

	r.f = f0 * (float64(r.a0) + float64(r.b0)/float64(r.c0)) /
		(float64(r.a1) + float64(r.b1)/float64(r.c1)) / float64(r.r)
	r.eps = f - r.f
	return r, nil
}

// splitRatio approximates z as a + b/c with c limited to 20 bits.
func splitRatio(z float64) (a, b, c uint32) {
	n, d, _ := NearestFraction(uint64(math.Round(z*ratioScale)), ratioScale, maxDenominator)
	return uint32(n / d), uint32(n % d), uint32(d)
}

// PLLRatio returns the feedback divider a0 + b0/c0.
func (c Si5351Config) PLLRatio() (a, b, d uint32) {
	return c.a0, c.b0, c.c0
}

// MultisynthRatio returns the output divider a1 + b1/c1.
func (c Si5351Config) MultisynthRatio() (a, b, d uint32) {
	return c.a1, c.b1, c.c1
}

// R is the power of two output divider, 1..128.
func (c Si5351Config) R() uint32 {
	return c.r
}

// Frequency is the output frequency the parameters actually produce.
func (c Si5351Config) Frequency() float64 {
	return c.f
}

// PLLFrequency is the nominal PLL frequency that was aimed for.
func (c Si5351Config) PLLFrequency() float64 {
	return c.pll
}

// Eps is the requested frequency minus Frequency, in Hz.
func (c Si5351Config) Eps() float64 {
	return c.eps
}

func (c Si5351Config) String() string {
	return fmt.Sprintf("%.0f*(%d+%d/%d)/(%d+%d/%d)/%d = %.4f Hz",
		c.f0, c.a0, c.b0, c.c0, c.a1, c.b1, c.c1, c.r, c.f)
}

func near(a float64, b float64, eps float64) bool {
	return math.Abs(a-b) <= eps
}
