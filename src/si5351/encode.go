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

// MaxDenominator is the largest value a 20 bit numerator or denominator can hold.
const MaxDenominator = 0xfffff

// Ratio holds the three packed parameters of a divider a + b/c.
type Ratio struct {
	P1, P2, P3 uint32
}

/*
EncodeRatio packs the divider `a + b/c` into the 8 byte parameter block used
by both the feedback and the output multisynths. The output divider `r` is
only meaningful for output multisynths; feedback multisynths pass Div1.

The returned flag is true when `b` is zero, which means the unit can run in
integer mode. The caller owns the integer-mode mask and must update it.

The chip wants
	P1 = 128*a + floor(128*b/c) - 512
	P2 = 128*b - c*floor(128*b/c)
	P3 = c
laid out big-endian with the top bits of P3 and P2 sharing a byte.
*/
func EncodeRatio(a uint16, b, c uint32, r OutputDivider) (payload [8]byte, integer bool, err error) {
	p, err := ratioParams(a, b, c)
	if err != nil {
		return payload, false, err
	}
	payload = [8]byte{
		byte(p.P3 >> 8),
		byte(p.P3),
		byte((p.P1>>16)&0x03) | r.Bits(),
		byte(p.P1 >> 8),
		byte(p.P1),
		byte((p.P3>>12)&0xf0 | (p.P2>>16)&0x0f),
		byte(p.P2 >> 8),
		byte(p.P2),
	}
	return payload, b == 0, nil
}

func ratioParams(a uint16, b, c uint32) (Ratio, error) {
	if c == 0 {
		return Ratio{}, invalid("zero denominator")
	}
	if b > MaxDenominator {
		return Ratio{}, invalid("numerator %d exceeds 20 bits", b)
	}
	if c > MaxDenominator {
		return Ratio{}, invalid("denominator %d exceeds 20 bits", c)
	}

	if b == 0 {
		return Ratio{
			P1: 128*uint32(a) - 512,
			P2: 0,
			P3: 1,
		}, nil
	}
	ratio := uint32(128 * uint64(b) / uint64(c))
	return Ratio{
		P1: 128*uint32(a) + ratio - 512,
		P2: 128*b - c*ratio,
		P3: c,
	}, nil
}
