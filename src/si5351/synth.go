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

import "fmt"

/*
Synth is a fractional divider stage with an 8 byte parameter block.

BaseAddr is the first register of the block. Index is the bit that the unit
owns in the integer-mode mask. Output multisynths use their clock number.
The feedback multisynths use bits 6 and 7 because the chip keeps the FBA_INT
and FBB_INT flags at the MS_INT position of the CLK6 and CLK7 control
registers.
*/
type Synth interface {
	BaseAddr() Register
	Index() uint8
}

// FeedbackMultisynth is the divider in a PLL's feedback path.
type FeedbackMultisynth uint8

const (
	MSNA FeedbackMultisynth = iota
	MSNB
)

func (m FeedbackMultisynth) BaseAddr() Register {
	if m == MSNB {
		return 34
	}
	return 26
}

func (m FeedbackMultisynth) Index() uint8 {
	return 6 + uint8(m&1)
}

func (m FeedbackMultisynth) String() string {
	if m == MSNB {
		return "MSNB"
	}
	return "MSNA"
}

// Multisynth is one of the six fractional output dividers.
type Multisynth uint8

const (
	MS0 Multisynth = iota
	MS1
	MS2
	MS3
	MS4
	MS5
)

func (m Multisynth) valid() bool {
	return m <= MS5
}

func (m Multisynth) BaseAddr() Register {
	return 42 + 8*Register(m)
}

func (m Multisynth) Index() uint8 {
	return uint8(m)
}

func (m Multisynth) String() string {
	return fmt.Sprintf("MS%d", uint8(m))
}

// AuxMultisynth is one of the two integer-only dividers behind CLK6 and CLK7.
// They have a single parameter byte and no fractional part.
type AuxMultisynth uint8

const (
	MS6 AuxMultisynth = iota
	MS7
)

func (m AuxMultisynth) valid() bool {
	return m == MS6 || m == MS7
}

func (m AuxMultisynth) BaseAddr() Register {
	return 90 + Register(m)
}

func (m AuxMultisynth) String() string {
	return fmt.Sprintf("MS%d", 6+uint8(m))
}
