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
	"fmt"
)

var (
	// ErrCommunication wraps any failure reported by the bus.
	ErrCommunication = errors.New("si5351: communication error")
	// ErrInvalidParameter reports a value outside the range the chip accepts.
	ErrInvalidParameter = errors.New("si5351: invalid parameter")
	// ErrTimeout means the device never finished its power-on initialization.
	ErrTimeout = errors.New("si5351: timeout waiting for device")
	// ErrNotReady is returned when an operation needs Init first.
	ErrNotReady = errors.New("si5351: device not initialized")
)

func busError(err error) error {
	return fmt.Errorf("%w: %w", ErrCommunication, err)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}
