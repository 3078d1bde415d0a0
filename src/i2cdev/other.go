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

//go:build !linux

package i2cdev

import (
	"errors"
	"fmt"
)

var errUnsupported = errors.New("i2cdev: i2c-dev is only available on linux")

// Bus is not available on this platform. Use a Recorder.
type Bus struct{}

func Open(path string) (*Bus, error) {
	return nil, fmt.Errorf("open %s: %w", path, errUnsupported)
}

func (b *Bus) Close() error { return nil }

func (b *Bus) Tx(addr uint16, w, r []byte) error { return errUnsupported }

func (b *Bus) ReadRegister(addr uint8, reg uint8, buf []byte) error { return errUnsupported }

func (b *Bus) WriteRegister(addr uint8, reg uint8, buf []byte) error { return errUnsupported }
