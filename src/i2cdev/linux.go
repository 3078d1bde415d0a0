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

//go:build linux

package i2cdev

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// from include/uapi/linux/i2c-dev.h and i2c.h
const (
	i2cRDWR = 0x0707
	i2cMRd  = 0x0001
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   unsafe.Pointer
}

type i2cRdwrData struct {
	msgs  unsafe.Pointer
	nmsgs uint32
}

/*
Bus is an I2C adapter exposed by the Linux i2c-dev driver.

Each Tx is a single I2C_RDWR ioctl, so a register address write followed by a
read goes out with a repeated start and nothing else on the bus can get in
between. Bus is safe for concurrent use.
*/
type Bus struct {
	mu   sync.Mutex
	path string
	fd   int
}

// Open opens an adapter such as /dev/i2c-1.
func Open(path string) (*Bus, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("i2cdev: open %s: %w", path, err)
	}
	glog.V(1).Infof("i2cdev: opened %s", path)
	return &Bus{path: path, fd: fd}, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

func (b *Bus) Tx(addr uint16, w, r []byte) error {
	var msgs [2]i2cMsg
	n := 0
	if len(w) > 0 {
		msgs[n] = i2cMsg{addr: addr, len: uint16(len(w)), buf: unsafe.Pointer(&w[0])}
		n++
	}
	if len(r) > 0 {
		msgs[n] = i2cMsg{addr: addr, flags: i2cMRd, len: uint16(len(r)), buf: unsafe.Pointer(&r[0])}
		n++
	}
	if n == 0 {
		return nil
	}
	data := i2cRdwrData{msgs: unsafe.Pointer(&msgs[0]), nmsgs: uint32(n)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return fmt.Errorf("i2cdev: %s is closed", b.path)
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), i2cRDWR, uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(&data)
	if errno != 0 {
		return fmt.Errorf("i2cdev: %s addr %#02x: %w", b.path, addr, errno)
	}
	return nil
}

func (b *Bus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

func (b *Bus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}
