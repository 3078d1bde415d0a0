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

/*
Package i2cdev provides buses that satisfy tinygo.org/x/drivers.I2C outside
of TinyGo: a Linux /dev/i2c-N bus and a Recorder that keeps a register image
of every device it is asked to talk to.
*/
package i2cdev

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
)

// Transaction is one Tx as seen by a Recorder.
type Transaction struct {
	Addr  uint16
	Reg   uint8
	Write []byte // data after the register byte
	Read  int    // number of bytes read back
}

func (t Transaction) String() string {
	if len(t.Write) > 0 {
		return fmt.Sprintf("%#02x w %3d: % x", t.Addr, t.Reg, t.Write)
	}
	return fmt.Sprintf("%#02x r %3d: %d bytes", t.Addr, t.Reg, t.Read)
}

/*
Recorder is a bus with an auto-incrementing 8 bit register file behind every
address. Writes land in the image and reads come back from it, so a driver can
be run end to end without hardware. Every transaction is kept in Log.
*/
type Recorder struct {
	images map[uint16]*[256]byte
	Log    []Transaction
}

func NewRecorder() *Recorder {
	return &Recorder{images: map[uint16]*[256]byte{}}
}

func (r *Recorder) image(addr uint16) *[256]byte {
	img, ok := r.images[addr]
	if !ok {
		img = new([256]byte)
		r.images[addr] = img
	}
	return img
}

func (r *Recorder) Tx(addr uint16, w, rd []byte) error {
	if len(w) == 0 {
		return errors.New("i2cdev: transaction without register address")
	}
	img := r.image(addr)
	reg := w[0]
	t := Transaction{Addr: addr, Reg: reg, Read: len(rd)}
	if data := w[1:]; len(data) > 0 {
		if int(reg)+len(data) > len(img) {
			return fmt.Errorf("i2cdev: write of %d bytes at %d runs off the register file", len(data), reg)
		}
		copy(img[reg:], data)
		t.Write = append([]byte(nil), data...)
	}
	if len(rd) > 0 {
		if int(reg)+len(rd) > len(img) {
			return fmt.Errorf("i2cdev: read of %d bytes at %d runs off the register file", len(rd), reg)
		}
		copy(rd, img[reg:])
	}
	glog.V(3).Infof("i2cdev: %v", t)
	r.Log = append(r.Log, t)
	return nil
}

func (r *Recorder) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return r.Tx(uint16(addr), []byte{reg}, buf)
}

func (r *Recorder) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return r.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

// Image returns a copy of the register file for addr.
func (r *Recorder) Image(addr uint16) [256]byte {
	return *r.image(addr)
}

// Poke sets registers directly without logging a transaction.
func (r *Recorder) Poke(addr uint16, reg uint8, data ...byte) {
	copy(r.image(addr)[reg:], data)
}

// Writes returns only the logged transactions that carried data.
func (r *Recorder) Writes() []Transaction {
	var out []Transaction
	for _, t := range r.Log {
		if len(t.Write) > 0 {
			out = append(out, t)
		}
	}
	return out
}

/*
Dump prints registers first..last of addr sixteen to a line, each line
prefixed with the first register number in decimal, matching the register
numbering in the Si5351 data sheet.
*/
func (r *Recorder) Dump(out io.Writer, addr uint16, first, last uint8) error {
	img := r.image(addr)
	for line := int(first) &^ 0xf; line <= int(last); line += 16 {
		if _, err := fmt.Fprintf(out, "%3d:", line); err != nil {
			return err
		}
		for i := line; i < line+16 && i <= int(last); i++ {
			if i < int(first) {
				fmt.Fprint(out, "   ")
				continue
			}
			fmt.Fprintf(out, " %02x", img[i])
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return err
		}
	}
	return nil
}
