// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package wire implements the FleetFS wire codec: a 32-bit
// little-endian length prefix followed by a self-describing
// tagged-union payload, per spec.md §4.1 and §6. All numeric fields
// are little-endian, strings are UTF-8 without terminators, and
// optional scalars are carried as present/absent wrappers.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/util"
)

// Encoder accumulates a tagged-union payload in little-endian,
// length-delimited form.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with capacity pre-reserved for size
// bytes of payload, to avoid reallocation for common message sizes.
func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size)}
}

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) PutUint8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint8(1)
	} else {
		e.PutUint8(0)
	}
}

func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutInt32(v int32) { e.PutUint32(uint32(v)) }

func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutInt64(v int64) { e.PutUint64(uint64(v)) }

func (e *Encoder) PutFloat64(v float64) { e.PutUint64(math.Float64bits(v)) }

// PutBytes writes a u32 length prefix followed by raw bytes.
func (e *Encoder) PutBytes(v []byte) {
	e.PutUint32(uint32(len(v)))
	e.buf = append(e.buf, v...)
}

// PutString writes a UTF-8 string the same way as PutBytes.
func (e *Encoder) PutString(v string) {
	e.PutUint32(uint32(len(v)))
	e.buf = append(e.buf, v...)
}

// PutOptUint64 writes the present/absent wrapper spec.md §4.1 requires
// for optional scalars: one presence byte, followed by the value when
// present.
func (e *Encoder) PutOptUint64(v *uint64) {
	if v == nil {
		e.PutBool(false)
		return
	}
	e.PutBool(true)
	e.PutUint64(*v)
}

func (e *Encoder) PutOptUint32(v *uint32) {
	if v == nil {
		e.PutBool(false)
		return
	}
	e.PutBool(true)
	e.PutUint32(*v)
}

func (e *Encoder) PutErrorCode(c errorcode.ErrorCode) { e.PutUint8(uint8(c)) }

// Decoder reads primitives off a tagged-union payload in the same
// order an Encoder wrote them. Any read past the end of the buffer is
// reported via Err rather than a panic, so the receiver can report
// BadRequest instead of crashing, per spec.md §4.1.
type Decoder struct {
	buf []byte
	off int
	err error
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

func (d *Decoder) Err() error { return d.err }

func (d *Decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if d.off+n > len(d.buf) {
		d.err = errorcode.BadRequest
		return false
	}
	return true
}

func (d *Decoder) Uint8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *Decoder) Bool() bool { return d.Uint8() != 0 }

func (d *Decoder) Uint32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *Decoder) Int32() int32 { return int32(d.Uint32()) }

func (d *Decoder) Uint64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *Decoder) Int64() int64 { return int64(d.Uint64()) }

func (d *Decoder) Float64() float64 { return math.Float64frombits(d.Uint64()) }

func (d *Decoder) Bytes() []byte {
	n := d.Uint32()
	if !d.need(int(n)) {
		return nil
	}
	v := make([]byte, n)
	copy(v, d.buf[d.off:d.off+int(n)])
	d.off += int(n)
	return v
}

// String decodes the same length-prefixed payload Bytes does, but
// skips the second copy string(b) would otherwise make: Bytes
// already returned a freshly allocated slice that nothing else in
// the decoder holds onto, so it's safe to reinterpret in place.
func (d *Decoder) String() string {
	b := d.Bytes()
	if b == nil {
		return ""
	}
	return util.BytesToString(b)
}

func (d *Decoder) OptUint64() *uint64 {
	if !d.Bool() {
		return nil
	}
	v := d.Uint64()
	return &v
}

func (d *Decoder) OptUint32() *uint32 {
	if !d.Bool() {
		return nil
	}
	v := d.Uint32()
	return &v
}

func (d *Decoder) ErrorCode() errorcode.ErrorCode { return errorcode.ErrorCode(d.Uint8()) }
