// seehuhn.de/go/pdfscrub - forensic scanning and cleaning of PDF files
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package lzw implements the LZW compression scheme used by the LZWDecode
// filter.
//
// Codes are between 9 and 12 bits wide and are packed most significant bit
// first.  Code 256 clears the string table and code 257 marks the end of
// data.  With "early change" enabled, which is the default for PDF, the
// code width increases one code earlier than in the classic algorithm.
package lzw

import (
	"bufio"
	"errors"
	"io"
)

const (
	clearCode = 256
	eodCode   = 257
	firstCode = 258

	minWidth = 9
	maxWidth = 12
	maxCodes = 1 << maxWidth
)

var errInvalidCode = errors.New("lzw: invalid code")

// NewReader returns a ReadCloser which decompresses LZW data from r.
// End of input without an EOD code is accepted.
func NewReader(r io.Reader, earlyChange bool) io.ReadCloser {
	res := &reader{
		r:     bufio.NewReader(r),
		width: minWidth,
		next:  firstCode,
	}
	if earlyChange {
		res.early = 1
	}
	for i := range 256 {
		res.table[i] = []byte{byte(i)}
	}
	return res
}

type reader struct {
	r     *bufio.Reader
	early int

	bits  uint32
	nBits int

	table [maxCodes][]byte
	next  int
	width int
	prev  []byte

	pending []byte
	err     error
}

func (r *reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.pending) > 0 {
			k := copy(p[n:], r.pending)
			r.pending = r.pending[k:]
			n += k
			continue
		}
		if r.err != nil {
			break
		}
		r.decodeCode()
	}

	if n > 0 {
		return n, nil
	}
	return 0, r.err
}

func (r *reader) readCode() (int, error) {
	for r.nBits < r.width {
		c, err := r.r.ReadByte()
		if err != nil {
			return 0, err
		}
		r.bits = r.bits<<8 | uint32(c)
		r.nBits += 8
	}
	r.nBits -= r.width
	code := int(r.bits>>r.nBits) & (1<<r.width - 1)
	r.bits &= 1<<r.nBits - 1
	return code, nil
}

func (r *reader) decodeCode() {
	code, err := r.readCode()
	if err == io.EOF {
		r.err = io.EOF
		return
	} else if err != nil {
		r.err = err
		return
	}

	switch {
	case code == clearCode:
		r.next = firstCode
		r.width = minWidth
		r.prev = nil
		return
	case code == eodCode:
		r.err = io.EOF
		return
	}

	var entry []byte
	switch {
	case r.prev == nil:
		if code >= 256 {
			r.err = errInvalidCode
			return
		}
		entry = r.table[code]
	case code < r.next:
		entry = r.table[code]
		r.add(r.prev, entry[0])
	case code == r.next:
		r.add(r.prev, r.prev[0])
		entry = r.table[code]
	default:
		r.err = errInvalidCode
		return
	}

	r.pending = entry
	r.prev = entry
}

func (r *reader) add(prefix []byte, c byte) {
	if r.next >= maxCodes {
		return
	}
	entry := make([]byte, len(prefix)+1)
	copy(entry, prefix)
	entry[len(prefix)] = c
	r.table[r.next] = entry
	r.next++
	if r.next+r.early >= 1<<r.width && r.width < maxWidth {
		r.width++
	}
}

func (r *reader) Close() error {
	if r.err == nil || r.err == io.EOF {
		return nil
	}
	return r.err
}

// NewWriter returns a WriteCloser which compresses data using LZW and
// writes the result to w.  The compressed data starts with a clear code
// and ends with an EOD code, which is written by Close.  Close does not
// close w.
func NewWriter(w io.Writer, earlyChange bool) io.WriteCloser {
	res := &writer{
		w:    w,
		dict: make(map[uint32]int),
	}
	if earlyChange {
		res.early = 1
	}
	res.reset()
	res.emit(clearCode)
	return res
}

type writer struct {
	w     io.Writer
	early int

	dict  map[uint32]int
	next  int
	width int
	cur   int // code for the current prefix, or -1

	bits  uint32
	nBits int
	out   []byte
	err   error
}

func (w *writer) reset() {
	clear(w.dict)
	w.next = firstCode
	w.width = minWidth
	w.cur = -1
}

func (w *writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	for _, c := range p {
		if w.cur < 0 {
			w.cur = int(c)
			continue
		}
		key := uint32(w.cur)<<8 | uint32(c)
		if code, ok := w.dict[key]; ok {
			w.cur = code
			continue
		}

		w.emit(w.cur)
		w.dict[key] = w.next
		w.grow()
		if w.next == maxCodes {
			w.emit(clearCode)
			w.reset()
		}
		w.cur = int(c)
	}

	if len(w.out) > 4096 {
		w.flush()
	}
	return len(p), w.err
}

// grow accounts for a new table entry and widens the codes when
// the decoder will do so.
func (w *writer) grow() {
	w.next++
	if w.next-1+w.early >= 1<<w.width && w.width < maxWidth {
		w.width++
	}
}

func (w *writer) emit(code int) {
	w.bits = w.bits<<w.width | uint32(code)
	w.nBits += w.width
	for w.nBits >= 8 {
		w.nBits -= 8
		w.out = append(w.out, byte(w.bits>>w.nBits))
	}
	w.bits &= 1<<w.nBits - 1
}

func (w *writer) flush() {
	if w.err != nil || len(w.out) == 0 {
		return
	}
	_, w.err = w.w.Write(w.out)
	w.out = w.out[:0]
}

func (w *writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.cur >= 0 {
		w.emit(w.cur)
		w.grow()
	}
	w.emit(eodCode)
	if w.nBits > 0 {
		w.out = append(w.out, byte(w.bits<<(8-w.nBits)))
		w.bits = 0
		w.nBits = 0
	}
	w.flush()
	return w.err
}
