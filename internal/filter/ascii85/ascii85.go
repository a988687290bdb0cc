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

// Package ascii85 implements the ASCII85Decode filter.
//
// Groups of four bytes are encoded as five characters in the range '!'
// to 'u', an all-zero group may be abbreviated as 'z', and the data ends
// with "~>".  A partial final group of k bytes is encoded as k+1
// characters; when decoding, it is padded with 'u' and the extra output
// bytes are dropped.
package ascii85

import (
	"bufio"
	"errors"
	"io"
)

var (
	errInvalidChar = errors.New("ascii85: invalid character")
	errBadEnd      = errors.New("ascii85: invalid end marker")
	errShortGroup  = errors.New("ascii85: final group too short")
)

// Decode returns a ReadCloser which decodes ASCII85 data read from r.
// End of input without a "~>" marker is treated like the marker.
func Decode(r io.Reader) io.ReadCloser {
	return &reader{r: bufio.NewReader(r)}
}

type reader struct {
	r   *bufio.Reader
	err error

	v uint32
	k int

	out     [4]byte
	pending []byte
}

func (r *reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.pending) > 0 {
			m := copy(p[n:], r.pending)
			r.pending = r.pending[m:]
			n += m
			continue
		}
		if r.err != nil {
			break
		}
		r.step()
	}

	if n > 0 {
		return n, nil
	}
	return 0, r.err
}

// step consumes one input character.
func (r *reader) step() {
	c, err := r.r.ReadByte()
	if err == io.EOF {
		r.finish()
		return
	} else if err != nil {
		r.err = err
		return
	}

	switch {
	case c >= '!' && c <= 'u':
		r.v = r.v*85 + uint32(c-'!')
		r.k++
		if r.k == 5 {
			r.emit(4)
			r.v = 0
			r.k = 0
		}
	case c == 'z' && r.k == 0:
		r.out = [4]byte{}
		r.pending = r.out[:]
	case c == '~':
		next, err := r.r.ReadByte()
		if err == nil && next != '>' {
			r.err = errBadEnd
			return
		}
		r.finish()
	case c == 0 || c == 9 || c == 10 || c == 12 || c == 13 || c == 32:
		// white space is ignored
	default:
		r.err = errInvalidChar
	}
}

// finish flushes a partial final group and marks the end of data.
func (r *reader) finish() {
	if r.k == 1 {
		r.err = errShortGroup
		return
	}
	if r.k > 1 {
		k := r.k
		for ; r.k < 5; r.k++ {
			r.v = r.v*85 + 84
		}
		r.emit(k - 1)
	}
	r.err = io.EOF
}

func (r *reader) emit(n int) {
	r.out[0] = byte(r.v >> 24)
	r.out[1] = byte(r.v >> 16)
	r.out[2] = byte(r.v >> 8)
	r.out[3] = byte(r.v)
	r.pending = r.out[:n]
}

func (r *reader) Close() error {
	if r.err == nil || r.err == io.EOF {
		return nil
	}
	return r.err
}

const lineWidth = 75

// Encode returns a WriteCloser which writes the ASCII85 encoding of its
// input to w.  Close writes the "~>" marker and closes w.
func Encode(w io.WriteCloser) io.WriteCloser {
	return &writer{w: w}
}

type writer struct {
	w io.WriteCloser

	v uint32
	k int

	col int
	out []byte
}

func (w *writer) Write(p []byte) (int, error) {
	for _, b := range p {
		w.v = w.v<<8 | uint32(b)
		w.k++
		if w.k < 4 {
			continue
		}
		if w.v == 0 {
			w.put('z')
		} else {
			w.putGroup(w.v, 5)
		}
		w.v = 0
		w.k = 0
	}

	if len(w.out) >= 4096 {
		_, err := w.w.Write(w.out)
		w.out = w.out[:0]
		if err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (w *writer) putGroup(v uint32, n int) {
	var c [5]byte
	for i := 4; i >= 0; i-- {
		c[i] = byte(v%85) + '!'
		v /= 85
	}
	for _, x := range c[:n] {
		w.put(x)
	}
}

func (w *writer) put(c byte) {
	w.out = append(w.out, c)
	w.col++
	if w.col == lineWidth {
		w.out = append(w.out, '\n')
		w.col = 0
	}
}

func (w *writer) Close() error {
	if w.k > 0 {
		w.putGroup(w.v<<(8*(4-w.k)), w.k+1)
		w.v = 0
		w.k = 0
	}
	w.out = append(w.out, '~', '>')
	_, err := w.w.Write(w.out)
	w.out = w.out[:0]
	if err != nil {
		return err
	}
	return w.w.Close()
}
