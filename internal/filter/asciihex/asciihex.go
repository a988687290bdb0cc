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

// Package asciihex implements the ASCIIHexDecode filter.
package asciihex

import (
	"bufio"
	"fmt"
	"io"
)

// Decode decodes data that has been encoded in ASCII hexadecimal form.
// White space is ignored and '>' marks the end of data.  If the data has
// an odd number of digits, the final digit is taken as the high nibble of
// the last byte.  End of input without a '>' marker is treated like the
// marker.
func Decode(r io.Reader) io.ReadCloser {
	return &reader{r: bufio.NewReader(r)}
}

type reader struct {
	r   *bufio.Reader
	err error

	haveHigh bool
	high     byte
}

func (r *reader) Read(p []byte) (n int, err error) {
	for n < len(p) && r.err == nil {
		c, err := r.r.ReadByte()
		if err == io.EOF {
			c = '>'
		} else if err != nil {
			r.err = err
			break
		}

		var b byte
		switch {
		case c >= '0' && c <= '9':
			b = c - '0'
		case c >= 'A' && c <= 'F':
			b = c - 'A' + 10
		case c >= 'a' && c <= 'f':
			b = c - 'a' + 10
		case c == 0 || c == 9 || c == 10 || c == 12 || c == 13 || c == 32:
			continue
		case c == '>':
			if r.haveHigh {
				p[n] = r.high << 4
				n++
				r.haveHigh = false
			}
			r.err = io.EOF
			continue
		default:
			r.err = fmt.Errorf("invalid hex character %q", c)
			continue
		}

		if r.haveHigh {
			p[n] = r.high<<4 | b
			n++
			r.haveHigh = false
		} else {
			r.high = b
			r.haveHigh = true
		}
	}

	if n > 0 && r.err == io.EOF {
		return n, nil
	}
	return n, r.err
}

func (r *reader) Close() error {
	if r.err == nil || r.err == io.EOF {
		return nil
	}
	return r.err
}

const lineWidth = 64

// Encode returns a WriteCloser which writes its input in ASCII hexadecimal
// form, broken into lines, followed by the '>' marker.  Close also closes w.
func Encode(w io.WriteCloser) io.WriteCloser {
	return &writer{w: w, buf: make([]byte, 0, lineWidth+2)}
}

type writer struct {
	w   io.WriteCloser
	buf []byte
}

func (w *writer) Write(p []byte) (int, error) {
	const digits = "0123456789ABCDEF"
	for i, c := range p {
		w.buf = append(w.buf, digits[c>>4], digits[c&15])
		if len(w.buf) >= lineWidth {
			w.buf = append(w.buf, '\n')
			if _, err := w.w.Write(w.buf); err != nil {
				return i, err
			}
			w.buf = w.buf[:0]
		}
	}
	return len(p), nil
}

func (w *writer) Close() error {
	w.buf = append(w.buf, '>')
	if _, err := w.w.Write(w.buf); err != nil {
		return err
	}
	return w.w.Close()
}
