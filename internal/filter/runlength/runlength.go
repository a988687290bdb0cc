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

// Package runlength implements the RunLengthDecode filter.
//
// Each run starts with a length byte L.  For L in 0..127 the following
// L+1 bytes are copied literally, for L in 129..255 the following single
// byte is repeated 257-L times, and L = 128 marks the end of data.
package runlength

import (
	"bufio"
	"io"
)

const eod = 128

// chunkSize is the amount of data the encoder buffers before
// emitting runs.
const chunkSize = 4096

// Decode returns a new ReadCloser which decodes data in run-length format.
// A missing end-of-data marker at the end of input is tolerated.
func Decode(r io.Reader) io.ReadCloser {
	return &reader{br: bufio.NewReader(r)}
}

type reader struct {
	br  *bufio.Reader
	err error

	literal bool
	count   int
	value   byte
}

// Read implements the io.Reader interface.
func (r *reader) Read(p []byte) (n int, err error) {
	for len(p) > 0 && r.err == nil {
		if r.count == 0 {
			r.nextRun()
			continue
		}

		k := min(r.count, len(p))
		if r.literal {
			k, err = io.ReadFull(r.br, p[:k])
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			r.err = err
		} else {
			for i := range k {
				p[i] = r.value
			}
		}
		n += k
		r.count -= k
		p = p[k:]
	}

	if n > 0 && r.err == io.EOF {
		return n, nil
	}
	return n, r.err
}

func (r *reader) nextRun() {
	length, err := r.br.ReadByte()
	if err != nil {
		r.err = err
		return
	}

	switch {
	case length == eod:
		r.err = io.EOF
	case length < eod:
		r.literal = true
		r.count = int(length) + 1
	default:
		b, err := r.br.ReadByte()
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			r.err = err
			return
		}
		r.literal = false
		r.value = b
		r.count = 257 - int(length)
	}
}

// Close is a no-op.
func (r *reader) Close() error {
	return nil
}

// Encode returns a new WriteCloser which encodes data in run-length format.
// The returned WriteCloser must be closed to flush all data and to write
// the end-of-data marker.  Close also closes w.
func Encode(w io.WriteCloser) io.WriteCloser {
	return &writer{w: w}
}

type writer struct {
	w   io.WriteCloser
	buf []byte
	out []byte
}

// Write implements the io.Writer interface.
func (w *writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if len(w.buf) >= chunkSize {
		if err := w.flush(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close flushes the remaining data, writes the EOD marker and closes
// the underlying writer.
func (w *writer) Close() error {
	err := w.flush()
	if err != nil {
		return err
	}
	_, err = w.w.Write([]byte{eod})
	if err != nil {
		return err
	}
	return w.w.Close()
}

func (w *writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	w.out = AppendRuns(w.out[:0], w.buf)
	w.buf = w.buf[:0]
	_, err := w.w.Write(w.out)
	return err
}

// AppendRuns appends the run-length encoding of src to dst, without
// an end-of-data marker.
func AppendRuns(dst, src []byte) []byte {
	for i := 0; i < len(src); {
		run := 1
		for i+run < len(src) && run < 128 && src[i+run] == src[i] {
			run++
		}
		if run > 1 {
			dst = append(dst, byte(257-run), src[i])
			i += run
			continue
		}

		j := i + 1
		for j < len(src) && j-i < 128 && (j+1 >= len(src) || src[j] != src[j+1]) {
			j++
		}
		dst = append(dst, byte(j-i-1))
		dst = append(dst, src[i:j]...)
		i = j
	}
	return dst
}
