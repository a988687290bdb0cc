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

package pdf

import (
	"bytes"
	"errors"
	"io"
)

// A Parser reads PDF objects from a seekable byte source.
//
// Parsing is sequential: a Parser maintains a current position, which is
// advanced by the Parse* methods.  Use SeekTo to move to a different part of
// the file.  A Parser must not be used concurrently.
type Parser struct {
	r    io.ReaderAt
	size int64

	s          *scanner
	lastOffset int64
	trailers   []Dict

	resolveLength func(Reference) (Object, error)

	// err is set when the position in the file can no longer be trusted,
	// e.g. after a stream whose /Length does not match its data.
	err error
}

// NewParser creates a new Parser which reads from the first size bytes of r.
func NewParser(r io.ReaderAt, size int64) *Parser {
	p := &Parser{
		r:    r,
		size: size,
	}
	p.SeekTo(0)
	return p
}

// SetLengthResolver sets the function used to look up stream lengths which
// are given as indirect references.
func (p *Parser) SetLengthResolver(resolve func(Reference) (Object, error)) {
	p.resolveLength = resolve
	p.s.resolveLength = resolve
}

// Size returns the total size of the input.
func (p *Parser) Size() int64 {
	return p.size
}

// SeekTo moves the parser to the given file offset.  This also clears
// the error state caused by malformed streams.
func (p *Parser) SeekTo(pos int64) {
	if pos < 0 {
		pos = 0
	} else if pos > p.size {
		pos = p.size
	}
	p.s = newScanner(p.r, pos, p.size, p.resolveLength)
	p.err = nil
}

// Pos returns the current file offset.
func (p *Parser) Pos() int64 {
	return p.s.filePos()
}

// LastOffset returns the file offset of the object most recently returned
// by ParseNextObject.
func (p *Parser) LastOffset() int64 {
	return p.lastOffset
}

// Trailers returns the trailer dictionaries encountered by ParseNextObject,
// in file order.
func (p *Parser) Trailers() []Dict {
	return p.trailers
}

// ParseHeader reads the "%PDF-M.m" header at the start of the file and
// returns the version string, e.g. "1.7".  Up to 1024 bytes of junk before
// the header are tolerated.  On success, the parser is positioned after the
// header line.
func (p *Parser) ParseHeader() (string, error) {
	p.SeekTo(0)
	buf, err := p.s.Peek(scannerBufSize)
	if err != nil {
		return "", err
	}
	idx := bytes.Index(buf, []byte("%PDF-"))
	if idx < 0 {
		return "", &MalformedFileError{Err: errNoHeader}
	}
	rest := buf[idx+5:]
	n := 0
	for n < len(rest) && (rest[n] >= '0' && rest[n] <= '9' || rest[n] == '.') {
		n++
	}
	version := string(rest[:n])
	if _, err := ParseVersion(version); err != nil {
		return "", &MalformedFileError{Pos: int64(idx + 5), Err: err}
	}
	p.s.pos = idx + 5 + n

	err = p.s.SkipWhiteSpace()
	if err != nil {
		return "", err
	}
	return version, nil
}

// ParseNextObject reads the next indirect object "n g obj ... endobj",
// starting at the current position.  Cross-reference sections, trailers
// and startxref lines between objects are skipped; trailer dictionaries
// are recorded and can be retrieved using Trailers.
//
// At the end of input, io.EOF is returned.  A stream whose length does not
// match its "endstream" keyword leaves the parser in an error state, and
// all subsequent calls return the same error until SeekTo is called.
func (p *Parser) ParseNextObject() (Reference, Object, error) {
	if p.err != nil {
		return Reference{}, nil, p.err
	}

	s := p.s
	for {
		err := s.SkipWhiteSpace()
		if err != nil {
			return Reference{}, nil, err
		}
		buf, err := s.Peek(9)
		if err != nil {
			return Reference{}, nil, err
		}
		if len(buf) == 0 {
			return Reference{}, nil, io.EOF
		}

		isXRef := bytes.HasPrefix(buf, []byte("xref"))
		isTrailer := bytes.HasPrefix(buf, []byte("trailer"))
		switch {
		case isXRef || isTrailer:
			if isXRef {
				err = s.SkipAfter("trailer")
			} else {
				err = s.SkipString("trailer")
			}
			if err != nil {
				return Reference{}, nil, err
			}
			err = s.SkipWhiteSpace()
			if err != nil {
				return Reference{}, nil, err
			}
			trailer, err := s.ReadDict()
			if err != nil {
				return Reference{}, nil, err
			}
			p.trailers = append(p.trailers, trailer)
			continue
		case bytes.HasPrefix(buf, []byte("startxref")):
			s.pos += 9
			err = s.SkipWhiteSpace()
			if err != nil {
				return Reference{}, nil, err
			}
			_, err = s.ReadInteger()
			if err != nil && err != io.EOF {
				return Reference{}, nil, err
			}
			continue
		}
		break
	}

	p.lastOffset = s.filePos()
	ref, obj, err := s.ReadIndirectObject()
	if errors.Is(err, ErrEndstream) {
		p.err = err
	}
	if err == io.EOF {
		err = &MalformedFileError{Pos: p.lastOffset, Err: io.ErrUnexpectedEOF}
	}
	if err != nil {
		return Reference{}, nil, err
	}
	return ref, obj, nil
}

// ParseObjectAt reads the indirect object starting at file offset pos.
func (p *Parser) ParseObjectAt(pos int64) (Reference, Object, error) {
	p.SeekTo(pos)
	p.lastOffset = pos
	ref, obj, err := p.s.ReadIndirectObject()
	if err == io.EOF {
		err = &MalformedFileError{Pos: pos, Err: io.ErrUnexpectedEOF}
	}
	return ref, obj, err
}

// Resync skips forward past the next "endobj" keyword, so that parsing
// can continue after a malformed object.
func (p *Parser) Resync() error {
	if p.err != nil {
		return p.err
	}
	return p.s.SkipAfter("endobj")
}

// ParseObject parses a single direct object from data.
// Indirect references in the data are returned as Reference objects.
func ParseObject(data []byte) (Object, error) {
	s := newBytesScanner(data)
	err := s.SkipWhiteSpace()
	if err != nil {
		return nil, err
	}
	return s.ReadObject()
}
