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
	"fmt"
	"io"
	"strconv"
)

const (
	scannerBufSize = 1024

	// maxNesting limits how deeply arrays and dictionaries may be nested
	// inside a single object.
	maxNesting = 512

	maxNumeral = 64   // bytes in a numeric token
	maxName    = 4096 // bytes in a decoded name
)

type scanner struct {
	r         io.Reader
	buf       []byte
	used, pos int

	base  int64 // file offset of the first byte of r
	end   int64 // file offset one past the last byte of r
	total int64 // number of bytes dropped from the start of buf
	eof   bool  // r is exhausted

	// resolveLength is used for /Length entries which are indirect
	// references.  If nil, such streams cannot be read.
	resolveLength func(Reference) (Object, error)

	nesting int
}

// newScanner returns a scanner for the bytes of r between file offsets
// pos and end.
func newScanner(r io.ReaderAt, pos, end int64, resolveLength func(Reference) (Object, error)) *scanner {
	return &scanner{
		r:             io.NewSectionReader(r, pos, end-pos),
		buf:           make([]byte, scannerBufSize),
		base:          pos,
		end:           end,
		resolveLength: resolveLength,
	}
}

func newBytesScanner(data []byte) *scanner {
	return newScanner(bytes.NewReader(data), 0, int64(len(data)), nil)
}

func (s *scanner) filePos() int64 {
	return s.base + s.total + int64(s.pos)
}

// remaining returns the number of input bytes after the current position.
func (s *scanner) remaining() int64 {
	return s.end - s.filePos()
}

func (s *scanner) malformed(err error) *MalformedFileError {
	return &MalformedFileError{Pos: s.filePos(), Err: err}
}

// ReadIndirectObject reads an object of the form "n g obj ... endobj".
func (s *scanner) ReadIndirectObject() (Reference, Object, error) {
	// Some files point the xref entries at the end of the previous line.
	// Try to fix this up by skipping any leading white space.
	err := s.SkipWhiteSpace()
	if err != nil {
		return Reference{}, nil, err
	}

	number, err := s.ReadInteger()
	if err != nil {
		return Reference{}, nil, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return Reference{}, nil, err
	}
	generation, err := s.ReadInteger()
	if err != nil {
		return Reference{}, nil, err
	}
	if number < 0 || number > 0xFFFFFFFF || generation < 0 || generation > 0xFFFF {
		return Reference{}, nil, s.malformed(
			fmt.Errorf("invalid object ID %d %d", number, generation))
	}
	ref := NewReference(uint32(number), uint16(generation))

	err = s.SkipWhiteSpace()
	if err != nil {
		return ref, nil, err
	}
	err = s.SkipString("obj")
	if err != nil {
		return ref, nil, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return ref, nil, err
	}

	obj, err := s.ReadObject()
	if err != nil {
		return ref, nil, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return ref, nil, err
	}

	err = s.SkipString("endobj")
	if err != nil {
		return ref, nil, err
	}

	return ref, obj, nil
}

// ReadObject reads the next object from the input.  Integers which are
// immediately followed by "<gen> R" are returned as References.
func (s *scanner) ReadObject() (Object, error) {
	switch {
	case s.hasKeyword("null"):
		s.pos += 4
		return nil, nil
	case s.hasKeyword("true"):
		s.pos += 4
		return Bool(true), nil
	case s.hasKeyword("false"):
		s.pos += 5
		return Bool(false), nil
	}

	buf, err := s.Peek(2)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, s.malformed(io.ErrUnexpectedEOF)
	}

	switch {
	case buf[0] == '/':
		return s.ReadName()
	case buf[0] >= '0' && buf[0] <= '9', buf[0] == '+', buf[0] == '-', buf[0] == '.':
		obj, err := s.ReadNumber()
		if err != nil {
			return nil, err
		}
		if x, isInt := obj.(Integer); isInt && x >= 0 && x <= 0xFFFFFFFF {
			ref, ok, err := s.tryReference(x)
			if err != nil {
				return nil, err
			}
			if ok {
				return ref, nil
			}
		}
		return obj, nil
	case bytes.HasPrefix(buf, []byte("<<")):
		dict, err := s.ReadDict()
		if err != nil {
			return nil, err
		}

		// check whether this is the start of a stream
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		next, err := s.Peek(6) // len("stream") == 6
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(next, []byte("stream")) {
			return dict, nil
		}
		return s.ReadStreamData(dict)
	case buf[0] == '(':
		s.pos++
		return s.ReadQuotedString()
	case buf[0] == '<':
		s.pos++
		return s.ReadHexString()
	case buf[0] == '[':
		s.pos++
		return s.ReadArray()
	}
	return nil, s.malformed(fmt.Errorf("unexpected input %q", string(buf)))
}

// hasKeyword checks whether the input starts with the keyword kw, followed
// by white space, a delimiter, or the end of input.  No input is consumed.
func (s *scanner) hasKeyword(kw string) bool {
	buf, err := s.Peek(len(kw) + 1)
	if err != nil || !bytes.HasPrefix(buf, []byte(kw)) {
		return false
	}
	if len(buf) == len(kw) {
		return true
	}
	c := buf[len(kw)]
	return isSpace[c] || isDelimiter[c]
}

// tryReference checks whether the integer just read is the start of an
// indirect reference "n g R".  The input position is only advanced if a
// reference is found.
func (s *scanner) tryReference(number Integer) (Reference, bool, error) {
	buf, err := s.Peek(16)
	if err != nil {
		return Reference{}, false, err
	}

	i := 0
	for i < len(buf) && isSpace[buf[i]] {
		i++
	}
	if i == 0 {
		return Reference{}, false, nil
	}
	start := i
	for i < len(buf) && buf[i] >= '0' && buf[i] <= '9' {
		i++
	}
	if i == start || i-start > 5 {
		return Reference{}, false, nil
	}
	gen, err := strconv.ParseUint(string(buf[start:i]), 10, 16)
	if err != nil {
		return Reference{}, false, nil
	}
	k := i
	for i < len(buf) && isSpace[buf[i]] {
		i++
	}
	if i == k || i >= len(buf) || buf[i] != 'R' {
		return Reference{}, false, nil
	}
	i++
	if i < len(buf) && !isSpace[buf[i]] && !isDelimiter[buf[i]] {
		return Reference{}, false, nil
	}

	s.pos += i
	return NewReference(uint32(number), uint16(gen)), true, nil
}

// readNumeral collects the characters of a numeric token: an optional
// sign, digits and, if allowDot is set, at most one decimal point.
func (s *scanner) readNumeral(allowDot bool) (tok []byte, isReal bool, err error) {
	err = s.ScanBytes(func(c byte) bool {
		switch {
		case c >= '0' && c <= '9':
		case (c == '+' || c == '-') && len(tok) == 0:
		case c == '.' && allowDot && !isReal:
			isReal = true
		default:
			return false
		}
		if len(tok) == maxNumeral {
			return false
		}
		tok = append(tok, c)
		return true
	})
	if err != nil {
		return nil, false, err
	}
	if len(tok) == maxNumeral {
		return nil, false, s.malformed(errors.New("numeric token too long"))
	}
	return tok, isReal, nil
}

// ReadInteger reads an integer.
func (s *scanner) ReadInteger() (Integer, error) {
	tok, _, err := s.readNumeral(false)
	if err != nil {
		return 0, err
	}
	x, err := strconv.ParseInt(string(tok), 10, 64)
	if err != nil {
		return 0, s.malformed(err)
	}
	return Integer(x), nil
}

// ReadNumber reads an integer or real number.  Integers which overflow
// int64 are returned as reals.
func (s *scanner) ReadNumber() (Object, error) {
	tok, isReal, err := s.readNumeral(true)
	if err != nil {
		return nil, err
	}
	if !isReal {
		x, err := strconv.ParseInt(string(tok), 10, 64)
		if err == nil {
			return Integer(x), nil
		} else if !errors.Is(err, strconv.ErrRange) {
			return nil, s.malformed(err)
		}
	}
	x, err := strconv.ParseFloat(string(tok), 64)
	if err != nil {
		return nil, s.malformed(err)
	}
	return Real(x), nil
}

// ReadQuotedString reads a ()-delimited string, starting after the opening
// bracket.
func (s *scanner) ReadQuotedString() (String, error) {
	var res []byte
	parentCount := 0
	escape := false
	ignoreLF := false
	isOctal := 0
	octalVal := byte(0)
	err := s.ScanBytes(func(c byte) bool {
		if ignoreLF {
			ignoreLF = false
			if c == '\n' {
				return true
			}
		}
		if isOctal > 0 {
			if c >= '0' && c <= '7' {
				octalVal = octalVal*8 + (c - '0')
				isOctal--
				if isOctal > 0 {
					return true
				}
				res = append(res, octalVal)
				return true
			}
			isOctal = 0
			res = append(res, octalVal)
		}
		if escape {
			escape = false
			switch c {
			case '\n':
				return true
			case '\r':
				ignoreLF = true
				return true
			case 'n':
				c = '\n'
			case 'r':
				c = '\r'
			case 't':
				c = '\t'
			case 'b':
				c = '\b'
			case 'f':
				c = '\f'
			}
			if c >= '0' && c <= '7' {
				isOctal = 2
				octalVal = c - '0'
				return true
			}
		} else if c == '\\' {
			escape = true
			return true
		} else if c == '(' {
			parentCount++
		} else if c == ')' {
			if parentCount > 0 {
				parentCount--
			} else {
				return false
			}
		}
		res = append(res, c)
		return true
	})
	if err != nil {
		return nil, err
	}
	if isOctal > 0 {
		res = append(res, octalVal)
	}

	err = s.SkipString(")")
	if err != nil {
		return nil, err
	}
	return String(res), nil
}

// ReadHexString reads a <>-delimited string, starting after the opening
// angled bracket.  White space between digits is ignored, and a final
// odd digit is padded with zero.
func (s *scanner) ReadHexString() (String, error) {
	var res []byte
	var hi byte
	odd := false
	bad := false
	err := s.ScanBytes(func(c byte) bool {
		if c == '>' {
			return false
		}
		d, ok := hexDigit(c)
		if !ok {
			bad = !isSpace[c]
			return !bad
		}
		if odd {
			res = append(res, hi<<4|d)
		} else {
			hi = d
		}
		odd = !odd
		return true
	})
	if err != nil && err != io.EOF {
		return nil, err
	}
	if bad {
		return nil, s.malformed(errors.New("invalid character in hex string"))
	}
	if odd {
		res = append(res, hi<<4)
	}

	err = s.SkipString(">")
	if err != nil {
		return nil, err
	}
	return String(res), nil
}

// ReadName reads a PDF name object.  A "#" which is not followed by two
// hex digits is kept literally.
func (s *scanner) ReadName() (Name, error) {
	err := s.SkipString("/")
	if err != nil {
		return "", err
	}

	var res []byte
	var esc []byte // a partial "#xx" escape
	err = s.ScanBytes(func(c byte) bool {
		if len(esc) > 0 {
			if _, ok := hexDigit(c); ok {
				esc = append(esc, c)
				if len(esc) == 3 {
					hi, _ := hexDigit(esc[1])
					lo, _ := hexDigit(esc[2])
					res = append(res, hi<<4|lo)
					esc = esc[:0]
				}
				return true
			}
			res = append(res, esc...)
			esc = esc[:0]
		}
		switch {
		case isSpace[c] || isDelimiter[c]:
			return false
		case c == '#':
			esc = append(esc, c)
		default:
			res = append(res, c)
		}
		return len(res) <= maxName
	})
	if err != nil && err != io.EOF {
		return "", err
	}
	res = append(res, esc...)
	if len(res) > maxName {
		return "", s.malformed(errors.New("name too long"))
	}

	return Name(res), nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// ReadArray reads an array, starting after the opening "[".
func (s *scanner) ReadArray() (Array, error) {
	s.nesting++
	defer func() { s.nesting-- }()
	if s.nesting > maxNesting {
		return nil, s.malformed(errTooDeep)
	}

	array := Array{}
	for {
		err := s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}

		buf, err := s.Peek(1)
		if err != nil {
			return nil, err
		}
		if len(buf) == 0 {
			return nil, s.malformed(io.ErrUnexpectedEOF)
		}
		if buf[0] == ']' {
			break
		}

		obj, err := s.ReadObject()
		if err != nil {
			return nil, err
		}
		array = append(array, obj)
	}
	s.pos++ // we have already seen the closing "]"

	return array, nil
}

// ReadDict reads a PDF dictionary.
func (s *scanner) ReadDict() (Dict, error) {
	s.nesting++
	defer func() { s.nesting-- }()
	if s.nesting > maxNesting {
		return nil, s.malformed(errTooDeep)
	}

	err := s.SkipString("<<")
	if err != nil {
		return nil, err
	}

	dict := Dict{}
	for {
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		buf, err := s.Peek(2)
		if err != nil {
			return nil, err
		}
		if bytes.HasPrefix(buf, []byte(">>")) {
			break
		}
		if len(buf) == 0 || buf[0] != '/' {
			return nil, s.malformed(fmt.Errorf("expected name but found %q", string(buf)))
		}

		key, err := s.ReadName()
		if err != nil {
			return nil, err
		}
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}

		val, err := s.ReadObject()
		if err != nil {
			return nil, err
		}
		if val != nil {
			dict[key] = val
		}
	}
	s.pos += 2 // we have already seen the closing ">>"

	return dict, nil
}

// ReadStreamData reads the data of a PDF Stream, starting after the Dict.
func (s *scanner) ReadStreamData(dict Dict) (*Stream, error) {
	lengthObj := dict["Length"]
	if ref, isRef := lengthObj.(Reference); isRef && s.resolveLength != nil {
		obj, err := s.resolveLength(ref)
		if err != nil {
			return nil, s.malformed(fmt.Errorf("stream /Length: %w", err))
		}
		lengthObj = obj
	}
	length, ok := lengthObj.(Integer)
	if !ok {
		return nil, s.malformed(ErrMissingLength)
	} else if length < 0 {
		return nil, s.malformed(errors.New("stream with negative length"))
	}

	err := s.SkipString("stream")
	if err != nil {
		return nil, err
	}

	buf, err := s.Peek(2)
	if err != nil {
		return nil, err
	}
	if len(buf) >= 1 && buf[0] == '\n' {
		s.pos++
	} else if len(buf) >= 2 && buf[0] == '\r' && buf[1] == '\n' {
		s.pos += 2
	} else if len(buf) >= 1 && buf[0] == '\r' {
		s.pos++
	} else {
		return nil, s.malformed(errors.New("missing end of line after \"stream\""))
	}

	if int64(length) > s.remaining() {
		return nil, s.malformed(fmt.Errorf("%w: /Length %d exceeds the %d bytes left",
			ErrEndstream, length, s.remaining()))
	}
	data, err := s.ReadN(int64(length))
	if err != nil {
		return nil, s.malformed(fmt.Errorf("%w: %w", ErrEndstream, err))
	}

	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, err
	}
	buf, err = s.Peek(9)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(buf, []byte("endstream")) {
		return nil, s.malformed(ErrEndstream)
	}
	s.pos += 9

	return &Stream{
		Dict: dict,
		Data: data,
	}, nil
}

// fill compacts the buffer and then reads until at least n unread bytes
// are buffered or the input is exhausted.
func (s *scanner) fill(n int) error {
	if s.pos > 0 {
		s.total += int64(s.pos)
		s.used = copy(s.buf, s.buf[s.pos:s.used])
		s.pos = 0
	}
	for s.used < n && !s.eof {
		k, err := s.r.Read(s.buf[s.used:])
		s.used += k
		if err == io.EOF {
			s.eof = true
		} else if err != nil {
			return err
		}
	}
	return nil
}

// Peek returns the next n bytes of input without consuming them.  Fewer
// than n bytes are returned only at the end of input.
func (s *scanner) Peek(n int) ([]byte, error) {
	if n > len(s.buf) {
		return nil, errPeekWindow
	}
	if s.used-s.pos < n {
		err := s.fill(n)
		if err != nil {
			return nil, err
		}
	}
	return s.buf[s.pos:min(s.pos+n, s.used)], nil
}

// ReadN reads exactly n bytes.  Requests beyond the end of input fail
// before any memory is allocated.
func (s *scanner) ReadN(n int64) ([]byte, error) {
	if n > s.remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	res := make([]byte, n)
	k := copy(res, s.buf[s.pos:s.used])
	s.pos += k
	if k == len(res) {
		return res, nil
	}

	// the buffer is drained, read the rest directly
	s.total += int64(s.used)
	s.pos, s.used = 0, 0
	m, err := io.ReadFull(s.r, res[k:])
	s.total += int64(m)
	if err != nil {
		s.eof = true
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return res, nil
}

// ScanBytes calls accept for every byte of input, until accept returns
// false or the end of input is reached.  The byte for which accept returns
// false is not consumed.  If the input is already exhausted, io.EOF is
// returned.
func (s *scanner) ScanBytes(accept func(c byte) bool) error {
	empty := true
	for {
		for s.pos < s.used {
			if !accept(s.buf[s.pos]) {
				return nil
			}
			s.pos++
			empty = false
		}
		if s.eof {
			if empty {
				return io.EOF
			}
			return nil
		}
		err := s.fill(len(s.buf))
		if err != nil {
			return err
		}
	}
}

// SkipWhiteSpace skips white space and comments.
func (s *scanner) SkipWhiteSpace() error {
	isComment := false
	err := s.ScanBytes(func(c byte) bool {
		if isComment {
			if c == '\r' || c == '\n' {
				isComment = false
			}
		} else if c == '%' {
			isComment = true
		} else {
			return isSpace[c]
		}
		return true
	})
	if err == io.EOF {
		err = nil
	}
	return err
}

// SkipString consumes pat, or returns a *MalformedFileError without
// consuming any input if pat is not found.
func (s *scanner) SkipString(pat string) error {
	patBytes := []byte(pat)
	n := len(patBytes)
	buf, err := s.Peek(n)
	if err != nil {
		return err
	}
	if !bytes.Equal(buf, patBytes) {
		return s.malformed(fmt.Errorf("expected %q but found %q", pat, string(buf)))
	}
	s.pos += n
	return nil
}

// SkipAfter skips all input up to and including the next occurrence of pat.
// If pat does not occur, all input is consumed and io.EOF is returned.
func (s *scanner) SkipAfter(pat string) error {
	patBytes := []byte(pat)
	if len(patBytes) >= len(s.buf) {
		return errPeekWindow
	}

	for {
		idx := bytes.Index(s.buf[s.pos:s.used], patBytes)
		if idx >= 0 {
			s.pos += idx + len(patBytes)
			return nil
		}
		if s.eof {
			s.pos = s.used
			return io.EOF
		}
		// keep a possible partial match at the end of the buffer
		s.pos = max(s.pos, s.used-len(patBytes)+1)
		err := s.fill(len(s.buf))
		if err != nil {
			return err
		}
	}
}

var (
	isSpace = [256]bool{
		0:  true,
		9:  true,
		10: true,
		12: true,
		13: true,
		32: true,
	}
	isDelimiter = [256]bool{
		'(': true,
		')': true,
		'<': true,
		'>': true,
		'[': true,
		']': true,
		'{': true,
		'}': true,
		'/': true,
		'%': true,
	}
)
