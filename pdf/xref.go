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
)

// XRefType is the kind of a cross-reference entry.
type XRefType uint8

// These are the possible types of cross-reference entries.
const (
	XRefFree XRefType = iota
	XRefInUse
	XRefCompressed
)

func (t XRefType) String() string {
	switch t {
	case XRefFree:
		return "free"
	case XRefInUse:
		return "in use"
	case XRefCompressed:
		return "compressed"
	}
	return fmt.Sprintf("XRefType(%d)", uint8(t))
}

// XRefEntry is a cross-reference entry as found in the file.
type XRefEntry struct {
	Type XRefType

	// Offset is the file offset of an object in use, the number of the
	// containing object stream for compressed objects, and the next
	// free object number for free entries.
	Offset int64

	Generation uint16

	// Index is the position of a compressed object inside its object
	// stream.
	Index uint32
}

// XRefSections is the combined information from all cross-reference
// sections of a file.
type XRefSections struct {
	// Entries holds the entry for each object number.  Where several
	// revisions define the same object, the newest one wins.
	Entries map[uint32]XRefEntry

	// Trailer is the newest trailer dictionary, with keys missing there
	// taken from older trailers.
	Trailer Dict

	// Revisions is the number of cross-reference sections in the /Prev
	// chain.  A file without incremental updates has one revision.
	Revisions int

	// Offsets lists the file offsets of all cross-reference sections,
	// newest first.  Hybrid /XRefStm sections are included.
	Offsets []int64

	// Streams is true if at least one section is a cross-reference stream.
	Streams bool
}

var (
	errNoXRef     = errors.New("invalid cross-reference section")
	errXRefStream = errors.New("invalid cross-reference stream")
)

// ReadXRef locates the last "startxref" keyword in the file, and reads
// all cross-reference sections reachable from there.
func ReadXRef(r io.ReaderAt, size int64) (*XRefSections, error) {
	start, err := findXRef(r, size)
	if err != nil {
		return nil, err
	}

	res := &XRefSections{
		Entries: make(map[uint32]XRefEntry),
		Trailer: Dict{},
	}
	seen := make(map[int64]bool)
	for !seen[start] {
		seen[start] = true
		res.Revisions++
		res.Offsets = append(res.Offsets, start)

		s := newScanner(r, start, size, nil)
		buf, err := s.Peek(4)
		if err != nil {
			return nil, err
		}

		var dict Dict
		if bytes.Equal(buf, []byte("xref")) {
			dict, err = readXRefTable(res.Entries, s)
			if err != nil {
				return nil, err
			}
			if stmPos, ok := dict["XRefStm"].(Integer); ok && !seen[int64(stmPos)] {
				pos := int64(stmPos)
				if pos <= 0 || pos >= size {
					return nil, &MalformedFileError{Pos: start, Err: errors.New("invalid /XRefStm")}
				}
				seen[pos] = true
				res.Offsets = append(res.Offsets, pos)
				res.Streams = true
				s := newScanner(r, pos, size, nil)
				_, err = readXRefStream(res.Entries, s)
				if err != nil {
					return nil, err
				}
			}
		} else {
			dict, err = readXRefStream(res.Entries, s)
			if err != nil {
				return nil, err
			}
			res.Streams = true
		}

		for key, val := range dict {
			if _, exists := res.Trailer[key]; !exists {
				res.Trailer[key] = val
			}
		}

		prev, ok := dict["Prev"]
		if !ok {
			break
		}
		prevPos, ok := prev.(Integer)
		if !ok || prevPos <= 0 || int64(prevPos) >= size {
			return nil, &MalformedFileError{
				Pos: start,
				Err: fmt.Errorf("invalid /Prev value %s", Format(prev)),
			}
		}
		start = int64(prevPos)
	}

	delete(res.Trailer, "Prev")
	delete(res.Trailer, "XRefStm")
	return res, nil
}

func findXRef(r io.ReaderAt, size int64) (int64, error) {
	pos, err := lastOccurrence(r, size, "startxref")
	if err != nil {
		return 0, err
	}
	pos += 9
	s := newScanner(r, pos, size, nil)
	err = s.SkipWhiteSpace()
	if err != nil {
		return 0, err
	}
	xrefPos, err := s.ReadInteger()
	if err != nil {
		return 0, err
	}
	if xrefPos <= 0 || int64(xrefPos) >= size {
		return 0, &MalformedFileError{
			Pos: pos,
			Err: errors.New("invalid xref position"),
		}
	}
	return int64(xrefPos), nil
}

func lastOccurrence(r io.ReaderAt, size int64, pat string) (int64, error) {
	const chunkSize = 1024

	buf := make([]byte, chunkSize)
	k := int64(len(pat))
	pos := size
	for pos >= k {
		start := max(pos-chunkSize, 0)
		n, err := r.ReadAt(buf[:pos-start], start)
		if err != nil && err != io.EOF {
			return 0, err
		}

		idx := bytes.LastIndex(buf[:n], []byte(pat))
		if idx >= 0 {
			return start + int64(idx), nil
		}
		if start == 0 {
			break
		}
		pos = start + k - 1
	}
	return 0, &MalformedFileError{Err: errNoStartXRef}
}

func readXRefTable(entries map[uint32]XRefEntry, s *scanner) (Dict, error) {
	err := s.SkipString("xref")
	if err != nil {
		return nil, err
	}

	for {
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		buf, err := s.Peek(1)
		if err != nil {
			return nil, err
		}
		if len(buf) == 0 || buf[0] < '0' || buf[0] > '9' {
			break
		}

		start, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		count, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		if start < 0 || count < 0 || start+count > 1<<32-1 {
			return nil, s.malformed(errNoXRef)
		}

		for i := range count {
			entry, err := readXRefLine(s)
			if err != nil {
				return nil, err
			}
			number := uint32(start + i)
			if _, seen := entries[number]; !seen {
				entries[number] = entry
			}
		}
	}

	err = s.SkipString("trailer")
	if err != nil {
		return nil, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, err
	}
	return s.ReadDict()
}

// readXRefLine reads one "oooooooooo ggggg n" line.  The fields are read
// as tokens, so that lines with missing or extra white space are accepted.
func readXRefLine(s *scanner) (XRefEntry, error) {
	err := s.SkipWhiteSpace()
	if err != nil {
		return XRefEntry{}, err
	}
	offset, err := s.ReadInteger()
	if err != nil {
		return XRefEntry{}, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return XRefEntry{}, err
	}
	gen, err := s.ReadInteger()
	if err != nil {
		return XRefEntry{}, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return XRefEntry{}, err
	}
	buf, err := s.Peek(1)
	if err != nil {
		return XRefEntry{}, err
	}
	if len(buf) == 0 || offset < 0 || gen < 0 {
		return XRefEntry{}, s.malformed(errNoXRef)
	}
	// some writers use 65536 for the generation of object 0
	gen = min(gen, 65535)

	entry := XRefEntry{Offset: int64(offset), Generation: uint16(gen)}
	switch buf[0] {
	case 'n':
		entry.Type = XRefInUse
	case 'f':
		entry.Type = XRefFree
	default:
		return XRefEntry{}, s.malformed(errNoXRef)
	}
	s.pos++
	return entry, nil
}

func readXRefStream(entries map[uint32]XRefEntry, s *scanner) (Dict, error) {
	_, obj, err := s.ReadIndirectObject()
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*Stream)
	if !ok {
		return nil, s.malformed(errXRefStream)
	}

	w, sections, err := xrefStreamLayout(stream.Dict)
	if err != nil {
		return nil, s.malformed(err)
	}
	data, err := Decode(stream.Dict, stream.Data)
	if err != nil {
		return nil, s.malformed(err)
	}
	err = decodeXRefStream(entries, data, w, sections)
	if err != nil {
		return nil, s.malformed(err)
	}
	return stream.Dict, nil
}

type xrefSubsection struct {
	start, count uint32
}

func xrefStreamLayout(dict Dict) ([3]int, []xrefSubsection, error) {
	var w [3]int
	size, ok := dict["Size"].(Integer)
	if !ok || size < 0 {
		return w, nil, fmt.Errorf("%w: missing /Size", errXRefStream)
	}
	W, ok := dict["W"].(Array)
	if !ok || len(W) < 3 {
		return w, nil, fmt.Errorf("%w: invalid /W", errXRefStream)
	}
	for i := range w {
		wi, ok := W[i].(Integer)
		if !ok || wi < 0 || wi > 8 {
			return w, nil, fmt.Errorf("%w: invalid /W", errXRefStream)
		}
		w[i] = int(wi)
	}

	index, ok := dict["Index"].(Array)
	if !ok {
		return w, []xrefSubsection{{0, uint32(size)}}, nil
	}
	if len(index)%2 != 0 {
		return w, nil, fmt.Errorf("%w: invalid /Index", errXRefStream)
	}
	var sections []xrefSubsection
	for i := 0; i < len(index); i += 2 {
		start, ok1 := index[i].(Integer)
		count, ok2 := index[i+1].(Integer)
		if !ok1 || !ok2 || start < 0 || count < 0 || start+count > 1<<32-1 {
			return w, nil, fmt.Errorf("%w: invalid /Index", errXRefStream)
		}
		sections = append(sections, xrefSubsection{uint32(start), uint32(count)})
	}
	return w, sections, nil
}

func decodeXRefStream(entries map[uint32]XRefEntry, data []byte, w [3]int, sections []xrefSubsection) error {
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return fmt.Errorf("%w: empty /W", errXRefStream)
	}
	for _, sec := range sections {
		for i := range sec.count {
			if len(data) < rowLen {
				return fmt.Errorf("%w: %v", errXRefStream, io.ErrUnexpectedEOF)
			}
			row := data[:rowLen]
			data = data[rowLen:]

			number := sec.start + i
			if _, seen := entries[number]; seen {
				continue
			}

			tp := uint64(1)
			if w[0] > 0 {
				tp = decodeInt(row[:w[0]])
			}
			a := decodeInt(row[w[0] : w[0]+w[1]])
			b := decodeInt(row[w[0]+w[1]:])
			switch tp {
			case 0:
				entries[number] = XRefEntry{
					Type:       XRefFree,
					Offset:     int64(a),
					Generation: uint16(b),
				}
			case 1:
				entries[number] = XRefEntry{
					Type:       XRefInUse,
					Offset:     int64(a),
					Generation: uint16(b),
				}
			case 2:
				entries[number] = XRefEntry{
					Type:   XRefCompressed,
					Offset: int64(a),
					Index:  uint32(b),
				}
			default:
				// unknown entry types are to be treated as null references
			}
		}
	}
	return nil
}

func decodeInt(buf []byte) uint64 {
	var res uint64
	for _, x := range buf {
		res = res<<8 | uint64(x)
	}
	return res
}
