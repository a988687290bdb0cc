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

package xref

import (
	"bufio"
	"fmt"
	"io"

	"seehuhn.de/go/pdfscrub/pdf"
)

// section is a run of consecutive object numbers.
type section struct {
	start, count uint32
}

// sections splits the sorted list of numbers into maximal runs of
// consecutive numbers.
func sections(numbers []uint32) []section {
	var res []section
	for i, number := range numbers {
		if i > 0 && number == numbers[i-1]+1 {
			res[len(res)-1].count++
			continue
		}
		res = append(res, section{start: number, count: 1})
	}
	return res
}

// freeLinks returns, for every free entry of the live table, the number of
// the next free entry.  The last free entry links back to 0.
// The caller must hold m.mu.
func (m *Manager) freeLinks(numbers []uint32) map[uint32]uint32 {
	links := make(map[uint32]uint32)
	prev := uint32(0)
	for _, number := range numbers {
		if number == 0 || m.entries[number].Status != Free {
			continue
		}
		links[prev] = number
		prev = number
	}
	links[prev] = 0
	return links
}

// WriteTable writes the live table as a classic cross-reference section,
// starting with the "xref" keyword.  A new subsection starts whenever an
// object number is not exactly one greater than its predecessor.  Free
// entries are linked into a list headed by object 0.
//
// ErrCompressed is returned if the table contains compressed entries.
func (m *Manager) WriteTable(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	numbers := m.sortedNumbers()
	for _, number := range numbers {
		if m.entries[number].Status == Compressed {
			return fmt.Errorf("object %d: %w", number, ErrCompressed)
		}
	}
	links := m.freeLinks(numbers)

	bw := bufio.NewWriter(w)
	bw.WriteString("xref\n")
	pos := 0
	for _, sec := range sections(numbers) {
		fmt.Fprintf(bw, "%d %d\n", sec.start, sec.count)
		for range sec.count {
			number := numbers[pos]
			pos++
			e := m.entries[number]
			if e.Status == Free {
				fmt.Fprintf(bw, "%010d %05d f\r\n", links[number], e.Generation)
			} else {
				fmt.Fprintf(bw, "%010d %05d n\r\n", e.Offset, e.Generation)
			}
		}
	}
	return bw.Flush()
}

// WriteStream encodes the live table as the contents of a cross-reference
// stream.  The returned dictionary contains /Type, /W and /Index; the
// caller must add the trailer entries and the stream filters.
func (m *Manager) WriteStream() (pdf.Dict, []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	numbers := m.sortedNumbers()
	links := m.freeLinks(numbers)

	var maxField2 uint64
	var maxField3 uint64
	for _, number := range numbers {
		e := m.entries[number]
		switch e.Status {
		case Free:
			maxField2 = max(maxField2, uint64(links[number]))
			maxField3 = max(maxField3, uint64(e.Generation))
		case InUse:
			maxField2 = max(maxField2, e.Offset)
			maxField3 = max(maxField3, uint64(e.Generation))
		case Compressed:
			maxField2 = max(maxField2, e.Offset)
			maxField3 = max(maxField3, uint64(e.Index))
		}
	}
	w2 := byteWidth(maxField2)
	w3 := byteWidth(maxField3)

	rowSize := 1 + w2 + w3
	data := make([]byte, 0, rowSize*len(numbers))
	var index pdf.Array
	pos := 0
	for _, sec := range sections(numbers) {
		index = append(index, pdf.Integer(sec.start), pdf.Integer(sec.count))
		for range sec.count {
			number := numbers[pos]
			pos++
			e := m.entries[number]
			switch e.Status {
			case Free:
				data = append(data, 0)
				data = appendInt(data, uint64(links[number]), w2)
				data = appendInt(data, uint64(e.Generation), w3)
			case InUse:
				data = append(data, 1)
				data = appendInt(data, e.Offset, w2)
				data = appendInt(data, uint64(e.Generation), w3)
			case Compressed:
				data = append(data, 2)
				data = appendInt(data, e.Offset, w2)
				data = appendInt(data, uint64(e.Index), w3)
			}
		}
	}

	dict := pdf.Dict{
		"Type":  pdf.Name("XRef"),
		"W":     pdf.Array{pdf.Integer(1), pdf.Integer(w2), pdf.Integer(w3)},
		"Index": index,
		"Size":  pdf.Integer(m.next),
	}
	return dict, data
}

func byteWidth(x uint64) int {
	w := 1
	for x > 0xFF {
		x >>= 8
		w++
	}
	return w
}

// appendInt appends x as a big-endian integer of the given width.
func appendInt(dst []byte, x uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(x>>(8*i)))
	}
	return dst
}
