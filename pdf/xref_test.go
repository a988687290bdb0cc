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
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// classicFile builds a file with one object per entry of objs, numbered
// from 1, and a classic cross-reference table.
func classicFile(objs ...string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	var offsets []int
	for i, obj := range objs {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n0000000000 65535 f\r\n", len(objs)+1)
	for _, o := range offsets {
		fmt.Fprintf(buf, "%010d 00000 n\r\n", o)
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestReadXRefClassic(t *testing.T) {
	data := classicFile("<< /Type /Catalog >>", "(two)")
	sections, err := ReadXRef(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if sections.Revisions != 1 || sections.Streams {
		t.Errorf("wrong revisions %d / streams %t", sections.Revisions, sections.Streams)
	}
	if sections.Trailer["Root"] != NewReference(1, 0) {
		t.Errorf("wrong trailer %v", sections.Trailer)
	}
	if e := sections.Entries[0]; e.Type != XRefFree || e.Generation != 65535 {
		t.Errorf("wrong entry 0: %+v", e)
	}

	p := NewParser(bytes.NewReader(data), int64(len(data)))
	ref, obj, err := p.ParseObjectAt(sections.Entries[2].Offset)
	if err != nil {
		t.Fatal(err)
	}
	if ref != NewReference(2, 0) || string(obj.(String)) != "two" {
		t.Errorf("got %s = %s", ref, Format(obj))
	}
}

func TestReadXRefIncremental(t *testing.T) {
	data := classicFile("<< /Type /Catalog >>", "(two)")
	buf := bytes.NewBuffer(data)
	prev := bytes.LastIndex(data, []byte("\nxref\n")) + 1

	// second revision: replace object 2 and free object 1
	obj2 := buf.Len()
	buf.WriteString("2 1 obj\n(new two)\nendobj\n")
	xref := buf.Len()
	fmt.Fprintf(buf, "xref\n0 3\n0000000001 65535 f\r\n0000000000 00001 f\r\n%010d 00001 n\r\n", obj2)
	fmt.Fprintf(buf, "trailer\n<< /Size 3 /Prev %d /Info 2 1 R >>\nstartxref\n%d\n%%%%EOF\n", prev, xref)
	data = buf.Bytes()

	sections, err := ReadXRef(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if sections.Revisions != 2 {
		t.Errorf("got %d revisions, want 2", sections.Revisions)
	}
	want := map[uint32]XRefEntry{
		0: {Type: XRefFree, Offset: 1, Generation: 65535},
		1: {Type: XRefFree, Generation: 1},
		2: {Type: XRefInUse, Offset: int64(obj2), Generation: 1},
	}
	if d := cmp.Diff(want, sections.Entries); d != "" {
		t.Errorf("(-want +got):\n%s", d)
	}
	if sections.Trailer["Root"] != NewReference(1, 0) || sections.Trailer["Info"] != NewReference(2, 1) {
		t.Errorf("trailer not merged: %v", sections.Trailer)
	}
	if _, ok := sections.Trailer["Prev"]; ok {
		t.Error("/Prev left in merged trailer")
	}
	if d := cmp.Diff([]int64{int64(xref), int64(prev)}, sections.Offsets); d != "" {
		t.Errorf("offsets (-want +got):\n%s", d)
	}
}

func TestReadXRefStream(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")
	obj1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	obj2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /ObjStm /N 2 /First 8 /Length 16 >>\nstream\n3 0 4 3 42 [5 6]\nendstream\nendobj\n")
	xref := buf.Len()

	rows := []byte{
		0, 0, 0, 0xFF,
		1, byte(obj1 >> 8), byte(obj1), 0,
		1, byte(obj2 >> 8), byte(obj2), 0,
		2, 0, 2, 0,
		2, 0, 2, 1,
		1, byte(xref >> 8), byte(xref), 0,
	}
	fmt.Fprintf(buf, "5 0 obj\n<< /Type /XRef /Size 6 /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xref)
	data := buf.Bytes()

	sections, err := ReadXRef(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if !sections.Streams {
		t.Error("xref stream not reported")
	}
	if e := sections.Entries[4]; e.Type != XRefCompressed || e.Offset != 2 || e.Index != 1 {
		t.Errorf("wrong entry for object 4: %+v", e)
	}

	p := NewParser(bytes.NewReader(data), int64(len(data)))
	_, obj, err := p.ParseObjectAt(int64(obj2))
	if err != nil {
		t.Fatal(err)
	}
	contents, err := ReadObjectStream(obj.(*Stream))
	if err != nil {
		t.Fatal(err)
	}
	want := []CompressedObject{
		{Number: 3, Object: Integer(42)},
		{Number: 4, Object: Array{Integer(5), Integer(6)}},
	}
	if d := cmp.Diff(want, contents); d != "" {
		t.Errorf("(-want +got):\n%s", d)
	}
}

func TestReadXRefErrors(t *testing.T) {
	for _, body := range []string{
		"%PDF-1.4\nno cross references here",
		"%PDF-1.4\nstartxref\n999\n%%EOF",
	} {
		_, err := ReadXRef(bytes.NewReader([]byte(body)), int64(len(body)))
		if !IsMalformed(err) {
			t.Errorf("%q: expected MalformedFileError, got %v", body, err)
		}
	}
}
