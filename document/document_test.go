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

package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"seehuhn.de/go/pdfscrub/pdf"
	"seehuhn.de/go/pdfscrub/xref"
)

// buildPDF returns a PDF file containing the given objects, numbered
// consecutively from 1, with a classic cross-reference table.
func buildPDF(trailer string, objs ...string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xrefPos := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n0000000000 65535 f\r\n", len(objs)+1)
	for _, offs := range offsets {
		fmt.Fprintf(buf, "%010d 00000 n\r\n", offs)
	}
	fmt.Fprintf(buf, "trailer\n<</Size %d %s>>\nstartxref\n%d\n%%%%EOF\n",
		len(objs)+1, trailer, xrefPos)
	return buf.Bytes()
}

func simpleDoc() []byte {
	return buildPDF("/Root 1 0 R /Info 3 0 R /ID [<0102> <0304>]",
		"<</Type/Catalog/Pages 2 0 R>>",
		"<</Type/Pages/Kids[]/Count 0>>",
		"<</Author (A. Nonymous)/Producer (test)>>",
		"<</Length 5>>\nstream\nhello\nendstream",
	)
}

func TestLoad(t *testing.T) {
	doc, err := Load(simpleDoc(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if doc.Version() != "1.7" || doc.Revisions() != 1 || doc.Repaired() {
		t.Errorf("version %s, %d revisions, repaired=%t",
			doc.Version(), doc.Revisions(), doc.Repaired())
	}
	if doc.ID() != "0102" {
		t.Errorf("ID() = %q", doc.ID())
	}

	catalog, err := doc.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	if catalog["Type"] != pdf.Name("Catalog") {
		t.Errorf("wrong catalog %v", catalog)
	}

	info, err := doc.Info()
	if err != nil {
		t.Fatal(err)
	}
	if author, _ := info["Author"].(pdf.String); string(author) != "A. Nonymous" {
		t.Errorf("Author = %q", author)
	}

	streams, err := doc.Streams()
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]pdf.Reference{pdf.NewReference(4, 0)}, streams); d != "" {
		t.Errorf("streams (-want +got):\n%s", d)
	}

	// references to missing objects resolve to null
	obj, err := doc.Resolve(pdf.NewReference(17, 0))
	if obj != nil || err != nil {
		t.Errorf("got %v, %v", obj, err)
	}

	e, _ := doc.XRef().Entry(1)
	if e.Hint != "Catalog" {
		t.Errorf("hint %q", e.Hint)
	}
}

func TestLoadNotPDF(t *testing.T) {
	_, err := Load([]byte("hello, world"), nil)
	if !pdf.IsMalformed(err) {
		t.Errorf("expected malformed file error, got %v", err)
	}
}

func TestRepair(t *testing.T) {
	data := simpleDoc()
	// break the startxref offset
	idx := bytes.LastIndex(data, []byte("startxref\n"))
	broken := append(bytes.Clone(data[:idx]), "startxref\n9\n%%EOF\n"...)

	doc, err := Load(broken, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Repaired() {
		t.Error("document not marked as repaired")
	}
	info, err := doc.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info["Producer"] == nil {
		t.Errorf("trailer not recovered: %v", doc.Trailer())
	}
}

func TestRepairObjectStream(t *testing.T) {
	obj1 := "<</Type/Catalog/Pages 2 0 R>>"
	obj2 := "<</Type/Pages/Kids[]/Count 0>>"
	header := fmt.Sprintf("1 0 2 %d ", len(obj1)+1)
	body := header + obj1 + " " + obj2

	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")
	fmt.Fprintf(buf, "3 0 obj\n<</Type/ObjStm/N 2/First %d/Length %d>>\nstream\n%s\nendstream\nendobj\n",
		len(header), len(body), body)
	buf.WriteString("%%EOF\n")

	doc, err := Load(buf.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	e, ok := doc.XRef().Entry(2)
	if !ok || e.Status != xref.Compressed || e.Offset != 3 || e.Index != 1 {
		t.Errorf("entry for object 2: %v", e)
	}
	catalog, err := doc.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	if catalog["Pages"] != pdf.NewReference(2, 0) {
		t.Errorf("catalog %v", catalog)
	}

	// rewriting expands the object stream
	out := &bytes.Buffer{}
	if err := doc.Write(out); err != nil {
		t.Fatal(err)
	}
	doc2, err := Load(out.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc2.Repaired() {
		t.Error("rewritten file needed repair")
	}
	pages, err := doc2.ResolveDict(pdf.NewReference(2, 0))
	if err != nil {
		t.Fatal(err)
	}
	if pages["Type"] != pdf.Name("Pages") {
		t.Errorf("pages %v", pages)
	}
	if e, ok := doc2.XRef().Entry(3); ok && e.Status != xref.Free {
		t.Error("object stream was copied")
	}
}

// xrefRow encodes one cross-reference stream row with widths [1 4 2].
func xrefRow(tp byte, a uint32, b uint16) []byte {
	return []byte{tp, byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a), byte(b >> 8), byte(b)}
}

func TestObjectStreamLoop(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<</Type/Catalog/Pages 2 0 R>>\nendobj\n")
	off3 := buf.Len()
	var rows []byte
	rows = append(rows, xrefRow(0, 0, 0xFFFF)...)
	rows = append(rows, xrefRow(1, uint32(off1), 0)...)
	rows = append(rows, xrefRow(2, 2, 0)...) // inside itself
	rows = append(rows, xrefRow(1, uint32(off3), 0)...)
	rows = append(rows, xrefRow(2, 5, 0)...) // 4 and 5 contain each other
	rows = append(rows, xrefRow(2, 4, 0)...)
	fmt.Fprintf(buf, "3 0 obj\n<</Type/XRef/Size 6/W[1 4 2]/Root 1 0 R/Length %d>>\nstream\n", len(rows))
	buf.Write(rows)
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", off3)

	doc, err := Load(buf.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Repaired() {
		t.Fatal("cross-reference stream was not used")
	}
	if _, err := doc.Catalog(); err != nil {
		t.Fatal(err)
	}

	for _, number := range []uint32{2, 4, 5} {
		obj, err := doc.Resolve(pdf.NewReference(number, 0))
		if !pdf.IsMalformed(err) {
			t.Errorf("object %d: got %v, %v, want MalformedFileError", number, obj, err)
		}
	}
}

func TestModifyAndWrite(t *testing.T) {
	doc, err := Load(simpleDoc(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := doc.Delete(pdf.NewReference(4, 0)); err != nil {
		t.Fatal(err)
	}
	doc.SetTrailer("Info", nil)
	if err := doc.Delete(pdf.NewReference(3, 0)); err != nil {
		t.Fatal(err)
	}
	newRef, err := doc.Add(pdf.Dict{"Type": pdf.Name("Metadata")})
	if err != nil {
		t.Fatal(err)
	}
	if newRef != pdf.NewReference(4, 1) {
		t.Errorf("Add() = %s, want 4 1 R", newRef)
	}
	err = doc.Put(pdf.NewReference(2, 0), pdf.Dict{
		"Type":  pdf.Name("Pages"),
		"Kids":  pdf.Array{},
		"Count": pdf.Integer(0),
		"Extra": newRef,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Modified() {
		t.Error("document not marked as modified")
	}

	// stale references are rejected
	var mismatch *xref.GenerationMismatchError
	if err := doc.Put(pdf.NewReference(4, 0), nil); !errors.As(err, &mismatch) {
		t.Errorf("expected generation mismatch, got %v", err)
	}

	out := &bytes.Buffer{}
	if err := doc.Write(out); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out.Bytes(), []byte("Nonymous")) {
		t.Error("deleted object was written")
	}

	doc2, err := Load(out.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc2.Repaired() {
		t.Error("rewritten file needed repair")
	}
	info, err := doc2.Info()
	if info != nil || err != nil {
		t.Errorf("Info() = %v, %v", info, err)
	}
	pages, err := doc2.ResolveDict(pdf.NewReference(2, 0))
	if err != nil {
		t.Fatal(err)
	}
	extra, err := doc2.ResolveDict(pages["Extra"])
	if err != nil {
		t.Fatal(err)
	}
	if extra["Type"] != pdf.Name("Metadata") {
		t.Errorf("added object %v", extra)
	}
	e, _ := doc2.XRef().Entry(3)
	if e.Status != xref.Free || e.Generation != 1 {
		t.Errorf("deleted object entry %v", e)
	}
}

// xorDecrypter is a toy security handler for testing.
type xorDecrypter struct {
	key      byte
	password string
}

func (x *xorDecrypter) Authenticate(encrypt pdf.Dict, id []byte, password []byte) error {
	if string(password) != x.password {
		return errors.New("wrong password")
	}
	return nil
}

func (x *xorDecrypter) Decrypt(ref pdf.Reference, data []byte) ([]byte, error) {
	res := make([]byte, len(data))
	for i, c := range data {
		res[i] = c ^ x.key
	}
	return res, nil
}

func encryptedDoc(key byte) []byte {
	title := []byte("Secret Title")
	for i := range title {
		title[i] ^= key
	}
	return buildPDF("/Root 1 0 R /Info 2 0 R /Encrypt 3 0 R /ID [<0102> <0102>]",
		"<</Type/Catalog>>",
		fmt.Sprintf("<</Title <%x>>>", title),
		"<</Filter/Standard/V 2/R 3/O <00>/U <00>/P -4>>",
	)
}

func TestDecrypt(t *testing.T) {
	data := encryptedDoc(0x5A)

	doc, err := Load(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Encrypted() || doc.Decrypted() {
		t.Errorf("encrypted=%t, decrypted=%t", doc.Encrypted(), doc.Decrypted())
	}
	if err := doc.Write(&bytes.Buffer{}); !errors.Is(err, ErrEncrypted) {
		t.Errorf("expected ErrEncrypted, got %v", err)
	}

	_, err = Load(data, &Options{
		Decrypter: &xorDecrypter{key: 0x5A, password: "pw"},
		Password:  "wrong",
	})
	if err == nil {
		t.Error("wrong password accepted")
	}

	doc, err = Load(data, &Options{
		Decrypter: &xorDecrypter{key: 0x5A, password: "pw"},
		Password:  "pw",
	})
	if err != nil {
		t.Fatal(err)
	}
	info, err := doc.Info()
	if err != nil {
		t.Fatal(err)
	}
	if title, _ := info["Title"].(pdf.String); title.AsTextString() != "Secret Title" {
		t.Errorf("Title = %q", title)
	}

	out := &bytes.Buffer{}
	if err := doc.Write(out); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out.Bytes(), []byte("/Encrypt")) {
		t.Error("encryption dictionary was written")
	}
}

func TestPasswordBytes(t *testing.T) {
	cases := []struct {
		in       string
		revision int
		want     string
		fail     bool
	}{
		{"secret", 4, "secret", false},
		{"€", 3, "\xa0", false},
		{"日本", 4, "", true},
		{"I\u00adX", 6, "IX", false},
		{"日本", 6, "日本", false},
		{strings.Repeat("x", 40), 4, strings.Repeat("x", 32), false},
	}
	for _, c := range cases {
		got, err := passwordBytes(c.in, c.revision)
		if (err != nil) != c.fail {
			t.Errorf("%q/R%d: unexpected error %v", c.in, c.revision, err)
			continue
		}
		if string(got) != c.want {
			t.Errorf("%q/R%d: got %q, want %q", c.in, c.revision, got, c.want)
		}
	}
}

func TestOpenAsync(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.pdf")
	if err := os.WriteFile(name, simpleDoc(), 0o644); err != nil {
		t.Fatal(err)
	}

	res := <-OpenAsync(context.Background(), name, nil)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Doc.Name() != name || res.Doc.Size() != int64(len(simpleDoc())) {
		t.Errorf("name %q, size %d", res.Doc.Name(), res.Doc.Size())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = <-OpenAsync(ctx, name, nil)
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", res.Err)
	}

	res = <-OpenAsync(context.Background(), name+".missing", nil)
	if res.Err == nil {
		t.Error("missing file opened")
	}
}

func TestWriteXRefStream(t *testing.T) {
	doc, err := Load(simpleDoc(), nil)
	if err != nil {
		t.Fatal(err)
	}

	out := &bytes.Buffer{}
	if err := doc.WriteXRefStream(out); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out.Bytes(), []byte("trailer")) {
		t.Error("classic trailer written")
	}

	doc2, err := Load(out.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc2.Repaired() {
		t.Error("rewritten file needed repair")
	}
	catalog, err := doc2.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	if catalog["Type"] != pdf.Name("Catalog") {
		t.Errorf("catalog %v", catalog)
	}
	for _, ref := range doc.XRef().InUse() {
		if _, err := doc2.XRef().Lookup(ref); err != nil {
			t.Errorf("object %s: %v", ref, err)
		}
	}
}
