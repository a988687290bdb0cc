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
	"testing"

	"github.com/google/go-cmp/cmp"

	"seehuhn.de/go/pdfscrub/pdf"
)

func TestOrphans(t *testing.T) {
	doc, err := Load(simpleDoc(), nil)
	if err != nil {
		t.Fatal(err)
	}

	reachable := doc.Reachable()
	for _, n := range []uint32{1, 2, 3} {
		if !reachable[pdf.NewReference(n, 0)] {
			t.Errorf("object %d not reachable", n)
		}
	}

	orphans, err := doc.Orphans()
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]pdf.Reference{pdf.NewReference(4, 0)}, orphans); d != "" {
		t.Errorf("orphans (-want +got):\n%s", d)
	}
}

func TestPrune(t *testing.T) {
	doc, err := Load(simpleDoc(), nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := doc.Prune()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || !doc.Modified() {
		t.Fatalf("pruned %d objects, modified=%t", n, doc.Modified())
	}

	buf := &bytes.Buffer{}
	err = doc.Write(buf)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Error("orphaned stream was written")
	}

	doc2, err := Load(buf.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	orphans, _ := doc2.Orphans()
	if len(orphans) != 0 {
		t.Errorf("orphans after pruning: %v", orphans)
	}
}
