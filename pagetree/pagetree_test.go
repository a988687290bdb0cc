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

package pagetree

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"seehuhn.de/go/pdfscrub/pdf"
)

type memResolver map[pdf.Reference]pdf.Object

func (m memResolver) Resolve(obj pdf.Object) (pdf.Object, error) {
	for {
		ref, ok := obj.(pdf.Reference)
		if !ok {
			return obj, nil
		}
		obj = m[ref]
	}
}

func ref(n uint32) pdf.Reference {
	return pdf.NewReference(n, 0)
}

func TestRead(t *testing.T) {
	res := pdf.Dict{"Font": pdf.Dict{}}
	r := memResolver{
		ref(1): pdf.Dict{"Type": pdf.Name("Pages"), "Kids": pdf.Array{ref(2), ref(3), ref(2)}, "Resources": res},
		ref(2): pdf.Dict{"Type": pdf.Name("Page"), "Parent": ref(1)},
		ref(3): pdf.Dict{"Type": pdf.Name("Pages"), "Kids": pdf.Array{ref(4), ref(5)}},
		ref(4): pdf.Dict{"Type": pdf.Name("Page"), "Resources": pdf.Dict{}},
		ref(5): pdf.Dict{"Type": pdf.Name("Page")},
	}

	tree, err := Read(r, pdf.Dict{"Pages": ref(1)})
	if err != nil {
		t.Fatal(err)
	}

	var pages []pdf.Reference
	for _, p := range tree.Pages {
		pages = append(pages, p.Ref)
	}
	if d := cmp.Diff([]pdf.Reference{ref(2), ref(4), ref(5)}, pages); d != "" {
		t.Errorf("pages (-want +got):\n%s", d)
	}
	if d := cmp.Diff([]pdf.Reference{ref(1), ref(3)}, tree.Nodes); d != "" {
		t.Errorf("nodes (-want +got):\n%s", d)
	}
	if d := cmp.Diff(pdf.Object(res), tree.Pages[2].Resources); d != "" {
		t.Errorf("inherited resources (-want +got):\n%s", d)
	}
	if d := cmp.Diff(pdf.Object(pdf.Dict{}), tree.Pages[1].Resources); d != "" {
		t.Errorf("own resources (-want +got):\n%s", d)
	}
}

func TestCycle(t *testing.T) {
	r := memResolver{
		ref(1): pdf.Dict{"Type": pdf.Name("Pages"), "Kids": pdf.Array{ref(2)}},
		ref(2): pdf.Dict{"Type": pdf.Name("Pages"), "Kids": pdf.Array{ref(1), ref(3)}},
		ref(3): pdf.Dict{"Type": pdf.Name("Page")},
	}
	tree, err := Read(r, pdf.Dict{"Pages": ref(1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Pages) != 1 {
		t.Errorf("got %d pages", len(tree.Pages))
	}
}

func TestDuplicateKids(t *testing.T) {
	res := pdf.Dict{"XObject": pdf.Dict{}}
	r := memResolver{
		ref(1): pdf.Dict{"Type": pdf.Name("Pages"), "Kids": pdf.Array{ref(2), ref(4), ref(3)}},
		ref(2): pdf.Dict{"Type": pdf.Name("Pages"), "Kids": pdf.Array{ref(3), ref(4)}, "Resources": res},
		ref(3): pdf.Dict{"Type": pdf.Name("Page")},
		ref(4): pdf.Dict{"Type": pdf.Name("Page")},
	}
	tree, err := Read(r, pdf.Dict{"Pages": ref(1)})
	if err != nil {
		t.Fatal(err)
	}

	var pages []pdf.Reference
	for _, p := range tree.Pages {
		pages = append(pages, p.Ref)
		if d := cmp.Diff(pdf.Object(res), p.Resources); d != "" {
			t.Errorf("resources of %s (-want +got):\n%s", p.Ref, d)
		}
	}
	if d := cmp.Diff([]pdf.Reference{ref(3), ref(4)}, pages); d != "" {
		t.Errorf("pages (-want +got):\n%s", d)
	}
}

func TestDepth(t *testing.T) {
	r := memResolver{}
	for i := uint32(1); i < maxDepth+5; i++ {
		r[ref(i)] = pdf.Dict{"Type": pdf.Name("Pages"), "Kids": pdf.Array{ref(i + 1)}}
	}
	_, err := Read(r, pdf.Dict{"Pages": ref(1)})
	if !errors.Is(err, errTooDeep) {
		t.Errorf("expected errTooDeep, got %v", err)
	}
}

func TestNoPages(t *testing.T) {
	_, err := Read(memResolver{}, pdf.Dict{})
	if !pdf.IsMalformed(err) {
		t.Errorf("expected malformed file error, got %v", err)
	}
}
