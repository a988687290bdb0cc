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

package outline

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
	r := memResolver{
		ref(1): pdf.Dict{"Type": pdf.Name("Outlines"), "First": ref(2), "Last": ref(3)},
		ref(2): pdf.Dict{
			"Title": pdf.String("Chapter 1"),
			"Next":  ref(3),
			"First": ref(4),
			"Count": pdf.Integer(1),
			"Dest":  pdf.Array{ref(10), pdf.Name("Fit")},
		},
		ref(3): pdf.Dict{
			"Title": pdf.TextString("Kapitel Zwei – Ende"),
			"Prev":  ref(2),
			"A":     ref(5),
		},
		ref(4): pdf.Dict{"Title": pdf.String("Section 1.1")},
		ref(5): pdf.Dict{"S": pdf.Name("JavaScript"), "JS": pdf.String("app.alert(1)")},
	}
	catalog := pdf.Dict{"Outlines": ref(1)}

	o, err := Read(r, catalog)
	if err != nil {
		t.Fatal(err)
	}

	var titles []string
	for item := range o.All() {
		titles = append(titles, item.Title)
	}
	want := []string{"Chapter 1", "Section 1.1", "Kapitel Zwei – Ende"}
	if d := cmp.Diff(want, titles); d != "" {
		t.Errorf("titles (-want +got):\n%s", d)
	}

	if !o.Items[0].Open || o.Items[1].Open {
		t.Error("wrong open state")
	}
	if ActionType(o.Items[1].Action) != "JavaScript" {
		t.Errorf("action %v", o.Items[1].Action)
	}

	wantRefs := []pdf.Reference{ref(1), ref(2), ref(4), ref(3)}
	if d := cmp.Diff(wantRefs, o.Refs()); d != "" {
		t.Errorf("refs (-want +got):\n%s", d)
	}
}

func TestReadNone(t *testing.T) {
	o, err := Read(memResolver{}, pdf.Dict{})
	if o != nil || err != nil {
		t.Errorf("got %v, %v", o, err)
	}
	if o.Refs() != nil {
		t.Error("nil outline has references")
	}
}

func TestLoop(t *testing.T) {
	r := memResolver{
		ref(1): pdf.Dict{"First": ref(2)},
		ref(2): pdf.Dict{"Title": pdf.String("a"), "Next": ref(3)},
		ref(3): pdf.Dict{"Title": pdf.String("b"), "Next": ref(2)},
	}
	_, err := Read(r, pdf.Dict{"Outlines": ref(1)})
	if !pdf.IsMalformed(err) {
		t.Errorf("expected malformed file error, got %v", err)
	}
}

func TestDepth(t *testing.T) {
	r := memResolver{ref(1): pdf.Dict{"First": ref(2)}}
	for i := uint32(2); i < maxDepth+10; i++ {
		r[ref(i)] = pdf.Dict{"Title": pdf.String("x"), "First": ref(i + 1)}
	}
	_, err := Read(r, pdf.Dict{"Outlines": ref(1)})
	if !errors.Is(err, errTooDeep) {
		t.Errorf("expected errTooDeep, got %v", err)
	}
}
