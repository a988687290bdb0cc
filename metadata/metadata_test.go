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

package metadata

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/text/language"
	"seehuhn.de/go/xmp"

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

func TestProperties(t *testing.T) {
	dc := &xmp.DublinCore{}
	dc.Title.Set(language.Und, "Test Document")
	dc.Creator.Append(xmp.NewProperName("Test Author"))
	info := &PDF{}
	info.Producer = xmp.NewAgentName("Some Producer 1.0")

	packet := xmp.NewPacket()
	err := packet.Set(dc, info)
	if err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	err = packet.Write(buf, nil)
	if err != nil {
		t.Fatal(err)
	}

	ref := pdf.NewReference(7, 0)
	r := memResolver{ref: &pdf.Stream{Dict: Dict(), Data: buf.Bytes()}}
	stm, err := Read(r, ref)
	if err != nil {
		t.Fatal(err)
	}
	if stm.Ref != ref || stm.Size != buf.Len() {
		t.Errorf("got ref %s, size %d", stm.Ref, stm.Size)
	}

	found := make(map[string]bool)
	for _, p := range stm.Properties() {
		found[strings.ToLower(p.Name)] = true
	}
	for _, name := range []string{"dc:title", "dc:creator", "pdf:producer"} {
		if !found[name] {
			t.Errorf("property %s not found in %v", name, found)
		}
	}
}

func TestEmpty(t *testing.T) {
	data, err := Empty()
	if err != nil {
		t.Fatal(err)
	}
	r := memResolver{pdf.NewReference(1, 0): &pdf.Stream{Dict: Dict(), Data: data}}
	stm, err := Read(r, pdf.NewReference(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if props := stm.Properties(); len(props) != 0 {
		t.Errorf("empty packet has properties %v", props)
	}
}

func TestMissing(t *testing.T) {
	stm, err := Read(memResolver{}, nil)
	if stm != nil || err != nil {
		t.Errorf("got %v, %v", stm, err)
	}
}
