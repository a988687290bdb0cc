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

package forensic

import (
	"fmt"
	"strings"

	"seehuhn.de/go/pdfscrub/pdf"
)

// identityKeys are the entries of a signature dictionary which describe
// the signer.
var identityKeys = []pdf.Name{"Name", "Location", "Reason", "ContactInfo", "M"}

func (w *walker) walkSignatures(catalog pdf.Dict) error {
	form, err := pdf.GetDict(w.sc.doc, catalog["AcroForm"])
	if err != nil {
		w.sc.warn(w.stage, pdf.Reference{}, err)
		return nil
	}
	fields, _ := pdf.GetArray(w.sc.doc, form["Fields"])
	for _, field := range fields {
		if err := w.walkField(field, ""); err != nil {
			return err
		}
	}
	return nil
}

// walkField visits a form field and its descendants.  The field type is
// inherited from the parent.
func (w *walker) walkField(obj pdf.Object, inheritedType pdf.Name) error {
	ref, ok := obj.(pdf.Reference)
	if !ok || !w.sc.Visit(w.stage, ref) {
		return nil
	}
	if err := w.enter(); err != nil {
		return err
	}
	defer w.leave()

	resolved, err := w.resolve(ref)
	if err != nil {
		return err
	}
	field, _ := resolved.(pdf.Dict)
	if field == nil {
		return nil
	}

	ft, _ := pdf.GetName(w.sc.doc, field["FT"])
	if ft == "" {
		ft = inheritedType
	}
	if ft == "Sig" && field["V"] != nil {
		if err := w.checkSignature(ref, field); err != nil {
			return err
		}
	}

	kids, _ := pdf.GetArray(w.sc.doc, field["Kids"])
	for _, kid := range kids {
		if err := w.walkField(kid, ft); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) checkSignature(fieldRef pdf.Reference, field pdf.Dict) error {
	r := w.sc.doc
	val, err := w.resolve(field["V"])
	if err != nil {
		return err
	}
	sig, _ := val.(pdf.Dict)
	if sig == nil {
		return nil
	}

	var details []string
	var content []byte
	risk := Medium
	for _, key := range identityKeys {
		s, _ := pdf.GetString(r, sig[key])
		if len(s) == 0 {
			continue
		}
		text := s.AsTextString()
		if key == "M" {
			if t, err := s.AsDate(); err == nil {
				text = t.UTC().Format("2006-01-02 15:04:05")
			}
		}
		details = append(details, fmt.Sprintf("%s=%q", key, text))
		content = fmt.Appendf(content, "%s=%s\n", key, s)
	}

	br, _ := pdf.GetArray(r, sig["ByteRange"])
	if problem := w.checkByteRange(br); problem != "" {
		details = append(details, problem)
		risk = High
	}
	if contents, _ := pdf.GetString(r, sig["Contents"]); contents != nil {
		content = append(content, contents...)
	}

	desc := "signature"
	if len(details) > 0 {
		desc += ": " + strings.Join(details, ", ")
	}
	w.add(Signature, KindSignature, risk,
		Location{Object: fieldRef, Keys: []pdf.Name{"V"}, Path: fieldRef.String() + "/V"},
		desc, content)
	return nil
}

// checkByteRange checks that a signature covers the whole file except for
// the signature value itself.
func (w *walker) checkByteRange(br pdf.Array) string {
	if len(br) != 4 {
		return "invalid ByteRange"
	}
	var v [4]int64
	for i, obj := range br {
		x, err := pdf.GetInt(w.sc.doc, obj)
		if err != nil || x < 0 {
			return "invalid ByteRange"
		}
		v[i] = int64(x)
	}
	size := w.sc.doc.Size()
	switch {
	case v[0] != 0 || v[0]+v[1] > v[2]:
		return "ByteRange does not start at the beginning of the file"
	case v[2]+v[3] < size:
		return fmt.Sprintf("%d bytes were added after signing", size-(v[2]+v[3]))
	case v[2]+v[3] > size:
		return "ByteRange extends past the end of the file"
	}
	return ""
}
