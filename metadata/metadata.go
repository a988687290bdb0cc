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

// Package metadata inspects and replaces XMP metadata streams.
package metadata

import (
	"bytes"
	"fmt"
	"reflect"

	"seehuhn.de/go/xmp"

	"seehuhn.de/go/pdfscrub/pdf"
)

// PDF 2.0 sections: 14.3

// PDF is the XMP namespace for PDF metadata.
// See https://developer.adobe.com/xmp/docs/XMPNamespaces/pdf/
type PDF struct {
	_          xmp.Namespace `xmp:"http://ns.adobe.com/pdf/1.3/"`
	_          xmp.Prefix    `xmp:"pdf"`
	Keywords   xmp.Text
	PDFVersion xmp.Text
	Producer   xmp.AgentName
	Trapped    xmp.Text
}

// Property is one non-empty XMP property.
type Property struct {
	// Name is the prefixed property name, for example "dc:creator".
	Name  string
	Value string
}

// Stream represents an XMP metadata stream.
type Stream struct {
	Ref    pdf.Reference
	Packet *xmp.Packet

	// Size is the length of the decoded packet in bytes.
	Size int
}

// Read reads the metadata stream referenced by obj.
// If obj is nil, nil is returned.
func Read(r pdf.Resolver, obj pdf.Object) (*Stream, error) {
	stm, err := pdf.GetStream(r, obj)
	if stm == nil {
		return nil, err
	}
	body, err := stm.Decode()
	if err != nil {
		return nil, err
	}

	packet, err := xmp.Read(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	res := &Stream{Packet: packet, Size: len(body)}
	if ref, ok := obj.(pdf.Reference); ok {
		res.Ref = ref
	}
	return res, nil
}

// Properties lists the non-empty properties of the well-known schemas
// (Dublin Core, XMP basic, media management, rights management and PDF).
func (s *Stream) Properties() []Property {
	if s == nil || s.Packet == nil {
		return nil
	}

	var res []Property
	for _, schema := range []any{
		&xmp.DublinCore{},
		&xmp.Basic{},
		&xmp.MediaManagement{},
		&xmp.RightsManagement{},
		&PDF{},
	} {
		s.Packet.Get(schema)
		res = append(res, properties(s.Packet, schema)...)
	}
	return res
}

func properties(p *xmp.Packet, v any) []Property {
	s := reflect.Indirect(reflect.ValueOf(v))
	st := s.Type()

	prefixType := reflect.TypeFor[xmp.Prefix]()
	valueType := reflect.TypeFor[xmp.Value]()

	var pfx string
	for i := 0; i < st.NumField(); i++ {
		if st.Field(i).Type == prefixType {
			pfx = st.Field(i).Tag.Get("xmp") + ":"
			break
		}
	}

	var res []Property
	for i := 0; i < st.NumField(); i++ {
		fVal := s.Field(i)
		fInfo := st.Field(i)
		if !fVal.CanInterface() || !fVal.Type().Implements(valueType) {
			continue
		}
		val := fVal.Interface().(xmp.Value)
		if val.IsZero() {
			continue
		}
		name := fInfo.Tag.Get("xmp")
		if name == "" {
			name = fInfo.Name
		}
		res = append(res, Property{
			Name:  pfx + name,
			Value: format(p, val),
		})
	}
	return res
}

func format(p *xmp.Packet, val xmp.Value) string {
	switch val := val.(type) {
	case xmp.Text:
		return val.V
	case xmp.Date:
		return val.V.String()
	}
	if raw, ok := val.EncodeXMP(p).(xmp.Text); ok {
		return raw.V
	}
	return fmt.Sprint(val)
}

// Empty returns the serialization of an XMP packet without properties.
func Empty() ([]byte, error) {
	buf := &bytes.Buffer{}
	err := xmp.NewPacket().Write(buf, nil)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Dict returns the stream dictionary for a metadata stream.
func Dict() pdf.Dict {
	return pdf.Dict{
		"Type":    pdf.Name("Metadata"),
		"Subtype": pdf.Name("XML"),
	}
}
