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

package jpegseg

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func segment(marker byte, payload string) []byte {
	l := len(payload) + 2
	res := []byte{0xFF, marker, byte(l >> 8), byte(l)}
	return append(res, payload...)
}

func testImage() []byte {
	var buf []byte
	buf = append(buf, 0xFF, SOI)
	buf = append(buf, segment(APP0, "JFIF\x00\x01\x02\x00\x00\x01\x00\x01\x00\x00")...)
	buf = append(buf, segment(APP1, "Exif\x00\x00camera serial 1234")...)
	buf = append(buf, segment(COM, "made by someone")...)
	buf = append(buf, segment(SOS, "\x01\x01\x00\x00\x3F\x00")...)
	buf = append(buf, 0x12, 0xFF, 0x00, 0x34, 0xFF, 0xD0, 0x56)
	buf = append(buf, 0xFF, EOI)
	return buf
}

func TestScan(t *testing.T) {
	img := testImage()
	data := append(bytes.Clone(img), "hidden"...)

	segs, end, err := Scan(data)
	if err != nil {
		t.Fatal(err)
	}
	if end != len(img) {
		t.Errorf("end = %d, want %d", end, len(img))
	}

	var markers []byte
	for _, seg := range segs {
		markers = append(markers, seg.Marker)
	}
	if d := cmp.Diff([]byte{APP0, APP1, COM, SOS}, markers); d != "" {
		t.Errorf("markers (-want +got):\n%s", d)
	}
	if sos := segs[3]; sos.Offset+sos.Length != len(img)-2 {
		t.Errorf("SOS segment ends at %d", sos.Offset+sos.Length)
	}
}

func TestStrip(t *testing.T) {
	data := append(testImage(), "hidden"...)
	out, err := Strip(data, IsMetadata)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"Exif", "made by", "hidden"} {
		if bytes.Contains(out, []byte(s)) {
			t.Errorf("%q not removed", s)
		}
	}
	if !bytes.Contains(out, []byte("JFIF")) {
		t.Error("JFIF header removed")
	}

	segs, end, err := Scan(out)
	if err != nil || end != len(out) || len(segs) != 2 {
		t.Errorf("stripped image: %d segments, end %d/%d, %v", len(segs), end, len(out), err)
	}
}

func TestScanInvalid(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("not a jpeg"),
		{0xFF, SOI, 0xFF, APP1, 0x00},
		{0xFF, SOI, 0xFF, APP1, 0x00, 0x10, 1, 2},
	}
	for i, data := range cases {
		if _, _, err := Scan(data); err == nil {
			t.Errorf("%d: no error", i)
		}
	}
}
