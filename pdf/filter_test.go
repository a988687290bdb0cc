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
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"seehuhn.de/go/pdfscrub/logging"
)

func TestDecodeVectors(t *testing.T) {
	testCases := []struct {
		name string
		dict Dict
		in   []byte
		want []byte
	}{
		{
			name: "no filter",
			dict: Dict{},
			in:   []byte("raw data"),
			want: []byte("raw data"),
		},
		{
			name: "run length",
			dict: Dict{"Filter": FilterRunLength},
			in:   []byte{254, 0x41, 2, 0x42, 0x43, 0x44, 128},
			want: []byte("AAABCD"),
		},
		{
			name: "ascii hex",
			dict: Dict{"Filter": FilterASCIIHex},
			in:   []byte("48656C6C6F20776F726C64>"),
			want: []byte("Hello world"),
		},
		{
			name: "abbreviation",
			dict: Dict{"Filter": Name("AHx")},
			in:   []byte("414>"),
			want: []byte("A@"),
		},
		{
			name: "chain",
			dict: Dict{"Filter": Array{FilterASCIIHex, FilterRunLength}},
			in:   []byte("FE41 02 42 43 44 80>"),
			want: []byte("AAABCD"),
		},
		{
			name: "image filter stops decoding",
			dict: Dict{"Filter": Array{FilterASCIIHex, FilterDCT}},
			in:   []byte("FFD8FFD9>"),
			want: []byte{0xFF, 0xD8, 0xFF, 0xD9},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.dict, tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if d := cmp.Diff(tc.want, got); d != "" {
				t.Errorf("(-want +got):\n%s", d)
			}
		})
	}
}

func TestUnknownFilter(t *testing.T) {
	old := logging.Logger()
	defer logging.SetLogger(old)
	buf := &bytes.Buffer{}
	logging.SetLogger(slog.New(slog.NewTextHandler(buf, nil)))

	in := []byte("opaque")
	got, err := Decode(Dict{"Filter": Name("FancyDecode")}, in)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, in) {
		t.Errorf("data changed to %q", got)
	}
	if !strings.Contains(buf.String(), "FancyDecode") {
		t.Errorf("unsupported filter not logged: %q", buf.String())
	}
}

func TestFilterRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("a"),
		[]byte("abcde"),
		bytes.Repeat([]byte("stream data "), 500),
		{0, 0, 0, 0, 0, 1, 2, 3, 255, 254},
	}
	dicts := []Dict{
		{"Filter": FilterFlate},
		{"Filter": FilterLZW},
		{"Filter": FilterLZW, "DecodeParms": Dict{"EarlyChange": Integer(0)}},
		{"Filter": FilterASCII85},
		{"Filter": FilterASCIIHex},
		{"Filter": FilterRunLength},
		{"Filter": Array{FilterASCII85, FilterFlate}},
		{
			"Filter":      FilterFlate,
			"DecodeParms": Dict{"Predictor": Integer(12), "Columns": Integer(5)},
		},
		{
			"Filter":      Array{FilterASCIIHex, FilterLZW},
			"DecodeParms": Array{nil, Dict{"Predictor": Integer(2), "Columns": Integer(5)}},
		},
	}
	for i, dict := range dicts {
		for j, in := range inputs {
			enc, err := Encode(dict, in)
			if err != nil {
				t.Fatalf("%d/%d: encode: %v", i, j, err)
			}
			out, err := Decode(dict, enc)
			if err != nil {
				t.Fatalf("%d/%d: decode: %v", i, j, err)
			}
			if d := cmp.Diff(in, out, cmpopts.EquateEmpty()); d != "" {
				t.Errorf("%d/%d: round trip failed (-want +got):\n%s", i, j, d)
			}
		}
	}
}

func TestFilters(t *testing.T) {
	_, err := Filters(Dict{"Filter": Integer(1)})
	if err == nil {
		t.Error("invalid /Filter accepted")
	}

	got, err := Filters(Dict{
		"Filter":      Array{Name("Fl"), Name("DCT")},
		"DecodeParms": Array{Dict{"Columns": Integer(3)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []FilterInfo{
		{Name: FilterFlate, Parms: Dict{"Columns": Integer(3)}},
		{Name: FilterDCT},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("(-want +got):\n%s", d)
	}
}

func TestCleanDecoded(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"", ""},
		{"q 1 0 0 1 0 0 cm Q", "q 1 0 0 1 0 0 cm Q"},
		{"  q   Q  \n\n\n", "q Q"},
		{"q\x00\x00\x00\x00Q", "q Q"},
		{"BT\n% generated by foo\n/F1 12 Tf\nET", "BT\n/F1 12 Tf\nET"},
		{"(two  spaces  %kept) Tj", "(two  spaces  %kept) Tj"},
		{"<41  42> Tj   <</A  1>>", "<41  42> Tj <</A 1>>"},
		{"q 50% Q", "q 50% Q"},
		{"BI /W 1 ID \x01\x02 EI", "BI /W 1 ID \x01\x02 EI"},
	}
	for _, tc := range testCases {
		got := string(CleanDecoded([]byte(tc.in)))
		if got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.in, got, tc.want)
		}
	}
}
