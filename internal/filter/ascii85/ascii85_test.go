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

package ascii85

import (
	"bytes"
	"encoding/ascii85"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func TestDecode(t *testing.T) {
	testCases := []struct {
		in   string
		want []byte
	}{
		{"~>", nil},
		{"", nil},
		{"z~>", []byte{0, 0, 0, 0}},
		{"87cURD]j7BEbo80~>", []byte("Hello world!")},
		{"87cUR\nD]j7B\tEbo80~>", []byte("Hello world!")},
		{"87cURD]j7BEbo7~>", []byte("Hello world")},
		{"87cURD]j7BEbo7", []byte("Hello world")},
		{"5l~>", []byte("A")},
	}
	for _, tc := range testCases {
		out, err := io.ReadAll(Decode(bytes.NewReader([]byte(tc.in))))
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if d := cmp.Diff(tc.want, out, cmpopts.EquateEmpty()); d != "" {
			t.Errorf("%q: (-want +got):\n%s", tc.in, d)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, in := range []string{"abc{~>", "/~>", "87cUR~x"} {
		_, err := io.ReadAll(Decode(bytes.NewReader([]byte(in))))
		if err == nil {
			t.Errorf("%q: missing error", in)
		}
	}
}

// FuzzReader compares the decoder to the one in the standard library.
func FuzzReader(f *testing.F) {
	f.Add([]byte("1234"))
	f.Add([]byte("z"))
	f.Add([]byte("ABCDE"))

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, c := range data {
			if c < '!' || c > 'z' {
				return
			}
		}

		out1, err1 := io.ReadAll(ascii85.NewDecoder(bytes.NewReader(data)))

		in := append(bytes.Clone(data), '~', '>')
		out2, err2 := io.ReadAll(Decode(bytes.NewReader(in)))

		if err1 == nil && err2 != nil {
			t.Errorf("unexpected error %v", err2)
		}
		if err1 == nil && !bytes.Equal(out1, out2) {
			t.Errorf("got %q, want %q", out2, out1)
		}
	})
}

func FuzzRoundTrip(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte("Hello world!"))
	f.Add([]byte{0, 0, 0, 0, 1})

	f.Fuzz(func(t *testing.T, data []byte) {
		buf := &bytes.Buffer{}
		enc := Encode(nopCloser{buf})
		if _, err := enc.Write(data); err != nil {
			t.Fatal(err)
		}
		if err := enc.Close(); err != nil {
			t.Fatal(err)
		}

		out, err := io.ReadAll(Decode(buf))
		if err != nil {
			t.Fatal(err)
		}
		if d := cmp.Diff(data, out, cmpopts.EquateEmpty()); d != "" {
			t.Errorf("round trip failed (-want +got):\n%s", d)
		}
	})
}
