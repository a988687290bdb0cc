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
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

var errNoDate = errors.New("not a valid date string")

var (
	utf16Decoder = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	utf16Encoder = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
)

func isUTF16(s String) bool {
	return len(s) >= 2 && s[0] == 0xFE && s[1] == 0xFF
}

// AsTextString interprets x as a PDF "text string" and returns
// the corresponding utf-8 encoded string.
func (x String) AsTextString() string {
	if isUTF16(x) {
		res, err := utf16Decoder.NewDecoder().Bytes(x)
		if err == nil {
			return string(res)
		}
	}
	return pdfDocDecode(x)
}

// TextString creates a String object using the "text string" encoding,
// i.e. using either UTF-16BE encoding (with a BOM) or PDFDocEncoding.
func TextString(s string) String {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		c, ok := pdfDocEncode(r)
		if !ok {
			res, err := utf16Encoder.NewEncoder().String(s)
			if err != nil {
				break
			}
			return String(res)
		}
		buf = append(buf, c)
	}
	return String(buf)
}

// AsDate converts a PDF date string to a time.Time object.
// If the string does not have the correct format, an error is returned.
func (x String) AsDate() (time.Time, error) {
	s := x.AsTextString()
	if s == "D:" {
		return time.Time{}, nil
	}
	s = strings.ReplaceAll(s, "'", "")
	if !strings.HasPrefix(s, "D:") {
		s = "D:" + s
	}

	formats := []string{
		"D:20060102150405-0700",
		"D:20060102150405-07",
		"D:20060102150405Z0000",
		"D:20060102150405Z00",
		"D:20060102150405Z",
		"D:20060102150405",
		"D:200601021504",
		"D:2006010215",
		"D:20060102",
		"D:200601",
		"D:2006",
	}
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNoDate
}

// Date creates a PDF String object encoding the given date and time.
func Date(t time.Time) String {
	s := t.Format("D:20060102150405-0700")
	k := len(s) - 2
	s = s[:k] + "'" + s[k:]
	return String(s)
}

// PDFDocEncode encodes s using PDFDocEncoding.  The second return value is
// false if s contains characters which cannot be represented.
func PDFDocEncode(s string) ([]byte, bool) {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		c, ok := pdfDocEncode(r)
		if !ok {
			return nil, false
		}
		buf = append(buf, c)
	}
	return buf, true
}

func pdfDocDecode(s String) string {
	plain := true
	for _, c := range []byte(s) {
		if pdfDocSpecial[c] != 0 || c >= 0x7f {
			plain = false
			break
		}
	}
	if plain {
		return string(s)
	}

	buf := make([]byte, 0, len(s)+8)
	for _, c := range []byte(s) {
		r := rune(c)
		if special := pdfDocSpecial[c]; special != 0 {
			r = special
		} else if c == 0x7f || c == 0x9f || c == 0xad {
			r = utf8.RuneError
		}
		buf = utf8.AppendRune(buf, r)
	}
	return string(buf)
}

func pdfDocEncode(r rune) (byte, bool) {
	switch {
	case r < 0x18 || r >= 0x20 && r < 0x7f:
		return byte(r), true
	case r >= 0xa1 && r <= 0xff && r != 0xad:
		return byte(r), true
	}
	for c, special := range pdfDocSpecial {
		if special == r {
			return byte(c), true
		}
	}
	return 0, false
}

// pdfDocSpecial lists the code points where PDFDocEncoding differs
// from ISO Latin-1.
var pdfDocSpecial = [256]rune{
	0x18: 0x02D8, 0x19: 0x02C7, 0x1A: 0x02C6, 0x1B: 0x02D9,
	0x1C: 0x02DD, 0x1D: 0x02DB, 0x1E: 0x02DA, 0x1F: 0x02DC,

	0x80: 0x2022, 0x81: 0x2020, 0x82: 0x2021, 0x83: 0x2026,
	0x84: 0x2014, 0x85: 0x2013, 0x86: 0x0192, 0x87: 0x2044,
	0x88: 0x2039, 0x89: 0x203A, 0x8A: 0x2212, 0x8B: 0x2030,
	0x8C: 0x201E, 0x8D: 0x201C, 0x8E: 0x201D, 0x8F: 0x2018,
	0x90: 0x2019, 0x91: 0x201A, 0x92: 0x2122, 0x93: 0xFB01,
	0x94: 0xFB02, 0x95: 0x0141, 0x96: 0x0152, 0x97: 0x0160,
	0x98: 0x0178, 0x99: 0x017D, 0x9A: 0x0131, 0x9B: 0x0142,
	0x9C: 0x0153, 0x9D: 0x0161, 0x9E: 0x017E,

	0xA0: 0x20AC,
}
