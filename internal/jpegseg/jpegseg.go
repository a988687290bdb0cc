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

// Package jpegseg splits JPEG data into marker segments.
//
// This is used to find metadata inside DCT-encoded images and data which
// has been appended after the end of an image.  The entropy-coded image
// data is never decoded.
package jpegseg

import (
	"bytes"
	"errors"
)

// JPEG markers.
const (
	SOI   = 0xD8
	EOI   = 0xD9
	SOS   = 0xDA
	APP0  = 0xE0
	APP1  = 0xE1
	APP2  = 0xE2
	APP13 = 0xED
	APP14 = 0xEE
	COM   = 0xFE
)

var (
	errNoSOI     = errors.New("jpeg: missing SOI marker")
	errTruncated = errors.New("jpeg: truncated segment")
	errNoMarker  = errors.New("jpeg: expected marker")
)

// Segment describes one marker segment.
type Segment struct {
	Marker byte

	// Offset is the position of the 0xFF byte which starts the marker.
	Offset int

	// Length is the total length of the segment.  For SOS segments this
	// includes the entropy-coded data which follows the header.
	Length int

	// Payload is the segment data after the length field.
	Payload []byte
}

// Scan parses the marker structure of a JPEG image.  It returns the
// segments in file order (without SOI and EOI) and the offset just after
// the EOI marker.
func Scan(data []byte) ([]Segment, int, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != SOI {
		return nil, 0, errNoSOI
	}

	var segs []Segment
	pos := 2
	for {
		// fill bytes
		for pos+1 < len(data) && data[pos] == 0xFF && data[pos+1] == 0xFF {
			pos++
		}
		if pos+1 >= len(data) {
			return segs, len(data), errTruncated
		}
		if data[pos] != 0xFF {
			return segs, pos, errNoMarker
		}
		marker := data[pos+1]
		start := pos
		pos += 2

		switch {
		case marker == EOI:
			return segs, pos, nil
		case marker == 0x01 || marker >= 0xD0 && marker <= 0xD7:
			segs = append(segs, Segment{Marker: marker, Offset: start, Length: 2})
			continue
		}

		if pos+2 > len(data) {
			return segs, len(data), errTruncated
		}
		l := int(data[pos])<<8 | int(data[pos+1])
		if l < 2 || pos+l > len(data) {
			return segs, len(data), errTruncated
		}
		payload := data[pos+2 : pos+l]
		pos += l

		if marker == SOS {
			pos = skipEntropyCoded(data, pos)
		}
		segs = append(segs, Segment{
			Marker:  marker,
			Offset:  start,
			Length:  pos - start,
			Payload: payload,
		})
	}
}

// skipEntropyCoded returns the position of the first marker after
// entropy-coded data starting at pos.
func skipEntropyCoded(data []byte, pos int) int {
	for {
		k := bytes.IndexByte(data[pos:], 0xFF)
		if k < 0 || pos+k+1 >= len(data) {
			return len(data)
		}
		pos += k
		next := data[pos+1]
		if next == 0x00 || next >= 0xD0 && next <= 0xD7 || next == 0xFF {
			pos++
			continue
		}
		return pos
	}
}

// IsMetadata reports whether a segment carries metadata which is not
// needed to display the image: Exif and XMP data, Photoshop resources and
// comments.  JFIF headers, ICC profiles and Adobe color transform
// information are kept.
func IsMetadata(seg Segment) bool {
	switch seg.Marker {
	case COM, APP13:
		return true
	case APP0:
		return !bytes.HasPrefix(seg.Payload, []byte("JFIF\x00"))
	case APP2:
		return !bytes.HasPrefix(seg.Payload, []byte("ICC_PROFILE\x00"))
	case APP14:
		return false
	}
	return seg.Marker > APP0 && seg.Marker <= 0xEF
}

// Strip returns a copy of data without the segments for which drop
// returns true.  The result ends with the EOI marker; any data after the
// end of the image is removed.
func Strip(data []byte, drop func(Segment) bool) ([]byte, error) {
	segs, end, err := Scan(data)
	if err != nil {
		return nil, err
	}

	res := make([]byte, 0, end)
	res = append(res, 0xFF, SOI)
	for _, seg := range segs {
		if drop != nil && drop(seg) {
			continue
		}
		res = append(res, data[seg.Offset:seg.Offset+seg.Length]...)
	}
	res = append(res, 0xFF, EOI)
	return res, nil
}
