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

// Package predict implements the TIFF and PNG predictors which can be
// combined with the FlateDecode and LZWDecode filters.
package predict

import (
	"errors"
	"fmt"
)

const maxColumns = 1 << 20

// Params describes the layout of predicted data, as given in a
// DecodeParms dictionary.
type Params struct {
	// Predictor is 1 (none), 2 (TIFF) or 10-15 (PNG).
	Predictor int

	// Colors is the number of color components per pixel.
	Colors int

	// BitsPerComponent is 1, 2, 4, 8 or 16.
	BitsPerComponent int

	// Columns is the number of pixels per row.
	Columns int
}

// Validate checks that the parameters describe a supported layout.
func (p *Params) Validate() error {
	switch {
	case p.Predictor == 1:
		return nil
	case p.Predictor == 2:
		if p.Colors < 1 || p.Colors > 60 {
			return fmt.Errorf("predict: invalid Colors %d", p.Colors)
		}
	case p.Predictor >= 10 && p.Predictor <= 15:
		if p.Colors < 1 || p.Colors > 256 {
			return fmt.Errorf("predict: invalid Colors %d", p.Colors)
		}
	default:
		return fmt.Errorf("predict: unsupported predictor %d", p.Predictor)
	}

	switch p.BitsPerComponent {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("predict: invalid BitsPerComponent %d", p.BitsPerComponent)
	}

	if p.Columns < 1 || p.Columns > maxColumns {
		return errors.New("predict: invalid Columns value")
	}
	return nil
}

func (p *Params) bitsPerPixel() int {
	return p.Colors * p.BitsPerComponent
}

func (p *Params) bytesPerRow() int {
	return (p.bitsPerPixel()*p.Columns + 7) / 8
}

func (p *Params) bytesPerPixel() int {
	return max(1, (p.bitsPerPixel()+7)/8)
}

// Decode undoes the prediction on data.  A partial final row is
// decoded as far as it goes.
func Decode(data []byte, p *Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch {
	case p.Predictor == 1:
		return data, nil
	case p.Predictor == 2:
		res := make([]byte, len(data))
		copy(res, data)
		rowLen := p.bytesPerRow()
		for start := 0; start < len(res); start += rowLen {
			tiffRow(res[start:min(start+rowLen, len(res))], p, true)
		}
		return res, nil
	}

	rowLen := p.bytesPerRow()
	bpp := p.bytesPerPixel()
	res := make([]byte, 0, len(data)/(rowLen+1)*rowLen+rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for start := 0; start < len(data); start += rowLen + 1 {
		end := min(start+rowLen+1, len(data))
		tag := data[start]
		row := data[start+1 : end]
		cur = cur[:len(row)]
		for i, x := range row {
			var left, up, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch tag {
			case 0:
			case 1:
				x += left
			case 2:
				x += up
			case 3:
				x += byte((int(left) + int(up)) / 2)
			case 4:
				x += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("predict: invalid PNG row tag %d", tag)
			}
			cur[i] = x
		}
		res = append(res, cur...)
		copy(prev, cur)
	}
	return res, nil
}

// Encode applies the prediction to data.  For predictor 15 each row uses
// the PNG filter with the smallest sum of absolute differences.
func Encode(data []byte, p *Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch {
	case p.Predictor == 1:
		return data, nil
	case p.Predictor == 2:
		res := make([]byte, len(data))
		copy(res, data)
		rowLen := p.bytesPerRow()
		for start := 0; start < len(res); start += rowLen {
			tiffRow(res[start:min(start+rowLen, len(res))], p, false)
		}
		return res, nil
	}

	rowLen := p.bytesPerRow()
	bpp := p.bytesPerPixel()
	res := make([]byte, 0, len(data)+len(data)/rowLen+1)
	prev := make([]byte, rowLen)
	var candidates [5][]byte
	for start := 0; start < len(data); start += rowLen {
		row := data[start:min(start+rowLen, len(data))]

		var tag byte
		if p.Predictor == 15 {
			best := -1
			for t := range byte(5) {
				candidates[t] = pngFilter(candidates[t][:0], row, prev, bpp, t)
				score := 0
				for _, x := range candidates[t] {
					score += min(int(x), 256-int(x))
				}
				if best < 0 || score < best {
					best = score
					tag = t
				}
			}
		} else {
			tag = byte(p.Predictor - 10)
		}

		res = append(res, tag)
		res = pngFilter(res, row, prev, bpp, tag)
		copy(prev, row)
	}
	return res, nil
}

func pngFilter(dst, row, prev []byte, bpp int, tag byte) []byte {
	for i, x := range row {
		var left, up, upLeft byte
		if i >= bpp {
			left = row[i-bpp]
			upLeft = prev[i-bpp]
		}
		up = prev[i]
		switch tag {
		case 1:
			x -= left
		case 2:
			x -= up
		case 3:
			x -= byte((int(left) + int(up)) / 2)
		case 4:
			x -= paeth(left, up, upLeft)
		}
		dst = append(dst, x)
	}
	return dst
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// tiffRow applies (decode=false) or removes (decode=true) TIFF
// horizontal differencing on one row in place.
func tiffRow(row []byte, p *Params, decode bool) {
	bpc := p.BitsPerComponent
	n := len(row) * 8 / bpc
	n = min(n, p.Colors*p.Columns)
	mask := uint32(1)<<bpc - 1

	get := func(i int) uint32 {
		switch bpc {
		case 8:
			return uint32(row[i])
		case 16:
			return uint32(row[2*i])<<8 | uint32(row[2*i+1])
		}
		bit := i * bpc
		shift := 8 - bpc - bit%8
		return uint32(row[bit/8]>>shift) & mask
	}
	set := func(i int, v uint32) {
		v &= mask
		switch bpc {
		case 8:
			row[i] = byte(v)
			return
		case 16:
			row[2*i] = byte(v >> 8)
			row[2*i+1] = byte(v)
			return
		}
		bit := i * bpc
		shift := 8 - bpc - bit%8
		row[bit/8] = row[bit/8]&^byte(mask<<shift) | byte(v<<shift)
	}

	if decode {
		for i := p.Colors; i < n; i++ {
			set(i, get(i)+get(i-p.Colors))
		}
	} else {
		for i := n - 1; i >= p.Colors; i-- {
			set(i, get(i)-get(i-p.Colors))
		}
	}
}
