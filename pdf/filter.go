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
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"seehuhn.de/go/pdfscrub/internal/filter/ascii85"
	"seehuhn.de/go/pdfscrub/internal/filter/asciihex"
	"seehuhn.de/go/pdfscrub/internal/filter/lzw"
	"seehuhn.de/go/pdfscrub/internal/filter/predict"
	"seehuhn.de/go/pdfscrub/internal/filter/runlength"
	"seehuhn.de/go/pdfscrub/logging"
)

// Names of the standard filters.
const (
	FilterFlate     Name = "FlateDecode"
	FilterLZW       Name = "LZWDecode"
	FilterASCII85   Name = "ASCII85Decode"
	FilterASCIIHex  Name = "ASCIIHexDecode"
	FilterRunLength Name = "RunLengthDecode"
	FilterDCT       Name = "DCTDecode"
	FilterJPX       Name = "JPXDecode"
	FilterCCITTFax  Name = "CCITTFaxDecode"
	FilterJBIG2     Name = "JBIG2Decode"
	FilterCrypt     Name = "Crypt"
)

var abbreviations = map[Name]Name{
	"Fl":  FilterFlate,
	"LZW": FilterLZW,
	"A85": FilterASCII85,
	"AHx": FilterASCIIHex,
	"RL":  FilterRunLength,
	"DCT": FilterDCT,
	"CCF": FilterCCITTFax,
}

// IsImageFilter reports whether name is one of the image compression
// filters.  Data compressed with these filters is never decoded here.
func IsImageFilter(name Name) bool {
	switch name {
	case FilterDCT, FilterJPX, FilterCCITTFax, FilterJBIG2:
		return true
	}
	return false
}

// FilterInfo describes one stage of a stream's filter chain.
type FilterInfo struct {
	Name  Name
	Parms Dict
}

// Filters returns the filter chain of a stream dictionary, in the order
// in which the filters must be applied for decoding.  Abbreviated names
// are expanded.
func Filters(dict Dict) ([]FilterInfo, error) {
	filter := dict["Filter"]
	parms := dict["DecodeParms"]

	var res []FilterInfo
	switch f := filter.(type) {
	case nil:
		return nil, nil
	case Name:
		p, _ := parms.(Dict)
		res = append(res, FilterInfo{Name: f, Parms: p})
	case Array:
		pa, _ := parms.(Array)
		for i, obj := range f {
			name, ok := obj.(Name)
			if !ok {
				return nil, fmt.Errorf("invalid filter name %s", Format(obj))
			}
			var p Dict
			if i < len(pa) {
				p, _ = pa[i].(Dict)
			}
			res = append(res, FilterInfo{Name: name, Parms: p})
		}
	default:
		return nil, fmt.Errorf("invalid /Filter value %s", Format(filter))
	}

	for i := range res {
		if long, ok := abbreviations[res[i].Name]; ok {
			res[i].Name = long
		}
	}
	return res, nil
}

// Decode applies the filters named in the stream dictionary dict to raw.
// If dict has no /Filter entry, raw is returned unchanged.  Decoding stops
// at the first image filter.  Unsupported filters are logged and skipped.
func Decode(dict Dict, raw []byte) ([]byte, error) {
	filters, err := Filters(dict)
	if err != nil {
		return nil, err
	}

	data := raw
	for _, f := range filters {
		if IsImageFilter(f.Name) {
			break
		}
		data, err = decodeOne(f, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return data, nil
}

func decodeOne(f FilterInfo, data []byte) ([]byte, error) {
	switch f.Name {
	case FilterFlate:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		out, err := io.ReadAll(zr)
		if errors.Is(err, io.ErrUnexpectedEOF) && len(out) > 0 {
			logging.Logger().Debug("truncated compressed stream", "filter", f.Name)
			err = nil
		}
		if err != nil {
			return nil, err
		}
		return unpredict(out, f.Parms)
	case FilterLZW:
		out, err := io.ReadAll(lzw.NewReader(bytes.NewReader(data), earlyChange(f.Parms)))
		if err != nil {
			return nil, err
		}
		return unpredict(out, f.Parms)
	case FilterASCII85:
		return io.ReadAll(ascii85.Decode(bytes.NewReader(data)))
	case FilterASCIIHex:
		return io.ReadAll(asciihex.Decode(bytes.NewReader(data)))
	case FilterRunLength:
		return io.ReadAll(runlength.Decode(bytes.NewReader(data)))
	case FilterCrypt:
		// only the Identity crypt filter can be applied without keys
		return data, nil
	default:
		logging.Logger().Warn("unsupported filter, passing data through", "filter", f.Name)
		return data, nil
	}
}

// Encode applies the filters named in dict to data, so that Decode
// recovers data.  Image filters and unsupported filters leave the data
// unchanged.
func Encode(dict Dict, data []byte) ([]byte, error) {
	filters, err := Filters(dict)
	if err != nil {
		return nil, err
	}

	for i := len(filters) - 1; i >= 0; i-- {
		f := filters[i]
		data, err = encodeOne(f, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return data, nil
}

func encodeOne(f FilterInfo, data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	var w io.WriteCloser
	switch f.Name {
	case FilterFlate:
		pred, err := predictParams(f.Parms)
		if err != nil {
			return nil, err
		}
		data, err = predict.Encode(data, pred)
		if err != nil {
			return nil, err
		}
		w = zlib.NewWriter(buf)
	case FilterLZW:
		pred, err := predictParams(f.Parms)
		if err != nil {
			return nil, err
		}
		data, err = predict.Encode(data, pred)
		if err != nil {
			return nil, err
		}
		w = lzw.NewWriter(buf, earlyChange(f.Parms))
	case FilterASCII85:
		w = ascii85.Encode(nopCloser{buf})
	case FilterASCIIHex:
		w = asciihex.Encode(nopCloser{buf})
	case FilterRunLength:
		w = runlength.Encode(nopCloser{buf})
	case FilterCrypt:
		return data, nil
	default:
		if !IsImageFilter(f.Name) {
			logging.Logger().Warn("unsupported filter, passing data through", "filter", f.Name)
		}
		return data, nil
	}

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func earlyChange(parms Dict) bool {
	if v, ok := parms["EarlyChange"].(Integer); ok {
		return v != 0
	}
	return true
}

func predictParams(parms Dict) (*predict.Params, error) {
	p := &predict.Params{
		Predictor:        1,
		Colors:           1,
		BitsPerComponent: 8,
		Columns:          1,
	}
	for key, val := range map[Name]*int{
		"Predictor":        &p.Predictor,
		"Colors":           &p.Colors,
		"BitsPerComponent": &p.BitsPerComponent,
		"Columns":          &p.Columns,
	} {
		if x, ok := parms[key].(Integer); ok {
			*val = int(x)
		}
	}
	return p, p.Validate()
}

func unpredict(data []byte, parms Dict) ([]byte, error) {
	p, err := predictParams(parms)
	if err != nil {
		return nil, err
	}
	return predict.Decode(data, p)
}
