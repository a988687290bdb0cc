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

// Package codec serializes cached values.
//
// Values are encoded as deterministic CBOR and then compressed as an lz4
// block when this makes them smaller.  The first byte of the encoded form
// tells which of the two representations is used.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"
)

const (
	tagRaw byte = 0
	tagLZ4 byte = 1
)

// maxUncompressed limits the size of decompressed values.
const maxUncompressed = 256 << 20

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: " + err.Error())
	}
}

var errCorrupt = errors.New("codec: corrupt data")

// Marshal encodes v as deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Pack encodes v and compresses the result.
func Pack(v any) ([]byte, error) {
	body, err := Marshal(v)
	if err != nil {
		return nil, err
	}

	res := make([]byte, 1+binary.MaxVarintLen64+lz4.CompressBlockBound(len(body)))
	res[0] = tagLZ4
	k := 1 + binary.PutUvarint(res[1:], uint64(len(body)))
	n, err := lz4.CompressBlock(body, res[k:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || k+n >= 1+len(body) {
		// incompressible
		res = append(res[:0], tagRaw)
		return append(res, body...), nil
	}
	return res[:k+n], nil
}

// Unpack reverses Pack and stores the result in v.
func Unpack(data []byte, v any) error {
	if len(data) == 0 {
		return errCorrupt
	}
	switch data[0] {
	case tagRaw:
		return Unmarshal(data[1:], v)
	case tagLZ4:
		size, k := binary.Uvarint(data[1:])
		if k <= 0 || size > maxUncompressed {
			return errCorrupt
		}
		body := make([]byte, size)
		n, err := lz4.UncompressBlock(data[1+k:], body)
		if err != nil {
			return fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != int(size) {
			return errCorrupt
		}
		return Unmarshal(body, v)
	default:
		return errCorrupt
	}
}
