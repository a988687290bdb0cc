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
	"fmt"
)

// maxObjStmObjects limits the /N value accepted for object streams.
const maxObjStmObjects = 100_000

// CompressedObject is an object stored inside an object stream.
type CompressedObject struct {
	Number uint32
	Object Object
}

// ReadObjectStream decodes an object stream and returns the objects it
// contains, in the order given by the stream's header.  Objects which
// cannot be parsed are returned with a nil Object, together with an
// error describing the first failure.
func ReadObjectStream(stm *Stream) ([]CompressedObject, error) {
	if tp, _ := stm.Dict["Type"].(Name); tp != "ObjStm" {
		return nil, &MalformedFileError{Err: errors.New("not an object stream")}
	}
	n, ok := stm.Dict["N"].(Integer)
	if !ok || n < 0 || n > maxObjStmObjects {
		return nil, &MalformedFileError{Err: errors.New("no valid /N for object stream")}
	}
	first, ok := stm.Dict["First"].(Integer)
	if !ok || first < 0 {
		return nil, &MalformedFileError{Err: errors.New("no valid /First for object stream")}
	}

	data, err := Decode(stm.Dict, stm.Data)
	if err != nil {
		return nil, &MalformedFileError{Err: err}
	}
	if int64(first) > int64(len(data)) {
		return nil, &MalformedFileError{Err: errors.New("/First beyond end of object stream")}
	}

	s := newBytesScanner(data[:first])
	type header struct {
		number uint32
		offset int64
	}
	idx := make([]header, n)
	for i := range idx {
		err := s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		number, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		offset, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		if number < 0 || number > 1<<32-1 || offset < 0 || int64(first)+int64(offset) > int64(len(data)) {
			return nil, &MalformedFileError{Err: fmt.Errorf("invalid object stream header entry %d %d", number, offset)}
		}
		idx[i] = header{number: uint32(number), offset: int64(first) + int64(offset)}
	}

	res := make([]CompressedObject, len(idx))
	var firstErr error
	for i, h := range idx {
		res[i].Number = h.number
		end := int64(len(data))
		if i+1 < len(idx) && idx[i+1].offset >= h.offset {
			end = idx[i+1].offset
		}
		obj, err := ParseObject(data[h.offset:end])
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("object %d in object stream: %w", h.number, err)
			}
			continue
		}
		if _, isStream := obj.(*Stream); isStream {
			if firstErr == nil {
				firstErr = &MalformedFileError{Err: errors.New("stream inside object stream")}
			}
			continue
		}
		res[i].Object = obj
	}
	return res, firstErr
}
