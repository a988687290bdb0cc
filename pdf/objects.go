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
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
)

// Object represents an object in a PDF file.  There are nine native types of
// PDF objects, which implement this interface: Array, Bool, Dict, Integer,
// Name, Real, Reference, *Stream, and String.  The PDF null object is
// represented by a nil Object.
type Object interface {
	// PDF writes the PDF file representation of the object to w.
	PDF(w io.Writer) error
}

// Bool represents a boolean value in a PDF file.
type Bool bool

// PDF implements the Object interface.
func (x Bool) PDF(w io.Writer) error {
	var s string
	if x {
		s = "true"
	} else {
		s = "false"
	}
	_, err := io.WriteString(w, s)
	return err
}

// Integer represents an integer constant in a PDF file.
type Integer int64

// PDF implements the Object interface.
func (x Integer) PDF(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(x), 10))
	return err
}

// Real represents an real number in a PDF file.
type Real float64

// PDF implements the Object interface.
func (x Real) PDF(w io.Writer) error {
	s := strconv.FormatFloat(float64(x), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s = s + "."
	}
	_, err := io.WriteString(w, s)
	return err
}

// String represents a raw string in a PDF file.  The character set encoding,
// if any, is determined by the context.
type String []byte

// PDF implements the Object interface.
func (x String) PDF(w io.Writer) error {
	l := []byte(x)

	level := 0
	for _, c := range l {
		if c == '(' {
			level++
		} else if c == ')' {
			level--
			if level < 0 {
				break
			}
		}
	}
	balanced := level == 0

	var funny []int
	for i, c := range l {
		if c == '\r' || c == '\n' || c == '\t' {
			continue
		}
		if c < 32 || c >= 127 || c == '\\' ||
			!balanced && (c == '(' || c == ')') {
			funny = append(funny, i)
		}
	}
	n := len(l)

	buf := &bytes.Buffer{}
	if 3*len(funny) <= n {
		buf.WriteString("(")
		pos := 0
		for _, i := range funny {
			if pos < i {
				buf.Write(l[pos:i])
			}
			c := l[i]
			switch c {
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			case '(':
				buf.WriteString(`\(`)
			case ')':
				buf.WriteString(`\)`)
			case '\\':
				buf.WriteString(`\\`)
			default:
				fmt.Fprintf(buf, `\%03o`, c)
			}
			pos = i + 1
		}
		if pos < n {
			buf.Write(l[pos:n])
		}
		buf.WriteString(")")
	} else {
		fmt.Fprintf(buf, "<%x>", l)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// Name represents a name in a PDF file.
type Name string

// PDF implements the Object interface.
func (x Name) PDF(w io.Writer) error {
	l := []byte(x)

	buf := &bytes.Buffer{}
	buf.WriteString("/")
	for _, c := range l {
		if isSpace[c] || isDelimiter[c] || c < 0x21 || c > 0x7e || c == '#' {
			fmt.Fprintf(buf, "#%02x", c)
		} else {
			buf.WriteByte(c)
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// Array represent an array of objects in a PDF file.
type Array []Object

func (x Array) String() string {
	return "<Array, " + strconv.Itoa(len(x)) + " elements>"
}

// PDF implements the Object interface.
func (x Array) PDF(w io.Writer) error {
	_, err := io.WriteString(w, "[")
	if err != nil {
		return err
	}
	for i, val := range x {
		if i > 0 {
			_, err := io.WriteString(w, " ")
			if err != nil {
				return err
			}
		}
		if val == nil {
			_, err = io.WriteString(w, "null")
		} else {
			err = val.PDF(w)
		}
		if err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "]")
	return err
}

// Dict represent a Dictionary object in a PDF file.
type Dict map[Name]Object

func (x Dict) String() string {
	res := []string{}
	tp, ok := x["Type"].(Name)
	if ok {
		res = append(res, string(tp)+" Dict")
	} else {
		res = append(res, "Dict")
	}
	res = append(res, strconv.FormatInt(int64(len(x)), 10)+" entries")
	return "<" + strings.Join(res, ", ") + ">"
}

// PDF implements the Object interface.
// Keys are written in sorted order, so that the output is deterministic.
func (x Dict) PDF(w io.Writer) error {
	if x == nil {
		_, err := io.WriteString(w, "null")
		return err
	}

	_, err := io.WriteString(w, "<<")
	if err != nil {
		return err
	}

	names := maps.Keys(x)
	slices.Sort(names)
	for _, name := range names {
		val := x[name]
		if val == nil {
			continue
		}

		_, err = io.WriteString(w, "\n")
		if err != nil {
			return err
		}
		err = name.PDF(w)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, " ")
		if err != nil {
			return err
		}
		err = val.PDF(w)
		if err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "\n>>")
	return err
}

// Clone returns a shallow copy of the dictionary.
func (x Dict) Clone() Dict {
	if x == nil {
		return nil
	}
	res := make(Dict, len(x))
	for key, val := range x {
		res[key] = val
	}
	return res
}

// Stream represent a stream object in a PDF file.
// Data holds the raw (still encoded) bytes between the "stream" and
// "endstream" keywords.
type Stream struct {
	Dict
	Data []byte
}

func (x *Stream) String() string {
	res := []string{}
	tp, ok := x.Dict["Type"].(Name)
	if ok {
		res = append(res, string(tp)+" Stream")
	} else {
		res = append(res, "Stream")
	}
	res = append(res, strconv.Itoa(len(x.Data))+" bytes")
	switch filter := x.Dict["Filter"].(type) {
	case Name:
		res = append(res, string(filter))
	case Array:
		for _, f := range filter {
			if name, ok := f.(Name); ok {
				res = append(res, string(name))
			}
		}
	}
	return "<" + strings.Join(res, ", ") + ">"
}

// PDF implements the Object interface.
// The /Length entry is always rewritten to match the stream data.
func (x *Stream) PDF(w io.Writer) error {
	dict := x.Dict.Clone()
	if dict == nil {
		dict = Dict{}
	}
	dict["Length"] = Integer(len(x.Data))
	err := dict.PDF(w)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "\nstream\n")
	if err != nil {
		return err
	}
	_, err = w.Write(x.Data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "\nendstream")
	return err
}

// Decode returns the stream data with all non-image filters removed.
func (x *Stream) Decode() ([]byte, error) {
	return Decode(x.Dict, x.Data)
}

// Reference represents a reference to an indirect object in a PDF file.
// The zero value is not a valid reference, since object number 0 is
// always the head of the free list.
type Reference struct {
	Number     uint32
	Generation uint16
}

// NewReference returns a new reference to the object with the given number
// and generation.
func NewReference(number uint32, generation uint16) Reference {
	return Reference{Number: number, Generation: generation}
}

// IsZero reports whether x is the zero reference.
func (x Reference) IsZero() bool {
	return x.Number == 0 && x.Generation == 0
}

func (x Reference) String() string {
	return strconv.FormatUint(uint64(x.Number), 10) + " " +
		strconv.FormatUint(uint64(x.Generation), 10) + " R"
}

// PDF implements the Object interface.
func (x Reference) PDF(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d %d R", x.Number, x.Generation)
	return err
}

// Format returns the PDF representation of obj as a string.
// This is mostly useful for log and error messages.
func Format(obj Object) string {
	if obj == nil {
		return "null"
	}
	buf := &bytes.Buffer{}
	err := obj.PDF(buf)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return buf.String()
}

// Size returns an estimate of the number of bytes occupied by obj in
// memory.  Referenced objects are not followed.
func Size(obj Object) int64 {
	const overhead = 16
	switch x := obj.(type) {
	case nil, Bool, Integer, Real, Reference:
		return overhead
	case Name:
		return overhead + int64(len(x))
	case String:
		return overhead + int64(len(x))
	case Array:
		total := int64(overhead)
		for _, elem := range x {
			total += Size(elem)
		}
		return total
	case Dict:
		total := int64(overhead)
		for key, val := range x {
			total += int64(len(key)) + Size(val)
		}
		return total
	case *Stream:
		return Size(x.Dict) + int64(len(x.Data))
	default:
		return overhead
	}
}
