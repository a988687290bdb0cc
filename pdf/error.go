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
	"strconv"
)

var (
	errVersion     = errors.New("unsupported PDF version")
	errNoHeader    = errors.New("PDF header not found")
	errNoStartXRef = errors.New("startxref not found")
	errTooDeep     = errors.New("objects nested too deeply")
	errPeekWindow  = errors.New("look-ahead exceeds scanner buffer")

	// ErrMissingLength is returned when a stream dictionary has no usable
	// /Length entry.
	ErrMissingLength = errors.New("stream without valid /Length")

	// ErrEndstream is returned when a stream is not terminated by the
	// "endstream" keyword at the position given by its /Length.
	ErrEndstream = errors.New("stream length does not match endstream")
)

// MalformedFileError indicates that the PDF file could not be parsed.
type MalformedFileError struct {
	Pos int64
	Err error
}

func (err *MalformedFileError) Error() string {
	middle := ""
	if err.Err != nil {
		middle = ": " + err.Err.Error()
	}
	tail := ""
	if err.Pos > 0 {
		tail = " (at byte " + strconv.FormatInt(err.Pos, 10) + ")"
	}
	return "not a valid PDF file" + middle + tail
}

func (err *MalformedFileError) Unwrap() error {
	return err.Err
}

// IsMalformed reports whether err indicates a structural problem with the
// PDF file.
func IsMalformed(err error) bool {
	var e *MalformedFileError
	return errors.As(err, &e)
}
