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

package xref

import (
	"errors"
	"fmt"

	"seehuhn.de/go/pdfscrub/pdf"
)

var (
	// ErrGenerationExhausted is returned when an object number cannot be
	// reused because its generation number would exceed the configured
	// ceiling.  The number is retired.
	ErrGenerationExhausted = errors.New("generation numbers exhausted")

	// ErrCompressed indicates that a classic cross-reference table cannot
	// represent objects stored in object streams.
	ErrCompressed = errors.New("compressed entries need a cross-reference stream")
)

// UnknownReferenceError is returned when a reference does not correspond
// to any entry of the table.
type UnknownReferenceError struct {
	Ref pdf.Reference
}

func (err *UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown reference %s", err.Ref)
}

// GenerationMismatchError is returned when a reference carries a
// generation number different from the one stored in the table.
type GenerationMismatchError struct {
	Ref     pdf.Reference
	Current uint16
}

func (err *GenerationMismatchError) Error() string {
	return fmt.Sprintf("stale reference %s: object %d has generation %d",
		err.Ref, err.Ref.Number, err.Current)
}
