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
	"fmt"

	"seehuhn.de/go/pdfscrub/pdf"
)

// Issue describes one inconsistency between a linearization parameter
// dictionary and the file it belongs to.
type Issue struct {
	Key     pdf.Name
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("/%s: %s", i.Key, i.Message)
}

// ValidateLinearization checks the linearization parameter dictionary lin
// against the table and the length of the file.  All problems found are
// reported; an empty result means that the dictionary is consistent.
//
// The following entries are checked: /L must equal the file size, the
// hint stream ranges in /H must lie inside the file, /O must name an
// object in use which starts inside the file, and /E and /T must be
// offsets inside the file.
func (m *Manager) ValidateLinearization(lin pdf.Dict, fileSize int64) []Issue {
	var issues []Issue
	report := func(key pdf.Name, format string, args ...any) {
		issues = append(issues, Issue{Key: key, Message: fmt.Sprintf(format, args...)})
	}

	if L, ok := lin["L"].(pdf.Integer); !ok {
		report("L", "missing file length")
	} else if int64(L) != fileSize {
		report("L", "file length %d does not match actual length %d", L, fileSize)
	}

	switch H := lin["H"].(type) {
	case pdf.Array:
		if len(H) != 2 && len(H) != 4 {
			report("H", "expected 2 or 4 elements, got %d", len(H))
		}
		for i := 0; i+1 < len(H); i += 2 {
			start, ok1 := H[i].(pdf.Integer)
			length, ok2 := H[i+1].(pdf.Integer)
			if !ok1 || !ok2 {
				report("H", "hint stream %d: malformed offset or length", i/2)
				continue
			}
			if start < 0 || length <= 0 || int64(start)+int64(length) > fileSize {
				report("H", "hint stream %d: range %d+%d outside file of %d bytes",
					i/2, start, length, fileSize)
			}
		}
	default:
		report("H", "missing hint stream array")
	}

	if O, ok := lin["O"].(pdf.Integer); !ok || O <= 0 || O > pdf.Integer(^uint32(0)) {
		report("O", "missing or invalid first page object number")
	} else {
		e, ok := m.Entry(uint32(O))
		switch {
		case !ok || e.Status == Free:
			report("O", "first page object %d is not in use", O)
		case e.Status == InUse && e.Offset >= uint64(max(fileSize, 0)):
			report("O", "first page object %d at offset %d outside file", O, e.Offset)
		}
	}

	for _, key := range []pdf.Name{"E", "T"} {
		x, ok := lin[key].(pdf.Integer)
		if !ok {
			report(key, "missing offset")
		} else if x < 0 || int64(x) > fileSize {
			report(key, "offset %d outside file of %d bytes", x, fileSize)
		}
	}

	if N, ok := lin["N"].(pdf.Integer); ok && N <= 0 {
		report("N", "invalid page count %d", N)
	}

	return issues
}
