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

package forensic

import (
	"fmt"
	"strconv"
	"strings"

	"seehuhn.de/go/pdfscrub/pdf"
)

// maxListed limits the number of object numbers quoted in a description.
const maxListed = 16

func (w *walker) walkRevisions() error {
	doc := w.sc.doc
	xrefLoc := Location{Path: "/xref"}

	h, hasHistory := doc.(History)

	if n := doc.Revisions(); n > 1 {
		desc := fmt.Sprintf("%d incremental updates retain earlier versions of the document", n-1)
		if hasHistory {
			var offsets []string
			for _, offs := range h.XRefOffsets() {
				offsets = append(offsets, strconv.FormatInt(offs, 10))
			}
			if len(offsets) > 0 {
				desc += " (cross-reference sections at " + strings.Join(offsets, ", ") + ")"
			}
		}
		w.add(Revision, KindIncrementalUpdate, Medium, xrefLoc, desc,
			fmt.Appendf(nil, "%d", n))
	}

	if hasHistory {
		if h.Repaired() {
			w.add(Revision, KindRepairedXRef, Low, xrefLoc,
				"the cross-reference table is damaged and had to be reconstructed", nil)
		}

		if free := h.FreeObjects(); len(free) > 0 {
			w.add(Revision, KindFreeObjects, Low, xrefLoc,
				fmt.Sprintf("%d deleted objects: %s", len(free), listNumbers(free)),
				[]byte(listNumbers(free)))
		}

		if err := w.sc.Check(w.stage); err != nil {
			return err
		}
		orphans, err := h.Orphans()
		if err != nil {
			w.sc.warn(w.stage, pdf.Reference{}, err)
		} else if len(orphans) > 0 {
			numbers := make([]uint32, len(orphans))
			for i, ref := range orphans {
				numbers[i] = ref.Number
			}
			w.add(Revision, KindOrphans, Medium, xrefLoc,
				fmt.Sprintf("%d objects are not referenced: %s", len(orphans), listNumbers(numbers)),
				[]byte(listNumbers(numbers)))
		}
	}

	if l, ok := doc.(Linearized); ok {
		for _, issue := range l.LinearizationIssues() {
			w.add(Revision, KindLinearization, Low,
				Location{Path: "/Linearized/" + string(issue.Key)},
				issue.Message, []byte(issue.Message))
		}
	}
	return nil
}

func listNumbers(numbers []uint32) string {
	parts := make([]string, 0, min(len(numbers), maxListed)+1)
	for i, n := range numbers {
		if i == maxListed {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprint(n))
	}
	return strings.Join(parts, " ")
}
