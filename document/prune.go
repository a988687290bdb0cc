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

package document

import (
	"log/slog"

	"seehuhn.de/go/pdfscrub/pdf"
)

// Reachable returns the set of objects which can be reached from the
// trailer dictionary.  The encryption dictionary is not followed.
func (d *Document) Reachable() map[pdf.Reference]bool {
	d.mu.RLock()
	var todo []pdf.Reference
	for _, key := range []pdf.Name{"Root", "Info"} {
		if ref, ok := d.trailer[key].(pdf.Reference); ok {
			todo = append(todo, ref)
		}
	}
	d.mu.RUnlock()

	seen := make(map[pdf.Reference]bool)
	for len(todo) > 0 {
		ref := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if seen[ref] || ref == d.encryptRef {
			continue
		}
		seen[ref] = true

		obj, err := d.get(ref, 0)
		if err != nil {
			continue
		}
		todo = appendRefs(todo, obj)
	}
	return seen
}

// appendRefs appends all references contained in obj to refs, without
// following them.
func appendRefs(refs []pdf.Reference, obj pdf.Object) []pdf.Reference {
	stack := []pdf.Object{obj}
	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch x := obj.(type) {
		case pdf.Reference:
			refs = append(refs, x)
		case pdf.Array:
			stack = append(stack, x...)
		case pdf.Dict:
			for _, val := range x {
				stack = append(stack, val)
			}
		case *pdf.Stream:
			for _, val := range x.Dict {
				stack = append(stack, val)
			}
		}
	}
	return refs
}

// Orphans returns the objects which are in use but cannot be reached from
// the trailer.  Objects which only describe the file layout, like object
// streams, are not included.
func (d *Document) Orphans() ([]pdf.Reference, error) {
	reachable := d.Reachable()

	var res []pdf.Reference
	for _, ref := range d.xref.InUse() {
		if reachable[ref] || ref == d.encryptRef {
			continue
		}
		obj, err := d.get(ref, 0)
		if err != nil || isStructural(obj) {
			continue
		}
		res = append(res, ref)
	}
	return res, nil
}

// Prune deletes all orphaned objects and collects the freed
// cross-reference entries.  It returns the number of deleted objects.
func (d *Document) Prune() (int, error) {
	orphans, err := d.Orphans()
	if err != nil {
		return 0, err
	}
	for _, ref := range orphans {
		if err := d.Delete(ref); err != nil {
			return 0, err
		}
	}
	if len(orphans) > 0 {
		d.xref.Wait()
		removed := d.xref.Collect()
		d.logger.Debug("pruned orphaned objects",
			slog.String("doc", d.id),
			slog.Int("objects", len(orphans)),
			slog.Int("collected", removed))
	}
	return len(orphans), nil
}
