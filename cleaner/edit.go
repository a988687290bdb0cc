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

package cleaner

import (
	"errors"
	"fmt"
	"slices"

	"seehuhn.de/go/pdfscrub/forensic"
	"seehuhn.de/go/pdfscrub/pdf"
)

var (
	errNoCatalog   = errors.New("document has no catalog reference")
	errNotDict     = errors.New("object is not a dictionary")
	errPathChanged = errors.New("artifact location no longer exists")
)

// edit applies fn to the object ref and stores the result.  For streams,
// fn is applied to the stream dictionary.
func edit(doc Document, ref pdf.Reference, fn func(pdf.Object) (pdf.Object, error)) error {
	obj, err := doc.Resolve(ref)
	if err != nil {
		return err
	}

	stm, isStream := obj.(*pdf.Stream)
	if !isStream {
		res, err := fn(obj)
		if err != nil {
			return err
		}
		return doc.Put(ref, res)
	}
	res, err := fn(stm.Dict)
	if err != nil {
		return err
	}
	dict, ok := res.(pdf.Dict)
	if !ok {
		return fmt.Errorf("%s: %w", ref, errNotDict)
	}
	return doc.Put(ref, &pdf.Stream{Dict: dict, Data: stm.Data})
}

// update applies fn to a copy of the dictionary of the object ref and
// stores the result.  For streams, fn modifies the stream dictionary.
func update(doc Document, ref pdf.Reference, fn func(pdf.Dict) (pdf.Dict, error)) error {
	return edit(doc, ref, func(obj pdf.Object) (pdf.Object, error) {
		dict, ok := obj.(pdf.Dict)
		if !ok {
			return nil, fmt.Errorf("%s: %w", ref, errNotDict)
		}
		return fn(dict.Clone())
	})
}

// editPath replaces the value reached from obj through keys and indices
// (see forensic.Location) by val.  If val is nil, dictionary entries are
// removed and array elements are set to null, so that the positions of
// other array elements do not change.  Containers along the path are
// copied.  They must be direct objects.
func editPath(obj pdf.Object, keys []pdf.Name, indices []int, val pdf.Object) (pdf.Object, error) {
	if len(indices) > 0 && indices[0] >= 0 {
		arr, ok := obj.(pdf.Array)
		i := indices[0]
		if !ok || i >= len(arr) {
			return nil, errPathChanged
		}
		elem := val
		if len(keys) > 0 {
			rest := slices.Clone(indices)
			rest[0] = -1
			var err error
			elem, err = editPath(arr[i], keys, rest, val)
			if err != nil {
				return nil, err
			}
		}
		arr = slices.Clone(arr)
		arr[i] = elem
		return arr, nil
	}

	dict, ok := obj.(pdf.Dict)
	if !ok || len(keys) == 0 {
		return nil, errPathChanged
	}
	dict = dict.Clone()
	var next []int
	if len(indices) > 0 {
		next = indices[1:]
	}
	key := keys[0]
	if len(keys) == 1 && (len(next) == 0 || next[0] < 0) {
		if val == nil {
			delete(dict, key)
		} else {
			dict[key] = val
		}
		return dict, nil
	}

	child, err := editPath(dict[key], keys[1:], next, val)
	if err != nil {
		return nil, err
	}
	dict[key] = child
	return dict, nil
}

// setPath sets the entry reached from dict through keys to val, or
// removes it if val is nil.  All but the last key must lead to direct
// dictionaries.
func setPath(dict pdf.Dict, keys []pdf.Name, val pdf.Object) (pdf.Dict, error) {
	if dict == nil {
		dict = pdf.Dict{}
	}
	res, err := editPath(dict, keys, nil, val)
	if err != nil {
		return nil, err
	}
	return res.(pdf.Dict), nil
}

// removeAt removes an artifact from the document.  If the location has
// neither keys nor indices, the object itself is deleted.  Locations which
// do not identify the artifact exactly are never edited.
func removeAt(doc Document, loc forensic.Location) error {
	if loc.Partial {
		return errPathChanged
	}
	if len(loc.Keys) == 0 && loc.IndexAt(0) < 0 {
		if loc.Object.IsZero() {
			return errPathChanged
		}
		return doc.Delete(loc.Object)
	}
	return edit(doc, loc.Object, func(obj pdf.Object) (pdf.Object, error) {
		return editPath(obj, loc.Keys, loc.Indices, nil)
	})
}

// deleteRef deletes obj if it is a reference.  Missing objects are
// ignored.
func deleteRef(doc Document, obj pdf.Object) error {
	ref, ok := obj.(pdf.Reference)
	if !ok {
		return nil
	}
	resolved, err := doc.Resolve(ref)
	if err != nil || resolved == nil {
		return err
	}
	return doc.Delete(ref)
}

func rootRef(doc Document) (pdf.Reference, error) {
	ref, ok := doc.Trailer()["Root"].(pdf.Reference)
	if !ok {
		return pdf.Reference{}, errNoCatalog
	}
	return ref, nil
}

// updateCatalogEntry applies fn to the dictionary stored in the catalog
// under key.  Indirect dictionaries are updated in place.  If fn returns
// nil, the entry is removed from the catalog.
func updateCatalogEntry(doc Document, key pdf.Name, fn func(pdf.Dict) pdf.Dict) error {
	root, err := rootRef(doc)
	if err != nil {
		return err
	}
	catalog, err := doc.Catalog()
	if err != nil {
		return err
	}

	if ref, ok := catalog[key].(pdf.Reference); ok {
		dict, err := pdf.GetDict(doc, ref)
		if err != nil {
			return err
		}
		if newDict := fn(dict.Clone()); newDict != nil {
			return doc.Put(ref, newDict)
		}
		err = doc.Delete(ref)
		if err != nil {
			return err
		}
	}

	return update(doc, root, func(cat pdf.Dict) (pdf.Dict, error) {
		if _, isRef := cat[key].(pdf.Reference); isRef {
			delete(cat, key)
			return cat, nil
		}
		dict, _ := cat[key].(pdf.Dict)
		if newDict := fn(dict.Clone()); newDict != nil {
			cat[key] = newDict
		} else {
			delete(cat, key)
		}
		return cat, nil
	})
}
