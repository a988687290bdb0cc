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
	"bytes"
	"errors"
	"fmt"

	"seehuhn.de/go/pdfscrub/pdf"
	"seehuhn.de/go/pdfscrub/xref"
)

const (
	// maxLengthDepth limits recursion through indirect stream lengths.
	maxLengthDepth = 2

	// maxGetDepth bounds the chain of objects which must be read to
	// produce one object: containing object streams and their lengths.
	maxGetDepth = 4
)

var (
	errXRefCorrupted = errors.New("object not found at the offset given in the xref table")
	errLengthLoop    = errors.New("indirect stream length loop")
	errObjStmLoop    = errors.New("object stream is not a regular object")
	errGetTooDeep    = errors.New("object lookup nested too deeply")
)

// Resolve follows indirect references.  If obj is a pdf.Reference, the
// referenced object is returned; otherwise obj is returned unchanged.
// References to free or missing objects resolve to nil (the PDF null
// object), as required by the PDF specification.
func (d *Document) Resolve(obj pdf.Object) (pdf.Object, error) {
	for range 8 {
		ref, ok := obj.(pdf.Reference)
		if !ok {
			return obj, nil
		}
		var err error
		obj, err = d.get(ref, 0)
		if err != nil {
			return nil, err
		}
	}
	return nil, &pdf.MalformedFileError{Err: errors.New("reference chain too long")}
}

// ResolveDict resolves obj and returns the result if it is a dictionary.
// For streams, the stream dictionary is returned.
func (d *Document) ResolveDict(obj pdf.Object) (pdf.Dict, error) {
	obj, err := d.Resolve(obj)
	if err != nil {
		return nil, err
	}
	switch x := obj.(type) {
	case pdf.Dict:
		return x, nil
	case *pdf.Stream:
		return x.Dict, nil
	}
	return nil, nil
}

func (d *Document) get(ref pdf.Reference, depth int) (pdf.Object, error) {
	if depth > maxGetDepth {
		return nil, &pdf.MalformedFileError{Err: errGetTooDeep}
	}

	d.mu.RLock()
	obj, modified := d.modified[ref]
	cached, isCached := d.cache[ref]
	d.mu.RUnlock()
	if modified {
		return obj, nil
	}
	if isCached {
		return cached, nil
	}

	e, err := d.xref.Lookup(ref)
	if err != nil || e.Status == xref.Free {
		return nil, nil
	}

	switch e.Status {
	case xref.InUse:
		obj, err = d.readAt(ref, int64(e.Offset), depth)
	case xref.Compressed:
		obj, err = d.readCompressed(ref, uint32(e.Offset), e.Index, depth)
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cache[ref] = obj
	d.mu.Unlock()

	if hint := typeHint(obj); hint != "" && e.Hint == "" {
		d.xref.SetHint(ref, hint)
	}
	return obj, nil
}

func (d *Document) readAt(ref pdf.Reference, offset int64, depth int) (pdf.Object, error) {
	p := pdf.NewParser(bytes.NewReader(d.data), int64(len(d.data)))
	p.SetLengthResolver(func(lRef pdf.Reference) (pdf.Object, error) {
		if depth >= maxLengthDepth || lRef == ref {
			return nil, &pdf.MalformedFileError{Pos: offset, Err: errLengthLoop}
		}
		return d.get(lRef, depth+1)
	})
	fileRef, obj, err := p.ParseObjectAt(offset)
	if err != nil {
		return nil, err
	}
	if fileRef != ref {
		return nil, &pdf.MalformedFileError{Pos: offset, Err: errXRefCorrupted}
	}
	if d.decrypted && ref != d.encryptRef {
		obj, err = d.decryptObject(ref, obj)
		if err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// readCompressed reads object ref from the object stream with the given
// number.  Object streams must be stored as regular objects.
func (d *Document) readCompressed(ref pdf.Reference, container uint32, index uint32, depth int) (pdf.Object, error) {
	d.mu.RLock()
	objs, ok := d.objStms[container]
	d.mu.RUnlock()

	if !ok {
		e, found := d.xref.Entry(container)
		if container == ref.Number || !found || e.Status != xref.InUse {
			return nil, &pdf.MalformedFileError{
				Err: fmt.Errorf("object %d in object stream %d: %w", ref.Number, container, errObjStmLoop),
			}
		}
		stmObj, err := d.get(pdf.NewReference(container, e.Generation), depth+1)
		if err != nil {
			return nil, err
		}
		stm, isStream := stmObj.(*pdf.Stream)
		if !isStream {
			return nil, &pdf.MalformedFileError{Err: errors.New("object stream not found")}
		}
		objs, err = pdf.ReadObjectStream(stm)
		if err != nil && objs == nil {
			return nil, err
		}
		d.mu.Lock()
		d.objStms[container] = objs
		d.mu.Unlock()
	}

	if int(index) < len(objs) && objs[index].Number == ref.Number {
		return objs[index].Object, nil
	}
	for _, o := range objs {
		if o.Number == ref.Number {
			return o.Object, nil
		}
	}
	return nil, nil
}

// typeHint returns a short description of obj for use in xref entries.
func typeHint(obj pdf.Object) string {
	var dict pdf.Dict
	switch x := obj.(type) {
	case pdf.Dict:
		dict = x
	case *pdf.Stream:
		dict = x.Dict
	default:
		return ""
	}
	if tp, ok := dict["Type"].(pdf.Name); ok {
		return string(tp)
	}
	if st, ok := dict["Subtype"].(pdf.Name); ok {
		return string(st)
	}
	return ""
}
