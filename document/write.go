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
	"bufio"
	"fmt"
	"io"
	"log/slog"

	"seehuhn.de/go/pdfscrub/pdf"
	"seehuhn.de/go/pdfscrub/xref"
)

// Put replaces the object ref.  The object must be in use.
func (d *Document) Put(ref pdf.Reference, obj pdf.Object) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, err := d.xref.Lookup(ref)
	if err != nil {
		return err
	}
	if e.Status == xref.Free {
		return &xref.UnknownReferenceError{Ref: ref}
	}
	d.modified[ref] = obj
	d.changed = true
	delete(d.cache, ref)
	return nil
}

// Add stores a new object in the document and returns its reference.
func (d *Document) Add(obj pdf.Object) (pdf.Reference, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ref, err := d.xref.AddObject(0, typeHint(obj))
	if err != nil {
		return pdf.Reference{}, err
	}
	d.modified[ref] = obj
	d.changed = true
	return ref, nil
}

// Delete removes the object ref from the document.  References to the
// object elsewhere in the file then resolve to null.
func (d *Document) Delete(ref pdf.Reference) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.xref.FreeObject(ref)
	if err != nil {
		return err
	}
	delete(d.modified, ref)
	delete(d.cache, ref)
	d.changed = true
	return nil
}

// SetTrailer sets an entry of the trailer dictionary.  If val is nil,
// the entry is removed.
func (d *Document) SetTrailer(key pdf.Name, val pdf.Object) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.trailer = d.trailer.Clone()
	if val == nil {
		delete(d.trailer, key)
	} else {
		d.trailer[key] = val
	}
	d.changed = true
}

// Modified reports whether any object has been changed, added or deleted
// since the document was loaded.
func (d *Document) Modified() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.changed
}

// Write writes the complete document to w as a new file, without
// incremental updates.  Objects are written uncompressed in order of
// their object number.  Object streams, cross-reference streams and the
// linearization dictionary are dropped, since their contents no longer
// match the new layout.  Objects which cannot be read are dropped as
// well.
//
// Encrypted documents can only be written after successful
// authentication; they are written without encryption.
func (d *Document) Write(w io.Writer) error {
	return d.write(w, false)
}

// WriteXRefStream is like Write, but stores the cross-reference table in a
// compressed cross-reference stream.  The header version is raised to 1.5
// if necessary.
func (d *Document) WriteXRefStream(w io.Writer) error {
	return d.write(w, true)
}

func (d *Document) write(w io.Writer, xrefStream bool) error {
	if d.encrypted && !d.decrypted {
		return ErrEncrypted
	}

	out := xref.New(&xref.Options{GCThreshold: -1, Logger: d.logger})
	out.Load(d.xref.Export())

	cw := &countingWriter{w: bufio.NewWriter(w)}
	version := d.version
	if v, err := pdf.ParseVersion(version); xrefStream && (err != nil || v < pdf.V1_5) {
		version = pdf.V1_5.String()
	}
	fmt.Fprintf(cw, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version)

	for _, ref := range d.xref.InUse() {
		obj, err := d.get(ref, 0)
		if err != nil {
			d.logger.Warn("dropping unreadable object",
				slog.String("ref", ref.String()),
				slog.Any("err", err))
			out.FreeObject(ref)
			continue
		}
		if ref == d.encryptRef || isStructural(obj) {
			out.FreeObject(ref)
			continue
		}

		offset := cw.n
		fmt.Fprintf(cw, "%d %d obj\n", ref.Number, ref.Generation)
		if obj == nil {
			io.WriteString(cw, "null")
		} else if err := obj.PDF(cw); err != nil {
			return err
		}
		io.WriteString(cw, "\nendobj\n")
		if err := out.UpdateObject(ref, uint64(offset)); err != nil {
			return err
		}
	}

	d.mu.RLock()
	trailer := pdf.Dict{}
	for _, key := range []pdf.Name{"Root", "Info", "ID"} {
		if val, ok := d.trailer[key]; ok && val != nil {
			trailer[key] = val
		}
	}
	d.mu.RUnlock()

	xrefPos := cw.n
	if xrefStream {
		ref, err := out.AddObject(uint64(xrefPos), "XRef")
		if err != nil {
			return err
		}
		dict, data := out.WriteStream()
		for key, val := range trailer {
			dict[key] = val
		}
		dict["Size"] = pdf.Integer(out.Size())
		dict["Filter"] = pdf.Name("FlateDecode")
		data, err = pdf.Encode(dict, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cw, "%d %d obj\n", ref.Number, ref.Generation)
		if err := (&pdf.Stream{Dict: dict, Data: data}).PDF(cw); err != nil {
			return err
		}
		io.WriteString(cw, "\nendobj\n")
	} else {
		err := out.WriteTable(cw)
		if err != nil {
			return err
		}
		trailer["Size"] = pdf.Integer(out.Size())
		io.WriteString(cw, "trailer\n")
		if err := trailer.PDF(cw); err != nil {
			return err
		}
		io.WriteString(cw, "\n")
	}
	fmt.Fprintf(cw, "startxref\n%d\n%%%%EOF\n", xrefPos)

	if cw.err != nil {
		return cw.err
	}
	return cw.w.(*bufio.Writer).Flush()
}

// isStructural reports whether obj only describes the layout of the
// original file.
func isStructural(obj pdf.Object) bool {
	switch x := obj.(type) {
	case *pdf.Stream:
		tp, _ := x.Dict["Type"].(pdf.Name)
		return tp == "ObjStm" || tp == "XRef"
	case pdf.Dict:
		return x["Linearized"] != nil
	}
	return false
}

// countingWriter counts the bytes written and remembers the first error.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
	return n, err
}
