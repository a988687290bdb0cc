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
	"io"
	"log/slog"

	"seehuhn.de/go/pdfscrub/pdf"
)

// reconstruct rebuilds the cross-reference information of a damaged file
// by reading all objects sequentially.  Where an object number occurs
// several times, the last occurrence wins.
func reconstruct(data []byte, logger *slog.Logger) (*pdf.XRefSections, error) {
	p := pdf.NewParser(bytes.NewReader(data), int64(len(data)))
	if _, err := p.ParseHeader(); err != nil {
		return nil, err
	}

	entries := map[uint32]pdf.XRefEntry{
		0: {Type: pdf.XRefFree, Generation: 65535},
	}
	type objStm struct {
		number uint32
		stm    *pdf.Stream
	}
	var objStms []objStm
	var xrefDicts []pdf.Dict
	var catalog pdf.Reference
	skipped := 0

	for {
		ref, obj, err := p.ParseNextObject()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			if errors.Is(err, pdf.ErrEndstream) {
				p.SeekTo(p.LastOffset() + 1)
			}
			if p.Resync() != nil {
				break
			}
			continue
		}

		entries[ref.Number] = pdf.XRefEntry{
			Type:       pdf.XRefInUse,
			Offset:     p.LastOffset(),
			Generation: ref.Generation,
		}

		var dict pdf.Dict
		switch x := obj.(type) {
		case pdf.Dict:
			dict = x
		case *pdf.Stream:
			dict = x.Dict
			switch dict["Type"] {
			case pdf.Name("ObjStm"):
				objStms = append(objStms, objStm{number: ref.Number, stm: x})
			case pdf.Name("XRef"):
				xrefDicts = append(xrefDicts, dict)
			}
		}
		if dict["Type"] == pdf.Name("Catalog") {
			catalog = ref
		}
	}

	for _, o := range objStms {
		contents, _ := pdf.ReadObjectStream(o.stm)
		for i, c := range contents {
			if c.Object == nil {
				continue
			}
			if _, exists := entries[c.Number]; exists {
				continue
			}
			entries[c.Number] = pdf.XRefEntry{
				Type:   pdf.XRefCompressed,
				Offset: int64(o.number),
				Index:  uint32(i),
			}
			if dict, ok := c.Object.(pdf.Dict); ok && dict["Type"] == pdf.Name("Catalog") {
				catalog = pdf.NewReference(c.Number, 0)
			}
		}
	}

	// newest trailer information wins
	trailer := pdf.Dict{}
	sources := append(xrefDicts, p.Trailers()...)
	for i := len(sources) - 1; i >= 0; i-- {
		for _, key := range []pdf.Name{"Root", "Info", "ID", "Encrypt"} {
			if _, ok := trailer[key]; !ok && sources[i][key] != nil {
				trailer[key] = sources[i][key]
			}
		}
	}
	if root, ok := trailer["Root"].(pdf.Reference); !ok || !isInUse(entries, root) {
		if catalog.IsZero() {
			return nil, &pdf.MalformedFileError{Err: errNoCatalog}
		}
		trailer["Root"] = catalog
	}

	var size uint32
	for number := range entries {
		size = max(size, number+1)
	}
	trailer["Size"] = pdf.Integer(size)

	logger.Info("reconstructed cross-reference table",
		slog.Int("objects", len(entries)-1),
		slog.Int("skipped", skipped))

	return &pdf.XRefSections{
		Entries:   entries,
		Trailer:   trailer,
		Revisions: max(1, len(p.Trailers())+len(xrefDicts)),
	}, nil
}

func isInUse(entries map[uint32]pdf.XRefEntry, ref pdf.Reference) bool {
	e, ok := entries[ref.Number]
	return ok && e.Type != pdf.XRefFree && e.Generation == ref.Generation
}
