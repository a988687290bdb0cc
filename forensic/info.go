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
	"slices"

	"golang.org/x/exp/maps"

	"seehuhn.de/go/pdfscrub/pdf"
)

// infoRisk gives the risk of the standard entries of the document
// information dictionary.  Other entries are rated medium.
var infoRisk = map[pdf.Name]RiskLevel{
	"Author":       High,
	"Creator":      Medium,
	"Producer":     Medium,
	"Title":        Low,
	"Subject":      Low,
	"Keywords":     Low,
	"CreationDate": Low,
	"ModDate":      Low,
}

func (w *walker) walkInfo() error {
	info, err := w.sc.doc.Info()
	if err != nil {
		w.sc.warn(w.stage, pdf.Reference{}, err)
		return nil
	}
	if len(info) == 0 {
		return nil
	}
	infoRef, _ := w.sc.doc.Trailer()["Info"].(pdf.Reference)
	if err := w.sc.Charge(w.stage, pdf.Size(info)); err != nil {
		return err
	}

	keys := maps.Keys(info)
	slices.Sort(keys)
	for _, key := range keys {
		if key == "Trapped" {
			continue
		}
		val, err := w.resolve(info[key])
		if err != nil {
			return err
		}

		var text string
		var content []byte
		switch val := val.(type) {
		case nil:
			continue
		case pdf.String:
			if len(val) == 0 {
				continue
			}
			content = val
			text = val.AsTextString()
			if key == "CreationDate" || key == "ModDate" {
				if t, err := val.AsDate(); err == nil {
					text = t.UTC().Format("2006-01-02 15:04:05")
				}
			}
		default:
			text = pdf.Format(val)
			content = []byte(text)
		}

		risk, ok := infoRisk[key]
		if !ok {
			risk = Medium
		}
		loc := Location{
			Object: infoRef,
			Keys:   []pdf.Name{key},
			Path:   "/Info/" + string(key),
		}
		w.add(Metadata, KindInfo, risk, loc, fmt.Sprintf("%s: %s", key, text), content)
	}
	return nil
}
