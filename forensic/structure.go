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
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/text/language"

	"seehuhn.de/go/pdfscrub/metadata"
	"seehuhn.de/go/pdfscrub/nametree"
	"seehuhn.de/go/pdfscrub/oc"
	"seehuhn.de/go/pdfscrub/outline"
	"seehuhn.de/go/pdfscrub/pagetree"
	"seehuhn.de/go/pdfscrub/pdf"
)

// place is the position of a value during the generic structure walk.
type place struct {
	loc Location
}

func (p place) key(k pdf.Name) place {
	res := p
	res.loc.Path = p.loc.Path + "/" + string(k)
	if !p.loc.Partial {
		res.loc.Keys = append(slices.Clip(p.loc.Keys), k)
		if p.loc.Indices != nil {
			res.loc.Indices = append(slices.Clip(p.loc.Indices), -1)
		}
	}
	return res
}

func (p place) index(i int) place {
	res := p
	res.loc.Path = fmt.Sprintf("%s[%d]", p.loc.Path, i)
	if p.loc.Partial {
		return res
	}

	n := len(p.loc.Keys)
	if p.loc.IndexAt(n) >= 0 {
		// arrays inside arrays are not tracked
		res.loc.Partial = true
		return res
	}
	indices := slices.Clone(p.loc.Indices)
	if indices == nil {
		indices = make([]int, n+1)
		for j := range indices {
			indices[j] = -1
		}
	}
	indices[n] = i
	res.loc.Indices = indices
	return res
}

func objectPlace(ref pdf.Reference) place {
	return place{loc: Location{Object: ref, Path: ref.String()}}
}

// skipKeys are not followed by the generic walk.  Most of them point
// back up the tree.  The others are handled by dedicated detectors.
var skipKeys = map[pdf.Name]bool{
	"Parent":    true,
	"P":         true,
	"Prev":      true,
	"Last":      true,
	"Next":      true,
	"AA":        true,
	"PieceInfo": true,
	"Thumb":     true,
	"Metadata":  true,
}

// riskyActions maps action types to the risk they carry.
var riskyActions = map[pdf.Name]RiskLevel{
	"JavaScript":       Critical,
	"Launch":           Critical,
	"RichMediaExecute": High,
	"SubmitForm":       High,
	"ImportData":       High,
	"GoToE":            Medium,
}

func (w *walker) walkStructure(catalog pdf.Dict) error {
	rootRef, _ := w.sc.doc.Trailer()["Root"].(pdf.Reference)
	root := place{loc: Location{Object: rootRef, Path: "/Root"}}

	err := w.checkCatalogMetadata(catalog, root)
	if err != nil {
		return err
	}
	w.checkLang(catalog, root)

	err = w.checkNames(catalog, root)
	if err != nil {
		return err
	}
	err = w.checkForms(catalog, root)
	if err != nil {
		return err
	}
	w.checkOutline(catalog, root)
	w.checkOptionalContent(catalog, root)
	w.checkPageTree(catalog, root)

	if !rootRef.IsZero() {
		w.sc.Visit(w.stage, rootRef)
	}
	return w.walkDict(catalog, root, root)
}

// walk descends into obj, which is found at p.
func (w *walker) walk(obj pdf.Object, p place) error {
	if err := w.enter(); err != nil {
		return err
	}
	defer w.leave()

	for obj != nil {
		if err := w.sc.Check(w.stage); err != nil {
			return err
		}

		self := p
		if ref, ok := obj.(pdf.Reference); ok {
			if !w.sc.Visit(w.stage, ref) {
				return nil
			}
			resolved, err := w.resolve(ref)
			if err != nil {
				return err
			}
			obj = resolved
			self = objectPlace(ref)
			if p.loc.Partial {
				p = self
			}
		}

		var dict pdf.Dict
		switch x := obj.(type) {
		case pdf.Dict:
			dict = x
		case *pdf.Stream:
			dict = x.Dict
		case pdf.Array:
			for i, elem := range x {
				if err := w.walk(elem, self.index(i)); err != nil {
					return err
				}
			}
			return nil
		default:
			return nil
		}

		if err := w.walkDict(dict, p, self); err != nil {
			return err
		}

		// Follow /Next chains iteratively, so that long outlines and
		// action sequences do not count against the depth limit.
		obj = dict["Next"]
		p = self.key("Next")
	}
	return nil
}

// walkDict checks a dictionary found at p and descends into its entries.
// The entries of the dictionary are located relative to self.
func (w *walker) walkDict(dict pdf.Dict, p, self place) error {
	if err := w.checkDict(dict, p, self); err != nil {
		return err
	}

	keys := maps.Keys(dict)
	slices.Sort(keys)
	for _, key := range keys {
		if skipKeys[key] {
			continue
		}
		if err := w.walk(dict[key], self.key(key)); err != nil {
			return err
		}
	}
	return nil
}

// checkDict runs the detectors which look at individual dictionaries.
func (w *walker) checkDict(dict pdf.Dict, p, self place) error {
	r := w.sc.doc
	isCatalog := self.loc.Path == "/Root"

	if tp, _ := pdf.GetName(r, dict["S"]); tp != "" {
		if risk, ok := riskyActions[tp]; ok {
			kind := KindAction
			if p.loc.Key() == "OpenAction" && strings.HasPrefix(p.loc.Path, "/Root/") &&
				strings.Count(p.loc.Path, "/") == 2 {
				kind = KindOpenAction
			}
			content := w.actionContent(dict)
			w.add(JavaScript, kind, risk, p.loc,
				fmt.Sprintf("%s action", tp), content)
		}
	}

	if aa, _ := pdf.GetDict(r, dict["AA"]); len(aa) > 0 {
		triggers := maps.Keys(aa)
		slices.Sort(triggers)
		names := make([]string, len(triggers))
		for i, t := range triggers {
			names[i] = string(t)
		}
		w.add(JavaScript, KindAdditionalActions, High, self.key("AA").loc,
			"additional actions triggered by "+strings.Join(names, ", "),
			[]byte(pdf.Format(aa)))
	}

	if pi, _ := pdf.GetDict(r, dict["PieceInfo"]); len(pi) > 0 {
		apps := maps.Keys(pi)
		slices.Sort(apps)
		var names []string
		for _, app := range apps {
			names = append(names, string(app))
		}
		w.add(Metadata, KindPieceInfo, Medium, self.key("PieceInfo").loc,
			"private application data from "+strings.Join(names, ", "),
			[]byte(pdf.Format(pi)))
	}

	if lm, _ := pdf.GetString(r, dict["LastModified"]); lm != nil {
		desc := "modification timestamp"
		if t, err := lm.AsDate(); err == nil {
			desc += " " + t.UTC().Format("2006-01-02 15:04:05")
		}
		w.add(Metadata, KindLastModified, Low, self.key("LastModified").loc, desc, lm)
	}

	if tp, _ := pdf.GetName(r, dict["Type"]); tp == "Page" && dict["Thumb"] != nil {
		w.add(Structure, KindThumbnail, Low, self.key("Thumb").loc,
			"page thumbnail image", []byte(pdf.Format(dict["Thumb"])))
	}

	if sub, _ := pdf.GetName(r, dict["Subtype"]); sub == "FileAttachment" && dict["FS"] != nil {
		w.add(EmbeddedFile, KindEmbeddedFile, High, self.key("FS").loc,
			"file attachment annotation", []byte(pdf.Format(dict["FS"])))
	}

	if !isCatalog && dict["Metadata"] != nil {
		err := w.checkMetadataStream(dict["Metadata"], self.key("Metadata"), Low)
		if err != nil {
			return err
		}
	}
	return nil
}

// actionContent returns the script of a JavaScript action, or the
// serialized action dictionary for other actions.
func (w *walker) actionContent(action pdf.Dict) []byte {
	js, _ := w.sc.doc.Resolve(action["JS"])
	switch js := js.(type) {
	case pdf.String:
		return js
	case *pdf.Stream:
		data, err := js.Decode()
		if err == nil {
			return data
		}
	}
	return []byte(pdf.Format(action))
}

// identifying lists XMP properties which identify people, tools or
// earlier versions of a document.
var identifying = []string{
	"creator", "author", "creatortool", "producer", "history",
	"documentid", "instanceid", "derivedfrom", "owner",
}

func (w *walker) checkCatalogMetadata(catalog pdf.Dict, root place) error {
	if catalog["Metadata"] == nil {
		return nil
	}
	return w.checkMetadataStream(catalog["Metadata"], root.key("Metadata"), Medium)
}

// checkMetadataStream reports an XMP metadata stream.  The risk is raised
// to high if the packet contains identifying properties.
func (w *walker) checkMetadataStream(obj pdf.Object, p place, risk RiskLevel) error {
	loc := p.loc
	if ref, ok := obj.(pdf.Reference); ok {
		loc = Location{Object: ref, Path: p.loc.Path}
	}

	stm, err := metadata.Read(w.sc.doc, obj)
	if err != nil {
		w.sc.warn(w.stage, loc.Object, err)
		return nil
	}
	if stm == nil {
		return nil
	}
	if err := w.sc.Charge(w.stage, int64(stm.Size)); err != nil {
		return err
	}

	props := stm.Properties()
	if len(props) == 0 {
		return nil
	}
	var names []string
	var content []byte
	for _, prop := range props {
		names = append(names, prop.Name)
		content = fmt.Appendf(content, "%s=%s\n", prop.Name, prop.Value)
		for _, id := range identifying {
			if strings.HasSuffix(strings.ToLower(prop.Name), ":"+id) {
				risk = High
			}
		}
	}
	w.add(Metadata, KindXMP, risk, loc,
		"XMP metadata: "+strings.Join(names, ", "), content)
	return nil
}

func (w *walker) checkLang(catalog pdf.Dict, root place) {
	lang, _ := pdf.GetString(w.sc.doc, catalog["Lang"])
	if lang == nil {
		return
	}
	s := lang.AsTextString()
	p := root.key("Lang")
	tag, err := language.Parse(s)
	if err != nil {
		w.add(Metadata, KindLang, Low, p.loc,
			fmt.Sprintf("invalid language tag %q", s), lang)
		return
	}
	if _, conf := tag.Region(); conf == language.Exact {
		w.add(Metadata, KindLang, Low, p.loc,
			fmt.Sprintf("language tag %q reveals a regional locale", s), lang)
	}
}

func (w *walker) checkNames(catalog pdf.Dict, root place) error {
	r := w.sc.doc
	names, err := pdf.GetDict(r, catalog["Names"])
	if err != nil {
		w.sc.warn(w.stage, root.loc.Object, err)
		return nil
	}
	namesPlace := root.key("Names")
	if ref, ok := catalog["Names"].(pdf.Reference); ok {
		namesPlace = place{loc: Location{Object: ref, Path: "/Root/Names"}}
	}

	if names["JavaScript"] != nil {
		tree, err := w.readTree(names["JavaScript"])
		if err != nil {
			return err
		}
		if tree != nil && tree.Len() > 0 {
			var content []byte
			for name, val := range tree.All() {
				content = fmt.Appendf(content, "%s: %s\n", name, pdf.Format(val))
				if ref, ok := val.(pdf.Reference); ok {
					w.sc.Visit(w.stage, ref)
				}
			}
			w.add(JavaScript, KindJavaScriptNames, Critical,
				namesPlace.key("JavaScript").loc,
				fmt.Sprintf("%d document-level scripts", tree.Len()), content)
		}
	}

	if names["EmbeddedFiles"] != nil {
		tree, err := w.readTree(names["EmbeddedFiles"])
		if err != nil {
			return err
		}
		if tree != nil {
			for name, val := range tree.All() {
				loc := namesPlace.key("EmbeddedFiles").loc
				loc.Path += "/" + name
				if ref, ok := val.(pdf.Reference); ok {
					loc.Object = ref
					loc.Keys = nil
				}
				spec, _ := pdf.GetDict(r, val)
				desc := "embedded file " + fileName(r, spec, name)
				w.add(EmbeddedFile, KindEmbeddedFile, High, loc, desc,
					[]byte(name+"\n"+pdf.Format(spec)))
			}
		}
	}

	count := 0
	if names["Dests"] != nil {
		tree, err := w.readTree(names["Dests"])
		if err != nil {
			return err
		}
		if tree != nil {
			count += tree.Len()
		}
	}
	if dests, _ := pdf.GetDict(r, catalog["Dests"]); dests != nil {
		count += len(dests)
	}
	if count > 0 {
		w.add(Structure, KindNamedDestinations, Low, root.key("Dests").loc,
			fmt.Sprintf("%d named destinations", count), nil)
	}
	return nil
}

func (w *walker) readTree(root pdf.Object) (*nametree.InMemory, error) {
	tree, err := nametree.Read(w.sc.doc, root)
	if err != nil {
		w.sc.warn(w.stage, pdf.Reference{}, err)
		return nil, nil
	}
	for _, ref := range tree.Nodes {
		w.sc.Visit(w.stage, ref)
	}
	if err := w.sc.Charge(w.stage, int64(len(tree.Data))*64); err != nil {
		return nil, err
	}
	return tree, nil
}

// fileName returns the file name given in a file specification.
func fileName(r pdf.Resolver, spec pdf.Dict, fallback string) string {
	for _, key := range []pdf.Name{"UF", "F"} {
		if s, _ := pdf.GetString(r, spec[key]); s != nil {
			return fmt.Sprintf("%q", s.AsTextString())
		}
	}
	return fmt.Sprintf("%q", fallback)
}

func (w *walker) checkForms(catalog pdf.Dict, root place) error {
	form, err := pdf.GetDict(w.sc.doc, catalog["AcroForm"])
	if err != nil {
		w.sc.warn(w.stage, root.loc.Object, err)
		return nil
	}
	if form == nil || form["XFA"] == nil {
		return nil
	}
	formPlace := root.key("AcroForm")
	if ref, ok := catalog["AcroForm"].(pdf.Reference); ok {
		formPlace = place{loc: Location{Object: ref, Path: "/Root/AcroForm"}}
	}
	w.add(Structure, KindXFA, High, formPlace.key("XFA").loc,
		"XFA form data", []byte(pdf.Format(form["XFA"])))
	return nil
}

func (w *walker) checkOutline(catalog pdf.Dict, root place) {
	tree, err := outline.Read(w.sc.doc, catalog)
	if err != nil {
		w.sc.warn(w.stage, root.loc.Object, err)
		return
	}
	if tree == nil {
		return
	}
	n := 0
	var titles []byte
	for item := range tree.All() {
		n++
		titles = append(titles, item.Title...)
		titles = append(titles, '\n')
	}
	if n == 0 {
		return
	}
	w.add(Structure, KindOutline, Low, root.key("Outlines").loc,
		fmt.Sprintf("outline with %d entries", n), titles)
}

func (w *walker) checkOptionalContent(catalog pdf.Dict, root place) {
	props, err := oc.Read(w.sc.doc, catalog)
	if err != nil {
		w.sc.warn(w.stage, root.loc.Object, err)
		return
	}
	for _, g := range props.Hidden() {
		desc := fmt.Sprintf("hidden optional content group %q", g.Name)
		if g.Locked {
			desc += " (locked)"
		}
		w.add(Structure, KindHiddenOCG, Medium,
			Location{Object: g.Ref, Path: "/Root/OCProperties/OCGs/" + g.Ref.String()},
			desc, []byte(g.Name))
	}
}

func (w *walker) checkPageTree(catalog pdf.Dict, root place) {
	tree, err := pagetree.Read(w.sc.doc, catalog)
	if err != nil {
		w.sc.warn(w.stage, root.loc.Object, err)
		return
	}
	node, _ := pdf.GetDict(w.sc.doc, tree.Root)
	count, _ := pdf.GetInt(w.sc.doc, node["Count"])
	if int(count) != len(tree.Pages) {
		w.add(Structure, KindPageCount, Medium,
			Location{Object: tree.Root, Keys: []pdf.Name{"Count"}, Path: "/Root/Pages/Count"},
			fmt.Sprintf("page tree claims %d pages but contains %d", count, len(tree.Pages)),
			fmt.Appendf(nil, "%d/%d", count, len(tree.Pages)))
	}
}
