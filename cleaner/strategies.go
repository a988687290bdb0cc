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
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"
	"seehuhn.de/go/icc"

	"seehuhn.de/go/pdfscrub/forensic"
	"seehuhn.de/go/pdfscrub/internal/jpegseg"
	"seehuhn.de/go/pdfscrub/metadata"
	"seehuhn.de/go/pdfscrub/oc"
	"seehuhn.de/go/pdfscrub/outline"
	"seehuhn.de/go/pdfscrub/pagetree"
	"seehuhn.de/go/pdfscrub/pdf"
)

// These are the names of the built-in strategies.
const (
	DocumentInfo       = "document-info"
	XMP                = "xmp"
	Embedded           = "embedded"
	CustomDictionary   = "custom-dictionary"
	ContentComments    = "content-comments"
	NamedDestination   = "named-destination"
	Outline            = "outline"
	PageTree           = "page-tree"
	OptionalContent    = "optional-content"
	XFAForm            = "xfa-form"
	NameTreeJavaScript = "name-tree-javascript"
	OpenAction         = "open-action"
	AdditionalActions  = "additional-actions"
	SignatureFields    = "signature-fields"
	RevisionFlatten    = "revision-flatten"
)

// kindStrategy handles the artifacts produced by a fixed set of
// detectors.
type kindStrategy struct {
	name  string
	kinds []string
	clean func(doc Document, a *forensic.Artifact) error
}

func (s *kindStrategy) Name() string {
	return s.name
}

func (s *kindStrategy) TryClean(ctx context.Context, doc Document, a *forensic.Artifact) (bool, error) {
	if !slices.Contains(s.kinds, a.Kind) {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := s.clean(doc, a)
	if errors.Is(err, errDeclined) {
		return false, nil
	}
	return err == nil, err
}

// errDeclined is returned by a clean function which finds that its
// strategy does not apply after all.
var errDeclined = errors.New("declined")

// StrategyByName returns the built-in strategy with the given name, or nil if
// there is no such strategy.
func StrategyByName(name string) Strategy {
	for _, s := range builtin {
		if s.name == name {
			return s
		}
	}
	return nil
}

// DefaultChains returns the default strategy chains.
func DefaultChains() map[forensic.ArtifactType][]Strategy {
	chain := func(names ...string) []Strategy {
		res := make([]Strategy, len(names))
		for i, name := range names {
			res[i] = StrategyByName(name)
		}
		return res
	}
	return map[forensic.ArtifactType][]Strategy{
		forensic.Metadata:     chain(DocumentInfo, XMP, Embedded, CustomDictionary, ContentComments),
		forensic.Structure:    chain(NamedDestination, Outline, PageTree, OptionalContent, XFAForm),
		forensic.JavaScript:   chain(NameTreeJavaScript, OpenAction, AdditionalActions),
		forensic.EmbeddedFile: chain(Embedded),
		forensic.Signature:    chain(SignatureFields),
		forensic.Revision:     chain(RevisionFlatten),
	}
}

var builtin = []*kindStrategy{
	{DocumentInfo, []string{forensic.KindInfo}, cleanInfo},
	{XMP, []string{forensic.KindXMP}, cleanXMP},
	{Embedded, []string{
		forensic.KindImageMetadata, forensic.KindImageTrailer,
		forensic.KindICC, forensic.KindEmbeddedFile,
	}, cleanEmbedded},
	{CustomDictionary, []string{
		forensic.KindPieceInfo, forensic.KindLastModified, forensic.KindLang,
	}, cleanCustom},
	{ContentComments, []string{forensic.KindContentComments}, cleanContent},
	{NamedDestination, []string{forensic.KindNamedDestinations}, cleanDests},
	{Outline, []string{forensic.KindOutline}, cleanOutline},
	{PageTree, []string{forensic.KindThumbnail, forensic.KindPageCount}, cleanPageTree},
	{OptionalContent, []string{forensic.KindHiddenOCG}, cleanOptionalContent},
	{XFAForm, []string{forensic.KindXFA}, cleanRemove},
	{NameTreeJavaScript, []string{forensic.KindJavaScriptNames}, cleanRemove},
	{OpenAction, []string{forensic.KindOpenAction}, cleanRemove},
	{AdditionalActions, []string{forensic.KindAdditionalActions, forensic.KindAction}, cleanRemove},
	{SignatureFields, []string{forensic.KindSignature}, cleanSignature},
	{RevisionFlatten, []string{
		forensic.KindIncrementalUpdate, forensic.KindFreeObjects, forensic.KindOrphans,
		forensic.KindRepairedXRef, forensic.KindLinearization,
	}, cleanRevisions},
}

func cleanRemove(doc Document, a *forensic.Artifact) error {
	return removeAt(doc, a.Location)
}

func cleanInfo(doc Document, a *forensic.Artifact) error {
	if !a.Location.Object.IsZero() {
		return removeAt(doc, a.Location)
	}

	// The information dictionary is stored directly in the trailer.
	info, _ := doc.Trailer()["Info"].(pdf.Dict)
	if info == nil {
		return errDeclined
	}
	info, err := setPath(info, a.Location.Keys, nil)
	if err != nil {
		return err
	}
	doc.SetTrailer("Info", info)
	return nil
}

func cleanXMP(doc Document, a *forensic.Artifact) error {
	loc := a.Location
	if len(loc.Keys) > 0 {
		return removeAt(doc, loc)
	}
	empty, err := metadata.Empty()
	if err != nil {
		return err
	}
	return doc.Put(loc.Object, &pdf.Stream{Dict: metadata.Dict(), Data: empty})
}

func cleanEmbedded(doc Document, a *forensic.Artifact) error {
	switch a.Kind {
	case forensic.KindEmbeddedFile:
		return cleanEmbeddedFile(doc, a)
	case forensic.KindICC:
		return scrubProfile(doc, a.Location.Object)
	default:
		return stripImage(doc, a.Location.Object)
	}
}

// stripImage removes metadata segments and trailing data from a JPEG
// image.
func stripImage(doc Document, ref pdf.Reference) error {
	stm, err := pdf.GetStream(doc, ref)
	if err != nil {
		return err
	}
	if stm == nil {
		return errDeclined
	}
	jpeg, err := stm.Decode()
	if err != nil {
		return err
	}
	stripped, err := jpegseg.Strip(jpeg, jpegseg.IsMetadata)
	if err != nil {
		return err
	}
	data, err := pdf.Encode(stm.Dict, stripped)
	if err != nil {
		return err
	}
	return doc.Put(ref, &pdf.Stream{Dict: stm.Dict.Clone(), Data: data})
}

// cleanContent removes comments and padding from a content stream.  The
// result is stored Flate compressed.  Streams with a filter which cannot
// be decoded here are left alone.
func cleanContent(doc Document, a *forensic.Artifact) error {
	stm, err := pdf.GetStream(doc, a.Location.Object)
	if err != nil {
		return err
	}
	if stm == nil {
		return errDeclined
	}
	filters, err := pdf.Filters(stm.Dict)
	if err != nil {
		return err
	}
	for _, f := range filters {
		if !invertible[f.Name] {
			return errDeclined
		}
	}
	data, err := stm.Decode()
	if err != nil {
		return err
	}

	dict := stm.Dict.Clone()
	delete(dict, "DecodeParms")
	dict["Filter"] = pdf.FilterFlate
	data, err = pdf.Encode(dict, pdf.CleanDecoded(data))
	if err != nil {
		return err
	}
	return doc.Put(a.Location.Object, &pdf.Stream{Dict: dict, Data: data})
}

// invertible lists the filters which pdf.Decode fully undoes.
var invertible = map[pdf.Name]bool{
	pdf.FilterFlate:     true,
	pdf.FilterLZW:       true,
	pdf.FilterASCII85:   true,
	pdf.FilterASCIIHex:  true,
	pdf.FilterRunLength: true,
}

// scrubProfile clears the header fields and tags of an ICC profile which
// identify a device, a vendor or a creation time.  The color data of the
// profile is kept.
func scrubProfile(doc Document, ref pdf.Reference) error {
	stm, err := pdf.GetStream(doc, ref)
	if err != nil {
		return err
	}
	if stm == nil {
		return errDeclined
	}
	data, err := stm.Decode()
	if err != nil {
		return err
	}
	profile, err := icc.Decode(bytes.Clone(data))
	if err != nil {
		return errDeclined
	}

	profile.DeviceManufacturer = 0
	profile.DeviceModel = 0
	profile.DeviceAttributes = 0
	profile.Creator = 0
	profile.CreationDate = time.Time{}
	for _, tag := range forensic.ICCIdentifyingTags {
		delete(profile.TagData, tag)
	}

	dict := stm.Dict.Clone()
	delete(dict, "DecodeParms")
	dict["Filter"] = pdf.FilterFlate
	dict["N"] = pdf.Integer(profile.ColorSpace.NumComponents())
	data, err = pdf.Encode(dict, profile.Encode())
	if err != nil {
		return err
	}
	return doc.Put(ref, &pdf.Stream{Dict: dict, Data: data})
}

func cleanEmbeddedFile(doc Document, a *forensic.Artifact) error {
	loc := a.Location
	if !strings.HasPrefix(loc.Path, "/Root/Names/EmbeddedFiles") {
		return removeAt(doc, loc)
	}

	err := updateCatalogEntry(doc, "Names", func(names pdf.Dict) pdf.Dict {
		if names == nil {
			return nil
		}
		delete(names, "EmbeddedFiles")
		return names
	})
	if err != nil {
		return err
	}

	if len(loc.Keys) > 0 {
		return nil
	}
	// loc.Object is the file specification
	spec, _ := pdf.GetDict(doc, loc.Object)
	if ef, _ := pdf.GetDict(doc, spec["EF"]); ef != nil {
		for _, stm := range ef {
			if err := deleteRef(doc, stm); err != nil {
				return err
			}
		}
	}
	return deleteRef(doc, loc.Object)
}

func cleanCustom(doc Document, a *forensic.Artifact) error {
	if a.Kind != forensic.KindLang {
		return removeAt(doc, a.Location)
	}

	catalog, err := doc.Catalog()
	if err != nil {
		return err
	}
	lang, _ := pdf.GetString(doc, catalog["Lang"])
	tag, err := language.Parse(lang.AsTextString())
	if err != nil {
		return removeAt(doc, a.Location)
	}
	base, _ := tag.Base()
	return update(doc, a.Location.Object, func(dict pdf.Dict) (pdf.Dict, error) {
		return setPath(dict, a.Location.Keys, pdf.TextString(base.String()))
	})
}

func cleanDests(doc Document, a *forensic.Artifact) error {
	err := updateCatalogEntry(doc, "Names", func(names pdf.Dict) pdf.Dict {
		if names == nil {
			return nil
		}
		delete(names, "Dests")
		return names
	})
	if err != nil {
		return err
	}
	root, err := rootRef(doc)
	if err != nil {
		return err
	}
	return update(doc, root, func(cat pdf.Dict) (pdf.Dict, error) {
		delete(cat, "Dests")
		return cat, nil
	})
}

func cleanOutline(doc Document, a *forensic.Artifact) error {
	catalog, err := doc.Catalog()
	if err != nil {
		return err
	}
	tree, err := outline.Read(doc, catalog)
	if err != nil {
		return err
	}
	if tree != nil {
		for _, ref := range tree.Refs() {
			if err := deleteRef(doc, ref); err != nil {
				return err
			}
		}
	}

	root, err := rootRef(doc)
	if err != nil {
		return err
	}
	return update(doc, root, func(cat pdf.Dict) (pdf.Dict, error) {
		delete(cat, "Outlines")
		if cat["PageMode"] == pdf.Name("UseOutlines") {
			delete(cat, "PageMode")
		}
		return cat, nil
	})
}

func cleanPageTree(doc Document, a *forensic.Artifact) error {
	if a.Kind == forensic.KindThumbnail {
		obj, err := doc.Resolve(a.Location.Object)
		if err != nil {
			return err
		}
		page, _ := obj.(pdf.Dict)
		if err := removeAt(doc, a.Location); err != nil {
			return err
		}
		return deleteRef(doc, page["Thumb"])
	}

	catalog, err := doc.Catalog()
	if err != nil {
		return err
	}
	tree, err := pagetree.Read(doc, catalog)
	if err != nil {
		return err
	}
	return update(doc, tree.Root, func(node pdf.Dict) (pdf.Dict, error) {
		node["Count"] = pdf.Integer(len(tree.Pages))
		return node, nil
	})
}

func cleanOptionalContent(doc Document, a *forensic.Artifact) error {
	return updateCatalogEntry(doc, "OCProperties", func(props pdf.Dict) pdf.Dict {
		if props == nil {
			return nil
		}
		config, _ := pdf.GetDict(doc, props["D"])
		props["D"] = oc.ShowAll(config)
		return props
	})
}

func cleanSignature(doc Document, a *forensic.Artifact) error {
	field, err := pdf.GetDict(doc, a.Location.Object)
	if err != nil {
		return err
	}
	if field == nil {
		return errDeclined
	}
	v := field["V"]
	if err := removeAt(doc, a.Location); err != nil {
		return err
	}
	return deleteRef(doc, v)
}

func cleanRevisions(doc Document, a *forensic.Artifact) error {
	p, ok := doc.(Pruner)
	if !ok {
		if a.Kind == forensic.KindOrphans {
			return errDeclined
		}
		// The other revision artifacts disappear when the document is
		// written as a new file.
		return nil
	}
	_, err := p.Prune()
	return err
}
