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

// Package outline reads document outlines (bookmarks).
package outline

import (
	"errors"
	"iter"

	"seehuhn.de/go/pdfscrub/pdf"
)

// PDF 2.0 sections: 12.3.3

const (
	maxItems = 65536
	maxDepth = 64
)

var (
	errLoop    = errors.New("outline tree contains a loop")
	errTooMany = errors.New("outline too large")
	errTooDeep = errors.New("outline nested too deeply")
)

// Outline represents the root of a document outline.
type Outline struct {
	// Root is the reference of the outline dictionary.
	Root pdf.Reference

	// Items contains the top-level outline items.
	Items []*Item
}

// Item represents an outline item.
type Item struct {
	Ref   pdf.Reference
	Title string

	// Destination is the raw /Dest entry, or nil.
	Destination pdf.Object

	// Action is the resolved /A dictionary, or nil.
	Action pdf.Dict

	Children []*Item

	// Open indicates whether the item is initially expanded.
	Open bool

	StructEntry pdf.Reference
}

// Read reads the document outline.  If the document has no outline, nil is
// returned.
func Read(r pdf.Resolver, catalog pdf.Dict) (*Outline, error) {
	rootRef, _ := catalog["Outlines"].(pdf.Reference)
	if rootRef.IsZero() {
		return nil, nil
	}

	seen := map[pdf.Reference]bool{rootRef: true}
	rootDict, err := pdf.GetDict(r, rootRef)
	if err != nil {
		return nil, err
	}
	if rootDict == nil {
		return nil, nil
	}

	firstRef, _ := rootDict["First"].(pdf.Reference)
	items, err := readChildren(r, seen, firstRef, 1)
	if err != nil {
		return nil, err
	}

	return &Outline{Root: rootRef, Items: items}, nil
}

func readItem(r pdf.Resolver, seen map[pdf.Reference]bool, ref pdf.Reference, depth int) (*Item, pdf.Dict, error) {
	if seen[ref] {
		return nil, nil, &pdf.MalformedFileError{Err: errLoop}
	}
	seen[ref] = true
	if len(seen) > maxItems {
		return nil, nil, errTooMany
	}
	if depth > maxDepth {
		return nil, nil, errTooDeep
	}

	dict, err := pdf.GetDict(r, ref)
	if err != nil {
		return nil, nil, err
	}

	item := &Item{Ref: ref}

	title, _ := pdf.GetString(r, dict["Title"])
	item.Title = title.AsTextString()

	count, _ := pdf.GetInt(r, dict["Count"])
	item.Open = count > 0

	if dict["Dest"] != nil {
		item.Destination = dict["Dest"]
	} else if dict["A"] != nil {
		item.Action, _ = pdf.GetDict(r, dict["A"])
	}

	if se, ok := dict["SE"].(pdf.Reference); ok {
		item.StructEntry = se
	}

	firstRef, _ := dict["First"].(pdf.Reference)
	children, err := readChildren(r, seen, firstRef, depth+1)
	if err != nil {
		return nil, nil, err
	}
	item.Children = children

	return item, dict, nil
}

func readChildren(r pdf.Resolver, seen map[pdf.Reference]bool, ref pdf.Reference, depth int) ([]*Item, error) {
	var res []*Item
	for !ref.IsZero() {
		item, dict, err := readItem(r, seen, ref, depth)
		if err != nil {
			return nil, err
		}

		res = append(res, item)

		ref, _ = dict["Next"].(pdf.Reference)
	}
	return res, nil
}

// All iterates over all items of the outline in depth-first order.
func (o *Outline) All() iter.Seq[*Item] {
	return func(yield func(*Item) bool) {
		if o == nil {
			return
		}
		var walk func(items []*Item) bool
		walk = func(items []*Item) bool {
			for _, item := range items {
				if !yield(item) || !walk(item.Children) {
					return false
				}
			}
			return true
		}
		walk(o.Items)
	}
}

// Refs returns the references of the outline dictionary and of all items.
func (o *Outline) Refs() []pdf.Reference {
	if o == nil {
		return nil
	}
	res := []pdf.Reference{o.Root}
	for item := range o.All() {
		res = append(res, item.Ref)
	}
	return res
}

// ActionType returns the /S entry of an action dictionary.
func ActionType(action pdf.Dict) pdf.Name {
	s, _ := action["S"].(pdf.Name)
	return s
}
