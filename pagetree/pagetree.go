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

// Package pagetree reads the page tree of a PDF document.
package pagetree

import (
	"errors"

	"seehuhn.de/go/pdfscrub/pdf"
)

const (
	maxDepth = 64
	maxPages = 1 << 20
)

var (
	errInvalidPageTree = errors.New("invalid page tree")
	errTooDeep         = errors.New("page tree nested too deeply")
	errTooMany         = errors.New("too many pages")
)

// Page is a leaf of the page tree.
type Page struct {
	Ref  pdf.Reference
	Dict pdf.Dict

	// Resources is the resource dictionary of the page, taking
	// inheritance into account.
	Resources pdf.Object
}

// Tree is the page tree of a document.
type Tree struct {
	Root pdf.Reference

	// Pages lists the pages in document order.
	Pages []Page

	// Nodes lists the intermediate nodes, including the root.
	Nodes []pdf.Reference
}

type todoItem struct {
	ref       pdf.Reference
	depth     int
	resources pdf.Object
}

// Read reads the page tree reachable from the /Pages entry of the
// document catalog.  Kids which are not indirect objects or which have
// been seen before are skipped.
func Read(r pdf.Resolver, catalog pdf.Dict) (*Tree, error) {
	root, _ := catalog["Pages"].(pdf.Reference)
	if root.IsZero() {
		return nil, &pdf.MalformedFileError{Err: errInvalidPageTree}
	}

	tree := &Tree{Root: root}
	// Nodes are marked as seen when they are taken from the stack, so
	// that a repeated kid is listed at its first position in document
	// order.
	todo := []todoItem{{ref: root}}
	seen := map[pdf.Reference]bool{}
	for len(todo) > 0 {
		k := len(todo) - 1
		item := todo[k]
		todo = todo[:k]
		if seen[item.ref] {
			continue
		}
		seen[item.ref] = true

		if item.depth > maxDepth {
			return nil, errTooDeep
		}

		node, err := pdf.GetDict(r, item.ref)
		if err != nil {
			return nil, err
		}
		if node == nil {
			continue
		}
		resources := item.resources
		if res, ok := node["Resources"]; ok {
			resources = res
		}

		tp, _ := pdf.GetName(r, node["Type"])
		_, hasKids := node["Kids"]
		switch {
		case tp == "Pages" || tp == "" && hasKids:
			tree.Nodes = append(tree.Nodes, item.ref)
			kids, err := pdf.GetArray(r, node["Kids"])
			if err != nil {
				return nil, err
			}
			for i := len(kids) - 1; i >= 0; i-- {
				kidRef, ok := kids[i].(pdf.Reference)
				if !ok || seen[kidRef] {
					continue
				}
				todo = append(todo, todoItem{
					ref:       kidRef,
					depth:     item.depth + 1,
					resources: resources,
				})
			}
		default:
			tree.Pages = append(tree.Pages, Page{
				Ref:       item.ref,
				Dict:      node,
				Resources: resources,
			})
			if len(tree.Pages) > maxPages {
				return nil, errTooMany
			}
		}
	}

	return tree, nil
}
