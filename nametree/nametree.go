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

// Package nametree reads and writes PDF name trees.
//
// Name trees associate byte string keys with values, ordered
// lexicographically by key.  Reading is bounded in depth and size, and
// loops in the tree are detected, so that damaged or hostile files cannot
// make the reader run forever.
package nametree

import (
	"errors"
	"iter"
	"slices"

	"seehuhn.de/go/pdfscrub/pdf"
)

const (
	maxDepth   = 32
	maxEntries = 1 << 20
)

var (
	// ErrKeyNotFound is returned by Lookup if a key is not in the tree.
	ErrKeyNotFound = errors.New("key not found")

	errLoop    = errors.New("name tree contains a loop")
	errTooDeep = errors.New("name tree nested too deeply")
	errTooMany = errors.New("name tree too large")
)

// InMemory is a name tree which has been read into memory.
type InMemory struct {
	Data map[string]pdf.Object

	// Nodes lists the references of all tree nodes which are indirect
	// objects.
	Nodes []pdf.Reference
}

// Read reads a complete name tree into memory.  If root is nil, nil is
// returned.
func Read(r pdf.Resolver, root pdf.Object) (*InMemory, error) {
	if root == nil {
		return nil, nil
	}

	tree := &InMemory{
		Data: make(map[string]pdf.Object),
	}
	seen := make(map[pdf.Reference]bool)
	err := tree.readNode(r, root, seen, 0)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

func (t *InMemory) readNode(r pdf.Resolver, obj pdf.Object, seen map[pdf.Reference]bool, depth int) error {
	if depth > maxDepth {
		return errTooDeep
	}
	if ref, ok := obj.(pdf.Reference); ok {
		if seen[ref] {
			return &pdf.MalformedFileError{Err: errLoop}
		}
		seen[ref] = true
		t.Nodes = append(t.Nodes, ref)
	}

	node, err := pdf.GetDict(r, obj)
	if node == nil {
		return err
	}

	// leaf node with Names
	if names, ok := node["Names"]; ok {
		arr, err := pdf.GetArray(r, names)
		if err != nil {
			return err
		}
		for i := 0; i+1 < len(arr); i += 2 {
			key, err := pdf.GetString(r, arr[i])
			if err != nil {
				continue
			}
			t.Data[string(key)] = arr[i+1]
			if len(t.Data) > maxEntries {
				return errTooMany
			}
		}
		return nil
	}

	// intermediate node with Kids
	if kids, ok := node["Kids"]; ok {
		arr, err := pdf.GetArray(r, kids)
		if err != nil {
			return err
		}
		for _, kid := range arr {
			err = t.readNode(r, kid, seen, depth+1)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// Lookup returns the value for key.
func (t *InMemory) Lookup(key string) (pdf.Object, error) {
	if t == nil || t.Data == nil {
		return nil, ErrKeyNotFound
	}
	value, ok := t.Data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

// Len returns the number of entries in the tree.
func (t *InMemory) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Data)
}

// All iterates over the entries of the tree in key order.
func (t *InMemory) All() iter.Seq2[string, pdf.Object] {
	return func(yield func(string, pdf.Object) bool) {
		if t == nil {
			return
		}
		keys := make([]string, 0, len(t.Data))
		for key := range t.Data {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			if !yield(key, t.Data[key]) {
				return
			}
		}
	}
}

// Delete removes key from the tree.
func (t *InMemory) Delete(key string) {
	if t != nil {
		delete(t.Data, key)
	}
}

// AsDict returns the tree as a single leaf node.  The result is nil if
// the tree is empty.
func (t *InMemory) AsDict() pdf.Dict {
	if t.Len() == 0 {
		return nil
	}
	names := make(pdf.Array, 0, 2*len(t.Data))
	for key, val := range t.All() {
		names = append(names, pdf.String(key), val)
	}
	return pdf.Dict{"Names": names}
}
