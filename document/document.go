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

// Package document loads PDF files into memory, resolves their objects,
// and writes modified versions.
//
// The cross-reference table of a Document is kept in an xref.Manager.
// Modified objects are held in memory until Write is called, which
// produces a complete new file with a single classic cross-reference
// table.
package document

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"seehuhn.de/go/pdfscrub/internal/digest"
	"seehuhn.de/go/pdfscrub/pdf"
	"seehuhn.de/go/pdfscrub/xref"
)

var (
	// ErrEncrypted is returned by operations which need access to the
	// decrypted contents of an encrypted document.
	ErrEncrypted = errors.New("document is encrypted")

	errNoCatalog = errors.New("document catalog not found")
)

// Options control how a document is loaded.
type Options struct {
	// Password is used to authenticate encrypted documents.
	Password string

	// Decrypter implements the security handler.  If this is nil,
	// encrypted documents are loaded without decrypting them.
	Decrypter Decrypter

	// XRef configures the cross-reference table.
	XRef *xref.Options

	// Logger receives diagnostic messages.  The default is slog.Default().
	Logger *slog.Logger
}

// Document is a PDF file held in memory.
//
// All methods are safe for concurrent use.
type Document struct {
	name    string
	data    []byte
	hash    digest.Sum
	id      string
	version string
	logger  *slog.Logger
	xref    *xref.Manager

	revisions   int
	xrefOffsets []int64
	repaired    bool
	lin         pdf.Dict

	encrypted  bool
	encryptRef pdf.Reference
	dec        Decrypter
	decrypted  bool

	mu       sync.RWMutex
	trailer  pdf.Dict
	changed  bool
	cache    map[pdf.Reference]pdf.Object
	modified map[pdf.Reference]pdf.Object
	objStms  map[uint32][]pdf.CompressedObject
}

// Opened is the result of OpenAsync.
type Opened struct {
	Doc *Document
	Err error
}

// Open reads the named file and loads it as a PDF document.
func Open(name string, opts *Options) (*Document, error) {
	return OpenContext(context.Background(), name, opts)
}

// OpenContext is like Open, but gives up early if ctx is cancelled before
// parsing starts.
func OpenContext(ctx context.Context, name string, opts *Options) (*Document, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := Load(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	doc.name = name
	return doc, nil
}

// OpenAsync opens the named file in a separate goroutine.  The returned
// channel delivers exactly one value and is then closed.
func OpenAsync(ctx context.Context, name string, opts *Options) <-chan Opened {
	res := make(chan Opened, 1)
	go func() {
		defer close(res)
		doc, err := OpenContext(ctx, name, opts)
		res <- Opened{Doc: doc, Err: err}
	}()
	return res
}

// Load parses a PDF file held in memory.  The Document keeps a reference
// to data, which must not be modified afterwards.
//
// If the cross-reference information of the file is damaged, the object
// table is reconstructed by reading the file sequentially.
func Load(data []byte, opts *Options) (*Document, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Document{
		data:     data,
		hash:     digest.Document(data),
		logger:   logger,
		cache:    make(map[pdf.Reference]pdf.Object),
		modified: make(map[pdf.Reference]pdf.Object),
		objStms:  make(map[uint32][]pdf.CompressedObject),
	}

	p := pdf.NewParser(bytes.NewReader(data), int64(len(data)))
	version, err := p.ParseHeader()
	if err != nil {
		return nil, err
	}
	d.version = version
	if _, obj, err := p.ParseNextObject(); err == nil {
		if dict, ok := obj.(pdf.Dict); ok && dict["Linearized"] != nil {
			d.lin = dict
		}
	}

	sections, err := pdf.ReadXRef(bytes.NewReader(data), int64(len(data)))
	if err == nil && sections.Trailer["Root"] == nil {
		err = &pdf.MalformedFileError{Err: errNoCatalog}
	}
	if err != nil {
		logger.Warn("damaged cross-reference information, reconstructing",
			slog.Any("err", err))
		sections, err = reconstruct(data, logger)
		if err != nil {
			return nil, err
		}
		d.repaired = true
	}

	xrefOpts := xref.Options{}
	if opts.XRef != nil {
		xrefOpts = *opts.XRef
	}
	if xrefOpts.Logger == nil {
		xrefOpts.Logger = logger
	}
	d.xref = xref.New(&xrefOpts)
	d.xref.Load(sections.Entries)
	d.trailer = sections.Trailer
	d.revisions = sections.Revisions
	d.xrefOffsets = sections.Offsets

	idBytes := d.firstID()
	if idBytes != nil {
		d.id = hex.EncodeToString(idBytes)
	} else {
		d.id = d.hash.Short()
	}

	if encObj, ok := d.trailer["Encrypt"]; ok && encObj != nil {
		d.encrypted = true
		if ref, ok := encObj.(pdf.Reference); ok {
			d.encryptRef = ref
		}
		if opts.Decrypter != nil {
			err := d.authenticate(opts.Decrypter, opts.Password, idBytes)
			if err != nil {
				return nil, err
			}
		}
	}

	if catalog, err := d.Catalog(); err == nil {
		if v, ok := catalog["Version"].(pdf.Name); ok {
			catVer, err1 := pdf.ParseVersion(string(v))
			fileVer, err2 := pdf.ParseVersion(d.version)
			if err1 == nil && err2 == nil && catVer > fileVer {
				d.version = string(v)
			}
		}
	}

	return d, nil
}

func (d *Document) firstID() []byte {
	ids, ok := d.trailer["ID"].(pdf.Array)
	if !ok || len(ids) == 0 {
		return nil
	}
	id, ok := ids[0].(pdf.String)
	if !ok || len(id) == 0 {
		return nil
	}
	return id
}

// Name returns the file name the document was read from, if any.
func (d *Document) Name() string {
	return d.name
}

// ID returns a string identifying the document.  This is the hex encoding
// of the first element of the trailer /ID array, or a prefix of the
// content hash if the file has no ID.
func (d *Document) ID() string {
	return d.id
}

// Hash returns the BLAKE3 hash of the file contents.
func (d *Document) Hash() [32]byte {
	return [32]byte(d.hash)
}

// Size returns the length of the file in bytes.
func (d *Document) Size() int64 {
	return int64(len(d.data))
}

// Bytes returns the contents of the file, as loaded.
func (d *Document) Bytes() []byte {
	return d.data
}

// Version returns the PDF version of the document, e.g. "1.7".
func (d *Document) Version() string {
	return d.version
}

// Revisions returns the number of cross-reference sections in the file.
// Each incremental update adds one revision.
func (d *Document) Revisions() int {
	return d.revisions
}

// XRefOffsets returns the file offsets of all cross-reference sections,
// newest first.
func (d *Document) XRefOffsets() []int64 {
	return d.xrefOffsets
}

// Repaired reports whether the object table had to be reconstructed.
func (d *Document) Repaired() bool {
	return d.repaired
}

// Encrypted reports whether the file has an /Encrypt entry in its trailer.
func (d *Document) Encrypted() bool {
	return d.encrypted
}

// Decrypted reports whether the document was successfully authenticated,
// so that strings and streams are returned in decrypted form.
func (d *Document) Decrypted() bool {
	return d.decrypted
}

// XRef returns the cross-reference table of the document.
func (d *Document) XRef() *xref.Manager {
	return d.xref
}

// Linearization returns the linearization parameter dictionary, if the
// file claims to be linearized.
func (d *Document) Linearization() (pdf.Dict, bool) {
	return d.lin, d.lin != nil
}

// LinearizationIssues checks the linearization dictionary against the
// file.  The result is nil for files which are not linearized.
func (d *Document) LinearizationIssues() []xref.Issue {
	if d.lin == nil {
		return nil
	}
	return d.xref.ValidateLinearization(d.lin, d.Size())
}

// Trailer returns a copy of the trailer dictionary.
func (d *Document) Trailer() pdf.Dict {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.trailer.Clone()
}

// Catalog returns the document catalog.
func (d *Document) Catalog() (pdf.Dict, error) {
	d.mu.RLock()
	root := d.trailer["Root"]
	d.mu.RUnlock()

	obj, err := d.Resolve(root)
	if err != nil {
		return nil, err
	}
	catalog, ok := obj.(pdf.Dict)
	if !ok {
		return nil, &pdf.MalformedFileError{Err: errNoCatalog}
	}
	return catalog, nil
}

// Info returns the document information dictionary.  If the document has
// no such dictionary, nil is returned.
func (d *Document) Info() (pdf.Dict, error) {
	d.mu.RLock()
	info := d.trailer["Info"]
	d.mu.RUnlock()

	obj, err := d.Resolve(info)
	if err != nil {
		return nil, err
	}
	dict, _ := obj.(pdf.Dict)
	return dict, nil
}

// Streams returns references to all stream objects of the document, in
// order of increasing object number.  Objects which cannot be read are
// skipped.
func (d *Document) Streams() ([]pdf.Reference, error) {
	var res []pdf.Reference
	for _, ref := range d.xref.InUse() {
		obj, err := d.Resolve(ref)
		if err != nil {
			d.logger.Debug("skipping unreadable object",
				slog.String("ref", ref.String()),
				slog.Any("err", err))
			continue
		}
		if _, ok := obj.(*pdf.Stream); ok {
			res = append(res, ref)
		}
	}
	return res, nil
}

// FreeObjects returns the numbers of all free entries in the
// cross-reference table, except for object 0.
func (d *Document) FreeObjects() []uint32 {
	var res []uint32
	for _, number := range d.xref.Numbers() {
		if number == 0 {
			continue
		}
		if e, ok := d.xref.Entry(number); ok && e.Status == xref.Free {
			res = append(res, number)
		}
	}
	return res
}
