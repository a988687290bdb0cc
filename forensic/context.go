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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"seehuhn.de/go/pdfscrub/internal/digest"
	"seehuhn.de/go/pdfscrub/pdf"
)

// ScanContext holds the state shared by the walks of one scan.
type ScanContext struct {
	ctx   context.Context
	cfg   *Config
	doc   Document
	docID string
	start time.Time

	memory atomic.Int64

	mu       sync.Mutex
	visited  map[visitKey]struct{}
	warnings []string
}

type visitKey struct {
	stage string
	ref   pdf.Reference
}

func newScanContext(ctx context.Context, cfg *Config, doc Document) *ScanContext {
	return &ScanContext{
		ctx:     ctx,
		cfg:     cfg,
		doc:     doc,
		docID:   doc.ID(),
		start:   time.Now(),
		visited: make(map[visitKey]struct{}),
	}
}

// Visit marks ref as seen by the given stage and reports whether this
// is the first visit.
func (sc *ScanContext) Visit(stage string, ref pdf.Reference) bool {
	key := visitKey{stage, ref}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, seen := sc.visited[key]; seen {
		return false
	}
	sc.visited[key] = struct{}{}
	return true
}

// Charge adds n bytes to the memory used by the scan.
func (sc *ScanContext) Charge(stage string, n int64) error {
	total := sc.memory.Add(n)
	if sc.cfg.MaxMemory > 0 && total > sc.cfg.MaxMemory {
		return &ResourceError{
			Resource:   "memory",
			Limit:      sc.cfg.MaxMemory,
			DocumentID: sc.docID,
			Stage:      stage,
		}
	}
	return nil
}

// Memory returns the number of bytes charged so far.
func (sc *ScanContext) Memory() int64 {
	return sc.memory.Load()
}

// Check returns an error if the scan has run out of time or has been
// cancelled.
func (sc *ScanContext) Check(stage string) error {
	err := sc.ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ResourceError{
			Resource:   "time",
			Limit:      int64(sc.cfg.Timeout),
			DocumentID: sc.docID,
			Stage:      stage,
		}
	}
	return err
}

func (sc *ScanContext) warn(stage string, ref pdf.Reference, err error) {
	msg := fmt.Sprintf("%s: %s: %v", stage, ref, err)
	sc.mu.Lock()
	sc.warnings = append(sc.warnings, msg)
	sc.mu.Unlock()
}

// walker is the state of one sequential walk.
type walker struct {
	sc     *ScanContext
	stage  string
	logger *slog.Logger
	depth  int

	artifacts []*Artifact
}

func (sc *ScanContext) walker(stage string, logger *slog.Logger) *walker {
	return &walker{
		sc:     sc,
		stage:  stage,
		logger: logger.With(slog.String("stage", stage)),
	}
}

// enter descends one level and fails if the depth ceiling is exceeded.
// Every successful call must be paired with a call to leave.
func (w *walker) enter() error {
	if w.depth >= w.sc.cfg.MaxDepth {
		return &ResourceError{
			Resource:   "depth",
			Limit:      int64(w.sc.cfg.MaxDepth),
			DocumentID: w.sc.docID,
			Stage:      w.stage,
		}
	}
	w.depth++
	return nil
}

func (w *walker) leave() {
	w.depth--
}

// resolve reads an object and charges its size to the scan.  Objects
// which cannot be read are recorded as warnings and resolve to nil.
func (w *walker) resolve(obj pdf.Object) (pdf.Object, error) {
	ref, isRef := obj.(pdf.Reference)
	res, err := w.sc.doc.Resolve(obj)
	if err != nil {
		w.logger.Debug("unreadable object",
			slog.String("ref", ref.String()),
			slog.Any("err", err))
		w.sc.warn(w.stage, ref, err)
		return nil, nil
	}
	if isRef {
		if err := w.sc.Charge(w.stage, pdf.Size(res)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// decode returns the decoded data of a stream and charges its length.
func (w *walker) decode(ref pdf.Reference, stm *pdf.Stream) ([]byte, error) {
	data, err := stm.Decode()
	if err != nil {
		w.sc.warn(w.stage, ref, err)
		return nil, nil
	}
	if err := w.sc.Charge(w.stage, int64(len(data))); err != nil {
		return nil, err
	}
	return data, nil
}

// add records an artifact.
func (w *walker) add(tp ArtifactType, kind string, risk RiskLevel, loc Location, desc string, content []byte) {
	hash := digest.Content(content)
	a := &Artifact{
		ID:          digest.ArtifactID(w.sc.docID, kind, loc.String(), hash),
		Type:        tp,
		Kind:        kind,
		Location:    loc,
		Risk:        risk,
		Description: desc,
		Remediation: remediation[kind],
		DetectedAt:  time.Now().UTC(),
		ContentHash: hash.String(),
	}
	w.logger.Debug("artifact",
		slog.String("artifact", a.ID),
		slog.String("kind", kind),
		slog.String("location", loc.String()))
	w.artifacts = append(w.artifacts, a)
}

var remediation = map[string]string{
	KindInfo:              "Remove identifying entries from the document information dictionary.",
	KindXMP:               "Replace XMP metadata streams with empty packets.",
	KindPieceInfo:         "Remove private application data (PieceInfo).",
	KindLastModified:      "Remove modification timestamps.",
	KindLang:              "Reduce the document language to its base language.",
	KindImageMetadata:     "Strip Exif, XMP and comment segments from embedded images.",
	KindImageTrailer:      "Truncate image data after the end-of-image marker.",
	KindICC:               "Replace malformed ICC profiles with a standard profile.",
	KindCCITT:             "Inspect CCITT images which fail to decode for hidden data.",
	KindContentComments:   "Remove comments and padding from page content streams.",
	KindJavaScriptNames:   "Remove document-level JavaScript.",
	KindOpenAction:        "Remove the document open action.",
	KindAction:            "Remove active content (JavaScript, launch and submit actions).",
	KindAdditionalActions: "Remove additional-actions dictionaries.",
	KindEmbeddedFile:      "Remove embedded files.",
	KindXFA:               "Remove XFA form data.",
	KindHiddenOCG:         "Make all optional content visible or remove hidden layers.",
	KindOutline:           "Remove the document outline if it reveals draft structure.",
	KindNamedDestinations: "Remove named destinations.",
	KindThumbnail:         "Remove page thumbnails.",
	KindPageCount:         "Repair the page count of the page tree.",
	KindSignature:         "Remove signatures which reveal signer identity or do not cover the file.",
	KindIncrementalUpdate: "Rewrite the file without incremental updates.",
	KindFreeObjects:       "Rewrite the file to drop deleted objects.",
	KindOrphans:           "Remove unreferenced objects.",
	KindRepairedXRef:      "Rewrite the file with a consistent cross-reference table.",
	KindLinearization:     "Rewrite the file without linearization.",
}

// These are the values of Artifact.Kind.
const (
	KindInfo              = "info"
	KindXMP               = "xmp"
	KindPieceInfo         = "piece-info"
	KindLastModified      = "last-modified"
	KindLang              = "lang"
	KindImageMetadata     = "image-metadata"
	KindImageTrailer      = "image-trailer"
	KindICC               = "icc-profile"
	KindCCITT             = "ccitt"
	KindContentComments   = "content-comments"
	KindJavaScriptNames   = "javascript-names"
	KindOpenAction        = "open-action"
	KindAction            = "action"
	KindAdditionalActions = "additional-actions"
	KindEmbeddedFile      = "embedded-file"
	KindXFA               = "xfa"
	KindHiddenOCG         = "hidden-ocg"
	KindOutline           = "outline"
	KindNamedDestinations = "named-destinations"
	KindThumbnail         = "thumbnail"
	KindPageCount         = "page-count"
	KindSignature         = "signature"
	KindIncrementalUpdate = "incremental-update"
	KindFreeObjects       = "free-objects"
	KindOrphans           = "orphans"
	KindRepairedXRef      = "repaired-xref"
	KindLinearization     = "linearization"
)
