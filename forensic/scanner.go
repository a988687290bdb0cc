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

// Package forensic scans PDF documents for forensic artifacts.
//
// A scan walks the document catalog, the information dictionary, all
// streams, the signature fields and the revision history of a document.
// The walks run concurrently.  Every walk is bounded by a depth ceiling,
// and all walks of a scan share a memory ceiling and a deadline.  When a
// ceiling is exceeded the scan fails with a [*ResourceError]; partial
// results are never returned.
//
// Results are cached, keyed by the document ID and the hash of the
// document contents.
package forensic

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"seehuhn.de/go/pdfscrub/internal/cache"
	"seehuhn.de/go/pdfscrub/internal/codec"
	"seehuhn.de/go/pdfscrub/internal/digest"
	"seehuhn.de/go/pdfscrub/pdf"
	"seehuhn.de/go/pdfscrub/xref"
)

// Document is the view of a PDF document used by the scanner.
type Document interface {
	pdf.Resolver

	ID() string
	Hash() [32]byte
	Size() int64
	Version() string
	Revisions() int
	Encrypted() bool
	Decrypted() bool

	Trailer() pdf.Dict
	Catalog() (pdf.Dict, error)
	Info() (pdf.Dict, error)
	Streams() ([]pdf.Reference, error)
}

// History is implemented by documents which can report on the state of
// their cross-reference table.
type History interface {
	FreeObjects() []uint32
	Orphans() ([]pdf.Reference, error)
	Repaired() bool

	// XRefOffsets lists the positions of the cross-reference sections,
	// newest first.
	XRefOffsets() []int64
}

// Linearized is implemented by documents which can check their
// linearization parameters.
type Linearized interface {
	Linearization() (pdf.Dict, bool)
	LinearizationIssues() []xref.Issue
}

// Config holds the limits for a scanner.
type Config struct {
	// MaxDepth is the maximum nesting depth of a walk.
	MaxDepth int

	// MaxMemory is the maximum number of bytes of objects and decoded
	// stream data a scan may read.  Zero means no limit.
	MaxMemory int64

	// Timeout bounds the duration of a scan.  Zero means no limit.
	Timeout time.Duration

	CacheTTL   time.Duration
	CacheBytes int64
}

// DefaultConfig returns the default scanner limits.
func DefaultConfig() Config {
	return Config{
		MaxDepth:   64,
		MaxMemory:  256 << 20,
		Timeout:    30 * time.Second,
		CacheTTL:   time.Hour,
		CacheBytes: 64 << 20,
	}
}

// Stats reports the activity of a scanner.
type Stats struct {
	// Scans is the number of scans which walked a document.
	Scans       int64
	CacheHits   int64
	CacheMisses int64
}

// Scanner scans documents.  A Scanner can be used concurrently.
type Scanner struct {
	cfg    Config
	logger *slog.Logger
	cache  *cache.Cache

	scans  atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a new scanner.  A zero MaxDepth and zero cache settings
// are replaced by the defaults.
func New(cfg Config, logger *slog.Logger) *Scanner {
	def := DefaultConfig()
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheBytes <= 0 {
		cfg.CacheBytes = def.CacheBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		cfg:    cfg,
		logger: logger,
		cache:  cache.New(cfg.CacheTTL, cfg.CacheBytes),
	}
}

// Stats returns the scanner statistics.
func (s *Scanner) Stats() Stats {
	return Stats{
		Scans:       s.scans.Load(),
		CacheHits:   s.hits.Load(),
		CacheMisses: s.misses.Load(),
	}
}

// CacheStats returns the statistics of the result cache.
func (s *Scanner) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Invalidate removes the cached result for doc.
func (s *Scanner) Invalidate(doc Document) {
	s.cache.Remove(cacheKey(doc))
}

func cacheKey(doc Document) digest.Sum {
	return digest.CacheKey(doc.ID(), digest.Sum(doc.Hash()))
}

// Scan scans a document.  Scanning an unchanged document a second time
// returns the cached result.
func (s *Scanner) Scan(ctx context.Context, doc Document) (*Result, error) {
	key := cacheKey(doc)
	if data, ok := s.cache.Get(key); ok {
		res := &Result{}
		err := codec.Unpack(data, res)
		if err == nil {
			s.hits.Add(1)
			return res, nil
		}
		s.logger.Warn("dropping corrupt cache entry",
			slog.String("doc", doc.ID()),
			slog.Any("err", err))
		s.cache.Remove(key)
	}
	s.misses.Add(1)

	catalog, err := s.validate(doc)
	if err != nil {
		return nil, err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	s.scans.Add(1)
	logger := s.logger.With(slog.String("doc", doc.ID()))
	g, gctx := errgroup.WithContext(ctx)
	sc := newScanContext(gctx, &s.cfg, doc)

	walks := []struct {
		stage string
		run   func(*walker) error
	}{
		{"structure", func(w *walker) error { return w.walkStructure(catalog) }},
		{"info", (*walker).walkInfo},
		{"streams", (*walker).walkStreams},
		{"signatures", func(w *walker) error { return w.walkSignatures(catalog) }},
		{"revisions", (*walker).walkRevisions},
	}
	walkers := make([]*walker, len(walks))
	for i, walk := range walks {
		w := sc.walker(walk.stage, logger)
		walkers[i] = w
		g.Go(func() error {
			err := walk.run(w)
			if err == nil {
				err = sc.Check(w.stage)
			}
			return err
		})
	}
	err = g.Wait()
	if err != nil {
		logger.Info("scan aborted", slog.Any("err", err))
		return nil, err
	}

	var artifacts []*Artifact
	seen := make(map[string]bool)
	for _, w := range walkers {
		for _, a := range w.artifacts {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			artifacts = append(artifacts, a)
		}
	}

	hash := digest.Sum(doc.Hash())
	res := &Result{
		DocumentID:      doc.ID(),
		DocumentHash:    hash.String(),
		Risk:            OverallRisk(artifacts),
		Artifacts:       artifacts,
		Recommendations: Recommendations(artifacts),
		Warnings:        sc.warnings,
		Duration:        time.Since(sc.start),
		ScannedAt:       sc.start.UTC(),
		Metadata: map[string]string{
			"version":   doc.Version(),
			"size":      strconv.FormatInt(doc.Size(), 10),
			"revisions": strconv.Itoa(doc.Revisions()),
			"encrypted": strconv.FormatBool(doc.Encrypted()),
			"memory":    strconv.FormatInt(sc.Memory(), 10),
		},
	}
	if l, ok := doc.(Linearized); ok {
		_, isLinearized := l.Linearization()
		res.Metadata["linearized"] = strconv.FormatBool(isLinearized)
	}
	logger.Info("scan complete",
		slog.String("risk", res.Risk.String()),
		slog.Int("artifacts", len(artifacts)),
		slog.Duration("duration", res.Duration))

	// The cached form is returned, so that repeated scans of the same
	// document give identical results.
	data, err := codec.Pack(res)
	if err != nil {
		return nil, fmt.Errorf("encode scan result: %w", err)
	}
	s.cache.Put(key, data)
	cached := &Result{}
	err = codec.Unpack(data, cached)
	if err != nil {
		return nil, fmt.Errorf("decode scan result: %w", err)
	}
	return cached, nil
}

func (s *Scanner) validate(doc Document) (pdf.Dict, error) {
	if doc.Encrypted() && !doc.Decrypted() {
		return nil, &PreconditionError{
			DocumentID: doc.ID(),
			Reason:     "document is encrypted",
		}
	}
	catalog, err := doc.Catalog()
	if err != nil {
		return nil, &PreconditionError{
			DocumentID: doc.ID(),
			Reason:     "cannot read document catalog",
			Err:        err,
		}
	}
	if catalog == nil {
		return nil, &PreconditionError{
			DocumentID: doc.ID(),
			Reason:     "missing document catalog",
		}
	}
	return catalog, nil
}
