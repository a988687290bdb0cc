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

package pdfscrub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"seehuhn.de/go/pdfscrub/cleaner"
	"seehuhn.de/go/pdfscrub/config"
	"seehuhn.de/go/pdfscrub/document"
	"seehuhn.de/go/pdfscrub/forensic"
	"seehuhn.de/go/pdfscrub/internal/cache"
	"seehuhn.de/go/pdfscrub/internal/codec"
	"seehuhn.de/go/pdfscrub/internal/digest"
	"seehuhn.de/go/pdfscrub/xref"
)

// Service scans and cleans documents.  A Service can be used
// concurrently.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	scanner *forensic.Scanner
	cleaner *cleaner.Pipeline

	scanSem  *semaphore.Weighted
	cleanSem *semaphore.Weighted

	// outputs holds the packed reports of sanitized documents.
	outputs *cache.Cache
}

// New creates a service.  If cfg is nil, the default configuration is
// used.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	scanCfg := forensic.Config{
		MaxDepth:   cfg.Scanner.MaxDepth,
		MaxMemory:  cfg.Scanner.MaxMemory,
		Timeout:    cfg.Scanner.Timeout,
		CacheTTL:   cfg.Scanner.CacheTTL,
		CacheBytes: cfg.Scanner.CacheBytes,
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		scanner:  forensic.New(scanCfg, logger),
		cleaner:  cleaner.New(logger),
		scanSem:  semaphore.NewWeighted(cfg.Limits.MaxConcurrentScans),
		cleanSem: semaphore.NewWeighted(cfg.Limits.MaxConcurrentCleans),
		outputs:  cache.New(cfg.Cleaner.CacheTTL, cfg.Cleaner.CacheBytes),
	}, nil
}

// OpenOptions holds the credentials for encrypted documents.
type OpenOptions struct {
	Password  string
	Decrypter document.Decrypter
}

func (s *Service) documentOptions(opts *OpenOptions) *document.Options {
	res := &document.Options{
		XRef: &xref.Options{
			MaxGeneration: s.cfg.XRef.MaxGeneration,
			GCThreshold:   s.cfg.XRef.GCThreshold,
			Logger:        s.logger,
		},
		Logger: s.logger,
	}
	if opts != nil {
		res.Password = opts.Password
		res.Decrypter = opts.Decrypter
	}
	return res
}

// Open reads and parses the named file.  Open returns early with the
// context error if ctx is cancelled while the file is being loaded.
func (s *Service) Open(ctx context.Context, name string, opts *OpenOptions) (*document.Document, error) {
	select {
	case res := <-document.OpenAsync(ctx, name, s.documentOptions(opts)):
		return res.Doc, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Load parses a PDF file held in memory.
func (s *Service) Load(data []byte, opts *OpenOptions) (*document.Document, error) {
	return document.Load(data, s.documentOptions(opts))
}

// Scan looks for forensic artifacts in doc.
//
// Documents which cannot be scanned at all give a
// [*forensic.PreconditionError].  Scans which exceed a resource limit
// give an [*OperationError].
func (s *Service) Scan(ctx context.Context, doc forensic.Document) (*forensic.Result, error) {
	release, err := s.acquire(ctx, s.scanSem, "scan")
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := s.scanner.Scan(ctx, doc)
	if err != nil {
		var pre *forensic.PreconditionError
		if errors.As(err, &pre) {
			return nil, err
		}
		return nil, &OperationError{DocumentID: doc.ID(), Stage: "scan", Err: err}
	}
	return res, nil
}

// Clean removes the given artifacts from doc.  Artifacts which cannot be
// removed are listed in the returned statistics.
func (s *Service) Clean(ctx context.Context, doc cleaner.Document, artifacts []*forensic.Artifact) (*cleaner.Stats, error) {
	release, err := s.acquire(ctx, s.cleanSem, "clean")
	if err != nil {
		return nil, err
	}
	defer release()

	stats := s.cleaner.Clean(ctx, doc, artifacts)
	s.scanner.Invalidate(doc)
	if err := ctx.Err(); err != nil {
		return stats, &OperationError{DocumentID: doc.ID(), Stage: "clean", Err: err}
	}
	return stats, nil
}

// Report is the outcome of [Service.Sanitize].
type Report struct {
	DocumentID string

	// Scan lists the artifacts found in the original document.
	Scan *forensic.Result

	Cleaned int
	Failed  []cleaner.Failure

	// Output is the sanitized PDF file.
	Output []byte
}

// Sanitize scans doc, removes all artifacts found and serializes the
// result.  Reports are cached, keyed by the document ID and the contents
// of the original file.
func (s *Service) Sanitize(ctx context.Context, doc *document.Document) (*Report, error) {
	key := digest.CacheKey(doc.ID(), digest.Sum(doc.Hash()))
	if data, ok := s.outputs.Get(key); ok {
		rep := &Report{}
		if err := codec.Unpack(data, rep); err == nil {
			return rep, nil
		}
		s.outputs.Remove(key)
	}

	res, err := s.Scan(ctx, doc)
	if err != nil {
		return nil, err
	}
	stats, err := s.Clean(ctx, doc, res.Artifacts)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if s.cfg.Cleaner.XRefStream {
		err = doc.WriteXRefStream(buf)
	} else {
		err = doc.Write(buf)
	}
	if err != nil {
		return nil, &OperationError{DocumentID: doc.ID(), Stage: "write", Err: err}
	}

	rep := &Report{
		DocumentID: doc.ID(),
		Scan:       res,
		Cleaned:    stats.Cleaned,
		Failed:     stats.Failed,
		Output:     buf.Bytes(),
	}
	data, err := codec.Pack(rep)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	s.outputs.Put(key, data)
	return rep, nil
}

// Stats reports the activity of a service.
type Stats struct {
	Scanner forensic.Stats
	Results cache.Stats
	Outputs cache.Stats
}

// Stats returns the service statistics.
func (s *Service) Stats() Stats {
	return Stats{
		Scanner: s.scanner.Stats(),
		Results: s.scanner.CacheStats(),
		Outputs: s.outputs.Stats(),
	}
}

// acquire obtains a permit from sem.  If none becomes available within
// the acquire timeout, a [*ConcurrencyError] is returned.
func (s *Service) acquire(ctx context.Context, sem *semaphore.Weighted, op string) (func(), error) {
	timeout := s.cfg.Limits.AcquireTimeout
	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := sem.Acquire(actx, 1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("no permit available",
			slog.String("op", op),
			slog.Duration("timeout", timeout))
		return nil, &ConcurrencyError{Op: op, Timeout: timeout}
	}
	return func() { sem.Release(1) }, nil
}
