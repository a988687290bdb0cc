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

// Package cleaner removes forensic artifacts from documents.
//
// Each artifact type has an ordered chain of strategies.  The strategies
// of a chain are tried in order until one of them reports that it has
// handled the artifact.  A strategy which declines is not an error.
// Artifacts which no strategy could handle are reported as failures;
// cleaning never stops early because of a single artifact.
package cleaner

import (
	"context"
	"fmt"
	"log/slog"

	"seehuhn.de/go/pdfscrub/forensic"
	"seehuhn.de/go/pdfscrub/pdf"
)

// Document is the view of a document used by the strategies.
type Document interface {
	forensic.Document

	Put(ref pdf.Reference, obj pdf.Object) error
	Add(obj pdf.Object) (pdf.Reference, error)
	Delete(ref pdf.Reference) error
	SetTrailer(key pdf.Name, val pdf.Object)
}

// Pruner is implemented by documents which can remove unreferenced
// objects.
type Pruner interface {
	Prune() (int, error)
}

// Strategy is one way of removing an artifact.
type Strategy interface {
	Name() string

	// TryClean attempts to remove the artifact from the document.  It
	// returns false, without modifying the document, if the strategy
	// does not apply to the artifact.
	TryClean(ctx context.Context, doc Document, a *forensic.Artifact) (bool, error)
}

// Failure records an artifact which could not be removed.
type Failure struct {
	Artifact *forensic.Artifact
	Message  string

	// Strategy is the name of the last strategy which was tried.
	Strategy string
}

// Stats is the outcome of a call to [Pipeline.Clean].
type Stats struct {
	Cleaned int
	Failed  []Failure
}

// Pipeline holds the strategy chains for all artifact types.
type Pipeline struct {
	logger *slog.Logger
	chains map[forensic.ArtifactType][]Strategy
}

// New returns a pipeline with the default strategy chains.
func New(logger *slog.Logger) *Pipeline {
	p := NewEmpty(logger)
	for tp, chain := range DefaultChains() {
		p.SetChain(tp, chain...)
	}
	return p
}

// NewEmpty returns a pipeline without any strategies.
func NewEmpty(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger: logger,
		chains: make(map[forensic.ArtifactType][]Strategy),
	}
}

// SetChain replaces the strategy chain for the given artifact type.
func (p *Pipeline) SetChain(tp forensic.ArtifactType, strategies ...Strategy) {
	p.chains[tp] = strategies
}

// Chain returns the names of the strategies for an artifact type.
func (p *Pipeline) Chain(tp forensic.ArtifactType) []string {
	var res []string
	for _, s := range p.chains[tp] {
		res = append(res, s.Name())
	}
	return res
}

// Clean tries to remove all given artifacts from doc.
func (p *Pipeline) Clean(ctx context.Context, doc Document, artifacts []*forensic.Artifact) *Stats {
	stats := &Stats{}
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			stats.Failed = append(stats.Failed, Failure{Artifact: a, Message: err.Error()})
			continue
		}
		failure := p.cleanOne(ctx, doc, a)
		if failure != nil {
			stats.Failed = append(stats.Failed, *failure)
		} else {
			stats.Cleaned++
		}
	}
	p.logger.Info("cleaning complete",
		slog.String("doc", doc.ID()),
		slog.Int("cleaned", stats.Cleaned),
		slog.Int("failed", len(stats.Failed)))
	return stats
}

func (p *Pipeline) cleanOne(ctx context.Context, doc Document, a *forensic.Artifact) *Failure {
	var lastErr error
	var last string
	for _, s := range p.chains[a.Type] {
		last = s.Name()
		ok, err := s.TryClean(ctx, doc, a)
		if err != nil {
			p.logger.Warn("cleaning strategy failed",
				slog.String("strategy", last),
				slog.String("artifact", a.ID),
				slog.Any("err", err))
			lastErr = err
			continue
		}
		if ok {
			p.logger.Debug("artifact removed",
				slog.String("strategy", last),
				slog.String("artifact", a.ID),
				slog.String("kind", a.Kind))
			return nil
		}
	}

	msg := fmt.Sprintf("No suitable %s cleaning strategy found", a.Type)
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return &Failure{Artifact: a, Message: msg, Strategy: last}
}
