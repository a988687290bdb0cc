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
	"strings"
	"time"

	"seehuhn.de/go/pdfscrub/pdf"
)

// ArtifactType classifies forensic artifacts.  The cleaner selects its
// strategies by artifact type.
type ArtifactType int

// These are the artifact types.
const (
	Metadata ArtifactType = iota + 1
	Structure
	JavaScript
	Signature
	EmbeddedFile
	Revision
)

func (t ArtifactType) String() string {
	switch t {
	case Metadata:
		return "Metadata"
	case Structure:
		return "Structure"
	case JavaScript:
		return "JavaScript"
	case Signature:
		return "Signature"
	case EmbeddedFile:
		return "EmbeddedFile"
	case Revision:
		return "Revision"
	default:
		return fmt.Sprintf("ArtifactType(%d)", int(t))
	}
}

// RiskLevel is the risk associated with an artifact or a document.
type RiskLevel int

// These are the risk levels, in increasing order.
const (
	Low RiskLevel = iota
	Medium
	High
	Critical
)

func (r RiskLevel) String() string {
	switch r {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
}

// Weight returns the contribution of an artifact with risk r to the
// overall document risk.
func (r RiskLevel) Weight() float64 {
	switch r {
	case Critical:
		return 1.0
	case High:
		return 0.75
	case Medium:
		return 0.5
	default:
		return 0.25
	}
}

// Location identifies the place in a document where an artifact was found.
type Location struct {
	// Object is the indirect object which contains the artifact.  This is
	// the zero reference for artifacts which are not stored in an object,
	// for example entries of the trailer dictionary.
	Object pdf.Reference

	// Keys lists the dictionary keys which lead from Object to the
	// artifact.  If Keys and Indices are empty, the artifact is the
	// object itself.
	Keys []pdf.Name

	// Indices, if not nil, has one element more than Keys.  Indices[i]
	// is the array index taken before Keys[i], the last element is the
	// index taken after the last key.  Negative values mean that no
	// array is crossed at this point.
	Indices []int

	// Partial is set if the artifact lies somewhere below the position
	// given by Keys and Indices, for example inside nested arrays.
	Partial bool

	// Path is a human-readable description of the location.
	Path string
}

func (loc Location) String() string {
	if loc.Path != "" {
		return loc.Path
	}
	b := &strings.Builder{}
	if !loc.Object.IsZero() {
		b.WriteString(loc.Object.String())
	}
	for i, key := range loc.Keys {
		if idx := loc.IndexAt(i); idx >= 0 {
			fmt.Fprintf(b, "[%d]", idx)
		}
		b.WriteString("/")
		b.WriteString(string(key))
	}
	if idx := loc.IndexAt(len(loc.Keys)); idx >= 0 {
		fmt.Fprintf(b, "[%d]", idx)
	}
	return b.String()
}

// IndexAt returns the array index taken before Keys[i], or -1.
func (loc Location) IndexAt(i int) int {
	if i < 0 || i >= len(loc.Indices) {
		return -1
	}
	return loc.Indices[i]
}

// Key returns the last element of loc.Keys, or the empty name.
func (loc Location) Key() pdf.Name {
	if len(loc.Keys) == 0 {
		return ""
	}
	return loc.Keys[len(loc.Keys)-1]
}

// Artifact is a single finding.  Artifacts are not modified after they
// have been created.
type Artifact struct {
	ID   string
	Type ArtifactType

	// Kind names the detector which produced the artifact, for example
	// "info" or "open-action".
	Kind string

	Location    Location
	Risk        RiskLevel
	Description string
	Remediation string
	DetectedAt  time.Time

	// ContentHash is the hex-encoded hash of the offending content.
	ContentHash string
}

// Result is the outcome of a scan.
type Result struct {
	DocumentID   string
	DocumentHash string
	Risk         RiskLevel
	Artifacts    []*Artifact

	// Recommendations lists the remediation steps, without duplicates.
	Recommendations []string

	// Warnings lists objects which could not be read.  These do not
	// abort a scan.
	Warnings []string

	Duration  time.Duration
	ScannedAt time.Time
	Metadata  map[string]string
}

// OverallRisk maps the mean weight of the artifact risks to a risk level.
// A document without artifacts has low risk.
func OverallRisk(artifacts []*Artifact) RiskLevel {
	if len(artifacts) == 0 {
		return Low
	}
	var sum float64
	for _, a := range artifacts {
		sum += a.Risk.Weight()
	}
	mean := sum / float64(len(artifacts))
	switch {
	case mean >= 0.8:
		return Critical
	case mean >= 0.6:
		return High
	case mean >= 0.3:
		return Medium
	default:
		return Low
	}
}

const closingRecommendation = "Re-scan the document after cleaning to confirm that all artifacts have been removed."

// Recommendations collects the remediation texts of the artifacts in
// order of first appearance.
func Recommendations(artifacts []*Artifact) []string {
	var res []string
	seen := make(map[string]bool)
	for _, a := range artifacts {
		if a.Remediation == "" || seen[a.Remediation] {
			continue
		}
		seen[a.Remediation] = true
		res = append(res, a.Remediation)
	}
	if len(res) > 0 {
		res = append(res, closingRecommendation)
	}
	return res
}
