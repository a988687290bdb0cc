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

// Package digest computes the BLAKE3 hashes used to identify documents,
// artifacts and cache entries.
//
// Hashes in different roles use different keys, so that equal inputs in
// different roles never give the same hash.
package digest

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Sum is a 32-byte BLAKE3 hash.
type Sum [32]byte

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// Short returns the first 8 bytes of the hash in hexadecimal.
func (s Sum) Short() string {
	return hex.EncodeToString(s[:8])
}

type domain [32]byte

func newDomain(name string) domain {
	var d domain
	copy(d[:], name)
	return d
}

var (
	documentDomain = newDomain("pdfscrub.document")
	contentDomain  = newDomain("pdfscrub.content")
	cacheDomain    = newDomain("pdfscrub.cache")
	artifactDomain = newDomain("pdfscrub.artifact")
)

func keyed(d domain, parts ...[]byte) Sum {
	h, err := blake3.NewKeyed(d[:])
	if err != nil {
		panic("digest: " + err.Error())
	}
	var lenBuf [binary.MaxVarintLen64]byte
	for _, part := range parts {
		// length prefix, so that part boundaries are unambiguous
		n := binary.PutUvarint(lenBuf[:], uint64(len(part)))
		h.Write(lenBuf[:n])
		h.Write(part)
	}
	var res Sum
	copy(res[:], h.Sum(nil))
	return res
}

// Document returns the hash of the complete contents of a PDF file.
func Document(data []byte) Sum {
	return keyed(documentDomain, data)
}

// Content returns the hash of a piece of data found inside a document.
func Content(data []byte) Sum {
	return keyed(contentDomain, data)
}

// CacheKey returns the key under which results for the given document
// are cached.  Both the document ID and the hash of its contents
// contribute, so that a modified file never hits a stale entry.
func CacheKey(documentID string, documentHash Sum) Sum {
	return keyed(cacheDomain, []byte(documentID), documentHash[:])
}

// ArtifactID returns a stable identifier for an artifact, derived from
// the document, the artifact type, its location and its content.
func ArtifactID(documentID, kind, location string, content Sum) string {
	s := keyed(artifactDomain, []byte(documentID), []byte(kind), []byte(location), content[:])
	return s.Short()
}
