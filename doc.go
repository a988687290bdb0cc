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

// Package pdfscrub detects and removes forensic artifacts from PDF files.
//
// A [Service] combines the forensic scanner and the cleaner pipeline and
// bounds the number of scans and cleaning runs which may be in progress
// at the same time:
//
//	svc, err := pdfscrub.New(config.Default(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	doc, err := svc.Open(ctx, "in.pdf", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rep, err := svc.Sanitize(ctx, doc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = os.WriteFile("out.pdf", rep.Output, 0o644)
//
// The lower level building blocks live in the subpackages: [pdf] parses
// objects, [xref] maintains the cross-reference table, [document] holds
// a PDF file in memory, [forensic] finds artifacts and [cleaner] removes
// them.
package pdfscrub
