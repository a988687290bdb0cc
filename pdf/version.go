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

package pdf

import "strconv"

// Version is a PDF version, as given in the file header or in the
// /Version entry of the document catalog.
type Version int

// PDF versions known to the parser.
const (
	_ Version = iota
	V1_0
	V1_1
	V1_2
	V1_3
	V1_4
	V1_5
	V1_6
	V1_7
	V2_0
)

var versionNames = [...]string{
	V1_0: "1.0",
	V1_1: "1.1",
	V1_2: "1.2",
	V1_3: "1.3",
	V1_4: "1.4",
	V1_5: "1.5",
	V1_6: "1.6",
	V1_7: "1.7",
	V2_0: "2.0",
}

// ParseVersion parses a version string like "1.7".
func ParseVersion(s string) (Version, error) {
	for v := V1_0; v <= V2_0; v++ {
		if versionNames[v] == s {
			return v, nil
		}
	}
	return 0, errVersion
}

func (v Version) String() string {
	if v < V1_0 || v > V2_0 {
		return "pdf.Version(" + strconv.Itoa(int(v)) + ")"
	}
	return versionNames[v]
}
