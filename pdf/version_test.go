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

import "testing"

func TestVersion(t *testing.T) {
	for _, s := range []string{"1.0", "1.4", "1.7", "2.0"} {
		v, err := ParseVersion(s)
		if err != nil {
			t.Errorf("%s: %v", s, err)
			continue
		}
		if v.String() != s {
			t.Errorf("%s: got %s", s, v)
		}
	}
	if v, _ := ParseVersion("1.4"); v >= V1_5 {
		t.Errorf("1.4 >= 1.5")
	}
	if _, err := ParseVersion("1.8"); err == nil {
		t.Error("1.8 accepted")
	}
}
