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

// CleanDecoded removes padding and comments from decoded content data.
//
// Outside of string literals, runs of NUL bytes and other white space are
// collapsed to a single separator (a newline if the run contained one),
// white space at the start and end of the data is removed, and comment
// lines starting with '%' at the beginning of a line are dropped.  String
// literals and hex strings are copied unchanged.  Data which contains
// binary control characters outside of strings is returned unchanged.
func CleanDecoded(data []byte) []byte {
	if looksBinary(data) {
		return data
	}

	res := make([]byte, 0, len(data))
	pendingSpace := byte(0)
	atLineStart := true

	flushSpace := func() {
		if pendingSpace != 0 && len(res) > 0 {
			res = append(res, pendingSpace)
		}
		pendingSpace = 0
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isSpace[c]:
			if c == '\n' || c == '\r' {
				pendingSpace = '\n'
				atLineStart = true
			} else if pendingSpace == 0 {
				pendingSpace = ' '
			}
			i++

		case c == '%' && atLineStart:
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}

		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			flushSpace()
			res = append(res, '<', '<')
			i += 2
			atLineStart = false

		case c == '(':
			flushSpace()
			end := skipLiteralString(data, i)
			res = append(res, data[i:end]...)
			i = end
			atLineStart = false

		case c == '<' && (i+1 >= len(data) || data[i+1] != '<'):
			flushSpace()
			end := i + 1
			for end < len(data) && data[end-1] != '>' {
				end++
			}
			res = append(res, data[i:end]...)
			i = end
			atLineStart = false

		default:
			flushSpace()
			res = append(res, c)
			i++
			atLineStart = false
		}
	}
	return res
}

// skipLiteralString returns the index after the literal string which
// starts at data[start].
func skipLiteralString(data []byte, start int) int {
	depth := 0
	for i := start; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(data)
}

func looksBinary(data []byte) bool {
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '(':
			i = skipLiteralString(data, i) - 1
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i++
		case c == '<':
			for i < len(data) && data[i] != '>' {
				i++
			}
		case c >= 0x80 || c == 0x7f:
			return true
		case c < 0x20 && !isSpace[c]:
			return true
		}
	}
	return false
}
