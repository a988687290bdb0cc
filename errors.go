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
	"fmt"
	"time"
)

// ConcurrencyError is returned when no permit for an operation could be
// obtained within the acquire timeout.
type ConcurrencyError struct {
	Op      string
	Timeout time.Duration
}

func (err *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s: no permit available after %s", err.Op, err.Timeout)
}

// OperationError reports that a scan or cleaning run was aborted.  The
// operation may be retried.
type OperationError struct {
	DocumentID string
	Stage      string
	Err        error
}

func (err *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", err.Stage, err.DocumentID, err.Err)
}

func (err *OperationError) Unwrap() error {
	return err.Err
}
