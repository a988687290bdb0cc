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
	"time"
)

// ResourceError is returned when a scan exceeds one of its configured
// ceilings.  The scan is aborted and no partial result is returned.
type ResourceError struct {
	// Resource is one of "depth", "memory" or "time".
	Resource   string
	Limit      int64
	DocumentID string
	Stage      string
}

func (err *ResourceError) Error() string {
	limit := fmt.Sprint(err.Limit)
	if err.Resource == "time" {
		limit = time.Duration(err.Limit).String()
	}
	return fmt.Sprintf("document %s: %s: %s limit %s exceeded",
		err.DocumentID, err.Stage, err.Resource, limit)
}

// PreconditionError is returned when a document cannot be scanned at all.
type PreconditionError struct {
	DocumentID string
	Reason     string
	Err        error
}

func (err *PreconditionError) Error() string {
	msg := fmt.Sprintf("document %s: %s", err.DocumentID, err.Reason)
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

func (err *PreconditionError) Unwrap() error {
	return err.Err
}
