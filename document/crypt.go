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

package document

import (
	"errors"
	"fmt"

	"github.com/xdg-go/stringprep"

	"seehuhn.de/go/pdfscrub/pdf"
)

// A Decrypter implements a PDF security handler.
type Decrypter interface {
	// Authenticate checks the password against the encryption dictionary
	// of a document.  The password is given in the encoding required by
	// the security handler revision.  The id argument is the first
	// element of the trailer /ID array, or nil.
	Authenticate(encrypt pdf.Dict, id []byte, password []byte) error

	// Decrypt decrypts a string or the data of a stream belonging to the
	// object ref.
	Decrypt(ref pdf.Reference, data []byte) ([]byte, error)
}

var errInvalidPassword = errors.New("invalid password")

// passwordBytes converts a password to the form used by the given revision
// of the standard security handler: SASLprep and UTF-8 for revisions 5 and
// above, PDFDocEncoding otherwise.
func passwordBytes(password string, revision int) ([]byte, error) {
	if revision >= 5 {
		prepped, err := stringprep.SASLprep.Prepare(password)
		if err != nil {
			return nil, errInvalidPassword
		}
		buf := []byte(prepped)
		if len(buf) > 127 {
			buf = buf[:127]
		}
		return buf, nil
	}

	buf, ok := pdf.PDFDocEncode(password)
	if !ok {
		return nil, errInvalidPassword
	}
	if len(buf) > 32 {
		buf = buf[:32]
	}
	return buf, nil
}

func (d *Document) authenticate(dec Decrypter, password string, id []byte) error {
	encrypt, err := d.ResolveDict(d.trailer["Encrypt"])
	if err != nil {
		return err
	}
	if encrypt == nil {
		return &pdf.MalformedFileError{Err: errors.New("invalid /Encrypt entry")}
	}
	revision, _ := encrypt["R"].(pdf.Integer)
	pwd, err := passwordBytes(password, int(revision))
	if err != nil {
		return err
	}
	err = dec.Authenticate(encrypt, id, pwd)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	d.dec = dec
	d.decrypted = true

	// objects read so far are still encrypted
	d.mu.Lock()
	clear(d.cache)
	clear(d.objStms)
	d.mu.Unlock()
	return nil
}

func (d *Document) decryptObject(ref pdf.Reference, obj pdf.Object) (pdf.Object, error) {
	switch x := obj.(type) {
	case pdf.String:
		plain, err := d.dec.Decrypt(ref, x)
		if err != nil {
			return nil, err
		}
		return pdf.String(plain), nil
	case pdf.Array:
		res := make(pdf.Array, len(x))
		for i, elem := range x {
			val, err := d.decryptObject(ref, elem)
			if err != nil {
				return nil, err
			}
			res[i] = val
		}
		return res, nil
	case pdf.Dict:
		res := make(pdf.Dict, len(x))
		for key, elem := range x {
			val, err := d.decryptObject(ref, elem)
			if err != nil {
				return nil, err
			}
			res[key] = val
		}
		return res, nil
	case *pdf.Stream:
		dict, err := d.decryptObject(ref, x.Dict)
		if err != nil {
			return nil, err
		}
		data := x.Data
		if tp, _ := x.Dict["Type"].(pdf.Name); tp != "XRef" {
			data, err = d.dec.Decrypt(ref, x.Data)
			if err != nil {
				return nil, err
			}
		}
		return &pdf.Stream{Dict: dict.(pdf.Dict), Data: data}, nil
	default:
		return obj, nil
	}
}
