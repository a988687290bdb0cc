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
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/image/ccitt"
	"seehuhn.de/go/icc"

	"seehuhn.de/go/pdfscrub/internal/jpegseg"
	"seehuhn.de/go/pdfscrub/pagetree"
	"seehuhn.de/go/pdfscrub/pdf"
)

// maxCCITTPixels limits the size of CCITT images which are test-decoded.
const maxCCITTPixels = 1 << 28

func (w *walker) walkStreams() error {
	refs, err := w.sc.doc.Streams()
	if err != nil {
		w.sc.warn(w.stage, pdf.Reference{}, err)
		return nil
	}

	contents := w.contentStreams()

	for _, ref := range refs {
		if err := w.sc.Check(w.stage); err != nil {
			return err
		}
		if !w.sc.Visit(w.stage, ref) {
			continue
		}
		obj, err := w.resolve(ref)
		if err != nil {
			return err
		}
		stm, ok := obj.(*pdf.Stream)
		if !ok {
			continue
		}

		tp, _ := stm.Dict["Type"].(pdf.Name)
		sub, _ := stm.Dict["Subtype"].(pdf.Name)
		switch {
		case tp == "ObjStm" || tp == "XRef" || tp == "Metadata" || tp == "EmbeddedFile":
			// handled elsewhere
		case contents[ref]:
			err = w.checkContent(ref, stm)
		case sub == "Image":
			err = w.checkImage(ref, stm)
		case stm.Dict["N"] != nil && tp == "" && sub == "" && stm.Dict["FunctionType"] == nil:
			err = w.checkICC(ref, stm)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// contentStreams returns the content streams of all pages.
func (w *walker) contentStreams() map[pdf.Reference]bool {
	r := w.sc.doc
	catalog, err := r.Catalog()
	if err != nil {
		return nil
	}
	tree, err := pagetree.Read(r, catalog)
	if err != nil {
		return nil
	}

	res := make(map[pdf.Reference]bool)
	for _, page := range tree.Pages {
		switch c := page.Dict["Contents"].(type) {
		case pdf.Reference:
			res[c] = true
		case pdf.Array:
			for _, elem := range c {
				if ref, ok := elem.(pdf.Reference); ok {
					res[ref] = true
				}
			}
		}
	}
	return res
}

// checkContent looks for comment lines in a page content stream.
func (w *walker) checkContent(ref pdf.Reference, stm *pdf.Stream) error {
	data, err := w.decode(ref, stm)
	if err != nil || data == nil {
		return err
	}

	var comments [][]byte
	for line := range bytes.Lines(data) {
		line = bytes.TrimLeft(line, " \t\x00")
		if len(line) > 1 && line[0] == '%' {
			comments = append(comments, bytes.TrimRight(line, "\r\n"))
		}
	}
	if len(comments) == 0 || len(pdf.CleanDecoded(data)) == len(data) {
		return nil
	}
	w.add(Metadata, KindContentComments, Low, Location{Object: ref},
		fmt.Sprintf("%d comment lines in page content, first: %q", len(comments), comments[0]),
		bytes.Join(comments, []byte{'\n'}))
	return nil
}

func (w *walker) checkImage(ref pdf.Reference, stm *pdf.Stream) error {
	filters, err := pdf.Filters(stm.Dict)
	if err != nil || len(filters) == 0 {
		return nil
	}
	last := filters[len(filters)-1]
	if last.Name != pdf.FilterDCT && last.Name != pdf.FilterCCITTFax {
		return nil
	}

	data, err := w.decode(ref, stm)
	if err != nil || data == nil {
		return err
	}

	switch last.Name {
	case pdf.FilterDCT:
		w.checkJPEG(ref, data)
	case pdf.FilterCCITTFax:
		return w.checkCCITT(ref, stm.Dict, last.Parms, data)
	}
	return nil
}

func (w *walker) checkJPEG(ref pdf.Reference, data []byte) {
	segs, end, err := jpegseg.Scan(data)
	if err != nil {
		w.sc.warn(w.stage, ref, err)
		return
	}
	loc := Location{Object: ref}

	var found []string
	var content []byte
	for _, seg := range segs {
		if !jpegseg.IsMetadata(seg) {
			continue
		}
		found = append(found, fmt.Sprintf("%s (%d bytes)", segmentName(seg), len(seg.Payload)))
		content = append(content, seg.Payload...)
	}
	if len(found) > 0 {
		w.add(Metadata, KindImageMetadata, High, loc,
			fmt.Sprintf("image metadata segments: %v", found), content)
	}

	trailer := bytes.TrimRight(data[end:], "\x00\t\n\r ")
	if len(trailer) > 0 {
		w.add(Metadata, KindImageTrailer, Medium, loc,
			fmt.Sprintf("%d bytes after the end of the image", len(trailer)), trailer)
	}
}

func segmentName(seg jpegseg.Segment) string {
	switch {
	case seg.Marker == jpegseg.COM:
		return "comment"
	case seg.Marker == jpegseg.APP13:
		return "Photoshop"
	case seg.Marker == jpegseg.APP1 && bytes.HasPrefix(seg.Payload, []byte("Exif")):
		return "Exif"
	case seg.Marker == jpegseg.APP1:
		return "XMP"
	default:
		return fmt.Sprintf("APP%d", seg.Marker-jpegseg.APP0)
	}
}

func (w *walker) checkCCITT(ref pdf.Reference, dict, parms pdf.Dict, data []byte) error {
	r := w.sc.doc
	k, _ := pdf.GetInt(r, parms["K"])
	if k > 0 {
		// mixed one- and two-dimensional encoding is not supported by the
		// decoder
		return nil
	}
	columns, _ := pdf.GetInt(r, parms["Columns"])
	if columns <= 0 {
		columns = 1728
	}
	rows, _ := pdf.GetInt(r, parms["Rows"])
	if rows <= 0 {
		rows, _ = pdf.GetInt(r, dict["Height"])
	}
	align, _ := pdf.GetBool(r, parms["EncodedByteAlign"])
	blackIs1, _ := pdf.GetBool(r, parms["BlackIs1"])

	height := ccitt.AutoDetectHeight
	if rows > 0 {
		if int64(rows)*int64(columns) > maxCCITTPixels {
			return nil
		}
		height = int(rows)
	}
	sub := ccitt.Group3
	if k < 0 {
		sub = ccitt.Group4
	}

	if err := w.sc.Charge(w.stage, int64(columns)/8*max(int64(rows), 1)); err != nil {
		return err
	}
	rd := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sub, int(columns), height,
		&ccitt.Options{Align: bool(align), Invert: bool(blackIs1)})
	_, err := io.Copy(io.Discard, io.LimitReader(rd, maxCCITTPixels/8))
	if err != nil {
		w.add(Structure, KindCCITT, Medium, Location{Object: ref},
			fmt.Sprintf("CCITT image does not decode: %v", err), data)
	}
	return nil
}

func (w *walker) checkICC(ref pdf.Reference, stm *pdf.Stream) error {
	data, err := w.decode(ref, stm)
	if err != nil || data == nil {
		return err
	}
	loc := Location{Object: ref}

	if len(data) < 40 || string(data[36:40]) != "acsp" {
		w.add(Metadata, KindICC, Medium, loc,
			"ICC profile stream without profile signature", data)
		return nil
	}
	// icc.Decode overwrites the checksum fields of its input
	profile, err := icc.Decode(bytes.Clone(data))
	if err != nil {
		w.add(Metadata, KindICC, Medium, loc,
			fmt.Sprintf("malformed ICC profile: %v", err), data)
		return nil
	}
	var notes []string
	n, _ := pdf.GetInt(w.sc.doc, stm.Dict["N"])
	if got := profile.ColorSpace.NumComponents(); got != int(n) {
		notes = append(notes,
			fmt.Sprintf("ICC profile has %d components, stream declares %d", got, n))
	}
	if fields := ICCIdentity(profile); len(fields) > 0 {
		notes = append(notes, "ICC profile records "+strings.Join(fields, ", "))
	}
	if len(notes) > 0 {
		w.add(Metadata, KindICC, Low, loc, strings.Join(notes, "; "), data)
	}
	return nil
}

// ICCIdentifyingTags lists the ICC tags which describe the device or the
// software a profile was made with.
var ICCIdentifyingTags = []icc.TagType{
	0x646D6E64, // "dmnd", device manufacturer description
	0x646D6464, // "dmdd", device model description
	0x6D657461, // "meta", vendor metadata dictionary
}

// ICCIdentity lists the header fields and tags of p which identify a
// device, a vendor or the time of creation.
func ICCIdentity(p *icc.Profile) []string {
	var res []string
	if p.DeviceManufacturer != 0 {
		res = append(res, "device manufacturer")
	}
	if p.DeviceModel != 0 {
		res = append(res, "device model")
	}
	if p.Creator != 0 {
		res = append(res, "profile creator")
	}
	if !p.CreationDate.IsZero() {
		res = append(res, "creation date "+p.CreationDate.Format("2006-01-02"))
	}
	for _, tag := range ICCIdentifyingTags {
		if _, ok := p.TagData[tag]; ok {
			res = append(res, "tag "+tag.String())
		}
	}
	return res
}
