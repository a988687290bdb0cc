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

package cleaner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"seehuhn.de/go/icc"

	"seehuhn.de/go/pdfscrub/document"
	"seehuhn.de/go/pdfscrub/forensic"
	"seehuhn.de/go/pdfscrub/pdf"
)

// fakeStrategy records its invocations.
type fakeStrategy struct {
	name    string
	handled bool
	err     error
	calls   *[]string
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) TryClean(ctx context.Context, doc Document, a *forensic.Artifact) (bool, error) {
	*s.calls = append(*s.calls, s.name)
	return s.handled, s.err
}

var testArtifact = &forensic.Artifact{ID: "a1", Type: forensic.Metadata, Kind: "test"}

func TestFirstSuccessWins(t *testing.T) {
	var calls []string
	p := NewEmpty(nil)
	p.SetChain(forensic.Metadata,
		&fakeStrategy{name: "one", calls: &calls},
		&fakeStrategy{name: "two", err: errors.New("broken"), calls: &calls},
		&fakeStrategy{name: "three", handled: true, calls: &calls},
		&fakeStrategy{name: "four", handled: true, calls: &calls},
	)

	stats := p.Clean(context.Background(), minimalDoc(t), []*forensic.Artifact{testArtifact})
	if stats.Cleaned != 1 || len(stats.Failed) != 0 {
		t.Errorf("stats %+v", stats)
	}
	if d := cmp.Diff([]string{"one", "two", "three"}, calls); d != "" {
		t.Errorf("calls (-want +got):\n%s", d)
	}
}

func TestAllDecline(t *testing.T) {
	var calls []string
	p := NewEmpty(nil)
	p.SetChain(forensic.Metadata,
		&fakeStrategy{name: "one", calls: &calls},
		&fakeStrategy{name: "two", calls: &calls},
	)

	stats := p.Clean(context.Background(), minimalDoc(t), []*forensic.Artifact{testArtifact})
	want := []Failure{{
		Artifact: testArtifact,
		Message:  "No suitable Metadata cleaning strategy found",
		Strategy: "two",
	}}
	if d := cmp.Diff(want, stats.Failed); d != "" || stats.Cleaned != 0 {
		t.Errorf("failures (-want +got):\n%s", d)
	}
}

func TestLastError(t *testing.T) {
	var calls []string
	p := NewEmpty(nil)
	p.SetChain(forensic.Metadata,
		&fakeStrategy{name: "one", err: errors.New("first"), calls: &calls},
		&fakeStrategy{name: "two", err: errors.New("second"), calls: &calls},
		&fakeStrategy{name: "three", calls: &calls},
	)

	stats := p.Clean(context.Background(), minimalDoc(t), []*forensic.Artifact{testArtifact})
	if len(stats.Failed) != 1 {
		t.Fatalf("stats %+v", stats)
	}
	f := stats.Failed[0]
	if f.Message != "second" || f.Strategy != "three" {
		t.Errorf("failure %+v", f)
	}
}

func TestNoChain(t *testing.T) {
	p := NewEmpty(nil)
	a := &forensic.Artifact{Type: forensic.Revision}
	stats := p.Clean(context.Background(), minimalDoc(t), []*forensic.Artifact{a})
	if len(stats.Failed) != 1 || stats.Failed[0].Message != "No suitable Revision cleaning strategy found" {
		t.Errorf("stats %+v", stats)
	}
}

func TestCancelled(t *testing.T) {
	var calls []string
	p := NewEmpty(nil)
	p.SetChain(forensic.Metadata, &fakeStrategy{name: "one", handled: true, calls: &calls})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats := p.Clean(ctx, minimalDoc(t), []*forensic.Artifact{testArtifact, testArtifact})
	if len(stats.Failed) != 2 || len(calls) != 0 {
		t.Errorf("stats %+v, calls %v", stats, calls)
	}
}

func TestDefaultChains(t *testing.T) {
	p := New(nil)
	cases := []struct {
		tp   forensic.ArtifactType
		want []string
	}{
		{forensic.Metadata, []string{DocumentInfo, XMP, Embedded, CustomDictionary, ContentComments}},
		{forensic.Structure, []string{NamedDestination, Outline, PageTree, OptionalContent, XFAForm}},
		{forensic.JavaScript, []string{NameTreeJavaScript, OpenAction, AdditionalActions}},
		{forensic.EmbeddedFile, []string{Embedded}},
		{forensic.Signature, []string{SignatureFields}},
		{forensic.Revision, []string{RevisionFlatten}},
	}
	for _, c := range cases {
		if d := cmp.Diff(c.want, p.Chain(c.tp)); d != "" {
			t.Errorf("%s (-want +got):\n%s", c.tp, d)
		}
	}
}

func buildPDF(trailer string, objs ...string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xrefPos := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n0000000000 65535 f\r\n", len(objs)+1)
	for _, offs := range offsets {
		fmt.Fprintf(buf, "%010d 00000 n\r\n", offs)
	}
	fmt.Fprintf(buf, "trailer\n<</Size %d %s>>\nstartxref\n%d\n%%%%EOF\n",
		len(objs)+1, trailer, xrefPos)
	return buf.Bytes()
}

func minimalDoc(t *testing.T) *document.Document {
	t.Helper()
	data := buildPDF("/Root 1 0 R",
		"<</Type/Catalog/Pages 2 0 R>>",
		"<</Type/Pages/Kids[]/Count 0>>",
	)
	doc, err := document.Load(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func scan(t *testing.T, doc *document.Document) *forensic.Result {
	t.Helper()
	res, err := forensic.New(forensic.Config{}, nil).Scan(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestCleanDocument(t *testing.T) {
	data := buildPDF("/Root 1 0 R /Info 4 0 R",
		"<</Type/Catalog/Pages 2 0 R/OpenAction <</S/JavaScript/JS(app.alert\\(1\\))>>"+
			"/Lang(en-US)/PieceInfo <</App <</Private 1>>>>/Names <</JavaScript 5 0 R>>>>",
		"<</Type/Pages/Kids[3 0 R]/Count 1>>",
		"<</Type/Page/Parent 2 0 R/MediaBox[0 0 10 10]/Contents 8 0 R/AA <</O <</S/JavaScript/JS(x)>>>>>>",
		"<</Author(J. Doe)/Creator(Word)>>",
		"<</Names[(init) 6 0 R]>>",
		"<</S/JavaScript/JS(y)>>",
		"<</Length 3>>\nstream\nabc\nendstream",
		"<</Length 34>>\nstream\n%Drafted by J. Doe\n0 0 m\n10 10 l\nS\nendstream",
	)
	doc, err := document.Load(data, nil)
	if err != nil {
		t.Fatal(err)
	}

	before := scan(t, doc)
	kinds := make(map[string]int)
	for _, a := range before.Artifacts {
		kinds[a.Kind]++
	}
	wantKinds := map[string]int{
		forensic.KindOpenAction:        1,
		forensic.KindLang:              1,
		forensic.KindPieceInfo:         1,
		forensic.KindJavaScriptNames:   1,
		forensic.KindAdditionalActions: 1,
		forensic.KindInfo:              2,
		forensic.KindOrphans:           1,
		forensic.KindContentComments:   1,
	}
	if d := cmp.Diff(wantKinds, kinds); d != "" {
		t.Fatalf("artifacts before cleaning (-want +got):\n%s", d)
	}

	stats := New(nil).Clean(context.Background(), doc, before.Artifacts)
	if stats.Cleaned != len(before.Artifacts) || len(stats.Failed) != 0 {
		t.Fatalf("stats %+v", stats)
	}

	buf := &bytes.Buffer{}
	err = doc.Write(buf)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(buf.Bytes(), []byte("J. Doe")) {
		t.Error("author was written")
	}
	if !bytes.Contains(buf.Bytes(), []byte("/Contents 8 0 R")) {
		t.Error("page contents were lost")
	}

	cleaned, err := document.Load(buf.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	after := scan(t, cleaned)
	for _, a := range after.Artifacts {
		t.Errorf("artifact after cleaning: %s %s: %s", a.Kind, a.Location, a.Description)
	}

	catalog, err := cleaned.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	if lang, _ := catalog["Lang"].(pdf.String); lang.AsTextString() != "en" {
		t.Errorf("Lang = %q", lang)
	}
}

func TestSetPath(t *testing.T) {
	in := pdf.Dict{
		"A": pdf.Dict{"B": pdf.Integer(1), "C": pdf.Integer(2)},
		"D": pdf.Integer(3),
	}
	out, err := setPath(in, []pdf.Name{"A", "B"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := pdf.Dict{
		"A": pdf.Dict{"C": pdf.Integer(2)},
		"D": pdf.Integer(3),
	}
	if d := cmp.Diff(want, out); d != "" {
		t.Errorf("(-want +got):\n%s", d)
	}
	if len(in["A"].(pdf.Dict)) != 2 {
		t.Error("input was modified")
	}

	_, err = setPath(in, []pdf.Name{"D", "E"}, nil)
	if !errors.Is(err, errPathChanged) {
		t.Errorf("got %v", err)
	}
}

func TestCleanActionInArray(t *testing.T) {
	data := buildPDF("/Root 1 0 R",
		"<</Type/Catalog/Pages 2 0 R>>",
		"<</Type/Pages/Kids[3 0 R]/Count 1>>",
		"<</Type/Page/Parent 2 0 R/MediaBox[0 0 10 10]/Annots["+
			"<</Subtype/Link/Rect[0 0 5 5]/A <</S/JavaScript/JS(x)>>>> "+
			"<</Subtype/Link/Rect[5 5 10 10]/A <</S/URI/URI(https://example.com/)>>>>]>>",
	)
	doc, err := document.Load(data, nil)
	if err != nil {
		t.Fatal(err)
	}

	var actions []*forensic.Artifact
	for _, a := range scan(t, doc).Artifacts {
		if a.Kind == forensic.KindAction {
			actions = append(actions, a)
		}
	}
	if len(actions) != 1 {
		t.Fatalf("found %d actions, want 1", len(actions))
	}
	loc := actions[0].Location
	if d := cmp.Diff([]pdf.Name{"Annots", "A"}, loc.Keys); d != "" || loc.IndexAt(1) != 0 || loc.Partial {
		t.Errorf("wrong location %s, keys %v, indices %v", loc, loc.Keys, loc.Indices)
	}

	stats := New(nil).Clean(context.Background(), doc, actions)
	if stats.Cleaned != 1 {
		t.Fatalf("stats %+v", stats)
	}

	page, err := pdf.GetDict(doc, pdf.NewReference(3, 0))
	if err != nil {
		t.Fatal(err)
	}
	annots, _ := page["Annots"].(pdf.Array)
	if len(annots) != 2 {
		t.Fatalf("page has %d annotations, want 2", len(annots))
	}
	if a := annots[0].(pdf.Dict); a["A"] != nil || a["Subtype"] != pdf.Name("Link") {
		t.Errorf("first annotation %v", a)
	}
	if a := annots[1].(pdf.Dict); a["A"] == nil {
		t.Error("link action was removed")
	}
}

func TestEditPath(t *testing.T) {
	in := pdf.Dict{
		"K": pdf.Array{
			pdf.Dict{"A": pdf.Integer(1), "B": pdf.Integer(2)},
			pdf.Integer(3),
		},
	}
	testCases := []struct {
		keys    []pdf.Name
		indices []int
		want    pdf.Object
	}{
		{
			keys:    []pdf.Name{"K", "A"},
			indices: []int{-1, 0, -1},
			want: pdf.Dict{"K": pdf.Array{
				pdf.Dict{"B": pdf.Integer(2)},
				pdf.Integer(3),
			}},
		},
		{
			keys:    []pdf.Name{"K"},
			indices: []int{-1, 1},
			want: pdf.Dict{"K": pdf.Array{
				pdf.Dict{"A": pdf.Integer(1), "B": pdf.Integer(2)},
				nil,
			}},
		},
		{
			keys: []pdf.Name{"K"},
			want: pdf.Dict{},
		},
	}
	for _, tc := range testCases {
		got, err := editPath(in, tc.keys, tc.indices, nil)
		if err != nil {
			t.Errorf("%v %v: %v", tc.keys, tc.indices, err)
			continue
		}
		if d := cmp.Diff(tc.want, got); d != "" {
			t.Errorf("%v %v (-want +got):\n%s", tc.keys, tc.indices, d)
		}
	}
	if len(in["K"].(pdf.Array)[0].(pdf.Dict)) != 2 {
		t.Error("input was modified")
	}

	_, err := editPath(in, []pdf.Name{"K", "A"}, []int{-1, 5, -1}, nil)
	if !errors.Is(err, errPathChanged) {
		t.Errorf("index out of range: got %v", err)
	}
}

func TestRemovePartial(t *testing.T) {
	doc := minimalDoc(t)
	loc := forensic.Location{Object: pdf.NewReference(1, 0), Keys: []pdf.Name{"Pages"}, Partial: true}
	err := removeAt(doc, loc)
	if !errors.Is(err, errPathChanged) {
		t.Errorf("got %v", err)
	}
	catalog, err := doc.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	if catalog["Pages"] == nil {
		t.Error("catalog entry was removed")
	}
}

func TestCleanContentFilters(t *testing.T) {
	raw := []byte("%Drafted by J. Doe\n0 0 m\n10 10 l\nS\n")
	testCases := []struct {
		filter   pdf.Object
		declined bool
	}{
		{nil, false},
		{pdf.FilterFlate, false},
		{pdf.Array{pdf.Name("AHx"), pdf.Name("Fl")}, false},
		{pdf.FilterDCT, true},
		{pdf.Array{pdf.FilterFlate, pdf.FilterJBIG2}, true},
		{pdf.FilterCrypt, true},
		{pdf.Name("BrotliDecode"), true},
	}
	for _, tc := range testCases {
		doc := minimalDoc(t)
		dict := pdf.Dict{}
		if tc.filter != nil {
			dict["Filter"] = tc.filter
		}
		data, err := pdf.Encode(dict, raw)
		if err != nil {
			t.Fatal(err)
		}
		ref, err := doc.Add(&pdf.Stream{Dict: dict, Data: data})
		if err != nil {
			t.Fatal(err)
		}

		a := &forensic.Artifact{Kind: forensic.KindContentComments, Location: forensic.Location{Object: ref}}
		err = cleanContent(doc, a)
		if tc.declined {
			if !errors.Is(err, errDeclined) {
				t.Errorf("%s: got %v, want declined", pdf.Format(tc.filter), err)
			}
		} else if err != nil {
			t.Errorf("%s: %v", pdf.Format(tc.filter), err)
		}

		stm, err := pdf.GetStream(doc, ref)
		if err != nil {
			t.Fatal(err)
		}
		got, err := stm.Decode()
		if err != nil {
			t.Fatal(err)
		}
		want := raw
		if !tc.declined {
			want = pdf.CleanDecoded(raw)
			if stm.Dict["Filter"] != pdf.FilterFlate {
				t.Errorf("%s: stored with filter %s", pdf.Format(tc.filter), pdf.Format(stm.Dict["Filter"]))
			}
		} else if d := cmp.Diff(tc.filter, stm.Dict["Filter"]); d != "" {
			t.Errorf("%s: filter changed (-want +got):\n%s", pdf.Format(tc.filter), d)
		}
		if d := cmp.Diff(want, got); d != "" {
			t.Errorf("%s: stream data (-want +got):\n%s", pdf.Format(tc.filter), d)
		}
	}
}

func TestScrubProfile(t *testing.T) {
	desc := []byte("desc\x00\x00\x00\x00")
	in := &icc.Profile{
		Class:              icc.DisplayDeviceProfile,
		ColorSpace:         icc.GraySpace,
		PCS:                icc.CIEXYZSpace,
		DeviceManufacturer: 0x41504C45,
		DeviceModel:        0x6D6F6431,
		Creator:            0x6C636D73,
		CreationDate:       time.Date(2019, 7, 1, 12, 0, 0, 0, time.UTC),
		TagData: map[icc.TagType][]byte{
			icc.ProfileDescription: desc,
			0x646D6E64:             []byte("desc\x00\x00\x00\x01"),
			0x646D6464:             []byte("desc\x00\x00\x00\x02"),
		},
	}
	doc := minimalDoc(t)
	ref, err := doc.Add(&pdf.Stream{
		Dict: pdf.Dict{"N": pdf.Integer(3), "Alternate": pdf.Name("DeviceGray")},
		Data: in.Encode(),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = scrubProfile(doc, ref)
	if err != nil {
		t.Fatal(err)
	}

	stm, err := pdf.GetStream(doc, ref)
	if err != nil {
		t.Fatal(err)
	}
	if n := stm.Dict["N"]; n != pdf.Integer(1) {
		t.Errorf("N = %s", pdf.Format(n))
	}
	if alt := stm.Dict["Alternate"]; alt != pdf.Name("DeviceGray") {
		t.Errorf("Alternate = %s", pdf.Format(alt))
	}
	data, err := stm.Decode()
	if err != nil {
		t.Fatal(err)
	}
	out, err := icc.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if fields := forensic.ICCIdentity(out); len(fields) > 0 {
		t.Errorf("profile still records %v", fields)
	}
	if d := cmp.Diff(desc, out.TagData[icc.ProfileDescription]); d != "" {
		t.Errorf("description (-want +got):\n%s", d)
	}
	if out.ColorSpace != icc.GraySpace {
		t.Errorf("color space %s", out.ColorSpace)
	}
}

func TestScrubProfileMalformed(t *testing.T) {
	doc := minimalDoc(t)
	ref, err := doc.Add(&pdf.Stream{Dict: pdf.Dict{"N": pdf.Integer(3)}, Data: []byte("not a profile")})
	if err != nil {
		t.Fatal(err)
	}
	err = scrubProfile(doc, ref)
	if !errors.Is(err, errDeclined) {
		t.Errorf("got %v, want declined", err)
	}
}
