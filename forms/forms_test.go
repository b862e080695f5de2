package forms

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfcodec/contentstream"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/parser"
	"github.com/wudi/pdfcodec/writer"
)

func ref(n int) raw.RefObj { return raw.Ref(n, 0) }

func name(s string) raw.NameObj { return raw.NameLiteral(s) }

func text(s string) raw.StringObj { return raw.TextString(s) }

func dict(kv ...interface{}) *raw.DictObj {
	d := raw.Dict()
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i].(string), kv[i+1].(raw.Object))
	}
	return d
}

// newFormDoc builds a one-page document whose form holds a text field with
// a widget appearance, a text field nested under a parent, a check box, a
// read-only field and a calculated total.
func newFormDoc() *raw.Document {
	doc := raw.NewDocument()
	doc.Set(raw.ObjectRef{Num: 1}, dict(
		"Type", name("Catalog"),
		"Pages", ref(2),
		"AcroForm", ref(5)))
	doc.Set(raw.ObjectRef{Num: 2}, dict(
		"Type", name("Pages"),
		"Kids", raw.NewArray(ref(3)),
		"Count", raw.NumberInt(1)))
	doc.Set(raw.ObjectRef{Num: 3}, dict(
		"Type", name("Page"),
		"Parent", ref(2),
		"MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)),
		"Annots", raw.NewArray(ref(4), ref(8), ref(10), ref(12), ref(13), ref(14))))
	doc.Set(raw.ObjectRef{Num: 4}, dict(
		"FT", name("Tx"),
		"T", text("Here we have a form field"),
		"V", text("old"),
		"Subtype", name("Widget"),
		"Rect", raw.NewArray(raw.NumberInt(10), raw.NumberInt(10), raw.NumberInt(200), raw.NumberInt(30)),
		"AP", dict("N", ref(9))))
	doc.Set(raw.ObjectRef{Num: 5}, dict(
		"Fields", raw.NewArray(ref(4), ref(7), ref(10), ref(12), ref(13), ref(14)),
		"DA", raw.Str([]byte("/Helv 0 Tf 0 g")),
		"CO", raw.NewArray(ref(14))))
	doc.Set(raw.ObjectRef{Num: 7}, dict(
		"FT", name("Tx"),
		"T", text("address"),
		"Kids", raw.NewArray(ref(8))))
	doc.Set(raw.ObjectRef{Num: 8}, dict(
		"T", text("city"),
		"Parent", ref(7),
		"Subtype", name("Widget")))
	doc.Set(raw.ObjectRef{Num: 9}, raw.NewStream(dict("Type", name("XObject"), "Subtype", name("Form")), []byte("/Tx BMC EMC")))
	doc.Set(raw.ObjectRef{Num: 10}, dict(
		"FT", name("Btn"),
		"T", text("agree"),
		"V", name("Off"),
		"AS", name("Off"),
		"Subtype", name("Widget"),
		"AP", dict("N", dict("On", ref(11), "Off", ref(11)))))
	doc.Set(raw.ObjectRef{Num: 11}, raw.NewStream(dict("Type", name("XObject"), "Subtype", name("Form")), nil))
	doc.Set(raw.ObjectRef{Num: 12}, dict(
		"FT", name("Tx"),
		"T", text("locked"),
		"Ff", raw.NumberInt(FlagReadOnly),
		"V", text("fixed"),
		"Subtype", name("Widget")))
	doc.Set(raw.ObjectRef{Num: 13}, dict(
		"FT", name("Tx"),
		"T", text("qty"),
		"V", text("3"),
		"Subtype", name("Widget")))
	doc.Set(raw.ObjectRef{Num: 14}, dict(
		"FT", name("Tx"),
		"T", text("total"),
		"Subtype", name("Widget"),
		"AA", dict("C", dict(
			"S", name("JavaScript"),
			"JS", text(`event.value = Number(getField("qty").value) * 2;`)))))
	doc.Trailer.Set("Root", ref(1))
	return doc
}

func roundTrip(t *testing.T, doc *raw.Document) *raw.Document {
	t.Helper()
	var buf bytes.Buffer
	if err := (&writer.WriterBuilder{}).Build().Write(context.Background(), doc, &buf, writer.Config{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return out
}

func TestOpenWithoutForm(t *testing.T) {
	doc := newFormDoc()
	root, _ := doc.Root()
	root.Delete("AcroForm")
	if _, err := Open(doc); !errors.Is(err, ErrNoForm) {
		t.Fatalf("expected ErrNoForm, got %v", err)
	}
	f, err := Ensure(doc)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(f.Fields()) != 0 {
		t.Fatalf("new form should have no fields")
	}
	if _, err := Open(doc); err != nil {
		t.Fatalf("form should exist after Ensure: %v", err)
	}
}

func TestElements(t *testing.T) {
	f, err := Open(newFormDoc())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	el := f.Elements()
	if el.Contains("/NeedAppearances") {
		t.Fatalf("fixture should not set NeedAppearances")
	}
	if !el.SetIfAbsent("/NeedAppearances", raw.Bool(true)) {
		t.Fatalf("SetIfAbsent should add a missing key")
	}
	if el.SetIfAbsent("NeedAppearances", raw.Bool(false)) {
		t.Fatalf("SetIfAbsent must not replace an existing key")
	}
	if !f.NeedAppearances() {
		t.Fatalf("NeedAppearances should be true")
	}
	el.Set("NeedAppearances", raw.Bool(false))
	if f.NeedAppearances() {
		t.Fatalf("Set should replace the value")
	}
	want := []string{"/Fields", "/DA", "/CO", "/NeedAppearances"}
	if diff := cmp.Diff(want, el.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if !el.Remove("/NeedAppearances") || el.Contains("NeedAppearances") {
		t.Fatalf("Remove failed")
	}
}

func TestFieldsQualifiedNames(t *testing.T) {
	f, _ := Open(newFormDoc())
	var names []string
	for _, fl := range f.Fields() {
		names = append(names, fl.Name())
	}
	want := []string{"Here we have a form field", "address.city", "agree", "locked", "qty", "total"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("field names (-want +got):\n%s", diff)
	}

	city, err := f.Field("city")
	if err != nil {
		t.Fatalf("partial lookup: %v", err)
	}
	if city.Name() != "address.city" || city.Type() != "Tx" {
		t.Fatalf("city: name %q type %q", city.Name(), city.Type())
	}

	_, err = f.Field("nope")
	var nf *FieldNotFoundError
	if !errors.As(err, &nf) || nf.Name != "nope" {
		t.Fatalf("expected FieldNotFoundError, got %v", err)
	}
}

func TestSetValueRoundTrip(t *testing.T) {
	doc := newFormDoc()
	f, _ := Open(doc)
	fl, err := f.Field("Here we have a form field")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if fl.Value() != "old" {
		t.Fatalf("initial value %q", fl.Value())
	}
	if err := fl.SetValue("Success"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if fl.Dict().Has("AP") {
		t.Fatalf("appearance should be removed")
	}
	if !f.NeedAppearances() {
		t.Fatalf("NeedAppearances should be set")
	}

	reread := roundTrip(t, doc)
	f2, err := Open(reread)
	if err != nil {
		t.Fatalf("reopen form: %v", err)
	}
	fl2, err := f2.Field("Here we have a form field")
	if err != nil {
		t.Fatalf("lookup after reload: %v", err)
	}
	if got := fl2.Value(); got != "Success" {
		t.Fatalf("value after reload = %q", got)
	}
	if !f2.NeedAppearances() {
		t.Fatalf("NeedAppearances lost on reload")
	}
}

func TestSetValueMarksModified(t *testing.T) {
	doc := roundTrip(t, newFormDoc())
	f, _ := Open(doc)
	fl, _ := f.Field("address.city")
	if err := fl.SetValue("Springfield"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got := doc.Modified()
	want := []raw.ObjectRef{{Num: 5}, {Num: 8}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("modified objects (-want +got):\n%s", diff)
	}
}

func TestCheckBox(t *testing.T) {
	f, _ := Open(newFormDoc())
	fl, _ := f.Field("agree")
	if fl.Checked() {
		t.Fatalf("fixture check box should be off")
	}
	if fl.OnState() != "On" {
		t.Fatalf("on state %q", fl.OnState())
	}
	if err := fl.SetChecked(true); err != nil {
		t.Fatalf("check: %v", err)
	}
	if as, _ := fl.Dict().GetName("AS"); as != "On" || !fl.Checked() {
		t.Fatalf("AS %q checked %v", as, fl.Checked())
	}
	if !fl.Dict().Has("AP") {
		t.Fatalf("check boxes keep their appearances")
	}
	if err := fl.SetValue("Off"); err != nil {
		t.Fatalf("uncheck: %v", err)
	}
	if as, _ := fl.Dict().GetName("AS"); as != "Off" || fl.Checked() {
		t.Fatalf("AS %q checked %v", as, fl.Checked())
	}
}

func TestReadOnlyField(t *testing.T) {
	f, _ := Open(newFormDoc())
	fl, _ := f.Field("locked")
	if !fl.ReadOnly() {
		t.Fatalf("field should be read-only")
	}
	if err := fl.SetValue("x"); !errors.Is(err, ErrFieldReadOnly) {
		t.Fatalf("expected ErrFieldReadOnly, got %v", err)
	}
	if fl.Value() != "fixed" {
		t.Fatalf("value changed to %q", fl.Value())
	}
}

func TestCalculate(t *testing.T) {
	f, _ := Open(newFormDoc())
	n, err := f.Calculate(context.Background(), nil)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if n != 1 {
		t.Fatalf("updated %d fields, want 1", n)
	}
	total, _ := f.Field("total")
	if total.Value() != "6" {
		t.Fatalf("total = %q", total.Value())
	}
}

func TestGenerateAppearance(t *testing.T) {
	doc := newFormDoc()
	f, _ := Open(doc)
	fl, _ := f.Field("Here we have a form field")
	if err := fl.SetValue("Hello (World)"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.GenerateAppearances(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if f.NeedAppearances() {
		t.Fatalf("NeedAppearances should be cleared")
	}
	ap, ok := fl.Dict().GetDict("AP")
	if !ok {
		t.Fatalf("widget has no appearance")
	}
	n, _ := ap.GetRef("N")
	obj, err := doc.Resolve(n)
	if err != nil {
		t.Fatalf("resolve appearance: %v", err)
	}
	data, _ := obj.(*raw.StreamObj).Data()
	ops, err := contentstream.Parse(data)
	if err != nil {
		t.Fatalf("parse appearance: %v\n%s", err, data)
	}
	var got []string
	for _, op := range ops {
		got = append(got, op.Operator)
		switch op.Operator {
		case "Tf":
			if n, _ := op.Operands[0].(raw.NameObj); n.Val != "Helv" {
				t.Errorf("font %#v", op.Operands[0])
			}
			if size, _ := contentstream.Float(op.Operands[1]); size != 12 {
				t.Errorf("font size %v", size)
			}
		case "Tj":
			if s, _ := op.Operands[0].(raw.StringObj); string(s.Bytes) != "Hello (World)" {
				t.Errorf("shown text %q", s.Bytes)
			}
		}
	}
	want := []string{"BMC", "q", "re", "W", "n", "BT", "Tf", "g", "Td", "Tj", "ET", "Q", "EMC"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("appearance operators (-want +got):\n%s", diff)
	}
	bbox, _ := obj.(*raw.StreamObj).Dict.GetArray("BBox")
	if w, _ := raw.Number(bbox.Items[2]); w != 190 {
		t.Fatalf("bbox width %v", w)
	}
}

func TestParseDA(t *testing.T) {
	tests := []struct {
		da    string
		font  string
		size  float64
		color []float64
	}{
		{"/Helv 0 Tf 0 g", "Helv", 0, []float64{0}},
		{"/TiRo 9.5 Tf 1 0 0 rg", "TiRo", 9.5, []float64{1, 0, 0}},
		{"0 0 0 1 k /Cour 10 Tf", "Cour", 10, []float64{0, 0, 0, 1}},
		{"", "", 0, nil},
	}
	for _, tc := range tests {
		font, size, color := parseDA(tc.da)
		if font != tc.font || size != tc.size || !cmp.Equal(color, tc.color) {
			t.Errorf("parseDA(%q) = %q %v %v", tc.da, font, size, color)
		}
	}
}
