package forms

import (
	"strings"

	"github.com/wudi/pdfcodec/ir/raw"
)

// Field flags (/Ff) used by the editor.
const (
	FlagReadOnly = 1 << 0
	FlagRequired = 1 << 1
	FlagRadio    = 1 << 15
	FlagPush     = 1 << 16
)

const maxFieldDepth = 32

// Field is a terminal field of the form tree.
type Field struct {
	form    *Form
	name    string
	partial string
	dict    *raw.DictObj
	// owner is the indirect object containing dict.
	owner raw.ObjectRef
	// chain holds dict followed by its ancestors, for inherited entries.
	chain   []*raw.DictObj
	widgets []widget
}

type widget struct {
	owner raw.ObjectRef
	dict  *raw.DictObj
}

// Fields returns the terminal fields of the form in tree order.
func (f *Form) Fields() []*Field {
	v, _ := f.dict.Get("Fields")
	arr, ok := raw.DerefArray(f.doc, v)
	if !ok {
		return nil
	}
	var out []*Field
	seen := make(map[raw.ObjectRef]bool)
	for _, item := range arr.Items {
		out = f.collect(out, item, f.owner, "", nil, seen)
	}
	return out
}

func (f *Form) collect(out []*Field, node raw.Object, owner raw.ObjectRef, prefix string, parents []*raw.DictObj, seen map[raw.ObjectRef]bool) []*Field {
	if len(parents) >= maxFieldDepth {
		return out
	}
	if r, ok := node.(raw.RefObj); ok {
		if seen[r.R] {
			return out
		}
		seen[r.R] = true
		owner = r.R
	}
	dict, ok := raw.DerefDict(f.doc, node)
	if !ok {
		return out
	}
	name := prefix
	partial := ""
	if t, ok := dict.GetString("T"); ok {
		partial = raw.DecodeText(t)
		if name == "" {
			name = partial
		} else {
			name = prefix + "." + partial
		}
	}
	chain := append([]*raw.DictObj{dict}, parents...)

	var kidFields []raw.Object
	var widgets []widget
	if kidsObj, ok := dict.Get("Kids"); ok {
		if kids, ok := raw.DerefArray(f.doc, kidsObj); ok {
			for _, kid := range kids.Items {
				kd, ok := raw.DerefDict(f.doc, kid)
				if !ok {
					continue
				}
				if kd.Has("T") || !isWidget(kd) {
					kidFields = append(kidFields, kid)
					continue
				}
				w := widget{owner: owner, dict: kd}
				if r, ok := kid.(raw.RefObj); ok {
					w.owner = r.R
				}
				widgets = append(widgets, w)
			}
		}
	}
	if len(kidFields) > 0 {
		for _, kid := range kidFields {
			out = f.collect(out, kid, owner, name, chain, seen)
		}
		return out
	}
	if isWidget(dict) {
		widgets = append(widgets, widget{owner: owner, dict: dict})
	}
	return append(out, &Field{
		form:    f,
		name:    name,
		partial: partial,
		dict:    dict,
		owner:   owner,
		chain:   chain,
		widgets: widgets,
	})
}

func isWidget(d *raw.DictObj) bool {
	st, _ := d.GetName("Subtype")
	return st == "Widget"
}

// Field finds a field by fully qualified name, or by partial name when
// exactly one field carries it.
func (f *Form) Field(name string) (*Field, error) {
	var partial []*Field
	for _, fld := range f.Fields() {
		if fld.name == name {
			return fld, nil
		}
		if fld.partial == name {
			partial = append(partial, fld)
		}
	}
	if len(partial) == 1 {
		return partial[0], nil
	}
	return nil, &FieldNotFoundError{Name: name}
}

// Name returns the fully qualified name, parent names joined by dots.
func (fl *Field) Name() string { return fl.name }

func (fl *Field) PartialName() string { return fl.partial }

func (fl *Field) Dict() *raw.DictObj { return fl.dict }

// inherited looks key up on the field and then on its ancestors.
func (fl *Field) inherited(key string) (raw.Object, bool) {
	for _, d := range fl.chain {
		if v, ok := d.Get(key); ok {
			return fl.form.doc.Deref(v), true
		}
	}
	return nil, false
}

// Type returns the field type: Tx, Btn, Ch or Sig.
func (fl *Field) Type() string {
	v, _ := fl.inherited("FT")
	n, _ := v.(raw.NameObj)
	return n.Val
}

func (fl *Field) Flags() int64 {
	v, _ := fl.inherited("Ff")
	n, ok := v.(raw.NumberObj)
	if !ok {
		return 0
	}
	return n.Int()
}

func (fl *Field) ReadOnly() bool { return fl.Flags()&FlagReadOnly != 0 }

// Value returns the field value as text. Names are returned without the
// slash; arrays yield their first entry.
func (fl *Field) Value() string {
	v, _ := fl.inherited("V")
	return valueText(fl.form.doc, v)
}

func valueText(doc *raw.Document, v raw.Object) string {
	switch t := v.(type) {
	case raw.StringObj:
		return t.Text()
	case raw.NameObj:
		return t.Val
	case *raw.ArrayObj:
		if t.Len() > 0 {
			return valueText(doc, doc.Deref(t.Items[0]))
		}
	case *raw.StreamObj:
		data, err := t.Data()
		if err == nil {
			return raw.DecodeText(data)
		}
	}
	return ""
}

// SetValue sets a text or choice field value and invalidates the widget
// appearances. For buttons value names the state to select.
func (fl *Field) SetValue(value string) error {
	if err := fl.writable(); err != nil {
		return err
	}
	if fl.Type() == "Btn" {
		return fl.setState(value)
	}
	fl.dict.Set("V", raw.TextString(value))
	for _, w := range fl.widgets {
		if w.dict.Delete("AP") {
			fl.form.doc.MarkModified(w.owner)
		}
	}
	fl.form.doc.MarkModified(fl.owner)
	fl.form.SetNeedAppearances(true)
	return nil
}

func (fl *Field) writable() error {
	if fl.form.doc.Locked {
		return raw.ErrLocked
	}
	if fl.ReadOnly() {
		return ErrFieldReadOnly
	}
	return nil
}

// Checked reports whether a check box or radio button is on.
func (fl *Field) Checked() bool {
	v := fl.Value()
	return v != "" && v != "Off"
}

// SetChecked turns a button field on or off. The on state is taken from
// the widget appearances, "Yes" when none is declared.
func (fl *Field) SetChecked(on bool) error {
	if err := fl.writable(); err != nil {
		return err
	}
	state := "Off"
	if on {
		state = fl.OnState()
	}
	return fl.setState(state)
}

// OnState returns the appearance state name that turns the button on.
func (fl *Field) OnState() string {
	for _, w := range fl.widgets {
		for _, s := range widgetStates(fl.form.doc, w.dict) {
			if s != "Off" {
				return s
			}
		}
	}
	return "Yes"
}

func widgetStates(doc *raw.Document, w *raw.DictObj) []string {
	apObj, _ := w.Get("AP")
	ap, ok := raw.DerefDict(doc, apObj)
	if !ok {
		return nil
	}
	nObj, _ := ap.Get("N")
	n, ok := raw.DerefDict(doc, nObj)
	if !ok {
		return nil
	}
	return n.Keys()
}

func (fl *Field) setState(state string) error {
	state = strings.TrimPrefix(state, "/")
	if state == "" {
		state = "Off"
	}
	fl.dict.Set("V", raw.NameLiteral(state))
	fl.form.doc.MarkModified(fl.owner)
	for _, w := range fl.widgets {
		as := "Off"
		for _, s := range widgetStates(fl.form.doc, w.dict) {
			if s == state {
				as = state
			}
		}
		if len(widgetStates(fl.form.doc, w.dict)) == 0 && state != "Off" {
			as = state
		}
		w.dict.Set("AS", raw.NameLiteral(as))
		fl.form.doc.MarkModified(w.owner)
	}
	return nil
}
