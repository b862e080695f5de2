// Package forms edits AcroForm interactive forms of a parsed document.
package forms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/pdfcodec/ir/raw"
)

// FieldNotFoundError reports a field name with no match in the form.
type FieldNotFoundError struct {
	Name string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("form field %q not found", e.Name)
}

var (
	ErrNoForm        = errors.New("document has no interactive form")
	ErrFieldReadOnly = errors.New("field is read-only")
)

// Form is the /AcroForm dictionary of a document.
type Form struct {
	doc *raw.Document
	// owner is the indirect object holding dict: the form itself or, for
	// a direct /AcroForm, the catalog.
	owner raw.ObjectRef
	dict  *raw.DictObj
}

// Open returns the form of doc, or ErrNoForm when the catalog has none.
func Open(doc *raw.Document) (*Form, error) {
	root, rootRef, err := catalog(doc)
	if err != nil {
		return nil, err
	}
	v, ok := root.Get("AcroForm")
	if !ok {
		return nil, ErrNoForm
	}
	switch t := v.(type) {
	case raw.RefObj:
		obj, err := doc.Resolve(t.R)
		if err != nil {
			return nil, fmt.Errorf("acroform: %w", err)
		}
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			return nil, errors.New("acroform: not a dictionary")
		}
		return &Form{doc: doc, owner: t.R, dict: dict}, nil
	case *raw.DictObj:
		return &Form{doc: doc, owner: rootRef, dict: t}, nil
	}
	return nil, errors.New("acroform: not a dictionary")
}

// Ensure returns the form of doc, adding an empty one when the catalog has
// none.
func Ensure(doc *raw.Document) (*Form, error) {
	f, err := Open(doc)
	if !errors.Is(err, ErrNoForm) {
		return f, err
	}
	root, rootRef, err := catalog(doc)
	if err != nil {
		return nil, err
	}
	dict := raw.Dict()
	dict.Set("Fields", raw.NewArray())
	ref := doc.Add(dict)
	root.Set("AcroForm", raw.RefObj{R: ref})
	doc.MarkModified(rootRef)
	return &Form{doc: doc, owner: ref, dict: dict}, nil
}

func catalog(doc *raw.Document) (*raw.DictObj, raw.ObjectRef, error) {
	root, err := doc.Root()
	if err != nil {
		return nil, raw.ObjectRef{}, err
	}
	ref, _ := doc.Trailer.GetRef("Root")
	return root, ref, nil
}

// Dict returns the underlying /AcroForm dictionary.
func (f *Form) Dict() *raw.DictObj { return f.dict }

func (f *Form) touch() {
	if !f.owner.IsZero() {
		f.doc.MarkModified(f.owner)
	}
}

// Elements gives dictionary-style access to the form entries.
func (f *Form) Elements() *Elements { return &Elements{form: f} }

// NeedAppearances reports whether viewers are asked to regenerate field
// appearances.
func (f *Form) NeedAppearances() bool {
	v, _ := f.dict.Get("NeedAppearances")
	b, ok := f.doc.Deref(v).(raw.BoolObj)
	return ok && b.V
}

func (f *Form) SetNeedAppearances(on bool) {
	f.Elements().Set("NeedAppearances", raw.Bool(on))
}

// Elements is the entry map of a form dictionary. Keys are accepted with
// or without the leading slash.
type Elements struct {
	form *Form
}

func elementKey(key string) string { return strings.TrimPrefix(key, "/") }

func (e *Elements) Get(key string) (raw.Object, bool) {
	return e.form.dict.Get(elementKey(key))
}

// Set adds key or replaces its value.
func (e *Elements) Set(key string, v raw.Object) {
	e.form.dict.Set(elementKey(key), v)
	e.form.touch()
}

// SetIfAbsent adds key only when it is missing and reports whether it did.
func (e *Elements) SetIfAbsent(key string, v raw.Object) bool {
	if e.Contains(key) {
		return false
	}
	e.Set(key, v)
	return true
}

func (e *Elements) Contains(key string) bool { return e.form.dict.Has(elementKey(key)) }

func (e *Elements) Remove(key string) bool {
	if !e.form.dict.Delete(elementKey(key)) {
		return false
	}
	e.form.touch()
	return true
}

// Keys lists the entry names with their leading slash.
func (e *Elements) Keys() []string {
	keys := e.form.dict.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = "/" + k
	}
	return out
}
