package raw

import (
	"context"
	"errors"
	"testing"
)

type mapSource map[ObjectRef]Object

func (m mapSource) Load(_ context.Context, ref ObjectRef) (Object, error) {
	if obj, ok := m[ref]; ok {
		return obj, nil
	}
	return nil, &BrokenReferenceError{Ref: ref}
}

func (m mapSource) Refs() []ObjectRef {
	out := make([]ObjectRef, 0, len(m))
	for ref := range m {
		out = append(out, ref)
	}
	return out
}

func TestAddAssignsMonotonicNumbers(t *testing.T) {
	src := mapSource{
		{Num: 1}: Dict(),
		{Num: 7}: Dict(),
	}
	trailer := Dict()
	trailer.Set("Size", NumberInt(5))
	doc := NewLazyDocument(src, trailer)

	a := doc.Add(Dict())
	b := doc.Add(Dict())
	if a.Num != 8 || b.Num != 9 {
		t.Fatalf("fresh numbers = %d, %d; want 8, 9", a.Num, b.Num)
	}
	doc.Delete(b)
	c := doc.Add(Dict())
	if c.Num != 10 {
		t.Fatalf("numbers must not be reused, got %d", c.Num)
	}
}

func TestResolveBrokenReference(t *testing.T) {
	doc := NewLazyDocument(mapSource{{Num: 1}: Dict()}, nil)
	_, err := doc.Resolve(ObjectRef{Num: 42})
	var broken *BrokenReferenceError
	if !errors.As(err, &broken) {
		t.Fatalf("expected BrokenReferenceError, got %v", err)
	}
	if broken.Ref.Num != 42 {
		t.Fatalf("wrong ref in error: %v", broken.Ref)
	}
	if doc.Deref(Ref(42, 0)) != nil {
		t.Fatalf("Deref of broken reference should be nil")
	}
}

func TestCheckReferencesHandlesCycles(t *testing.T) {
	doc := NewDocument()
	pages := Dict()
	pagesRef := doc.Add(pages)
	page := Dict()
	page.Set("Parent", RefObj{R: pagesRef})
	pageRef := doc.Add(page)
	pages.Set("Kids", NewArray(RefObj{R: pageRef}))
	catalog := Dict()
	catalog.Set("Pages", RefObj{R: pagesRef})
	doc.Trailer.Set("Root", RefObj{R: doc.Add(catalog)})

	if broken, err := doc.CheckReferences(); err != nil || len(broken) != 0 {
		t.Fatalf("unexpected broken refs: %v %v", broken, err)
	}

	page.Set("Annots", NewArray(Ref(99, 0)))
	broken, err := doc.CheckReferences()
	if err != nil || len(broken) != 1 || broken[0].Ref.Num != 99 {
		t.Fatalf("expected one broken ref to 99, got %v", broken)
	}
}

func TestModifiedTracking(t *testing.T) {
	doc := NewLazyDocument(mapSource{{Num: 1}: Dict(), {Num: 2}: Dict()}, nil)
	if doc.IsModified() {
		t.Fatalf("fresh document should not be modified")
	}
	doc.MarkModified(ObjectRef{Num: 2})
	ref := doc.Add(NumberInt(1))
	got := doc.Modified()
	if len(got) != 2 || got[0].Num != 2 || got[1] != ref {
		t.Fatalf("unexpected modified set %v", got)
	}
	refs := doc.Refs()
	if len(refs) != 3 {
		t.Fatalf("expected 3 live refs, got %v", refs)
	}
}
