package optimize

import (
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfcodec/ir/raw"
)

// newDoc builds a catalog with one page whose resources name two image
// streams with identical content, plus one object nothing refers to.
func newDoc(t *testing.T) (doc *raw.Document, im1, im2, orphan raw.ObjectRef) {
	t.Helper()
	doc = raw.NewDocument()
	image := func() *raw.StreamObj {
		d := raw.Dict()
		d.Set("Type", raw.NameLiteral("XObject"))
		d.Set("Subtype", raw.NameLiteral("Image"))
		d.Set("Width", raw.NumberInt(1))
		d.Set("Height", raw.NumberInt(1))
		return raw.NewStream(d, []byte{1, 2, 3})
	}
	im1 = doc.Add(image())
	im2 = doc.Add(image())
	xobj := raw.Dict()
	xobj.Set("Im1", raw.RefObj{R: im1})
	xobj.Set("Im2", raw.RefObj{R: im2})
	res := raw.Dict()
	res.Set("XObject", xobj)

	pagesRef := doc.Add(nil)
	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Parent", raw.RefObj{R: pagesRef})
	page.Set("Resources", res)
	pageRef := doc.Add(page)
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray(raw.RefObj{R: pageRef}))
	pages.Set("Count", raw.NumberInt(1))
	doc.Set(pagesRef, pages)
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.RefObj{R: pagesRef})
	doc.Trailer.Set("Root", raw.RefObj{R: doc.Add(catalog)})

	orphan = doc.Add(raw.NewArray(raw.NumberInt(42)))
	return doc, im1, im2, orphan
}

func TestOptimize(t *testing.T) {
	doc, im1, im2, orphan := newDoc(t)
	stats, err := New(Config{RemoveUnreachable: true, CombineDuplicateStreams: true}).Optimize(context.Background(), doc)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if stats != (Stats{Removed: 1, Combined: 1}) {
		t.Fatalf("stats %+v", stats)
	}
	if _, err := doc.Resolve(orphan); err == nil {
		t.Fatalf("orphan should be deleted")
	}
	if _, err := doc.Resolve(im2); err == nil {
		t.Fatalf("duplicate image should be deleted")
	}
	if broken, err := doc.CheckReferences(); err != nil || len(broken) != 0 {
		t.Fatalf("broken references: %v %v", broken, err)
	}
	root, _ := doc.Root()
	pages, _ := raw.DerefDict(doc, mustGet(t, root, "Pages"))
	kids, _ := pages.GetArray("Kids")
	page, _ := raw.DerefDict(doc, kids.Items[0])
	res, _ := page.GetDict("Resources")
	xobj, _ := res.GetDict("XObject")
	for _, name := range []string{"Im1", "Im2"} {
		if ref, _ := xobj.GetRef(name); ref != im1 {
			t.Fatalf("/%s points at %v, want %v", name, ref, im1)
		}
	}
}

func TestOptimizeDisabledPasses(t *testing.T) {
	doc, _, im2, orphan := newDoc(t)
	stats, err := New(Config{}).Optimize(context.Background(), doc)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if stats != (Stats{}) {
		t.Fatalf("nothing should change, got %+v", stats)
	}
	for _, ref := range []raw.ObjectRef{im2, orphan} {
		if _, err := doc.Resolve(ref); err != nil {
			t.Fatalf("object %d should survive: %v", ref.Num, err)
		}
	}
}

func TestOptimizeKeepsStructuralStreams(t *testing.T) {
	doc, _, _, _ := newDoc(t)
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("ObjStm"))
	objStm := doc.Add(raw.NewStream(d, nil))
	if _, err := New(Config{RemoveUnreachable: true}).Optimize(context.Background(), doc); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if _, err := doc.Resolve(objStm); err != nil {
		t.Fatalf("object stream removed: %v", err)
	}
}

func TestOptimizeLockedAndCanceled(t *testing.T) {
	doc, _, _, _ := newDoc(t)
	doc.Locked = true
	if _, err := New(Config{}).Optimize(context.Background(), doc); !errors.Is(err, raw.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	doc.Locked = false
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Config{RemoveUnreachable: true}).Optimize(ctx, doc); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHashIgnoresKeyOrderAndLength(t *testing.T) {
	a := raw.Dict()
	a.Set("Length", raw.NumberInt(3))
	a.Set("A", raw.NumberInt(1))
	a.Set("B", raw.NameLiteral("x"))
	b := raw.Dict()
	b.Set("B", raw.NameLiteral("x"))
	b.Set("A", raw.NumberInt(1))
	ha, _ := hashStream(raw.NewStream(a, []byte("abc")))
	hb, _ := hashStream(raw.NewStream(b, []byte("abc")))
	if ha != hb {
		t.Fatalf("equal streams hash differently")
	}
	hc, _ := hashStream(raw.NewStream(b, []byte("abd")))
	if ha == hc {
		t.Fatalf("different payloads hash the same")
	}
}

func mustGet(t *testing.T, d *raw.DictObj, key string) raw.Object {
	t.Helper()
	v, ok := d.Get(key)
	if !ok {
		t.Fatalf("missing /%s", key)
	}
	return v
}
