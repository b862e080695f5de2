package document

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/resources"
)

// Page is a leaf of the page tree.
type Page struct {
	Ref  raw.ObjectRef
	Dict *raw.DictObj
}

// MediaBox returns the page box, inherited from ancestors when the page
// has none. Letter size is assumed when no box is found.
func (p Page) MediaBox(r raw.Resolver) [4]float64 {
	v, _ := resources.Inherited(r, p.Dict, "MediaBox")
	if arr, ok := raw.DerefArray(r, v); ok && arr.Len() == 4 {
		var box [4]float64
		for i, it := range arr.Items {
			box[i], _ = raw.Number(deref(r, it))
		}
		return box
	}
	return [4]float64{0, 0, 612, 792}
}

func deref(r raw.Resolver, o raw.Object) raw.Object {
	if ref, ok := o.(raw.RefObj); ok {
		obj, err := r.Resolve(ref.R)
		if err != nil {
			return nil
		}
		return obj
	}
	return o
}

// PageCount returns the number of leaves in the page tree.
func (d *Document) PageCount() int {
	pages, err := d.Pages()
	if err != nil {
		return 0
	}
	return len(pages)
}

// Pages lists the page tree leaves in document order. Cycles and broken
// kids are skipped.
func (d *Document) Pages() ([]Page, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	root, err := d.raw.Root()
	if err != nil {
		return nil, err
	}
	ref, ok := root.GetRef("Pages")
	if !ok {
		return nil, errors.New("catalog has no /Pages reference")
	}
	var out []Page
	seen := make(map[raw.ObjectRef]bool)
	var visit func(ref raw.ObjectRef)
	visit = func(ref raw.ObjectRef) {
		if seen[ref] {
			return
		}
		seen[ref] = true
		obj, err := d.raw.Resolve(ref)
		if err != nil {
			return
		}
		node, ok := obj.(*raw.DictObj)
		if !ok {
			return
		}
		if typ, _ := node.GetName("Type"); typ == "Page" || !node.Has("Kids") {
			out = append(out, Page{Ref: ref, Dict: node})
			return
		}
		kidsObj, _ := node.Get("Kids")
		kids, _ := raw.DerefArray(d.raw, kidsObj)
		if kids == nil {
			return
		}
		for _, kid := range kids.Items {
			if r, ok := kid.(raw.RefObj); ok {
				visit(r.R)
			}
		}
	}
	visit(ref)
	return out, nil
}

// Page returns the page at index i (zero based).
func (d *Document) Page(i int) (Page, error) {
	pages, err := d.Pages()
	if err != nil {
		return Page{}, err
	}
	if i < 0 || i >= len(pages) {
		return Page{}, fmt.Errorf("page %d out of range [0,%d)", i, len(pages))
	}
	return pages[i], nil
}

// AddPage appends an empty page of the given size to the root of the page
// tree. Zero dimensions select DefaultPageWidth and DefaultPageHeight.
func (d *Document) AddPage(width, height float64) (Page, error) {
	if err := d.usable(); err != nil {
		return Page{}, err
	}
	if d.raw.Locked {
		return Page{}, ErrLocked
	}
	if width <= 0 {
		width = DefaultPageWidth
	}
	if height <= 0 {
		height = DefaultPageHeight
	}
	root, err := d.raw.Root()
	if err != nil {
		return Page{}, err
	}
	pagesRef, ok := root.GetRef("Pages")
	if !ok {
		return Page{}, errors.New("catalog has no /Pages reference")
	}
	pagesObj, err := d.raw.Resolve(pagesRef)
	if err != nil {
		return Page{}, err
	}
	pages, ok := pagesObj.(*raw.DictObj)
	if !ok {
		return Page{}, errors.New("/Pages is not a dictionary")
	}

	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Parent", raw.RefObj{R: pagesRef})
	page.Set("MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), realOrInt(width), realOrInt(height)))
	page.Set("Resources", raw.Dict())
	ref := d.raw.Add(page)

	kidsObj, _ := pages.Get("Kids")
	kids, ok := raw.DerefArray(d.raw, kidsObj)
	if !ok {
		kids = raw.NewArray()
		pages.Set("Kids", kids)
	} else if r, isRef := kidsObj.(raw.RefObj); isRef {
		d.raw.MarkModified(r.R)
	}
	kids.Append(raw.RefObj{R: ref})
	count, _ := pages.GetInt("Count")
	pages.Set("Count", raw.NumberInt(count+1))
	d.raw.MarkModified(pagesRef)
	return Page{Ref: ref, Dict: page}, nil
}

func realOrInt(f float64) raw.NumberObj {
	if f == float64(int64(f)) {
		return raw.NumberInt(int64(f))
	}
	return raw.NumberFloat(f)
}
