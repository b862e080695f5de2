package raw

import (
	"context"
	"errors"
	"sort"
)

const maxRefChain = 32

// Document is the object arena of a PDF file. Objects are keyed by
// (number, generation) and are materialized from Source on first use.
type Document struct {
	Trailer           *DictObj
	Version           string // e.g., "1.7"
	Metadata          DocumentMetadata
	Permissions       Permissions
	MetadataEncrypted bool
	Encrypted         bool
	Locked            bool
	Linearized        bool

	objects  map[ObjectRef]Object
	source   Source
	modified map[ObjectRef]struct{}
	deleted  map[ObjectRef]struct{}
	nextNum  int
}

// NewDocument returns an empty arena with an empty trailer.
func NewDocument() *Document {
	return &Document{
		Trailer:  Dict(),
		Version:  "1.7",
		objects:  make(map[ObjectRef]Object),
		modified: make(map[ObjectRef]struct{}),
		deleted:  make(map[ObjectRef]struct{}),
		nextNum:  1,
	}
}

// NewLazyDocument returns an arena backed by src. Object numbers handed out
// by Add start above every number known to src and the trailer /Size.
func NewLazyDocument(src Source, trailer *DictObj) *Document {
	d := NewDocument()
	d.source = src
	if trailer != nil {
		d.Trailer = trailer
	}
	if size, ok := d.Trailer.GetInt("Size"); ok && int(size) > d.nextNum {
		d.nextNum = int(size)
	}
	if src != nil {
		for _, ref := range src.Refs() {
			if ref.Num >= d.nextNum {
				d.nextNum = ref.Num + 1
			}
		}
	}
	return d
}

// Source returns the backing source, if any.
func (d *Document) Source() Source { return d.source }

// Resolve returns the object stored under ref.
func (d *Document) Resolve(ref ObjectRef) (Object, error) {
	return d.ResolveContext(context.Background(), ref)
}

func (d *Document) ResolveContext(ctx context.Context, ref ObjectRef) (Object, error) {
	if _, gone := d.deleted[ref]; gone {
		return nil, &BrokenReferenceError{Ref: ref}
	}
	if obj, ok := d.objects[ref]; ok {
		return obj, nil
	}
	if d.source == nil {
		return nil, &BrokenReferenceError{Ref: ref}
	}
	obj, err := d.source.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &BrokenReferenceError{Ref: ref}
	}
	d.objects[ref] = obj
	return obj, nil
}

// Deref follows references until a direct object is reached. Broken
// references yield nil.
func (d *Document) Deref(o Object) Object {
	for i := 0; i < maxRefChain; i++ {
		r, ok := o.(RefObj)
		if !ok {
			return o
		}
		next, err := d.Resolve(r.R)
		if err != nil {
			return nil
		}
		o = next
	}
	return nil
}

// Add stores obj under a fresh object number and returns its reference.
func (d *Document) Add(obj Object) ObjectRef {
	ref := ObjectRef{Num: d.nextNum, Gen: 0}
	d.nextNum++
	d.objects[ref] = obj
	d.modified[ref] = struct{}{}
	return ref
}

// Set replaces or inserts the object stored under ref and marks it modified.
func (d *Document) Set(ref ObjectRef, obj Object) {
	d.objects[ref] = obj
	d.modified[ref] = struct{}{}
	delete(d.deleted, ref)
	if ref.Num >= d.nextNum {
		d.nextNum = ref.Num + 1
	}
}

// MarkModified flags an object that was mutated in place.
func (d *Document) MarkModified(ref ObjectRef) {
	if _, ok := d.objects[ref]; !ok {
		if _, err := d.Resolve(ref); err != nil {
			return
		}
	}
	d.modified[ref] = struct{}{}
}

// Delete frees ref. Later lookups report a broken reference.
func (d *Document) Delete(ref ObjectRef) {
	delete(d.objects, ref)
	delete(d.modified, ref)
	d.deleted[ref] = struct{}{}
}

// Modified returns objects added or changed since the document was loaded.
func (d *Document) Modified() []ObjectRef {
	out := make([]ObjectRef, 0, len(d.modified))
	for ref := range d.modified {
		out = append(out, ref)
	}
	sortRefs(out)
	return out
}

// Deleted returns objects freed since the document was loaded.
func (d *Document) Deleted() []ObjectRef {
	out := make([]ObjectRef, 0, len(d.deleted))
	for ref := range d.deleted {
		out = append(out, ref)
	}
	sortRefs(out)
	return out
}

// IsModified reports whether anything changed since load.
func (d *Document) IsModified() bool { return len(d.modified) > 0 || len(d.deleted) > 0 }

// Refs returns every live object reference in ascending order.
func (d *Document) Refs() []ObjectRef {
	seen := make(map[ObjectRef]struct{}, len(d.objects))
	var out []ObjectRef
	add := func(ref ObjectRef) {
		if _, gone := d.deleted[ref]; gone {
			return
		}
		if _, dup := seen[ref]; dup {
			return
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	if d.source != nil {
		for _, ref := range d.source.Refs() {
			add(ref)
		}
	}
	for ref := range d.objects {
		add(ref)
	}
	sortRefs(out)
	return out
}

// Size is one greater than the highest object number in use.
func (d *Document) Size() int { return d.nextNum }

// Root resolves the catalog dictionary named by the trailer.
func (d *Document) Root() (*DictObj, error) {
	ref, ok := d.Trailer.GetRef("Root")
	if !ok {
		if dict, ok := d.Trailer.GetDict("Root"); ok {
			return dict, nil
		}
		return nil, errors.New("trailer has no /Root")
	}
	obj, err := d.Resolve(ref)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*DictObj)
	if !ok {
		return nil, errors.New("/Root is not a dictionary")
	}
	return dict, nil
}

func sortRefs(refs []ObjectRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
}

// DerefDict resolves o and returns it as a dictionary. Stream dictionaries
// are returned for streams.
func DerefDict(r Resolver, o Object) (*DictObj, bool) {
	o = deref(r, o)
	switch v := o.(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, v.Dict != nil
	}
	return nil, false
}

func DerefArray(r Resolver, o Object) (*ArrayObj, bool) {
	a, ok := deref(r, o).(*ArrayObj)
	return a, ok
}

func DerefInt(r Resolver, o Object) (int64, bool) {
	n, ok := deref(r, o).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

func DerefName(r Resolver, o Object) (string, bool) {
	n, ok := deref(r, o).(NameObj)
	return n.Val, ok
}

func DerefString(r Resolver, o Object) ([]byte, bool) {
	s, ok := deref(r, o).(StringObj)
	return s.Bytes, ok
}

func deref(r Resolver, o Object) Object {
	for i := 0; i < maxRefChain; i++ {
		ref, ok := o.(RefObj)
		if !ok {
			return o
		}
		if r == nil {
			return nil
		}
		next, err := r.Resolve(ref.R)
		if err != nil {
			return nil
		}
		o = next
	}
	return nil
}
