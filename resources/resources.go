// Package resources looks up page attributes and named resources through
// the page tree, following /Parent links for inheritable entries.
package resources

import (
	"fmt"

	"github.com/wudi/pdfcodec/ir/raw"
)

type Category string

const (
	CategoryFont       Category = "Font"
	CategoryXObject    Category = "XObject"
	CategoryExtGState  Category = "ExtGState"
	CategoryColorSpace Category = "ColorSpace"
	CategoryPattern    Category = "Pattern"
	CategoryShading    Category = "Shading"
	CategoryProperties Category = "Properties"
)

// maxDepth bounds /Parent chains so cyclic page trees terminate.
const maxDepth = 32

// Inherited returns the value of key on node or the nearest ancestor that
// has it.
func Inherited(r raw.Resolver, node *raw.DictObj, key string) (raw.Object, bool) {
	for depth := 0; node != nil && depth < maxDepth; depth++ {
		if v, ok := node.Get(key); ok {
			return v, true
		}
		parent, _ := node.Get("Parent")
		node, _ = raw.DerefDict(r, parent)
	}
	return nil, false
}

// Of returns the resource dictionary in effect for a page.
func Of(r raw.Resolver, page *raw.DictObj) (*raw.DictObj, bool) {
	v, ok := Inherited(r, page, "Resources")
	if !ok {
		return nil, false
	}
	return raw.DerefDict(r, v)
}

// Lookup finds the resource called name in the given category of the
// resources in effect for page.
func Lookup(r raw.Resolver, page *raw.DictObj, category Category, name string) (raw.Object, error) {
	res, ok := Of(r, page)
	if ok {
		v, _ := res.Get(string(category))
		if sub, ok := raw.DerefDict(r, v); ok {
			if obj, ok := sub.Get(name); ok {
				return obj, nil
			}
		}
	}
	return nil, fmt.Errorf("resource not found: %s/%s", category, name)
}

// Names returns the names defined in a category, in dictionary order.
func Names(r raw.Resolver, page *raw.DictObj, category Category) []string {
	res, ok := Of(r, page)
	if !ok {
		return nil
	}
	v, _ := res.Get(string(category))
	sub, ok := raw.DerefDict(r, v)
	if !ok {
		return nil
	}
	return sub.Keys()
}
