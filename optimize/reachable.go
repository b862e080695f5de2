package optimize

import (
	"github.com/wudi/pdfcodec/ir/raw"
)

func (o *Optimizer) removeUnreachable(doc *raw.Document, objects map[raw.ObjectRef]raw.Object) (int, error) {
	reachable := make(map[raw.ObjectRef]bool)
	_, err := raw.Walk(doc, doc.Trailer, func(ref raw.ObjectRef, _ raw.Object) error {
		reachable[ref] = true
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, ref := range doc.Refs() {
		obj, loaded := objects[ref]
		if reachable[ref] || !loaded || structural(obj) {
			continue
		}
		doc.Delete(ref)
		removed++
	}
	return removed, nil
}
