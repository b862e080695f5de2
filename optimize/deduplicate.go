package optimize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"

	"github.com/wudi/pdfcodec/ir/raw"
)

// combineDuplicateStreams points every reference to a duplicate stream at
// the lowest numbered copy and deletes the others.
func (o *Optimizer) combineDuplicateStreams(ctx context.Context, doc *raw.Document, objects map[raw.ObjectRef]raw.Object) (int, error) {
	refs := make([]raw.ObjectRef, 0, len(objects))
	for ref := range objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})

	seen := make(map[string]raw.ObjectRef)
	replacements := make(map[raw.ObjectRef]raw.ObjectRef)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		s, ok := objects[ref].(*raw.StreamObj)
		if !ok || structural(s) {
			continue
		}
		h, err := hashStream(s)
		if err != nil {
			return 0, fmt.Errorf("object %d: %w", ref.Num, err)
		}
		if original, ok := seen[h]; ok {
			replacements[ref] = original
			continue
		}
		seen[h] = ref
	}
	if len(replacements) == 0 {
		return 0, nil
	}

	for ref, obj := range objects {
		if _, dup := replacements[ref]; dup {
			continue
		}
		if replaceRefs(obj, replacements) {
			doc.MarkModified(ref)
		}
	}
	replaceRefs(doc.Trailer, replacements)
	for dup := range replacements {
		doc.Delete(dup)
		delete(objects, dup)
	}
	return len(replacements), nil
}

// replaceRefs rewrites references inside obj and reports whether any changed.
func replaceRefs(obj raw.Object, replacements map[raw.ObjectRef]raw.ObjectRef) bool {
	changed := false
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if r, ok := val.(raw.RefObj); ok {
				if to, found := replacements[r.R]; found {
					t.Items[i] = raw.RefObj{R: to}
					changed = true
				}
				continue
			}
			changed = replaceRefs(val, replacements) || changed
		}
	case *raw.DictObj:
		for _, key := range t.Keys() {
			val, _ := t.Get(key)
			if r, ok := val.(raw.RefObj); ok {
				if to, found := replacements[r.R]; found {
					t.Set(key, raw.RefObj{R: to})
					changed = true
				}
				continue
			}
			changed = replaceRefs(val, replacements) || changed
		}
	case *raw.StreamObj:
		if t.Dict != nil {
			changed = replaceRefs(t.Dict, replacements)
		}
	}
	return changed
}

func hashStream(s *raw.StreamObj) (string, error) {
	data, err := s.Data()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	writeHash(h, s.Dict)
	fmt.Fprintf(h, "stream%d:", len(data))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeHash feeds a canonical form of obj to h. Dictionary keys are sorted
// and /Length is skipped, since it follows from the payload.
func writeHash(h hash.Hash, obj raw.Object) {
	if obj == nil {
		fmt.Fprint(h, "nil")
		return
	}
	fmt.Fprint(h, obj.Type(), ":")
	switch t := obj.(type) {
	case raw.NameObj:
		fmt.Fprint(h, t.Val)
	case raw.NumberObj:
		if t.IsInt {
			fmt.Fprint(h, t.I)
		} else {
			fmt.Fprint(h, t.F)
		}
	case raw.BoolObj:
		fmt.Fprint(h, t.V)
	case raw.StringObj:
		fmt.Fprintf(h, "%d:", len(t.Bytes))
		h.Write(t.Bytes)
	case raw.RefObj:
		fmt.Fprintf(h, "%d %d R", t.R.Num, t.R.Gen)
	case *raw.ArrayObj:
		fmt.Fprint(h, "[")
		for _, it := range t.Items {
			writeHash(h, it)
			fmt.Fprint(h, ",")
		}
		fmt.Fprint(h, "]")
	case *raw.DictObj:
		keys := t.Keys()
		sort.Strings(keys)
		fmt.Fprint(h, "<<")
		for _, k := range keys {
			if k == "Length" {
				continue
			}
			v, _ := t.Get(k)
			fmt.Fprint(h, k, "=")
			writeHash(h, v)
		}
		fmt.Fprint(h, ">>")
	}
}
