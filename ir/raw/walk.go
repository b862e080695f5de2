package raw

import "errors"

// ErrSkip may be returned by a WalkFunc to avoid descending into an object.
var ErrSkip = errors.New("skip object")

// WalkFunc is called for every indirect object reached during a walk.
type WalkFunc func(ref ObjectRef, obj Object) error

// Walk visits each indirect object reachable from root exactly once.
// Broken references are collected and returned after the walk; errors from
// fn other than ErrSkip stop the walk.
func Walk(r Resolver, root Object, fn WalkFunc) ([]*BrokenReferenceError, error) {
	w := &walker{r: r, fn: fn, seen: make(map[ObjectRef]struct{})}
	err := w.visit(root)
	return w.broken, err
}

// CheckReferences walks the document from its trailer and reports every
// reference that cannot be resolved. A reachable object that fails to load
// for any other reason, such as a syntax error, ends the walk and is
// returned as the error.
func (d *Document) CheckReferences() ([]*BrokenReferenceError, error) {
	return Walk(d, d.Trailer, nil)
}

type walker struct {
	r      Resolver
	fn     WalkFunc
	seen   map[ObjectRef]struct{}
	broken []*BrokenReferenceError
}

func (w *walker) visit(o Object) error {
	stack := []Object{o}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch v := cur.(type) {
		case RefObj:
			if _, ok := w.seen[v.R]; ok {
				continue
			}
			w.seen[v.R] = struct{}{}
			obj, err := w.r.Resolve(v.R)
			if err != nil {
				var broken *BrokenReferenceError
				if errors.As(err, &broken) {
					w.broken = append(w.broken, broken)
					continue
				}
				return err
			}
			if w.fn != nil {
				if err := w.fn(v.R, obj); err != nil {
					if errors.Is(err, ErrSkip) {
						continue
					}
					return err
				}
			}
			stack = append(stack, obj)
		case *DictObj:
			for _, k := range v.keys {
				stack = append(stack, v.kv[k])
			}
		case *ArrayObj:
			stack = append(stack, v.Items...)
		case *StreamObj:
			if v.Dict != nil {
				stack = append(stack, v.Dict)
			}
		}
	}
	return nil
}
