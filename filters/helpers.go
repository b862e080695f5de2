package filters

import "github.com/wudi/pdfcodec/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
// The params slice is aligned with the names; missing entries are nil.
func ExtractFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	filterObj, ok := dict.Get("Filter")
	if !ok {
		return nil, nil
	}
	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}

	params := make([]*raw.DictObj, len(names))
	parms, _ := dict.Get("DecodeParms")
	switch p := parms.(type) {
	case *raw.DictObj:
		if len(params) > 0 {
			params[0] = p
		}
	case *raw.ArrayObj:
		for i, item := range p.Items {
			if i >= len(params) {
				break
			}
			if d, ok := item.(*raw.DictObj); ok {
				params[i] = d
			}
		}
	}
	return names, params
}
