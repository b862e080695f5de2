package xref

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/scanner"
)

// Repair scans r from start to end and rebuilds the cross-reference table
// from "<num> <gen> obj" headers and trailer dictionaries.
func Repair(ctx context.Context, r io.ReaderAt) (Table, error) {
	return repair(ctx, readAll(r))
}

type fixAll struct{}

func (fixAll) OnError(recovery.Context, error, recovery.Location) recovery.Action {
	return recovery.ActionFix
}

// repair scans the entire file to reconstruct the xref table.
// Later definitions of an object win over earlier ones.
func repair(ctx context.Context, data []byte) (*table, error) {
	s := scanner.New(bytes.NewReader(data), scanner.Config{Recovery: fixAll{}})
	rd := raw.NewObjectReader(s, fixAll{})
	entries := make(map[int]Entry)
	var lastTrailer *raw.DictObj
	var catalog *raw.ObjectRef
	var prev, prevPrev scanner.Token
	pipeline := filters.NewDefaultPipeline(filters.Limits{})

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := rd.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// skip the offending byte and keep scanning
			if serr := rd.Seek(s.Position() + 1); serr != nil {
				break
			}
			continue
		}

		switch {
		case tok.Type == scanner.TokenKeyword && tok.Str == "obj" &&
			isIntTok(prevPrev) && isIntTok(prev) && prevPrev.Pos < prev.Pos:
			ref := raw.ObjectRef{Num: int(prevPrev.Int), Gen: int(prev.Int)}
			entries[ref.Num] = Entry{Type: EntryInUse, Offset: prevPrev.Pos, Gen: ref.Gen}
			after := s.Position()
			obj, err := rd.ReadObject()
			if err != nil {
				if serr := rd.Seek(after); serr != nil {
					return nil, serr
				}
				break
			}
			switch v := obj.(type) {
			case *raw.DictObj:
				if typ, _ := v.GetName("Type"); typ == "Catalog" {
					c := ref
					catalog = &c
				}
			case *raw.StreamObj:
				switch typ, _ := v.Dict.GetName("Type"); typ {
				case "XRef":
					lastTrailer = v.Dict
				case "ObjStm":
					registerObjStm(ctx, pipeline, ref.Num, v, entries)
				}
			}
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			obj, err := rd.ReadObject()
			if err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					lastTrailer = dict
				}
			}
		}
		prevPrev, prev = prev, tok
	}

	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	trailer := raw.Dict()
	if lastTrailer != nil {
		for _, k := range []string{"Root", "Info", "Encrypt", "ID"} {
			if v, ok := lastTrailer.Get(k); ok {
				trailer.Set(k, v)
			}
		}
	}
	if ref, ok := trailer.GetRef("Root"); !ok || !inUse(entries, ref.Num) {
		trailer.Delete("Root")
		if catalog != nil {
			trailer.Set("Root", raw.RefObj{R: *catalog})
		}
	}
	maxNum := 0
	for num := range entries {
		if num > maxNum {
			maxNum = num
		}
	}
	trailer.Set("Size", raw.NumberInt(int64(maxNum+1)))

	return &table{entries: entries, trailer: trailer, kind: "repaired"}, nil
}

func inUse(entries map[int]Entry, num int) bool {
	e, ok := entries[num]
	return ok && e.Type != EntryFree
}

func isIntTok(t scanner.Token) bool { return t.Type == scanner.TokenNumber && t.IsInt && t.Int >= 0 }

// registerObjStm records the objects of an object stream unless a direct
// definition has already been seen.
func registerObjStm(ctx context.Context, p *filters.Pipeline, streamNum int, s *raw.StreamObj, entries map[int]Entry) {
	n, _ := s.Dict.GetInt("N")
	if n <= 0 {
		return
	}
	data, err := p.DecodeStream(ctx, s)
	if err != nil {
		return
	}
	hs := scanner.New(bytes.NewReader(data), scanner.Config{})
	for i := 0; i < int(n); i++ {
		numTok, err := hs.Next()
		if err != nil || numTok.Type != scanner.TokenNumber {
			return
		}
		if _, err := hs.Next(); err != nil {
			return
		}
		num := int(numTok.Int)
		if _, exists := entries[num]; exists {
			continue
		}
		entries[num] = Entry{Type: EntryCompressed, Stream: streamNum, Index: i}
	}
}
