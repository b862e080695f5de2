package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/scanner"
)

func newReader(data []byte, off int64) (*raw.ObjectReader, error) {
	s := scanner.New(bytes.NewReader(data), scanner.Config{})
	if err := s.Seek(off); err != nil {
		return nil, err
	}
	return raw.NewObjectReader(s, nil), nil
}

func nextInt(r *raw.ObjectReader) (int64, error) {
	tok, err := r.Next()
	if err != nil {
		return 0, err
	}
	if tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, fmt.Errorf("expected integer at offset %d", tok.Pos)
	}
	return tok.Int, nil
}

// parseClassic reads an "xref ... trailer << >>" section at off.
func parseClassic(data []byte, off int64) (*table, error) {
	r, err := newReader(data, off)
	if err != nil {
		return nil, err
	}
	tok, err := r.Next()
	if err != nil || tok.Type != scanner.TokenKeyword || tok.Str != "xref" {
		return nil, errors.New("xref keyword not found at offset")
	}
	t := &table{entries: make(map[int]Entry), kind: "table", offset: off}
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("unexpected end of xref section: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("invalid xref subsection header at offset %d", tok.Pos)
		}
		start := int(tok.Int)
		count, err := nextInt(r)
		if err != nil {
			return nil, fmt.Errorf("parse xref count: %w", err)
		}
		for i := 0; i < int(count); i++ {
			offset, err := nextInt(r)
			if err != nil {
				return nil, fmt.Errorf("parse xref offset: %w", err)
			}
			gen, err := nextInt(r)
			if err != nil {
				return nil, fmt.Errorf("parse xref gen: %w", err)
			}
			kind, err := r.Next()
			if err != nil || kind.Type != scanner.TokenKeyword || (kind.Str != "n" && kind.Str != "f") {
				return nil, fmt.Errorf("invalid xref entry type at object %d", start+i)
			}
			// some writers number the first subsection from 1 while still
			// emitting the free head entry
			if i == 0 && start == 1 && kind.Str == "f" && gen == 65535 && offset == 0 {
				start = 0
			}
			num := start + i
			if kind.Str == "n" && offset > 0 {
				t.entries[num] = Entry{Type: EntryInUse, Offset: offset, Gen: int(gen)}
			} else {
				t.entries[num] = Entry{Type: EntryFree, Offset: offset, Gen: int(gen)}
			}
		}
	}
	obj, err := r.ReadObject()
	if err != nil {
		return nil, fmt.Errorf("parse trailer: %w", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	t.trailer = trailer
	return t, nil
}

// parseStream reads an xref stream object at off.
func parseStream(ctx context.Context, data []byte, off int64) (*table, error) {
	r, err := newReader(data, off)
	if err != nil {
		return nil, err
	}
	_, obj, err := r.ReadIndirect()
	if err != nil {
		return nil, fmt.Errorf("xref stream at %d: %w", off, err)
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("object at %d is not an xref stream", off)
	}
	if typ, _ := stream.Dict.GetName("Type"); typ != "XRef" {
		return nil, fmt.Errorf("object at %d is not an xref stream", off)
	}
	entries, err := DecodeStream(ctx, stream)
	if err != nil {
		return nil, err
	}
	return &table{entries: entries, trailer: stream.Dict, kind: "xref-stream", offset: off}, nil
}

// DecodeStream expands the entries of an xref stream.
func DecodeStream(ctx context.Context, stream *raw.StreamObj) (map[int]Entry, error) {
	dict := stream.Dict
	wArr, ok := dict.GetArray("W")
	if !ok || wArr.Len() < 3 {
		return nil, errors.New("xref stream missing /W")
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		n, ok := wArr.Items[i].(raw.NumberObj)
		if !ok || n.Int() < 0 || n.Int() > 8 {
			return nil, errors.New("invalid /W entry in xref stream")
		}
		w[i] = int(n.Int())
	}
	size, _ := dict.GetInt("Size")
	index := []int64{0, size}
	if idxArr, ok := dict.GetArray("Index"); ok {
		index = index[:0]
		for _, it := range idxArr.Items {
			n, ok := it.(raw.NumberObj)
			if !ok {
				return nil, errors.New("invalid /Index in xref stream")
			}
			index = append(index, n.Int())
		}
		if len(index)%2 != 0 {
			return nil, errors.New("odd /Index length in xref stream")
		}
	}
	payload, err := filters.NewDefaultPipeline(filters.Limits{}).DecodeStream(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, errors.New("zero-width xref stream rows")
	}
	entries := make(map[int]Entry)
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for k := 0; k < count; k++ {
			if pos+rowLen > len(payload) {
				return entries, nil
			}
			row := payload[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			num := first + k
			switch typ {
			case 0:
				entries[num] = Entry{Type: EntryFree, Offset: f2, Gen: int(f3)}
			case 1:
				entries[num] = Entry{Type: EntryInUse, Offset: f2, Gen: int(f3)}
			case 2:
				entries[num] = Entry{Type: EntryCompressed, Stream: int(f2), Index: int(f3)}
			}
		}
	}
	return entries, nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
