package raw

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/scanner"
)

// LengthFunc resolves an indirect /Length value for a stream.
type LengthFunc func(ref ObjectRef) (int64, bool)

// ObjectReader builds objects from a token stream. It supports one level of
// pushback per token and feeds stream length hints to the scanner.
type ObjectReader struct {
	s        scanner.Scanner
	buf      []scanner.Token
	Recovery recovery.Strategy
	Length   LengthFunc
	Location recovery.Location
}

func NewObjectReader(s scanner.Scanner, rec recovery.Strategy) *ObjectReader {
	return &ObjectReader{s: s, Recovery: rec}
}

// Scanner returns the underlying scanner.
func (r *ObjectReader) Scanner() scanner.Scanner { return r.s }

// Seek repositions the underlying scanner and drops pushed back tokens.
func (r *ObjectReader) Seek(off int64) error {
	r.buf = r.buf[:0]
	return r.s.Seek(off)
}

func (r *ObjectReader) Next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *ObjectReader) Unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

// ReadIndirect reads "num gen obj <object> endobj" at the current position.
func (r *ObjectReader) ReadIndirect() (ObjectRef, Object, error) {
	numTok, err := r.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	genTok, err := r.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	objTok, err := r.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt ||
		genTok.Type != scanner.TokenNumber || !genTok.IsInt ||
		objTok.Type != scanner.TokenKeyword || objTok.Str != "obj" {
		return ObjectRef{}, nil, fmt.Errorf("no object header at offset %d", numTok.Pos)
	}
	ref := ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}
	r.Location.ObjectNum, r.Location.ObjectGen = ref.Num, ref.Gen
	r.s.SetRecoveryLocation(r.Location)

	obj, err := r.ReadObject()
	if err != nil {
		return ref, nil, err
	}
	end, err := r.Next()
	if err == nil && !(end.Type == scanner.TokenKeyword && end.Str == "endobj") {
		r.Unread(end)
		if rerr := r.recover(errors.New("missing endobj")); rerr != nil {
			return ref, nil, rerr
		}
	}
	return ref, obj, nil
}

// ReadObject reads one direct object. A dictionary followed by a stream
// keyword becomes a StreamObj.
func (r *ObjectReader) ReadObject() (Object, error) {
	tok, err := r.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenString:
		return StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenRef:
		return RefObj{R: ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	case scanner.TokenArray:
		return r.readArray()
	case scanner.TokenDict:
		dict, err := r.readDict()
		if err != nil {
			return nil, err
		}
		return r.maybeStream(dict)
	case scanner.TokenKeyword:
		if tok.Str == "endobj" {
			r.Unread(tok)
			if err := r.recover(errors.New("empty object")); err != nil {
				return nil, err
			}
			return NullObj{}, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %s %q at offset %d", tok.Type, tok.Str, tok.Pos)
}

func (r *ObjectReader) readArray() (Object, error) {
	arr := &ArrayObj{}
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
			r.Unread(tok)
			if err := r.recover(errors.New("unexpected endobj in array (missing ]?)")); err != nil {
				return nil, err
			}
			return arr, nil
		}
		r.Unread(tok)
		item, err := r.ReadObject()
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *ObjectReader) readDict() (*DictObj, error) {
	d := Dict()
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			if tok.Type == scanner.TokenStream || (tok.Type == scanner.TokenKeyword && tok.Str == "endobj") {
				r.Unread(tok)
				if err := r.recover(fmt.Errorf("unexpected %s in dict (missing >>?)", tok.Type)); err != nil {
					return nil, err
				}
				return d, nil
			}
			return nil, fmt.Errorf("expected name in dict at offset %d", tok.Pos)
		}
		key := tok.Str
		val, err := r.ReadObject()
		if err != nil {
			return nil, err
		}
		// null values are equivalent to absent keys
		if _, isNull := val.(NullObj); isNull {
			continue
		}
		d.Set(key, val)
	}
}

func (r *ObjectReader) maybeStream(dict *DictObj) (Object, error) {
	if length, ok := r.streamLength(dict); ok {
		r.s.SetNextStreamLength(length)
	}
	tok, err := r.Next()
	if err != nil {
		r.s.SetNextStreamLength(-1)
		return dict, nil
	}
	if tok.Type != scanner.TokenStream {
		r.s.SetNextStreamLength(-1)
		r.Unread(tok)
		return dict, nil
	}
	return &StreamObj{Dict: dict, payload: tok.Bytes}, nil
}

func (r *ObjectReader) streamLength(dict *DictObj) (int64, bool) {
	val, ok := dict.Get("Length")
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case NumberObj:
		if v.IsInt && v.I >= 0 {
			return v.I, true
		}
	case RefObj:
		if r.Length != nil {
			if n, ok := r.Length(v.R); ok && n >= 0 {
				return n, true
			}
		}
	}
	return 0, false
}

func (r *ObjectReader) recover(err error) error {
	if r.Recovery == nil {
		return err
	}
	loc := r.Location
	loc.ByteOffset = r.s.Position()
	if loc.Component != "" {
		loc.Component += "->"
	}
	loc.Component += "objects"
	if recovery.Continue(r.Recovery.OnError(context.Background(), err, loc)) {
		return nil
	}
	return err
}
