// Package contentstream reads and writes page content streams as sequences
// of operators with their operands.
package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/scanner"
	"github.com/wudi/pdfcodec/writer"
)

// Operation is one content stream operator and the operands preceding it.
// Inline images are a single "BI" operation whose operands are the image
// dictionary and the image data.
type Operation struct {
	Operator string
	Operands []raw.Object
}

// Parse splits decoded content stream data into operations.
func Parse(data []byte) ([]Operation, error) {
	s := scanner.New(bytes.NewReader(data), scanner.Config{})
	r := raw.NewObjectReader(s, recovery.NewStrictStrategy())
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ops, err
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Str {
			case "]", ">>", ">":
				return ops, fmt.Errorf("unexpected %q at offset %d", tok.Str, tok.Pos)
			case "BI":
				op, err := readInlineImage(r)
				if err != nil {
					return ops, err
				}
				ops = append(ops, op)
				operands = nil
				continue
			}
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
			operands = nil
			continue
		}
		r.Unread(tok)
		obj, err := r.ReadObject()
		if err != nil {
			return ops, err
		}
		operands = append(operands, obj)
	}
	if len(operands) > 0 {
		return ops, errors.New("operands without operator at end of content")
	}
	return ops, nil
}

func readInlineImage(r *raw.ObjectReader) (Operation, error) {
	dict := raw.Dict()
	for {
		tok, err := r.Next()
		if err != nil {
			return Operation{}, fmt.Errorf("inline image: %w", err)
		}
		switch tok.Type {
		case scanner.TokenInlineImage:
			return Operation{Operator: "BI", Operands: []raw.Object{dict, raw.Str(tok.Bytes)}}, nil
		case scanner.TokenName:
			val, err := r.ReadObject()
			if err != nil {
				return Operation{}, fmt.Errorf("inline image: %w", err)
			}
			dict.Set(tok.Str, val)
		default:
			return Operation{}, fmt.Errorf("inline image: unexpected token at offset %d", tok.Pos)
		}
	}
}

// Writer accumulates operations in content stream syntax. The first
// serialization error is kept and reported by Err.
type Writer struct {
	buf []byte
	err error
}

// Op appends operands followed by op and a newline.
func (w *Writer) Op(op string, operands ...raw.Object) *Writer {
	if w.err != nil {
		return w
	}
	b := w.buf
	for _, o := range operands {
		var err error
		if b, err = writer.AppendObject(b, o); err != nil {
			w.err = fmt.Errorf("operator %s: %w", op, err)
			return w
		}
		b = append(b, ' ')
	}
	w.buf = append(b, op...)
	w.buf = append(w.buf, '\n')
	return w
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Err() error    { return w.err }

// Num rounds f to three decimals, which is below device resolution, and
// returns it as an integer when it has no fraction.
func Num(f float64) raw.NumberObj {
	f = math.Round(f*1000) / 1000
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return raw.NumberInt(int64(f))
	}
	return raw.NumberFloat(f)
}

// Nums converts each value with Num.
func Nums(fs ...float64) []raw.Object {
	out := make([]raw.Object, len(fs))
	for i, f := range fs {
		out[i] = Num(f)
	}
	return out
}

// Float returns the numeric value of an operand.
func Float(o raw.Object) (float64, bool) { return raw.Number(o) }
