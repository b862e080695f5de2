package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/wudi/pdfcodec/ir/raw"
)

// AppendObject appends the PDF syntax for o to b.
func AppendObject(b []byte, o raw.Object) ([]byte, error) { return appendObject(b, o) }

// appendObject appends the PDF syntax for o. Dictionary keys keep their
// insertion order.
func appendObject(b []byte, o raw.Object) ([]byte, error) {
	switch v := o.(type) {
	case nil, raw.NullObj:
		return append(b, "null"...), nil
	case raw.NameObj:
		return appendName(b, v.Val), nil
	case raw.NumberObj:
		if v.IsInteger() {
			return strconv.AppendInt(b, v.Int(), 10), nil
		}
		return appendReal(b, v.Float()), nil
	case raw.BoolObj:
		return strconv.AppendBool(b, v.V), nil
	case raw.StringObj:
		return appendString(b, v.Bytes, v.Hex), nil
	case raw.RefObj:
		return fmt.Appendf(b, "%d %d R", v.R.Num, v.R.Gen), nil
	case *raw.ArrayObj:
		b = append(b, '[')
		var err error
		for i, it := range v.Items {
			if i > 0 {
				b = append(b, ' ')
			}
			if b, err = appendObject(b, it); err != nil {
				return nil, err
			}
		}
		return append(b, ']'), nil
	case *raw.DictObj:
		b = append(b, "<<"...)
		var err error
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			b = append(b, ' ')
			b = appendName(b, k)
			b = append(b, ' ')
			if b, err = appendObject(b, val); err != nil {
				return nil, err
			}
		}
		return append(b, " >>"...), nil
	case *raw.StreamObj:
		data, err := v.Data()
		if err != nil {
			return nil, err
		}
		dict := v.Dict
		if dict == nil {
			dict = raw.Dict()
		}
		if n, ok := dict.GetInt("Length"); !ok || n != int64(len(data)) {
			dict = dict.Clone()
			dict.Set("Length", raw.NumberInt(int64(len(data))))
		}
		if b, err = appendObject(b, dict); err != nil {
			return nil, err
		}
		b = append(b, "\nstream\n"...)
		b = append(b, data...)
		return append(b, "\nendstream"...), nil
	}
	return nil, fmt.Errorf("cannot serialize %T", o)
}

// appendName writes /name, escaping delimiters, '#' and bytes outside the
// printable ASCII range as #xx.
func appendName(b []byte, name string) []byte {
	b = append(b, '/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7E || c == '#' || isDelimiter(c) {
			b = fmt.Appendf(b, "#%02X", c)
			continue
		}
		b = append(b, c)
	}
	return b
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// appendReal writes f in the shortest decimal form PDF readers accept: no
// exponent, no trailing zeros.
func appendReal(b []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(b, '0')
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.AppendInt(b, int64(f), 10)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if len(s) > 2 && s[0] == '0' && s[1] == '.' {
		s = s[1:]
	} else if len(s) > 3 && s[0] == '-' && s[1] == '0' && s[2] == '.' {
		s = "-" + s[2:]
	}
	return append(b, s...)
}

// appendString writes a literal string, or a hex string when hex is set or
// the data is mostly binary.
func appendString(b []byte, data []byte, hexForm bool) []byte {
	if hexForm || binaryHeavy(data) {
		b = append(b, '<')
		b = append(b, bytes.ToUpper([]byte(hex.EncodeToString(data)))...)
		return append(b, '>')
	}
	return appendLiteral(b, data)
}

func binaryHeavy(data []byte) bool {
	n := 0
	for _, c := range data {
		if (c < 0x20 && c != '\n' && c != '\r' && c != '\t') || c >= 0x7F {
			n++
		}
	}
	return n*4 > len(data)
}

// appendLiteral escapes backslashes and control characters. Parentheses
// are left bare when they balance and escaped otherwise.
func appendLiteral(b []byte, data []byte) []byte {
	balanced := parensBalanced(data)
	b = append(b, '(')
	for _, c := range data {
		switch c {
		case '\\':
			b = append(b, `\\`...)
		case '(', ')':
			if !balanced {
				b = append(b, '\\')
			}
			b = append(b, c)
		case '\n':
			b = append(b, `\n`...)
		case '\r':
			b = append(b, `\r`...)
		case '\t':
			b = append(b, `\t`...)
		case '\b':
			b = append(b, `\b`...)
		case '\f':
			b = append(b, `\f`...)
		default:
			if c < 0x20 || c >= 0x7F {
				b = fmt.Appendf(b, `\%03o`, c)
			} else {
				b = append(b, c)
			}
		}
	}
	return append(b, ')')
}

func parensBalanced(data []byte) bool {
	depth := 0
	for _, c := range data {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
