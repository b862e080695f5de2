package parser

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wudi/pdfcodec/ir/raw"
)

// testPDF assembles small files with a classic xref table.
type testPDF struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func newTestPDF(version string) *testPDF {
	p := &testPDF{offsets: make(map[int]int)}
	fmt.Fprintf(&p.buf, "%%PDF-%s\n", version)
	return p
}

func (p *testPDF) obj(num int, body string) {
	p.offsets[num] = p.buf.Len()
	fmt.Fprintf(&p.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (p *testPDF) stream(num int, dict string, data []byte) {
	p.offsets[num] = p.buf.Len()
	fmt.Fprintf(&p.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, dict, len(data))
	p.buf.Write(data)
	p.buf.WriteString("\nendstream\nendobj\n")
}

// finish writes the xref table for every object so far. trailer is the
// dictionary body without /Size.
func (p *testPDF) finish(trailer string) []byte {
	var nums []int
	max := 0
	for n := range p.offsets {
		nums = append(nums, n)
		if n > max {
			max = n
		}
	}
	sort.Ints(nums)
	xrefOff := p.buf.Len()
	fmt.Fprintf(&p.buf, "xref\n0 %d\n0000000000 65535 f \n", max+1)
	for n := 1; n <= max; n++ {
		if off, ok := p.offsets[n]; ok {
			fmt.Fprintf(&p.buf, "%010d 00000 n \n", off)
		} else {
			p.buf.WriteString("0000000000 00000 f \n")
		}
	}
	fmt.Fprintf(&p.buf, "trailer\n<< /Size %d %s >>\nstartxref\n%d\n%%%%EOF\n", max+1, trailer, xrefOff)
	return p.buf.Bytes()
}

// pdfText renders simple objects for fixtures. Strings are written as hex.
func pdfText(o raw.Object) string {
	switch v := o.(type) {
	case raw.NameObj:
		return "/" + v.Val
	case raw.NumberObj:
		if v.IsInteger() {
			return strconv.FormatInt(v.Int(), 10)
		}
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case raw.BoolObj:
		return strconv.FormatBool(v.V)
	case raw.StringObj:
		return fmt.Sprintf("<%x>", v.Bytes)
	case raw.RefObj:
		return v.R.String()
	case *raw.ArrayObj:
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = pdfText(it)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case *raw.DictObj:
		var sb strings.Builder
		sb.WriteString("<<")
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			fmt.Fprintf(&sb, " /%s %s", k, pdfText(val))
		}
		sb.WriteString(" >>")
		return sb.String()
	}
	return "null"
}
