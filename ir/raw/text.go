package raw

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

const noRune = utf8.RuneError

// pdfDocDecode maps PDFDocEncoding bytes to Unicode code points.
var pdfDocDecode = func() [256]rune {
	var t [256]rune
	for i := 0; i < 256; i++ {
		t[i] = rune(i)
	}
	copy(t[0x18:0x20], []rune{0x02D8, 0x02C7, 0x02C6, 0x02D9, 0x02DD, 0x02DB, 0x02DA, 0x02DC})
	copy(t[0x80:0xA1], []rune{
		0x2022, 0x2020, 0x2021, 0x2026, 0x2014, 0x2013, 0x0192, 0x2044,
		0x2039, 0x203A, 0x2212, 0x2030, 0x201E, 0x201C, 0x201D, 0x2018,
		0x2019, 0x201A, 0x2122, 0xFB01, 0xFB02, 0x0141, 0x0152, 0x0160,
		0x0178, 0x017D, 0x0131, 0x0142, 0x0153, 0x0161, 0x017E, noRune,
		0x20AC,
	})
	t[0x7F] = noRune
	t[0xAD] = noRune
	return t
}()

var pdfDocEncode = func() map[rune]byte {
	m := make(map[rune]byte, 256)
	for i, r := range pdfDocDecode {
		if r == noRune {
			continue
		}
		// control characters other than tab/newline/cr are not text
		if i < 0x18 && i != '\t' && i != '\n' && i != '\r' {
			continue
		}
		m[r] = byte(i)
	}
	return m
}()

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)

// EncodePDFDoc encodes s in PDFDocEncoding. ok is false if some rune has no
// representation.
func EncodePDFDoc(s string) ([]byte, bool) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, found := pdfDocEncode[r]
		if !found {
			return nil, false
		}
		out = append(out, b)
	}
	return out, true
}

// EncodeText encodes a text string, preferring PDFDocEncoding and falling
// back to UTF-16BE with a byte order mark.
func EncodeText(s string) []byte {
	if b, ok := EncodePDFDoc(s); ok {
		return b
	}
	b, err := utf16BE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return b
}

// TextString returns a string object holding s as a PDF text string.
func TextString(s string) StringObj { return StringObj{Bytes: EncodeText(s)} }

// DecodeText decodes a PDF text string.
func DecodeText(b []byte) string {
	if bytes.HasPrefix(b, []byte{0xFE, 0xFF}) {
		out, err := utf16BE.NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	}
	if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) && utf8.Valid(b[3:]) {
		return string(b[3:])
	}
	rs := make([]rune, 0, len(b))
	for _, c := range b {
		rs = append(rs, pdfDocDecode[c])
	}
	return string(rs)
}
