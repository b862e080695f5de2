package scanner

import (
	"bytes"
	"testing"
)

// FuzzScanner checks that tokenizing arbitrary input terminates and never
// reports a token past the end of the data.
func FuzzScanner(f *testing.F) {
	for _, seed := range []string{
		"<< /Type /Page /Kids [3 0 R] >>",
		"[ 1 -2.5 .5 true null ]",
		"<< /Length 4 >>\nstream\nabcd\nendstream",
		"(nested (parens) \\) and \\053)",
		"<AABBC>",
		"BI /W 1 /H 1 ID \x00 EI",
		"/Name#20With#23Escapes",
	} {
		f.Add([]byte(seed))
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		s := New(bytes.NewReader(data), Config{
			MaxStringLength: 1024,
			MaxArrayDepth:   8,
			MaxDictDepth:    8,
			MaxStreamLength: 1024,
			MaxNameLength:   127,
			WindowSize:      1024,
		})
		for i := 0; i <= len(data); i++ {
			tok, err := s.Next()
			if err != nil {
				return
			}
			if tok.Pos > int64(len(data)) {
				t.Fatalf("token at %d beyond %d bytes", tok.Pos, len(data))
			}
		}
	})
}
