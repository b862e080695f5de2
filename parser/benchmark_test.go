package parser

import (
	"bytes"
	"context"
	"testing"

	"github.com/wudi/pdfcodec/ir/raw"
)

func BenchmarkParseClassic(b *testing.B) {
	data := buildClassicPDF()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		doc, err := NewDocumentParser(Config{}).Parse(context.Background(), bytes.NewReader(data))
		if err != nil {
			b.Fatalf("parse failed: %v", err)
		}
		if _, err := doc.Resolve(raw.ObjectRef{Num: 2}); err != nil {
			b.Fatalf("resolve: %v", err)
		}
	}
}
