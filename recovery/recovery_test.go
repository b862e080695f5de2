package recovery_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/parser"
	"github.com/wudi/pdfcodec/recovery"
)

// brokenCatalogPDF returns a file whose catalog dictionary lacks ">>".
func brokenCatalogPDF() []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R",
		"<< /Type /Pages /Kids [] /Count 0 >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestRecoveryStrategies(t *testing.T) {
	data := brokenCatalogPDF()

	t.Run("StrictStrategy", func(t *testing.T) {
		cfg := parser.Config{Recovery: recovery.NewStrictStrategy()}
		_, err := parser.NewDocumentParser(cfg).Parse(context.Background(), bytes.NewReader(data))
		var mde *parser.MalformedDocumentError
		if !errors.As(err, &mde) {
			t.Fatalf("expected MalformedDocumentError with StrictStrategy, got %v", err)
		}
	})

	t.Run("LenientStrategy", func(t *testing.T) {
		rec := recovery.NewLenientStrategy()
		doc, err := parser.NewDocumentParser(parser.Config{Recovery: rec}).Parse(context.Background(), bytes.NewReader(data))
		if err != nil {
			t.Fatalf("expected success with LenientStrategy, got error: %v", err)
		}
		root, err := doc.Root()
		if err != nil {
			t.Fatalf("root: %v", err)
		}
		if !root.Has("Pages") {
			t.Fatalf("repaired catalog lost /Pages")
		}
		if len(rec.Reported()) == 0 {
			t.Fatalf("expected the missing >> to be reported")
		}
	})

	t.Run("LoggingStrategy", func(t *testing.T) {
		var logs bytes.Buffer
		rec := recovery.NewLoggingStrategy(observability.NewSlogLogger(slog.New(slog.NewTextHandler(&logs, nil))))
		if _, err := parser.NewDocumentParser(parser.Config{Recovery: rec}).Parse(context.Background(), bytes.NewReader(data)); err != nil {
			t.Fatalf("parse: %v", err)
		}
		if !bytes.Contains(logs.Bytes(), []byte("recovering from malformed input")) {
			t.Fatalf("expected a warning, got %q", logs.String())
		}
	})
}

func TestContinue(t *testing.T) {
	cases := map[recovery.Action]bool{
		recovery.ActionFail: false,
		recovery.ActionSkip: true,
		recovery.ActionFix:  true,
		recovery.ActionWarn: false,
	}
	for action, want := range cases {
		if got := recovery.Continue(action); got != want {
			t.Errorf("Continue(%s) = %v, want %v", action, got, want)
		}
	}
}
