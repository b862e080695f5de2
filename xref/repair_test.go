package xref_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/wudi/pdfcodec/xref"
)

func TestResolverRepairsCorruptXRef(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n%%EOF\n")
	r := &readerAt{data: buf.Bytes()}

	if _, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), r); err == nil {
		t.Fatal("expected error on missing startxref")
	}

	resolver := xref.NewResolver(xref.ResolverConfig{Recovery: fixRecovery{}})
	table, err := resolver.Resolve(context.Background(), r)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if !resolver.Repaired() || table.Type() != "repaired" {
		t.Fatalf("expected repaired table, got %s", table.Type())
	}
	if off, _, ok := table.Lookup(1); !ok || off != int64(off1) {
		t.Errorf("object 1: got %d, want %d, ok=%v", off, off1, ok)
	}
	if off, _, ok := table.Lookup(2); !ok || off != int64(off2) {
		t.Errorf("object 2: got %d, want %d, ok=%v", off, off2, ok)
	}
	if size, _ := table.Trailer().GetInt("Size"); size != 3 {
		t.Errorf("size = %d", size)
	}
}

func TestRepairFindsCatalogWithoutTrailer(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("3 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")
	buf.WriteString("7 0 obj\n<< /Type /Catalog /Pages 3 0 R >>\nendobj\n")

	table, err := xref.Repair(context.Background(), &readerAt{data: buf.Bytes()})
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	root, ok := table.Trailer().GetRef("Root")
	if !ok || root.Num != 7 {
		t.Fatalf("root = %v, %v", root, ok)
	}
	if size, _ := table.Trailer().GetInt("Size"); size != 8 {
		t.Fatalf("size = %d, want 8", size)
	}
}

func TestRepairLaterDefinitionWins(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	buf.WriteString("2 0 obj\n(first)\nendobj\n")
	second := buf.Len()
	buf.WriteString("2 0 obj\n(second)\nendobj\n")

	table, err := xref.Repair(context.Background(), &readerAt{data: buf.Bytes()})
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if off, _, _ := table.Lookup(2); off != int64(second) {
		t.Fatalf("object 2 at %d, want %d", off, second)
	}
}

func TestRepairRegistersObjectStreamMembers(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	header := "8 0 9 6 "
	decoded := header + "(one) (two)"
	fmt.Fprintf(buf, "5 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n",
		len(header), len(decoded), decoded)

	table, err := xref.Repair(context.Background(), &readerAt{data: buf.Bytes()})
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if stream, idx, ok := table.ObjStream(9); !ok || stream != 5 || idx != 1 {
		t.Fatalf("object 9 = (%d,%d,%v)", stream, idx, ok)
	}
}

func TestRepairFailsWithoutObjects(t *testing.T) {
	if _, err := xref.Repair(context.Background(), &readerAt{data: []byte("%PDF-1.4\nnothing here\n")}); err == nil {
		t.Fatal("expected error")
	}
}
