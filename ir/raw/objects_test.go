package raw

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDictKeepsInsertionOrder(t *testing.T) {
	d := Dict()
	d.Set("Type", NameLiteral("Catalog"))
	d.Set("Pages", Ref(2, 0))
	d.Set("AcroForm", Dict())
	d.Set("Pages", Ref(3, 0))

	want := []string{"Type", "Pages", "AcroForm"}
	if diff := cmp.Diff(want, d.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if ref, _ := d.GetRef("Pages"); ref.Num != 3 {
		t.Fatalf("replace did not update value: %v", ref)
	}

	if !d.Delete("Pages") {
		t.Fatalf("delete reported missing key")
	}
	if d.Delete("Pages") {
		t.Fatalf("second delete should report false")
	}
	d.Set("Pages", Ref(4, 0))
	want = []string{"Type", "AcroForm", "Pages"}
	if diff := cmp.Diff(want, d.Keys()); diff != "" {
		t.Fatalf("keys after re-add mismatch (-want +got):\n%s", diff)
	}
}

func TestDictNilValueDeletes(t *testing.T) {
	d := Dict()
	d.Set("AP", Dict())
	d.Set("AP", nil)
	if d.Has("AP") || d.Len() != 0 {
		t.Fatalf("nil value should remove key")
	}
}

func TestDictTypedGetters(t *testing.T) {
	d := Dict()
	d.Set("N", NumberInt(7))
	d.Set("B", Bool(true))
	d.Set("S", Str([]byte("abc")))
	d.Set("Nm", NameLiteral("/Foo"))

	if n, ok := d.GetInt("N"); !ok || n != 7 {
		t.Fatalf("GetInt = %d, %v", n, ok)
	}
	if b, ok := d.GetBool("B"); !ok || !b {
		t.Fatalf("GetBool = %v, %v", b, ok)
	}
	if s, ok := d.GetString("S"); !ok || string(s) != "abc" {
		t.Fatalf("GetString = %q, %v", s, ok)
	}
	if n, ok := d.GetName("Nm"); !ok || n != "Foo" {
		t.Fatalf("GetName = %q, %v", n, ok)
	}
	if _, ok := d.GetInt("B"); ok {
		t.Fatalf("GetInt on boolean should fail")
	}
}

func TestStreamDecryptsOnFirstAccess(t *testing.T) {
	calls := 0
	s := NewEncryptedStream(Dict(), []byte("cipher"), func(b []byte) ([]byte, error) {
		calls++
		return []byte("plain"), nil
	})
	if !s.Pending() {
		t.Fatalf("expected pending stream")
	}
	for i := 0; i < 2; i++ {
		data, err := s.Data()
		if err != nil {
			t.Fatalf("data: %v", err)
		}
		if string(data) != "plain" {
			t.Fatalf("unexpected payload %q", data)
		}
	}
	if calls != 1 {
		t.Fatalf("decrypt called %d times, want 1", calls)
	}
}

func TestNewStreamSetsLength(t *testing.T) {
	s := NewStream(Dict(), []byte("hello"))
	if n, _ := s.Dict.GetInt("Length"); n != 5 {
		t.Fatalf("Length = %d", n)
	}
}
