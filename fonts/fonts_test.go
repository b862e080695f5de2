package fonts

import (
	"errors"
	"sync"
	"testing"

	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

func TestMetrics(t *testing.T) {
	fd, err := NewFontData("Go", Regular, goregular.TTF)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m, err := fd.Metrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.PostScriptName == "" || m.UnitsPerEm != 2048 {
		t.Fatalf("PostScript name %q, units per em %d", m.PostScriptName, m.UnitsPerEm)
	}
	if m.Ascent <= 0 || m.Descent >= 0 {
		t.Fatalf("ascent %v descent %v", m.Ascent, m.Descent)
	}
	if m.BBox[0] >= m.BBox[2] || m.BBox[1] >= m.BBox[3] {
		t.Fatalf("bbox %v", m.BBox)
	}
	if fd.Width(fd.GlyphIndex('W')) <= fd.Width(fd.GlyphIndex('i')) {
		t.Fatalf("W should be wider than i in a proportional font")
	}
}

func TestNewFontDataRejectsGarbage(t *testing.T) {
	if _, err := NewFontData("x", Regular, nil); err == nil {
		t.Fatalf("expected error for empty data")
	}
	if _, err := NewFontData("x", Regular, []byte("not a font")); err == nil {
		t.Fatalf("expected error for garbage data")
	}
}

func TestGoResolverFamilies(t *testing.T) {
	r := &GoResolver{}
	mono, err := r.Resolve("Courier New", Regular)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if mono.Family != "Go Mono" {
		t.Fatalf("monospace family resolved to %q", mono.Family)
	}
	if w1, w2 := mono.Width(mono.GlyphIndex('W')), mono.Width(mono.GlyphIndex('i')); w1 != w2 {
		t.Fatalf("mono widths differ: %d %d", w1, w2)
	}
	again, _ := r.Resolve("courier new", Regular)
	if again != mono {
		t.Fatalf("resolver should cache font data")
	}
	other, _ := r.Resolve("Tinos", Bold)
	if other.Family != "Go" || other.Style != Bold {
		t.Fatalf("fallback resolved to %s %s", other.Family, other.Style)
	}
}

func TestStaticResolver(t *testing.T) {
	s := NewStaticResolver(nil)
	if err := s.Add("Tinos", Regular, gomono.TTF); err != nil {
		t.Fatalf("add: %v", err)
	}
	fd, err := s.Resolve("TINOS", Italic)
	if err != nil {
		t.Fatalf("style should fall back to regular: %v", err)
	}
	if fd.Family != "Tinos" {
		t.Fatalf("family %q", fd.Family)
	}
	if _, err := s.Resolve("Arial", Regular); !errors.Is(err, ErrFontNotFound) {
		t.Fatalf("expected ErrFontNotFound, got %v", err)
	}
	s.Fallback = DefaultResolver()
	if _, err := s.Resolve("Arial", Regular); err != nil {
		t.Fatalf("fallback: %v", err)
	}
}

func TestSetResolverFirstWins(t *testing.T) {
	t.Cleanup(func() { global.Store(nil) })
	global.Store(nil)

	if CurrentResolver() != DefaultResolver() {
		t.Fatalf("default resolver expected before registration")
	}
	first := NewStaticResolver(nil)
	var wg sync.WaitGroup
	wins := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := first
			if i > 0 {
				r = NewStaticResolver(nil)
			}
			wins <- SetResolver(r)
		}(i)
	}
	wg.Wait()
	close(wins)
	n := 0
	for w := range wins {
		if w {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("%d registrations succeeded, want 1", n)
	}
	if SetResolver(NewStaticResolver(nil)) {
		t.Fatalf("later registration must not replace the resolver")
	}
	if SetResolver(nil) {
		t.Fatalf("nil resolver must be rejected")
	}
}
