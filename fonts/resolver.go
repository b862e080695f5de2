package fonts

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
)

var goResolver = &GoResolver{}

// DefaultResolver returns the built-in Go font resolver.
func DefaultResolver() Resolver { return goResolver }

// GoResolver serves the Go font family. Monospace family names select Go
// Mono; every other family falls back to the proportional Go fonts.
type GoResolver struct {
	mu    sync.Mutex
	cache map[string]*FontData
}

var monoFamilies = map[string]bool{
	"go mono": true, "gomono": true, "monospace": true, "mono": true,
	"courier": true, "courier new": true, "consolas": true, "menlo": true,
}

func (g *GoResolver) Resolve(family string, style Style) (*FontData, error) {
	mono := monoFamilies[strings.ToLower(strings.TrimSpace(family))]
	name := "Go"
	if mono {
		name = "Go Mono"
	}
	key := fmt.Sprintf("%s/%d", name, style&BoldItalic)

	g.mu.Lock()
	defer g.mu.Unlock()
	if fd, ok := g.cache[key]; ok {
		return fd, nil
	}
	fd, err := NewFontData(name, style&BoldItalic, goFontProgram(mono, style))
	if err != nil {
		return nil, err
	}
	if g.cache == nil {
		g.cache = make(map[string]*FontData)
	}
	g.cache[key] = fd
	return fd, nil
}

func goFontProgram(mono bool, style Style) []byte {
	switch {
	case mono && style&BoldItalic == BoldItalic:
		return gomonobolditalic.TTF
	case mono && style&Bold != 0:
		return gomonobold.TTF
	case mono && style&Italic != 0:
		return gomonoitalic.TTF
	case mono:
		return gomono.TTF
	case style&BoldItalic == BoldItalic:
		return gobolditalic.TTF
	case style&Bold != 0:
		return gobold.TTF
	case style&Italic != 0:
		return goitalic.TTF
	}
	return goregular.TTF
}

// StaticResolver serves fonts registered with Add. Lookups of unknown
// families go to Fallback, or fail with ErrFontNotFound when it is nil.
type StaticResolver struct {
	Fallback Resolver

	mu    sync.RWMutex
	fonts map[string]*FontData
}

func NewStaticResolver(fallback Resolver) *StaticResolver {
	return &StaticResolver{Fallback: fallback, fonts: make(map[string]*FontData)}
}

func staticKey(family string, style Style) string {
	return fmt.Sprintf("%s/%d", strings.ToLower(strings.TrimSpace(family)), style)
}

// Add parses data and registers it under family and style.
func (s *StaticResolver) Add(family string, style Style, data []byte) error {
	fd, err := NewFontData(family, style, data)
	if err != nil {
		return fmt.Errorf("font %s %s: %w", family, style, err)
	}
	s.mu.Lock()
	s.fonts[staticKey(family, style)] = fd
	s.mu.Unlock()
	return nil
}

func (s *StaticResolver) Resolve(family string, style Style) (*FontData, error) {
	s.mu.RLock()
	fd, ok := s.fonts[staticKey(family, style)]
	if !ok && style != Regular {
		fd, ok = s.fonts[staticKey(family, Regular)]
	}
	s.mu.RUnlock()
	if ok {
		return fd, nil
	}
	if s.Fallback != nil {
		return s.Fallback.Resolve(family, style)
	}
	return nil, fmt.Errorf("%w: %s %s", ErrFontNotFound, family, style)
}
