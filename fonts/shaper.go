package fonts

import (
	"bytes"
	"fmt"
	"sort"
	"unicode"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// ShapedGlyph is one positioned glyph of a shaped run. Advances and offsets
// are in 1/1000 em.
type ShapedGlyph struct {
	ID       int
	Cluster  int
	XAdvance float64
	YAdvance float64
	XOffset  float64
	YOffset  float64
	// Text is the source text the glyph stands for. Glyphs after the first
	// one of a cluster carry none.
	Text string
}

// ShapeText shapes text with f using the HarfBuzz shaper. When the font
// cannot be shaped the cmap is used glyph by glyph.
func ShapeText(text string, f *FontData) ([]ShapedGlyph, error) {
	if _, err := f.Metrics(); err != nil {
		return nil, err
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	face, err := gofont.ParseTTF(bytes.NewReader(f.Data))
	if err != nil {
		return f.mapRunes(runes), nil
	}

	script := DetectScript(runes)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      face,
		// 1 em = 1000 units
		Size:     fixed.Int26_6(1000 * 64),
		Script:   script,
		Language: language.DefaultLanguage(),
	}
	output := (&shaping.HarfbuzzShaper{}).Shape(input)

	result := make([]ShapedGlyph, 0, len(output.Glyphs))
	for _, g := range output.Glyphs {
		result = append(result, ShapedGlyph{
			ID:       int(g.GlyphID),
			Cluster:  int(g.ClusterIndex),
			XAdvance: float64(g.XAdvance) / 64.0,
			YAdvance: float64(g.YAdvance) / 64.0,
			XOffset:  float64(g.XOffset) / 64.0,
			YOffset:  float64(g.YOffset) / 64.0,
		})
	}
	assignClusterText(result, runes)
	return result, nil
}

func (f *FontData) mapRunes(runes []rune) []ShapedGlyph {
	out := make([]ShapedGlyph, len(runes))
	for i, r := range runes {
		gid := f.GlyphIndex(r)
		out[i] = ShapedGlyph{ID: gid, Cluster: i, XAdvance: float64(f.Width(gid)), Text: string(r)}
	}
	return out
}

// assignClusterText gives the first glyph of each cluster the runes from
// its cluster start up to the next cluster.
func assignClusterText(glyphs []ShapedGlyph, runes []rune) {
	starts := make([]int, 0, len(glyphs))
	seen := make(map[int]bool)
	for _, g := range glyphs {
		if !seen[g.Cluster] {
			seen[g.Cluster] = true
			starts = append(starts, g.Cluster)
		}
	}
	sort.Ints(starts)
	end := func(c int) int {
		i := sort.SearchInts(starts, c+1)
		if i < len(starts) {
			return starts[i]
		}
		return len(runes)
	}
	done := make(map[int]bool)
	for i := range glyphs {
		c := glyphs[i].Cluster
		if done[c] || c < 0 || c >= len(runes) {
			continue
		}
		done[c] = true
		glyphs[i].Text = string(runes[c:end(c)])
	}
}

// TextWidth returns the advance of text set in f at size points.
func TextWidth(text string, f *FontData, size float64) (float64, error) {
	glyphs, err := ShapeText(text, f)
	if err != nil {
		return 0, fmt.Errorf("measure: %w", err)
	}
	var w float64
	for _, g := range glyphs {
		w += g.XAdvance
	}
	return w * size / 1000, nil
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

// DetectScript returns the script most runes belong to, Latin when none
// is recognized.
func DetectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	maxCount := 0
	bestScript := language.Latin

	for _, r := range runes {
		script := scriptFromRune(r)
		if script == language.Unknown {
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			bestScript = script
		}
	}
	return bestScript
}

func scriptFromRune(r rune) language.Script {
	switch {
	case unicode.Is(unicode.Arabic, r):
		return language.Arabic
	case unicode.Is(unicode.Hebrew, r):
		return language.Hebrew
	case unicode.Is(unicode.Latin, r):
		return language.Latin
	case unicode.Is(unicode.Cyrillic, r):
		return language.Cyrillic
	case unicode.Is(unicode.Greek, r):
		return language.Greek
	case unicode.Is(unicode.Thai, r):
		return language.Thai
	case unicode.Is(unicode.Devanagari, r):
		return language.Devanagari
	case unicode.Is(unicode.Bengali, r):
		return language.Bengali
	case unicode.Is(unicode.Gurmukhi, r):
		return language.Gurmukhi
	case unicode.Is(unicode.Gujarati, r):
		return language.Gujarati
	case unicode.Is(unicode.Oriya, r):
		return language.Oriya
	case unicode.Is(unicode.Tamil, r):
		return language.Tamil
	case unicode.Is(unicode.Telugu, r):
		return language.Telugu
	case unicode.Is(unicode.Kannada, r):
		return language.Kannada
	case unicode.Is(unicode.Malayalam, r):
		return language.Malayalam
	case unicode.Is(unicode.Sinhala, r):
		return language.Sinhala
	case unicode.Is(unicode.Lao, r):
		return language.Lao
	case unicode.Is(unicode.Tibetan, r):
		return language.Tibetan
	case unicode.Is(unicode.Myanmar, r):
		return language.Myanmar
	case unicode.Is(unicode.Khmer, r):
		return language.Khmer
	case unicode.Is(unicode.Han, r):
		return language.Han
	case unicode.Is(unicode.Hiragana, r):
		return language.Hiragana
	case unicode.Is(unicode.Katakana, r):
		return language.Katakana
	case unicode.Is(unicode.Hangul, r):
		return language.Hangul
	}
	return language.Unknown
}
