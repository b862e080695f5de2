// Package builder draws text and images onto the pages of a document.
//
// A Graphics collects drawing operations for one page. Fonts are embedded
// as Type0 fonts with Identity-H encoding over the TrueType program, images
// become image XObjects with a soft mask when they carry alpha. Nothing is
// written into the page until Close.
package builder

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/wudi/pdfcodec/contentstream"
	"github.com/wudi/pdfcodec/coords"
	"github.com/wudi/pdfcodec/document"
	"github.com/wudi/pdfcodec/fonts"
	"github.com/wudi/pdfcodec/images"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/resources"
)

var ErrClosed = errors.New("graphics already closed")

// Rect is an area in default user space: X and Y locate the lower-left
// corner.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// Color is an RGB color with components in [0,1].
type Color struct {
	R, G, B float64
}

var Black = Color{}

// Font selects a font by family and style at a size in points.
type Font struct {
	Family string
	Style  fonts.Style
	Size   float64
}

// HAlign controls horizontal text alignment within a rectangle.
type HAlign string

const (
	HAlignLeft   HAlign = "left"
	HAlignCenter HAlign = "center"
	HAlignRight  HAlign = "right"
)

// VAlign controls vertical text alignment within a rectangle.
type VAlign string

const (
	VAlignTop    VAlign = "top"
	VAlignMiddle VAlign = "middle"
	VAlignBottom VAlign = "bottom"
)

// Align combines horizontal and vertical alignment.
type Align struct {
	H HAlign
	V VAlign
}

var (
	TopLeft = Align{HAlignLeft, VAlignTop}
	Center  = Align{HAlignCenter, VAlignMiddle}
)

// Option configures a Graphics.
type Option func(*Graphics)

// WithFontResolver makes the Graphics resolve fonts with r instead of the
// process-wide resolver.
func WithFontResolver(r fonts.Resolver) Option {
	return func(g *Graphics) {
		if r != nil {
			g.resolver = r
		}
	}
}

// WithImageSource makes DecodeImage use s instead of the process-wide
// image source.
func WithImageSource(s images.Source) Option {
	return func(g *Graphics) {
		if s != nil {
			g.source = s
		}
	}
}

// Graphics records drawing operations for a single page.
type Graphics struct {
	doc      *raw.Document
	page     document.Page
	resolver fonts.Resolver
	source   images.Source

	content contentstream.Writer
	fill    Color
	fonts   map[*fonts.FontData]*fontResource
	images  map[*images.Image]string
	used    map[string]bool
	closed  bool
}

// NewPage appends a page of the given size to doc and returns a Graphics
// drawing on it. Zero dimensions select A4.
func NewPage(doc *document.Document, width, height float64, opts ...Option) (*Graphics, error) {
	page, err := doc.AddPage(width, height)
	if err != nil {
		return nil, fmt.Errorf("add page: %w", err)
	}
	return newGraphics(doc, page, opts), nil
}

// OnPage returns a Graphics drawing over the existing page at index i.
func OnPage(doc *document.Document, i int, opts ...Option) (*Graphics, error) {
	if doc.Locked() {
		return nil, document.ErrLocked
	}
	page, err := doc.Page(i)
	if err != nil {
		return nil, err
	}
	return newGraphics(doc, page, opts), nil
}

func newGraphics(doc *document.Document, page document.Page, opts []Option) *Graphics {
	g := &Graphics{
		doc:      doc.Raw(),
		page:     page,
		resolver: fonts.CurrentResolver(),
		source:   images.CurrentSource(),
		fonts:    make(map[*fonts.FontData]*fontResource),
		images:   make(map[*images.Image]string),
		used:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Page returns the page being drawn on.
func (g *Graphics) Page() document.Page { return g.page }

// Size returns the width and height of the page's media box.
func (g *Graphics) Size() (float64, float64) {
	box := g.page.MediaBox(g.doc)
	return box[2] - box[0], box[3] - box[1]
}

// SetFillColor sets the color used by subsequent text and rectangles.
func (g *Graphics) SetFillColor(c Color) { g.fill = c }

// FillRectangle paints r with the current fill color.
func (g *Graphics) FillRectangle(r Rect) error {
	if g.closed {
		return ErrClosed
	}
	g.content.Op("q").
		Op("rg", g.fill.operands()...).
		Op("re", contentstream.Nums(r.X, r.Y, r.Width, r.Height)...).
		Op("f").
		Op("Q")
	return g.content.Err()
}

// MeasureString returns the advance width of text set in f.
func (g *Graphics) MeasureString(text string, f Font) (float64, error) {
	fd, err := g.resolver.Resolve(f.Family, f.Style)
	if err != nil {
		return 0, err
	}
	return fonts.TextWidth(text, fd, fontSize(f))
}

// DrawString shapes text with f and places the run inside rect according
// to align. Text that does not fit is not clipped.
func (g *Graphics) DrawString(text string, f Font, rect Rect, align Align) error {
	if g.closed {
		return ErrClosed
	}
	if text == "" {
		return nil
	}
	fd, err := g.resolver.Resolve(f.Family, f.Style)
	if err != nil {
		return fmt.Errorf("draw string: %w", err)
	}
	metrics, err := fd.Metrics()
	if err != nil {
		return fmt.Errorf("draw string: %w", err)
	}
	glyphs, err := fonts.ShapeText(text, fd)
	if err != nil {
		return fmt.Errorf("draw string: %w", err)
	}
	size := fontSize(f)
	res := g.fontFor(fd)

	var advance float64
	for _, gl := range glyphs {
		advance += gl.XAdvance
		res.use(gl.ID, gl.Text)
	}
	width := advance * size / 1000

	x := rect.X
	switch align.H {
	case HAlignCenter:
		x += (rect.Width - width) / 2
	case HAlignRight:
		x += rect.Width - width
	}
	ascent := metrics.Ascent * size / 1000
	descent := metrics.Descent * size / 1000
	var y float64
	switch align.V {
	case VAlignMiddle:
		y = rect.Y + rect.Height/2 - (ascent+descent)/2
	case VAlignBottom:
		y = rect.Y - descent
	default:
		y = rect.Y + rect.Height - ascent
	}

	g.content.Op("q").
		Op("rg", g.fill.operands()...).
		Op("BT").
		Op("Tf", raw.NameLiteral(res.name), contentstream.Num(size)).
		Op("Td", contentstream.Nums(x, y)...).
		Op("TJ", showGlyphs(glyphs, fd)).
		Op("ET").
		Op("Q")
	return g.content.Err()
}

// showGlyphs builds a TJ array of two-byte glyph IDs, with adjustments
// wherever the shaped advance differs from the glyph's own width.
func showGlyphs(glyphs []fonts.ShapedGlyph, fd *fonts.FontData) *raw.ArrayObj {
	arr := raw.NewArray()
	var run []byte
	for _, gl := range glyphs {
		run = append(run, byte(gl.ID>>8), byte(gl.ID))
		if adj := float64(fd.Width(gl.ID)) - gl.XAdvance; math.Abs(adj) > 0.5 {
			arr.Append(raw.HexStr(run))
			arr.Append(contentstream.Num(adj))
			run = nil
		}
	}
	if len(run) > 0 {
		arr.Append(raw.HexStr(run))
	}
	return arr
}

// DecodeImage decodes data with the configured image source.
func (g *Graphics) DecodeImage(data []byte) (*images.Image, error) {
	return g.source.Decode(data)
}

// DrawImage paints img into the rectangle at (x, y). A zero width or
// height uses the image's pixel dimensions. Drawing the same image twice
// reuses its XObject.
func (g *Graphics) DrawImage(img *images.Image, x, y, width, height float64) error {
	if g.closed {
		return ErrClosed
	}
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return errors.New("draw image: empty image")
	}
	name, ok := g.images[img]
	if !ok {
		ref, err := g.addImage(img)
		if err != nil {
			return err
		}
		name = g.resourceName("Im")
		g.images[img] = name
		xobjects, err := g.resourceDict("XObject")
		if err != nil {
			return err
		}
		xobjects.Set(name, raw.RefObj{R: ref})
	}
	if width == 0 {
		width = float64(img.Width)
	}
	if height == 0 {
		height = float64(img.Height)
	}
	m := coords.Place(coords.Rect{LLX: x, LLY: y, URX: x + width, URY: y + height})
	g.content.Op("q").
		Op("cm", contentstream.Nums(m[:]...)...).
		Op("Do", raw.NameLiteral(name)).
		Op("Q")
	return g.content.Err()
}

// Close embeds the fonts used so far and appends the recorded content
// stream to the page. Further drawing fails with ErrClosed. Calling Close
// again does nothing.
func (g *Graphics) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	if len(g.fonts) > 0 {
		fontDict, err := g.resourceDict("Font")
		if err != nil {
			return err
		}
		for _, res := range g.fonts {
			ref, err := res.embed(g.doc)
			if err != nil {
				return fmt.Errorf("embed font %s: %w", res.data.Family, err)
			}
			fontDict.Set(res.name, raw.RefObj{R: ref})
		}
	}
	if err := g.content.Err(); err != nil {
		return err
	}
	if g.content.Len() == 0 {
		return nil
	}
	ref := g.doc.Add(raw.NewStream(raw.Dict(), g.content.Bytes()))
	g.appendContents(ref)
	g.doc.MarkModified(g.page.Ref)
	return nil
}

func (g *Graphics) appendContents(ref raw.ObjectRef) {
	existing, ok := g.page.Dict.Get("Contents")
	if !ok {
		g.page.Dict.Set("Contents", raw.RefObj{R: ref})
		return
	}
	switch v := g.doc.Deref(existing).(type) {
	case *raw.ArrayObj:
		if r, isRef := existing.(raw.RefObj); isRef {
			g.doc.MarkModified(r.R)
		}
		v.Append(raw.RefObj{R: ref})
	case *raw.StreamObj:
		g.page.Dict.Set("Contents", raw.NewArray(existing, raw.RefObj{R: ref}))
	default:
		g.page.Dict.Set("Contents", raw.RefObj{R: ref})
	}
}

// resourceDict returns the named subdictionary of the page resources,
// creating both as direct objects when absent. Resources inherited from
// the page tree are copied onto the page first.
func (g *Graphics) resourceDict(kind string) (*raw.DictObj, error) {
	resObj, ok := g.page.Dict.Get("Resources")
	if !ok {
		resObj = g.inheritedResources()
		g.page.Dict.Set("Resources", resObj)
	}
	resources, ok := raw.DerefDict(g.doc, resObj)
	if !ok {
		return nil, errors.New("page /Resources is not a dictionary")
	}
	if r, isRef := resObj.(raw.RefObj); isRef {
		g.doc.MarkModified(r.R)
	}
	g.doc.MarkModified(g.page.Ref)

	subObj, ok := resources.Get(kind)
	if !ok {
		sub := raw.Dict()
		resources.Set(kind, sub)
		return sub, nil
	}
	sub, ok := raw.DerefDict(g.doc, subObj)
	if !ok {
		return nil, fmt.Errorf("page /Resources /%s is not a dictionary", kind)
	}
	if r, isRef := subObj.(raw.RefObj); isRef {
		g.doc.MarkModified(r.R)
	}
	return sub, nil
}

// inheritedResources copies the resources the page inherits, including the
// categories this package adds to, so that drawing leaves ancestors intact.
func (g *Graphics) inheritedResources() raw.Object {
	res, ok := resources.Of(g.doc, g.page.Dict)
	if !ok {
		return raw.Dict()
	}
	own := res.Clone()
	for _, kind := range []resources.Category{resources.CategoryFont, resources.CategoryXObject} {
		v, _ := res.Get(string(kind))
		if sub, ok := raw.DerefDict(g.doc, v); ok {
			own.Set(string(kind), sub.Clone())
		}
	}
	return own
}

// resourceName returns a name with the given prefix that is neither used
// by this Graphics nor present in the page's resources.
func (g *Graphics) resourceName(prefix string) string {
	for i := 1; ; i++ {
		name := prefix + strconv.Itoa(i)
		if g.used[name] {
			continue
		}
		if g.taken(name) {
			continue
		}
		g.used[name] = true
		return name
	}
}

func (g *Graphics) taken(name string) bool {
	for _, kind := range []resources.Category{resources.CategoryFont, resources.CategoryXObject} {
		if _, err := resources.Lookup(g.doc, g.page.Dict, kind, name); err == nil {
			return true
		}
	}
	return false
}

func fontSize(f Font) float64 {
	if f.Size <= 0 {
		return 12
	}
	return f.Size
}

func (c Color) operands() []raw.Object { return contentstream.Nums(c.R, c.G, c.B) }
