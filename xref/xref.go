package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
)

// EntryType distinguishes the three kinds of cross-reference entries.
type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

// Entry is one cross-reference record. For free entries Offset holds the
// next free object number; for compressed entries Stream and Index locate
// the object inside an object stream.
type Entry struct {
	Type   EntryType
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table holds object locations for a document or for one update section.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	ObjStream(objNum int) (stream int, index int, found bool)
	Entry(objNum int) (Entry, bool)
	Objects() []int
	Type() string
	Trailer() *raw.DictObj
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, r io.ReaderAt) (Table, error)
	Linearized() bool
	Incremental() []Table
	Trailer() *raw.DictObj
	StartXRef() int64
	Repaired() bool
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
}

// NewResolver returns a resolver for classic tables, xref streams and hybrid files.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 50
	}
	return &resolver{cfg: cfg, startxref: -1}
}

type resolver struct {
	cfg        ResolverConfig
	sections   []*table
	merged     *table
	linearized bool
	repaired   bool
	startxref  int64
}

func (res *resolver) Linearized() bool { return res.linearized }
func (res *resolver) Repaired() bool   { return res.repaired }
func (res *resolver) StartXRef() int64 { return res.startxref }

func (res *resolver) Incremental() []Table {
	out := make([]Table, len(res.sections))
	for i, s := range res.sections {
		out[i] = s
	}
	return out
}

func (res *resolver) Trailer() *raw.DictObj {
	if res.merged == nil {
		return nil
	}
	return res.merged.trailer
}

func (res *resolver) Resolve(ctx context.Context, r io.ReaderAt) (Table, error) {
	data := readAll(r)
	res.linearized = detectLinearized(data)

	merged, err := res.resolveTables(ctx, r, data)
	if err != nil {
		if !res.tolerate(err) {
			return nil, err
		}
		repaired, rerr := repair(ctx, data)
		if rerr != nil {
			return nil, fmt.Errorf("%v; repair: %w", err, rerr)
		}
		res.repaired = true
		res.sections = []*table{repaired}
		res.merged = repaired
		return repaired, nil
	}
	res.merged = merged
	return merged, nil
}

func (res *resolver) resolveTables(ctx context.Context, r io.ReaderAt, data []byte) (*table, error) {
	start, err := findStartXRef(r, int64(len(data)))
	if err != nil {
		return nil, err
	}
	res.startxref = start
	sections, err := res.loadChain(ctx, data, start)
	if err != nil {
		return nil, err
	}
	res.sections = sections
	merged := merge(sections)
	if err := validate(merged, int64(len(data))); err != nil {
		return nil, err
	}
	return merged, nil
}

func (res *resolver) tolerate(err error) bool {
	if res.cfg.Recovery == nil {
		return false
	}
	return recovery.Continue(res.cfg.Recovery.OnError(context.Background(), err, recovery.Location{Component: "xref"}))
}

// loadChain follows /Prev links from the newest section to the oldest.
func (res *resolver) loadChain(ctx context.Context, data []byte, start int64) ([]*table, error) {
	seen := make(map[int64]bool)
	var sections []*table
	off := start
	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= res.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("xref chain deeper than %d sections", res.cfg.MaxXRefDepth)
		}
		if seen[off] {
			break
		}
		seen[off] = true
		sec, err := parseSectionAt(ctx, data, off)
		if err != nil {
			return nil, err
		}
		if xs, ok := sec.trailer.GetInt("XRefStm"); ok && sec.kind == "table" && !seen[xs] {
			seen[xs] = true
			if hybrid, err := parseSectionAt(ctx, data, xs); err == nil {
				for num, e := range hybrid.entries {
					if cur, ok := sec.entries[num]; !ok || cur.Type == EntryFree {
						sec.entries[num] = e
					}
				}
			}
		}
		sections = append(sections, sec)
		prev, ok := sec.trailer.GetInt("Prev")
		if !ok {
			break
		}
		off = prev
	}
	return sections, nil
}

// parseSectionAt parses a classic table or xref stream at off. Files with
// junk before the header are retried with the offset shifted by the junk length.
func parseSectionAt(ctx context.Context, data []byte, off int64) (*table, error) {
	sec, err := parseSection(ctx, data, off)
	if err == nil {
		return sec, nil
	}
	if shift := int64(bytes.Index(data, []byte("%PDF-"))); shift > 0 {
		if sec, err2 := parseSection(ctx, data, off+shift); err2 == nil {
			return sec, nil
		}
	}
	return nil, err
}

func parseSection(ctx context.Context, data []byte, off int64) (*table, error) {
	if off < 0 || off >= int64(len(data)) {
		return nil, fmt.Errorf("xref offset out of range: %d", off)
	}
	p := off
	for p < int64(len(data)) && isSpace(data[p]) {
		p++
	}
	if bytes.HasPrefix(data[p:], []byte("xref")) {
		return parseClassic(data, p)
	}
	return parseStream(ctx, data, p)
}

func merge(sections []*table) *table {
	merged := &table{entries: make(map[int]Entry), kind: sections[0].kind}
	for _, sec := range sections {
		for num, e := range sec.entries {
			if _, ok := merged.entries[num]; !ok {
				merged.entries[num] = e
			}
		}
	}
	trailer := raw.Dict()
	for i := len(sections) - 1; i >= 0; i-- {
		t := sections[i].trailer
		for _, k := range t.Keys() {
			v, _ := t.Get(k)
			trailer.Set(k, v)
		}
	}
	for _, k := range []string{"Prev", "XRefStm", "Type", "W", "Index", "Filter", "DecodeParms", "Length"} {
		trailer.Delete(k)
	}
	merged.trailer = trailer
	return merged
}

func validate(t *table, fileSize int64) error {
	if _, ok := t.trailer.Get("Root"); !ok {
		return errors.New("trailer has no /Root")
	}
	size, ok := t.trailer.GetInt("Size")
	if !ok {
		return errors.New("trailer has no /Size")
	}
	for num, e := range t.entries {
		if e.Type == EntryFree {
			continue
		}
		if int64(num) >= size {
			return fmt.Errorf("trailer /Size %d does not cover object %d", size, num)
		}
		if e.Type == EntryInUse && (e.Offset <= 0 || e.Offset >= fileSize) {
			return fmt.Errorf("object %d offset %d out of range", num, e.Offset)
		}
	}
	return nil
}

// tailChunk is the window used when scanning backwards for startxref.
const tailChunk = 1024

var startXRefKeyword = []byte("startxref")

// findStartXRef scans backwards from the end of the file, one tailChunk at a
// time, for the last startxref keyword and returns the offset that follows
// it. Consecutive windows overlap so a keyword split across a chunk boundary
// is still found.
func findStartXRef(r io.ReaderAt, size int64) (int64, error) {
	overlap := int64(len(startXRefKeyword) - 1)
	buf := make([]byte, tailChunk+overlap)
	for end := size; end > 0; end -= tailChunk {
		start := end - tailChunk
		if start < 0 {
			start = 0
		}
		hi := end + overlap
		if hi > size {
			hi = size
		}
		n, err := r.ReadAt(buf[:hi-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read tail at %d: %w", start, err)
		}
		if idx := bytes.LastIndex(buf[:n], startXRefKeyword); idx >= 0 {
			return readStartXRefValue(r, start+int64(idx+len(startXRefKeyword)), size)
		}
	}
	return 0, errors.New("startxref not found")
}

// readStartXRefValue parses the decimal offset following the keyword at pos.
func readStartXRefValue(r io.ReaderAt, pos, size int64) (int64, error) {
	rest := make([]byte, 64)
	n, err := r.ReadAt(rest, pos)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read startxref value: %w", err)
	}
	rest = rest[:n]
	i := 0
	for i < len(rest) && isSpace(rest[i]) {
		i++
	}
	j := i
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	if i == j {
		return 0, errors.New("startxref has no offset")
	}
	off, err := strconv.ParseInt(string(rest[i:j]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	if off <= 0 || off >= size {
		return 0, fmt.Errorf("xref offset out of range: %d", off)
	}
	return off, nil
}

func detectLinearized(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	i := bytes.Index(head, []byte(" obj"))
	if i < 0 {
		return false
	}
	end := bytes.Index(head[i:], []byte("endobj"))
	if end < 0 {
		return false
	}
	return bytes.Contains(head[i:i+end], []byte("/Linearized"))
}

func isSpace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

type table struct {
	entries map[int]Entry
	trailer *raw.DictObj
	kind    string
	offset  int64
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Type != EntryInUse {
		return 0, 0, false
	}
	return e.Offset, e.Gen, true
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Type != EntryCompressed {
		return 0, 0, false
	}
	return e.Stream, e.Index, true
}

func (t *table) Entry(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok
}

// Objects returns the numbers of all in-use and compressed objects.
func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Type != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string { return t.kind }

func (t *table) Trailer() *raw.DictObj { return t.trailer }

func readAll(r io.ReaderAt) []byte {
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	tmp := make([]byte, chunk)
	for off := int64(0); ; off += chunk {
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil || int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
