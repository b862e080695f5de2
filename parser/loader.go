package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/scanner"
	"github.com/wudi/pdfcodec/security"
	"github.com/wudi/pdfcodec/xref"
)

// Cache stores materialized objects across loads.
type Cache interface {
	Get(ref raw.ObjectRef) (raw.Object, bool)
	Put(ref raw.ObjectRef, obj raw.Object)
}

// objectLoader materializes objects from the file on demand. It is the
// raw.Source behind parsed documents.
type objectLoader struct {
	mu         sync.Mutex
	reader     io.ReaderAt
	table      xref.Table
	repaired   xref.Table
	repairErr  error
	security   security.Handler
	encryptRef raw.ObjectRef
	recovery   recovery.Strategy
	pipeline   *filters.Pipeline
	cache      Cache
	logger     observability.Logger
	objstm     map[int]map[int]raw.Object
	rd         *raw.ObjectReader

	size      int64
	startxref int64
}

func newObjectLoader(r io.ReaderAt, table xref.Table, cfg Config) *objectLoader {
	l := &objectLoader{
		reader:   r,
		table:    table,
		security: security.NoopHandler(),
		recovery: cfg.Recovery,
		pipeline: filters.NewDefaultPipeline(filters.Limits{
			MaxDecompressedSize: cfg.Limits.MaxDecompressedSize,
			MaxDecodeTime:       cfg.Limits.MaxDecodeTime,
		}),
		cache:  cfg.Cache,
		logger: observability.OrNop(cfg.Logger),
		objstm: make(map[int]map[int]raw.Object),
	}
	l.rd = raw.NewObjectReader(scanner.New(r, scanner.Config{Recovery: cfg.Recovery}), cfg.Recovery)
	l.rd.Location = recovery.Location{Component: "parser"}
	l.rd.Length = l.indirectLength
	return l
}

// Original returns the bytes the document was parsed from.
func (l *objectLoader) Original() (io.ReaderAt, int64) { return l.reader, l.size }

// PrevXRef reports where the newest cross-reference section starts and
// whether it is a stream. ok is false when the offsets came from a repair
// scan and cannot be chained with /Prev.
func (l *objectLoader) PrevXRef() (offset int64, stream bool, ok bool) {
	if l.startxref <= 0 || l.table.Type() == "repaired" {
		return 0, false, false
	}
	return l.startxref, l.table.Type() == "xref-stream", true
}

// Security returns the handler that decrypts the document.
func (l *objectLoader) Security() security.Handler { return l.security }

// EncryptRef returns the reference of the /Encrypt dictionary, or the zero
// ref when it is direct or absent.
func (l *objectLoader) EncryptRef() raw.ObjectRef { return l.encryptRef }

// Refs lists every object the cross-reference data knows about.
func (l *objectLoader) Refs() []raw.ObjectRef {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []raw.ObjectRef
	for _, num := range l.table.Objects() {
		if num == 0 {
			continue
		}
		e, _ := l.table.Entry(num)
		gen := 0
		if e.Type == xref.EntryInUse {
			gen = e.Gen
		}
		out = append(out, raw.ObjectRef{Num: num, Gen: gen})
	}
	return out
}

func (l *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if l.cache != nil {
		if obj, ok := l.cache.Get(ref); ok {
			return obj, nil
		}
	}
	l.mu.Lock()
	obj, err := l.load(ctx, ref)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		l.cache.Put(ref, obj)
	}
	return obj, nil
}

func (l *objectLoader) load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := l.table.Entry(ref.Num)
	if !ok || e.Type == xref.EntryFree {
		return nil, &raw.BrokenReferenceError{Ref: ref}
	}
	var err error
	switch e.Type {
	case xref.EntryInUse:
		if e.Gen != ref.Gen {
			return nil, &raw.BrokenReferenceError{Ref: ref}
		}
		var obj raw.Object
		if obj, err = l.readAt(ref, e.Offset); err == nil {
			return obj, nil
		}
	case xref.EntryCompressed:
		if ref.Gen != 0 {
			return nil, &raw.BrokenReferenceError{Ref: ref}
		}
		var obj raw.Object
		if obj, err = l.fromObjectStream(ctx, ref, e.Stream); err == nil {
			return obj, nil
		}
	}
	return l.fallback(ctx, ref, err)
}

// fallback retries a failed lookup against a table rebuilt by scanning the
// whole file.
func (l *objectLoader) fallback(ctx context.Context, ref raw.ObjectRef, cause error) (raw.Object, error) {
	if l.recovery == nil {
		return nil, cause
	}
	loc := recovery.Location{Component: "parser", ObjectNum: ref.Num, ObjectGen: ref.Gen, ByteOffset: -1}
	if !recovery.Continue(l.recovery.OnError(ctx, cause, loc)) {
		return nil, cause
	}
	if l.repaired == nil && l.repairErr == nil {
		l.repaired, l.repairErr = xref.Repair(ctx, l.reader)
		if l.repairErr == nil {
			l.logger.Warn("object lookup fell back to linear scan",
				observability.Int("object", ref.Num),
				observability.Int("objects_found", len(l.repaired.Objects())))
		}
	}
	if l.repairErr != nil {
		return nil, cause
	}
	e, ok := l.repaired.Entry(ref.Num)
	if !ok {
		return nil, &raw.BrokenReferenceError{Ref: ref, Err: cause}
	}
	switch e.Type {
	case xref.EntryInUse:
		return l.readAt(raw.ObjectRef{Num: ref.Num, Gen: e.Gen}, e.Offset)
	case xref.EntryCompressed:
		return l.fromObjectStream(ctx, ref, e.Stream)
	}
	return nil, &raw.BrokenReferenceError{Ref: ref, Err: cause}
}

func (l *objectLoader) readAt(ref raw.ObjectRef, off int64) (raw.Object, error) {
	if err := l.rd.Seek(off); err != nil {
		return nil, err
	}
	got, obj, err := l.rd.ReadIndirect()
	if err != nil {
		return nil, fmt.Errorf("object %s at offset %d: %w", ref, off, err)
	}
	if got != ref {
		return nil, fmt.Errorf("object header %s at offset %d does not match %s", got, off, ref)
	}
	return l.decrypt(ref, obj), nil
}

// indirectLength resolves an indirect /Length with a private reader so the
// shared reader keeps its position.
func (l *objectLoader) indirectLength(ref raw.ObjectRef) (int64, bool) {
	off, gen, ok := l.table.Lookup(ref.Num)
	if !ok || gen != ref.Gen {
		return 0, false
	}
	rd := raw.NewObjectReader(scanner.New(l.reader, scanner.Config{}), nil)
	if err := rd.Seek(off); err != nil {
		return 0, false
	}
	_, obj, err := rd.ReadIndirect()
	if err != nil {
		return 0, false
	}
	n, ok := obj.(raw.NumberObj)
	if !ok || !n.IsInteger() {
		return 0, false
	}
	return n.Int(), true
}

// fromObjectStream returns a member of an object stream. Each stream is
// decoded once and its members cached.
func (l *objectLoader) fromObjectStream(ctx context.Context, ref raw.ObjectRef, streamNum int) (raw.Object, error) {
	members, ok := l.objstm[streamNum]
	if !ok {
		var err error
		members, err = l.decodeObjectStream(ctx, streamNum)
		if err != nil {
			return nil, err
		}
		l.objstm[streamNum] = members
	}
	obj, ok := members[ref.Num]
	if !ok {
		return nil, fmt.Errorf("object %d not found in object stream %d", ref.Num, streamNum)
	}
	return obj, nil
}

func (l *objectLoader) decodeObjectStream(ctx context.Context, streamNum int) (map[int]raw.Object, error) {
	off, gen, ok := l.table.Lookup(streamNum)
	if !ok && l.repaired != nil {
		off, gen, ok = l.repaired.Lookup(streamNum)
	}
	if !ok {
		return nil, fmt.Errorf("object stream %d has no offset", streamNum)
	}
	obj, err := l.readAt(raw.ObjectRef{Num: streamNum, Gen: gen}, off)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("object %d is not an object stream", streamNum)
	}
	n, _ := st.Dict.GetInt("N")
	first, _ := st.Dict.GetInt("First")
	data, err := l.pipeline.DecodeStream(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("decode object stream %d: %w", streamNum, err)
	}
	if first < 0 || first > int64(len(data)) {
		return nil, fmt.Errorf("object stream %d: /First %d exceeds data", streamNum, first)
	}

	hs := scanner.New(bytes.NewReader(data[:first]), scanner.Config{})
	var pairs []int64
	for int64(len(pairs)) < 2*n {
		tok, err := hs.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if tok.Type == scanner.TokenNumber && tok.IsInt {
			pairs = append(pairs, tok.Int)
		}
	}

	body := bytes.NewReader(data[first:])
	members := make(map[int]raw.Object, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		num, rel := int(pairs[i]), pairs[i+1]
		rd := raw.NewObjectReader(scanner.New(body, scanner.Config{Recovery: l.recovery}), l.recovery)
		rd.Location = recovery.Location{Component: "objstm", ObjectNum: num}
		if err := rd.Seek(rel); err != nil {
			return nil, err
		}
		member, err := rd.ReadObject()
		if err != nil {
			return nil, fmt.Errorf("object stream %d member %d: %w", streamNum, num, err)
		}
		members[num] = member
	}
	l.logger.Debug("object stream loaded",
		observability.Int("stream", streamNum),
		observability.Int("members", len(members)))
	return members, nil
}

// decrypt prepares an object read from the file. Strings are decrypted in
// place; stream payloads are decrypted on first access. The encryption
// dictionary and xref streams are stored in clear.
func (l *objectLoader) decrypt(ref raw.ObjectRef, obj raw.Object) raw.Object {
	if !l.security.IsEncrypted() || ref == l.encryptRef {
		return obj
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return l.decryptValue(ref, obj)
	}
	typ, _ := st.Dict.GetName("Type")
	if typ == "XRef" {
		return obj
	}
	l.decryptValue(ref, st.Dict)
	payload, _ := st.Data()
	class := security.DataClassStream
	if typ == "Metadata" {
		class = security.DataClassMetadataStream
	}
	filter := cryptFilterName(st.Dict)
	sec := l.security
	return raw.NewEncryptedStream(st.Dict, payload, func(b []byte) ([]byte, error) {
		return sec.DecryptWithFilter(ref.Num, ref.Gen, b, class, filter)
	})
}

// decryptValue replaces strings nested in obj with their plaintext. Strings
// of a locked document keep their ciphertext.
func (l *objectLoader) decryptValue(ref raw.ObjectRef, obj raw.Object) raw.Object {
	switch v := obj.(type) {
	case raw.StringObj:
		plain, err := l.security.Decrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return v
		}
		return raw.StringObj{Bytes: plain, Hex: v.Hex}
	case *raw.DictObj:
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			v.Set(k, l.decryptValue(ref, child))
		}
	case *raw.ArrayObj:
		for i, item := range v.Items {
			v.Items[i] = l.decryptValue(ref, item)
		}
	}
	return obj
}

// cryptFilterName returns the crypt filter selected by a /Crypt entry of
// the stream's filter chain, or "" for the document default.
func cryptFilterName(dict *raw.DictObj) string {
	names, params := filters.ExtractFilters(dict)
	for i, name := range names {
		if name != "Crypt" {
			continue
		}
		if n, ok := params[i].GetName("Name"); ok {
			return n
		}
		return "Identity"
	}
	return ""
}
