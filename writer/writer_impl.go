package writer

import (
	"bufio"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/security"
	"github.com/wudi/pdfcodec/xref"
)

type impl struct{ interceptors []Interceptor }

// trailer keys owned by the writer or by xref streams
var droppedTrailerKeys = []string{
	"Size", "Prev", "XRefStm", "ID", "Encrypt",
	"Type", "W", "Index", "Filter", "DecodeParms", "Length",
}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	b := fmt.Appendf(nil, "%d %d obj\n", ref.Num, ref.Gen)
	b, err := appendObject(b, obj)
	if err != nil {
		return nil, err
	}
	return append(b, "\nendobj\n"...), nil
}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) (err error) {
	logger := observability.OrNop(cfg.Logger)
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	ctx, span := tracer.StartSpan(ctx, "writer.Write")
	start := time.Now()
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	if err := CanSave(doc); err != nil {
		return &SaveError{Op: "check", Err: err}
	}
	cw := &countingWriter{w: bufio.NewWriter(out), h: sha256.New()}
	mode := "full"
	if cfg.Incremental {
		mode = "incremental"
		err = w.writeIncremental(ctx, doc, cw, cfg)
	} else {
		err = w.writeFull(ctx, doc, cw, cfg)
	}
	if err == nil {
		err = cw.w.Flush()
	}
	if err != nil {
		var se *SaveError
		if errors.As(err, &se) {
			return err
		}
		return &SaveError{Op: "write", Err: err}
	}
	logger.Info("saved document",
		observability.String("mode", mode),
		observability.Bool("xref_stream", cfg.XRefStreams),
		observability.Int64(observability.MetricWriteBytes, cw.n),
		observability.Int64(observability.MetricWriteTime, time.Since(start).Milliseconds()))
	return nil
}

// outputSecurity decides how objects are encrypted on output.
type outputSecurity struct {
	handler security.Handler
	dict    *raw.DictObj
	ref     raw.ObjectRef // zero when dict is written inline
	skip    raw.ObjectRef // source /Encrypt object not to be copied
}

func (o *outputSecurity) encrypts(ref raw.ObjectRef) bool {
	return o.handler != nil && o.handler.IsEncrypted() && (o.ref.IsZero() || ref != o.ref)
}

func sourceSecurity(doc *raw.Document) (security.Handler, raw.ObjectRef, error) {
	if !doc.Encrypted {
		return nil, raw.ObjectRef{}, nil
	}
	sec, ok := doc.Source().(Secured)
	if !ok {
		return nil, raw.ObjectRef{}, errors.New("encrypted document has no security handler")
	}
	return sec.Security(), sec.EncryptRef(), nil
}

func (w *impl) writeFull(ctx context.Context, doc *raw.Document, cw *countingWriter, cfg Config) error {
	handler, srcEncRef, err := sourceSecurity(doc)
	if err != nil {
		return err
	}
	nextNum := doc.Size()
	sec := &outputSecurity{handler: handler, skip: srcEncRef}
	switch {
	case cfg.Encryption != nil:
		sec.handler, sec.dict = cfg.Encryption.Handler, cfg.Encryption.Dict
		sec.ref = raw.ObjectRef{Num: nextNum}
		nextNum++
	case cfg.Decrypt:
		sec.handler = nil
	case handler != nil:
		sec.skip = raw.ObjectRef{}
		sec.ref = srcEncRef
		if srcEncRef.IsZero() {
			sec.dict, _ = doc.Trailer.GetDict("Encrypt")
		}
	}

	var first []byte
	if sec.handler != nil {
		first = sec.handler.FileID()
	}

	fmt.Fprintf(cw, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", pdfVersion(doc, cfg))
	section := xref.NewSection()
	for _, ref := range doc.Refs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ref == sec.skip && !ref.IsZero() {
			continue
		}
		obj, err := doc.ResolveContext(ctx, ref)
		if err != nil {
			var broken *raw.BrokenReferenceError
			if errors.As(err, &broken) {
				observability.OrNop(cfg.Logger).Warn("dropping unreadable object",
					observability.Int("object", ref.Num), observability.Error("error", err))
				continue
			}
			return err
		}
		if st, ok := obj.(*raw.StreamObj); ok {
			switch typ, _ := st.Dict.GetName("Type"); typ {
			case "XRef", "ObjStm":
				continue
			}
			if cfg.Compress {
				if obj, err = compressStream(st); err != nil {
					return &SaveError{Op: "compress", Err: fmt.Errorf("object %s: %w", ref, err)}
				}
			}
		}
		if err := w.writeObject(ctx, cw, section, ref, obj, sec); err != nil {
			return err
		}
		if ref.Num >= nextNum {
			nextNum = ref.Num + 1
		}
	}
	if sec.dict != nil && !sec.ref.IsZero() && cfg.Encryption != nil {
		if err := w.writeObject(ctx, cw, section, sec.ref, sec.dict, sec); err != nil {
			return err
		}
	}
	for _, ref := range doc.Deleted() {
		if _, live := section.Entries[ref.Num]; !live {
			section.Free(ref.Num, ref.Gen+1)
		}
	}
	section.FillGaps(nextNum)
	section.LinkFreeList()

	trailer := buildTrailer(doc, sec, fileID(doc, first, cfg, cw.h.Sum(nil)))
	return writeXRef(cw, section, trailer, nextNum, cfg.XRefStreams, 0)
}

func (w *impl) writeIncremental(ctx context.Context, doc *raw.Document, cw *countingWriter, cfg Config) error {
	origin, ok := doc.Source().(Origin)
	if !ok {
		return errors.New("incremental save needs a document parsed from a file")
	}
	prev, stream, ok := origin.PrevXRef()
	if !ok {
		return errors.New("cross-reference data was rebuilt; save with a full rewrite")
	}
	if cfg.Encryption != nil || cfg.Decrypt {
		return errors.New("encryption cannot change in an incremental update")
	}
	handler, encRef, err := sourceSecurity(doc)
	if err != nil {
		return err
	}
	sec := &outputSecurity{handler: handler, ref: encRef, dict: inlineEncrypt(doc, handler, encRef)}

	r, size := origin.Original()
	if _, err := io.Copy(cw, io.NewSectionReader(r, 0, size)); err != nil {
		return &SaveError{Op: "copy", Err: err}
	}
	if !doc.IsModified() {
		return nil
	}
	if size > 0 {
		last := make([]byte, 1)
		if _, err := r.ReadAt(last, size-1); err == nil && last[0] != '\n' && last[0] != '\r' {
			cw.Write([]byte{'\n'})
		}
	}

	section := xref.NewSection()
	nextNum := doc.Size()
	for _, ref := range doc.Modified() {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj, err := doc.ResolveContext(ctx, ref)
		if err != nil {
			return err
		}
		if err := w.writeObject(ctx, cw, section, ref, obj, sec); err != nil {
			return err
		}
	}
	if deleted := doc.Deleted(); len(deleted) > 0 {
		for _, ref := range deleted {
			section.Free(ref.Num, ref.Gen+1)
		}
		section.LinkFreeList()
	}

	var first []byte
	if handler != nil {
		first = handler.FileID()
	}
	trailer := buildTrailer(doc, sec, fileID(doc, first, cfg, cw.h.Sum(nil)))
	return writeXRef(cw, section, trailer, nextNum, stream || cfg.XRefStreams, prev)
}

func inlineEncrypt(doc *raw.Document, h security.Handler, ref raw.ObjectRef) *raw.DictObj {
	if h == nil || !ref.IsZero() {
		return nil
	}
	d, _ := doc.Trailer.GetDict("Encrypt")
	return d
}

func (w *impl) writeObject(ctx context.Context, cw *countingWriter, section *xref.Section, ref raw.ObjectRef, obj raw.Object, sec *outputSecurity) error {
	for _, ic := range w.interceptors {
		if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
			return err
		}
	}
	out := obj
	if sec.encrypts(ref) {
		enc, err := encryptObject(obj, ref, sec.handler)
		if err != nil {
			return &SaveError{Op: "encrypt", Err: err}
		}
		out = enc
	}
	data, err := w.SerializeObject(ref, out)
	if err != nil {
		return &SaveError{Op: "serialize", Err: fmt.Errorf("object %s: %w", ref, err)}
	}
	section.InUse(ref.Num, ref.Gen, cw.n)
	if _, err := cw.Write(data); err != nil {
		return err
	}
	for _, ic := range w.interceptors {
		if err := ic.AfterWrite(ctx, ref, obj, int64(len(data))); err != nil {
			return err
		}
	}
	return nil
}

func buildTrailer(doc *raw.Document, sec *outputSecurity, ids [2][]byte) *raw.DictObj {
	t := doc.Trailer.Clone()
	for _, k := range droppedTrailerKeys {
		t.Delete(k)
	}
	switch {
	case !sec.ref.IsZero() && (sec.dict != nil || sec.handler != nil):
		t.Set("Encrypt", raw.RefObj{R: sec.ref})
	case sec.dict != nil:
		t.Set("Encrypt", sec.dict)
	}
	t.Set("ID", idArray(ids))
	return t
}

// writeXRef appends the cross-reference section and trailer. size is the
// first unused object number; an xref stream takes that number itself.
func writeXRef(cw *countingWriter, section *xref.Section, trailer *raw.DictObj, size int, asStream bool, prev int64) error {
	if prev > 0 {
		trailer.Set("Prev", raw.NumberInt(prev))
	}
	start := cw.n
	if !asStream {
		trailer.Set("Size", raw.NumberInt(int64(size)))
		if err := section.WriteTable(cw); err != nil {
			return err
		}
		b, err := appendObject([]byte("trailer\n"), trailer)
		if err != nil {
			return err
		}
		cw.Write(b)
		_, err = fmt.Fprintf(cw, "\nstartxref\n%d\n%%%%EOF\n", start)
		return err
	}

	section.InUse(size, 0, start)
	w, index, rows := section.StreamRows()
	data, err := filters.FlateEncode(rows)
	if err != nil {
		return err
	}
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("XRef"))
	dict.Set("Size", raw.NumberInt(int64(size+1)))
	for _, k := range trailer.Keys() {
		if k == "Size" {
			continue
		}
		v, _ := trailer.Get(k)
		dict.Set(k, v)
	}
	dict.Set("W", raw.NewArray(raw.NumberInt(int64(w[0])), raw.NumberInt(int64(w[1])), raw.NumberInt(int64(w[2]))))
	idx := raw.NewArray()
	for _, n := range index {
		idx.Append(raw.NumberInt(int64(n)))
	}
	dict.Set("Index", idx)
	dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	stream := raw.NewStream(dict, nil)
	stream.SetData(data)

	b := fmt.Appendf(nil, "%d 0 obj\n", size)
	if b, err = appendObject(b, stream); err != nil {
		return err
	}
	cw.Write(b)
	_, err = fmt.Fprintf(cw, "\nendobj\nstartxref\n%d\n%%%%EOF\n", start)
	return err
}

type countingWriter struct {
	w   *bufio.Writer
	h   hash.Hash
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.h.Write(p[:n])
	c.n += int64(n)
	c.err = err
	return n, err
}
