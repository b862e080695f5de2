package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/security"
	"github.com/wudi/pdfcodec/xref"
)

// MalformedDocumentError reports a file from which no usable trailer or
// catalog could be recovered.
type MalformedDocumentError struct {
	Offset int64
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("malformed PDF near offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("malformed PDF: %v", e.Err)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	// Recovery decides on malformed input. Nil selects a lenient strategy
	// that logs each repair.
	Recovery recovery.Strategy
	XRef     xref.ResolverConfig
	Limits   security.Limits
	Cache    Cache
	// Password is tried as owner and user password. When empty the empty
	// user password is tried and a failure leaves the document locked.
	Password string
	Logger   observability.Logger
	Tracer   observability.Tracer
}

// DocumentParser builds a lazily loaded raw.Document.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	cfg.Logger = observability.OrNop(cfg.Logger)
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLoggingStrategy(cfg.Logger)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	cfg.Limits = cfg.Limits.OrDefault()
	if cfg.XRef.MaxXRefDepth == 0 {
		cfg.XRef.MaxXRefDepth = cfg.Limits.MaxXRefDepth
	}
	if cfg.XRef.Recovery == nil {
		cfg.XRef.Recovery = cfg.Recovery
	}
	return &DocumentParser{cfg: cfg}
}

// SetPassword updates the password for decryption when parsing encrypted PDFs.
func (p *DocumentParser) SetPassword(pwd string) {
	p.cfg.Password = pwd
}

// Parse reads the cross-reference data of r and returns a document whose
// objects are loaded from r on first access. r must stay open for the
// lifetime of the document.
func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (doc *raw.Document, err error) {
	ctx, span := p.cfg.Tracer.StartSpan(ctx, "parser.Parse")
	start := time.Now()
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Limits.MaxParseTime)
	defer cancel()

	resolver := xref.NewResolver(p.cfg.XRef)
	table, err := resolver.Resolve(ctx, r)
	if err != nil {
		return nil, &MalformedDocumentError{Offset: resolver.StartXRef(), Err: err}
	}
	if resolver.Repaired() {
		p.cfg.Logger.Warn("cross-reference data rebuilt by linear scan",
			observability.Int("objects", len(table.Objects())))
	}

	loader := newObjectLoader(r, table, p.cfg)
	loader.size = readerSize(r)
	loader.startxref = resolver.StartXRef()
	trailer := table.Trailer()
	locked, err := p.selectSecurity(ctx, loader, trailer)
	if err != nil {
		return nil, err
	}

	doc = p.newDocument(r, loader, trailer, resolver.Linearized(), locked)
	root, err := doc.Root()
	if err != nil && !resolver.Repaired() && recovery.Continue(p.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "parser", ByteOffset: -1})) {
		if rebuilt, rerr := xref.Repair(ctx, r); rerr == nil {
			p.cfg.Logger.Warn("catalog unreachable, rebuilt cross-reference data by linear scan",
				observability.Error("cause", err))
			loader.table = rebuilt
			doc = p.newDocument(r, loader, mergeTrailer(trailer, rebuilt.Trailer()), resolver.Linearized(), locked)
			root, err = doc.Root()
		}
	}
	if err != nil {
		return nil, &MalformedDocumentError{Offset: resolver.StartXRef(), Err: err}
	}

	if v, ok := root.GetName("Version"); ok && versionGreater(v, doc.Version) {
		doc.Version = v
	}
	if !locked {
		doc.Metadata = readMetadata(doc)
	}

	p.cfg.Logger.Info("parsed document",
		observability.String("version", doc.Version),
		observability.Int(observability.MetricObjectCount, len(table.Objects())),
		observability.Bool("encrypted", doc.Encrypted),
		observability.Bool("locked", doc.Locked),
		observability.Int64(observability.MetricParseTime, time.Since(start).Milliseconds()))
	return doc, nil
}

func (p *DocumentParser) newDocument(r io.ReaderAt, loader *objectLoader, trailer *raw.DictObj, linearized, locked bool) *raw.Document {
	doc := raw.NewLazyDocument(loader, trailer)
	doc.Version = detectHeaderVersion(r)
	doc.Encrypted = loader.security.IsEncrypted()
	doc.Locked = locked
	doc.Permissions = loader.security.Permissions()
	doc.MetadataEncrypted = doc.Encrypted && loader.security.EncryptMetadata()
	doc.Linearized = linearized
	return doc
}

// mergeTrailer keeps the encryption and identity entries of the original
// trailer when the scan did not find them.
func mergeTrailer(orig, rebuilt *raw.DictObj) *raw.DictObj {
	out := rebuilt.Clone()
	for _, k := range []string{"Encrypt", "ID", "Info"} {
		if out.Has(k) {
			continue
		}
		if v, ok := orig.Get(k); ok {
			out.Set(k, v)
		}
	}
	return out
}

// selectSecurity installs the security handler on loader. It reports
// whether the document stays locked because no password opened it.
func (p *DocumentParser) selectSecurity(ctx context.Context, loader *objectLoader, trailer *raw.DictObj) (bool, error) {
	encObj, ok := trailer.Get("Encrypt")
	if !ok {
		return false, nil
	}
	var encDict *raw.DictObj
	switch v := encObj.(type) {
	case *raw.DictObj:
		encDict = v
	case raw.RefObj:
		obj, err := loader.Load(ctx, v.R)
		if err != nil {
			return false, &MalformedDocumentError{Offset: -1, Err: fmt.Errorf("load /Encrypt: %w", err)}
		}
		encDict, _ = obj.(*raw.DictObj)
		loader.encryptRef = v.R
	}
	if encDict == nil {
		return false, &MalformedDocumentError{Offset: -1, Err: errors.New("/Encrypt is not a dictionary")}
	}

	handler, err := (&security.HandlerBuilder{}).
		WithEncryptDict(encDict).
		WithTrailer(trailer).
		WithLogger(p.cfg.Logger).
		Build()
	if err != nil {
		return false, fmt.Errorf("security setup: %w", err)
	}
	loader.security = handler

	if err := handler.Authenticate(p.cfg.Password); err != nil {
		if p.cfg.Password != "" {
			return false, err
		}
		p.cfg.Logger.Info("document requires a password, opened locked")
		return true, nil
	}
	return false, nil
}

func readMetadata(doc *raw.Document) raw.DocumentMetadata {
	infoObj, _ := doc.Trailer.Get("Info")
	info, ok := raw.DerefDict(doc, infoObj)
	if !ok {
		return raw.DocumentMetadata{}
	}
	text := func(key string) string {
		v, _ := info.Get(key)
		b, ok := raw.DerefString(doc, v)
		if !ok {
			return ""
		}
		return raw.DecodeText(b)
	}
	return raw.DocumentMetadata{
		Title:    text("Title"),
		Author:   text("Author"),
		Subject:  text("Subject"),
		Keywords: text("Keywords"),
		Creator:  text("Creator"),
		Producer: text("Producer"),
	}
}

func detectHeaderVersion(r io.ReaderAt) string {
	buf := make([]byte, 1024)
	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	head := string(buf[:n])
	idx := strings.Index(head, "%PDF-")
	if idx < 0 {
		return ""
	}
	line := head[idx+5:]
	if end := strings.IndexAny(line, "\r\n \t"); end >= 0 {
		line = line[:end]
	}
	return line
}

func versionGreater(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

// readerSize returns the number of bytes readable from r.
func readerSize(r io.ReaderAt) int64 {
	switch v := r.(type) {
	case interface{ Size() int64 }:
		return v.Size()
	case interface{ Stat() (os.FileInfo, error) }:
		if fi, err := v.Stat(); err == nil {
			return fi.Size()
		}
	}
	var n int64
	buf := make([]byte, 32*1024)
	for {
		k, err := r.ReadAt(buf, n)
		n += int64(k)
		if err != nil || k < len(buf) {
			return n
		}
	}
}
