package writer

import (
	"context"
	"fmt"
	"io"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/security"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF15 PDFVersion = "1.5"
	PDF17 PDFVersion = "1.7"
	PDF20 PDFVersion = "2.0"
)

// Config controls how a document is written. The zero value performs a
// full rewrite with a classic xref table.
type Config struct {
	// Version overrides the header version. Empty keeps the document's.
	Version PDFVersion
	// Incremental appends changed objects to the original bytes.
	Incremental bool
	// XRefStreams writes a cross-reference stream instead of a table.
	// Incremental updates of xref-stream files always use a stream.
	XRefStreams bool
	// Compress flate-encodes unfiltered streams on full rewrites.
	Compress bool
	// Deterministic derives the second /ID entry from the content instead
	// of random bytes.
	Deterministic bool
	// Encryption replaces the document's encryption on full rewrites.
	Encryption *Encryption
	// Decrypt writes the document without encryption.
	Decrypt bool

	Logger observability.Logger
	Tracer observability.Tracer
}

// Encryption pairs an /Encrypt dictionary with the handler that encrypts
// objects for it.
type Encryption struct {
	Dict    *raw.DictObj
	Handler security.Handler
}

// Origin is implemented by document sources that can hand back the bytes
// they were parsed from. Incremental saves require it.
type Origin interface {
	Original() (io.ReaderAt, int64)
	PrevXRef() (offset int64, stream bool, ok bool)
}

// Secured is implemented by document sources of encrypted files.
type Secured interface {
	Security() security.Handler
	EncryptRef() raw.ObjectRef
}

type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes every indirect object as it is emitted. An error
// from either hook aborts the save.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

// SaveError wraps a failure to produce the output file.
type SaveError struct {
	Path string
	Op   string
	Err  error
}

func (e *SaveError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("save: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("save %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }
