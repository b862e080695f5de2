// Package document opens, edits and saves PDF files.
//
// A Document owns the file it was opened from until Close. Objects are
// read lazily, so the file must stay in place while the document is in use.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wudi/pdfcodec/forms"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/parser"
	"github.com/wudi/pdfcodec/security"
	"github.com/wudi/pdfcodec/writer"
)

// Default page size (A4, points).
const (
	DefaultPageWidth  = 595.0
	DefaultPageHeight = 842.0
)

// Document is an open PDF file, or a new one, together with the options it
// was opened with and any encryption change pending for the next Save.
type Document struct {
	raw    *raw.Document
	file   *os.File
	path   string
	opts   Options
	logger observability.Logger
	closed bool

	encryption *writer.Encryption
	decrypt    bool
}

// New returns an empty document with a catalog and an empty page tree.
func New() *Document {
	rd := raw.NewDocument()
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray())
	pages.Set("Count", raw.NumberInt(0))
	pagesRef := rd.Add(pages)

	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.RefObj{R: pagesRef})
	rootRef := rd.Add(catalog)
	rd.Trailer.Set("Root", raw.RefObj{R: rootRef})

	opts := NewDefaultOptions()
	opts.Mode = Modify
	return &Document{raw: rd, opts: opts, logger: observability.NopLogger{}}
}

// Open opens the file at path. An omitted or empty password opens an
// encrypted document locked instead of failing; a wrong password fails with
// *AuthenticationError.
func Open(path string, mode Mode, password ...string) (*Document, error) {
	opts := NewDefaultOptions()
	opts.Mode = mode
	if len(password) > 0 {
		opts.Password = password[0]
	}
	return OpenWithOptions(path, opts)
}

// OpenWithOptions opens the file at path as configured by opts.
func OpenWithOptions(path string, opts Options) (*Document, error) {
	return OpenContext(context.Background(), path, opts)
}

// OpenContext is OpenWithOptions with a context bounding the structural
// parse.
func OpenContext(ctx context.Context, path string, opts Options) (*Document, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	logger := observability.OrNop(opts.Logger)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	cfg := parser.Config{
		Password: opts.Password,
		Recovery: opts.strategy(logger),
		Logger:   logger,
	}
	cfg.Limits.MaxParseTime = opts.MaxParseTime
	rd, err := parser.NewDocumentParser(cfg).Parse(ctx, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	d := &Document{raw: rd, file: f, path: abs, opts: opts, logger: logger}
	logger.Debug("opened document",
		observability.String("path", abs),
		observability.String("mode", string(opts.Mode)),
		observability.Bool("locked", rd.Locked),
		observability.Int(observability.MetricPageCount, d.PageCount()))
	return d, nil
}

// Raw returns the object arena.
func (d *Document) Raw() *raw.Document { return d.raw }

// Path returns the absolute path the document was opened from, or "".
func (d *Document) Path() string { return d.path }

func (d *Document) Mode() Mode { return d.opts.Mode }

func (d *Document) Version() string { return d.raw.Version }

func (d *Document) Encrypted() bool { return d.raw.Encrypted }

// Locked reports whether the document is encrypted and no password opened
// it. Structure is readable; strings and streams are not.
func (d *Document) Locked() bool { return d.raw.Locked }

func (d *Document) Permissions() raw.Permissions { return d.raw.Permissions }

// AcroForm returns the interactive form of the document.
func (d *Document) AcroForm() (*forms.Form, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	return forms.Open(d.raw)
}

// SetEncryption encrypts the document with the standard security handler
// on the next Save.
func (d *Document) SetEncryption(opts security.Options) error {
	if err := d.usable(); err != nil {
		return err
	}
	if len(opts.FileID) == 0 {
		if ids, ok := d.raw.Trailer.GetArray("ID"); ok && ids.Len() == 2 {
			if s, ok := ids.Items[0].(raw.StringObj); ok {
				opts.FileID = s.Bytes
			}
		}
	}
	dict, h, err := security.BuildStandardEncryption(opts)
	if err != nil {
		return err
	}
	d.encryption = &writer.Encryption{Dict: dict, Handler: h}
	d.decrypt = false
	return nil
}

// RemoveEncryption saves the document without encryption on the next Save.
// The document must have been opened with a password.
func (d *Document) RemoveEncryption() error {
	if err := d.usable(); err != nil {
		return err
	}
	if d.raw.Locked {
		return ErrLocked
	}
	d.encryption = nil
	d.decrypt = true
	return nil
}

// CanSave reports whether the document can be saved to *path. The path is
// normalized in place: made absolute and given a .pdf extension when it has
// none.
func (d *Document) CanSave(path *string) bool {
	if path == nil || strings.TrimSpace(*path) == "" {
		return false
	}
	p, err := normalizePath(*path)
	if err != nil {
		return false
	}
	*path = p
	if d.checkSave(p) != nil {
		return false
	}
	if fi, err := os.Stat(filepath.Dir(p)); err != nil || !fi.IsDir() {
		return false
	}
	if fi, err := os.Stat(p); err == nil && fi.IsDir() {
		return false
	}
	return true
}

func normalizePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if filepath.Ext(abs) == "" {
		abs += ".pdf"
	}
	return abs, nil
}

func (d *Document) checkSave(path string) error {
	if err := d.usable(); err != nil {
		return err
	}
	if d.opts.Mode == ReadOnly && d.path != "" && samePath(path, d.path) {
		return ErrReadOnly
	}
	return writer.CanSave(d.raw)
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	fa, errA := os.Stat(a)
	fb, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(fa, fb)
}

// Save writes the document to path.
func (d *Document) Save(path string) error {
	return d.SaveContext(context.Background(), path)
}

func (d *Document) SaveContext(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &SaveError{Path: path, Op: "path", Err: err}
	}
	if err := d.checkSave(abs); err != nil {
		return &SaveError{Path: abs, Op: "check", Err: err}
	}
	if err := writer.SaveFile(ctx, nil, d.raw, abs, d.writerConfig()); err != nil {
		return err
	}
	d.logger.Info("saved document", observability.String("path", abs))
	return nil
}

// WriteTo writes the document to w.
func (d *Document) WriteTo(ctx context.Context, w io.Writer) error {
	if err := d.usable(); err != nil {
		return err
	}
	return (&writer.WriterBuilder{}).Build().Write(ctx, d.raw, w, d.writerConfig())
}

func (d *Document) incremental() bool {
	return d.opts.Incremental && d.file != nil && d.encryption == nil && !d.decrypt
}

func (d *Document) writerConfig() writer.Config {
	return writer.Config{
		Incremental: d.incremental(),
		XRefStreams: d.opts.XRefStreams,
		Compress:    d.opts.Compress,
		Encryption:  d.encryption,
		Decrypt:     d.decrypt,
		Logger:      d.logger,
	}
}

func (d *Document) usable() error {
	if d == nil || d.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the file and discards the decryption key. It is safe to
// call more than once.
func (d *Document) Close() error {
	if d == nil || d.closed {
		return nil
	}
	d.closed = true
	if sec, ok := d.raw.Source().(writer.Secured); ok {
		sec.Security().Close()
	}
	if d.encryption != nil {
		d.encryption.Handler.Close()
		d.encryption = nil
	}
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// Dispose is Close without an error result.
func (d *Document) Dispose() { _ = d.Close() }
