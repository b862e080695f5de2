package writer

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/wudi/pdfcodec/ir/raw"
)

// SaveFile writes doc to path through a temporary file in the same
// directory that is renamed into place once complete. Errors are
// *SaveError values carrying path.
func SaveFile(ctx context.Context, w Writer, doc *raw.Document, path string, cfg Config) error {
	if w == nil {
		w = (&WriterBuilder{}).Build()
	}
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return &SaveError{Path: path, Op: "create", Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if err := w.Write(ctx, doc, tmp, cfg); err != nil {
		tmp.Close()
		var se *SaveError
		if errors.As(err, &se) && se.Path == "" {
			se.Path = path
			return se
		}
		return &SaveError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &SaveError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &SaveError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &SaveError{Path: path, Op: "rename", Err: err}
	}
	committed = true
	return nil
}
