package writer

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcodec/ir/raw"
)

// CanSave reports why doc cannot be written, or nil. The catalog must
// resolve to a dictionary with /Pages, every reference reachable from the
// trailer must load, and an encrypted document must be unlocked.
func CanSave(doc *raw.Document) error {
	if doc == nil {
		return errors.New("no document")
	}
	if doc.Locked {
		return raw.ErrLocked
	}
	root, err := doc.Root()
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if !root.Has("Pages") {
		return errors.New("catalog has no /Pages")
	}
	broken, err := doc.CheckReferences()
	if err != nil {
		return fmt.Errorf("unreadable object: %w", err)
	}
	if len(broken) > 0 {
		return fmt.Errorf("%d unresolved references: %w", len(broken), broken[0])
	}
	return nil
}
