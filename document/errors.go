package document

import (
	"errors"

	"github.com/wudi/pdfcodec/forms"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/parser"
	"github.com/wudi/pdfcodec/security"
	"github.com/wudi/pdfcodec/writer"
)

type (
	MalformedDocumentError = parser.MalformedDocumentError
	AuthenticationError    = security.AuthenticationError
	BrokenReferenceError   = raw.BrokenReferenceError
	FieldNotFoundError     = forms.FieldNotFoundError
	SaveError              = writer.SaveError
)

var (
	// ErrLocked is returned when encrypted content is needed but no
	// password opened the document.
	ErrLocked = raw.ErrLocked
	// ErrReadOnly is returned when a read-only document is saved over the
	// file it was opened from.
	ErrReadOnly = errors.New("document was opened read-only")
	ErrClosed   = errors.New("document is closed")
)
