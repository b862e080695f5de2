package document

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/recovery"
)

// Mode selects how an opened document may be saved.
type Mode string

const (
	// ReadOnly documents can be saved only to a path other than the one
	// they were opened from.
	ReadOnly Mode = "read-only"
	// Modify documents can be saved back to their own path.
	Modify Mode = "modify"
)

// Recovery policies accepted by Options.Recovery.
const (
	RecoveryLenient = "lenient"
	RecoveryStrict  = "strict"
)

// Options configures OpenWithOptions.
type Options struct {
	Mode Mode `validate:"required,oneof=read-only modify"`
	// Password is tried as owner password, then as user password. Empty
	// opens an encrypted document locked unless its user password is empty.
	Password string `validate:"max=1024"`
	// Recovery is "lenient" (repair and log) or "strict" (fail on the first
	// structural problem).
	Recovery string `validate:"omitempty,oneof=lenient strict"`
	// Incremental appends changes to the original bytes on Save instead of
	// rewriting the file.
	Incremental bool
	// XRefStreams writes cross-reference streams on full rewrites.
	XRefStreams bool
	// Compress flate-encodes unfiltered streams on full rewrites.
	Compress     bool
	MaxParseTime time.Duration `validate:"gte=0"`

	Logger observability.Logger `validate:"-"`
}

// NewDefaultOptions returns options for a read-only, lenient open.
func NewDefaultOptions() Options {
	return Options{
		Mode:     ReadOnly,
		Recovery: RecoveryLenient,
	}
}

// Validate checks the option values.
func (o *Options) Validate() error {
	validate := validator.New()
	return validate.Struct(o)
}

func (o *Options) strategy(logger observability.Logger) recovery.Strategy {
	if o.Recovery == RecoveryStrict {
		return recovery.NewStrictStrategy()
	}
	return recovery.NewLoggingStrategy(logger)
}
