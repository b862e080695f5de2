package document

import (
	"context"

	"github.com/wudi/pdfcodec/optimize"
)

// Optimize drops unreachable objects and merges duplicate streams. The
// changes are written by the next Save.
func (d *Document) Optimize(ctx context.Context) (optimize.Stats, error) {
	if err := d.usable(); err != nil {
		return optimize.Stats{}, err
	}
	if d.raw.Locked {
		return optimize.Stats{}, ErrLocked
	}
	return optimize.New(optimize.Config{
		RemoveUnreachable:       true,
		CombineDuplicateStreams: true,
		Logger:                  d.logger,
	}).Optimize(ctx, d.raw)
}
