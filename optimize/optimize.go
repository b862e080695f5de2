// Package optimize shrinks a document in place by dropping objects nothing
// refers to and merging streams with identical dictionaries and payloads.
//
// Changes go through raw.Document Set/Delete, so both full rewrites and
// incremental updates record them.
package optimize

import (
	"context"
	"fmt"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
)

type Config struct {
	RemoveUnreachable       bool
	CombineDuplicateStreams bool
	Logger                  observability.Logger
}

// Stats reports what an Optimize call changed.
type Stats struct {
	Removed  int `json:"removed"`
	Combined int `json:"combined"`
}

type Optimizer struct {
	config Config
	logger observability.Logger
}

func New(config Config) *Optimizer {
	return &Optimizer{config: config, logger: observability.OrNop(config.Logger)}
}

// Optimize loads every object of doc and applies the configured passes.
// Encrypted documents must be unlocked.
func (o *Optimizer) Optimize(ctx context.Context, doc *raw.Document) (Stats, error) {
	var stats Stats
	if doc.Locked {
		return stats, raw.ErrLocked
	}
	objects, err := o.load(ctx, doc)
	if err != nil {
		return stats, err
	}
	// merging streams can make the streams referring to them identical
	for o.config.CombineDuplicateStreams {
		n, err := o.combineDuplicateStreams(ctx, doc, objects)
		if err != nil {
			return stats, fmt.Errorf("failed to combine duplicate streams: %w", err)
		}
		if n == 0 {
			break
		}
		stats.Combined += n
	}
	if o.config.RemoveUnreachable {
		n, err := o.removeUnreachable(doc, objects)
		if err != nil {
			return stats, fmt.Errorf("failed to remove unreachable objects: %w", err)
		}
		stats.Removed = n
	}
	o.logger.Debug("optimized document",
		observability.Int("removed", stats.Removed),
		observability.Int("combined", stats.Combined))
	return stats, nil
}

// load resolves every live object. Objects that fail to load are logged
// and left alone.
func (o *Optimizer) load(ctx context.Context, doc *raw.Document) (map[raw.ObjectRef]raw.Object, error) {
	objects := make(map[raw.ObjectRef]raw.Object)
	for _, ref := range doc.Refs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obj, err := doc.ResolveContext(ctx, ref)
		if err != nil {
			o.logger.Warn("skipping unloadable object",
				observability.Int("num", ref.Num), observability.Error("error", err))
			continue
		}
		objects[ref] = obj
	}
	return objects, nil
}

// structural reports objects the file layout itself depends on. They are
// never removed or merged.
func structural(obj raw.Object) bool {
	s, ok := obj.(*raw.StreamObj)
	if !ok || s.Dict == nil {
		return false
	}
	t, _ := s.Dict.GetName("Type")
	return t == "ObjStm" || t == "XRef"
}
