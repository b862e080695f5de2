// Package batch applies an edit to many documents concurrently.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wudi/pdfcodec/document"
	"github.com/wudi/pdfcodec/observability"
)

// Config bounds a batch run.
type Config struct {
	// MaxConcurrent is the number of documents open at once.
	MaxConcurrent int `validate:"min=1,max=64"`
	// JobTimeout bounds each job, zero means no limit.
	JobTimeout time.Duration `validate:"gte=0"`
	// StopOnError cancels the remaining jobs after the first failure.
	StopOnError bool
	// Open is used to open every input. Password and Mode are overridden
	// per job.
	Open document.Options

	Logger observability.Logger `validate:"-"`
}

func NewDefaultConfig() *Config {
	return &Config{
		MaxConcurrent: 4,
		JobTimeout:    time.Minute,
		Open:          document.NewDefaultOptions(),
	}
}

func (c *Config) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// EditFunc changes an opened document before it is saved.
type EditFunc func(ctx context.Context, doc *document.Document) error

// Job is one document to edit. An empty Output saves over Input.
type Job struct {
	Input    string
	Output   string
	Password string
	Edit     EditFunc
}

// Result reports the outcome of the job at the same index.
type Result struct {
	Job      Job
	Err      error
	Duration time.Duration
}

type Processor struct {
	cfg    *Config
	sem    *semaphore.Weighted
	logger observability.Logger
}

func NewProcessor(cfg *Config) (*Processor, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}
	return &Processor{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: observability.OrNop(cfg.Logger),
	}, nil
}

// Run processes jobs and returns one result per job in input order. The
// error is non-nil only when StopOnError is set and a job failed, or when
// ctx ended before all jobs started.
func (p *Processor) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))
	for i := range jobs {
		results[i].Job = jobs[i]
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	var acquireErr error
	for i := range jobs {
		if err := p.sem.Acquire(runCtx, 1); err != nil {
			acquireErr = err
			for j := i; j < len(jobs); j++ {
				results[j].Err = err
			}
			break
		}
		g.Go(func() error {
			start := time.Now()
			err := p.process(runCtx, jobs[i])
			results[i].Err = err
			results[i].Duration = time.Since(start)
			if err != nil && p.cfg.StopOnError {
				// cancel before the slot frees up so no later job starts
				cancel()
			}
			p.sem.Release(1)

			if err != nil {
				p.logger.Warn("batch job failed",
					observability.String("input", jobs[i].Input),
					observability.Error("error", err))
				if p.cfg.StopOnError {
					return fmt.Errorf("%s: %w", jobs[i].Input, err)
				}
				return nil
			}
			p.logger.Info("batch job done",
				observability.String("input", jobs[i].Input),
				observability.Int64("ms", results[i].Duration.Milliseconds()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, acquireErr
}

func (p *Processor) process(ctx context.Context, job Job) (err error) {
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := p.cfg.Open
	opts.Password = job.Password
	if opts.Logger == nil {
		opts.Logger = p.logger
	}
	out := job.Output
	if out == "" {
		out = job.Input
		opts.Mode = document.Modify
	}
	doc, err := document.OpenContext(ctx, job.Input, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := doc.Close(); err == nil {
			err = cerr
		}
	}()
	if job.Edit != nil {
		if err := job.Edit(ctx, doc); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return doc.SaveContext(ctx, out)
}
