package recovery

import (
	"fmt"
	"sync"

	"github.com/wudi/pdfcodec/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every error and asks the caller to repair and continue.
type LenientStrategy struct {
	mu     sync.Mutex
	Errors []error
	logger observability.Logger
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{logger: observability.NopLogger{}}
}

// NewLoggingStrategy returns a lenient strategy that also logs each repair at warn level.
func NewLoggingStrategy(logger observability.Logger) *LenientStrategy {
	return &LenientStrategy{logger: observability.OrNop(logger)}
}

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.mu.Lock()
	s.Errors = append(s.Errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.mu.Unlock()
	s.logger.Warn("recovering from malformed input",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Int("object", location.ObjectNum),
		observability.Error("error", err))
	return ActionFix
}

// Reported returns a copy of the recorded errors.
func (s *LenientStrategy) Reported() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.Errors))
	copy(out, s.Errors)
	return out
}
