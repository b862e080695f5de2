// Package scripting runs AcroForm JavaScript actions.
package scripting

import (
	"context"
)

// Engine executes form scripts against a bound form.
type Engine interface {
	// Execute runs script and returns its completion value.
	Execute(ctx context.Context, script string) (interface{}, error)

	// Bind exposes form to scripts as getField and app.
	Bind(form FormDOM) error

	// Calculate runs a calculation script for target. The script sees the
	// current value as event.value and its assignment to event.value is
	// returned. ok is false when the script set event.rc to false.
	Calculate(ctx context.Context, script string, target FieldProxy) (value interface{}, ok bool, err error)
}

// FormDOM is the view of a form available to scripts.
type FormDOM interface {
	// Field returns a field by fully qualified name.
	Field(name string) (FieldProxy, error)

	// Alert receives app.alert messages.
	Alert(message string)
}

// FieldProxy is a form field exposed to scripts.
type FieldProxy interface {
	Name() string
	Value() interface{}
	SetValue(value interface{}) error
}
