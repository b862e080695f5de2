package scripting

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

type GojaEngine struct {
	vm *goja.Runtime
}

func NewEngine() *GojaEngine {
	return &GojaEngine{vm: goja.New()}
}

func (e *GojaEngine) Execute(ctx context.Context, script string) (interface{}, error) {
	val, err := e.run(ctx, script)
	if err != nil {
		return nil, err
	}
	return val.Export(), nil
}

func (e *GojaEngine) run(ctx context.Context, script string) (goja.Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := e.vm.RunString(script)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause := interrupted.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return val, nil
}

func (e *GojaEngine) Bind(form FormDOM) error {
	app := e.vm.NewObject()
	err := app.Set("alert", func(call goja.FunctionCall) goja.Value {
		msg := ""
		if len(call.Arguments) > 0 {
			msg = call.Arguments[0].String()
		}
		form.Alert(msg)
		return goja.Undefined()
	})
	if err != nil {
		return err
	}
	if err := e.vm.Set("app", app); err != nil {
		return err
	}

	return e.vm.Set("getField", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Undefined()
		}
		field, err := form.Field(call.Arguments[0].String())
		if err != nil || field == nil {
			return goja.Null()
		}
		return e.fieldObject(field)
	})
}

// fieldObject wraps field in a JS object whose value property reads and
// writes the field.
func (e *GojaEngine) fieldObject(field FieldProxy) goja.Value {
	obj := e.vm.NewObject()
	obj.Set("name", field.Name())
	obj.DefineAccessorProperty("value",
		e.vm.ToValue(func(goja.FunctionCall) goja.Value {
			return e.vm.ToValue(field.Value())
		}),
		e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) > 0 {
				if err := field.SetValue(call.Arguments[0].Export()); err != nil {
					panic(e.vm.NewGoError(err))
				}
			}
			return goja.Undefined()
		}),
		goja.FLAG_TRUE,
		goja.FLAG_TRUE,
	)
	return obj
}

func (e *GojaEngine) Calculate(ctx context.Context, script string, target FieldProxy) (interface{}, bool, error) {
	event := e.vm.NewObject()
	event.Set("value", target.Value())
	event.Set("rc", true)
	event.Set("target", e.fieldObject(target))
	event.Set("name", "Calculate")
	event.Set("type", "Field")
	if err := e.vm.Set("event", event); err != nil {
		return nil, false, err
	}
	defer e.vm.Set("event", goja.Undefined())

	if _, err := e.run(ctx, script); err != nil {
		return nil, false, fmt.Errorf("calculate %s: %w", target.Name(), err)
	}
	rc := event.Get("rc")
	if rc != nil && !rc.ToBoolean() {
		return nil, false, nil
	}
	v := event.Get("value")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, true, nil
	}
	return v.Export(), true, nil
}
