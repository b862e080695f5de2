package forms

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/scripting"
)

// Calculate runs the calculation scripts of the fields listed in /CO, in
// order, and stores their results. It returns the number of fields whose
// value was set.
func (f *Form) Calculate(ctx context.Context, logger observability.Logger) (int, error) {
	logger = observability.OrNop(logger)
	coObj, _ := f.dict.Get("CO")
	co, ok := raw.DerefArray(f.doc, coObj)
	if !ok || co.Len() == 0 {
		return 0, nil
	}
	byDict := make(map[*raw.DictObj]*Field)
	for _, fl := range f.Fields() {
		byDict[fl.dict] = fl
	}

	engine := scripting.NewEngine()
	if err := engine.Bind(formDOM{form: f, logger: logger}); err != nil {
		return 0, err
	}
	pipeline := filters.NewDefaultPipeline(filters.Limits{})
	updated := 0
	for _, item := range co.Items {
		dict, ok := raw.DerefDict(f.doc, item)
		if !ok {
			continue
		}
		fl, ok := byDict[dict]
		if !ok {
			continue
		}
		script, err := calculationScript(ctx, f.doc, pipeline, dict)
		if err != nil {
			return updated, fmt.Errorf("field %s: %w", fl.name, err)
		}
		if script == "" {
			continue
		}
		v, accepted, err := engine.Calculate(ctx, script, fieldProxy{fl})
		if err != nil {
			return updated, err
		}
		if !accepted || v == nil {
			continue
		}
		if err := fl.SetValue(formatValue(v)); err != nil {
			return updated, fmt.Errorf("field %s: %w", fl.name, err)
		}
		logger.Debug("calculated field",
			observability.String("field", fl.name),
			observability.String("value", fl.Value()))
		updated++
	}
	return updated, nil
}

// calculationScript returns the JavaScript of the /AA /C action of dict.
func calculationScript(ctx context.Context, doc *raw.Document, p *filters.Pipeline, dict *raw.DictObj) (string, error) {
	aaObj, _ := dict.Get("AA")
	aa, ok := raw.DerefDict(doc, aaObj)
	if !ok {
		return "", nil
	}
	cObj, _ := aa.Get("C")
	action, ok := raw.DerefDict(doc, cObj)
	if !ok {
		return "", nil
	}
	if s, _ := action.GetName("S"); s != "JavaScript" {
		return "", nil
	}
	js, _ := action.Get("JS")
	switch v := doc.Deref(js).(type) {
	case raw.StringObj:
		return v.Text(), nil
	case *raw.StreamObj:
		data, err := p.DecodeStream(ctx, v)
		if err != nil {
			return "", err
		}
		return raw.DecodeText(data), nil
	}
	return "", nil
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

type formDOM struct {
	form   *Form
	logger observability.Logger
}

func (d formDOM) Field(name string) (scripting.FieldProxy, error) {
	fl, err := d.form.Field(name)
	if err != nil {
		return nil, err
	}
	return fieldProxy{fl}, nil
}

func (d formDOM) Alert(msg string) {
	d.logger.Info("form script alert", observability.String("message", msg))
}

type fieldProxy struct{ f *Field }

func (p fieldProxy) Name() string       { return p.f.name }
func (p fieldProxy) Value() interface{} { return p.f.Value() }

func (p fieldProxy) SetValue(v interface{}) error {
	return p.f.SetValue(formatValue(v))
}
