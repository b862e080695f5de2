package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wudi/pdfcodec/batch"
	"github.com/wudi/pdfcodec/builder"
	"github.com/wudi/pdfcodec/document"
	"github.com/wudi/pdfcodec/fonts"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/security"
)

func init() {
	register(command{name: "info", args: "<pdf>", summary: "Print document properties as JSON", setup: setupInfo})
	register(command{name: "set-title", args: "<pdf> <title>", summary: "Set the document title", setup: setupSetTitle})
	register(command{name: "fields", args: "<pdf>", summary: "List AcroForm fields as JSON", setup: setupFields})
	register(command{name: "fill", args: "<pdf> name=value...", summary: "Fill AcroForm fields", setup: setupFill})
	register(command{name: "encrypt", args: "<pdf>", summary: "Encrypt with the standard security handler", setup: setupEncrypt})
	register(command{name: "decrypt", args: "<pdf>", summary: "Remove encryption", setup: setupDecrypt})
	register(command{name: "check", args: "<pdf>", summary: "Report broken references", setup: setupCheck})
	register(command{name: "optimize", args: "<pdf>", summary: "Drop unused objects and merge duplicate streams", setup: setupOptimize})
	register(command{name: "new", args: "<out.pdf>", summary: "Create a one page document", setup: setupNew})
	register(command{name: "batch", args: "<pdf>...", summary: "Set the title of many documents concurrently", setup: setupBatch})
}

func emit(e *env, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	fmt.Fprintf(e.stdout, "%s\n", data)
	return nil
}

type infoSummary struct {
	Path        string          `json:"path"`
	Version     string          `json:"version"`
	Encrypted   bool            `json:"encrypted"`
	Locked      bool            `json:"locked"`
	Pages       int             `json:"pages"`
	Info        document.Info   `json:"info"`
	Permissions raw.Permissions `json:"permissions"`
	Form        bool            `json:"acroForm"`
}

func setupInfo(fs *flag.FlagSet) runFunc {
	return func(e *env, args []string) error {
		if err := needArgs("info", args, 1); err != nil {
			return err
		}
		doc, err := e.open(args[0], document.ReadOnly)
		if err != nil {
			return err
		}
		defer doc.Close()
		summary := infoSummary{
			Path:        doc.Path(),
			Version:     doc.Version(),
			Encrypted:   doc.Encrypted(),
			Locked:      doc.Locked(),
			Info:        doc.Info(),
			Permissions: doc.Permissions(),
		}
		if !doc.Locked() {
			summary.Pages = doc.PageCount()
			_, ferr := doc.AcroForm()
			summary.Form = ferr == nil
		}
		return emit(e, summary)
	}
}

func setupSetTitle(fs *flag.FlagSet) runFunc {
	out := fs.String("o", "", "Output path (default: overwrite the input)")
	incremental := fs.Bool("incremental", false, "Append the change instead of rewriting the file")
	return func(e *env, args []string) error {
		if err := needArgs("set-title", args, 2); err != nil {
			return err
		}
		opts, err := e.options(modeFor(*out))
		if err != nil {
			return err
		}
		opts.Incremental = *incremental
		doc, err := document.OpenWithOptions(args[0], opts)
		if err != nil {
			return err
		}
		defer doc.Close()
		if err := doc.SetTitle(strings.Join(args[1:], " ")); err != nil {
			return err
		}
		_, err = saveTo(doc, *out)
		return err
	}
}

type fieldSummary struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	ReadOnly bool   `json:"readOnly,omitempty"`
}

func setupFields(fs *flag.FlagSet) runFunc {
	return func(e *env, args []string) error {
		if err := needArgs("fields", args, 1); err != nil {
			return err
		}
		doc, err := e.open(args[0], document.ReadOnly)
		if err != nil {
			return err
		}
		defer doc.Close()
		form, err := doc.AcroForm()
		if err != nil {
			return err
		}
		var out []fieldSummary
		for _, f := range form.Fields() {
			out = append(out, fieldSummary{Name: f.Name(), Type: f.Type(), Value: f.Value(), ReadOnly: f.ReadOnly()})
		}
		return emit(e, out)
	}
}

func parseAssignments(args []string) ([][2]string, error) {
	out := make([][2]string, 0, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, usageError{fmt.Sprintf("fill: %q is not name=value", a)}
		}
		out = append(out, [2]string{name, value})
	}
	return out, nil
}

func setupFill(fs *flag.FlagSet) runFunc {
	out := fs.String("o", "", "Output path (default: overwrite the input)")
	calculate := fs.Bool("calculate", false, "Run the form's calculation scripts after filling")
	appearances := fs.Bool("appearances", false, "Generate field appearances instead of setting /NeedAppearances")
	return func(e *env, args []string) error {
		if err := needArgs("fill", args, 2); err != nil {
			return err
		}
		assignments, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		doc, err := e.open(args[0], modeFor(*out))
		if err != nil {
			return err
		}
		defer doc.Close()
		form, err := doc.AcroForm()
		if err != nil {
			return err
		}
		for _, kv := range assignments {
			field, err := form.Field(kv[0])
			if err != nil {
				return err
			}
			if field.Type() == "Btn" {
				on, perr := strconv.ParseBool(kv[1])
				if perr != nil {
					return fmt.Errorf("field %s: %w", kv[0], perr)
				}
				err = field.SetChecked(on)
			} else {
				err = field.SetValue(kv[1])
			}
			if err != nil {
				return fmt.Errorf("field %s: %w", kv[0], err)
			}
		}
		if *calculate {
			if _, err := form.Calculate(context.Background(), e.logger); err != nil {
				return fmt.Errorf("calculate: %w", err)
			}
		}
		if *appearances {
			if err := form.GenerateAppearances(); err != nil {
				return err
			}
		}
		_, err = saveTo(doc, *out)
		return err
	}
}

func setupEncrypt(fs *flag.FlagSet) runFunc {
	out := fs.String("o", "", "Output path (default: overwrite the input)")
	user := fs.String("user", "", "User password")
	owner := fs.String("owner", "", "Owner password (default: the user password)")
	alg := fs.String("alg", security.AES256.String(), "rc4-40, rc4-128, aes-128 or aes-256")
	perms := fs.String("allow", "all", "Comma separated permissions: print,modify,copy,annotate,fill,extract,assemble,print-hq, all or none")
	return func(e *env, args []string) error {
		if err := needArgs("encrypt", args, 1); err != nil {
			return err
		}
		algorithm, err := security.ParseAlgorithm(*alg)
		if err != nil {
			return usageError{err.Error()}
		}
		permissions, err := parsePermissions(*perms)
		if err != nil {
			return usageError{err.Error()}
		}
		doc, err := e.open(args[0], modeFor(*out))
		if err != nil {
			return err
		}
		defer doc.Close()
		if doc.Locked() {
			return document.ErrLocked
		}
		if err := doc.SetEncryption(security.Options{
			UserPassword:  *user,
			OwnerPassword: *owner,
			Permissions:   permissions,
			Algorithm:     algorithm,
		}); err != nil {
			return err
		}
		_, err = saveTo(doc, *out)
		return err
	}
}

func parsePermissions(s string) (raw.Permissions, error) {
	var p raw.Permissions
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "", "none":
		case "all":
			p = raw.AllPermissions()
		case "print":
			p.Print = true
		case "modify":
			p.Modify = true
		case "copy":
			p.Copy = true
		case "annotate":
			p.ModifyAnnotations = true
		case "fill":
			p.FillForms = true
		case "extract":
			p.ExtractAccessible = true
		case "assemble":
			p.Assemble = true
		case "print-hq":
			p.PrintHighQuality = true
		default:
			return p, fmt.Errorf("unknown permission %q", name)
		}
	}
	return p, nil
}

func setupDecrypt(fs *flag.FlagSet) runFunc {
	out := fs.String("o", "", "Output path (default: overwrite the input)")
	return func(e *env, args []string) error {
		if err := needArgs("decrypt", args, 1); err != nil {
			return err
		}
		doc, err := e.open(args[0], modeFor(*out))
		if err != nil {
			return err
		}
		defer doc.Close()
		if !doc.Encrypted() {
			return errors.New("document is not encrypted")
		}
		if err := doc.RemoveEncryption(); err != nil {
			return err
		}
		_, err = saveTo(doc, *out)
		return err
	}
}

func setupOptimize(fs *flag.FlagSet) runFunc {
	out := fs.String("o", "", "Output path (default: overwrite the input)")
	return func(e *env, args []string) error {
		if err := needArgs("optimize", args, 1); err != nil {
			return err
		}
		doc, err := e.open(args[0], modeFor(*out))
		if err != nil {
			return err
		}
		defer doc.Close()
		stats, err := doc.Optimize(context.Background())
		if err != nil {
			return err
		}
		if _, err := saveTo(doc, *out); err != nil {
			return err
		}
		return emit(e, stats)
	}
}

type checkReport struct {
	Pages  int      `json:"pages"`
	Broken []string `json:"brokenReferences"`
	Error  string   `json:"error,omitempty"`
}

var errBroken = errors.New("document has broken references")

func setupCheck(fs *flag.FlagSet) runFunc {
	return func(e *env, args []string) error {
		if err := needArgs("check", args, 1); err != nil {
			return err
		}
		doc, err := e.open(args[0], document.ReadOnly)
		if err != nil {
			return err
		}
		defer doc.Close()
		if doc.Locked() {
			return document.ErrLocked
		}
		report := checkReport{Pages: doc.PageCount(), Broken: []string{}}
		broken, walkErr := doc.Raw().CheckReferences()
		for _, b := range broken {
			report.Broken = append(report.Broken, b.Error())
		}
		if walkErr != nil {
			report.Error = walkErr.Error()
		}
		if err := emit(e, report); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
		if len(report.Broken) > 0 {
			return errBroken
		}
		return nil
	}
}

func setupNew(fs *flag.FlagSet) runFunc {
	title := fs.String("title", "", "Document title")
	text := fs.String("text", "", "Text centered on the page")
	family := fs.String("font", "Go", "Font family for -text")
	size := fs.Float64("size", 24, "Font size in points")
	imagePath := fs.String("image", "", "Image drawn below the text")
	fontFile := fs.String("font-file", "", "TrueType file registered under the -font family")
	return func(e *env, args []string) error {
		if err := needArgs("new", args, 1); err != nil {
			return err
		}
		var opts []builder.Option
		if *fontFile != "" {
			data, err := os.ReadFile(*fontFile)
			if err != nil {
				return err
			}
			r := fonts.NewStaticResolver(fonts.CurrentResolver())
			if err := r.Add(*family, fonts.Regular, data); err != nil {
				return err
			}
			opts = append(opts, builder.WithFontResolver(r))
		}

		doc := document.New()
		defer doc.Close()
		if *title != "" {
			if err := doc.SetTitle(*title); err != nil {
				return err
			}
		}
		g, err := builder.NewPage(doc, 0, 0, opts...)
		if err != nil {
			return err
		}
		width, height := g.Size()
		if *text != "" {
			font := builder.Font{Family: *family, Size: *size}
			if err := g.DrawString(*text, font, builder.Rect{Y: height / 2, Width: width, Height: height / 2}, builder.Center); err != nil {
				return err
			}
		}
		if *imagePath != "" {
			data, err := os.ReadFile(*imagePath)
			if err != nil {
				return err
			}
			img, err := g.DecodeImage(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", *imagePath, err)
			}
			w, h := fitInto(float64(img.Width), float64(img.Height), width-72, height/2-72)
			if err := g.DrawImage(img, (width-w)/2, (height/2-h)/2, w, h); err != nil {
				return err
			}
		}
		if err := g.Close(); err != nil {
			return err
		}
		out, err := saveTo(doc, args[0])
		if err != nil {
			return err
		}
		e.logger.Info("created document")
		fmt.Fprintln(e.stdout, out)
		return nil
	}
}

// fitInto scales w x h down to fit maxW x maxH, keeping the aspect ratio.
func fitInto(w, h, maxW, maxH float64) (float64, float64) {
	scale := 1.0
	if w > maxW {
		scale = maxW / w
	}
	if h*scale > maxH {
		scale = maxH / h
	}
	return w * scale, h * scale
}

func setupBatch(fs *flag.FlagSet) runFunc {
	title := fs.String("title", "", "Title to set on every document")
	outDir := fs.String("out", "", "Directory for the results (default: overwrite the inputs)")
	jobs := fs.Int("j", 4, "Documents processed concurrently")
	stop := fs.Bool("stop", false, "Stop at the first failure")
	return func(e *env, args []string) error {
		if err := needArgs("batch", args, 1); err != nil {
			return err
		}
		cfg := batch.NewDefaultConfig()
		cfg.MaxConcurrent = *jobs
		cfg.StopOnError = *stop
		cfg.Logger = e.logger
		opts, err := e.options(document.ReadOnly)
		if err != nil {
			return err
		}
		cfg.Open = opts
		p, err := batch.NewProcessor(cfg)
		if err != nil {
			return usageError{err.Error()}
		}
		list := make([]batch.Job, len(args))
		for i, in := range args {
			list[i] = batch.Job{
				Input:    in,
				Password: opts.Password,
				Edit: func(_ context.Context, doc *document.Document) error {
					if *title == "" {
						return nil
					}
					return doc.SetTitle(*title)
				},
			}
			if *outDir != "" {
				list[i].Output = filepath.Join(*outDir, filepath.Base(in))
			}
		}
		results, err := p.Run(context.Background(), list)
		failed := 0
		for _, r := range results {
			status := "ok"
			if r.Err != nil {
				status = r.Err.Error()
				failed++
			}
			fmt.Fprintf(e.stdout, "%s\t%s\n", r.Job.Input, status)
		}
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed", failed, len(results))
		}
		return nil
	}
}
