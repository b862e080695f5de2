// Command pdfcodec inspects and edits PDF files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/wudi/pdfcodec/document"
	"github.com/wudi/pdfcodec/observability"
)

// command defines its flags in setup and returns the function that runs
// it once the flags are parsed.
type command struct {
	name    string
	args    string
	summary string
	setup   func(fs *flag.FlagSet) runFunc
}

type runFunc func(e *env, args []string) error

var commands = map[string]command{}

func register(c command) { commands[c.name] = c }

// env carries the flags shared by every command.
type env struct {
	stdout       io.Writer
	stdin        *os.File
	logger       observability.Logger
	password     string
	passwordFile string
	askPassword  bool
	strict       bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "pdfcodec: %v\n", err)
		var uerr usageError
		if errors.As(err, &uerr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: pdfcodec <command> [flags] <args>\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return usageError{"missing command"}
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(stdout)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(stderr)
		return usageError{fmt.Sprintf("unknown command %q", args[0])}
	}

	e := &env{stdout: stdout, stdin: os.Stdin}
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfcodec %s [flags] %s\n", cmd.name, cmd.args)
		fs.PrintDefaults()
	}
	verbose := fs.Bool("v", false, "Log progress to stderr")
	fs.StringVar(&e.password, "password", "", "Password to open encrypted PDFs")
	fs.StringVar(&e.passwordFile, "password-file", "", "Read the password from the first line of a file")
	fs.BoolVar(&e.askPassword, "ask-password", false, "Prompt for the password on the terminal")
	fs.BoolVar(&e.strict, "strict", false, "Fail on the first structural problem instead of repairing")

	runCmd := cmd.setup(fs)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return usageError{err.Error()}
	}
	e.logger = observability.NopLogger{}
	if *verbose {
		e.logger = observability.NewSlogLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	return runCmd(e, fs.Args())
}

func (e *env) resolvePassword() (string, error) {
	switch {
	case e.password != "":
		return e.password, nil
	case e.passwordFile != "":
		data, err := os.ReadFile(e.passwordFile)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		line, _, _ := strings.Cut(string(data), "\n")
		return strings.TrimRight(line, "\r"), nil
	case e.askPassword:
		fd := int(e.stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New("-ask-password needs a terminal")
		}
		fmt.Fprint(os.Stderr, "password: ")
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}
	return "", nil
}

func (e *env) options(mode document.Mode) (document.Options, error) {
	opts := document.NewDefaultOptions()
	opts.Mode = mode
	opts.Logger = e.logger
	if e.strict {
		opts.Recovery = document.RecoveryStrict
	}
	pw, err := e.resolvePassword()
	if err != nil {
		return opts, err
	}
	opts.Password = pw
	return opts, nil
}

func (e *env) open(path string, mode document.Mode) (*document.Document, error) {
	opts, err := e.options(mode)
	if err != nil {
		return nil, err
	}
	return document.OpenWithOptions(path, opts)
}

// saveTo saves doc to out, or over its own file when out is empty. A path
// without extension gets ".pdf".
func saveTo(doc *document.Document, out string) (string, error) {
	if out == "" {
		out = doc.Path()
	}
	// Save reports why when CanSave refuses
	doc.CanSave(&out)
	return out, doc.Save(out)
}

// modeFor opens in place edits in Modify mode.
func modeFor(out string) document.Mode {
	if out == "" {
		return document.Modify
	}
	return document.ReadOnly
}

func needArgs(name string, args []string, n int) error {
	if len(args) < n {
		return usageError{fmt.Sprintf("%s: expected %d argument(s), got %d", name, n, len(args))}
	}
	return nil
}
