package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"git.sr.ht/~sircmpwn/getopt"
	"github.com/mattn/go-isatty"

	"obi.dev/obi"
	"obi.dev/obi/builtin"
	"obi.dev/obi/internal/config"
	"obi.dev/obi/internal/lsp"
)

// Exit statuses from sysexits.h.
const (
	exitOK      = 0
	exitUsage   = 64
	exitStatic  = 65
	exitNoInput = 66
	exitRuntime = 70
)

func usage(w io.Writer, program string) {
	fmt.Fprintf(w, `usage:
  %s [-hlntv] [-C CONFIG] FILE [ARGS...]
  %s [-hlntv] [-C CONFIG] -c COMMAND [ARGS...]

options:
  -c COMMAND   Execute the provided command.
  -C CONFIG    Read configuration from CONFIG.
  -h           Display this help text and exit.
  -l           Run the language server on stdin and stdout.
  -n           Do not load the prelude.
  -t           Dump an encoded table of lexed tokens to stdout.
  -v           Log debug output to stderr.

With no FILE or COMMAND, read the program from stdin, or start an
interactive session when stdin is a terminal.
`, program, program)
}

type flags struct {
	command    *string
	configPath string
	help       bool
	lsp        bool
	noPrelude  bool
	dumpTokens bool
	verbose    bool
	rest       []string
}

func parseFlags(args []string) (flags, error) {
	opts, optind, err := getopt.Getopts(args, "c:C:hlntv")
	if err != nil {
		return flags{}, err
	}

	var f flags
	for _, opt := range opts {
		switch opt.Option {
		case 'c':
			f.command = obi.Ptr(opt.Value)
		case 'C':
			f.configPath = opt.Value
		case 'h':
			f.help = true
		case 'l':
			f.lsp = true
		case 'n':
			f.noPrelude = true
		case 't':
			f.dumpTokens = true
		case 'v':
			f.verbose = true
		}
	}
	f.rest = args[optind:]
	return f, nil
}

func isTerminal(r io.Reader) bool {
	file, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

func dumpTokens(ctx *obi.Context, w io.Writer, source string, file string) error {
	tokens := ctx.NewTable()
	for _, token := range obi.Scan(ctx, source, file) {
		if token.Kind == obi.TOKEN_EOF {
			break
		}
		tokens.Set(ctx.NewNumber(float64(tokens.Count())), token.IntoValue(ctx))
	}
	if ctx.Diagnostics.HadError {
		return obi.ErrStatic
	}

	text, err := obi.Encode(tokens, obi.Ptr("    "))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, text)
	return err
}

func exitStatus(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, obi.ErrStatic):
		return exitStatic
	default:
		return exitRuntime
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	program := args[0]
	f, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		usage(stderr, program)
		return exitUsage
	}
	if f.help {
		usage(stdout, program)
		return exitOK
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	level, _ := cfg.Level()
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if f.lsp {
		if err := lsp.Serve(context.Background(), lsp.Transport{In: stdin, Out: stdout}, logger); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitRuntime
		}
		return exitOK
	}

	var source, file string
	var scriptArgs []string
	interactive := false
	switch {
	case f.command != nil:
		source, file, scriptArgs = *f.command, "<command>", f.rest
	case len(f.rest) > 0:
		data, err := os.ReadFile(f.rest[0])
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitNoInput
		}
		source, file, scriptArgs = string(data), f.rest[0], f.rest[1:]
	case isTerminal(stdin):
		interactive = true
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitNoInput
		}
		source, file = string(data), "<stdin>"
	}

	ctx := obi.NewContext()
	ctx.SetOutput(stdout, stderr)
	ctx.SetLogger(logger)

	if f.dumpTokens {
		if interactive {
			fmt.Fprintf(stderr, "error: requested token dump without a command or file path\n")
			usage(stderr, program)
			return exitUsage
		}
		return exitStatus(dumpTokens(ctx, stdout, source, file))
	}

	options := builtin.Options{
		Args:       scriptArgs,
		EntryFile:  file,
		ModulePath: cfg.ModulePath,
	}
	if strings.HasPrefix(file, "<") {
		options.EntryFile = ""
	}
	builtin.RegisterNatives(ctx, options)
	if !f.noPrelude {
		if err := builtin.LoadPrelude(ctx); err != nil {
			fmt.Fprintf(stderr, "error: prelude: %v\n", err)
			return exitRuntime
		}
	}

	if interactive {
		return repl(ctx, cfg, logger)
	}
	_, err = ctx.Run(source, file)
	return exitStatus(err)
}

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}
