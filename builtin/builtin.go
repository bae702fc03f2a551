// Package builtin provides the native functions and the prelude that make
// up the standard global environment.
package builtin

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"obi.dev/obi"
)

type Options struct {
	// Script arguments exposed by process_args.
	Args []string
	// Path of the entry script. mod() resolves relative to its directory.
	EntryFile string
	// Additional roots searched by mod().
	ModulePath []string
	// Reads module and file sources. Defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)
	// Client used by fetch. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (self Options) withDefaults() Options {
	if self.ReadFile == nil {
		self.ReadFile = os.ReadFile
	}
	if self.HTTPClient == nil {
		self.HTTPClient = http.DefaultClient
	}
	return self
}

// Register defines every native function in the global environment and
// then evaluates the prelude.
func Register(ctx *obi.Context, options Options) error {
	RegisterNatives(ctx, options)
	return LoadPrelude(ctx)
}

// RegisterNatives defines the native functions without the prelude.
func RegisterNatives(ctx *obi.Context, options Options) {
	options = options.withDefaults()

	define := func(name string, arity int, impl obi.BuiltinFunc) {
		ctx.Define(name, ctx.NewBuiltin(name, arity, impl))
	}

	define("print", 1, printLine)
	define("clock", 0, clock)
	define("delay", 2, delay)
	define("clear_delay", 1, clearDelay)
	define("clearDelay", 1, clearDelay)
	define("type", 1, typeOf)
	define("keys", 1, keys)
	define("remove", 2, remove)
	define("str", 1, str)
	define("strlen", 1, strlen)
	define("strslice", 3, strslice)
	define("parse_float", 1, parseFloat)
	define("len", 1, length)
	define("readfile", 1, readFile(options))
	define("readfile_bytes", 1, readFileBytes(options))
	define("bytes_concat", 2, bytesConcat)
	define("text_encode", 1, textEncode)
	define("text_decode", 1, textDecode)
	define("base64_encode", 1, base64Encode)
	define("base64_decode", 1, base64Decode)
	define("sha256", 1, sha256Hex)
	define("process_args", 0, processArgs(options))
	define("mod", 1, mod(options))
	define("listen_tcp", 3, listenTCP)
	define("exec", 3, execCommand)
	define("fetch", 2, fetch(options))
	define("load_wasm", 1, loadWasm)
}

func argError(ctx *obi.Context, name string, index int, want string, got obi.Value) error {
	return ctx.Errorf(nil, "%s expects %s as argument %d, got %s.", name, want, index+1, got.Typename())
}

func stringArg(ctx *obi.Context, name string, args []obi.Value, index int) (string, error) {
	value, ok := args[index].(*obi.String)
	if !ok {
		return "", argError(ctx, name, index, "a string", args[index])
	}
	return value.Data(), nil
}

func numberArg(ctx *obi.Context, name string, args []obi.Value, index int) (float64, error) {
	value, ok := args[index].(*obi.Number)
	if !ok {
		return 0, argError(ctx, name, index, "a number", args[index])
	}
	return value.Data(), nil
}

func bytesArg(ctx *obi.Context, name string, args []obi.Value, index int) ([]byte, error) {
	value, ok := args[index].(*obi.Bytes)
	if !ok {
		return nil, argError(ctx, name, index, "bytes", args[index])
	}
	return value.Data(), nil
}

func tableArg(ctx *obi.Context, name string, args []obi.Value, index int) (*obi.Table, error) {
	value, ok := args[index].(*obi.Table)
	if !ok {
		return nil, argError(ctx, name, index, "a table", args[index])
	}
	return value, nil
}

func callableArg(ctx *obi.Context, name string, args []obi.Value, index int) (obi.Callable, error) {
	value, ok := args[index].(obi.Callable)
	if !ok {
		return nil, argError(ctx, name, index, "a function", args[index])
	}
	return value, nil
}

// Builds a table from alternating string keys and values.
func record(ctx *obi.Context, pairs ...any) *obi.Table {
	table := ctx.NewTable()
	for i := 0; i+1 < len(pairs); i += 2 {
		table.Set(ctx.NewString(pairs[i].(string)), pairs[i+1].(obi.Value))
	}
	return table
}

func printLine(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	_, err := fmt.Fprintln(ctx.Stdout, args[0].String())
	return nil, err
}

func clock(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	return ctx.NewNumber(float64(time.Now().UnixMilli())), nil
}

func typeOf(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	return ctx.NewString(args[0].Typename()), nil
}

func str(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	return ctx.NewString(args[0].String()), nil
}

func keys(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	table, err := tableArg(ctx, "keys", args, 0)
	if err != nil {
		return nil, err
	}
	result := ctx.NewTable()
	all := table.Keys()
	for i, key := range all {
		result.Set(ctx.NewNumber(float64(i)), key)
	}
	result.Set(ctx.NewString("len"), ctx.NewNumber(float64(len(all))))
	return result, nil
}

func remove(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	table, err := tableArg(ctx, "remove", args, 0)
	if err != nil {
		return nil, err
	}
	value := table.Get(args[1])
	table.Remove(args[1])
	return value, nil
}

func length(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	switch value := args[0].(type) {
	case *obi.String:
		return ctx.NewNumber(float64(len([]rune(value.Data())))), nil
	case *obi.Bytes:
		return ctx.NewNumber(float64(len(value.Data()))), nil
	case *obi.Table:
		return ctx.NewNumber(float64(value.Count())), nil
	}
	return nil, argError(ctx, "len", 0, "a string, bytes, or table", args[0])
}

func processArgs(options Options) obi.BuiltinFunc {
	return func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
		table := ctx.NewTable()
		for i, arg := range options.Args {
			table.Set(ctx.NewNumber(float64(i)), ctx.NewString(arg))
		}
		table.Set(ctx.NewString("count"), ctx.NewNumber(float64(len(options.Args))))
		return table, nil
	}
}
