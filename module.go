package obi

import (
	"context"
	"fmt"
	"io"
)

// Compile scans, parses, and resolves a unit of source. Resolution only
// runs when parsing reported no errors, and ErrStatic is returned when
// either stage did.
func (ctx *Context) Compile(source string, file string, module bool) (AstProgram, error) {
	before := ctx.Diagnostics.Count()

	tokens := Scan(ctx, source, file)
	program := Parse(ctx, tokens)
	if ctx.Diagnostics.Count() > before {
		return program, fmt.Errorf("%w in %s", ErrStatic, file)
	}

	resolver := NewResolver(ctx)
	if module {
		resolver.ResolveModule(program)
	} else {
		resolver.ResolveProgram(program)
	}
	if ctx.Diagnostics.Count() > before {
		return program, fmt.Errorf("%w in %s", ErrStatic, file)
	}

	return program, nil
}

// Run compiles and interprets a script against the global environment.
func (ctx *Context) Run(source string, file string) (Value, error) {
	program, err := ctx.Compile(source, file, false)
	if err != nil {
		return nil, err
	}
	return ctx.Interpret(program)
}

// Interpret evaluates top-level expressions in order. The first runtime
// error abandons the rest of the program and is reported to the
// diagnostics sink. Interpret returns once every asynchronous operation
// has finished.
func (ctx *Context) Interpret(program AstProgram) (Value, error) {
	result, err := program.Eval(ctx, ctx.Globals)
	if err != nil {
		ctx.Diagnostics.ReportRuntime(err)
	}

	if waitErr := ctx.WaitGroup.Wait(context.Background()); waitErr != nil {
		ctx.Diagnostics.ReportRuntime(waitErr)
		if err == nil {
			err = waitErr
		}
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}

// LoadModule evaluates a module source in a child of parent and returns a
// table of its published bindings. Results are cached by content hash, so
// loading identical source twice evaluates it once.
func (ctx *Context) LoadModule(parent *Environment, name string, source string) (*Table, error) {
	key := ctx.Hash(source)
	if exports, ok := ctx.modules[key]; ok {
		ctx.Logger.Debug("module cache hit", "module", name, "hash", key)
		return exports, nil
	}
	if ctx.loading[key] {
		return nil, fmt.Errorf("%w: %s", ErrImportCycle, name)
	}
	ctx.loading[key] = true
	defer delete(ctx.loading, key)

	ctx.Logger.Debug("loading module", "module", name, "hash", key)
	program, err := ctx.Compile(source, name, true)
	if err != nil {
		return nil, err
	}

	env := NewEnvironment(parent)
	if _, err := program.Eval(ctx, env); err != nil {
		return nil, err
	}

	exports := ctx.NewTable()
	for _, published := range env.Published() {
		value, err := env.Get(published)
		if err != nil {
			continue
		}
		exports.Set(ctx.NewString(published), value)
	}
	ctx.modules[key] = exports
	return exports, nil
}

// Check reports the static errors of a source text without evaluating it.
func Check(source string, file string) []ParseError {
	ctx := NewContext()
	ctx.SetOutput(io.Discard, io.Discard)
	ctx.Compile(source, file, false)
	return ctx.Diagnostics.Since(0)
}
