package builtin

import (
	"errors"
	"io/fs"
	"path/filepath"

	"obi.dev/obi"
)

func readFile(options Options) obi.BuiltinFunc {
	return func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
		path, err := stringArg(ctx, "readfile", args, 0)
		if err != nil {
			return nil, err
		}
		data, err := options.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, ctx.Errorf(nil, "Failed to read '%s': %v", path, err)
		}
		return ctx.NewString(string(data)), nil
	}
}

func readFileBytes(options Options) obi.BuiltinFunc {
	return func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
		path, err := stringArg(ctx, "readfile_bytes", args, 0)
		if err != nil {
			return nil, err
		}
		data, err := options.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, ctx.Errorf(nil, "Failed to read '%s': %v", path, err)
		}
		return ctx.NewBytes(data), nil
	}
}

// Candidate locations of a module path, most specific first: the entry
// file's directory, then each module root.
func moduleCandidates(options Options, path string) []string {
	if filepath.IsAbs(path) {
		return []string{path}
	}
	base := "."
	if options.EntryFile != "" {
		base = filepath.Dir(options.EntryFile)
	}
	candidates := []string{filepath.Join(base, path)}
	for _, root := range options.ModulePath {
		candidates = append(candidates, filepath.Join(root, path))
	}
	return candidates
}

func mod(options Options) obi.BuiltinFunc {
	return func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
		path, err := stringArg(ctx, "mod", args, 0)
		if err != nil {
			return nil, err
		}

		for _, candidate := range moduleCandidates(options, path) {
			source, err := options.ReadFile(candidate)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, ctx.Errorf(nil, "Failed to read module '%s': %v", candidate, err)
			}

			// Free names in a module resolve to globals, so the module
			// environment hangs directly off the global one.
			exports, err := ctx.LoadModule(ctx.Globals, candidate, string(source))
			if err != nil {
				ctx.Logger.Debug("module load failed", "module", candidate, "error", err)
				if errors.Is(err, obi.ErrStatic) {
					rtErr := ctx.Errorf(nil, "Failed to load module '%s'.", path)
					rtErr.Cause = err
					return nil, rtErr
				}
				return nil, ctx.ErrorFrom(nil, err)
			}
			return exports, nil
		}
		return nil, ctx.Errorf(nil, "Module '%s' not found.", path)
	}
}
