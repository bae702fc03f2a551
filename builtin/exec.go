package builtin

import (
	"bytes"
	"errors"
	"os/exec"

	"obi.dev/obi"
)

// Positional string entries 0, 1, ... up to the first missing index.
func stringList(ctx *obi.Context, name string, table *obi.Table) ([]string, error) {
	var result []string
	for i := 0; ; i++ {
		value := table.Get(ctx.NewNumber(float64(i)))
		if value == nil {
			return result, nil
		}
		s, ok := value.(*obi.String)
		if !ok {
			return nil, ctx.Errorf(nil, "%s expects string arguments, got %s at index %d.", name, value.Typename(), i)
		}
		result = append(result, s.Data())
	}
}

type commandResult struct {
	code   int
	stdout string
	stderr string
	err    error
}

func runCommand(command string, args []string) commandResult {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		stdout: stdout.String(),
		stderr: stderr.String(),
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.code = 0
	case errors.As(err, &exitErr):
		result.code = exitErr.ExitCode()
	default:
		result.code = -1
		result.err = err
	}
	return result
}

// exec(command, args, callback) calls back with [code =, stdout =, stderr =].
// A command that could not be started reports code -1 and an error entry.
func execCommand(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	command, err := stringArg(ctx, "exec", args, 0)
	if err != nil {
		return nil, err
	}
	table, err := tableArg(ctx, "exec", args, 1)
	if err != nil {
		return nil, err
	}
	callback, err := callableArg(ctx, "exec", args, 2)
	if err != nil {
		return nil, err
	}
	argv, err := stringList(ctx, "exec", table)
	if err != nil {
		return nil, err
	}

	ctx.WaitGroup.Add(1)
	go func() {
		result := runCommand(command, argv)
		ctx.Logger.Debug("command finished", "command", command, "code", result.code)
		ctx.WaitGroup.Finish(func() error {
			value := record(ctx,
				"code", ctx.NewNumber(float64(result.code)),
				"stdout", ctx.NewString(result.stdout),
				"stderr", ctx.NewString(result.stderr),
			)
			if result.err != nil {
				value.Set(ctx.NewString("error"), ctx.NewString(result.err.Error()))
			}
			_, err := ctx.Call(callback, value)
			return err
		})
	}()
	return nil, nil
}
