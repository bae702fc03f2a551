package builtin

import (
	"time"

	"obi.dev/obi"
)

func delay(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	ms, err := numberArg(ctx, "delay", args, 0)
	if err != nil {
		return nil, err
	}
	callback, err := callableArg(ctx, "delay", args, 1)
	if err != nil {
		return nil, err
	}
	if ms < 0 {
		ms = 0
	}

	id := ctx.WaitGroup.Defer(time.Duration(ms*float64(time.Millisecond)), func() error {
		_, err := ctx.Call(callback)
		return err
	})
	return ctx.NewNumber(float64(id)), nil
}

// clear_delay ignores ids that are unknown or already fired.
func clearDelay(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	id, ok := args[0].(*obi.Number)
	if !ok {
		return nil, nil
	}
	ctx.WaitGroup.Cancel(int(id.Data()))
	return nil, nil
}
