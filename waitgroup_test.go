package obi

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestWaitGroup() *WaitGroup {
	return NewWaitGroup(slog.New(slog.DiscardHandler))
}

func TestWaitGroupBalanced(t *testing.T) {
	wg := newTestWaitGroup()
	wg.Add(2)
	for range 2 {
		go func() {
			time.Sleep(10 * time.Millisecond)
			wg.Done()
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, wg.Wait(ctx))
	assert.Equal(t, 0, wg.Pending())
}

func TestWaitGroupMissingDoneNeverCompletes(t *testing.T) {
	wg := newTestWaitGroup()
	wg.Add(2)
	go func() {
		time.Sleep(10 * time.Millisecond)
		wg.Done()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, wg.Wait(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, wg.Pending())
}

func TestWaitGroupRunsCallbacksInCompletionOrder(t *testing.T) {
	wg := newTestWaitGroup()
	order := []string{}
	wg.Defer(40*time.Millisecond, func() error {
		order = append(order, "slow")
		return nil
	})
	wg.Defer(5*time.Millisecond, func() error {
		order = append(order, "fast")
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, wg.Wait(ctx))
	assert.Equal(t, []string{"fast", "slow"}, order)
}

func TestWaitGroupCancel(t *testing.T) {
	wg := newTestWaitGroup()
	fired := false
	id := wg.Defer(time.Hour, func() error {
		fired = true
		return nil
	})
	assert.Equal(t, 1, wg.Pending())
	assert.True(t, wg.Cancel(id))
	assert.False(t, wg.Cancel(id))
	assert.Equal(t, 0, wg.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, wg.Wait(ctx))
	assert.False(t, fired)
}

func TestWaitGroupCancelAfterFireIsNoop(t *testing.T) {
	wg := newTestWaitGroup()
	id := wg.Defer(time.Millisecond, func() error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, wg.Wait(ctx))
	assert.False(t, wg.Cancel(id))
	assert.Equal(t, 0, wg.Pending())
}

func TestWaitGroupNestedDefer(t *testing.T) {
	wg := newTestWaitGroup()
	count := 0
	wg.Defer(time.Millisecond, func() error {
		count += 1
		wg.Defer(time.Millisecond, func() error {
			count += 1
			return nil
		})
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, wg.Wait(ctx))
	assert.Equal(t, 2, count)
}

func TestWaitGroupCallbackError(t *testing.T) {
	wg := newTestWaitGroup()
	failure := errors.New("failure")
	wg.Add(1)
	go wg.Finish(func() error { return failure })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.ErrorIs(t, wg.Wait(ctx), failure)
}

func TestInterpretWaitsForDeferredCallbacks(t *testing.T) {
	ctx, stdout, _ := newTestContext()
	ctx.Define("later", ctx.NewBuiltin("later", 2, func(ctx *Context, args []Value) (Value, error) {
		ms := args[0].(*Number).Data()
		callback := args[1].(Callable)
		ctx.WaitGroup.Defer(time.Duration(ms)*time.Millisecond, func() error {
			_, err := callback.Call(ctx, nil)
			return err
		})
		return nil, nil
	}))

	_, err := ctx.Run(`
		later(20) { print("second"); }
		later(1) { print("first"); }
		print("sync");
	`, "")
	assert.NoError(t, err)
	assert.Equal(t, "sync\nfirst\nsecond\n", stdout.String())
}
