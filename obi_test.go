package obi

import (
	"bytes"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Returns a context with a minimal print builtin and captured output.
func newTestContext() (*Context, *bytes.Buffer, *bytes.Buffer) {
	ctx := NewContext()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	ctx.SetOutput(stdout, stderr)
	ctx.Define("print", ctx.NewBuiltin("print", 1, func(ctx *Context, args []Value) (Value, error) {
		fmt.Fprintln(ctx.Stdout, args[0].String())
		return nil, nil
	}))
	return ctx, stdout, stderr
}

func TestNullTypename(t *testing.T) {
	ctx := NewContext()
	assert.Equal(t, "nil", ctx.Null.Typename())
	assert.Equal(t, "nil", ctx.Null.String())
}

func TestBooleanString(t *testing.T) {
	ctx := NewContext()
	{
		boolean := ctx.NewBoolean(true)
		assert.Equal(t, "boolean", boolean.Typename())
		assert.Equal(t, "true", boolean.String())
	}
	{
		boolean := ctx.NewBoolean(false)
		assert.Equal(t, "false", boolean.String())
	}
}

func TestNumberString(t *testing.T) {
	ctx := NewContext()
	assert.Equal(t, "number", ctx.NewNumber(0).Typename())
	assert.Equal(t, "0", ctx.NewNumber(0).String())
	assert.Equal(t, "-0", ctx.NewNumber(math.Copysign(0, -1)).String())
	assert.Equal(t, "120", ctx.NewNumber(120).String())
	assert.Equal(t, "-1.5", ctx.NewNumber(-1.5).String())
	assert.Equal(t, "0.1", ctx.NewNumber(0.1).String())
	assert.Equal(t, "5000050000", ctx.NewNumber(5000050000).String())
	assert.Equal(t, "1e+21", ctx.NewNumber(1e21).String())
	assert.Equal(t, "1e-07", ctx.NewNumber(1e-7).String())
	assert.Equal(t, "NaN", ctx.NewNumber(math.NaN()).String())
	assert.Equal(t, "Inf", ctx.NewNumber(math.Inf(+1)).String())
	assert.Equal(t, "-Inf", ctx.NewNumber(math.Inf(-1)).String())
}

func TestNumberEqual(t *testing.T) {
	ctx := NewContext()
	assert.True(t, ctx.NewNumber(1).Equal(ctx.NewNumber(1)))
	assert.False(t, ctx.NewNumber(1).Equal(ctx.NewNumber(2)))
	assert.False(t, ctx.NewNumber(1).Equal(ctx.NewString("1")))
	assert.Equal(t, ctx.NewNumber(0).Hash(), ctx.NewNumber(math.Copysign(0, -1)).Hash())
}

func TestStringEncode(t *testing.T) {
	ctx := NewContext()
	value := ctx.NewString("a\t\"b\"\n")
	assert.Equal(t, "a\t\"b\"\n", value.String())
	encoded, err := Encode(value, nil)
	assert.NoError(t, err)
	assert.Equal(t, `"a\t\"b\"\n"`, encoded)
}

func TestBytesIdentity(t *testing.T) {
	ctx := NewContext()
	a := ctx.NewBytes([]byte{1, 2})
	b := ctx.NewBytes([]byte{1, 2})
	assert.Equal(t, "bytes", a.Typename())
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b))
	encoded, err := Encode(a, nil)
	assert.NoError(t, err)
	assert.Equal(t, "<bytes 2>", encoded)
}

func TestIsTruthy(t *testing.T) {
	ctx := NewContext()
	assert.False(t, IsTruthy(ctx.Null))
	assert.False(t, IsTruthy(ctx.NewBoolean(false)))
	assert.True(t, IsTruthy(ctx.NewBoolean(true)))
	assert.True(t, IsTruthy(ctx.NewNumber(0)))
	assert.True(t, IsTruthy(ctx.NewString("")))
	assert.True(t, IsTruthy(ctx.NewTable()))
}

func TestIsEqual(t *testing.T) {
	ctx := NewContext()
	assert.True(t, IsEqual(ctx.Null, ctx.NewNull()))
	assert.False(t, IsEqual(ctx.Null, ctx.NewBoolean(false)))
	assert.True(t, IsEqual(ctx.NewString("a"), ctx.NewString("a")))
	a := ctx.NewTable()
	b := ctx.NewTable()
	assert.True(t, IsEqual(a, a))
	assert.False(t, IsEqual(a, b))
}

func TestBuiltinNilResult(t *testing.T) {
	ctx := NewContext()
	builtin := ctx.NewBuiltin("noop", 0, func(ctx *Context, args []Value) (Value, error) {
		return nil, nil
	})
	assert.Equal(t, "function", builtin.Typename())
	assert.Equal(t, "<native fn>", builtin.String())
	result, err := builtin.Call(ctx, nil)
	assert.NoError(t, err)
	assert.Same(t, ctx.Null, result)
}

func TestEnvironment(t *testing.T) {
	ctx := NewContext()
	outer := NewEnvironment(nil)
	inner := NewEnvironment(outer)
	outer.Let("a", ctx.NewNumber(1))

	value, err := inner.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, "1", value.String())

	assert.NoError(t, inner.Set("a", ctx.NewNumber(2)))
	value, err = outer.GetAt(0, "a")
	assert.NoError(t, err)
	assert.Equal(t, "2", value.String())

	_, err = inner.Get("missing")
	assert.EqualError(t, err, "Undefined variable 'missing'.")
	assert.Error(t, inner.Set("missing", ctx.Null))
	assert.Same(t, outer, inner.Ancestor(1))
	assert.Nil(t, inner.Ancestor(2))

	inner.Let("b", ctx.Null)
	inner.Publish("b")
	inner.Publish("b")
	assert.Equal(t, []string{"b"}, inner.Published())
}
