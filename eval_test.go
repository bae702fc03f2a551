package obi

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, source string) (string, string, error) {
	t.Helper()
	ctx, stdout, stderr := newTestContext()
	_, err := ctx.Run(source, "")
	return stdout.String(), stderr.String(), err
}

func TestEvalAssignment(t *testing.T) {
	stdout, _, err := run(t, "x := 1; x = x + 1; print(x);")
	assert.NoError(t, err)
	assert.Equal(t, "2\n", stdout)
}

func TestEvalRecursiveMatch(t *testing.T) {
	stdout, _, err := run(t, `
		f := fun(n){ match (n) { 0 -> return 1; _ -> return n * f(n - 1); } };
		print(f(5));
	`)
	assert.NoError(t, err)
	assert.Equal(t, "120\n", stdout)
}

func TestEvalTableAccess(t *testing.T) {
	stdout, _, err := run(t, "t := [a = 1, 2, 3]; print(t.a); print(t.(0));")
	assert.NoError(t, err)
	assert.Equal(t, "1\n2\n", stdout)
}

func TestEvalTableEntriesSeeEarlierNames(t *testing.T) {
	stdout, _, err := run(t, `
		t := [width = 2, height = width * 3, width + height];
		print(t.height);
		print(t.(0));
		print(t.missing);
	`)
	assert.NoError(t, err)
	assert.Equal(t, "6\n8\nnil\n", stdout)
}

func TestEvalTableMutation(t *testing.T) {
	stdout, _, err := run(t, `
		t := [];
		u := t;
		t.name = "obi";
		u.("n" + "ame") = u.name + "!";
		t.(1) = 2;
		print(t.name);
		print(u.(1));
	`)
	assert.NoError(t, err)
	assert.Equal(t, "obi!\n2\n", stdout)
}

func TestEvalClosures(t *testing.T) {
	stdout, _, err := run(t, `
		counter := fun() {
			count := 0;
			fun() { count = count + 1; count }
		};
		a := counter();
		b := counter();
		a(); a();
		print(a());
		print(b());
	`)
	assert.NoError(t, err)
	assert.Equal(t, "3\n1\n", stdout)
}

func TestEvalNamedFunctionBindsInDefiningScope(t *testing.T) {
	stdout, _, err := run(t, `
		{
			fun fib(n) { match (n < 2) { true -> n; _ -> fib(n - 1) + fib(n - 2); } }
			print(fib(10));
		}
	`)
	assert.NoError(t, err)
	assert.Equal(t, "55\n", stdout)
}

func TestEvalForwardReferenceToGlobal(t *testing.T) {
	stdout, _, err := run(t, `
		fun a() { b() }
		fun b() { "late" }
		print(a());
	`)
	assert.NoError(t, err)
	assert.Equal(t, "late\n", stdout)
}

func TestEvalBlockValue(t *testing.T) {
	stdout, _, err := run(t, `
		x := { a := 1; a + 1 };
		print(x);
		print({});
	`)
	assert.NoError(t, err)
	assert.Equal(t, "2\nnil\n", stdout)
}

func TestEvalLogical(t *testing.T) {
	stdout, _, err := run(t, `
		print(nil or "default");
		print(0 and "zero is truthy");
		print(false and undefined);
		print(true or undefined);
		print(!nil);
	`)
	assert.NoError(t, err)
	assert.Equal(t, "default\nzero is truthy\nfalse\ntrue\ntrue\n", stdout)
}

func TestEvalArithmetic(t *testing.T) {
	stdout, _, err := run(t, `
		print(1 + 2 * 3 - 4 / 2);
		print(-(3));
		print("a" + "b");
		print(1 / 0);
		print(2 >= 2);
		print(1 != 1);
		print("a" == "a");
	`)
	assert.NoError(t, err)
	assert.Equal(t, "5\n-3\nab\nInf\ntrue\nfalse\ntrue\n", stdout)
}

func TestEvalMatchEvaluatesDiscriminantOnce(t *testing.T) {
	stdout, _, err := run(t, `
		calls := 0;
		next := fun() { calls = calls + 1; calls };
		match next() { 5 -> nil; 6 -> nil; _ -> nil; }
		print(calls);
	`)
	assert.NoError(t, err)
	assert.Equal(t, "1\n", stdout)
}

func TestEvalNamedFunctionDeclarationIsNotCalled(t *testing.T) {
	stdout, stderr, err := run(t, `fun h() { print(0); } (1);`)
	assert.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Empty(t, stdout)
}

func TestEvalIsRepeatable(t *testing.T) {
	first, _, err := run(t, "print(1 + 1);")
	require.NoError(t, err)
	second, _, err := run(t, "print(1 + 1);")
	require.NoError(t, err)
	assert.Equal(t, "2\n", first)
	assert.Equal(t, first, second)
}

func TestEvalFunctionString(t *testing.T) {
	stdout, _, err := run(t, `
		fun named() {}
		print(named);
		print(fun() {});
		print(print);
	`)
	assert.NoError(t, err)
	assert.Equal(t, "<lambda named>\n<lambda>\n<native fn>\n", stdout)
}

func TestEvalReturnWithoutValue(t *testing.T) {
	stdout, _, err := run(t, `
		f := fun() { return; 1 };
		print(f());
	`)
	assert.NoError(t, err)
	assert.Equal(t, "nil\n", stdout)
}

func TestEvalRuntimeErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"add", `print(1 + "a");`, "Operands must be two numbers or two strings.\n[line 1:9]\n"},
		{"compare", `1 < "a";`, "Operands must be numbers.\n[line 1:3]\n"},
		{"negate", `-"a";`, "Operand must be a number.\n[line 1:1]\n"},
		{"call", `x := 1; x();`, "Can only call functions.\n[line 1:11]\n"},
		{"arity", `f := fun(a) {}; f();`, "Expected 1 arguments but got 0.\n[line 1:19]\n"},
		{"undefined", `print(y);`, "Undefined variable 'y'.\n[line 1:7]\n"},
		{"assign undefined", `y = 1;`, "Undefined variable 'y'.\n[line 1:1]\n"},
		{"property", `x := 1; x.a;`, "Only tables have properties.\n[line 1:11]\n"},
		{"field", `x := 1; x.a = 2;`, "Only tables have fields.\n[line 1:11]\n"},
		{"unmatched", `match 1 { 2 -> nil; }`, "Unmatched match block.\n[line 1:1]\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, stderr, err := run(t, test.source)
			assert.Error(t, err)
			assert.Equal(t, test.want, stderr)
		})
	}
}

func TestEvalRuntimeErrorAbandonsProgram(t *testing.T) {
	ctx, stdout, _ := newTestContext()
	_, err := ctx.Run(`print(1); undefined; print(2);`, "")
	assert.Error(t, err)
	assert.True(t, ctx.Diagnostics.HadRuntimeError)
	assert.Equal(t, "1\n", stdout.String())
}

func TestEvalRuntimeErrorTrace(t *testing.T) {
	ctx, _, _ := newTestContext()
	_, err := ctx.Run("fun inner() { 1 + nil }\nfun outer() { inner() }\nouter();", "")
	var rtErr *Error
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, "Operands must be two numbers or two strings.", rtErr.Error())
	require.Len(t, rtErr.Trace, 2)
	assert.Equal(t, "inner", rtErr.Trace[0].Function)
	assert.Equal(t, "outer", rtErr.Trace[1].Function)
	assert.Equal(t, 3, rtErr.Trace[1].Location.Line)
}

func TestEvalStaticErrorSkipsEvaluation(t *testing.T) {
	stdout, stderr, err := run(t, "print(1); { a := 1; a := 2; }")
	assert.ErrorIs(t, err, ErrStatic)
	assert.Empty(t, stdout)
	assert.NotEmpty(t, stderr)
}

func TestEvalSelfTailCall(t *testing.T) {
	ctx, stdout, _ := newTestContext()
	depths := []int{}
	ctx.Define("depth", ctx.NewBuiltin("depth", 0, func(ctx *Context, args []Value) (Value, error) {
		pcs := make([]uintptr, 1<<16)
		depths = append(depths, runtime.Callers(0, pcs))
		return nil, nil
	}))

	_, err := ctx.Run(`
		sum := fun(n, acc) {
			match (n) { 0 -> { depth(); return acc; } _ -> nil; };
			sum(n - 1, acc + n)
		};
		print(sum(10, 0));
		print(sum(1000, 0));
		print(sum(100000, 0));
	`, "")
	assert.NoError(t, err)
	assert.Equal(t, "55\n500500\n5000050000\n", stdout.String())
	require.Len(t, depths, 3)
	assert.Equal(t, depths[0], depths[1])
	assert.Equal(t, depths[0], depths[2])
}

func TestEvalTailCallArityIsChecked(t *testing.T) {
	_, stderr, err := run(t, "f := fun(n) { match (n) { 0 -> return 0; _ -> nil; }; f() };\nf(1);")
	assert.Error(t, err)
	assert.Equal(t, "Expected 1 arguments but got 0.\n[line 1:57]\n", stderr)
}

func TestEvalBytesAccess(t *testing.T) {
	ctx, stdout, _ := newTestContext()
	ctx.Define("data", ctx.NewBytes([]byte{7, 8}))
	_, err := ctx.Run("data.(1) = 9; print(data.len); print(data.(0) + data.(1));", "")
	assert.NoError(t, err)
	assert.Equal(t, "2\n16\n", stdout.String())

	_, err = ctx.Run("data.(2);", "")
	assert.Error(t, err)
}
