package obi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, source string) (AstProgram, *Context, string) {
	t.Helper()
	ctx, _, stderr := newTestContext()
	program := Parse(ctx, Scan(ctx, source, ""))
	return program, ctx, stderr.String()
}

func TestParseDeclaration(t *testing.T) {
	program, _, errs := parseSource(t, "x := 1; pub y := 2;")
	assert.Empty(t, errs)
	require.Len(t, program.Expressions, 2)

	x, ok := program.Expressions[0].(*AstExpressionVar)
	require.True(t, ok)
	assert.Equal(t, "x", x.Name.Lexeme)
	assert.False(t, x.Publish)

	y, ok := program.Expressions[1].(*AstExpressionVar)
	require.True(t, ok)
	assert.Equal(t, "y", y.Name.Lexeme)
	assert.True(t, y.Publish)
}

func TestParsePublishedFunction(t *testing.T) {
	program, _, errs := parseSource(t, "pub fun f(a, b) { a } fun g() {}")
	assert.Empty(t, errs)
	require.Len(t, program.Expressions, 2)

	f := program.Expressions[0].(*AstExpressionFunction)
	assert.Equal(t, "f", f.Name.Lexeme)
	assert.True(t, f.Publish)
	assert.Len(t, f.Parameters, 2)
	assert.Len(t, f.Body, 1)

	g := program.Expressions[1].(*AstExpressionFunction)
	assert.False(t, g.Publish)
	assert.Empty(t, g.Body)
}

func TestParseNamedFunctionEndsAtBody(t *testing.T) {
	{
		program, _, errs := parseSource(t, "fun h() { print(0); } (1);")
		assert.Empty(t, errs)
		require.Len(t, program.Expressions, 2)
		h := program.Expressions[0].(*AstExpressionFunction)
		assert.Equal(t, "h", h.Name.Lexeme)
		assert.IsType(t, &AstExpressionGrouping{}, program.Expressions[1])
	}
	{
		program, _, errs := parseSource(t, "fun f() {}; fun g() {}")
		assert.Empty(t, errs)
		assert.Len(t, program.Expressions, 2)
	}
	{
		program, _, errs := parseSource(t, "fun() { 1 }();")
		assert.Empty(t, errs)
		require.Len(t, program.Expressions, 1)
		assert.IsType(t, &AstExpressionCall{}, program.Expressions[0])
	}
}

func TestParsePubRequiresDeclaration(t *testing.T) {
	_, _, errs := parseSource(t, "pub 1;")
	assert.Equal(t, "[line 1:5] Error at '1': Expect declaration after 'pub'.\n", errs)
}

func TestParseAssignmentTargets(t *testing.T) {
	program, _, errs := parseSource(t, "a = 1; a.b = 2; a.(\"c\") = 3;")
	assert.Empty(t, errs)
	require.Len(t, program.Expressions, 3)
	assert.IsType(t, &AstExpressionAssign{}, program.Expressions[0])
	assert.IsType(t, &AstExpressionSet{}, program.Expressions[1])
	assert.IsType(t, &AstExpressionSetDyn{}, program.Expressions[2])
}

func TestParseInvalidAssignmentTarget(t *testing.T) {
	_, ctx, errs := parseSource(t, "1 = 2;")
	assert.Equal(t, "[line 1:3] Error at '=': Invalid assignment target.\n", errs)
	assert.True(t, ctx.Diagnostics.HadError)
}

func TestParseInvalidDeclarationTarget(t *testing.T) {
	_, _, errs := parseSource(t, "a.b := 2;")
	assert.Equal(t, "[line 1:5] Error at ':=': Invalid declaration target.\n", errs)
}

func TestParsePrecedence(t *testing.T) {
	program, _, errs := parseSource(t, "1 + 2 * 3 == 7 or false;")
	assert.Empty(t, errs)
	logical := program.Expressions[0].(*AstExpressionLogical)
	assert.Equal(t, TOKEN_OR, logical.Operator.Kind)
	equality := logical.Left.(*AstExpressionBinary)
	assert.Equal(t, TOKEN_EQUAL_EQUAL, equality.Operator.Kind)
	sum := equality.Left.(*AstExpressionBinary)
	assert.Equal(t, TOKEN_PLUS, sum.Operator.Kind)
	product := sum.Right.(*AstExpressionBinary)
	assert.Equal(t, TOKEN_STAR, product.Operator.Kind)
}

func TestParseTrailingArguments(t *testing.T) {
	program, _, errs := parseSource(t, "f(1) { 2 } fun(x) { x }")
	assert.Empty(t, errs)
	require.Len(t, program.Expressions, 1)
	call := program.Expressions[0].(*AstExpressionCall)
	require.Len(t, call.Arguments, 3)
	assert.IsType(t, &AstExpressionLiteral{}, call.Arguments[0])
	block := call.Arguments[1].(*AstExpressionFunction)
	assert.Empty(t, block.Parameters)
	lambda := call.Arguments[2].(*AstExpressionFunction)
	assert.Len(t, lambda.Parameters, 1)
}

func TestParseMatchDiscriminantCall(t *testing.T) {
	program, _, errs := parseSource(t, "match f(1) { 1 -> 2; _ -> 3; }")
	assert.Empty(t, errs)
	match := program.Expressions[0].(*AstExpressionMatch)
	call := match.Against.(*AstExpressionCall)
	assert.Len(t, call.Arguments, 1)
	require.Len(t, match.Cases, 2)
	assert.False(t, match.Cases[0].IsDefault)
	assert.True(t, match.Cases[1].IsDefault)
	assert.Nil(t, match.Cases[1].Pattern)
}

func TestParseEmptyMatch(t *testing.T) {
	_, _, errs := parseSource(t, "match x { }")
	assert.Equal(t, "[line 1:9] Error at '{': Expect non-empty match expression.\n", errs)
}

func TestParseTable(t *testing.T) {
	program, _, errs := parseSource(t, "[a = 1, 2, b = 3,];")
	assert.Empty(t, errs)
	table := program.Expressions[0].(*AstExpressionTable)
	require.Len(t, table.Entries, 3)
	assert.Equal(t, "a", table.Entries[0].Name.Lexeme)
	assert.Nil(t, table.Entries[1].Name)
	assert.Equal(t, "b", table.Entries[2].Name.Lexeme)
}

func TestParseUnterminatedTable(t *testing.T) {
	_, ctx, _ := parseSource(t, "[1, 2")
	errors := ctx.Diagnostics.Since(0)
	require.NotEmpty(t, errors)
	assert.True(t, errors[0].AtEnd())
}

func TestParseReturn(t *testing.T) {
	program, _, errs := parseSource(t, "fun() { return; } fun() { return }  fun() { return 1 }")
	assert.Empty(t, errs)
	call := program.Expressions[0].(*AstExpressionFunction)
	ret := call.Body[0].(*AstExpressionReturn)
	assert.Nil(t, ret.Value)
}

func TestParseTerminator(t *testing.T) {
	{
		_, _, errs := parseSource(t, "x := 1 y := 2;")
		assert.Equal(t, "[line 1:8] Error at 'y': Expect ';' after variable declaration.\n", errs)
	}
	{
		program, _, errs := parseSource(t, "f := fun() { 1 } g := 2;")
		assert.Empty(t, errs)
		assert.Len(t, program.Expressions, 2)
	}
	{
		_, _, errs := parseSource(t, "1 + 2")
		assert.Equal(t, "[line 1:6] Error at end: Expect ';' after expression.\n", errs)
	}
}

func TestParseRecovery(t *testing.T) {
	program, ctx, errs := parseSource(t, "x := ;\ny := 2;\nz := );\nw := 3;")
	assert.Equal(t, "[line 1:6] Error at ';': Expect expression.\n[line 3:6] Error at ')': Expect expression.\n", errs)
	assert.Equal(t, 2, ctx.Diagnostics.Count())
	require.Len(t, program.Expressions, 2)
	assert.Equal(t, "y", program.Expressions[0].(*AstExpressionVar).Name.Lexeme)
	assert.Equal(t, "w", program.Expressions[1].(*AstExpressionVar).Name.Lexeme)
}

func TestParseDynamicGet(t *testing.T) {
	program, _, errs := parseSource(t, "t.(0).name;")
	assert.Empty(t, errs)
	get := program.Expressions[0].(*AstExpressionGet)
	assert.Equal(t, "name", get.Name.Lexeme)
	assert.IsType(t, &AstExpressionGetDyn{}, get.Object)
}

func TestParseNodeIDsAreUnique(t *testing.T) {
	program, _, errs := parseSource(t, "a; a;")
	assert.Empty(t, errs)
	first := program.Expressions[0].(*AstExpressionVariable)
	second := program.Expressions[1].(*AstExpressionVariable)
	assert.NotEqual(t, first.ID, second.ID)
}
