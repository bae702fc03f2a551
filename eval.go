package obi

import (
	"errors"
	"fmt"
)

// Function is a closure over the environment its declaration was evaluated
// in.
type Function struct {
	declaration *AstExpressionFunction
	closure     *Environment
}

func (ctx *Context) NewFunction(declaration *AstExpressionFunction, closure *Environment) *Function {
	return &Function{
		declaration: declaration,
		closure:     closure,
	}
}

func (self *Function) Typename() string {
	return "function"
}

func (self *Function) String() string {
	if self.declaration.Name == nil {
		return "<lambda>"
	}
	return fmt.Sprintf("<lambda %s>", self.declaration.Name.Lexeme)
}

func (self *Function) Name() string {
	if self.declaration.Name == nil {
		return ""
	}
	return self.declaration.Name.Lexeme
}

func (self *Function) Hash() uint64 {
	return pointerHash(self)
}

func (self *Function) Equal(other Value) bool {
	othr, ok := other.(*Function)
	return ok && self == othr
}

func (self *Function) Encode(e *Encoder) error {
	return e.writeString(self.String())
}

func (self *Function) Arity() int {
	return len(self.declaration.Parameters)
}

// Call runs the function body in a fresh environment. A call to the same
// function in tail position rebinds the parameters and loops instead of
// growing the Go stack.
func (self *Function) Call(ctx *Context, args []Value) (Value, error) {
	looping := false
	for {
		env := NewEnvironment(self.closure)
		for i, parameter := range self.declaration.Parameters {
			env.Let(parameter.Lexeme, args[i])
		}

		body := self.declaration.Body
		if len(body) == 0 {
			return ctx.Null, nil
		}
		for _, expression := range body[:len(body)-1] {
			if _, err := expression.Eval(ctx, env); err != nil {
				return unwind(nil, err)
			}
		}

		last := body[len(body)-1]
		call := tailCall(last)
		if call == nil {
			return unwind(last.Eval(ctx, env))
		}

		callee, err := call.Callee.Eval(ctx, env)
		if err != nil {
			return unwind(nil, err)
		}
		arguments, err := call.evalArguments(ctx, env)
		if err != nil {
			return unwind(nil, err)
		}
		if function, ok := callee.(*Function); !ok || function != self {
			return unwind(call.invoke(ctx, callee, arguments))
		}
		if err := call.checkArity(ctx, self, arguments); err != nil {
			return nil, err
		}
		if !looping {
			looping = true
			ctx.Logger.Debug("self tail call", "function", self.String(), "location", call.Paren.Location)
		}
		args = arguments
	}
}

// Call invokes a callable from native code, checking arity first.
func (ctx *Context) Call(callable Callable, args ...Value) (Value, error) {
	if arity := callable.Arity(); arity >= 0 && arity != len(args) {
		return nil, ctx.Errorf(nil, "Expected %d arguments but got %d.", arity, len(args))
	}
	return callable.Call(ctx, args)
}

// Returns the self-call candidate in tail position, if any.
func tailCall(expression AstExpression) *AstExpressionCall {
	if ret, ok := expression.(*AstExpressionReturn); ok && ret.Value != nil {
		expression = ret.Value
	}
	call, ok := expression.(*AstExpressionCall)
	if !ok {
		return nil
	}
	if _, ok := call.Callee.(*AstExpressionVariable); !ok {
		return nil
	}
	return call
}

// Catches a return signal at the function boundary.
func unwind(value Value, err error) (Value, error) {
	if err == nil {
		return value, nil
	}
	var ret *Return
	if errors.As(err, &ret) {
		return ret.Value, nil
	}
	return nil, err
}

func (ctx *Context) lookUpVariable(env *Environment, id NodeID, name Token) (Value, error) {
	var value Value
	var err error
	if distance, ok := ctx.locals[id]; ok {
		value, err = env.GetAt(distance, name.Lexeme)
	} else {
		value, err = ctx.Globals.Get(name.Lexeme)
	}
	if err != nil {
		return nil, ctx.Errorf(name.Location, "Undefined variable '%s'.", name.Lexeme)
	}
	return value, nil
}

func (ctx *Context) assignVariable(env *Environment, id NodeID, name Token, value Value) error {
	var err error
	if distance, ok := ctx.locals[id]; ok {
		err = env.SetAt(distance, name.Lexeme, value)
	} else {
		err = ctx.Globals.Set(name.Lexeme, value)
	}
	if err != nil {
		return ctx.Errorf(name.Location, "Undefined variable '%s'.", name.Lexeme)
	}
	return nil
}

func (self AstProgram) Eval(ctx *Context, env *Environment) (Value, error) {
	var result Value = ctx.Null
	for _, expression := range self.Expressions {
		value, err := expression.Eval(ctx, env)
		if err != nil {
			var ret *Return
			if errors.As(err, &ret) {
				return nil, ctx.Errorf(ret.Location, "%s", ret.Error())
			}
			return nil, err
		}
		result = value
	}
	return result, nil
}

func (self *AstExpressionAssign) Eval(ctx *Context, env *Environment) (Value, error) {
	value, err := self.Value.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	if err := ctx.assignVariable(env, self.ID, self.Name, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (self *AstExpressionBinary) Eval(ctx *Context, env *Environment) (Value, error) {
	left, err := self.Left.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	right, err := self.Right.Eval(ctx, env)
	if err != nil {
		return nil, err
	}

	switch self.Operator.Kind {
	case TOKEN_EQUAL_EQUAL:
		return ctx.NewBoolean(IsEqual(left, right)), nil
	case TOKEN_BANG_EQUAL:
		return ctx.NewBoolean(!IsEqual(left, right)), nil
	case TOKEN_PLUS:
		if lhs, ok := left.(*String); ok {
			if rhs, ok := right.(*String); ok {
				return ctx.NewString(lhs.data + rhs.data), nil
			}
		}
		lhs, lok := left.(*Number)
		rhs, rok := right.(*Number)
		if !lok || !rok {
			return nil, ctx.Errorf(self.Operator.Location, "Operands must be two numbers or two strings.")
		}
		return ctx.NewNumber(lhs.data + rhs.data), nil
	}

	lhs, lok := left.(*Number)
	rhs, rok := right.(*Number)
	if !lok || !rok {
		return nil, ctx.Errorf(self.Operator.Location, "Operands must be numbers.")
	}
	switch self.Operator.Kind {
	case TOKEN_MINUS:
		return ctx.NewNumber(lhs.data - rhs.data), nil
	case TOKEN_STAR:
		return ctx.NewNumber(lhs.data * rhs.data), nil
	case TOKEN_SLASH:
		return ctx.NewNumber(lhs.data / rhs.data), nil
	case TOKEN_GT:
		return ctx.NewBoolean(lhs.data > rhs.data), nil
	case TOKEN_GE:
		return ctx.NewBoolean(lhs.data >= rhs.data), nil
	case TOKEN_LT:
		return ctx.NewBoolean(lhs.data < rhs.data), nil
	case TOKEN_LE:
		return ctx.NewBoolean(lhs.data <= rhs.data), nil
	}

	panic(fmt.Sprintf("unreachable binary operator %s", self.Operator.Kind))
}

func (self *AstExpressionBlock) Eval(ctx *Context, env *Environment) (Value, error) {
	blockEnv := NewEnvironment(env)
	var result Value = ctx.Null
	for _, expression := range self.Expressions {
		value, err := expression.Eval(ctx, blockEnv)
		if err != nil {
			return nil, err
		}
		result = value
	}
	return result, nil
}

func (self *AstExpressionCall) evalArguments(ctx *Context, env *Environment) ([]Value, error) {
	arguments := make([]Value, 0, len(self.Arguments))
	for _, argument := range self.Arguments {
		value, err := argument.Eval(ctx, env)
		if err != nil {
			return nil, err
		}
		arguments = append(arguments, value)
	}
	return arguments, nil
}

func (self *AstExpressionCall) checkArity(ctx *Context, callable Callable, arguments []Value) error {
	arity := callable.Arity()
	if arity >= 0 && arity != len(arguments) {
		return ctx.Errorf(self.Paren.Location, "Expected %d arguments but got %d.", arity, len(arguments))
	}
	return nil
}

func (self *AstExpressionCall) invoke(ctx *Context, callee Value, arguments []Value) (Value, error) {
	callable, ok := callee.(Callable)
	if !ok {
		return nil, ctx.Errorf(self.Paren.Location, "Can only call functions.")
	}
	if err := self.checkArity(ctx, callable, arguments); err != nil {
		return nil, err
	}

	result, err := callable.Call(ctx, arguments)
	if err != nil {
		var rtErr *Error
		if errors.As(err, &rtErr) {
			if rtErr.Location == nil {
				rtErr.Location = self.Paren.Location
			}
			rtErr.Trace = append(rtErr.Trace, TraceElement{
				Location: self.Paren.Location,
				Function: callableName(callable),
			})
		}
		return nil, err
	}
	return result, nil
}

func callableName(callable Callable) string {
	switch callable := callable.(type) {
	case *Function:
		return callable.Name()
	case *Builtin:
		return callable.Name()
	}
	return ""
}

func (self *AstExpressionCall) Eval(ctx *Context, env *Environment) (Value, error) {
	callee, err := self.Callee.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	arguments, err := self.evalArguments(ctx, env)
	if err != nil {
		return nil, err
	}
	return self.invoke(ctx, callee, arguments)
}

func (self *AstExpressionGet) Eval(ctx *Context, env *Environment) (Value, error) {
	object, err := self.Object.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	switch object := object.(type) {
	case *Table:
		if value := object.Get(ctx.NewString(self.Name.Lexeme)); value != nil {
			return value, nil
		}
		return ctx.Null, nil
	case *Bytes:
		if self.Name.Lexeme == "len" {
			return ctx.NewNumber(float64(len(object.data))), nil
		}
		return nil, ctx.Errorf(self.Name.Location, "Undefined property '%s' on bytes.", self.Name.Lexeme)
	}
	return nil, ctx.Errorf(self.Name.Location, "Only tables have properties.")
}

// Dynamic keys are restricted to strings and numbers.
func (ctx *Context) tableKey(location *SourceLocation, key Value) (Value, error) {
	switch key.(type) {
	case *String, *Number:
		return key, nil
	}
	return nil, ctx.Errorf(location, "Table keys must be strings or numbers.")
}

func (ctx *Context) bytesIndex(location *SourceLocation, bytes *Bytes, key Value) (int, error) {
	number, ok := key.(*Number)
	if !ok {
		return 0, ctx.Errorf(location, "Bytes index must be a number.")
	}
	index := int(number.data)
	if float64(index) != number.data || index < 0 || index >= len(bytes.data) {
		return 0, ctx.Errorf(location, "Bytes index %s out of range.", number)
	}
	return index, nil
}

func (self *AstExpressionGetDyn) Eval(ctx *Context, env *Environment) (Value, error) {
	object, err := self.Object.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	key, err := self.Name.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	switch object := object.(type) {
	case *Table:
		key, err := ctx.tableKey(self.Dot.Location, key)
		if err != nil {
			return nil, err
		}
		if value := object.Get(key); value != nil {
			return value, nil
		}
		return ctx.Null, nil
	case *Bytes:
		index, err := ctx.bytesIndex(self.Dot.Location, object, key)
		if err != nil {
			return nil, err
		}
		return ctx.NewNumber(float64(object.data[index])), nil
	}
	return nil, ctx.Errorf(self.Dot.Location, "Only tables have properties.")
}

func (self *AstExpressionSet) Eval(ctx *Context, env *Environment) (Value, error) {
	object, err := self.Object.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	table, ok := object.(*Table)
	if !ok {
		return nil, ctx.Errorf(self.Name.Location, "Only tables have fields.")
	}
	value, err := self.Value.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	table.Set(ctx.NewString(self.Name.Lexeme), value)
	return value, nil
}

func (self *AstExpressionSetDyn) Eval(ctx *Context, env *Environment) (Value, error) {
	object, err := self.Object.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	key, err := self.Name.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	value, err := self.Value.Eval(ctx, env)
	if err != nil {
		return nil, err
	}

	switch object := object.(type) {
	case *Table:
		key, err := ctx.tableKey(self.Dot.Location, key)
		if err != nil {
			return nil, err
		}
		object.Set(key, value)
		return value, nil
	case *Bytes:
		index, err := ctx.bytesIndex(self.Dot.Location, object, key)
		if err != nil {
			return nil, err
		}
		number, ok := value.(*Number)
		if !ok || number.data < 0 || number.data > 255 || number.data != float64(int(number.data)) {
			return nil, ctx.Errorf(self.Dot.Location, "Byte value must be an integer in [0, 255].")
		}
		object.data[index] = byte(number.data)
		return value, nil
	}
	return nil, ctx.Errorf(self.Dot.Location, "Only tables have fields.")
}

func (self *AstExpressionFunction) Eval(ctx *Context, env *Environment) (Value, error) {
	function := ctx.NewFunction(self, env)
	if self.Name != nil {
		env.Let(self.Name.Lexeme, function)
		if self.Publish {
			env.Publish(self.Name.Lexeme)
		}
	}
	return function, nil
}

func (self *AstExpressionGrouping) Eval(ctx *Context, env *Environment) (Value, error) {
	return self.Expression.Eval(ctx, env)
}

func (self *AstExpressionLiteral) Eval(ctx *Context, env *Environment) (Value, error) {
	return self.Value, nil
}

func (self *AstExpressionMatch) Eval(ctx *Context, env *Environment) (Value, error) {
	against, err := self.Against.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	for _, c := range self.Cases {
		if c.IsDefault {
			return c.Branch.Eval(ctx, env)
		}
		pattern, err := c.Pattern.Eval(ctx, env)
		if err != nil {
			return nil, err
		}
		if IsEqual(against, pattern) {
			return c.Branch.Eval(ctx, env)
		}
	}
	return nil, ctx.Errorf(self.Where.Location, "Unmatched match block.")
}

func (self *AstExpressionLogical) Eval(ctx *Context, env *Environment) (Value, error) {
	left, err := self.Left.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	if self.Operator.Kind == TOKEN_OR {
		if IsTruthy(left) {
			return left, nil
		}
	} else if !IsTruthy(left) {
		return left, nil
	}
	return self.Right.Eval(ctx, env)
}

func (self *AstExpressionReturn) Eval(ctx *Context, env *Environment) (Value, error) {
	var value Value = ctx.Null
	if self.Value != nil {
		result, err := self.Value.Eval(ctx, env)
		if err != nil {
			return nil, err
		}
		value = result
	}
	return nil, &Return{self.Keyword.Location, value}
}

func (self *AstExpressionTable) Eval(ctx *Context, env *Environment) (Value, error) {
	tableEnv := NewEnvironment(env)
	table := ctx.NewTable()
	index := 0
	for _, entry := range self.Entries {
		value, err := entry.Value.Eval(ctx, tableEnv)
		if err != nil {
			return nil, err
		}
		if entry.Name != nil {
			tableEnv.Let(entry.Name.Lexeme, value)
			table.Set(ctx.NewString(entry.Name.Lexeme), value)
			continue
		}
		table.Set(ctx.NewNumber(float64(index)), value)
		index += 1
	}
	return table, nil
}

func (self *AstExpressionUnary) Eval(ctx *Context, env *Environment) (Value, error) {
	right, err := self.Right.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	if self.Operator.Kind == TOKEN_BANG {
		return ctx.NewBoolean(!IsTruthy(right)), nil
	}
	number, ok := right.(*Number)
	if !ok {
		return nil, ctx.Errorf(self.Operator.Location, "Operand must be a number.")
	}
	return ctx.NewNumber(-number.data), nil
}

func (self *AstExpressionVar) Eval(ctx *Context, env *Environment) (Value, error) {
	value, err := self.Initializer.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	env.Let(self.Name.Lexeme, value)
	if self.Publish {
		env.Publish(self.Name.Lexeme)
	}
	return value, nil
}

func (self *AstExpressionVariable) Eval(ctx *Context, env *Environment) (Value, error) {
	return ctx.lookUpVariable(env, self.ID, self.Name)
}
