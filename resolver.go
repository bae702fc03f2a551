package obi

// Resolver computes the lexical distance of every local variable reference
// ahead of evaluation. References that match no enclosing scope are left
// unresolved and are looked up in the global environment at run time.
type Resolver struct {
	ctx           *Context
	scopes        []map[string]bool
	functionDepth int
}

func NewResolver(ctx *Context) *Resolver {
	return &Resolver{
		ctx:    ctx,
		scopes: []map[string]bool{},
	}
}

// Resolve resolves a sequence of top-level expressions against the global
// scope.
func Resolve(ctx *Context, program AstProgram) {
	NewResolver(ctx).ResolveProgram(program)
}

func (self *Resolver) ResolveProgram(program AstProgram) {
	for _, expression := range program.Expressions {
		expression.Resolve(self)
	}
}

// ResolveModule resolves a module body as a single block, so its top-level
// declarations become locals of the module environment.
func (self *Resolver) ResolveModule(program AstProgram) {
	self.beginScope()
	self.ResolveProgram(program)
	self.endScope()
}

func (self *Resolver) report(token Token, why string) {
	self.ctx.Diagnostics.Report(errorAt(token, why))
}

func (self *Resolver) beginScope() {
	self.scopes = append(self.scopes, map[string]bool{})
}

func (self *Resolver) endScope() {
	self.scopes = self.scopes[:len(self.scopes)-1]
}

func (self *Resolver) top() map[string]bool {
	if len(self.scopes) == 0 {
		return nil
	}
	return self.scopes[len(self.scopes)-1]
}

func (self *Resolver) declare(name Token) {
	scope := self.top()
	if scope == nil {
		return
	}
	if _, ok := scope[name.Lexeme]; ok {
		self.report(name, "Already a variable with this name in this scope.")
	}
	scope[name.Lexeme] = false
}

func (self *Resolver) define(name Token) {
	scope := self.top()
	if scope == nil {
		return
	}
	scope[name.Lexeme] = true
}

func (self *Resolver) resolveLocal(id NodeID, name Token) {
	for i := len(self.scopes) - 1; i >= 0; i -= 1 {
		if _, ok := self.scopes[i][name.Lexeme]; ok {
			self.ctx.locals[id] = len(self.scopes) - 1 - i
			return
		}
	}
}

func (self *Resolver) resolveAll(expressions []AstExpression) {
	for _, expression := range expressions {
		expression.Resolve(self)
	}
}

func (self *AstExpressionAssign) Resolve(r *Resolver) {
	self.Value.Resolve(r)
	r.resolveLocal(self.ID, self.Name)
}

func (self *AstExpressionBinary) Resolve(r *Resolver) {
	self.Left.Resolve(r)
	self.Right.Resolve(r)
}

func (self *AstExpressionBlock) Resolve(r *Resolver) {
	r.beginScope()
	r.resolveAll(self.Expressions)
	r.endScope()
}

func (self *AstExpressionCall) Resolve(r *Resolver) {
	self.Callee.Resolve(r)
	r.resolveAll(self.Arguments)
}

func (self *AstExpressionGet) Resolve(r *Resolver) {
	self.Object.Resolve(r)
}

func (self *AstExpressionGetDyn) Resolve(r *Resolver) {
	self.Object.Resolve(r)
	self.Name.Resolve(r)
}

func (self *AstExpressionSet) Resolve(r *Resolver) {
	self.Value.Resolve(r)
	self.Object.Resolve(r)
}

func (self *AstExpressionSetDyn) Resolve(r *Resolver) {
	self.Value.Resolve(r)
	self.Name.Resolve(r)
	self.Object.Resolve(r)
}

func (self *AstExpressionFunction) Resolve(r *Resolver) {
	// The name is bound before the body so the function can recurse.
	if self.Name != nil {
		r.declare(*self.Name)
		r.define(*self.Name)
	}

	r.functionDepth += 1
	r.beginScope()
	for _, parameter := range self.Parameters {
		r.declare(parameter)
		r.define(parameter)
	}
	r.resolveAll(self.Body)
	r.endScope()
	r.functionDepth -= 1
}

func (self *AstExpressionGrouping) Resolve(r *Resolver) {
	self.Expression.Resolve(r)
}

func (self *AstExpressionLiteral) Resolve(r *Resolver) {}

func (self *AstExpressionMatch) Resolve(r *Resolver) {
	self.Against.Resolve(r)
	for i, c := range self.Cases {
		if c.IsDefault && i != len(self.Cases)-1 {
			r.report(self.Where, "Match branches after default case will never be reached.")
		}
		if c.Pattern != nil {
			c.Pattern.Resolve(r)
		}
		c.Branch.Resolve(r)
	}
}

func (self *AstExpressionLogical) Resolve(r *Resolver) {
	self.Left.Resolve(r)
	self.Right.Resolve(r)
}

func (self *AstExpressionReturn) Resolve(r *Resolver) {
	if r.functionDepth == 0 {
		r.report(self.Keyword, "Can't return from top-level code.")
	}
	if self.Value != nil {
		self.Value.Resolve(r)
	}
}

func (self *AstExpressionTable) Resolve(r *Resolver) {
	r.beginScope()
	for _, entry := range self.Entries {
		entry.Value.Resolve(r)
		if entry.Name != nil {
			r.define(*entry.Name)
		}
	}
	r.endScope()
}

func (self *AstExpressionUnary) Resolve(r *Resolver) {
	self.Right.Resolve(r)
}

func (self *AstExpressionVar) Resolve(r *Resolver) {
	r.declare(self.Name)
	self.Initializer.Resolve(r)
	r.define(self.Name)
}

func (self *AstExpressionVariable) Resolve(r *Resolver) {
	if scope := r.top(); scope != nil {
		if defined, ok := scope[self.Name.Lexeme]; ok && !defined {
			r.report(self.Name, "Can't read local variable in its own initializer.")
		}
	}
	r.resolveLocal(self.ID, self.Name)
}
