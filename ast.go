package obi

// NodeID identifies a single AST node instance. Resolution distances are
// keyed by it so that two structurally identical nodes resolve
// independently.
type NodeID int

type AstExpression interface {
	ExpressionLocation() *SourceLocation
	Eval(*Context, *Environment) (Value, error)
	Resolve(*Resolver)
}

type AstProgram struct {
	Location    *SourceLocation // Optional
	Expressions []AstExpression
}

type AstExpressionAssign struct {
	ID    NodeID
	Name  Token
	Value AstExpression
}

func (self *AstExpressionAssign) ExpressionLocation() *SourceLocation {
	return self.Name.Location
}

type AstExpressionBinary struct {
	Left     AstExpression
	Operator Token
	Right    AstExpression
}

func (self *AstExpressionBinary) ExpressionLocation() *SourceLocation {
	return self.Operator.Location
}

type AstExpressionBlock struct {
	Location    *SourceLocation // Optional
	Expressions []AstExpression
}

func (self *AstExpressionBlock) ExpressionLocation() *SourceLocation {
	return self.Location
}

type AstExpressionCall struct {
	Callee    AstExpression
	Paren     Token
	Arguments []AstExpression
}

func (self *AstExpressionCall) ExpressionLocation() *SourceLocation {
	return self.Paren.Location
}

type AstExpressionGet struct {
	Object AstExpression
	Name   Token
}

func (self *AstExpressionGet) ExpressionLocation() *SourceLocation {
	return self.Name.Location
}

type AstExpressionGetDyn struct {
	Object AstExpression
	Dot    Token
	Name   AstExpression
}

func (self *AstExpressionGetDyn) ExpressionLocation() *SourceLocation {
	return self.Dot.Location
}

type AstExpressionSet struct {
	Object AstExpression
	Name   Token
	Value  AstExpression
}

func (self *AstExpressionSet) ExpressionLocation() *SourceLocation {
	return self.Name.Location
}

type AstExpressionSetDyn struct {
	Object AstExpression
	Dot    Token
	Name   AstExpression
	Value  AstExpression
}

func (self *AstExpressionSetDyn) ExpressionLocation() *SourceLocation {
	return self.Dot.Location
}

type AstExpressionFunction struct {
	Keyword    Token
	Name       *Token // Optional
	Parameters []Token
	Body       []AstExpression
	Publish    bool
}

func (self *AstExpressionFunction) ExpressionLocation() *SourceLocation {
	return self.Keyword.Location
}

type AstExpressionGrouping struct {
	Location   *SourceLocation // Optional
	Expression AstExpression
}

func (self *AstExpressionGrouping) ExpressionLocation() *SourceLocation {
	return self.Location
}

type AstExpressionLiteral struct {
	Location *SourceLocation // Optional
	Value    Value
}

func (self *AstExpressionLiteral) ExpressionLocation() *SourceLocation {
	return self.Location
}

// Case is one arm of a match. A nil pattern is the default arm.
type Case struct {
	Pattern   AstExpression // Optional
	Branch    AstExpression
	IsDefault bool
}

type AstExpressionMatch struct {
	Where   Token
	Against AstExpression
	Cases   []Case
}

func (self *AstExpressionMatch) ExpressionLocation() *SourceLocation {
	return self.Where.Location
}

type AstExpressionLogical struct {
	Left     AstExpression
	Operator Token
	Right    AstExpression
}

func (self *AstExpressionLogical) ExpressionLocation() *SourceLocation {
	return self.Operator.Location
}

type AstExpressionReturn struct {
	Keyword Token
	Value   AstExpression // Optional
}

func (self *AstExpressionReturn) ExpressionLocation() *SourceLocation {
	return self.Keyword.Location
}

// TableEntry is a positional entry when Name is nil.
type TableEntry struct {
	Name  *Token // Optional
	Value AstExpression
}

type AstExpressionTable struct {
	Location *SourceLocation // Optional
	Entries  []TableEntry
}

func (self *AstExpressionTable) ExpressionLocation() *SourceLocation {
	return self.Location
}

type AstExpressionUnary struct {
	Operator Token
	Right    AstExpression
}

func (self *AstExpressionUnary) ExpressionLocation() *SourceLocation {
	return self.Operator.Location
}

type AstExpressionVar struct {
	Name        Token
	Initializer AstExpression
	Publish     bool
}

func (self *AstExpressionVar) ExpressionLocation() *SourceLocation {
	return self.Name.Location
}

type AstExpressionVariable struct {
	ID   NodeID
	Name Token
}

func (self *AstExpressionVariable) ExpressionLocation() *SourceLocation {
	return self.Name.Location
}
