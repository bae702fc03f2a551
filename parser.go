package obi

import (
	"fmt"
)

const maxArguments = 255

type Parser struct {
	ctx     *Context
	tokens  []Token
	current int
	// Set while parsing a match discriminant, where a following '{' opens
	// the case list rather than a trailing block argument.
	noTrailing bool
}

func NewParser(ctx *Context, tokens []Token) Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Kind != TOKEN_EOF {
		tokens = append(tokens, Token{Kind: TOKEN_EOF, Location: &SourceLocation{}})
	}
	return Parser{
		ctx:     ctx,
		tokens:  tokens,
		current: 0,
	}
}

// Parse parses a token sequence, reporting syntax errors to the context
// diagnostics. The returned program holds every declaration that parsed.
func Parse(ctx *Context, tokens []Token) AstProgram {
	parser := NewParser(ctx, tokens)
	return parser.ParseProgram()
}

func (self *Parser) peek() Token {
	return self.tokens[self.current]
}

func (self *Parser) peekNext() Token {
	if self.isEof() {
		return self.tokens[len(self.tokens)-1]
	}
	return self.tokens[self.current+1]
}

func (self *Parser) previous() Token {
	return self.lookBehind(1)
}

// lookBehind returns the token n positions before the current one.
func (self *Parser) lookBehind(n int) Token {
	if self.current-n < 0 {
		return Token{}
	}
	return self.tokens[self.current-n]
}

func (self *Parser) isEof() bool {
	return self.peek().Kind == TOKEN_EOF
}

func (self *Parser) advanceToken() Token {
	if !self.isEof() {
		self.current += 1
	}
	return self.previous()
}

func (self *Parser) checkCurrent(kind string) bool {
	return self.peek().Kind == kind
}

func (self *Parser) matchCurrent(kinds ...string) bool {
	for _, kind := range kinds {
		if self.checkCurrent(kind) {
			self.advanceToken()
			return true
		}
	}
	return false
}

func (self *Parser) expectCurrent(kind string, why string) (Token, error) {
	if self.checkCurrent(kind) {
		return self.advanceToken(), nil
	}
	return Token{}, errorAt(self.peek(), why)
}

func (self *Parser) report(err error) {
	if parseError, ok := err.(ParseError); ok {
		self.ctx.Diagnostics.Report(parseError)
	}
}

func (self *Parser) withTrailing(allowed bool, parse func() (AstExpression, error)) (AstExpression, error) {
	saved := self.noTrailing
	self.noTrailing = !allowed
	defer func() { self.noTrailing = saved }()
	return parse()
}

// Discard tokens until a likely declaration boundary.
func (self *Parser) synchronize() {
	self.advanceToken()
	for !self.isEof() {
		if self.previous().Kind == TOKEN_SEMICOLON {
			return
		}
		switch self.peek().Kind {
		case TOKEN_PUB, TOKEN_RETURN:
			return
		}
		self.advanceToken()
	}
}

func (self *Parser) ParseProgram() AstProgram {
	location := self.peek().Location
	expressions := []AstExpression{}
	for !self.isEof() {
		expression := self.declaration()
		if expression != nil {
			expressions = append(expressions, expression)
		}
	}
	return AstProgram{location, expressions}
}

func (self *Parser) declaration() AstExpression {
	expression, err := self.ParseDeclaration()
	if err != nil {
		self.report(err)
		self.synchronize()
		return nil
	}
	return expression
}

func (self *Parser) ParseDeclaration() (AstExpression, error) {
	if self.matchCurrent(TOKEN_PUB) {
		isFunction := self.checkCurrent(TOKEN_FUN)
		isVar := self.checkCurrent(TOKEN_IDENTIFIER) && self.peekNext().Kind == TOKEN_DECLARE
		if !isFunction && !isVar {
			return nil, errorAt(self.peek(), "Expect declaration after 'pub'.")
		}
	}
	// A named function declaration ends at its body, so nothing after the
	// '}' applies to it. A ';' there is optional.
	if self.checkCurrent(TOKEN_FUN) && self.peekNext().Kind == TOKEN_IDENTIFIER {
		keyword := self.advanceToken()
		function, err := self.parseFunction(keyword)
		if err != nil {
			return nil, err
		}
		self.matchCurrent(TOKEN_SEMICOLON)
		return function, nil
	}
	return self.ParseStatement()
}

// ParseStatement parses an expression in statement position. The closing
// ';' may be left out after a '}' or before one.
func (self *Parser) ParseStatement() (AstExpression, error) {
	expression, err := self.withTrailing(true, self.ParseExpression)
	if err != nil {
		return nil, err
	}

	why := "Expect ';' after expression."
	switch expression.(type) {
	case *AstExpressionVar:
		why = "Expect ';' after variable declaration."
	case *AstExpressionReturn:
		why = "Expect ';' after return value."
	}
	if self.matchCurrent(TOKEN_SEMICOLON) {
		return expression, nil
	}
	if self.previous().Kind == TOKEN_RBRACE || self.checkCurrent(TOKEN_RBRACE) {
		return expression, nil
	}
	return nil, errorAt(self.peek(), why)
}

func (self *Parser) ParseExpression() (AstExpression, error) {
	return self.parseAssignment()
}

func (self *Parser) parseAssignment() (AstExpression, error) {
	expression, err := self.parseOr()
	if err != nil {
		return nil, err
	}

	if self.matchCurrent(TOKEN_DECLARE) {
		operator := self.previous()
		variable, ok := expression.(*AstExpressionVariable)
		// pub NAME :=
		publish := ok && self.lookBehind(3).Kind == TOKEN_PUB
		value, err := self.parseAssignment()
		if err != nil {
			return nil, err
		}
		if !ok {
			self.report(errorAt(operator, "Invalid declaration target."))
			return expression, nil
		}
		return &AstExpressionVar{
			Name:        variable.Name,
			Initializer: value,
			Publish:     publish,
		}, nil
	}

	if self.matchCurrent(TOKEN_EQUAL) {
		equals := self.previous()
		value, err := self.parseAssignment()
		if err != nil {
			return nil, err
		}
		switch target := expression.(type) {
		case *AstExpressionVariable:
			return &AstExpressionAssign{
				ID:    self.ctx.newNodeID(),
				Name:  target.Name,
				Value: value,
			}, nil
		case *AstExpressionGet:
			return &AstExpressionSet{
				Object: target.Object,
				Name:   target.Name,
				Value:  value,
			}, nil
		case *AstExpressionGetDyn:
			return &AstExpressionSetDyn{
				Object: target.Object,
				Dot:    target.Dot,
				Name:   target.Name,
				Value:  value,
			}, nil
		}
		self.report(errorAt(equals, "Invalid assignment target."))
	}

	return expression, nil
}

func (self *Parser) parseLogical(kind string, next func() (AstExpression, error)) (AstExpression, error) {
	expression, err := next()
	if err != nil {
		return nil, err
	}
	for self.matchCurrent(kind) {
		operator := self.previous()
		right, err := next()
		if err != nil {
			return nil, err
		}
		expression = &AstExpressionLogical{expression, operator, right}
	}
	return expression, nil
}

func (self *Parser) parseBinary(next func() (AstExpression, error), kinds ...string) (AstExpression, error) {
	expression, err := next()
	if err != nil {
		return nil, err
	}
	for self.matchCurrent(kinds...) {
		operator := self.previous()
		right, err := next()
		if err != nil {
			return nil, err
		}
		expression = &AstExpressionBinary{expression, operator, right}
	}
	return expression, nil
}

func (self *Parser) parseOr() (AstExpression, error) {
	return self.parseLogical(TOKEN_OR, self.parseAnd)
}

func (self *Parser) parseAnd() (AstExpression, error) {
	return self.parseLogical(TOKEN_AND, self.parseEquality)
}

func (self *Parser) parseEquality() (AstExpression, error) {
	return self.parseBinary(self.parseComparison, TOKEN_BANG_EQUAL, TOKEN_EQUAL_EQUAL)
}

func (self *Parser) parseComparison() (AstExpression, error) {
	return self.parseBinary(self.parseTerm, TOKEN_GT, TOKEN_GE, TOKEN_LT, TOKEN_LE)
}

func (self *Parser) parseTerm() (AstExpression, error) {
	return self.parseBinary(self.parseFactor, TOKEN_MINUS, TOKEN_PLUS)
}

func (self *Parser) parseFactor() (AstExpression, error) {
	return self.parseBinary(self.parseUnary, TOKEN_SLASH, TOKEN_STAR)
}

func (self *Parser) parseUnary() (AstExpression, error) {
	if self.matchCurrent(TOKEN_BANG, TOKEN_MINUS) {
		operator := self.previous()
		right, err := self.parseUnary()
		if err != nil {
			return nil, err
		}
		return &AstExpressionUnary{operator, right}, nil
	}
	return self.parseCall()
}

func (self *Parser) parseCall() (AstExpression, error) {
	expression, err := self.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		if self.matchCurrent(TOKEN_LPAREN) {
			expression, err = self.finishCall(expression)
			if err != nil {
				return nil, err
			}
			continue
		}

		if self.matchCurrent(TOKEN_DOT) {
			dot := self.previous()
			if self.matchCurrent(TOKEN_LPAREN) {
				name, err := self.withTrailing(true, self.ParseExpression)
				if err != nil {
					return nil, err
				}
				if _, err := self.expectCurrent(TOKEN_RPAREN, "Expect ')' after expression."); err != nil {
					return nil, err
				}
				expression = &AstExpressionGetDyn{expression, dot, name}
				continue
			}

			name, err := self.expectCurrent(TOKEN_IDENTIFIER, "Expect property name after '.'.")
			if err != nil {
				return nil, err
			}
			expression = &AstExpressionGet{expression, name}
			continue
		}

		return expression, nil
	}
}

func (self *Parser) finishCall(callee AstExpression) (AstExpression, error) {
	arguments := []AstExpression{}
	if !self.checkCurrent(TOKEN_RPAREN) {
		for {
			if len(arguments) >= maxArguments {
				self.report(errorAt(self.peek(), "Can't have more than 255 arguments."))
			}
			argument, err := self.withTrailing(true, self.ParseExpression)
			if err != nil {
				return nil, err
			}
			arguments = append(arguments, argument)
			if !self.matchCurrent(TOKEN_COMMA) {
				break
			}
		}
	}
	paren, err := self.expectCurrent(TOKEN_RPAREN, "Expect ')' after arguments.")
	if err != nil {
		return nil, err
	}

	// Trailing callbacks: f(a) { ... } fun(x) { ... }
	for !self.noTrailing && (self.checkCurrent(TOKEN_LBRACE) || self.checkCurrent(TOKEN_FUN)) {
		if len(arguments) >= maxArguments {
			self.report(errorAt(self.peek(), "Can't have more than 255 arguments."))
		}

		var trailing AstExpression
		if self.matchCurrent(TOKEN_FUN) {
			trailing, err = self.parseFunction(self.previous())
		} else {
			trailing, err = self.parseAnonymousFunction()
		}
		if err != nil {
			return nil, err
		}
		arguments = append(arguments, trailing)
	}

	return &AstExpressionCall{callee, paren, arguments}, nil
}

func (self *Parser) parsePrimary() (AstExpression, error) {
	token := self.peek()
	switch {
	case self.matchCurrent(TOKEN_FALSE):
		return &AstExpressionLiteral{token.Location, self.ctx.NewBoolean(false)}, nil
	case self.matchCurrent(TOKEN_TRUE):
		return &AstExpressionLiteral{token.Location, self.ctx.NewBoolean(true)}, nil
	case self.matchCurrent(TOKEN_NIL):
		return &AstExpressionLiteral{token.Location, self.ctx.Null}, nil
	case self.matchCurrent(TOKEN_NUMBER, TOKEN_STRING):
		return &AstExpressionLiteral{token.Location, token.Literal}, nil
	case self.matchCurrent(TOKEN_LBRACKET):
		return self.parseTable()
	case self.matchCurrent(TOKEN_IDENTIFIER):
		return &AstExpressionVariable{
			ID:   self.ctx.newNodeID(),
			Name: token,
		}, nil
	case self.matchCurrent(TOKEN_LPAREN):
		if self.matchCurrent(TOKEN_RPAREN) {
			return &AstExpressionGrouping{token.Location, &AstExpressionLiteral{token.Location, self.ctx.Null}}, nil
		}
		expression, err := self.withTrailing(true, self.ParseExpression)
		if err != nil {
			return nil, err
		}
		if _, err := self.expectCurrent(TOKEN_RPAREN, "Expect ')' after expression."); err != nil {
			return nil, err
		}
		return &AstExpressionGrouping{token.Location, expression}, nil
	case self.matchCurrent(TOKEN_LBRACE):
		expressions, err := self.parseBlock()
		if err != nil {
			return nil, err
		}
		return &AstExpressionBlock{token.Location, expressions}, nil
	case self.matchCurrent(TOKEN_FUN):
		return self.parseFunction(token)
	case self.matchCurrent(TOKEN_MATCH):
		return self.parseMatch()
	case self.matchCurrent(TOKEN_RETURN):
		return self.parseReturn()
	}

	return nil, errorAt(token, "Expect expression.")
}

// Parses the remainder of a block after its '{'.
func (self *Parser) parseBlock() ([]AstExpression, error) {
	saved := self.noTrailing
	self.noTrailing = false
	defer func() { self.noTrailing = saved }()

	expressions := []AstExpression{}
	for !self.checkCurrent(TOKEN_RBRACE) && !self.isEof() {
		expression := self.declaration()
		if expression != nil {
			expressions = append(expressions, expression)
		}
	}
	if _, err := self.expectCurrent(TOKEN_RBRACE, "Expect '}' after block."); err != nil {
		return nil, err
	}
	return expressions, nil
}

// Parses a function literal after its 'fun' keyword.
func (self *Parser) parseFunction(keyword Token) (AstExpression, error) {
	var name *Token
	if self.matchCurrent(TOKEN_IDENTIFIER) {
		name = Ptr(self.previous())
	}
	// pub fun NAME
	publish := name != nil && self.lookBehind(3).Kind == TOKEN_PUB

	what := "function"
	if name == nil {
		what = "'fun'"
	}
	if _, err := self.expectCurrent(TOKEN_LPAREN, fmt.Sprintf("Expect '(' after %s name.", what)); err != nil {
		return nil, err
	}
	parameters := []Token{}
	if !self.checkCurrent(TOKEN_RPAREN) {
		for {
			if len(parameters) >= maxArguments {
				self.report(errorAt(self.peek(), "Can't have more than 255 parameters."))
			}
			parameter, err := self.expectCurrent(TOKEN_IDENTIFIER, "Expect parameter name.")
			if err != nil {
				return nil, err
			}
			parameters = append(parameters, parameter)
			if !self.matchCurrent(TOKEN_COMMA) {
				break
			}
		}
	}
	if _, err := self.expectCurrent(TOKEN_RPAREN, "Expect ')' after parameters."); err != nil {
		return nil, err
	}
	if _, err := self.expectCurrent(TOKEN_LBRACE, "Expect '{' before function body."); err != nil {
		return nil, err
	}
	body, err := self.parseBlock()
	if err != nil {
		return nil, err
	}

	return &AstExpressionFunction{
		Keyword:    keyword,
		Name:       name,
		Parameters: parameters,
		Body:       body,
		Publish:    publish,
	}, nil
}

// A bare trailing block is a function without parameters.
func (self *Parser) parseAnonymousFunction() (AstExpression, error) {
	brace, err := self.expectCurrent(TOKEN_LBRACE, "Expect '{' to begin anonymous function.")
	if err != nil {
		return nil, err
	}
	body, err := self.parseBlock()
	if err != nil {
		return nil, err
	}
	return &AstExpressionFunction{
		Keyword:    brace,
		Parameters: []Token{},
		Body:       body,
	}, nil
}

// Parses the remainder of a table literal after its '['.
func (self *Parser) parseTable() (AstExpression, error) {
	location := self.previous().Location
	entries := []TableEntry{}
	for {
		if self.isEof() {
			return nil, errorAt(self.peek(), "Unterminated table literal.")
		}
		if self.matchCurrent(TOKEN_RBRACKET) {
			return &AstExpressionTable{location, entries}, nil
		}

		value, err := self.withTrailing(true, self.ParseExpression)
		if err != nil {
			return nil, err
		}
		if assign, ok := value.(*AstExpressionAssign); ok {
			entries = append(entries, TableEntry{Ptr(assign.Name), assign.Value})
		} else {
			entries = append(entries, TableEntry{nil, value})
		}

		if !self.checkCurrent(TOKEN_RBRACKET) {
			if _, err := self.expectCurrent(TOKEN_COMMA, "Expect ',' after value in table literal."); err != nil {
				return nil, err
			}
		}
	}
}

// Parses the remainder of a match expression after its keyword.
func (self *Parser) parseMatch() (AstExpression, error) {
	where := self.previous()
	against, err := self.withTrailing(false, self.ParseExpression)
	if err != nil {
		return nil, err
	}
	if _, err := self.expectCurrent(TOKEN_LBRACE, "Expect '{' after discriminant in match expression."); err != nil {
		return nil, err
	}
	if self.checkCurrent(TOKEN_RBRACE) {
		return nil, errorAt(self.previous(), "Expect non-empty match expression.")
	}

	cases := []Case{}
	for !self.checkCurrent(TOKEN_RBRACE) && !self.isEof() {
		c, err := self.parseCase()
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	if _, err := self.expectCurrent(TOKEN_RBRACE, "Expect '}' after match cases."); err != nil {
		return nil, err
	}
	return &AstExpressionMatch{where, against, cases}, nil
}

func (self *Parser) parseCase() (Case, error) {
	if self.matchCurrent(TOKEN_UNDERSCORE) {
		if _, err := self.expectCurrent(TOKEN_ARROW, "Expect '->' after pattern in case."); err != nil {
			return Case{}, err
		}
		branch, err := self.ParseStatement()
		if err != nil {
			return Case{}, err
		}
		return Case{nil, branch, true}, nil
	}

	pattern, err := self.withTrailing(true, self.ParseExpression)
	if err != nil {
		return Case{}, err
	}
	if _, err := self.expectCurrent(TOKEN_ARROW, "Expect '->' after pattern in case."); err != nil {
		return Case{}, err
	}
	branch, err := self.ParseStatement()
	if err != nil {
		return Case{}, err
	}
	return Case{pattern, branch, false}, nil
}

// Parses the remainder of a return after its keyword.
func (self *Parser) parseReturn() (AstExpression, error) {
	keyword := self.previous()
	if self.checkCurrent(TOKEN_SEMICOLON) || self.checkCurrent(TOKEN_RBRACE) {
		return &AstExpressionReturn{keyword, nil}, nil
	}
	value, err := self.ParseExpression()
	if err != nil {
		return nil, err
	}
	return &AstExpressionReturn{keyword, value}, nil
}
