package obi

import (
	"strconv"
	"strings"
)

// Token Kinds
const (
	// Meta
	TOKEN_EOF = "end-of-file"
	// Identifiers and Literals
	TOKEN_IDENTIFIER = "identifier"
	TOKEN_NUMBER     = "number"
	TOKEN_STRING     = "string"
	// Delimiters
	TOKEN_LPAREN    = "("
	TOKEN_RPAREN    = ")"
	TOKEN_LBRACE    = "{"
	TOKEN_RBRACE    = "}"
	TOKEN_LBRACKET  = "["
	TOKEN_RBRACKET  = "]"
	TOKEN_COMMA     = ","
	TOKEN_DOT       = "."
	TOKEN_SEMICOLON = ";"
	TOKEN_COLON     = ":"
	TOKEN_TILDE     = "~"
	// Operators
	TOKEN_PLUS        = "+"
	TOKEN_MINUS       = "-"
	TOKEN_STAR        = "*"
	TOKEN_SLASH       = "/"
	TOKEN_BANG        = "!"
	TOKEN_BANG_EQUAL  = "!="
	TOKEN_EQUAL       = "="
	TOKEN_EQUAL_EQUAL = "=="
	TOKEN_LT          = "<"
	TOKEN_LE          = "<="
	TOKEN_GT          = ">"
	TOKEN_GE          = ">="
	TOKEN_COLON_COLON = "::"
	TOKEN_DECLARE     = ":="
	TOKEN_ARROW       = "->"
	// Keywords
	TOKEN_UNDERSCORE = "_"
	TOKEN_AND        = "and"
	TOKEN_ELSE       = "else"
	TOKEN_FALSE      = "false"
	TOKEN_FOR        = "for"
	TOKEN_FUN        = "fun"
	TOKEN_IF         = "if"
	TOKEN_MATCH      = "match"
	TOKEN_NIL        = "nil"
	TOKEN_OR         = "or"
	TOKEN_PUB        = "pub"
	TOKEN_RETURN     = "return"
	TOKEN_TRUE       = "true"
	TOKEN_VAR        = "var"
)

var keywords = map[string]string{
	TOKEN_UNDERSCORE: TOKEN_UNDERSCORE,
	TOKEN_AND:        TOKEN_AND,
	TOKEN_ELSE:       TOKEN_ELSE,
	TOKEN_FALSE:      TOKEN_FALSE,
	TOKEN_FOR:        TOKEN_FOR,
	TOKEN_FUN:        TOKEN_FUN,
	TOKEN_IF:         TOKEN_IF,
	TOKEN_MATCH:      TOKEN_MATCH,
	TOKEN_NIL:        TOKEN_NIL,
	TOKEN_OR:         TOKEN_OR,
	TOKEN_PUB:        TOKEN_PUB,
	TOKEN_RETURN:     TOKEN_RETURN,
	TOKEN_TRUE:       TOKEN_TRUE,
	TOKEN_VAR:        TOKEN_VAR,
}

// Two-character operators, keyed by their first character.
var compounds = map[rune][]string{
	'-': {TOKEN_ARROW},
	'!': {TOKEN_BANG_EQUAL},
	'=': {TOKEN_EQUAL_EQUAL},
	'<': {TOKEN_LE},
	'>': {TOKEN_GE},
	':': {TOKEN_COLON_COLON, TOKEN_DECLARE},
}

var singles = map[rune]string{
	'(': TOKEN_LPAREN,
	')': TOKEN_RPAREN,
	'{': TOKEN_LBRACE,
	'}': TOKEN_RBRACE,
	'[': TOKEN_LBRACKET,
	']': TOKEN_RBRACKET,
	',': TOKEN_COMMA,
	'.': TOKEN_DOT,
	';': TOKEN_SEMICOLON,
	':': TOKEN_COLON,
	'~': TOKEN_TILDE,
	'+': TOKEN_PLUS,
	'-': TOKEN_MINUS,
	'*': TOKEN_STAR,
	'/': TOKEN_SLASH,
	'!': TOKEN_BANG,
	'=': TOKEN_EQUAL,
	'<': TOKEN_LT,
	'>': TOKEN_GT,
}

type Token struct {
	Kind     string
	Lexeme   string
	Literal  Value           // Optional: decoded number or string.
	Location *SourceLocation // Optional
}

func (self Token) String() string {
	return self.Kind
}

func (self Token) IntoValue(ctx *Context) Value {
	location := func() Value {
		if self.Location == nil {
			return ctx.Null
		}
		table := ctx.NewTable()
		table.Set(ctx.NewString("file"), ctx.NewString(self.Location.File))
		table.Set(ctx.NewString("line"), ctx.NewNumber(float64(self.Location.Line)))
		table.Set(ctx.NewString("column"), ctx.NewNumber(float64(self.Location.Column)))
		return table
	}()
	literal := self.Literal
	if literal == nil {
		literal = ctx.Null
	}
	table := ctx.NewTable()
	table.Set(ctx.NewString("kind"), ctx.NewString(self.Kind))
	table.Set(ctx.NewString("lexeme"), ctx.NewString(self.Lexeme))
	table.Set(ctx.NewString("literal"), literal)
	table.Set(ctx.NewString("location"), location)
	return table
}

type Lexer struct {
	ctx      *Context
	runes    []rune
	file     string
	line     int
	column   int
	position int
}

func NewLexer(ctx *Context, source string, file string) Lexer {
	return Lexer{
		ctx:      ctx,
		runes:    []rune(source),
		file:     file,
		line:     1,
		column:   1,
		position: 0,
	}
}

func (self *Lexer) location() *SourceLocation {
	return &SourceLocation{self.file, self.line, self.column}
}

func (self *Lexer) currentRune() rune {
	if self.position >= len(self.runes) {
		return rune(0)
	}
	return self.runes[self.position]
}

func (self *Lexer) peekRune() rune {
	if self.position+1 >= len(self.runes) {
		return rune(0)
	}
	return self.runes[self.position+1]
}

func (self *Lexer) isEof() bool {
	return self.position >= len(self.runes)
}

func (self *Lexer) advanceRune() {
	if self.isEof() {
		return
	}
	if self.currentRune() == '\n' {
		self.line += 1
		self.column = 1
	} else {
		self.column += 1
	}
	self.position += 1
}

func (self *Lexer) skipWhitespace() {
	for !self.isEof() && isSpace(self.currentRune()) {
		self.advanceRune()
	}
}

func (self *Lexer) skipComment() {
	if self.currentRune() != '/' || self.peekRune() != '/' {
		return
	}
	for !self.isEof() && self.currentRune() != '\n' {
		self.advanceRune()
	}
	self.advanceRune()
}

func (self *Lexer) isCommentStart() bool {
	return self.currentRune() == '/' && self.peekRune() == '/'
}

func (self *Lexer) skipWhiteSpaceAndComments() {
	for !self.isEof() && (isSpace(self.currentRune()) || self.isCommentStart()) {
		self.skipWhitespace()
		self.skipComment()
	}
}

func (self *Lexer) lexKeywordOrIdentifier() Token {
	location := self.location()
	start := self.position
	for !self.isEof() && isAlphaNumeric(self.currentRune()) {
		self.advanceRune()
	}
	lexeme := string(self.runes[start:self.position])

	if keyword, ok := keywords[lexeme]; ok {
		return Token{
			Kind:     keyword,
			Lexeme:   lexeme,
			Location: location,
		}
	}
	return Token{
		Kind:     TOKEN_IDENTIFIER,
		Lexeme:   lexeme,
		Location: location,
	}
}

func (self *Lexer) lexNumber() Token {
	location := self.location()
	start := self.position
	for isDigit(self.currentRune()) {
		self.advanceRune()
	}
	// A single fractional part; "1." leaves the dot for member access.
	if self.currentRune() == '.' && isDigit(self.peekRune()) {
		self.advanceRune()
		for isDigit(self.currentRune()) {
			self.advanceRune()
		}
	}
	lexeme := string(self.runes[start:self.position])
	number, _ := strconv.ParseFloat(lexeme, 64)
	return Token{
		Kind:     TOKEN_NUMBER,
		Lexeme:   lexeme,
		Literal:  self.ctx.NewNumber(number),
		Location: location,
	}
}

var escapes = map[rune]rune{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'0':  0,
	'\\': '\\',
	'"':  '"',
}

func (self *Lexer) lexString() (Token, error) {
	location := self.location()
	start := self.position
	self.advanceRune() // opening "

	var sb strings.Builder
	for !self.isEof() && self.currentRune() != '"' {
		if self.currentRune() == '\\' {
			self.advanceRune()
			if self.isEof() {
				break
			}
			if r, ok := escapes[self.currentRune()]; ok {
				sb.WriteRune(r)
			} else {
				sb.WriteRune('\\')
				sb.WriteRune(self.currentRune())
			}
			self.advanceRune()
			continue
		}
		sb.WriteRune(self.currentRune())
		self.advanceRune()
	}

	if self.isEof() {
		return Token{}, NewParseError(self.location(), "", "Unterminated string.")
	}
	self.advanceRune() // closing "

	return Token{
		Kind:     TOKEN_STRING,
		Lexeme:   string(self.runes[start:self.position]),
		Literal:  self.ctx.NewString(sb.String()),
		Location: location,
	}, nil
}

func (self *Lexer) NextToken() (Token, error) {
	self.skipWhiteSpaceAndComments()
	if self.isEof() {
		return Token{
			Kind:     TOKEN_EOF,
			Lexeme:   "",
			Location: self.location(),
		}, nil
	}

	current := self.currentRune()

	// Literals, Identifiers, and Keywords
	if isAlpha(current) {
		return self.lexKeywordOrIdentifier(), nil
	}
	if isDigit(current) {
		return self.lexNumber(), nil
	}
	if current == '"' {
		return self.lexString()
	}

	// Operators and Delimiters
	location := self.location()
	for _, kind := range compounds[current] {
		if []rune(kind)[1] == self.peekRune() {
			self.advanceRune()
			self.advanceRune()
			return Token{
				Kind:     kind,
				Lexeme:   kind,
				Location: location,
			}, nil
		}
	}
	if kind, ok := singles[current]; ok {
		self.advanceRune()
		return Token{
			Kind:     kind,
			Lexeme:   kind,
			Location: location,
		}, nil
	}

	self.advanceRune()
	return Token{}, NewParseError(location, "", "Unexpected character.")
}

// Scan lexes the whole source. Lexical errors go to the diagnostics sink
// and scanning resumes after them; the result always ends with an
// end-of-file token.
func Scan(ctx *Context, source string, file string) []Token {
	lexer := NewLexer(ctx, source, file)
	tokens := []Token{}
	for {
		token, err := lexer.NextToken()
		if err != nil {
			if parseError, ok := err.(ParseError); ok {
				ctx.Diagnostics.Report(parseError)
			}
			continue
		}
		tokens = append(tokens, token)
		if token.Kind == TOKEN_EOF {
			return tokens
		}
	}
}
