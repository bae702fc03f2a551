package obi

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrStatic is returned when a unit is rejected before evaluation.
	ErrStatic = errors.New("static errors")
	// ErrImportCycle is returned when a module imports itself.
	ErrImportCycle = errors.New("import cycle detected")
)

type SourceLocation struct {
	File   string
	Line   int
	Column int
}

func (self SourceLocation) String() string {
	return fmt.Sprintf("[line %d:%d]", self.Line, self.Column)
}

// ParseError is a static error reported by the lexer, parser, or resolver.
type ParseError struct {
	Location *SourceLocation // Optional
	where    string
	why      string
}

func NewParseError(location *SourceLocation, where string, why string) ParseError {
	return ParseError{
		Location: location,
		where:    where,
		why:      why,
	}
}

// Errors that point at a token name it, or say "at end" for end-of-file.
func errorAt(token Token, why string) ParseError {
	if token.Kind == TOKEN_EOF {
		return NewParseError(token.Location, " at end", why)
	}
	return NewParseError(token.Location, fmt.Sprintf(" at '%s'", token.Lexeme), why)
}

func (self ParseError) Error() string {
	line, column := 0, 0
	if self.Location != nil {
		line, column = self.Location.Line, self.Location.Column
	}
	return fmt.Sprintf("[line %d:%d] Error%s: %s", line, column, self.where, self.why)
}

func (self ParseError) Message() string {
	return self.why
}

// AtEnd reports whether the error was raised at end-of-input, which the
// REPL treats as a request for another line.
func (self ParseError) AtEnd() bool {
	return self.where == " at end" || self.why == "Unterminated string."
}

type TraceElement struct {
	Location *SourceLocation // Optional
	Function string
}

// Error is a runtime error.
type Error struct {
	Location *SourceLocation // Optional
	Value    Value
	Trace    []TraceElement
	Cause    error // Optional
}

func (self *Error) Error() string {
	return self.Value.String()
}

func (self *Error) Unwrap() error {
	return self.Cause
}

// Report renders the message followed by the source position.
func (self *Error) Report() string {
	if self.Location == nil {
		return self.Value.String()
	}
	return fmt.Sprintf("%s\n%s", self.Value.String(), self.Location)
}

func (self *Error) TraceString() string {
	var sb strings.Builder
	for _, element := range self.Trace {
		name := element.Function
		if name == "" {
			name = "<lambda>"
		}
		if element.Location != nil {
			fmt.Fprintf(&sb, "  in %s %s\n", name, element.Location)
		} else {
			fmt.Fprintf(&sb, "  in %s\n", name)
		}
	}
	return sb.String()
}

func NewError(location *SourceLocation, value Value) *Error {
	return &Error{
		Location: location,
		Value:    value,
		Trace:    []TraceElement{},
	}
}

func (ctx *Context) Errorf(location *SourceLocation, format string, args ...any) *Error {
	return NewError(location, ctx.NewString(fmt.Sprintf(format, args...)))
}

// ErrorFrom turns a Go error into a runtime error that still matches it
// under errors.Is.
func (ctx *Context) ErrorFrom(location *SourceLocation, err error) *Error {
	var rtErr *Error
	if errors.As(err, &rtErr) {
		return rtErr
	}
	result := NewError(location, ctx.NewString(err.Error()))
	result.Cause = err
	return result
}

// Diagnostics is the sink shared by every stage of a Context.
type Diagnostics struct {
	w               io.Writer
	static          []ParseError
	HadError        bool
	HadRuntimeError bool
}

func NewDiagnostics(w io.Writer) *Diagnostics {
	return &Diagnostics{w: w}
}

func (self *Diagnostics) Report(err ParseError) {
	self.static = append(self.static, err)
	self.HadError = true
	if self.w != nil {
		fmt.Fprintln(self.w, err.Error())
	}
}

func (self *Diagnostics) ReportRuntime(err error) {
	self.HadRuntimeError = true
	if self.w == nil {
		return
	}
	var rtErr *Error
	if errors.As(err, &rtErr) {
		fmt.Fprintln(self.w, rtErr.Report())
		return
	}
	fmt.Fprintln(self.w, err.Error())
}

// Count is the number of static errors reported so far.
func (self *Diagnostics) Count() int {
	return len(self.static)
}

// Since returns the static errors reported after the given count.
func (self *Diagnostics) Since(count int) []ParseError {
	if count >= len(self.static) {
		return nil
	}
	return append([]ParseError(nil), self.static[count:]...)
}

func (self *Diagnostics) Reset() {
	self.static = nil
	self.HadError = false
	self.HadRuntimeError = false
}
