package obi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// Utility function used to get the address of literals.
func Ptr[T any](v T) *T {
	return &v
}

func escape(s string) string {
	result := ""
	for _, r := range s {
		if r == '\t' {
			result += "\\t"
			continue
		}
		if r == '\n' {
			result += "\\n"
			continue
		}
		if r == '\r' {
			result += "\\r"
			continue
		}
		if r == 0 {
			result += "\\0"
			continue
		}
		if r == '"' {
			result += "\\\""
			continue
		}
		if r == '\\' {
			result += "\\\\"
			continue
		}
		result += string(r)
	}
	return result
}

func isIdentifierText(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i, r := range s {
		if i == 0 && !isAlpha(r) {
			return false
		}
		if !isAlphaNumeric(r) {
			return false
		}
	}
	_, reserved := keywords[s]
	return !reserved
}

// FNV-1a
func fnv1a(s string) uint64 {
	var hash uint64 = 14695981039346656037 // FNV_offset_basis
	for i := 0; i < len(s); i += 1 {
		hash ^= uint64(s[i])
		hash *= 1099511628211 // FNV_prime
	}
	return hash
}

func pointerHash(v any) uint64 {
	return uint64(reflect.ValueOf(v).Pointer())
}

// ContentHash is the default module content hash.
func ContentHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

type Value interface {
	Typename() string
	String() string
	Hash() uint64
	Equal(Value) bool
	Encode(e *Encoder) error
}

// Callable is the single shape shared by user functions and natives.
type Callable interface {
	Value
	Arity() int
	Call(ctx *Context, args []Value) (Value, error)
}

// Only nil and false are falsy.
func IsTruthy(value Value) bool {
	switch value := value.(type) {
	case nil, *Null:
		return false
	case *Boolean:
		return value.data
	}
	return true
}

// IsEqual compares primitives by value and everything else by reference.
func IsEqual(a, b Value) bool {
	_, aNull := a.(*Null)
	_, bNull := b.(*Null)
	if aNull || bNull {
		return aNull && bNull
	}
	return a.Equal(b)
}

type Encoder struct {
	w           io.Writer
	indentText  *string // Optional: nil implies single-line default formatting.
	indentLevel int     // Number of times the indent text is written before main text per line.
	visiting    map[*Table]bool

	err error // Internal sticky error.
}

func NewEncoder(w io.Writer, indent *string) *Encoder {
	return &Encoder{
		w:           w,
		indentText:  indent,
		indentLevel: 0,
		visiting:    map[*Table]bool{},
		err:         nil,
	}
}

func (e *Encoder) writeString(s string) error {
	if e.err != nil {
		return e.err
	}

	_, e.err = e.w.Write([]byte(s))

	return e.err
}

func (e *Encoder) writeIndent(s string) error {
	if e.indentText != nil {
		for range e.indentLevel {
			e.writeString(*e.indentText)
		}
	}

	e.writeString(s)

	return e.err
}

func (e *Encoder) writeEndOfLine() error {
	if e.indentText != nil {
		e.writeString("\n")
	} else {
		e.writeString(" ")
	}

	return e.err
}

// Encode renders a value in source-like form.
func Encode(value Value, indent *string) (string, error) {
	var sb strings.Builder
	err := value.Encode(NewEncoder(&sb, indent))
	return sb.String(), err
}

type Context struct {
	Null        *Null
	Globals     *Environment
	Diagnostics *Diagnostics
	WaitGroup   *WaitGroup
	Logger      *slog.Logger
	Stdout      io.Writer
	Stderr      io.Writer
	// Hash computes the module cache key of a source text.
	Hash func(source string) string

	locals  map[NodeID]int
	nodeID  NodeID
	modules map[string]*Table
	loading map[string]bool
}

func NewContext() *Context {
	ctx := &Context{}
	ctx.Null = ctx.NewNull()
	ctx.Globals = NewEnvironment(nil)
	ctx.Stdout = os.Stdout
	ctx.Stderr = os.Stderr
	ctx.Diagnostics = NewDiagnostics(ctx.Stderr)
	ctx.Logger = slog.New(slog.DiscardHandler)
	ctx.WaitGroup = NewWaitGroup(ctx.Logger)
	ctx.Hash = ContentHash
	ctx.locals = map[NodeID]int{}
	ctx.modules = map[string]*Table{}
	ctx.loading = map[string]bool{}
	return ctx
}

// SetOutput redirects program output and diagnostics.
func (ctx *Context) SetOutput(stdout, stderr io.Writer) {
	ctx.Stdout = stdout
	ctx.Stderr = stderr
	ctx.Diagnostics.w = stderr
}

// SetLogger replaces the logger of the context and its wait group.
func (ctx *Context) SetLogger(logger *slog.Logger) {
	ctx.Logger = logger
	ctx.WaitGroup.logger = logger
}

func (ctx *Context) newNodeID() NodeID {
	ctx.nodeID += 1
	return ctx.nodeID
}

// Define binds a name in the global environment.
func (ctx *Context) Define(name string, value Value) {
	ctx.Globals.Let(name, value)
}

func (ctx *Context) NewNull() *Null {
	return &Null{}
}

func (ctx *Context) NewBoolean(data bool) *Boolean {
	return &Boolean{data}
}

func (ctx *Context) NewNumber(data float64) *Number {
	return &Number{data}
}

func (ctx *Context) NewString(data string) *String {
	return &String{data}
}

func (ctx *Context) NewBytes(data []byte) *Bytes {
	return &Bytes{data}
}

func (ctx *Context) NewTable() *Table {
	return &Table{}
}

func (ctx *Context) NewBuiltin(name string, arity int, impl BuiltinFunc) *Builtin {
	return &Builtin{
		name:  name,
		arity: arity,
		impl:  impl,
	}
}

type Null struct{}

func (self *Null) Typename() string {
	return "nil"
}

func (self *Null) String() string {
	return "nil"
}

func (self *Null) Hash() uint64 {
	return 0
}

func (self *Null) Equal(other Value) bool {
	_, ok := other.(*Null)
	return ok
}

func (self *Null) Encode(e *Encoder) error {
	return e.writeString(self.String())
}

type Boolean struct {
	data bool
}

func (self *Boolean) Typename() string {
	return "boolean"
}

func (self *Boolean) String() string {
	if self.data {
		return "true"
	}
	return "false"
}

func (self *Boolean) Data() bool {
	return self.data
}

func (self *Boolean) Hash() uint64 {
	if self.data {
		return 1
	}
	return 0
}

func (self *Boolean) Equal(other Value) bool {
	othr, ok := other.(*Boolean)
	if !ok {
		return false
	}
	return self.data == othr.data
}

func (self *Boolean) Encode(e *Encoder) error {
	return e.writeString(self.String())
}

type Number struct {
	data float64
}

func (self *Number) Typename() string {
	return "number"
}

func (self *Number) String() string {
	if math.IsNaN(self.data) {
		return "NaN"
	}
	if self.data == math.Inf(+1) {
		return "Inf"
	}
	if self.data == math.Inf(-1) {
		return "-Inf"
	}
	if self.data == 0 && math.Signbit(self.data) {
		return "-0"
	}
	abs := math.Abs(self.data)
	if abs >= 1e21 || (abs != 0 && abs < 1e-6) {
		return strconv.FormatFloat(self.data, 'g', -1, 64)
	}
	return strconv.FormatFloat(self.data, 'f', -1, 64)
}

func (self *Number) Data() float64 {
	return self.data
}

func (self *Number) Hash() uint64 {
	if self.data == 0 {
		return 0 // +0 and -0 compare equal
	}
	return math.Float64bits(self.data)
}

func (self *Number) Equal(other Value) bool {
	othr, ok := other.(*Number)
	if !ok {
		return false
	}
	return self.data == othr.data
}

func (self *Number) Encode(e *Encoder) error {
	return e.writeString(self.String())
}

type String struct {
	data string
}

func (self *String) Typename() string {
	return "string"
}

func (self *String) String() string {
	return self.data
}

func (self *String) Data() string {
	return self.data
}

func (self *String) Hash() uint64 {
	return fnv1a(self.data)
}

func (self *String) Equal(other Value) bool {
	othr, ok := other.(*String)
	if !ok {
		return false
	}
	return self.data == othr.data
}

func (self *String) Encode(e *Encoder) error {
	return e.writeString(fmt.Sprintf("\"%s\"", escape(self.data)))
}

type Bytes struct {
	data []byte
}

func (self *Bytes) Typename() string {
	return "bytes"
}

func (self *Bytes) String() string {
	return "<bytes>"
}

func (self *Bytes) Data() []byte {
	return self.data
}

func (self *Bytes) Hash() uint64 {
	return pointerHash(self)
}

func (self *Bytes) Equal(other Value) bool {
	othr, ok := other.(*Bytes)
	return ok && self == othr
}

func (self *Bytes) Encode(e *Encoder) error {
	return e.writeString(fmt.Sprintf("<bytes %d>", len(self.data)))
}

type BuiltinFunc func(ctx *Context, args []Value) (Value, error)

// Builtin is a native callable injected into the global environment.
type Builtin struct {
	name  string
	arity int
	impl  BuiltinFunc
}

func (self *Builtin) Typename() string {
	return "function"
}

func (self *Builtin) String() string {
	return "<native fn>"
}

func (self *Builtin) Name() string {
	return self.name
}

func (self *Builtin) Hash() uint64 {
	return pointerHash(self)
}

func (self *Builtin) Equal(other Value) bool {
	othr, ok := other.(*Builtin)
	return ok && self == othr
}

func (self *Builtin) Encode(e *Encoder) error {
	return e.writeString(self.String())
}

func (self *Builtin) Arity() int {
	return self.arity
}

func (self *Builtin) Call(ctx *Context, args []Value) (Value, error) {
	result, err := self.impl(ctx, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return ctx.Null, nil
	}
	return result, nil
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentifierPunctuation(r rune) bool {
	return r == '-' || r == '?' || r == '!' || r == '@' || r == '\''
}

func isAlphaNumeric(r rune) bool {
	return isAlpha(r) || isDigit(r) || isIdentifierPunctuation(r)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}
