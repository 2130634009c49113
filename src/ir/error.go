// error.go implements the single diagnostic sink of the compiler. Semantic
// errors and warnings are posted as records; the error flag gates code
// generation in the driver.

package ir

import (
	"fmt"

	"rvcc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// ErrorCode enumerates the diagnostics the compiler can post.
type ErrorCode int

// Diagnostic is a single posted error or warning record.
type Diagnostic struct {
	Code ErrorCode
	Loc  Loc
	Args []interface{}
}

// Reporter collects diagnostics. It is the single sink for the whole
// compiler; posting an error sets WasError which suppresses code emission.
type Reporter struct {
	WasError bool
	diags    []Diagnostic
	pe       *util.Perror
}

// ---------------------
// ----- Constants -----
// ---------------------

// Semantic error codes.
const (
	ErrUndeclaredIdentifier ErrorCode = iota
	ErrRedeclaredIdentifier
	ErrTypeMismatch
	ErrSubscriptNotArray
	ErrIndexNotInteger
	ErrCallNotFunction
	ErrArgumentAmount
	ErrNotLvalue
	ErrInvalidMember
	ErrCondIncompatible
	ErrWrongInit
	ErrInitSizeMismatch
	ErrEmptyInit
	ErrNotIntInStanfunc
	ErrNotArrayInStanfunc
	ErrSyntax
	ErrNodeUnexpected

	// Warnings.
	WarnFloatEquality
	WarnNarrowingComparison
)

// messages maps error codes to diagnostic format strings.
var messages = map[ErrorCode]string{
	ErrUndeclaredIdentifier: "use of undeclared identifier %q",
	ErrRedeclaredIdentifier: "redeclaration of %q",
	ErrTypeMismatch:         "invalid operands to operation %s",
	ErrSubscriptNotArray:    "subscripted value is not an array",
	ErrIndexNotInteger:      "array subscript is not an integer",
	ErrCallNotFunction:      "called object is not a function",
	ErrArgumentAmount:       "function expects %d arguments, got %d",
	ErrNotLvalue:            "expression is not assignable",
	ErrInvalidMember:        "no member named %q",
	ErrCondIncompatible:     "incompatible operand types in conditional expression",
	ErrWrongInit:            "initializing with an expression of incompatible type",
	ErrInitSizeMismatch:     "initializer expects %d expressions, got %d",
	ErrEmptyInit:            "empty initializer list",
	ErrNotIntInStanfunc:     "standard function expects an integer operand",
	ErrNotArrayInStanfunc:   "standard function expects an array operand",
	ErrSyntax:               "syntax error: %s",
	ErrNodeUnexpected:       "internal error: unexpected node",

	WarnFloatEquality:       "comparing floating point numbers for equality",
	WarnNarrowingComparison: "implicit narrowing in comparison",
}

// ---------------------
// ----- Functions -----
// ---------------------

// NewReporter returns an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{pe: util.NewPerror(0)}
}

// Error posts an error record and raises the error flag.
func (r *Reporter) Error(code ErrorCode, loc Loc, args ...interface{}) {
	r.WasError = true
	r.diags = append(r.diags, Diagnostic{Code: code, Loc: loc, Args: args})
	r.pe.Append(fmt.Errorf("line %d:%d: %s", loc.Line, loc.Pos, fmt.Sprintf(messages[code], args...)))
}

// Warn posts a warning record without raising the error flag.
func (r *Reporter) Warn(code ErrorCode, loc Loc, args ...interface{}) {
	r.diags = append(r.diags, Diagnostic{Code: code, Loc: loc, Args: args})
	r.pe.Append(fmt.Errorf("line %d:%d: warning: %s", loc.Line, loc.Pos, fmt.Sprintf(messages[code], args...)))
}

// Diagnostics returns every posted record in order.
func (r *Reporter) Diagnostics() []Diagnostic {
	return r.diags
}

// Errors returns the formatted diagnostics in order.
func (r *Reporter) Errors() []error {
	return r.pe.Errors()
}

// Amount returns the number of posted diagnostics.
func (r *Reporter) Amount() int {
	return r.pe.Len()
}
