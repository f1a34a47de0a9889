package expr

import (
	"fmt"

	"github.com/solatis/mdcollate/internal/types"
)

// ErrorKind classifies expression parse failures.
type ErrorKind string

const (
	EmptyExpression      ErrorKind = "EmptyExpression"
	InvalidCharacters    ErrorKind = "InvalidCharacters"
	ConsecutiveDots      ErrorKind = "ConsecutiveDots"
	UnbalancedBrackets   ErrorKind = "UnbalancedBrackets"
	InvalidArrayNotation ErrorKind = "InvalidArrayNotation"
	InvalidPropertyName  ErrorKind = "InvalidPropertyName"
	EmptyParts           ErrorKind = "EmptyParts"
)

// ParseError describes why an expression was rejected.
type ParseError struct {
	Kind       ErrorKind
	Expression string
	Message    string
}

func newParseError(kind ErrorKind, expression, message string) *ParseError {
	return &ParseError{Kind: kind, Expression: expression, Message: message}
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q: %s (%s)", types.ErrInvalidExpression, e.Expression, e.Message, e.Kind)
}

// Unwrap lets errors.Is(err, types.ErrInvalidExpression) match.
func (e *ParseError) Unwrap() error {
	return types.ErrInvalidExpression
}
