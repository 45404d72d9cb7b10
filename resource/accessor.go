package resource

import (
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/elastic-stacker/stacker/faults"
)

// Accessor is a jq expression compiled once and evaluated against
// documents. It backs the declarative per-kind lookups (identity
// extraction, managed-flag detection) so that absence at any level of a
// nested path uniformly yields the zero value instead of a lookup error.
type Accessor struct {
	expr string
	code *gojq.Code
}

func NewAccessor(expr string) (*Accessor, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, faults.NewTypedError(faults.ValidationError, "accessor expression must not be empty", nil)
	}

	query, err := gojq.Parse(trimmed)
	if err != nil {
		return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("invalid accessor expression %q", trimmed), err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("accessor expression %q does not compile", trimmed), err)
	}

	return &Accessor{expr: trimmed, code: code}, nil
}

func (a *Accessor) Expr() string {
	if a == nil {
		return ""
	}
	return a.expr
}

// First returns the first value the expression produces for doc, or nil
// when the expression produces nothing.
func (a *Accessor) First(doc any) (any, error) {
	if a == nil || a.code == nil {
		return nil, faults.NewTypedError(faults.InternalError, "accessor is not compiled", nil)
	}

	iterator := a.code.Run(doc)
	value, ok := iterator.Next()
	if !ok {
		return nil, nil
	}
	if valueErr, isErr := value.(error); isErr {
		return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("accessor %q failed", a.expr), valueErr)
	}
	return value, nil
}

// Bool evaluates the expression as a predicate: only an explicit true
// counts, so nulls, absent paths and evaluation errors all read as false.
func (a *Accessor) Bool(doc any) bool {
	value, err := a.First(doc)
	if err != nil {
		return false
	}
	result, ok := value.(bool)
	return ok && result
}

// String evaluates the expression expecting a non-empty string result.
func (a *Accessor) String(doc any) (string, error) {
	value, err := a.First(doc)
	if err != nil {
		return "", err
	}
	result, ok := value.(string)
	if !ok || result == "" {
		return "", faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("accessor %q did not produce a string identity (got %T)", a.expr, value), nil)
	}
	return result, nil
}
