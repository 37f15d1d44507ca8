package formula

import (
	"errors"
	"fmt"
)

var (
	ErrUnboundVariable = errors.New("formula: unbound variable")
	ErrUnknownFunction = errors.New("formula: unknown function")
	ErrArity           = errors.New("formula: wrong number of arguments")
)

// SyntaxError reports a formula that could not be compiled.
// Pos is the byte offset into the source where the problem was found.
type SyntaxError struct {
	Pos int
	Msg string
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// EvalError reports a failure while evaluating a compiled formula against a scope.
type EvalError struct {
	Name string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Name)
}

func (e *EvalError) Unwrap() error { return e.Err }
