package ode

import "errors"

// Errors returned by model construction, classification and emission.
// Callers test for them with errors.Is; returned errors carry context.
var (
	ErrDuplicateName       = errors.New("duplicate name")
	ErrInvalidName         = errors.New("invalid name")
	ErrArity               = errors.New("wrong number of arguments")
	ErrInvalidOverride     = errors.New("forced override of a variable with no rule")
	ErrInternalConsistency = errors.New("internal consistency fault")
	ErrCycle               = errors.New("dependency cycle")
	ErrUnboundSymbol       = errors.New("symbol used before definition")
	ErrUnknownName         = errors.New("unknown name")
)

// Warning records a non-fatal condition raised while building a model.
type Warning struct {
	Variable string
	Message  string
}

func (w Warning) String() string {
	return w.Variable + ": " + w.Message
}
