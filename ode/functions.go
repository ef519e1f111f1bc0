package ode

import "fmt"

// Variadic is the arity of a function that accepts any number of arguments.
const Variadic = -1

// Function builds call nodes for a named function.
type Function struct {
	name  string
	arity int
}

// NewFunction registers a call constructor for name. An arity of Variadic
// disables the argument count check.
func NewFunction(name string, arity int) *Function {
	return &Function{name: name, arity: arity}
}

func (f *Function) Name() string { return f.name }
func (f *Function) Arity() int   { return f.arity }

// Call returns a new call node, or ErrArity if the function has a fixed
// arity and len(args) differs from it.
func (f *Function) Call(args ...Term) (*Call, error) {
	if f.arity != Variadic && len(args) != f.arity {
		return nil, fmt.Errorf("%s: got %d arguments, want %d: %w", f.name, len(args), f.arity, ErrArity)
	}
	terms := make([]Term, len(args))
	for i, a := range args {
		terms[i] = mustTerm(a)
	}
	return &Call{name: f.name, args: terms}, nil
}

// MustCall is like Call but panics on an arity mismatch.
func (f *Function) MustCall(args ...Term) *Call {
	c, err := f.Call(args...)
	if err != nil {
		panic(err)
	}
	return c
}

// C math library functions.
var (
	Sin   = NewFunction("sin", 1)
	Cos   = NewFunction("cos", 1)
	Exp   = NewFunction("exp", 1)
	Log   = NewFunction("log", 1)
	Expm1 = NewFunction("expm1", 1)
	Log1p = NewFunction("log1p", 1)
	Pow   = NewFunction("pow", 2)
)

// Builtins returns the predefined functions keyed by name. The map is a
// fresh copy and may be extended by the caller.
func Builtins() map[string]*Function {
	fns := make(map[string]*Function)
	for _, f := range []*Function{Sin, Cos, Exp, Log, Expm1, Log1p, Pow} {
		fns[f.name] = f
	}
	return fns
}
