package ode

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Expression model: the immutable computation DAG
// ---------------------------------------------------------------------------

// Term is anything that can appear as an operand: a Literal, a Node or a
// *Variable.
type Term interface {
	term() // marker method
}

// Ref is a Term with identity. Every Ref must be defined before it is used
// in emitted code; literals never need a definition.
type Ref interface {
	Term
	ref() // marker method
}

// Kind identifies the variant of an expression node.
type Kind int

const (
	KindConstant Kind = iota
	KindSum
	KindDifference
	KindProduct
	KindQuotient
	KindCall
)

var kindNames = map[Kind]string{
	KindConstant:   "constant",
	KindSum:        "sum",
	KindDifference: "difference",
	KindProduct:    "product",
	KindQuotient:   "quotient",
	KindCall:       "call",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Node is an expression node. Nodes are immutable once built.
type Node interface {
	Ref
	Kind() Kind
	Operands() []Term

	// Dependencies returns the operands that are themselves nodes or
	// variables, in operand order.
	Dependencies() []Ref

	// Render writes the expression for this node using the display names
	// of its operands.
	Render(emit func(string), nameOf func(Term) string)
}

// Literal is a raw numeric operand. Literals are rendered as their text
// and never receive a symbol.
type Literal float64

// Lit returns v as an operand.
func Lit(v float64) Literal { return Literal(v) }

func (Literal) term() {}

// String formats the literal so that it always reads as a floating point
// number in the emitted code (2 renders as 2.0).
func (l Literal) String() string {
	s := strconv.FormatFloat(float64(l), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func dependenciesOf(terms []Term) []Ref {
	var deps []Ref
	for _, t := range terms {
		if r, ok := t.(Ref); ok {
			deps = append(deps, r)
		}
	}
	return deps
}

func mustTerm(t Term) Term {
	if t == nil {
		panic("ode: nil operand")
	}
	return t
}

// Constant is a node holding a single operand: a literal value, or an
// alias for a variable when a variable is used directly as a rule.
type Constant struct {
	value Term
}

// Const returns a new constant node for v. Two calls with the same value
// return distinct nodes.
func Const(v float64) *Constant {
	return &Constant{value: Lit(v)}
}

func (n *Constant) term()               {}
func (n *Constant) ref()                {}
func (n *Constant) Kind() Kind          { return KindConstant }
func (n *Constant) Value() Term         { return n.value }
func (n *Constant) Operands() []Term    { return []Term{n.value} }
func (n *Constant) Dependencies() []Ref { return dependenciesOf(n.Operands()) }

func (n *Constant) Render(emit func(string), nameOf func(Term) string) {
	emit(nameOf(n.value))
}

// Wrap returns a new constant node holding t. A variable assigned a rule
// that is not a node stores it wrapped this way.
func Wrap(t Term) *Constant {
	return &Constant{value: mustTerm(t)}
}

func asNode(t Term) Node {
	if n, ok := t.(Node); ok {
		return n
	}
	return Wrap(t)
}

// Binary is an arithmetic operator applied to two operands.
type Binary struct {
	op       Kind
	lhs, rhs Term
}

var binarySeparators = map[Kind]string{
	KindSum:        " + ",
	KindDifference: " - ",
	KindProduct:    " * ",
	KindQuotient:   " / ",
}

func newBinary(op Kind, a, b Term) *Binary {
	return &Binary{op: op, lhs: mustTerm(a), rhs: mustTerm(b)}
}

// Add returns the node a + b.
func Add(a, b Term) *Binary { return newBinary(KindSum, a, b) }

// Sub returns the node a - b.
func Sub(a, b Term) *Binary { return newBinary(KindDifference, a, b) }

// Mul returns the node a * b.
func Mul(a, b Term) *Binary { return newBinary(KindProduct, a, b) }

// Div returns the node a / b.
func Div(a, b Term) *Binary { return newBinary(KindQuotient, a, b) }

// Neg returns the node 0 - a.
func Neg(a Term) *Binary { return newBinary(KindDifference, Lit(0), a) }

// NewBinary builds a binary node from its kind. It panics if op is not one
// of the four arithmetic kinds.
func NewBinary(op Kind, a, b Term) *Binary {
	if _, ok := binarySeparators[op]; !ok {
		panic("ode: not a binary operator: " + op.String())
	}
	return newBinary(op, a, b)
}

func (n *Binary) term()               {}
func (n *Binary) ref()                {}
func (n *Binary) Kind() Kind          { return n.op }
func (n *Binary) Left() Term          { return n.lhs }
func (n *Binary) Right() Term         { return n.rhs }
func (n *Binary) Operands() []Term    { return []Term{n.lhs, n.rhs} }
func (n *Binary) Dependencies() []Ref { return dependenciesOf(n.Operands()) }

// Operator returns the operator symbol, e.g. "+".
func (n *Binary) Operator() string {
	return strings.TrimSpace(binarySeparators[n.op])
}

func (n *Binary) Render(emit func(string), nameOf func(Term) string) {
	emit(nameOf(n.lhs) + binarySeparators[n.op] + nameOf(n.rhs))
}

// Call is a named function applied to its arguments.
type Call struct {
	name string
	args []Term
}

func (n *Call) term()      {}
func (n *Call) ref()       {}
func (n *Call) Kind() Kind { return KindCall }
func (n *Call) Name() string {
	return n.name
}

func (n *Call) Operands() []Term {
	out := make([]Term, len(n.args))
	copy(out, n.args)
	return out
}

func (n *Call) Dependencies() []Ref { return dependenciesOf(n.args) }

func (n *Call) Render(emit func(string), nameOf func(Term) string) {
	names := make([]string, len(n.args))
	for i, a := range n.args {
		names[i] = nameOf(a)
	}
	emit(n.name + "(" + strings.Join(names, ", ") + ")")
}

// RenderString renders n into a string.
func RenderString(n Node, nameOf func(Term) string) string {
	var sb strings.Builder
	n.Render(func(s string) { sb.WriteString(s) }, nameOf)
	return sb.String()
}
