package ode

import "fmt"

// ---------------------------------------------------------------------------
// Emission plan: backend-independent statement scheduling
// ---------------------------------------------------------------------------

// Array names shared by every backend.
const (
	ArrayInput     = "input"
	ArrayConstants = "constants"
	ArrayState     = "state"
	ArrayTime      = "time"
	ArrayRate      = "rate"
	ArrayTimedeps  = "timedeps"
)

// StepKind identifies a statement of an emitted routine.
type StepKind int

const (
	// StepLoad binds a symbol to an array slot (or to the time argument).
	StepLoad StepKind = iota
	// StepDefine binds a symbol to a computed variable or expression node.
	StepDefine
	// StepStore writes a value into a slot of the output array.
	StepStore
)

// Step is one statement. Every Ref a step uses was bound by an earlier step.
type Step struct {
	Kind StepKind

	// Item is the loaded or defined item, or the stored value.
	Item Ref

	// Array and Index locate the slot of a load or store. Loads of the
	// time argument have Array == ArrayTime and Index == -1.
	Array string
	Index int

	// Inline marks a store whose value is a node rendered in place
	// instead of referenced by its symbol.
	Inline bool
}

// Uses returns the items whose symbols appear on the right-hand side.
func (s Step) Uses() []Ref {
	switch s.Kind {
	case StepDefine:
		return usesOf(s.Item)
	case StepStore:
		if s.Inline {
			return usesOf(s.Item)
		}
		return []Ref{s.Item}
	}
	return nil
}

func usesOf(r Ref) []Ref {
	switch x := r.(type) {
	case *Variable:
		if x.rule != nil {
			return []Ref{x.rule}
		}
	case Node:
		return x.Dependencies()
	}
	return nil
}

// Routine is one emitted function.
type Routine struct {
	Name   string
	Output string
	// Timed routines take time, state and input; the constants are the
	// tail of input starting at Plan.NumInputs().
	Timed bool
	Steps []Step
}

// NameTable is an ordered list of variable names for one bucket.
type NameTable struct {
	Name  string
	Names []string
}

// Plan is a classified model ready for emission.
type Plan struct {
	Classification *Classification
	Buckets        *Buckets
	SymbolPrefix   string
	Header         string
}

// NumInputs returns the number of free inputs, which is also the offset of
// the constants inside the input array.
func (p *Plan) NumInputs() int { return len(p.Buckets.Inputs) }

// NameTables returns the four name tables sorted by table name.
func (p *Plan) NameTables() []NameTable {
	names := func(nvs []NamedVariable) []string {
		out := make([]string, len(nvs))
		for i, nv := range nvs {
			out[i] = nv.Name
		}
		return out
	}
	return []NameTable{
		{Name: "constants", Names: names(p.Buckets.Constants)},
		{Name: "inputs", Names: names(p.Buckets.Inputs)},
		{Name: "state", Names: names(p.Buckets.State)},
		{Name: "timedep", Names: names(p.Buckets.TimeDependent)},
	}
}

// Routines returns compute, odefun and timedepfun in emission order.
func (p *Plan) Routines() ([]*Routine, error) {
	compute, err := p.Compute()
	if err != nil {
		return nil, err
	}
	rate, err := p.Rate()
	if err != nil {
		return nil, err
	}
	outputs, err := p.Outputs()
	if err != nil {
		return nil, err
	}
	return []*Routine{compute, rate, outputs}, nil
}

// Compute schedules the routine that derives the constants from the
// inputs.
func (p *Plan) Compute() (*Routine, error) {
	s := newScheduler(p)
	for i, nv := range p.Buckets.Inputs {
		s.load(nv.Variable, ArrayInput, i)
	}

	roots := make([]Ref, 0, len(p.Buckets.Constants))
	for _, nv := range p.Buckets.Constants {
		roots = append(roots, nv.Variable)
	}
	if err := s.defineNeeded(p.Classification.Independent, s.closure(roots)); err != nil {
		return nil, fmt.Errorf("compute: %w", err)
	}

	for i, nv := range p.Buckets.Constants {
		if err := s.store(nv.Variable, ArrayConstants, i, false); err != nil {
			return nil, fmt.Errorf("compute: %w", err)
		}
	}
	return &Routine{Name: "compute", Output: ArrayConstants, Steps: s.steps}, nil
}

// Rate schedules the ODE right-hand side.
func (p *Plan) Rate() (*Routine, error) {
	return p.timed("odefun", ArrayRate, p.Buckets.State)
}

// Outputs schedules the routine computing the time-dependent outputs.
func (p *Plan) Outputs() (*Routine, error) {
	return p.timed("timedepfun", ArrayTimedeps, p.Buckets.TimeDependent)
}

func (p *Plan) timed(name, output string, targets []NamedVariable) (*Routine, error) {
	c := p.Classification
	s := newScheduler(p)
	s.load(c.Time(), ArrayTime, -1)
	for i, nv := range p.Buckets.Inputs {
		s.load(nv.Variable, ArrayInput, i)
	}
	for i, nv := range p.Buckets.Constants {
		s.load(nv.Variable, ArrayConstants, i)
	}
	for i, nv := range p.Buckets.State {
		s.load(nv.Variable, ArrayState, i)
	}

	// Every time-dependent computed variable and expression is redefined
	// at each step; time-independent items are only pulled in when
	// something needs them and they were not loaded.
	var roots []Ref
	for _, item := range c.Dependent {
		if definable(item) {
			roots = append(roots, item)
		}
	}
	for _, nv := range targets {
		rule := nv.Variable.rule
		if c.IsTimeDependent(rule) {
			roots = append(roots, rule)
		} else {
			roots = append(roots, rule.Dependencies()...)
		}
	}
	need := s.closure(roots)
	if err := s.defineNeeded(c.Independent, need); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := s.defineNeeded(c.Dependent, need); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	for i, nv := range targets {
		rule := nv.Variable.rule
		if err := s.store(rule, output, i, !s.defined[rule]); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return &Routine{Name: name, Output: output, Timed: true, Steps: s.steps}, nil
}

// definable reports whether item gets a definition statement: expression
// nodes and computed variables do, free and evolving variables are loaded.
func definable(item Ref) bool {
	switch x := item.(type) {
	case *Variable:
		return x.IsComputed()
	case Node:
		return true
	}
	return false
}

type scheduler struct {
	plan    *Plan
	defined map[Ref]bool
	steps   []Step
}

func newScheduler(p *Plan) *scheduler {
	return &scheduler{plan: p, defined: make(map[Ref]bool)}
}

func (s *scheduler) load(r Ref, array string, index int) {
	s.defined[r] = true
	s.steps = append(s.steps, Step{Kind: StepLoad, Item: r, Array: array, Index: index})
}

// closure returns roots and everything they depend on, stopping at items
// that are already bound.
func (s *scheduler) closure(roots []Ref) map[Ref]bool {
	need := make(map[Ref]bool)
	stack := append([]Ref(nil), roots...)
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if need[r] || s.defined[r] {
			continue
		}
		need[r] = true
		stack = append(stack, usesOf(r)...)
	}
	return need
}

func (s *scheduler) defineNeeded(order []Ref, need map[Ref]bool) error {
	for _, item := range order {
		if !need[item] || s.defined[item] || !definable(item) {
			continue
		}
		if err := s.check(item, usesOf(item)); err != nil {
			return err
		}
		s.defined[item] = true
		s.steps = append(s.steps, Step{Kind: StepDefine, Item: item})
	}
	return nil
}

func (s *scheduler) store(value Ref, array string, index int, inline bool) error {
	step := Step{Kind: StepStore, Item: value, Array: array, Index: index, Inline: inline}
	if err := s.check(value, step.Uses()); err != nil {
		return err
	}
	s.steps = append(s.steps, step)
	return nil
}

func (s *scheduler) check(user Ref, uses []Ref) error {
	for _, dep := range uses {
		if !s.defined[dep] {
			return fmt.Errorf("%s needs %s: %w", describe(user), describe(dep), ErrUnboundSymbol)
		}
	}
	return nil
}

func describe(r Ref) string {
	switch x := r.(type) {
	case *Variable:
		return fmt.Sprintf("%s variable %q", x.state, x.name)
	case Node:
		return x.Kind().String() + " node"
	}
	return fmt.Sprintf("%T", r)
}
