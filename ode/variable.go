package ode

import "fmt"

// State is the assignment state of a Variable.
type State int

const (
	// Free variables have no rule and are supplied as inputs.
	Free State = iota
	// Computed variables hold a rule defining their value.
	Computed
	// Evolving variables hold a rule defining their rate of change.
	Evolving
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Computed:
		return "computed"
	case Evolving:
		return "evolving"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Variable is a named slot in a model. It starts free and is given exactly
// one rule, either computed or evolving.
type Variable struct {
	name   string
	state  State
	rule   Node
	isTime bool
	warn   func(Warning)
}

func (v *Variable) term() {}
func (v *Variable) ref()  {}

// Name returns the qualified name of the variable.
func (v *Variable) Name() string { return v.name }

func (v *Variable) State() State { return v.state }

// Rule returns the variable's rule, or nil for a free variable.
func (v *Variable) Rule() Node { return v.rule }

func (v *Variable) IsFree() bool     { return v.state == Free }
func (v *Variable) IsComputed() bool { return v.state == Computed }
func (v *Variable) IsEvolving() bool { return v.state == Evolving }

// IsTime reports whether v is the time variable of its ODESet.
func (v *Variable) IsTime() bool { return v.isTime }

// Compute makes v a computed variable with the given rule. Replacing an
// existing rule is allowed but raises a warning.
func (v *Variable) Compute(rule Term) error {
	return v.assign(rule, Computed, false)
}

// Evolve makes v an evolving variable whose rate of change is rule.
// Replacing an existing rule is allowed but raises a warning.
func (v *Variable) Evolve(rule Term) error {
	return v.assign(rule, Evolving, false)
}

// ForceCompute replaces v's existing rule without a warning. It fails with
// ErrInvalidOverride if v has no rule.
func (v *Variable) ForceCompute(rule Term) error {
	return v.assign(rule, Computed, true)
}

// ForceEvolve is ForceCompute for evolving rules.
func (v *Variable) ForceEvolve(rule Term) error {
	return v.assign(rule, Evolving, true)
}

func (v *Variable) assign(rule Term, state State, forced bool) error {
	if v.isTime {
		return fmt.Errorf("%s: the time variable cannot be %s: %w", v.name, state, ErrInvalidOverride)
	}
	if rule == nil {
		return fmt.Errorf("%s: nil rule", v.name)
	}
	if forced && v.rule == nil {
		return fmt.Errorf("%s: %w", v.name, ErrInvalidOverride)
	}
	if !forced && v.rule != nil {
		w := Warning{
			Variable: v.name,
			Message:  fmt.Sprintf("overriding %s rule with a %s rule", v.state, state),
		}
		if v.warn != nil {
			v.warn(w)
		} else {
			log.Warning(w.String())
		}
	}
	v.rule = asNode(rule)
	v.state = state
	return nil
}
