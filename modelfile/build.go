package modelfile

import (
	"fmt"

	"github.com/chazu/defode/ode"
)

// pendingRule is a rule waiting for every variable to be declared.
type pendingRule struct {
	variable *ode.Variable
	decl     Variable
	scope    *ode.Compartment
}

// Build constructs the model. Variables are declared first so that rules
// may refer to variables declared later in the file.
func (m *Model) Build() (*ode.ODESet, error) {
	fns, err := m.functions()
	if err != nil {
		return nil, err
	}

	set := ode.NewODESet()
	var pending []pendingRule
	if err := declare(set.Root(), m.Variables, m.Compartments, &pending); err != nil {
		return nil, err
	}

	for _, p := range pending {
		if err := p.assign(set, fns); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(m.Output.Order))
	for _, name := range m.Output.Order {
		if _, ok := set.Lookup(name); !ok {
			return nil, fmt.Errorf("output order: %q: %w", name, ode.ErrUnknownName)
		}
		if seen[name] {
			return nil, fmt.Errorf("output order: %q listed twice: %w", name, ode.ErrDuplicateName)
		}
		seen[name] = true
	}

	log.Infof("built model %q with %d variables", m.Model.Name, len(set.Variables()))
	return set, nil
}

func (m *Model) functions() (map[string]*ode.Function, error) {
	fns := ode.Builtins()
	for _, f := range m.Functions {
		if !isIdentifier(f.Name) {
			return nil, fmt.Errorf("function %q: not an identifier: %w", f.Name, ode.ErrInvalidName)
		}
		if f.Name == TimeKeyword {
			return nil, fmt.Errorf("function %q: reserved name: %w", f.Name, ode.ErrInvalidName)
		}
		if _, ok := fns[f.Name]; ok {
			return nil, fmt.Errorf("function %q: %w", f.Name, ode.ErrDuplicateName)
		}
		arity := f.Arity
		if f.Variadic {
			arity = ode.Variadic
		} else if arity < 0 {
			return nil, fmt.Errorf("function %q: negative arity %d", f.Name, arity)
		}
		fns[f.Name] = ode.NewFunction(f.Name, arity)
	}
	return fns, nil
}

func declare(c *ode.Compartment, vars []Variable, comps []Compartment, pending *[]pendingRule) error {
	for _, decl := range vars {
		if decl.Name == TimeKeyword {
			return fmt.Errorf("variable %q: reserved name: %w", decl.Name, ode.ErrInvalidName)
		}
		v, err := c.NewVariable(decl.Name)
		if err != nil {
			return err
		}
		if decl.Compute != "" || decl.Evolve != "" {
			*pending = append(*pending, pendingRule{variable: v, decl: decl, scope: c})
		}
	}
	for _, comp := range comps {
		sub, err := c.NewCompartment(comp.Name)
		if err != nil {
			return err
		}
		if err := declare(sub, comp.Variables, comp.Compartments, pending); err != nil {
			return err
		}
	}
	return nil
}

func (p pendingRule) assign(set *ode.ODESet, fns map[string]*ode.Function) error {
	name := p.variable.Name()
	if p.decl.Compute != "" && p.decl.Evolve != "" {
		return fmt.Errorf("variable %s: both compute and evolve are set", name)
	}

	src, evolve := p.decl.Compute, false
	if p.decl.Evolve != "" {
		src, evolve = p.decl.Evolve, true
	}
	rule, err := ParseRule(src, Env{Set: set, Scope: p.scope, Functions: fns})
	if err != nil {
		return fmt.Errorf("variable %s: %w", name, err)
	}

	if evolve {
		err = p.variable.Evolve(rule)
	} else {
		err = p.variable.Compute(rule)
	}
	if err != nil {
		return fmt.Errorf("variable %s: %w", name, err)
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !(isLetter(r) || r == '_' || i > 0 && isDigit(r)) {
			return false
		}
	}
	return true
}
