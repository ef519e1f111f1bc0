package ode

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("defode.ode")

// Separator joins compartment names into qualified variable names.
const Separator = "_"

// NamedVariable pairs a variable with the name it is listed under.
type NamedVariable struct {
	Name     string
	Variable *Variable
}

// ODESet owns every variable of a model together with its time variable.
// Variables keep their insertion order.
type ODESet struct {
	time     *Variable
	vars     []NamedVariable
	byName   map[string]*Variable
	root     *Compartment
	warnings []Warning
}

// NewODESet returns an empty model.
func NewODESet() *ODESet {
	s := &ODESet{
		time:   &Variable{name: "time", isTime: true},
		byName: make(map[string]*Variable),
	}
	s.root = &Compartment{set: s, children: make(map[string]any)}
	return s
}

// Time returns the distinguished time variable.
func (s *ODESet) Time() *Variable { return s.time }

// Root returns the unnamed top-level compartment.
func (s *ODESet) Root() *Compartment { return s.root }

// NewVariable creates a free variable in the top-level namespace.
func (s *ODESet) NewVariable(name string) (*Variable, error) {
	return s.root.NewVariable(name)
}

// NewCompartment creates a compartment in the top-level namespace.
func (s *ODESet) NewCompartment(name string) (*Compartment, error) {
	return s.root.NewCompartment(name)
}

// Lookup finds a variable by its qualified name.
func (s *ODESet) Lookup(qualified string) (*Variable, bool) {
	v, ok := s.byName[qualified]
	return v, ok
}

// Variables returns all variables in insertion order.
func (s *ODESet) Variables() []NamedVariable {
	out := make([]NamedVariable, len(s.vars))
	copy(out, s.vars)
	return out
}

// Warnings returns the warnings raised so far.
func (s *ODESet) Warnings() []Warning {
	out := make([]Warning, len(s.warnings))
	copy(out, s.warnings)
	return out
}

func (s *ODESet) warn(w Warning) {
	s.warnings = append(s.warnings, w)
	log.Warningf("%s", w)
}

func (s *ODESet) newVariable(qualified string) (*Variable, error) {
	if _, ok := s.byName[qualified]; ok {
		return nil, fmt.Errorf("variable %q: %w", qualified, ErrDuplicateName)
	}
	v := &Variable{name: qualified, warn: s.warn}
	s.byName[qualified] = v
	s.vars = append(s.vars, NamedVariable{Name: qualified, Variable: v})
	log.Debugf("new variable %s", qualified)
	return v, nil
}

// Compartment is a named group of variables and sub-compartments. It only
// qualifies names; every variable lives in the owning ODESet.
type Compartment struct {
	set      *ODESet
	parent   *Compartment
	name     string
	children map[string]any
}

// Name returns the qualified name of the compartment, empty for the root.
func (c *Compartment) Name() string { return c.name }

func (c *Compartment) Parent() *Compartment { return c.parent }
func (c *Compartment) Set() *ODESet         { return c.set }

// NewVariable creates a free variable named local inside c.
func (c *Compartment) NewVariable(local string) (*Variable, error) {
	qualified, err := c.qualify(local)
	if err != nil {
		return nil, err
	}
	v, err := c.set.newVariable(qualified)
	if err != nil {
		return nil, err
	}
	c.children[local] = v
	return v, nil
}

// NewCompartment creates a sub-compartment named local inside c.
func (c *Compartment) NewCompartment(local string) (*Compartment, error) {
	qualified, err := c.qualify(local)
	if err != nil {
		return nil, err
	}
	sub := &Compartment{
		set:      c.set,
		parent:   c,
		name:     qualified,
		children: make(map[string]any),
	}
	c.children[local] = sub
	return sub, nil
}

// Variable returns the variable named local directly inside c.
func (c *Compartment) Variable(local string) (*Variable, bool) {
	v, ok := c.children[local].(*Variable)
	return v, ok
}

// Compartment returns the sub-compartment named local directly inside c.
func (c *Compartment) Compartment(local string) (*Compartment, bool) {
	sub, ok := c.children[local].(*Compartment)
	return sub, ok
}

func (c *Compartment) qualify(local string) (string, error) {
	if err := ValidateName(local); err != nil {
		return "", err
	}
	if _, ok := c.children[local]; ok {
		where := c.name
		if where == "" {
			where = "top level"
		}
		return "", fmt.Errorf("%q in %s: %w", local, where, ErrDuplicateName)
	}
	if c.name == "" {
		return local, nil
	}
	return c.name + Separator + local, nil
}

// ValidateName reports whether name can be used for a variable or
// compartment. Names end up in string tables of the emitted code, so they
// must be non-empty and free of quotes, backslashes and control characters.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidName)
	}
	if strings.ContainsAny(name, `"\`) {
		return fmt.Errorf("%q: quotes and backslashes are not allowed: %w", name, ErrInvalidName)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%q: control characters are not allowed: %w", name, ErrInvalidName)
		}
	}
	return nil
}
