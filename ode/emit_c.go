package ode

import (
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// C backend
// ---------------------------------------------------------------------------

// RenderOption configures Plan and Render.
type RenderOption func(*renderConfig)

type renderConfig struct {
	reorder func([]NamedVariable) []NamedVariable
	prefix  string
	header  string
}

// WithReorder applies f to the full name/variable list before bucketing.
// f may permute and filter the list; it decides which variables appear in
// the name tables and in which order.
func WithReorder(f func([]NamedVariable) []NamedVariable) RenderOption {
	return func(c *renderConfig) { c.reorder = f }
}

// WithSymbolPrefix sets the prefix of generated symbols.
func WithSymbolPrefix(prefix string) RenderOption {
	return func(c *renderConfig) { c.prefix = prefix }
}

// WithHeader emits text as a comment at the top of the artifact.
func WithHeader(text string) RenderOption {
	return func(c *renderConfig) { c.header = text }
}

// Plan classifies the model and buckets its variables. The ODESet is not
// modified.
func (s *ODESet) Plan(opts ...RenderOption) (*Plan, error) {
	cfg := renderConfig{prefix: DefaultSymbolPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}

	vars := make([]*Variable, len(s.vars))
	for i, nv := range s.vars {
		vars[i] = nv.Variable
	}
	c, err := Classify(s.time, vars)
	if err != nil {
		return nil, err
	}

	items := s.Variables()
	if cfg.reorder != nil {
		items = cfg.reorder(items)
		if err := checkUnique(items); err != nil {
			return nil, fmt.Errorf("reorder: %w", err)
		}
	}
	b, err := SplitGivenVars(c, items)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Classification: c,
		Buckets:        b,
		SymbolPrefix:   cfg.prefix,
		Header:         cfg.header,
	}, nil
}

func checkUnique(items []NamedVariable) error {
	names := make(map[string]bool, len(items))
	vars := make(map[*Variable]bool, len(items))
	for _, nv := range items {
		if names[nv.Name] || vars[nv.Variable] {
			return fmt.Errorf("%q listed twice: %w", nv.Name, ErrDuplicateName)
		}
		names[nv.Name] = true
		vars[nv.Variable] = true
	}
	return nil
}

// Render writes the model as C source: the four name tables followed by
// compute, odefun and timedepfun.
func (s *ODESet) Render(w io.Writer, opts ...RenderOption) error {
	p, err := s.Plan(opts...)
	if err != nil {
		return err
	}
	return WriteC(w, p)
}

// WriteC writes a plan as C source. Nothing is written if scheduling
// fails.
func WriteC(w io.Writer, p *Plan) error {
	routines, err := p.Routines()
	if err != nil {
		return err
	}

	cw := &cWriter{w: w}
	if p.Header != "" {
		for _, line := range strings.Split(p.Header, "\n") {
			cw.printf("// %s\n", line)
		}
		cw.printf("\n")
	}
	for _, table := range p.NameTables() {
		cw.nameTable(table)
	}
	for _, r := range routines {
		cw.routine(r, p)
	}
	return cw.err
}

// cWriter keeps the first write error and drops everything after it.
type cWriter struct {
	w   io.Writer
	err error
}

func (c *cWriter) printf(format string, args ...interface{}) {
	if c.err != nil {
		return
	}
	_, c.err = fmt.Fprintf(c.w, format, args...)
}

func (c *cWriter) nameTable(t NameTable) {
	c.printf("const int num_%s = %d;\n", t.Name, len(t.Names))
	c.printf("const char* %s[] = {\n", t.Name)
	for _, name := range t.Names {
		c.printf("    %q,\n", name)
	}
	c.printf("    0\n};\n\n")
}

func (c *cWriter) routine(r *Routine, p *Plan) {
	symbols := NewSymbolTable(p.SymbolPrefix)
	if r.Timed {
		c.printf("void %s(double* %s, const double* time,\n", r.Name, r.Output)
		c.printf("        const double* state, const double* input) {\n")
		c.printf("    const double *constants = input + %d;\n", p.NumInputs())
	} else {
		c.printf("void %s(double* %s,\n", r.Name, r.Output)
		c.printf("        const double* input) {\n")
	}

	for _, step := range r.Steps {
		switch step.Kind {
		case StepLoad:
			if step.Array == ArrayTime {
				c.printf("    const double %s = *time;\n", symbols.Name(step.Item))
			} else {
				c.printf("    const double %s = %s[%d];\n", symbols.Name(step.Item), step.Array, step.Index)
			}
		case StepDefine:
			c.printf("    const double %s = %s;\n", symbols.Name(step.Item), c.value(step.Item, symbols))
		case StepStore:
			var value string
			if step.Inline {
				value = RenderString(step.Item.(Node), symbols.Name)
			} else {
				value = symbols.Name(step.Item)
			}
			c.printf("    %s[%d] = %s;\n", step.Array, step.Index, value)
		}
	}
	c.printf("}\n\n")
}

// value renders the right-hand side of a definition.
func (c *cWriter) value(item Ref, symbols *SymbolTable) string {
	if v, ok := item.(*Variable); ok {
		return symbols.Name(v.rule)
	}
	return RenderString(item.(Node), symbols.Name)
}
