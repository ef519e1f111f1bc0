// Package gogen emits a compiled ODE model as Go source.
//
// The statements are the same as the C backend's, scheduled by ode.Plan;
// only the syntax differs. Arrays become []float64 slices, the time
// argument is a plain float64 and the C math functions map onto the math
// package.
package gogen

import (
	"fmt"
	"io"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/tliron/commonlog"

	"github.com/chazu/defode/ode"
)

var log = commonlog.GetLogger("defode.gogen")

// Options controls Go generation.
type Options struct {
	// Package is the package clause of the generated file. Defaults to
	// "model".
	Package string
}

// mathFuncs maps C math library names onto the math package.
var mathFuncs = map[string]string{
	"sin":   "Sin",
	"cos":   "Cos",
	"tan":   "Tan",
	"asin":  "Asin",
	"acos":  "Acos",
	"atan":  "Atan",
	"atan2": "Atan2",
	"sinh":  "Sinh",
	"cosh":  "Cosh",
	"tanh":  "Tanh",
	"exp":   "Exp",
	"expm1": "Expm1",
	"log":   "Log",
	"log1p": "Log1p",
	"log10": "Log10",
	"pow":   "Pow",
	"sqrt":  "Sqrt",
	"hypot": "Hypot",
	"fabs":  "Abs",
	"floor": "Floor",
	"ceil":  "Ceil",
	"fmin":  "Min",
	"fmax":  "Max",
}

// Render writes p as a Go source file.
func Render(w io.Writer, p *ode.Plan, opts Options) error {
	f, err := Generate(p, opts)
	if err != nil {
		return err
	}
	return f.Render(w)
}

// Generate builds the jennifer file for p without rendering it.
func Generate(p *ode.Plan, opts Options) (*jen.File, error) {
	routines, err := p.Routines()
	if err != nil {
		return nil, err
	}

	pkg := opts.Package
	if pkg == "" {
		pkg = "model"
	}
	f := jen.NewFile(pkg)
	if p.Header != "" {
		for _, line := range strings.Split(p.Header, "\n") {
			f.HeaderComment(line)
		}
	}
	f.HeaderComment("Code generated by defode. DO NOT EDIT.")

	for _, table := range p.NameTables() {
		generateNameTable(f, table)
	}

	for _, r := range routines {
		g := &generator{plan: p, symbols: ode.NewSymbolTable(p.SymbolPrefix)}
		body := g.routine(r)
		if g.err != nil {
			return nil, fmt.Errorf("gogen: %s: %w", r.Name, g.err)
		}
		f.Func().Id(exportName(r.Name)).Params(g.params(r)...).Block(body...)
		f.Line()
		log.Debugf("generated %s with %d statements", r.Name, len(body))
	}
	return f, nil
}

func exportName(name string) string {
	return strings.ToUpper(name[:1]) + name[1:]
}

func generateNameTable(f *jen.File, t ode.NameTable) {
	names := make([]jen.Code, len(t.Names))
	for i, n := range t.Names {
		names[i] = jen.Lit(n)
	}
	id := exportName(t.Name)
	f.Const().Id("Num" + id).Op("=").Lit(len(t.Names))
	f.Var().Id(id).Op("=").Index().String().Values(names...)
	f.Line()
}

type generator struct {
	plan    *ode.Plan
	symbols *ode.SymbolTable
	err     error
}

func (g *generator) params(r *ode.Routine) []jen.Code {
	if !r.Timed {
		return []jen.Code{
			jen.Id(r.Output).Index().Float64(),
			jen.Id(ode.ArrayInput).Index().Float64(),
		}
	}
	return []jen.Code{
		jen.Id(r.Output).Index().Float64(),
		jen.Id(ode.ArrayTime).Float64(),
		jen.Id(ode.ArrayState).Index().Float64(),
		jen.Id(ode.ArrayInput).Index().Float64(),
	}
}

func (g *generator) routine(r *ode.Routine) []jen.Code {
	var body []jen.Code
	if r.Timed && len(g.plan.Buckets.Constants) > 0 {
		body = append(body, jen.Id(ode.ArrayConstants).Op(":=").Id(ode.ArrayInput).Index(jen.Lit(g.plan.NumInputs()), jen.Empty()))
	}

	used := make(map[ode.Ref]bool)
	for _, step := range r.Steps {
		for _, u := range step.Uses() {
			used[u] = true
		}
	}

	var unused []ode.Ref
	for _, step := range r.Steps {
		switch step.Kind {
		case ode.StepLoad:
			var value *jen.Statement
			if step.Array == ode.ArrayTime {
				value = jen.Id(ode.ArrayTime)
			} else {
				value = jen.Id(step.Array).Index(jen.Lit(step.Index))
			}
			body = append(body, jen.Id(g.symbols.Name(step.Item)).Op(":=").Add(value))
		case ode.StepDefine:
			name := g.symbols.Name(step.Item)
			body = append(body, jen.Id(name).Op(":=").Add(g.definition(step.Item)))
		case ode.StepStore:
			var value *jen.Statement
			if step.Inline {
				value = g.node(step.Item.(ode.Node))
			} else {
				value = g.operand(step.Item)
			}
			body = append(body, jen.Id(step.Array).Index(jen.Lit(step.Index)).Op("=").Add(value))
			continue
		}
		if !used[step.Item] {
			unused = append(unused, step.Item)
		}
	}

	// Loads the routine never reads would not compile.
	for _, item := range unused {
		body = append(body, jen.Id("_").Op("=").Id(g.symbols.Name(item)))
	}
	return body
}

func (g *generator) definition(item ode.Ref) *jen.Statement {
	if v, ok := item.(*ode.Variable); ok {
		return g.operand(v.Rule())
	}
	return g.node(item.(ode.Node))
}

func (g *generator) operand(t ode.Term) *jen.Statement {
	switch x := t.(type) {
	case ode.Literal:
		return jen.Lit(float64(x))
	case ode.Ref:
		return jen.Id(g.symbols.Name(x))
	}
	g.fail(fmt.Errorf("unsupported operand %T", t))
	return jen.Null()
}

func (g *generator) node(n ode.Node) *jen.Statement {
	switch x := n.(type) {
	case *ode.Constant:
		return g.operand(x.Value())
	case *ode.Binary:
		return g.operand(x.Left()).Op(x.Operator()).Add(g.operand(x.Right()))
	case *ode.Call:
		args := make([]jen.Code, 0, len(x.Operands()))
		for _, a := range x.Operands() {
			args = append(args, g.operand(a))
		}
		if fn, ok := mathFuncs[x.Name()]; ok {
			return jen.Qual("math", fn).Call(args...)
		}
		return jen.Id(x.Name()).Call(args...)
	}
	g.fail(fmt.Errorf("unsupported node %s (%T)", n.Kind(), n))
	return jen.Null()
}

func (g *generator) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}
