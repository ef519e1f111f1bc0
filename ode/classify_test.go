package ode

import (
	"errors"
	"strings"
	"testing"
)

func setVars(s *ODESet) []*Variable {
	var out []*Variable
	for _, nv := range s.Variables() {
		out = append(out, nv.Variable)
	}
	return out
}

func positions(order []Ref) map[Ref]int {
	pos := make(map[Ref]int, len(order))
	for i, r := range order {
		pos[r] = i
	}
	return pos
}

// checkTopological verifies every edge of the dependency graph points
// forward in order.
func checkTopological(t *testing.T, c *Classification) {
	t.Helper()
	pos := positions(c.Order)
	for _, item := range c.Order {
		var deps []Ref
		switch x := item.(type) {
		case Node:
			deps = x.Dependencies()
		case *Variable:
			if x.IsComputed() {
				deps = []Ref{x.rule}
			}
			if x.IsEvolving() {
				deps = []Ref{c.Time()}
			}
		}
		for _, d := range deps {
			if pos[d] >= pos[item] {
				t.Errorf("%s ordered before its dependency %s", describe(item), describe(d))
			}
		}
	}
}

func TestClassifyRoundTripModel(t *testing.T) {
	s, vars := newTestVars(t, "x", "y", "z")
	x, y, z := vars[0], vars[1], vars[2]
	two := Const(2)
	prod := Mul(x, two)
	y.Compute(prod)
	z.Evolve(y)

	c, err := Classify(s.Time(), setVars(s))
	if err != nil {
		t.Fatal(err)
	}
	checkTopological(t, c)

	for _, r := range []Ref{x, y, two, prod} {
		if c.IsTimeDependent(r) {
			t.Errorf("%s is time-dependent", describe(r))
		}
	}
	if !c.IsTimeDependent(z) || !c.IsTimeDependent(s.Time()) {
		t.Error("z and time must be reachable from time")
	}
	if c.IsTimeDependent(z.Rule()) {
		t.Error("the rate of z depends only on y and must be time-independent")
	}
	if len(c.Order) != len(c.Independent)+len(c.Dependent) {
		t.Errorf("partition sizes %d + %d != %d", len(c.Independent), len(c.Dependent), len(c.Order))
	}
	if len(c.Order) != 7 {
		t.Errorf("graph has %d items, want 7 (time, x, y, z, 2, x*2, alias of y)", len(c.Order))
	}

	b, err := SplitGivenVars(c, s.Variables())
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Inputs) != 1 || b.Inputs[0].Variable != x {
		t.Errorf("inputs = %v, want [x]", b.Inputs)
	}
	if len(b.Constants) != 1 || b.Constants[0].Variable != y {
		t.Errorf("constants = %v, want [y]", b.Constants)
	}
	if len(b.State) != 1 || b.State[0].Variable != z {
		t.Errorf("state = %v, want [z]", b.State)
	}
	if len(b.TimeDependent) != 0 {
		t.Errorf("time-dependent = %v, want none", b.TimeDependent)
	}
}

func TestClassifyTimeDependentChain(t *testing.T) {
	s, vars := newTestVars(t, "k", "n", "decay", "halflife", "pulse")
	k, n, decay, halflife, pulse := vars[0], vars[1], vars[2], vars[3], vars[4]

	n.Evolve(Neg(decay))
	decay.Compute(Mul(k, n))
	halflife.Compute(Div(Log.MustCall(Lit(2)), k))
	pulse.Compute(Sin.MustCall(s.Time()))

	c, err := Classify(s.Time(), setVars(s))
	if err != nil {
		t.Fatal(err)
	}
	checkTopological(t, c)

	want := map[*Variable]bool{k: false, n: true, decay: true, halflife: false, pulse: true}
	for v, dep := range want {
		if c.IsTimeDependent(v) != dep {
			t.Errorf("%s time-dependent = %v, want %v", v.Name(), !dep, dep)
		}
	}

	b, err := SplitGivenVars(c, s.Variables())
	if err != nil {
		t.Fatal(err)
	}
	names := func(nvs []NamedVariable) string {
		var out []string
		for _, nv := range nvs {
			out = append(out, nv.Name)
		}
		return strings.Join(out, ",")
	}
	if got := names(b.Inputs); got != "k" {
		t.Errorf("inputs = %s", got)
	}
	if got := names(b.Constants); got != "halflife" {
		t.Errorf("constants = %s", got)
	}
	if got := names(b.State); got != "n" {
		t.Errorf("state = %s", got)
	}
	if got := names(b.TimeDependent); got != "decay,pulse" {
		t.Errorf("time-dependent = %s", got)
	}
}

func TestBucketsPartitionVariables(t *testing.T) {
	s, vars := newTestVars(t, "a", "b", "c", "d", "e", "f")
	vars[1].Compute(Add(vars[0], Lit(1)))
	vars[2].Evolve(Mul(vars[2], vars[1]))
	vars[3].Compute(Sub(vars[2], vars[0]))
	vars[4].Evolve(Lit(0))
	// f stays free

	c, err := Classify(s.Time(), setVars(s))
	if err != nil {
		t.Fatal(err)
	}
	b, err := SplitGivenVars(c, s.Variables())
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[*Variable]int)
	for _, bucket := range [][]NamedVariable{b.Inputs, b.Constants, b.State, b.TimeDependent} {
		for _, nv := range bucket {
			seen[nv.Variable]++
		}
	}
	for _, v := range vars {
		if seen[v] != 1 {
			t.Errorf("%s appears in %d buckets, want 1", v.Name(), seen[v])
		}
	}
	for _, nv := range append(b.Constants, b.TimeDependent...) {
		if nv.Variable.IsEvolving() {
			t.Errorf("evolving %s bucketed as computed", nv.Name)
		}
	}
	for _, nv := range b.Inputs {
		if c.IsTimeDependent(nv.Variable) {
			t.Errorf("free %s is time-dependent", nv.Name)
		}
	}
}

func TestClassifyCycle(t *testing.T) {
	s, vars := newTestVars(t, "a", "b", "c")
	a, b := vars[0], vars[1]
	a.Compute(Add(b, Lit(1)))
	b.Compute(Mul(a, Lit(2)))

	_, err := Classify(s.Time(), setVars(s))
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
	if !strings.Contains(err.Error(), "a, b") {
		t.Errorf("error %q does not name the cycle", err)
	}

	var buf strings.Builder
	if err := s.Render(&buf); !errors.Is(err, ErrCycle) {
		t.Errorf("Render err = %v, want ErrCycle", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Render wrote %d bytes for a cyclic model", buf.Len())
	}
}

func TestClassifySelfReference(t *testing.T) {
	s, vars := newTestVars(t, "x", "n")
	vars[0].Compute(Add(vars[0], Lit(1)))
	if _, err := Classify(s.Time(), setVars(s)); !errors.Is(err, ErrCycle) {
		t.Errorf("computed self reference: err = %v, want ErrCycle", err)
	}

	s2, vars2 := newTestVars(t, "n")
	vars2[0].Evolve(Mul(vars2[0], Lit(-0.5)))
	if _, err := Classify(s2.Time(), setVars(s2)); err != nil {
		t.Errorf("evolving self reference is a rate, not a cycle: %v", err)
	}
}

func TestClassifySharedSubexpression(t *testing.T) {
	s, vars := newTestVars(t, "x", "p", "q")
	x, p, q := vars[0], vars[1], vars[2]
	shared := Mul(x, x)
	p.Compute(Add(shared, Lit(1)))
	q.Compute(Sub(shared, s.Time()))

	c, err := Classify(s.Time(), setVars(s))
	if err != nil {
		t.Fatal(err)
	}
	checkTopological(t, c)
	count := 0
	for _, r := range c.Order {
		if r == Ref(shared) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("shared node appears %d times, want 1", count)
	}
	if c.IsTimeDependent(shared) || c.IsTimeDependent(p) || !c.IsTimeDependent(q) {
		t.Error("wrong split for shared sub-expression")
	}
}

func TestClassifyDeterministic(t *testing.T) {
	build := func() (*ODESet, *Classification) {
		s, vars := newTestVars(t, "a", "b", "c", "d")
		vars[1].Compute(Add(vars[0], Lit(1)))
		vars[2].Compute(Mul(vars[1], vars[0]))
		vars[3].Evolve(Sub(vars[2], vars[3]))
		c, err := Classify(s.Time(), setVars(s))
		if err != nil {
			t.Fatal(err)
		}
		return s, c
	}
	describeOrder := func(c *Classification) string {
		var parts []string
		for _, r := range c.Order {
			parts = append(parts, describe(r))
		}
		return strings.Join(parts, "; ")
	}
	_, c1 := build()
	_, c2 := build()
	if describeOrder(c1) != describeOrder(c2) {
		t.Errorf("order differs between runs:\n%s\n%s", describeOrder(c1), describeOrder(c2))
	}
}

func TestSplitFreeTimeDependentFault(t *testing.T) {
	s := NewODESet()
	c, err := Classify(s.Time(), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = SplitGivenVars(c, []NamedVariable{{Name: "time", Variable: s.Time()}})
	if !errors.Is(err, ErrInternalConsistency) {
		t.Errorf("err = %v, want ErrInternalConsistency", err)
	}
	_, err = SplitGivenVars(c, []NamedVariable{{Name: "ghost"}})
	if !errors.Is(err, ErrInternalConsistency) {
		t.Errorf("nil variable err = %v, want ErrInternalConsistency", err)
	}
}

func TestSymbolTable(t *testing.T) {
	_, vars := newTestVars(t, "x", "y")
	st := NewSymbolTable("")
	c1, c2 := Const(2), Const(2)

	nx := st.Name(vars[0])
	ny := st.Name(vars[1])
	n1 := st.Name(c1)
	n2 := st.Name(c2)
	if nx != "var0" || ny != "var1" || n1 != "var2" || n2 != "var3" {
		t.Errorf("names = %s %s %s %s", nx, ny, n1, n2)
	}
	if st.Name(vars[0]) != nx || st.Name(c1) != n1 {
		t.Error("names are not stable")
	}
	if got := st.Name(Lit(2)); got != "2.0" {
		t.Errorf("literal name = %q, want 2.0", got)
	}
	if st.Len() != 4 {
		t.Errorf("Len() = %d, want 4: literals must not be named", st.Len())
	}
	if !st.Named(c2) || st.Named(Add(c1, c2)) {
		t.Error("Named reports the wrong identities")
	}

	custom := NewSymbolTable("s")
	if got := custom.Name(vars[1]); got != "s0" {
		t.Errorf("custom prefix name = %q, want s0", got)
	}
}
