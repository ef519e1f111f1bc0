package ode

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Dependency graph over an index arena
// ---------------------------------------------------------------------------

// graph holds every discovered item under a stable index. Edges point from
// a dependency to its dependent.
type graph struct {
	index map[Ref]int
	items []Ref
	succ  [][]int
	indeg []int
	edges map[[2]int]bool
}

func newGraph() *graph {
	return &graph{
		index: make(map[Ref]int),
		edges: make(map[[2]int]bool),
	}
}

func (g *graph) add(r Ref) int {
	if i, ok := g.index[r]; ok {
		return i
	}
	i := len(g.items)
	g.index[r] = i
	g.items = append(g.items, r)
	g.succ = append(g.succ, nil)
	g.indeg = append(g.indeg, 0)
	return i
}

func (g *graph) addEdge(from, to Ref) {
	e := [2]int{g.add(from), g.add(to)}
	if g.edges[e] {
		return
	}
	g.edges[e] = true
	g.succ[e[0]] = append(g.succ[e[0]], e[1])
	g.indeg[e[1]]++
}

// topoSort orders the graph with Kahn's algorithm. Ready items are taken in
// index order so the result is deterministic.
func (g *graph) topoSort() ([]int, error) {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	var queue []int
	for i, d := range indeg {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, len(g.items))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, next := range g.succ[cur] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.items) {
		var names []string
		for i, d := range indeg {
			if v, ok := g.items[i].(*Variable); ok && d > 0 {
				names = append(names, v.name)
			}
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w through %s", ErrCycle, strings.Join(names, ", "))
	}
	return order, nil
}

// reachable returns the set of indices reachable from start, start included.
func (g *graph) reachable(start int) map[int]bool {
	seen := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.succ[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// Classification is the topologically ordered dependency graph of a model,
// split by reachability from time.
type Classification struct {
	// Order lists every item, dependencies before dependents.
	Order []Ref
	// Independent and Dependent partition Order, keeping its order.
	Independent []Ref
	Dependent   []Ref

	time      *Variable
	dependent map[Ref]bool
	position  map[Ref]int
}

// Time returns the time variable the classification was built from.
func (c *Classification) Time() *Variable { return c.time }

// IsTimeDependent reports whether r is reachable from time.
func (c *Classification) IsTimeDependent(r Ref) bool { return c.dependent[r] }

// Contains reports whether r is part of the classified graph.
func (c *Classification) Contains(r Ref) bool {
	_, ok := c.position[r]
	return ok
}

// Classify builds the dependency graph of vars and everything their rules
// reach, orders it topologically and partitions it into time-independent
// and time-dependent items. It returns ErrCycle if the graph has a cycle.
func Classify(time *Variable, vars []*Variable) (*Classification, error) {
	g := newGraph()
	g.add(time)

	pending := make([]Ref, 0, len(vars))
	for _, v := range vars {
		pending = append(pending, v)
	}
	seen := make(map[Ref]bool)
	enqueue := func(r Ref) {
		if !seen[r] {
			pending = append(pending, r)
		}
	}

	for len(pending) > 0 {
		cur := pending[0]
		pending = pending[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		g.add(cur)

		switch item := cur.(type) {
		case Node:
			for _, dep := range item.Dependencies() {
				g.addEdge(dep, item)
				enqueue(dep)
			}
		case *Variable:
			switch item.state {
			case Computed:
				g.addEdge(item.rule, item)
				enqueue(item.rule)
			case Evolving:
				// The rule is the rate, not the value: the value comes
				// from the integrator at every step.
				g.addEdge(time, item)
				enqueue(item.rule)
			}
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	reach := g.reachable(g.index[time])

	c := &Classification{
		time:      time,
		dependent: make(map[Ref]bool, len(reach)),
		position:  make(map[Ref]int, len(order)),
	}
	for pos, i := range order {
		item := g.items[i]
		c.Order = append(c.Order, item)
		c.position[item] = pos
		if reach[i] {
			c.dependent[item] = true
			c.Dependent = append(c.Dependent, item)
		} else {
			c.Independent = append(c.Independent, item)
		}
	}
	log.Debugf("classified %d items: %d time-independent, %d time-dependent",
		len(c.Order), len(c.Independent), len(c.Dependent))
	return c, nil
}

// Buckets is the four-way split of a named list of variables.
type Buckets struct {
	Inputs        []NamedVariable
	Constants     []NamedVariable
	State         []NamedVariable
	TimeDependent []NamedVariable
}

// SplitGivenVars buckets named variables, in order, into inputs (free),
// derived constants (computed, time-independent), evolving state, and
// time-dependent outputs (computed, time-dependent).
func SplitGivenVars(c *Classification, named []NamedVariable) (*Buckets, error) {
	b := &Buckets{}
	for _, nv := range named {
		v := nv.Variable
		if v == nil {
			return nil, fmt.Errorf("%q has no variable: %w", nv.Name, ErrInternalConsistency)
		}
		switch {
		case v.IsEvolving():
			b.State = append(b.State, nv)
		case v.IsComputed():
			if c.IsTimeDependent(v) {
				b.TimeDependent = append(b.TimeDependent, nv)
			} else {
				b.Constants = append(b.Constants, nv)
			}
		default:
			if c.IsTimeDependent(v) {
				return nil, fmt.Errorf("free variable %q is time-dependent: %w", nv.Name, ErrInternalConsistency)
			}
			b.Inputs = append(b.Inputs, nv)
		}
	}
	return b, nil
}
