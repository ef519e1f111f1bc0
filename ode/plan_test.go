package ode

import "testing"

func TestPlanRoundTripSteps(t *testing.T) {
	s, x, y, z := roundTripModel(t)
	p, err := s.Plan()
	if err != nil {
		t.Fatal(err)
	}
	if p.NumInputs() != 1 {
		t.Errorf("NumInputs() = %d, want 1", p.NumInputs())
	}

	rate, err := p.Rate()
	if err != nil {
		t.Fatal(err)
	}
	if rate.Name != "odefun" || rate.Output != ArrayRate || !rate.Timed {
		t.Errorf("rate routine = %+v", rate)
	}

	wantLoads := []struct {
		item  Ref
		array string
		index int
	}{
		{s.Time(), ArrayTime, -1},
		{x, ArrayInput, 0},
		{y, ArrayConstants, 0},
		{z, ArrayState, 0},
	}
	if len(rate.Steps) != len(wantLoads)+1 {
		t.Fatalf("odefun has %d steps, want %d", len(rate.Steps), len(wantLoads)+1)
	}
	for i, w := range wantLoads {
		step := rate.Steps[i]
		if step.Kind != StepLoad || step.Item != w.item || step.Array != w.array || step.Index != w.index {
			t.Errorf("step %d = %+v, want load of %s from %s[%d]", i, step, describe(w.item), w.array, w.index)
		}
	}

	store := rate.Steps[len(rate.Steps)-1]
	if store.Kind != StepStore || !store.Inline || store.Item != Ref(z.Rule()) {
		t.Fatalf("last step = %+v, want inline store of z's rule", store)
	}
	uses := store.Uses()
	if len(uses) != 1 || uses[0] != Ref(y) {
		t.Errorf("store uses %v, want [y]", uses)
	}

	symbols := NewSymbolTable("")
	for _, step := range rate.Steps[:4] {
		symbols.Name(step.Item)
	}
	if got := RenderString(store.Item.(Node), symbols.Name); got != symbols.Name(y) {
		t.Errorf("rate[0] = %s, want y's symbol %s", got, symbols.Name(y))
	}
}

func TestPlanComputeSteps(t *testing.T) {
	s, x, y, _ := roundTripModel(t)
	p, err := s.Plan()
	if err != nil {
		t.Fatal(err)
	}
	compute, err := p.Compute()
	if err != nil {
		t.Fatal(err)
	}
	kinds := []StepKind{StepLoad, StepDefine, StepDefine, StepDefine, StepStore}
	if len(compute.Steps) != len(kinds) {
		t.Fatalf("compute has %d steps, want %d", len(compute.Steps), len(kinds))
	}
	for i, k := range kinds {
		if compute.Steps[i].Kind != k {
			t.Errorf("step %d kind = %d, want %d", i, compute.Steps[i].Kind, k)
		}
	}
	if compute.Steps[0].Item != Ref(x) {
		t.Error("compute does not start by loading x")
	}
	if compute.Steps[3].Item != Ref(y) {
		t.Error("y is not the last definition")
	}
	last := compute.Steps[4]
	if last.Item != Ref(y) || last.Inline || last.Array != ArrayConstants || last.Index != 0 {
		t.Errorf("store = %+v, want constants[0] = y", last)
	}
}

func TestNameTables(t *testing.T) {
	s := decayModel(t)
	p, err := s.Plan()
	if err != nil {
		t.Fatal(err)
	}
	tables := p.NameTables()
	want := []struct {
		name  string
		names string
	}{
		{"constants", "halflife gain"},
		{"inputs", "k n0"},
		{"state", "n"},
		{"timedep", "rate drive"},
	}
	if len(tables) != len(want) {
		t.Fatalf("got %d tables", len(tables))
	}
	for i, w := range want {
		got := ""
		for j, n := range tables[i].Names {
			if j > 0 {
				got += " "
			}
			got += n
		}
		if tables[i].Name != w.name || got != w.names {
			t.Errorf("table %d = %s [%s], want %s [%s]", i, tables[i].Name, got, w.name, w.names)
		}
	}
}
