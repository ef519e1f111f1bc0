// Package snapshot serializes models to canonical CBOR.
//
// A snapshot lists the variables of a model by qualified name and every
// expression node reachable from their rules. Nodes are stored once and
// referenced by index, so sub-expressions shared between rules are still
// shared after decoding. Operands always refer to lower node indices.
//
// Canonical encoding makes the bytes a function of the model alone, which
// is what Fingerprint hashes. Compartments are not recorded: a decoded
// model keeps the qualified names at the top level.
package snapshot

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/chazu/defode/ode"
)

var log = commonlog.GetLogger("defode.snapshot")

// Version is the snapshot format version written by Encode.
const Version = 1

// ErrMalformed is returned when snapshot data does not describe a model.
var ErrMalformed = errors.New("malformed snapshot")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Operand tags.
const (
	tagLiteral uint8 = iota + 1
	tagNode
	tagVariable
	tagTime
)

type operand struct {
	Tag   uint8   `cbor:"1,keyasint"`
	Index int     `cbor:"2,keyasint,omitempty"`
	Value float64 `cbor:"3,keyasint"` // kept when zero so -0 survives
}

type nodeRecord struct {
	Kind uint8     `cbor:"1,keyasint"`
	Name string    `cbor:"2,keyasint,omitempty"`
	Args []operand `cbor:"3,keyasint"`
}

type variableRecord struct {
	Name  string `cbor:"1,keyasint"`
	State uint8  `cbor:"2,keyasint,omitempty"`
	Rule  int    `cbor:"3,keyasint,omitempty"`
}

type document struct {
	Version   int              `cbor:"1,keyasint"`
	Variables []variableRecord `cbor:"2,keyasint"`
	Nodes     []nodeRecord     `cbor:"3,keyasint"`
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Encode serializes set.
func Encode(set *ode.ODESet) ([]byte, error) {
	doc, err := newDocument(set)
	if err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal: %w", err)
	}
	log.Debugf("encoded %d variables and %d nodes in %d bytes", len(doc.Variables), len(doc.Nodes), len(data))
	return data, nil
}

// Fingerprint returns the SHA-256 hash of the snapshot of set. Models that
// encode identically share a fingerprint.
func Fingerprint(set *ode.ODESet) ([32]byte, error) {
	data, err := Encode(set)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

type encoder struct {
	time  *ode.Variable
	vars  map[*ode.Variable]int
	nodes map[ode.Node]int
	doc   *document
}

func newDocument(set *ode.ODESet) (*document, error) {
	named := set.Variables()
	e := &encoder{
		time:  set.Time(),
		vars:  make(map[*ode.Variable]int, len(named)),
		nodes: make(map[ode.Node]int),
		doc:   &document{Version: Version, Variables: make([]variableRecord, len(named))},
	}
	for i, nv := range named {
		e.vars[nv.Variable] = i
		e.doc.Variables[i] = variableRecord{Name: nv.Name, State: uint8(nv.Variable.State())}
	}
	for i, nv := range named {
		if nv.Variable.IsFree() {
			continue
		}
		idx, err := e.node(nv.Variable.Rule())
		if err != nil {
			return nil, fmt.Errorf("snapshot: %s: %w", nv.Name, err)
		}
		e.doc.Variables[i].Rule = idx
	}
	return e.doc, nil
}

// node records n after its operands and returns its index.
func (e *encoder) node(n ode.Node) (int, error) {
	if idx, ok := e.nodes[n]; ok {
		return idx, nil
	}
	ops := n.Operands()
	rec := nodeRecord{Kind: uint8(n.Kind()), Args: make([]operand, len(ops))}
	if c, ok := n.(*ode.Call); ok {
		rec.Name = c.Name()
	}
	for i, t := range ops {
		op, err := e.operand(t)
		if err != nil {
			return 0, err
		}
		rec.Args[i] = op
	}
	idx := len(e.doc.Nodes)
	e.doc.Nodes = append(e.doc.Nodes, rec)
	e.nodes[n] = idx
	return idx, nil
}

func (e *encoder) operand(t ode.Term) (operand, error) {
	switch x := t.(type) {
	case ode.Literal:
		return operand{Tag: tagLiteral, Value: float64(x)}, nil
	case *ode.Variable:
		if x == e.time {
			return operand{Tag: tagTime}, nil
		}
		idx, ok := e.vars[x]
		if !ok {
			return operand{}, fmt.Errorf("variable %s belongs to another model: %w", x.Name(), ode.ErrUnknownName)
		}
		return operand{Tag: tagVariable, Index: idx}, nil
	case ode.Node:
		idx, err := e.node(x)
		if err != nil {
			return operand{}, err
		}
		return operand{Tag: tagNode, Index: idx}, nil
	}
	return operand{}, fmt.Errorf("unsupported operand %T", t)
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode rebuilds the model stored in data.
func Decode(data []byte) (*ode.ODESet, error) {
	var doc document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("snapshot: version %d, want %d: %w", doc.Version, Version, ErrMalformed)
	}

	set := ode.NewODESet()
	vars := make([]*ode.Variable, len(doc.Variables))
	for i, rec := range doc.Variables {
		v, err := set.NewVariable(rec.Name)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		vars[i] = v
	}

	d := &decoder{set: set, vars: vars, nodes: make([]ode.Node, 0, len(doc.Nodes))}
	for i, rec := range doc.Nodes {
		n, err := d.node(rec)
		if err != nil {
			return nil, fmt.Errorf("snapshot: node %d: %w", i, err)
		}
		d.nodes = append(d.nodes, n)
	}

	for i, rec := range doc.Variables {
		if err := d.assign(vars[i], rec); err != nil {
			return nil, fmt.Errorf("snapshot: variable %s: %w", rec.Name, err)
		}
	}
	log.Debugf("decoded %d variables and %d nodes", len(vars), len(d.nodes))
	return set, nil
}

type decoder struct {
	set   *ode.ODESet
	vars  []*ode.Variable
	nodes []ode.Node
}

func (d *decoder) node(rec nodeRecord) (ode.Node, error) {
	args := make([]ode.Term, len(rec.Args))
	for i, op := range rec.Args {
		t, err := d.operand(op)
		if err != nil {
			return nil, err
		}
		args[i] = t
	}

	switch kind := ode.Kind(rec.Kind); kind {
	case ode.KindConstant:
		if len(args) != 1 {
			return nil, fmt.Errorf("constant with %d operands: %w", len(args), ErrMalformed)
		}
		return ode.Wrap(args[0]), nil
	case ode.KindSum, ode.KindDifference, ode.KindProduct, ode.KindQuotient:
		if len(args) != 2 {
			return nil, fmt.Errorf("%s with %d operands: %w", kind, len(args), ErrMalformed)
		}
		return ode.NewBinary(kind, args[0], args[1]), nil
	case ode.KindCall:
		if rec.Name == "" {
			return nil, fmt.Errorf("call without a function name: %w", ErrMalformed)
		}
		call, err := ode.NewFunction(rec.Name, ode.Variadic).Call(args...)
		if err != nil {
			return nil, err
		}
		return call, nil
	default:
		return nil, fmt.Errorf("%s: %w", kind, ErrMalformed)
	}
}

// operand resolves op. Node operands must refer to nodes already decoded.
func (d *decoder) operand(op operand) (ode.Term, error) {
	switch op.Tag {
	case tagLiteral:
		return ode.Lit(op.Value), nil
	case tagTime:
		return d.set.Time(), nil
	case tagVariable:
		if op.Index < 0 || op.Index >= len(d.vars) {
			return nil, fmt.Errorf("variable index %d out of range: %w", op.Index, ErrMalformed)
		}
		return d.vars[op.Index], nil
	case tagNode:
		if op.Index < 0 || op.Index >= len(d.nodes) {
			return nil, fmt.Errorf("node index %d out of range: %w", op.Index, ErrMalformed)
		}
		return d.nodes[op.Index], nil
	}
	return nil, fmt.Errorf("operand tag %d: %w", op.Tag, ErrMalformed)
}

func (d *decoder) assign(v *ode.Variable, rec variableRecord) error {
	state := ode.State(rec.State)
	if state == ode.Free {
		return nil
	}
	if rec.Rule < 0 || rec.Rule >= len(d.nodes) {
		return fmt.Errorf("rule index %d out of range: %w", rec.Rule, ErrMalformed)
	}
	rule := d.nodes[rec.Rule]
	switch state {
	case ode.Computed:
		return v.Compute(rule)
	case ode.Evolving:
		return v.Evolve(rule)
	}
	return fmt.Errorf("%s: %w", state, ErrMalformed)
}
