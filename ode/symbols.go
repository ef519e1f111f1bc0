package ode

import "strconv"

// DefaultSymbolPrefix is the prefix of generated symbol names.
const DefaultSymbolPrefix = "var"

// SymbolTable names the items of one emission pass. Names are memoized by
// identity, so two distinct constant nodes wrapping the same value get two
// symbols. Literals are never named.
type SymbolTable struct {
	prefix string
	names  map[Ref]string
	next   int
}

// NewSymbolTable returns an empty table issuing prefix0, prefix1, ...
func NewSymbolTable(prefix string) *SymbolTable {
	if prefix == "" {
		prefix = DefaultSymbolPrefix
	}
	return &SymbolTable{prefix: prefix, names: make(map[Ref]string)}
}

// Name returns the display name of t, minting a new symbol on first use.
func (s *SymbolTable) Name(t Term) string {
	switch x := t.(type) {
	case Literal:
		return x.String()
	case Ref:
		if name, ok := s.names[x]; ok {
			return name
		}
		name := s.prefix + strconv.Itoa(s.next)
		s.next++
		s.names[x] = name
		return name
	}
	panic("ode: cannot name a nil term")
}

// Named reports whether r already has a symbol.
func (s *SymbolTable) Named(r Ref) bool {
	_, ok := s.names[r]
	return ok
}

// Len returns the number of symbols issued.
func (s *SymbolTable) Len() int { return s.next }
