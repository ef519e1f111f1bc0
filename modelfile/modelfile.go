// Package modelfile handles defode.toml model descriptions.
//
// A model file declares variables, optionally grouped into compartments,
// and gives each non-free variable a rule written in a small arithmetic
// language:
//
//	expr    := term (("+" | "-") term)*
//	term    := unary (("*" | "/") unary)*
//	unary   := "-" unary | primary
//	primary := number | ident | ident "(" args ")" | "(" expr ")"
//
// Identifiers resolve in the innermost compartment first, then in the
// enclosing ones, then as qualified names. The identifier time names the
// model's time variable.
package modelfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/defode/ode"
)

var log = commonlog.GetLogger("defode.modelfile")

// FileName is the model file FindAndLoad looks for.
const FileName = "defode.toml"

// Output languages.
const (
	LangC  = "c"
	LangGo = "go"
)

// Model represents a defode.toml model description.
type Model struct {
	Model        Meta          `toml:"model"`
	Output       Output        `toml:"output"`
	Functions    []Function    `toml:"function"`
	Variables    []Variable    `toml:"variable"`
	Compartments []Compartment `toml:"compartment"`

	// Path is the file the model was loaded from (set at load time).
	Path string `toml:"-"`
}

// Meta contains model metadata.
type Meta struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// Output configures code emission.
type Output struct {
	Lang         string   `toml:"lang"`
	Package      string   `toml:"package"`
	SymbolPrefix string   `toml:"symbol-prefix"`
	Order        []string `toml:"order"`
	Fingerprint  bool     `toml:"fingerprint"`
}

// Function declares a function callable from rules in addition to the
// built-in math functions.
type Function struct {
	Name     string `toml:"name"`
	Arity    int    `toml:"arity"`
	Variadic bool   `toml:"variadic"`
}

// Variable declares a variable. At most one of Compute and Evolve may be
// set; a variable with neither is free.
type Variable struct {
	Name    string `toml:"name"`
	Compute string `toml:"compute"`
	Evolve  string `toml:"evolve"`
}

// Compartment groups variables and nested compartments under a name.
type Compartment struct {
	Name         string        `toml:"name"`
	Variables    []Variable    `toml:"variable"`
	Compartments []Compartment `toml:"compartment"`
}

// Load parses the model file at path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a model description and applies defaults.
func Parse(data []byte) (*Model, error) {
	var m Model
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("ignoring unknown key %s", key)
	}

	// Defaults
	if m.Output.Lang == "" {
		m.Output.Lang = LangC
	}
	if m.Output.Lang != LangC && m.Output.Lang != LangGo {
		return nil, fmt.Errorf("output lang %q: want %q or %q", m.Output.Lang, LangC, LangGo)
	}
	if m.Output.Package == "" {
		m.Output.Package = packageName(m.Model.Name)
	}
	if m.Output.SymbolPrefix == "" {
		m.Output.SymbolPrefix = ode.DefaultSymbolPrefix
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a defode.toml file,
// then loads and returns the model. Returns nil if no model is found.
func FindAndLoad(startDir string) (*Model, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// packageName derives a Go package name from a model name.
func packageName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && b.Len() > 0:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "model"
	}
	return b.String()
}

// Header returns the comment placed at the top of the emitted code.
func (m *Model) Header() string {
	if m.Model.Name == "" {
		return ""
	}
	if m.Model.Description == "" {
		return "model " + m.Model.Name
	}
	return "model " + m.Model.Name + ": " + m.Model.Description
}

// RenderOptions returns the emission options configured under [output].
// It does not set a header.
func (m *Model) RenderOptions() []ode.RenderOption {
	opts := []ode.RenderOption{ode.WithSymbolPrefix(m.Output.SymbolPrefix)}
	if len(m.Output.Order) > 0 {
		opts = append(opts, ode.WithReorder(orderBy(m.Output.Order)))
	}
	return opts
}

// orderBy keeps the variables named in order, in that order.
func orderBy(order []string) func([]ode.NamedVariable) []ode.NamedVariable {
	return func(items []ode.NamedVariable) []ode.NamedVariable {
		byName := make(map[string]ode.NamedVariable, len(items))
		for _, nv := range items {
			byName[nv.Name] = nv
		}
		out := make([]ode.NamedVariable, 0, len(order))
		for _, name := range order {
			if nv, ok := byName[name]; ok {
				out = append(out, nv)
			}
		}
		return out
	}
}
