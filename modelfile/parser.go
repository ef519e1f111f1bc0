package modelfile

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/chazu/defode/ode"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent parser for rule expressions
// ---------------------------------------------------------------------------

// Env is the naming environment a rule is parsed in.
type Env struct {
	// Set owns the variables and the time variable.
	Set *ode.ODESet
	// Scope is the innermost compartment. Nil means the top level.
	Scope *ode.Compartment
	// Functions are the callable functions by name. Nil means ode.Builtins.
	Functions map[string]*ode.Function
}

// resolve finds name in the innermost compartment, then in each enclosing
// one, then as a qualified name.
func (e Env) resolve(name string) (ode.Term, bool) {
	if name == TimeKeyword {
		return e.Set.Time(), true
	}
	for c := e.Scope; c != nil; c = c.Parent() {
		if v, ok := c.Variable(name); ok {
			return v, true
		}
	}
	if v, ok := e.Set.Lookup(name); ok {
		return v, true
	}
	return nil, false
}

func (e Env) function(name string) (*ode.Function, bool) {
	fns := e.Functions
	if fns == nil {
		fns = ode.Builtins()
	}
	f, ok := fns[name]
	return f, ok
}

// SyntaxError is an error at a position inside a rule.
type SyntaxError struct {
	Pos Position
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d, column %d: %v", e.Pos.Line, e.Pos.Column, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Parser parses a rule into an expression over the variables of an Env.
type Parser struct {
	lexer     *Lexer
	env       Env
	curToken  Token
	peekToken Token
	errors    []error
}

// NewParser creates a new parser for the given input.
func NewParser(input string, env Env) *Parser {
	p := &Parser{lexer: NewLexer(input), env: env}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// ParseRule parses src in env and returns the rule it denotes.
func ParseRule(src string, env Env) (ode.Term, error) {
	p := NewParser(src, env)
	t := p.ParseRule()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken.Type)
	return false
}

// errorf records an error at the current token. A %w verb keeps the
// wrapped error visible to errors.Is.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, &SyntaxError{Pos: p.curToken.Pos, Err: fmt.Errorf(format, args...)})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []error {
	return p.errors
}

// ---------------------------------------------------------------------------
// Grammar
// ---------------------------------------------------------------------------

// ParseRule parses a complete rule. It returns nil if any error was
// recorded.
func (p *Parser) ParseRule() ode.Term {
	if p.curTokenIs(TokenEOF) {
		p.errorf("empty rule")
		return nil
	}
	t := p.parseExpr()
	if !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after expression", p.curToken)
	}
	if len(p.errors) > 0 {
		return nil
	}
	return t
}

// expr := term (("+" | "-") term)*
func (p *Parser) parseExpr() ode.Term {
	left := p.parseTerm()
	for p.curTokenIs(TokenPlus) || p.curTokenIs(TokenMinus) {
		op := ode.KindSum
		if p.curTokenIs(TokenMinus) {
			op = ode.KindDifference
		}
		p.nextToken()
		left = binary(op, left, p.parseTerm())
	}
	return left
}

// term := unary (("*" | "/") unary)*
func (p *Parser) parseTerm() ode.Term {
	left := p.parseUnary()
	for p.curTokenIs(TokenStar) || p.curTokenIs(TokenSlash) {
		op := ode.KindProduct
		if p.curTokenIs(TokenSlash) {
			op = ode.KindQuotient
		}
		p.nextToken()
		left = binary(op, left, p.parseUnary())
	}
	return left
}

// unary := "-" unary | primary
//
// A minus directly before a number folds into a negative literal.
func (p *Parser) parseUnary() ode.Term {
	if !p.curTokenIs(TokenMinus) {
		return p.parsePrimary()
	}
	p.nextToken()
	if p.curTokenIs(TokenNumber) {
		if lit, ok := p.parseNumber().(ode.Literal); ok {
			return -lit
		}
		return nil
	}
	operand := p.parseUnary()
	if operand == nil {
		return nil
	}
	return ode.Neg(operand)
}

// primary := number | ident | ident "(" args ")" | "(" expr ")"
func (p *Parser) parsePrimary() ode.Term {
	switch p.curToken.Type {
	case TokenNumber:
		return p.parseNumber()
	case TokenIdentifier:
		if p.peekTokenIs(TokenLParen) {
			return p.parseCall()
		}
		return p.parseIdentifier()
	case TokenLParen:
		p.nextToken()
		t := p.parseExpr()
		if !p.expect(TokenRParen) {
			return nil
		}
		return t
	case TokenError:
		p.errorf("%s", p.curToken.Literal)
		p.nextToken()
		return nil
	case TokenEOF:
		p.errorf("unexpected end of rule")
		return nil
	default:
		p.errorf("unexpected %s", p.curToken)
		p.nextToken()
		return nil
	}
}

func (p *Parser) parseNumber() ode.Term {
	v, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.errorf("invalid number: %s", p.curToken.Literal)
		p.nextToken()
		return nil
	}
	p.nextToken()
	return ode.Lit(v)
}

func (p *Parser) parseIdentifier() ode.Term {
	name := p.curToken.Literal
	t, ok := p.env.resolve(name)
	if !ok {
		p.errorf("%q: %w", name, ode.ErrUnknownName)
	}
	p.nextToken()
	return t
}

func (p *Parser) parseCall() ode.Term {
	tok := p.curToken
	fn, known := p.env.function(tok.Literal)
	if !known {
		p.errorf("function %q: %w", tok.Literal, ode.ErrUnknownName)
	}
	p.nextToken() // name
	p.nextToken() // (

	var args []ode.Term
	ok := true
	if !p.curTokenIs(TokenRParen) {
		for {
			arg := p.parseExpr()
			if arg == nil {
				ok = false
			}
			args = append(args, arg)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}
	if !p.expect(TokenRParen) || !known || !ok {
		return nil
	}

	call, err := fn.Call(args...)
	if err != nil {
		p.errors = append(p.errors, &SyntaxError{Pos: tok.Pos, Err: err})
		return nil
	}
	return call
}

// binary builds a node unless an operand failed to parse.
func binary(op ode.Kind, a, b ode.Term) ode.Term {
	if a == nil || b == nil {
		return nil
	}
	return ode.NewBinary(op, a, b)
}
