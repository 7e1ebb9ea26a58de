package pipeline

import (
	"fmt"
	"strings"
)

// EvalGuard evaluates an edge-guard expression against the run parameters.
// Guards let one pipeline definition carry modality-specific branches
// (`modality == 'meg'`) while each run still follows a single path.
//
// Supported grammar:
//
//	<expr>  ::= <or>
//	<or>    ::= <and> ( "||" <and> )*
//	<and>   ::= <atom> ( "&&" <atom> )*
//	<atom>  ::= "!" <atom> | "(" <expr> ")" | <key> "==" <value> | <key> "!=" <value> | <key>
//	<key>   ::= alphanumeric + _ + .
//	<value> ::= single-quoted | double-quoted | bare word
//
// A bare key is truthy if its parameter value is non-empty.
func EvalGuard(expr string, params map[string]string) (bool, error) {
	p := &guardParser{input: strings.TrimSpace(expr), params: params}
	result, err := p.parseOr()
	if err != nil {
		return false, fmt.Errorf("guard %q: %w", expr, err)
	}
	return result, nil
}

type guardParser struct {
	input  string
	pos    int
	params map[string]string
}

func (p *guardParser) peek() string {
	if p.pos >= len(p.input) {
		return ""
	}
	return p.input[p.pos:]
}

func (p *guardParser) skipWS() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *guardParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for {
		p.skipWS()
		if !strings.HasPrefix(p.peek(), "||") {
			break
		}
		p.pos += 2
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *guardParser) parseAnd() (bool, error) {
	left, err := p.parseAtom()
	if err != nil {
		return false, err
	}
	for {
		p.skipWS()
		if !strings.HasPrefix(p.peek(), "&&") {
			break
		}
		p.pos += 2
		right, err := p.parseAtom()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *guardParser) parseAtom() (bool, error) {
	p.skipWS()
	if p.pos >= len(p.input) {
		return false, fmt.Errorf("unexpected end of expression")
	}
	if p.input[p.pos] == '!' {
		p.pos++
		v, err := p.parseAtom()
		return !v, err
	}
	if p.input[p.pos] == '(' {
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		p.skipWS()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return false, fmt.Errorf("expected ')'")
		}
		p.pos++
		return v, nil
	}
	key := p.parseKey()
	if key == "" {
		return false, fmt.Errorf("expected identifier at pos %d in %q", p.pos, p.input)
	}
	p.skipWS()
	if strings.HasPrefix(p.peek(), "==") {
		p.pos += 2
		p.skipWS()
		return p.params[key] == p.parseValue(), nil
	}
	if strings.HasPrefix(p.peek(), "!=") {
		p.pos += 2
		p.skipWS()
		return p.params[key] != p.parseValue(), nil
	}
	// Bare key: truthy if the parameter is set and non-empty.
	return p.params[key] != "", nil
}

func (p *guardParser) parseKey() string {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '_' || c == '.' {
			p.pos++
		} else {
			break
		}
	}
	return p.input[start:p.pos]
}

func (p *guardParser) parseValue() string {
	if p.pos >= len(p.input) {
		return ""
	}
	quote := p.input[p.pos]
	if quote == '\'' || quote == '"' {
		p.pos++
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] != quote {
			p.pos++
		}
		val := p.input[start:p.pos]
		if p.pos < len(p.input) {
			p.pos++
		}
		return val
	}
	return p.parseKey()
}
