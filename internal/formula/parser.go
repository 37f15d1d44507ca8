package formula

import "fmt"

const maxDepth = 256

type parser struct {
	lex   lexer
	tok   token
	depth int
	vars  []string
	seen  map[string]struct{}
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// expr := term (('+' | '-') term)*
func (p *parser) expr() (node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, p.errorf(p.tok.pos, "expression nested too deeply")
	}

	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text[0]
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, l: left, r: right}
	}
	return left, nil
}

// term := unary (('*' | '/') unary)*
func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text[0]
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, l: left, r: right}
	}
	return left, nil
}

// unary := ('-' | '+') unary | primary
func (p *parser) unary() (node, error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "+") {
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxDepth {
			return nil, p.errorf(p.tok.pos, "expression nested too deeply")
		}
		op := p.tok.text[0]
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, x: x}, nil
	}
	return p.primary()
}

// primary := NUMBER | IDENT | IDENT '(' [expr (',' expr)*] ')' | '(' expr ')'
func (p *parser) primary() (node, error) {
	t := p.tok
	switch t.kind {
	case tokNumber:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return numberNode(t.num), nil

	case tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokLParen {
			return p.call(t)
		}
		if _, ok := p.seen[t.text]; !ok {
			p.seen[t.text] = struct{}{}
			p.vars = append(p.vars, t.text)
		}
		return varNode(t.text), nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf(p.tok.pos, "expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil

	case tokEOF:
		return nil, p.errorf(t.pos, "unexpected end of formula")
	default:
		return nil, p.errorf(t.pos, "unexpected %q", t.text)
	}
}

func (p *parser) call(name token) (node, error) {
	fn, ok := functions[name.text]
	if !ok {
		return nil, &SyntaxError{Pos: name.pos, Msg: "unknown function " + name.text, Err: ErrUnknownFunction}
	}
	// consume '('
	if err := p.advance(); err != nil {
		return nil, err
	}

	var args []node
	if p.tok.kind != tokRParen {
		for {
			a, err := p.expr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if p.tok.kind != tokRParen {
		return nil, p.errorf(p.tok.pos, "expected ')' after arguments to %s", name.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if len(args) < fn.minArgs || len(args) > fn.maxArgs {
		return nil, &SyntaxError{
			Pos: name.pos,
			Msg: fmt.Sprintf("%s takes %s, got %d", name.text, arityText(fn), len(args)),
			Err: ErrArity,
		}
	}
	return &callNode{name: name.text, fn: fn, args: args}, nil
}

func arityText(fn function) string {
	if fn.minArgs == fn.maxArgs {
		return fmt.Sprintf("%d argument(s)", fn.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", fn.minArgs, fn.maxArgs)
}
