package expr

import (
	"fmt"
	"strings"
)

// ParseError 表示条件文本的语法错误，Pos 为出错位置的字节偏移。
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("语法错误（位置 %d）: %s", e.Pos, e.Msg)
}

// Parse 把条件文本解析为 AST。解析是纯函数：相同输入得到等价的树，
// 不触碰任何外部状态，也不校验变量名是否存在。
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &ParseError{Pos: 0, Msg: "条件不能为空"}
	}
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("多余的输入 %q", tok.text)}
	}
	return node, nil
}

// parser 自顶向下递归下降，优先级从低到高：
// || < && < 比较 < 加减 < 乘除 < 一元负号 < 括号/字面量/变量。
type parser struct {
	toks []token
	idx  int
}

func (p *parser) peek() token { return p.toks[p.idx] }

func (p *parser) next() token {
	tok := p.toks[p.idx]
	if tok.kind != tokEOF {
		p.idx++
	}
	return tok
}

func (p *parser) acceptOp(ops ...string) (token, bool) {
	tok := p.peek()
	if tok.kind != tokOp {
		return token{}, false
	}
	for _, op := range ops {
		if tok.text == op {
			return p.next(), true
		}
	}
	return token{}, false
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.acceptOp("||")
		if !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "||", Left: left, Right: right, At: tok.pos}
	}
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.acceptOp("&&")
		if !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "&&", Left: left, Right: right, At: tok.pos}
	}
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.acceptOp("<", ">", "<=", ">=", "==")
		if !ok {
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: tok.text, Left: left, Right: right, At: tok.pos}
	}
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: tok.text, Left: left, Right: right, At: tok.pos}
	}
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.acceptOp("*", "/")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: tok.text, Left: left, Right: right, At: tok.pos}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if tok, ok := p.acceptOp("-"); ok {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "-", X: x, At: tok.pos}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &NumberLit{Value: tok.num, At: tok.pos}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return &BoolLit{Value: true, At: tok.pos}, nil
		case "false":
			return &BoolLit{Value: false, At: tok.pos}, nil
		}
		return &VarRef{Name: tok.text, At: tok.pos}, nil
	case tokLParen:
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.kind != tokRParen {
			return nil, &ParseError{Pos: closing.pos, Msg: "缺少右括号"}
		}
		return node, nil
	case tokEOF:
		return nil, &ParseError{Pos: tok.pos, Msg: "表达式不完整"}
	default:
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("未预期的 %q", tok.text)}
	}
}
