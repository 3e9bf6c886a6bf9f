package configtext

import "fmt"

// Parse lexes and parses src as an LVM2 textual config file, returning
// the root Struct node made up of the top-level items.
func Parse(src string) (Node, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return Node{}, err
	}
	fields, err := p.parseItems()
	if err != nil {
		return Node{}, err
	}
	if p.tok.kind != tokEOF {
		return Node{}, fmt.Errorf("line %d: unexpected trailing input", p.tok.line)
	}
	return Node{Kind: KindStruct, Struct: fields}, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

// parseItems parses item* until it meets '}' or EOF.
func (p *parser) parseItems() ([]Field, error) {
	var fields []Field
	for p.tok.kind != tokEOF && p.tok.kind != tokRBrace {
		f, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (p *parser) parseItem() (Field, error) {
	if p.tok.kind != tokIdent {
		return Field{}, fmt.Errorf("line %d: expected identifier, got %v", p.tok.line, p.tok.kind)
	}
	key := p.tok.text
	if err := p.advance(); err != nil {
		return Field{}, err
	}

	switch p.tok.kind {
	case tokEq:
		if err := p.advance(); err != nil {
			return Field{}, err
		}
		v, err := p.parseValue()
		if err != nil {
			return Field{}, atPath("", key, err)
		}
		return Field{Key: key, Value: v}, nil

	case tokLBrace:
		if err := p.advance(); err != nil {
			return Field{}, err
		}
		fields, err := p.parseItems()
		if err != nil {
			return Field{}, atPath("", key, err)
		}
		if p.tok.kind != tokRBrace {
			return Field{}, atPath("", key, fmt.Errorf("line %d: expected '}'", p.tok.line))
		}
		if err := p.advance(); err != nil {
			return Field{}, err
		}
		return Field{Key: key, Value: Node{Kind: KindStruct, Struct: fields}}, nil

	default:
		return Field{}, fmt.Errorf("line %d: expected '=' or '{' after %q", p.tok.line, key)
	}
}

func (p *parser) parseValue() (Node, error) {
	switch p.tok.kind {
	case tokInt:
		v := p.tok.ival
		if err := p.advance(); err != nil {
			return Node{}, err
		}
		return Node{Kind: KindInt, Int: v}, nil

	case tokString:
		v := p.tok.text
		if err := p.advance(); err != nil {
			return Node{}, err
		}
		return Node{Kind: KindString, Str: v}, nil

	case tokLBracket:
		return p.parseArray()

	default:
		return Node{}, fmt.Errorf("line %d: expected a value", p.tok.line)
	}
}

func (p *parser) parseArray() (Node, error) {
	if err := p.advance(); err != nil { // consume '['
		return Node{}, err
	}
	var elems []Node
	for p.tok.kind != tokRBracket {
		v, err := p.parseValue()
		if err != nil {
			return Node{}, err
		}
		elems = append(elems, v)
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return Node{}, err
			}
			continue
		}
		break
	}
	if p.tok.kind != tokRBracket {
		return Node{}, fmt.Errorf("line %d: expected ']'", p.tok.line)
	}
	if err := p.advance(); err != nil { // consume ']'
		return Node{}, err
	}
	return Node{Kind: KindArray, Array: elems}, nil
}
