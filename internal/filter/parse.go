package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stratumdb/stratum/internal/resource"
)

// Parse reads the filter expression syntax into a predicate tree, coercing
// literals to the declared attribute types of res.
//
// Grammar, loosest binding first:
//
//	expr       = or
//	or         = and { "OR" and }
//	and        = unary { "AND" unary }
//	unary      = "NOT" unary | "(" expr ")" | comparison
//	comparison = attr ( "==" | "!=" | "<" | "<=" | ">" | ">=" ) literal
//	           | attr "in" "(" literal { "," literal } ")"
//	literal    = 'string' | number | "true" | "false" | "null"
//
// Keywords are case-insensitive. "attr == null" parses to IsNil and
// "attr != null" to its negation. Quoted literals compared against time
// and uuid attributes are parsed into those types, so a mismatched
// literal is a parse error here rather than a never-matching filter at
// run time.
func Parse(res *resource.Resource, input string) (Predicate, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{res: res, toks: toks}
	if p.peek().kind == tokenEOF {
		return nil, fmt.Errorf("parse filter: empty expression")
	}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokenEOF {
		return nil, fmt.Errorf("parse filter: unexpected %q at offset %d", t.text, t.pos)
	}
	return pred, nil
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenString
	tokenNumber
	tokenOp
	tokenLParen
	tokenRParen
	tokenComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			toks = append(toks, token{tokenLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokenRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokenComma, ",", i})
			i++

		case c == '\'':
			j := i + 1
			for j < len(input) && input[j] != '\'' {
				j++
			}
			if j >= len(input) {
				return nil, fmt.Errorf("parse filter: unterminated string at offset %d", i)
			}
			toks = append(toks, token{tokenString, input[i+1 : j], i})
			i = j + 1

		case c == '=':
			if i+1 < len(input) && input[i+1] == '=' {
				toks = append(toks, token{tokenOp, "==", i})
				i += 2
			} else {
				return nil, fmt.Errorf("parse filter: expected == at offset %d", i)
			}
		case c == '!':
			if i+1 < len(input) && input[i+1] == '=' {
				toks = append(toks, token{tokenOp, "!=", i})
				i += 2
			} else {
				return nil, fmt.Errorf("parse filter: expected != at offset %d", i)
			}
		case c == '<':
			if i+1 < len(input) && input[i+1] == '=' {
				toks = append(toks, token{tokenOp, "<=", i})
				i += 2
			} else {
				toks = append(toks, token{tokenOp, "<", i})
				i++
			}
		case c == '>':
			if i+1 < len(input) && input[i+1] == '=' {
				toks = append(toks, token{tokenOp, ">=", i})
				i += 2
			} else {
				toks = append(toks, token{tokenOp, ">", i})
				i++
			}

		case c == '-' || (c >= '0' && c <= '9'):
			j := i
			if input[j] == '-' {
				j++
			}
			start := j
			for j < len(input) && input[j] >= '0' && input[j] <= '9' {
				j++
			}
			if j == start {
				return nil, fmt.Errorf("parse filter: malformed number at offset %d", i)
			}
			if j < len(input) && input[j] == '.' {
				j++
				for j < len(input) && input[j] >= '0' && input[j] <= '9' {
					j++
				}
			}
			if j < len(input) && (input[j] == 'e' || input[j] == 'E') {
				j++
				if j < len(input) && (input[j] == '+' || input[j] == '-') {
					j++
				}
				for j < len(input) && input[j] >= '0' && input[j] <= '9' {
					j++
				}
			}
			toks = append(toks, token{tokenNumber, input[i:j], i})
			i = j

		case isIdentStart(c):
			j := i + 1
			for j < len(input) && isIdentPart(input[j]) {
				j++
			}
			toks = append(toks, token{tokenIdent, input[i:j], i})
			i = j

		default:
			return nil, fmt.Errorf("parse filter: unexpected character %q at offset %d", c, i)
		}
	}
	toks = append(toks, token{tokenEOF, "", len(input)})
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

type parser struct {
	res  *resource.Resource
	toks []token
	i    int
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	p.i++
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	return t.kind == tokenIdent && strings.EqualFold(t.text, word)
}

func (p *parser) parseOr() (Predicate, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	preds := []Predicate{first}
	for p.keyword("or") {
		p.next()
		child, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		preds = append(preds, child)
	}
	if len(preds) == 1 {
		return first, nil
	}
	return Or{Preds: preds}, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	preds := []Predicate{first}
	for p.keyword("and") {
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		preds = append(preds, child)
	}
	if len(preds) == 1 {
		return first, nil
	}
	return And{Preds: preds}, nil
}

func (p *parser) parseUnary() (Predicate, error) {
	if p.keyword("not") {
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Pred: child}, nil
	}
	if p.peek().kind == tokenLParen {
		p.next()
		child, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokenRParen {
			return nil, fmt.Errorf("parse filter: expected ) at offset %d", t.pos)
		}
		return child, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Predicate, error) {
	t := p.next()
	if t.kind != tokenIdent {
		return nil, fmt.Errorf("parse filter: expected attribute name at offset %d", t.pos)
	}
	attr, ok := p.res.Attr(t.text)
	if !ok {
		return nil, undeclared(p.res, t.text)
	}

	if p.keyword("in") {
		p.next()
		return p.parseIn(attr)
	}

	op := p.next()
	if op.kind != tokenOp {
		return nil, fmt.Errorf("parse filter: expected comparison operator at offset %d", op.pos)
	}

	lit := p.next()
	if lit.kind == tokenIdent && strings.EqualFold(lit.text, "null") {
		switch op.text {
		case "==":
			return IsNil{Attr: attr.Name}, nil
		case "!=":
			return Not{Pred: IsNil{Attr: attr.Name}}, nil
		default:
			return nil, &Error{Attr: attr.Name, Reason: "ordering against null never matches"}
		}
	}

	v, err := p.literalValue(attr, lit)
	if err != nil {
		return nil, err
	}
	switch op.text {
	case "==":
		return Eq{Attr: attr.Name, Value: v}, nil
	case "!=":
		return NotEq{Attr: attr.Name, Value: v}, nil
	case "<":
		return Lt{Attr: attr.Name, Value: v}, nil
	case "<=":
		return Lte{Attr: attr.Name, Value: v}, nil
	case ">":
		return Gt{Attr: attr.Name, Value: v}, nil
	case ">=":
		return Gte{Attr: attr.Name, Value: v}, nil
	default:
		return nil, fmt.Errorf("parse filter: unknown operator %q", op.text)
	}
}

func (p *parser) parseIn(attr resource.Attribute) (Predicate, error) {
	if t := p.next(); t.kind != tokenLParen {
		return nil, fmt.Errorf("parse filter: expected ( after in at offset %d", t.pos)
	}
	var values []resource.Value
	for {
		v, err := p.literalValue(attr, p.next())
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		t := p.next()
		if t.kind == tokenComma {
			continue
		}
		if t.kind == tokenRParen {
			break
		}
		return nil, fmt.Errorf("parse filter: expected , or ) at offset %d", t.pos)
	}
	return In{Attr: attr.Name, Values: values}, nil
}

// literalValue turns a literal token into a typed value under the
// attribute's declared type.
func (p *parser) literalValue(attr resource.Attribute, t token) (resource.Value, error) {
	var raw resource.Value
	switch t.kind {
	case tokenString:
		switch attr.Type {
		case resource.TypeTime:
			parsed, err := time.Parse(time.RFC3339Nano, t.text)
			if err != nil {
				return nil, &Error{Attr: attr.Name, Reason: fmt.Sprintf("bad time literal %q: %v", t.text, err)}
			}
			return resource.NewTime(parsed), nil
		case resource.TypeUUID:
			parsed, err := uuid.Parse(t.text)
			if err != nil {
				return nil, &Error{Attr: attr.Name, Reason: fmt.Sprintf("bad uuid literal %q: %v", t.text, err)}
			}
			return resource.NewUUID(parsed), nil
		default:
			raw = resource.String(t.text)
		}

	case tokenNumber:
		if strings.ContainsAny(t.text, ".eE") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, fmt.Errorf("parse filter: bad number %q at offset %d", t.text, t.pos)
			}
			raw = resource.Float(f)
		} else {
			n, err := strconv.ParseInt(t.text, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse filter: bad number %q at offset %d", t.text, t.pos)
			}
			raw = resource.Int(n)
		}

	case tokenIdent:
		switch {
		case strings.EqualFold(t.text, "true"):
			raw = resource.Bool(true)
		case strings.EqualFold(t.text, "false"):
			raw = resource.Bool(false)
		case strings.EqualFold(t.text, "null"):
			return resource.Null{}, nil
		default:
			return nil, fmt.Errorf("parse filter: expected literal at offset %d, got %q", t.pos, t.text)
		}

	default:
		return nil, fmt.Errorf("parse filter: expected literal at offset %d", t.pos)
	}

	if !attr.Type.Accepts(raw) {
		return nil, &Error{
			Attr:   attr.Name,
			Reason: fmt.Sprintf("%s literal is not comparable to declared type %s", resource.KindOf(raw), attr.Type),
		}
	}
	return raw, nil
}
