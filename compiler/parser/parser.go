package parser

import (
	"strconv"
	"strings"

	"github.com/syssam/exo"
	"github.com/syssam/exo/compiler/ast"
)

// Parse parses one source file.
func Parse(file, src string) (*ast.File, error) {
	p, err := newParser(file, src)
	if err != nil {
		return nil, err
	}
	out := &ast.File{Name: file}
	for p.tok.kind != tokEOF {
		decl, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		out.Decls = append(out.Decls, decl)
	}
	return out, nil
}

type parser struct {
	lex *lexer
	tok token
}

func newParser(file, src string) (*parser, error) {
	p := &parser{lex: newLexer(file, src)}
	return p, p.next()
}

func (p *parser) next() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) expectPunct(text string) (ast.Span, error) {
	if p.tok.kind != tokPunct || p.tok.text != text {
		return p.tok.span, exo.Validationf("%s: expected %q, found %q", p.tok.span, text, p.tok.text)
	}
	span := p.tok.span
	return span, p.next()
}

func (p *parser) expectIdent() (string, ast.Span, error) {
	if p.tok.kind != tokIdent {
		return "", p.tok.span, exo.Validationf("%s: expected an identifier, found %q", p.tok.span, p.tok.text)
	}
	name, span := p.tok.text, p.tok.span
	return name, span, p.next()
}

func (p *parser) isPunct(text string) bool {
	return p.tok.kind == tokPunct && p.tok.text == text
}

func (p *parser) isIdent(text string) bool {
	return p.tok.kind == tokIdent && p.tok.text == text
}

func (p *parser) parseDecl() (ast.Decl, error) {
	annotations, err := p.parseAnnotations()
	if err != nil {
		return nil, err
	}
	switch {
	case p.isIdent("context"):
		if len(annotations) > 0 {
			return nil, exo.Validationf("%s: context declarations take no annotations", p.tok.span)
		}
		return p.parseContext()
	case p.isIdent("type"):
		return p.parseType(annotations)
	case p.isIdent("module"):
		return p.parseModule(annotations)
	default:
		return nil, exo.Validationf("%s: expected a declaration, found %q", p.tok.span, p.tok.text)
	}
}

func (p *parser) parseContext() (*ast.ContextDecl, error) {
	span := p.tok.span
	if err := p.next(); err != nil {
		return nil, err
	}
	name, _, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	fields, err := p.parseFieldBlock()
	if err != nil {
		return nil, err
	}
	return &ast.ContextDecl{Name: name, Fields: fields, Span: span}, nil
}

func (p *parser) parseType(annotations []*ast.Annotation) (*ast.TypeDecl, error) {
	span := p.tok.span
	if err := p.next(); err != nil {
		return nil, err
	}
	name, _, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	fields, err := p.parseFieldBlock()
	if err != nil {
		return nil, err
	}
	return &ast.TypeDecl{Name: name, Fields: fields, Annotations: annotations, Span: span}, nil
}

func (p *parser) parseModule(annotations []*ast.Annotation) (*ast.ModuleDecl, error) {
	span := p.tok.span
	if err := p.next(); err != nil {
		return nil, err
	}
	name, _, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var decls []ast.Decl
	for !p.isPunct("}") {
		decl, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return &ast.ModuleDecl{Name: name, Decls: decls, Annotations: annotations, Span: span}, nil
}

func (p *parser) parseFieldBlock() ([]*ast.FieldDecl, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var fields []*ast.FieldDecl
	for !p.isPunct("}") {
		field, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return fields, nil
}

func (p *parser) parseField() (*ast.FieldDecl, error) {
	annotations, err := p.parseAnnotations()
	if err != nil {
		return nil, err
	}
	name, span, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	typ, err := p.parseTypeExpr()
	if err != nil {
		return nil, err
	}
	field := &ast.FieldDecl{Name: name, Type: typ, Annotations: annotations, Span: span}
	if p.isPunct("=") {
		if err := p.next(); err != nil {
			return nil, err
		}
		field.Default, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if p.isPunct(";") {
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return field, nil
}

func (p *parser) parseTypeExpr() (*ast.TypeExpr, error) {
	name, span, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	typ := &ast.TypeExpr{Name: name, Span: span}
	if p.isPunct("<") {
		if err := p.next(); err != nil {
			return nil, err
		}
		for {
			if p.tok.kind == tokNumber {
				n, err := strconv.Atoi(p.tok.text)
				if err != nil {
					return nil, exo.Validationf("%s: malformed type argument %q", p.tok.span, p.tok.text)
				}
				typ.Size = &n
				if err := p.next(); err != nil {
					return nil, err
				}
			} else {
				arg, err := p.parseTypeExpr()
				if err != nil {
					return nil, err
				}
				typ.Args = append(typ.Args, arg)
			}
			if p.isPunct(",") {
				if err := p.next(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if _, err := p.expectPunct(">"); err != nil {
			return nil, err
		}
	}
	if p.isPunct("?") {
		typ.Optional = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return typ, nil
}

func (p *parser) parseAnnotations() ([]*ast.Annotation, error) {
	var annotations []*ast.Annotation
	for p.isPunct("@") {
		span := p.tok.span
		if err := p.next(); err != nil {
			return nil, err
		}
		name, _, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		annotation := &ast.Annotation{Name: name, Span: span}
		if p.isPunct("(") {
			if err := p.next(); err != nil {
				return nil, err
			}
			for !p.isPunct(")") {
				arg, err := p.parseAnnotationArg()
				if err != nil {
					return nil, err
				}
				annotation.Args = append(annotation.Args, arg)
				if p.isPunct(",") {
					if err := p.next(); err != nil {
						return nil, err
					}
				}
			}
			if _, err := p.expectPunct(")"); err != nil {
				return nil, err
			}
		}
		annotations = append(annotations, annotation)
	}
	return annotations, nil
}

func (p *parser) parseAnnotationArg() (*ast.AnnotationArg, error) {
	// A named argument is ident ':' expr; anything else is positional.
	if p.tok.kind == tokIdent {
		save := *p.lex
		saveTok := p.tok
		name := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.isPunct(":") {
			if err := p.next(); err != nil {
				return nil, err
			}
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &ast.AnnotationArg{Name: name, Value: value}, nil
		}
		*p.lex = save
		p.tok = saveTok
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.AnnotationArg{Value: value}, nil
}

// parseExpr parses the expression language with || at the lowest
// precedence, then &&, then comparisons, then unary.
func (p *parser) parseExpr() (ast.Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isPunct("||") {
		span := p.tok.span
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.LogicalExpr{Op: ast.OpOr, Left: left, Right: right, Span: span}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.isPunct("&&") {
		span := p.tok.span
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &ast.LogicalExpr{Op: ast.OpAnd, Left: left, Right: right, Span: span}
	}
	return left, nil
}

var relationalOps = map[string]ast.RelationalOp{
	"==": ast.OpEq,
	"!=": ast.OpNeq,
	"<":  ast.OpLt,
	"<=": ast.OpLte,
	">":  ast.OpGt,
	">=": ast.OpGte,
}

func (p *parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokPunct {
		if op, ok := relationalOps[p.tok.text]; ok {
			span := p.tok.span
			if err := p.next(); err != nil {
				return nil, err
			}
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &ast.RelationalExpr{Op: op, Left: left, Right: right, Span: span}, nil
		}
	}
	if p.isIdent("in") {
		span := p.tok.span
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.RelationalExpr{Op: ast.OpIn, Left: left, Right: right, Span: span}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Expr, error) {
	if p.isPunct("!") {
		span := p.tok.span
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.LogicalExpr{Op: ast.OpNot, Left: inner, Span: span}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	span := p.tok.span
	switch {
	case p.tok.kind == tokString:
		text := p.tok.text
		return &ast.StringLit{Value: text, Span: span}, p.next()
	case p.tok.kind == tokNumber:
		text := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, exo.Validationf("%s: malformed number %q", span, text)
		}
		return &ast.NumberLit{Value: v, IsInt: !strings.Contains(text, "."), Span: span}, nil
	case p.isIdent("true") || p.isIdent("false"):
		value := p.tok.text == "true"
		return &ast.BooleanLit{Value: value, Span: span}, p.next()
	case p.isIdent("null"):
		return &ast.NullLit{Span: span}, p.next()
	case p.isPunct("("):
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil
	case p.tok.kind == tokIdent:
		return p.parseSelectionOrCall()
	default:
		return nil, exo.Validationf("%s: expected an expression, found %q", span, p.tok.text)
	}
}

// parseSelectionOrCall parses identifier chains: a, a.b.c, f(x), and
// higher-order calls a.b.some(e => expr).
func (p *parser) parseSelectionOrCall() (ast.Expr, error) {
	name, span, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	// A bare call such as autoIncrement() or now().
	if p.isPunct("(") {
		call, isHof, err := p.parseCallTail(name, span)
		if err != nil {
			return nil, err
		}
		if isHof {
			return nil, exo.Validationf("%s: %s(...) requires a selection prefix", span, name)
		}
		if !p.isPunct(".") {
			return call, nil
		}
		return nil, exo.Validationf("%s: cannot select into a call result", span)
	}

	selection := &ast.FieldSelection{Element: &ast.Identifier{Name: name, Span: span}, Span: span}
	for p.isPunct(".") {
		if err := p.next(); err != nil {
			return nil, err
		}
		elemName, elemSpan, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			call, isHof, err := p.parseCallTail(elemName, elemSpan)
			if err != nil {
				return nil, err
			}
			if !isHof {
				return nil, exo.Validationf("%s: unknown method %q", elemSpan, elemName)
			}
			selection = &ast.FieldSelection{Prefix: selection, Element: call.(*ast.FieldSelection).Element, Span: elemSpan}
			continue
		}
		selection = &ast.FieldSelection{
			Prefix:  selection,
			Element: &ast.Identifier{Name: elemName, Span: elemSpan},
			Span:    elemSpan,
		}
	}
	return selection, nil
}

// parseCallTail parses the parenthesized tail of a call. Higher-order calls
// (some/all/none) return a FieldSelection wrapping a HofCall element; other
// names return a CallExpr.
func (p *parser) parseCallTail(name string, span ast.Span) (ast.Expr, bool, error) {
	if _, err := p.expectPunct("("); err != nil {
		return nil, false, err
	}
	if name == "some" || name == "all" || name == "none" {
		param, _, err := p.expectIdent()
		if err != nil {
			return nil, false, err
		}
		if _, err := p.expectPunct("=>"); err != nil {
			return nil, false, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, false, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, false, err
		}
		hof := &ast.HofCall{Name: name, ParamName: param, Expr: body, Span: span}
		return &ast.FieldSelection{Element: hof, Span: span}, true, nil
	}
	call := &ast.CallExpr{Name: name, Span: span}
	for !p.isPunct(")") {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, false, err
		}
		call.Args = append(call.Args, arg)
		if p.isPunct(",") {
			if err := p.next(); err != nil {
				return nil, false, err
			}
		}
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, false, err
	}
	return call, false, nil
}
