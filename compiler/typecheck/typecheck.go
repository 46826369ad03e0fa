// Package typecheck resolves and checks parsed declarations: field types
// against the declared type universe, annotation shapes, and the expression
// language of access rules, including higher-order set calls.
package typecheck

import (
	"fmt"

	"github.com/syssam/exo"
	"github.com/syssam/exo/compiler/ast"
)

// Primitives is the scalar type universe of the declaration language.
var Primitives = map[string]bool{
	"Int":           true,
	"Float":         true,
	"Decimal":       true,
	"String":        true,
	"Boolean":       true,
	"LocalDate":     true,
	"LocalDateTime": true,
	"LocalTime":     true,
	"Instant":       true,
	"Uuid":          true,
	"Json":          true,
	"Blob":          true,
	"Vector":        true,
}

// Type is a checked expression or field type.
type Type interface {
	String() string
}

// Primitive is a scalar type.
type Primitive struct {
	Name string
}

// String returns the type name.
func (t Primitive) String() string { return t.Name }

// Composite is a declared entity type.
type Composite struct {
	Decl *ast.TypeDecl
}

// String returns the type name.
func (t Composite) String() string { return t.Decl.Name }

// ContextType is a declared context type.
type ContextType struct {
	Decl *ast.ContextDecl
}

// String returns the type name.
func (t ContextType) String() string { return t.Decl.Name }

// Set is a collection of element values.
type Set struct {
	Elem Type
}

// String returns the type name.
func (t Set) String() string { return "Set<" + t.Elem.String() + ">" }

// Optional wraps a nullable type.
type Optional struct {
	Inner Type
}

// String returns the type name.
func (t Optional) String() string { return t.Inner.String() + "?" }

// deferred marks a node whose type is not known yet; another pass may
// resolve it.
type deferred struct{}

func (deferred) String() string { return "<deferred>" }

// Env is the resolved type universe.
type Env struct {
	Types    map[string]*ast.TypeDecl
	Contexts map[string]*ast.ContextDecl

	// exprTypes carries the per-node results of the typing passes.
	exprTypes map[ast.Expr]Type
}

// TypeOf returns the checked type of an expression node.
func (e *Env) TypeOf(expr ast.Expr) Type {
	return e.exprTypes[expr]
}

// Scope is a lexical scope for expression typing. Model bodies bind self;
// higher-order calls bind their parameter.
type Scope struct {
	parent *Scope
	name   string
	typ    Type
}

// Bind returns a child scope with one more binding.
func (s *Scope) Bind(name string, typ Type) *Scope {
	return &Scope{parent: s, name: name, typ: typ}
}

// Lookup resolves a name through the scope chain.
func (s *Scope) Lookup(name string) (Type, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.typ, true
		}
	}
	return nil, false
}

// Check resolves all declarations of the given files and typechecks every
// access expression. It returns the environment on success and the combined
// diagnostics otherwise.
func Check(files []*ast.File) (*Env, error) {
	env := &Env{
		Types:     map[string]*ast.TypeDecl{},
		Contexts:  map[string]*ast.ContextDecl{},
		exprTypes: map[ast.Expr]Type{},
	}
	var diags []error

	var collect func(decls []ast.Decl)
	collect = func(decls []ast.Decl) {
		for _, decl := range decls {
			switch d := decl.(type) {
			case *ast.ContextDecl:
				if _, dup := env.Contexts[d.Name]; dup {
					diags = append(diags, exo.Validationf("%s: duplicate context %q", d.Span, d.Name))
					continue
				}
				env.Contexts[d.Name] = d
			case *ast.TypeDecl:
				if _, dup := env.Types[d.Name]; dup {
					diags = append(diags, exo.Validationf("%s: duplicate type %q", d.Span, d.Name))
					continue
				}
				env.Types[d.Name] = d
			case *ast.ModuleDecl:
				collect(d.Decls)
			}
		}
	}
	for _, f := range files {
		collect(f.Decls)
	}

	for _, d := range env.Contexts {
		diags = append(diags, checkContextFields(d)...)
	}
	for _, d := range env.Types {
		diags = append(diags, env.checkTypeDecl(d)...)
	}

	if err := joinDiags(diags); err != nil {
		return nil, err
	}
	return env, nil
}

func checkContextFields(d *ast.ContextDecl) []error {
	var diags []error
	for _, f := range d.Fields {
		if !Primitives[f.Type.Name] {
			diags = append(diags, exo.Validationf("%s: context field %q must be a primitive, found %q", f.Span, f.Name, f.Type.Name))
		}
		hasSource := false
		for _, a := range f.Annotations {
			switch a.Name {
			case "jwt", "header", "cookie", "clientIP", "env":
				hasSource = true
			}
		}
		if !hasSource {
			diags = append(diags, exo.Validationf("%s: context field %q needs a source annotation such as @jwt", f.Span, f.Name))
		}
	}
	return diags
}

func (env *Env) checkTypeDecl(d *ast.TypeDecl) []error {
	var diags []error
	for _, f := range d.Fields {
		if err := env.checkFieldType(f.Type); err != nil {
			diags = append(diags, err)
		}
	}
	selfScope := (&Scope{}).Bind("self", Composite{Decl: d})
	if a := d.Annotation("access"); a != nil {
		for _, arg := range a.Args {
			diags = append(diags, env.CheckExpr(arg.Value, selfScope)...)
		}
	}
	for _, f := range d.Fields {
		if a := f.Annotation("access"); a != nil {
			for _, arg := range a.Args {
				diags = append(diags, env.CheckExpr(arg.Value, selfScope)...)
			}
		}
	}
	return diags
}

func (env *Env) checkFieldType(t *ast.TypeExpr) error {
	switch {
	case t.Name == "Set":
		if len(t.Args) != 1 {
			return exo.Validationf("%s: Set takes exactly one type argument", t.Span)
		}
		return env.checkFieldType(t.Args[0])
	case t.Name == "Vector":
		if t.Size == nil {
			return exo.Validationf("%s: Vector takes a dimension argument", t.Span)
		}
		return nil
	case Primitives[t.Name]:
		return nil
	default:
		if _, ok := env.Types[t.Name]; !ok {
			return exo.Validationf("%s: unknown type %q", t.Span, t.Name)
		}
		return nil
	}
}

// CheckExpr runs typing passes over one expression until no node's type
// changes, then reports the diagnostics of the final pass.
func (env *Env) CheckExpr(expr ast.Expr, scope *Scope) []error {
	var diags []error
	for pass := 0; pass < maxPasses; pass++ {
		var changed bool
		changed, diags = env.pass(expr, scope)
		if !changed {
			break
		}
	}
	return diags
}

const maxPasses = 8

// pass types one expression tree. It returns whether any node's recorded
// type changed, plus the diagnostics of this pass.
func (env *Env) pass(expr ast.Expr, scope *Scope) (bool, []error) {
	c := &checker{env: env}
	c.typeExpr(expr, scope)
	return c.changed, c.diags
}

type checker struct {
	env     *Env
	changed bool
	diags   []error
}

func (c *checker) record(expr ast.Expr, typ Type) Type {
	prev, ok := c.env.exprTypes[expr]
	if !ok || prev.String() != typ.String() {
		c.env.exprTypes[expr] = typ
		c.changed = true
	}
	return typ
}

func (c *checker) errorf(span ast.Span, format string, a ...any) Type {
	c.diags = append(c.diags, exo.Validationf("%s: "+format, append([]any{span}, a...)...))
	return deferred{}
}

func (c *checker) typeExpr(expr ast.Expr, scope *Scope) Type {
	switch e := expr.(type) {
	case *ast.StringLit:
		return c.record(e, Primitive{Name: "String"})
	case *ast.NumberLit:
		if e.IsInt {
			return c.record(e, Primitive{Name: "Int"})
		}
		return c.record(e, Primitive{Name: "Float"})
	case *ast.BooleanLit:
		return c.record(e, Primitive{Name: "Boolean"})
	case *ast.NullLit:
		return c.record(e, deferred{})
	case *ast.LogicalExpr:
		c.typeExpr(e.Left, scope)
		if e.Right != nil {
			c.typeExpr(e.Right, scope)
		}
		return c.record(e, Primitive{Name: "Boolean"})
	case *ast.RelationalExpr:
		c.typeExpr(e.Left, scope)
		c.typeExpr(e.Right, scope)
		return c.record(e, Primitive{Name: "Boolean"})
	case *ast.CallExpr:
		return c.record(e, deferred{})
	case *ast.FieldSelection:
		return c.record(e, c.typeSelection(e, scope))
	default:
		return deferred{}
	}
}

// typeSelection implements the field selection typing rules.
func (c *checker) typeSelection(sel *ast.FieldSelection, scope *Scope) Type {
	if sel.Prefix == nil {
		switch elem := sel.Element.(type) {
		case *ast.Identifier:
			// A root identifier resolves against the local scope first,
			// then against the context types of the global environment.
			if t, ok := scope.Lookup(elem.Name); ok {
				return t
			}
			if d, ok := c.env.Contexts[elem.Name]; ok {
				return ContextType{Decl: d}
			}
			return c.errorf(elem.Span, "unknown name %q", elem.Name)
		case *ast.HofCall:
			return c.errorf(elem.Span, "%s(...) is only valid on a set selection", elem.Name)
		default:
			return deferred{}
		}
	}

	prefixType := c.typeSelection(sel.Prefix, scope)
	c.record(sel.Prefix, prefixType)
	return c.typeSuffix(prefixType, sel.Element, scope)
}

func (c *checker) typeSuffix(prefix Type, elem ast.FieldSelectionElement, scope *Scope) Type {
	switch p := prefix.(type) {
	case Optional:
		// Selecting through an optional recurses into its inner type.
		return c.typeSuffix(p.Inner, elem, scope)
	case Composite:
		ident, ok := elem.(*ast.Identifier)
		if !ok {
			hof := elem.(*ast.HofCall)
			return c.errorf(hof.Span, "%s(...) is only valid on a set", hof.Name)
		}
		for _, f := range p.Decl.Fields {
			if f.Name == ident.Name {
				return c.fieldType(f.Type)
			}
		}
		return c.errorf(ident.Span, "type %q has no field %q", p.Decl.Name, ident.Name)
	case ContextType:
		ident, ok := elem.(*ast.Identifier)
		if !ok {
			hof := elem.(*ast.HofCall)
			return c.errorf(hof.Span, "%s(...) is only valid on a set", hof.Name)
		}
		for _, f := range p.Decl.Fields {
			if f.Name == ident.Name {
				return c.fieldType(f.Type)
			}
		}
		return c.errorf(ident.Span, "context %q has no field %q", p.Decl.Name, ident.Name)
	case Set:
		hof, ok := elem.(*ast.HofCall)
		if !ok {
			ident := elem.(*ast.Identifier)
			return c.errorf(ident.Span, "cannot select field %q of a set; use some/all/none", ident.Name)
		}
		inner := scope.Bind(hof.ParamName, p.Elem)
		c.typeExpr(hof.Expr, inner)
		return Primitive{Name: "Boolean"}
	case deferred:
		return deferred{}
	default:
		return c.errorf(elem.Pos(), "cannot select into %s", prefix)
	}
}

func (c *checker) fieldType(t *ast.TypeExpr) Type {
	var base Type
	switch {
	case t.Name == "Set":
		base = Set{Elem: c.fieldType(t.Args[0])}
	case Primitives[t.Name]:
		base = Primitive{Name: t.Name}
	default:
		if d, ok := c.env.Types[t.Name]; ok {
			base = Composite{Decl: d}
		} else {
			base = deferred{}
		}
	}
	if t.Optional {
		return Optional{Inner: base}
	}
	return base
}

func joinDiags(diags []error) error {
	var real []error
	for _, d := range diags {
		if d != nil {
			real = append(real, d)
		}
	}
	if len(real) == 0 {
		return nil
	}
	if len(real) == 1 {
		return real[0]
	}
	msg := real[0].Error()
	for _, d := range real[1:] {
		msg += "\n" + d.Error()
	}
	return fmt.Errorf("%s", msg)
}
