// Package ast defines the syntax tree of the exo declaration language:
// context declarations, entity types, modules, annotations, and the
// expression language used by access rules and defaults.
package ast

import "fmt"

// Span locates a node in its source file.
type Span struct {
	File   string
	Line   int
	Column int
}

// String renders the span for diagnostics.
func (s Span) String() string {
	if s.File == "" {
		return fmt.Sprintf("%d:%d", s.Line, s.Column)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// File is one parsed source file.
type File struct {
	Name  string
	Decls []Decl
}

// Decl is a top-level declaration.
type Decl interface {
	decl()
	Pos() Span
}

// ContextDecl declares a request-context type.
type ContextDecl struct {
	Name   string
	Fields []*FieldDecl
	Span   Span
}

func (*ContextDecl) decl() {}

// Pos returns the declaration position.
func (d *ContextDecl) Pos() Span { return d.Span }

// TypeDecl declares an entity type.
type TypeDecl struct {
	Name        string
	Fields      []*FieldDecl
	Annotations []*Annotation
	Span        Span
}

func (*TypeDecl) decl() {}

// Pos returns the declaration position.
func (d *TypeDecl) Pos() Span { return d.Span }

// Annotation returns the named annotation, if present.
func (d *TypeDecl) Annotation(name string) *Annotation {
	for _, a := range d.Annotations {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// ModuleDecl groups declarations under a named module.
type ModuleDecl struct {
	Name        string
	Decls       []Decl
	Annotations []*Annotation
	Span        Span
}

func (*ModuleDecl) decl() {}

// Pos returns the declaration position.
func (d *ModuleDecl) Pos() Span { return d.Span }

// FieldDecl is one field of a type or context declaration.
type FieldDecl struct {
	Name        string
	Type        *TypeExpr
	Annotations []*Annotation
	// Default is the expression after '=', e.g. autoIncrement() or a
	// literal.
	Default Expr
	Span    Span
}

// Annotation returns the named annotation, if present.
func (d *FieldDecl) Annotation(name string) *Annotation {
	for _, a := range d.Annotations {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// TypeExpr is a field type: a named type, possibly with type arguments
// (Set<Concert>, Vector<1536>) and an optionality marker.
type TypeExpr struct {
	Name     string
	Args     []*TypeExpr
	Size     *int // numeric argument, e.g. Vector<1536>
	Optional bool
	Span     Span
}

// Annotation is @name(args...). Arguments may be positional or named
// (e.g. @access(query: ..., mutation: ...)).
type Annotation struct {
	Name string
	Args []*AnnotationArg
	Span Span
}

// Arg returns the value of the named argument, or the single positional
// argument for name "".
func (a *Annotation) Arg(name string) Expr {
	for _, arg := range a.Args {
		if arg.Name == name {
			return arg.Value
		}
	}
	return nil
}

// AnnotationArg is one annotation argument.
type AnnotationArg struct {
	Name  string
	Value Expr
}

// Expr is an expression node.
type Expr interface {
	expr()
	Pos() Span
}

// StringLit is a string literal.
type StringLit struct {
	Value string
	Span  Span
}

func (*StringLit) expr() {}

// Pos returns the node position.
func (e *StringLit) Pos() Span { return e.Span }

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
	IsInt bool
	Span  Span
}

func (*NumberLit) expr() {}

// Pos returns the node position.
func (e *NumberLit) Pos() Span { return e.Span }

// BooleanLit is true or false.
type BooleanLit struct {
	Value bool
	Span  Span
}

func (*BooleanLit) expr() {}

// Pos returns the node position.
func (e *BooleanLit) Pos() Span { return e.Span }

// NullLit is the null literal.
type NullLit struct {
	Span Span
}

func (*NullLit) expr() {}

// Pos returns the node position.
func (e *NullLit) Pos() Span { return e.Span }

// LogicalOp enumerates logical operators.
type LogicalOp int

// Logical operators.
const (
	OpAnd LogicalOp = iota
	OpOr
	OpNot
)

// LogicalExpr combines expressions with && and ||; OpNot uses Left only.
type LogicalExpr struct {
	Op    LogicalOp
	Left  Expr
	Right Expr
	Span  Span
}

func (*LogicalExpr) expr() {}

// Pos returns the node position.
func (e *LogicalExpr) Pos() Span { return e.Span }

// RelationalOp enumerates comparison operators.
type RelationalOp int

// Relational operators.
const (
	OpEq RelationalOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
)

// RelationalExpr compares two expressions.
type RelationalExpr struct {
	Op    RelationalOp
	Left  Expr
	Right Expr
	Span  Span
}

func (*RelationalExpr) expr() {}

// Pos returns the node position.
func (e *RelationalExpr) Pos() Span { return e.Span }

// CallExpr is a bare function call, used for defaults: autoIncrement(),
// generateUuid(), now().
type CallExpr struct {
	Name string
	Args []Expr
	Span Span
}

func (*CallExpr) expr() {}

// Pos returns the node position.
func (e *CallExpr) Pos() Span { return e.Span }

// FieldSelection is a selection chain: either a single element or a
// selection on a prefix (a.b.c parses as Select(Select(Single(a), b), c)).
type FieldSelection struct {
	// Prefix is nil for a single element.
	Prefix  *FieldSelection
	Element FieldSelectionElement
	Span    Span
}

func (*FieldSelection) expr() {}

// Pos returns the node position.
func (e *FieldSelection) Pos() Span { return e.Span }

// IsSingle reports whether the selection has no prefix.
func (e *FieldSelection) IsSingle() bool { return e.Prefix == nil }

// FieldSelectionElement is one element of a selection chain.
type FieldSelectionElement interface {
	fieldSelectionElement()
	Pos() Span
}

// Identifier names a field or a root symbol.
type Identifier struct {
	Name string
	Span Span
}

func (*Identifier) fieldSelectionElement() {}

// Pos returns the node position.
func (e *Identifier) Pos() Span { return e.Span }

// HofCall is a higher-order call on a set: some/all/none with a bound
// parameter, e.g. artists.some(a => a.name == "x").
type HofCall struct {
	Name      string // some, all, none
	ParamName string
	Expr      Expr
	Span      Span
}

func (*HofCall) fieldSelectionElement() {}

// Pos returns the node position.
func (e *HofCall) Pos() Span { return e.Span }
