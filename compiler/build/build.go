// Package build lowers resolved declarations into the compiled model: the
// physical database layout, the entity arena, access expression trees, and
// the generated query and mutation surface.
package build

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/syssam/exo"
	"github.com/syssam/exo/compiler/ast"
	"github.com/syssam/exo/compiler/typecheck"
	dbschema "github.com/syssam/exo/dialect/sql/schema"
	"github.com/syssam/exo/dialect/sql/sqltype"
	"github.com/syssam/exo/schema"
)

// Build lowers a checked environment into a System.
func Build(env *typecheck.Env) (*schema.System, error) {
	b := &builder{
		env:         env,
		sys:         &schema.System{Database: &dbschema.Database{}},
		entityIndex: map[string]int{},
	}
	return b.build()
}

type builder struct {
	env         *typecheck.Env
	sys         *schema.System
	entityIndex map[string]int
	decls       []*ast.TypeDecl
}

func (b *builder) build() (*schema.System, error) {
	// Deterministic arena order: sorted by type name.
	names := make([]string, 0, len(b.env.Types))
	for name := range b.env.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	// First pass: allocate tables and entities so relations can reference
	// peers by index regardless of declaration order.
	for i, name := range names {
		decl := b.env.Types[name]
		b.decls = append(b.decls, decl)
		b.entityIndex[name] = i
		b.sys.Entities = append(b.sys.Entities, &schema.Entity{
			Name:           name,
			Representation: schema.Managed,
			TableID:        dbschema.TableID(i),
		})
		b.sys.Database.Tables = append(b.sys.Database.Tables, &dbschema.Table{
			Name: tableName(decl),
		})
	}

	// Second pass: columns and fields.
	for i, decl := range b.decls {
		if err := b.buildEntity(i, decl); err != nil {
			return nil, err
		}
	}

	// Third pass: inverse relations everywhere first, then access
	// expressions, whose paths may traverse any entity's relations.
	for i := range b.decls {
		if err := b.buildInverses(i); err != nil {
			return nil, err
		}
	}
	for i, decl := range b.decls {
		if err := b.buildAccess(i, decl); err != nil {
			return nil, err
		}
	}

	if err := b.buildContexts(); err != nil {
		return nil, err
	}
	b.buildOperations()
	return b.sys, nil
}

// tableName derives the physical table name: the @table annotation when
// present, else the pluralized snake case of the type name.
func tableName(decl *ast.TypeDecl) string {
	if a := decl.Annotation("table"); a != nil {
		if s, ok := positionalString(a); ok {
			return s
		}
	}
	return inflect.Pluralize(inflect.Underscore(decl.Name))
}

func positionalString(a *ast.Annotation) (string, bool) {
	if len(a.Args) == 1 && a.Args[0].Name == "" {
		if s, ok := a.Args[0].Value.(*ast.StringLit); ok {
			return s.Value, true
		}
	}
	return "", false
}

func (b *builder) buildEntity(idx int, decl *ast.TypeDecl) error {
	entity := b.sys.Entities[idx]
	table := b.sys.Database.Tables[idx]

	for _, f := range decl.Fields {
		switch {
		case f.Type.Name == "Set":
			// Inverse side; resolved in the third pass.
			entity.Fields = append(entity.Fields, &schema.Field{
				Name: f.Name,
				Type: schema.FieldType{
					List:     true,
					Entity:   b.entityIndex[f.Type.Args[0].Name],
					Optional: f.Type.Optional,
				},
				Relation: schema.Relation{Kind: schema.RelationOneToMany},
			})
		case typecheck.Primitives[f.Type.Name]:
			col, err := b.scalarColumn(table.Name, f)
			if err != nil {
				return err
			}
			table.Columns = append(table.Columns, col)
			colID := dbschema.ColumnID{Table: dbschema.TableID(idx), Index: len(table.Columns) - 1}
			field := &schema.Field{
				Name: f.Name,
				Type: schema.FieldType{
					Primitive: f.Type.Name,
					Optional:  f.Type.Optional,
					Entity:    -1,
				},
				Relation: schema.Relation{
					Kind:     schema.RelationScalar,
					ColumnID: colID,
					IsPK:     col.IsPK,
				},
				Default: col.Default,
				Unique:  col.Unique,
			}
			if r := f.Annotation("range"); r != nil {
				min, minOK := numberArg(r, "min")
				max, maxOK := numberArg(r, "max")
				if !minOK || !maxOK {
					return exo.Validationf("%s: @range needs min and max", r.Span)
				}
				field.Range = &schema.Range{Min: min, Max: max}
			}
			entity.Fields = append(entity.Fields, field)
			if a := f.Annotation("index"); a != nil {
				table.Indexes = append(table.Indexes, &dbschema.Index{
					Name:    fmt.Sprintf("%s_%s_idx", table.Name, col.Name),
					Columns: []string{col.Name},
				})
			}
		default:
			// Reference field: many-to-one with a foreign key column.
			targetIdx, ok := b.entityIndex[f.Type.Name]
			if !ok {
				return exo.Validationf("%s: unknown type %q", f.Span, f.Type.Name)
			}
			targetTable := b.sys.Database.Tables[targetIdx]
			targetDecl := b.decls[targetIdx]
			pkField := pkFieldDecl(targetDecl)
			if pkField == nil {
				return exo.Validationf("%s: type %q has no @pk field", f.Span, f.Type.Name)
			}
			pkType, err := scalarType(pkField)
			if err != nil {
				return err
			}
			colName := columnName(f)
			if f.Annotation("column") == nil {
				colName += "_id"
			}
			col := &dbschema.Column{
				TableName: table.Name,
				Name:      colName,
				Type:      pkType,
				Nullable:  f.Type.Optional,
				References: &dbschema.Reference{
					Table:  targetTable.Name,
					Column: columnName(pkField),
				},
			}
			table.Columns = append(table.Columns, col)
			colID := dbschema.ColumnID{Table: dbschema.TableID(idx), Index: len(table.Columns) - 1}
			entity.Fields = append(entity.Fields, &schema.Field{
				Name: f.Name,
				Type: schema.FieldType{
					Entity:   targetIdx,
					Optional: f.Type.Optional,
				},
				Relation: schema.Relation{
					Kind:     schema.RelationManyToOne,
					ColumnID: colID,
				},
			})
		}
	}
	if table.PK() == nil {
		return exo.Validationf("%s: type %q has no @pk field", decl.Span, decl.Name)
	}
	return nil
}

func pkFieldDecl(decl *ast.TypeDecl) *ast.FieldDecl {
	for _, f := range decl.Fields {
		if f.Annotation("pk") != nil {
			return f
		}
	}
	return nil
}

func columnName(f *ast.FieldDecl) string {
	if a := f.Annotation("column"); a != nil {
		if s, ok := positionalString(a); ok {
			return s
		}
	}
	return inflect.Underscore(f.Name)
}

// scalarColumn lowers a primitive field declaration to a physical column.
func (b *builder) scalarColumn(table string, f *ast.FieldDecl) (*dbschema.Column, error) {
	typ, err := scalarType(f)
	if err != nil {
		return nil, err
	}
	col := &dbschema.Column{
		TableName: table,
		Name:      columnName(f),
		Type:      typ,
		Nullable:  f.Type.Optional,
		IsPK:      f.Annotation("pk") != nil,
		Unique:    f.Annotation("unique") != nil,
	}
	if f.Default != nil {
		def, err := defaultValue(f)
		if err != nil {
			return nil, err
		}
		col.Default = def
	}
	return col, nil
}

// scalarType maps a primitive field to its physical column type, honoring
// the sizing annotations.
func scalarType(f *ast.FieldDecl) (sqltype.Type, error) {
	switch f.Type.Name {
	case "Int":
		bits := sqltype.Bits32
		if a := f.Annotation("bits"); a != nil {
			n, ok := numberArg(a, "")
			if !ok {
				return nil, exo.Validationf("%s: @bits takes a numeric argument", a.Span)
			}
			switch int(n) {
			case 16:
				bits = sqltype.Bits16
			case 32:
				bits = sqltype.Bits32
			case 64:
				bits = sqltype.Bits64
			default:
				return nil, exo.Validationf("%s: @bits must be 16, 32, or 64", a.Span)
			}
		}
		return sqltype.Int{Bits: bits}, nil
	case "Float":
		bits := sqltype.Bits53
		if a := f.Annotation("singlePrecision"); a != nil {
			bits = sqltype.Bits24
		}
		return sqltype.Float{Bits: bits}, nil
	case "Decimal":
		var t sqltype.Numeric
		if a := f.Annotation("precision"); a != nil {
			if n, ok := numberArg(a, ""); ok {
				p := int(n)
				t.Precision = &p
			}
		}
		if a := f.Annotation("scale"); a != nil {
			if n, ok := numberArg(a, ""); ok {
				s := int(n)
				t.Scale = &s
			}
		}
		return t, nil
	case "String":
		var t sqltype.String
		a := f.Annotation("maxLength")
		if a == nil {
			a = f.Annotation("size")
		}
		if a != nil {
			if n, ok := numberArg(a, ""); ok {
				l := int(n)
				t.MaxLength = &l
			}
		}
		return t, nil
	case "Boolean":
		return sqltype.Boolean{}, nil
	case "LocalDate":
		return sqltype.Date{}, nil
	case "LocalTime":
		var t sqltype.Time
		if a := f.Annotation("precision"); a != nil {
			if n, ok := numberArg(a, ""); ok {
				p := int(n)
				t.Precision = &p
			}
		}
		return t, nil
	case "LocalDateTime":
		return sqltype.Timestamp{}, nil
	case "Instant":
		return sqltype.Timestamp{Timezone: true}, nil
	case "Uuid":
		return sqltype.Uuid{}, nil
	case "Json":
		return sqltype.Json{}, nil
	case "Blob":
		return sqltype.Blob{}, nil
	case "Vector":
		size := 1536
		if f.Type.Size != nil {
			size = *f.Type.Size
		} else if a := f.Annotation("size"); a != nil {
			if n, ok := numberArg(a, ""); ok {
				size = int(n)
			}
		}
		return sqltype.Vector{Size: size}, nil
	default:
		return nil, exo.Validationf("%s: unsupported primitive %q", f.Span, f.Type.Name)
	}
}

func numberArg(a *ast.Annotation, name string) (float64, bool) {
	var value ast.Expr
	if name == "" {
		if len(a.Args) == 1 && a.Args[0].Name == "" {
			value = a.Args[0].Value
		}
	} else {
		value = a.Arg(name)
	}
	n, ok := value.(*ast.NumberLit)
	if !ok {
		return 0, false
	}
	return n.Value, true
}

func defaultValue(f *ast.FieldDecl) (*dbschema.Default, error) {
	switch d := f.Default.(type) {
	case *ast.CallExpr:
		switch d.Name {
		case "autoIncrement":
			return &dbschema.Default{Kind: dbschema.DefaultAutoIncrement}, nil
		case "generateUuid", "uuidGenerateV4":
			return &dbschema.Default{Kind: dbschema.DefaultUuidGenerate}, nil
		case "now":
			return &dbschema.Default{Kind: dbschema.DefaultFunction, Expr: "now()"}, nil
		default:
			return nil, exo.Validationf("%s: unknown default function %q", d.Span, d.Name)
		}
	case *ast.StringLit:
		return &dbschema.Default{Kind: dbschema.DefaultValue, Expr: "'" + strings.ReplaceAll(d.Value, "'", "''") + "'"}, nil
	case *ast.NumberLit:
		if d.IsInt {
			return &dbschema.Default{Kind: dbschema.DefaultValue, Expr: strconv.FormatInt(int64(d.Value), 10)}, nil
		}
		return &dbschema.Default{Kind: dbschema.DefaultValue, Expr: strconv.FormatFloat(d.Value, 'f', -1, 64)}, nil
	case *ast.BooleanLit:
		return &dbschema.Default{Kind: dbschema.DefaultValue, Expr: strconv.FormatBool(d.Value)}, nil
	default:
		return nil, exo.Validationf("%s: unsupported default value", f.Span)
	}
}

// buildInverses resolves each OneToMany field to the foreign key column the
// child table holds for this entity.
func (b *builder) buildInverses(idx int) error {
	entity := b.sys.Entities[idx]
	for _, field := range entity.Fields {
		if field.Relation.Kind != schema.RelationOneToMany {
			continue
		}
		child := b.sys.Entities[field.Type.Entity]
		var inverse *schema.Field
		for _, cf := range child.Fields {
			if cf.Relation.Kind == schema.RelationManyToOne && cf.Type.Entity == idx {
				inverse = cf
				break
			}
		}
		if inverse == nil {
			return exo.Validationf("type %q declares Set<%s> but %q has no %s reference",
				entity.Name, child.Name, child.Name, entity.Name)
		}
		colID := inverse.Relation.ColumnID
		field.Relation.InverseColumnID = &colID
	}

	// ManyToOne fields learn the referenced primary key now that every
	// table's columns exist.
	for _, field := range entity.Fields {
		if field.Relation.Kind != schema.RelationManyToOne {
			continue
		}
		targetTable := dbschema.TableID(field.Type.Entity)
		pkID, ok := b.sys.Database.PKColumnID(targetTable)
		if !ok {
			return exo.Internalf("entity %q has no primary key column", b.sys.Entities[field.Type.Entity].Name)
		}
		field.Relation.ForeignPK = &pkID
	}
	return nil
}

func (b *builder) buildContexts() error {
	names := make([]string, 0, len(b.env.Contexts))
	for name := range b.env.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		decl := b.env.Contexts[name]
		ctx := &schema.Context{Name: name}
		for _, f := range decl.Fields {
			field := &schema.ContextField{Name: f.Name, Type: f.Type.Name}
			for _, a := range f.Annotations {
				key := f.Name
				if s, ok := positionalString(a); ok {
					key = s
				}
				switch a.Name {
				case "jwt":
					field.Source = schema.ContextSource{Kind: schema.SourceJWT, Key: key}
				case "header":
					field.Source = schema.ContextSource{Kind: schema.SourceHeader, Key: key}
				case "cookie":
					field.Source = schema.ContextSource{Kind: schema.SourceCookie, Key: key}
				case "clientIP":
					field.Source = schema.ContextSource{Kind: schema.SourceClientIP}
				case "env":
					field.Source = schema.ContextSource{Kind: schema.SourceEnv, Key: key}
				}
			}
			ctx.Fields = append(ctx.Fields, field)
		}
		b.sys.Contexts = append(b.sys.Contexts, ctx)
	}
	return nil
}

// buildOperations generates the query and mutation surface per entity.
func (b *builder) buildOperations() {
	for i, entity := range b.sys.Entities {
		singular := inflect.CamelizeDownFirst(entity.Name)
		plural := inflect.CamelizeDownFirst(inflect.Pluralize(entity.Name))
		b.sys.Queries = append(b.sys.Queries,
			&schema.Query{Name: singular, Kind: schema.PkQuery, Entity: i},
			&schema.Query{Name: plural, Kind: schema.CollectionQuery, Entity: i},
			&schema.Query{Name: plural + "Agg", Kind: schema.AggregateQuery, Entity: i},
		)
		for _, f := range entity.Fields {
			if f.Unique {
				b.sys.Queries = append(b.sys.Queries, &schema.Query{
					Name:         singular + "By" + inflect.Camelize(f.Name),
					Kind:         schema.UniqueQuery,
					Entity:       i,
					UniqueFields: []string{f.Name},
				})
			}
		}
		upperSingular := inflect.Camelize(entity.Name)
		upperPlural := inflect.Camelize(inflect.Pluralize(entity.Name))
		b.sys.Mutations = append(b.sys.Mutations,
			&schema.Mutation{Name: "create" + upperSingular, Kind: schema.CreateMutation, Entity: i},
			&schema.Mutation{Name: "create" + upperPlural, Kind: schema.CreateManyMutation, Entity: i},
			&schema.Mutation{Name: "update" + upperSingular, Kind: schema.UpdateMutation, Entity: i},
			&schema.Mutation{Name: "update" + upperPlural, Kind: schema.UpdateManyMutation, Entity: i},
			&schema.Mutation{Name: "delete" + upperSingular, Kind: schema.DeleteMutation, Entity: i},
			&schema.Mutation{Name: "delete" + upperPlural, Kind: schema.DeleteManyMutation, Entity: i},
		)
	}
}
