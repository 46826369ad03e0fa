package schema

import (
	"context"
	"database/sql"

	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/postgres"

	"github.com/syssam/exo"
	"github.com/syssam/exo/dialect/sql/sqltype"
)

// InspectDatabase introspects a live Postgres database and converts the
// result into a Database spec, so a model can be diffed directly against
// what is deployed.
func InspectDatabase(ctx context.Context, db *sql.DB, schemas ...string) (*Database, error) {
	drv, err := postgres.Open(db)
	if err != nil {
		return nil, &exo.DatabaseError{Message: "cannot open inspection driver", Err: err}
	}
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	spec := &Database{}
	for _, name := range schemas {
		s, err := drv.InspectSchema(ctx, name, nil)
		if err != nil {
			return nil, &exo.DatabaseError{Message: "schema inspection failed", Err: err}
		}
		if err := appendSchema(spec, s); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

func appendSchema(spec *Database, s *atlas.Schema) error {
	for _, obj := range s.Objects {
		if e, ok := obj.(*atlas.EnumType); ok {
			spec.Enums = append(spec.Enums, &EnumSpec{Name: e.T, Values: e.Values})
		}
	}
	for _, t := range s.Tables {
		table := &Table{SchemaName: s.Name, Name: t.Name}
		pk := map[string]bool{}
		if t.PrimaryKey != nil {
			for _, part := range t.PrimaryKey.Parts {
				if part.C != nil {
					pk[part.C.Name] = true
				}
			}
		}
		fks := map[string]*Reference{}
		for _, fk := range t.ForeignKeys {
			if len(fk.Columns) != 1 || len(fk.RefColumns) != 1 || fk.RefTable == nil {
				// Composite foreign keys are outside the model the compiler
				// emits; they are preserved on the table, never diffed away.
				continue
			}
			fks[fk.Columns[0].Name] = &Reference{Table: fk.RefTable.Name, Column: fk.RefColumns[0].Name}
		}
		unique := map[string]bool{}
		for _, idx := range t.Indexes {
			if idx.Unique && len(idx.Parts) == 1 && idx.Parts[0].C != nil {
				unique[idx.Parts[0].C.Name] = true
				continue
			}
			index := &Index{Name: idx.Name, Unique: idx.Unique}
			for _, part := range idx.Parts {
				if part.C != nil {
					index.Columns = append(index.Columns, part.C.Name)
				}
			}
			table.Indexes = append(table.Indexes, index)
		}
		for _, c := range t.Columns {
			typ, err := sqltype.Parse(c.Type.Raw)
			if err != nil {
				if e, ok := c.Type.Type.(*postgres.UserDefinedType); ok {
					typ = sqltype.Enum{Name: e.T}
				} else {
					return exo.Validationf("unsupported column type %q on %s.%s", c.Type.Raw, t.Name, c.Name)
				}
			}
			col := &Column{
				TableName:  t.Name,
				Name:       c.Name,
				Type:       typ,
				Nullable:   c.Type.Null,
				IsPK:       pk[c.Name],
				Unique:     unique[c.Name],
				References: fks[c.Name],
			}
			if x, ok := c.Default.(*atlas.RawExpr); ok && x.X != "" {
				col.Default = inspectedDefault(x.X)
			}
			table.Columns = append(table.Columns, col)
		}
		spec.Tables = append(spec.Tables, table)
	}
	return nil
}

func inspectedDefault(expr string) *Default {
	switch expr {
	case "gen_random_uuid()":
		return &Default{Kind: DefaultUuidGenerate}
	default:
		if len(expr) > len("nextval(") && expr[:len("nextval(")] == "nextval(" {
			return &Default{Kind: DefaultAutoIncrement}
		}
		return &Default{Kind: DefaultFunction, Expr: expr}
	}
}
