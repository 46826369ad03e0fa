package graphql

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/exo"
	"github.com/syssam/exo/schema"
)

// Argument validation shape-checks supplied arguments against the operation
// the model generated, substitutes variables, and converts the gqlparser
// value tree into plain Go values the planner consumes.
//
// The scalar compatibility table is fixed: a JSON number may bind Int or
// Float targets, a JSON string may bind the string-shaped scalars, booleans
// bind booleans. Json targets accept anything.

type argValidator struct {
	sys       *schema.System
	variables map[string]any
}

// validateArguments resolves and checks the arguments of one field against
// the given definitions. Missing required arguments and stray names are
// reported deterministically.
func (v *argValidator) validateArguments(defs []argDef, args ast.ArgumentList, fieldName string) (map[string]any, error) {
	supplied := map[string]*ast.Argument{}
	for _, a := range args {
		// Clients such as Apollo attach __typename to round-tripped values;
		// it is dropped, not a stray argument.
		if a.Name == "__typename" {
			continue
		}
		supplied[a.Name] = a
	}

	out := make(map[string]any, len(defs))
	for _, def := range defs {
		arg, ok := supplied[def.Name]
		if !ok {
			if def.Required {
				return nil, exo.Validationf("required argument %q of %q not found", def.Name, fieldName)
			}
			continue
		}
		delete(supplied, def.Name)
		value, err := v.resolveValue(arg.Value)
		if err != nil {
			return nil, err
		}
		if value == nil {
			if def.Required {
				return nil, exo.Validationf("argument %q of %q must not be null", def.Name, fieldName)
			}
			continue
		}
		checked, err := v.validateValue(def, value, fieldName)
		if err != nil {
			return nil, err
		}
		out[def.Name] = checked
	}

	if len(supplied) > 0 {
		stray := make([]string, 0, len(supplied))
		for name := range supplied {
			stray = append(stray, name)
		}
		sort.Strings(stray)
		return nil, exo.Validationf("stray arguments %s on %q", strings.Join(stray, ", "), fieldName)
	}
	return out, nil
}

// resolveValue converts a gqlparser value into a plain Go value, resolving
// variables by name.
func (v *argValidator) resolveValue(value *ast.Value) (any, error) {
	switch value.Kind {
	case ast.Variable:
		resolved, ok := v.variables[value.Raw]
		if !ok {
			return nil, exo.Validationf("variable %q not found", value.Raw)
		}
		return resolved, nil
	case ast.NullValue:
		return nil, nil
	case ast.IntValue:
		return jsonNumber(value.Raw), nil
	case ast.FloatValue:
		return jsonNumber(value.Raw), nil
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return value.Raw, nil
	case ast.BooleanValue:
		return value.Raw == "true", nil
	case ast.ListValue:
		out := make([]any, 0, len(value.Children))
		for _, child := range value.Children {
			item, err := v.resolveValue(child.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case ast.ObjectValue:
		out := make(map[string]any, len(value.Children))
		for _, child := range value.Children {
			item, err := v.resolveValue(child.Value)
			if err != nil {
				return nil, err
			}
			out[child.Name] = item
		}
		return out, nil
	default:
		return nil, exo.Validationf("unsupported value kind %d", value.Kind)
	}
}

// argKind discriminates the expected shapes of one argument.
type argKind int

const (
	argScalar argKind = iota
	argWhere
	argOrderBy
	argCreateData
	argUpdateData
)

// argDef describes one expected argument of a generated operation.
type argDef struct {
	Name     string
	Kind     argKind
	Required bool
	List     bool
	// Scalar is the primitive name for argScalar.
	Scalar string
	// Entity scopes object-shaped arguments.
	Entity int
	// Field carries the targeted field for range-checked scalars.
	Field *schema.Field
}

// validateValue checks one argument value against its definition.
func (v *argValidator) validateValue(def argDef, value any, fieldName string) (any, error) {
	if def.List {
		list, ok := value.([]any)
		if !ok {
			// A single object in list position is accepted as a one-element
			// list, matching common client usage.
			list = []any{value}
		}
		inner := def
		inner.List = false
		out := make([]any, 0, len(list))
		for _, item := range list {
			if item == nil {
				return nil, exo.Validationf("list argument %q of %q must not contain null", def.Name, fieldName)
			}
			checked, err := v.validateValue(inner, item, fieldName)
			if err != nil {
				return nil, err
			}
			out = append(out, checked)
		}
		return out, nil
	}

	switch def.Kind {
	case argScalar:
		return v.validateScalar(def.Scalar, def.Field, value, def.Name)
	case argWhere:
		return v.validateWhere(def.Entity, value)
	case argOrderBy:
		return v.validateOrderBy(def.Entity, value)
	case argCreateData:
		return v.validateCreateData(def.Entity, value)
	case argUpdateData:
		return v.validateUpdateData(def.Entity, value)
	default:
		return nil, exo.Internalf("unknown argument kind %d", def.Kind)
	}
}

// stringScalars are the targets a JSON string value may bind.
var stringScalars = map[string]bool{
	"String":        true,
	"Decimal":       true,
	"LocalDate":     true,
	"LocalTime":     true,
	"LocalDateTime": true,
	"Instant":       true,
	"Uuid":          true,
	"Vector":        true,
	"Blob":          true,
	"Json":          true,
}

func (v *argValidator) validateScalar(scalar string, field *schema.Field, value any, argName string) (any, error) {
	// Json-typed inputs pass through unchecked.
	if scalar == "Json" {
		return value, nil
	}
	switch value.(type) {
	case float64, int64, int:
		if scalar != "Int" && scalar != "Float" {
			return nil, exo.Validationf("argument %q expects %s, found a number", argName, scalar)
		}
		if field != nil && field.Range != nil {
			n := asNumber(value)
			if n < field.Range.Min || n > field.Range.Max {
				return nil, exo.Validationf("argument %q value out of range [%v, %v]", argName, field.Range.Min, field.Range.Max)
			}
		}
	case string:
		if !stringScalars[scalar] {
			return nil, exo.Validationf("argument %q expects %s, found a string", argName, scalar)
		}
	case bool:
		if scalar != "Boolean" {
			return nil, exo.Validationf("argument %q expects %s, found a boolean", argName, scalar)
		}
	case []any:
		if scalar != "Vector" {
			return nil, exo.Validationf("argument %q expects %s, found a list", argName, scalar)
		}
	default:
		return nil, exo.Validationf("argument %q expects %s", argName, scalar)
	}
	return value, nil
}

// whereOperators is the set of filter operator names accepted on a scalar
// field. The same set applies to every scalar type; operators are not checked
// against the field's scalar family.
var whereOperators = map[string]bool{
	"eq": true, "neq": true,
	"lt": true, "lte": true, "gt": true, "gte": true,
	"in": true,
	"like": true, "ilike": true, "startsWith": true, "endsWith": true,
	"contains": true, "containedBy": true,
	"matchKey": true, "matchAnyKey": true, "matchAllKeys": true,
}

func (v *argValidator) validateWhere(entityIdx int, value any) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, exo.Validationf("where must be an object")
	}
	entity := v.sys.Entity(entityIdx)
	var stray []string
	for key, val := range obj {
		switch key {
		case "and", "or":
			list, ok := val.([]any)
			if !ok {
				return nil, exo.Validationf("%q filter takes a list", key)
			}
			for _, item := range list {
				if _, err := v.validateWhere(entityIdx, item); err != nil {
					return nil, err
				}
			}
		case "not":
			if _, err := v.validateWhere(entityIdx, val); err != nil {
				return nil, err
			}
		default:
			field := entity.Field(key)
			if field == nil {
				stray = append(stray, key)
				continue
			}
			switch field.Relation.Kind {
			case schema.RelationScalar:
				ops, ok := val.(map[string]any)
				if !ok {
					return nil, exo.Validationf("filter on %q takes an operator object", key)
				}
				for op := range ops {
					if !whereOperators[op] {
						return nil, exo.Validationf("unknown filter operator %q on %q", op, key)
					}
				}
			case schema.RelationManyToOne, schema.RelationOneToMany:
				if _, err := v.validateWhere(field.Type.Entity, val); err != nil {
					return nil, err
				}
			}
		}
	}
	if len(stray) > 0 {
		sort.Strings(stray)
		return nil, exo.Validationf("stray arguments %s on %q filter", strings.Join(stray, ", "), entity.Name)
	}
	return obj, nil
}

func (v *argValidator) validateOrderBy(entityIdx int, value any) (any, error) {
	entries, ok := value.([]any)
	if !ok {
		entries = []any{value}
	}
	entity := v.sys.Entity(entityIdx)
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, exo.Validationf("orderBy takes objects of the form {field: ASC|DESC}")
		}
		for key, dir := range obj {
			field := entity.Field(key)
			if field == nil {
				return nil, exo.Validationf("unknown orderBy field %q on %q", key, entity.Name)
			}
			switch field.Relation.Kind {
			case schema.RelationScalar:
				s, ok := dir.(string)
				if !ok || (s != "ASC" && s != "DESC") {
					return nil, exo.Validationf("orderBy direction on %q must be ASC or DESC", key)
				}
			case schema.RelationManyToOne:
				if _, err := v.validateOrderBy(field.Type.Entity, dir); err != nil {
					return nil, err
				}
			default:
				return nil, exo.Validationf("cannot order by collection field %q", key)
			}
		}
	}
	return value, nil
}

func (v *argValidator) validateCreateData(entityIdx int, value any) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, exo.Validationf("data must be an object")
	}
	entity := v.sys.Entity(entityIdx)
	var stray []string
	for key, val := range obj {
		field := entity.Field(key)
		if field == nil {
			stray = append(stray, key)
			continue
		}
		switch field.Relation.Kind {
		case schema.RelationScalar:
			if val == nil {
				if !field.Type.Optional {
					return nil, exo.Validationf("field %q of %q must not be null", key, entity.Name)
				}
				continue
			}
			if _, err := v.validateScalar(field.Type.Primitive, field, val, key); err != nil {
				return nil, err
			}
		case schema.RelationManyToOne:
			// The reference is supplied as the target's primary key value.
			if val == nil && !field.Type.Optional {
				return nil, exo.Validationf("field %q of %q must not be null", key, entity.Name)
			}
		case schema.RelationOneToMany:
			rows, ok := val.([]any)
			if !ok {
				rows = []any{val}
			}
			for _, row := range rows {
				if _, err := v.validateCreateData(field.Type.Entity, row); err != nil {
					return nil, err
				}
			}
		}
	}
	if len(stray) > 0 {
		sort.Strings(stray)
		return nil, exo.Validationf("stray arguments %s on %q data", strings.Join(stray, ", "), entity.Name)
	}

	// Every non-optional scalar without a default must be supplied.
	for _, field := range entity.Fields {
		if field.Relation.Kind != schema.RelationScalar || field.Type.Optional || field.Default != nil {
			continue
		}
		if _, supplied := obj[field.Name]; !supplied {
			return nil, exo.Validationf("required argument %q of %q not found", field.Name, entity.Name)
		}
	}
	return obj, nil
}

func (v *argValidator) validateUpdateData(entityIdx int, value any) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, exo.Validationf("data must be an object")
	}
	entity := v.sys.Entity(entityIdx)
	var stray []string
	for key, val := range obj {
		field := entity.Field(key)
		if field == nil {
			stray = append(stray, key)
			continue
		}
		switch field.Relation.Kind {
		case schema.RelationScalar:
			if val == nil {
				if !field.Type.Optional {
					return nil, exo.Validationf("field %q of %q must not be null", key, entity.Name)
				}
				continue
			}
			if _, err := v.validateScalar(field.Type.Primitive, field, val, key); err != nil {
				return nil, err
			}
		case schema.RelationManyToOne:
			// pk reference; nothing deeper to check here
		case schema.RelationOneToMany:
			nested, ok := val.(map[string]any)
			if !ok {
				return nil, exo.Validationf("field %q of %q takes {create, update, delete}", key, entity.Name)
			}
			for op, rows := range nested {
				list, isList := rows.([]any)
				if !isList {
					list = []any{rows}
				}
				switch op {
				case "create":
					for _, row := range list {
						if _, err := v.validateCreateData(field.Type.Entity, row); err != nil {
							return nil, err
						}
					}
				case "update":
					for _, row := range list {
						if _, err := v.validateUpdateData(field.Type.Entity, row); err != nil {
							return nil, err
						}
					}
				case "delete":
					for _, row := range list {
						if _, ok := row.(map[string]any); !ok {
							return nil, exo.Validationf("delete entries on %q take {id}", key)
						}
					}
				default:
					return nil, exo.Validationf("unknown nested operation %q on %q", op, key)
				}
			}
		}
	}
	if len(stray) > 0 {
		sort.Strings(stray)
		return nil, exo.Validationf("stray arguments %s on %q data", strings.Join(stray, ", "), entity.Name)
	}
	return obj, nil
}

// jsonNumber parses a numeric literal, preserving integers as int64.
func jsonNumber(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	f, _ := strconv.ParseFloat(raw, 64)
	return f
}

func asNumber(v any) float64 {
	switch v := v.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
