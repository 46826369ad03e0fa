// Package graphql is the request-time layer: it parses GraphQL documents,
// validates arguments against the compiled model, plans abstract SQL
// operations with access predicates folded in, executes the resulting
// transaction scripts, and shapes {data | errors} responses.
package graphql

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/exo"
	"github.com/syssam/exo/dialect"
	exosql "github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/dialect/sql/sqlgraph"
	"github.com/syssam/exo/schema"
)

// Payload is one request: a GraphQL document with variables. QueryHash,
// when supplied, keys the parsed-document cache.
type Payload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	QueryHash     string         `json:"query_hash,omitempty"`
}

// Response is the GraphQL response envelope.
type Response struct {
	Data   map[string]json.RawMessage `json:"data,omitempty"`
	Errors gqlerror.List              `json:"errors,omitempty"`
}

// Resolver executes payloads against a compiled system and a database.
type Resolver struct {
	sys         *schema.System
	drv         dialect.Driver
	transformer *sqlgraph.Transformer
	cache       exo.PlanCache
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPlanCache installs a parsed-document cache keyed by query hash.
func WithPlanCache(cache exo.PlanCache) ResolverOption {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// NewResolver returns a resolver over the given system and driver.
func NewResolver(sys *schema.System, drv dialect.Driver, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		sys:         sys,
		drv:         drv,
		transformer: sqlgraph.NewTransformer(sys.Database),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs one payload. The request context carries the resolved
// context-type values access expressions evaluate against.
func (r *Resolver) Execute(ctx context.Context, payload *Payload, reqCtx map[string]any) *Response {
	doc, err := r.parseDocument(payload)
	if err != nil {
		return errorResponse(err)
	}
	var op *ast.OperationDefinition
	if payload.OperationName != "" {
		op = doc.Operations.ForName(payload.OperationName)
	} else if len(doc.Operations) == 1 {
		op = doc.Operations[0]
	}
	if op == nil {
		return errorResponse(exo.Validationf("operation %q not found", payload.OperationName))
	}

	p := &planner{
		sys:       r.sys,
		doc:       doc,
		validator: &argValidator{sys: r.sys, variables: payload.Variables},
		reqCtx:    reqCtx,
	}

	resp := &Response{Data: map[string]json.RawMessage{}}
	for _, sel := range op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			resp.Errors = append(resp.Errors, toGQLError(exo.Validationf("fragments are not allowed at the operation root"), nil))
			continue
		}
		alias := field.Alias
		if alias == "" {
			alias = field.Name
		}
		value, err := r.executeField(ctx, p, op.Operation, field)
		if err != nil {
			resp.Errors = append(resp.Errors, toGQLError(err, field))
			continue
		}
		resp.Data[alias] = value
	}
	if len(resp.Data) == 0 {
		resp.Data = nil
	}
	return resp
}

// ExecuteBatch runs a batch of payloads concurrently, as the JSON-RPC
// endpoint does. Results keep the input order.
func (r *Resolver) ExecuteBatch(ctx context.Context, payloads []*Payload, reqCtx map[string]any) []*Response {
	out := make([]*Response, len(payloads))
	g, ctx := errgroup.WithContext(ctx)
	for i, payload := range payloads {
		g.Go(func() error {
			out[i] = r.Execute(ctx, payload, reqCtx)
			return nil
		})
	}
	g.Wait()
	return out
}

func (r *Resolver) parseDocument(payload *Payload) (*ast.QueryDocument, error) {
	if r.cache != nil && payload.QueryHash != "" {
		if cached := r.cache.Get(payload.QueryHash); cached != nil {
			return cached.(*ast.QueryDocument), nil
		}
	}
	doc, err := parser.ParseQuery(&ast.Source{Input: payload.Query})
	if err != nil {
		return nil, err
	}
	if r.cache != nil && payload.QueryHash != "" {
		r.cache.Set(payload.QueryHash, doc)
	}
	return doc, nil
}

// executeField plans, lowers, and executes one root field.
func (r *Resolver) executeField(ctx context.Context, p *planner, opType ast.Operation, field *ast.Field) (json.RawMessage, error) {
	switch opType {
	case ast.Query:
		q, ok := r.sys.QueryByName(field.Name)
		if !ok {
			return nil, exo.Validationf("unknown query %q", field.Name)
		}
		asel, err := p.planQuery(q, field)
		if err != nil {
			return nil, err
		}
		script := r.transformer.SelectScript(asel, nil)
		result, err := script.Execute(ctx, r.drv)
		if err != nil {
			return nil, err
		}
		single := q.Kind == schema.PkQuery || q.Kind == schema.UniqueQuery
		return shapeResult(result, single)
	case ast.Mutation:
		m, ok := r.sys.MutationByName(field.Name)
		if !ok {
			return nil, exo.Validationf("unknown mutation %q", field.Name)
		}
		var (
			script *exosql.TransactionScript
			single bool
			err    error
		)
		switch m.Kind {
		case schema.CreateMutation, schema.CreateManyMutation:
			var ai *sqlgraph.AbstractInsert
			if ai, err = p.planCreate(m, field); err == nil {
				script, err = r.transformer.InsertScript(ai)
			}
			single = m.Kind == schema.CreateMutation
		case schema.UpdateMutation, schema.UpdateManyMutation:
			var au *sqlgraph.AbstractUpdate
			if au, err = p.planUpdate(m, field); err == nil {
				script, err = r.transformer.UpdateScript(au, nil)
			}
			single = m.Kind == schema.UpdateMutation
		default:
			var ad *sqlgraph.AbstractDelete
			if ad, err = p.planDelete(m, field); err == nil {
				script, err = r.transformer.DeleteScript(ad, nil)
			}
			single = m.Kind == schema.DeleteMutation
		}
		if err != nil {
			return nil, err
		}
		result, err := script.Execute(ctx, r.drv)
		if err != nil {
			return nil, err
		}
		return shapeResult(result, single)
	default:
		return nil, exo.Validationf("unsupported operation type %q", opType)
	}
}

// shapeResult converts the final step's single JSON column into the field
// value, unwrapping the aggregated array for single-row operations.
func shapeResult(res *exosql.StepResult, single bool) (json.RawMessage, error) {
	if res.RowCount() == 0 || len(res.Rows[0]) == 0 {
		if single {
			return json.RawMessage("null"), nil
		}
		return json.RawMessage("[]"), nil
	}
	raw, err := rawJSON(res.Rows[0][0])
	if err != nil {
		return nil, err
	}
	if !single {
		return raw, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		// A non-array value (e.g. an aggregate object) passes through.
		return raw, nil
	}
	if len(list) == 0 {
		return json.RawMessage("null"), nil
	}
	return list[0], nil
}

func rawJSON(v any) (json.RawMessage, error) {
	switch v := v.(type) {
	case []byte:
		return json.RawMessage(v), nil
	case string:
		return json.RawMessage(v), nil
	case nil:
		return json.RawMessage("null"), nil
	default:
		return nil, exo.Internalf("final step did not produce JSON text")
	}
}

func errorResponse(err error) *Response {
	return &Response{Errors: gqlerror.List{toGQLError(err, nil)}}
}

// toGQLError maps internal errors to wire errors. Authorization denials are
// deliberately generic; everything else surfaces its stable message.
func toGQLError(err error, field *ast.Field) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}
	out := &gqlerror.Error{Message: err.Error()}
	switch {
	case exo.IsAuthorization(err):
		out.Message = "not authorized"
	case sqlgraph.IsUniqueConstraintError(err):
		out.Message = "unique constraint violation"
	case sqlgraph.IsForeignKeyConstraintError(err):
		out.Message = "foreign key constraint violation"
	}
	if field != nil && field.Position != nil {
		out.Locations = []gqlerror.Location{{Line: field.Position.Line, Column: field.Position.Column}}
	}
	return out
}
