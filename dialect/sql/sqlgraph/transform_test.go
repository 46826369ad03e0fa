package sqlgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/dialect/sql/schema"
	"github.com/syssam/exo/dialect/sql/sqltype"
)

// testSetup builds the concerts/venues/artists layout the transformer tests
// run against.
type testSetup struct {
	t *Transformer

	concerts schema.TableID
	venues   schema.TableID
	artists  schema.TableID

	concertID      schema.ColumnID
	concertTitle   schema.ColumnID
	concertVenueID schema.ColumnID
	venueID        schema.ColumnID
	venueName      schema.ColumnID
	artistID       schema.ColumnID
	artistName     schema.ColumnID
	artistConcert  schema.ColumnID
}

func newTestSetup() *testSetup {
	intType := sqltype.Int{Bits: sqltype.Bits32}
	textType := sqltype.String{}
	db := &schema.Database{Tables: []*schema.Table{
		{
			Name: "concerts",
			Columns: []*schema.Column{
				{TableName: "concerts", Name: "id", Type: intType, IsPK: true},
				{TableName: "concerts", Name: "title", Type: textType},
				{TableName: "concerts", Name: "venue_id", Type: intType, References: &schema.Reference{Table: "venues", Column: "id"}},
			},
		},
		{
			Name: "venues",
			Columns: []*schema.Column{
				{TableName: "venues", Name: "id", Type: intType, IsPK: true},
				{TableName: "venues", Name: "name", Type: textType},
			},
		},
		{
			Name: "artists",
			Columns: []*schema.Column{
				{TableName: "artists", Name: "id", Type: intType, IsPK: true},
				{TableName: "artists", Name: "name", Type: textType},
				{TableName: "artists", Name: "concert_id", Type: intType, References: &schema.Reference{Table: "concerts", Column: "id"}},
			},
		},
	}}
	return &testSetup{
		t:              NewTransformer(db),
		concerts:       0,
		venues:         1,
		artists:        2,
		concertID:      schema.ColumnID{Table: 0, Index: 0},
		concertTitle:   schema.ColumnID{Table: 0, Index: 1},
		concertVenueID: schema.ColumnID{Table: 0, Index: 2},
		venueID:        schema.ColumnID{Table: 1, Index: 0},
		venueName:      schema.ColumnID{Table: 1, Index: 1},
		artistID:       schema.ColumnID{Table: 2, Index: 0},
		artistName:     schema.ColumnID{Table: 2, Index: 1},
		artistConcert:  schema.ColumnID{Table: 2, Index: 2},
	}
}

// venueLink is the concerts -> venues join edge.
func (s *testSetup) venueLink() ColumnPathLink {
	linked := s.venueID
	return ColumnPathLink{SelfColumn: s.concertVenueID, LinkedColumn: &linked}
}

func TestSimpleSelection(t *testing.T) {
	s := newTestSetup()
	asel := &AbstractSelect{
		Table: s.concerts,
		Selection: SeqSelection(ColumnSelection{
			Alias:   "id",
			Element: ElemPhysical{Col: s.concertID},
		}),
	}
	query, args := sql.Build(s.t.ToSelect(asel, nil, nil, TopLevel))
	assert.Equal(t, `SELECT "concerts"."id" FROM "concerts"`, query)
	assert.Empty(t, args)
}

func TestNestedJsonSelection(t *testing.T) {
	s := newTestSetup()
	asel := &AbstractSelect{
		Table: s.concerts,
		Selection: JsonSelection(CardinalityMany,
			ColumnSelection{Alias: "id", Element: ElemPhysical{Col: s.concertID}},
			ColumnSelection{Alias: "title", Element: ElemPhysical{Col: s.concertTitle}},
			ColumnSelection{Alias: "venue", Element: ElemNested{
				Relation: RelationLink{SelfColumn: s.concertVenueID, LinkedColumn: s.venueID},
				Select: &AbstractSelect{
					Table: s.venues,
					Selection: JsonSelection(CardinalityOne,
						ColumnSelection{Alias: "id", Element: ElemPhysical{Col: s.venueID}},
						ColumnSelection{Alias: "name", Element: ElemPhysical{Col: s.venueName}},
					),
				},
			}},
		),
		Predicate: Eq(
			PhysicalPath(ColumnPathLink{SelfColumn: s.concertID}),
			ParamPath(int64(1)),
		),
	}
	query, args := sql.Build(s.t.ToSelect(asel, nil, nil, TopLevel))
	assert.Equal(t,
		`SELECT coalesce(json_agg(json_build_object('id', "concerts"."id", 'title', "concerts"."title", 'venue', (SELECT json_build_object('id', "venues"."id", 'name', "venues"."name") FROM "venues" WHERE "concerts"."venue_id" = "venues"."id"))), '[]'::json)::text FROM "concerts" WHERE "concerts"."id" = $1`,
		query)
	assert.Equal(t, []any{int64(1)}, args)
}

func TestSubselectLowering(t *testing.T) {
	s := newTestSetup()
	pred := Eq(
		PhysicalPath(s.venueLink(), ColumnPathLink{SelfColumn: s.venueName}),
		ParamPath("v1"),
	)

	lowered := s.t.ToSubselectPredicate(pred)
	var b sql.Builder
	lowered.Build(&b)
	assert.Equal(t,
		`"concerts"."venue_id" IN (SELECT "venues"."id" FROM "venues" WHERE "venues"."name" = $1 GROUP BY "venues"."id")`,
		b.String())
	assert.Equal(t, []any{"v1"}, b.Args())
}

func TestSubselectLoweringAvoidsJoin(t *testing.T) {
	s := newTestSetup()
	asel := &AbstractSelect{
		Table: s.concerts,
		Selection: SeqSelection(ColumnSelection{
			Alias:   "id",
			Element: ElemPhysical{Col: s.concertID},
		}),
		Predicate: Eq(
			PhysicalPath(s.venueLink(), ColumnPathLink{SelfColumn: s.venueName}),
			ParamPath("v1"),
		),
	}
	query, _ := sql.Build(s.t.ToSelect(asel, nil, nil, TopLevel))
	assert.NotContains(t, query, "JOIN")
	assert.Contains(t, query, `IN (SELECT "venues"."id" FROM "venues"`)
	// Exactly one subselect.
	assert.Equal(t, 1, countOccurrences(query, "IN (SELECT"))
}

func TestSubselectPreservesOperator(t *testing.T) {
	s := newTestSetup()
	path := PhysicalPath(s.venueLink(), ColumnPathLink{SelfColumn: s.venueName})

	tests := []struct {
		name string
		pred *Predicate
		want string
	}{
		{name: "lt", pred: Lt(path, ParamPath("x")), want: `WHERE "venues"."name" < $1`},
		{name: "like keeps case flag", pred: StringLike(path, ParamPath("x"), false), want: `WHERE "venues"."name" ILIKE $1`},
		{name: "starts with", pred: StringStartsWith(path, ParamPath("x")), want: `WHERE "venues"."name" LIKE $1 || '%'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b sql.Builder
			s.t.ToSubselectPredicate(tt.pred).Build(&b)
			assert.Contains(t, b.String(), tt.want)
		})
	}
}

func TestNestedPredicateLowersDirectly(t *testing.T) {
	s := newTestSetup()
	asel := &AbstractSelect{
		Table: s.concerts,
		Selection: SeqSelection(ColumnSelection{
			Alias:   "id",
			Element: ElemPhysical{Col: s.concertID},
		}),
		Predicate: Eq(
			PhysicalPath(s.venueLink(), ColumnPathLink{SelfColumn: s.venueName}),
			ParamPath("v1"),
		),
	}
	query, _ := sql.Build(s.t.ToSelect(asel, nil, nil, Nested))
	assert.Contains(t, query, `LEFT JOIN "venues" ON "concerts"."venue_id" = "venues"."id"`)
	assert.Contains(t, query, `WHERE "venues"."name" = $1`)
}

func TestOrderByThroughRelationJoins(t *testing.T) {
	s := newTestSetup()
	asel := &AbstractSelect{
		Table: s.concerts,
		Selection: SeqSelection(ColumnSelection{
			Alias:   "id",
			Element: ElemPhysical{Col: s.concertID},
		}),
		OrderBy: []OrderByElem{{
			Path: PhysicalPath(s.venueLink(), ColumnPathLink{SelfColumn: s.venueName}),
			Desc: true,
		}},
	}
	query, _ := sql.Build(s.t.ToSelect(asel, nil, nil, TopLevel))
	assert.Equal(t,
		`SELECT "concerts"."id" FROM "concerts" LEFT JOIN "venues" ON "concerts"."venue_id" = "venues"."id" ORDER BY "venues"."name" DESC`,
		query)
}

func TestLimitOffset(t *testing.T) {
	s := newTestSetup()
	limit, offset := int64(10), int64(20)
	asel := &AbstractSelect{
		Table: s.concerts,
		Selection: SeqSelection(ColumnSelection{
			Alias:   "id",
			Element: ElemPhysical{Col: s.concertID},
		}),
		Limit:  &limit,
		Offset: &offset,
	}
	query, _ := sql.Build(s.t.ToSelect(asel, nil, nil, TopLevel))
	assert.Equal(t, `SELECT "concerts"."id" FROM "concerts" LIMIT 10 OFFSET 20`, query)
}

func TestInFilterUsesArrayParam(t *testing.T) {
	s := newTestSetup()
	pred := Eq(
		PhysicalPath(ColumnPathLink{SelfColumn: s.concertID}),
		ParamPath([]any{int64(1), int64(2)}),
	)
	var b sql.Builder
	s.t.ToPredicate(pred).Build(&b)
	assert.Equal(t, `"concerts"."id" = ANY($1)`, b.String())
	require.Len(t, b.Args(), 1)
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
