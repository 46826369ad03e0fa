package sqltype

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/exo"
)

func intPtr(n int) *int { return &n }

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{in: "SMALLINT", want: Int{Bits: Bits16}},
		{in: "INTEGER", want: Int{Bits: Bits32}},
		{in: "BIGSERIAL", want: Int{Bits: Bits64}},
		{in: "REAL", want: Float{Bits: Bits24}},
		{in: "DOUBLE PRECISION", want: Float{Bits: Bits53}},
		{in: "NUMERIC(10,2)", want: Numeric{Precision: intPtr(10), Scale: intPtr(2)}},
		{in: "NUMERIC(10)", want: Numeric{Precision: intPtr(10)}},
		{in: "VARCHAR(255)", want: String{MaxLength: intPtr(255)}},
		{in: "TEXT", want: String{}},
		{in: "BOOLEAN", want: Boolean{}},
		{in: "DATE", want: Date{}},
		{in: "TIME(3)", want: Time{Precision: intPtr(3)}},
		{in: "TIMESTAMP(6) WITH TIME ZONE", want: Timestamp{Precision: intPtr(6), Timezone: true}},
		{in: "TIMESTAMPTZ", want: Timestamp{Timezone: true}},
		{in: "UUID", want: Uuid{}},
		{in: "BYTEA", want: Blob{}},
		{in: "JSONB", want: Json{}},
		{in: "VECTOR(1536)", want: Vector{Size: 1536}},
		{in: "TEXT[]", want: Array{Inner: String{}}},
		{in: "TEXT[][]", want: Array{Inner: Array{Inner: String{}}}},
		{in: "INTEGER[]", want: Array{Inner: Int{Bits: Bits32}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestParseUnknown(t *testing.T) {
	for _, in := range []string{"WHATEVER", "NUMERIC(", "VECTOR", "INT(10,20,30)"} {
		_, err := Parse(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, exo.ErrValidation)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	types := []Type{
		Int{Bits: Bits64},
		Float{Bits: Bits24},
		Numeric{Precision: intPtr(12), Scale: intPtr(3)},
		String{MaxLength: intPtr(80)},
		String{},
		Boolean{},
		Date{},
		Time{Precision: intPtr(3)},
		Timestamp{Precision: intPtr(6), Timezone: true},
		Uuid{},
		Blob{},
		Json{},
		Enum{Name: "mood"},
		Vector{Size: 768},
		Array{Inner: Array{Inner: String{MaxLength: intPtr(10)}}},
	}
	for _, typ := range types {
		t.Run(typ.TypeString(), func(t *testing.T) {
			wire, err := Serialize(typ)
			require.NoError(t, err)
			assert.Equal(t, typ.TypeName(), wire.TypeName)
			back, err := Deserialize(wire)
			require.NoError(t, err)
			assert.True(t, typ.Equal(back), "want %v, got %v", typ, back)
		})
	}
}

func TestTypeStringRendering(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{typ: Int{Bits: Bits16}, want: "SMALLINT"},
		{typ: Int{Bits: Bits64}, want: "BIGINT"},
		{typ: Numeric{Precision: intPtr(10), Scale: intPtr(2)}, want: "NUMERIC(10,2)"},
		{typ: Timestamp{Timezone: true}, want: "TIMESTAMP WITH TIME ZONE"},
		{typ: Array{Inner: String{}}, want: "TEXT[]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.typ.TypeString())
	}
}

func TestCast(t *testing.T) {
	id, _ := uuid.Parse("8e9c4a93-82e6-4a29-9d1e-c6a34e3a0d41")
	tests := []struct {
		name string
		typ  Type
		in   any
		want any
	}{
		{name: "int from float64", typ: Int{Bits: Bits32}, in: float64(7), want: int64(7)},
		{name: "int16 in range", typ: Int{Bits: Bits16}, in: float64(32767), want: int64(32767)},
		{name: "float", typ: Float{Bits: Bits53}, in: float64(1.5), want: float64(1.5)},
		{name: "numeric keeps text", typ: Numeric{}, in: "12.345", want: "12.345"},
		{name: "boolean", typ: Boolean{}, in: true, want: true},
		{name: "uuid", typ: Uuid{}, in: "8e9c4a93-82e6-4a29-9d1e-c6a34e3a0d41", want: id},
		{name: "vector literal", typ: Vector{Size: 3}, in: []any{float64(1), float64(2), float64(3)}, want: "[1,2,3]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.typ.Cast(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCastErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		in   any
	}{
		{name: "int overflow", typ: Int{Bits: Bits16}, in: float64(40000)},
		{name: "int fraction", typ: Int{Bits: Bits32}, in: float64(1.5)},
		{name: "bad date", typ: Date{}, in: "not-a-date"},
		{name: "bad uuid", typ: Uuid{}, in: "nope"},
		{name: "vector dimension mismatch", typ: Vector{Size: 3}, in: []any{float64(1)}},
		{name: "string length", typ: String{MaxLength: intPtr(3)}, in: "toolong"},
		{name: "wrong shape", typ: Boolean{}, in: "yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.typ.Cast(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, exo.ErrCast)
		})
	}
}

func TestCastDateAndTimestamp(t *testing.T) {
	d, err := (Date{}).Cast("2024-03-01")
	require.NoError(t, err)
	assert.NotNil(t, d)

	ts, err := (Timestamp{Timezone: true}).Cast("2024-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.NotNil(t, ts)

	_, err = (Timestamp{}).Cast(42)
	require.Error(t, err)
}
