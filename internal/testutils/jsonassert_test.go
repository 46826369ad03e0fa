package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONEqual(t *testing.T) {
	tests := []struct {
		name      string
		expected  string
		actual    string
		unordered []string
		want      bool
	}{
		{
			name:     "identical documents",
			expected: `{"a": 1, "b": [1, 2]}`,
			actual:   `{"b": [1, 2], "a": 1}`,
			want:     true,
		},
		{
			name:     "ordered list mismatch",
			expected: `{"xs": [1, 2]}`,
			actual:   `{"xs": [2, 1]}`,
			want:     false,
		},
		{
			name:      "unordered path accepts permutation",
			expected:  `{"xs": [1, 2]}`,
			actual:    `{"xs": [2, 1]}`,
			unordered: []string{"xs"},
			want:      true,
		},
		{
			name:      "unordered path still checks multiplicity",
			expected:  `{"xs": [1, 1, 2]}`,
			actual:    `{"xs": [1, 2, 2]}`,
			unordered: []string{"xs"},
			want:      false,
		},
		{
			name:      "nested unordered path",
			expected:  `{"data": {"concerts": [{"id": 1}, {"id": 2}]}}`,
			actual:    `{"data": {"concerts": [{"id": 2}, {"id": 1}]}}`,
			unordered: []string{"data.concerts"},
			want:      true,
		},
		{
			name:     "scalar mismatch",
			expected: `{"a": 1}`,
			actual:   `{"a": 2}`,
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JSONEqual([]byte(tt.expected), []byte(tt.actual), tt.unordered...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
