package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bizcore/bizcore/internal/types"
)

func TestEntityValues(t *testing.T) {
	t.Run("struct with id", func(t *testing.T) {
		values, id := EntityValues(&payload{ID: "widget_1", Name: "gear"})
		assert.Equal(t, "widget_1", id)
		assert.Equal(t, "gear", values["name"])
	})

	t.Run("map payload falls back to id key", func(t *testing.T) {
		values, id := EntityValues(map[string]any{"id": "abc", "count": 2})
		assert.Equal(t, "abc", id)
		assert.Equal(t, float64(2), values["count"])
	})

	t.Run("scalar payload yields no values", func(t *testing.T) {
		values, id := EntityValues("INV-000042")
		assert.Nil(t, values)
		assert.Empty(t, id)
	})

	t.Run("nil payload", func(t *testing.T) {
		values, id := EntityValues(nil)
		assert.Nil(t, values)
		assert.Empty(t, id)
	})
}

func TestDiffFields(t *testing.T) {
	tests := []struct {
		name      string
		oldValues types.Metadata
		newValues types.Metadata
		want      []string
	}{
		{
			name:      "nil old means everything changed",
			oldValues: nil,
			newValues: types.Metadata{"b": 1, "a": 2},
			want:      []string{"a", "b"},
		},
		{
			name:      "identical maps",
			oldValues: types.Metadata{"a": 1, "b": "x"},
			newValues: types.Metadata{"a": 1, "b": "x"},
			want:      []string{},
		},
		{
			name:      "changed and added and removed",
			oldValues: types.Metadata{"a": 1, "b": 2, "c": 3},
			newValues: types.Metadata{"a": 1, "b": 9, "d": 4},
			want:      []string{"b", "c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DiffFields(tt.oldValues, tt.newValues)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}
