package expressions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestEvaluateString(t *testing.T) {
	data := decode(t, `{"id": 1042, "brand": {"name": " Sunliner "}, "price": 12.5, "active": true}`)
	e := NewEvaluator()

	tests := []struct {
		expr string
		want string
	}{
		{expr: "id", want: "1042"},
		{expr: "brand.name", want: "Sunliner"},
		{expr: "price", want: "12.5"},
		{expr: "active", want: "true"},
		{expr: "missing.path", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := e.EvaluateString(tt.expr, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateSlice(t *testing.T) {
	data := decode(t, `{"data": [{"id": "a"}, {"id": "b"}], "single": "x"}`)
	e := NewEvaluator()

	items, err := e.EvaluateSlice("data", data)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	ids, err := e.EvaluateSlice("data[].id", data)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, ids)

	single, err := e.EvaluateSlice("single", data)
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, single)

	none, err := e.EvaluateSlice("nothing", data)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestValidate(t *testing.T) {
	e := NewEvaluator()
	assert.NoError(t, e.Validate("data[].id"))
	assert.Error(t, e.Validate("data[.id"))
}
