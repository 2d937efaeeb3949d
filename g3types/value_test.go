package g3types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Kinds(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
	}{
		{"null", KindNull},
		{"true", KindBool},
		{"false", KindBool},
		{"42", KindInt},
		{"-7", KindInt},
		{"3.25", KindFloat},
		{"1e3", KindFloat},
		{`"hello"`, KindString},
		{`[1,2]`, KindList},
		{`{"a":1}`, KindMap},
	}
	for _, tc := range tests {
		v := NewValue(json.RawMessage(tc.raw))
		assert.Equal(t, tc.kind, v.Kind(), "kind of %s", tc.raw)
	}
	assert.Equal(t, KindNull, Value{}.Kind(), "The zero value is null")
}

func TestValue_Downcasts(t *testing.T) {
	s, err := NewValue(json.RawMessage(`"scene"`)).Str()
	require.NoError(t, err)
	assert.Equal(t, "scene", s)

	n, err := NewValue(json.RawMessage("42")).Int()
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	f, err := NewValue(json.RawMessage("2.5")).Float64()
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	f, err = NewValue(json.RawMessage("3")).Float64()
	require.NoError(t, err)
	assert.Equal(t, 3.0, f, "Integers widen to float without error")

	b, err := NewValue(json.RawMessage("true")).Bool()
	require.NoError(t, err)
	assert.True(t, b)

	list, err := NewValue(json.RawMessage(`[1,"two"]`)).List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	two, err := list[1].Str()
	require.NoError(t, err)
	assert.Equal(t, "two", two)

	m, err := NewValue(json.RawMessage(`{"level":0.8}`)).Map()
	require.NoError(t, err)
	level, err := m["level"].Float64()
	require.NoError(t, err)
	assert.Equal(t, 0.8, level)
}

func TestValue_DowncastErrorsNameKinds(t *testing.T) {
	_, err := NewValue(json.RawMessage(`"hello"`)).Int()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected int")
	assert.Contains(t, err.Error(), "string")

	_, err = NewValue(json.RawMessage("2.5")).Int()
	require.Error(t, err, "A float with a fractional part is not an int")

	_, err = NewValue(json.RawMessage("[]")).Bool()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected bool")
}

func TestValue_Strings(t *testing.T) {
	uuids, err := NewValue(json.RawMessage(`["u1","u2"]`)).Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, uuids)

	_, err = NewValue(json.RawMessage(`[1,2]`)).Strings()
	require.Error(t, err)
}
