package workflow

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stategraph/types"
)

func newTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(
		OverwriteField("text"),
		AppendField("log").WithDefault([]string{}),
		ReducerField("count", Typed(SumReducer[int]())),
	)
	require.NoError(t, err)
	return s
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

func TestNewSchema_RejectsBadFields(t *testing.T) {
	t.Parallel()

	_, err := NewSchema(OverwriteField("a"), AppendField("a"))
	assert.ErrorContains(t, err, "duplicate state field")

	_, err = NewSchema(OverwriteField(""))
	assert.ErrorContains(t, err, "cannot be empty")

	_, err = NewSchema(Field{Name: "x", Strategy: MergeStrategy(9)})
	assert.ErrorContains(t, err, "invalid merge strategy")

	assert.Panics(t, func() { MustSchema(OverwriteField("a"), OverwriteField("a")) })
}

func TestSchema_FieldOrderAndLookup(t *testing.T) {
	t.Parallel()

	s := newTestSchema(t)
	assert.Equal(t, []string{"text", "log", "count"}, s.FieldNames())
	assert.True(t, s.Has("log"))
	assert.False(t, s.Has("missing"))

	f, ok := s.Field("log")
	require.True(t, ok)
	assert.Equal(t, MergeAppend, f.Strategy)
}

func TestParseMergeStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    MergeStrategy
		wantErr bool
	}{
		{"", MergeOverwrite, false},
		{"overwrite", MergeOverwrite, false},
		{"append", MergeAppend, false},
		{"merge", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMergeStrategy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	var m MergeStrategy
	require.NoError(t, m.UnmarshalText([]byte("append")))
	assert.Equal(t, MergeAppend, m)
	text, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "append", string(text))
}

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

func TestState_ApplyOverwrite(t *testing.T) {
	t.Parallel()

	s := newTestSchema(t)
	st, err := s.NewState(Partial{"text": "first"})
	require.NoError(t, err)

	next, err := st.Apply(Partial{"text": "second"})
	require.NoError(t, err)

	assert.Equal(t, "second", next.String("text"))
	assert.Equal(t, "first", st.String("text"), "prior snapshot must not change")
}

func TestState_ApplyAppendAccumulates(t *testing.T) {
	t.Parallel()

	s := newTestSchema(t)
	s0, err := s.NewState(nil)
	require.NoError(t, err)

	s1, err := s0.Apply(Partial{"log": "a"})
	require.NoError(t, err)
	s2, err := s1.Apply(Partial{"log": []string{"b", "c"}})
	require.NoError(t, err)
	s3, err := s2.Apply(Partial{"text": "untouched log"})
	require.NoError(t, err)

	assert.Equal(t, []string{}, ValueOr(s0, "log", []string(nil)))
	assert.Equal(t, []string{"a"}, ValueOr(s1, "log", []string(nil)))
	assert.Equal(t, []string{"a", "b", "c"}, ValueOr(s2, "log", []string(nil)))
	assert.Equal(t, []string{"a", "b", "c"}, ValueOr(s3, "log", []string(nil)))
}

func TestState_AppendWithoutDefaultInfersType(t *testing.T) {
	t.Parallel()

	s := MustSchema(AppendField("messages"))
	st, err := s.NewState(Partial{"messages": types.NewUserMessage("hi")})
	require.NoError(t, err)
	st, err = st.Apply(Partial{"messages": []types.Message{types.NewAssistantMessage("hello")}})
	require.NoError(t, err)

	msgs, ok := Lookup[[]types.Message](st, "messages")
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
}

func TestState_AppendSpreadsAnySlice(t *testing.T) {
	t.Parallel()

	s := MustSchema(AppendField("log").WithDefault([]string{"x"}))
	st, err := s.NewState(nil)
	require.NoError(t, err)

	st, err = st.Apply(Partial{"log": []any{"y", "z"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, ValueOr(st, "log", []string(nil)))
}

func TestState_ApplyUndeclaredFieldIsSchemaViolation(t *testing.T) {
	t.Parallel()

	s := newTestSchema(t)
	st, err := s.NewState(Partial{"text": "keep"})
	require.NoError(t, err)

	after, err := st.Apply(Partial{"text": "changed", "bogus": 1})
	require.Error(t, err)

	var sv *SchemaViolation
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, "bogus", sv.Field)
	assert.ErrorIs(t, err, ErrSchemaViolation)
	assert.Equal(t, types.ErrSchemaViolation, types.GetErrorCode(err))
	assert.Equal(t, "keep", after.String("text"), "failed apply returns the prior state")
}

func TestState_AppendTypeMismatchIsSchemaViolation(t *testing.T) {
	t.Parallel()

	s := newTestSchema(t)
	st, err := s.NewState(nil)
	require.NoError(t, err)

	_, err = st.Apply(Partial{"log": 42})
	var sv *SchemaViolation
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, "log", sv.Field)
	assert.Contains(t, sv.Reason, "cannot append int")
}

func TestState_AppendOntoScalarIsSchemaViolation(t *testing.T) {
	t.Parallel()

	s := MustSchema(AppendField("log").WithDefault("not a slice"))
	st, err := s.NewState(nil)
	require.NoError(t, err)

	_, err = st.Apply(Partial{"log": "x"})
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestState_CustomReducer(t *testing.T) {
	t.Parallel()

	s := newTestSchema(t)
	st, err := s.NewState(Partial{"count": 2})
	require.NoError(t, err)
	st, err = st.Apply(Partial{"count": 3})
	require.NoError(t, err)
	assert.Equal(t, 5, ValueOr(st, "count", 0))

	_, err = st.Apply(Partial{"count": "three"})
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestState_MergeMapReducer(t *testing.T) {
	t.Parallel()

	s := MustSchema(ReducerField("results", Typed(MergeMapReducer[string, string]())))
	st, err := s.NewState(Partial{"results": map[string]string{"call_1": "12"}})
	require.NoError(t, err)
	st, err = st.Apply(Partial{"results": map[string]string{"call_2": "7"}})
	require.NoError(t, err)

	got, ok := Lookup[map[string]string](st, "results")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"call_1": "12", "call_2": "7"}, got)
}

func TestState_ZeroValueRejectsApply(t *testing.T) {
	t.Parallel()

	var st State
	_, err := st.Apply(Partial{"x": 1})
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func TestState_Accessors(t *testing.T) {
	t.Parallel()

	s := newTestSchema(t)
	st, err := s.NewState(Partial{"text": "hello", "count": 4})
	require.NoError(t, err)

	v, ok := st.Get("text")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	assert.Equal(t, "4", st.String("count"))
	assert.Equal(t, "", st.String("missing"))

	_, ok = Lookup[string](st, "count")
	assert.False(t, ok, "Lookup with the wrong type reports false")
	assert.Equal(t, "fallback", ValueOr(st, "missing", "fallback"))

	values := st.Values()
	values["text"] = "mutated"
	assert.Equal(t, "hello", st.String("text"), "Values returns a copy")
}

func TestState_MarshalJSONSchemaOrder(t *testing.T) {
	t.Parallel()

	s := MustSchema(OverwriteField("b"), OverwriteField("a"), OverwriteField("unset"))
	st, err := s.NewState(Partial{"a": "x", "b": 1})
	require.NoError(t, err)

	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":"x"}`, string(data))
}

// ---------------------------------------------------------------------------
// Compose
// ---------------------------------------------------------------------------

func TestSchema_ComposeMatchesSequentialApply(t *testing.T) {
	t.Parallel()

	s := newTestSchema(t)
	base, err := s.NewState(Partial{"text": "base", "log": []string{"0"}, "count": 1})
	require.NoError(t, err)

	a := Partial{"text": "a", "log": "1", "count": 2}
	b := Partial{"text": "b", "log": []string{"2", "3"}, "count": 3}

	seq1, err := base.Apply(a)
	require.NoError(t, err)
	seq, err := seq1.Apply(b)
	require.NoError(t, err)

	composite, err := s.Compose(a, b)
	require.NoError(t, err)
	once, err := base.Apply(composite)
	require.NoError(t, err)

	assert.Equal(t, seq.Values(), once.Values())
	assert.Equal(t, []string{"0", "1", "2", "3"}, ValueOr(once, "log", []string(nil)))
	assert.Equal(t, 6, ValueOr(once, "count", 0))
}

func TestSchema_ComposeRejectsUndeclared(t *testing.T) {
	t.Parallel()

	s := newTestSchema(t)
	_, err := s.Compose(Partial{"text": "a"}, Partial{"nope": 1})
	var sv *SchemaViolation
	require.True(t, errors.As(err, &sv))
	assert.Equal(t, "nope", sv.Field)
}
