package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Partial 节点返回的部分状态更新，只能包含 Schema 中声明的字段
type Partial map[string]any

// Field declares one state field and how updates to it are merged.
type Field struct {
	Name     string
	Strategy MergeStrategy
	// Default is the value a fresh state starts with.
	Default any
	// Merge, when set, replaces Strategy.
	Merge MergeFunc
}

// OverwriteField declares a last-write-wins field.
func OverwriteField(name string) Field {
	return Field{Name: name, Strategy: MergeOverwrite}
}

// AppendField declares an ordered sequence field that accumulates updates.
func AppendField(name string) Field {
	return Field{Name: name, Strategy: MergeAppend}
}

// ReducerField declares a field merged by a custom function.
func ReducerField(name string, merge MergeFunc) Field {
	return Field{Name: name, Merge: merge}
}

// WithDefault returns a copy of the field with a default value.
func (f Field) WithDefault(v any) Field {
	f.Default = v
	return f
}

func (f Field) merge(current, update any) (any, error) {
	if f.Merge != nil {
		return f.Merge(current, update)
	}
	if f.Strategy == MergeAppend {
		return appendValues(current, update)
	}
	return update, nil
}

// Schema 状态模式：有序的字段声明集合，定义后不可变
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema creates a schema from field declarations. Names must be unique and non-empty.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("state field name cannot be empty")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate state field: %s", f.Name)
		}
		if f.Strategy != MergeOverwrite && f.Strategy != MergeAppend {
			return nil, fmt.Errorf("state field %s: invalid merge strategy %s", f.Name, f.Strategy)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldNames returns the declared field names in declaration order.
func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Field looks up a field declaration by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether name is a declared field.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// NewState seeds field defaults, then applies initial as the first update.
func (s *Schema) NewState(initial Partial) (State, error) {
	st := State{schema: s, values: make(map[string]any, len(s.fields))}
	for _, f := range s.fields {
		if f.Default != nil {
			st.values[f.Name] = f.Default
		}
	}
	if len(initial) == 0 {
		return st, nil
	}
	return st.Apply(initial)
}

// Validate checks that every key of p is a declared field.
func (s *Schema) Validate(p Partial) error {
	for _, key := range sortedKeys(p) {
		if !s.Has(key) {
			return &SchemaViolation{Field: key, Reason: "field is not declared in the state schema"}
		}
	}
	return nil
}

// Compose reduces two partials into one such that applying the result equals
// applying a then b. Custom Merge functions must be associative for this to hold.
func (s *Schema) Compose(a, b Partial) (Partial, error) {
	if err := s.Validate(a); err != nil {
		return nil, err
	}
	if err := s.Validate(b); err != nil {
		return nil, err
	}
	out := make(Partial, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		prev, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		f, _ := s.Field(k)
		if f.Merge == nil && f.Strategy == MergeAppend {
			// Normalize a so a single element composes like a one-item slice.
			seq, err := appendValues(nil, prev)
			if err != nil {
				return nil, &SchemaViolation{Field: k, Reason: err.Error()}
			}
			prev = seq
		}
		merged, err := f.merge(prev, v)
		if err != nil {
			return nil, &SchemaViolation{Field: k, Reason: err.Error()}
		}
		out[k] = merged
	}
	return out, nil
}

// State 不可变状态快照：Apply 返回新的 State，原快照永不修改
type State struct {
	schema *Schema
	values map[string]any
}

// Schema returns the schema the state was created from.
func (s State) Schema() *Schema {
	return s.schema
}

// Apply merges partial into a new state using each field's strategy.
// Fields absent from partial are unchanged. The receiver is never mutated.
func (s State) Apply(partial Partial) (State, error) {
	if s.schema == nil {
		return State{}, &SchemaViolation{Reason: "state has no schema"}
	}
	if err := s.schema.Validate(partial); err != nil {
		return s, err
	}
	next := State{schema: s.schema, values: make(map[string]any, len(s.values)+len(partial))}
	for k, v := range s.values {
		next.values[k] = v
	}
	for _, f := range s.schema.fields {
		update, ok := partial[f.Name]
		if !ok {
			continue
		}
		merged, err := f.merge(next.values[f.Name], update)
		if err != nil {
			return s, &SchemaViolation{Field: f.Name, Reason: err.Error()}
		}
		next.values[f.Name] = merged
	}
	return next, nil
}

// Get returns the value of a field and whether it has been set.
func (s State) Get(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// String returns a field formatted as a string, or "" when unset.
func (s State) String(name string) string {
	v, ok := s.values[name]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Values returns a copy of all set fields.
func (s State) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes set fields in schema declaration order.
func (s State) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	if s.schema != nil {
		for _, f := range s.schema.fields {
			v, ok := s.values[f.Name]
			if !ok {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			key, _ := json.Marshal(f.Name)
			buf.Write(key)
			buf.WriteByte(':')
			val, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("marshal state field %s: %w", f.Name, err)
			}
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Lookup returns a field converted to T. ok is false when the field is unset
// or holds a value of a different type.
func Lookup[T any](s State, name string) (T, bool) {
	var zero T
	v, ok := s.values[name]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// ValueOr returns the field as T or def when unset or mistyped.
func ValueOr[T any](s State, name string, def T) T {
	if v, ok := Lookup[T](s, name); ok {
		return v
	}
	return def
}
