package workflow

import (
	"fmt"
	"reflect"
)

// MergeStrategy 字段合并策略，在 Schema 定义时固定
type MergeStrategy int

const (
	// MergeOverwrite 新值替换旧值（默认）
	MergeOverwrite MergeStrategy = iota
	// MergeAppend 新值追加到已有的有序序列
	MergeAppend
)

// String returns the wire name of the strategy.
func (m MergeStrategy) String() string {
	switch m {
	case MergeOverwrite:
		return "overwrite"
	case MergeAppend:
		return "append"
	default:
		return fmt.Sprintf("MergeStrategy(%d)", int(m))
	}
}

// ParseMergeStrategy parses "overwrite" or "append". An empty string means overwrite.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch s {
	case "", "overwrite":
		return MergeOverwrite, nil
	case "append":
		return MergeAppend, nil
	default:
		return 0, fmt.Errorf("invalid merge strategy %q (want overwrite or append)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m MergeStrategy) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MergeStrategy) UnmarshalText(b []byte) error {
	v, err := ParseMergeStrategy(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Reducer defines how to merge a typed update into the current value.
type Reducer[T any] func(current T, update T) T

// MergeFunc is the untyped merge a Field applies. current is nil when the field
// has never been written and has no default.
type MergeFunc func(current, update any) (any, error)

// Typed adapts a typed Reducer into a MergeFunc. Values of any other type are
// rejected so a bad write surfaces as a SchemaViolation.
func Typed[T any](r Reducer[T]) MergeFunc {
	return func(current, update any) (any, error) {
		u, ok := update.(T)
		if !ok {
			return nil, fmt.Errorf("update has type %T, want %T", update, *new(T))
		}
		var c T
		if current != nil {
			if c, ok = current.(T); !ok {
				return nil, fmt.Errorf("current value has type %T, want %T", current, *new(T))
			}
		}
		return r(c, u), nil
	}
}

// Built-in reducers

// LastValueReducer returns the most recent value (default).
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// AppendReducer appends slices together into a freshly allocated slice.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	}
}

// MergeMapReducer merges maps, with update values taking precedence.
func MergeMapReducer[K comparable, V any]() Reducer[map[K]V] {
	return func(current, update map[K]V) map[K]V {
		result := make(map[K]V, len(current)+len(update))
		for k, v := range current {
			result[k] = v
		}
		for k, v := range update {
			result[k] = v
		}
		return result
	}
}

// SumReducer sums numeric values.
func SumReducer[T ~int | ~int64 | ~float64]() Reducer[T] {
	return func(current, update T) T {
		return current + update
	}
}

// appendValues implements MergeAppend for arbitrary slice types.
// A slice update is spread element by element; any other update is appended
// as a single element. The result is always a new backing array.
func appendValues(current, update any) (any, error) {
	if update == nil {
		return current, nil
	}
	uv := reflect.ValueOf(update)

	if current == nil {
		if uv.Kind() == reflect.Slice {
			out := reflect.MakeSlice(uv.Type(), 0, uv.Len())
			return reflect.AppendSlice(out, uv).Interface(), nil
		}
		out := reflect.MakeSlice(reflect.SliceOf(uv.Type()), 0, 1)
		return reflect.Append(out, uv).Interface(), nil
	}

	cv := reflect.ValueOf(current)
	if cv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append target holds %T, not a sequence", current)
	}
	elem := cv.Type().Elem()

	var items []reflect.Value
	if uv.Kind() == reflect.Slice {
		items = make([]reflect.Value, 0, uv.Len())
		for i := 0; i < uv.Len(); i++ {
			items = append(items, uv.Index(i))
		}
	} else {
		items = []reflect.Value{uv}
	}

	out := reflect.MakeSlice(cv.Type(), 0, cv.Len()+len(items))
	out = reflect.AppendSlice(out, cv)
	for _, item := range items {
		v, err := assignableElem(item, elem)
		if err != nil {
			return nil, err
		}
		out = reflect.Append(out, v)
	}
	return out.Interface(), nil
}

func assignableElem(v reflect.Value, elem reflect.Type) (reflect.Value, error) {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			switch elem.Kind() {
			case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
				return reflect.Zero(elem), nil
			}
			return reflect.Value{}, fmt.Errorf("cannot append nil to []%s", elem)
		}
		v = v.Elem()
	}
	if !v.Type().AssignableTo(elem) {
		return reflect.Value{}, fmt.Errorf("cannot append %s to []%s", v.Type(), elem)
	}
	return v, nil
}
