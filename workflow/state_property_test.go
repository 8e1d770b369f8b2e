package workflow

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"
)

func propertySchema() *Schema {
	return MustSchema(
		OverwriteField("text"),
		AppendField("log").WithDefault([]int{}),
		ReducerField("count", Typed(SumReducer[int]())),
	)
}

func drawPartial(rt *rapid.T, label string) Partial {
	p := Partial{}
	if rapid.Bool().Draw(rt, label+"_has_text") {
		p["text"] = rapid.StringN(0, 8, -1).Draw(rt, label+"_text")
	}
	if rapid.Bool().Draw(rt, label+"_has_log") {
		if rapid.Bool().Draw(rt, label+"_log_single") {
			p["log"] = rapid.IntRange(-100, 100).Draw(rt, label+"_log_item")
		} else {
			p["log"] = rapid.SliceOfN(rapid.IntRange(-100, 100), 0, 4).Draw(rt, label+"_log_items")
		}
	}
	if rapid.Bool().Draw(rt, label+"_has_count") {
		p["count"] = rapid.IntRange(-50, 50).Draw(rt, label+"_count")
	}
	return p
}

// Applying two partials in sequence equals applying their per-field composite.
func TestProperty_ApplyComposeAssociativity(t *testing.T) {
	schema := propertySchema()

	rapid.Check(t, func(rt *rapid.T) {
		base, err := schema.NewState(drawPartial(rt, "base"))
		if err != nil {
			rt.Fatalf("seed state: %v", err)
		}
		a := drawPartial(rt, "a")
		b := drawPartial(rt, "b")

		step, err := base.Apply(a)
		if err != nil {
			rt.Fatalf("apply a: %v", err)
		}
		sequential, err := step.Apply(b)
		if err != nil {
			rt.Fatalf("apply b: %v", err)
		}

		composite, err := schema.Compose(a, b)
		if err != nil {
			rt.Fatalf("compose: %v", err)
		}
		once, err := base.Apply(composite)
		if err != nil {
			rt.Fatalf("apply composite: %v", err)
		}

		if !reflect.DeepEqual(sequential.Values(), once.Values()) {
			rt.Fatalf("sequential %v != composite %v", sequential.Values(), once.Values())
		}
	})
}

// Appends accumulate in call order and never drop earlier entries.
func TestProperty_AppendPreservesOrder(t *testing.T) {
	schema := propertySchema()

	rapid.Check(t, func(rt *rapid.T) {
		items := rapid.SliceOfN(rapid.IntRange(0, 1000), 0, 20).Draw(rt, "items")

		st, err := schema.NewState(nil)
		if err != nil {
			rt.Fatalf("seed state: %v", err)
		}
		snapshots := make([]State, 0, len(items))
		for _, item := range items {
			st, err = st.Apply(Partial{"log": item})
			if err != nil {
				rt.Fatalf("apply: %v", err)
			}
			snapshots = append(snapshots, st)
		}

		got := ValueOr(st, "log", []int(nil))
		if len(got) != len(items) {
			rt.Fatalf("expected %d entries, got %d", len(items), len(got))
		}
		for i := range items {
			if got[i] != items[i] {
				rt.Fatalf("entry %d: expected %d, got %d", i, items[i], got[i])
			}
			// Earlier snapshots keep exactly their own prefix.
			prefix := ValueOr(snapshots[i], "log", []int(nil))
			if len(prefix) != i+1 {
				rt.Fatalf("snapshot %d has %d entries", i, len(prefix))
			}
		}
	})
}

// For an overwrite field the latest apply wins.
func TestProperty_OverwriteLatestWins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	schema := propertySchema()

	properties.Property("last written value is the only value kept", prop.ForAll(
		func(values []string) bool {
			st, err := schema.NewState(nil)
			if err != nil {
				return false
			}
			for _, v := range values {
				if st, err = st.Apply(Partial{"text": v}); err != nil {
					return false
				}
			}
			got, ok := Lookup[string](st, "text")
			if len(values) == 0 {
				return !ok
			}
			return ok && got == values[len(values)-1]
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
