package tools

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want float64
	}{
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"sqrt(16) + 5", 9},
		{"sin(pi/2)", 1},
		{"10 / 2 - 1", 4},
		{"2 ** 3", 8},
		{"2 ** 3 ** 2", 512},
		{"-2 ** 2", -4},
		{"2 ** -1", 0.5},
		{"max(1, 5, 3)", 5},
		{"min(4, -2)", -2},
		{"sum(1, 2, 3, 4)", 10},
		{"sum()", 0},
		{"round(3.14159, 2)", 3.14},
		{"round(2.5)", 2},
		{"abs(-7)", 7},
		{"pow(2, 10)", 1024},
		{"log(e)", 1},
		{"log(8, 2)", 3},
		{"log10(1000)", 3},
		{"ceil(1.2) + floor(1.8)", 3},
		{"7 % 3", 1},
		{"-7 % 3", 2},
		{"1.5e2 + .5", 150.5},
		{"--3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Calculate(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCalculate_Errors(t *testing.T) {
	t.Parallel()

	var (
		exprErr *ExpressionError
		mathErr *MathError
	)
	tests := []struct {
		expr  string
		check func(t *testing.T, err error)
	}{
		{"1 / 0", func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrDivisionByZero) }},
		{"5 % (2 - 2)", func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrDivisionByZero) }},
		{"0 ** -1", func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrDivisionByZero) }},
		{"sqrt(-1)", func(t *testing.T, err error) { assert.ErrorAs(t, err, &mathErr) }},
		{"log(0)", func(t *testing.T, err error) { assert.ErrorAs(t, err, &mathErr) }},
		{"(-8) ** 0.5", func(t *testing.T, err error) { assert.ErrorAs(t, err, &mathErr) }},
		{"", func(t *testing.T, err error) { assert.ErrorAs(t, err, &exprErr) }},
		{"2 +", func(t *testing.T, err error) { assert.ErrorAs(t, err, &exprErr) }},
		{"(1 + 2", func(t *testing.T, err error) { assert.ErrorContains(t, err, "missing closing parenthesis") }},
		{"2 # 3", func(t *testing.T, err error) { assert.ErrorContains(t, err, "invalid character") }},
		{"__import__(1)", func(t *testing.T, err error) { assert.ErrorContains(t, err, "unknown function") }},
		{"x + 1", func(t *testing.T, err error) { assert.ErrorContains(t, err, `unknown name "x"`) }},
		{"pow(2)", func(t *testing.T, err error) { assert.ErrorContains(t, err, "pow takes 2 arguments, got 1") }},
		{"1 2", func(t *testing.T, err error) { assert.ErrorContains(t, err, "unexpected") }},
		{"1.2.3", func(t *testing.T, err error) { assert.ErrorContains(t, err, "invalid number") }},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Calculate(tt.expr)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(9), FormatNumber(9.0))
	assert.Equal(t, int64(-4), FormatNumber(-4))
	assert.Equal(t, 3.333333, FormatNumber(10.0/3))
	assert.Equal(t, 0.5, FormatNumber(0.5))
}

// Integer arithmetic agrees with Go's evaluation of the same expression.
func TestProperty_CalculateIntegerArithmetic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.IntRange(-1000, 1000).Draw(t, "a")
		b := rapid.IntRange(-1000, 1000).Draw(t, "b")
		c := rapid.IntRange(-1000, 1000).Draw(t, "c")

		got, err := Calculate(fmt.Sprintf("%d + %d * (%d - %d)", a, b, c, a))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := float64(a + b*(c-a))
		if got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

// Division either reports division by zero or matches float division.
func TestProperty_CalculateDivision(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.IntRange(-1000, 1000).Draw(t, "a")
		b := rapid.IntRange(-5, 5).Draw(t, "b")

		got, err := Calculate(fmt.Sprintf("%d / (%d)", a, b))
		if b == 0 {
			if err == nil {
				t.Fatalf("expected division by zero")
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(got-float64(a)/float64(b)) > 1e-9 {
			t.Fatalf("got %v", got)
		}
	})
}
