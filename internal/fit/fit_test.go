package fit

import (
	"errors"
	"math"
	"testing"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestPolyfit_LinearReferenceTable(t *testing.T) {
	xs := []float64{100, 250, 500, 1000}
	ys := []float64{10, 25, 50, 100}

	res, err := Polyfit(xs, ys, 1)
	if err != nil {
		t.Fatalf("polyfit: %v", err)
	}
	if len(res.Coefficients) != 2 {
		t.Fatalf("want 2 coefficients, got %v", res.Coefficients)
	}
	if !near(res.Coefficients[0], 0.1, 1e-9) || !near(res.Coefficients[1], 0, 1e-9) {
		t.Fatalf("want slope 0.1 intercept 0, got %v", res.Coefficients)
	}
	if res.RSquared == nil || !near(*res.RSquared, 1, 1e-12) {
		t.Fatalf("want R² = 1, got %v", res.RSquared)
	}
	if res.Equation != "0.1000x" {
		t.Fatalf("equation: %q", res.Equation)
	}
	if res.Points != 4 || res.Degree != 1 {
		t.Fatalf("metadata: %+v", res)
	}
}

func TestPolyfit_Cubic(t *testing.T) {
	// y = 2x³ - x + 5, точно восстанавливается по 5 точкам
	want := []float64{2, 0, -1, 5}
	xs := []float64{100, 250, 500, 750, 1000}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = Evaluate(want, x)
	}

	res, err := Polyfit(xs, ys, 3)
	if err != nil {
		t.Fatalf("polyfit: %v", err)
	}
	if res.RSquared != nil {
		t.Fatalf("R² only reported for linear fits")
	}
	for _, x := range xs {
		if got, exp := Evaluate(res.Coefficients, x), Evaluate(want, x); !near(got, exp, 1e-6*math.Abs(exp)) {
			t.Fatalf("at x=%v: want %v, got %v", x, exp, got)
		}
	}
}

func TestPolyfit_NoisyLinear(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2.1, 3.9, 6.2, 7.8, 10.1}

	res, err := Polyfit(xs, ys, 1)
	if err != nil {
		t.Fatalf("polyfit: %v", err)
	}
	// numpy.polyfit: [1.99, 0.05]
	if !near(res.Coefficients[0], 1.99, 1e-9) || !near(res.Coefficients[1], 0.05, 1e-9) {
		t.Fatalf("coefficients: %v", res.Coefficients)
	}
	if *res.RSquared <= 0.99 || *res.RSquared > 1 {
		t.Fatalf("R²: %v", *res.RSquared)
	}
}

func TestPolyfit_Errors(t *testing.T) {
	cases := []struct {
		name   string
		xs, ys []float64
		degree int
		want   error
	}{
		{"length mismatch", []float64{1, 2}, []float64{1}, 1, ErrLengthMismatch},
		{"too few points", []float64{1}, []float64{1}, 1, ErrTooFewPoints},
		{"cubic needs four points", []float64{1, 2, 3}, []float64{1, 2, 3}, 3, ErrTooFewPoints},
		{"duplicate x", []float64{5, 5, 5}, []float64{1, 2, 3}, 1, ErrTooFewPoints},
		{"flat y", []float64{1, 2, 3}, []float64{7, 7, 7}, 1, ErrUndefinedRSquared},
		{"degree zero", []float64{1, 2}, []float64{1, 2}, 0, ErrInvalidDegree},
		{"nan input", []float64{1, math.NaN()}, []float64{1, 2}, 1, ErrFitUndefined},
	}
	for _, c := range cases {
		_, err := Polyfit(c.xs, c.ys, c.degree)
		if !errors.Is(err, c.want) {
			t.Fatalf("%s: want %v, got %v", c.name, c.want, err)
		}
		if !errors.Is(err, ErrFitUndefined) {
			t.Fatalf("%s: error must wrap ErrFitUndefined", c.name)
		}
	}
}

func TestEvaluate(t *testing.T) {
	if got := Evaluate([]float64{1, -2, 3}, 2); got != 3 {
		t.Fatalf("x²-2x+3 at 2: want 3, got %v", got)
	}
	if got := Evaluate(nil, 10); got != 0 {
		t.Fatalf("empty polynomial: want 0, got %v", got)
	}
}

func TestFormatPolynomial(t *testing.T) {
	cases := []struct {
		coeffs []float64
		want   string
	}{
		{[]float64{0.1, 0}, "0.1000x"},
		{[]float64{2, 0, -0.5, 1}, "2.0000x^3 - 0.5000x + 1.0000"},
		{[]float64{-1.5, 3}, "-1.5000x + 3.0000"},
		{[]float64{1e-7, 2, 1e-9}, "2.0000x"},
		{[]float64{0, 0, 4.25}, "4.2500"},
		{[]float64{1e-8, -1e-8}, "0"},
		{[]float64{0.5, 0, 0}, "0.5000x^2"},
	}
	for _, c := range cases {
		if got := FormatPolynomial(c.coeffs); got != c.want {
			t.Fatalf("%v: want %q, got %q", c.coeffs, c.want, got)
		}
	}
}

func TestFormatRSquared(t *testing.T) {
	if got := FormatRSquared(0.99987); got != "R² = 0.9999" {
		t.Fatalf("got %q", got)
	}
}
