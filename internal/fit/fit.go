package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
	"github.com/SASlabgroup/microSWIFT-programmer/pkg/utils"
)

// MaxDegree самая высокая поддерживаемая степень полинома
const MaxDegree = 6

var (
	// ErrFitUndefined аппроксимацию построить нельзя
	ErrFitUndefined = errors.New("fit undefined")

	ErrLengthMismatch    = fmt.Errorf("%w: xs and ys differ in length", ErrFitUndefined)
	ErrTooFewPoints      = fmt.Errorf("%w: not enough distinct points for degree", ErrFitUndefined)
	ErrSingular          = fmt.Errorf("%w: normal equations are singular", ErrFitUndefined)
	ErrUndefinedRSquared = fmt.Errorf("%w: all y values identical, R² undefined", ErrFitUndefined)
	ErrInvalidDegree     = fmt.Errorf("%w: unsupported degree", ErrFitUndefined)
)

// Polyfit строит полином степени degree методом наименьших квадратов.
// Коэффициенты возвращаются от старшей степени к свободному члену.
// Для линейной аппроксимации дополнительно считается R².
func Polyfit(xs, ys []float64, degree int) (models.FitResult, error) {
	if degree < 1 || degree > MaxDegree {
		return models.FitResult{}, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidDegree, degree, MaxDegree)
	}
	if len(xs) != len(ys) {
		return models.FitResult{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(xs), len(ys))
	}
	if len(xs) <= degree || distinct(xs) <= degree {
		return models.FitResult{}, fmt.Errorf("%w: %d points (%d distinct) for degree %d",
			ErrTooFewPoints, len(xs), distinct(xs), degree)
	}
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsInf(xs[i], 0) || math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			return models.FitResult{}, fmt.Errorf("%w: non-finite input at %d", ErrFitUndefined, i)
		}
	}

	// Масштабируем x к |x| <= 1, иначе нормальная матрица плохо обусловлена
	scale := 0.0
	for _, x := range xs {
		scale = math.Max(scale, utils.Abs(x))
	}
	if scale == 0 {
		scale = 1
	}

	n := degree + 1
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
	}
	b := make([]float64, n)

	// A = VᵀV, b = Vᵀy, V: матрица Вандермонда по степеням 0..degree
	for k := range xs {
		u := xs[k] / scale
		powers := make([]float64, 2*degree+1)
		powers[0] = 1
		for p := 1; p < len(powers); p++ {
			powers[p] = powers[p-1] * u
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				a[i][j] += powers[i+j]
			}
			b[i] += powers[i] * ys[k]
		}
	}

	sol, err := solve(a, b)
	if err != nil {
		return models.FitResult{}, err
	}

	// Обратно к исходному x и порядок от старшей степени
	coeffs := make([]float64, n)
	for p := 0; p < n; p++ {
		coeffs[degree-p] = sol[p] / math.Pow(scale, float64(p))
	}

	result := models.FitResult{
		Degree:       degree,
		Coefficients: coeffs,
		Equation:     FormatPolynomial(coeffs),
		Points:       len(xs),
	}

	if degree == 1 {
		r2, err := RSquared(xs, ys, coeffs)
		if err != nil {
			return models.FitResult{}, err
		}
		result.RSquared = &r2
	}

	return result, nil
}

// RSquared коэффициент детерминации 1 - SS_res/SS_tot
func RSquared(xs, ys, coeffs []float64) (float64, error) {
	if len(xs) != len(ys) {
		return 0, ErrLengthMismatch
	}

	mean := utils.Mean(ys)
	var ssRes, ssTot float64
	for i := range xs {
		r := ys[i] - Evaluate(coeffs, xs[i])
		ssRes += r * r
		d := ys[i] - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		return 0, ErrUndefinedRSquared
	}
	return 1 - ssRes/ssTot, nil
}

// Evaluate значение полинома по схеме Горнера
func Evaluate(coeffs []float64, x float64) float64 {
	y := 0.0
	for _, c := range coeffs {
		y = y*x + c
	}
	return y
}

// solve решает систему методом Гаусса с выбором главного элемента
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	aug := make([][]float64, n)
	norm := 0.0
	for i := 0; i < n; i++ {
		aug[i] = make([]float64, n+1)
		copy(aug[i], a[i])
		aug[i][n] = b[i]
		for j := 0; j < n; j++ {
			norm = math.Max(norm, utils.Abs(a[i][j]))
		}
	}
	tol := norm * 1e-12

	for col := 0; col < n; col++ {
		pivot := col
		maxAbs := utils.Abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if v := utils.Abs(aug[r][col]); v > maxAbs {
				maxAbs = v
				pivot = r
			}
		}
		if maxAbs <= tol {
			return nil, fmt.Errorf("%w: zero pivot in column %d", ErrSingular, col)
		}
		if pivot != col {
			aug[col], aug[pivot] = aug[pivot], aug[col]
		}
		for r := col + 1; r < n; r++ {
			factor := aug[r][col] / aug[col][col]
			for c := col; c <= n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := aug[i][n]
		for j := i + 1; j < n; j++ {
			sum -= aug[i][j] * x[j]
		}
		x[i] = sum / aug[i][i]
	}
	return x, nil
}

func distinct(xs []float64) int {
	seen := make(map[float64]struct{}, len(xs))
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}
