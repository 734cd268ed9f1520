package utils

import (
	"math"
)

// SafeFloat заменяет NaN и Inf нулём, чтобы значение можно было отдать в JSON
func SafeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}

// Mean вычисляет среднее значение
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}

	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// Std вычисляет выборочное стандартное отклонение (n-1).
// Для одного значения разброс равен нулю.
func Std(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	if len(data) == 1 {
		return 0
	}

	mean := Mean(data)
	sumSquares := 0.0

	for _, v := range data {
		diff := v - mean
		sumSquares += diff * diff
	}

	return math.Sqrt(sumSquares / float64(len(data)-1))
}

// Ints переводит целочисленные отсчёты в float64
func Ints(data []int) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// Abs возвращает абсолютное значение
func Abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
