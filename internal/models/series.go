package models

import (
	"errors"

	"github.com/SASlabgroup/microSWIFT-programmer/pkg/utils"
)

// ErrNoData серия пуста, среднее не определено
var ErrNoData = errors.New("no readings captured")

// SampleSeries упорядоченная серия отсчётов одной точки калибровки
type SampleSeries struct {
	Readings []int `json:"readings"` // Порядок вставки = порядок захвата
}

// SeriesStats статистика серии, всегда пересчитывается по всем отсчётам
type SeriesStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Stdev float64 `json:"stdev"`
}

// Append добавляет отсчёт в конец серии
func (s *SampleSeries) Append(reading int) {
	s.Readings = append(s.Readings, reading)
}

// Reset очищает серию целиком
func (s *SampleSeries) Reset() {
	s.Readings = nil
}

// Len количество отсчётов
func (s *SampleSeries) Len() int {
	return len(s.Readings)
}

// Stats считает среднее и выборочное СКО по текущим отсчётам.
// Для одного отсчёта СКО равно нулю, для пустой серии возвращается ErrNoData.
func (s *SampleSeries) Stats() (SeriesStats, error) {
	if len(s.Readings) == 0 {
		return SeriesStats{}, ErrNoData
	}

	values := utils.Ints(s.Readings)
	return SeriesStats{
		Count: len(values),
		Mean:  utils.Mean(values),
		Stdev: utils.Std(values),
	}, nil
}

// Clone возвращает независимую копию серии
func (s *SampleSeries) Clone() SampleSeries {
	if s.Readings == nil {
		return SampleSeries{}
	}
	readings := make([]int, len(s.Readings))
	copy(readings, s.Readings)
	return SampleSeries{Readings: readings}
}
