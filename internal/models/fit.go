package models

// Orientation какую величину кривая считает аргументом
type Orientation string

const (
	// ReferenceToReading x = концентрация эталона, y = среднее показание датчика
	ReferenceToReading Orientation = "reference_to_reading"
	// ReadingToReference x = показание датчика, y = концентрация (оси графика калибровки)
	ReadingToReference Orientation = "reading_to_reference"
)

// Valid известная ориентация
func (o Orientation) Valid() bool {
	return o == ReferenceToReading || o == ReadingToReference
}

// FitResult коэффициенты полинома, старшая степень первой
type FitResult struct {
	Degree       int         `json:"degree"`
	Orientation  Orientation `json:"orientation,omitempty"`
	Coefficients []float64   `json:"coefficients"`
	RSquared     *float64    `json:"r_squared,omitempty"` // Только для линейной аппроксимации
	Equation     string      `json:"equation"`
	Points       int         `json:"points"`
}

// ExportRow одна строка выгрузки: концентрация и отсчёт
type ExportRow struct {
	Reference float64 `json:"reference"`
	Reading   int     `json:"reading"`
}
