package calibration

import (
	"errors"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
	"github.com/SASlabgroup/microSWIFT-programmer/pkg/utils"
)

// DefaultThreshold допустимое отношение СКО к среднему
const DefaultThreshold = 0.01

// Validate проверяет повторяемость серии.
// Пустая серия даёт отдельный исход NoData, а не среднее 0.
// При mean > 0 точка годна, если stdev/mean <= threshold;
// при mean <= 0 годится только идеально ровная серия.
func Validate(stats models.SeriesStats, statsErr error, threshold float64) models.CaptureResult {
	result := models.CaptureResult{
		Count:     stats.Count,
		Threshold: threshold,
	}

	if errors.Is(statsErr, models.ErrNoData) || stats.Count == 0 {
		result.Count = 0
		result.Outcome = models.OutcomeNoData
		return result
	}

	// Результат уходит в JSON, NaN и Inf там недопустимы
	result.Mean = utils.SafeFloat(stats.Mean)
	result.Stdev = utils.SafeFloat(stats.Stdev)

	valid := false
	if result.Mean > 0 {
		result.RelStdev = result.Stdev / result.Mean
		valid = result.RelStdev <= threshold
	} else {
		valid = result.Stdev == 0
	}

	if valid {
		result.Outcome = models.OutcomeValid
	} else {
		result.Outcome = models.OutcomeInvalid
	}
	return result
}
