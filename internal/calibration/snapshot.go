package calibration

import (
	"time"

	"github.com/google/uuid"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
)

// PointView точка в снимке состояния
type PointView struct {
	Index  int  `json:"index"`
	Active bool `json:"active"` // Входит в первые count точек
	models.CalibrationPoint
}

// Snapshot копия состояния сессии для отображения
type Snapshot struct {
	Count       int               `json:"count"`
	MaxPoints   int               `json:"max_points"`
	Threshold   float64           `json:"threshold"`
	Interval    time.Duration     `json:"interval_ns"`
	FitDegree   int               `json:"fit_degree"`
	CanFit      bool              `json:"can_fit"`
	ActiveIndex *int              `json:"active_index,omitempty"`
	ActiveRun   *uuid.UUID        `json:"active_run,omitempty"`
	Points      []PointView       `json:"points"`
	LastFit     *models.FitResult `json:"last_fit,omitempty"`
}

// Snapshot возвращает независимую копию текущего состояния
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Count:     s.count,
		MaxPoints: MaxPoints,
		Threshold: s.threshold,
		Interval:  s.interval,
		FitDegree: s.degree,
		CanFit:    s.canFit,
		Points:    make([]PointView, len(s.points)),
	}
	if s.active != nil {
		index, tag := s.active.index, s.active.tag
		snap.ActiveIndex = &index
		snap.ActiveRun = &tag
	}
	if s.lastFit != nil {
		f := *s.lastFit
		f.Coefficients = append([]float64(nil), s.lastFit.Coefficients...)
		snap.LastFit = &f
	}
	for i := range s.points {
		snap.Points[i] = PointView{
			Index:            i,
			Active:           i < s.count,
			CalibrationPoint: s.points[i].Clone(),
		}
	}
	return snap
}
