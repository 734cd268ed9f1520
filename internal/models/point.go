package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PointState состояние точки калибровки
type PointState int

const (
	PointIdle PointState = iota
	PointSampling
	PointValid
	PointInvalid
)

var pointStateNames = map[PointState]string{
	PointIdle:     "idle",
	PointSampling: "sampling",
	PointValid:    "valid",
	PointInvalid:  "invalid",
}

func (s PointState) String() string {
	if name, ok := pointStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PointState(%d)", int(s))
}

func (s PointState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PointState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for state, n := range pointStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown point state %q", name)
}

// CaptureOutcome итог проверки захваченной серии
type CaptureOutcome string

const (
	OutcomeValid   CaptureOutcome = "valid"
	OutcomeInvalid CaptureOutcome = "invalid"
	OutcomeNoData  CaptureOutcome = "no_data"
)

// CaptureResult результат завершённого захвата точки
type CaptureResult struct {
	Count      int            `json:"count"`
	Mean       float64        `json:"mean"`
	Stdev      float64        `json:"stdev"`
	RelStdev   float64        `json:"rel_stdev"`
	Threshold  float64        `json:"threshold"`
	Outcome    CaptureOutcome `json:"outcome"`
	Partial    bool           `json:"partial"`         // Захват остановлен раньше цели
	Error      string         `json:"error,omitempty"` // Ошибка датчика, оборвавшая захват
	FinishedAt time.Time      `json:"finished_at"`
}

// Valid точка прошла проверку повторяемости
func (r CaptureResult) Valid() bool {
	return r.Outcome == OutcomeValid
}

// CalibrationPoint одна эталонная концентрация и её серия
type CalibrationPoint struct {
	Reference     float64        `json:"reference"`      // Концентрация эталона, NTU
	TargetSamples int            `json:"target_samples"` // Сколько отсчётов снимать
	Series        SampleSeries   `json:"series"`
	State         PointState     `json:"state"`
	Complete      bool           `json:"complete"`
	Last          *CaptureResult `json:"last,omitempty"`
}

// Reset сбрасывает захваченные данные, эталон и цель остаются
func (p *CalibrationPoint) Reset() {
	p.Series.Reset()
	p.State = PointIdle
	p.Complete = false
	p.Last = nil
}

// HasData в точке есть захваченные отсчёты
func (p *CalibrationPoint) HasData() bool {
	return p.Series.Len() > 0
}

// Clone копия точки для снимков состояния
func (p *CalibrationPoint) Clone() CalibrationPoint {
	c := *p
	c.Series = p.Series.Clone()
	if p.Last != nil {
		last := *p.Last
		c.Last = &last
	}
	return c
}
