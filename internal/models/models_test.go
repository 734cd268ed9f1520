package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestSampleSeries_Stats(t *testing.T) {
	var s SampleSeries
	if _, err := s.Stats(); !errors.Is(err, ErrNoData) {
		t.Fatalf("empty series: want ErrNoData, got %v", err)
	}

	s.Append(7)
	st, err := s.Stats()
	if err != nil || st.Mean != 7 || st.Stdev != 0 || st.Count != 1 {
		t.Fatalf("single reading: %+v %v", st, err)
	}

	for _, r := range []int{9, 11, 13} {
		s.Append(r)
	}
	st, _ = s.Stats()
	if st.Mean != 10 {
		t.Fatalf("mean: %v", st.Mean)
	}
	if want := math.Sqrt(20.0 / 3.0); math.Abs(st.Stdev-want) > 1e-12 {
		t.Fatalf("stdev: got %v want %v", st.Stdev, want)
	}

	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("reset left %d readings", s.Len())
	}
}

func TestCalibrationPoint_CloneIsIndependent(t *testing.T) {
	p := CalibrationPoint{Reference: 250, TargetSamples: 3, State: PointValid, Complete: true,
		Last: &CaptureResult{Count: 2, Outcome: OutcomeValid}}
	p.Series.Append(1)
	p.Series.Append(2)

	c := p.Clone()
	c.Series.Readings[0] = 99
	c.Last.Count = 42

	if p.Series.Readings[0] != 1 || p.Last.Count != 2 {
		t.Fatalf("clone shares memory with source point: %+v", p)
	}

	p.Reset()
	if p.HasData() || p.Complete || p.Last != nil || p.State != PointIdle {
		t.Fatalf("reset: %+v", p)
	}
	if p.Reference != 250 || p.TargetSamples != 3 {
		t.Fatalf("reset must keep reference and target: %+v", p)
	}
}

func TestPointState_JSON(t *testing.T) {
	for _, st := range []PointState{PointIdle, PointSampling, PointValid, PointInvalid} {
		data, err := json.Marshal(st)
		if err != nil {
			t.Fatalf("marshal %v: %v", st, err)
		}
		var back PointState
		if err := json.Unmarshal(data, &back); err != nil || back != st {
			t.Fatalf("%s: got %v, %v", data, back, err)
		}
	}

	var st PointState
	if err := json.Unmarshal([]byte(`"draining"`), &st); err == nil {
		t.Fatalf("unknown state must fail")
	}
}

func TestOrientation_Valid(t *testing.T) {
	if !ReferenceToReading.Valid() || !ReadingToReference.Valid() {
		t.Fatalf("known orientations must be valid")
	}
	if Orientation("sideways").Valid() {
		t.Fatalf("unknown orientation accepted")
	}
}

func TestDisplayEvent_ZeroReadingIsEncoded(t *testing.T) {
	data, err := json.Marshal(DisplayEvent{Type: EventReading, PointIndex: 2, Reading: 0})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	v, ok := raw["reading"]
	if !ok || v.(float64) != 0 {
		t.Fatalf("zero reading dropped from payload: %s", data)
	}
}
