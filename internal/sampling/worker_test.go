package sampling

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/sensor"
)

func collect(t *testing.T, events <-chan Event) ([]int, *Completion) {
	t.Helper()

	var (
		readings   []int
		completion *Completion
	)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if completion == nil {
					t.Fatalf("channel closed without completion")
				}
				return readings, completion
			}
			switch ev.Kind {
			case EventReading:
				if completion != nil {
					t.Fatalf("reading after completion")
				}
				readings = append(readings, ev.Reading)
			case EventCompletion:
				if completion != nil {
					t.Fatalf("second completion")
				}
				completion = ev.Completion
			}
		case <-timeout:
			t.Fatalf("worker did not finish")
		}
	}
}

func TestWorker_FullRun(t *testing.T) {
	w := NewWorker(sensor.NewSequenceSource([]int{10, 12, 14, 16}, false), nil)
	if err := w.Configure(4, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}

	tag := uuid.New()
	events, err := w.Start(context.Background(), tag)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	readings, c := collect(t, events)

	if len(readings) != 4 || c.Count != 4 {
		t.Fatalf("want 4 readings, got %v (count %d)", readings, c.Count)
	}
	if c.Cancelled || c.NoData || c.Err != nil {
		t.Fatalf("unexpected completion flags: %+v", c)
	}
	if c.Mean != 13 {
		t.Fatalf("mean: want 13, got %v", c.Mean)
	}
	// выборочное стандартное отклонение 10,12,14,16
	if want := math.Sqrt(20.0 / 3.0); math.Abs(c.Stdev-want) > 1e-9 {
		t.Fatalf("stdev: want %v, got %v", want, c.Stdev)
	}
	if w.Running() {
		t.Fatalf("worker still running after completion")
	}
}

func TestWorker_EventsCarryTag(t *testing.T) {
	w := NewWorker(sensor.NewSequenceSource([]int{1, 2}, false), nil)
	_ = w.Configure(2, 0)

	tag := uuid.New()
	events, _ := w.Start(context.Background(), tag)
	for ev := range events {
		if ev.Tag != tag {
			t.Fatalf("event tag %s, want %s", ev.Tag, tag)
		}
	}
}

func TestWorker_CancelAfterSomeReadings(t *testing.T) {
	feed := make(chan int)
	src := sensor.SourceFunc(func(ctx context.Context) (int, error) {
		select {
		case v := <-feed:
			return v, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})

	w := NewWorker(src, nil)
	_ = w.Configure(10, 0)
	events, err := w.Start(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	feed <- 100
	feed <- 200
	feed <- 300
	w.Cancel()

	readings, c := collect(t, events)
	if len(readings) != 3 || c.Count != 3 {
		t.Fatalf("want 3 readings, got %v", readings)
	}
	if !c.Cancelled {
		t.Fatalf("completion not marked cancelled")
	}
	if c.Mean != 200 {
		t.Fatalf("partial mean: want 200, got %v", c.Mean)
	}
}

func TestWorker_CancelDuringInterval(t *testing.T) {
	w := NewWorker(sensor.NewSequenceSource([]int{5, 5, 5}, false), nil)
	_ = w.Configure(3, time.Hour)

	events, _ := w.Start(context.Background(), uuid.New())
	first := <-events
	if first.Kind != EventReading || first.Reading != 5 {
		t.Fatalf("first event: %+v", first)
	}

	start := time.Now()
	w.Cancel()
	_, c := collect(t, events)
	if time.Since(start) > time.Second {
		t.Fatalf("cancel did not interrupt the wait")
	}
	if c.Count != 1 || !c.Cancelled {
		t.Fatalf("want 1 cancelled reading, got %+v", c)
	}
}

func TestWorker_CancelBeforeFirstReading(t *testing.T) {
	src := sensor.SourceFunc(func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	w := NewWorker(src, nil)
	_ = w.Configure(5, 0)

	events, _ := w.Start(context.Background(), uuid.New())
	w.Cancel()

	readings, c := collect(t, events)
	if len(readings) != 0 || !c.NoData || c.Count != 0 {
		t.Fatalf("want no-data completion, got %+v", c)
	}
	if !c.Cancelled {
		t.Fatalf("empty run after cancel must be marked cancelled")
	}
}

func TestWorker_SensorFailure(t *testing.T) {
	w := NewWorker(sensor.NewSequenceSource([]int{7, 9}, false), nil)
	_ = w.Configure(5, 0)

	events, _ := w.Start(context.Background(), uuid.New())
	readings, c := collect(t, events)

	if len(readings) != 2 {
		t.Fatalf("want 2 readings before failure, got %v", readings)
	}
	if !errors.Is(c.Err, sensor.ErrExhausted) {
		t.Fatalf("want ErrExhausted, got %v", c.Err)
	}
	if c.Cancelled {
		t.Fatalf("sensor failure is not a cancellation")
	}
	if c.Mean != 8 {
		t.Fatalf("mean over collected readings: want 8, got %v", c.Mean)
	}
}

func TestWorker_SingleReading(t *testing.T) {
	w := NewWorker(sensor.NewSequenceSource([]int{321}, false), nil)
	_ = w.Configure(1, time.Hour)

	events, _ := w.Start(context.Background(), uuid.New())
	_, c := collect(t, events)
	if c.Count != 1 || c.Mean != 321 || c.Stdev != 0 {
		t.Fatalf("single reading: %+v", c)
	}
}

func TestWorker_RejectsSecondStart(t *testing.T) {
	src := sensor.SourceFunc(func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	w := NewWorker(src, nil)
	_ = w.Configure(1, 0)

	events, _ := w.Start(context.Background(), uuid.New())
	if _, err := w.Start(context.Background(), uuid.New()); !errors.Is(err, ErrWorkerRunning) {
		t.Fatalf("want ErrWorkerRunning, got %v", err)
	}
	if err := w.Configure(3, 0); !errors.Is(err, ErrWorkerRunning) {
		t.Fatalf("configure while running: want ErrWorkerRunning, got %v", err)
	}

	w.Cancel()
	collect(t, events)
	w.Wait()

	if _, err := w.Start(context.Background(), uuid.New()); err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
	w.Cancel()
	w.Wait()
}

func TestWorker_ConfigureValidation(t *testing.T) {
	w := NewWorker(sensor.NewRandomSource(1), nil)
	if err := w.Configure(0, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("zero samples: want ErrInvalidConfig, got %v", err)
	}
	if err := w.Configure(5, -time.Second); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("negative interval: want ErrInvalidConfig, got %v", err)
	}
}
