package sampling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/sensor"
)

const (
	DefaultSampleCount = 10
	DefaultInterval    = time.Second
	MaxSampleCount     = 10000
)

var (
	ErrWorkerRunning = errors.New("sampling worker already running")
	ErrInvalidConfig = errors.New("invalid sampling configuration")
)

// EventKind тип события воркера
type EventKind int

const (
	EventReading EventKind = iota
	EventCompletion
)

// Event событие захвата. Для одного запуска: сначала все отсчёты,
// затем ровно одно завершение, после чего канал закрывается.
type Event struct {
	Tag        uuid.UUID
	Kind       EventKind
	Reading    int
	Completion *Completion
}

// Completion итог запуска по тем отсчётам, что успели снять
type Completion struct {
	Count     int
	Mean      float64
	Stdev     float64
	NoData    bool  // Ни одного отсчёта, среднее не определено
	Cancelled bool  // Остановлен до достижения цели
	Err       error // Ошибка датчика, оборвавшая запуск
}

// Worker снимает заданное число отсчётов с фиксированным интервалом
type Worker struct {
	source sensor.Source
	logger *slog.Logger

	mu          sync.Mutex
	sampleCount int
	interval    time.Duration
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewWorker создаёт воркер с параметрами по умолчанию
func NewWorker(source sensor.Source, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		source:      source,
		logger:      logger.With("component", "sampling_worker"),
		sampleCount: DefaultSampleCount,
		interval:    DefaultInterval,
	}
}

// Configure задаёт параметры следующего запуска
func (w *Worker) Configure(sampleCount int, interval time.Duration) error {
	if sampleCount < 1 || sampleCount > MaxSampleCount {
		return fmt.Errorf("%w: sample count %d outside 1..%d", ErrInvalidConfig, sampleCount, MaxSampleCount)
	}
	if interval < 0 {
		return fmt.Errorf("%w: negative interval %s", ErrInvalidConfig, interval)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.runningLocked() {
		return ErrWorkerRunning
	}
	w.sampleCount = sampleCount
	w.interval = interval
	return nil
}

// Running идёт ли сейчас захват
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runningLocked()
}

func (w *Worker) runningLocked() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Start запускает захват в отдельной горутине
func (w *Worker) Start(ctx context.Context, tag uuid.UUID) (<-chan Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.runningLocked() {
		return nil, ErrWorkerRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	// Буфер на все события запуска: воркер никогда не ждёт потребителя
	events := make(chan Event, w.sampleCount+1)
	done := make(chan struct{})

	w.cancel = cancel
	w.done = done

	go w.run(runCtx, cancel, tag, w.sampleCount, w.interval, events, done)

	w.logger.Info("захват запущен", "run", tag, "samples", w.sampleCount, "interval", w.interval)
	return events, nil
}

// Cancel просит текущий запуск остановиться
func (w *Worker) Cancel() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait ждёт, пока текущий запуск отдаст завершение
func (w *Worker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (w *Worker) run(
	ctx context.Context,
	cancel context.CancelFunc,
	tag uuid.UUID,
	count int,
	interval time.Duration,
	events chan<- Event,
	done chan<- struct{},
) {
	defer close(events)
	defer close(done)
	defer cancel()

	var (
		series  models.SampleSeries
		readErr error
	)

	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}

		v, err := w.source.ReadOne(ctx)
		if err != nil {
			if ctx.Err() == nil {
				readErr = err
				w.logger.Warn("ошибка датчика, захват прерван", "run", tag, "collected", series.Len(), "error", err)
			}
			break
		}

		series.Append(v)
		events <- Event{Tag: tag, Kind: EventReading, Reading: v}

		// После последнего отсчёта не ждём
		if i < count-1 && !sleepCtx(ctx, interval) {
			break
		}
	}

	completion := &Completion{
		Count:     series.Len(),
		Cancelled: readErr == nil && series.Len() < count,
		Err:       readErr,
	}
	stats, err := series.Stats()
	if errors.Is(err, models.ErrNoData) {
		completion.NoData = true
	} else {
		completion.Mean = stats.Mean
		completion.Stdev = stats.Stdev
	}

	events <- Event{Tag: tag, Kind: EventCompletion, Completion: completion}

	w.logger.Info("захват завершён",
		"run", tag,
		"count", completion.Count,
		"mean", completion.Mean,
		"stdev", completion.Stdev,
		"cancelled", completion.Cancelled,
	)
}

// sleepCtx ждёт d или отмены; false, если отменили
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
