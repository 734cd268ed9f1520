package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/fit"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/sampling"
)

// MaxPoints размер арены точек калибровки
const MaxPoints = 10

// DisplaySink получает обновления для отображения. Вызывается из горутины
// захвата и не должен блокироваться.
type DisplaySink interface {
	ReadingCaptured(index int, reading int)
	CaptureCompleted(index int, result models.CaptureResult)
	ReadinessChanged(canFit bool)
}

type nopSink struct{}

func (nopSink) ReadingCaptured(int, int)                    {}
func (nopSink) CaptureCompleted(int, models.CaptureResult) {}
func (nopSink) ReadinessChanged(bool)                      {}

// Config начальные параметры сессии
type Config struct {
	Count            int
	References       []float64
	SampleCount      int
	Interval         time.Duration
	Threshold        float64
	FitDegree        int
	UniqueReferences bool
}

// DefaultConfig четыре эталона 100/250/500/1000 NTU
func DefaultConfig() Config {
	return Config{
		Count:            4,
		References:       DefaultReferences(nil, MaxPoints),
		SampleCount:      sampling.DefaultSampleCount,
		Interval:         sampling.DefaultInterval,
		Threshold:        DefaultThreshold,
		FitDegree:        1,
		UniqueReferences: true,
	}
}

// run один запуск захвата; tag отличает его события от устаревших
type run struct {
	index int
	tag   uuid.UUID
	done  chan struct{} // Закрывается, когда потребитель событий вышел
}

// Session конечный автомат калибровки: точки, активный захват, готовность к аппроксимации
type Session struct {
	opMu sync.Mutex // Сериализует управляющие операции
	mu   sync.Mutex // Защищает состояние ниже

	points    [MaxPoints]models.CalibrationPoint
	count     int
	threshold float64
	interval  time.Duration
	degree    int
	unique    bool
	canFit    bool
	active    *run
	last      *run // Последний запуск; его потребитель мог ещё не разослать уведомления
	lastFit   *models.FitResult
	closed    bool

	worker *sampling.Worker
	sink   DisplaySink
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession создаёт сессию. sink может быть nil.
func NewSession(cfg Config, worker *sampling.Worker, sink DisplaySink, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = nopSink{}
	}

	if cfg.Count < 1 || cfg.Count > MaxPoints {
		return nil, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidCount, cfg.Count, MaxPoints)
	}
	if cfg.SampleCount < 1 || cfg.SampleCount > sampling.MaxSampleCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleCount, cfg.SampleCount)
	}
	if err := checkThreshold(cfg.Threshold); err != nil {
		return nil, err
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("%w: negative interval %s", sampling.ErrInvalidConfig, cfg.Interval)
	}
	if cfg.FitDegree < 1 || cfg.FitDegree > fit.MaxDegree {
		return nil, fmt.Errorf("%w: degree %d", fit.ErrInvalidDegree, cfg.FitDegree)
	}

	refs := DefaultReferences(cfg.References, MaxPoints)
	for _, r := range refs {
		if err := checkReference(r); err != nil {
			return nil, err
		}
	}
	if cfg.UniqueReferences && hasDuplicates(refs[:cfg.Count]) {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateReference, refs[:cfg.Count])
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		count:     cfg.Count,
		threshold: cfg.Threshold,
		interval:  cfg.Interval,
		degree:    cfg.FitDegree,
		unique:    cfg.UniqueReferences,
		worker:    worker,
		sink:      sink,
		logger:    logger.With("component", "calibration_session"),
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := range s.points {
		s.points[i] = models.CalibrationPoint{
			Reference:     refs[i],
			TargetSamples: cfg.SampleCount,
		}
	}

	s.logger.Info("сессия калибровки создана",
		"points", cfg.Count, "threshold", cfg.Threshold, "interval", cfg.Interval)
	return s, nil
}

// DefaultReferences дополняет список эталонов до n значений,
// продолжая последний шаг (100, 250, 500, 1000 → 1500, 2000, ...)
func DefaultReferences(base []float64, n int) []float64 {
	if len(base) == 0 {
		base = []float64{100, 250, 500, 1000}
	}
	out := make([]float64, n)
	copy(out, base)
	if len(base) >= n {
		return out
	}

	last := base[len(base)-1]
	step := last
	if len(base) > 1 {
		step = last - base[len(base)-2]
	}
	if step <= 0 {
		step = 1
	}
	for i := len(base); i < n; i++ {
		last += step
		out[i] = last
	}
	return out
}

// StartCapture запускает захват точки index. Идущий захват другой точки
// останавливается, его завершение отбрасывается.
func (s *Session) StartCapture(index int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if index < 0 || index >= s.count {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d not in 0..%d", ErrIndexOutOfRange, index, s.count-1)
	}
	s.mu.Unlock()

	s.stopActive(true)

	s.mu.Lock()
	target := s.points[index].TargetSamples
	s.mu.Unlock()

	if err := s.worker.Configure(target, s.interval); err != nil {
		return fmt.Errorf("configure worker: %w", err)
	}

	r := &run{index: index, tag: uuid.New(), done: make(chan struct{})}

	s.mu.Lock()
	p := &s.points[index]
	p.Reset()
	p.State = models.PointSampling
	s.active = r
	s.last = r
	s.lastFit = nil
	changed := s.recomputeReadinessLocked()
	canFit := s.canFit
	s.mu.Unlock()

	events, err := s.worker.Start(s.ctx, r.tag)
	if err != nil {
		s.mu.Lock()
		s.points[index].State = models.PointIdle
		s.active = nil
		s.mu.Unlock()
		close(r.done)
		return fmt.Errorf("start worker: %w", err)
	}
	go s.consume(r, events)

	s.logger.Info("захват точки начат", "index", index, "run", r.tag, "samples", target)
	if changed {
		s.sink.ReadinessChanged(canFit)
	}
	return nil
}

// StopCapture останавливает идущий захват; частичная серия проверяется как обычно
func (s *Session) StopCapture() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	s.stopActive(false)
	return nil
}

// ResetCapture очищает точку index; если она снимается, захват отменяется
// без применения результата
func (s *Session) ResetCapture(index int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if index < 0 || index >= MaxPoints {
		return fmt.Errorf("%w: %d not in 0..%d", ErrIndexOutOfRange, index, MaxPoints-1)
	}

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || active.index == index {
		// Без активного захвата stopActive только дожидается уведомлений прошлого
		s.stopActive(true)
	}

	s.mu.Lock()
	s.points[index].Reset()
	s.lastFit = nil
	changed := s.recomputeReadinessLocked()
	canFit := s.canFit
	s.mu.Unlock()

	s.logger.Info("точка сброшена", "index", index)
	if changed {
		s.sink.ReadinessChanged(canFit)
	}
	return nil
}

// Resize меняет число активных точек. Точки за границей сохраняют данные.
func (s *Session) Resize(n int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if n < 1 || n > MaxPoints {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidCount, n, MaxPoints)
	}

	s.mu.Lock()
	busy := s.active != nil
	s.mu.Unlock()
	if busy {
		return ErrBusy
	}
	s.waitConsumer()

	s.mu.Lock()
	if s.unique {
		refs := make([]float64, n)
		for i := 0; i < n; i++ {
			refs[i] = s.points[i].Reference
		}
		if hasDuplicates(refs) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrDuplicateReference, refs)
		}
	}
	s.count = n
	s.lastFit = nil
	changed := s.recomputeReadinessLocked()
	canFit := s.canFit
	s.mu.Unlock()

	s.logger.Info("число точек изменено", "count", n)
	if changed {
		s.sink.ReadinessChanged(canFit)
	}
	return nil
}

// SetReference задаёт концентрацию эталона. Разрешено только для точки без данных.
func (s *Session) SetReference(index int, value float64) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if index < 0 || index >= MaxPoints {
		return fmt.Errorf("%w: %d not in 0..%d", ErrIndexOutOfRange, index, MaxPoints-1)
	}
	if err := checkReference(value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.points[index]
	if p.State == models.PointSampling {
		return ErrBusy
	}
	if p.HasData() {
		return fmt.Errorf("%w: point %d", ErrPointHasData, index)
	}
	if s.unique && index < s.count {
		for i := 0; i < s.count; i++ {
			if i != index && s.points[i].Reference == value {
				return fmt.Errorf("%w: %v at point %d", ErrDuplicateReference, value, i)
			}
		}
	}

	p.Reference = value
	s.lastFit = nil
	return nil
}

// SetTargetSamples задаёт число отсчётов для следующего захвата точки
func (s *Session) SetTargetSamples(index int, n int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if index < 0 || index >= MaxPoints {
		return fmt.Errorf("%w: %d not in 0..%d", ErrIndexOutOfRange, index, MaxPoints-1)
	}
	if n < 1 || n > sampling.MaxSampleCount {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidSampleCount, n, sampling.MaxSampleCount)
	}

	s.mu.Lock()
	s.points[index].TargetSamples = n
	s.mu.Unlock()
	return nil
}

// SetThreshold порог относительного СКО для следующих завершений
func (s *Session) SetThreshold(threshold float64) error {
	if err := checkThreshold(threshold); err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()
	return nil
}

// CanFit все активные точки готовы и их больше одной
func (s *Session) CanFit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canFit
}

// Fit строит калибровочную кривую по средним готовых точек.
// degree 0 берёт степень из конфигурации, пустая ориентация означает эталон→показание.
func (s *Session) Fit(degree int, orientation models.Orientation) (models.FitResult, error) {
	if orientation == "" {
		orientation = models.ReferenceToReading
	}
	if !orientation.Valid() {
		return models.FitResult{}, fmt.Errorf("%w: %q", ErrInvalidOrientation, orientation)
	}

	// Точки не меняются до сохранения lastFit
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if !s.canFit {
		s.mu.Unlock()
		return models.FitResult{}, ErrNotReady
	}
	if degree == 0 {
		degree = s.degree
	}
	refs := make([]float64, s.count)
	means := make([]float64, s.count)
	for i := 0; i < s.count; i++ {
		refs[i] = s.points[i].Reference
		means[i] = s.points[i].Last.Mean
	}
	s.mu.Unlock()

	xs, ys := refs, means
	if orientation == models.ReadingToReference {
		xs, ys = means, refs
	}

	result, err := fit.Polyfit(xs, ys, degree)
	if err != nil {
		s.logger.Warn("аппроксимация не построена", "degree", degree, "error", err)
		return models.FitResult{}, err
	}
	result.Orientation = orientation

	s.mu.Lock()
	stored := result
	s.lastFit = &stored
	s.mu.Unlock()

	s.logger.Info("калибровочная кривая построена", "degree", degree, "equation", result.Equation)
	return result, nil
}

// ExportSamples строки (эталон, отсчёт) готовых активных точек по возрастанию эталона
func (s *Session) ExportSamples() []models.ExportRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]models.ExportRow, 0)
	for i := 0; i < s.count; i++ {
		p := &s.points[i]
		if !p.Complete {
			continue
		}
		for _, reading := range p.Series.Readings {
			rows = append(rows, models.ExportRow{Reference: p.Reference, Reading: reading})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Reference < rows[j].Reference
	})
	return rows
}

// Close останавливает захват; после этого новые захваты не запускаются
func (s *Session) Close() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stopActive(true)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	s.logger.Info("сессия калибровки закрыта")
}

// stopActive отменяет текущий захват и ждёт, пока его события будут разобраны.
// discard: завершение не применяется, точка возвращается в Idle с частичными отсчётами.
// Вызывается под opMu.
func (s *Session) stopActive(discard bool) {
	s.mu.Lock()
	r := s.active
	if r == nil {
		s.mu.Unlock()
		// Завершение уже применено, но уведомления и воркер могли ещё не закончиться
		s.waitConsumer()
		return
	}
	if discard {
		s.active = nil
		s.points[r.index].State = models.PointIdle
	}
	s.mu.Unlock()

	s.worker.Cancel()
	<-r.done
	s.worker.Wait()

	s.logger.Info("захват остановлен", "index", r.index, "run", r.tag, "discarded", discard)
}

// waitConsumer ждёт, пока потребитель последнего запуска разошлёт уведомления
// и воркер выйдет. Только без активного захвата, под opMu.
func (s *Session) waitConsumer() {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last != nil {
		<-last.done
	}
	s.worker.Wait()
}

func (s *Session) consume(r *run, events <-chan sampling.Event) {
	defer close(r.done)

	for ev := range events {
		switch ev.Kind {
		case sampling.EventReading:
			s.applyReading(ev)
		case sampling.EventCompletion:
			s.applyCompletion(ev)
		}
	}
}

func (s *Session) applyReading(ev sampling.Event) {
	s.mu.Lock()
	if s.active == nil || s.active.tag != ev.Tag {
		s.mu.Unlock()
		s.logger.Debug("устаревший отсчёт отброшен", "run", ev.Tag)
		return
	}
	index := s.active.index
	s.points[index].Series.Append(ev.Reading)
	s.mu.Unlock()

	s.sink.ReadingCaptured(index, ev.Reading)
}

func (s *Session) applyCompletion(ev sampling.Event) {
	s.mu.Lock()
	if s.active == nil || s.active.tag != ev.Tag {
		s.mu.Unlock()
		s.logger.Debug("устаревшее завершение отброшено", "run", ev.Tag)
		return
	}

	index := s.active.index
	p := &s.points[index]

	// Статистика всегда по полной текущей серии точки
	stats, err := p.Series.Stats()
	result := Validate(stats, err, s.threshold)
	if c := ev.Completion; c != nil {
		result.Partial = c.Cancelled || c.Err != nil
		if c.Err != nil {
			result.Error = c.Err.Error()
		}
	}
	result.FinishedAt = time.Now().UTC()

	p.Last = &result
	p.Complete = result.Valid()
	if p.Complete {
		p.State = models.PointValid
	} else {
		p.State = models.PointInvalid
	}
	s.active = nil
	changed := s.recomputeReadinessLocked()
	canFit := s.canFit
	s.mu.Unlock()

	s.logger.Info("захват точки завершён",
		"index", index,
		"outcome", result.Outcome,
		"mean", result.Mean,
		"stdev", result.Stdev,
		"rel_stdev", result.RelStdev,
	)

	s.sink.CaptureCompleted(index, result)
	if changed {
		s.sink.ReadinessChanged(canFit)
	}
}

// recomputeReadinessLocked пересчитывает canFit; true, если значение изменилось
func (s *Session) recomputeReadinessLocked() bool {
	ready := s.count > 1
	for i := 0; ready && i < s.count; i++ {
		ready = s.points[i].Complete
	}
	changed := ready != s.canFit
	s.canFit = ready
	return changed
}

func checkThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, t)
	}
	return nil
}

func checkReference(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidReference, v)
	}
	return nil
}

func hasDuplicates(values []float64) bool {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}
