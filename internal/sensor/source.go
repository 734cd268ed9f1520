package sensor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

var (
	// ErrExhausted у источника больше нет отсчётов
	ErrExhausted = errors.New("sensor source exhausted")
	// ErrReadTimeout датчик не ответил вовремя
	ErrReadTimeout = errors.New("sensor read timed out")
)

// MaxProximity верхняя граница 16-битного показания датчика приближения
const MaxProximity = 65535

// Source снимает один отсчёт с датчика
type Source interface {
	ReadOne(ctx context.Context) (int, error)
}

// SourceFunc позволяет использовать функцию как Source
type SourceFunc func(ctx context.Context) (int, error)

func (f SourceFunc) ReadOne(ctx context.Context) (int, error) {
	return f(ctx)
}

// RandomSource заглушка датчика. Без центра выдаёт равномерный шум 0..65535,
// с центром выдаёт значения вокруг уровня с заданным разбросом.
type RandomSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	center int
	jitter int
}

// NewRandomSource создаёт генератор равномерного шума по всему диапазону
func NewRandomSource(seed int64) *RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomSource{rng: rand.New(rand.NewSource(seed))}
}

// NewLevelSource создаёт генератор вокруг уровня center ± jitter
func NewLevelSource(seed int64, center, jitter int) *RandomSource {
	src := NewRandomSource(seed)
	src.center = center
	src.jitter = jitter
	return src
}

// SetLevel меняет уровень, например при смене эталонного раствора
func (s *RandomSource) SetLevel(center, jitter int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.center = center
	s.jitter = jitter
}

func (s *RandomSource) ReadOne(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.center == 0 && s.jitter == 0 {
		return s.rng.Intn(MaxProximity + 1), nil
	}

	v := s.center
	if s.jitter > 0 {
		v += s.rng.Intn(2*s.jitter+1) - s.jitter
	}
	return clamp(v), nil
}

// SequenceSource воспроизводит заранее заданные отсчёты
type SequenceSource struct {
	mu       sync.Mutex
	readings []int
	pos      int
	loop     bool
}

// NewSequenceSource источник, который отдаёт readings по порядку
func NewSequenceSource(readings []int, loop bool) *SequenceSource {
	cp := make([]int, len(readings))
	copy(cp, readings)
	return &SequenceSource{readings: cp, loop: loop}
}

func (s *SequenceSource) ReadOne(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.readings) {
		if !s.loop || len(s.readings) == 0 {
			return 0, ErrExhausted
		}
		s.pos = 0
	}
	v := s.readings[s.pos]
	s.pos++
	return v, nil
}

// Remaining сколько отсчётов осталось до конца последовательности
func (s *SequenceSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings) - s.pos
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxProximity {
		return MaxProximity
	}
	return v
}
