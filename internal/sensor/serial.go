package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialSource читает показания построчно с последовательного порта:
// одна строка содержит одно целое число. Если задана команда, она отправляется
// перед каждым чтением.
type SerialSource struct {
	conn    io.ReadWriteCloser
	command []byte
	timeout time.Duration
	lines   chan lineResult
	writeMu sync.Mutex
	logger  *slog.Logger

	closeOnce sync.Once
}

type lineResult struct {
	line string
	err  error
}

// ListSerialPorts список доступных портов
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// OpenSerial открывает порт и запускает чтение строк
func OpenSerial(portName string, baud int, command []byte, timeout time.Duration, logger *slog.Logger) (*SerialSource, error) {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", portName, err)
	}
	return NewLineSource(port, command, timeout, logger), nil
}

// NewLineSource оборачивает любое соединение с построчным протоколом
func NewLineSource(conn io.ReadWriteCloser, command []byte, timeout time.Duration, logger *slog.Logger) *SerialSource {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SerialSource{
		conn:    conn,
		command: command,
		timeout: timeout,
		lines:   make(chan lineResult, 16),
		logger:  logger.With("component", "serial_source"),
	}
	go s.readLoop()
	return s
}

func (s *SerialSource) readLoop() {
	defer close(s.lines)

	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		select {
		case s.lines <- lineResult{line: text}:
		default:
			s.logger.Warn("очередь строк переполнена, строка пропущена", "line", text)
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case s.lines <- lineResult{err: err}:
		default:
		}
	}
}

func (s *SerialSource) ReadOne(ctx context.Context) (int, error) {
	if len(s.command) > 0 {
		if err := s.drain(); err != nil {
			return 0, err
		}
		s.writeMu.Lock()
		_, err := s.conn.Write(s.command)
		s.writeMu.Unlock()
		if err != nil {
			return 0, fmt.Errorf("write request: %w", err)
		}
	}

	var timeout <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case res, ok := <-s.lines:
			if !ok {
				return 0, io.EOF
			}
			if res.err != nil {
				return 0, res.err
			}
			v, err := ParseReading(res.line)
			if err != nil {
				s.logger.Warn("нераспознанная строка", "line", res.line, "error", err)
				continue
			}
			return v, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timeout:
			return 0, fmt.Errorf("%w: no line within %s", ErrReadTimeout, s.timeout)
		}
	}
}

// drain выбрасывает строки, пришедшие до запроса. Ошибка чтения из очереди
// не теряется, а возвращается вызывающему.
func (s *SerialSource) drain() error {
	for {
		select {
		case res, ok := <-s.lines:
			if !ok {
				return io.EOF
			}
			if res.err != nil {
				return res.err
			}
		default:
			return nil
		}
	}
}

// Close закрывает порт, цикл чтения завершится сам
func (s *SerialSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// ParseReading разбирает строку вида "1234" или "PROX,1234"
func ParseReading(line string) (int, error) {
	line = strings.TrimSpace(line)
	if i := strings.LastIndex(line, ","); i >= 0 {
		line = strings.TrimSpace(line[i+1:])
	}
	v, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("parse reading %q: %w", line, err)
	}
	if v < 0 || v > MaxProximity {
		return 0, fmt.Errorf("reading %d out of range 0..%d", v, MaxProximity)
	}
	return v, nil
}
