package handlers

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/calibration"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic   string
	payload []byte
}

// fakeClient записывает публикации; остальные методы не используются
type fakeClient struct {
	mqtt.Client

	mu       sync.Mutex
	messages []published
}

func (f *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func TestMQTTSink_Topics(t *testing.T) {
	client := &fakeClient{}
	sink := NewMQTTSink(client, "obs/calibrator", 1, nil)

	sink.ReadingCaptured(2, 1500)
	sink.CaptureCompleted(2, models.CaptureResult{Count: 10, Mean: 1500, Outcome: models.OutcomeValid})
	sink.ReadinessChanged(true)

	want := []string{
		"obs/calibrator/points/2/reading",
		"obs/calibrator/points/2/complete",
		"obs/calibrator/readiness",
	}
	if len(client.messages) != len(want) {
		t.Fatalf("want %d messages, got %d", len(want), len(client.messages))
	}
	for i, topic := range want {
		if client.messages[i].topic != topic {
			t.Fatalf("message %d: want topic %s, got %s", i, topic, client.messages[i].topic)
		}
	}

	var ev models.DisplayEvent
	if err := json.Unmarshal(client.messages[1].payload, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != models.EventComplete || ev.Result == nil || ev.Result.Mean != 1500 {
		t.Fatalf("completion payload: %+v", ev)
	}
}

type countingSink struct {
	readings, completions, readiness int
}

func (c *countingSink) ReadingCaptured(int, int)                   { c.readings++ }
func (c *countingSink) CaptureCompleted(int, models.CaptureResult) { c.completions++ }
func (c *countingSink) ReadinessChanged(bool)                      { c.readiness++ }

func TestMultiSink_FansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	var sink calibration.DisplaySink = MultiSink{a, b, NewLogSink(nil)}

	sink.ReadingCaptured(0, 1)
	sink.ReadingCaptured(0, 2)
	sink.CaptureCompleted(0, models.CaptureResult{})
	sink.ReadinessChanged(false)

	for _, s := range []*countingSink{a, b} {
		if s.readings != 2 || s.completions != 1 || s.readiness != 1 {
			t.Fatalf("sink counts: %+v", s)
		}
	}
}

func TestBroadcaster_NonBlockingWithoutSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.ReadingCaptured(0, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked")
	}
}
