package handlers

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
)

func startWatchServer(t *testing.T, b *Broadcaster) *DisplayStreamClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterDisplayStreamServer(srv, b)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		b.Stop()
		srv.Stop()
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewDisplayStreamClient(conn)
}

func waitSubscribers(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for b.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("want %d subscribers, have %d", n, b.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatch_StreamsFilteredEvents(t *testing.T) {
	b := NewBroadcaster(nil)
	client := startWatchServer(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Watch(ctx, &WatchRequest{PointIndexes: []int{0}})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	waitSubscribers(t, b, 1)

	b.ReadingCaptured(1, 999) // другой точки, отфильтруется
	b.ReadingCaptured(0, 321)
	b.CaptureCompleted(0, models.CaptureResult{Count: 1, Mean: 321, Outcome: models.OutcomeValid})
	b.ReadinessChanged(true)

	ev, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if ev.Type != models.EventReading || ev.PointIndex != 0 || ev.Reading != 321 {
		t.Fatalf("first event: %+v", ev)
	}

	ev, err = stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if ev.Type != models.EventComplete || ev.Result == nil || !ev.Result.Valid() {
		t.Fatalf("completion event: %+v", ev)
	}

	ev, err = stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if ev.Type != models.EventReadiness || !ev.CanFit {
		t.Fatalf("readiness event: %+v", ev)
	}
}

func TestWatch_UnsubscribesOnDisconnect(t *testing.T) {
	b := NewBroadcaster(nil)
	client := startWatchServer(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := client.Watch(ctx, &WatchRequest{}); err != nil {
		t.Fatalf("watch: %v", err)
	}
	waitSubscribers(t, b, 1)

	cancel()
	waitSubscribers(t, b, 0)
}

func TestShouldSend(t *testing.T) {
	reading := models.DisplayEvent{Type: models.EventReading, PointIndex: 2}
	readiness := models.DisplayEvent{Type: models.EventReadiness, PointIndex: -1}

	if !shouldSend(reading, &WatchRequest{}) {
		t.Fatalf("empty filter passes everything")
	}
	if shouldSend(reading, &WatchRequest{PointIndexes: []int{0, 1}}) {
		t.Fatalf("point filter must drop point 2")
	}
	if !shouldSend(readiness, &WatchRequest{PointIndexes: []int{0}}) {
		t.Fatalf("readiness is not tied to a point")
	}
	if shouldSend(reading, &WatchRequest{Types: []models.DisplayEventType{models.EventComplete}}) {
		t.Fatalf("type filter must drop readings")
	}
}
