package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/handlers"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
)

func main() {
	serverAddr := flag.String("addr", "localhost:50051", "адрес gRPC-сервера калибратора")
	points := flag.String("points", "", "номера точек через запятую, пусто = все")
	types := flag.String("types", "", "типы событий: reading,complete,readiness")
	flag.Parse()

	req, err := buildRequest(*points, *types)
	if err != nil {
		log.Fatalf("некорректный фильтр: %v", err)
	}

	conn, err := grpc.NewClient(
		*serverAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		log.Fatalf("gRPC dial error: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := handlers.NewDisplayStreamClient(conn).Watch(ctx, req)
	if err != nil {
		log.Fatalf("stream error: %v", err)
	}

	log.Printf("Подключён к %s  (Ctrl-C для выхода)", *serverAddr)

	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Println("stream closed")
			return
		}
		if status.Code(err) == codes.Canceled {
			log.Println("Клиент остановлен")
			return
		}
		if err != nil {
			log.Fatalf("recv error: %v", err)
		}
		fmt.Println(formatEvent(ev))
	}
}

func buildRequest(points, types string) (*handlers.WatchRequest, error) {
	req := &handlers.WatchRequest{}
	for _, p := range splitList(points) {
		idx, err := strconv.Atoi(p)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("номер точки %q", p)
		}
		req.PointIndexes = append(req.PointIndexes, idx)
	}
	for _, t := range splitList(types) {
		switch et := models.DisplayEventType(t); et {
		case models.EventReading, models.EventComplete, models.EventReadiness:
			req.Types = append(req.Types, et)
		default:
			return nil, fmt.Errorf("тип события %q", t)
		}
	}
	return req, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatEvent(ev *models.DisplayEvent) string {
	ts := time.UnixMilli(ev.Timestamp).Format("15:04:05.000")

	switch ev.Type {
	case models.EventReading:
		return fmt.Sprintf("[%s] point %-2d  %-9s  %d", ts, ev.PointIndex, ev.Type, ev.Reading)
	case models.EventComplete:
		if ev.Result == nil {
			return fmt.Sprintf("[%s] point %-2d  %-9s", ts, ev.PointIndex, ev.Type)
		}
		r := ev.Result
		return fmt.Sprintf("[%s] point %-2d  %-9s  %s  mean=%.2f stdev=%.2f n=%d",
			ts, ev.PointIndex, ev.Type, r.Outcome, r.Mean, r.Stdev, r.Count)
	default:
		return fmt.Sprintf("[%s] %-18s  can_fit=%t", ts, ev.Type, ev.CanFit)
	}
}
