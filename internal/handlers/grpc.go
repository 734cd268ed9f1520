package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
)

// JSONCodecName content-subtype, под которым сообщения ходят по gRPC
const JSONCodecName = "json"

const watchMethod = "/obscal.DisplayStream/Watch"

// jsonCodec позволяет обойтись без сгенерированного protobuf-кода
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// WatchRequest фильтр подписки; пустые списки означают все события
type WatchRequest struct {
	PointIndexes []int                     `json:"point_indexes,omitempty"`
	Types        []models.DisplayEventType `json:"types,omitempty"`
}

// DisplayStreamServer серверная сторона потока событий
type DisplayStreamServer interface {
	Watch(req *WatchRequest, stream WatchServerStream) error
}

// WatchServerStream поток, в который сервер пишет события
type WatchServerStream interface {
	Send(*models.DisplayEvent) error
	grpc.ServerStream
}

type watchServerStream struct {
	grpc.ServerStream
}

func (s *watchServerStream) Send(ev *models.DisplayEvent) error {
	return s.ServerStream.SendMsg(ev)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	req := new(WatchRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(DisplayStreamServer).Watch(req, &watchServerStream{stream})
}

// DisplayStreamServiceDesc описание сервиса obscal.DisplayStream
var DisplayStreamServiceDesc = grpc.ServiceDesc{
	ServiceName: "obscal.DisplayStream",
	HandlerType: (*DisplayStreamServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "obscal/display.json",
}

// RegisterDisplayStreamServer регистрирует сервис на gRPC сервере
func RegisterDisplayStreamServer(s grpc.ServiceRegistrar, srv DisplayStreamServer) {
	s.RegisterService(&DisplayStreamServiceDesc, srv)
}

// DisplayStreamClient клиент потока событий
type DisplayStreamClient struct {
	cc grpc.ClientConnInterface
}

func NewDisplayStreamClient(cc grpc.ClientConnInterface) *DisplayStreamClient {
	return &DisplayStreamClient{cc: cc}
}

// WatchClientStream поток событий на стороне клиента
type WatchClientStream struct {
	grpc.ClientStream
}

func (s *WatchClientStream) Recv() (*models.DisplayEvent, error) {
	ev := new(models.DisplayEvent)
	if err := s.ClientStream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Watch подписывается на события калибратора
func (c *DisplayStreamClient) Watch(ctx context.Context, req *WatchRequest, opts ...grpc.CallOption) (*WatchClientStream, error) {
	opts = append(opts, grpc.CallContentSubtype(JSONCodecName))
	stream, err := c.cc.NewStream(ctx, &DisplayStreamServiceDesc.Streams[0], watchMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchClientStream{stream}, nil
}

// Broadcaster раздаёт события всем gRPC подписчикам и служит получателем событий сессии
type Broadcaster struct {
	subscribers map[string]chan models.DisplayEvent
	mu          sync.RWMutex
	done        chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan models.DisplayEvent),
		done:        make(chan struct{}),
		logger:      logger.With("component", "grpc_broadcaster"),
	}
}

// Watch держит поток клиента, пока тот не отключится или сервис не остановится
func (b *Broadcaster) Watch(req *WatchRequest, stream WatchServerStream) error {
	clientID := uuid.NewString()
	clientChan := make(chan models.DisplayEvent, 256)

	b.mu.Lock()
	b.subscribers[clientID] = clientChan
	b.mu.Unlock()
	b.logger.Info("новый наблюдатель", "client", clientID, "points", req.PointIndexes, "types", req.Types)

	defer func() {
		b.mu.Lock()
		delete(b.subscribers, clientID)
		b.mu.Unlock()
		b.logger.Info("наблюдатель отключен", "client", clientID)
	}()

	for {
		select {
		case ev := <-clientChan:
			if !shouldSend(ev, req) {
				continue
			}
			if err := stream.Send(&ev); err != nil {
				b.logger.Warn("ошибка отправки наблюдателю", "client", clientID, "error", err)
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-b.done:
			return nil
		}
	}
}

// shouldSend фильтр по точкам и типам; события готовности не привязаны к точке
func shouldSend(ev models.DisplayEvent, req *WatchRequest) bool {
	if len(req.Types) > 0 && !slices.Contains(req.Types, ev.Type) {
		return false
	}
	if len(req.PointIndexes) > 0 && ev.Type != models.EventReadiness &&
		!slices.Contains(req.PointIndexes, ev.PointIndex) {
		return false
	}
	return true
}

// Broadcast неблокирующая рассылка: переполненные каналы пропускаются
func (b *Broadcaster) Broadcast(ev models.DisplayEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for clientID, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("канал наблюдателя переполнен, событие пропущено", "client", clientID)
		}
	}
}

// Subscribers число подключённых наблюдателей
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Stop завершает все потоки Watch
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

func (b *Broadcaster) ReadingCaptured(index, reading int) {
	b.Broadcast(newEvent(models.EventReading, index, reading, nil, false))
}

func (b *Broadcaster) CaptureCompleted(index int, result models.CaptureResult) {
	b.Broadcast(newEvent(models.EventComplete, index, 0, &result, false))
}

func (b *Broadcaster) ReadinessChanged(canFit bool) {
	b.Broadcast(newEvent(models.EventReadiness, -1, 0, nil, canFit))
}
