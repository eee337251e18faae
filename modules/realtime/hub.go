package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sendBuffer = 256

// Client - 연결된 웹소켓 하나
type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Metrics - 서버 메트릭
type Metrics struct {
	TotalConnections  int       `json:"totalConnections"`
	ActiveConnections int       `json:"activeConnections"`
	ActiveUsers       int       `json:"activeUsers"`
	Delivered         int       `json:"delivered"`
	Dropped           int       `json:"dropped"`
	StartTime         time.Time `json:"startTime"`
	Uptime            string    `json:"uptime"`
}

// Hub - 사용자별 웹소켓 목록을 관리하고 메시지를 해당 사용자에게만 전달
type Hub struct {
	mutex   sync.RWMutex
	clients map[string]map[*Client]struct{}

	metricsMutex sync.Mutex
	metrics      Metrics

	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		metrics: Metrics{StartTime: time.Now()},
		log:     log.Named("realtime"),
	}
}

// register - 클라이언트 추가
func (h *Hub) register(client *Client) {
	h.mutex.Lock()
	userClients, ok := h.clients[client.userID]
	if !ok {
		userClients = make(map[*Client]struct{})
		h.clients[client.userID] = userClients
	}
	userClients[client] = struct{}{}
	count := len(userClients)
	h.mutex.Unlock()

	h.metricsMutex.Lock()
	h.metrics.TotalConnections++
	h.metricsMutex.Unlock()

	h.log.Info("👤 [Realtime] Client connected", zap.String("user_id", client.userID), zap.Int("user_connections", count))
}

// unregister - 클라이언트 제거 (send 채널은 여기서만 닫는다)
func (h *Hub) unregister(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	userClients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := userClients[client]; !exists {
		return
	}

	delete(userClients, client)
	close(client.send)
	if len(userClients) == 0 {
		delete(h.clients, client.userID)
	}

	h.log.Info("👋 [Realtime] Client disconnected", zap.String("user_id", client.userID))
}

// Dispatch - 메시지를 대상 사용자의 모든 소켓으로 전달, 전달된 소켓 수 반환
// 버퍼가 가득 찬 느린 클라이언트는 끊는다.
func (h *Hub) Dispatch(msg Message) int {
	if msg.UserID == "" {
		return 0
	}

	frame, err := json.Marshal(clientFrame{Type: msg.Event, Data: msg.Data})
	if err != nil {
		h.log.Warn("⚠️ [Realtime] Failed to encode frame", zap.Error(err))
		return 0
	}

	var slow []*Client
	delivered := 0

	h.mutex.RLock()
	for client := range h.clients[msg.UserID] {
		select {
		case client.send <- frame:
			delivered++
		default:
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range slow {
		h.log.Warn("⚠️ [Realtime] Dropping slow client", zap.String("user_id", client.userID))
		h.unregister(client)
	}

	h.metricsMutex.Lock()
	h.metrics.Delivered += delivered
	h.metrics.Dropped += len(slow)
	h.metricsMutex.Unlock()

	return delivered
}

// Snapshot - 현재 메트릭
func (h *Hub) Snapshot() Metrics {
	h.mutex.RLock()
	active := 0
	for _, userClients := range h.clients {
		active += len(userClients)
	}
	users := len(h.clients)
	h.mutex.RUnlock()

	h.metricsMutex.Lock()
	m := h.metrics
	h.metricsMutex.Unlock()

	m.ActiveConnections = active
	m.ActiveUsers = users
	m.Uptime = time.Since(m.StartTime).Round(time.Second).String()
	return m
}

// StartForwarder - Redis 채널을 구독해서 받은 메시지를 Dispatch
func (h *Hub) StartForwarder(ctx context.Context, rdb *redis.Client, channel string) error {
	sub := rdb.Subscribe(ctx, channel)

	// 구독이 실제로 시작됐는지 확인
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	h.log.Info("📡 [Realtime] Forwarding events", zap.String("channel", channel))

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				h.handlePayload(m.Payload)
			}
		}
	}()

	return nil
}

func (h *Hub) handlePayload(payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		h.log.Warn("⚠️ [Realtime] Bad event payload", zap.Error(err))
		return
	}
	h.Dispatch(msg)
}
