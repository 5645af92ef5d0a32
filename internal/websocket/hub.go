package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// 消息类型
const (
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"
)

// Hub WebSocket连接管理中心，向所有订阅者广播光谱仪事件
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	snapshotMu sync.RWMutex
	snapshot   func() interface{}

	logger *zap.Logger
}

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// SetSnapshot 设置新连接收到的初始状态
func (h *Hub) SetSnapshot(fn func() interface{}) {
	h.snapshotMu.Lock()
	h.snapshot = fn
	h.snapshotMu.Unlock()
}

// Run 运行Hub，ctx 取消后关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case data := <-h.broadcast:
			h.broadcastMessage(data)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.clientsMu.Lock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
	h.clientsMu.Unlock()
}

// registerClient 注册客户端并发送当前状态
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket client connected", zap.String("client_id", client.ID))

	h.snapshotMu.RLock()
	snapshot := h.snapshot
	h.snapshotMu.RUnlock()

	var state interface{}
	if snapshot != nil {
		state = snapshot()
	}
	if data, err := encode(MessageTypeConnected, state); err == nil {
		client.trySend(data)
	}
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket client disconnected", zap.String("client_id", client.ID))
}

// broadcastMessage 广播消息
func (h *Hub) broadcastMessage(data []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for _, client := range h.clients {
		if !client.trySend(data) {
			h.logger.Warn("Client send buffer full, dropping event", zap.String("client_id", client.ID))
		}
	}
}

// sendToClient 客户端已注销时丢弃
func (h *Hub) sendToClient(client *Client, data []byte) bool {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	if _, ok := h.clients[client.ID]; !ok {
		return false
	}
	return client.trySend(data)
}

// Publish 广播事件，不阻塞调用方，队列满时丢弃
func (h *Hub) Publish(eventType string, data interface{}) {
	msg, err := encode(eventType, data)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Event queue full, dropping event", zap.String("type", eventType))
	}
}

// Count 在线连接数
func (h *Hub) Count() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Register 注册客户端，Hub 已停止时返回 false
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func encode(msgType string, data interface{}) ([]byte, error) {
	msg := Message{Type: msgType, Timestamp: time.Now().Unix()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}
