package live

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chatdesk/backend/internal/metrics"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
)

const writeWait = 10 * time.Second

// client 单个 WebSocket 连接，写操作需要串行
type client struct {
	sessionID string
	conn      *websocket.Conn
	mu        sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) writeControl(messageType int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(messageType, nil, time.Now().Add(writeWait))
}

// Hub 按会话管理订阅连接，并在状态变化时推送完整记录
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewHub 创建连接管理器
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.sessionID] = set
	}
	set[c] = struct{}{}
	metrics.LiveConnections.Inc()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.sessionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.sessionID)
	}
	metrics.LiveConnections.Dec()
}

// Count 返回某个会话的订阅连接数
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Notify 向会话的所有连接推送最新记录
func (h *Hub) Notify(snapshot conversation.Snapshot) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[snapshot.SessionID]))
	for c := range h.clients[snapshot.SessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	msg := outgoingMessage{
		Type:      typeTranscript,
		SessionID: snapshot.SessionID,
		Data: transcriptData{
			State:    snapshot.State,
			Messages: snapshot.Messages,
		},
		Timestamp: time.Now().Unix(),
	}
	for _, c := range targets {
		_ = c.writeJSON(msg)
	}
}

// CloseAll 关闭所有连接
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID, set := range h.clients {
		for c := range set {
			c.conn.Close()
			metrics.LiveConnections.Dec()
		}
		delete(h.clients, sessionID)
	}
}
