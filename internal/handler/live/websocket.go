package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxBufferedAudio = 25 << 20
	// 队列满时阻塞读循环
	pendingJobs      = 16
)

// Outbound frame types.
const (
	typeTranscript = "transcript"
	typeResult     = "result"
	typeError      = "error"
)

// ControllerSource 提供会话控制器
type ControllerSource interface {
	Controller(ctx context.Context, sessionID string) (*conversation.Controller, error)
}

// Handler WebSocket 会话处理器
type Handler struct {
	controllers ControllerSource
	hub         *Hub
	upgrader    websocket.Upgrader
}

// New 创建WebSocket处理器
func New(controllers ControllerSource, hub *Hub) *Handler {
	return &Handler{
		controllers: controllers,
		hub:         hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/{sessionID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// AudioMessage 音频消息，isFinal 为 true 时提交缓冲的全部音频
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type transcriptData struct {
	State    conversation.State `json:"state"`
	Messages []chat.Message     `json:"messages"`
}

// turnJob 单个连接上按到达顺序执行的操作
type turnJob struct {
	input chat.TurnInput
	reset bool
}

type connectionState struct {
	client   *client
	jobs     chan<- turnJob
	format   string
	language string
	audio    bytes.Buffer
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	controller, err := h.controllers.Controller(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{sessionID: sessionID, conn: conn}
	h.hub.add(c)
	defer h.hub.remove(c)

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.pingLoop(ctx, c)

	// 回合不随连接断开而取消，排队中的操作也会执行完
	jobs := make(chan turnJob, pendingJobs)
	defer close(jobs)
	go h.runJobs(context.WithoutCancel(r.Context()), c, controller, jobs)

	snapshot := controller.Snapshot()
	_ = c.writeJSON(outgoingMessage{
		Type:      typeTranscript,
		SessionID: sessionID,
		Data:      transcriptData{State: snapshot.State, Messages: snapshot.Messages},
		Timestamp: time.Now().Unix(),
	})

	state := &connectionState{client: c, jobs: jobs}
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		h.handleMessage(state, &msg)
	}
}

// runJobs 依次执行连接上的提交与重置
func (h *Handler) runJobs(ctx context.Context, c *client, controller *conversation.Controller, jobs <-chan turnJob) {
	for job := range jobs {
		if job.reset {
			if err := controller.Reset(); err != nil {
				h.sendError(c, err.Error())
			}
			continue
		}
		h.submit(ctx, c, controller, job.input)
	}
}

func (h *Handler) handleMessage(state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			h.sendError(state.client, "invalid text payload")
			return
		}
		state.jobs <- turnJob{input: chat.TurnInput{Text: text.Text}}
	case "audio":
		h.handleAudio(state, msg.Data)
	case "reset":
		state.jobs <- turnJob{reset: true}
	default:
		h.sendError(state.client, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) handleAudio(state *connectionState, raw json.RawMessage) {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(state.client, "invalid audio payload")
		return
	}

	if state.audio.Len()+len(audio.AudioData) > maxBufferedAudio {
		state.audio.Reset()
		h.sendError(state.client, "audio too large")
		return
	}
	state.audio.Write(audio.AudioData)
	if audio.Format != "" {
		state.format = audio.Format
	}
	if audio.Language != "" {
		state.language = audio.Language
	}

	if !audio.IsFinal {
		return
	}

	data := bytes.Clone(state.audio.Bytes())
	state.audio.Reset()
	state.jobs <- turnJob{input: chat.TurnInput{
		Audio: &chat.AudioInput{
			Reader:   bytes.NewReader(data),
			Format:   state.format,
			Language: state.language,
		},
	}}
}

func (h *Handler) submit(ctx context.Context, c *client, controller *conversation.Controller, input chat.TurnInput) {
	outcome, err := controller.Submit(ctx, input)
	if errors.Is(err, conversation.ErrEmptyTurn) {
		h.sendResult(c, map[string]any{"noop": true, "transcript": outcome.Transcript})
		return
	}
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.sendResult(c, outcome)
}

func (h *Handler) sendResult(c *client, data any) {
	msg := outgoingMessage{
		Type:      typeResult,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.writeJSON(msg); err != nil {
		log.Printf("[websocket] write result failed: %v", err)
	}
}

func (h *Handler) sendError(c *client, message string) {
	msg := outgoingMessage{
		Type:      typeError,
		SessionID: c.sessionID,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := c.writeJSON(msg); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeControl(websocket.PingMessage); err != nil {
				return
			}
		}
	}
}
