package speech

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	speechsvc "github.com/zhouzirui/chatdesk/backend/internal/service/speech"
	"github.com/zhouzirui/chatdesk/backend/pkg/utils"
)

// maxAudioSize 上传音频的最大字节数
const maxAudioSize = 25 << 20

// SpeechService 语音处理器依赖的转写能力
type SpeechService interface {
	Transcribe(ctx context.Context, audio chat.AudioInput) string
	Provider() string
}

// Handler 语音服务HTTP处理器
type Handler struct {
	speechSvc SpeechService
	enabled   bool
}

// New 创建语音处理器，enabled 表示凭证是否齐全
func New(speechSvc SpeechService, enabled bool) *Handler {
	return &Handler{
		speechSvc: speechSvc,
		enabled:   enabled,
	}
}

// RegisterRoutes 注册语音相关路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(r chi.Router) {
		r.Post("/transcribe", h.handleTranscribe)
		r.Get("/health", h.handleHealth)
	})
}

type transcribeResponse struct {
	Text     string `json:"text"`
	Failed   bool   `json:"failed"`
	Provider string `json:"provider"`
}

// handleTranscribe 语音转文字。转写失败时仍返回 200，由 failed 字段标记
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioSize)
	if err := r.ParseMultipartForm(maxAudioSize); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	text := h.speechSvc.Transcribe(r.Context(), chat.AudioInput{
		Reader:   bytes.NewReader(data),
		Filename: header.Filename,
		Format:   r.FormValue("format"),
		Language: r.FormValue("language"),
	})

	utils.RespondJSON(w, http.StatusOK, transcribeResponse{
		Text:     text,
		Failed:   speechsvc.IsTranscriptionFailure(text),
		Provider: h.speechSvc.Provider(),
	})
}

// handleHealth 健康检查
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.enabled {
		status = "unconfigured"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"service":  "speech",
		"provider": h.speechSvc.Provider(),
	})
}
