package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	chatService "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/completion"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/pkg/utils"
)

// maxUploadSize 单次提交允许的最大请求体
const maxUploadSize = 32 << 20

// ConversationService 聊天处理器依赖的会话能力
type ConversationService interface {
	CreateSession(ctx context.Context, backendID string) (chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	Controller(ctx context.Context, sessionID string) (*conversation.Controller, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	conversations ConversationService
}

// New 创建聊天处理器
func New(conversations ConversationService) *Handler {
	return &Handler{
		conversations: conversations,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleDeleteSession)
		r.Get("/messages", h.handleMessages)
		r.Post("/submit", h.handleSubmit)
		r.Post("/reset", h.handleReset)
	})
}

type sessionView struct {
	chat.Session
	State    conversation.State `json:"state"`
	Messages []chat.Message     `json:"messages"`
}

// handleCreateSession 创建会话，未指定后端时使用默认后端
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BackendID string `json:"backendId"`
	}

	if err := utils.DecodeJSON(r, &payload); err != nil && !errors.Is(err, utils.ErrEmptyBody) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.conversations.CreateSession(r.Context(), strings.TrimSpace(payload.BackendID))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleGetSession 返回会话信息、状态与完整记录
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.conversations.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	controller, err := h.conversations.Controller(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	snapshot := controller.Snapshot()
	utils.RespondJSON(w, http.StatusOK, sessionView{Session: session, State: snapshot.State, Messages: snapshot.Messages})
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMessages 按顺序返回会话记录
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	controller, err := h.conversations.Controller(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, controller.Messages())
}

// handleSubmit 提交一轮对话，支持 JSON 与 multipart 两种格式
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	controller, err := h.conversations.Controller(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	input, err := parseTurnInput(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := controller.Submit(r.Context(), input)
	if errors.Is(err, conversation.ErrEmptyTurn) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, outcome)
}

// handleReset 清空会话记录，进行中的会话返回 409
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	controller, err := h.conversations.Controller(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	if err := controller.Reset(); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseTurnInput(r *http.Request) (chat.TurnInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var payload struct {
			Text string `json:"text"`
		}
		if err := utils.DecodeJSON(r, &payload); err != nil && !errors.Is(err, utils.ErrEmptyBody) {
			return chat.TurnInput{}, errors.New("invalid request body")
		}
		return chat.TurnInput{Text: payload.Text}, nil
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return chat.TurnInput{}, errors.New("invalid multipart form")
	}

	input := chat.TurnInput{Text: r.FormValue("text")}

	if data, header, ok, err := readFormFile(r, "file"); err != nil {
		return chat.TurnInput{}, err
	} else if ok {
		input.File = &chat.FileInput{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		}
	}

	if data, header, ok, err := readFormFile(r, "audio"); err != nil {
		return chat.TurnInput{}, err
	} else if ok {
		input.Audio = &chat.AudioInput{
			Reader:   bytes.NewReader(data),
			Filename: header.Filename,
			Format:   r.FormValue("format"),
			Language: r.FormValue("language"),
		}
	}

	return input, nil
}

func readFormFile(r *http.Request, field string) ([]byte, *multipart.FileHeader, bool, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, errors.New(field + " field is invalid")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, false, errors.New("failed to read " + field)
	}
	return data, header, true, nil
}

// statusFor 将领域错误映射为HTTP状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, completion.ErrBackendNotFound), errors.Is(err, chatService.ErrBackendRequired):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
