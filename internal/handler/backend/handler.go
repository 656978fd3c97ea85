package backend

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
	"github.com/zhouzirui/chatdesk/backend/pkg/utils"
)

// Handler 后端列表的HTTP处理器
type Handler struct {
	profiles backend.Store
}

// New 创建后端处理器
func New(profiles backend.Store) *Handler {
	return &Handler{
		profiles: profiles,
	}
}

// RegisterRoutes 注册后端相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/backends", h.handleListBackends)
}

type backendView struct {
	backend.Profile
	Available bool `json:"available"`
	Default   bool `json:"default"`
}

// handleListBackends 列出所有可用后端，不包含任何凭证
func (h *Handler) handleListBackends(w http.ResponseWriter, r *http.Request) {
	defaultID := h.profiles.Default().ID
	profiles := h.profiles.List()

	views := make([]backendView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, backendView{
			Profile:   p,
			Available: p.HasCredential(),
			Default:   p.ID == defaultID,
		})
	}
	utils.RespondJSON(w, http.StatusOK, views)
}
