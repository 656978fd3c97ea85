package utils

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/bytedance/sonic"
)

// ErrEmptyBody 请求体为空
var ErrEmptyBody = errors.New("request body is empty")

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// DecodeJSON 解析JSON请求体，空请求体返回 ErrEmptyBody
func DecodeJSON(r *http.Request, dst interface{}) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyBody
	}
	return sonic.Unmarshal(data, dst)
}
