package speech

import (
	"errors"
	"strings"

	speechmodel "github.com/zhouzirui/chatdesk/backend/internal/model/speech"
)

var (
	ErrNotConfigured = errors.New("speech service is not configured")
	ErrMissingAppKey = errors.New("volcengine speech requires SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
	ErrMissingAPIKey = errors.New("http speech requires SPEECH_API_KEY or OPENAI_API_KEY")
)

// volcengineCredentials 返回规范化后的 AppID 与 AccessToken。
func volcengineCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", ErrNotConfigured
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", ErrMissingAppKey
	}
	return appID, token, nil
}

// bearerToken 返回 HTTP 转写接口使用的密钥。
func bearerToken(cfg *speechmodel.SpeechConfig) (string, error) {
	if cfg == nil {
		return "", ErrNotConfigured
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return "", ErrMissingAPIKey
	}
	return key, nil
}
