package speech

// Provider 语音识别服务提供方
type Provider string

const (
	ProviderVolcengine Provider = "volcengine"
	ProviderHTTP       Provider = "http"
)

// SpeechConfig 语音识别配置
type SpeechConfig struct {
	Provider Provider `json:"provider"`

	// Volcengine 配置
	AppID          string `json:"appId"`            // 火山引擎 APP ID
	AccessToken    string `json:"accessToken"`      // 火山引擎 Access Token
	APIKey         string `json:"apiKey,omitempty"` // 兼容旧配置的 API Key
	ConcurrentMode bool   `json:"concurrentMode"`   // ASR并发模式（false为小时版）
	Endpoint       string `json:"endpoint"`         // WebSocket 地址，留空使用默认

	// OpenAI 兼容的 HTTP 转写接口
	BaseURL string `json:"baseUrl"`
	Model   string `json:"model"`

	Language string `json:"language"`
	Timeout  int    `json:"timeout"` // seconds, 0 表示不限制
}
