package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/zhouzirui/chatdesk/backend/internal/model/speech"
)

const defaultHTTPBaseURL = "https://api.openai.com/v1"

// HTTPASRClient 调用 OpenAI 兼容的 /audio/transcriptions 接口
type HTTPASRClient struct {
	config     *speech.SpeechConfig
	httpClient *http.Client
}

// NewHTTPASRClient 创建 HTTP 转写客户端
func NewHTTPASRClient(config *speech.SpeechConfig, httpClient *http.Client) *HTTPASRClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPASRClient{config: config, httpClient: httpClient}
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *HTTPASRClient) url() string {
	base := defaultHTTPBaseURL
	if c.config.BaseURL != "" {
		base = c.config.BaseURL
	}
	return strings.TrimRight(base, "/") + "/audio/transcriptions"
}

// Recognize 以 multipart 形式上传音频
func (c *HTTPASRClient) Recognize(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	key, err := bearerToken(c.config)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	filename := req.Filename
	if filename == "" {
		filename = "audio." + req.Format
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	n, err := io.Copy(part, req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyAudio
	}

	model := c.config.Model
	if model == "" {
		model = "whisper-1"
	}
	_ = form.WriteField("model", model)
	if lang := languageCode(req.Language); lang != "" {
		_ = form.WriteField("language", lang)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read transcription response: %w", err)
	}

	var parsed transcriptionResponse
	decodeErr := sonic.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return nil, fmt.Errorf("transcription status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("transcription status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode transcription response: %w", decodeErr)
	}

	return &speech.ASRResponse{
		SessionID: req.SessionID,
		Text:      parsed.Text,
		Duration:  int64(parsed.Duration * 1000),
		RequestID: resp.Header.Get("X-Request-Id"),
		CreatedAt: time.Now(),
	}, nil
}

// languageCode 将 en-US 形式截取为 ISO-639-1 代码
func languageCode(language string) string {
	language = strings.TrimSpace(language)
	if i := strings.IndexAny(language, "-_"); i > 0 {
		language = language[:i]
	}
	return strings.ToLower(language)
}
