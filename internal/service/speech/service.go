package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhouzirui/chatdesk/backend/internal/metrics"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/model/speech"
)

// FailurePrefix 转写失败时返回文本的固定前缀
const FailurePrefix = "[Error transcribing audio: "

// Recognizer 具体的识别服务提供方
type Recognizer interface {
	Recognize(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
}

// Service 语音服务核心业务逻辑
type Service struct {
	config     *speech.SpeechConfig
	recognizer Recognizer
}

// NewService 根据配置选择识别服务
func NewService(config *speech.SpeechConfig) *Service {
	var recognizer Recognizer
	switch config.Provider {
	case speech.ProviderHTTP:
		recognizer = NewHTTPASRClient(config, nil)
	default:
		recognizer = NewVolcengineASRClient(config)
	}
	return NewServiceWithRecognizer(config, recognizer)
}

// NewServiceWithRecognizer 使用指定的识别服务
func NewServiceWithRecognizer(config *speech.SpeechConfig, recognizer Recognizer) *Service {
	if config == nil {
		config = &speech.SpeechConfig{}
	}
	return &Service{config: config, recognizer: recognizer}
}

// Provider 返回当前使用的识别服务名称
func (s *Service) Provider() string {
	if s.config.Provider == "" {
		return string(speech.ProviderVolcengine)
	}
	return string(s.config.Provider)
}

// Transcribe 尽力转写音频。失败时不返回错误，而是返回以 FailurePrefix 开头的文本。
func (s *Service) Transcribe(ctx context.Context, audio chat.AudioInput) string {
	if audio.Reader == nil {
		return failureText("no audio provided")
	}

	format := InferFormat(audio.Format, audio.Filename)
	if !SupportedFormat(format) {
		return failureText(fmt.Sprintf("unsupported audio format %q", format))
	}

	data, err := io.ReadAll(audio.Reader)
	if err != nil {
		return failureText(fmt.Sprintf("read audio: %v", err))
	}
	if len(data) == 0 {
		return failureText(ErrEmptyAudio.Error())
	}
	if format == "wav" {
		if _, err := ParseWAV(data); err != nil {
			return failureText(err.Error())
		}
	}

	language := strings.TrimSpace(audio.Language)
	if language == "" {
		language = s.config.Language
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.Timeout)*time.Second)
		defer cancel()
	}

	provider := s.Provider()
	started := time.Now()
	resp, err := s.recognizer.Recognize(ctx, &speech.ASRRequest{
		AudioData: bytes.NewReader(data),
		Filename:  audio.Filename,
		Format:    format,
		Language:  language,
	})
	metrics.ASRQueryTime.WithLabelValues(provider).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ASRErrors.WithLabelValues(provider).Inc()
		log.Printf("[asr] %s transcription failed: %v", provider, err)
		return failureText(err.Error())
	}

	log.Printf("[asr] %s recognized audio_ms=%d request=%s", provider, resp.Duration, resp.RequestID)
	return strings.TrimSpace(resp.Text)
}

// IsTranscriptionFailure 判断文本是否为转写失败的占位内容
func IsTranscriptionFailure(text string) bool {
	return strings.HasPrefix(text, FailurePrefix) && strings.HasSuffix(text, "]")
}

func failureText(reason string) string {
	return FailurePrefix + reason + "]"
}

// InferFormat 优先使用声明的格式，否则从文件名推断
func InferFormat(declared, filename string) string {
	declared = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(declared), "."))
	if declared != "" {
		return declared
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".aac", ".pcm":
		return ext[1:]
	default:
		return "wav"
	}
}

// SupportedFormat 判断音频容器是否受支持
func SupportedFormat(format string) bool {
	switch format {
	case "wav", "mp3", "webm", "m4a", "aac", "pcm":
		return true
	default:
		return false
	}
}
