package speech

import (
	"io"
)

// ASRRequest 语音识别请求
type ASRRequest struct {
	SessionID string    `json:"sessionId"`
	AudioData io.Reader `json:"-"`
	Filename  string    `json:"filename,omitempty"`
	Format    string    `json:"format"`   // mp3, wav, webm, etc.
	Language  string    `json:"language"` // zh-CN, en-US, etc.
}
