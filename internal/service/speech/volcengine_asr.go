package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/chatdesk/backend/internal/model/speech"
)

const (
	volcengineEndpoint = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"

	resourceDuration   = "volc.bigasr.sauc.duration"
	resourceConcurrent = "volc.bigasr.sauc.concurrent"

	// 16kHz, 16bit, mono, 200ms
	audioChunkSize     = 6400
	audioChunkInterval = 200 * time.Millisecond
)

var ErrEmptyAudio = errors.New("no audio data")

// VolcengineASRClient 火山引擎大模型流式识别客户端
type VolcengineASRClient struct {
	config   *speech.SpeechConfig
	dialer   *websocket.Dialer
	interval time.Duration
}

// NewVolcengineASRClient 创建火山引擎ASR客户端
func NewVolcengineASRClient(config *speech.SpeechConfig) *VolcengineASRClient {
	return &VolcengineASRClient{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		interval: audioChunkInterval,
	}
}

type asrRequestPayload struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type utterance struct {
	Text     string `json:"text"`
	Definite bool   `json:"definite"`
}

type asrServerPayload struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string      `json:"text"`
		Utterances []utterance `json:"utterances,omitempty"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
}

func (c *VolcengineASRClient) endpoint() string {
	if c.config != nil && c.config.Endpoint != "" {
		return c.config.Endpoint
	}
	return volcengineEndpoint
}

// Recognize 建立一次 WebSocket 会话，上传整段音频并返回最终识别结果。
func (c *VolcengineASRClient) Recognize(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	appID, token, err := volcengineCredentials(c.config)
	if err != nil {
		return nil, err
	}

	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	resourceID := resourceDuration
	if c.config.ConcurrentMode {
		resourceID = resourceConcurrent
	}
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect ASR websocket (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connect ASR websocket: %w", err)
	}
	defer conn.Close()

	if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
		log.Printf("[asr] connected connect_id=%s logid=%s", connectID, logid)
	}

	payload, err := sonic.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal ASR request: %w", err)
	}
	first, err := newClientRequestFrame(payload)
	if err != nil {
		return nil, fmt.Errorf("compress ASR request: %w", err)
	}
	if err := writeFrame(conn, first); err != nil {
		return nil, fmt.Errorf("send ASR request: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	// ReadMessage 不感知 context，取消时关闭连接以解除阻塞
	stop := context.AfterFunc(gctx, func() { conn.Close() })
	defer stop()

	// 收到最终结果后不再发送剩余音频
	sendCtx, stopSending := context.WithCancel(gctx)
	defer stopSending()

	var (
		result   *speech.ASRResponse
		received atomic.Bool
	)
	g.Go(func() error {
		if err := c.sendAudio(sendCtx, conn, audio); err != nil {
			if received.Load() {
				return nil
			}
			return fmt.Errorf("send audio: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		r, err := receiveResult(conn, req.SessionID)
		if err != nil {
			return err
		}
		result = r
		received.Store(true)
		stopSending()
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	result.RequestID = connectID
	return result, nil
}

func (c *VolcengineASRClient) buildRequest(req *speech.ASRRequest) *asrRequestPayload {
	p := &asrRequestPayload{}
	p.User.UID = req.SessionID

	p.Audio.Format = req.Format
	if p.Audio.Format == "" {
		p.Audio.Format = "wav"
	}
	p.Audio.Language = req.Language
	p.Audio.Codec = "raw"
	p.Audio.Rate = 16000
	p.Audio.Bits = 16
	p.Audio.Channel = 1

	p.Request.ModelName = "bigmodel"
	p.Request.EnableITN = true
	p.Request.EnablePunc = true
	p.Request.ShowUtterances = true
	p.Request.ResultType = "full"
	p.Request.EndWindowSize = 800
	return p
}

// sendAudio 按 200ms 分包发送，序号从 2 开始（首帧占用 1）。
func (c *VolcengineASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	sequence := int32(2)
	for offset := 0; offset < len(audio); offset += audioChunkSize {
		end := min(offset+audioChunkSize, len(audio))
		last := end == len(audio)

		frame, err := newAudioFrame(audio[offset:end], sequence, last)
		if err != nil {
			return err
		}
		if err := writeFrame(conn, frame); err != nil {
			return err
		}
		if last {
			return nil
		}
		sequence++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.interval):
		}
	}
	return nil
}

func receiveResult(conn *websocket.Conn, sessionID string) (*speech.ASRResponse, error) {
	var (
		text     string
		duration int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read ASR response: %w", err)
		}

		frame, err := ParseFrame(data)
		if err != nil {
			return nil, fmt.Errorf("decode ASR frame: %w", err)
		}

		switch frame.Type {
		case ErrorMessage:
			body, _ := frame.Body()
			return nil, fmt.Errorf("ASR error %d: %s", frame.ErrorCode, strings.TrimSpace(string(body)))

		case FullServerResponse:
			body, err := frame.Body()
			if err != nil {
				return nil, fmt.Errorf("decompress ASR payload: %w", err)
			}

			var payload asrServerPayload
			if err := sonic.Unmarshal(body, &payload); err != nil {
				log.Printf("[asr] unmarshal response failed: %v", err)
				continue
			}
			if payload.Code != 0 && payload.Code != 20000000 {
				return nil, fmt.Errorf("ASR API error %d: %s", payload.Code, payload.Message)
			}

			candidate := payload.Result.Text
			if candidate == "" {
				candidate = joinUtterances(payload.Result.Utterances)
			}
			if candidate != "" {
				text = candidate
			}
			if payload.AudioInfo.Duration > 0 {
				duration = payload.AudioInfo.Duration
			}

			if frame.Final() || payload.Sequence < 0 {
				return &speech.ASRResponse{
					SessionID: sessionID,
					Text:      text,
					Duration:  duration,
					CreatedAt: time.Now(),
				}, nil
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame *Frame) error {
	data, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func joinUtterances(utterances []utterance) string {
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, " ")
}
