package speech

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chatdesk/backend/internal/model/speech"
)

// fakeASRServer 模拟火山引擎识别服务：读完所有音频帧后返回最终结果
func fakeASRServer(t *testing.T, reply func(audio []byte) *Frame) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-App-Key") != "app" || r.Header.Get("X-Api-Access-Key") != "token" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if r.Header.Get("X-Api-Resource-Id") != resourceDuration || r.Header.Get("X-Api-Connect-Id") == "" {
			http.Error(w, "bad headers", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		first, err := ParseFrame(data)
		if err != nil || first.Type != FullClientRequest {
			t.Errorf("expected full client request, got %+v (%v)", first, err)
			return
		}

		var audio bytes.Buffer
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := ParseFrame(data)
			if err != nil {
				t.Errorf("parse audio frame: %v", err)
				return
			}
			chunk, _ := frame.Body()
			audio.Write(chunk)
			if frame.Final() {
				break
			}
		}

		out, _ := reply(audio.Bytes()).MarshalBinary()
		_ = conn.WriteMessage(websocket.BinaryMessage, out)
	}))
}

func testVolcengineClient(srv *httptest.Server) *VolcengineASRClient {
	client := NewVolcengineASRClient(&speech.SpeechConfig{
		AppID:       "app",
		AccessToken: "token",
		Endpoint:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	client.interval = 0
	return client
}

func TestVolcengineRecognize(t *testing.T) {
	audio := bytes.Repeat([]byte{0x01}, audioChunkSize*2+10)

	srv := fakeASRServer(t, func(got []byte) *Frame {
		if !bytes.Equal(got, audio) {
			t.Errorf("server received %d bytes, want %d", len(got), len(audio))
		}
		body, _ := sonic.Marshal(map[string]any{
			"code":   20000000,
			"result": map[string]any{"utterances": []map[string]any{{"text": "hello"}, {"text": "world"}}},
		})
		payload, _ := CompressPayload(body, GzipCompression)
		return &Frame{Type: FullServerResponse, Flags: NegativeSequenceNumber, Sequence: -4, Serialization: JSONSerialization, Compression: GzipCompression, Payload: payload}
	})
	defer srv.Close()

	resp, err := testVolcengineClient(srv).Recognize(context.Background(), &speech.ASRRequest{
		SessionID: "s1",
		AudioData: bytes.NewReader(audio),
		Format:    "pcm",
	})
	if err != nil {
		t.Fatalf("Recognize err: %v", err)
	}
	if resp.Text != "hello world" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.RequestID == "" {
		t.Fatal("expected connect id as request id")
	}
}

func TestVolcengineServerError(t *testing.T) {
	srv := fakeASRServer(t, func([]byte) *Frame {
		return &Frame{Type: ErrorMessage, ErrorCode: 45000081, Payload: []byte("audio too short")}
	})
	defer srv.Close()

	_, err := testVolcengineClient(srv).Recognize(context.Background(), &speech.ASRRequest{AudioData: bytes.NewReader([]byte{1, 2}), Format: "pcm"})
	if err == nil || !strings.Contains(err.Error(), "audio too short") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVolcengineMissingCredentials(t *testing.T) {
	client := NewVolcengineASRClient(&speech.SpeechConfig{})
	if _, err := client.Recognize(context.Background(), &speech.ASRRequest{AudioData: bytes.NewReader([]byte{1})}); err != ErrMissingAppKey {
		t.Fatalf("expected ErrMissingAppKey, got %v", err)
	}
}

func TestVolcengineStopsSendingAfterFinalResult(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// 请求帧和第一个音频包
		for i := 0; i < 2; i++ {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}

		body, _ := sonic.Marshal(map[string]any{"code": 20000000, "result": map[string]any{"text": "early"}})
		payload, _ := CompressPayload(body, GzipCompression)
		out, _ := (&Frame{Type: FullServerResponse, Flags: NegativeSequenceNumber, Sequence: -2, Serialization: JSONSerialization, Compression: GzipCompression, Payload: payload}).MarshalBinary()
		_ = conn.WriteMessage(websocket.BinaryMessage, out)
	}))
	defer srv.Close()

	client := testVolcengineClient(srv)
	client.interval = 2 * time.Second

	started := time.Now()
	resp, err := client.Recognize(context.Background(), &speech.ASRRequest{
		AudioData: bytes.NewReader(bytes.Repeat([]byte{0x01}, audioChunkSize*5)),
		Format:    "pcm",
	})
	if err != nil {
		t.Fatalf("Recognize err: %v", err)
	}
	if resp.Text != "early" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("remaining audio was still sent after the final result: %s", elapsed)
	}
}
