package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/chatdesk/backend/internal/model/speech"
)

func TestHTTPASRClientSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "en" {
			t.Errorf("unexpected fields: model=%q language=%q", r.FormValue("model"), r.FormValue("language"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "audio-bytes" || header.Filename != "audio.webm" {
				t.Errorf("unexpected file %q (%s)", data, header.Filename)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer srv.Close()

	client := NewHTTPASRClient(&speech.SpeechConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "whisper-1"}, srv.Client())
	resp, err := client.Recognize(context.Background(), &speech.ASRRequest{
		AudioData: strings.NewReader("audio-bytes"),
		Format:    "webm",
		Language:  "en-US",
	})
	if err != nil {
		t.Fatalf("Recognize err: %v", err)
	}
	if resp.Text != "hello world" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
}

func TestHTTPASRClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	}))
	defer srv.Close()

	client := NewHTTPASRClient(&speech.SpeechConfig{APIKey: "bad", BaseURL: srv.URL}, srv.Client())
	_, err := client.Recognize(context.Background(), &speech.ASRRequest{AudioData: strings.NewReader("a"), Format: "mp3"})
	if err == nil || !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTPASRClientMissingKey(t *testing.T) {
	client := NewHTTPASRClient(&speech.SpeechConfig{}, nil)
	if _, err := client.Recognize(context.Background(), &speech.ASRRequest{AudioData: strings.NewReader("a")}); err != ErrMissingAPIKey {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
