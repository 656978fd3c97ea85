package completion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

// Sampling parameters sent with every raw HTTP request.
const (
	rawHTTPTemperature = 0.7
	rawHTTPTopP        = 1.0
)

// RawHTTPBackend posts OpenAI-compatible chat completion requests.
type RawHTTPBackend struct {
	profile backend.Profile
	client  *http.Client
}

// NewRawHTTPBackend builds a backend for an OpenAI-compatible endpoint.
func NewRawHTTPBackend(profile backend.Profile, client *http.Client) *RawHTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &RawHTTPBackend{profile: profile, client: client}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message *wireMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Name returns the profile display name.
func (b *RawHTTPBackend) Name() string {
	return b.profile.Name
}

func (b *RawHTTPBackend) endpoint() string {
	base := strings.TrimRight(b.profile.BaseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// Complete sends the transcript and returns choices[0].message.content.
func (b *RawHTTPBackend) Complete(ctx context.Context, systemPrompt string, history []chat.Message) (string, error) {
	messages := withSystem(systemPrompt, history)
	return observe(ctx, b.profile.ID, b.profile.Model, len(messages), func(ctx context.Context) (string, error) {
		return b.complete(ctx, messages)
	})
}

func (b *RawHTTPBackend) complete(ctx context.Context, messages []chat.Message) (string, error) {
	name := b.Name()
	if strings.TrimSpace(b.profile.APIKey) == "" {
		return "", configurationFailure(name, ErrMissingCredential)
	}
	if b.profile.Model == "" {
		return "", configurationFailure(name, ErrMissingModel)
	}

	payload := chatCompletionRequest{
		Model:       b.profile.Model,
		Messages:    make([]wireMessage, 0, len(messages)),
		Temperature: rawHTTPTemperature,
		TopP:        rawHTTPTopP,
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return "", callFailure(name, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", configurationFailure(name, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+b.profile.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", callFailure(name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", callFailure(name, fmt.Errorf("read response: %w", err))
	}

	var parsed chatCompletionResponse
	decodeErr := sonic.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := http.StatusText(resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			reason = parsed.Error.Message
		}
		err := fmt.Errorf("status %d: %s", resp.StatusCode, reason)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", configurationFailure(name, err)
		}
		return "", callFailure(name, err)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return "", callFailure(name, fmt.Errorf("%w: empty body", ErrMalformedResponse))
	}
	if decodeErr != nil {
		return "", callFailure(name, fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		return "", callFailure(name, fmt.Errorf("%w: no choices", ErrMalformedResponse))
	}

	reply := parsed.Choices[0].Message.Content
	log.Printf("[completion] %s replied, length=%d", b.profile.ID, len(reply))
	return reply, nil
}
