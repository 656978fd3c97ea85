package backend

import "fmt"

// Kind selects how a profile reaches its model.
type Kind string

const (
	// KindSDKChat calls a hosted chat model through the eino SDK.
	KindSDKChat Kind = "sdk_chat"
	// KindRawHTTP posts an OpenAI-compatible chat completion request.
	KindRawHTTP Kind = "raw_http"
	// KindSDKTranscribe marks the speech recognition backend.
	KindSDKTranscribe Kind = "sdk_transcribe"
)

// ParseKind validates a kind read from configuration.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(raw); k {
	case KindSDKChat, KindRawHTTP, KindSDKTranscribe:
		return k, nil
	default:
		return "", fmt.Errorf("unknown backend kind %q", raw)
	}
}

// Profile describes one configured completion backend exposed to clients.
type Profile struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Kind         Kind   `json:"kind" yaml:"kind"`
	Model        string `json:"model" yaml:"model"`
	BaseURL      string `json:"baseUrl,omitempty" yaml:"base_url"`
	Region       string `json:"-" yaml:"region"`
	Description  string `json:"description,omitempty" yaml:"description"`
	SystemPrompt string `json:"-" yaml:"system_prompt"`

	// Credential material is never serialized to clients.
	APIKey    string `json:"-" yaml:"-"`
	APIKeyEnv string `json:"-" yaml:"api_key_env"`
	AccessKey string `json:"-" yaml:"-"`
	SecretKey string `json:"-" yaml:"-"`
}

// HasCredential reports whether the profile carries enough secret material to call out.
func (p Profile) HasCredential() bool {
	return p.APIKey != "" || (p.AccessKey != "" && p.SecretKey != "")
}
