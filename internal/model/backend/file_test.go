package backend

import (
	"strings"
	"testing"
)

func TestDecodeProfilesResolvesCredentialEnv(t *testing.T) {
	t.Setenv("ALT_PROVIDER_KEY", "secret")

	doc := `
backends:
  - id: alt
    kind: raw_http
    model: llama-3.1-70b
    base_url: https://api.example.com/v1
    api_key_env: ALT_PROVIDER_KEY
`
	profiles, err := DecodeProfiles(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("DecodeProfiles err: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	p := profiles[0]
	if p.Name != "alt" {
		t.Fatalf("expected name to default to id, got %q", p.Name)
	}
	if p.APIKey != "secret" || !p.HasCredential() {
		t.Fatalf("expected credential resolved from env")
	}
}

func TestDecodeProfilesRejectsUnknownKind(t *testing.T) {
	doc := "backends:\n  - id: x\n    kind: carrier_pigeon\n"
	if _, err := DecodeProfiles(strings.NewReader(doc)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDecodeProfilesEmptyDocument(t *testing.T) {
	profiles, err := DecodeProfiles(strings.NewReader(""))
	if err != nil {
		t.Fatalf("DecodeProfiles err: %v", err)
	}
	if len(profiles) != 0 {
		t.Fatalf("expected no profiles, got %d", len(profiles))
	}
}

func TestMemoryStoreDefaultFallsBackToFirst(t *testing.T) {
	store := NewMemoryStore([]Profile{{ID: "a"}, {ID: "b"}}, "missing")
	if got := store.Default().ID; got != "a" {
		t.Fatalf("expected fallback to first profile, got %s", got)
	}

	store = NewMemoryStore([]Profile{{ID: "a"}, {ID: "b"}}, "b")
	if got := store.Default().ID; got != "b" {
		t.Fatalf("expected configured default, got %s", got)
	}
}
