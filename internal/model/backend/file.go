package backend

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type profileFile struct {
	Backends []Profile `yaml:"backends"`
}

// DecodeProfiles reads a YAML document of the form
//
//	backends:
//	  - id: groq
//	    kind: raw_http
//	    model: llama-3.1-70b
//	    base_url: https://api.groq.com/openai/v1
//	    api_key_env: GROQ_API_KEY
//
// Credentials are resolved from the environment variable named by api_key_env.
func DecodeProfiles(r io.Reader) ([]Profile, error) {
	var doc profileFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode backend profiles: %w", err)
	}

	profiles := make([]Profile, 0, len(doc.Backends))
	for i, p := range doc.Backends {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("backend profile #%d: id is required", i+1)
		}
		kind, err := ParseKind(string(p.Kind))
		if err != nil {
			return nil, fmt.Errorf("backend profile %s: %w", p.ID, err)
		}
		if kind == KindSDKTranscribe {
			return nil, fmt.Errorf("backend profile %s: %s is not a chat backend", p.ID, kind)
		}
		p.Kind = kind
		if p.Name == "" {
			p.Name = p.ID
		}
		if p.APIKeyEnv != "" {
			p.APIKey = strings.TrimSpace(os.Getenv(p.APIKeyEnv))
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// LoadProfiles reads profiles from a YAML file on disk.
func LoadProfiles(path string) ([]Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open backend profiles: %w", err)
	}
	defer f.Close()
	return DecodeProfiles(f)
}
