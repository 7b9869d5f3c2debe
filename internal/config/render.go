package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"reasoner/internal/observability"
)

// Redacted returns a copy with secrets masked, suitable for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return observability.SanitizeAPIKey(s)
	}
	c.LLM.APIKey = mask(c.LLM.APIKey)
	c.RAG.Embedder.APIKey = mask(c.RAG.Embedder.APIKey)
	c.Tools.WebSearch.APIKey = mask(c.Tools.WebSearch.APIKey)
	return c
}

// YAML renders c in the file format Load accepts.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}

// WriteFile saves c to path, refusing to overwrite an existing file.
func WriteFile(path string, c Config) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return f.Close()
}
