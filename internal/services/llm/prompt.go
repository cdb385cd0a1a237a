package llm

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed prompt.txt
var defaultPrompt string

// DefaultPrompt returns the built-in description prompt.
func DefaultPrompt() string {
	return strings.TrimSpace(defaultPrompt)
}

// LoadPrompt reads a prompt override from path, or returns the built-in
// prompt when path is empty.
func LoadPrompt(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPrompt(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("read prompt: %s is empty", path)
	}
	return prompt, nil
}
