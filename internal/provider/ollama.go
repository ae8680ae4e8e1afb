package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/JGnft17/clawtographer/internal/errors"
)

// Ollama analyzes prompts through the Ollama HTTP API.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama returns an analyzer for model using client.
func NewOllama(client *api.Client, model string) *Ollama {
	return &Ollama{client: client, model: model}
}

// OpenOllama connects to host (or OLLAMA_HOST when empty), lists the
// installed models and picks one.
func OpenOllama(ctx context.Context, host, pinned string, priority []string) (*Ollama, error) {
	client, err := newOllamaClient(host)
	if err != nil {
		return nil, errors.NewProvider("ollama", false, err)
	}

	resp, err := client.List(ctx)
	if err != nil {
		return nil, classify("ollama", err)
	}
	installed := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		installed = append(installed, m.Name)
	}

	model, err := ChooseModel(installed, pinned, priority)
	if err != nil {
		return nil, errors.NewProvider("ollama", false, err)
	}
	return NewOllama(client, model), nil
}

func newOllamaClient(host string) (*api.Client, error) {
	if strings.TrimSpace(host) == "" {
		return api.ClientFromEnvironment()
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama_host %q: %w", host, err)
	}
	return api.NewClient(u, http.DefaultClient), nil
}

func (o *Ollama) Name() string  { return "ollama" }
func (o *Ollama) Model() string { return o.model }

func (o *Ollama) Analyze(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var b strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		b.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", classify("ollama", err)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.NewProvider("ollama", true, fmt.Errorf("empty response from %s", o.model))
	}
	return text, nil
}
