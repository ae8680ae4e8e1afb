// Package provider wraps the language models that analyze chunks.
package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JGnft17/clawtographer/internal/config"
	"github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/logging"
)

// Analyzer turns a prompt into analysis text.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Modeler is implemented by analyzers that know which model they call.
type Modeler interface {
	Model() string
}

// ModelOf returns the analyzer's model name, or its provider name.
func ModelOf(a Analyzer) string {
	if m, ok := a.(Modeler); ok && m.Model() != "" {
		return m.Model()
	}
	return a.Name()
}

// Func adapts an in-process function to Analyzer.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Analyze(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func (Func) Name() string { return "func" }

// Candidate is one entry of the ranked provider list. Open probes the backend
// and returns a ready analyzer, or an error when it is unavailable.
type Candidate struct {
	Name string
	Open func(ctx context.Context) (Analyzer, error)
}

// Select returns the first candidate that opens successfully.
func Select(ctx context.Context, candidates []Candidate, log *slog.Logger) (Analyzer, error) {
	log = logging.Component(log, "provider")

	if len(candidates) == 0 {
		return nil, errors.NewProvider("select", false, stderrors.New("no providers configured"))
	}

	var reasons []string
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := c.Open(ctx)
		if err != nil {
			log.Debug("provider unavailable", "provider", c.Name, "error", err)
			reasons = append(reasons, fmt.Sprintf("%s: %v", c.Name, err))
			continue
		}
		log.Info("using provider", "provider", c.Name, "model", ModelOf(a))
		return a, nil
	}
	return nil, errors.NewProvider("select", false,
		fmt.Errorf("no provider available (%s)", strings.Join(reasons, "; ")))
}

// Candidates builds the ranked candidate list named by cfg.Providers.
func Candidates(cfg *config.Config) ([]Candidate, error) {
	models := cfg.Models
	if len(models) == 0 {
		models = config.DefaultModels
	}

	var out []Candidate
	for _, name := range cfg.Providers {
		switch name {
		case "ollama":
			host := cfg.OllamaHost
			out = append(out, Candidate{Name: name, Open: func(ctx context.Context) (Analyzer, error) {
				return OpenOllama(ctx, host, cfg.Model, models)
			}})
		case "ollama-cli":
			out = append(out, Candidate{Name: name, Open: func(ctx context.Context) (Analyzer, error) {
				return OpenOllamaCLI(ctx, cfg.Model, models, nil)
			}})
		case "command":
			argv := cfg.Command
			out = append(out, Candidate{Name: name, Open: func(ctx context.Context) (Analyzer, error) {
				return OpenCommand(argv, cfg.Model, nil)
			}})
		default:
			return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown provider %q (want ollama, ollama-cli or command)", name))
		}
	}
	return out, nil
}

// ChooseModel picks the model to use. A pinned model wins; otherwise the first
// installed model containing a priority entry; otherwise the first installed model.
func ChooseModel(installed []string, pinned string, priority []string) (string, error) {
	if pinned != "" {
		return pinned, nil
	}
	for _, want := range priority {
		for _, m := range installed {
			if strings.Contains(m, want) {
				return m, nil
			}
		}
	}
	if len(installed) > 0 {
		return installed[0], nil
	}
	return "", stderrors.New("no models installed")
}
