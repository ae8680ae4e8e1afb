package provider

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/JGnft17/clawtographer/internal/errors"
)

// Runner executes argv with stdin and returns stdout. Replaced in tests.
type Runner func(ctx context.Context, argv []string, stdin string) (string, error)

// ExecRunner runs argv as a subprocess.
func ExecRunner(ctx context.Context, argv []string, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

// Command analyzes prompts by piping them to an external program.
type Command struct {
	name  string
	argv  []string
	model string
	run   Runner
}

// OpenCommand validates argv and returns the analyzer. run defaults to ExecRunner.
func OpenCommand(argv []string, model string, run Runner) (*Command, error) {
	if len(argv) == 0 {
		return nil, errors.NewProvider("command", false, fmt.Errorf("no command configured"))
	}
	if run == nil {
		if _, err := exec.LookPath(argv[0]); err != nil {
			return nil, errors.NewProvider("command", false, err)
		}
		run = ExecRunner
	}
	return &Command{name: "command", argv: append([]string(nil), argv...), model: model, run: run}, nil
}

// OpenOllamaCLI probes the ollama binary, picks a model from `ollama list`
// and returns an analyzer running `ollama run <model>`.
func OpenOllamaCLI(ctx context.Context, pinned string, priority []string, run Runner) (*Command, error) {
	if run == nil {
		if _, err := exec.LookPath("ollama"); err != nil {
			return nil, errors.NewProvider("ollama-cli", false, err)
		}
		run = ExecRunner
	}

	out, err := run(ctx, []string{"ollama", "list"}, "")
	if err != nil {
		return nil, classify("ollama-cli", err)
	}
	model, err := ChooseModel(parseOllamaList(out), pinned, priority)
	if err != nil {
		return nil, errors.NewProvider("ollama-cli", false, err)
	}

	return &Command{name: "ollama-cli", argv: []string{"ollama", "run", model}, model: model, run: run}, nil
}

// parseOllamaList returns the NAME column of `ollama list` output.
func parseOllamaList(out string) []string {
	var models []string
	sc := bufio.NewScanner(strings.NewReader(out))
	first := true
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if first {
			first = false
			if len(fields) > 0 && strings.EqualFold(fields[0], "NAME") {
				continue
			}
		}
		if len(fields) > 0 {
			models = append(models, fields[0])
		}
	}
	return models
}

func (c *Command) Name() string  { return c.name }
func (c *Command) Model() string { return c.model }

func (c *Command) Analyze(ctx context.Context, prompt string) (string, error) {
	out, err := c.run(ctx, c.argv, prompt)
	if err != nil {
		return "", classify(c.name, err)
	}
	text := strings.TrimSpace(out)
	if text == "" {
		return "", errors.NewProvider(c.name, true, fmt.Errorf("empty output from %s", c.argv[0]))
	}
	return text, nil
}
