package provider

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGnft17/clawtographer/internal/config"
	"github.com/JGnft17/clawtographer/internal/errors"
)

const listOutput = `NAME                    ID              SIZE      MODIFIED
llama3.1:8b             42182419e950    4.7 GB    3 weeks ago
qwen2.5-coder:7b        2b0496514337    4.7 GB    2 days ago
`

func TestParseOllamaList(t *testing.T) {
	assert.Equal(t, []string{"llama3.1:8b", "qwen2.5-coder:7b"}, parseOllamaList(listOutput))
	assert.Empty(t, parseOllamaList("NAME ID SIZE MODIFIED\n"))
}

func TestOpenOllamaCLI(t *testing.T) {
	var calls [][]string
	run := func(ctx context.Context, argv []string, stdin string) (string, error) {
		calls = append(calls, argv)
		if argv[1] == "list" {
			return listOutput, nil
		}
		return "## Overview\n" + strings.ToUpper(stdin) + "\n", nil
	}

	c, err := OpenOllamaCLI(context.Background(), "", config.DefaultModels, run)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-coder:7b", c.Model())
	assert.Equal(t, "ollama-cli", c.Name())

	out, err := c.Analyze(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "## Overview\nHELLO", out)
	assert.Equal(t, []string{"ollama", "run", "qwen2.5-coder:7b"}, calls[1])
}

func TestOpenOllamaCLI_NoModels(t *testing.T) {
	run := func(context.Context, []string, string) (string, error) { return "NAME ID SIZE MODIFIED\n", nil }

	_, err := OpenOllamaCLI(context.Background(), "", config.DefaultModels, run)
	assert.True(t, errors.Is(err, errors.ErrProvider))
}

func TestCommand_EmptyOutputIsRetryable(t *testing.T) {
	c, err := OpenCommand([]string{"claude", "-p"}, "", func(context.Context, []string, string) (string, error) {
		return "  \n", nil
	})
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), "prompt")
	assert.True(t, errors.Is(err, errors.ErrProvider))
	assert.True(t, errors.IsRetryable(err))
}

func TestCommand_MissingBinaryIsPermanent(t *testing.T) {
	c, err := OpenCommand([]string{"x"}, "", func(context.Context, []string, string) (string, error) {
		return "", fmt.Errorf("start: %w", exec.ErrNotFound)
	})
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), "prompt")
	assert.True(t, errors.Is(err, errors.ErrProvider))
	assert.False(t, errors.IsRetryable(err))
}

func TestOpenCommand_NoArgv(t *testing.T) {
	_, err := OpenCommand(nil, "", nil)
	assert.True(t, errors.Is(err, errors.ErrProvider))
}

func TestOpenCommand_BinaryNotOnPath(t *testing.T) {
	_, err := OpenCommand([]string{"clawtographer-no-such-binary-xyz"}, "", nil)
	assert.True(t, errors.Is(err, errors.ErrProvider))
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	out, err := ExecRunner(context.Background(), []string{"cat"}, "piped prompt")
	require.NoError(t, err)
	assert.Equal(t, "piped prompt", out)
}
