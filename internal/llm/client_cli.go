package llm

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// cliTool describes how a local LLM command takes its prompt.
type cliTool struct {
	args       []string
	viaStdin   bool
	modelFlag  string // empty when the tool has no model flag
	promptLast bool
}

// knownCLITools maps command names to their invocation. Unknown commands
// read the prompt on stdin and take --model.
var knownCLITools = map[string]cliTool{
	"claude": {args: []string{"-p"}, viaStdin: true, modelFlag: "--model"},
	"gemini": {args: []string{"-p"}, modelFlag: "--model", promptLast: true},
	"sgpt":   {args: []string{"--no-cache", "--temperature", "0"}, modelFlag: "--model", promptLast: true},
	"aichat": {viaStdin: true},
}

// CLIClient runs a local command-line LLM tool and returns its output.
type CLIClient struct {
	command string
	model   string
	tool    cliTool
}

// NewCLIClient creates a client for command, which is either a known tool
// or any executable on PATH.
func NewCLIClient(command, model string) (*CLIClient, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("empty CLI command")
	}
	tool, ok := knownCLITools[command]
	if !ok {
		tool = cliTool{viaStdin: true, modelFlag: "--model"}
	}
	return &CLIClient{command: command, model: model, tool: tool}, nil
}

// argv returns the arguments for one call.
func (c *CLIClient) argv(prompt string) []string {
	args := append([]string{}, c.tool.args...)
	if c.model != "" && c.tool.modelFlag != "" {
		args = append(args, c.tool.modelFlag, c.model)
	}
	if c.tool.promptLast {
		args = append(args, prompt)
	}
	return args
}

// Complete runs the command with prompt and returns trimmed stdout.
func (c *CLIClient) Complete(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, c.command, c.argv(prompt)...)
	if c.tool.viaStdin {
		cmd.Stdin = strings.NewReader(prompt)
	}

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s failed: %w (stderr: %s)", c.command, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s failed: %w", c.command, err)
	}
	return strings.TrimSpace(string(output)), nil
}
