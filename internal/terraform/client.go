// Package terraform drives the terraform CLI for the application and
// monitoring stacks.
package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bgdnvk/deploytool/internal/runner"
	"go.uber.org/zap"
)

type Client struct {
	runner runner.Runner
	binary string
	path   string
	out    io.Writer
	logger *zap.Logger
}

// NewClient returns a client that runs binary inside path.
func NewClient(r runner.Runner, binary, path string, out io.Writer, logger *zap.Logger) *Client {
	if binary == "" {
		binary = "terraform"
	}
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{runner: r, binary: binary, path: path, out: out, logger: logger}
}

func (c *Client) checkPath() error {
	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("terraform directory %s: %w", c.path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("terraform directory %s is not a directory", c.path)
	}
	return nil
}

func (c *Client) run(ctx context.Context, env []string, args ...string) (*runner.Result, error) {
	return c.runner.Run(ctx, runner.Command{
		Name: c.binary,
		Args: args,
		Dir:  c.path,
		Env:  env,
	})
}

// Apply runs `terraform init` followed by `terraform apply -auto-approve`
// with env layered on the process environment.
func (c *Client) Apply(ctx context.Context, env []string) error {
	if err := c.checkPath(); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "[terraform] init in %s...\n", c.path)
	if _, err := c.run(ctx, env, "init", "-input=false"); err != nil {
		return fmt.Errorf("terraform init failed: %w", err)
	}

	fmt.Fprintf(c.out, "[terraform] apply...\n")
	if _, err := c.run(ctx, env, "apply", "-auto-approve", "-input=false"); err != nil {
		return fmt.Errorf("terraform apply failed: %w", err)
	}

	fmt.Fprintf(c.out, "[terraform] apply complete\n")
	c.logger.Info("terraform apply finished", zap.String("dir", c.path))
	return nil
}

// Destroy runs `terraform destroy -auto-approve`.
func (c *Client) Destroy(ctx context.Context, env []string) error {
	if err := c.checkPath(); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "[terraform] destroy in %s...\n", c.path)
	if _, err := c.run(ctx, env, "destroy", "-auto-approve", "-input=false"); err != nil {
		return fmt.Errorf("terraform destroy failed: %w", err)
	}

	fmt.Fprintf(c.out, "[terraform] destroy complete\n")
	c.logger.Info("terraform destroy finished", zap.String("dir", c.path))
	return nil
}

// Outputs returns the non-sensitive values of `terraform output -json`.
// The raw JSON is captured, not streamed.
func (c *Client) Outputs(ctx context.Context, env []string) (map[string]any, error) {
	res, err := c.runner.Run(ctx, runner.Command{
		Name:  c.binary,
		Args:  []string{"output", "-json"},
		Dir:   c.path,
		Env:   env,
		Quiet: true,
	})
	if err != nil {
		return nil, err
	}
	return ParseOutputs(res.Output)
}

// ParseOutputs extracts the value of each output from `terraform output -json`.
// Outputs marked sensitive are left out.
func ParseOutputs(data []byte) (map[string]any, error) {
	var outputs map[string]any
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse terraform outputs: %w", err)
	}

	result := make(map[string]any)
	for key, value := range outputs {
		if valueMap, ok := value.(map[string]any); ok {
			if sensitive, _ := valueMap["sensitive"].(bool); sensitive {
				continue
			}
			if val, exists := valueMap["value"]; exists {
				result[key] = val
			}
		}
	}
	return result, nil
}

// FormatOutputs renders outputs as sorted "key = value" lines.
func FormatOutputs(outputs map[string]any) string {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		switch v := outputs[k].(type) {
		case string:
			fmt.Fprintf(&b, "%s = %s\n", k, v)
		default:
			raw, _ := json.Marshal(v)
			fmt.Fprintf(&b, "%s = %s\n", k, raw)
		}
	}
	return b.String()
}
