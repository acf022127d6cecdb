// Package runner executes external tools (git, docker, terraform) synchronously.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
)

// Command describes one subprocess invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env entries ("KEY=value") are layered on top of the parent environment.
	Env []string
	// Stdin, when set, is piped to the process. Secrets go here, never in Args.
	Stdin io.Reader
	// Quiet captures output in Result without streaming it to the writer.
	Quiet bool
}

// String renders the command line for logs.
func (c Command) String() string {
	return Format(c.Name, c.Args...)
}

// Result contains the outcome of a finished command.
type Result struct {
	ExitCode int
	Output   []byte
	Duration time.Duration
}

// Runner is the capability every external tool invocation goes through.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExitError reports a command that could not start or exited nonzero.
type ExitError struct {
	Command string
	Code    int
	Output  string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s exited with code %d: %v\n%s", e.Command, e.Code, e.Err, e.Output)
	}
	return fmt.Sprintf("%s exited with code %d: %v", e.Command, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Exec runs commands on the local machine, streaming merged output to Writer.
type Exec struct {
	Writer io.Writer
	Logger *zap.Logger
}

// NewExec creates an Exec runner. A nil writer discards output.
func NewExec(w io.Writer, logger *zap.Logger) *Exec {
	if w == nil {
		w = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exec{Writer: w, Logger: logger}
}

// Run executes cmd and waits for it to finish.
func (e *Exec) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Name == "" {
		return nil, errors.New("empty command")
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}

	var buf bytes.Buffer
	var out io.Writer = &buf
	if !cmd.Quiet {
		out = io.MultiWriter(&buf, e.Writer)
	}
	c.Stdout = out
	c.Stderr = out

	e.Logger.Debug("running command", zap.String("cmd", cmd.String()), zap.String("dir", cmd.Dir))

	start := time.Now()
	err := c.Run()
	result := &Result{
		Output:   buf.Bytes(),
		Duration: time.Since(start),
	}
	if c.ProcessState != nil {
		result.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil {
		e.Logger.Debug("command failed",
			zap.String("cmd", cmd.String()),
			zap.Int("exit_code", result.ExitCode),
			zap.Error(err))
		return result, &ExitError{
			Command: cmd.String(),
			Code:    result.ExitCode,
			Output:  Tail(string(result.Output), 20),
			Err:     err,
		}
	}

	e.Logger.Debug("command finished", zap.String("cmd", cmd.String()), zap.Duration("took", result.Duration))
	return result, nil
}

// Format quotes a command line the way a shell would need it.
func Format(name string, args ...string) string {
	return shellquote.Join(append([]string{name}, args...)...)
}

// Tail returns at most n trailing lines of s.
func Tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
