// Package docker builds application images and pushes them to the account
// registry through the docker CLI.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bgdnvk/deploytool/internal/runner"
	"go.uber.org/zap"
)

// Auth is the registry login handed to `docker login`.
type Auth struct {
	Username string
	Password string
	Registry string
}

// Publisher drives `docker build`, `docker login` and `docker push`.
type Publisher struct {
	Runner runner.Runner
	Out    io.Writer
	Logger *zap.Logger
}

func NewPublisher(r runner.Runner, out io.Writer, logger *zap.Logger) *Publisher {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{Runner: r, Out: out, Logger: logger}
}

// ImageRef joins a repository with a tag. An empty tag yields the bare repository.
func ImageRef(repository, tag string) string {
	if tag == "" {
		return repository
	}
	return repository + ":" + tag
}

// RegistryOf returns the host part of an image reference.
func RegistryOf(ref string) string {
	host, _, _ := strings.Cut(ref, "/")
	return host
}

// BuildAndPush builds ref from dir without the layer cache, logs in to the
// registry with the password on stdin and pushes ref. The first failing step
// aborts the rest.
func (p *Publisher) BuildAndPush(ctx context.Context, ref, dir string, auth Auth) error {
	if ref == "" {
		return errors.New("image reference is required")
	}
	if auth.Password == "" {
		return errors.New("registry password is required")
	}
	registry := auth.Registry
	if registry == "" {
		registry = RegistryOf(ref)
	}
	user := auth.Username
	if user == "" {
		user = "AWS"
	}

	fmt.Fprintf(p.Out, "[docker] building %s from %s...\n", ref, dir)
	if _, err := p.Runner.Run(ctx, runner.Command{
		Name: "docker",
		Args: []string{"build", "--no-cache", "-t", ref, "."},
		Dir:  dir,
	}); err != nil {
		return fmt.Errorf("docker build failed: %w", err)
	}

	fmt.Fprintf(p.Out, "[docker] logging in to %s...\n", registry)
	if _, err := p.Runner.Run(ctx, runner.Command{
		Name:  "docker",
		Args:  []string{"login", "--username", user, "--password-stdin", registry},
		Stdin: strings.NewReader(auth.Password),
	}); err != nil {
		return fmt.Errorf("docker login to %s failed: %w", registry, err)
	}

	fmt.Fprintf(p.Out, "[docker] pushing %s...\n", ref)
	if _, err := p.Runner.Run(ctx, runner.Command{
		Name: "docker",
		Args: []string{"push", ref},
	}); err != nil {
		return fmt.Errorf("docker push failed: %w", err)
	}

	fmt.Fprintf(p.Out, "[docker] push complete\n")
	p.Logger.Info("published image", zap.String("ref", ref))
	return nil
}
