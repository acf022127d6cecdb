package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bgdnvk/deploytool/internal/aws"
	"github.com/bgdnvk/deploytool/internal/deploy"
	"github.com/bgdnvk/deploytool/internal/docker"
	"github.com/bgdnvk/deploytool/internal/logging"
	"github.com/bgdnvk/deploytool/internal/monitor"
	"github.com/bgdnvk/deploytool/internal/project"
	"github.com/bgdnvk/deploytool/internal/runner"
	"github.com/bgdnvk/deploytool/internal/settings"
	"github.com/bgdnvk/deploytool/internal/source"
	"github.com/bgdnvk/deploytool/internal/terraform"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app is the per-invocation wiring shared by the subcommands.
type app struct {
	settings *settings.Settings
	logger   *zap.Logger
	out      io.Writer
}

func newApp(cmd *cobra.Command) (*app, error) {
	s, err := settings.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(s.Log.Level, s.Log.Format)
	if err != nil {
		return nil, err
	}
	return &app{settings: s, logger: logger, out: cmd.OutOrStdout()}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) store() *project.Store {
	return project.NewStore(a.settings.ConfigPath)
}

func (a *app) awsClient(ctx context.Context) (*aws.Client, error) {
	client, err := aws.NewClient(ctx, aws.Options{
		Profile:       a.settings.AWS.Profile,
		DefaultRegion: a.settings.AWS.DefaultRegion,
		Out:           a.out,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("aws client ready",
		zap.String("profile", client.Profile()),
		zap.String("region", client.Region()))
	return client, nil
}

func (a *app) orchestrator(ctx context.Context) (*deploy.Orchestrator, error) {
	client, err := a.awsClient(ctx)
	if err != nil {
		return nil, &deploy.Error{Kind: deploy.KindPrecondition, Op: "load AWS config", Err: err}
	}

	exec := runner.NewExec(a.out, a.logger)
	return deploy.New(deploy.Deps{
		Store:       a.store(),
		Cloud:       client,
		Fetcher:     source.NewFetcher(exec, ".", a.settings.ClonePrefix, a.out, a.logger),
		Publisher:   docker.NewPublisher(exec, a.out, a.logger),
		Provisioner: terraform.NewClient(exec, a.settings.Terraform.Binary, a.settings.Terraform.Dir, a.out, a.logger),
		Prober:      monitor.NewProber(a.settings.Monitor.ProbeTimeout, a.logger),
		Inspector:   source.NewGitHubInspector(a.settings.GitHub.Token),
		Out:         a.out,
		Logger:      a.logger,
	}, deploy.Options{
		BucketName:          a.settings.BucketName,
		DefaultRegion:       a.settings.AWS.DefaultRegion,
		MonitorInstanceName: a.settings.Monitor.InstanceName,
		SourceMaps:          a.settings.Build.SourceMaps,
	})
}

// withOrchestrator builds the app and orchestrator for one command run and
// cancels the context on SIGINT/SIGTERM.
func withOrchestrator(cmd *cobra.Command, fn func(ctx context.Context, a *app, o *deploy.Orchestrator) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	o, err := a.orchestrator(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, a, o); err != nil {
		a.logger.Debug("command failed", zap.String("command", cmd.CommandPath()), zap.String("kind", string(deploy.KindOf(err))), zap.Error(err))
		return err
	}
	return nil
}
