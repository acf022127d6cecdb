// Package deploy sequences the init, deploy, rollback, destroy and monitoring
// workflows over the source, registry, image and terraform components.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/bgdnvk/deploytool/internal/aws"
	"github.com/bgdnvk/deploytool/internal/docker"
	"github.com/bgdnvk/deploytool/internal/monitor"
	"github.com/bgdnvk/deploytool/internal/project"
	"github.com/bgdnvk/deploytool/internal/source"
	"github.com/bgdnvk/deploytool/internal/terraform"
	"go.uber.org/zap"
)

const (
	// DefaultEnvironment is the label used when none is given. Labels are
	// printed only; every label targets the same stack.
	DefaultEnvironment = "dev"
	// MonitoringRepoName names the monitoring stack when no project is initialized.
	MonitoringRepoName = "monitoring"
)

// ConfigStore persists the project config between runs.
type ConfigStore interface {
	Load() (*project.Config, error)
	Save(cfg *project.Config) error
}

// Cloud is every AWS capability the workflows use.
type Cloud interface {
	Account
	Verify(ctx context.Context) (*aws.Identity, error)
	RegistryHost(ctx context.Context) (string, error)
	EnsureRepository(ctx context.Context, name string) (string, error)
	RegistryAuth(ctx context.Context) (*aws.RegistryAuth, error)
	ListImageTags(ctx context.Context, repo string) ([]aws.ImageTag, error)
	EnsureBucket(ctx context.Context, name string) (bool, error)
	UploadDirectory(ctx context.Context, dir, bucket, prefix string) (*aws.UploadReport, error)
	MonitoringInstanceIP(ctx context.Context, name string) (string, error)
}

// Fetcher clones a repository into a fresh working directory.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL string) (dir string, name string, err error)
}

// Publisher builds an image from dir and pushes it as ref.
type Publisher interface {
	BuildAndPush(ctx context.Context, ref, dir string, auth docker.Auth) error
}

// Provisioner applies or tears down the stack with env as TF_VAR_* variables.
type Provisioner interface {
	Apply(ctx context.Context, env []string) error
	Destroy(ctx context.Context, env []string) error
	Outputs(ctx context.Context, env []string) (map[string]any, error)
}

// Prober checks the monitoring services on host.
type Prober interface {
	Probe(ctx context.Context, host string) []monitor.Result
}

// RepoInspector looks up hosting metadata for a repository URL.
type RepoInspector interface {
	Inspect(ctx context.Context, repoURL string) (*source.RepoInfo, error)
}

// Deps are the collaborators of an Orchestrator. Inspector and Tags are optional.
type Deps struct {
	Store       ConfigStore
	Cloud       Cloud
	Fetcher     Fetcher
	Publisher   Publisher
	Provisioner Provisioner
	Prober      Prober
	Inspector   RepoInspector
	Tags        *TagMinter
	Out         io.Writer
	Logger      *zap.Logger
}

// Options tune an Orchestrator. Zero values fall back to defaults in New.
type Options struct {
	BucketName          string
	DefaultRegion       string
	MonitorInstanceName string
	SourceMaps          bool
}

// Orchestrator runs the deploytool workflows. It is not safe for concurrent use.
type Orchestrator struct {
	store       ConfigStore
	cloud       Cloud
	fetcher     Fetcher
	publisher   Publisher
	provisioner Provisioner
	prober      Prober
	inspector   RepoInspector
	tags        *TagMinter
	out         io.Writer
	logger      *zap.Logger
	opts        Options
}

// New validates deps and returns an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("config store is required")
	case deps.Cloud == nil:
		return nil, errors.New("cloud client is required")
	case deps.Fetcher == nil:
		return nil, errors.New("source fetcher is required")
	case deps.Publisher == nil:
		return nil, errors.New("image publisher is required")
	case deps.Provisioner == nil:
		return nil, errors.New("provisioner is required")
	case deps.Prober == nil:
		return nil, errors.New("monitor prober is required")
	}

	o := &Orchestrator{
		store:       deps.Store,
		cloud:       deps.Cloud,
		fetcher:     deps.Fetcher,
		publisher:   deps.Publisher,
		provisioner: deps.Provisioner,
		prober:      deps.Prober,
		inspector:   deps.Inspector,
		tags:        deps.Tags,
		out:         deps.Out,
		logger:      deps.Logger,
		opts:        opts,
	}
	if o.tags == nil {
		o.tags = NewTagMinter(nil)
	}
	if o.out == nil {
		o.out = io.Discard
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.opts.DefaultRegion == "" {
		o.opts.DefaultRegion = aws.HomeRegion
	}
	if o.opts.MonitorInstanceName == "" {
		o.opts.MonitorInstanceName = "monitoring-instance"
	}
	return o, nil
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.out, format, args...)
}

func (o *Orchestrator) requireConfig(withURL bool) (*project.Config, error) {
	cfg, err := o.store.Load()
	if err != nil {
		return nil, wrap(KindPrecondition, "load project config", err)
	}
	if err := cfg.RequireRepo(withURL); err != nil {
		return nil, wrap(KindPrecondition, "load project config", err)
	}
	return cfg, nil
}

func (o *Orchestrator) verify(ctx context.Context) (*aws.Identity, error) {
	id, err := o.cloud.Verify(ctx)
	if err != nil {
		return nil, wrap(KindPrecondition, "verify AWS credentials", err)
	}
	o.printf("[aws] credentials verified: %s\n", id.ARN)
	return id, nil
}

func (o *Orchestrator) accountDefaults(ctx context.Context) (ami, key string, err error) {
	ami, err = o.cloud.LatestAMI(ctx)
	if err != nil {
		return "", "", wrap(KindPrecondition, "resolve AMI", err)
	}
	o.printf("[aws] using Amazon Linux 2023 AMI: %s\n", ami)

	key, err = o.cloud.DefaultKeyPair(ctx)
	if err != nil {
		return "", "", wrap(KindPrecondition, "resolve EC2 key pair", err)
	}
	o.printf("[aws] using EC2 key pair: %s\n", key)
	return ami, key, nil
}

func (o *Orchestrator) environment(ctx context.Context, creds aws.Credentials, imageURI, repoName string) (*Environment, error) {
	ami, key, err := o.accountDefaults(ctx)
	if err != nil {
		return nil, err
	}
	env, err := BuildEnvironment(ctx, o.cloud, o.opts.DefaultRegion, EnvironmentRequest{
		Credentials: creds,
		ImageURI:    imageURI,
		RepoName:    repoName,
		AMIID:       ami,
		KeyName:     key,
	})
	if err != nil {
		return nil, err
	}
	o.printf("[aws] using default VPC: %s (%d subnets) in %s\n", env.VPCID, len(env.SubnetIDs), env.Region)
	o.logger.Debug("built provisioning environment",
		zap.String("image", env.ImageURI),
		zap.String("repo", env.RepoName),
		zap.String("role", env.ExecutionRoleARN))
	return env, nil
}

func (o *Orchestrator) apply(ctx context.Context, env *Environment) (map[string]any, error) {
	vars := env.Vars()
	if err := o.provisioner.Apply(ctx, vars); err != nil {
		return nil, wrap(KindExternal, "terraform apply", err)
	}

	outputs, err := o.provisioner.Outputs(ctx, vars)
	if err != nil {
		o.logger.Debug("terraform outputs unavailable", zap.Error(err))
		return nil, nil
	}
	if len(outputs) > 0 {
		o.printf("[terraform] outputs:\n%s", terraform.FormatOutputs(outputs))
	}
	return outputs, nil
}

// Init clones repoURL, ensures the source bucket, classifies the project and
// saves the project config.
func (o *Orchestrator) Init(ctx context.Context, repoURL string) (*project.Config, error) {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return nil, &Error{Kind: KindInvalid, Op: "init", Err: errors.New("repository URL is required")}
	}

	dir, name, err := o.fetcher.Fetch(ctx, repoURL)
	if err != nil {
		return nil, wrap(KindExternal, "clone repository", err)
	}
	repoName, err := project.Sanitize(name)
	if err != nil {
		return nil, wrap(KindInvalid, "sanitize repo name", err)
	}

	o.describeRepo(ctx, repoURL)

	if _, err := o.cloud.EnsureBucket(ctx, o.opts.BucketName); err != nil {
		return nil, wrap(KindExternal, "ensure bucket", err)
	}

	projectType, err := project.Classify(dir)
	if err != nil {
		return nil, wrap(KindInvalid, "classify project", err)
	}
	o.printf("[init] project type detected: %s\n", projectType)

	cfg := &project.Config{
		BucketName:  o.opts.BucketName,
		RepoName:    repoName,
		RepoURL:     repoURL,
		ProjectType: projectType,
	}
	if err := o.store.Save(cfg); err != nil {
		return nil, wrap(KindPrecondition, "save project config", err)
	}
	o.printf("[init] init completed for project '%s'\n", name)
	return cfg, nil
}

func (o *Orchestrator) describeRepo(ctx context.Context, repoURL string) {
	if o.inspector == nil {
		return
	}
	info, err := o.inspector.Inspect(ctx, repoURL)
	if err != nil {
		if !errors.Is(err, source.ErrNotGitHub) {
			o.logger.Debug("github lookup failed", zap.String("url", repoURL), zap.Error(err))
		}
		return
	}
	visibility := "public"
	if info.Private {
		visibility = "private"
	}
	o.printf("[github] %s (%s, default branch %s)\n", info.FullName, visibility, info.DefaultBranch)
}

// DeployRequest selects the options of one deploy.
type DeployRequest struct {
	Environment  string
	UploadSource bool
	SourceMaps   bool
}

// DeployResult describes the image and environment a deploy or rollback applied.
type DeployResult struct {
	Tag         string
	ImageRef    string
	Environment *Environment
	Outputs     map[string]any
}

// Deploy rebuilds the project from a fresh clone, publishes it under a new
// timestamp tag and applies terraform with that image.
func (o *Orchestrator) Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	cfg, err := o.requireConfig(true)
	if err != nil {
		return nil, err
	}
	id, err := o.verify(ctx)
	if err != nil {
		return nil, err
	}

	label := req.Environment
	if label == "" {
		label = DefaultEnvironment
	}
	o.printf("[deploy] starting deploy for environment '%s' on repo '%s'\n", label, cfg.RepoName)

	dir, _, err := o.fetcher.Fetch(ctx, cfg.RepoURL)
	if err != nil {
		return nil, wrap(KindExternal, "clone repository", err)
	}

	plan, err := project.MaterializeBuildPlan(dir, project.PlanOptions{SourceMaps: req.SourceMaps || o.opts.SourceMaps})
	if err != nil {
		if errors.Is(err, project.ErrUnsupported) {
			o.printf("[deploy] %v\n", err)
			o.printf("[deploy] deployment aborted due to unsupported project\n")
			return nil, wrap(KindUnsupported, "plan build", err)
		}
		return nil, wrap(KindInvalid, "plan build", err)
	}
	o.printf("[deploy] Dockerfile generated at %s\n", plan)

	repoURI, err := o.cloud.EnsureRepository(ctx, cfg.RepoName)
	if err != nil {
		return nil, wrap(KindExternal, "ensure repository", err)
	}
	tag := o.tags.Mint()
	ref := docker.ImageRef(repoURI, tag)

	if req.UploadSource {
		o.uploadSource(ctx, cfg, dir, tag)
	}

	auth, err := o.cloud.RegistryAuth(ctx)
	if err != nil {
		return nil, wrap(KindExternal, "registry login", err)
	}
	if err := o.publisher.BuildAndPush(ctx, ref, dir, docker.Auth{
		Username: auth.Username,
		Password: auth.Password,
		Registry: docker.RegistryOf(ref),
	}); err != nil {
		return nil, wrap(KindExternal, "build and push", err)
	}
	o.printf("[deploy] image pushed to %s\n", ref)

	env, err := o.environment(ctx, id.Credentials, ref, cfg.RepoName)
	if err != nil {
		return nil, err
	}
	outputs, err := o.apply(ctx, env)
	if err != nil {
		return nil, err
	}

	o.printf("[deploy] deployment completed for '%s' in environment '%s' (tag %s)\n", cfg.RepoName, label, tag)
	return &DeployResult{Tag: tag, ImageRef: ref, Environment: env, Outputs: outputs}, nil
}

func (o *Orchestrator) uploadSource(ctx context.Context, cfg *project.Config, dir, tag string) {
	bucket := cfg.BucketName
	if bucket == "" {
		bucket = o.opts.BucketName
	}
	prefix := path.Join(cfg.RepoName, tag)
	report, err := o.cloud.UploadDirectory(ctx, dir, bucket, prefix)
	if err != nil {
		o.printf("[s3] source upload incomplete: %v\n", err)
		return
	}
	o.printf("[s3] uploaded %d files to s3://%s/%s (%d failed)\n", report.Uploaded, bucket, prefix, len(report.Failed))
}

// Rollback applies terraform with an existing image tag. Nothing is cloned or built.
func (o *Orchestrator) Rollback(ctx context.Context, tag string) (*DeployResult, error) {
	cfg, err := o.requireConfig(false)
	if err != nil {
		return nil, err
	}
	if err := ValidateTag(tag); err != nil {
		return nil, err
	}
	id, err := o.verify(ctx)
	if err != nil {
		return nil, err
	}

	host, err := o.cloud.RegistryHost(ctx)
	if err != nil {
		return nil, wrap(KindPrecondition, "resolve registry", err)
	}
	ref := docker.ImageRef(host+"/"+cfg.RepoName, tag)
	o.printf("[rollback] starting rollback using image: %s\n", ref)

	env, err := o.environment(ctx, id.Credentials, ref, cfg.RepoName)
	if err != nil {
		return nil, err
	}
	outputs, err := o.apply(ctx, env)
	if err != nil {
		return nil, err
	}

	o.printf("[rollback] rollback completed using image tag: %s\n", tag)
	return &DeployResult{Tag: tag, ImageRef: ref, Environment: env, Outputs: outputs}, nil
}

// Destroy tears down the application stack.
func (o *Orchestrator) Destroy(ctx context.Context, label string) error {
	cfg, err := o.requireConfig(false)
	if err != nil {
		return err
	}
	id, err := o.verify(ctx)
	if err != nil {
		return err
	}
	if label == "" {
		label = DefaultEnvironment
	}

	host, err := o.cloud.RegistryHost(ctx)
	if err != nil {
		return wrap(KindPrecondition, "resolve registry", err)
	}
	env, err := o.environment(ctx, id.Credentials, host+"/"+cfg.RepoName, cfg.RepoName)
	if err != nil {
		return err
	}

	o.printf("[destroy] running terraform destroy...\n")
	if err := o.provisioner.Destroy(ctx, env.Vars()); err != nil {
		return wrap(KindExternal, "terraform destroy", err)
	}
	o.printf("[destroy] destroy completed for '%s' in environment '%s'\n", cfg.RepoName, label)
	return nil
}

// MonitorInit applies terraform with the placeholder image so that only the
// standing monitoring stack is created.
func (o *Orchestrator) MonitorInit(ctx context.Context) error {
	id, err := o.verify(ctx)
	if err != nil {
		return err
	}

	repoName := MonitoringRepoName
	cfg, err := o.store.Load()
	if err != nil {
		return wrap(KindPrecondition, "load project config", err)
	}
	if cfg.RepoName != "" {
		repoName = cfg.RepoName
	}

	env, err := o.environment(ctx, id.Credentials, "", repoName)
	if err != nil {
		return err
	}
	if _, err := o.apply(ctx, env); err != nil {
		return err
	}
	o.printf("[monitor] monitoring stack initialized\n")
	return nil
}

// MonitorStatus is the outcome of a status check.
type MonitorStatus struct {
	Running bool
	Host    string
	Results []monitor.Result
}

// monitoringHost finds the monitoring instance. running is true when an
// instance exists even if it has no address to probe.
func (o *Orchestrator) monitoringHost(ctx context.Context) (host string, running bool, err error) {
	host, err = o.cloud.MonitoringInstanceIP(ctx, o.opts.MonitorInstanceName)
	switch {
	case errors.Is(err, aws.ErrNoPublicIP):
		o.printf("[monitor] monitoring instance is running but has no public IP\n")
		return "", true, nil
	case err != nil:
		return "", false, wrap(KindExternal, "find monitoring instance", err)
	case host == "":
		o.printf("[monitor] monitoring instance not running\n")
		return "", false, nil
	}
	return host, true, nil
}

// MonitorStatus probes every monitoring service. Probe failures are reported,
// never returned.
func (o *Orchestrator) MonitorStatus(ctx context.Context) (*MonitorStatus, error) {
	host, running, err := o.monitoringHost(ctx)
	if err != nil {
		return nil, err
	}
	if host == "" {
		return &MonitorStatus{Running: running}, nil
	}

	o.printf("[monitor] monitoring instance IP: %s\n", host)
	results := o.prober.Probe(ctx, host)
	monitor.Report(o.out, results)
	return &MonitorStatus{Running: true, Host: host, Results: results}, nil
}

// MonitorDashboard prints the service URLs without probing them.
func (o *Orchestrator) MonitorDashboard(ctx context.Context) (string, error) {
	host, _, err := o.monitoringHost(ctx)
	if err != nil || host == "" {
		return "", err
	}
	monitor.Dashboard(o.out, host)
	return host, nil
}

// Images lists the project's image tags, newest first.
func (o *Orchestrator) Images(ctx context.Context) ([]aws.ImageTag, error) {
	cfg, err := o.requireConfig(false)
	if err != nil {
		return nil, err
	}
	tags, err := o.cloud.ListImageTags(ctx, cfg.RepoName)
	if err != nil {
		return nil, wrap(KindExternal, "list images", err)
	}
	return tags, nil
}
