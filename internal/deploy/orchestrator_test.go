package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/bgdnvk/deploytool/internal/aws"
	"github.com/bgdnvk/deploytool/internal/docker"
	"github.com/bgdnvk/deploytool/internal/monitor"
	"github.com/bgdnvk/deploytool/internal/project"
	"github.com/bgdnvk/deploytool/internal/runner"
	"github.com/bgdnvk/deploytool/internal/source"
	"github.com/bgdnvk/deploytool/internal/terraform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const account = "123456789012"

type fakeCloud struct {
	region      string
	creds       aws.Credentials
	verifyErr   error
	roleErr     error
	monitorIP   string
	monitorErr  error
	verifyCalls int
	repoCalls   []string
	bucketCalls []string
	uploads     []string
	tags        []aws.ImageTag
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		region: "eu-west-1",
		creds:  aws.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"},
	}
}

func (f *fakeCloud) Region() string { return f.region }

func (f *fakeCloud) DefaultVPCID(ctx context.Context) (string, error) { return "vpc-123", nil }

func (f *fakeCloud) SubnetIDs(ctx context.Context, vpcID string) ([]string, error) {
	return []string{"subnet-a", "subnet-b"}, nil
}

func (f *fakeCloud) ExecutionRoleARN(ctx context.Context) (string, error) {
	if f.roleErr != nil {
		return "", f.roleErr
	}
	return "arn:aws:iam::" + account + ":role/ecsTaskExecutionRole", nil
}

func (f *fakeCloud) LatestAMI(ctx context.Context) (string, error) { return "ami-0abc", nil }

func (f *fakeCloud) DefaultKeyPair(ctx context.Context) (string, error) { return "ops", nil }

func (f *fakeCloud) Verify(ctx context.Context) (*aws.Identity, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &aws.Identity{Credentials: f.creds, Account: account, ARN: "arn:aws:iam::" + account + ":user/dev"}, nil
}

func (f *fakeCloud) host() string {
	return account + ".dkr.ecr." + f.region + ".amazonaws.com"
}

func (f *fakeCloud) RegistryHost(ctx context.Context) (string, error) { return f.host(), nil }

func (f *fakeCloud) EnsureRepository(ctx context.Context, name string) (string, error) {
	f.repoCalls = append(f.repoCalls, name)
	return f.host() + "/" + name, nil
}

func (f *fakeCloud) RegistryAuth(ctx context.Context) (*aws.RegistryAuth, error) {
	return &aws.RegistryAuth{Username: "AWS", Password: "ecr-password", Endpoint: f.host()}, nil
}

func (f *fakeCloud) ListImageTags(ctx context.Context, repo string) ([]aws.ImageTag, error) {
	return f.tags, nil
}

func (f *fakeCloud) EnsureBucket(ctx context.Context, name string) (bool, error) {
	f.bucketCalls = append(f.bucketCalls, name)
	return len(f.bucketCalls) == 1, nil
}

func (f *fakeCloud) UploadDirectory(ctx context.Context, dir, bucket, prefix string) (*aws.UploadReport, error) {
	f.uploads = append(f.uploads, bucket+"/"+prefix)
	return &aws.UploadReport{Uploaded: 1}, nil
}

func (f *fakeCloud) MonitoringInstanceIP(ctx context.Context, name string) (string, error) {
	return f.monitorIP, f.monitorErr
}

type fakeProber struct {
	hosts []string
}

func (p *fakeProber) Probe(ctx context.Context, host string) []monitor.Result {
	p.hosts = append(p.hosts, host)
	return []monitor.Result{{Service: monitor.Services[0], URL: monitor.URL(host, monitor.Services[0]), Status: monitor.StatusUp}}
}

type harness struct {
	orch    *Orchestrator
	cloud   *fakeCloud
	rec     *runner.Recorder
	prober  *fakeProber
	store   *project.Store
	workDir string
	out     *bytes.Buffer
	// manifest written into every clone; empty means no package.json
	manifest string
}

const reactManifest = `{"name":"my-app","dependencies":{"react":"^18.2.0","react-dom":"^18.2.0"}}`

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cloud:    newFakeCloud(),
		prober:   &fakeProber{},
		workDir:  t.TempDir(),
		out:      &bytes.Buffer{},
		manifest: reactManifest,
	}
	h.rec = &runner.Recorder{Handler: h.handle}
	h.store = project.NewStore(filepath.Join(h.workDir, "deploy_tool_config.json"))

	tfDir := filepath.Join(h.workDir, "terraform")
	require.NoError(t, os.MkdirAll(tfDir, 0o755))

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	orch, err := New(Deps{
		Store:       h.store,
		Cloud:       h.cloud,
		Fetcher:     source.NewFetcher(h.rec, h.workDir, "cloned-", nil, nil),
		Publisher:   docker.NewPublisher(h.rec, nil, nil),
		Provisioner: terraform.NewClient(h.rec, "terraform", tfDir, nil, nil),
		Prober:      h.prober,
		Tags:        NewTagMinter(func() time.Time { return clock }),
		Out:         h.out,
	}, Options{BucketName: "my-deploy-tool-bucket"})
	require.NoError(t, err)
	h.orch = orch
	return h
}

// handle simulates git clone by creating the target folder.
func (h *harness) handle(c runner.Call) (*runner.Result, error) {
	if c.Name == "git" && len(c.Args) == 3 && c.Args[0] == "clone" {
		dir := c.Args[2]
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		if h.manifest != "" {
			if err := os.WriteFile(filepath.Join(dir, project.ManifestFile), []byte(h.manifest), 0o644); err != nil {
				return nil, err
			}
		}
	}
	if c.Name == "terraform" && len(c.Args) > 0 && c.Args[0] == "output" {
		return &runner.Result{Output: []byte(`{"alb_dns":{"value":"app.example.com"}}`)}, nil
	}
	return &runner.Result{}, nil
}

func (h *harness) terraformEnv(t *testing.T, sub string) map[string]string {
	t.Helper()
	for _, c := range h.rec.Calls {
		if c.Name == "terraform" && c.Args[0] == sub {
			env := map[string]string{}
			for _, kv := range c.Env {
				k, v, _ := strings.Cut(kv, "=")
				env[k] = v
			}
			return env
		}
	}
	t.Fatalf("terraform %s was not run", sub)
	return nil
}

func (h *harness) initProject(t *testing.T) {
	t.Helper()
	_, err := h.orch.Init(context.Background(), "https://example.com/org/My-App.git")
	require.NoError(t, err)
	h.rec.Calls = nil
}

func TestInitClonesClassifiesAndSaves(t *testing.T) {
	h := newHarness(t)

	cfg, err := h.orch.Init(context.Background(), "https://example.com/org/My-App.git")
	require.NoError(t, err)

	assert.Equal(t, []string{"git clone"}, h.rec.Names())
	assert.Equal(t, filepath.Join(h.workDir, "cloned-My-App"), h.rec.Calls[0].Args[2])
	assert.Equal(t, "my-app", cfg.RepoName)
	assert.Equal(t, project.TypeReact, cfg.ProjectType)
	assert.Equal(t, []string{"my-deploy-tool-bucket"}, h.cloud.bucketCalls)

	saved, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, saved)
}

func TestInitIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.orch.Init(ctx, "https://example.com/org/My-App.git")
	require.NoError(t, err)
	raw1, err := os.ReadFile(h.store.Path)
	require.NoError(t, err)

	second, err := h.orch.Init(ctx, "https://example.com/org/My-App.git")
	require.NoError(t, err)
	raw2, err := os.ReadFile(h.store.Path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, raw1, raw2)
}

func TestInitRequiresURL(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Init(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalid))
	assert.Empty(t, h.rec.Calls)
}

func TestDeployReactProject(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)

	res, err := h.orch.Deploy(context.Background(), DeployRequest{})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^\d{14}$`), res.Tag)
	assert.Equal(t, "20240301120000", res.Tag)
	assert.True(t, strings.HasSuffix(res.ImageRef, ":"+res.Tag))
	assert.NotEqual(t, PlaceholderImage, res.Environment.ImageURI)

	assert.Equal(t, []string{
		"git clone",
		"docker build",
		"docker login",
		"docker push",
		"terraform init",
		"terraform apply",
		"terraform output",
	}, h.rec.Names())

	dockerfile, err := os.ReadFile(filepath.Join(h.workDir, "cloned-My-App", project.DockerfileName))
	require.NoError(t, err)
	assert.Contains(t, string(dockerfile), "ENV GENERATE_SOURCEMAP=false")

	env := h.terraformEnv(t, "apply")
	assert.Equal(t, res.ImageRef, env[EnvImageURI])
	assert.Equal(t, "my-app", env[EnvRepoName])
	assert.Equal(t, "eu-west-1", env[EnvRegion])
	assert.Equal(t, `["subnet-a","subnet-b"]`, env[EnvSubnetIDs])
	assert.Equal(t, "ami-0abc", env[EnvAMIID])
	assert.Equal(t, "ops", env[EnvKeyName])
	assert.NotContains(t, env, EnvSessionToken)

	assert.Equal(t, "app.example.com", res.Outputs["alb_dns"])
	assert.Equal(t, []string{"my-app"}, h.cloud.repoCalls)
}

func TestDeployTagsStrictlyIncrease(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)

	first, err := h.orch.Deploy(context.Background(), DeployRequest{})
	require.NoError(t, err)
	second, err := h.orch.Deploy(context.Background(), DeployRequest{})
	require.NoError(t, err)

	assert.Less(t, first.Tag, second.Tag)
}

func TestDeployUploadsSourceWhenAsked(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)

	res, err := h.orch.Deploy(context.Background(), DeployRequest{UploadSource: true, SourceMaps: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"my-deploy-tool-bucket/my-app/" + res.Tag}, h.cloud.uploads)
	dockerfile, err := os.ReadFile(filepath.Join(h.workDir, "cloned-My-App", project.DockerfileName))
	require.NoError(t, err)
	assert.NotContains(t, string(dockerfile), "GENERATE_SOURCEMAP")
}

func TestDeployWithoutManifestAborts(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)
	h.manifest = ""

	_, err := h.orch.Deploy(context.Background(), DeployRequest{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnsupported))
	assert.ErrorIs(t, err, project.ErrNoManifest)

	assert.Equal(t, []string{"git clone"}, h.rec.Names())
	assert.Empty(t, h.cloud.repoCalls)
	assert.Contains(t, h.out.String(), "unsupported project")
}

func TestDeployViteWithoutReactDependencyIsUnsupported(t *testing.T) {
	h := newHarness(t)
	h.manifest = `{"devDependencies":{"vite":"^5.0.0","react":"^18.2.0"}}`

	cfg, err := h.orch.Init(context.Background(), "https://example.com/org/My-App.git")
	require.NoError(t, err)
	assert.Equal(t, project.TypeVite, cfg.ProjectType)

	_, err = h.orch.Deploy(context.Background(), DeployRequest{})
	assert.True(t, IsKind(err, KindUnsupported))
	assert.Empty(t, h.cloud.repoCalls)
}

func TestDeployRequiresInit(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Deploy(context.Background(), DeployRequest{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPrecondition))
	assert.ErrorIs(t, err, project.ErrNotInitialized)
	assert.Zero(t, h.cloud.verifyCalls)
	assert.Empty(t, h.rec.Calls)
}

func TestDeployStopsOnCredentialFailure(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)
	h.cloud.verifyErr = errors.New("ExpiredToken")

	_, err := h.orch.Deploy(context.Background(), DeployRequest{})
	assert.True(t, IsKind(err, KindPrecondition))
	assert.Empty(t, h.rec.Calls)
}

func TestDeployMissingRoleNeverReachesTerraform(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)
	h.cloud.roleErr = aws.ErrResourceNotFound

	_, err := h.orch.Deploy(context.Background(), DeployRequest{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPrecondition))
	assert.ErrorIs(t, err, aws.ErrResourceNotFound)
	assert.NotContains(t, h.rec.Names(), "terraform init")
}

func TestDeployPropagatesTerraformFailure(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)
	h.rec.Handler = func(c runner.Call) (*runner.Result, error) {
		if c.Name == "terraform" && c.Args[0] == "apply" {
			return &runner.Result{ExitCode: 1}, &runner.ExitError{Command: "terraform apply", Code: 1, Err: errors.New("exit status 1")}
		}
		return h.handle(c)
	}

	_, err := h.orch.Deploy(context.Background(), DeployRequest{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindExternal))
	var exitErr *runner.ExitError
	assert.ErrorAs(t, err, &exitErr)
}

func TestRollbackNeverClonesOrBuilds(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)
	h.cloud.creds.SessionToken = "token"

	res, err := h.orch.Rollback(context.Background(), "20240101000000")
	require.NoError(t, err)

	assert.Equal(t, []string{"terraform init", "terraform apply", "terraform output"}, h.rec.Names())
	assert.Equal(t, h.cloud.host()+"/my-app:20240101000000", res.ImageRef)
	assert.Empty(t, h.cloud.repoCalls)

	env := h.terraformEnv(t, "apply")
	assert.Equal(t, res.ImageRef, env[EnvImageURI])
	assert.Equal(t, "token", env[EnvSessionToken])
}

func TestRollbackRejectsMalformedTag(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)

	_, err := h.orch.Rollback(context.Background(), "not a tag")
	assert.True(t, IsKind(err, KindInvalid))
	assert.Empty(t, h.rec.Calls)
}

func TestDestroyWithoutInit(t *testing.T) {
	h := newHarness(t)

	err := h.orch.Destroy(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPrecondition))
	assert.Empty(t, h.rec.Calls)
	assert.Zero(t, h.cloud.verifyCalls)
}

func TestDestroyUsesTaglessImage(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)

	require.NoError(t, h.orch.Destroy(context.Background(), "staging"))

	assert.Equal(t, []string{"terraform destroy"}, h.rec.Names())
	env := h.terraformEnv(t, "destroy")
	assert.Equal(t, h.cloud.host()+"/my-app", env[EnvImageURI])
	assert.Contains(t, h.out.String(), "environment 'staging'")
}

func TestDestroySanitizesHandEditedConfig(t *testing.T) {
	h := newHarness(t)
	raw, err := json.Marshal(map[string]string{"repo_name": "My_App!", "repo_url": "x"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(h.store.Path, raw, 0o644))

	require.NoError(t, h.orch.Destroy(context.Background(), ""))
	env := h.terraformEnv(t, "destroy")
	assert.Equal(t, "my_app", env[EnvRepoName])
}

func TestMonitorInitUsesPlaceholder(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.orch.MonitorInit(context.Background()))

	env := h.terraformEnv(t, "apply")
	assert.Equal(t, PlaceholderImage, env[EnvImageURI])
	assert.Equal(t, MonitoringRepoName, env[EnvRepoName])
	assert.Equal(t, []string{"terraform init", "terraform apply", "terraform output"}, h.rec.Names())
}

func TestMonitorInitUsesProjectName(t *testing.T) {
	h := newHarness(t)
	h.initProject(t)

	require.NoError(t, h.orch.MonitorInit(context.Background()))
	assert.Equal(t, "my-app", h.terraformEnv(t, "apply")[EnvRepoName])
}

func TestMonitorStatusNotRunning(t *testing.T) {
	h := newHarness(t)

	st, err := h.orch.MonitorStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Empty(t, h.prober.hosts)
	assert.Contains(t, h.out.String(), "not running")
}

func TestMonitorStatusRunningWithoutPublicIP(t *testing.T) {
	h := newHarness(t)
	h.cloud.monitorErr = fmt.Errorf("monitoring-instance: %w", aws.ErrNoPublicIP)

	st, err := h.orch.MonitorStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Empty(t, st.Host)
	assert.Empty(t, h.prober.hosts)
	assert.Contains(t, h.out.String(), "running but has no public IP")
	assert.NotContains(t, h.out.String(), "not running")
}

func TestMonitorStatusProbesInstance(t *testing.T) {
	h := newHarness(t)
	h.cloud.monitorIP = "203.0.113.7"

	st, err := h.orch.MonitorStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, []string{"203.0.113.7"}, h.prober.hosts)
	assert.Contains(t, h.out.String(), "Prometheus")
}

func TestMonitorDashboard(t *testing.T) {
	h := newHarness(t)

	host, err := h.orch.MonitorDashboard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, host)

	h.cloud.monitorIP = "203.0.113.7"
	host, err = h.orch.MonitorDashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", host)
	assert.Contains(t, h.out.String(), "http://203.0.113.7:9100")
	assert.Empty(t, h.prober.hosts)
}

func TestImages(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Images(context.Background())
	assert.True(t, IsKind(err, KindPrecondition))

	h.initProject(t)
	h.cloud.tags = []aws.ImageTag{{Tag: "20240102000000"}, {Tag: "20240101000000"}}
	tags, err := h.orch.Images(context.Background())
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}
