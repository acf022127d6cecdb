package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bgdnvk/deploytool/internal/aws"
	"github.com/bgdnvk/deploytool/internal/project"
)

// PlaceholderImage stands in for the image reference when no application
// image exists yet.
const PlaceholderImage = "placeholder"

// Environment keys handed to terraform.
const (
	EnvRegion           = "TF_VAR_region"
	EnvImageURI         = "TF_VAR_ecr_image_uri"
	EnvVPCID            = "TF_VAR_vpc_id"
	EnvRepoName         = "TF_VAR_repo_name"
	EnvExecutionRoleARN = "TF_VAR_ecs_execution_role_arn"
	EnvSubnetIDs        = "TF_VAR_subnet_ids"
	EnvAMIID            = "TF_VAR_monitoring_ami_id"
	EnvKeyName          = "TF_VAR_ec2_key_name"
	EnvAccessKeyID      = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey  = "AWS_SECRET_ACCESS_KEY"
	EnvSessionToken     = "AWS_SESSION_TOKEN"
)

// Environment is the full parameter set for a terraform run.
type Environment struct {
	Region           string
	ImageURI         string
	VPCID            string
	RepoName         string
	ExecutionRoleARN string
	SubnetIDs        []string
	AMIID            string
	KeyName          string
	Credentials      aws.Credentials
}

// Validate checks that every required key is populated.
func (e *Environment) Validate() error {
	var missing []string
	for key, val := range map[string]string{
		EnvRegion:           e.Region,
		EnvImageURI:         e.ImageURI,
		EnvVPCID:            e.VPCID,
		EnvRepoName:         e.RepoName,
		EnvExecutionRoleARN: e.ExecutionRoleARN,
		EnvAMIID:            e.AMIID,
		EnvKeyName:          e.KeyName,
		EnvAccessKeyID:      e.Credentials.AccessKeyID,
		EnvSecretAccessKey:  e.Credentials.SecretAccessKey,
	} {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}
	if len(e.SubnetIDs) == 0 {
		missing = append(missing, EnvSubnetIDs)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("incomplete provisioning environment, missing %s", strings.Join(missing, ", "))
	}
	return project.ValidateRepoName(e.RepoName)
}

// Map renders the environment as key/value pairs. AWS_SESSION_TOKEN is only
// present when the credentials carry one.
func (e *Environment) Map() map[string]string {
	subnets, _ := json.Marshal(e.SubnetIDs)
	m := map[string]string{
		EnvRegion:           e.Region,
		EnvImageURI:         e.ImageURI,
		EnvVPCID:            e.VPCID,
		EnvRepoName:         e.RepoName,
		EnvExecutionRoleARN: e.ExecutionRoleARN,
		EnvSubnetIDs:        string(subnets),
		EnvAMIID:            e.AMIID,
		EnvKeyName:          e.KeyName,
		EnvAccessKeyID:      e.Credentials.AccessKeyID,
		EnvSecretAccessKey:  e.Credentials.SecretAccessKey,
	}
	if e.Credentials.SessionToken != "" {
		m[EnvSessionToken] = e.Credentials.SessionToken
	}
	return m
}

// Vars returns KEY=value entries in key order, ready for a subprocess.
func (e *Environment) Vars() []string {
	m := e.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]string, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, k+"="+m[k])
	}
	return vars
}

// Account is the set of account lookups needed to fill an Environment.
type Account interface {
	Region() string
	DefaultVPCID(ctx context.Context) (string, error)
	SubnetIDs(ctx context.Context, vpcID string) ([]string, error)
	ExecutionRoleARN(ctx context.Context) (string, error)
	LatestAMI(ctx context.Context) (string, error)
	DefaultKeyPair(ctx context.Context) (string, error)
}

// EnvironmentRequest carries the caller supplied parts of an Environment.
type EnvironmentRequest struct {
	Credentials aws.Credentials
	// ImageURI may be empty, in which case PlaceholderImage is used.
	ImageURI string
	RepoName string
	AMIID    string
	KeyName  string
}

// BuildEnvironment resolves the account defaults and assembles a validated
// Environment. The repo name is sanitized again here so a hand edited config
// cannot reach terraform unchecked.
func BuildEnvironment(ctx context.Context, acct Account, defaultRegion string, req EnvironmentRequest) (*Environment, error) {
	repo, err := project.Sanitize(req.RepoName)
	if err != nil {
		return nil, wrap(KindPrecondition, "sanitize repo name", err)
	}

	region := acct.Region()
	if region == "" {
		region = defaultRegion
	}

	image := req.ImageURI
	if image == "" {
		image = PlaceholderImage
	}

	vpc, err := acct.DefaultVPCID(ctx)
	if err != nil {
		return nil, wrap(KindPrecondition, "resolve default VPC", err)
	}
	role, err := acct.ExecutionRoleARN(ctx)
	if err != nil {
		return nil, wrap(KindPrecondition, "resolve ECS execution role", err)
	}
	subnets, err := acct.SubnetIDs(ctx, vpc)
	if err != nil {
		return nil, wrap(KindPrecondition, "resolve subnets", err)
	}

	env := &Environment{
		Region:           region,
		ImageURI:         image,
		VPCID:            vpc,
		RepoName:         repo,
		ExecutionRoleARN: role,
		SubnetIDs:        subnets,
		AMIID:            req.AMIID,
		KeyName:          req.KeyName,
		Credentials:      req.Credentials,
	}
	if err := env.Validate(); err != nil {
		return nil, wrap(KindPrecondition, "build environment", err)
	}
	return env, nil
}
