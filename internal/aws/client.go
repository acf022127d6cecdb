// Package aws wraps the AWS API calls the deploy workflow depends on:
// identity, the source bucket, the image registry and the account defaults
// handed to terraform.
package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	smithy "github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// ErrResourceNotFound marks a missing account resource the deployment cannot
// proceed without (default VPC, execution role, key pair, AMI).
var ErrResourceNotFound = errors.New("required AWS resource not found")

// ErrNoPublicIP is returned when the monitoring instance is running but has no
// public address to probe.
var ErrNoPublicIP = errors.New("instance is running but has no public IP")

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type s3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ecrAPI interface {
	CreateRepository(ctx context.Context, in *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	DescribeRepositories(ctx context.Context, in *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	GetAuthorizationToken(ctx context.Context, in *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
	DescribeImages(ctx context.Context, in *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

type ec2API interface {
	DescribeVpcs(ctx context.Context, in *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, in *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	DescribeKeyPairs(ctx context.Context, in *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error)
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

type iamAPI interface {
	ListRoles(ctx context.Context, in *iam.ListRolesInput, optFns ...func(*iam.Options)) (*iam.ListRolesOutput, error)
}

// Options configures NewClient.
type Options struct {
	Profile       string
	DefaultRegion string
	Out           io.Writer
	Logger        *zap.Logger
}

type Client struct {
	cfg     aws.Config
	profile string
	region  string
	out     io.Writer
	logger  *zap.Logger

	sts stsAPI
	s3  s3API
	ecr ecrAPI
	ec2 ec2API
	iam iamAPI

	accountID string
}

// NewClient loads the shared config for opts.Profile. When the profile has no
// region, opts.DefaultRegion is used.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config for profile %s: %w", opts.Profile, err)
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = opts.DefaultRegion
	}

	c := newClient(cfg, opts)
	c.sts = sts.NewFromConfig(cfg)
	c.s3 = s3.NewFromConfig(cfg)
	c.ecr = ecr.NewFromConfig(cfg)
	c.ec2 = ec2.NewFromConfig(cfg)
	c.iam = iam.NewFromConfig(cfg)
	return c, nil
}

func newClient(cfg aws.Config, opts Options) *Client {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		profile: opts.Profile,
		region:  cfg.Region,
		out:     out,
		logger:  logger.With(zap.String("profile", opts.Profile), zap.String("region", cfg.Region)),
	}
}

// Region is the active region for every call made by this client.
func (c *Client) Region() string {
	return c.region
}

// Profile is the shared-config profile the client was built from.
func (c *Client) Profile() string {
	return c.profile
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
