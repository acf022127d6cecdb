package aws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"go.uber.org/zap"
)

// RegistryHost is the ECR registry host for this account and region.
func (c *Client) RegistryHost(ctx context.Context) (string, error) {
	account, err := c.AccountID(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", account, c.region), nil
}

func isRepositoryExists(err error) bool {
	var exists *ecrtypes.RepositoryAlreadyExistsException
	return errors.As(err, &exists) || apiErrorCode(err) == "RepositoryAlreadyExistsException"
}

// EnsureRepository creates the ECR repository name, or returns the URI of the
// existing one.
func (c *Client) EnsureRepository(ctx context.Context, name string) (string, error) {
	out, err := c.ecr.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName: aws.String(name),
	})
	if err == nil {
		uri := aws.ToString(out.Repository.RepositoryUri)
		fmt.Fprintf(c.out, "[ecr] repository '%s' created\n", name)
		c.logger.Info("created ECR repository", zap.String("repo", name), zap.String("uri", uri))
		return uri, nil
	}
	if !isRepositoryExists(err) {
		return "", fmt.Errorf("failed to create ECR repository %s: %w", name, err)
	}

	desc, err := c.ecr.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{name},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe ECR repository %s: %w", name, err)
	}
	if len(desc.Repositories) == 0 {
		return "", fmt.Errorf("ECR repository %s reported as existing but not returned", name)
	}
	uri := aws.ToString(desc.Repositories[0].RepositoryUri)
	fmt.Fprintf(c.out, "[ecr] repository '%s' already exists\n", name)
	c.logger.Debug("reusing ECR repository", zap.String("repo", name), zap.String("uri", uri))
	return uri, nil
}

// RegistryAuth is a short-lived docker login for the account registry.
type RegistryAuth struct {
	Username string
	Password string
	Endpoint string
}

// RegistryAuth exchanges the caller's credentials for a registry password.
func (c *Client) RegistryAuth(ctx context.Context) (*RegistryAuth, error) {
	out, err := c.ecr.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to get ECR authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 {
		return nil, errors.New("ECR returned no authorization data")
	}

	data := out.AuthorizationData[0]
	raw, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ECR authorization token: %w", err)
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, errors.New("malformed ECR authorization token")
	}

	endpoint := strings.TrimPrefix(aws.ToString(data.ProxyEndpoint), "https://")
	return &RegistryAuth{Username: user, Password: pass, Endpoint: endpoint}, nil
}

// ImageTag is one tagged image in a repository.
type ImageTag struct {
	Tag      string
	Digest   string
	PushedAt time.Time
	SizeMB   float64
}

// ListImageTags returns every tag in the repository, most recently pushed first.
func (c *Client) ListImageTags(ctx context.Context, repo string) ([]ImageTag, error) {
	var tags []ImageTag
	p := ecr.NewDescribeImagesPaginator(c.ecr, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(repo),
		Filter:         &ecrtypes.DescribeImagesFilter{TagStatus: ecrtypes.TagStatusTagged},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list images in %s: %w", repo, err)
		}
		for _, img := range page.ImageDetails {
			for _, t := range img.ImageTags {
				tags = append(tags, ImageTag{
					Tag:      t,
					Digest:   aws.ToString(img.ImageDigest),
					PushedAt: aws.ToTime(img.ImagePushedAt),
					SizeMB:   float64(aws.ToInt64(img.ImageSizeInBytes)) / (1024 * 1024),
				})
			}
		}
	}

	sort.SliceStable(tags, func(i, j int) bool {
		if !tags[i].PushedAt.Equal(tags[j].PushedAt) {
			return tags[i].PushedAt.After(tags[j].PushedAt)
		}
		return tags[i].Tag > tags[j].Tag
	})
	return tags, nil
}
