package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"
)

// Credentials is a frozen snapshot of the resolved credentials. It is passed
// to terraform through the environment and never written to disk.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Identity is the verified caller.
type Identity struct {
	Credentials Credentials
	Account     string
	ARN         string
}

// Verify resolves credentials for the configured profile and confirms they
// work with an STS GetCallerIdentity call.
func (c *Client) Verify(ctx context.Context) (*Identity, error) {
	if c.cfg.Credentials == nil {
		return nil, errors.New("no AWS credentials configured")
	}
	creds, err := c.cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve AWS credentials for profile %s: %w", c.profile, err)
	}

	out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("AWS credentials check failed: %w", err)
	}

	id := &Identity{
		Credentials: Credentials{
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
			SessionToken:    creds.SessionToken,
		},
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
	}
	c.accountID = id.Account
	c.logger.Debug("verified caller identity", zap.String("arn", id.ARN))
	return id, nil
}

// AccountID returns the caller's account, calling STS once per client.
func (c *Client) AccountID(ctx context.Context) (string, error) {
	if c.accountID != "" {
		return c.accountID, nil
	}
	out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get AWS account ID: %w", err)
	}
	c.accountID = aws.ToString(out.Account)
	return c.accountID, nil
}
