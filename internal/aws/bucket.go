package aws

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// HomeRegion is the only region where CreateBucket must omit a location constraint.
const HomeRegion = "us-east-1"

func isBucketNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noSuch *s3types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuch) {
		return true
	}
	switch apiErrorCode(err) {
	case "NotFound", "NoSuchBucket", "404":
		return true
	}
	return false
}

func isBucketOwned(err error) bool {
	var owned *s3types.BucketAlreadyOwnedByYou
	return errors.As(err, &owned) || apiErrorCode(err) == "BucketAlreadyOwnedByYou"
}

// EnsureBucket creates the bucket when it does not exist. It reports whether
// a bucket was created.
func (c *Client) EnsureBucket(ctx context.Context, name string) (bool, error) {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err == nil {
		fmt.Fprintf(c.out, "[s3] bucket '%s' already exists\n", name)
		return false, nil
	}
	if !isBucketNotFound(err) {
		return false, fmt.Errorf("failed to check S3 bucket %s: %w", name, err)
	}

	fmt.Fprintf(c.out, "[s3] bucket '%s' does not exist, creating...\n", name)
	in := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if c.region != HomeRegion {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(c.region),
		}
	}
	if _, err := c.s3.CreateBucket(ctx, in); err != nil {
		if isBucketOwned(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create S3 bucket %s: %w", name, err)
	}

	fmt.Fprintf(c.out, "[s3] bucket '%s' created\n", name)
	c.logger.Info("created S3 bucket", zap.String("bucket", name))
	return true, nil
}

// UploadReport summarizes an UploadDirectory run.
type UploadReport struct {
	Uploaded int
	Failed   []string
}

// UploadDirectory copies every regular file under dir to bucket/prefix,
// skipping .git. A failed object is recorded and the walk continues.
func (c *Client) UploadDirectory(ctx context.Context, dir, bucket, prefix string) (*UploadReport, error) {
	report := &UploadReport{}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))

		if err := c.putFile(ctx, bucket, key, p); err != nil {
			fmt.Fprintf(c.out, "[s3] upload failed for %s: %v\n", key, err)
			report.Failed = append(report.Failed, key)
			return nil
		}
		fmt.Fprintf(c.out, "[s3] uploaded %s\n", key)
		report.Uploaded++
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to upload %s: %w", dir, err)
	}
	return report, nil
}

func (c *Client) putFile(ctx context.Context, bucket, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}
