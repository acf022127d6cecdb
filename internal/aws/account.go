package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"go.uber.org/zap"
)

const (
	// ExecutionRoleName is the ECS task execution role terraform attaches to tasks.
	ExecutionRoleName = "ecsTaskExecutionRole"
	// AMINamePattern selects Amazon Linux 2023 x86_64 images.
	AMINamePattern = "al2023-ami-*-kernel-6.1-x86_64"
)

func filter(name string, values ...string) ec2types.Filter {
	return ec2types.Filter{Name: aws.String(name), Values: values}
}

// DefaultVPCID returns the region's default VPC.
func (c *Client) DefaultVPCID(ctx context.Context) (string, error) {
	out, err := c.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{filter("isDefault", "true")},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe VPCs: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return "", fmt.Errorf("no default VPC in %s: %w", c.region, ErrResourceNotFound)
	}
	return aws.ToString(out.Vpcs[0].VpcId), nil
}

// SubnetIDs returns the subnets of vpcID in ascending order.
func (c *Client) SubnetIDs(ctx context.Context, vpcID string) ([]string, error) {
	var ids []string
	p := ec2.NewDescribeSubnetsPaginator(c.ec2, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{filter("vpc-id", vpcID)},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe subnets in %s: %w", vpcID, err)
		}
		for _, s := range page.Subnets {
			ids = append(ids, aws.ToString(s.SubnetId))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no subnets in VPC %s: %w", vpcID, ErrResourceNotFound)
	}
	sort.Strings(ids)
	return ids, nil
}

// ExecutionRoleARN looks up the ECS task execution role.
func (c *Client) ExecutionRoleARN(ctx context.Context) (string, error) {
	p := iam.NewListRolesPaginator(c.iam, &iam.ListRolesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list IAM roles: %w", err)
		}
		for _, r := range page.Roles {
			if aws.ToString(r.RoleName) == ExecutionRoleName {
				return aws.ToString(r.Arn), nil
			}
		}
	}
	return "", fmt.Errorf("IAM role %s: %w", ExecutionRoleName, ErrResourceNotFound)
}

// LatestAMI returns the most recently created Amazon Linux 2023 image owned by
// Amazon. Equal creation dates fall back to the lowest image ID.
func (c *Client) LatestAMI(ctx context.Context) (string, error) {
	out, err := c.ec2.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{"amazon"},
		Filters: []ec2types.Filter{
			filter("name", AMINamePattern),
			filter("state", "available"),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe AMIs: %w", err)
	}
	if len(out.Images) == 0 {
		return "", fmt.Errorf("no AMI matching %s: %w", AMINamePattern, ErrResourceNotFound)
	}

	images := append([]ec2types.Image(nil), out.Images...)
	sort.SliceStable(images, func(i, j int) bool {
		di, dj := parseCreationDate(images[i].CreationDate), parseCreationDate(images[j].CreationDate)
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return aws.ToString(images[i].ImageId) < aws.ToString(images[j].ImageId)
	})
	id := aws.ToString(images[0].ImageId)
	c.logger.Debug("selected AMI", zap.String("ami", id), zap.String("created", aws.ToString(images[0].CreationDate)))
	return id, nil
}

func parseCreationDate(s *string) time.Time {
	t, err := time.Parse(time.RFC3339, aws.ToString(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

// DefaultKeyPair returns the first key pair by name.
func (c *Client) DefaultKeyPair(ctx context.Context) (string, error) {
	out, err := c.ec2.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{})
	if err != nil {
		return "", fmt.Errorf("failed to describe key pairs: %w", err)
	}
	var names []string
	for _, kp := range out.KeyPairs {
		if name := aws.ToString(kp.KeyName); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no EC2 key pair in %s: %w", c.region, ErrResourceNotFound)
	}
	sort.Strings(names)
	return names[0], nil
}

// MonitoringInstanceIP returns the public IP of the newest running instance
// tagged Name=name, or "" when there is none. Running instances that all lack
// a public IP yield ErrNoPublicIP.
func (c *Client) MonitoringInstanceIP(ctx context.Context, name string) (string, error) {
	var candidates []ec2types.Instance
	running := 0
	p := ec2.NewDescribeInstancesPaginator(c.ec2, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			filter("tag:Name", name),
			filter("instance-state-name", "running"),
		},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to describe instances: %w", err)
		}
		for _, r := range page.Reservations {
			for _, inst := range r.Instances {
				running++
				if aws.ToString(inst.PublicIpAddress) != "" {
					candidates = append(candidates, inst)
				}
			}
		}
	}
	if len(candidates) == 0 {
		if running > 0 {
			return "", fmt.Errorf("%s: %w", name, ErrNoPublicIP)
		}
		return "", nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := aws.ToTime(candidates[i].LaunchTime), aws.ToTime(candidates[j].LaunchTime)
		if !li.Equal(lj) {
			return li.After(lj)
		}
		return aws.ToString(candidates[i].InstanceId) < aws.ToString(candidates[j].InstanceId)
	})
	return aws.ToString(candidates[0].PublicIpAddress), nil
}
