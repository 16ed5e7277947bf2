// Package timestream obtains scoped credentials through STS and writes
// projected batches to Amazon Timestream.
//
// Both SDK clients sit behind narrow interfaces so tests can substitute
// fakes. Each external call is made exactly once; no retries are layered on
// top of the SDK's own transport handling.
package timestream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
)

// DefaultSessionDuration is the lifetime requested for scoped credentials.
const DefaultSessionDuration = time.Hour

// SourceCredentials are the credentials exchanged for scoped ones.
// When empty, the SDK default credential chain is used.
type SourceCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// IsZero reports whether no explicit credentials were supplied.
func (c SourceCredentials) IsZero() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// STSAPI is the subset of the STS client used for the role exchange.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// STSClientFactory builds an STS client signed with source credentials.
type STSClientFactory func(ctx context.Context, region string, source SourceCredentials) (STSAPI, error)

// AssumeRoleInput describes one role exchange.
type AssumeRoleInput struct {
	Source      SourceCredentials
	RoleARN     string
	SessionName string
	// Duration defaults to DefaultSessionDuration when zero.
	Duration time.Duration
	// Tags become STS session tags, sent sorted by key.
	Tags map[string]string
}

// RoleExchanger exchanges source credentials for role-scoped credentials.
type RoleExchanger struct {
	region    string
	newClient STSClientFactory
}

// NewRoleExchanger creates a RoleExchanger backed by the AWS SDK.
func NewRoleExchanger(region string) *RoleExchanger {
	return NewRoleExchangerWithFactory(region, newSTSClient)
}

// NewRoleExchangerWithFactory creates a RoleExchanger with a custom client factory.
func NewRoleExchangerWithFactory(region string, factory STSClientFactory) *RoleExchanger {
	return &RoleExchanger{region: region, newClient: factory}
}

// AssumeRole performs a single STS AssumeRole call.
// Failures are returned as *types.CredentialError.
func (e *RoleExchanger) AssumeRole(ctx context.Context, in AssumeRoleInput) (aws.Credentials, error) {
	if in.RoleARN == "" {
		return aws.Credentials{}, wrapAssumeRoleError(in.RoleARN, errors.New("role ARN is required"))
	}
	if in.SessionName == "" {
		return aws.Credentials{}, wrapAssumeRoleError(in.RoleARN, errors.New("session name is required"))
	}

	client, err := e.newClient(ctx, e.region, in.Source)
	if err != nil {
		return aws.Credentials{}, wrapAssumeRoleError(in.RoleARN, err)
	}

	duration := in.Duration
	if duration <= 0 {
		duration = DefaultSessionDuration
	}

	out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(in.RoleARN),
		RoleSessionName: aws.String(in.SessionName),
		DurationSeconds: aws.Int32(int32(duration / time.Second)),
		Tags:            sessionTags(in.Tags),
	})
	if err != nil {
		return aws.Credentials{}, wrapAssumeRoleError(in.RoleARN, err)
	}
	if out == nil || out.Credentials == nil {
		return aws.Credentials{}, wrapAssumeRoleError(in.RoleARN, errors.New("response carried no credentials"))
	}

	creds := aws.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Source:          "AssumeRole",
	}
	if out.Credentials.Expiration != nil {
		creds.CanExpire = true
		creds.Expires = *out.Credentials.Expiration
	}
	return creds, nil
}

func sessionTags(tags map[string]string) []ststypes.Tag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ststypes.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, ststypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func newSTSClient(ctx context.Context, region string, source SourceCredentials) (STSAPI, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if !source.IsZero() {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(source.AccessKeyID, source.SecretAccessKey, source.SessionToken),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sts.NewFromConfig(awsConfig), nil
}
