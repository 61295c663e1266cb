package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
)

type SnsArgs struct {
	Region string `arg:"--region,env:AWS_REGION,help:AWS region"`
	// Prefix for tier-owned notification topics. Empty disables the
	// notification channel entirely and clients fall back to polling.
	SnsTopicPrefix string `arg:"--sns-topic-prefix,env:SNS_TOPIC_PREFIX,help:Prefix for async inference notification topics"`
}

func (args SnsArgs) Enabled() bool {
	return args.SnsTopicPrefix != ""
}

type Client struct {
	args SnsArgs
	sns  *sns.SNS
}

func NewClient(args SnsArgs) Client {
	sess := session.Must(session.NewSession(
		&aws.Config{
			Region:                        aws.String(args.Region),
			CredentialsChainVerboseErrors: aws.Bool(true),
		},
	))
	return NewClientFromSession(args, sess)
}

// NewClientFromSession exists so tests can point the client at a local fake.
func NewClientFromSession(args SnsArgs, sess *session.Session) Client {
	return Client{
		args: args,
		sns:  sns.New(sess),
	}
}

// EnsureTopic creates the named topic under the configured prefix and returns
// its ARN. CreateTopic is idempotent on the service side, so this is safe to
// call on every deploy.
func (c Client) EnsureTopic(ctx context.Context, name string) (string, error) {
	out, err := c.sns.CreateTopicWithContext(ctx, &sns.CreateTopicInput{
		Name: aws.String(fmt.Sprintf("%s-%s", c.args.SnsTopicPrefix, name)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create sns topic '%s': %v", name, err)
	}
	return aws.StringValue(out.TopicArn), nil
}

func (c Client) DeleteTopic(ctx context.Context, arn string) error {
	_, err := c.sns.DeleteTopicWithContext(ctx, &sns.DeleteTopicInput{
		TopicArn: aws.String(arn),
	})
	if err != nil {
		return fmt.Errorf("failed to delete sns topic '%s': %v", arn, err)
	}
	return nil
}
