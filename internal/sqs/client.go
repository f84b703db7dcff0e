// Package sqs implements the order queue pipeline on top of Amazon SQS:
// the publisher, the standard and FIFO consumers and the dead-letter monitor.
package sqs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"delivery/internal/config"
	"delivery/internal/models"
)

// A Client is the SQS implementation of interfaces.Transport. It is safe for concurrent use
type Client struct {
	api *awssqs.Client
}

// NewClient builds an SQS client. Static credentials and the endpoint override are used when set,
// which is how LocalStack is reached
func NewClient(ctx context.Context, cfg config.AWSConfig) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(
			opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			),
		)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	api := awssqs.NewFromConfig(
		awsCfg, func(o *awssqs.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		},
	)

	return &Client{api: api}, nil
}

// Send enqueues one message and returns its id
func (c *Client) Send(ctx context.Context, queueURL, body string, attrs *models.SendAttributes) (string, error) {
	input := &awssqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	}
	if attrs != nil {
		if attrs.GroupID != "" {
			input.MessageGroupId = aws.String(attrs.GroupID)
		}
		if attrs.DeduplicationID != "" {
			input.MessageDeduplicationId = aws.String(attrs.DeduplicationID)
		}
	}

	out, err := c.api.SendMessage(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

// Receive long-polls for up to maxMessages messages
func (c *Client) Receive(
	ctx context.Context, queueURL string, maxMessages int, wait time.Duration,
) ([]models.Envelope, error) {
	out, err := c.api.ReceiveMessage(
		ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: int32(maxMessages),
			WaitTimeSeconds:     int32(wait / time.Second),
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameMessageGroupId,
				types.MessageSystemAttributeNameMessageDeduplicationId,
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		},
	)
	if err != nil {
		return nil, err
	}

	envelopes := make([]models.Envelope, 0, len(out.Messages))
	for _, msg := range out.Messages {
		env := models.Envelope{
			MessageID:       aws.ToString(msg.MessageId),
			ReceiptHandle:   aws.ToString(msg.ReceiptHandle),
			Body:            aws.ToString(msg.Body),
			GroupID:         msg.Attributes[string(types.MessageSystemAttributeNameMessageGroupId)],
			DeduplicationID: msg.Attributes[string(types.MessageSystemAttributeNameMessageDeduplicationId)],
		}
		if n, err := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
			env.ReceiveCount = n
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

// Delete acknowledges a received message
func (c *Client) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := c.api.DeleteMessage(
		ctx, &awssqs.DeleteMessageInput{
			QueueUrl:      aws.String(queueURL),
			ReceiptHandle: aws.String(receiptHandle),
		},
	)
	return err
}
