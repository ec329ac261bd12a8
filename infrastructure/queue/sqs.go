package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/helixml/memeindex/domain/queue"
)

// SQS limits on a single ReceiveMessage call.
const (
	sqsMaxMessages = 10
	sqsMaxWait     = 20 * time.Second
)

// SQSClient is the subset of the SQS API the queue uses.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// NewSQSClient builds a client from the default AWS credential chain.
// A non-empty endpoint overrides the service URL (LocalStack, ElasticMQ).
func NewSQSClient(ctx context.Context, region, endpoint string) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// SQS adapts an Amazon SQS queue to queue.Queue.
type SQS struct {
	client     SQSClient
	url        string
	visibility time.Duration
	logger     *slog.Logger
}

// NewSQS creates an SQS queue for the queue URL.
func NewSQS(client SQSClient, queueURL string, visibility time.Duration, logger *slog.Logger) (*SQS, error) {
	if client == nil {
		return nil, errors.New("sqs client is required")
	}
	if queueURL == "" {
		return nil, errors.New("sqs queue url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQS{client: client, url: queueURL, visibility: visibility, logger: logger}, nil
}

// Send publishes a message.
func (q *SQS) Send(ctx context.Context, body []byte) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// Receive long-polls the queue. limit is capped at 10 and wait at 20 seconds.
func (q *SQS) Receive(ctx context.Context, limit int, wait time.Duration) ([]queue.Message, error) {
	limit = min(max(limit, 1), sqsMaxMessages)
	wait = min(max(wait, 0), sqsMaxWait)

	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(limit),
		WaitTimeSeconds:     int32(wait / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	}
	if q.visibility > 0 {
		input.VisibilityTimeout = int32(q.visibility / time.Second)
	}

	out, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	msgs := make([]queue.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		count := 1
		if raw, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(raw); err == nil {
				count = n
			}
		}
		msgs = append(msgs, queue.NewMessage(
			aws.ToString(m.MessageId),
			[]byte(aws.ToString(m.Body)),
			aws.ToString(m.ReceiptHandle),
			count,
		))
	}
	return msgs, nil
}

// Delete removes the message held under the receipt handle.
func (q *SQS) Delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		var invalid *types.ReceiptHandleIsInvalid
		if errors.As(err, &invalid) {
			return fmt.Errorf("%w: %v", queue.ErrUnknownReceipt, err)
		}
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no connection state.
func (q *SQS) Close() error { return nil }

var _ queue.Queue = (*SQS)(nil)
