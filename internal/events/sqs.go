package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by SQSForwarder.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSForwarder publishes outbox entries to a queue for external consumers
// such as reminder schedulers.
type SQSForwarder struct {
	client   SQSAPI
	queueURL string
}

// NewSQSForwarder wraps an SQS client.
func NewSQSForwarder(client SQSAPI, queueURL string) *SQSForwarder {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSForwarder{client: client, queueURL: queueURL}
}

func (f *SQSForwarder) Handle(ctx context.Context, entry OutboxEntry) error {
	body, err := json.Marshal(NewEnvelope(entry))
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	_, err = f.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(f.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type":  {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
			"provider_id": {DataType: aws.String("String"), StringValue: aws.String(entry.ProviderID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}
