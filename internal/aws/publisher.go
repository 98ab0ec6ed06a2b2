package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	// Delay holds each message back before it becomes visible. SQS caps it
	// at 15 minutes.
	Delay time.Duration
}

type PublisherOption func(*Publisher)

// WithDelay sets the per-message delivery delay.
func WithDelay(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 15*time.Minute {
			d = 15 * time.Minute
		}
		p.Delay = d
	}
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Send sends a raw message body. attributes are sent as String MessageAttributes.
func (p *Publisher) Send(ctx context.Context, messageBody string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &messageBody,
	}
	if p.Delay > 0 {
		input.DelaySeconds = int32(p.Delay / time.Second)
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    String("String"),
				StringValue: String(v),
			}
		}
		input.MessageAttributes = msgAttrs
	}

	_, err := p.SQS.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendJSON marshals payload and sends it.
func (p *Publisher) SendJSON(ctx context.Context, payload interface{}, attributes map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.Send(ctx, string(body), attributes)
}
