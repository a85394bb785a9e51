package notification

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	json "github.com/goccy/go-json"
)

// SQSAPI is the subset of the SQS client used for delivery.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// sqsMessage is the body consumed by the mail relay on the other side of the queue.
type sqsMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Template  string `json:"template,omitempty"`
	CreatedAt string `json:"created_at"`
}

// SQSSender publishes notifications onto an SQS queue.
type SQSSender struct {
	client   SQSAPI
	queueURL string
	from     string
}

// NewSQSSender resolves the queue URL for queueName.
func NewSQSSender(ctx context.Context, client SQSAPI, queueName, from string) (*SQSSender, error) {
	resp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return nil, fmt.Errorf("get queue url for %s: %w", queueName, err)
	}
	return &SQSSender{client: client, queueURL: aws.ToString(resp.QueueUrl), from: from}, nil
}

func (s *SQSSender) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(sqsMessage{
		ID:        n.ID,
		From:      s.from,
		To:        n.Recipient,
		Subject:   n.Subject,
		Body:      n.Body,
		Template:  n.TemplateID,
		CreatedAt: n.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if n.TemplateID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"template": {DataType: aws.String("String"), StringValue: aws.String(n.TemplateID)},
		}
	}
	_, err = s.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send to sqs: %w", err)
	}
	return nil
}
