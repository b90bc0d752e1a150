package dispatchers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/gitter-badger/xread/internal/domain"
)

// sqsClient defines the subset of the SQS client used by the sender and consumer.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// awsSQSSender implements Dispatcher and Consumer for AWS SQS.
type awsSQSSender struct {
	id          string
	queueURL    string
	waitSeconds int32
	maxMessages int32
	backoff     time.Duration
	client      sqsClient
	log         Logger
}

func newSQSDispatcher(ctx context.Context, cfg Config, deps Deps) (Dispatcher, error) {
	return newAWSSQSSender(ctx, cfg, deps.Log)
}

func newAWSSQSSender(ctx context.Context, cfg Config, log Logger) (*awsSQSSender, error) {
	if cfg.SQS == nil {
		return nil, fmt.Errorf("dispatcher %q missing sqs configuration", cfg.ID)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.SQS.Region, cfg.SQS.Credentials)
	if err != nil {
		return nil, err
	}
	endpoint := cfg.SQS.Endpoint
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &awsSQSSender{
		id:          cfg.ID,
		queueURL:    cfg.SQS.QueueURL,
		waitSeconds: cfg.SQS.WaitSeconds,
		maxMessages: cfg.SQS.MaxMessages,
		backoff:     time.Second,
		client:      client,
		log:         ensureLogger(log),
	}, nil
}

func (s *awsSQSSender) ID() string   { return s.id }
func (s *awsSQSSender) Type() string { return TypeSQS }

// Dispatch sends the task to the configured SQS queue.
func (s *awsSQSSender) Dispatch(ctx context.Context, task domain.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			attrTaskKind: {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(task.Kind)),
			},
			attrArticleID: {
				DataType:    aws.String("String"),
				StringValue: aws.String(task.ArticleID),
			},
		},
	}

	if _, err := s.client.SendMessage(ctx, input); err != nil {
		s.log.ErrorObj("sqs dispatcher send failed", "dispatcher_sqs_error", map[string]any{
			"dispatcher_id": s.id,
			"error":         err.Error(),
		})
		return fmt.Errorf("send message to sqs: %w", err)
	}
	s.log.DebugObj("sqs dispatcher delivered task", "dispatcher_sqs_delivery", map[string]any{
		"dispatcher_id": s.id,
		"task_id":       task.ID,
	})
	return nil
}

// Consume long-polls the queue until ctx ends. Messages are deleted once
// handle succeeds or when they do not decode to a task; handler failures
// reappear after the visibility timeout.
func (s *awsSQSSender) Consume(ctx context.Context, handle HandlerFunc) error {
	for ctx.Err() == nil {
		out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(s.queueURL),
			MaxNumberOfMessages:   s.maxMessages,
			WaitTimeSeconds:       s.waitSeconds,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.WarnObj("sqs receive failed", "dispatcher_sqs_error", map[string]any{
				"dispatcher_id": s.id,
				"error":         err.Error(),
			})
			select {
			case <-ctx.Done():
			case <-time.After(s.backoff):
			}
			continue
		}

		for _, msg := range out.Messages {
			s.process(ctx, msg, handle)
		}
	}
	return nil
}

func (s *awsSQSSender) process(ctx context.Context, msg types.Message, handle HandlerFunc) {
	meta := map[string]any{
		"dispatcher_id": s.id,
		"message_id":    aws.ToString(msg.MessageId),
	}

	task, err := decodeTask([]byte(aws.ToString(msg.Body)))
	if err != nil {
		meta["error"] = err.Error()
		s.log.WarnObj("sqs message is not a task, deleting", "dispatcher_sqs_error", meta)
		s.delete(ctx, msg, meta)
		return
	}
	if err := handle(ctx, task); err != nil {
		meta["error"] = err.Error()
		s.log.WarnObj("sqs task failed, leaving for redelivery", "dispatcher_sqs_error", meta)
		return
	}
	s.delete(ctx, msg, meta)
}

func (s *awsSQSSender) delete(ctx context.Context, msg types.Message, meta map[string]any) {
	if _, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		meta["delete_error"] = err.Error()
		s.log.WarnObj("sqs delete failed", "dispatcher_sqs_error", meta)
	}
}

// snsEnvelope is the body SQS receives from an SNS subscription without raw delivery.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// decodeTask reads a task body, unwrapping an SNS notification envelope.
func decodeTask(body []byte) (domain.Task, error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Type == "Notification" && env.Message != "" {
		body = []byte(env.Message)
	}

	var task domain.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return domain.Task{}, fmt.Errorf("decode task: %w", err)
	}
	if err := task.Validate(); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}
