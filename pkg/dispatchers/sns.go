package dispatchers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/gitter-badger/xread/internal/domain"
)

// snsClient defines the minimal subset of the SNS client used by awsSNSSender.
type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// awsSNSSender publishes tasks to an SNS topic, typically fanned out to SQS
// queues that `xread serve` consumes.
type awsSNSSender struct {
	id       string
	topicARN string
	client   snsClient
	log      Logger
}

func newSNSDispatcher(ctx context.Context, cfg Config, deps Deps) (Dispatcher, error) {
	if cfg.SNS == nil {
		return nil, fmt.Errorf("dispatcher %q missing sns configuration", cfg.ID)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.SNS.Region, cfg.SNS.Credentials)
	if err != nil {
		return nil, err
	}
	endpoint := cfg.SNS.Endpoint
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &awsSNSSender{
		id:       cfg.ID,
		topicARN: cfg.SNS.TopicARN,
		client:   client,
		log:      ensureLogger(deps.Log),
	}, nil
}

func (s *awsSNSSender) ID() string   { return s.id }
func (s *awsSNSSender) Type() string { return TypeSNS }

// Dispatch publishes the task to the configured topic.
func (s *awsSNSSender) Dispatch(ctx context.Context, task domain.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(payload)),
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

	out, err := s.client.Publish(ctx, input)
	if err != nil {
		s.log.ErrorObj("sns dispatcher publish failed", "dispatcher_sns_error", map[string]any{
			"dispatcher_id": s.id,
			"error":         err.Error(),
		})
		return fmt.Errorf("publish to sns: %w", err)
	}
	s.log.DebugObj("sns dispatcher delivered task", "dispatcher_sns_delivery", map[string]any{
		"dispatcher_id": s.id,
		"task_id":       task.ID,
		"message_id":    aws.ToString(out.MessageId),
	})
	return nil
}
