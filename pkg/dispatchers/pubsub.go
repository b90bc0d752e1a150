package dispatchers

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/gitter-badger/xread/internal/domain"
)

// gcpPubSubSender publishes tasks to a Pub/Sub topic and optionally receives
// them from a subscription.
type gcpPubSubSender struct {
	id           string
	client       *pubsub.Client
	topic        *pubsub.Topic
	subscription string
	log          Logger
}

func newPubSubDispatcher(ctx context.Context, cfg Config, deps Deps) (Dispatcher, error) {
	if cfg.PubSub == nil {
		return nil, fmt.Errorf("dispatcher %q missing pubsub configuration", cfg.ID)
	}
	s, err := newGCPPubSubSender(ctx, cfg.PubSub, deps.Log)
	if err != nil {
		return nil, err
	}
	s.id = cfg.ID
	return s, nil
}

func newGCPPubSubSender(ctx context.Context, cfg *PubSubConfig, log Logger) (*gcpPubSubSender, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	return &gcpPubSubSender{
		id:           cfg.Topic,
		client:       client,
		topic:        client.Topic(cfg.Topic),
		subscription: cfg.Subscription,
		log:          ensureLogger(log),
	}, nil
}

func (g *gcpPubSubSender) ID() string   { return g.id }
func (g *gcpPubSubSender) Type() string { return TypePubSub }

// Dispatch publishes the task and waits for the server to accept it.
func (g *gcpPubSubSender) Dispatch(ctx context.Context, task domain.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	res := g.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			attrTaskKind:  string(task.Kind),
			attrArticleID: task.ArticleID,
		},
	})
	msgID, err := res.Get(ctx)
	if err != nil {
		g.log.ErrorObj("pubsub dispatcher publish failed", "dispatcher_pubsub_error", map[string]any{
			"dispatcher_id": g.id,
			"error":         err.Error(),
		})
		return fmt.Errorf("publish to pubsub: %w", err)
	}
	g.log.DebugObj("pubsub dispatcher delivered task", "dispatcher_pubsub_delivery", map[string]any{
		"dispatcher_id": g.id,
		"task_id":       task.ID,
		"message_id":    msgID,
	})
	return nil
}

// Consume receives from the configured subscription until ctx ends. Handler
// failures are nacked for redelivery; undecodable messages are acked and logged.
func (g *gcpPubSubSender) Consume(ctx context.Context, handle HandlerFunc) error {
	if g.subscription == "" {
		return fmt.Errorf("dispatcher %q has no subscription to consume", g.id)
	}

	err := g.client.Subscription(g.subscription).Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		meta := map[string]any{
			"dispatcher_id": g.id,
			"message_id":    m.ID,
		}
		task, err := decodeTask(m.Data)
		if err != nil {
			meta["error"] = err.Error()
			g.log.WarnObj("pubsub message is not a task", "dispatcher_pubsub_error", meta)
			m.Ack()
			return
		}
		if err := handle(ctx, task); err != nil {
			meta["error"] = err.Error()
			g.log.WarnObj("pubsub task failed, nacking", "dispatcher_pubsub_error", meta)
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

// Close flushes pending publishes and releases the client.
func (g *gcpPubSubSender) Close() error {
	g.topic.Stop()
	return g.client.Close()
}
