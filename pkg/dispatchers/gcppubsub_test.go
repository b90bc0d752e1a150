package dispatchers

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"

	"github.com/gitter-badger/xread/internal/domain"
	"github.com/gitter-badger/xread/internal/enrichment"
)

func TestGCPPubSubSenderRoundTrip(t *testing.T) {
	// Use the in-memory Pub/Sub emulator.
	server := pstest.NewServer()
	defer server.Close()
	t.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	admin, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	defer admin.Close()
	topic, err := admin.CreateTopic(ctx, "tasks")
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	if _, err := admin.CreateSubscription(ctx, "tasks-sub", pubsub.SubscriptionConfig{Topic: topic}); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	d, err := newPubSubDispatcher(ctx, sanitizeConfig(Config{
		ID:      "ps",
		Type:    TypePubSub,
		Consume: true,
		PubSub:  &PubSubConfig{ProjectID: "test-project", Topic: "tasks", Subscription: "tasks-sub"},
	}), Deps{})
	if err != nil {
		t.Fatalf("newPubSubDispatcher: %v", err)
	}
	sender := d.(*gcpPubSubSender)
	defer sender.Close()

	task := domain.NewTask(domain.TaskTopic, "a1")
	if err := sender.Dispatch(ctx, task); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	recvCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	got := make(chan domain.Task, 1)
	err = sender.Consume(recvCtx, func(_ context.Context, tk domain.Task) error {
		select {
		case got <- tk:
		default:
		}
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	select {
	case tk := <-got:
		if tk.ID != task.ID || tk.ArticleID != "a1" {
			t.Fatalf("unexpected task %+v", tk)
		}
	default:
		t.Fatalf("no task received")
	}
}

func TestGCPPubSubSenderConsumeRequiresSubscription(t *testing.T) {
	server := pstest.NewServer()
	defer server.Close()
	t.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	sender, err := newGCPPubSubSender(context.Background(), &PubSubConfig{ProjectID: "p", Topic: "t"}, nil)
	if err != nil {
		t.Fatalf("newGCPPubSubSender: %v", err)
	}
	defer sender.Close()

	if err := sender.Consume(context.Background(), nil); err == nil {
		t.Fatalf("expected error without subscription")
	}
}

func TestGCPPubSubConsumerAcksClassifierFailures(t *testing.T) {
	server := pstest.NewServer()
	defer server.Close()
	t.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	admin, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	defer admin.Close()
	topic, err := admin.CreateTopic(ctx, "tasks")
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	if _, err := admin.CreateSubscription(ctx, "tasks-sub", pubsub.SubscriptionConfig{Topic: topic}); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	sender, err := newGCPPubSubSender(ctx, &PubSubConfig{ProjectID: "test-project", Topic: "tasks", Subscription: "tasks-sub"}, nil)
	if err != nil {
		t.Fatalf("newGCPPubSubSender: %v", err)
	}
	defer sender.Close()
	if err := sender.Dispatch(ctx, domain.NewTask(domain.TaskTopic, "a1")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	pipe := enrichment.NewPipeline(articleStore{}, downClassifier{}, time.Second, nil)
	recvCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	handled := make(chan error, 1)
	err = sender.Consume(recvCtx, func(ctx context.Context, task domain.Task) error {
		err := pipe.Handle(ctx, task)
		select {
		case handled <- err:
		default:
		}
		cancel()
		return err
	})
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	select {
	case err := <-handled:
		if err != nil {
			t.Fatalf("classifier failure must not fail the message: %v", err)
		}
	default:
		t.Fatalf("no task received")
	}
	msgs := server.Messages()
	if len(msgs) != 1 || msgs[0].Acks == 0 {
		t.Fatalf("expected the message to be acked, got %+v", msgs)
	}
}
