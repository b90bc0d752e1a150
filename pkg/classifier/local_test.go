package classifier

import (
	"context"
	"testing"
)

func TestLocalTopic(t *testing.T) {
	tests := []struct {
		title, text string
		want        string
	}{
		{"Scaling PostgreSQL to 10TB", "Database sharding and replication strategies", "databases"},
		{"Building Our Kubernetes Platform", "How we deployed containers across cloud regions", "infrastructure"},
		{"Zero Trust Authentication at Scale", "TLS encryption and OAuth across services", "security"},
		{"Raft consensus explained", "A distributed log with failover", "distributed systems"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			res, err := NewLocal().Topic(context.Background(), tt.text, tt.title)
			if err != nil {
				t.Fatalf("Topic: %v", err)
			}
			got, ok := res.Primary()
			if !ok || got != tt.want {
				t.Fatalf("expected %q, got %q (%+v)", tt.want, got, res.Item.Lv1TagList)
			}
		})
	}
}

func TestLocalTopicNoMatchYieldsNoLabel(t *testing.T) {
	res, err := NewLocal().Topic(context.Background(), "a quiet afternoon", "Gardening notes")
	if err != nil {
		t.Fatalf("Topic: %v", err)
	}
	if _, ok := res.Primary(); ok {
		t.Fatalf("expected no label, got %+v", res)
	}
}

func TestLocalKeywords(t *testing.T) {
	res, err := NewLocal().Keywords(context.Background(), "Redis and Kafka in production; redis again", "Redis tips")
	if err != nil {
		t.Fatalf("Keywords: %v", err)
	}
	tags := res.Tags()
	if len(tags) != 2 || tags[0] != "redis" || tags[1] != "kafka" {
		t.Fatalf("unexpected keywords %v", tags)
	}
}

func TestLocalHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocal().Topic(ctx, "kubernetes", ""); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestNewSelectsImplementation(t *testing.T) {
	if c, err := New(Options{Type: "local"}, nil); err != nil {
		t.Fatalf("New local: %v", err)
	} else if _, ok := c.(Local); !ok {
		t.Fatalf("expected Local, got %T", c)
	}
	if c, err := New(Options{Type: "none"}, nil); err != nil {
		t.Fatalf("New none: %v", err)
	} else if _, ok := c.(Disabled); !ok {
		t.Fatalf("expected Disabled, got %T", c)
	}
	if _, err := New(Options{Type: "aip"}, nil); err == nil {
		t.Fatalf("expected aip without keys to fail")
	}
	if _, err := New(Options{Type: "bogus"}, nil); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText(`<p>Hello <b>world</b></p><script>alert(1)</script>
	<div>again &amp; more</div>`)
	if got != "Hello world again & more" {
		t.Fatalf("unexpected text %q", got)
	}
	if PlainText("  plain   text ") != "plain text" {
		t.Fatalf("plain input not collapsed")
	}
}

func TestTruncateBytesKeepsRunes(t *testing.T) {
	if got := truncateBytes("héllo", 2); got != "h" {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
	if got := truncateBytes("abc", 10); got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
}
