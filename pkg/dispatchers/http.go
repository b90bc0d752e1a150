package dispatchers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gitter-badger/xread/internal/domain"
	"github.com/gitter-badger/xread/pkg/httpclient"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerTaskKind       = "X-Xread-Task-Kind"
	maxErrorBodyBytes    = 512
)

// httpDispatcher posts each task as JSON to a webhook. The task id travels as
// the idempotency key, so a receiver can drop the duplicates retries produce.
type httpDispatcher struct {
	id      string
	method  string
	url     string
	headers map[string]string
	client  *resty.Client
}

func newHTTPDispatcher(_ context.Context, cfg Config, _ Deps) (Dispatcher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("dispatcher %q missing http configuration", cfg.ID)
	}

	client := httpclient.NewRetryingClient(time.Duration(cfg.HTTP.TimeoutSeconds)*time.Second, httpclient.Retry{
		Count: cfg.HTTP.RetryCount,
		Wait:  time.Duration(cfg.HTTP.RetryWaitMs) * time.Millisecond,
	})
	return &httpDispatcher{
		id:      cfg.ID,
		method:  cfg.HTTP.Method,
		url:     cfg.HTTP.URL,
		headers: cfg.HTTP.Headers,
		client:  client,
	}, nil
}

func (h *httpDispatcher) ID() string   { return h.id }
func (h *httpDispatcher) Type() string { return TypeHTTP }

// Dispatch delivers task. 409 Conflict means the receiver already holds a
// task with this idempotency key and counts as delivered.
func (h *httpDispatcher) Dispatch(ctx context.Context, task domain.Task) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeaders(h.headers).
		SetHeader("Content-Type", "application/json").
		SetHeader(headerIdempotencyKey, task.ID).
		SetHeader(headerTaskKind, string(task.Kind)).
		SetBody(task).
		Execute(h.method, h.url)
	if err != nil {
		return fmt.Errorf("deliver task %s: %w", task.ID, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusConflict:
		return nil
	case resp.IsError():
		return fmt.Errorf("deliver task %s: status %d: %s", task.ID, code, errorSnippet(resp.Body()))
	}
	return nil
}

func errorSnippet(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	return strings.TrimSpace(string(body))
}
