package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gitter-badger/xread/internal/domain"
)

type fakeAIP struct {
	tokens      atomic.Int32
	calls       atomic.Int32
	rejectFirst bool
	lastBody    nlpRequest
}

func (f *fakeAIP) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("grant_type") != "client_credentials" || q.Get("client_id") != "ak" || q.Get("client_secret") != "sk" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"unknown client id"}`))
			return
		}
		n := f.tokens.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + string(rune('0'+n)),
			"expires_in":   2592000,
		})
	})
	mux.HandleFunc(topicPath, func(w http.ResponseWriter, r *http.Request) {
		n := f.calls.Add(1)
		if r.URL.Query().Get("charset") != "UTF-8" {
			t.Errorf("missing charset")
		}
		if f.rejectFirst && n == 1 {
			_, _ = w.Write([]byte(`{"error_code":110,"error_msg":"Access token invalid or no longer valid"}`))
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		_, _ = w.Write([]byte(`{"log_id":7,"item":{"lv1_tag_list":[{"score":0.9,"tag":"科技"},{"score":0.2,"tag":"财经"}],"lv2_tag_list":[{"score":0.8,"tag":"互联网"}]}}`))
	})
	mux.HandleFunc(keywordPath, func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		_, _ = w.Write([]byte(`{"log_id":8,"items":[{"score":0.8,"tag":"golang"},{"score":0.5,"tag":"mongodb"}]}`))
	})
	return mux
}

func newTestAIP(t *testing.T, f *fakeAIP, secret string) *AIP {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	a, err := NewAIP(Options{
		BaseURL:   srv.URL + "/",
		APIKey:    "ak",
		SecretKey: secret,
		Timeout:   2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewAIP: %v", err)
	}
	return a
}

func TestAIPTopicCachesToken(t *testing.T) {
	f := &fakeAIP{}
	a := newTestAIP(t, f, "sk")

	for i := 0; i < 2; i++ {
		res, err := a.Topic(context.Background(), "body text", "headline")
		if err != nil {
			t.Fatalf("Topic: %v", err)
		}
		if tag, ok := res.Primary(); !ok || tag != "科技" {
			t.Fatalf("unexpected primary %q", tag)
		}
	}
	if f.tokens.Load() != 1 {
		t.Fatalf("expected one token fetch, got %d", f.tokens.Load())
	}
	if f.lastBody.Title != "headline" || f.lastBody.Content != "body text" {
		t.Fatalf("unexpected request body %+v", f.lastBody)
	}
}

func TestAIPRefreshesRejectedToken(t *testing.T) {
	f := &fakeAIP{rejectFirst: true}
	a := newTestAIP(t, f, "sk")

	if _, err := a.Topic(context.Background(), "body", "title"); err != nil {
		t.Fatalf("Topic: %v", err)
	}
	if f.tokens.Load() != 2 || f.calls.Load() != 2 {
		t.Fatalf("expected refresh and retry, tokens=%d calls=%d", f.tokens.Load(), f.calls.Load())
	}
}

func TestAIPKeywords(t *testing.T) {
	a := newTestAIP(t, &fakeAIP{}, "sk")
	res, err := a.Keywords(context.Background(), "body", "title")
	if err != nil {
		t.Fatalf("Keywords: %v", err)
	}
	if got := res.Tags(); len(got) != 2 || got[0] != "golang" || got[1] != "mongodb" {
		t.Fatalf("unexpected tags %v", got)
	}
}

func TestAIPTokenFailureIsClassifierFailure(t *testing.T) {
	a := newTestAIP(t, &fakeAIP{}, "wrong")
	_, err := a.Topic(context.Background(), "body", "title")
	if !errors.Is(err, domain.ErrClassifierFailure) {
		t.Fatalf("expected ErrClassifierFailure, got %v", err)
	}
}

func TestAIPServiceErrorIsClassifierFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
			return
		}
		_, _ = w.Write([]byte(`{"error_code":18,"error_msg":"Open api qps request limit reached"}`))
	}))
	defer srv.Close()

	a, err := NewAIP(Options{BaseURL: srv.URL, APIKey: "ak", SecretKey: "sk"}, nil)
	if err != nil {
		t.Fatalf("NewAIP: %v", err)
	}
	if _, err := a.Topic(context.Background(), "body", "title"); !errors.Is(err, domain.ErrClassifierFailure) {
		t.Fatalf("expected ErrClassifierFailure, got %v", err)
	}
}
