package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gitter-badger/xread/internal/domain"
	"github.com/gitter-badger/xread/pkg/httpclient"
)

const (
	tokenPath   = "/oauth/2.0/token"
	topicPath   = "/rpc/2.0/nlp/v1/topic"
	keywordPath = "/rpc/2.0/nlp/v1/keyword"

	maxTitleBytes   = 80
	maxContentBytes = 65535

	// refresh tokens this long before the service expires them.
	tokenSlack = time.Minute
)

// Error codes for an invalid or expired access token.
var tokenErrorCodes = map[int]bool{110: true, 111: true}

// AIP calls a remote NLP service authenticated with an OAuth
// client-credentials token.
type AIP struct {
	base      string
	apiKey    string
	secretKey string
	client    httpclient.Client
	log       Logger
	now       func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewAIP builds a client for the service at opts.BaseURL.
func NewAIP(opts Options, log Logger) (*AIP, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("aip classifier requires a base url")
	}
	if strings.TrimSpace(opts.APIKey) == "" || strings.TrimSpace(opts.SecretKey) == "" {
		return nil, fmt.Errorf("aip classifier requires api and secret keys")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := httpclient.Wrap(httpclient.NewRetryingClient(timeout, httpclient.Retry{
		Count:   opts.RetryCount,
		Wait:    opts.RetryWait,
		MaxWait: opts.RetryMaxWait,
	}))
	return newAIPWithClient(base, opts.APIKey, opts.SecretKey, client, log), nil
}

func newAIPWithClient(base, apiKey, secretKey string, client httpclient.Client, log Logger) *AIP {
	return &AIP{
		base:      base,
		apiKey:    apiKey,
		secretKey: secretKey,
		client:    client,
		log:       ensureLogger(log),
		now:       time.Now,
	}
}

type nlpRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type serviceError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Topic returns first and second level categories for the text.
func (a *AIP) Topic(ctx context.Context, text, title string) (TopicResult, error) {
	var out TopicResult
	if a == nil {
		return out, fmt.Errorf("%w: aip classifier is nil", domain.ErrClassifierFailure)
	}
	err := a.call(ctx, topicPath, text, title, &out)
	return out, err
}

// Keywords returns keywords extracted from the text.
func (a *AIP) Keywords(ctx context.Context, text, title string) (KeywordResult, error) {
	var out KeywordResult
	if a == nil {
		return out, fmt.Errorf("%w: aip classifier is nil", domain.ErrClassifierFailure)
	}
	err := a.call(ctx, keywordPath, text, title, &out)
	return out, err
}

func (a *AIP) call(ctx context.Context, path, text, title string, out any) error {
	body := nlpRequest{
		Title:   truncateBytes(title, maxTitleBytes),
		Content: truncateBytes(text, maxContentBytes),
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := a.accessToken(ctx)
		if err != nil {
			return err
		}

		endpoint := a.base + path + "?" + url.Values{
			"charset":      {"UTF-8"},
			"access_token": {token},
		}.Encode()
		resp, err := a.client.Post(ctx, endpoint, nil, body)
		if err != nil {
			return fmt.Errorf("%w: %s request: %v", domain.ErrClassifierFailure, path, err)
		}
		if resp.StatusCode() >= 400 {
			return fmt.Errorf("%w: %s status %d: %s", domain.ErrClassifierFailure, path, resp.StatusCode(), snippet(resp.Body()))
		}

		var svcErr serviceError
		if err := json.Unmarshal(resp.Body(), &svcErr); err != nil {
			return fmt.Errorf("%w: %s decode: %v", domain.ErrClassifierFailure, path, err)
		}
		if svcErr.Code != 0 {
			if tokenErrorCodes[svcErr.Code] && attempt == 0 {
				a.log.DebugObj("aip token rejected, refreshing", "aip_error", svcErr)
				a.invalidate()
				continue
			}
			return fmt.Errorf("%w: %s error %d: %s", domain.ErrClassifierFailure, path, svcErr.Code, svcErr.Message)
		}

		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("%w: %s decode: %v", domain.ErrClassifierFailure, path, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s token rejected after refresh", domain.ErrClassifierFailure, path)
}

func (a *AIP) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Before(a.expires) {
		return a.token, nil
	}

	endpoint := a.base + tokenPath + "?" + url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {a.apiKey},
		"client_secret": {a.secretKey},
	}.Encode()
	resp, err := a.client.Post(ctx, endpoint, nil, nil)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", domain.ErrClassifierFailure, err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return "", fmt.Errorf("%w: token decode (status %d): %v", domain.ErrClassifierFailure, resp.StatusCode(), err)
	}
	if tok.Error != "" || tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token status %d: %s %s", domain.ErrClassifierFailure,
			resp.StatusCode(), tok.Error, tok.ErrorDescription)
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl > tokenSlack {
		ttl -= tokenSlack
	}
	a.token = tok.AccessToken
	a.expires = a.now().Add(ttl)
	a.log.DebugObj("aip token refreshed", "aip_token", map[string]any{"expires_at": a.expires})
	return a.token, nil
}

func (a *AIP) invalidate() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}

func snippet(body []byte) string {
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
