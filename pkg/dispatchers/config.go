package dispatchers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// Supported dispatcher types.
	TypeLocal  = "local"
	TypeHTTP   = "http"
	TypeSQS    = "sqs"
	TypeSNS    = "sns"
	TypePubSub = "pubsub"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
	httpDefaultRetryWaitMs    = 200
	sqsDefaultWaitSeconds     = 20
	sqsDefaultBatch           = 10
)

// configFile represents the structure of the dispatchers configuration file.
type configFile struct {
	Dispatchers []Config `json:"dispatchers" yaml:"dispatchers"`
}

// Config represents a single dispatcher entry declared in config files.
// Consume marks sqs and pubsub entries that `xread serve` also reads from.
type Config struct {
	ID      string        `json:"id" yaml:"id"`
	Type    string        `json:"type" yaml:"type"`
	Enabled *bool         `json:"enabled" yaml:"enabled"`
	Consume bool          `json:"consume" yaml:"consume"`
	SQS     *SQSConfig    `json:"sqs" yaml:"sqs"`
	SNS     *SNSConfig    `json:"sns" yaml:"sns"`
	PubSub  *PubSubConfig `json:"pubsub" yaml:"pubsub"`
	HTTP    *HTTPConfig   `json:"http" yaml:"http"`
}

// AWSCredentials optionally pins static credentials instead of the default chain.
type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `json:"session_token" yaml:"session_token"`
}

// SQSConfig holds AWS SQS specific settings.
type SQSConfig struct {
	QueueURL    string          `json:"uri" yaml:"uri"`
	Region      string          `json:"region" yaml:"region"`
	Endpoint    string          `json:"endpoint" yaml:"endpoint"`
	WaitSeconds int32           `json:"wait_seconds" yaml:"wait_seconds"`
	MaxMessages int32           `json:"max_messages" yaml:"max_messages"`
	Credentials *AWSCredentials `json:"credentials" yaml:"credentials"`
}

// SNSConfig holds AWS SNS specific settings.
type SNSConfig struct {
	TopicARN    string          `json:"topic_arn" yaml:"topic_arn"`
	Region      string          `json:"region" yaml:"region"`
	Endpoint    string          `json:"endpoint" yaml:"endpoint"`
	Credentials *AWSCredentials `json:"credentials" yaml:"credentials"`
}

// PubSubConfig holds Google Cloud Pub/Sub settings.
type PubSubConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	Subscription    string `json:"subscription" yaml:"subscription"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// HTTPConfig holds generic HTTP sink settings.
type HTTPConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
	RetryCount     int               `json:"retry_count" yaml:"retry_count"`
	RetryWaitMs    int               `json:"retry_wait_ms" yaml:"retry_wait_ms"`
}

// ConfigRegistry materializes dispatcher definitions loaded from config files.
type ConfigRegistry struct {
	mu      sync.RWMutex
	entries []Config
	idx     map[string]Config
}

// LoadRegistry loads the dispatcher registry from a YAML/JSON file.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("dispatchers file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dispatchers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read dispatchers file: %w", err)
	}

	fileReg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return NewConfigRegistry(fileReg.Dispatchers)
}

// NewConfigRegistry sanitizes and validates entries.
func NewConfigRegistry(entries []Config) (*ConfigRegistry, error) {
	if len(entries) == 0 {
		return nil, errors.New("dispatchers file contains no dispatchers entries")
	}

	reg := &ConfigRegistry{
		entries: make([]Config, len(entries)),
		idx:     make(map[string]Config, len(entries)),
	}
	for i := range entries {
		cfg := sanitizeConfig(entries[i])
		if err := validateConfig(cfg); err != nil {
			return nil, fmt.Errorf("dispatchers[%d]: %w", i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate dispatcher id %q", cfg.ID)
		}
		reg.entries[i] = cfg
		reg.idx[cfg.ID] = cfg
	}
	return reg, nil
}

// parseRegistry attempts to decode the dispatchers file content.
func parseRegistry(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg configFile
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}
	return configFile{}, errors.New("dispatchers file format not recognized (expected YAML or JSON)")
}

// sanitizeConfig trims and normalizes the dispatcher config fields.
func sanitizeConfig(cfg Config) Config {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))

	if cfg.Enabled == nil {
		def := true
		cfg.Enabled = &def
	}
	if cfg.SQS != nil {
		c := *cfg.SQS
		c.QueueURL = strings.TrimSpace(c.QueueURL)
		c.Region = strings.TrimSpace(c.Region)
		c.Endpoint = strings.TrimSpace(c.Endpoint)
		if c.WaitSeconds <= 0 || c.WaitSeconds > sqsDefaultWaitSeconds {
			c.WaitSeconds = sqsDefaultWaitSeconds
		}
		if c.MaxMessages <= 0 || c.MaxMessages > sqsDefaultBatch {
			c.MaxMessages = sqsDefaultBatch
		}
		c.Credentials = sanitizeCredentials(c.Credentials)
		cfg.SQS = &c
	}
	if cfg.SNS != nil {
		c := *cfg.SNS
		c.TopicARN = strings.TrimSpace(c.TopicARN)
		c.Region = strings.TrimSpace(c.Region)
		c.Endpoint = strings.TrimSpace(c.Endpoint)
		c.Credentials = sanitizeCredentials(c.Credentials)
		cfg.SNS = &c
	}
	if cfg.PubSub != nil {
		c := *cfg.PubSub
		c.ProjectID = strings.TrimSpace(c.ProjectID)
		c.Topic = strings.TrimSpace(c.Topic)
		c.Subscription = strings.TrimSpace(c.Subscription)
		c.CredentialsFile = strings.TrimSpace(c.CredentialsFile)
		cfg.PubSub = &c
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = strings.TrimSpace(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = httpDefaultMethod
		}
		c.Headers = sanitizeHeaders(c.Headers)
		if c.TimeoutSeconds <= 0 {
			c.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		if c.RetryCount < 0 {
			c.RetryCount = 0
		}
		if c.RetryCount > 0 && c.RetryWaitMs <= 0 {
			c.RetryWaitMs = httpDefaultRetryWaitMs
		}
		cfg.HTTP = &c
	}
	return cfg
}

func sanitizeCredentials(c *AWSCredentials) *AWSCredentials {
	if c == nil {
		return nil
	}
	out := AWSCredentials{
		AccessKeyID:     strings.TrimSpace(c.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(c.SecretAccessKey),
		SessionToken:    strings.TrimSpace(c.SessionToken),
	}
	if out.AccessKeyID == "" && out.SecretAccessKey == "" {
		return nil
	}
	return &out
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validateConfig checks that required fields are present.
func validateConfig(cfg Config) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}

	switch cfg.Type {
	case "":
		return fmt.Errorf("type is required for dispatcher %q", cfg.ID)
	case TypeLocal:
	case TypeSQS:
		if cfg.SQS == nil {
			return fmt.Errorf("sqs config required for dispatcher %q", cfg.ID)
		}
		if cfg.SQS.QueueURL == "" {
			return fmt.Errorf("sqs.uri is required for dispatcher %q", cfg.ID)
		}
		if cfg.SQS.Region == "" {
			return fmt.Errorf("sqs.region is required for dispatcher %q", cfg.ID)
		}
		if err := validateCredentials(cfg.ID, cfg.SQS.Credentials); err != nil {
			return err
		}
	case TypeSNS:
		if cfg.SNS == nil {
			return fmt.Errorf("sns config required for dispatcher %q", cfg.ID)
		}
		if cfg.SNS.TopicARN == "" {
			return fmt.Errorf("sns.topic_arn is required for dispatcher %q", cfg.ID)
		}
		if cfg.SNS.Region == "" {
			return fmt.Errorf("sns.region is required for dispatcher %q", cfg.ID)
		}
		if cfg.Consume {
			return fmt.Errorf("sns dispatcher %q cannot be consumed; subscribe an sqs queue instead", cfg.ID)
		}
		if err := validateCredentials(cfg.ID, cfg.SNS.Credentials); err != nil {
			return err
		}
	case TypePubSub:
		if cfg.PubSub == nil {
			return fmt.Errorf("pubsub config required for dispatcher %q", cfg.ID)
		}
		if cfg.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id is required for dispatcher %q", cfg.ID)
		}
		if cfg.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.topic is required for dispatcher %q", cfg.ID)
		}
		if cfg.Consume && cfg.PubSub.Subscription == "" {
			return fmt.Errorf("pubsub.subscription is required to consume dispatcher %q", cfg.ID)
		}
	case TypeHTTP:
		if cfg.HTTP == nil {
			return fmt.Errorf("http config required for dispatcher %q", cfg.ID)
		}
		if cfg.HTTP.URL == "" {
			return fmt.Errorf("http.url is required for dispatcher %q", cfg.ID)
		}
	}
	if cfg.Consume && cfg.Type != TypeSQS && cfg.Type != TypePubSub {
		return fmt.Errorf("dispatcher %q of type %q cannot be consumed", cfg.ID, cfg.Type)
	}
	return nil
}

func validateCredentials(id string, c *AWSCredentials) error {
	if c == nil {
		return nil
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return fmt.Errorf("dispatcher %q: credentials need both access_key_id and secret_access_key", id)
	}
	return nil
}

// ByID returns the dispatcher config by id.
func (r *ConfigRegistry) ByID(id string) (Config, bool) {
	if r == nil {
		return Config{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return Config{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.idx[id]
	return cfg, ok
}

// All returns all configured dispatchers.
func (r *ConfigRegistry) All() []Config {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, len(r.entries))
	copy(out, r.entries)
	return out
}

// Enabled returns dispatchers that are enabled.
func (r *ConfigRegistry) Enabled() []Config {
	var out []Config
	for _, cfg := range r.All() {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// Consumed returns enabled dispatchers marked for consumption.
func (r *ConfigRegistry) Consumed() []Config {
	var out []Config
	for _, cfg := range r.Enabled() {
		if cfg.Consume {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg Config) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}
