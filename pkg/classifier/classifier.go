// Package classifier talks to text classification services: topic
// categorisation and keyword extraction for article text.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	TypeAIP   = "aip"
	TypeLocal = "local"
	TypeNone  = "none"
)

// Classifier categorises article text. text is plain text, title may be empty.
type Classifier interface {
	Topic(ctx context.Context, text, title string) (TopicResult, error)
	Keywords(ctx context.Context, text, title string) (KeywordResult, error)
}

// Tag is a scored label.
type Tag struct {
	Score float64 `json:"score"`
	Tag   string  `json:"tag"`
}

// TopicResult holds first and second level categories, best first.
type TopicResult struct {
	LogID int64     `json:"log_id,omitempty"`
	Item  TopicItem `json:"item"`
}

type TopicItem struct {
	Lv1TagList []Tag `json:"lv1_tag_list"`
	Lv2TagList []Tag `json:"lv2_tag_list"`
}

// Primary returns the first first-level category, if any.
func (r TopicResult) Primary() (string, bool) {
	for _, t := range r.Item.Lv1TagList {
		if tag := strings.TrimSpace(t.Tag); tag != "" {
			return tag, true
		}
	}
	return "", false
}

// KeywordResult holds extracted keywords, best first.
type KeywordResult struct {
	LogID int64 `json:"log_id,omitempty"`
	Items []Tag `json:"items"`
}

// Tags returns the non-empty keyword values in result order.
func (r KeywordResult) Tags() []string {
	out := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		if tag := strings.TrimSpace(it.Tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// Options selects and configures a Classifier implementation.
type Options struct {
	Type         string
	BaseURL      string
	APIKey       string
	SecretKey    string
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// New builds the classifier named by opts.Type. TypeNone yields a classifier
// that never labels anything.
func New(opts Options, log Logger) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Type)) {
	case TypeAIP:
		return NewAIP(opts, log)
	case TypeLocal:
		return NewLocal(), nil
	case TypeNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unsupported classifier type %q", opts.Type)
	}
}

// Disabled returns empty results.
type Disabled struct{}

func (Disabled) Topic(context.Context, string, string) (TopicResult, error) {
	return TopicResult{}, nil
}

func (Disabled) Keywords(context.Context, string, string) (KeywordResult, error) {
	return KeywordResult{}, nil
}
