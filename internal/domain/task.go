package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskKind names an enrichment step.
type TaskKind string

const (
	TaskTopic    TaskKind = "topic"
	TaskKeywords TaskKind = "keywords"
)

// Task asks a worker to enrich one stored article. Tasks carry only the
// article id; workers re-read the article so a late task sees current data.
type Task struct {
	ID        string    `json:"id"`
	Kind      TaskKind  `json:"kind"`
	ArticleID string    `json:"article_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTask builds a task with a fresh id.
func NewTask(kind TaskKind, articleID string) Task {
	return Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		ArticleID: articleID,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks a task received from an external queue.
func (t Task) Validate() error {
	switch t.Kind {
	case TaskTopic, TaskKeywords:
	default:
		return fmt.Errorf("task %q: unknown kind %q", t.ID, t.Kind)
	}
	if t.ArticleID == "" {
		return fmt.Errorf("task %q: missing article id", t.ID)
	}
	return nil
}
