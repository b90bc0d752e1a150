package classifier

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// maxLocalKeywords caps the keywords returned by Local.Keywords.
const maxLocalKeywords = 8

// Category vocabularies used by Local. Order is the tie-break order.
var localCategories = []struct {
	name     string
	keywords []string
}{
	{"ai", []string{
		"machine learning", "deep learning", "neural", "llm", "gpt", "transformer",
		"inference", "embedding", "diffusion", "nlp", "computer vision", "pytorch", "tensorflow",
	}},
	{"infrastructure", []string{
		"kubernetes", "docker", "container", "cloud", "aws", "gcp", "azure",
		"terraform", "deploy", "cdn", "load balancer", "nginx", "dns", "observability", "monitoring",
	}},
	{"databases", []string{
		"database", "sql", "nosql", "postgres", "postgresql", "mysql", "redis",
		"mongodb", "cassandra", "dynamodb", "indexing", "sharding", "replication",
	}},
	{"distributed systems", []string{
		"distributed", "consensus", "raft", "paxos", "microservice", "grpc",
		"message queue", "kafka", "event driven", "idempotent", "failover", "circuit breaker",
	}},
	{"security", []string{
		"security", "vulnerability", "exploit", "authentication", "authorization",
		"encryption", "tls", "certificate", "firewall", "zero trust", "oauth", "xss", "csrf",
	}},
	{"developer tools", []string{
		"developer", "tooling", "ide", "editor", "debugger", "profiler",
		"compiler", "linter", "cli", "terminal", "git", "ci/cd", "package manager",
	}},
	{"programming", []string{
		"golang", "rust", "python", "javascript", "typescript", "java", "kotlin",
		"runtime", "concurrency", "generics", "garbage collector",
	}},
}

// Local scores text against fixed category vocabularies. It needs no
// network access; title matches weigh twice as much as body matches.
type Local struct{}

// NewLocal returns the offline classifier.
func NewLocal() Local { return Local{} }

// Topic returns every category with a positive score, best first.
func (Local) Topic(ctx context.Context, text, title string) (TopicResult, error) {
	if err := ctx.Err(); err != nil {
		return TopicResult{}, err
	}
	s := newScorer(text, title)

	var tags []Tag
	for _, cat := range localCategories {
		score := 0
		for _, kw := range cat.keywords {
			score += s.score(kw)
		}
		if score > 0 {
			tags = append(tags, Tag{Tag: cat.name, Score: float64(score)})
		}
	}
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Score > tags[j].Score })
	return TopicResult{Item: TopicItem{Lv1TagList: tags}}, nil
}

// Keywords returns the matched vocabulary terms, best first.
func (Local) Keywords(ctx context.Context, text, title string) (KeywordResult, error) {
	if err := ctx.Err(); err != nil {
		return KeywordResult{}, err
	}
	s := newScorer(text, title)

	seen := make(map[string]bool)
	var items []Tag
	for _, cat := range localCategories {
		for _, kw := range cat.keywords {
			if seen[kw] {
				continue
			}
			seen[kw] = true
			if score := s.score(kw); score > 0 {
				items = append(items, Tag{Tag: kw, Score: float64(score)})
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > maxLocalKeywords {
		items = items[:maxLocalKeywords]
	}
	return KeywordResult{Items: items}, nil
}

type scorer struct {
	titleTokens []string
	textTokens  []string
	titleLower  string
	textLower   string
}

func newScorer(text, title string) scorer {
	return scorer{
		titleTokens: tokenize(title),
		textTokens:  tokenize(text),
		titleLower:  strings.ToLower(title),
		textLower:   strings.ToLower(text),
	}
}

func (s scorer) score(kw string) int {
	if strings.Contains(kw, " ") || strings.Contains(kw, "/") {
		score := 0
		if strings.Contains(s.titleLower, kw) {
			score += 2
		}
		if strings.Contains(s.textLower, kw) {
			score++
		}
		return score
	}

	score := 0
	for _, t := range s.titleTokens {
		if t == kw {
			score += 2
		}
	}
	for _, t := range s.textTokens {
		if t == kw {
			score++
		}
	}
	return score
}

func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if word != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}
