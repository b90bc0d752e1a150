package domain

// Domain contains core models shared by storage, catalog and enrichment.

// Collection names used in the document store.
const (
	FeedCollection    = "feed"
	ArticleCollection = "article"
)

// Feed is a syndication source. Link is the natural key.
type Feed struct {
	ID    string `json:"id" bson:"-"`
	Link  string `json:"link" bson:"link"`
	Title string `json:"title" bson:"title"`
}

// Article is a stored feed entry. Title and Link together form the natural key.
// Tags and Topic are only written by the enrichment pipeline.
type Article struct {
	ID      string   `json:"id" bson:"-"`
	Link    string   `json:"link" bson:"link"`
	Title   string   `json:"title" bson:"title"`
	Summary string   `json:"summary" bson:"summary"`
	Time    int64    `json:"time" bson:"time"`
	FeedID  string   `json:"feedId,omitempty" bson:"feedId,omitempty"`
	Tags    []string `json:"tags,omitempty" bson:"tags,omitempty"`
	Topic   *string  `json:"topic,omitempty" bson:"topic,omitempty"`
}

// Label is a tag or topic as listed to callers; ID and Name are the label itself.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Labels converts raw label values into listing items.
func Labels(values []string) []Label {
	out := make([]Label, 0, len(values))
	for _, v := range values {
		out = append(out, Label{ID: v, Name: v})
	}
	return out
}
