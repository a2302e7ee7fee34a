package search

// Result is a single post hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	AuthorID string `json:"authorId"`
	Category string `json:"category"`
	Snippet  string `json:"snippet"`
}

// Query describes a search request over posts.
type Query struct {
	Text           string
	FilterCategory string // empty = all categories
	FilterAuthorID string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over posts.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// PostRecord is the data we index for a post.
type PostRecord struct {
	ID       string `json:"id"`
	AuthorID string `json:"authorId"`
	Content  string `json:"content"`
	Category string `json:"category"`
}
