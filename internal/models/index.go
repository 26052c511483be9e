package models

import "time"

// Reserved category values. CategoryOther is what the model falls back to
// when no vocabulary entry fits a review; CategoryNA marks reviews that were
// empty or could not be classified at all.
const (
	CategoryOther = "other"
	CategoryNA    = "N/A"
)

// IndexRecord tracks the on-disk vector index for one (owner, target) pair.
// The index file and the document cache file are written together; a record
// whose files are missing or half-written is never considered valid.
type IndexRecord struct {
	ID             string    `json:"id"`
	Owner          string    `json:"owner"`
	Target         string    `json:"target"`
	IndexPath      string    `json:"index_path"`
	CachePath      string    `json:"cache_path"`
	EmbeddingModel string    `json:"embedding_model"`
	DocumentCount  int       `json:"document_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Industry is the classification target: it owns the index and the allowed
// category vocabulary.
type Industry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Owner      string    `json:"owner"`
	Categories []string  `json:"categories"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Document is one indexed review text plus its metadata. Documents are
// created in bulk when an index is built or extended and never individually
// mutated afterwards.
type Document struct {
	Text       string   `json:"text"`
	Target     string   `json:"target"`
	Categories []string `json:"categories"`
}

// Item is one classification input in original submission order.
type Item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// BatchResult is the classification outcome for a single item.
type BatchResult struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	SimilarReviews []string `json:"similar_reviews"`
	Categories     []string `json:"categories"`
}
