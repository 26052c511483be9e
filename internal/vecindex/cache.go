package vecindex

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tkohari/reviewkit/internal/models"
)

// WriteDocuments writes the document cache that accompanies an index file.
// Row i of the index corresponds to docs[i].
func WriteDocuments(path string, docs []models.Document) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write document cache: %w", err)
	}
	return nil
}

// ReadDocuments loads a document cache written by WriteDocuments.
func ReadDocuments(path string) ([]models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document cache: %w", err)
	}
	var docs []models.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse document cache: %w", err)
	}
	return docs, nil
}
