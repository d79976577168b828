package ingest

import (
	"strings"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
)

// extractText treats the whole file as page 1. Invalid UTF-8 is dropped.
func extractText(data []byte, base model.ProvisionalDocument) []model.ProvisionalDocument {
	text := strings.ToValidUTF8(string(data), "")
	if isBlank(text) {
		return nil
	}
	doc := base
	doc.Content = text
	doc.Provenance = model.PageRef(1)
	return []model.ProvisionalDocument{doc}
}
