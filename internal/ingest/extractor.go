package ingest

import (
	"strings"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
)

// DefaultRowsPerBlock is how many spreadsheet rows go into one provisional document.
const DefaultRowsPerBlock = 10

// Extractor turns raw upload bytes into provisional documents tagged with
// page or row provenance.
type Extractor struct {
	rowsPerBlock int
}

func NewExtractor(rowsPerBlock int) *Extractor {
	if rowsPerBlock <= 0 {
		rowsPerBlock = DefaultRowsPerBlock
	}
	return &Extractor{rowsPerBlock: rowsPerBlock}
}

// Extract dispatches on the upload's extension. Unsupported extensions fail
// before the content is looked at.
func (e *Extractor) Extract(upload model.RawUpload) ([]model.ProvisionalDocument, error) {
	kind, err := KindFromExtension(upload.Extension)
	if err != nil {
		return nil, err
	}

	base := model.ProvisionalDocument{
		UserID:       upload.UserID,
		DocumentName: upload.Filename,
		SourceFile:   upload.SourceFile,
	}

	var docs []model.ProvisionalDocument
	switch kind {
	case model.KindPDF:
		docs, err = extractPDF(upload.Content, base)
	case model.KindText:
		docs = extractText(upload.Content, base)
	case model.KindTabular:
		docs, err = extractTabular(upload.Content, strings.ToLower(upload.Extension), e.rowsPerBlock, base)
	}
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
