package ingest

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
)

// pdfcpu reads and writes a per-user config dir unless told not to.
var disablePDFConfigDir sync.Once

// extractPDF emits one document per page that has non-blank text. The file is
// validated with pdfcpu first so corrupt uploads fail with ErrExtraction
// instead of reaching the text reader.
func extractPDF(data []byte, base model.ProvisionalDocument) (docs []model.ProvisionalDocument, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty pdf", model.ErrExtraction)
	}

	disablePDFConfigDir.Do(api.DisableConfigDir)
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	if _, err := api.PageCount(bytes.NewReader(data), conf); err != nil {
		return nil, fmt.Errorf("%w: invalid pdf: %w", model.ErrExtraction, err)
	}

	// ledongthuc/pdf panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("%w: read pdf: %v", model.ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %w", model.ErrExtraction, err)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", model.ErrExtraction, i, err)
		}
		if isBlank(text) {
			continue
		}
		doc := base
		doc.Content = text
		doc.Provenance = model.PageRef(i)
		docs = append(docs, doc)
	}
	return docs, nil
}
