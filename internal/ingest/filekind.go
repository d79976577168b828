package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
)

var kindsByExtension = map[string]model.FileKind{
	".pdf":  model.KindPDF,
	".txt":  model.KindText,
	".csv":  model.KindTabular,
	".xlsx": model.KindTabular,
}

// KindFromExtension maps an extension (with or without the leading dot) to a
// FileKind. Matching is case-insensitive.
func KindFromExtension(ext string) (model.FileKind, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	kind, ok := kindsByExtension[ext]
	if !ok {
		return 0, fmt.Errorf("%w: %q", model.ErrUnsupportedFormat, ext)
	}
	return kind, nil
}

// KindFromFilename resolves the kind from a filename's extension.
func KindFromFilename(name string) (model.FileKind, error) {
	return KindFromExtension(filepath.Ext(name))
}
