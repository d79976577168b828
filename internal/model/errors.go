package model

import "errors"

// Pipeline errors. Ingestion errors surface to the uploader; ErrGeneration is
// replaced by a fallback answer before it reaches a caller.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrExtraction        = errors.New("extraction failed")
	ErrEmbedding         = errors.New("embedding failed")
	ErrStorage           = errors.New("vector storage failed")
	ErrGeneration        = errors.New("answer generation failed")
	ErrFileLimitExceeded = errors.New("file limit exceeded")
	ErrOwnerMismatch     = errors.New("chunk owner does not match collection owner")
)
