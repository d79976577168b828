package model

import "fmt"

// FileKind is the closed set of upload formats the extractor understands.
type FileKind int

const (
	KindPDF FileKind = iota + 1
	KindText
	KindTabular
)

func (k FileKind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindText:
		return "text"
	case KindTabular:
		return "tabular"
	default:
		return "unknown"
	}
}

// ProvenanceKind tells which field of a Provenance is populated.
type ProvenanceKind int

const (
	ProvenanceUnknown ProvenanceKind = iota
	ProvenancePage
	ProvenanceRows
)

// Provenance links extracted text back to a page number or an inclusive,
// 0-based row range. The zero value is an unknown location.
type Provenance struct {
	kind  ProvenanceKind
	page  int
	start int
	end   int
}

// PageRef returns the provenance for a 1-based page number.
func PageRef(page int) Provenance {
	return Provenance{kind: ProvenancePage, page: page}
}

// RowRangeRef returns the provenance for rows start..end inclusive.
func RowRangeRef(start, end int) Provenance {
	return Provenance{kind: ProvenanceRows, start: start, end: end}
}

func (p Provenance) Kind() ProvenanceKind { return p.kind }

// Page returns the page number and whether this is a page provenance.
func (p Provenance) Page() (int, bool) {
	return p.page, p.kind == ProvenancePage
}

// Rows returns the row range and whether this is a row provenance.
func (p Provenance) Rows() (int, int, bool) {
	return p.start, p.end, p.kind == ProvenanceRows
}

// String renders the citation reference used in answer context.
func (p Provenance) String() string {
	switch p.kind {
	case ProvenancePage:
		return fmt.Sprintf("Page %d", p.page)
	case ProvenanceRows:
		return fmt.Sprintf("rows %d-%d", p.start, p.end)
	default:
		return "Unknown Location"
	}
}

// RawUpload is the transient input handed to the extractor.
type RawUpload struct {
	UserID     uint
	Filename   string
	Content    []byte
	Extension  string
	SourceFile string
}

// ProvisionalDocument is one extracted unit: a PDF page, a whole text file or
// a block of spreadsheet rows.
type ProvisionalDocument struct {
	Content      string
	UserID       uint
	DocumentName string
	SourceFile   string
	Provenance   Provenance
}

// Chunk is the unit of embedding and retrieval.
type Chunk struct {
	ID           string
	Content      string
	UserID       uint
	DocumentName string
	SourceFile   string
	Provenance   Provenance
}

// ScoredChunk is a query hit with its cosine similarity.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// VectorRecord is a persisted chunk with its embedding. Seq is the insertion
// order inside the owning collection.
type VectorRecord struct {
	Chunk     Chunk
	Embedding []float32
	Seq       int64
}
