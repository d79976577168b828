package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// table is a header plus data rows. index holds each row's original 0-based
// position among data rows; rows that were dropped still consume an index.
// Only rows whose every cell is empty are dropped. Cells and header names are
// kept verbatim, so a whitespace-only cell still counts as content.
type table struct {
	header []string
	rows   [][]string
	index  []int
}

func extractTabular(data []byte, ext string, rowsPerBlock int, base model.ProvisionalDocument) ([]model.ProvisionalDocument, error) {
	var (
		records [][]string
		err     error
	)
	switch ext {
	case ".xlsx", "xlsx":
		records, err = readXLSX(data)
	default:
		records, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no columns to parse", model.ErrExtraction)
	}

	tbl := buildTable(records)
	return blockRows(tbl, rowsPerBlock, base), nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv: %w", model.ErrExtraction, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %w", model.ErrExtraction, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", model.ErrExtraction)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", model.ErrExtraction, sheets[0], err)
	}
	return rows, nil
}

// buildTable names the columns, pads short rows with "" and drops rows whose
// cells are all empty.
func buildTable(records [][]string) table {
	width := 0
	for _, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
	}

	header := make([]string, width)
	for i := range header {
		if i < len(records[0]) {
			header[i] = records[0][i]
		}
		if header[i] == "" {
			header[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}

	tbl := table{header: header}
	for i, rec := range records[1:] {
		row := make([]string, width)
		empty := true
		for j := range row {
			if j < len(rec) {
				row[j] = rec[j]
			}
			if row[j] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		tbl.rows = append(tbl.rows, row)
		tbl.index = append(tbl.index, i)
	}
	return tbl
}

func serializeRow(header, row []string) string {
	pairs := make([]string, len(header))
	for i, col := range header {
		pairs[i] = col + ": " + row[i]
	}
	return strings.Join(pairs, " | ")
}

func blockRows(tbl table, rowsPerBlock int, base model.ProvisionalDocument) []model.ProvisionalDocument {
	var docs []model.ProvisionalDocument
	for start := 0; start < len(tbl.rows); start += rowsPerBlock {
		end := start + rowsPerBlock
		if end > len(tbl.rows) {
			end = len(tbl.rows)
		}
		lines := make([]string, 0, end-start)
		for _, row := range tbl.rows[start:end] {
			lines = append(lines, serializeRow(tbl.header, row))
		}
		doc := base
		doc.Content = strings.Join(lines, "\n")
		doc.Provenance = model.RowRangeRef(tbl.index[start], tbl.index[end-1])
		docs = append(docs, doc)
	}
	return docs
}
