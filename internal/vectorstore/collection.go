package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mohamedazimal27/rag-docmind/internal/model"
)

const collectionFile = "collection.db"

const schema = `
CREATE TABLE IF NOT EXISTS collection_meta (
	name       TEXT PRIMARY KEY,
	owner_id   INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id      TEXT NOT NULL UNIQUE,
	owner_id      INTEGER NOT NULL,
	document_name TEXT NOT NULL,
	source_file   TEXT NOT NULL,
	ref_kind      INTEGER NOT NULL,
	page          INTEGER,
	row_start     INTEGER,
	row_end       INTEGER,
	content       TEXT NOT NULL,
	embedding     BLOB NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_owner ON records(owner_id, seq);
`

var errNoCollection = errors.New("collection does not exist")

// CollectionName is the logical name of a user's collection.
func CollectionName(userID uint) string {
	return fmt.Sprintf("user_%d_docs", userID)
}

// collection is an open handle on one user's SQLite database.
type collection struct {
	db      *sql.DB
	name    string
	ownerID uint
}

// openCollection opens the user's collection under dir. With create unset a
// missing collection yields errNoCollection instead of an empty database.
func openCollection(ctx context.Context, dir string, userID uint, create bool) (*collection, error) {
	path := filepath.Join(dir, collectionFile)
	if !create {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, errNoCollection
			}
			return nil, fmt.Errorf("stat collection: %w", err)
		}
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating collection directory: %w", err)
	}

	// WAL plus busy_timeout lets concurrent requests for the same user share
	// the file without an in-process lock.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening collection: %w", err)
	}

	c := &collection{db: db, name: CollectionName(userID), ownerID: userID}
	if err := c.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *collection) init(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	// Concurrent first opens race here. The insert only fires on an empty
	// table, so the loser writes nothing and reads the winner's row below.
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO collection_meta (name, owner_id, created_at)
		 SELECT ?, ?, ? WHERE NOT EXISTS (SELECT 1 FROM collection_meta)`,
		c.name, int64(c.ownerID), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("registering collection: %w", err)
	}

	var (
		name  string
		owner int64
	)
	if err := c.db.QueryRowContext(ctx, `SELECT name, owner_id FROM collection_meta LIMIT 1`).Scan(&name, &owner); err != nil {
		return fmt.Errorf("reading collection owner: %w", err)
	}

	// A database holds exactly one collection.
	if name != c.name || uint(owner) != c.ownerID {
		return fmt.Errorf("database holds collection %s of user %d, want %s", name, owner, c.name)
	}
	return nil
}

func (c *collection) Close() error {
	return c.db.Close()
}

// upsert writes every chunk in one transaction so an upload is stored
// completely or not at all.
func (c *collection) upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (chunk_id, owner_id, document_name, source_file, ref_kind, page, row_start, row_end, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			document_name = excluded.document_name,
			source_file = excluded.source_file,
			ref_kind = excluded.ref_kind,
			page = excluded.page,
			row_start = excluded.row_start,
			row_end = excluded.row_end,
			content = excluded.content,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, ch := range chunks {
		page, rowStart, rowEnd := provenanceColumns(ch.Provenance)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, int64(ch.UserID), ch.DocumentName, ch.SourceFile,
			int(ch.Provenance.Kind()), page, rowStart, rowEnd,
			ch.Content, float32SliceToBytes(vectors[i]), now,
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// listByOwner returns the records matching ownerID in insertion order.
func (c *collection) listByOwner(ctx context.Context, ownerID uint) ([]model.VectorRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT seq, chunk_id, owner_id, document_name, source_file, ref_kind, page, row_start, row_end, content, embedding
		FROM records
		WHERE owner_id = ?
		ORDER BY seq ASC`, int64(ownerID))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []model.VectorRecord
	for rows.Next() {
		var (
			rec       model.VectorRecord
			owner     int64
			kind      int
			page      sql.NullInt64
			rowStart  sql.NullInt64
			rowEnd    sql.NullInt64
			embedding []byte
		)
		if err := rows.Scan(&rec.Seq, &rec.Chunk.ID, &owner, &rec.Chunk.DocumentName, &rec.Chunk.SourceFile,
			&kind, &page, &rowStart, &rowEnd, &rec.Chunk.Content, &embedding); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Chunk.UserID = uint(owner)
		rec.Chunk.Provenance = provenanceFromColumns(model.ProvenanceKind(kind), page, rowStart, rowEnd)
		rec.Embedding = bytesToFloat32Slice(embedding)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func provenanceColumns(p model.Provenance) (page, rowStart, rowEnd sql.NullInt64) {
	if n, ok := p.Page(); ok {
		page = sql.NullInt64{Int64: int64(n), Valid: true}
	}
	if start, end, ok := p.Rows(); ok {
		rowStart = sql.NullInt64{Int64: int64(start), Valid: true}
		rowEnd = sql.NullInt64{Int64: int64(end), Valid: true}
	}
	return page, rowStart, rowEnd
}

func provenanceFromColumns(kind model.ProvenanceKind, page, rowStart, rowEnd sql.NullInt64) model.Provenance {
	switch {
	case kind == model.ProvenancePage && page.Valid:
		return model.PageRef(int(page.Int64))
	case kind == model.ProvenanceRows && rowStart.Valid && rowEnd.Valid:
		return model.RowRangeRef(int(rowStart.Int64), int(rowEnd.Int64))
	default:
		return model.Provenance{}
	}
}

// float32SliceToBytes encodes an embedding as little-endian float32s.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
