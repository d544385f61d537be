package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("store: document not found")
	// ErrConflict is returned when a mutation presents a stale revision.
	ErrConflict = errors.New("store: revision conflict")
)

// Store is the durable local document database.
//
// It is safe for use from the cooperative single-writer model the application
// runs under: mutations are atomic compare-and-swap statements, and the
// revision check catches stale reads rather than cross-thread races.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the document database at path.
//
// The database runs in embedded mode with WAL enabled. The schema and the
// query indexes are created if missing. The caller must Close when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates the documents table and its indexes. Idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		local_id    TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		backend_id  INTEGER,
		patient_id  TEXT,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		revision    INTEGER NOT NULL DEFAULT 1,
		fields      TEXT NOT NULL DEFAULT '{}',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	-- Declared indexes for the sync engine's access patterns. Queries stay
	-- correct without them; they only exist to avoid full scans.
	CREATE INDEX IF NOT EXISTS idx_documents_status
	    ON documents(entity_type, sync_status);
	CREATE INDEX IF NOT EXISTS idx_documents_backend
	    ON documents(entity_type, backend_id);
	CREATE INDEX IF NOT EXISTS idx_documents_patient
	    ON documents(entity_type, patient_id);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Destroy drops all documents and recreates the schema.
//
// This is the primitive behind a full resync: any pending documents are
// unrecoverably lost. Callers are expected to have obtained explicit user
// confirmation first.
func (s *Store) Destroy(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, "DROP TABLE IF EXISTS documents"); err != nil {
		return fmt.Errorf("failed to drop documents table: %w", err)
	}
	return s.InitSchemaContext(ctx)
}

// Put inserts or updates a document.
//
// A document with Revision == 0 is inserted; an existing local id fails with
// ErrConflict. A document with Revision > 0 is updated only if the stored
// revision still matches (compare-and-swap); otherwise ErrConflict, or
// ErrNotFound when the document no longer exists. On success the document's
// Revision is advanced in place.
//
// CreatedAt/UpdatedAt are filled with the current time when zero, so pull
// inserts can carry the backend's timestamps through unchanged.
func (s *Store) Put(doc *Document) error {
	return s.PutContext(context.Background(), doc)
}

// PutContext inserts or updates a document with context support.
func (s *Store) PutContext(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}

	fieldsJSON, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	if doc.Revision == 0 {
		query := `
		INSERT INTO documents (
			local_id, entity_type, backend_id, patient_id,
			sync_status, revision, fields, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		`
		_, err := s.conn.ExecContext(ctx, query,
			doc.LocalID,
			string(doc.EntityType),
			backendIDValue(doc.BackendID),
			nullString(doc.PatientID),
			string(doc.SyncStatus),
			string(fieldsJSON),
			doc.CreatedAt.Format(time.RFC3339),
			doc.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("insert of existing document %s: %w", doc.LocalID, ErrConflict)
			}
			return fmt.Errorf("failed to insert document %s: %w", doc.LocalID, err)
		}
		doc.Revision = 1
		return nil
	}

	query := `
	UPDATE documents SET
		backend_id  = ?,
		patient_id  = ?,
		sync_status = ?,
		revision    = revision + 1,
		fields      = ?,
		updated_at  = ?
	WHERE local_id = ? AND revision = ?
	`
	res, err := s.conn.ExecContext(ctx, query,
		backendIDValue(doc.BackendID),
		nullString(doc.PatientID),
		string(doc.SyncStatus),
		string(fieldsJSON),
		doc.UpdatedAt.Format(time.RFC3339),
		doc.LocalID,
		doc.Revision,
	)
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", doc.LocalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetContext(ctx, doc.LocalID); errors.Is(err, ErrNotFound) {
			return fmt.Errorf("update of missing document %s: %w", doc.LocalID, ErrNotFound)
		}
		return fmt.Errorf("stale revision %d for document %s: %w", doc.Revision, doc.LocalID, ErrConflict)
	}
	doc.Revision++
	return nil
}

// Get retrieves a document by local id. Missing documents fail with ErrNotFound.
func (s *Store) Get(localID string) (*Document, error) {
	return s.GetContext(context.Background(), localID)
}

// GetContext retrieves a document with context support.
func (s *Store) GetContext(ctx context.Context, localID string) (*Document, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT local_id, entity_type, backend_id, patient_id,
	       sync_status, revision, fields, created_at, updated_at
	FROM documents WHERE local_id = ?
	`, localID)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", localID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Remove deletes a document, checking the presented revision.
// A stale revision fails with ErrConflict; a missing document with ErrNotFound.
func (s *Store) Remove(localID string, revision int64) error {
	return s.RemoveContext(context.Background(), localID, revision)
}

// RemoveContext deletes a document with context support.
func (s *Store) RemoveContext(ctx context.Context, localID string, revision int64) error {
	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM documents WHERE local_id = ? AND revision = ?", localID, revision)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", localID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetContext(ctx, localID); errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete of missing document %s: %w", localID, ErrNotFound)
		}
		return fmt.Errorf("stale revision %d for document %s: %w", revision, localID, ErrConflict)
	}
	return nil
}

// Selector describes an equality/existence predicate over the envelope.
// Zero-valued fields are not part of the predicate.
type Selector struct {
	EntityType EntityType
	SyncStatus SyncStatus
	// PatientID matches child documents of one patient (local identity space).
	PatientID string
	// BackendID matches a specific backend row id.
	BackendID int64
	// HasBackendID, when non-nil, matches documents with (true) or without
	// (false) an assigned backend id.
	HasBackendID *bool

	// SortField orders results. Envelope timestamps ("createdAt",
	// "updatedAt") sort in SQL; any other name sorts in memory by parsing
	// the named entity field as an RFC 3339 timestamp after retrieval, so a
	// missing index never fails the query.
	SortField  string
	Descending bool
}

// Find returns all documents matching the selector.
func (s *Store) Find(sel Selector) ([]*Document, error) {
	return s.FindContext(context.Background(), sel)
}

// FindContext returns matching documents with context support.
func (s *Store) FindContext(ctx context.Context, sel Selector) ([]*Document, error) {
	var conditions []string
	var args []any

	if sel.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, string(sel.EntityType))
	}
	if sel.SyncStatus != "" {
		conditions = append(conditions, "sync_status = ?")
		args = append(args, string(sel.SyncStatus))
	}
	if sel.PatientID != "" {
		conditions = append(conditions, "patient_id = ?")
		args = append(args, sel.PatientID)
	}
	if sel.BackendID != 0 {
		conditions = append(conditions, "backend_id = ?")
		args = append(args, sel.BackendID)
	}
	if sel.HasBackendID != nil {
		if *sel.HasBackendID {
			conditions = append(conditions, "backend_id IS NOT NULL")
		} else {
			conditions = append(conditions, "backend_id IS NULL")
		}
	}

	query := `
	SELECT local_id, entity_type, backend_id, patient_id,
	       sync_status, revision, fields, created_at, updated_at
	FROM documents
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	sqlSort := ""
	switch sel.SortField {
	case "createdAt":
		sqlSort = "created_at"
	case "updatedAt":
		sqlSort = "updated_at"
	}
	if sqlSort != "" {
		query += " ORDER BY " + sqlSort
		if sel.Descending {
			query += " DESC"
		}
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}

	if sel.SortField != "" && sqlSort == "" {
		field := sel.SortField
		sort.SliceStable(docs, func(i, j int) bool {
			ti, tj := docs[i].FieldTime(field), docs[j].FieldTime(field)
			if sel.Descending {
				return ti.After(tj)
			}
			return ti.Before(tj)
		})
	}
	return docs, nil
}

// Stats summarizes the local store for status displays.
type Stats struct {
	TotalPatients      int `json:"totalPatients"`
	TotalConsultations int `json:"totalConsultations"`
	TotalDocuments     int `json:"totalDocuments"`
	PendingSync        int `json:"pendingSync"`
}

// GetStats returns document counts used by the status command and dashboard.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.conn.QueryRowContext(ctx, `
	SELECT
		COUNT(*),
		COALESCE(SUM(entity_type = 'patient'), 0),
		COALESCE(SUM(entity_type = 'consultation'), 0),
		COALESCE(SUM(sync_status = 'pending'), 0)
	FROM documents
	`)
	if err := row.Scan(&st.TotalDocuments, &st.TotalPatients, &st.TotalConsultations, &st.PendingSync); err != nil {
		return Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc                  Document
		entityType, status   string
		backendID            sql.NullInt64
		patientID            sql.NullString
		fieldsJSON           string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&doc.LocalID,
		&entityType,
		&backendID,
		&patientID,
		&status,
		&doc.Revision,
		&fieldsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.EntityType = EntityType(entityType)
	doc.SyncStatus = SyncStatus(status)
	if backendID.Valid {
		doc.BackendID = backendID.Int64
	}
	if patientID.Valid {
		doc.PatientID = patientID.String
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &doc.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields for %s: %w", doc.LocalID, err)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		doc.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		doc.UpdatedAt = t
	}
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

func backendIDValue(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
