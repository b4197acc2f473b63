// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ooxtext/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		kind TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		source_hash TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	CREATE INDEX IF NOT EXISTS idx_documents_source_path ON documents(source_path);

	CREATE TABLE IF NOT EXISTS document_revisions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_revisions_document ON document_revisions(document_id, number);
	`
	_, err := db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

const documentColumns = `id, title, kind, content_type, content, source_path, source_hash, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var metadataJSON sql.NullString
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Kind, &doc.ContentType, &doc.Content,
		&doc.SourcePath, &doc.SourceHash, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// CreateDocument inserts a document. A taken ID yields an error wrapping ErrAlreadyExists.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Kind, doc.ContentType, doc.Content,
		doc.SourcePath, doc.SourceHash, string(metadataJSON), doc.CreatedAt, doc.UpdatedAt,
	)
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, doc.ID)
	}
	return err
}

// GetDocument returns a document by ID. A missing document yields an error wrapping ErrNotFound.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocument updates an existing document. CreatedAt is left untouched.
func (s *SQLiteStorage) UpdateDocument(ctx context.Context, doc *models.Document) error {
	return updateDocument(ctx, s.db, doc)
}

func updateDocument(ctx context.Context, db execer, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	updatedAt := time.Now()
	result, err := db.ExecContext(ctx,
		`UPDATE documents SET title = ?, kind = ?, content_type = ?, content = ?,
		 source_path = ?, source_hash = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		doc.Title, doc.Kind, doc.ContentType, doc.Content,
		doc.SourcePath, doc.SourceHash, string(metadataJSON), updatedAt, doc.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, doc.ID)
	}
	doc.UpdatedAt = updatedAt
	return nil
}

// DeleteDocument removes a document and its revisions. A missing document yields ErrNotFound.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_revisions WHERE document_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// ListDocuments returns documents, newest first, with offset and limit.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CreateRevision stores a previous text of a document. Number is assigned as
// one past the highest existing revision of that document.
func (s *SQLiteStorage) CreateRevision(ctx context.Context, rev *models.Revision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertRevision(ctx, tx, rev); err != nil {
		return err
	}
	return tx.Commit()
}

// ReviseDocument records rev and writes doc in one transaction. A missing
// document yields ErrNotFound and leaves no revision behind.
func (s *SQLiteStorage) ReviseDocument(ctx context.Context, doc *models.Document, rev *models.Revision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateDocument(ctx, tx, doc); err != nil {
		return err
	}
	if err := insertRevision(ctx, tx, rev); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRevision(ctx context.Context, db execer, rev *models.Revision) error {
	var last sql.NullInt64
	if err := db.QueryRowContext(ctx,
		`SELECT MAX(number) FROM document_revisions WHERE document_id = ?`, rev.DocumentID,
	).Scan(&last); err != nil {
		return err
	}
	rev.Number = int(last.Int64) + 1
	rev.CreatedAt = time.Now()
	_, err := db.ExecContext(ctx,
		`INSERT INTO document_revisions (id, document_id, number, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rev.ID, rev.DocumentID, rev.Number, rev.Content, rev.CreatedAt,
	)
	return err
}

// ListRevisions returns the revisions of a document ordered by number.
func (s *SQLiteStorage) ListRevisions(ctx context.Context, docID string) ([]*models.Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, number, content, created_at
		 FROM document_revisions WHERE document_id = ? ORDER BY number`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revs []*models.Revision
	for rows.Next() {
		var rev models.Revision
		if err := rows.Scan(&rev.ID, &rev.DocumentID, &rev.Number, &rev.Content, &rev.CreatedAt); err != nil {
			return nil, err
		}
		revs = append(revs, &rev)
	}
	return revs, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountRevisions returns the total number of stored revisions.
func (s *SQLiteStorage) CountRevisions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_revisions`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
