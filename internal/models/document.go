// Package models defines core data structures for library documents, queries, and search results.
package models

import "time"

// Document is one entry of the text library: the plain text extracted from a
// package (or composed directly) plus where it came from.
type Document struct {
	ID          string                 `json:"id" db:"id"`
	Title       string                 `json:"title" db:"title"`
	Kind        string                 `json:"kind" db:"kind"`
	ContentType string                 `json:"content_type,omitempty" db:"content_type"`
	Content     string                 `json:"content" db:"content"`
	SourcePath  string                 `json:"source_path,omitempty" db:"source_path"`
	SourceHash  string                 `json:"source_hash,omitempty" db:"source_hash"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" db:"updated_at"`
}

// Revision is a previous text of a document, kept when the text is edited.
type Revision struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Number     int       `json:"number" db:"number"`
	Content    string    `json:"content" db:"content"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for creating a document from text or replacing its text.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
