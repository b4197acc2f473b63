// Package storage defines the persistence interface for library documents and their revisions.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/ooxtext/internal/models"
)

// ErrNotFound is returned (wrapped) when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrAlreadyExists is returned (wrapped) when a document ID is already taken.
var ErrAlreadyExists = errors.New("document already exists")

// Storage defines document and revision persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Revision operations
	CreateRevision(ctx context.Context, rev *models.Revision) error
	// ReviseDocument stores rev and the updated doc atomically: both or neither.
	ReviseDocument(ctx context.Context, doc *models.Document, rev *models.Revision) error
	ListRevisions(ctx context.Context, docID string) ([]*models.Revision, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountRevisions(ctx context.Context) (int64, error)

	Close() error
}
