// Package indexer is the text library: it extracts packages into documents,
// keeps them in storage and the keyword index, and exports them back as docx.
package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/ooxtext/internal/docx"
	"github.com/hyperjump/ooxtext/internal/extract"
	"github.com/hyperjump/ooxtext/internal/fileid"
	"github.com/hyperjump/ooxtext/internal/keyword"
	"github.com/hyperjump/ooxtext/internal/models"
	"github.com/hyperjump/ooxtext/internal/storage"
	"github.com/hyperjump/ooxtext/pkg/utils"
	"go.uber.org/zap"
)

// ErrUnsupported is returned (wrapped) when a file or upload is not a
// word-processing, spreadsheet or presentation package.
var ErrUnsupported = errors.New("unsupported document kind")

const (
	// titleBoost weights file-name matches above body matches.
	titleBoost = 2.0
	// maxHighlightLen bounds each highlight fragment returned with a hit.
	maxHighlightLen = 240
	maxTitleLen     = 80
)

// Indexer keeps extracted documents in storage and the keyword index.
type Indexer struct {
	storage      storage.Storage
	keywordIndex keyword.KeywordIndex
	extractor    *extract.Extractor
	logger       *zap.Logger // optional; when set, logs debug events

	sidecarExt   string
	defaultLimit int
	maxLimit     int

	// mu serializes writes so concurrent imports of one path cannot race
	// between lookup and insert.
	mu sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file imported, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithSidecar makes ImportFile write the extracted text next to the source
// file, at the source path plus ext (e.g. "report.docx.txt").
func WithSidecar(ext string) IndexerOption {
	return func(idx *Indexer) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		idx.sidecarExt = ext
	}
}

// WithSearchLimits overrides the default and maximum number of search results.
func WithSearchLimits(defaultLimit, maxLimit int) IndexerOption {
	return func(idx *Indexer) {
		idx.defaultLimit = defaultLimit
		idx.maxLimit = maxLimit
	}
}

// NewIndexer creates an indexer with the given dependencies.
// extractor may be nil; a default extractor is used then.
func NewIndexer(
	store storage.Storage,
	keywordIndex keyword.KeywordIndex,
	extractor *extract.Extractor,
	opts ...IndexerOption,
) *Indexer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	idx := &Indexer{
		storage:      store,
		keywordIndex: keywordIndex,
		extractor:    extractor,
		defaultLimit: models.DefaultSearchLimit,
		maxLimit:     models.MaxSearchLimit,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// ImportFile extracts the package at path and stores it under an ID derived
// from the absolute path, so re-importing updates the same document. A file
// whose content hash matches the stored document is not extracted again.
func (idx *Indexer) ImportFile(ctx context.Context, path string) (*models.Document, error) {
	if idx.logger != nil {
		idx.logger.Debug("indexer importing file", zap.String("path", path))
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	kind := extract.KindForExtension(filepath.Ext(absPath))
	if kind == extract.KindUnsupported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(absPath))
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	hash := fileid.ContentHash(data)
	docID := fileid.FileDocID(absPath)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing, err := idx.storage.GetDocument(ctx, docID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("lookup document: %w", err)
	}
	if existing != nil && existing.SourceHash == hash {
		// Repopulates the keyword index if it was opened empty.
		if err := idx.indexKeywords(ctx, existing); err != nil {
			return nil, err
		}
		if idx.logger != nil {
			idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		}
		return existing, nil
	}

	text, err := idx.extractor.ExtractKind(bytes.NewReader(data), kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(absPath), err)
	}
	doc := &models.Document{
		ID:          docID,
		Title:       filepath.Base(absPath),
		Kind:        kind.String(),
		ContentType: kind.ContentType(),
		Content:     text,
		SourcePath:  absPath,
		SourceHash:  hash,
	}
	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
		err = idx.storage.UpdateDocument(ctx, doc)
	} else {
		err = idx.storage.CreateDocument(ctx, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if err := idx.indexKeywords(ctx, doc); err != nil {
		return nil, err
	}
	if idx.sidecarExt != "" {
		if err := os.WriteFile(absPath+idx.sidecarExt, []byte(text), 0o644); err != nil {
			return nil, fmt.Errorf("write sidecar: %w", err)
		}
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer file imported", zap.String("path", absPath), zap.String("doc_id", docID))
	}
	return doc, nil
}

// ImportBytes stores an uploaded package under a new ID. The kind comes from
// contentType, falling back to the extension of name.
func (idx *Indexer) ImportBytes(ctx context.Context, name, contentType string, data []byte) (*models.Document, error) {
	kind := extract.Classify(contentType)
	if kind == extract.KindUnsupported {
		kind = extract.KindForExtension(filepath.Ext(name))
	}
	if kind == extract.KindUnsupported {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, contentType)
	}
	text, err := idx.extractor.ExtractKind(bytes.NewReader(data), kind)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "untitled" + kind.Extension()
	}
	doc := &models.Document{
		ID:          uuid.New().String(),
		Title:       filepath.Base(name),
		Kind:        kind.String(),
		ContentType: kind.ContentType(),
		Content:     text,
		SourceHash:  fileid.ContentHash(data),
	}
	if err := idx.store(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateFromText stores text typed in directly. Such documents have no source
// package and are treated as word-processing documents, the only kind they
// can be exported as.
func (idx *Indexer) CreateFromText(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	content := utils.NormalizeNewlines(input.Content)
	title := input.Title
	if title == "" {
		title = utils.Truncate(strings.TrimSpace(utils.FirstLine(content)), maxTitleLen)
	}
	if title == "" {
		title = "untitled"
	}
	doc := &models.Document{
		ID:          input.ID,
		Title:       title,
		Kind:        extract.KindWordDocument.String(),
		ContentType: extract.ContentTypeWordDocument,
		Content:     content,
		Metadata:    input.Metadata,
	}
	if err := idx.store(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (idx *Indexer) store(ctx context.Context, doc *models.Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	if err := idx.indexKeywords(ctx, doc); err != nil {
		return err
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer document stored", zap.String("doc_id", doc.ID), zap.String("kind", doc.Kind))
	}
	return nil
}

// UpdateText replaces the text of a document. The previous text is kept as a
// revision. Setting the same text again is a no-op.
func (idx *Indexer) UpdateText(ctx context.Context, id, text string) (*models.Document, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	doc, err := idx.storage.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	text = utils.NormalizeNewlines(text)
	if doc.Content == text {
		return doc, nil
	}
	rev := &models.Revision{ID: uuid.New().String(), DocumentID: id, Content: doc.Content}
	doc.Content = text
	if err := idx.storage.ReviseDocument(ctx, doc, rev); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	if err := idx.indexKeywords(ctx, doc); err != nil {
		return nil, err
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer text updated", zap.String("doc_id", id), zap.Int("revision", rev.Number))
	}
	return doc, nil
}

// Revisions returns the previous texts of a document, oldest first.
func (idx *Indexer) Revisions(ctx context.Context, id string) ([]*models.Revision, error) {
	if _, err := idx.storage.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	return idx.storage.ListRevisions(ctx, id)
}

// Get returns a stored document.
func (idx *Indexer) Get(ctx context.Context, id string) (*models.Document, error) {
	return idx.storage.GetDocument(ctx, id)
}

// List returns stored documents, newest first.
func (idx *Indexer) List(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	return idx.storage.ListDocuments(ctx, offset, limit)
}

// ExportDocx writes the text of a document to w as a word-processing package.
func (idx *Indexer) ExportDocx(ctx context.Context, id string, w io.Writer) (*models.Document, error) {
	doc, err := idx.storage.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := docx.Write(w, doc.Content); err != nil {
		return nil, err
	}
	return doc, nil
}

// ExportFileName returns the file name an exported document is offered under.
func ExportFileName(doc *models.Document) string {
	base := strings.TrimSuffix(doc.Title, filepath.Ext(doc.Title))
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', '\n', '\r':
			return '_'
		}
		return r
	}, base)
	if base == "" {
		base = "document"
	}
	return base + extract.KindWordDocument.Extension()
}

// Delete removes a document from the keyword index and storage.
func (idx *Indexer) Delete(ctx context.Context, id string) error {
	if idx.logger != nil {
		idx.logger.Debug("indexer deleting document", zap.String("id", id))
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.keywordIndex.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from keyword index: %w", err)
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer document deleted", zap.String("id", id))
	}
	return nil
}

// DeleteFile removes the document imported from path, and its sidecar when
// sidecars are enabled. A path that was never imported is not an error.
func (idx *Indexer) DeleteFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	if err := idx.Delete(ctx, fileid.FileDocID(absPath)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if idx.sidecarExt != "" {
		if err := os.Remove(absPath + idx.sidecarExt); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove sidecar: %w", err)
		}
	}
	return nil
}

// ImportDirectory walks dir recursively and imports each regular file whose
// extension is in allowedExts (if non-empty) and names a supported kind.
// A file that fails does not stop the walk; failures are joined into the
// returned error. n counts files imported.
func (idx *Indexer) ImportDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	var failures []error
	walkErr := filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		if extract.KindForExtension(ext) == extract.KindUnsupported {
			return nil
		}
		// Resolve symlinks so we only import regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, importErr := idx.ImportFile(ctx, path); importErr != nil {
			if idx.logger != nil {
				idx.logger.Warn("indexer import failed", zap.String("path", path), zap.Error(importErr))
			}
			failures = append(failures, importErr)
			return nil
		}
		n++
		return nil
	})
	if walkErr != nil {
		failures = append(failures, walkErr)
	}
	return n, errors.Join(failures...)
}

// Search runs a keyword query and hydrates each hit from storage. Hits whose
// document is no longer stored are dropped.
func (idx *Indexer) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if q.Limit <= 0 {
		q.Limit = idx.defaultLimit
	}
	if idx.maxLimit > 0 && q.Limit > idx.maxLimit {
		q.Limit = idx.maxLimit
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	hits, err := idx.keywordIndex.Search(ctx, q.Query, q.Limit, &keyword.SearchOptions{
		Kind:         q.Kind,
		TitleBoost:   titleBoost,
		FuzzyEnabled: q.FuzzyEnabled,
		Highlight:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		doc, err := idx.storage.GetDocument(ctx, hit.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", hit.ID, err)
		}
		highlights := make([]string, 0, len(hit.Fragments))
		for _, f := range hit.Fragments {
			highlights = append(highlights, utils.Truncate(f, maxHighlightLen))
		}
		results = append(results, &models.SearchResult{
			Document:   doc,
			Score:      hit.Score,
			Highlights: highlights,
			Rank:       len(results) + 1,
		})
	}
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     q.Query,
	}, nil
}

// Stats summarizes the library.
type Stats struct {
	Documents int64  `json:"documents"`
	Revisions int64  `json:"revisions"`
	Indexed   uint64 `json:"indexed"`
}

// Stats counts stored documents, revisions and keyword-indexed documents.
func (idx *Indexer) Stats(ctx context.Context) (*Stats, error) {
	docs, err := idx.storage.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	revs, err := idx.storage.CountRevisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("count revisions: %w", err)
	}
	indexed, err := idx.keywordIndex.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count indexed: %w", err)
	}
	return &Stats{Documents: docs, Revisions: revs, Indexed: indexed}, nil
}

func (idx *Indexer) indexKeywords(ctx context.Context, doc *models.Document) error {
	docForKeyword := *doc
	docForKeyword.Title = normalizeTitleForKeywordSearch(doc.Title)
	if err := idx.keywordIndex.Index(ctx, &docForKeyword); err != nil {
		return fmt.Errorf("failed to index keywords: %w", err)
	}
	return nil
}

// normalizeTitleForKeywordSearch returns the title with underscores replaced by spaces
// so that Bleve's standard analyzer can match multi-word queries (e.g. "quarterly report")
// against filenames like "quarterly_report_2023.docx".
func normalizeTitleForKeywordSearch(title string) string {
	return strings.ReplaceAll(title, "_", " ")
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
