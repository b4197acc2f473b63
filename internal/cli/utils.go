// Package cli provides output helpers for the ooxtext command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/ooxtext/internal/models"
	"github.com/hyperjump/ooxtext/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per search result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value against allowed.
func ParseOutputFormat(s string, allowed ...OutputFormat) (OutputFormat, error) {
	for _, f := range allowed {
		if OutputFormat(s) == f {
			return f, nil
		}
	}
	names := make([]string, len(allowed))
	for i, f := range allowed {
		names[i] = string(f)
	}
	return "", fmt.Errorf("unknown output format %q; use %s", s, strings.Join(names, ", "))
}

// Extraction is the JSON shape of one extracted file.
type Extraction struct {
	Source string `json:"source,omitempty"`
	Kind   string `json:"kind"`
	Text   string `json:"text"`
}

// WriteExtraction writes extracted text to w. Text output ends with exactly
// one newline when text is non-empty.
func WriteExtraction(w io.Writer, ex *Extraction, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ex)
	}
	if ex.Text == "" {
		return nil
	}
	text := ex.Text
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(w, text)
	return err
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\t%s\n", r.Rank, r.Score, r.Document.Kind, r.Document.ID, r.Document.Title)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms\n", response.Total, response.QueryTime)
	if response.AutoFuzzy {
		fmt.Fprintln(w, "(no exact matches; showing fuzzy matches)")
	}
	fmt.Fprintln(w)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f | Kind: %s\n", result.Rank, result.Score, result.Document.Kind)
	fmt.Fprintf(w, "ID: %s\n", result.Document.ID)
	if result.Document.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", result.Document.Title)
	}
	if result.Document.SourcePath != "" {
		fmt.Fprintf(w, "Source: %s\n", result.Document.SourcePath)
	}
	if len(result.Highlights) > 0 {
		for _, h := range result.Highlights {
			fmt.Fprintf(w, "\n  … %s\n", TruncateWords(strings.Join(strings.Fields(h), " "), 30))
		}
	} else {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.Document.Content, 200))
	}
	fmt.Fprintln(w)
}

// StatusConfig is the configuration part of a status report.
type StatusConfig struct {
	DatabasePath   string `json:"database_path,omitempty"`
	BleveIndexPath string `json:"bleve_index_path,omitempty"`
	MaxUploadBytes int64  `json:"max_upload_bytes,omitempty"`
	WriteSidecar   bool   `json:"write_sidecar,omitempty"`
}

// Status is the shape of GET /api/v1/status and of the status command.
type Status struct {
	Documents        int64         `json:"documents"`
	Revisions        int64         `json:"revisions"`
	Indexed          uint64        `json:"indexed"`
	DiskUsageBytes   *int64        `json:"disk_usage_bytes,omitempty"`
	WatchDirectories []string      `json:"watch_directories,omitempty"`
	Config           *StatusConfig `json:"config,omitempty"`
}

// WriteStatus writes a status report to w.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintf(w, "documents:          %d   # documents in the library\n", status.Documents)
	fmt.Fprintf(w, "revisions:          %d   # previous texts kept after edits\n", status.Revisions)
	fmt.Fprintf(w, "indexed:            %d   # documents in the keyword index\n", status.Indexed)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # storage + index on disk\n", *status.DiskUsageBytes)
	}
	for _, d := range status.WatchDirectories {
		fmt.Fprintf(w, "watching:           %s\n", d)
	}
	if c := status.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
		if c.BleveIndexPath != "" {
			fmt.Fprintf(w, "bleve_index_path:   %s\n", c.BleveIndexPath)
		}
		if c.MaxUploadBytes > 0 {
			fmt.Fprintf(w, "max_upload_bytes:   %d\n", c.MaxUploadBytes)
		}
		fmt.Fprintf(w, "write_sidecar:      %t\n", c.WriteSidecar)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
