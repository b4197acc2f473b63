package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/hyperjump/ooxtext/internal/config"
	"github.com/hyperjump/ooxtext/internal/docx"
	"github.com/hyperjump/ooxtext/internal/extract"
	"github.com/hyperjump/ooxtext/pkg/utils"
	"go.uber.org/zap"
)

type extractResponse struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// declaredKind resolves the package type of a request: the "type" query
// parameter (a short name such as "xlsx" or a content type) wins over the
// Content-Type header.
func declaredKind(r *http.Request) extract.Kind {
	if t := r.URL.Query().Get("type"); t != "" {
		if k := extract.ParseKind(strings.TrimPrefix(strings.ToLower(t), ".")); k != extract.KindUnsupported {
			return k
		}
		return extract.Classify(t)
	}
	return extract.Classify(mediaType(r))
}

func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

// handleExtract streams the request body through the extractor. An
// unsupported type is answered with the fixed message and the body is not read.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	kind := declaredKind(r)
	s.logger.Debug("extract request", zap.Stringer("kind", kind), zap.Int64("content_length", r.ContentLength))
	body := http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	text, err := s.extractor.ExtractKind(body, kind)
	if err != nil {
		s.respondFailure(w, "extract", err)
		return
	}
	s.respondJSON(w, http.StatusOK, extractResponse{Kind: kind.String(), Text: text})
}

type composeRequest struct {
	Text string `json:"text"`
}

// handleCompose turns plain text (or JSON {"text": ...}) into a docx download.
func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	var text string
	if mediaType(r) == "application/json" {
		var req composeRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		text = req.Text
	} else {
		data, err := io.ReadAll(body)
		if err != nil {
			s.respondFailure(w, "compose", err)
			return
		}
		text = string(data)
	}
	var buf bytes.Buffer
	if err := docx.Write(&buf, utils.NormalizeNewlines(text)); err != nil {
		s.respondFailure(w, "compose", err)
		return
	}
	s.respondDocx(w, "document.docx", buf.Bytes())
}

func (s *Server) respondDocx(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", extract.ContentTypeWordDocument)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) maxUploadBytes() int64 {
	if s.config != nil && s.config.Server.MaxUploadBytes > 0 {
		return s.config.Server.MaxUploadBytes
	}
	return config.DefaultMaxUploadBytes
}
