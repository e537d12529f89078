package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/redaction-review/internal/logger"
	"github.com/raaihank/redaction-review/internal/redaction"
	"go.uber.org/zap"
)

// Reviewer identity headers; without them the configured reviewer acts
const (
	HeaderReviewerName       = "X-Reviewer-Name"
	HeaderReviewerBadge      = "X-Reviewer-Badge"
	HeaderReviewerDepartment = "X-Reviewer-Department"
)

// errManualRecord refuses reviewer status changes on manual redactions
var errManualRecord = errors.New("manual redactions cannot be changed by review actions")

type errorResponse struct {
	Error string `json:"error"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type batchRequest struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

type manualRequest struct {
	Text     string `json:"text"`
	Location string `json:"location"`
}

type clickRequest struct {
	RedactionID int64 `json:"redaction_id"`
}

type redactionResponse struct {
	Redaction redaction.Redaction `json:"redaction"`
	Document  redaction.Document  `json:"document"`
}

type batchResponse struct {
	Document redaction.Document `json:"document"`
	Skipped  []int64            `json:"skipped,omitempty"`
}

type redactionListResponse struct {
	DocumentID int64                 `json:"documentId"`
	Redactions []redaction.Redaction `json:"redactions"`
	Summary    redaction.Summary     `json:"summary"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":              "redaction-review",
		"version":           Version,
		"uptime":            time.Since(s.started).Round(time.Second).String(),
		"documents":         s.manager.Store().Len(),
		"websocket_enabled": s.wsHub != nil,
		"cache_enabled":     s.segments != nil,
		"audit_enabled":     s.audit != nil,
		"tracked_clients":   s.limiter.Clients(),
	}
	if s.wsHub != nil {
		info["websocket"] = s.wsHub.GetStats()
	}
	if src, ok := s.segments.(SegmentStats); ok {
		if stats, err := src.GetStats(r.Context()); err != nil {
			s.logger.Warn("Failed to read segment cache stats", zap.Error(err))
		} else {
			info["cache"] = stats
		}
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCase(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Store().Case())
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.actorFromRequest(r))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Store().List())
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleListRedactions serves the review table with optional filters
func (s *Server) handleListRedactions(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}

	q, err := parseQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rs, err := redaction.Filter(doc.Redactions, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, redactionListResponse{
		DocumentID: doc.ID,
		Redactions: rs,
		Summary:    redaction.Summarize(doc),
	})
}

// handleSegments serves the annotated render of every paragraph
func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}

	if s.segments == nil {
		writeJSON(w, http.StatusOK, redaction.RenderDocument(doc))
		return
	}

	out := make([]redaction.ParagraphSegments, len(doc.Paragraphs))
	for i, p := range doc.Paragraphs {
		out[i] = redaction.ParagraphSegments{
			Index:    i,
			Segments: s.segments.Segments(r.Context(), p, doc.Redactions),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleExport serves the document with decided redactions masked
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}

	res := s.masker.ApplyDocument(doc)
	if r.URL.Query().Get("format") == "json" || strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, res)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", strings.TrimSuffix(doc.FileName, ".pdf")+".redacted.txt"))
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, strings.Join(res.Paragraphs, "\n\n"))
}

// handleSetStatus approves, rejects or undoes one detector redaction
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	rid, err := pathID(r, "rid")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := redaction.ParseStatus(req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	current, found := doc.FindRedaction(rid)
	if !found {
		s.writeError(w, r, fmt.Errorf("redaction %d in document %d: %w", rid, doc.ID, redaction.ErrNotFound))
		return
	}
	if current.IsManual {
		s.writeError(w, r, fmt.Errorf("redaction %d: %w", rid, errManualRecord))
		return
	}

	actor := s.actorPtr(r)
	updated, err := s.manager.SetStatus(doc.ID, rid, status, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.reviewLogger(r, actor).Info("Redaction reviewed",
		zap.Int64("document_id", doc.ID),
		zap.Int64("redaction_id", rid),
		zap.Stringer("status", status))
	red, _ := updated.FindRedaction(rid)
	writeJSON(w, http.StatusOK, redactionResponse{Redaction: red, Document: updated})
}

// handleBatchStatus applies one status to the selected detector redactions.
// Manual ids are dropped and reported back as skipped.
func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}

	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := redaction.ParseStatus(req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ids := make([]int64, 0, len(req.IDs))
	var skipped []int64
	for _, id := range req.IDs {
		if red, found := doc.FindRedaction(id); found && red.IsManual {
			skipped = append(skipped, id)
			continue
		}
		ids = append(ids, id)
	}

	actor := s.actorPtr(r)
	updated, err := s.manager.BatchSetStatus(doc.ID, ids, status, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.reviewLogger(r, actor).Info("Redactions reviewed in batch",
		zap.Int64("document_id", doc.ID),
		zap.Int("requested", len(req.IDs)),
		zap.Int("skipped_manual", len(skipped)),
		zap.Stringer("status", status))
	writeJSON(w, http.StatusOK, batchResponse{Document: updated, Skipped: skipped})
}

// handleResolvePending approves or rejects everything still pending
func (s *Server) handleResolvePending(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := redaction.ParseStatus(req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	actor := s.actorPtr(r)
	updated, err := s.manager.SetAllPending(id, status, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.reviewLogger(r, actor).Info("Pending redactions reviewed",
		zap.Int64("document_id", id),
		zap.Stringer("status", status))
	writeJSON(w, http.StatusOK, updated)
}

// handleAddManual adds a reviewer-created redaction
func (s *Server) handleAddManual(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req manualRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	actor := s.actorPtr(r)
	doc, red, err := s.manager.InsertManual(id, req.Text, req.Location, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.reviewLogger(r, actor).Info("Manual redaction added",
		zap.Int64("document_id", id),
		zap.Int64("redaction_id", red.ID))
	writeJSON(w, http.StatusCreated, redactionResponse{Redaction: red, Document: doc})
}

// handleClick resolves a click on rendered text to a pending redaction
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req clickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	red, ok := redaction.ResolveClick(s.manager.Store(), req.RedactionID, id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]redaction.Redaction{"redaction": red})
}

// handleAudit serves the recorded decisions for a document
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "audit trail is disabled"})
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			s.writeError(w, r, fmt.Errorf("limit %q: %w", v, redaction.ErrInvalidQuery))
			return
		}
	}

	entries, err := s.audit.ListByDocument(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// document loads the document named by the {id} path variable, writing the
// error response itself when it cannot
func (s *Server) document(w http.ResponseWriter, r *http.Request) (redaction.Document, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return redaction.Document{}, false
	}
	doc, ok := s.manager.Store().Get(id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("document %d: %w", id, redaction.ErrNotFound))
		return redaction.Document{}, false
	}
	return doc, true
}

// actorFromRequest identifies the reviewer from headers, falling back to the
// configured reviewer
func (s *Server) actorFromRequest(r *http.Request) redaction.Actor {
	name := strings.TrimSpace(r.Header.Get(HeaderReviewerName))
	badge := strings.TrimSpace(r.Header.Get(HeaderReviewerBadge))
	if name == "" && badge == "" {
		return s.defaultReviewer()
	}
	return redaction.Actor{
		Name:       name,
		Badge:      badge,
		Department: strings.TrimSpace(r.Header.Get(HeaderReviewerDepartment)),
	}
}

// reviewLogger tags lifecycle logs with the request and the acting reviewer
func (s *Server) reviewLogger(r *http.Request, actor *redaction.Actor) *logger.Logger {
	l := s.logger.WithRequestID(getRequestID(r.Context()))
	if actor != nil {
		l = l.WithReviewer(actor.Badge)
	}
	return l
}

func (s *Server) actorPtr(r *http.Request) *redaction.Actor {
	a := s.actorFromRequest(r)
	if a.Name == "" && a.Badge == "" {
		return nil
	}
	return &a
}

// writeError maps domain errors onto HTTP status codes
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, redaction.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errManualRecord):
		status = http.StatusConflict
	case errors.Is(err, redaction.ErrInvalidStatus),
		errors.Is(err, redaction.ErrEmptyText),
		errors.Is(err, redaction.ErrInvalidQuery),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}

	s.logger.WithRequestID(getRequestID(r.Context())).Debug("Request rejected",
		zap.Int("status_code", status),
		zap.Error(err),
	)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

// decodeJSON decodes a request body, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body: %w", errBadRequest)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, errBadRequest)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, errBadRequest)
	}
	return id, nil
}

// parseQuery reads the review table filters from the URL
func parseQuery(r *http.Request) (redaction.Query, error) {
	v := r.URL.Query()
	q := redaction.Query{
		Category: strings.TrimSpace(v.Get("category")),
		SortBy:   v.Get("sort"),
	}
	if raw := v.Get("min_confidence"); raw != "" {
		c, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, fmt.Errorf("min_confidence %q: %w", raw, redaction.ErrInvalidQuery)
		}
		q.MinConfidence = &c
	}
	if raw := v.Get("status"); raw != "" {
		st, err := redaction.ParseStatus(raw)
		if err != nil {
			return q, err
		}
		q.Status = &st
	}
	return q, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
