package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/raaihank/redaction-review/internal/audit"
	"github.com/raaihank/redaction-review/internal/cache"
	"github.com/raaihank/redaction-review/internal/config"
	"github.com/raaihank/redaction-review/internal/logger"
	"github.com/raaihank/redaction-review/internal/redaction"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testReviewerBadge = "4521"

func testDocument() redaction.Document {
	return redaction.Document{
		ID:                 1,
		FileName:           "DVReport_2024_001.pdf",
		ReviewStatus:       "In progress",
		RedactionsDetected: 4,
		Paragraphs: []string{
			"Dispatched to 123 Sydney Street. Victim Emily Rodriguez.",
			"Suspect Michael Rodriguez. Witness Jennifer Thompson.",
		},
		Redactions: []redaction.Redaction{
			{ID: 1, Text: "123 Sydney Street", Category: "Address", Location: "Page 1, Line 12", Confidence: redaction.Float64(96), Status: redaction.Approved},
			{ID: 2, Text: "Emily Rodriguez", Category: "Name", Location: "Page 1, Line 5", Confidence: redaction.Float64(98), Status: redaction.Pending},
			{ID: 4, Text: "Michael Rodriguez", Category: "Name", Location: "Page 2, Line 15", Confidence: redaction.Float64(97), Status: redaction.Pending},
			{ID: 6, Text: "Witness", Category: redaction.CategoryManual, Location: "Police Report", Status: redaction.Approved, IsManual: true},
		},
	}
}

type fakeAudit struct {
	entries []audit.Entry
	err     error
}

func (f *fakeAudit) ListByDocument(ctx context.Context, documentID int64, limit int) ([]audit.Entry, error) {
	return f.entries, f.err
}

func newTestServer(t *testing.T, mutate func(*config.Config), opts ...Option) (*Server, *redaction.Manager) {
	t.Helper()
	return newLoggedTestServer(t, logger.NewNop(), mutate, opts...)
}

func newLoggedTestServer(t *testing.T, log *logger.Logger, mutate func(*config.Config), opts ...Option) (*Server, *redaction.Manager) {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	cfg.Reviewer.Name = "Det. Sarah Johnson"
	cfg.Reviewer.Badge = testReviewerBadge
	if mutate != nil {
		mutate(cfg)
	}

	store := redaction.NewStore()
	if err := store.Add(testDocument()); err != nil {
		t.Fatalf("Failed to add document: %v", err)
	}
	store.SetCase(redaction.CaseInfo{CaseNumber: "GHP-21329", Status: "Scan Complete"})
	manager := redaction.NewManager(store, zap.NewNop())

	srv, err := New(cfg, log, manager, opts...)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return srv, manager
}

func do(t *testing.T, srv *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestReadEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	t.Run("Health", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/health", "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
			t.Errorf("Unexpected health response %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("Case", func(t *testing.T) {
		info := decode[redaction.CaseInfo](t, do(t, srv, http.MethodGet, "/api/case", ""))
		if info.CaseNumber != "GHP-21329" || info.TotalDocuments != 1 || info.TotalRedactions != 4 {
			t.Errorf("Unexpected case %+v", info)
		}
	})

	t.Run("MeDefault", func(t *testing.T) {
		me := decode[redaction.Actor](t, do(t, srv, http.MethodGet, "/api/me", ""))
		if me.Badge != testReviewerBadge {
			t.Errorf("Expected configured reviewer, got %+v", me)
		}
	})

	t.Run("MeHeaders", func(t *testing.T) {
		me := decode[redaction.Actor](t, do(t, srv, http.MethodGet, "/api/me", "",
			HeaderReviewerName, "Det. Mark Chen", HeaderReviewerBadge, "7788"))
		if me.Name != "Det. Mark Chen" || me.Badge != "7788" {
			t.Errorf("Expected header reviewer, got %+v", me)
		}
	})

	t.Run("Documents", func(t *testing.T) {
		docs := decode[[]redaction.Document](t, do(t, srv, http.MethodGet, "/api/documents", ""))
		if len(docs) != 1 || docs[0].RedactionsApplied != 2 {
			t.Errorf("Unexpected documents %+v", docs)
		}
	})

	t.Run("DocumentNotFound", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/documents/99", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
		if rec.Header().Get(RequestIDHeader) == "" {
			t.Error("Expected a request id header")
		}
	})

	t.Run("RedactionsFiltered", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/documents/1/redactions?category=name&status=pending&sort=confidence-desc", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		res := decode[redactionListResponse](t, rec)
		if len(res.Redactions) != 2 || res.Redactions[0].ID != 2 || res.Redactions[1].ID != 4 {
			t.Errorf("Unexpected redactions %+v", res.Redactions)
		}
		if res.Summary.Total != 4 || res.Summary.Manual != 1 || res.Summary.Pending != 2 {
			t.Errorf("Unexpected summary %+v", res.Summary)
		}
	})

	t.Run("RedactionsBadQuery", func(t *testing.T) {
		for _, q := range []string{"sort=random", "min_confidence=abc", "min_confidence=150", "status=done"} {
			rec := do(t, srv, http.MethodGet, "/api/documents/1/redactions?"+q, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", q, rec.Code)
			}
		}
	})

	t.Run("Segments", func(t *testing.T) {
		paras := decode[[]redaction.ParagraphSegments](t, do(t, srv, http.MethodGet, "/api/documents/1/segments", ""))
		if len(paras) != 2 {
			t.Fatalf("Expected 2 paragraphs, got %d", len(paras))
		}
		var annotated int
		for _, seg := range paras[0].Segments {
			if seg.Annotation != nil {
				annotated++
			}
		}
		if annotated != 2 {
			t.Errorf("Expected 2 annotated segments in paragraph 0, got %d", annotated)
		}
	})

	t.Run("Export", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/documents/1/export", "")
		want := "Dispatched to [REDACTED]. Victim Emily Rodriguez.\n\nSuspect Michael Rodriguez. [REDACTED] Jennifer Thompson."
		if rec.Body.String() != want {
			t.Errorf("Unexpected export:\n got: %q\nwant: %q", rec.Body.String(), want)
		}
		if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
			t.Errorf("Unexpected content type %q", rec.Header().Get("Content-Type"))
		}
	})
}

func TestLifecycleEndpoints(t *testing.T) {
	t.Run("SetStatus", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		rec := do(t, srv, http.MethodPut, "/api/documents/1/redactions/2/status", `{"status":"approved"}`,
			HeaderReviewerName, "Det. Mark Chen", HeaderReviewerBadge, "7788")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		res := decode[redactionResponse](t, rec)
		if res.Redaction.Status != redaction.Approved || res.Redaction.ModifiedByBadge != "7788" {
			t.Errorf("Unexpected redaction %+v", res.Redaction)
		}
		if res.Document.RedactionsApplied != 3 {
			t.Errorf("Expected 3 applied, got %d", res.Document.RedactionsApplied)
		}
	})

	t.Run("SetStatusErrors", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		tests := []struct {
			name string
			path string
			body string
			want int
		}{
			{"InvalidStatus", "/api/documents/1/redactions/2/status", `{"status":"maybe"}`, http.StatusBadRequest},
			{"UnknownField", "/api/documents/1/redactions/2/status", `{"state":"approved"}`, http.StatusBadRequest},
			{"BadJSON", "/api/documents/1/redactions/2/status", `{`, http.StatusBadRequest},
			{"UnknownRedaction", "/api/documents/1/redactions/99/status", `{"status":"approved"}`, http.StatusNotFound},
			{"UnknownDocument", "/api/documents/9/redactions/2/status", `{"status":"approved"}`, http.StatusNotFound},
			{"ManualRecord", "/api/documents/1/redactions/6/status", `{"status":"rejected"}`, http.StatusConflict},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := do(t, srv, http.MethodPut, tt.path, tt.body)
				if rec.Code != tt.want {
					t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
				}
			})
		}
	})

	t.Run("Batch", func(t *testing.T) {
		srv, manager := newTestServer(t, nil)
		rec := do(t, srv, http.MethodPost, "/api/documents/1/redactions/batch", `{"ids":[2,4,6,99],"status":"rejected"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		res := decode[batchResponse](t, rec)
		if len(res.Skipped) != 1 || res.Skipped[0] != 6 {
			t.Errorf("Expected manual id 6 skipped, got %v", res.Skipped)
		}
		doc, _ := manager.Store().Get(1)
		manual, _ := doc.FindRedaction(6)
		if manual.Status != redaction.Approved {
			t.Error("Manual record changed by batch")
		}
		if doc.RedactionsApplied != 2 {
			t.Errorf("Expected 2 applied, got %d", doc.RedactionsApplied)
		}
	})

	t.Run("ResolvePending", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		rec := do(t, srv, http.MethodPost, "/api/documents/1/redactions/pending", `{"status":"approved"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		doc := decode[redaction.Document](t, rec)
		if doc.RedactionsApplied != 4 {
			t.Errorf("Expected 4 applied, got %d", doc.RedactionsApplied)
		}
	})

	t.Run("AddManual", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		rec := do(t, srv, http.MethodPost, "/api/documents/1/redactions/manual", `{"text":"Jennifer Thompson"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		res := decode[redactionResponse](t, rec)
		if res.Redaction.ID != 7 || res.Redaction.Location != redaction.DefaultManualLocation {
			t.Errorf("Unexpected manual redaction %+v", res.Redaction)
		}
		if res.Redaction.CreatedByBadge != testReviewerBadge {
			t.Errorf("Expected configured reviewer stamp, got %q", res.Redaction.CreatedByBadge)
		}
		if res.Document.RedactionsDetected != 5 || res.Document.RedactionsApplied != 3 {
			t.Errorf("Unexpected counts %d/%d", res.Document.RedactionsDetected, res.Document.RedactionsApplied)
		}

		rec = do(t, srv, http.MethodPost, "/api/documents/1/redactions/manual", `{"text":"   "}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for empty text, got %d", rec.Code)
		}
	})

	t.Run("Click", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		rec := do(t, srv, http.MethodPost, "/api/documents/1/click", `{"redaction_id":4}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		for _, id := range []string{"1", "6", "99"} {
			rec := do(t, srv, http.MethodPost, "/api/documents/1/click", `{"redaction_id":`+id+`}`)
			if rec.Code != http.StatusNoContent {
				t.Errorf("Click on %s: expected 204, got %d", id, rec.Code)
			}
		}
	})
}

func TestAuditEndpoint(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		if rec := do(t, srv, http.MethodGet, "/api/audit/1", ""); rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("Enabled", func(t *testing.T) {
		log := &fakeAudit{entries: []audit.Entry{{ID: 1, EventType: "status_changed", DocumentID: 1}}}
		srv, _ := newTestServer(t, nil, WithAuditLog(log))
		rec := do(t, srv, http.MethodGet, "/api/audit/1?limit=10", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if entries := decode[[]audit.Entry](t, rec); len(entries) != 1 {
			t.Errorf("Expected 1 entry, got %d", len(entries))
		}
		if rec := do(t, srv, http.MethodGet, "/api/audit/1?limit=-1", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
		}
	})

	t.Run("StoreFailure", func(t *testing.T) {
		srv, _ := newTestServer(t, nil, WithAuditLog(&fakeAudit{err: errors.New("connection refused")}))
		rec := do(t, srv, http.MethodGet, "/api/audit/1", "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "connection refused") {
			t.Error("Internal error details leaked to the client")
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerSecond = 0.001
		cfg.RateLimit.Burst = 2
	})

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodGet, "/api/case", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got, want := rec.Header().Get(RateLimitRemainingHeader), strconv.Itoa(1-i); got != want {
			t.Errorf("Request %d: expected %s remaining, got %q", i+1, want, got)
		}
	}
	rec := do(t, srv, http.MethodGet, "/api/case", "")
	if got := rec.Header().Get(RateLimitRemainingHeader); got != "0" {
		t.Errorf("Expected no remaining requests, got %q", got)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/case", "", "X-Forwarded-For", "10.1.1.1"); rec.Code != http.StatusOK {
		t.Errorf("Other clients should not be limited, got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("Health is outside the limited API, got %d", rec.Code)
	}
}

func TestReconfigure(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	cfg := config.GetDefaults()
	cfg.Reviewer.Name = "Det. Ana Ruiz"
	cfg.Reviewer.Badge = "9001"
	cfg.Masking.Format = "[{{CATEGORY}}]"

	if err := srv.Reconfigure(cfg); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	me := decode[redaction.Actor](t, do(t, srv, http.MethodGet, "/api/me", ""))
	if me.Badge != "9001" {
		t.Errorf("Expected reloaded reviewer, got %+v", me)
	}
	rec := do(t, srv, http.MethodGet, "/api/documents/1/export", "")
	if !strings.HasPrefix(rec.Body.String(), "Dispatched to [ADDRESS].") {
		t.Errorf("Expected reloaded mask format, got %q", rec.Body.String())
	}

	cfg.Masking.Format = "{{NOPE}}"
	if err := srv.Reconfigure(cfg); err == nil {
		t.Error("Expected invalid masking format to be rejected")
	}
}

type fakeSegmentCache struct{}

func (fakeSegmentCache) Segments(ctx context.Context, text string, redactions []redaction.Redaction) []redaction.Segment {
	return redaction.ComputeSegments(text, redactions)
}

func (fakeSegmentCache) GetStats(ctx context.Context) (*cache.CacheStats, error) {
	return &cache.CacheStats{Hits: 3, Misses: 1, HitRate: 75}, nil
}

func TestInfoCacheStats(t *testing.T) {
	srv, _ := newTestServer(t, nil, WithSegmentSource(fakeSegmentCache{}))
	info := decode[struct {
		CacheEnabled bool              `json:"cache_enabled"`
		Cache        *cache.CacheStats `json:"cache"`
	}](t, do(t, srv, http.MethodGet, "/info", ""))
	if !info.CacheEnabled || info.Cache == nil {
		t.Fatalf("Expected cache stats in info, got %+v", info)
	}
	if info.Cache.Hits != 3 || info.Cache.HitRate != 75 {
		t.Errorf("Unexpected cache stats %+v", info.Cache)
	}

	plain, _ := newTestServer(t, nil)
	rec := do(t, plain, http.MethodGet, "/info", "")
	if strings.Contains(rec.Body.String(), `"cache":`) {
		t.Errorf("Expected no cache stats without a cache, got %s", rec.Body.String())
	}
}

func TestFallbackReviewer(t *testing.T) {
	fixtureUser := redaction.Actor{Name: "Detective Sarah Martinez", Badge: "4571"}
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Reviewer.Name = ""
		cfg.Reviewer.Badge = ""
	}, WithFallbackReviewer(fixtureUser))

	me := decode[redaction.Actor](t, do(t, srv, http.MethodGet, "/api/me", ""))
	if me.Badge != "4571" {
		t.Errorf("Expected fallback reviewer, got %+v", me)
	}

	cfg := config.GetDefaults()
	cfg.Reviewer.Name = "Det. Ana Ruiz"
	cfg.Reviewer.Badge = "9001"
	if err := srv.Reconfigure(cfg); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	if me := decode[redaction.Actor](t, do(t, srv, http.MethodGet, "/api/me", "")); me.Badge != "9001" {
		t.Errorf("Expected configured reviewer to win, got %+v", me)
	}

	if err := srv.Reconfigure(config.GetDefaults()); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	if me := decode[redaction.Actor](t, do(t, srv, http.MethodGet, "/api/me", "")); me.Badge != "4571" {
		t.Errorf("Expected fallback after reviewer removed, got %+v", me)
	}
}

func TestReviewLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	srv, _ := newLoggedTestServer(t, &logger.Logger{Logger: zap.New(core)}, nil)

	rec := do(t, srv, http.MethodPut, "/api/documents/1/redactions/2/status", `{"status":"approved"}`,
		HeaderReviewerName, "Det. Mark Chen", HeaderReviewerBadge, "7788")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	entries := logs.FilterMessage("Redaction reviewed").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one review log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["reviewer_badge"] != "7788" {
		t.Errorf("Expected reviewer badge in log, got %v", fields["reviewer_badge"])
	}
	if fields["request_id"] != rec.Header().Get(RequestIDHeader) {
		t.Errorf("Expected request id %q in log, got %v", rec.Header().Get(RequestIDHeader), fields["request_id"])
	}
	if _, ok := fields["reviewer_name"]; ok {
		t.Error("Reviewer names must stay out of logs")
	}
}
