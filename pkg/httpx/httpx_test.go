package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWriteErrorEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, 400, "BAD_REQUEST", "evidenceId is required", map[string]any{"field": "evidenceId"})

	if rr.Code != 400 {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body struct {
		RequestID string `json:"request_id"`
		Error     struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(body.RequestID, "req_") {
		t.Fatalf("unexpected request id %q", body.RequestID)
	}
	if body.Error.Code != "BAD_REQUEST" || body.Error.Details["field"] != "evidenceId" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
}

func TestWriteDataEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteData(rr, 201, map[string]any{"evidenceId": "EVD-1"})
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != 201 || body["success"] != true {
		t.Fatalf("unexpected response %d %v", rr.Code, body)
	}
	if data, _ := body["data"].(map[string]any); data["evidenceId"] != "EVD-1" {
		t.Fatalf("unexpected data %v", body["data"])
	}
}

func TestReadJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1,"b":2}`))
	var dst struct {
		A int `json:"a"`
	}
	if err := ReadJSON(req, &dst); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestRequestLoggerRecordsRoutePattern(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := chi.NewRouter()
	r.Use(RequestLogger(zap.New(core)))
	r.Get("/api/evidence/{id}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/evidence/EVD-1", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["route"] != "/api/evidence/{id}" {
		t.Fatalf("unexpected route field %v", fields["route"])
	}
	if fields["status"] != int64(204) {
		t.Fatalf("unexpected status field %v", fields["status"])
	}
}

func TestServeStopsOnCancelAndRunsCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cleaned := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), zap.NewNop(), func() error {
			close(cleaned)
			return nil
		})
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup was not run")
	}
}
