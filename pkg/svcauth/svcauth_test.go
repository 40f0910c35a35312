package svcauth

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func signedRequest(t *testing.T, method, path string, body []byte, secret string, at time.Time) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if err := Sign(req, body, secret, at); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return req
}

func TestVerify_ValidSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"evidenceId":"EVD-1"}`)
	req := signedRequest(t, http.MethodPost, "/api/fabric/evidence/submit", body, "s3cret", now)

	got, err := Verify(req.Header, req.Method, req.URL.Path, body, "s3cret", now.Add(30*time.Second), DefaultTolerance)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !got.Valid || got.Scheme != Scheme {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestVerify_TamperedBodyOrPath(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"passed":true}`)
	req := signedRequest(t, http.MethodPost, "/api/fabric/verify/EVD-1", body, "s3cret", now)

	if _, err := Verify(req.Header, req.Method, req.URL.Path, []byte(`{"passed":false}`), "s3cret", now, DefaultTolerance); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for body, got %v", err)
	}
	if _, err := Verify(req.Header, req.Method, "/api/fabric/verify/EVD-2", body, "s3cret", now, DefaultTolerance); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for path, got %v", err)
	}
	if _, err := Verify(req.Header, req.Method, req.URL.Path, body, "other", now, DefaultTolerance); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for secret, got %v", err)
	}
}

func TestVerify_QueryIsSigned(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := signedRequest(t, http.MethodGet, "/api/fabric/evidence/status/SUBMITTED?pageSize=10&bookmark=b1", nil, "s3cret", now)

	if _, err := Verify(req.Header, req.Method, Target(req.URL), nil, "s3cret", now, DefaultTolerance); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := Verify(req.Header, req.Method, req.URL.Path, nil, "s3cret", now, DefaultTolerance); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature without query, got %v", err)
	}

	tampered := httptest.NewRequest(http.MethodGet, "/api/fabric/evidence/status/SUBMITTED?pageSize=1000&bookmark=b1", nil)
	tampered.Header = req.Header.Clone()
	if _, err := Verify(tampered.Header, tampered.Method, Target(tampered.URL), nil, "s3cret", now, DefaultTolerance); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for query, got %v", err)
	}
}

func TestVerify_StaleTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := signedRequest(t, http.MethodGet, "/api/fabric/org", nil, "s3cret", now)
	_, err := Verify(req.Header, req.Method, req.URL.Path, nil, "s3cret", now.Add(10*time.Minute), DefaultTolerance)
	if !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
}

func TestVerify_MissingHeaders(t *testing.T) {
	_, err := Verify(http.Header{}, http.MethodGet, "/", nil, "s3cret", time.Now(), DefaultTolerance)
	if !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	if _, err := Verify(http.Header{}, http.MethodGet, "/", nil, "", time.Now(), DefaultTolerance); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	var seen []byte
	h := Middleware("s3cret", zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = io.ReadAll(r.Body)
		w.WriteHeader(204)
	}))

	body := []byte(`{"org":"LegalOrg"}`)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest(t, http.MethodPost, "/api/fabric/org/switch", body, "s3cret", time.Now()))
	if rr.Code != 204 || !bytes.Equal(seen, body) {
		t.Fatalf("expected passthrough with body, got %d %q", rr.Code, seen)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/fabric/org/switch", bytes.NewReader(body)))
	if rr.Code != 401 {
		t.Fatalf("expected 401 for unsigned request, got %d", rr.Code)
	}

	signed := signedRequest(t, http.MethodGet, "/api/fabric/evidence/daterange?start=2026-01-01", nil, "s3cret", time.Now())
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, signed)
	if rr.Code != 204 {
		t.Fatalf("expected signed query to pass, got %d", rr.Code)
	}
	signed.URL.RawQuery = "start=2020-01-01"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, signed)
	if rr.Code != 401 {
		t.Fatalf("expected 401 for rewritten query, got %d", rr.Code)
	}
}

func TestMiddlewareDisabledWithoutSecret(t *testing.T) {
	h := Middleware("", zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != 204 {
		t.Fatalf("expected passthrough, got %d", rr.Code)
	}
}
