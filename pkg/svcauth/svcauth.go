package svcauth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chainproof/pkg/httpx"

	"go.uber.org/zap"
)

const (
	TimestampHeader  = "X-ChainProof-Timestamp"
	SignatureHeader  = "X-ChainProof-Signature"
	Scheme           = "chainproof-hmac-sha256/v2"
	DefaultTolerance = 5 * time.Minute
	maxSignedBody    = 1 << 20 // 1MB
)

var (
	ErrEmptySecret      = errors.New("service auth secret is empty")
	ErrMissingSignature = errors.New("missing service signature")
	ErrStaleTimestamp   = errors.New("service signature timestamp outside tolerance")
	ErrBadSignature     = errors.New("service signature mismatch")
)

type Result struct {
	Valid   bool           `json:"valid"`
	Scheme  string         `json:"scheme"`
	Details map[string]any `json:"details"`
}

// Target is the signed request target: the path, plus "?" and the raw query
// when there is one.
func Target(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

func payload(ts, method, target string, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(ts)
	b.WriteByte('\n')
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(target)
	b.WriteByte('\n')
	b.Write(body)
	return b.Bytes()
}

func compute(secret, ts, method, target string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload(ts, method, target, body))
	return mac.Sum(nil)
}

// Sign stamps req with the timestamp and signature headers. body must be the
// exact bytes that will be sent.
func Sign(req *http.Request, body []byte, secret string, now time.Time) error {
	if strings.TrimSpace(secret) == "" {
		return ErrEmptySecret
	}
	ts := strconv.FormatInt(now.UTC().Unix(), 10)
	req.Header.Set(TimestampHeader, ts)
	req.Header.Set(SignatureHeader, hex.EncodeToString(compute(secret, ts, req.Method, Target(req.URL), body)))
	return nil
}

// Verify checks the signature headers against target as built by Target.
func Verify(headers http.Header, method, target string, body []byte, secret string, now time.Time, tolerance time.Duration) (Result, error) {
	if strings.TrimSpace(secret) == "" {
		return Result{}, ErrEmptySecret
	}
	res := Result{
		Scheme: Scheme,
		Details: map[string]any{
			"signature_header_present": false,
			"tolerance_seconds":        int(tolerance.Seconds()),
		},
	}

	sigHex := strings.TrimSpace(headers.Get(SignatureHeader))
	ts := strings.TrimSpace(headers.Get(TimestampHeader))
	if sigHex == "" || ts == "" {
		return res, ErrMissingSignature
	}
	res.Details["signature_header_present"] = true

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || unix <= 0 {
		return res, fmt.Errorf("%w: bad timestamp", ErrMissingSignature)
	}
	skew := now.UTC().Unix() - unix
	if skew < 0 {
		skew = -skew
	}
	res.Details["skew_seconds"] = skew
	if tolerance > 0 && time.Duration(skew)*time.Second > tolerance {
		return res, ErrStaleTimestamp
	}

	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return res, ErrBadSignature
	}
	if !hmac.Equal(compute(secret, ts, method, target, body), provided) {
		return res, ErrBadSignature
	}
	res.Valid = true
	return res, nil
}

// Middleware rejects requests that are not signed with secret. An empty
// secret disables the check.
func Middleware(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if strings.TrimSpace(secret) == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxSignedBody)
			body, err := io.ReadAll(r.Body)
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					httpx.WriteError(w, 413, "PAYLOAD_TOO_LARGE", "payload exceeds 1MB limit", nil)
					return
				}
				httpx.WriteError(w, 400, "BAD_BODY", err.Error(), nil)
				return
			}
			res, err := Verify(r.Header, r.Method, Target(r.URL), body, secret, time.Now(), DefaultTolerance)
			if err != nil {
				logger.Warn("service auth rejected", zap.String("path", r.URL.Path), zap.Error(err))
				httpx.WriteError(w, 401, "UNAUTHORIZED", err.Error(), res.Details)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
