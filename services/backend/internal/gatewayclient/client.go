package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chainproof/pkg/svcauth"
)

type Client struct {
	BaseURL string
	Secret  string
	HTTP    *http.Client
	Now     func() time.Time
}

func New(baseURL, secret string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Secret:  secret,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Now:     time.Now,
	}
}

// Error is a non-2xx gateway reply.
type Error struct {
	Status  int
	Code    string
	Message string
	Details json.RawMessage
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gateway returned %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in any) (json.RawMessage, error) {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = b
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Secret != "" {
		if err := svcauth.Sign(req, body, c.Secret, c.Now()); err != nil {
			return nil, err
		}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fabric gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		var env struct {
			Error struct {
				Code    string          `json:"code"`
				Message string          `json:"message"`
				Details json.RawMessage `json:"details"`
			} `json:"error"`
		}
		gerr := &Error{Status: resp.StatusCode}
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			gerr.Code, gerr.Message, gerr.Details = env.Error.Code, env.Error.Message, env.Error.Details
		} else {
			gerr.Message = strings.TrimSpace(string(raw))
		}
		return nil, gerr
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	return env.Data, nil
}

func esc(s string) string { return url.PathEscape(s) }

type SubmitEvidenceRequest struct {
	EvidenceID    string `json:"evidenceId"`
	IPFSCID       string `json:"ipfsCid"`
	FileHash      string `json:"fileHash"`
	FileType      string `json:"fileType"`
	FileSize      int64  `json:"fileSize"`
	Category      string `json:"category"`
	Description   string `json:"description"`
	PublicKeyHash string `json:"publicKeyHash"`
	Signature     string `json:"signature"`
}

func (c *Client) SubmitEvidence(ctx context.Context, in SubmitEvidenceRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/fabric/evidence/submit", in)
}

func (c *Client) UpdatePolygonAnchor(ctx context.Context, evidenceID, txHash string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/fabric/evidence/"+esc(evidenceID)+"/anchor", map[string]string{"txHash": txHash})
}

func (c *Client) GetEvidence(ctx context.Context, evidenceID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/fabric/evidence/"+esc(evidenceID), nil)
}

func (c *Client) GetEvidenceHistory(ctx context.Context, evidenceID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/fabric/evidence/"+esc(evidenceID)+"/history", nil)
}

func (c *Client) GetNotifications(ctx context.Context, publicKeyHash string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/fabric/notifications/"+esc(publicKeyHash), nil)
}

func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/fabric/notifications/"+esc(notificationID)+"/read", nil)
}

func (c *Client) GetReputation(ctx context.Context, publicKeyHash string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/fabric/reputation/"+esc(publicKeyHash), nil)
}

func (c *Client) VerifyIntegrity(ctx context.Context, evidenceID, computedHash string, passed bool, rejectionComment string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/fabric/verify/"+esc(evidenceID), map[string]any{
		"computedHash":     computedHash,
		"passed":           passed,
		"rejectionComment": rejectionComment,
	})
}

// AddVerificationNote returns the gateway's {noteId, result} object.
func (c *Client) AddVerificationNote(ctx context.Context, evidenceID, content, hashComparison string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/fabric/verify/"+esc(evidenceID)+"/note", map[string]string{
		"content":        content,
		"hashComparison": hashComparison,
	})
}

func (c *Client) ReviewEvidence(ctx context.Context, evidenceID string, complete bool) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/fabric/legal/"+esc(evidenceID)+"/review", map[string]bool{"complete": complete})
}

// AddLegalComment returns the gateway's {commentId, result} object.
func (c *Client) AddLegalComment(ctx context.Context, evidenceID, content, courtReadiness, recommendation string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/fabric/legal/"+esc(evidenceID)+"/comment", map[string]string{
		"content":        content,
		"courtReadiness": courtReadiness,
		"recommendation": recommendation,
	})
}

func (c *Client) ExportEvidence(ctx context.Context, evidenceID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/fabric/legal/"+esc(evidenceID)+"/export", nil)
}

func (c *Client) QueryEvidenceByStatus(ctx context.Context, status string, pageSize int, bookmark string) (json.RawMessage, error) {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if bookmark != "" {
		q.Set("bookmark", bookmark)
	}
	path := "/api/fabric/query/status/" + esc(status)
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	return c.do(ctx, http.MethodGet, path, nil)
}
