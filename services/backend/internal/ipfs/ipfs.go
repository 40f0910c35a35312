package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultAPIURL     = "https://api.pinata.cloud"
	DefaultGatewayURL = "https://gateway.pinata.cloud"
)

var DefaultGateways = []string{
	"https://ipfs.io",
	"https://gateway.pinata.cloud",
	"https://dweb.link",
	"https://cloudflare-ipfs.com",
}

// DefaultMaxBytes caps a single fetched object.
const DefaultMaxBytes = 50 << 20

var (
	ErrAllGatewaysFailed = errors.New("failed to fetch IPFS content from all gateways")
	ErrTooLarge          = errors.New("ipfs content exceeds the size limit")
)

type Client struct {
	APIURL         string
	GatewayURL     string
	JWT            string
	Gateways       []string
	GatewayTimeout time.Duration
	MaxBytes       int64
	HTTP           *http.Client
	Logger         *zap.Logger
	Now            func() time.Time
}

func New(apiURL, gatewayURL, jwt string, gateways []string, logger *zap.Logger) *Client {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = DefaultAPIURL
	}
	if strings.TrimSpace(gatewayURL) == "" {
		gatewayURL = DefaultGatewayURL
	}
	if len(gateways) == 0 {
		gateways = DefaultGateways
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		APIURL:         strings.TrimRight(strings.TrimSpace(apiURL), "/"),
		GatewayURL:     strings.TrimRight(strings.TrimSpace(gatewayURL), "/"),
		JWT:            strings.TrimSpace(jwt),
		Gateways:       gateways,
		GatewayTimeout: 10 * time.Second,
		MaxBytes:       DefaultMaxBytes,
		HTTP:           &http.Client{Timeout: 2 * time.Minute},
		Logger:         logger,
		Now:            time.Now,
	}
}

type Upload struct {
	CID       string `json:"cid"`
	Size      int64  `json:"size"`
	Timestamp string `json:"timestamp"`
}

// UploadFile pins data to Pinata. keyvalues land in pinataMetadata together
// with an uploadedAt stamp.
func (c *Client) UploadFile(ctx context.Context, data []byte, fileName string, keyvalues map[string]string) (*Upload, error) {
	kv := map[string]string{}
	for k, v := range keyvalues {
		kv[k] = v
	}
	kv["uploadedAt"] = c.Now().UTC().Format(time.RFC3339Nano)
	meta, err := json.Marshal(map[string]any{"name": fileName, "keyvalues": kv})
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/pinning/pinFileToIPFS", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.JWT)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinata upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("pinata upload failed: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		IpfsHash  string `json:"IpfsHash"`
		PinSize   int64  `json:"PinSize"`
		Timestamp string `json:"Timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode pinata response: %w", err)
	}
	if out.IpfsHash == "" {
		return nil, errors.New("pinata response missing IpfsHash")
	}
	return &Upload{CID: out.IpfsHash, Size: out.PinSize, Timestamp: out.Timestamp}, nil
}

func (c *Client) Get(ctx context.Context, cid string) ([]byte, error) {
	body, _, err := c.fetch(ctx, c.GatewayURL, cid)
	return body, err
}

// Exists asks Pinata's pin list for cid. Any failure reads as absent.
func (c *Client) Exists(ctx context.Context, cid string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+"/data/pinList?hashContains="+url.QueryEscape(cid), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.JWT)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Logger.Warn("pin list check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.Count > 0
}

// FetchWithFallback tries each public gateway in order, giving each
// GatewayTimeout, and returns the first successful body with its content type.
func (c *Client) FetchWithFallback(ctx context.Context, cid string) ([]byte, string, error) {
	var lastErr error
	for _, gw := range c.Gateways {
		gctx, cancel := context.WithTimeout(ctx, c.GatewayTimeout)
		body, contentType, err := c.fetch(gctx, strings.TrimRight(gw, "/"), cid)
		cancel()
		if err == nil {
			return body, contentType, nil
		}
		if errors.Is(err, ErrTooLarge) {
			return nil, "", err
		}
		c.Logger.Warn("ipfs gateway failed", zap.String("gateway", gw), zap.Error(err))
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no gateways configured")
	}
	return nil, "", fmt.Errorf("%w: %w", ErrAllGatewaysFailed, lastErr)
}

func (c *Client) fetch(ctx context.Context, base, cid string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/ipfs/"+url.PathEscape(cid), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("gateway %s returned %d", base, resp.StatusCode)
	}
	limit := c.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("%w: %s/ipfs/%s is over %d bytes", ErrTooLarge, base, cid, limit)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
