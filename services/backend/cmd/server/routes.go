package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"chainproof/pkg/httpx"
	"chainproof/services/backend/internal/auth"
	"chainproof/services/backend/internal/gatewayclient"
	"chainproof/services/backend/internal/ipfs"
	"chainproof/services/backend/internal/lookup"
	"chainproof/services/backend/internal/metadata"
	"chainproof/services/backend/internal/ratelimit"
	"chainproof/services/backend/internal/sepolia"
	"chainproof/services/backend/internal/store"
)

// backendStore is the slice of *store.Store the handlers use.
type backendStore interface {
	auth.Store
	lookup.Store
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	ListUsersByOrg(ctx context.Context, org string, activeOnly bool) ([]store.User, error)
	IncrementAssigned(ctx context.Context, userID string) error
	PickRandomUser(ctx context.Context, org, legalRole string) (store.User, error)
	CreateEvidenceRecord(ctx context.Context, rec store.EvidenceRecord) error
	AssignEvidence(ctx context.Context, evidenceID, userID, org string) error
	ForwardToLegal(ctx context.Context, evidenceID, legalRole string) error
	ListAssignments(ctx context.Context) ([]store.Assignment, error)
	UpdateEvidenceStatus(ctx context.Context, evidenceID, status string) error
	SaveEvidenceAnchor(ctx context.Context, a store.EvidenceAnchor) error
	GetEvidenceAnchor(ctx context.Context, evidenceID string) (store.EvidenceAnchor, error)
	SaveVerificationProof(ctx context.Context, p store.VerificationProof) (store.VerificationProof, error)
	PutSepoliaCache(ctx context.Context, e store.SepoliaCacheEntry) error
	GetSepoliaCache(ctx context.Context, txHash string, now time.Time) (store.SepoliaCacheEntry, error)
	IncrementStats(ctx context.Context, day string, field store.StatField, category string) error
	GetStats(ctx context.Context, from, to string) ([]store.DailyStats, error)
}

type fabricGateway interface {
	SubmitEvidence(ctx context.Context, in gatewayclient.SubmitEvidenceRequest) (json.RawMessage, error)
	UpdatePolygonAnchor(ctx context.Context, evidenceID, txHash string) (json.RawMessage, error)
	GetEvidence(ctx context.Context, evidenceID string) (json.RawMessage, error)
	GetEvidenceHistory(ctx context.Context, evidenceID string) (json.RawMessage, error)
	GetNotifications(ctx context.Context, publicKeyHash string) (json.RawMessage, error)
	MarkNotificationRead(ctx context.Context, notificationID string) (json.RawMessage, error)
	GetReputation(ctx context.Context, publicKeyHash string) (json.RawMessage, error)
	VerifyIntegrity(ctx context.Context, evidenceID, computedHash string, passed bool, rejectionComment string) (json.RawMessage, error)
	AddVerificationNote(ctx context.Context, evidenceID, content, hashComparison string) (json.RawMessage, error)
	ReviewEvidence(ctx context.Context, evidenceID string, complete bool) (json.RawMessage, error)
	AddLegalComment(ctx context.Context, evidenceID, content, courtReadiness, recommendation string) (json.RawMessage, error)
	ExportEvidence(ctx context.Context, evidenceID string) (json.RawMessage, error)
	QueryEvidenceByStatus(ctx context.Context, status string, pageSize int, bookmark string) (json.RawMessage, error)
}

type pinner interface {
	UploadFile(ctx context.Context, data []byte, fileName string, keyvalues map[string]string) (*ipfs.Upload, error)
	Get(ctx context.Context, cid string) ([]byte, error)
	Exists(ctx context.Context, cid string) bool
	FetchWithFallback(ctx context.Context, cid string) ([]byte, string, error)
}

type anchorer interface {
	Configured() bool
	CanWrite() bool
	AnchorHash(ctx context.Context, evidenceID, fileHash string) (*sepolia.AnchorReceipt, error)
	IsAnchored(ctx context.Context, evidenceID string) (bool, error)
	GetAnchor(ctx context.Context, evidenceID string) (*sepolia.Anchor, error)
	VerifyAnchor(ctx context.Context, evidenceID, fileHash string) (*sepolia.Verification, error)
}

type stripper interface {
	Strip(ctx context.Context, data []byte, fileName string) (*metadata.Result, error)
	Metadata(ctx context.Context, data []byte, fileName string) (map[string]any, error)
}

type server struct {
	cfg     config
	store   backendStore
	auth    *auth.Service
	lookup  *lookup.Service
	fabric  fabricGateway
	ipfs    pinner
	anchors anchorer
	strip   stripper
	limiter ratelimit.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Report-Hash"},
		AllowCredentials: true,
	}))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, 404, "NOT_FOUND", "Endpoint not found", map[string]any{"path": r.URL.Path})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]any{
			"status":      "healthy",
			"service":     "ChainProof Backend",
			"timestamp":   s.now().UTC().Format(time.RFC3339),
			"environment": s.cfg.Environment,
		})
	})

	r.Route("/api/evidence", s.evidenceRoutes)
	r.Route("/api/verify", s.verifyRoutes)
	r.Route("/api/legal", s.legalRoutes)
	r.Route("/api/auth", s.authRoutes)
	r.Get("/api/stats", s.handleStats)
	return r
}

func (s *server) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := httpx.ReadJSON(r, dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return false
		}
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return false
	}
	return true
}

// writeGatewayError passes client errors from the gateway through and turns
// everything else into 502.
func (s *server) writeGatewayError(w http.ResponseWriter, err error) {
	var gerr *gatewayclient.Error
	if errors.As(err, &gerr) && gerr.Status >= 400 && gerr.Status < 500 {
		code := gerr.Code
		if code == "" {
			code = strings.ToUpper(strings.ReplaceAll(http.StatusText(gerr.Status), " ", "_"))
		}
		var details any
		if len(gerr.Details) > 0 {
			details = gerr.Details
		}
		httpx.WriteError(w, gerr.Status, code, gerr.Message, details)
		return
	}
	s.logger.Error("fabric gateway call failed", zap.Error(err))
	httpx.WriteError(w, http.StatusBadGateway, "FABRIC_ERROR", err.Error(), nil)
}

func (s *server) writeSepoliaError(w http.ResponseWriter, err error) {
	if errors.Is(err, sepolia.ErrNotConfigured) {
		httpx.WriteError(w, http.StatusServiceUnavailable, "SEPOLIA_NOT_CONFIGURED", err.Error(), nil)
		return
	}
	s.logger.Error("sepolia call failed", zap.Error(err))
	httpx.WriteError(w, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), nil)
}

// bumpStats is best effort; a failed counter never fails the request.
func (s *server) bumpStats(ctx context.Context, field store.StatField, category string) {
	if err := s.store.IncrementStats(ctx, store.DayKey(s.now()), field, category); err != nil {
		s.logger.Warn("stats increment failed", zap.String("field", string(field)), zap.Error(err))
	}
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	if to == "" {
		to = store.DayKey(s.now())
	}
	if from == "" {
		from = store.DayKey(s.now().AddDate(0, 0, -29))
	}
	for _, d := range []string{from, to} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			httpx.WriteError(w, 400, "BAD_REQUEST", "from and to must be YYYY-MM-DD", map[string]any{"value": d})
			return
		}
	}
	stats, err := s.store.GetStats(r.Context(), from, to)
	if err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	httpx.WriteData(w, 200, map[string]any{"from": from, "to": to, "days": stats})
}
