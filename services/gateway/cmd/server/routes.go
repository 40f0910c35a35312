package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chainproof/pkg/httpx"
	"chainproof/pkg/svcauth"
	"chainproof/services/gateway/internal/config"
	"chainproof/services/gateway/internal/fabric"
)

const defaultPageSize = 10

func newRouter(cfg *config.Config, fab *fabric.Manager, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL, cfg.BackendURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", svcauth.TimestampHeader, svcauth.SignatureHeader},
		AllowCredentials: true,
	}))
	r.NotFound(httpx.NotFound)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]any{
			"status":    "healthy",
			"service":   "ChainProof Fabric Gateway",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"fabric": map[string]any{
				"channel":   fab.Channel(),
				"chaincode": fab.Chaincode(),
				"org":       fab.CurrentOrg(),
			},
		})
	})

	r.Route("/api/fabric", func(api chi.Router) {
		api.Use(svcauth.Middleware(cfg.SharedSecret, logger))

		api.Get("/org", func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteData(w, 200, map[string]any{"org": fab.CurrentOrg()})
		})

		api.Post("/org/switch", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Org string `json:"org"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			switch req.Org {
			case config.WhistleblowersOrg, config.VerifierOrg, config.LegalOrg:
			default:
				httpx.WriteError(w, 400, "BAD_REQUEST", "Invalid org. Must be: WhistleblowersOrg, VerifierOrg, or LegalOrg", nil)
				return
			}
			if err := fab.SwitchOrg(r.Context(), req.Org); err != nil {
				writeFabricError(w, logger, err)
				return
			}
			logger.Info("switched organization", zap.String("org", req.Org))
			httpx.WriteData(w, 200, map[string]any{"org": req.Org})
		})

		api.Post("/evidence/submit", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
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
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if req.EvidenceID == "" || req.IPFSCID == "" || req.FileHash == "" || req.PublicKeyHash == "" || req.Signature == "" {
				httpx.WriteError(w, 400, "BAD_REQUEST", "Missing required fields: evidenceId, ipfsCid, fileHash, publicKeyHash, signature", nil)
				return
			}
			if req.FileType == "" {
				req.FileType = "unknown"
			}
			if req.Category == "" {
				req.Category = "other"
			}
			logger.Info("submitting evidence", zap.String("evidence_id", req.EvidenceID))
			out, err := fab.SubmitEvidence(r.Context(), fabric.SubmitEvidenceArgs{
				EvidenceID:    req.EvidenceID,
				IPFSCID:       req.IPFSCID,
				FileHash:      req.FileHash,
				FileType:      req.FileType,
				FileSize:      req.FileSize,
				Category:      req.Category,
				Description:   req.Description,
				PublicKeyHash: req.PublicKeyHash,
				Signature:     req.Signature,
			})
			if err != nil {
				writeFabricError(w, logger, err)
				return
			}
			httpx.WriteData(w, 201, out)
		})

		api.Post("/evidence/bulk", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				BulkSubmissionID string            `json:"bulkSubmissionId"`
				Items            []json.RawMessage `json:"items"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if req.BulkSubmissionID == "" || len(req.Items) == 0 {
				httpx.WriteError(w, 400, "BAD_REQUEST", "bulkSubmissionId and at least one item are required", nil)
				return
			}
			items, err := json.Marshal(req.Items)
			if err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			out, err := fab.SubmitBulkEvidence(r.Context(), req.BulkSubmissionID, items)
			if err != nil {
				writeFabricError(w, logger, err)
				return
			}
			httpx.WriteData(w, 201, out)
		})

		api.Get("/evidence/count", func(w http.ResponseWriter, r *http.Request) {
			respond(w, logger)(fab.GetEvidenceCount(r.Context()))
		})

		api.Get("/evidence", func(w http.ResponseWriter, r *http.Request) {
			pageSize, bookmark, ok := pagination(w, r)
			if !ok {
				return
			}
			respond(w, logger)(fab.GetAllEvidence(r.Context(), pageSize, bookmark))
		})

		api.Get("/evidence/{evidenceId}", func(w http.ResponseWriter, r *http.Request) {
			respond(w, logger)(fab.GetEvidence(r.Context(), chi.URLParam(r, "evidenceId")))
		})

		api.Get("/evidence/{evidenceId}/history", func(w http.ResponseWriter, r *http.Request) {
			respond(w, logger)(fab.GetEvidenceHistory(r.Context(), chi.URLParam(r, "evidenceId")))
		})

		api.Post("/evidence/{evidenceId}/anchor", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				TxHash string `json:"txHash"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if strings.TrimSpace(req.TxHash) == "" {
				httpx.WriteError(w, 400, "BAD_REQUEST", "txHash is required", nil)
				return
			}
			respond(w, logger)(fab.UpdatePolygonAnchor(r.Context(), chi.URLParam(r, "evidenceId"), req.TxHash))
		})

		api.Get("/notifications/{publicKeyHash}", func(w http.ResponseWriter, r *http.Request) {
			out, err := fab.GetNotifications(r.Context(), chi.URLParam(r, "publicKeyHash"))
			if err != nil {
				writeFabricError(w, logger, err)
				return
			}
			if out == nil {
				out = json.RawMessage(`[]`)
			}
			httpx.WriteData(w, 200, out)
		})

		api.Post("/notifications/{notificationId}/read", func(w http.ResponseWriter, r *http.Request) {
			respond(w, logger)(fab.MarkNotificationRead(r.Context(), chi.URLParam(r, "notificationId")))
		})

		api.Get("/reputation/{publicKeyHash}", func(w http.ResponseWriter, r *http.Request) {
			respond(w, logger)(fab.GetReputation(r.Context(), chi.URLParam(r, "publicKeyHash")))
		})

		api.Post("/verify/{evidenceId}", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ComputedHash     string `json:"computedHash"`
				Passed           *bool  `json:"passed"`
				RejectionComment string `json:"rejectionComment"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if req.ComputedHash == "" || req.Passed == nil {
				httpx.WriteError(w, 400, "BAD_REQUEST", "computedHash and passed are required", nil)
				return
			}
			if !*req.Passed && strings.TrimSpace(req.RejectionComment) == "" {
				httpx.WriteError(w, 400, "BAD_REQUEST", "rejectionComment is required when verification fails", nil)
				return
			}
			id := chi.URLParam(r, "evidenceId")
			logger.Info("verifying evidence", zap.String("evidence_id", id), zap.Bool("passed", *req.Passed))
			respond(w, logger)(fab.VerifyIntegrity(r.Context(), id, req.ComputedHash, *req.Passed, req.RejectionComment))
		})

		api.Post("/verify/{evidenceId}/note", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				NoteID         string `json:"noteId"`
				Content        string `json:"content"`
				HashComparison string `json:"hashComparison"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if strings.TrimSpace(req.Content) == "" {
				httpx.WriteError(w, 400, "BAD_REQUEST", "content is required", nil)
				return
			}
			if req.NoteID == "" {
				req.NoteID = shortID("NOTE")
			}
			out, err := fab.AddVerificationNote(r.Context(), chi.URLParam(r, "evidenceId"), req.NoteID, req.Content, req.HashComparison)
			if err != nil {
				writeFabricError(w, logger, err)
				return
			}
			httpx.WriteData(w, 200, map[string]any{"noteId": req.NoteID, "result": out})
		})

		api.Get("/verify/{evidenceId}/notes", func(w http.ResponseWriter, r *http.Request) {
			respond(w, logger)(fab.GetVerificationNotes(r.Context(), chi.URLParam(r, "evidenceId")))
		})

		api.Post("/legal/{evidenceId}/review", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Complete bool `json:"complete"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			id := chi.URLParam(r, "evidenceId")
			logger.Info("legal review", zap.String("evidence_id", id), zap.Bool("complete", req.Complete))
			respond(w, logger)(fab.ReviewEvidence(r.Context(), id, req.Complete))
		})

		api.Post("/legal/{evidenceId}/comment", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				CommentID      string `json:"commentId"`
				Content        string `json:"content"`
				CourtReadiness string `json:"courtReadiness"`
				Recommendation string `json:"recommendation"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if strings.TrimSpace(req.Content) == "" {
				httpx.WriteError(w, 400, "BAD_REQUEST", "content is required", nil)
				return
			}
			if req.CourtReadiness == "" {
				req.CourtReadiness = "NEEDS_REVIEW"
			}
			if req.CommentID == "" {
				req.CommentID = shortID("CMT")
			}
			out, err := fab.AddLegalComment(r.Context(), chi.URLParam(r, "evidenceId"), req.CommentID, req.Content, req.CourtReadiness, req.Recommendation)
			if err != nil {
				writeFabricError(w, logger, err)
				return
			}
			httpx.WriteData(w, 200, map[string]any{"commentId": req.CommentID, "result": out})
		})

		api.Get("/legal/{evidenceId}/comments", func(w http.ResponseWriter, r *http.Request) {
			respond(w, logger)(fab.GetLegalComments(r.Context(), chi.URLParam(r, "evidenceId")))
		})

		api.Post("/legal/{evidenceId}/export", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "evidenceId")
			logger.Info("exporting evidence", zap.String("evidence_id", id))
			respond(w, logger)(fab.ExportEvidence(r.Context(), id))
		})

		api.Get("/query/status/{status}", func(w http.ResponseWriter, r *http.Request) {
			pageSize, bookmark, ok := pagination(w, r)
			if !ok {
				return
			}
			respond(w, logger)(fab.QueryEvidenceByStatus(r.Context(), chi.URLParam(r, "status"), pageSize, bookmark))
		})

		api.Get("/query/category/{category}", func(w http.ResponseWriter, r *http.Request) {
			pageSize, bookmark, ok := pagination(w, r)
			if !ok {
				return
			}
			respond(w, logger)(fab.QueryEvidenceByCategory(r.Context(), chi.URLParam(r, "category"), pageSize, bookmark))
		})

		api.Get("/query/bulk/{bulkId}", func(w http.ResponseWriter, r *http.Request) {
			respond(w, logger)(fab.QueryEvidenceByBulkSubmission(r.Context(), chi.URLParam(r, "bulkId")))
		})

		api.Get("/query/daterange", func(w http.ResponseWriter, r *http.Request) {
			start, err1 := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
			end, err2 := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)
			if err1 != nil || err2 != nil {
				httpx.WriteError(w, 400, "BAD_REQUEST", "start and end must be unix timestamps", nil)
				return
			}
			pageSize, bookmark, ok := pagination(w, r)
			if !ok {
				return
			}
			respond(w, logger)(fab.QueryEvidenceByDateRange(r.Context(), start, end, pageSize, bookmark))
		})
	})

	return r
}

// respond writes a chaincode result, or its error, in the API envelope.
func respond(w http.ResponseWriter, logger *zap.Logger) func(json.RawMessage, error) {
	return func(out json.RawMessage, err error) {
		if err != nil {
			writeFabricError(w, logger, err)
			return
		}
		httpx.WriteData(w, 200, out)
	}
}

func writeFabricError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var details any
	message := err.Error()
	var fe *fabric.Error
	if errors.As(err, &fe) {
		message = fe.Message
		if len(fe.Details) > 0 {
			details = fe.Details
		}
	}
	switch fabric.Classify(err) {
	case fabric.KindNotFound:
		httpx.WriteError(w, 404, "NOT_FOUND", message, details)
	case fabric.KindForbidden:
		httpx.WriteError(w, 403, "FORBIDDEN", message, details)
	case fabric.KindConflict:
		httpx.WriteError(w, 409, "CONFLICT", message, details)
	case fabric.KindInvalid:
		httpx.WriteError(w, 400, "BAD_REQUEST", message, details)
	default:
		logger.Error("fabric call failed", zap.Error(err))
		httpx.WriteError(w, 500, "FABRIC_ERROR", message, details)
	}
}

func pagination(w http.ResponseWriter, r *http.Request) (int32, string, bool) {
	q := r.URL.Query()
	pageSize := int32(defaultPageSize)
	if raw := strings.TrimSpace(q.Get("pageSize")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			httpx.WriteError(w, 400, "BAD_REQUEST", "pageSize must be a positive integer", nil)
			return 0, "", false
		}
		pageSize = int32(n)
	}
	return pageSize, q.Get("bookmark"), true
}

func shortID(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}
