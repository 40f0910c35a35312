package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chainproof/pkg/evidencehash"
	"chainproof/pkg/httpx"
	"chainproof/services/backend/internal/auth"
	"chainproof/services/backend/internal/sepolia"
	"chainproof/services/backend/internal/store"
)

func (s *server) verifyRoutes(r chi.Router) {
	r.Post("/integrity", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID   string `json:"evidenceId"`
			IPFSCID      string `json:"ipfsCid"`
			ExpectedHash string `json:"expectedHash"`
		}
		if !s.readJSON(w, r, &req) {
			return
		}
		if req.EvidenceID == "" || req.IPFSCID == "" || req.ExpectedHash == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "evidenceId, ipfsCid, and expectedHash are required", nil)
			return
		}
		pinned := s.ipfs.Exists(r.Context(), req.IPFSCID)
		if !pinned {
			s.logger.Warn("cid not in pin list", zap.String("evidence_id", req.EvidenceID), zap.String("cid", req.IPFSCID))
		}
		body, _, err := s.fetchCID(r.Context(), req.IPFSCID)
		if err != nil {
			s.logger.Error("integrity fetch failed", zap.String("evidence_id", req.EvidenceID), zap.Error(err))
			httpx.WriteError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to fetch IPFS content from all gateways",
				map[string]any{"reason": err.Error()})
			return
		}
		computed := evidencehash.SHA256Hex(body)
		passed := evidencehash.HashesMatch(computed, req.ExpectedHash)
		message := "Integrity FAILED - hashes do not match"
		if passed {
			message = "Integrity verified - hashes match"
		}
		httpx.WriteData(w, 200, map[string]any{
			"evidenceId":   req.EvidenceID,
			"passed":       passed,
			"computedHash": computed,
			"expectedHash": req.ExpectedHash,
			"pinned":       pinned,
			"message":      message,
			"verifiedAt":   s.now().UTC().Format(time.RFC3339),
		})
	})

	r.Post("/record", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID       string `json:"evidenceId"`
			ComputedHash     string `json:"computedHash"`
			Passed           *bool  `json:"passed"`
			RejectionComment string `json:"rejectionComment"`
		}
		if !s.readJSON(w, r, &req) {
			return
		}
		if req.EvidenceID == "" || req.ComputedHash == "" || req.Passed == nil {
			httpx.WriteError(w, 400, "BAD_REQUEST", "evidenceId, computedHash, and passed are required", nil)
			return
		}
		passed := *req.Passed
		if !passed && req.RejectionComment == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "rejectionComment is required when verification fails", nil)
			return
		}
		ctx := r.Context()
		result, err := s.fabric.VerifyIntegrity(ctx, req.EvidenceID, req.ComputedHash, passed, req.RejectionComment)
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}

		proof, err := s.store.SaveVerificationProof(ctx, store.VerificationProof{
			FileHash:        req.ComputedHash,
			Verified:        passed,
			VerifiedAt:      s.now().UTC(),
			VerifierOrgHash: evidencehash.HashStringSHA256Hex(auth.OrgVerifier),
		})
		if err != nil {
			s.logger.Error("failed to save verification proof", zap.String("evidence_id", req.EvidenceID), zap.Error(err))
		}
		status, field := "VERIFIED", store.StatVerified
		if !passed {
			status, field = "REJECTED", store.StatRejected
		}
		if err := s.store.UpdateEvidenceStatus(ctx, req.EvidenceID, status); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("evidence record status not updated", zap.String("evidence_id", req.EvidenceID), zap.Error(err))
		}
		s.bumpStats(ctx, field, "")

		var comment any
		message := "Verification recorded - evidence will proceed to legal review"
		if !passed {
			comment = req.RejectionComment
			message = "Rejection recorded - whistleblower has been notified"
		}
		httpx.WriteData(w, 200, map[string]any{
			"evidenceId":       req.EvidenceID,
			"passed":           passed,
			"rejectionComment": comment,
			"message":          message,
			"proofId":          proof.ProofID,
			"result":           result,
			"recordedAt":       s.now().UTC().Format(time.RFC3339),
		})
	})

	r.Post("/note", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID     string `json:"evidenceId"`
			Content        string `json:"content"`
			HashComparison string `json:"hashComparison"`
		}
		if !s.readJSON(w, r, &req) {
			return
		}
		if req.EvidenceID == "" || req.Content == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "evidenceId and content are required", nil)
			return
		}
		out, err := s.fabric.AddVerificationNote(r.Context(), req.EvidenceID, req.Content, req.HashComparison)
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		httpx.WriteData(w, 200, map[string]any{
			"evidenceId": req.EvidenceID,
			"message":    "Verification note added (PDC)",
			"result":     out,
			"addedAt":    s.now().UTC().Format(time.RFC3339),
		})
	})

	r.Post("/anchor", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID string `json:"evidenceId"`
			FileHash   string `json:"fileHash"`
		}
		if !s.readJSON(w, r, &req) {
			return
		}
		if req.EvidenceID == "" || req.FileHash == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "evidenceId and fileHash are required", nil)
			return
		}
		if _, err := sepolia.FileHashToBytes32(req.FileHash); err != nil {
			httpx.WriteError(w, 400, "BAD_REQUEST", err.Error(), nil)
			return
		}
		v, err := s.anchors.VerifyAnchor(r.Context(), req.EvidenceID, req.FileHash)
		if err != nil {
			s.writeSepoliaError(w, err)
			return
		}
		httpx.WriteData(w, 200, map[string]any{"evidenceId": req.EvidenceID, "verification": v})
	})
}
