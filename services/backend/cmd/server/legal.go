package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chainproof/pkg/httpx"
	"chainproof/services/backend/internal/report"
	"chainproof/services/backend/internal/store"
)

var courtReadiness = map[string]bool{"READY": true, "NOT_READY": true, "NEEDS_REVIEW": true}

func (s *server) legalRoutes(r chi.Router) {
	r.Post("/review", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID string `json:"evidenceId"`
			Action     string `json:"action"`
		}
		if !s.readJSON(w, r, &req) {
			return
		}
		if req.EvidenceID == "" || req.Action == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "evidenceId and action are required", nil)
			return
		}
		if req.Action != "start" && req.Action != "complete" {
			httpx.WriteError(w, 400, "BAD_REQUEST", `action must be "start" or "complete"`, nil)
			return
		}
		complete := req.Action == "complete"
		out, err := s.fabric.ReviewEvidence(r.Context(), req.EvidenceID, complete)
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		message := "Legal review started"
		if complete {
			message = "Legal review completed"
		}
		httpx.WriteData(w, 200, map[string]any{
			"evidenceId": req.EvidenceID,
			"action":     req.Action,
			"message":    message,
			"result":     out,
			"reviewedAt": s.now().UTC().Format(time.RFC3339),
		})
	})

	r.Post("/comment", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID     string `json:"evidenceId"`
			Content        string `json:"content"`
			CourtReadiness string `json:"courtReadiness"`
			Recommendation string `json:"recommendation"`
		}
		if !s.readJSON(w, r, &req) {
			return
		}
		if req.EvidenceID == "" || req.Content == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "evidenceId and content are required", nil)
			return
		}
		if req.CourtReadiness == "" {
			req.CourtReadiness = "NEEDS_REVIEW"
		}
		if !courtReadiness[req.CourtReadiness] {
			httpx.WriteError(w, 400, "BAD_REQUEST", "courtReadiness must be READY, NOT_READY, or NEEDS_REVIEW", nil)
			return
		}
		out, err := s.fabric.AddLegalComment(r.Context(), req.EvidenceID, req.Content, req.CourtReadiness, req.Recommendation)
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		httpx.WriteData(w, 200, map[string]any{
			"evidenceId":     req.EvidenceID,
			"courtReadiness": req.CourtReadiness,
			"message":        "Legal comment added (PDC)",
			"result":         out,
			"addedAt":        s.now().UTC().Format(time.RFC3339),
		})
	})

	r.Get("/report/{evidenceId}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "evidenceId")
		raw, err := s.fabric.GetEvidence(r.Context(), id)
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		var ev report.Evidence
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Error("unexpected evidence payload", zap.String("evidence_id", id), zap.Error(err))
			httpx.WriteError(w, http.StatusBadGateway, "FABRIC_ERROR", "could not decode evidence record", nil)
			return
		}
		if ev.EvidenceID == "" {
			ev.EvidenceID = id
		}
		pdf, reportHash, err := report.AuditReport(ev, s.now())
		if err != nil {
			httpx.WriteError(w, 500, "REPORT_ERROR", err.Error(), nil)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ChainProof_Report_%s.pdf"`, id))
		w.Header().Set("X-Report-Hash", reportHash)
		w.WriteHeader(200)
		_, _ = w.Write(pdf)
	})

	r.Post("/export", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID string `json:"evidenceId"`
		}
		if !s.readJSON(w, r, &req) {
			return
		}
		if req.EvidenceID == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "evidenceId is required", nil)
			return
		}
		ctx := r.Context()
		out, err := s.fabric.ExportEvidence(ctx, req.EvidenceID)
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		if err := s.store.UpdateEvidenceStatus(ctx, req.EvidenceID, "EXPORTED"); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("evidence record status not updated", zap.String("evidence_id", req.EvidenceID), zap.Error(err))
		}
		s.bumpStats(ctx, store.StatExported, "")
		httpx.WriteData(w, 200, map[string]any{"evidenceId": req.EvidenceID, "export": out})
	})

	r.Get("/evidence", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := strings.ToUpper(strings.TrimSpace(q.Get("status")))
		if status == "" {
			status = "VERIFIED"
		}
		pageSize := 0
		if raw := q.Get("pageSize"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				httpx.WriteError(w, 400, "BAD_REQUEST", "pageSize must be a positive integer", nil)
				return
			}
			pageSize = n
		}
		out, err := s.fabric.QueryEvidenceByStatus(r.Context(), status, pageSize, q.Get("bookmark"))
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		httpx.WriteData(w, 200, out)
	})
}
