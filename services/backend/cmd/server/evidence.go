package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chainproof/pkg/evidencehash"
	"chainproof/pkg/httpx"
	"chainproof/pkg/logging"
	"chainproof/pkg/signature"
	"chainproof/services/backend/internal/auth"
	"chainproof/services/backend/internal/gatewayclient"
	"chainproof/services/backend/internal/ipfs"
	"chainproof/services/backend/internal/metadata"
	"chainproof/services/backend/internal/sepolia"
	"chainproof/services/backend/internal/store"
)

const whistleblowersOrg = "WhistleblowersOrg"

func (s *server) evidenceRoutes(r chi.Router) {
	r.Post("/submit", s.handleSubmit)
	r.Post("/metadata", s.handleInspectMetadata)
	r.Post("/assign", s.handleAssign)
	r.Post("/assign/legal", s.handleAssignLegal)
	r.Get("/assignments", s.handleAssignments)

	r.Get("/notifications/{publicKeyHash}", func(w http.ResponseWriter, r *http.Request) {
		out, err := s.fabric.GetNotifications(r.Context(), chi.URLParam(r, "publicKeyHash"))
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		httpx.WriteData(w, 200, out)
	})
	r.Post("/notifications/{notificationId}/read", func(w http.ResponseWriter, r *http.Request) {
		out, err := s.fabric.MarkNotificationRead(r.Context(), chi.URLParam(r, "notificationId"))
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		httpx.WriteData(w, 200, out)
	})
	r.Get("/reputation/{publicKeyHash}", func(w http.ResponseWriter, r *http.Request) {
		out, err := s.fabric.GetReputation(r.Context(), chi.URLParam(r, "publicKeyHash"))
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		httpx.WriteData(w, 200, out)
	})

	r.Get("/mine/{publicKeyHash}", func(w http.ResponseWriter, r *http.Request) {
		hashes, err := s.lookup.GetEvidenceForUser(r.Context(), chi.URLParam(r, "publicKeyHash"))
		if err != nil {
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
			return
		}
		httpx.WriteData(w, 200, map[string]any{"evidenceHashes": hashes, "count": len(hashes)})
	})
	r.Post("/ownership", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PublicKeyHash string `json:"publicKeyHash"`
			EvidenceID    string `json:"evidenceId"`
		}
		if !s.readJSON(w, r, &req) {
			return
		}
		if req.PublicKeyHash == "" || req.EvidenceID == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "publicKeyHash and evidenceId are required", nil)
			return
		}
		owned, err := s.lookup.VerifyOwnership(r.Context(), req.PublicKeyHash, req.EvidenceID)
		if err != nil {
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
			return
		}
		httpx.WriteData(w, 200, map[string]any{"evidenceId": req.EvidenceID, "owned": owned})
	})

	r.Get("/proxy/{cid}", func(w http.ResponseWriter, r *http.Request) {
		body, contentType, err := s.fetchCID(r.Context(), chi.URLParam(r, "cid"))
		if err != nil {
			s.logger.Error("all IPFS gateways failed", zap.Error(err))
			httpx.WriteError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to fetch IPFS content from all gateways",
				map[string]any{"reason": err.Error()})
			return
		}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(200)
		_, _ = w.Write(body)
	})

	r.Get("/{evidenceId}", func(w http.ResponseWriter, r *http.Request) {
		out, err := s.fabric.GetEvidence(r.Context(), chi.URLParam(r, "evidenceId"))
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		httpx.WriteData(w, 200, out)
	})
	r.Get("/{evidenceId}/history", func(w http.ResponseWriter, r *http.Request) {
		out, err := s.fabric.GetEvidenceHistory(r.Context(), chi.URLParam(r, "evidenceId"))
		if err != nil {
			s.writeGatewayError(w, err)
			return
		}
		httpx.WriteData(w, 200, out)
	})
	r.Get("/{evidenceId}/anchor", s.handleAnchorStatus)
}

// fetchCID reads through the Pinata gateway first and falls back to the
// public gateways.
func (s *server) fetchCID(ctx context.Context, cid string) ([]byte, string, error) {
	body, err := s.ipfs.Get(ctx, cid)
	if err == nil {
		return body, http.DetectContentType(body), nil
	}
	if errors.Is(err, ipfs.ErrTooLarge) {
		return nil, "", err
	}
	s.logger.Debug("pinata gateway miss", zap.String("cid", cid), zap.Error(err))
	return s.ipfs.FetchWithFallback(ctx, cid)
}

// handleAnchorStatus answers from the local anchor row and its cached
// receipt when both are present, then from the contract, and finally from
// the local row alone when Sepolia is not configured.
func (s *server) handleAnchorStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "evidenceId")
	out := map[string]any{"evidenceId": id, "anchored": false, "anchor": nil}

	rec, err := s.store.GetEvidenceAnchor(ctx, id)
	hasRecord := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	if hasRecord {
		out["record"] = rec
		if rec.SepoliaTxHash != "" {
			receipt, err := s.store.GetSepoliaCache(ctx, rec.SepoliaTxHash, s.now())
			switch {
			case err == nil:
				out["receipt"] = receipt
				out["anchored"] = true
				out["source"] = "cache"
				httpx.WriteData(w, 200, out)
				return
			case !errors.Is(err, store.ErrNotFound):
				s.logger.Warn("sepolia cache read failed", zap.String("evidence_id", id), zap.Error(err))
			}
		}
	}

	if !s.anchors.Configured() {
		if !hasRecord {
			s.writeSepoliaError(w, sepolia.ErrNotConfigured)
			return
		}
		out["anchored"] = rec.Status == "ANCHORED"
		out["source"] = "local"
		httpx.WriteData(w, 200, out)
		return
	}

	anchored, err := s.anchors.IsAnchored(ctx, id)
	if err != nil {
		s.writeSepoliaError(w, err)
		return
	}
	if anchored {
		a, err := s.anchors.GetAnchor(ctx, id)
		if err != nil {
			s.writeSepoliaError(w, err)
			return
		}
		out["anchor"] = a
	}
	out["anchored"] = anchored
	out["source"] = "chain"
	httpx.WriteData(w, 200, out)
}

// handleInspectMetadata reports what exiftool sees in a file without
// storing or stripping it.
func (s *server) handleInspectMetadata(w http.ResponseWriter, r *http.Request) {
	file, hdr, ok := s.uploadedFile(w, r)
	if !ok {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpx.WriteError(w, 400, "BAD_REQUEST", "could not read uploaded file", nil)
		return
	}
	fields, err := s.strip.Metadata(r.Context(), data, hdr.Filename)
	if err != nil {
		s.logger.Error("metadata read failed", zap.Error(err))
		httpx.WriteError(w, 500, "METADATA_ERROR", err.Error(), nil)
		return
	}
	groups := metadata.Identifying(fields).Groups()
	httpx.WriteData(w, 200, map[string]any{
		"fileName":           hdr.Filename,
		"metadata":           fields,
		"identifyingGroups":  groups,
		"hasIdentifyingData": len(groups) > 0,
	})
}

// uploadedFile parses the multipart body and opens its "file" part. On
// success the caller owns both the file and r.MultipartForm.
func (s *server) uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize+maxJSONBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "file exceeds the upload limit",
				map[string]any{"maxBytes": s.cfg.MaxUploadSize})
			return nil, nil, false
		}
		httpx.WriteError(w, 400, "BAD_REQUEST", "No file provided", nil)
		return nil, nil, false
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		httpx.WriteError(w, 400, "BAD_REQUEST", "No file provided", nil)
		return nil, nil, false
	}
	if hdr.Size > s.cfg.MaxUploadSize {
		file.Close()
		_ = r.MultipartForm.RemoveAll()
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "file exceeds the upload limit",
			map[string]any{"maxBytes": s.cfg.MaxUploadSize})
		return nil, nil, false
	}
	return file, hdr, true
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	file, hdr, ok := s.uploadedFile(w, r)
	if !ok {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	defer file.Close()
	pkh := strings.TrimSpace(r.FormValue("publicKeyHash"))
	sig := strings.TrimSpace(r.FormValue("signature"))
	if pkh == "" || sig == "" {
		httpx.WriteError(w, 400, "BAD_REQUEST", "publicKeyHash and signature are required", nil)
		return
	}
	category := strings.TrimSpace(r.FormValue("category"))
	if category == "" {
		category = "other"
	}
	description := r.FormValue("description")

	allowed, err := s.limiter.Allow(ctx, s.lookup.Key(pkh))
	if err != nil {
		s.logger.Warn("rate limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		httpx.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many submissions, try again later", nil)
		return
	}

	original, err := io.ReadAll(file)
	if err != nil {
		httpx.WriteError(w, 400, "BAD_REQUEST", "could not read uploaded file", nil)
		return
	}
	if jwk := strings.TrimSpace(r.FormValue("publicKey")); jwk != "" {
		if err := signature.VerifyOwnership(pkh, jwk, evidencehash.SHA256Hex(original), sig); err != nil {
			httpx.WriteError(w, 401, "INVALID_SIGNATURE", err.Error(), nil)
			return
		}
	}

	log := s.logger.With(zap.String("submitter", logging.ShortHash(pkh)))
	log.Info("processing evidence submission", zap.Int("bytes", len(original)))

	stripped, err := s.strip.Strip(ctx, original, hdr.Filename)
	if err != nil {
		log.Error("metadata stripping failed", zap.Error(err))
		httpx.WriteError(w, 500, "METADATA_ERROR", err.Error(), nil)
		return
	}
	clean := stripped.Data
	fileHash := evidencehash.SHA256Hex(clean)

	upload, err := s.ipfs.UploadFile(ctx, clean, hdr.Filename, map[string]string{
		"category":      category,
		"publicKeyHash": logging.ShortHash(pkh),
	})
	if err != nil {
		log.Error("IPFS upload failed", zap.Error(err))
		httpx.WriteError(w, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), nil)
		return
	}

	evidenceID := "EVD-" + strings.ToUpper(uuid.NewString()[:8])
	log = log.With(zap.String("evidence_id", evidenceID))

	var receipt *sepolia.AnchorReceipt
	if s.cfg.AnchorOnSubmit && s.anchors.CanWrite() {
		receipt, err = s.anchors.AnchorHash(ctx, evidenceID, fileHash)
		if err != nil {
			log.Warn("sepolia anchoring skipped", zap.Error(err))
			receipt = nil
		} else {
			s.cacheReceipt(ctx, receipt, fileHash)
		}
	}

	var assignee *store.User
	if u, err := s.store.PickRandomUser(ctx, auth.OrgVerifier, ""); err == nil {
		if err := s.store.IncrementAssigned(ctx, u.UserID); err != nil {
			log.Warn("could not bump assignee count", zap.Error(err))
		}
		assignee = &u
		log.Info("assigned to verifier", zap.String("verifier", u.Name))
	} else if errors.Is(err, store.ErrNotFound) {
		log.Warn("no verifiers found; evidence will be unassigned")
	} else {
		log.Error("assignment failed", zap.Error(err))
	}

	rec := store.EvidenceRecord{
		EvidenceID:   evidenceID,
		IPFSCID:      upload.CID,
		SubmittedBy:  pkh,
		Organization: whistleblowersOrg,
		Status:       "SUBMITTED",
		Description:  description,
	}
	if assignee != nil {
		rec.AssignedTo = assignee.UserID
	}
	if receipt != nil {
		rec.TransactionHash = receipt.TxHash
	}
	if err := s.store.CreateEvidenceRecord(ctx, rec); err != nil {
		log.Error("failed to save evidence record", zap.Error(err))
	}

	fileType := hdr.Header.Get("Content-Type")
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	if _, err := s.fabric.SubmitEvidence(ctx, gatewayclient.SubmitEvidenceRequest{
		EvidenceID:    evidenceID,
		IPFSCID:       upload.CID,
		FileHash:      fileHash,
		FileType:      fileType,
		FileSize:      int64(len(clean)),
		Category:      category,
		Description:   description,
		PublicKeyHash: pkh,
		Signature:     sig,
	}); err != nil {
		log.Error("chaincode submit failed", zap.Error(err))
		httpx.WriteError(w, http.StatusBadGateway, "FABRIC_ERROR", err.Error(),
			map[string]any{"evidenceId": evidenceID, "ipfsCid": upload.CID})
		return
	}
	if receipt != nil {
		if _, err := s.fabric.UpdatePolygonAnchor(ctx, evidenceID, receipt.TxHash); err != nil {
			log.Warn("could not record anchor on ledger", zap.Error(err))
		}
	}

	if err := s.lookup.AddEvidenceForUser(ctx, pkh, evidenceID); err != nil {
		log.Error("lookup update failed", zap.Error(err))
	}
	anchor := store.EvidenceAnchor{
		EvidenceID:  evidenceID,
		FileHash:    fileHash,
		IPFSCIDHash: evidencehash.HashStringSHA256Hex(upload.CID),
		AnchoredAt:  s.now().UTC(),
		Status:      "PENDING",
	}
	if receipt != nil {
		anchor.SepoliaTxHash = receipt.TxHash
		anchor.SepoliaBlockNumber = int64(receipt.BlockNumber)
		anchor.Status = "ANCHORED"
	}
	if err := s.store.SaveEvidenceAnchor(ctx, anchor); err != nil {
		log.Error("failed to save evidence anchor", zap.Error(err))
	}
	s.bumpStats(ctx, store.StatSubmissions, category)

	assignedTo := "Unassigned"
	message := "Evidence submitted but pending assignment (no verifiers available)."
	if assignee != nil {
		assignedTo = assignee.Name
		message = fmt.Sprintf("Evidence submitted and assigned to %s for verification.", assignee.Name)
	}
	removed := []string{}
	if stripped.HadIdentifyingData {
		removed = stripped.Removed.Groups()
	}
	httpx.WriteData(w, 201, map[string]any{
		"evidenceId":       evidenceID,
		"ipfsCid":          upload.CID,
		"fileHash":         fileHash,
		"fileType":         fileType,
		"fileSize":         upload.Size,
		"category":         category,
		"description":      description,
		"publicKeyHash":    pkh,
		"assignedTo":       assignedTo,
		"metadataStripped": stripped.HadIdentifyingData,
		"removedMetadata":  removed,
		"sepoliaAnchor":    receipt,
		"submittedAt":      s.now().UTC().Format(time.RFC3339),
		"message":          message,
	})
}

func (s *server) cacheReceipt(ctx context.Context, receipt *sepolia.AnchorReceipt, fileHash string) {
	err := s.store.PutSepoliaCache(ctx, store.SepoliaCacheEntry{
		TxHash:         receipt.TxHash,
		BlockNumber:    int64(receipt.BlockNumber),
		FileHashStored: fileHash,
		Timestamp:      receipt.Timestamp,
		GasUsed:        int64(receipt.GasUsed),
		CachedAt:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("sepolia cache write failed", zap.String("tx", receipt.TxHash), zap.Error(err))
	}
}

func (s *server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EvidenceID string `json:"evidenceId"`
		UserID     string `json:"userId"`
		TargetOrg  string `json:"targetOrg"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.EvidenceID == "" {
		httpx.WriteError(w, 400, "BAD_REQUEST", "Evidence ID is required", nil)
		return
	}
	var u store.User
	var err error
	if req.UserID != "" {
		u, err = s.store.GetUserByID(r.Context(), req.UserID)
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, 404, "NOT_FOUND", "Target user not found", nil)
			return
		}
	} else {
		org := req.TargetOrg
		if org == "" {
			org = auth.OrgVerifier
		}
		u, err = s.store.PickRandomUser(r.Context(), org, "")
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, 404, "NOT_FOUND", fmt.Sprintf("No users found in %s. Cannot assign.", org), nil)
			return
		}
	}
	if err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	if err := s.store.AssignEvidence(r.Context(), req.EvidenceID, u.UserID, u.Organization); err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	if err := s.store.IncrementAssigned(r.Context(), u.UserID); err != nil {
		s.logger.Warn("could not bump assignee count", zap.Error(err))
	}
	httpx.WriteData(w, 200, map[string]any{
		"evidenceId":   req.EvidenceID,
		"assignedTo":   u.Name,
		"organization": u.Organization,
		"message":      "Evidence assigned to " + u.Name,
	})
}

func (s *server) handleAssignLegal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EvidenceID string `json:"evidenceId"`
		LegalRole  string `json:"legalRole"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.EvidenceID == "" || req.LegalRole == "" {
		httpx.WriteError(w, 400, "BAD_REQUEST", "Evidence ID and Legal Role are required", nil)
		return
	}
	if !auth.ValidLegalRole(req.LegalRole) {
		httpx.WriteError(w, 400, "BAD_REQUEST", auth.ErrInvalidLegalRole.Error(), nil)
		return
	}
	if err := s.store.ForwardToLegal(r.Context(), req.EvidenceID, req.LegalRole); err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	s.logger.Info("evidence forwarded to legal",
		zap.String("evidence_id", req.EvidenceID), zap.String("legal_role", req.LegalRole))
	httpx.WriteData(w, 200, map[string]any{
		"evidenceId":      req.EvidenceID,
		"targetLegalRole": req.LegalRole,
		"message":         "Evidence forwarded to " + req.LegalRole,
	})
}

func (s *server) handleAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListAssignments(r.Context())
	if err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	byID := make(map[string]store.Assignment, len(list))
	for _, a := range list {
		byID[a.EvidenceID] = a
	}
	httpx.WriteData(w, 200, byID)
}
