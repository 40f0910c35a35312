package main

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chainproof/pkg/httpx"
	"chainproof/pkg/logging"
	"chainproof/services/backend/internal/auth"
	"chainproof/services/backend/internal/store"
)

func writeMessage(w http.ResponseWriter, status int, message string, data any) {
	httpx.WriteJSON(w, status, map[string]any{
		"request_id": httpx.NewRequestID(),
		"success":    true,
		"message":    message,
		"data":       data,
	})
}

func (s *server) authRoutes(r chi.Router) {
	r.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name         string `json:"name"`
			Aadhaar      string `json:"aadhaar"`
			Organization string `json:"organization"`
			Role         string `json:"role"`
			LegalRole    string `json:"legalRole"`
		}
		if !s.readJSON(w, r, &req) {
			return
		}
		u, err := s.auth.Register(r.Context(), auth.RegisterInput{
			Name:         req.Name,
			Aadhaar:      req.Aadhaar,
			Organization: req.Organization,
			Role:         req.Role,
			LegalRole:    req.LegalRole,
		})
		switch {
		case err == nil:
		case errors.Is(err, store.ErrUserExists):
			httpx.WriteError(w, 409, "CONFLICT", err.Error(), nil)
			return
		case errors.Is(err, auth.ErrMissingFields), errors.Is(err, auth.ErrInvalidOrg),
			errors.Is(err, auth.ErrInvalidAadhaar), errors.Is(err, auth.ErrInvalidLegalRole),
			errors.Is(err, auth.ErrInvalidRole):
			httpx.WriteError(w, 400, "BAD_REQUEST", err.Error(), nil)
			return
		default:
			s.logger.Error("registration failed", zap.Error(err))
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
			return
		}
		s.logger.Info("user registered",
			zap.String("organization", u.Organization), zap.String("public_key_hash", logging.ShortHash(u.PublicKeyHash)))
		data := map[string]any{
			"name":          u.Name,
			"publicKeyHash": u.PublicKeyHash,
			"organization":  u.Organization,
			"role":          u.Role,
			"loginKey":      auth.LoginKey(u.PublicKeyHash),
		}
		if u.LegalRole != "" {
			data["legalRole"] = u.LegalRole
		}
		writeMessage(w, 201, "Registration successful", data)
	})

	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name    string `json:"name"`
			Aadhaar string `json:"aadhaar"`
		}
		if !s.readJSON(w, r, &req) {
			return
		}
		if req.Name == "" || req.Aadhaar == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "Name and Aadhaar are required", nil)
			return
		}
		u, err := s.auth.Login(r.Context(), req.Name, req.Aadhaar)
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrInvalidCredentials),
			errors.Is(err, auth.ErrAccountInactive):
			httpx.WriteError(w, 401, "UNAUTHORIZED", err.Error(), nil)
			return
		default:
			s.logger.Error("login failed", zap.Error(err))
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
			return
		}
		writeMessage(w, 200, "Login successful", auth.Safe(u))
	})

	r.Get("/me/{publicKeyHash}", func(w http.ResponseWriter, r *http.Request) {
		u, err := s.store.GetUserByPublicKeyHash(r.Context(), chi.URLParam(r, "publicKeyHash"))
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, 404, "NOT_FOUND", auth.ErrUserNotFound.Error(), nil)
			return
		}
		if err != nil {
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
			return
		}
		httpx.WriteData(w, 200, auth.Safe(u))
	})

	r.Get("/users/{organization}", func(w http.ResponseWriter, r *http.Request) {
		org := chi.URLParam(r, "organization")
		if !auth.ValidOrg(org) {
			httpx.WriteError(w, 400, "BAD_REQUEST", "Invalid organization", nil)
			return
		}
		users, err := s.store.ListUsersByOrg(r.Context(), org, true)
		if err != nil {
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
			return
		}
		out := make([]auth.SafeUser, 0, len(users))
		for _, u := range users {
			out = append(out, auth.Safe(u))
		}
		httpx.WriteData(w, 200, out)
	})

	r.Get("/verify/{publicKeyHash}", func(w http.ResponseWriter, r *http.Request) {
		u, err := s.store.GetUserByPublicKeyHash(r.Context(), chi.URLParam(r, "publicKeyHash"))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
			return
		}
		if err != nil || u.Status != "active" {
			httpx.WriteData(w, 200, map[string]any{"valid": false, "organization": nil})
			return
		}
		httpx.WriteData(w, 200, map[string]any{"valid": true, "organization": u.Organization})
	})
}
