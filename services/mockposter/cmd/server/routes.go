package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"chainproof/pkg/httpx"
)

// poster simulates posting to X. Nothing leaves the process.
type poster struct {
	delay     time.Duration
	publicDir string
	logger    *zap.Logger
	now       func() time.Time
}

func (p *poster) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(p.logger))

	r.Post("/post-to-x", p.handlePost)
	if p.publicDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(p.publicDir)))
	} else {
		r.NotFound(httpx.NotFound)
	}
	return r
}

func (p *poster) handlePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		httpx.WriteError(w, 400, "BAD_REQUEST", "No message provided", nil)
		return
	}
	now := p.now().UTC()
	postID := "mock-" + strconv.FormatInt(now.UnixMilli(), 10)
	p.logger.Info("mock post to X",
		zap.String("post_id", postID),
		zap.Time("timestamp", now),
		zap.String("message", req.Message),
	)

	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-r.Context().Done():
			p.logger.Info("client went away before the mock post completed", zap.String("post_id", postID))
			return
		}
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"success":    true,
		"mockPostId": postID,
		"message":    req.Message,
		"timestamp":  now.Format("2006-01-02T15:04:05.000Z07:00"),
	})
}
