package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

const (
	defaultCacheLimit = 100
	maxCacheLimit     = 1000
	listTimeout       = 5 * time.Second
)

// listCache handles GET /v1/cache?namespace=&expired=&limit=&offset=. It
// returns {"entries": [...], "total": n}.
func (s *Server) listCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "response cache unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCacheLimit, maxCacheLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	expiredOnly, err := parseOptionalBool(r.URL.Query().Get("expired"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expired")
		return
	}
	namespace := strings.TrimSpace(r.URL.Query().Get("namespace"))

	ctx, cancel := context.WithTimeout(r.Context(), listTimeout)
	defer cancel()
	entries, err := s.cache.List(ctx)
	if err != nil {
		s.logger.Error("list cache failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list cache")
		return
	}

	filtered := make([]crawler.CacheEntryInfo, 0, len(entries))
	for _, e := range entries {
		if namespace != "" && e.Namespace != namespace {
			continue
		}
		if expiredOnly != nil && e.Expired != *expiredOnly {
			continue
		}
		filtered = append(filtered, e)
	}
	total := len(filtered)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": filtered[offset:end],
		"total":   total,
	})
}

// latestProgress handles GET /v1/progress with the most recent run.
func (s *Server) latestProgress(w http.ResponseWriter, _ *http.Request) {
	if s.progress == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracking unavailable")
		return
	}
	snap, ok := s.progress.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": snap})
}

// runProgress handles GET /v1/progress/{run_id}.
func (s *Server) runProgress(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracking unavailable")
		return
	}
	runID := chi.URLParam(r, "run_id")
	snap, ok := s.progress.Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": snap})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseOptionalBool(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
