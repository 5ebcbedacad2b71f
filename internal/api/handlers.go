package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/openshelf/catalog-search/internal/models"
	"github.com/openshelf/catalog-search/internal/orchestrator"
	"github.com/openshelf/catalog-search/internal/search"
)

const maxRequestBodySize = 1 << 20 // 1 MB

type Handler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
}

func NewHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *Handler {
	return &Handler{
		orchestrator: orch,
		logger:       logger,
	}
}

// Search serves free text work searches. GET takes query parameters,
// POST takes the same request as JSON.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)

	req, err := h.parseSearchRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}
	req.JSONQuery = ""

	resp, err := h.orchestrator.Search(ctx, req)
	if err != nil {
		h.logger.Error("search failed",
			zap.String("request_id", requestID),
			zap.String("query", req.Query),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "search_error", "Search service temporarily unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Query serves structured searches: the POST body is the JSON query
// document, filter restrictions come from query parameters. A query
// the parser rejects is the caller's fault and comes back as a 400
// with the parser's message.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req := searchRequestFromParams(r)
	req.Query = ""
	req.JSONQuery = string(body)

	resp, err := h.orchestrator.Search(ctx, req)
	if err != nil {
		if search.IsQueryParseError(err) {
			h.writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		h.logger.Error("json query failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "search_error", "Search service temporarily unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Count reports the number of works a filter matches without
// fetching any.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := searchRequestFromParams(r)
	total, err := h.orchestrator.Count(ctx, req)
	if err != nil {
		h.logger.Error("count failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "search_error", "Search service temporarily unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"count": total})
}

// Featured serves one featured sample per requested lane, for grouped
// feeds.
func (h *Handler) Featured(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	libraryID, err := strconv.ParseInt(r.URL.Query().Get("library_id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Query parameter 'library_id' is required")
		return
	}

	var laneIDs []int64
	for _, part := range strings.Split(r.URL.Query().Get("lanes"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Query parameter 'lanes' must be a comma-separated list of lane ids")
			return
		}
		laneIDs = append(laneIDs, id)
	}
	if len(laneIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Query parameter 'lanes' is required")
		return
	}

	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			size = n
		}
	}

	feeds, err := h.orchestrator.FeaturedWorks(ctx, libraryID, laneIDs, size)
	if err != nil {
		h.logger.Error("featured feed failed",
			zap.Int64("library_id", libraryID),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "search_error", "Search service temporarily unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"lanes": feeds})
}

// Crawlable serves the most-recently-updated feed bulk consumers
// walk.
func (h *Handler) Crawlable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := searchRequestFromParams(r)
	resp, err := h.orchestrator.CrawlableFeed(ctx, req)
	if err != nil {
		h.logger.Error("crawlable feed failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "search_error", "Search service temporarily unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) parseSearchRequest(r *http.Request) (*models.SearchRequest, error) {
	if r.Method == http.MethodPost {
		var req models.SearchRequest
		limited := io.LimitReader(r.Body, maxRequestBodySize)
		if err := json.NewDecoder(limited).Decode(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}
	return searchRequestFromParams(r), nil
}

// searchRequestFromParams reads the filter and pagination parameters
// shared by every GET endpoint. Malformed numeric parameters are
// ignored rather than rejected, matching how feeds tolerate stale
// bookmarked URLs.
func searchRequestFromParams(r *http.Request) *models.SearchRequest {
	q := r.URL.Query()

	req := &models.SearchRequest{
		Query:   q.Get("q"),
		Fiction: q.Get("fiction"),
		Order:   q.Get("order"),
	}

	if v := q.Get("library_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.LibraryID = id
		}
	}
	if v := q.Get("lane_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.LaneID = id
		}
	}
	if v := q.Get("media"); v != "" {
		req.MediaTypes = strings.Split(v, ",")
	}
	if v := q.Get("language"); v != "" {
		req.Languages = strings.Split(v, ",")
	}
	if v := q.Get("audience"); v != "" {
		req.Audiences = strings.Split(v, ",")
	}
	if v := q.Get("min_age"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.MinAge = n
		}
	}
	if v := q.Get("max_age"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.MaxAge = n
		}
	}
	req.Ascending = q.Get("ascending") == "true"

	if v := q.Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.PageSize = n
		}
	}
	if v := q.Get("key"); v != "" {
		var key []any
		if err := json.Unmarshal([]byte(v), &key); err == nil {
			req.PaginationKey = key
		}
	}

	return req
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("writing json response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
