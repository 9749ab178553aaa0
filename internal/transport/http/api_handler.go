package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gamification-service/internal/app"
	"gamification-service/internal/domain"
)

type APIHandler struct {
	service *app.GamificationService
}

func NewAPIHandler(service *app.GamificationService) *APIHandler {
	return &APIHandler{service: service}
}

type scorePayload struct {
	ContentID string   `json:"contentId"`
	Score     *float64 `json:"score"`
	MaxScore  *float64 `json:"maxScore"`
}

func (p scorePayload) submission() (domain.ScoreSubmission, error) {
	if p.Score == nil || p.MaxScore == nil {
		return domain.ScoreSubmission{}, fmt.Errorf("%w: score and maxScore are required", domain.ErrInvalidSubmission)
	}
	return domain.ScoreSubmission{ContentID: p.ContentID, Score: *p.Score, MaxScore: *p.MaxScore}, nil
}

func (h *APIHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var payload scorePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed body", domain.ErrInvalidSubmission))
		return
	}
	sub, err := payload.submission()
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.service.SubmitScore(r.Context(), chi.URLParam(r, "userID"), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ProvisionUser(w http.ResponseWriter, r *http.Request) {
	agg, err := h.service.ProvisionUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, agg)
}

func (h *APIHandler) Gamification(w http.ResponseWriter, r *http.Request) {
	agg, err := h.service.Gamification(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (h *APIHandler) Progress(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Progress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.ProgressRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *APIHandler) ListBadges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Badges())
}

func (h *APIHandler) ListContents(w http.ResponseWriter, r *http.Request) {
	var contentType domain.ContentType
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, err := domain.ParseContentType(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		contentType = t
	}
	contents, err := h.service.ListContents(r.Context(), contentType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contents)
}

func (h *APIHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := app.LeaderboardQuery{SortBy: domain.LeaderboardSort(r.URL.Query().Get("sortBy"))}
	if raw := r.URL.Query().Get("contentType"); raw != "" {
		t, err := domain.ParseContentType(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		q.ContentType = t
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: limit must be a number", domain.ErrInvalidQuery))
			return
		}
		q.Limit = limit
	}

	lb, err := h.service.Leaderboard(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if lb.Entries == nil {
		lb.Entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, lb)
}
