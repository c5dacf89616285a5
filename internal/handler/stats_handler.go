package handler

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/SWCCGArena/rando/internal/repository"
)

// defaultGamesLimit caps the recent-games listing when the client does
// not ask for a specific count.
const defaultGamesLimit = 25

// StatsHandler serves the persisted stats: site rollups, game history,
// leaderboards, and per-player records.
type StatsHandler struct {
	repo repository.StatsRepository
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(repo repository.StatsRepository) *StatsHandler {
	return &StatsHandler{repo: repo}
}

// Overall handles GET /api/v1/stats
func (h *StatsHandler) Overall(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.OverallStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Overall stats query failed")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RecentGames handles GET /api/v1/games?limit=N
func (h *StatsHandler) RecentGames(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, defaultGamesLimit)
	if !ok {
		return
	}
	games, err := h.repo.RecentGames(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Recent games query failed")
		writeError(w, http.StatusInternalServerError, "failed to load games")
		return
	}
	if games == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// TopPlayers handles GET /api/v1/players?order_by=ast_score|wins|games&limit=N
func (h *StatsHandler) TopPlayers(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, 10)
	if !ok {
		return
	}
	players, err := h.repo.TopPlayers(r.Context(), r.URL.Query().Get("order_by"), limit)
	if err != nil {
		log.Error().Err(err).Msg("Top players query failed")
		writeError(w, http.StatusInternalServerError, "failed to load players")
		return
	}
	if players == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, players)
}

// Player handles GET /api/v1/players/{name}
func (h *StatsHandler) Player(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	stats, err := h.repo.PlayerStats(r.Context(), name)
	if err != nil {
		log.Error().Err(err).Str("player", name).Msg("Player stats query failed")
		writeError(w, http.StatusInternalServerError, "failed to load player")
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// PlayerAchievements handles GET /api/v1/players/{name}/achievements
func (h *StatsHandler) PlayerAchievements(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	achievements, err := h.repo.PlayerAchievements(r.Context(), name)
	if err != nil {
		log.Error().Err(err).Str("player", name).Msg("Achievements query failed")
		writeError(w, http.StatusInternalServerError, "failed to load achievements")
		return
	}
	if achievements == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, achievements)
}

// GlobalRecord handles GET /api/v1/records/{type}
func (h *StatsHandler) GlobalRecord(w http.ResponseWriter, r *http.Request) {
	statType := r.PathValue("type")
	record, err := h.repo.GlobalRecord(r.Context(), statType)
	if err != nil {
		log.Error().Err(err).Str("statType", statType).Msg("Global record query failed")
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "no record for that stat")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func limitParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}
