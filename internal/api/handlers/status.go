package handlers

import (
	"net/http"
	"strconv"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/runner"
	"github.com/wonny/factorloop/internal/scheduler"
	"github.com/wonny/factorloop/pkg/logger"
)

// Loop is the read side of runner.Runner.
type Loop interface {
	Status() runner.Status
	Ranking() (contracts.Ranking, contracts.RegimeState)
	Runtime() runner.RuntimeState
}

// JobStats reports scheduled jobs (scheduler.Scheduler).
type JobStats interface {
	Stats() []scheduler.JobStats
}

// StatusHandler serves the loop's read-only views.
// ⭐ SSOT: 상태 조회 API 핸들러는 이 구조체에서만
type StatusHandler struct {
	loop   Loop
	jobs   JobStats
	logger *logger.Logger
}

// NewStatusHandler creates a new status handler. jobs may be nil.
func NewStatusHandler(loop Loop, jobs JobStats, log *logger.Logger) *StatusHandler {
	return &StatusHandler{loop: loop, jobs: jobs, logger: log}
}

// GetStatus returns the last cycle status
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.loop.Status())
}

// RankingResponse is the last ranking with the regime it was scored under.
type RankingResponse struct {
	Regime  contracts.RegimeState `json:"regime"`
	Count   int                   `json:"count"`
	Ranking contracts.Ranking     `json:"ranking"`
}

// GetRanking returns the last ranking
// GET /api/ranking?top=10
func (h *StatusHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	ranking, regime := h.loop.Ranking()

	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "top must be a non-negative integer")
			return
		}
		if n < len(ranking) {
			ranking = ranking[:n]
		}
	}
	if ranking == nil {
		ranking = contracts.Ranking{}
	}

	respondJSON(w, http.StatusOK, RankingResponse{Regime: regime, Count: len(ranking), Ranking: ranking})
}

// StateResponse is the persisted part of the runtime state.
type StateResponse struct {
	Date    string                    `json:"date"`
	Session int                       `json:"session"`
	Managed []string                  `json:"managed"`
	Daily   *contracts.DailyRiskState `json:"daily,omitempty"`
}

// GetState returns the managed set and the daily risk state
// GET /api/state
func (h *StatusHandler) GetState(w http.ResponseWriter, r *http.Request) {
	rt := h.loop.Runtime()
	respondJSON(w, http.StatusOK, StateResponse{
		Date:    rt.Date,
		Session: rt.Session.Count,
		Managed: rt.Managed.IDs(),
		Daily:   rt.Daily,
	})
}

// GetJobs returns scheduled job statistics
// GET /api/jobs
func (h *StatusHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, http.StatusNotFound, "scheduler not running")
		return
	}
	respondJSON(w, http.StatusOK, h.jobs.Stats())
}
