package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alfredivory/modelbench/internal/leaderboard"
	"github.com/alfredivory/modelbench/internal/report"
	"github.com/alfredivory/modelbench/internal/scenario"
	"github.com/alfredivory/modelbench/internal/store"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListScenarios(c *gin.Context) {
	dir := "scenarios"
	if s.config != nil && strings.TrimSpace(s.config.ScenariosDir) != "" {
		dir = s.config.ScenariosDir
	}

	scenarios, err := scenario.LoadScenarios(dir)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	type scenarioView struct {
		ID     string               `json:"id"`
		Name   string               `json:"name"`
		Type   scenario.ScoringType `json:"type"`
		Checks int                  `json:"checks"`
	}
	out := make([]scenarioView, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, scenarioView{
			ID:     sc.ID,
			Name:   sc.Label(),
			Type:   sc.Evaluation.Type,
			Checks: len(sc.Evaluation.Checks),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListModels(c *gin.Context) {
	path := "models.yaml"
	if s.config != nil && strings.TrimSpace(s.config.ModelsFile) != "" {
		path = s.config.ModelsFile
	}

	models, err := scenario.LoadModels(path)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, models)
}

func (s *Server) handleLatestReport(c *gin.Context) {
	dir := "results"
	if s.config != nil && strings.TrimSpace(s.config.ResultsDir) != "" {
		dir = s.config.ResultsDir
	}

	rep, err := report.Load(filepath.Join(dir, report.LatestName))
	if err != nil {
		respondError(c, http.StatusNotFound, fmt.Errorf("no report available: %w", err))
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}

	filter := store.RunFilter{
		Model:    strings.TrimSpace(c.Query("model")),
		Scenario: strings.TrimSpace(c.Query("scenario")),
		Limit:    parseLimit(c.Query("limit")),
	}
	runs, err := s.store.ListRuns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return
	}

	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Errorf("run %q not found", id))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleGetRunResults(c *gin.Context) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return
	}

	results, err := s.store.GetResults(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []*store.ResultRecord{}
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	if s.lbStore == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("leaderboard unavailable"))
		return
	}

	entries, err := s.lbStore.Standings(c.Request.Context(), parseLimit(c.Query("limit")))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleModelTrend(c *gin.Context) {
	if s.lbStore == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("leaderboard unavailable"))
		return
	}

	model := strings.TrimSpace(c.Query("model"))
	if model == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing model parameter"))
		return
	}

	entries, err := s.lbStore.ModelTrend(c.Request.Context(), model, parseLimit(c.Query("limit")))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func respondError(c *gin.Context, status int, err error) {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}
