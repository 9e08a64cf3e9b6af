package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/WorkLog/internal/export"
	"github.com/BTreeMap/WorkLog/internal/flow"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/roles"
	"github.com/BTreeMap/WorkLog/internal/store"
)

// maxReportLimit caps GET /reports.
const maxReportLimit = 500

// TurnRequest is the body of POST /turn.
type TurnRequest struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Selection string `json:"selection,omitempty"`
}

// ExportRequest is the body of POST /export. An empty month means the current one.
type ExportRequest struct {
	Month string `json:"month"`
}

// Health is the result of GET /health.
type Health struct {
	ActiveSessions int    `json:"active_sessions"`
	Transport      string `json:"transport"`
}

func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	userID := roles.Canonical(req.UserID)
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: user_id"))
		return
	}

	prompt, err := s.turns.HandleTurn(r.Context(), userID, flow.Input{Text: req.Text, Selection: req.Selection})
	if err != nil {
		slog.Error("Server.turnHandler: turn failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError,
			models.APIResponse{Status: models.APIStatusError, Message: "Turn failed", Result: prompt})
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(prompt))
}

func (s *Server) reportsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	query := store.ReportQuery{
		UserID: roles.Canonical(q.Get("user_id")),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Limit:  100,
	}
	for name, v := range map[string]string{"from": query.From, "to": query.To} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, v); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid "+name+" date, expected YYYY-MM-DD"))
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit"))
			return
		}
		query.Limit = min(n, maxReportLimit)
	}

	reports, err := s.reports.ListWorkReports(r.Context(), query)
	if err != nil {
		slog.Error("Server.reportsHandler: failed to list reports", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list reports"))
		return
	}
	if reports == nil {
		reports = []models.WorkReport{}
	}
	slog.Debug("Server.reportsHandler: reports listed", "count", len(reports), "userID", query.UserID)
	writeJSONResponse(w, http.StatusOK, models.Success(reports))
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	month := strings.TrimSpace(req.Month)
	if month == "" {
		month = s.now().In(s.loc).Format(export.MonthLayout)
	}
	if _, err := time.Parse(export.MonthLayout, month); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid month, expected YYYY-MM"))
		return
	}
	if err := s.sweeps.RequestSweep(r.Context(), month); err != nil {
		slog.Error("Server.exportHandler: failed to request sweep", "error", err, "month", month)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to queue export"))
		return
	}
	slog.Info("Server.exportHandler: export queued", "month", month)
	writeJSONResponse(w, http.StatusAccepted, models.SuccessWithMessage("Export queued", ExportRequest{Month: month}))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(Health{
		ActiveSessions: s.sessions.ActiveCount(),
		Transport:      s.transport,
	}))
}
