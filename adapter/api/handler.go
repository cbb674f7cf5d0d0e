package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	choresServices "github.com/choreminder/choreminder/internal/chores/application/services"
	notifServices "github.com/choreminder/choreminder/internal/notifications/application/services"
	notifDomain "github.com/choreminder/choreminder/internal/notifications/domain"
)

// Handler handles scheduling and notification API requests.
type Handler struct {
	generator  *choresServices.InstanceGenerator
	conflicts  *choresServices.ConflictDetector
	dispatcher *notifServices.Dispatcher
	rules      notifDomain.RuleRepository
	schedules  notifDomain.ScheduleRepository
	horizon    int
	logger     *slog.Logger
}

// HandlerConfig holds dependencies for the API handler.
type HandlerConfig struct {
	Generator    *choresServices.InstanceGenerator
	Conflicts    *choresServices.ConflictDetector
	Dispatcher   *notifServices.Dispatcher
	RuleRepo     notifDomain.RuleRepository
	ScheduleRepo notifDomain.ScheduleRepository
	HorizonDays  int
	Logger       *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HorizonDays < 1 {
		cfg.HorizonDays = 14
	}
	return &Handler{
		generator:  cfg.Generator,
		conflicts:  cfg.Conflicts,
		dispatcher: cfg.Dispatcher,
		rules:      cfg.RuleRepo,
		schedules:  cfg.ScheduleRepo,
		horizon:    cfg.HorizonDays,
		logger:     cfg.Logger,
	}
}

// RunSweep handles POST /api/v1/sweep
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dispatcher.RunSweep(r.Context())
	if err != nil {
		h.logger.Error("sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GenerateAll handles POST /api/v1/generate
func (h *Handler) GenerateAll(w http.ResponseWriter, r *http.Request) {
	created, err := h.generator.GenerateAll(r.Context(), h.parseHorizon(r))
	if err != nil {
		h.logger.Error("generation run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"instances_created": created})
}

// GenerateForTask handles POST /api/v1/tasks/{taskID}/generate
func (h *Handler) GenerateForTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task ID")
		return
	}

	created, err := h.generator.GenerateUpcoming(r.Context(), taskID, h.parseHorizon(r))
	if err != nil {
		h.logger.Error("generation failed", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "Generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"instances_created": created})
}

// MemberConflicts handles GET /api/v1/members/{memberID}/conflicts
func (h *Handler) MemberConflicts(w http.ResponseWriter, r *http.Request) {
	memberID, err := uuid.Parse(r.PathValue("memberID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid member ID")
		return
	}

	start := parseDateParam(r, "start", time.Now().UTC())
	end := parseDateParam(r, "end", start.AddDate(0, 0, 7))
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "End must be after start")
		return
	}

	conflicts, err := h.conflicts.FindConflicts(r.Context(), memberID, start, end)
	if err != nil {
		h.logger.Error("conflict scan failed", "member_id", memberID, "error", err)
		writeError(w, http.StatusInternalServerError, "Conflict scan failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

// OptimizeHousehold handles GET /api/v1/households/{householdID}/optimize
func (h *Handler) OptimizeHousehold(w http.ResponseWriter, r *http.Request) {
	householdID, err := uuid.Parse(r.PathValue("householdID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid household ID")
		return
	}

	date := parseDateParam(r, "date", time.Now().UTC())
	suggestions, err := h.conflicts.OptimizeHousehold(r.Context(), householdID, date)
	if err != nil {
		h.logger.Error("optimization failed", "household_id", householdID, "error", err)
		writeError(w, http.StatusInternalServerError, "Optimization failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// ListRules handles GET /api/v1/households/{householdID}/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	householdID, err := uuid.Parse(r.PathValue("householdID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid household ID")
		return
	}

	rules, err := h.rules.FindByHousehold(r.Context(), householdID)
	if err != nil {
		h.logger.Error("failed to list rules", "household_id", householdID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// BootstrapRules handles POST /api/v1/households/{householdID}/rules/defaults
func (h *Handler) BootstrapRules(w http.ResponseWriter, r *http.Request) {
	householdID, err := uuid.Parse(r.PathValue("householdID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid household ID")
		return
	}

	created, err := notifServices.BootstrapDefaultRules(r.Context(), h.rules, householdID)
	if err != nil {
		h.logger.Error("failed to bootstrap rules", "household_id", householdID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to seed default rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules_created": len(created)})
}

// ListFailed handles GET /api/v1/households/{householdID}/notifications/failed
func (h *Handler) ListFailed(w http.ResponseWriter, r *http.Request) {
	h.listSchedules(w, r, h.schedules.ListFailed)
}

// ListEscalated handles GET /api/v1/households/{householdID}/notifications/escalated
func (h *Handler) ListEscalated(w http.ResponseWriter, r *http.Request) {
	h.listSchedules(w, r, h.schedules.ListEscalated)
}

func (h *Handler) listSchedules(
	w http.ResponseWriter,
	r *http.Request,
	list func(ctx context.Context, householdID uuid.UUID, limit int) ([]*notifDomain.Schedule, error),
) {
	householdID, err := uuid.Parse(r.PathValue("householdID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid household ID")
		return
	}

	limit := parseIntParam(r, "limit", 50)
	schedules, err := list(r.Context(), householdID, limit)
	if err != nil {
		if errors.Is(err, notifDomain.ErrScheduleNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"schedules": []any{}})
			return
		}
		h.logger.Error("failed to list schedules", "household_id", householdID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": schedules})
}

func (h *Handler) parseHorizon(r *http.Request) int {
	horizon := parseIntParam(r, "horizon_days", h.horizon)
	if horizon < 1 {
		horizon = h.horizon
	}
	return horizon
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func parseDateParam(r *http.Request, name string, fallback time.Time) time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return fallback
	}
	return t
}
