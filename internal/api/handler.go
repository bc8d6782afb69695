package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/loyaltylab/magpie/internal/decision"
	"github.com/loyaltylab/magpie/internal/domain"
	"github.com/loyaltylab/magpie/internal/rules"
	"github.com/loyaltylab/magpie/internal/usage"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	validator *rules.Validator
	usage     *usage.Service
	processor *decision.Processor
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, validator *rules.Validator, usageSvc *usage.Service, processor *decision.Processor, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		validator: validator,
		usage:     usageSvc,
		processor: processor,
		version:   version,
	}
}

// EventRequest is the request body for POST /events.
type EventRequest struct {
	Event    domain.Event             `json:"event"`
	Snapshot *domain.CustomerSnapshot `json:"snapshot,omitempty"`

	// Async hands the event to the worker pipeline instead of evaluating
	// inline. Requires an event bus.
	Async bool `json:"async,omitempty"`
}

// EvaluateResponse is the response for a synchronous POST /events.
type EvaluateResponse struct {
	EvaluationID string               `json:"evaluationId"`
	EventID      string               `json:"eventId"`
	Status       string               `json:"status"`
	Results      []domain.MatchResult `json:"results"`
	Plans        []domain.ActionPlan  `json:"plans,omitempty"`
	Metadata     struct {
		TraceID  string `json:"traceId"`
		IngestMs int64  `json:"ingestMs"`
		TotalMs  int64  `json:"totalMs"`
		Version  string `json:"version"`
	} `json:"metadata"`
}

// IngestEvent handles POST /events requests. The default is synchronous
// evaluation; async mode publishes to the worker pipeline and returns 202.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	programID := GetProgramID(ctx)
	traceID := GetTraceID(ctx)

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Event.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "event.customerId is required",
		})
		return
	}
	if req.Event.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "event.type is required",
		})
		return
	}

	if req.Event.ID == "" {
		req.Event.ID = uuid.New().String()
	}
	req.Event.ProgramID = programID
	if req.Event.Timestamp.IsZero() {
		req.Event.Timestamp = time.Now().UTC()
	}

	// Async mode: hand off to the worker pipeline
	if req.Async {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "event bus not available",
			})
			return
		}

		payload, _ := json.Marshal(map[string]any{
			"traceId":  traceID,
			"event":    req.Event,
			"snapshot": req.Snapshot,
		})
		if err := h.bus.Publish(ctx, programID, domain.TopicEventReceived, payload); err != nil {
			slog.Error("failed to publish event", "event_id", req.Event.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to publish event",
			})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"eventId": req.Event.ID,
			"traceId": traceID,
			"status":  "accepted",
		})
		return
	}

	snap := req.Snapshot
	if snap == nil && h.cache != nil {
		cached, err := h.cache.GetSnapshot(ctx, programID, req.Event.CustomerID)
		if err != nil {
			slog.Warn("snapshot lookup failed", "customer_id", req.Event.CustomerID, "error", err)
		}
		snap = cached
	}
	if snap == nil {
		snap = &domain.CustomerSnapshot{CustomerID: req.Event.CustomerID}
	}

	ingestMs := time.Since(start).Milliseconds()

	if h.repo != nil {
		if err := h.repo.SaveEvent(ctx, programID, &req.Event); err != nil {
			slog.Error("failed to save event", "event_id", req.Event.ID, "error", err)
		}
	}

	results, err := h.engine.EvaluateAll(ctx, programID, &req.Event, snap)
	if err != nil {
		slog.Error("rule evaluation failed", "event_id", req.Event.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rule evaluation failed",
		})
		return
	}

	if h.usage != nil {
		limits := h.ruleLimits(programID)
		if err := h.usage.CommitMatches(ctx, programID, req.Event.CustomerID, limits, results); err != nil {
			slog.Error("usage commit failed", "event_id", req.Event.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "usage commit failed",
			})
			return
		}
	}

	evaluation := h.processor.Process(ctx, &decision.Input{
		ProgramID:  programID,
		EventID:    req.Event.ID,
		CustomerID: req.Event.CustomerID,
		TraceID:    traceID,
		Results:    results,
		StartTime:  start,
	})

	if h.repo != nil {
		if err := h.repo.SaveEvaluation(ctx, programID, evaluation); err != nil {
			slog.Error("failed to save evaluation", "event_id", req.Event.ID, "error", err)
		}
	}

	if h.bus != nil && decision.ShouldDispatch(evaluation) {
		planPayload, _ := json.Marshal(evaluation.Plans)
		if err := h.bus.Publish(ctx, programID, domain.TopicActionDispatch, planPayload); err != nil {
			slog.Error("failed to publish action plans", "event_id", req.Event.ID, "error", err)
		}
	}

	resp := EvaluateResponse{
		EvaluationID: evaluation.ID,
		EventID:      req.Event.ID,
		Status:       evaluation.Status,
		Results:      evaluation.Results,
		Plans:        evaluation.Plans,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.IngestMs = ingestMs
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// ruleLimits maps loaded rule IDs to their per-customer usage limits.
func (h *Handler) ruleLimits(programID string) map[string]int {
	loaded := h.engine.LoadedRules(programID)
	limits := make(map[string]int, len(loaded))
	for _, rule := range loaded {
		limits[rule.ID] = rule.Conditions.UsageLimitPerCustomer
	}
	return limits
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetEvent retrieves a stored event by ID.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)
	eventID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	ev, err := h.repo.GetEvent(ctx, programID, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "event not found",
			})
			return
		}
		slog.Error("failed to get event", "id", eventID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get event",
		})
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)
	evalID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	eval, err := h.repo.GetEvaluation(ctx, programID, evalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "evaluation not found",
			})
			return
		}
		slog.Error("failed to get evaluation", "id", evalID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get evaluation",
		})
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// ListRules returns all stored rules for the program.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	ruleList, err := h.repo.ListRules(ctx, programID)
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  ruleList,
		"count":  len(ruleList),
		"loaded": h.engine.RulesCount(programID),
	})
}

// GetRule retrieves a rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rule, err := h.repo.GetRule(ctx, programID, ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRule creates a new rule. Rules are always created as drafts; the
// document may carry warnings, and even blocking issues, until promotion.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)

	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule document: " + err.Error(),
		})
		return
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	rule.Enabled = false

	issues := h.validator.Check(&rule)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.SaveRule(ctx, programID, &rule); err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name, "program_id", programID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":   rule,
		"issues": issuesOrEmpty(issues),
	})
}

// UpdateRule replaces a rule document. Writes are last-write-wins; a live
// rule that would become invalid is rejected.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)
	ruleID := chi.URLParam(r, "id")

	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule document: " + err.Error(),
		})
		return
	}

	rule.ID = ruleID
	rule.UpdatedAt = time.Now().UTC()

	issues := h.validator.Check(&rule)
	if rule.Enabled && domain.HasBlocking(issues) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "a live rule cannot carry blocking issues",
			"issues": issues,
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.SaveRule(ctx, programID, &rule); err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	// Keep the engine registry in step with the stored document
	if rule.Enabled {
		if err := h.engine.LoadRule(programID, &rule); err != nil {
			slog.Error("failed to load rule into engine", "id", rule.ID, "error", err)
		}
	} else {
		h.engine.RemoveRule(programID, rule.ID)
	}

	slog.Info("rule updated", "id", rule.ID, "program_id", programID)
	writeJSON(w, http.StatusOK, map[string]any{
		"rule":   rule,
		"issues": issuesOrEmpty(issues),
	})
}

// DeleteRule removes a rule and drops campaign references to it. Campaign
// references are bookkeeping only, so removal never cascades further.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteRule(ctx, programID, ruleID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	h.engine.RemoveRule(programID, ruleID)
	h.dropCampaignRefs(ctx, programID, ruleID)

	slog.Info("rule deleted", "id", ruleID, "program_id", programID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted",
	})
}

// dropCampaignRefs removes references to a deleted rule from campaigns.
func (h *Handler) dropCampaignRefs(ctx context.Context, programID, ruleID string) {
	campaigns, err := h.repo.ListCampaigns(ctx, programID)
	if err != nil {
		slog.Error("failed to list campaigns for ref cleanup", "error", err)
		return
	}
	for _, c := range campaigns {
		before := len(c.RuleIDs)
		c.RemoveRuleRef(ruleID)
		if len(c.RuleIDs) == before {
			continue
		}
		if err := h.repo.SaveCampaign(ctx, programID, c); err != nil {
			slog.Error("failed to update campaign after rule delete",
				"campaign_id", c.ID,
				"rule_id", ruleID,
				"error", err,
			)
		}
	}
}

// ValidateRule runs the validator against a stored rule.
func (h *Handler) ValidateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rule, err := h.repo.GetRule(ctx, programID, ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	issues := h.validator.Check(rule)
	writeJSON(w, http.StatusOK, map[string]any{
		"ruleId":     rule.ID,
		"issues":     issuesOrEmpty(issues),
		"promotable": !domain.HasBlocking(issues),
	})
}

// PromoteRule transitions a rule from draft to live. The transition is
// refused if validating the rule as live yields any blocking issue.
func (h *Handler) PromoteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rule, err := h.repo.GetRule(ctx, programID, ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	issues, err := h.validator.TransitionToLive(rule)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"issues": issuesOrEmpty(issues),
		})
		return
	}

	if err := h.repo.SaveRule(ctx, programID, rule); err != nil {
		slog.Error("failed to save promoted rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	if err := h.engine.LoadRule(programID, rule); err != nil {
		slog.Error("failed to load promoted rule into engine", "id", rule.ID, "error", err)
	}

	slog.Info("rule promoted", "id", rule.ID, "program_id", programID)
	writeJSON(w, http.StatusOK, map[string]any{
		"rule":   rule,
		"issues": issuesOrEmpty(issues),
	})
}

// DemoteRule transitions a rule back to draft. Always allowed.
func (h *Handler) DemoteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rule, err := h.repo.GetRule(ctx, programID, ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	rule.Demote()

	if err := h.repo.SaveRule(ctx, programID, rule); err != nil {
		slog.Error("failed to save demoted rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	h.engine.RemoveRule(programID, ruleID)

	slog.Info("rule demoted", "id", rule.ID, "program_id", programID)
	writeJSON(w, http.StatusOK, rule)
}

// ReloadRules reloads all live rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	liveRules, err := h.repo.ListLiveRules(ctx, programID)
	if err != nil {
		slog.Error("failed to list live rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(programID, liveRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded", "program_id", programID, "count", len(liveRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(liveRules),
	})
}

// CreateCampaignRequest is the request body for creating a campaign.
type CreateCampaignRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	RuleIDs     []string        `json:"ruleIds,omitempty"`
	Schedule    domain.Schedule `json:"schedule,omitempty"`
	Enabled     bool            `json:"enabled,omitempty"`
}

// CreateCampaign creates a campaign grouping of rules. Rule references are
// held by id and are not verified here; a dangling reference is bookkeeping
// noise, not an error.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)

	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	campaign := domain.NewCampaign(programID, req.Name)
	campaign.Description = req.Description
	campaign.Schedule = req.Schedule
	campaign.Enabled = req.Enabled
	if len(req.RuleIDs) > 0 {
		campaign.RuleIDs = req.RuleIDs
	}

	if err := h.repo.SaveCampaign(ctx, programID, campaign); err != nil {
		slog.Error("failed to save campaign", "id", campaign.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save campaign",
		})
		return
	}

	slog.Info("campaign created", "id", campaign.ID, "name", campaign.Name)
	writeJSON(w, http.StatusCreated, campaign)
}

// ListCampaigns returns all campaigns for the program.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	campaigns, err := h.repo.ListCampaigns(ctx, programID)
	if err != nil {
		slog.Error("failed to list campaigns", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list campaigns",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"campaigns": campaigns,
		"count":     len(campaigns),
	})
}

// GetCampaign retrieves a campaign by ID.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID := GetProgramID(ctx)
	campaignID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	campaign, err := h.repo.GetCampaign(ctx, programID, campaignID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "campaign not found",
			})
			return
		}
		slog.Error("failed to get campaign", "id", campaignID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get campaign",
		})
		return
	}

	writeJSON(w, http.StatusOK, campaign)
}

func issuesOrEmpty(issues []domain.ValidationIssue) []domain.ValidationIssue {
	if issues == nil {
		return []domain.ValidationIssue{}
	}
	return issues
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
