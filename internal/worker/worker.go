// Package worker provides async event processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/loyaltylab/magpie/internal/decision"
	"github.com/loyaltylab/magpie/internal/domain"
	"github.com/loyaltylab/magpie/internal/rules"
	"github.com/loyaltylab/magpie/internal/usage"
)

// Worker processes customer events asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	engine    *rules.Engine
	usage     *usage.Service
	processor *decision.Processor

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// ProgramIDs is the list of programs to process.
	ProgramIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, engine *rules.Engine, usageSvc *usage.Service, processor *decision.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		cache:     cache,
		engine:    engine,
		usage:     usageSvc,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing events for the given programs.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.ProgramIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, programID := range cfg.ProgramIDs {
		if err := w.startProgramWorker(programID); err != nil {
			slog.Error("failed to start worker for program",
				"program_id", programID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"program_count", len(cfg.ProgramIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all programs (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicEventReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startProgramWorker starts a worker for a specific program.
func (w *Worker) startProgramWorker(programID string) error {
	sub, err := w.bus.Subscribe(w.ctx, programID, domain.TopicEventReceived, func(ctx context.Context, msg *domain.Message) error {
		return w.processEvent(ctx, programID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("program worker started",
		"program_id", programID,
		"topic", domain.TopicEventReceived,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processEvent(ctx, msg.ProgramID, msg)
}

// EventMessage is the message payload for event processing. The snapshot
// is optional; when absent the worker looks it up in the snapshot cache.
type EventMessage struct {
	TraceID  string                   `json:"traceId,omitempty"`
	Event    domain.Event             `json:"event"`
	Snapshot *domain.CustomerSnapshot `json:"snapshot,omitempty"`
}

// processEvent runs one event through the evaluation pipeline.
func (w *Worker) processEvent(ctx context.Context, programID string, msg *domain.Message) error {
	start := time.Now()

	var evtMsg EventMessage
	if err := json.Unmarshal(msg.Payload, &evtMsg); err != nil {
		slog.Error("failed to parse event message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message program if provided
	if evtMsg.Event.ProgramID != "" {
		programID = evtMsg.Event.ProgramID
	}
	evtMsg.Event.ProgramID = programID

	traceID := evtMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing event",
		"event_id", evtMsg.Event.ID,
		"program_id", programID,
		"trace_id", traceID,
	)

	// 1. Resolve the customer snapshot
	snap := evtMsg.Snapshot
	if snap == nil && w.cache != nil {
		cached, err := w.cache.GetSnapshot(ctx, programID, evtMsg.Event.CustomerID)
		if err != nil {
			slog.Warn("snapshot lookup failed",
				"customer_id", evtMsg.Event.CustomerID,
				"error", err,
			)
		}
		snap = cached
	}
	if snap == nil {
		snap = &domain.CustomerSnapshot{CustomerID: evtMsg.Event.CustomerID}
	}

	// 2. Record the event
	if w.repo != nil {
		if err := w.repo.SaveEvent(ctx, programID, &evtMsg.Event); err != nil {
			slog.Error("failed to save event",
				"event_id", evtMsg.Event.ID,
				"error", err,
			)
		}
	}

	// 3. Evaluate all live rules
	results, err := w.engine.EvaluateAll(ctx, programID, &evtMsg.Event, snap)
	if err != nil {
		slog.Error("rule evaluation failed",
			"event_id", evtMsg.Event.ID,
			"error", err,
		)
		return err
	}

	// 4. Commit usage grants; exhausted matches become skipped
	if w.usage != nil {
		limits := w.ruleLimits(programID)
		if err := w.usage.CommitMatches(ctx, programID, evtMsg.Event.CustomerID, limits, results); err != nil {
			slog.Error("usage commit failed",
				"event_id", evtMsg.Event.ID,
				"error", err,
			)
			return err
		}
	}

	// 5. Build the evaluation record
	evaluation := w.processor.Process(ctx, &decision.Input{
		ProgramID:  programID,
		EventID:    evtMsg.Event.ID,
		CustomerID: evtMsg.Event.CustomerID,
		TraceID:    traceID,
		Results:    results,
		StartTime:  start,
	})

	// 6. Save evaluation
	if w.repo != nil {
		if err := w.repo.SaveEvaluation(ctx, programID, evaluation); err != nil {
			slog.Error("failed to save evaluation",
				"event_id", evtMsg.Event.ID,
				"error", err,
			)
		}
	}

	// 7. Publish the evaluation record
	resultPayload, _ := json.Marshal(evaluation)
	if err := w.bus.Publish(ctx, programID, domain.TopicEvaluationRecorded, resultPayload); err != nil {
		slog.Error("failed to publish evaluation",
			"event_id", evtMsg.Event.ID,
			"error", err,
		)
	}

	// 8. Hand surviving plans to the dispatch collaborator
	if decision.ShouldDispatch(evaluation) {
		planPayload, _ := json.Marshal(evaluation.Plans)
		if err := w.bus.Publish(ctx, programID, domain.TopicActionDispatch, planPayload); err != nil {
			slog.Error("failed to publish action plans",
				"event_id", evtMsg.Event.ID,
				"error", err,
			)
		}
	}

	slog.Info("event processed",
		"event_id", evtMsg.Event.ID,
		"program_id", programID,
		"status", evaluation.Status,
		"rules_matched", evaluation.Metadata.RulesMatched,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// ruleLimits maps loaded rule IDs to their per-customer usage limits.
func (w *Worker) ruleLimits(programID string) map[string]int {
	loaded := w.engine.LoadedRules(programID)
	limits := make(map[string]int, len(loaded))
	for _, r := range loaded {
		limits[r.ID] = r.Conditions.UsageLimitPerCustomer
	}
	return limits
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
