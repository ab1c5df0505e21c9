package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

// DefaultFlowTimeout is how long an active flow may go without completing
// before the expiry sweep removes it.
const DefaultFlowTimeout = 30 * time.Minute

// Engine owns at most one ActiveFlow per user and drives them through their
// registered handlers.
type Engine struct {
	mu          sync.RWMutex
	flows       map[string]*models.ActiveFlow
	handlers    map[models.FlowType]Handler
	flowTimeout time.Duration
}

// NewEngine creates an engine with the given flow timeout. A non-positive
// timeout falls back to DefaultFlowTimeout.
func NewEngine(flowTimeout time.Duration) *Engine {
	if flowTimeout <= 0 {
		flowTimeout = DefaultFlowTimeout
	}
	slog.Debug("Creating flow engine", "flowTimeout", flowTimeout)
	return &Engine{
		flows:       make(map[string]*models.ActiveFlow),
		handlers:    make(map[models.FlowType]Handler),
		flowTimeout: flowTimeout,
	}
}

// Register associates a flow type with its handler.
func (e *Engine) Register(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[h.Type()] = h
	slog.Debug("Engine handler registered", "flowType", h.Type())
}

// Handler returns the handler for a flow type.
func (e *Engine) Handler(ft models.FlowType) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[ft]
	return h, ok
}

// Active reports whether the user has an in-progress flow.
func (e *Engine) Active(userID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.flows[userID]
	return ok
}

// Start begins a flow of the given type for a user, seeding it with already
// known data. If nothing is missing the flow completes immediately without
// ever becoming active.
func (e *Engine) Start(ctx context.Context, userID string, ft models.FlowType, known map[string]string) (models.FlowStatus, error) {
	h, ok := e.Handler(ft)
	if !ok {
		return models.FlowStatus{State: models.FlowStateNone}, fmt.Errorf("no handler registered for flow type %s", ft)
	}

	now := time.Now()
	fl := &models.ActiveFlow{
		UserID:        userID,
		FlowType:      ft,
		CurrentStep:   0,
		CollectedData: make(map[string]string),
		StartTime:     now,
		LastUpdate:    now,
	}
	h.Collect(fl, "", known)
	fl.MissingFields = h.Missing(fl)

	if len(fl.MissingFields) == 0 {
		slog.Info("Engine Start: flow complete on start", "userID", userID, "flowType", ft)
		return e.complete(ctx, h, fl)
	}

	e.mu.Lock()
	e.flows[userID] = fl
	e.mu.Unlock()

	slog.Info("Engine flow started", "userID", userID, "flowType", ft, "missing", fl.MissingFields)
	return models.FlowStatus{
		State:         models.FlowStateActive,
		FlowType:      ft,
		Step:          fl.CurrentStep,
		MissingFields: fl.MissingFields,
		Prompt:        h.Prompt(fl),
	}, nil
}

// Continue feeds one turn's input into the user's active flow. With no active
// flow it reports FlowStateNone and does nothing.
func (e *Engine) Continue(ctx context.Context, userID, text string, entities map[string]string) (models.FlowStatus, error) {
	e.mu.Lock()
	fl, ok := e.flows[userID]
	e.mu.Unlock()
	if !ok {
		return models.FlowStatus{State: models.FlowStateNone}, nil
	}

	h, ok := e.Handler(fl.FlowType)
	if !ok {
		// A flow without a handler cannot make progress; drop it.
		slog.Error("Engine Continue: no handler for active flow, abandoning", "userID", userID, "flowType", fl.FlowType)
		e.Clear(userID)
		return models.FlowStatus{State: models.FlowStateAbandoned, FlowType: fl.FlowType}, nil
	}

	before := len(h.Missing(fl))
	h.Collect(fl, text, entities)
	fl.MissingFields = h.Missing(fl)
	fl.LastUpdate = time.Now()

	if len(fl.MissingFields) == 0 {
		return e.complete(ctx, h, fl)
	}

	// The step advances only when this turn actually supplied something new;
	// an invalid or irrelevant answer re-prompts at the same step.
	if len(fl.MissingFields) < before {
		fl.CurrentStep++
	}

	slog.Debug("Engine flow continued", "userID", userID, "flowType", fl.FlowType, "step", fl.CurrentStep, "missing", fl.MissingFields)
	return models.FlowStatus{
		State:         models.FlowStateActive,
		FlowType:      fl.FlowType,
		Step:          fl.CurrentStep,
		MissingFields: fl.MissingFields,
		Prompt:        h.Prompt(fl),
	}, nil
}

// complete runs the completion side effect exactly once and deletes the flow.
// If the side effect fails the flow stays active and unchanged for retry.
func (e *Engine) complete(ctx context.Context, h Handler, fl *models.ActiveFlow) (models.FlowStatus, error) {
	payload, err := h.OnComplete(ctx, fl)
	if err != nil {
		slog.Error("Engine completion side effect failed, flow stays active", "userID", fl.UserID, "flowType", fl.FlowType, "error", err)
		e.mu.Lock()
		e.flows[fl.UserID] = fl
		e.mu.Unlock()
		return models.FlowStatus{
			State:         models.FlowStateActive,
			FlowType:      fl.FlowType,
			Step:          fl.CurrentStep,
			MissingFields: fl.MissingFields,
		}, fmt.Errorf("flow completion failed: %w", err)
	}

	e.mu.Lock()
	delete(e.flows, fl.UserID)
	e.mu.Unlock()

	slog.Info("Engine flow completed", "userID", fl.UserID, "flowType", fl.FlowType)
	return models.FlowStatus{
		State:    models.FlowStateCompleted,
		FlowType: fl.FlowType,
		Step:     fl.CurrentStep,
		Payload:  payload,
	}, nil
}

// Cancel abandons the user's active flow without running its side effect.
func (e *Engine) Cancel(userID string) models.FlowStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	fl, ok := e.flows[userID]
	if !ok {
		return models.FlowStatus{State: models.FlowStateNone}
	}
	delete(e.flows, userID)
	slog.Info("Engine flow abandoned", "userID", userID, "flowType", fl.FlowType)
	return models.FlowStatus{State: models.FlowStateAbandoned, FlowType: fl.FlowType, Step: fl.CurrentStep}
}

// Clear removes any active flow for the user. Idempotent.
func (e *Engine) Clear(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.flows, userID)
}

// ExpireStale deletes flows older than the flow timeout. The lock function is
// acquired per user before mutating, so the sweep never races an in-flight
// turn; it returns a release function.
func (e *Engine) ExpireStale(lock func(userID string) (release func())) []string {
	e.mu.RLock()
	candidates := make([]string, 0, len(e.flows))
	for userID, fl := range e.flows {
		if time.Since(fl.StartTime) > e.flowTimeout {
			candidates = append(candidates, userID)
		}
	}
	e.mu.RUnlock()

	expired := make([]string, 0, len(candidates))
	for _, userID := range candidates {
		release := lock(userID)

		e.mu.Lock()
		fl, ok := e.flows[userID]
		if ok && time.Since(fl.StartTime) > e.flowTimeout {
			delete(e.flows, userID)
			expired = append(expired, userID)
			slog.Info("Engine flow expired", "userID", userID, "flowType", fl.FlowType, "age", time.Since(fl.StartTime))
		}
		e.mu.Unlock()

		release()
	}
	return expired
}

// Stats returns the number of active flows and their breakdown by type.
func (e *Engine) Stats() (int, map[models.FlowType]int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byType := make(map[models.FlowType]int)
	for _, fl := range e.flows {
		byType[fl.FlowType]++
	}
	return len(e.flows), byType
}
