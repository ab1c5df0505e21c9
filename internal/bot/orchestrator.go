// Package bot wires the conversational engine together: it orchestrates each
// inbound WhatsApp message through session tracking, NLU, context-change
// detection, conversation memory, flow progression, and reply delivery.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/flow"
	"github.com/aftorrescurrea/chatbot-sub000/internal/intent"
	"github.com/aftorrescurrea/chatbot-sub000/internal/memory"
	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
	"github.com/aftorrescurrea/chatbot-sub000/internal/nlu"
	"github.com/aftorrescurrea/chatbot-sub000/internal/reply"
	"github.com/aftorrescurrea/chatbot-sub000/internal/session"
	"github.com/aftorrescurrea/chatbot-sub000/internal/store"
)

// Confidence thresholds applied to context-change verdicts.
const (
	// topicShiftThreshold is the minimum confidence at which the suggested
	// topic is recorded in conversation memory. Weak signals (a greeting in
	// the middle of a trial signup) stay below it and leave the topic alone.
	topicShiftThreshold = 0.6

	// flowAbandonThreshold is the minimum confidence at which a topic change
	// abandons an active flow instead of being treated as a digression.
	flowAbandonThreshold = 0.7
)

// defaultTutorialService is the tutorial started when the user asks for one
// without naming a service.
const defaultTutorialService = "erp"

// Orchestrator coordinates one full turn per inbound message. All state
// mutations for a user happen under that user's lock, so concurrent messages
// from different users proceed in parallel while each user's turns, session
// timeouts, and flow expiries are strictly serialized.
type Orchestrator struct {
	sessions *session.Manager
	mem      *memory.Store
	engine   *flow.Engine
	detector nlu.Service
	replies  reply.Generator
	sender   session.Sender
	store    store.Store
	locks    *userLocks
}

// NewOrchestrator assembles the turn pipeline and registers its per-user lock
// with the session manager so timeout callbacks serialize with turns.
func NewOrchestrator(sessions *session.Manager, mem *memory.Store, engine *flow.Engine, detector nlu.Service, replies reply.Generator, sender session.Sender, st store.Store) *Orchestrator {
	o := &Orchestrator{
		sessions: sessions,
		mem:      mem,
		engine:   engine,
		detector: detector,
		replies:  replies,
		sender:   sender,
		store:    st,
		locks:    newUserLocks(),
	}
	sessions.SetLock(o.LockUser)
	return o
}

// LockUser acquires the user's turn lock and returns its release func. The
// session manager and the flow expiry sweep share it.
func (o *Orchestrator) LockUser(userID string) (release func()) {
	return o.locks.acquire(userID)
}

// ProcessTurn runs the full pipeline for one inbound message and returns what
// happened: detected intents and entities, the resolved primary intent, the
// flow outcome, the reply sent, and whether the session was closed.
func (o *Orchestrator) ProcessTurn(ctx context.Context, userID, text string) (models.TurnResult, error) {
	release := o.locks.acquire(userID)
	defer release()

	slog.Debug("Orchestrator processing turn", "user_id", userID, "text_length", len(text))

	o.sessions.Touch(userID, userID)
	mem := o.mem.Get(userID)

	det, err := o.detector.Detect(ctx, text, mem.KnownEntities)
	if err != nil {
		// A failed detection degrades to an intentless turn instead of
		// failing it: the fallback reply still goes out.
		slog.Warn("Orchestrator NLU detection failed", "user_id", userID, "error", err)
		det = models.NLUResult{}
	}
	if det.Entities == nil {
		det.Entities = map[string]string{}
	}

	change := intent.DetectContextChange(det.Intents, mem.Context)
	topicShift := change.HasChanged && change.Confidence >= topicShiftThreshold
	if change.HasChanged {
		slog.Debug("Orchestrator context change detected",
			"user_id", userID, "from", change.PreviousTopic, "to", change.SuggestedTopic,
			"confidence", change.Confidence, "accepted", topicShift, "reason", change.Reason)
	}

	o.mem.Update(userID, memory.Delta{
		Profile:      profileFromEntities(det.Entities),
		Entities:     det.Entities,
		Intents:      det.Intents,
		Topic:        change.SuggestedTopic,
		TopicChanged: topicShift,
		Message: &models.MemoryMessage{
			Content:    text,
			IsFromUser: true,
			Timestamp:  time.Now(),
			Intents:    det.Intents,
			Entities:   det.Entities,
		},
	})

	primary := intent.ResolvePrimary(det.Intents, mem)

	var status models.FlowStatus
	var flowErr error
	var switchedAway bool
	switch {
	case !o.engine.Active(userID):
		status, flowErr = o.startFlowFor(ctx, userID, primary, det.Entities, mem)
	case containsIntent(det.Intents, models.IntentCancelacion):
		status = o.engine.Cancel(userID)
	case topicShift && change.Confidence >= flowAbandonThreshold:
		slog.Info("Orchestrator abandoning flow on topic change",
			"user_id", userID, "new_topic", change.SuggestedTopic, "confidence", change.Confidence)
		o.engine.Cancel(userID)
		status, flowErr = o.startFlowFor(ctx, userID, primary, det.Entities, mem)
		// The new topic may carry no flow at all (a complaint, a price
		// question). The reply then answers that intent, with a lead-in
		// acknowledging the dropped process.
		switchedAway = status.State == models.FlowStateNone && flowErr == nil
	default:
		status, flowErr = o.engine.Continue(ctx, userID, text, det.Entities)
	}

	replyText := o.replies.Generate(primary, status)
	if switchedAway {
		replyText = reply.TopicSwitchNotice + " " + replyText
	}
	if flowErr != nil {
		slog.Error("Orchestrator flow error", "user_id", userID, "flow_type", status.FlowType, "error", flowErr)
		replyText = reply.RetryMessage
	}

	o.mem.Update(userID, memory.Delta{
		Message: &models.MemoryMessage{Content: replyText, IsFromUser: false, Timestamp: time.Now()},
	})

	if err := o.sender.SendMessage(ctx, userID, replyText); err != nil {
		slog.Error("Orchestrator reply delivery failed", "user_id", userID, "error", err)
	}

	o.recordMessage(userID, text, true)
	o.recordMessage(userID, replyText, false)

	// Snapshot memory before a goodbye tears it down.
	result := models.TurnResult{
		Intents:       det.Intents,
		Entities:      det.Entities,
		PrimaryIntent: primary,
		Flow:          status,
		Reply:         replyText,
		Memory:        mem,
	}

	if o.shouldClose(primary, replyText, status) && flowErr == nil {
		o.sessions.CloseSilent(userID)
		result.SessionClosed = true
	}

	return result, nil
}

// shouldClose reports whether this turn's outcome ends the session: the user
// said goodbye, a flow completed with its payload delivered, or the outgoing
// reply itself contains the farewell phrase. Finished tutorials keep the
// session open since their closing reply invites further questions.
func (o *Orchestrator) shouldClose(primary, replyText string, status models.FlowStatus) bool {
	if primary == models.IntentDespedida {
		return true
	}
	if status.State == models.FlowStateCompleted && len(status.Payload) > 0 && !status.FlowType.IsTutorial() {
		return true
	}
	return strings.Contains(replyText, reply.FarewellPhrase)
}

// startFlowFor starts the flow the primary intent asks for, seeding it with
// everything already known about the user. Intents without a flow leave the
// turn flowless.
func (o *Orchestrator) startFlowFor(ctx context.Context, userID, primary string, entities map[string]string, mem *models.ConversationMemory) (models.FlowStatus, error) {
	ft, ok := o.flowTypeFor(primary, entities)
	if !ok {
		return models.FlowStatus{State: models.FlowStateNone}, nil
	}

	known := make(map[string]string, len(mem.KnownEntities)+len(entities))
	for k, v := range mem.KnownEntities {
		known[k] = v
	}
	for k, v := range entities {
		if v != "" {
			known[k] = v
		}
	}
	return o.engine.Start(ctx, userID, ft, known)
}

// flowTypeFor maps flow-triggering intents to their flow type. Tutorial
// requests pick the tutorial for the mentioned service, falling back to the
// default when the service is unknown or has no tutorial registered.
func (o *Orchestrator) flowTypeFor(primary string, entities map[string]string) (models.FlowType, bool) {
	switch primary {
	case models.IntentSolicitudPrueba:
		return models.FlowTypeTrial, true
	case models.IntentSoporteTecnico:
		return models.FlowTypeSupport, true
	case models.IntentTutorial:
		service := strings.ToLower(strings.TrimSpace(entities[models.FieldServicio]))
		if service == "" {
			service = defaultTutorialService
		}
		ft := models.TutorialFlowType(service)
		if _, ok := o.engine.Handler(ft); !ok {
			ft = models.TutorialFlowType(defaultTutorialService)
		}
		return ft, true
	}
	return "", false
}

// recordMessage persists one message for auditing. Persistence failures are
// logged and swallowed: the conversation must not depend on the database.
func (o *Orchestrator) recordMessage(userID, text string, fromUser bool) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveMessage(userID, userID, text, fromUser); err != nil {
		slog.Warn("Orchestrator failed to persist message", "user_id", userID, "from_user", fromUser, "error", err)
	}
}

// Stats reports live session and flow counts.
func (o *Orchestrator) Stats() models.EngineStats {
	flows, byType := o.engine.Stats()
	return models.EngineStats{
		ActiveSessionCount: o.sessions.Count(),
		ActiveFlowCount:    flows,
		FlowsByType:        byType,
	}
}

// ExpireFlows abandons flows idle past the flow timeout, serializing with any
// in-flight turns for the affected users. Returns the affected user IDs.
func (o *Orchestrator) ExpireFlows() []string {
	return o.engine.ExpireStale(o.LockUser)
}

func containsIntent(intents []string, want string) bool {
	for _, i := range intents {
		if i == want {
			return true
		}
	}
	return false
}

// profileFromEntities lifts profile-shaped entities into a UserProfile delta.
func profileFromEntities(entities map[string]string) *models.UserProfile {
	p := &models.UserProfile{
		Name:     entities[models.FieldNombre],
		Email:    entities[models.FieldEmail],
		Company:  entities[models.FieldEmpresa],
		Position: entities[models.FieldCargo],
	}
	if p.Name == "" && p.Email == "" && p.Company == "" && p.Position == "" {
		return nil
	}
	return p
}
