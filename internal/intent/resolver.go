package intent

import (
	"log/slog"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

// ResolvePrimary selects the single intent that drives flow and response logic
// for this turn. Returns "" when no intent was detected.
//
// Resolution order: topic continuity first, then the confirmation
// reinterpretation policy, then static priority.
func ResolvePrimary(intents []string, mem *models.ConversationMemory) string {
	if len(intents) == 0 {
		return ""
	}

	// Topic continuity: an intent belonging to the current topic wins over
	// global priority.
	if mem != nil && mem.Context.CurrentTopic != "" {
		for _, detected := range intents {
			if contains(topicIntents[mem.Context.CurrentTopic], detected) {
				slog.Debug("ResolvePrimary topic continuity", "intent", detected, "topic", mem.Context.CurrentTopic)
				return detected
			}
		}
	}

	if reinterpreted := reinterpretConfirmation(intents, mem); reinterpreted != "" {
		slog.Debug("ResolvePrimary confirmation reinterpreted", "intent", reinterpreted)
		return reinterpreted
	}

	// Static priority: actionable intents before informational and social ones.
	for _, candidate := range resolutionPriority {
		if contains(intents, candidate) {
			return candidate
		}
	}

	// Unknown intents keep their input order.
	return intents[0]
}

// reinterpretConfirmation is the table-driven policy for what a bare "yes"
// means. A confirmation that arrives alongside a service-interest intent, or
// while the current or most recent topic is trial-related, is treated as
// acceptance of the trial offer rather than a generic acknowledgement. This is
// the only place the resolver substitutes an intent not present in the input.
func reinterpretConfirmation(intents []string, mem *models.ConversationMemory) string {
	if !contains(intents, models.IntentConfirmacion) {
		return ""
	}

	if contains(intents, models.IntentInteresServicio) || contains(intents, models.IntentConsultaServicios) {
		return models.IntentSolicitudPrueba
	}

	if mem != nil {
		if isTrialRelated(mem.Context.CurrentTopic) {
			return models.IntentSolicitudPrueba
		}
		if n := len(mem.TopicHistory); n > 0 && isTrialRelated(mem.TopicHistory[n-1].Topic) {
			return models.IntentSolicitudPrueba
		}
	}

	return ""
}
