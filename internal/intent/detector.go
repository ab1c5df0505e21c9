package intent

import "github.com/aftorrescurrea/chatbot-sub000/internal/models"

// Confidence scoring constants for context change detection.
const (
	baseChangeConfidence    = 0.5
	strongIntentBonus       = 0.3
	anchoredPenalty         = 0.2
	multipleIntentBonus     = 0.2
	initialTopicConfidence  = 0.8
	anchoredStrengthMinimum = 0.7
)

// ContextChange is the verdict of the topic-transition detector.
type ContextChange struct {
	HasChanged     bool
	PreviousTopic  models.Topic
	SuggestedTopic models.Topic
	Confidence     float64
	Reason         string
}

// DetectContextChange decides whether the detected intents move the
// conversation to a different topic, and with what confidence. It is a pure
// function: no side effects, deterministic for identical inputs.
func DetectContextChange(intents []string, ctx models.ConversationContext) ContextChange {
	candidate := TopicFor(intents)

	if ctx.CurrentTopic != "" && candidate != ctx.CurrentTopic {
		confidence := baseChangeConfidence
		reason := "topic differs from current"

		if hasStrongIntent(intents) {
			confidence += strongIntentBonus
			reason = "strong intent suggests new topic"
		}
		if ctx.ContextStrength > anchoredStrengthMinimum {
			confidence -= anchoredPenalty
		}
		if countMappingTo(intents, candidate) > 1 {
			confidence += multipleIntentBonus
		}

		return ContextChange{
			HasChanged:     true,
			PreviousTopic:  ctx.CurrentTopic,
			SuggestedTopic: candidate,
			Confidence:     clampConfidence(confidence),
			Reason:         reason,
		}
	}

	if ctx.CurrentTopic == "" && candidate != models.TopicGeneral {
		return ContextChange{
			HasChanged:     true,
			SuggestedTopic: candidate,
			Confidence:     initialTopicConfidence,
			Reason:         "establishing initial topic",
		}
	}

	return ContextChange{
		PreviousTopic:  ctx.CurrentTopic,
		SuggestedTopic: candidate,
		Reason:         "same topic",
	}
}

func hasStrongIntent(intents []string) bool {
	for _, i := range intents {
		if strongIntents[i] {
			return true
		}
	}
	return false
}

// countMappingTo counts how many detected intents map to the candidate topic.
func countMappingTo(intents []string, topic models.Topic) int {
	n := 0
	for _, detected := range intents {
		for _, entry := range topicPriority {
			if detected == entry.Intent && entry.Topic == topic {
				n++
				break
			}
		}
	}
	return n
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
