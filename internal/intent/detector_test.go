package intent

import (
	"testing"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

func TestDetectNoTopicAndGeneralCandidate(t *testing.T) {
	// A greeting with no established topic must not register a change.
	change := DetectContextChange([]string{models.IntentSaludo}, models.ConversationContext{})
	if change.HasChanged {
		t.Errorf("expected no change for greeting with no topic, got %+v", change)
	}
	if change.SuggestedTopic != models.TopicGeneral {
		t.Errorf("expected general candidate, got %s", change.SuggestedTopic)
	}
}

func TestDetectInitialTopicEstablishment(t *testing.T) {
	change := DetectContextChange([]string{models.IntentSolicitudPrueba}, models.ConversationContext{})
	if !change.HasChanged {
		t.Fatalf("expected change when establishing initial topic")
	}
	if change.SuggestedTopic != models.TopicTrialRequest {
		t.Errorf("expected trial_request, got %s", change.SuggestedTopic)
	}
	if change.Confidence != initialTopicConfidence {
		t.Errorf("expected confidence %f, got %f", initialTopicConfidence, change.Confidence)
	}
}

func TestDetectSameTopicNoChange(t *testing.T) {
	ctx := models.ConversationContext{CurrentTopic: models.TopicTrialRequest, ContextStrength: 0.5}
	change := DetectContextChange([]string{models.IntentSolicitudPrueba}, ctx)
	if change.HasChanged {
		t.Errorf("expected no change for same topic, got %+v", change)
	}
}

func TestDetectStrongIntentRaisesConfidence(t *testing.T) {
	ctx := models.ConversationContext{CurrentTopic: models.TopicServiceInquiry}
	change := DetectContextChange([]string{models.IntentSoporteTecnico}, ctx)
	if !change.HasChanged {
		t.Fatalf("expected change")
	}
	want := baseChangeConfidence + strongIntentBonus
	if change.Confidence != want {
		t.Errorf("expected confidence %f, got %f", want, change.Confidence)
	}
	if change.PreviousTopic != models.TopicServiceInquiry {
		t.Errorf("expected previous topic recorded, got %s", change.PreviousTopic)
	}
}

func TestDetectAnchoredContextLowersConfidence(t *testing.T) {
	ctx := models.ConversationContext{CurrentTopic: models.TopicTrialRequest, ContextStrength: 0.8}
	change := DetectContextChange([]string{models.IntentConsultaServicios}, ctx)
	if !change.HasChanged {
		t.Fatalf("expected change")
	}
	want := baseChangeConfidence - anchoredPenalty
	if change.Confidence != want {
		t.Errorf("expected confidence %f, got %f", want, change.Confidence)
	}
}

func TestDetectMultipleIntentsSameCandidateRaiseConfidence(t *testing.T) {
	ctx := models.ConversationContext{CurrentTopic: models.TopicTrialRequest}
	change := DetectContextChange([]string{models.IntentInteresServicio, models.IntentConsultaServicios}, ctx)
	if !change.HasChanged {
		t.Fatalf("expected change")
	}
	want := baseChangeConfidence + multipleIntentBonus
	if change.Confidence != want {
		t.Errorf("expected confidence %f, got %f", want, change.Confidence)
	}
}

func TestDetectConfidenceAlwaysInRange(t *testing.T) {
	intentSets := [][]string{
		nil,
		{models.IntentSaludo},
		{models.IntentSolicitudPrueba},
		{models.IntentSoporteTecnico, models.IntentQueja},
		{models.IntentInteresServicio, models.IntentConsultaServicios, models.IntentSolicitudPrueba},
		{"intent_desconocido"},
	}
	contexts := []models.ConversationContext{
		{},
		{CurrentTopic: models.TopicTrialRequest},
		{CurrentTopic: models.TopicTechnicalSupport, ContextStrength: 1},
		{CurrentTopic: models.TopicGeneral, ContextStrength: 0.71},
	}
	for _, intents := range intentSets {
		for _, ctx := range contexts {
			change := DetectContextChange(intents, ctx)
			if change.Confidence < 0 || change.Confidence > 1 {
				t.Errorf("confidence out of range for intents=%v ctx=%+v: %f", intents, ctx, change.Confidence)
			}
		}
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	ctx := models.ConversationContext{CurrentTopic: models.TopicTrialRequest, ContextStrength: 0.3}
	intents := []string{models.IntentSoporteTecnico, models.IntentQueja}
	first := DetectContextChange(intents, ctx)
	for i := 0; i < 5; i++ {
		if got := DetectContextChange(intents, ctx); got != first {
			t.Fatalf("detector not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestTopicForPriorityOrder(t *testing.T) {
	// Trial outranks service inquiry regardless of input order.
	got := TopicFor([]string{models.IntentConsultaServicios, models.IntentSolicitudPrueba})
	if got != models.TopicTrialRequest {
		t.Errorf("expected trial_request to win by priority, got %s", got)
	}
	if TopicFor([]string{models.IntentSaludo}) != models.TopicGeneral {
		t.Errorf("unmapped intents must map to general")
	}
	if TopicFor(nil) != models.TopicGeneral {
		t.Errorf("empty intents must map to general")
	}
}
