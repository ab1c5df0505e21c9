package intent

import (
	"testing"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

func TestResolvePrimaryEmpty(t *testing.T) {
	if got := ResolvePrimary(nil, nil); got != "" {
		t.Errorf("expected empty result for no intents, got %q", got)
	}
}

func TestResolvePrimaryGreeting(t *testing.T) {
	mem := &models.ConversationMemory{}
	if got := ResolvePrimary([]string{models.IntentSaludo}, mem); got != models.IntentSaludo {
		t.Errorf("expected saludo, got %q", got)
	}
}

func TestResolvePrimaryTopicContinuityWins(t *testing.T) {
	mem := &models.ConversationMemory{
		Context: models.ConversationContext{CurrentTopic: models.TopicTechnicalSupport},
	}
	// Support belongs to the current topic, so it beats the globally
	// higher-priority trial intent.
	got := ResolvePrimary([]string{models.IntentSolicitudPrueba, models.IntentSoporteTecnico}, mem)
	if got != models.IntentSoporteTecnico {
		t.Errorf("expected topic continuity to pick soporte_tecnico, got %q", got)
	}
}

func TestResolvePrimaryStaticPriority(t *testing.T) {
	mem := &models.ConversationMemory{}
	got := ResolvePrimary([]string{models.IntentSaludo, models.IntentSoporteTecnico}, mem)
	if got != models.IntentSoporteTecnico {
		t.Errorf("expected soporte_tecnico by priority, got %q", got)
	}
}

func TestResolveConfirmationWithInterestBecomesTrial(t *testing.T) {
	mem := &models.ConversationMemory{}
	got := ResolvePrimary([]string{models.IntentConfirmacion, models.IntentInteresServicio}, mem)
	if got != models.IntentSolicitudPrueba {
		t.Errorf("expected confirmation+interest to become solicitud_prueba, got %q", got)
	}
}

func TestResolveBareConfirmationAfterTrialTopic(t *testing.T) {
	mem := &models.ConversationMemory{
		Context: models.ConversationContext{CurrentTopic: models.TopicServiceInquiry},
	}
	// "sí" after a service offer is acceptance of the offer.
	got := ResolvePrimary([]string{models.IntentConfirmacion}, mem)
	if got != models.IntentSolicitudPrueba {
		t.Errorf("expected bare confirmation to become solicitud_prueba, got %q", got)
	}
}

func TestResolveBareConfirmationAfterRecentTrialTopic(t *testing.T) {
	mem := &models.ConversationMemory{
		Context: models.ConversationContext{CurrentTopic: models.TopicGeneral},
		TopicHistory: []models.TopicRecord{
			{Topic: models.TopicTrialRequest, EnteredAt: time.Now().Add(-time.Minute)},
		},
	}
	got := ResolvePrimary([]string{models.IntentConfirmacion}, mem)
	if got != models.IntentSolicitudPrueba {
		t.Errorf("expected confirmation after recent trial topic to become solicitud_prueba, got %q", got)
	}
}

func TestResolveConfirmationWithoutTrialContextStaysConfirmation(t *testing.T) {
	mem := &models.ConversationMemory{
		Context: models.ConversationContext{CurrentTopic: models.TopicTechnicalSupport},
	}
	got := ResolvePrimary([]string{models.IntentConfirmacion}, mem)
	if got != models.IntentConfirmacion {
		t.Errorf("expected plain confirmation, got %q", got)
	}
}

func TestResolveNeverInventsOtherIntents(t *testing.T) {
	mem := &models.ConversationMemory{}
	got := ResolvePrimary([]string{"intent_desconocido"}, mem)
	if got != "intent_desconocido" {
		t.Errorf("resolver fabricated an intent: %q", got)
	}
}
