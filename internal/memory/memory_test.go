package memory

import (
	"fmt"
	"testing"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

func TestGetCreatesFreshMemory(t *testing.T) {
	s := NewStore()

	mem := s.Get("user1")
	if mem == nil {
		t.Fatalf("expected memory, got nil")
	}
	if len(mem.KnownEntities) != 0 || len(mem.MessageHistory) != 0 {
		t.Errorf("fresh memory not empty: %+v", mem)
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 memory, got %d", s.Count())
	}

	// Second Get must return the same instance.
	if s.Get("user1") != mem {
		t.Errorf("Get returned a different instance for same user")
	}
}

func TestEntityMonotonicity(t *testing.T) {
	s := NewStore()

	s.Update("user1", Delta{Entities: map[string]string{models.FieldNombre: "Juan Pérez"}})
	// A later turn extracting nothing for nombre must not clear it.
	s.Update("user1", Delta{Entities: map[string]string{models.FieldEmail: "juan@example.com", models.FieldNombre: ""}})

	mem := s.Get("user1")
	if mem.KnownEntities[models.FieldNombre] != "Juan Pérez" {
		t.Errorf("known entity was cleared by a later empty extraction: %q", mem.KnownEntities[models.FieldNombre])
	}

	// A later non-empty value does overwrite.
	s.Update("user1", Delta{Entities: map[string]string{models.FieldNombre: "Juan P. García"}})
	if got := s.Get("user1").KnownEntities[models.FieldNombre]; got != "Juan P. García" {
		t.Errorf("non-empty value should overwrite, got %q", got)
	}
}

func TestBoundedHistoryFIFO(t *testing.T) {
	s := NewStore()

	total := HistoryLimit + 4
	for i := 0; i < total; i++ {
		s.Update("user1", Delta{Message: &models.MemoryMessage{
			Content:    fmt.Sprintf("msg-%d", i),
			IsFromUser: true,
		}})
	}

	mem := s.Get("user1")
	if len(mem.MessageHistory) != HistoryLimit {
		t.Fatalf("expected history length %d, got %d", HistoryLimit, len(mem.MessageHistory))
	}
	// Strict FIFO: the oldest surviving entry is exactly msg-4.
	if mem.MessageHistory[0].Content != fmt.Sprintf("msg-%d", total-HistoryLimit) {
		t.Errorf("expected oldest entry msg-%d, got %s", total-HistoryLimit, mem.MessageHistory[0].Content)
	}
	if mem.MessageHistory[HistoryLimit-1].Content != fmt.Sprintf("msg-%d", total-1) {
		t.Errorf("expected newest entry msg-%d, got %s", total-1, mem.MessageHistory[HistoryLimit-1].Content)
	}
}

func TestIntentHistoryMostRecentFirst(t *testing.T) {
	s := NewStore()

	s.Update("user1", Delta{Intents: []string{models.IntentSaludo}})
	s.Update("user1", Delta{Intents: []string{models.IntentSolicitudPrueba}})

	recent := s.Get("user1").RecentIntents(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent intents, got %d", len(recent))
	}
	if recent[0] != models.IntentSolicitudPrueba || recent[1] != models.IntentSaludo {
		t.Errorf("intent history not most-recent-first: %v", recent)
	}
}

func TestContextStrengthReinforcementAndDecay(t *testing.T) {
	s := NewStore()

	// Establish the topic.
	s.Update("user1", Delta{
		Intents:      []string{models.IntentSolicitudPrueba},
		Topic:        models.TopicTrialRequest,
		TopicChanged: true,
	})
	mem := s.Get("user1")
	if mem.Context.CurrentTopic != models.TopicTrialRequest {
		t.Fatalf("expected topic trial_request, got %s", mem.Context.CurrentTopic)
	}
	// Initial establishment starts from zero, no decay applied.
	if mem.Context.ContextStrength != 0 {
		t.Fatalf("expected strength 0 after initial topic, got %f", mem.Context.ContextStrength)
	}

	// Repeating the same intent on the same topic reinforces.
	s.Update("user1", Delta{
		Intents: []string{models.IntentSolicitudPrueba},
		Topic:   models.TopicTrialRequest,
	})
	if got := s.Get("user1").Context.ContextStrength; got != StrengthGain {
		t.Errorf("expected strength %f after one repeat, got %f", StrengthGain, got)
	}

	// An accepted topic change decays the strength and records the new topic.
	s.Update("user1", Delta{
		Intents:      []string{models.IntentSoporteTecnico},
		Topic:        models.TopicTechnicalSupport,
		TopicChanged: true,
	})
	mem = s.Get("user1")
	if mem.Context.CurrentTopic != models.TopicTechnicalSupport {
		t.Errorf("expected topic technical_support, got %s", mem.Context.CurrentTopic)
	}
	if mem.Context.ContextStrength != 0 {
		t.Errorf("expected strength clamped to 0 after decay, got %f", mem.Context.ContextStrength)
	}
	if len(mem.TopicHistory) != 2 {
		t.Errorf("expected 2 topic records, got %d", len(mem.TopicHistory))
	}
}

func TestContextStrengthClamped(t *testing.T) {
	s := NewStore()

	s.Update("user1", Delta{
		Intents:      []string{models.IntentSolicitudPrueba},
		Topic:        models.TopicTrialRequest,
		TopicChanged: true,
	})
	for i := 0; i < 20; i++ {
		s.Update("user1", Delta{
			Intents: []string{models.IntentSolicitudPrueba},
			Topic:   models.TopicTrialRequest,
		})
	}
	if got := s.Get("user1").Context.ContextStrength; got > 1 {
		t.Errorf("strength exceeded 1: %f", got)
	}
}

func TestProfileMergeKeepsNonEmptyValues(t *testing.T) {
	s := NewStore()

	s.Update("user1", Delta{Profile: &models.UserProfile{Name: "Juan", Email: "juan@example.com"}})
	s.Update("user1", Delta{Profile: &models.UserProfile{Company: "Acme"}})

	p := s.Get("user1").UserProfile
	if p == nil {
		t.Fatalf("expected profile")
	}
	if p.Name != "Juan" || p.Email != "juan@example.com" || p.Company != "Acme" {
		t.Errorf("profile merge lost fields: %+v", p)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	s := NewStore()

	s.Get("user1")
	s.Clear("user1")
	if s.Count() != 0 {
		t.Fatalf("expected no memories after clear, got %d", s.Count())
	}
	// Clearing again must not panic or error.
	s.Clear("user1")
	if s.Count() != 0 {
		t.Errorf("second clear changed state")
	}
}
