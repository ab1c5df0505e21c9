// Package memory owns per-user conversational memory: bounded message history,
// accumulated known entities, intent and topic history, and the context
// strength signal that the topic-change detector reads.
package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

// Tuning constants for conversational memory.
const (
	// HistoryLimit bounds the message history per user; oldest entries are
	// evicted first.
	HistoryLimit = 10
	// IntentLookback is how many recent intents count toward topic repetition.
	IntentLookback = 3
	// StrengthGain is added per repeated same-topic intent within the lookback.
	StrengthGain = 0.15
	// StrengthDecay is subtracted when a topic change is accepted.
	StrengthDecay = 0.30
)

// Delta is a partial memory update applied by Update. Nil or empty fields are
// skipped, never treated as deletions.
type Delta struct {
	Profile  *models.UserProfile
	Entities map[string]string
	Intents  []string

	// Topic is the topic this turn resolved to. It is recorded only when
	// TopicChanged is set; otherwise it is used for strength reinforcement.
	Topic        models.Topic
	TopicChanged bool

	Message *models.MemoryMessage
}

// Store holds each user's ConversationMemory keyed by user identifier.
type Store struct {
	mu       sync.RWMutex
	memories map[string]*models.ConversationMemory
}

// NewStore creates an empty memory store.
func NewStore() *Store {
	slog.Debug("Creating memory store")
	return &Store{
		memories: make(map[string]*models.ConversationMemory),
	}
}

// Get returns the memory for a user, creating and storing a fresh one if absent.
func (s *Store) Get(userID string) *models.ConversationMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(userID)
}

func (s *Store) getLocked(userID string) *models.ConversationMemory {
	if mem, ok := s.memories[userID]; ok {
		return mem
	}
	now := time.Now()
	mem := &models.ConversationMemory{
		KnownEntities:  make(map[string]string),
		MessageHistory: make([]models.MemoryMessage, 0, HistoryLimit),
		CreatedAt:      now,
		LastUpdate:     now,
	}
	s.memories[userID] = mem
	slog.Debug("Memory created", "userID", userID)
	return mem
}

// Update merges a partial delta into a user's memory. Malformed pieces are
// skipped field by field so a partial NLU failure cannot corrupt memory.
func (s *Store) Update(userID string, delta Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem := s.getLocked(userID)
	now := time.Now()

	if delta.Profile != nil {
		mergeProfile(mem, delta.Profile)
	}

	for name, value := range delta.Entities {
		// Absence is not deletion: empty extractions never clear a known value.
		if name == "" || value == "" {
			continue
		}
		mem.KnownEntities[name] = value
	}

	recentBefore := mem.RecentIntents(IntentLookback)
	for _, intent := range delta.Intents {
		if intent == "" {
			continue
		}
		mem.IntentHistory = append([]models.IntentRecord{{Intent: intent, Timestamp: now}}, mem.IntentHistory...)
	}

	s.applyTopicLocked(mem, delta, recentBefore, now)

	if delta.Message != nil {
		msg := *delta.Message
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		mem.MessageHistory = append(mem.MessageHistory, msg)
		if len(mem.MessageHistory) > HistoryLimit {
			mem.MessageHistory = mem.MessageHistory[len(mem.MessageHistory)-HistoryLimit:]
		}
	}

	mem.LastUpdate = now
}

// applyTopicLocked updates topic history and recomputes context strength.
func (s *Store) applyTopicLocked(mem *models.ConversationMemory, delta Delta, recentBefore []string, now time.Time) {
	if delta.TopicChanged && delta.Topic != "" {
		if mem.Context.CurrentTopic != delta.Topic {
			mem.TopicHistory = append(mem.TopicHistory, models.TopicRecord{Topic: delta.Topic, EnteredAt: now})
		}
		hadTopic := mem.Context.CurrentTopic != ""
		mem.Context.CurrentTopic = delta.Topic
		if hadTopic {
			mem.Context.ContextStrength = clamp(mem.Context.ContextStrength - StrengthDecay)
		}
		slog.Debug("Memory topic changed", "topic", delta.Topic, "strength", mem.Context.ContextStrength)
		return
	}

	if delta.Topic == "" || delta.Topic != mem.Context.CurrentTopic {
		return
	}

	// Same topic as before: each incoming intent already seen in the lookback
	// window reinforces the anchor.
	repeats := 0
	for _, intent := range delta.Intents {
		for _, prev := range recentBefore {
			if intent == prev {
				repeats++
				break
			}
		}
	}
	if repeats > 0 {
		mem.Context.ContextStrength = clamp(mem.Context.ContextStrength + StrengthGain*float64(repeats))
		slog.Debug("Memory topic reinforced", "topic", delta.Topic, "repeats", repeats, "strength", mem.Context.ContextStrength)
	}
}

// Clear deletes a user's memory entirely. Clearing an absent user is a no-op.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memories[userID]; !ok {
		return
	}
	delete(s.memories, userID)
	slog.Info("Memory cleared", "userID", userID)
}

// Count returns how many users currently have memory.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories)
}

// mergeProfile overwrites profile fields only with non-empty new values.
func mergeProfile(mem *models.ConversationMemory, incoming *models.UserProfile) {
	if mem.UserProfile == nil {
		mem.UserProfile = &models.UserProfile{}
	}
	p := mem.UserProfile
	if incoming.UserID != "" {
		p.UserID = incoming.UserID
	}
	if incoming.Name != "" {
		p.Name = incoming.Name
	}
	if incoming.Email != "" {
		p.Email = incoming.Email
	}
	if incoming.Company != "" {
		p.Company = incoming.Company
	}
	if incoming.Position != "" {
		p.Position = incoming.Position
	}
	if incoming.IsRegistered {
		p.IsRegistered = true
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
