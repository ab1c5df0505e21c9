// Package models defines conversational memory, session, and flow state structures.
package models

import "time"

// UserProfile is a snapshot of what the conversation has learned about the user.
type UserProfile struct {
	UserID       string `json:"user_id,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Company      string `json:"company,omitempty"`
	Position     string `json:"position,omitempty"`
	IsRegistered bool   `json:"is_registered"`
}

// MemoryMessage is one message recorded in a user's bounded conversation history.
type MemoryMessage struct {
	Content    string            `json:"content"`
	IsFromUser bool              `json:"is_from_user"`
	Timestamp  time.Time         `json:"timestamp"`
	Intents    []string          `json:"intents,omitempty"`
	Entities   map[string]string `json:"entities,omitempty"`
}

// IntentRecord is one detected intent with its detection time, most recent first.
type IntentRecord struct {
	Intent    string    `json:"intent"`
	Timestamp time.Time `json:"timestamp"`
}

// TopicRecord is one topic the conversation entered, oldest first.
type TopicRecord struct {
	Topic     Topic     `json:"topic"`
	EnteredAt time.Time `json:"entered_at"`
}

// ConversationContext tracks the current topic and how firmly the conversation
// is anchored in it.
type ConversationContext struct {
	CurrentTopic    Topic   `json:"current_topic,omitempty"`
	ContextStrength float64 `json:"context_strength"`
}

// ConversationMemory holds everything remembered about one user's conversation.
type ConversationMemory struct {
	UserProfile    *UserProfile        `json:"user_profile,omitempty"`
	KnownEntities  map[string]string   `json:"known_entities"`
	MessageHistory []MemoryMessage     `json:"message_history"`
	IntentHistory  []IntentRecord      `json:"intent_history"`
	TopicHistory   []TopicRecord       `json:"topic_history"`
	Context        ConversationContext `json:"context"`
	CreatedAt      time.Time           `json:"created_at"`
	LastUpdate     time.Time           `json:"last_update"`
}

// RecentIntents returns up to n most recent intents, most recent first.
func (m *ConversationMemory) RecentIntents(n int) []string {
	if n > len(m.IntentHistory) {
		n = len(m.IntentHistory)
	}
	out := make([]string, 0, n)
	for _, rec := range m.IntentHistory[:n] {
		out = append(out, rec.Intent)
	}
	return out
}

// Session tracks one live conversation session for a user identifier.
type Session struct {
	UserID       string    `json:"user_id"`
	Address      string    `json:"address"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`

	// TimerID is the scheduler handle for the pending inactivity timeout.
	TimerID string `json:"-"`
}

// ActiveFlow is the state of one in-progress multi-step flow. At most one
// exists per user identifier.
type ActiveFlow struct {
	UserID        string            `json:"user_id"`
	FlowType      FlowType          `json:"flow_type"`
	CurrentStep   int               `json:"current_step"`
	CollectedData map[string]string `json:"collected_data"`
	MissingFields []string          `json:"missing_fields"`
	StartTime     time.Time         `json:"start_time"`
	LastUpdate    time.Time         `json:"last_update"`
}
