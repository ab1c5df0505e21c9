// Package models defines the shared data structures for the chatbot engine.
package models

import "time"

// User represents a registered or prospective user of the service.
type User struct {
	ID           string    `json:"id"`
	Phone        string    `json:"phone"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Company      string    `json:"company,omitempty"`
	Position     string    `json:"position,omitempty"`
	IsRegistered bool      `json:"is_registered"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Credentials represents service credentials issued on trial signup.
type Credentials struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	ServiceType string    `json:"service_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// SupportTicket represents a technical support request collected by the support flow.
type SupportTicket struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	StatusTypeSent      MessageStatus = "sent"
	StatusTypeDelivered MessageStatus = "delivered"
	StatusTypeRead      MessageStatus = "read"
)

// Receipt records a delivery status event for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a user.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// NLUResult holds the intents and entities detected for one message.
type NLUResult struct {
	Intents  []string          `json:"intents"`
	Entities map[string]string `json:"entities"`
}

// FlowStatus describes the outcome of running the flow engine for one turn.
type FlowStatus struct {
	State         FlowState         `json:"state"`
	FlowType      FlowType          `json:"flow_type,omitempty"`
	Step          int               `json:"step"`
	MissingFields []string          `json:"missing_fields,omitempty"`
	Payload       map[string]string `json:"payload,omitempty"`

	// Prompt is the next question the flow wants to ask the user, if any.
	Prompt string `json:"prompt,omitempty"`
}

// TurnResult is what ProcessTurn hands back to the caller for each inbound message.
type TurnResult struct {
	Intents       []string            `json:"intents"`
	Entities      map[string]string   `json:"entities"`
	PrimaryIntent string              `json:"primary_intent,omitempty"`
	Flow          FlowStatus          `json:"flow"`
	Reply         string              `json:"reply,omitempty"`
	SessionClosed bool                `json:"session_closed"`
	Memory        *ConversationMemory `json:"memory,omitempty"`
}

// EngineStats provides operational visibility over sessions and flows.
type EngineStats struct {
	ActiveSessionCount int              `json:"active_session_count"`
	ActiveFlowCount    int              `json:"active_flow_count"`
	FlowsByType        map[FlowType]int `json:"flows_by_type"`
}
