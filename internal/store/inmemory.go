// Package store provides storage backends for the chatbot.
//
// This file implements an in-memory store used in tests and ephemeral deployments.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
	"github.com/google/uuid"
)

// storedMessage is one persisted message record.
type storedMessage struct {
	UserID     string
	Address    string
	Text       string
	IsFromUser bool
	Timestamp  time.Time
}

// InMemoryStore is a map-backed Store implementation.
type InMemoryStore struct {
	mu          sync.RWMutex
	usersByID   map[string]models.User
	idByPhone   map[string]string
	messages    []storedMessage
	credentials []models.Credentials
	tickets     []models.SupportTicket
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		usersByID: make(map[string]models.User),
		idByPhone: make(map[string]string),
	}
}

// CreateOrUpdateUser upserts a user keyed by phone.
func (s *InMemoryStore) CreateOrUpdateUser(user models.User) (models.User, error) {
	if user.Phone == "" {
		return models.User{}, fmt.Errorf("user phone is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if id, ok := s.idByPhone[user.Phone]; ok {
		existing := s.usersByID[id]
		mergeUser(&existing, user)
		existing.UpdatedAt = now
		s.usersByID[id] = existing
		return existing, nil
	}

	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.usersByID[user.ID] = user
	s.idByPhone[user.Phone] = user.ID
	return user, nil
}

// FindUserByPhone returns the user with the given phone, or nil if absent.
func (s *InMemoryStore) FindUserByPhone(phone string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idByPhone[phone]
	if !ok {
		return nil, nil
	}
	user := s.usersByID[id]
	return &user, nil
}

// SaveMessage records one message.
func (s *InMemoryStore) SaveMessage(userID, address, text string, isFromUser bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, storedMessage{
		UserID:     userID,
		Address:    address,
		Text:       text,
		IsFromUser: isFromUser,
		Timestamp:  time.Now(),
	})
	return nil
}

// CreateCredentials stores issued trial credentials.
func (s *InMemoryStore) CreateCredentials(creds models.Credentials) (models.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds.ID = uuid.NewString()
	creds.CreatedAt = time.Now()
	s.credentials = append(s.credentials, creds)
	return creds, nil
}

// CreateSupportTicket stores a support ticket.
func (s *InMemoryStore) CreateSupportTicket(ticket models.SupportTicket) (models.SupportTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now()
	if ticket.Status == "" {
		ticket.Status = "open"
	}
	s.tickets = append(s.tickets, ticket)
	return ticket, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// MessageCount returns the number of stored messages (test helper).
func (s *InMemoryStore) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// CredentialsCount returns the number of stored credentials (test helper).
func (s *InMemoryStore) CredentialsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.credentials)
}

// TicketCount returns the number of stored tickets (test helper).
func (s *InMemoryStore) TicketCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}

// mergeUser copies non-empty incoming fields onto an existing user.
func mergeUser(dst *models.User, src models.User) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Email != "" {
		dst.Email = src.Email
	}
	if src.Company != "" {
		dst.Company = src.Company
	}
	if src.Position != "" {
		dst.Position = src.Position
	}
	if src.IsRegistered {
		dst.IsRegistered = true
	}
}
