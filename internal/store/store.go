// Package store provides storage backends for the chatbot.
//
// It persists users, messages, issued trial credentials, and support tickets,
// with SQLite and PostgreSQL backends plus an in-memory store for tests.
package store

import (
	"strings"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

// Store defines the persistence operations the conversational engine consumes.
type Store interface {
	// CreateOrUpdateUser upserts a user keyed by phone. Empty fields in the
	// incoming user never overwrite existing non-empty values.
	CreateOrUpdateUser(user models.User) (models.User, error)

	// FindUserByPhone returns the user with the given phone, or nil if absent.
	FindUserByPhone(phone string) (*models.User, error)

	// SaveMessage records one inbound or outbound message for audit purposes.
	SaveMessage(userID, address, text string, isFromUser bool) error

	// CreateCredentials stores issued trial credentials for a user.
	CreateCredentials(creds models.Credentials) (models.Credentials, error)

	// CreateSupportTicket stores a support ticket collected by the support flow.
	CreateSupportTicket(ticket models.SupportTicket) (models.SupportTicket, error)

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports which database driver a DSN targets: "postgres" for
// postgres:// URLs or key=value connection strings, "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}
