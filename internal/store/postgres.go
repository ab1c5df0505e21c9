// Package store provides storage backends for the chatbot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied")

	return &PostgresStore{db: db}, nil
}

// CreateOrUpdateUser upserts a user keyed by phone.
func (s *PostgresStore) CreateOrUpdateUser(user models.User) (models.User, error) {
	if user.Phone == "" {
		return models.User{}, fmt.Errorf("user phone is required")
	}

	existing, err := s.FindUserByPhone(user.Phone)
	if err != nil {
		return models.User{}, err
	}

	now := time.Now()
	if existing != nil {
		merged := *existing
		mergeUser(&merged, user)
		merged.UpdatedAt = now
		_, err = s.db.Exec(
			`UPDATE users SET name=$1, email=$2, company=$3, position=$4, is_registered=$5, updated_at=$6 WHERE id=$7`,
			merged.Name, merged.Email, merged.Company, merged.Position, merged.IsRegistered, merged.UpdatedAt, merged.ID,
		)
		if err != nil {
			slog.Error("PostgresStore CreateOrUpdateUser update failed", "error", err, "phone", user.Phone)
			return models.User{}, fmt.Errorf("failed to update user: %w", err)
		}
		return merged, nil
	}

	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err = s.db.Exec(
		`INSERT INTO users (id, phone, name, email, company, position, is_registered, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Phone, user.Name, user.Email, user.Company, user.Position, user.IsRegistered, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore CreateOrUpdateUser insert failed", "error", err, "phone", user.Phone)
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// FindUserByPhone returns the user with the given phone, or nil if absent.
func (s *PostgresStore) FindUserByPhone(phone string) (*models.User, error) {
	row := s.db.QueryRow(
		`SELECT id, phone, name, email, company, position, is_registered, created_at, updated_at FROM users WHERE phone = $1`,
		phone,
	)
	var u models.User
	var name, email, company, position sql.NullString
	err := row.Scan(&u.ID, &u.Phone, &name, &email, &company, &position, &u.IsRegistered, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindUserByPhone scan failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	u.Name = name.String
	u.Email = email.String
	u.Company = company.String
	u.Position = position.String
	return &u, nil
}

// SaveMessage records one message.
func (s *PostgresStore) SaveMessage(userID, address, text string, isFromUser bool) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (user_id, address, text, is_from_user, created_at) VALUES ($1, $2, $3, $4, $5)`,
		nilIfEmpty(userID), address, text, isFromUser, time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore SaveMessage failed", "error", err, "address", address)
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// CreateCredentials stores issued trial credentials.
func (s *PostgresStore) CreateCredentials(creds models.Credentials) (models.Credentials, error) {
	creds.ID = uuid.NewString()
	creds.CreatedAt = time.Now()
	_, err := s.db.Exec(
		`INSERT INTO credentials (id, user_id, username, password, service_type, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		creds.ID, creds.UserID, creds.Username, creds.Password, creds.ServiceType, creds.ExpiresAt, creds.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore CreateCredentials failed", "error", err, "user_id", creds.UserID)
		return models.Credentials{}, fmt.Errorf("failed to create credentials: %w", err)
	}
	return creds, nil
}

// CreateSupportTicket stores a support ticket.
func (s *PostgresStore) CreateSupportTicket(ticket models.SupportTicket) (models.SupportTicket, error) {
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now()
	if ticket.Status == "" {
		ticket.Status = "open"
	}
	_, err := s.db.Exec(
		`INSERT INTO support_tickets (id, user_id, name, email, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ticket.ID, nilIfEmpty(ticket.UserID), ticket.Name, ticket.Email, ticket.Description, ticket.Status, ticket.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore CreateSupportTicket failed", "error", err)
		return models.SupportTicket{}, fmt.Errorf("failed to create support ticket: %w", err)
	}
	return ticket, nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
