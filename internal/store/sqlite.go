// Package store provides storage backends for the chatbot.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")

	return &SQLiteStore{db: db}, nil
}

// CreateOrUpdateUser upserts a user keyed by phone.
func (s *SQLiteStore) CreateOrUpdateUser(user models.User) (models.User, error) {
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
			`UPDATE users SET name=?, email=?, company=?, position=?, is_registered=?, updated_at=? WHERE id=?`,
			merged.Name, merged.Email, merged.Company, merged.Position, merged.IsRegistered, merged.UpdatedAt, merged.ID,
		)
		if err != nil {
			slog.Error("SQLiteStore CreateOrUpdateUser update failed", "error", err, "phone", user.Phone)
			return models.User{}, fmt.Errorf("failed to update user: %w", err)
		}
		return merged, nil
	}

	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err = s.db.Exec(
		`INSERT INTO users (id, phone, name, email, company, position, is_registered, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Phone, user.Name, user.Email, user.Company, user.Position, user.IsRegistered, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateOrUpdateUser insert failed", "error", err, "phone", user.Phone)
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// FindUserByPhone returns the user with the given phone, or nil if absent.
func (s *SQLiteStore) FindUserByPhone(phone string) (*models.User, error) {
	row := s.db.QueryRow(
		`SELECT id, phone, name, email, company, position, is_registered, created_at, updated_at FROM users WHERE phone = ?`,
		phone,
	)
	var u models.User
	var name, email, company, position sql.NullString
	err := row.Scan(&u.ID, &u.Phone, &name, &email, &company, &position, &u.IsRegistered, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindUserByPhone scan failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	u.Name = name.String
	u.Email = email.String
	u.Company = company.String
	u.Position = position.String
	return &u, nil
}

// SaveMessage records one message.
func (s *SQLiteStore) SaveMessage(userID, address, text string, isFromUser bool) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (user_id, address, text, is_from_user, created_at) VALUES (?, ?, ?, ?, ?)`,
		nilIfEmpty(userID), address, text, isFromUser, time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveMessage failed", "error", err, "address", address)
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// CreateCredentials stores issued trial credentials.
func (s *SQLiteStore) CreateCredentials(creds models.Credentials) (models.Credentials, error) {
	creds.ID = uuid.NewString()
	creds.CreatedAt = time.Now()
	_, err := s.db.Exec(
		`INSERT INTO credentials (id, user_id, username, password, service_type, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		creds.ID, creds.UserID, creds.Username, creds.Password, creds.ServiceType, creds.ExpiresAt, creds.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateCredentials failed", "error", err, "user_id", creds.UserID)
		return models.Credentials{}, fmt.Errorf("failed to create credentials: %w", err)
	}
	return creds, nil
}

// CreateSupportTicket stores a support ticket.
func (s *SQLiteStore) CreateSupportTicket(ticket models.SupportTicket) (models.SupportTicket, error) {
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now()
	if ticket.Status == "" {
		ticket.Status = "open"
	}
	_, err := s.db.Exec(
		`INSERT INTO support_tickets (id, user_id, name, email, description, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID, nilIfEmpty(ticket.UserID), ticket.Name, ticket.Email, ticket.Description, ticket.Status, ticket.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateSupportTicket failed", "error", err)
		return models.SupportTicket{}, fmt.Errorf("failed to create support ticket: %w", err)
	}
	return ticket, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
