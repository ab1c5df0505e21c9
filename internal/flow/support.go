package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
	"github.com/aftorrescurrea/chatbot-sub000/internal/store"
)

// SupportHandler collects a technical support request and opens a ticket on
// completion.
type SupportHandler struct {
	fieldFlow
	store store.Store
}

// NewSupportHandler creates the support intake flow handler backed by the given store.
func NewSupportHandler(st store.Store) *SupportHandler {
	return &SupportHandler{
		fieldFlow: fieldFlow{
			flowType: models.FlowTypeSupport,
			fields: []FieldSpec{
				{Name: models.FieldNombre, Prompt: "¿Cuál es tu nombre?", Valid: validName},
				{Name: models.FieldEmail, Prompt: "¿Cuál es tu correo electrónico?", Valid: validEmail},
				{Name: models.FieldDescripcion, Prompt: "Describe brevemente el problema que tienes.", Valid: validText},
			},
		},
		store: st,
	}
}

// OnComplete opens the support ticket. On store failure the flow stays active.
func (h *SupportHandler) OnComplete(ctx context.Context, fl *models.ActiveFlow) (map[string]string, error) {
	data := fl.CollectedData

	var userID string
	if user, err := h.store.FindUserByPhone(fl.UserID); err == nil && user != nil {
		userID = user.ID
	}

	ticket, err := h.store.CreateSupportTicket(models.SupportTicket{
		UserID:      userID,
		Name:        data[models.FieldNombre],
		Email:       data[models.FieldEmail],
		Description: data[models.FieldDescripcion],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create support ticket: %w", err)
	}

	slog.Info("Support ticket created", "userID", fl.UserID, "ticketID", ticket.ID)
	return map[string]string{
		"ticket": ticket.ID,
	}, nil
}
