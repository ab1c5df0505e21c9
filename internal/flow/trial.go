package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
	"github.com/aftorrescurrea/chatbot-sub000/internal/store"
	"github.com/aftorrescurrea/chatbot-sub000/internal/util"
)

// DefaultTrialDays is how long issued trial credentials remain valid.
const DefaultTrialDays = 15

// generatedPasswordLength is the length of suggested trial passwords.
const generatedPasswordLength = 8

// TrialHandler collects signup data for a service trial and issues credentials
// on completion.
type TrialHandler struct {
	fieldFlow
	store     store.Store
	trialDays int
}

// NewTrialHandler creates the trial signup flow handler backed by the given store.
func NewTrialHandler(st store.Store) *TrialHandler {
	return &TrialHandler{
		fieldFlow: fieldFlow{
			flowType: models.FlowTypeTrial,
			fields: []FieldSpec{
				{Name: models.FieldNombre, Prompt: "¿Cuál es tu nombre completo?", Valid: validName},
				{Name: models.FieldEmail, Prompt: "¿Cuál es tu correo electrónico?", Valid: validEmail},
				{Name: models.FieldUsuario, Prompt: "¿Qué nombre de usuario te gustaría usar? Si prefieres, escribe \"sugerir\" y te propongo uno.", Valid: validText},
				{Name: models.FieldClave, Prompt: "Elige una contraseña (mínimo 6 caracteres), o escribe \"sugerir\" y genero una por ti.", Valid: validPassword},
			},
		},
		store:     st,
		trialDays: DefaultTrialDays,
	}
}

// suggestionRequests are replies that ask the bot to pick the value itself.
var suggestionRequests = map[string]bool{
	"sugerir":    true,
	"sugiere":    true,
	"tú eliges":  true,
	"tu eliges":  true,
	"no sé":      true,
	"no se":      true,
	"genera uno": true,
	"genera una": true,
}

// Collect also captures which service the user wants to try; it is not a
// required field, but it decides which credentials OnComplete issues. When the
// user asks for a suggestion instead of answering the usuario or clave prompt,
// a generated value fills the field.
func (h *TrialHandler) Collect(fl *models.ActiveFlow, text string, entities map[string]string) {
	if v, ok := entities[models.FieldServicio]; ok && validText(v) {
		fl.CollectedData[models.FieldServicio] = strings.ToLower(strings.TrimSpace(v))
	}
	if suggestionRequests[strings.ToLower(strings.TrimSpace(text))] {
		if missing := h.Missing(fl); len(missing) > 0 {
			switch missing[0] {
			case models.FieldUsuario:
				fl.CollectedData[models.FieldUsuario] = util.GenerateUsername(fl.CollectedData[models.FieldNombre])
				return
			case models.FieldClave:
				fl.CollectedData[models.FieldClave] = util.GeneratePassword(generatedPasswordLength)
				return
			}
		}
	}
	h.fieldFlow.Collect(fl, text, entities)
}

// OnComplete registers the user and issues trial credentials. On store failure
// no credentials exist and the flow stays active for retry.
func (h *TrialHandler) OnComplete(ctx context.Context, fl *models.ActiveFlow) (map[string]string, error) {
	data := fl.CollectedData
	serviceType := data[models.FieldServicio]
	if serviceType == "" {
		serviceType = "erp"
	}

	user, err := h.store.CreateOrUpdateUser(models.User{
		Phone:        fl.UserID,
		Name:         data[models.FieldNombre],
		Email:        data[models.FieldEmail],
		Company:      data[models.FieldEmpresa],
		Position:     data[models.FieldCargo],
		IsRegistered: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register trial user: %w", err)
	}

	creds, err := h.store.CreateCredentials(models.Credentials{
		UserID:      user.ID,
		Username:    data[models.FieldUsuario],
		Password:    data[models.FieldClave],
		ServiceType: serviceType,
		ExpiresAt:   time.Now().AddDate(0, 0, h.trialDays),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue trial credentials: %w", err)
	}

	slog.Info("Trial credentials issued", "userID", fl.UserID, "username", creds.Username, "serviceType", serviceType)
	return map[string]string{
		models.FieldUsuario:  creds.Username,
		models.FieldClave:    creds.Password,
		models.FieldServicio: serviceType,
		"expira":             creds.ExpiresAt.Format("2006-01-02"),
	}, nil
}
