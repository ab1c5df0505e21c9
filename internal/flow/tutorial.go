package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

// TutorialStep is one scripted step of a guided tutorial. Accept decides
// whether the user's reply completes the step; a nil Accept accepts any
// non-empty reply.
type TutorialStep struct {
	Name   string
	Prompt string
	Accept func(text string, entities map[string]string) bool
}

// TutorialHandler drives a scripted tutorial through the same state machine as
// the data-collection flows: remaining steps play the role of missing fields.
type TutorialHandler struct {
	name  string
	steps []TutorialStep
}

// NewTutorialHandler creates a tutorial flow handler for the named script.
func NewTutorialHandler(name string, steps []TutorialStep) *TutorialHandler {
	return &TutorialHandler{name: name, steps: steps}
}

func (h *TutorialHandler) Type() models.FlowType {
	return models.TutorialFlowType(h.name)
}

// Missing returns the names of the steps not yet completed, in script order.
func (h *TutorialHandler) Missing(fl *models.ActiveFlow) []string {
	var remaining []string
	for _, step := range h.steps {
		if fl.CollectedData[step.Name] == "" {
			remaining = append(remaining, step.Name)
		}
	}
	return remaining
}

// Collect marks the current step done when the reply satisfies its predicate.
func (h *TutorialHandler) Collect(fl *models.ActiveFlow, text string, entities map[string]string) {
	remaining := h.Missing(fl)
	if len(remaining) == 0 {
		return
	}
	current := remaining[0]
	for _, step := range h.steps {
		if step.Name != current {
			continue
		}
		accept := step.Accept
		if accept == nil {
			accept = func(text string, _ map[string]string) bool {
				return strings.TrimSpace(text) != ""
			}
		}
		if accept(text, entities) {
			fl.CollectedData[current] = "completado"
			slog.Debug("Tutorial step completed", "tutorial", h.name, "step", current)
		}
		return
	}
}

// Prompt returns the scripted question for the current step.
func (h *TutorialHandler) Prompt(fl *models.ActiveFlow) string {
	remaining := h.Missing(fl)
	if len(remaining) == 0 {
		return ""
	}
	for _, step := range h.steps {
		if step.Name == remaining[0] {
			return step.Prompt
		}
	}
	return ""
}

// OnComplete has no external side effect for tutorials.
func (h *TutorialHandler) OnComplete(ctx context.Context, fl *models.ActiveFlow) (map[string]string, error) {
	slog.Info("Tutorial completed", "userID", fl.UserID, "tutorial", h.name)
	return map[string]string{"tutorial": h.name}, nil
}

// ERPTutorialSteps is the scripted ERP onboarding tutorial.
func ERPTutorialSteps() []TutorialStep {
	return []TutorialStep{
		{Name: "acceso", Prompt: "Paso 1: entra a https://erp.ejemplo.com e inicia sesión con tus credenciales. Escribe \"listo\" cuando hayas entrado."},
		{Name: "empresa", Prompt: "Paso 2: en Configuración > Empresa, completa los datos de tu empresa. ¿Terminaste?"},
		{Name: "productos", Prompt: "Paso 3: registra tu primer producto en Inventario > Nuevo producto. Avísame cuando esté."},
		{Name: "factura", Prompt: "Paso 4: genera una factura de prueba desde Ventas > Nueva factura. ¿Pudiste generarla?"},
	}
}

// CRMTutorialSteps is the scripted CRM onboarding tutorial.
func CRMTutorialSteps() []TutorialStep {
	return []TutorialStep{
		{Name: "acceso", Prompt: "Paso 1: entra a https://crm.ejemplo.com e inicia sesión. Escribe \"listo\" cuando hayas entrado."},
		{Name: "contacto", Prompt: "Paso 2: crea tu primer contacto en Contactos > Nuevo. ¿Terminaste?"},
		{Name: "oportunidad", Prompt: "Paso 3: registra una oportunidad de venta para ese contacto. Avísame cuando esté."},
	}
}
