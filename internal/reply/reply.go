// Package reply turns a turn's outcome (primary intent plus flow status) into
// the Spanish response text sent back to the user.
package reply

import (
	"fmt"
	"strings"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

// RetryMessage is sent when a flow's completion side effect failed and will be
// retried on the next turn.
const RetryMessage = "Tuvimos un problema procesando tu solicitud. Por favor, inténtalo de nuevo en un momento."

// FarewellPhrase closes the conversation; the orchestrator treats its presence
// in an outgoing message as a session-close trigger.
const FarewellPhrase = "¡Hasta pronto!"

// TopicSwitchNotice opens replies on turns where a topic change dropped an
// in-progress flow without starting a new one.
const TopicSwitchNotice = "De acuerdo, dejamos el proceso anterior."

// Generator produces the outgoing response text for one turn.
type Generator interface {
	Generate(primaryIntent string, status models.FlowStatus) string
}

// TemplateGenerator is a static-template Generator.
type TemplateGenerator struct{}

// NewTemplateGenerator creates the template-based response generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

var intentReplies = map[string]string{
	models.IntentSaludo: "¡Hola! 👋 Soy el asistente virtual. Puedo ayudarte a probar gratis nuestros servicios ERP y CRM, resolver dudas técnicas o guiarte con un tutorial. ¿Qué te gustaría hacer?",
	models.IntentDespedida: "Gracias por escribirnos. " + FarewellPhrase + " 👋",
	models.IntentAgradecimiento: "¡Con gusto! ¿Hay algo más en lo que pueda ayudarte?",
	models.IntentConfirmacion: "¡Perfecto! ¿En qué más puedo ayudarte?",
	models.IntentNegacion: "De acuerdo. Si cambias de opinión, aquí estaré.",
	models.IntentConsultaServicios: "Ofrecemos dos servicios en la nube: un ERP para administrar tu negocio y un CRM para gestionar tus clientes. Ambos tienen prueba gratuita de 15 días. ¿Quieres probar alguno?",
	models.IntentInteresServicio: "¡Excelente elección! ¿Te gustaría crear una cuenta de prueba gratuita de 15 días?",
	models.IntentQueja: "Lamento mucho el inconveniente. ¿Quieres que levante un reporte con nuestro equipo de soporte técnico?",
	models.IntentCancelacion: "De acuerdo, he cancelado el proceso. ¿Puedo ayudarte con algo más?",
}

const fallbackReply = "Disculpa, no estoy seguro de haberte entendido. Puedo ayudarte con pruebas gratuitas de nuestros servicios, soporte técnico o tutoriales. ¿Qué necesitas?"

// Generate builds the response for a turn. Flow state takes precedence over
// the primary intent: an active flow asks its next question, a completed flow
// reports its payload.
func (g *TemplateGenerator) Generate(primaryIntent string, status models.FlowStatus) string {
	switch status.State {
	case models.FlowStateActive:
		return g.activeReply(status)
	case models.FlowStateCompleted:
		return g.completedReply(status)
	case models.FlowStateAbandoned:
		return intentReplies[models.IntentCancelacion]
	}

	if text, ok := intentReplies[primaryIntent]; ok {
		return text
	}
	return fallbackReply
}

func (g *TemplateGenerator) activeReply(status models.FlowStatus) string {
	prompt := status.Prompt
	if prompt == "" {
		prompt = "¿Me compartes el siguiente dato, por favor?"
	}
	if status.Step == 0 && !status.FlowType.IsTutorial() {
		switch status.FlowType {
		case models.FlowTypeTrial:
			return "¡Perfecto! Vamos a crear tu cuenta de prueba gratuita. " + prompt
		case models.FlowTypeSupport:
			return "Lamento el inconveniente, vamos a levantar tu reporte. " + prompt
		}
	}
	return prompt
}

func (g *TemplateGenerator) completedReply(status models.FlowStatus) string {
	switch {
	case status.FlowType == models.FlowTypeTrial:
		return fmt.Sprintf(
			"¡Listo! 🎉 Tu cuenta de prueba de %s está creada.\n\nUsuario: %s\nContraseña: %s\nVence: %s\n\nGracias por registrarte. %s",
			strings.ToUpper(status.Payload[models.FieldServicio]),
			status.Payload[models.FieldUsuario],
			status.Payload[models.FieldClave],
			status.Payload["expira"],
			FarewellPhrase,
		)
	case status.FlowType == models.FlowTypeSupport:
		return fmt.Sprintf(
			"Tu reporte quedó registrado con el folio %s. Nuestro equipo te contactará por correo. %s",
			status.Payload["ticket"],
			FarewellPhrase,
		)
	case status.FlowType.IsTutorial():
		return "¡Felicidades! 🎉 Completaste el tutorial. Si necesitas algo más, aquí estaré."
	}
	return "¡Listo! Tu solicitud fue procesada."
}
