// Package models defines flow and intent type definitions to avoid circular imports.
package models

import "strings"

// FlowType represents a specific kind of multi-step flow.
type FlowType string

// FlowState represents the lifecycle state of a flow for one user.
type FlowState string

// Topic represents a coarse conversational category derived from intents.
type Topic string

// Flow type constants.
const (
	FlowTypeTrial   FlowType = "trial_request"
	FlowTypeSupport FlowType = "support_request"

	// TutorialFlowPrefix prefixes tutorial flow types, e.g. "tutorial:erp".
	TutorialFlowPrefix = "tutorial:"
)

// TutorialFlowType builds the flow type tag for a named tutorial.
func TutorialFlowType(name string) FlowType {
	return FlowType(TutorialFlowPrefix + name)
}

// IsTutorial reports whether the flow type is a tutorial variant.
func (ft FlowType) IsTutorial() bool {
	return strings.HasPrefix(string(ft), TutorialFlowPrefix)
}

// Flow state constants.
const (
	FlowStateNone      FlowState = "none"
	FlowStateActive    FlowState = "active"
	FlowStateCompleted FlowState = "completed"
	FlowStateAbandoned FlowState = "abandoned"
	FlowStateExpired   FlowState = "expired"
)

// Intent constants. Names match the NLU taxonomy used by the Spanish-language bot.
const (
	IntentSaludo            = "saludo"
	IntentDespedida         = "despedida"
	IntentAgradecimiento    = "agradecimiento"
	IntentConfirmacion      = "confirmacion"
	IntentNegacion          = "negacion"
	IntentConsultaServicios = "consulta_servicios"
	IntentInteresServicio   = "interes_en_servicio"
	IntentSolicitudPrueba   = "solicitud_prueba"
	IntentSoporteTecnico    = "soporte_tecnico"
	IntentQueja             = "queja"
	IntentCancelacion       = "cancelacion"
	IntentTutorial          = "solicitud_tutorial"
)

// Topic constants.
const (
	TopicTrialRequest     Topic = "trial_request"
	TopicTechnicalSupport Topic = "technical_support"
	TopicComplaint        Topic = "complaint"
	TopicCancellation     Topic = "cancellation"
	TopicTutorial         Topic = "tutorial"
	TopicServiceInquiry   Topic = "service_inquiry"
	TopicGeneral          Topic = "general"
)

// Entity field name constants. These match the entity names the NLU provider emits.
const (
	FieldNombre      = "nombre"
	FieldEmail       = "email"
	FieldUsuario     = "usuario"
	FieldClave       = "clave"
	FieldEmpresa     = "empresa"
	FieldCargo       = "cargo"
	FieldServicio    = "servicio"
	FieldDescripcion = "descripcion"
)
