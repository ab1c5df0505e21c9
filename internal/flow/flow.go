// Package flow implements the multi-step flow state machine: data collection
// flows (trial signup, support intake) and scripted tutorial flows, with
// missing-field computation, step advancement, completion side effects, and
// expiry of abandoned flows.
package flow

import (
	"context"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

// Handler defines one flow kind. The engine drives every flow through this
// interface so adding a flow kind never touches the engine's control flow.
type Handler interface {
	// Type returns the flow type tag this handler serves.
	Type() models.FlowType

	// Missing returns the ordered list of still-required inputs for the flow;
	// the first element is the next thing to ask for. Empty means complete.
	Missing(flow *models.ActiveFlow) []string

	// Collect merges one turn's input (message text plus extracted entities)
	// into the flow's collected data. Invalid values are ignored.
	Collect(flow *models.ActiveFlow, text string, entities map[string]string)

	// Prompt returns the next question to ask the user, or "" when done.
	Prompt(flow *models.ActiveFlow) string

	// OnComplete performs the flow's completion side effect (issuing
	// credentials, opening a ticket) and returns a payload for the response
	// generator. An error means the side effect did not happen and the flow
	// must stay active for retry.
	OnComplete(ctx context.Context, flow *models.ActiveFlow) (map[string]string, error)
}
