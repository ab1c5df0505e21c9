// Package nlu provides natural-language understanding for inbound messages:
// per-message intent and entity detection backed by the OpenAI chat API.
package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultCallTimeout bounds one NLU call; the orchestrator degrades to empty
// results rather than blocking a turn on a slow provider.
const DefaultCallTimeout = 10 * time.Second

// Service detects intents and entities in one message.
type Service interface {
	Detect(ctx context.Context, text string, known map[string]string) (models.NLUResult, error)
}

// Opts holds configuration options for the OpenAI-backed service.
type Opts struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Option defines a configuration option for the OpenAI-backed service.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly instead of reading the environment.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model used for detection.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// OpenAIService implements Service using OpenAI chat completions with a
// strict-JSON extraction prompt.
type OpenAIService struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIService creates the OpenAI-backed NLU service. The API key comes
// from options or the OPENAI_API_KEY environment variable.
func NewOpenAIService(opts ...Option) (*OpenAIService, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	slog.Debug("Creating OpenAI NLU service", "model", model, "timeout", timeout)
	return &OpenAIService{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
	}, nil
}

// systemPrompt instructs the model to emit only the JSON detection result.
// The taxonomy matches the intent and entity constants in models.
const systemPrompt = `Eres un analizador de mensajes para un chatbot de WhatsApp en español que ofrece
pruebas gratuitas de servicios ERP y CRM, soporte técnico y tutoriales guiados.

Analiza el mensaje del usuario y responde ÚNICAMENTE con un objeto JSON:
{"intents": [...], "entities": {...}}

Intents posibles: saludo, despedida, agradecimiento, confirmacion, negacion,
consulta_servicios, interes_en_servicio, solicitud_prueba, soporte_tecnico,
queja, cancelacion, solicitud_tutorial.

Entities posibles (solo si aparecen literalmente en el mensaje): nombre, email,
usuario, clave, empresa, cargo, servicio, descripcion.

No inventes valores. Si no detectas nada, responde {"intents": [], "entities": {}}.`

// Detect runs one NLU call for the message. Known entities are passed as
// context so short answers ("Juan Pérez") resolve to the field being asked for.
func (s *OpenAIService) Detect(ctx context.Context, text string, known map[string]string) (models.NLUResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	userContent := text
	if len(known) > 0 {
		ctxJSON, err := json.Marshal(known)
		if err == nil {
			userContent = fmt.Sprintf("Contexto (datos ya conocidos): %s\nMensaje: %s", ctxJSON, text)
		}
	}

	resp, err := s.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userContent),
		},
	})
	if err != nil {
		slog.Error("NLU detection call failed", "error", err)
		return models.NLUResult{}, fmt.Errorf("nlu detection failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("NLU detection returned no choices")
		return models.NLUResult{}, fmt.Errorf("nlu detection returned no choices")
	}

	result, err := parseDetection(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Error("NLU detection output unparseable", "error", err, "content_length", len(resp.Choices[0].Message.Content))
		return models.NLUResult{}, err
	}

	slog.Debug("NLU detection succeeded", "intents", result.Intents, "entity_count", len(result.Entities))
	return result, nil
}

// parseDetection extracts the JSON detection object from model output,
// tolerating code fences and surrounding prose.
func parseDetection(content string) (models.NLUResult, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return models.NLUResult{}, fmt.Errorf("no JSON object in NLU output")
	}

	var raw struct {
		Intents  []string       `json:"intents"`
		Entities map[string]any `json:"entities"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return models.NLUResult{}, fmt.Errorf("malformed NLU output: %w", err)
	}

	result := models.NLUResult{
		Intents:  make([]string, 0, len(raw.Intents)),
		Entities: make(map[string]string, len(raw.Entities)),
	}
	for _, intent := range raw.Intents {
		if intent = strings.TrimSpace(intent); intent != "" {
			result.Intents = append(result.Intents, intent)
		}
	}
	// Non-string entity values are dropped rather than failing the whole parse.
	for name, value := range raw.Entities {
		if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
			result.Entities[name] = strings.TrimSpace(s)
		}
	}
	return result, nil
}
