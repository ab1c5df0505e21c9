package flow

import (
	"strings"

	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
)

// FieldSpec describes one required field of a data-collection flow.
type FieldSpec struct {
	Name   string
	Prompt string
	Valid  func(value string) bool
}

// fieldFlow is the shared base for flows that collect a fixed set of fields.
type fieldFlow struct {
	flowType models.FlowType
	fields   []FieldSpec
}

func (f *fieldFlow) Type() models.FlowType {
	return f.flowType
}

// Missing returns the required fields without a valid collected value, in
// prompt order.
func (f *fieldFlow) Missing(fl *models.ActiveFlow) []string {
	var missing []string
	for _, spec := range f.fields {
		value, ok := fl.CollectedData[spec.Name]
		if !ok || !spec.Valid(value) {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

// Collect merges valid extracted entities into the flow's data. When the NLU
// extracted nothing for the field currently being asked, the raw message text
// is tried as the answer, so short replies like a bare name still land.
func (f *fieldFlow) Collect(fl *models.ActiveFlow, text string, entities map[string]string) {
	for _, spec := range f.fields {
		if value, ok := entities[spec.Name]; ok && spec.Valid(value) {
			fl.CollectedData[spec.Name] = value
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	missing := f.Missing(fl)
	if len(missing) == 0 {
		return
	}
	current := missing[0]
	if _, extracted := entities[current]; extracted {
		return
	}
	for _, spec := range f.fields {
		if spec.Name == current && spec.Valid(text) {
			fl.CollectedData[current] = text
			return
		}
	}
}

// Prompt returns the question for the first missing field.
func (f *fieldFlow) Prompt(fl *models.ActiveFlow) string {
	missing := f.Missing(fl)
	if len(missing) == 0 {
		return ""
	}
	for _, spec := range f.fields {
		if spec.Name == missing[0] {
			return spec.Prompt
		}
	}
	return ""
}

// placeholders are generic filler values that count as absent.
var placeholders = map[string]bool{
	"usuario":          true,
	"no proporcionado": true,
	"n/a":              true,
	"na":               true,
	"-":                true,
	"pendiente":        true,
}

// validText accepts any value that is not empty or a known placeholder.
func validText(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v != "" && !placeholders[v]
}

// validName requires a non-placeholder value of at least two characters.
func validName(value string) bool {
	return validText(value) && len(strings.TrimSpace(value)) >= 2
}

// validEmail requires an @ with a dot in the domain part.
func validEmail(value string) bool {
	v := strings.TrimSpace(value)
	if !validText(v) {
		return false
	}
	at := strings.Index(v, "@")
	if at <= 0 || at == len(v)-1 {
		return false
	}
	return strings.Contains(v[at+1:], ".")
}

// validPassword requires at least six characters.
func validPassword(value string) bool {
	return validText(value) && len(strings.TrimSpace(value)) >= 6
}
