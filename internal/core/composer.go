package core

import (
	"strings"

	"unab.cl/superapp/internal/attachment"
	"unab.cl/superapp/internal/persona"
	"unab.cl/superapp/internal/transcript"
)

// EmptyTextPlaceholder is sent when a turn would otherwise carry no text.
const EmptyTextPlaceholder = "..."

// Composer turns a persona policy and a transcript into a provider Request.
type Composer struct {
	models ModelCatalog
}

func NewComposer(models ModelCatalog) *Composer {
	return &Composer{models: models}
}

// Compose builds the request for newText. history must not contain the new
// user turn; it is sent separately as the request message.
func (c *Composer) Compose(policy persona.Policy, history []transcript.Message, newText string, payload *attachment.Payload) Request {
	contents := make([]Content, 0, len(history))
	for _, m := range history {
		contents = append(contents, Content{
			Role:  m.Role,
			Parts: []Part{{Text: m.Text}},
		})
	}

	text := newText
	if strings.TrimSpace(text) == "" {
		text = EmptyTextPlaceholder
	}
	parts := []Part{{Text: text}}
	if payload != nil {
		p := *payload
		parts = append(parts, Part{InlineData: &p})
	}

	return Request{
		Model:             c.models.Model(policy.Tier),
		SystemInstruction: policy.SystemPrompt,
		Temperature:       policy.Temperature,
		History:           contents,
		Message: Content{
			Role:  transcript.RoleUser,
			Parts: parts,
		},
	}
}
