package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unab.cl/superapp/internal/attachment"
	"unab.cl/superapp/internal/persona"
	"unab.cl/superapp/internal/transcript"
)

var testModels = ModelCatalog{Fast: "fast-model", Reasoning: "reasoning-model"}

func TestModelCatalog(t *testing.T) {
	assert.Equal(t, "fast-model", testModels.Model(persona.TierFast))
	assert.Equal(t, "reasoning-model", testModels.Model(persona.TierReasoning))
}

func TestComposer_Compose(t *testing.T) {
	c := NewComposer(testModels)
	policy := persona.MustLookup(persona.Tutor)
	history := []transcript.Message{
		transcript.NewAssistantMessage(policy.Welcome),
		transcript.NewUserMessage("hola"),
		transcript.NewAssistantMessage("¿Qué materia?"),
	}

	req := c.Compose(policy, history, "Cálculo", nil)

	assert.Equal(t, "reasoning-model", req.Model)
	assert.Equal(t, policy.SystemPrompt, req.SystemInstruction)
	assert.Equal(t, float32(0.4), req.Temperature)
	require.Len(t, req.History, 3)
	assert.Equal(t, transcript.RoleAssistant, req.History[0].Role)
	assert.Equal(t, transcript.RoleUser, req.History[1].Role)
	assert.Equal(t, []Part{{Text: "hola"}}, req.History[1].Parts)
	assert.Equal(t, Content{Role: transcript.RoleUser, Parts: []Part{{Text: "Cálculo"}}}, req.Message)
}

func TestComposer_PolicyPerPersona(t *testing.T) {
	c := NewComposer(testModels)

	psy := c.Compose(persona.MustLookup(persona.Psychologist), nil, "hola", nil)
	assert.Equal(t, "fast-model", psy.Model)
	assert.Equal(t, float32(0.9), psy.Temperature)

	admin := c.Compose(persona.MustLookup(persona.Bureaucracy), nil, "hola", nil)
	assert.Equal(t, "fast-model", admin.Model)
	assert.Equal(t, float32(0.4), admin.Temperature)

	coach := c.Compose(persona.MustLookup(persona.Coach), nil, "hola", nil)
	assert.Equal(t, "reasoning-model", coach.Model)
}

func TestComposer_Attachment(t *testing.T) {
	c := NewComposer(testModels)
	payload := &attachment.Payload{MIMEType: "image/jpeg", Data: "aGVsbG8="}

	req := c.Compose(persona.MustLookup(persona.Coach), nil, "", payload)

	require.Len(t, req.Message.Parts, 2)
	assert.Equal(t, EmptyTextPlaceholder, req.Message.Parts[0].Text)
	require.NotNil(t, req.Message.Parts[1].InlineData)
	assert.Equal(t, *payload, *req.Message.Parts[1].InlineData)

	// The request keeps its own copy of the payload.
	payload.Data = "changed"
	assert.Equal(t, "aGVsbG8=", req.Message.Parts[1].InlineData.Data)
}

func TestComposer_BlankTextPlaceholder(t *testing.T) {
	c := NewComposer(testModels)
	req := c.Compose(persona.MustLookup(persona.Tutor), nil, "   ", nil)
	assert.Equal(t, []Part{{Text: EmptyTextPlaceholder}}, req.Message.Parts)
	assert.Empty(t, req.History)
}
