package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var longExam = "# SOLEMNE DE TERMODINÁMICA\n" + strings.Repeat("1. Pregunta de prueba con alternativas.\n", 3)

func newTestExamService(p Provider) *ExamService {
	svc := NewExamService(p, "fast-model", time.Second, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestExamRequest_Split(t *testing.T) {
	tests := []struct {
		questions int
		mc, dev   int
	}{
		{5, 3, 2},
		{10, 6, 4},
		{1, 0, 1},
		{7, 4, 3},
	}
	for _, tt := range tests {
		mc, dev := ExamRequest{Questions: tt.questions}.Split()
		assert.Equal(t, tt.mc, mc, "multiple choice for %d", tt.questions)
		assert.Equal(t, tt.dev, dev, "development for %d", tt.questions)
	}
}

func TestGenerateExam(t *testing.T) {
	provider := &stubProvider{reply: longExam}
	svc := newTestExamService(provider)

	got, err := svc.GenerateExam(context.Background(), ExamRequest{Topic: "Termodinámica", Difficulty: DifficultyBasic, Questions: 5})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(longExam), got)

	requests := provider.Requests()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "fast-model", req.Model)
	assert.Equal(t, float32(examTemperature), req.Temperature)
	assert.Equal(t, int32(examMaxOutputTokens), req.MaxOutputTokens)
	assert.Empty(t, req.SystemInstruction)
	assert.Empty(t, req.History)

	prompt := req.Message.Parts[0].Text
	assert.Contains(t, prompt, "sobre: Termodinámica")
	assert.Contains(t, prompt, "# SOLEMNE DE TERMODINÁMICA")
	assert.Contains(t, prompt, levelInstructions[DifficultyBasic])
	assert.Contains(t, prompt, "CANTIDAD TOTAL DE PREGUNTAS: 5")
	assert.Contains(t, prompt, "(Genera 3 preguntas.")
	assert.Contains(t, prompt, "(Genera 2 preguntas.")
	assert.Contains(t, prompt, "**Fecha:** 12/03/2026")
}

func TestGenerateExam_DefaultsAndFallbackLevel(t *testing.T) {
	provider := &stubProvider{reply: longExam}
	svc := newTestExamService(provider)

	_, err := svc.GenerateExam(context.Background(), ExamRequest{Topic: "Álgebra", Questions: 4})
	require.NoError(t, err)
	assert.Contains(t, provider.Requests()[0].Message.Parts[0].Text, levelInstructions[DifficultyUniversity])

	_, err = svc.GenerateExam(context.Background(), ExamRequest{Topic: "Álgebra", Difficulty: "Olympiad", Questions: 4})
	require.NoError(t, err)
	assert.Contains(t, provider.Requests()[1].Message.Parts[0].Text, levelInstructions[DifficultyPhD])
}

func TestGenerateExam_Errors(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubProvider
		req      ExamRequest
		wantErr  error
	}{
		{name: "missing topic", provider: &stubProvider{reply: longExam}, req: ExamRequest{Questions: 5}, wantErr: ErrInvalidExam},
		{name: "too many questions", provider: &stubProvider{reply: longExam}, req: ExamRequest{Topic: "Física", Questions: 500}, wantErr: ErrInvalidExam},
		{name: "short document", provider: &stubProvider{reply: "Error."}, req: ExamRequest{Topic: "Física", Questions: 5}, wantErr: ErrIncompleteExam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestExamService(tt.provider).GenerateExam(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	cause := errors.New("quota exceeded")
	_, err := newTestExamService(&stubProvider{err: cause}).GenerateExam(context.Background(), ExamRequest{Topic: "Física", Questions: 5})
	assert.ErrorIs(t, err, cause)
}
