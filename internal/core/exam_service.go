package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"unab.cl/superapp/internal/transcript"
)

type Difficulty string

const (
	DifficultyBasic        Difficulty = "Basic"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyUniversity   Difficulty = "University"
	DifficultyPhD          Difficulty = "PhD"
)

const (
	examTemperature     = 0.4
	examMaxOutputTokens = 8192
	minExamLength       = 50
	maxExamQuestions    = 50
)

var (
	ErrInvalidExam    = errors.New("invalid exam request")
	ErrIncompleteExam = errors.New("exam generation returned an incomplete document")
)

var levelInstructions = map[Difficulty]string{
	DifficultyBasic:        "Nivel RECORDAR/COMPRENDER: Preguntas conceptuales directas. Definiciones y aplicaciones simples de fórmulas.",
	DifficultyIntermediate: "Nivel APLICAR/ANALIZAR: Problemas estándar de ingeniería que requieren seleccionar la fórmula correcta entre varias.",
	DifficultyUniversity:   "Nivel EVALUAR: Problemas complejos y de múltiples etapas. Requiere integración de conceptos.",
	DifficultyPhD:          "Nivel CREAR (EXPERTO): Problemas no triviales, casos de borde o demostraciones teóricas complejas.",
}

type ExamRequest struct {
	Topic      string     `json:"topic"`
	Difficulty Difficulty `json:"difficulty"`
	Questions  int        `json:"questions"`
}

func (r ExamRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidExam)
	}
	if r.Questions < 1 || r.Questions > maxExamQuestions {
		return fmt.Errorf("%w: questions must be between 1 and %d", ErrInvalidExam, maxExamQuestions)
	}
	return nil
}

// Split returns how many multiple-choice and development questions to ask.
func (r ExamRequest) Split() (multipleChoice, development int) {
	return int(math.Floor(float64(r.Questions) * 0.6)), int(math.Ceil(float64(r.Questions) * 0.4))
}

// ExamService generates assessment documents for teachers.
type ExamService struct {
	provider Provider
	model    string
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewExamService uses model for every exam; callers pass the fast tier.
func NewExamService(provider Provider, model string, timeout time.Duration, logger *zap.Logger) *ExamService {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &ExamService{
		provider: provider,
		model:    model,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// GenerateExam returns the exam as Markdown. Unlike chat, provider errors are returned to the caller.
func (s *ExamService) GenerateExam(ctx context.Context, req ExamRequest) (string, error) {
	if req.Difficulty == "" {
		req.Difficulty = DifficultyUniversity
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.provider.Generate(ctx, Request{
		Model:           s.model,
		Temperature:     examTemperature,
		MaxOutputTokens: examMaxOutputTokens,
		Message: Content{
			Role:  transcript.RoleUser,
			Parts: []Part{{Text: s.examPrompt(req)}},
		},
	})
	if err != nil {
		s.logger.Error("Exam generation failed", zap.String("topic", req.Topic), zap.Error(err))
		return "", fmt.Errorf("failed to generate exam: %w", err)
	}

	text = strings.TrimSpace(text)
	if len(text) < minExamLength {
		return "", ErrIncompleteExam
	}
	return text, nil
}

// levelInstruction falls back to the expert level for unrecognised difficulties.
func levelInstruction(d Difficulty) string {
	if inst, ok := levelInstructions[d]; ok {
		return inst
	}
	return levelInstructions[DifficultyPhD]
}

func (s *ExamService) examPrompt(req ExamRequest) string {
	now := s.now()
	mc, dev := req.Split()

	return fmt.Sprintf(`Actúa como un Profesor Universitario Senior de Ingeniería (PhD).
CONTEXTO: %s.
TAREA: Diseñar una Evaluación Solemne de ALTO NIVEL ACADÉMICO sobre: %s.
DIFICULTAD: %s (%s).
CANTIDAD TOTAL DE PREGUNTAS: %d.

DIRECTRICES DE INGENIERÍA DE PREGUNTAS (CRÍTICO):

1. SELECCIÓN MÚLTIPLE (Complejidad: Alta):
   - Las alternativas incorrectas (distractores) NO pueden ser aleatorias. Deben ser el resultado de ERRORES COMUNES del estudiante (ej: error de signo, olvidar convertir unidades, confusión conceptual, inversión de numerador/denominador).
   - Evita que la respuesta correcta sea visualmente obvia o siempre la más larga.
   - NO uses "Todas las anteriores" o "Ninguna de las anteriores".
   - Estructura: Enunciado claro -> 4 opciones -> Respuesta marcada en negrita.

2. PREGUNTAS DE DESARROLLO (Casos Prácticos):
   - PROHIBIDO hacer preguntas del tipo "Calcule la integral de...".
   - OBLIGATORIO: Contextualiza el problema en una situación real de industria, investigación o ingeniería.
   - El enunciado debe tener al menos 3 líneas de contexto antes de pedir el cálculo.

3. FORMATO TÉCNICO:
   - Usa LaTeX estándar para TODAS las fórmulas matemáticas (ej: $x^2$, \frac{a}{b}).
   - Asegúrate de que las unidades de medida sean consistentes y explícitas.

FORMATO DE SALIDA REQUERIDO (MARKDOWN):
# SOLEMNE DE %s
**Dificultad:** %s | **Fecha:** %s

## I. Selección Múltiple (Conceptos y Cálculos Rápidos)
(Genera %d preguntas. Estructura:
 1. Enunciado del problema...
    a) Distractor plausible (error común 1)
    b) **Respuesta Correcta**
    c) Distractor plausible (error común 2)
    d) Distractor plausible (error conceptual))

## II. Desarrollo y Resolución de Problemas (Casos Aplicados)
(Genera %d preguntas. Redacta el caso detallado).

IMPORTANTE: Maximiza la calidad y el rigor académico.`,
		now.Format(time.RFC3339),
		req.Topic,
		req.Difficulty, levelInstruction(req.Difficulty),
		req.Questions,
		strings.ToUpper(req.Topic),
		req.Difficulty, now.Format("02/01/2006"),
		mc,
		dev,
	)
}
