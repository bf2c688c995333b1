package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"unab.cl/superapp/internal/attachment"
	"unab.cl/superapp/internal/persona"
	"unab.cl/superapp/internal/session"
	"unab.cl/superapp/internal/transcript"
)

const (
	// ErrorApology replaces any provider failure in the transcript.
	ErrorApology = "Lo siento, mis circuitos están sobrecargados. Intenta de nuevo."
	// EmptyReplyFallback replaces a successful but empty provider reply.
	EmptyReplyFallback = "Lo siento, no pude procesar tu solicitud. Intenta reformularla."

	AudioPlaceholder = "[Audio Adjunto]"
	ImagePlaceholder = "[Imagen Adjunta]"

	DefaultProviderTimeout = 60 * time.Second
)

var ErrEmptyMessage = errors.New("message has neither text nor a usable attachment")

type SubmitRequest struct {
	Persona persona.Persona
	Text    string
	Image   *attachment.Media
	Audio   *attachment.Media
}

// ChatService drives one send at a time per persona: it appends the user
// entry, calls the provider and settles the reply into the same transcript.
// It is the only component that talks to the provider.
type ChatService struct {
	provider Provider
	composer *Composer
	timeout  time.Duration
	logger   *zap.Logger
}

func NewChatService(provider Provider, composer *Composer, timeout time.Duration, logger *zap.Logger) *ChatService {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &ChatService{
		provider: provider,
		composer: composer,
		timeout:  timeout,
		logger:   logger,
	}
}

// Submit sends a user message to req.Persona and returns the settled transcript.
// It fails with persona.ErrUnknownPersona, session.ErrSendInFlight or
// ErrEmptyMessage before anything is appended; provider failures never
// surface as errors, only as an error-flagged assistant entry.
func (s *ChatService) Submit(ctx context.Context, sess *session.Session, req SubmitRequest) ([]transcript.Message, error) {
	policy, err := persona.Lookup(req.Persona)
	if err != nil {
		return nil, err
	}

	media := attachment.Select(req.Image, req.Audio)
	hasText := strings.TrimSpace(req.Text) != ""
	if !hasText && media == nil {
		return nil, ErrEmptyMessage
	}

	if err := sess.Reserve(req.Persona); err != nil {
		return nil, err
	}

	payload, err := s.encode(ctx, req.Persona, media)
	if !hasText && payload == nil {
		sess.Release(req.Persona)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmptyMessage, err)
		}
		return nil, ErrEmptyMessage
	}

	// Blank text shows a placeholder in the transcript. Only the audio
	// placeholder reaches the provider; an image goes out with the
	// composer's default text.
	userText, promptText := req.Text, req.Text
	if !hasText {
		userText = placeholderFor(media.Kind)
		if media.Kind == attachment.KindAudio {
			promptText = AudioPlaceholder
		}
	}

	snapshot := sess.Commit(req.Persona, transcript.NewUserMessage(userText))
	request := s.composer.Compose(policy, snapshot[:len(snapshot)-1], promptText, payload)

	reply := s.dispatch(ctx, req.Persona, request)
	return sess.Settle(req.Persona, reply), nil
}

// ClearHistory resets the persona transcript. It is refused while a send is in flight.
func (s *ChatService) ClearHistory(sess *session.Session, p persona.Persona) ([]transcript.Message, error) {
	return sess.Clear(p)
}

// SwitchPersona changes the active persona without modifying any transcript.
func (s *ChatService) SwitchPersona(sess *session.Session, p persona.Persona) ([]transcript.Message, error) {
	return sess.Switch(p)
}

// encode turns the selected media into a payload. A failure is logged and
// the send continues without the attachment.
func (s *ChatService) encode(ctx context.Context, p persona.Persona, media *attachment.Media) (*attachment.Payload, error) {
	if media == nil {
		return nil, nil
	}
	payload, err := attachment.Encode(ctx, *media)
	if err != nil {
		s.logger.Warn("Dropping attachment that could not be encoded",
			zap.String("persona", p.String()),
			zap.String("kind", string(media.Kind)),
			zap.Error(err))
		return nil, err
	}
	return &payload, nil
}

// dispatch calls the provider on a context that survives the caller going
// away, so the reply still lands in the right transcript.
func (s *ChatService) dispatch(ctx context.Context, p persona.Persona, req Request) (reply transcript.Message) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Provider panicked", zap.String("persona", p.String()), zap.Any("panic", r))
			reply = transcript.NewErrorMessage(ErrorApology)
		}
	}()

	start := time.Now()
	text, err := s.provider.Generate(callCtx, req)
	if err != nil {
		s.logger.Error("Error generating model response",
			zap.String("provider", s.provider.Name()),
			zap.String("persona", p.String()),
			zap.String("model", req.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return transcript.NewErrorMessage(ErrorApology)
	}

	if strings.TrimSpace(text) == "" {
		s.logger.Warn("Provider returned an empty reply", zap.String("persona", p.String()), zap.String("model", req.Model))
		return transcript.NewAssistantMessage(EmptyReplyFallback)
	}

	s.logger.Debug("Model response received",
		zap.String("persona", p.String()),
		zap.String("model", req.Model),
		zap.Int("length", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	return transcript.NewAssistantMessage(text)
}

func placeholderFor(k attachment.Kind) string {
	if k == attachment.KindAudio {
		return AudioPlaceholder
	}
	return ImagePlaceholder
}
