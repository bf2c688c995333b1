package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"unab.cl/superapp/internal/attachment"
	"unab.cl/superapp/internal/auth"
	"unab.cl/superapp/internal/core"
	"unab.cl/superapp/internal/persona"
	"unab.cl/superapp/internal/session"
	"unab.cl/superapp/internal/store"
	"unab.cl/superapp/internal/transcript"
)

type contextKey string

const (
	userKey    contextKey = "user"
	sessionKey contextKey = "session"
)

const (
	defaultExamLimit = 20
	maxExamLimit     = 100
)

var ErrForbidden = errors.New("role not allowed")

// maxSubmitBody fits both attachments base64-encoded plus the text and form overhead.
var maxSubmitBody = int64(2*base64.StdEncoding.EncodedLen(attachment.MaxSize) + 1<<16)

type APIHandler struct {
	chatService *core.ChatService
	examService *core.ExamService
	sessions    *session.Manager
	store       *store.SQLiteStore
	logger      *zap.Logger

	maxBodyBytes int64
}

func NewAPIHandler(cs *core.ChatService, es *core.ExamService, sessions *session.Manager, st *store.SQLiteStore, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		chatService: cs,
		examService: es,
		sessions:    sessions,
		store:       st,
		logger:      logger,

		maxBodyBytes: maxSubmitBody,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func userFrom(ctx context.Context) *store.User {
	u, _ := ctx.Value(userKey).(*store.User)
	return u
}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		externalUserID, rawRole, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		role, err := session.ParseRole(rawRole)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.store.GetUserByExternalID(r.Context(), externalUserID)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}
		if err != nil {
			h.logger.Error("Failed to resolve user identity", zap.String("user_id", externalUserID), zap.Error(err))
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		// A later login with another role supersedes this token.
		if role != session.Role(user.Role) {
			http.Error(w, "Token is stale, log in again", http.StatusUnauthorized)
			return
		}

		sess := h.sessions.Resume(user.ExternalUserID, role)

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose session role is not one of roles.
func (h *APIHandler) RequireRole(roles ...session.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessionFrom(r.Context())
			for _, role := range roles {
				if sess != nil && sess.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, ErrForbidden.Error(), http.StatusForbidden)
		})
	}
}

type LoginRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	Role  session.Role `json:"role"`
}

// LoginHandler accepts the email and role as supplied; the institution's
// identity provider is not consulted.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		http.Error(w, "Email is required", http.StatusBadRequest)
		return
	}
	role, err := session.ParseRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.store.UpsertUser(r.Context(), email, string(role)); err != nil {
		h.logger.Error("Error recording login", zap.String("user_id", email), zap.Error(err))
		http.Error(w, "Failed to record login", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateJWT(email, string(role))
	if err != nil {
		h.logger.Error("Error generating JWT", zap.String("user_id", email), zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.sessions.Open(email, role)
	respondJSON(w, http.StatusOK, LoginResponse{Token: token, Role: role})
}

// LogoutHandler drops every transcript of the caller. The next request
// starts from the welcome messages with the tutor active.
func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.sessions.End(sessionFrom(r.Context()).UserID)
	w.WriteHeader(http.StatusNoContent)
}

type PersonaResponse struct {
	ID          persona.Persona `json:"id"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Welcome     string          `json:"welcome"`
	Tier        persona.Tier    `json:"tier"`
}

func (h *APIHandler) ListPersonasHandler(w http.ResponseWriter, r *http.Request) {
	policies := persona.All()
	resp := make([]PersonaResponse, 0, len(policies))
	for _, p := range policies {
		resp = append(resp, PersonaResponse{
			ID:          p.Persona,
			Label:       p.Label,
			Description: p.Description,
			Welcome:     p.Welcome,
			Tier:        p.Tier,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

type ChatStateResponse struct {
	Active   persona.Persona      `json:"active"`
	Messages []transcript.Message `json:"messages"`
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	active := sess.Active()
	respondJSON(w, http.StatusOK, ChatStateResponse{Active: active, Messages: sess.Transcript(active)})
}

type SwitchPersonaRequest struct {
	Persona string `json:"persona"`
}

func (h *APIHandler) SwitchPersonaHandler(w http.ResponseWriter, r *http.Request) {
	var req SwitchPersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	p, err := persona.Parse(req.Persona)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	messages, err := h.chatService.SwitchPersona(sessionFrom(r.Context()), p)
	if err != nil {
		h.writeChatError(w, p, err)
		return
	}
	respondJSON(w, http.StatusOK, ChatStateResponse{Active: p, Messages: messages})
}

type TranscriptResponse struct {
	Persona  persona.Persona      `json:"persona"`
	State    string               `json:"state"`
	Messages []transcript.Message `json:"messages"`
}

func (h *APIHandler) GetTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := personaParam(w, r)
	if !ok {
		return
	}
	sess := sessionFrom(r.Context())
	respondJSON(w, http.StatusOK, TranscriptResponse{
		Persona:  p,
		State:    sess.State(p).String(),
		Messages: sess.Transcript(p),
	})
}

// PostMessageRequest is the JSON form of a send. Image and Audio are data
// URLs or bare base64.
type PostMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
	Audio string `json:"audio,omitempty"`
}

// PostMessageHandler blocks until the reply has settled. It accepts either a
// JSON body or a multipart form with "text" and "image"/"audio" file fields.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := personaParam(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	req, cleanup, err := decodeSubmit(r)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()
	req.Persona = p

	messages, err := h.chatService.Submit(r.Context(), sessionFrom(r.Context()), req)
	if err != nil {
		h.writeChatError(w, p, err)
		return
	}
	respondJSON(w, http.StatusOK, TranscriptResponse{Persona: p, State: session.Idle.String(), Messages: messages})
}

func (h *APIHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := personaParam(w, r)
	if !ok {
		return
	}
	messages, err := h.chatService.ClearHistory(sessionFrom(r.Context()), p)
	if err != nil {
		h.writeChatError(w, p, err)
		return
	}
	respondJSON(w, http.StatusOK, TranscriptResponse{Persona: p, State: session.Idle.String(), Messages: messages})
}

func (h *APIHandler) CreateExamHandler(w http.ResponseWriter, r *http.Request) {
	var req core.ExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	user := userFrom(r.Context())

	content, err := h.examService.GenerateExam(r.Context(), req)
	switch {
	case errors.Is(err, core.ErrInvalidExam):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("Error generating exam", zap.Int64("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to generate exam", http.StatusBadGateway)
		return
	}

	if req.Difficulty == "" {
		req.Difficulty = core.DifficultyUniversity
	}
	exam := &store.Exam{
		UserID:     user.ID,
		Topic:      req.Topic,
		Difficulty: string(req.Difficulty),
		Questions:  req.Questions,
		Content:    content,
	}
	if err := h.store.CreateExam(r.Context(), exam); err != nil {
		h.logger.Error("Error saving exam", zap.Int64("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to save exam", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, exam)
}

func (h *APIHandler) ListExamsHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	limit := defaultExamLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxExamLimit {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	exams, err := h.store.ListExams(r.Context(), user.ID, limit)
	if err != nil {
		h.logger.Error("Error listing exams", zap.Int64("user_id", user.ID), zap.Error(err))
		http.Error(w, "Failed to list exams", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, exams)
}

func (h *APIHandler) writeChatError(w http.ResponseWriter, p persona.Persona, err error) {
	switch {
	case errors.Is(err, session.ErrSendInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, persona.ErrUnknownPersona), errors.Is(err, core.ErrEmptyMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("Chat request failed", zap.String("persona", p.String()), zap.Error(err))
		http.Error(w, "Failed to process chat request", http.StatusInternalServerError)
	}
}

func personaParam(w http.ResponseWriter, r *http.Request) (persona.Persona, bool) {
	p, err := persona.Parse(chi.URLParam(r, "persona"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return p, true
}

func decodeSubmit(r *http.Request) (core.SubmitRequest, func(), error) {
	noop := func() {}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return decodeMultipartSubmit(r)
	}

	var body PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return core.SubmitRequest{}, noop, err
	}
	return core.SubmitRequest{
		Text:  body.Text,
		Image: encodedMedia(attachment.KindImage, body.Image),
		Audio: encodedMedia(attachment.KindAudio, body.Audio),
	}, noop, nil
}

func decodeMultipartSubmit(r *http.Request) (core.SubmitRequest, func(), error) {
	if err := r.ParseMultipartForm(attachment.MaxSize); err != nil {
		return core.SubmitRequest{}, func() {}, err
	}
	var files []multipart.File
	cleanup := func() {
		for _, f := range files {
			f.Close()
		}
		r.MultipartForm.RemoveAll()
	}

	req := core.SubmitRequest{Text: r.FormValue("text")}
	for _, field := range []struct {
		name string
		kind attachment.Kind
		dst  **attachment.Media
	}{
		{"image", attachment.KindImage, &req.Image},
		{"audio", attachment.KindAudio, &req.Audio},
	} {
		file, header, err := r.FormFile(field.name)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			cleanup()
			return core.SubmitRequest{}, func() {}, err
		}
		files = append(files, file)
		*field.dst = &attachment.Media{Kind: field.kind, MIMEType: partMIME(header), Body: file}
	}
	return req, cleanup, nil
}

func partMIME(header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if ct == "application/octet-stream" {
		return ""
	}
	return ct
}

// encodedMedia wraps a JSON attachment field: a data URL or bare base64.
func encodedMedia(kind attachment.Kind, value string) *attachment.Media {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &attachment.Media{Kind: kind, Body: strings.NewReader(value), Encoded: true}
}
