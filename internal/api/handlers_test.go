package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"unab.cl/superapp/internal/auth"
	"unab.cl/superapp/internal/config"
	"unab.cl/superapp/internal/core"
	"unab.cl/superapp/internal/persona"
	"unab.cl/superapp/internal/session"
	"unab.cl/superapp/internal/store"
	"unab.cl/superapp/internal/transcript"
)

const examMarkdown = "# SOLEMNE DE CÁLCULO\n**Dificultad:** Basic\n\n## I. Selección Múltiple\n1. ¿Cuánto es 2+2?"

type fakeProvider struct {
	mu       sync.Mutex
	reply    string
	requests []core.Request
	gate     chan struct{}
	started  chan struct{}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, req core.Request) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	gate, started := p.gate, p.started
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return p.reply, nil
}

func (p *fakeProvider) lastRequest() core.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

type testServer struct {
	api      *APIHandler
	handler  http.Handler
	provider *fakeProvider
	sessions *session.Manager
}

func newTestServer(t *testing.T, provider *fakeProvider) *testServer {
	t.Helper()
	prev := config.AppConfig.JWTSecret
	config.AppConfig.JWTSecret = "test-secret"
	t.Cleanup(func() { config.AppConfig.JWTSecret = prev })

	logger := zaptest.NewLogger(t)
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	models := core.ModelCatalog{Fast: "fast-model", Reasoning: "reasoning-model"}
	chat := core.NewChatService(provider, core.NewComposer(models), time.Second, logger)
	exams := core.NewExamService(provider, models.Fast, time.Second, logger)
	sessions := session.NewManager(logger)

	h := NewAPIHandler(chat, exams, sessions, st, logger)
	return &testServer{
		api:      h,
		handler:  NewRouter(h, []string{"*"}),
		provider: provider,
		sessions: sessions,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, email, role string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: email, Role: role})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeTranscript(t *testing.T, rec *httptest.ResponseRecorder) TranscriptResponse {
	t.Helper()
	var resp TranscriptResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthAndPersonas(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{})

	rec := srv.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/personas", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var personas []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
		Tier  string `json:"tier"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&personas))
	require.Len(t, personas, 4)
	assert.Equal(t, "TUTOR", personas[0].ID)
	assert.Equal(t, "Sócrates", personas[0].Label)
	assert.Equal(t, "reasoning", personas[0].Tier)
}

func TestLogin_Validation(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{})

	rec := srv.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: "", Role: "STUDENT"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: "ana@uandresbello.edu", Role: "ADMIN"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: "ana@uandresbello.edu", Role: "student"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{})

	rec := srv.do(t, http.MethodGet, "/api/chat", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/chat", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatFlow(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: "Piensa en la pendiente de la recta."})
	token := srv.login(t, "ana@uandresbello.edu", "STUDENT")

	rec := srv.do(t, http.MethodGet, "/api/chat", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state ChatStateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.Equal(t, persona.Tutor, state.Active)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, persona.MustLookup(persona.Tutor).Welcome, state.Messages[0].Text)

	rec = srv.do(t, http.MethodPost, "/api/chat/tutor/messages", token, PostMessageRequest{Text: "¿Qué es una derivada?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeTranscript(t, rec)
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, transcript.RoleUser, resp.Messages[1].Role)
	assert.Equal(t, "¿Qué es una derivada?", resp.Messages[1].Text)
	assert.Equal(t, "Piensa en la pendiente de la recta.", resp.Messages[2].Text)
	assert.Equal(t, "idle", resp.State)
	assert.Equal(t, "reasoning-model", srv.provider.lastRequest().Model)

	rec = srv.do(t, http.MethodPut, "/api/chat/active", token, SwitchPersonaRequest{Persona: "PSYCHOLOGIST"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.Equal(t, persona.Psychologist, state.Active)
	require.Len(t, state.Messages, 1)

	rec = srv.do(t, http.MethodGet, "/api/chat/TUTOR", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeTranscript(t, rec).Messages, 3)

	rec = srv.do(t, http.MethodDelete, "/api/chat/TUTOR/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := decodeTranscript(t, rec)
	require.Len(t, cleared.Messages, 1)
	assert.Equal(t, transcript.ClearedNotice, cleared.Messages[0].Text)
}

func TestPostMessage_Errors(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: "ok"})
	token := srv.login(t, "ana@uandresbello.edu", "STUDENT")

	rec := srv.do(t, http.MethodPost, "/api/chat/ORACLE/messages", token, PostMessageRequest{Text: "hola"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/chat/TUTOR/messages", token, PostMessageRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/chat/active", token, SwitchPersonaRequest{Persona: "ORACLE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessage_JSONDataURL(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: "Veo un gráfico."})
	token := srv.login(t, "ana@uandresbello.edu", "STUDENT")

	data := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	rec := srv.do(t, http.MethodPost, "/api/chat/TUTOR/messages", token, PostMessageRequest{Image: "data:image/png;base64," + data})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeTranscript(t, rec)
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, core.ImagePlaceholder, resp.Messages[1].Text)

	parts := srv.provider.lastRequest().Message.Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)
	assert.Equal(t, data, parts[1].InlineData.Data)
}

func TestPostMessage_Multipart(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: "Escuché tu pregunta."})
	token := srv.login(t, "ana@uandresbello.edu", "STUDENT")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("text", "Escucha esto"))
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="audio"; filename="clip.webm"`)
	hdr.Set("Content-Type", "audio/webm")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("webm-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/chat/COACH/messages", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeTranscript(t, rec)
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, "Escucha esto", resp.Messages[1].Text)

	parts := srv.provider.lastRequest().Message.Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "audio/webm", parts[1].InlineData.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("webm-bytes")), parts[1].InlineData.Data)
}

func TestPostMessage_InFlightConflict(t *testing.T) {
	provider := &fakeProvider{
		reply:   "respuesta",
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	srv := newTestServer(t, provider)
	token := srv.login(t, "ana@uandresbello.edu", "STUDENT")

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- srv.do(t, http.MethodPost, "/api/chat/TUTOR/messages", token, PostMessageRequest{Text: "primera"})
	}()
	<-provider.started

	rec := srv.do(t, http.MethodPost, "/api/chat/TUTOR/messages", token, PostMessageRequest{Text: "segunda"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/chat/TUTOR/messages", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/chat/TUTOR", token, nil)
	assert.Equal(t, "awaiting_response", decodeTranscript(t, rec).State)

	close(provider.gate)
	first := <-done
	require.Equal(t, http.StatusOK, first.Code)
	assert.Len(t, decodeTranscript(t, first).Messages, 3)
}

func TestLogoutResetsSession(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: "ok"})
	token := srv.login(t, "ana@uandresbello.edu", "STUDENT")

	srv.do(t, http.MethodPut, "/api/chat/active", token, SwitchPersonaRequest{Persona: "COACH"})
	rec := srv.do(t, http.MethodPost, "/api/chat/COACH/messages", token, PostMessageRequest{Text: "Mi CV"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, srv.sessions.Len())

	token = srv.login(t, "ana@uandresbello.edu", "STUDENT")
	rec = srv.do(t, http.MethodGet, "/api/chat", token, nil)
	var state ChatStateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.Equal(t, persona.Tutor, state.Active)

	rec = srv.do(t, http.MethodGet, "/api/chat/COACH", token, nil)
	assert.Len(t, decodeTranscript(t, rec).Messages, 1)
}

func TestExams(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: examMarkdown})

	student := srv.login(t, "ana@uandresbello.edu", "STUDENT")
	rec := srv.do(t, http.MethodPost, "/api/exams", student, core.ExamRequest{Topic: "Cálculo", Questions: 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = srv.do(t, http.MethodGet, "/api/exams", student, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	teacher := srv.login(t, "profe@unab.cl", "TEACHER")
	rec = srv.do(t, http.MethodPost, "/api/exams", teacher, core.ExamRequest{Topic: "", Questions: 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/exams", teacher, core.ExamRequest{Topic: "Cálculo", Difficulty: core.DifficultyBasic, Questions: 5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var exam store.Exam
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&exam))
	assert.NotEmpty(t, exam.ID)
	assert.Equal(t, examMarkdown, exam.Content)
	assert.Equal(t, "fast-model", srv.provider.lastRequest().Model)
	assert.True(t, strings.Contains(srv.provider.lastRequest().Message.Parts[0].Text, "Cálculo"))

	rec = srv.do(t, http.MethodGet, "/api/exams?limit=5", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var exams []store.Exam
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&exams))
	require.Len(t, exams, 1)
	assert.Equal(t, exam.ID, exams[0].ID)

	rec = srv.do(t, http.MethodGet, "/api/exams?limit=0", teacher, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExams_IncompleteResult(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: "corto"})
	teacher := srv.login(t, "profe@unab.cl", "TEACHER")

	rec := srv.do(t, http.MethodPost, "/api/exams", teacher, core.ExamRequest{Topic: "Física", Questions: 3})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPostMessage_JSONBareBase64(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: "Buen CV"})
	token := srv.login(t, "ana@uandresbello.edu", "STUDENT")

	rec := srv.do(t, http.MethodPost, "/api/chat/COACH/messages", token, PostMessageRequest{Text: "cv", Image: "/9j/4A=="})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	parts := srv.provider.lastRequest().Message.Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "/9j/4A==", parts[1].InlineData.Data)
	raw, err := parts[1].InlineData.Decoded()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, raw)
}

func TestPostMessage_BodyTooLarge(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: "ok"})
	srv.api.maxBodyBytes = 1 << 10
	token := srv.login(t, "ana@uandresbello.edu", "STUDENT")

	big := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 4<<10))
	rec := srv.do(t, http.MethodPost, "/api/chat/TUTOR/messages", token, PostMessageRequest{Text: "mira", Image: big})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/chat/TUTOR", token, nil)
	assert.Len(t, decodeTranscript(t, rec).Messages, 1)
}

func TestStaleRoleTokenKeepsTranscript(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: "ok"})
	student := srv.login(t, "ana@uandresbello.edu", "STUDENT")

	rec := srv.do(t, http.MethodPost, "/api/chat/TUTOR/messages", student, PostMessageRequest{Text: "hola"})
	require.Equal(t, http.StatusOK, rec.Code)

	// A token claiming a role other than the one recorded at the last login.
	forged, err := auth.GenerateJWT("ana@uandresbello.edu", "TEACHER")
	require.NoError(t, err)
	rec = srv.do(t, http.MethodGet, "/api/chat", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/chat/TUTOR", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeTranscript(t, rec).Messages, 3)
}

func TestReloginWithNewRoleRetiresOldToken(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{reply: "ok"})
	student := srv.login(t, "ana@uandresbello.edu", "STUDENT")
	teacher := srv.login(t, "ana@uandresbello.edu", "TEACHER")

	rec := srv.do(t, http.MethodPost, "/api/chat/TUTOR/messages", teacher, PostMessageRequest{Text: "hola"})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		path := "/api/chat"
		var body any
		if method == http.MethodPost {
			path, body = "/api/chat/TUTOR/messages", PostMessageRequest{Text: "otra"}
		}
		rec = srv.do(t, method, path, student, body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/chat/TUTOR", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeTranscript(t, rec).Messages, 3)
}
