// Package session holds the per-user chat state: the active persona, every
// persona transcript and the send currently in flight for each persona.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"unab.cl/superapp/internal/persona"
	"unab.cl/superapp/internal/transcript"
)

var ErrSendInFlight = errors.New("a message is already being answered for this persona")

// SendState is the position of a persona in the send cycle. Settled and
// failed sends return straight to Idle.
type SendState int

const (
	Idle SendState = iota
	Composing
	AwaitingResponse
)

func (s SendState) String() string {
	switch s {
	case Composing:
		return "composing"
	case AwaitingResponse:
		return "awaiting_response"
	default:
		return "idle"
	}
}

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleGuest   Role = "GUEST"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStudent, RoleTeacher, RoleGuest:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Session is owned by one authenticated user. All methods are safe for concurrent use.
type Session struct {
	UserID string
	Role   Role

	mu          sync.Mutex
	active      persona.Persona
	transcripts *transcript.Store
	inFlight    map[persona.Persona]SendState
	lastSeen    time.Time
}

func New(userID string, role Role) *Session {
	s := &Session{
		UserID:      userID,
		Role:        role,
		active:      persona.Tutor,
		transcripts: transcript.NewStore(),
		inFlight:    make(map[persona.Persona]SendState),
		lastSeen:    time.Now(),
	}
	s.transcripts.ResetAll()
	return s
}

func (s *Session) Active() persona.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Switch makes p the active persona and returns its transcript. No transcript is modified.
func (s *Session) Switch(p persona.Persona) ([]transcript.Message, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", persona.ErrUnknownPersona, int(p))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.active = p
	return s.transcripts.Get(p), nil
}

func (s *Session) Transcript(p persona.Persona) []transcript.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcripts.Get(p)
}

// Reserve moves p from Idle to Composing without touching its transcript,
// holding the slot while an attachment is still being read.
func (s *Session) Reserve(p persona.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[p]; busy {
		return ErrSendInFlight
	}
	s.touch()
	s.inFlight[p] = Composing
	return nil
}

// Release returns p to Idle without appending anything.
func (s *Session) Release(p persona.Persona) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, p)
}

// Commit appends the optimistic user entry for a reserved send, moves p to
// AwaitingResponse and returns the snapshot that includes the new entry.
func (s *Session) Commit(p persona.Persona, userMsg transcript.Message) []transcript.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts.Append(p, userMsg)
	s.inFlight[p] = AwaitingResponse
	return s.transcripts.Get(p)
}

// Settle appends the reply (or error notice) and returns p to Idle.
func (s *Session) Settle(p persona.Persona, reply transcript.Message) []transcript.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts.Append(p, reply)
	delete(s.inFlight, p)
	return s.transcripts.Get(p)
}

func (s *Session) State(p persona.Persona) SendState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[p]
}

// Clear resets p's transcript. It is refused while a send for p is in flight.
func (s *Session) Clear(p persona.Persona) ([]transcript.Message, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", persona.ErrUnknownPersona, int(p))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[p]; busy {
		return nil, ErrSendInFlight
	}
	s.touch()
	return s.transcripts.Reset(p), nil
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Busy reports whether any persona has a send in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight) > 0
}

func (s *Session) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
}

func (s *Session) touch() {
	s.lastSeen = time.Now()
}
