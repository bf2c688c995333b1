// Package transcript keeps the per-persona, append-only message histories of one session.
package transcript

import (
	"unab.cl/superapp/internal/persona"
)

// ClearedNotice seeds a transcript after an explicit clear.
const ClearedNotice = "Memoria de esta sesión borrada. ¿En qué te puedo ayudar ahora?"

// Store maps each persona to its transcript. It does no locking; the owning
// session serialises access.
type Store struct {
	transcripts map[persona.Persona][]Message
}

func NewStore() *Store {
	return &Store{transcripts: make(map[persona.Persona][]Message)}
}

// Get returns a copy of p's transcript, seeding the persona welcome on first use.
func (s *Store) Get(p persona.Persona) []Message {
	messages, ok := s.transcripts[p]
	if !ok {
		messages = []Message{welcome(p)}
		s.transcripts[p] = messages
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// Append adds m to the end of p's transcript.
func (s *Store) Append(p persona.Persona, m Message) {
	if _, ok := s.transcripts[p]; !ok {
		s.transcripts[p] = []Message{welcome(p)}
	}
	s.transcripts[p] = append(s.transcripts[p], m)
}

// Reset discards p's transcript and leaves the cleared notice as its only entry.
func (s *Store) Reset(p persona.Persona) []Message {
	s.transcripts[p] = []Message{NewAssistantMessage(ClearedNotice)}
	return s.Get(p)
}

// ResetAll returns every persona to its initial welcome.
func (s *Store) ResetAll() {
	s.transcripts = make(map[persona.Persona][]Message)
	for _, p := range persona.Personas() {
		s.transcripts[p] = []Message{welcome(p)}
	}
}

func welcome(p persona.Persona) Message {
	text := "Hola, ¿en qué te puedo ayudar?"
	if policy, err := persona.Lookup(p); err == nil {
		text = policy.Welcome
	}
	return NewAssistantMessage(text)
}
