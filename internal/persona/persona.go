// Package persona holds the fixed set of assistant personas and the
// behavioural policy each one applies to every generation request.
package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownPersona = errors.New("unknown persona")

// Persona identifies one assistant behaviour. The zero value is not a valid persona.
type Persona int

const (
	Tutor Persona = iota + 1
	Psychologist
	Coach
	Bureaucracy
)

// Tier is a coarse model choice; the concrete model name is resolved by the provider configuration.
type Tier int

const (
	TierFast Tier = iota
	TierReasoning
)

func (t Tier) String() string {
	if t == TierReasoning {
		return "reasoning"
	}
	return "fast"
}

type Policy struct {
	Persona      Persona
	Label        string
	Description  string
	SystemPrompt string
	Welcome      string
	Temperature  float32
	Tier         Tier
}

// Display order used by the bot selector.
var order = [...]Persona{Tutor, Psychologist, Coach, Bureaucracy}

var names = map[Persona]string{
	Tutor:        "TUTOR",
	Psychologist: "PSYCHOLOGIST",
	Coach:        "COACH",
	Bureaucracy:  "BUROCRACY",
}

var registry = map[Persona]Policy{
	Tutor: {
		Persona:      Tutor,
		Label:        "Sócrates",
		Description:  "Tutor",
		SystemPrompt: tutorPrompt,
		Welcome:      "¡Hola! Soy el Profesor Sócrates. ¿En qué materia necesitas ayuda hoy? (Matemáticas, Física, Programación...)",
		Temperature:  0.4,
		Tier:         TierReasoning,
	},
	Psychologist: {
		Persona:      Psychologist,
		Label:        "Sam",
		Description:  "Apoyo",
		SystemPrompt: psychologistPrompt,
		Welcome:      "Hola, soy Sam. Este es un espacio seguro y confidencial. ¿Cómo te sientes hoy?",
		Temperature:  0.9,
		Tier:         TierFast,
	},
	Coach: {
		Persona:      Coach,
		Label:        "Shark",
		Description:  "Coach",
		SystemPrompt: coachPrompt,
		Welcome:      "Soy The Shark. Vamos a optimizar tu carrera. ¿Qué dice tu CV o LinkedIn?",
		Temperature:  0.4,
		Tier:         TierReasoning,
	},
	Bureaucracy: {
		Persona:      Bureaucracy,
		Label:        "Admin",
		Description:  "Trámites",
		SystemPrompt: bureaucracyPrompt,
		Welcome:      "UNAB-Bot Administrativo listo. ¿Consultas sobre CAE, TNE, Toma de Ramos o Justificativos?",
		Temperature:  0.4,
		Tier:         TierFast,
	},
}

// Lookup returns the policy for p. It fails only for values outside the enumerated set.
func Lookup(p Persona) (Policy, error) {
	policy, ok := registry[p]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %d", ErrUnknownPersona, int(p))
	}
	return policy, nil
}

// MustLookup is Lookup for callers holding one of the declared constants.
func MustLookup(p Persona) Policy {
	policy, err := Lookup(p)
	if err != nil {
		panic(err)
	}
	return policy
}

// All returns every policy in display order.
func All() []Policy {
	policies := make([]Policy, 0, len(order))
	for _, p := range order {
		policies = append(policies, registry[p])
	}
	return policies
}

// Personas returns every persona in display order.
func Personas() []Persona {
	return append([]Persona(nil), order[:]...)
}

func (p Persona) Valid() bool {
	_, ok := registry[p]
	return ok
}

func (p Persona) String() string {
	if name, ok := names[p]; ok {
		return name
	}
	return fmt.Sprintf("Persona(%d)", int(p))
}

// Parse converts a wire name such as "TUTOR" into a Persona. Matching is case-insensitive.
func Parse(s string) (Persona, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for p, name := range names {
		if name == want {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPersona, s)
}

func (p Persona) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPersona, int(p))
	}
	return []byte(names[p]), nil
}

func (p *Persona) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
