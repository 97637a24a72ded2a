package domain

import (
	"strings"
)

const (
	DefaultPersona     = "You are 'The Scholar,' an expert Research Professor."
	DefaultTemperature = 0.3
)

// Request is what the host asks the gateway. It is built per call and
// discarded afterwards.
type Request struct {
	Prompt          string
	Attachment      *Attachment
	ModelPreference string
	Persona         string
	Temperature     float32
	History         []Turn
}

// Validate checks the invariants the provider cannot be trusted to enforce.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &Error{Kind: KindRequestRejected, Message: "prompt is empty"}
	}
	if r.Temperature < 0 || r.Temperature > 1 {
		return &Error{Kind: KindRequestRejected, Message: "temperature must be within [0, 1]"}
	}
	return nil
}

// Call is a single provider invocation with a concrete model id.
type Call struct {
	Model       string
	Prompt      string
	Attachment  *Attachment
	Persona     string
	Temperature float32
	History     []Turn
}
