package types

import "time"

// GenerationType selects which tool contract governs a request.
type GenerationType string

const (
	TypeFeatures       GenerationType = "features"
	TypeKPIs           GenerationType = "kpis"
	TypeImplementation GenerationType = "implementation"
)

// ValidTypes lists the recognized generation types in a stable order,
// used when composing validation error messages.
var ValidTypes = []GenerationType{TypeFeatures, TypeKPIs, TypeImplementation}

// IsValid reports whether t is one of the recognized generation types.
func (t GenerationType) IsValid() bool {
	switch t {
	case TypeFeatures, TypeKPIs, TypeImplementation:
		return true
	}
	return false
}

// GenerationRequest is the canonical internal representation of an incoming
// generation request after the gate has parsed and sanitized it. It lives for
// the duration of one request and is never persisted by the gate.
type GenerationRequest struct {
	// Identity (set by auth middleware)
	RequestID string `json:"request_id"`
	CallerID  string `json:"caller_id"`

	// Request content
	Type   GenerationType `json:"type"`
	Prompt string         `json:"prompt"`

	// Internal tracking
	ReceivedAt time.Time `json:"-"`
	RawSize    int       `json:"-"`
}
