package types

import "encoding/json"

// GenerationResult is the structured payload returned by the completion
// endpoint's forced tool call, shape-checked against the selected contract
// before being returned verbatim to the caller.
type GenerationResult struct {
	Type    GenerationType
	Payload json.RawMessage
}
