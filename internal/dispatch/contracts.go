package dispatch

import (
	"fmt"

	"github.com/okrforge/gateway/internal/types"
)

// ToolContract is the fixed (system prompt, output schema, required keys)
// triple governing one generation type. Contracts are static configuration
// and never mutated at runtime.
type ToolContract struct {
	ToolName        string
	Description     string
	SystemPrompt    string
	Parameters      map[string]interface{}
	RequiredTopKeys []string
}

const levelEnum = `"Low", "Medium" or "High"`

// Contracts returns the contract table keyed by generation type.
func Contracts() map[types.GenerationType]ToolContract {
	return map[types.GenerationType]ToolContract{
		types.TypeFeatures: {
			ToolName:    "generate_features",
			Description: "Return product features derived from a business objective",
			SystemPrompt: "You are a senior product strategist. Given a business objective, " +
				"generate exactly 3 product features that would best advance it. For each " +
				"feature provide a concise title, a description of what it does and why it " +
				"serves the objective, an impact rating and an effort rating, each one of " +
				levelEnum + ". Respond only through the declared function.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"features": map[string]interface{}{
						"type":     "array",
						"minItems": 3,
						"maxItems": 3,
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"title":       map[string]interface{}{"type": "string"},
								"description": map[string]interface{}{"type": "string"},
								"impact":      map[string]interface{}{"type": "string", "enum": []string{"Low", "Medium", "High"}},
								"effort":      map[string]interface{}{"type": "string", "enum": []string{"Low", "Medium", "High"}},
							},
							"required": []string{"title", "description", "impact", "effort"},
						},
					},
				},
				"required": []string{"features"},
			},
			RequiredTopKeys: []string{"features"},
		},
		types.TypeKPIs: {
			ToolName:    "generate_kpis",
			Description: "Return measurable KPIs for a business objective",
			SystemPrompt: "You are a growth analytics expert. Given a business objective, " +
				"generate exactly 6 key performance indicators that measure progress toward " +
				"it. For each KPI provide a short name and a description explaining what it " +
				"measures and why it matters for the objective. Respond only through the " +
				"declared function.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"kpis": map[string]interface{}{
						"type":     "array",
						"minItems": 6,
						"maxItems": 6,
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"name":        map[string]interface{}{"type": "string"},
								"description": map[string]interface{}{"type": "string"},
							},
							"required": []string{"name", "description"},
						},
					},
				},
				"required": []string{"kpis"},
			},
			RequiredTopKeys: []string{"kpis"},
		},
		types.TypeImplementation: {
			ToolName:    "generate_implementation_plan",
			Description: "Return a phased implementation plan with tracking events",
			SystemPrompt: "You are an experienced technical program manager. Given a business " +
				"objective, generate an implementation plan of exactly 4 phased steps. Each " +
				"step needs a phase name, an estimated duration, at least 3 concrete tasks " +
				"and at least 2 deliverables. Also generate at least 4 analytics tracking " +
				"events, each with an event name, a description, and at least 2 parameters " +
				"to capture. Respond only through the declared function.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"steps": map[string]interface{}{
						"type":     "array",
						"minItems": 4,
						"maxItems": 4,
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"phase":    map[string]interface{}{"type": "string"},
								"duration": map[string]interface{}{"type": "string"},
								"tasks": map[string]interface{}{
									"type": "array", "minItems": 3,
									"items": map[string]interface{}{"type": "string"},
								},
								"deliverables": map[string]interface{}{
									"type": "array", "minItems": 2,
									"items": map[string]interface{}{"type": "string"},
								},
							},
							"required": []string{"phase", "duration", "tasks", "deliverables"},
						},
					},
					"trackingEvents": map[string]interface{}{
						"type":     "array",
						"minItems": 4,
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"name":        map[string]interface{}{"type": "string"},
								"description": map[string]interface{}{"type": "string"},
								"parameters": map[string]interface{}{
									"type": "array", "minItems": 2,
									"items": map[string]interface{}{"type": "string"},
								},
							},
							"required": []string{"name", "description", "parameters"},
						},
					},
				},
				"required": []string{"steps", "trackingEvents"},
			},
			RequiredTopKeys: []string{"steps", "trackingEvents"},
		},
	}
}

// VerifyContracts asserts the static contract table is coherent: every
// recognized type has a contract, every contract declares a tool name, and
// every required top-level key exists in the declared schema. A failure here
// is a programming mistake, caught at startup rather than per request.
func VerifyContracts(contracts map[types.GenerationType]ToolContract) error {
	for _, t := range types.ValidTypes {
		c, ok := contracts[t]
		if !ok {
			return fmt.Errorf("no contract for type %q", t)
		}
		if c.ToolName == "" {
			return fmt.Errorf("contract for type %q has no tool name", t)
		}
		if c.SystemPrompt == "" {
			return fmt.Errorf("contract for type %q has no system prompt", t)
		}
		props, ok := c.Parameters["properties"].(map[string]interface{})
		if !ok {
			return fmt.Errorf("contract for type %q has no schema properties", t)
		}
		if len(c.RequiredTopKeys) == 0 {
			return fmt.Errorf("contract for type %q declares no required keys", t)
		}
		for _, key := range c.RequiredTopKeys {
			if _, ok := props[key]; !ok {
				return fmt.Errorf("contract for type %q requires key %q missing from schema", t, key)
			}
		}
	}
	return nil
}
