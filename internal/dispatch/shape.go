package dispatch

import (
	"encoding/json"

	"github.com/okrforge/gateway/internal/types"
)

// validateShape checks the parsed tool arguments against the contract for the
// requested type. A payload that is valid JSON but shaped for a different
// type (e.g. a kpis key when features was requested) is a schema violation,
// never silently passed through.
func validateShape(genType types.GenerationType, contract ToolContract, payload map[string]json.RawMessage) *Error {
	for _, key := range contract.RequiredTopKeys {
		if _, ok := payload[key]; !ok {
			return newError(KindSchemaViolation,
				"wrong structure for requested type %q: missing key %q", genType, key)
		}
	}

	switch genType {
	case types.TypeFeatures:
		return validateFeatures(payload["features"])
	case types.TypeKPIs:
		return validateKPIs(payload["kpis"])
	case types.TypeImplementation:
		if err := validateSteps(payload["steps"]); err != nil {
			return err
		}
		return validateTrackingEvents(payload["trackingEvents"])
	}
	return newError(KindSchemaViolation, "unknown generation type %q", genType)
}

func validateFeatures(raw json.RawMessage) *Error {
	var features []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Impact      string `json:"impact"`
		Effort      string `json:"effort"`
	}
	if err := json.Unmarshal(raw, &features); err != nil {
		return wrapError(KindSchemaViolation, err, "features is not an array of feature objects")
	}
	if len(features) != 3 {
		return newError(KindSchemaViolation, "expected exactly 3 features, got %d", len(features))
	}
	for i, f := range features {
		if f.Title == "" || f.Description == "" {
			return newError(KindSchemaViolation, "feature %d is missing title or description", i)
		}
		if !isLevel(f.Impact) || !isLevel(f.Effort) {
			return newError(KindSchemaViolation, "feature %d has invalid impact/effort rating", i)
		}
	}
	return nil
}

func validateKPIs(raw json.RawMessage) *Error {
	var kpis []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &kpis); err != nil {
		return wrapError(KindSchemaViolation, err, "kpis is not an array of kpi objects")
	}
	if len(kpis) != 6 {
		return newError(KindSchemaViolation, "expected exactly 6 kpis, got %d", len(kpis))
	}
	for i, k := range kpis {
		if k.Name == "" || k.Description == "" {
			return newError(KindSchemaViolation, "kpi %d is missing name or description", i)
		}
	}
	return nil
}

func validateSteps(raw json.RawMessage) *Error {
	var steps []struct {
		Phase        string   `json:"phase"`
		Duration     string   `json:"duration"`
		Tasks        []string `json:"tasks"`
		Deliverables []string `json:"deliverables"`
	}
	if err := json.Unmarshal(raw, &steps); err != nil {
		return wrapError(KindSchemaViolation, err, "steps is not an array of step objects")
	}
	if len(steps) != 4 {
		return newError(KindSchemaViolation, "expected exactly 4 steps, got %d", len(steps))
	}
	for i, s := range steps {
		if s.Phase == "" || s.Duration == "" {
			return newError(KindSchemaViolation, "step %d is missing phase or duration", i)
		}
		if len(s.Tasks) < 3 {
			return newError(KindSchemaViolation, "step %d has %d tasks, expected at least 3", i, len(s.Tasks))
		}
		if len(s.Deliverables) < 2 {
			return newError(KindSchemaViolation, "step %d has %d deliverables, expected at least 2", i, len(s.Deliverables))
		}
	}
	return nil
}

func validateTrackingEvents(raw json.RawMessage) *Error {
	var events []struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Parameters  []string `json:"parameters"`
	}
	if err := json.Unmarshal(raw, &events); err != nil {
		return wrapError(KindSchemaViolation, err, "trackingEvents is not an array of event objects")
	}
	if len(events) < 4 {
		return newError(KindSchemaViolation, "expected at least 4 tracking events, got %d", len(events))
	}
	for i, e := range events {
		if e.Name == "" || e.Description == "" {
			return newError(KindSchemaViolation, "tracking event %d is missing name or description", i)
		}
		if len(e.Parameters) < 2 {
			return newError(KindSchemaViolation, "tracking event %d has %d parameters, expected at least 2", i, len(e.Parameters))
		}
	}
	return nil
}

func isLevel(s string) bool {
	return s == "Low" || s == "Medium" || s == "High"
}
