package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/okrforge/gateway/internal/types"
)

func toPayload(t *testing.T, v interface{}) map[string]json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestValidateShape_Features(t *testing.T) {
	contract := Contracts()[types.TypeFeatures]

	valid := toPayload(t, validFeaturesArgs())
	if err := validateShape(types.TypeFeatures, contract, valid); err != nil {
		t.Errorf("valid features rejected: %v", err)
	}

	twoOnly := toPayload(t, map[string]interface{}{
		"features": []map[string]string{
			{"title": "A", "description": "a", "impact": "High", "effort": "Low"},
			{"title": "B", "description": "b", "impact": "Low", "effort": "Low"},
		},
	})
	if err := validateShape(types.TypeFeatures, contract, twoOnly); err == nil {
		t.Error("expected rejection for 2 features")
	}

	badRating := toPayload(t, map[string]interface{}{
		"features": []map[string]string{
			{"title": "A", "description": "a", "impact": "Extreme", "effort": "Low"},
			{"title": "B", "description": "b", "impact": "Low", "effort": "Low"},
			{"title": "C", "description": "c", "impact": "Low", "effort": "Low"},
		},
	})
	if err := validateShape(types.TypeFeatures, contract, badRating); err == nil {
		t.Error("expected rejection for invalid impact rating")
	}
}

func TestValidateShape_KPIs(t *testing.T) {
	contract := Contracts()[types.TypeKPIs]

	kpis := make([]map[string]string, 6)
	for i := range kpis {
		kpis[i] = map[string]string{"name": "KPI", "description": "measures something"}
	}
	valid := toPayload(t, map[string]interface{}{"kpis": kpis})
	if err := validateShape(types.TypeKPIs, contract, valid); err != nil {
		t.Errorf("valid kpis rejected: %v", err)
	}

	short := toPayload(t, map[string]interface{}{"kpis": kpis[:5]})
	if err := validateShape(types.TypeKPIs, contract, short); err == nil {
		t.Error("expected rejection for 5 kpis")
	}
}

func validImplementationArgs() map[string]interface{} {
	step := map[string]interface{}{
		"phase":        "Discovery",
		"duration":     "2 weeks",
		"tasks":        []string{"interview users", "audit analytics", "define scope"},
		"deliverables": []string{"research summary", "scoped backlog"},
	}
	event := map[string]interface{}{
		"name":        "feature_viewed",
		"description": "Fired when a user opens a feature screen",
		"parameters":  []string{"feature_id", "source"},
	}
	return map[string]interface{}{
		"steps":          []interface{}{step, step, step, step},
		"trackingEvents": []interface{}{event, event, event, event},
	}
}

func TestValidateShape_Implementation(t *testing.T) {
	contract := Contracts()[types.TypeImplementation]

	valid := toPayload(t, validImplementationArgs())
	if err := validateShape(types.TypeImplementation, contract, valid); err != nil {
		t.Errorf("valid implementation plan rejected: %v", err)
	}

	args := validImplementationArgs()
	args["steps"] = args["steps"].([]interface{})[:3]
	if err := validateShape(types.TypeImplementation, contract, toPayload(t, args)); err == nil {
		t.Error("expected rejection for 3 steps")
	}

	args = validImplementationArgs()
	weakStep := map[string]interface{}{
		"phase": "Build", "duration": "4 weeks",
		"tasks":        []string{"only", "two"},
		"deliverables": []string{"a", "b"},
	}
	args["steps"] = []interface{}{weakStep, weakStep, weakStep, weakStep}
	if err := validateShape(types.TypeImplementation, contract, toPayload(t, args)); err == nil {
		t.Error("expected rejection for steps with fewer than 3 tasks")
	}

	args = validImplementationArgs()
	args["trackingEvents"] = args["trackingEvents"].([]interface{})[:3]
	if err := validateShape(types.TypeImplementation, contract, toPayload(t, args)); err == nil {
		t.Error("expected rejection for 3 tracking events")
	}
}

// The kpis-for-features case from the cross-type contract.
func TestValidateShape_WrongTypeKey(t *testing.T) {
	contract := Contracts()[types.TypeKPIs]
	payload := toPayload(t, validFeaturesArgs())
	err := validateShape(types.TypeKPIs, contract, payload)
	if err == nil {
		t.Fatal("expected schema violation for features payload under kpis type")
	}
	if err.Kind != KindSchemaViolation {
		t.Errorf("expected schema violation kind, got %s", err.Kind)
	}
}
