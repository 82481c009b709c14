package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okrforge/gateway/internal/config"
	"github.com/okrforge/gateway/internal/types"
)

func upstreamCfg(url string, timeout time.Duration) func() config.UpstreamConfig {
	return func() config.UpstreamConfig {
		return config.UpstreamConfig{
			BaseURL: url,
			APIKey:  "test-key",
			Model:   "test-model",
			Timeout: timeout,
		}
	}
}

// toolCallResponse builds a completion response invoking toolName with the
// given arguments object.
func toolCallResponse(t *testing.T, toolName string, args interface{}) string {
	t.Helper()
	argsJSON, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf(`{
		"id": "cmpl-1",
		"model": "test-model",
		"choices": [{
			"message": {
				"role": "assistant",
				"tool_calls": [{
					"id": "call-1",
					"type": "function",
					"function": {"name": %q, "arguments": %s}
				}]
			},
			"finish_reason": "tool_calls"
		}]
	}`, toolName, mustQuote(string(argsJSON)))
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func validFeaturesArgs() map[string]interface{} {
	return map[string]interface{}{
		"features": []map[string]string{
			{"title": "Workout streaks", "description": "Daily streak tracking to drive habit formation", "impact": "High", "effort": "Low"},
			{"title": "Social challenges", "description": "Group challenges with shared leaderboards", "impact": "High", "effort": "Medium"},
			{"title": "Smart reminders", "description": "Context-aware push notifications", "impact": "Medium", "effort": "Low"},
		},
	}
}

func featuresRequest() *types.GenerationRequest {
	return &types.GenerationRequest{
		RequestID: "req_test",
		CallerID:  "user-1",
		Type:      types.TypeFeatures,
		Prompt:    "Increase monthly active users by 40% within Q2 for a fitness app",
	}
}

func dispatchKind(t *testing.T, err error) Kind {
	t.Helper()
	var derr *Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected *dispatch.Error, got %T: %v", err, err)
	}
	return derr.Kind
}

func TestDispatch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ToolChoice == nil || req.ToolChoice.Function.Name != "generate_features" {
			t.Errorf("expected forced tool choice generate_features, got %+v", req.ToolChoice)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system+user messages, got %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, toolCallResponse(t, "generate_features", validFeaturesArgs()))
	}))
	defer srv.Close()

	d, err := NewDispatcher(upstreamCfg(srv.URL, 5*time.Second), nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := d.Dispatch(context.Background(), featuresRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Type != types.TypeFeatures {
		t.Errorf("expected type features, got %s", result.Type)
	}

	var payload struct {
		Features []struct {
			Title  string `json:"title"`
			Impact string `json:"impact"`
		} `json:"features"`
	}
	if err := json.Unmarshal(result.Payload, &payload); err != nil {
		t.Fatalf("payload not parseable: %v", err)
	}
	if len(payload.Features) != 3 {
		t.Errorf("expected 3 features, got %d", len(payload.Features))
	}
}

func TestDispatch_NoToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Sure, here are some ideas..."},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	d, _ := NewDispatcher(upstreamCfg(srv.URL, 5*time.Second), nil)
	_, err := d.Dispatch(context.Background(), featuresRequest())
	if kind := dispatchKind(t, err); kind != KindSchemaViolation {
		t.Errorf("expected schema violation, got %s", kind)
	}
}

func TestDispatch_WrongToolName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, toolCallResponse(t, "something_else", validFeaturesArgs()))
	}))
	defer srv.Close()

	d, _ := NewDispatcher(upstreamCfg(srv.URL, 5*time.Second), nil)
	_, err := d.Dispatch(context.Background(), featuresRequest())
	if kind := dispatchKind(t, err); kind != KindConfiguration {
		t.Errorf("expected configuration error, got %s", kind)
	}
}

// A structurally valid payload carrying the wrong type's key must be
// rejected, never silently returned.
func TestDispatch_WrongStructureForType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, toolCallResponse(t, "generate_features", map[string]interface{}{
			"kpis": []map[string]string{{"name": "MAU", "description": "Monthly active users"}},
		}))
	}))
	defer srv.Close()

	d, _ := NewDispatcher(upstreamCfg(srv.URL, 5*time.Second), nil)
	_, err := d.Dispatch(context.Background(), featuresRequest())
	if kind := dispatchKind(t, err); kind != KindSchemaViolation {
		t.Errorf("expected schema violation, got %s", kind)
	}
}

func TestDispatch_UpstreamStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusTooManyRequests, KindUpstreamRateLimited},
		{http.StatusPaymentRequired, KindPaymentRequired},
		{http.StatusInternalServerError, KindUpstreamFailure},
		{http.StatusBadGateway, KindUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			d, _ := NewDispatcher(upstreamCfg(srv.URL, 5*time.Second), nil)
			_, err := d.Dispatch(context.Background(), featuresRequest())
			if kind := dispatchKind(t, err); kind != tt.kind {
				t.Errorf("status %d: expected kind %s, got %s", tt.status, tt.kind, kind)
			}
		})
	}
}

func TestDispatch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d, _ := NewDispatcher(upstreamCfg(srv.URL, 100*time.Millisecond), nil)

	start := time.Now()
	_, err := d.Dispatch(context.Background(), featuresRequest())
	elapsed := time.Since(start)

	if kind := dispatchKind(t, err); kind != KindTimeout {
		t.Errorf("expected timeout kind, got %s", kind)
	}
	// The handler must return promptly at the deadline, not block.
	if elapsed > 2*time.Second {
		t.Errorf("dispatch blocked for %s past its 100ms deadline", elapsed)
	}
}

func TestVerifyContracts(t *testing.T) {
	if err := VerifyContracts(Contracts()); err != nil {
		t.Fatalf("default contract table failed self-check: %v", err)
	}
}

func TestVerifyContracts_MissingRequiredKey(t *testing.T) {
	contracts := Contracts()
	broken := contracts[types.TypeFeatures]
	broken.RequiredTopKeys = []string{"nonexistent"}
	contracts[types.TypeFeatures] = broken

	if err := VerifyContracts(contracts); err == nil {
		t.Error("expected self-check to fail for a key missing from the schema")
	}
}

func TestVerifyContracts_EmptyToolName(t *testing.T) {
	contracts := Contracts()
	broken := contracts[types.TypeKPIs]
	broken.ToolName = ""
	contracts[types.TypeKPIs] = broken

	if err := VerifyContracts(contracts); err == nil {
		t.Error("expected self-check to fail for an empty tool name")
	}
}
