package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/okrforge/gateway/internal/config"
	"github.com/okrforge/gateway/internal/telemetry"
	"github.com/okrforge/gateway/internal/types"
)

// Dispatcher maps a generation type to its tool contract and issues the
// completion call against the single configured endpoint. The endpoint URL
// comes from server-side configuration only and is never derived from caller
// input.
type Dispatcher struct {
	cfg       func() config.UpstreamConfig
	client    *http.Client
	contracts map[types.GenerationType]ToolContract
	metrics   *telemetry.Metrics
}

// NewDispatcher builds a dispatcher and runs the contract table self-check.
func NewDispatcher(cfg func() config.UpstreamConfig, metrics *telemetry.Metrics) (*Dispatcher, error) {
	contracts := Contracts()
	if err := VerifyContracts(contracts); err != nil {
		return nil, fmt.Errorf("contract self-check: %w", err)
	}
	return &Dispatcher{
		cfg:       cfg,
		client:    &http.Client{},
		contracts: contracts,
		metrics:   metrics,
	}, nil
}

// Dispatch issues the completion call for the request's type and validates
// the structured response against the contract. The call is bounded by the
// configured timeout; cancellation releases the outbound connection.
func (d *Dispatcher) Dispatch(ctx context.Context, req *types.GenerationRequest) (*types.GenerationResult, error) {
	contract, ok := d.contracts[req.Type]
	if !ok || contract.ToolName == "" {
		// Unreachable after the startup self-check; kept as a guard.
		return nil, newError(KindConfiguration, "no tool contract for type %q", req.Type)
	}

	cfg := d.cfg()
	body := chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: contract.SystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: chatToolFunction{
				Name:        contract.ToolName,
				Description: contract.Description,
				Parameters:  contract.Parameters,
			},
		}},
		ToolChoice: &chatToolChoice{
			Type:     "function",
			Function: chatToolChoiceFunction{Name: contract.ToolName},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, wrapError(KindUpstreamFailure, err, "marshal completion request")
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, wrapError(KindUpstreamFailure, err, "create completion request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	elapsed := time.Since(start)
	if d.metrics != nil {
		d.metrics.RecordUpstream(string(req.Type), float64(elapsed.Milliseconds()))
	}
	if err != nil {
		if isTimeout(err, callCtx) {
			d.recordFailure(KindTimeout)
			return nil, wrapError(KindTimeout, err, fmt.Sprintf("completion call exceeded %s", cfg.Timeout))
		}
		d.recordFailure(KindUpstreamFailure)
		return nil, wrapError(KindUpstreamFailure, err, "completion call failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err, callCtx) {
			d.recordFailure(KindTimeout)
			return nil, wrapError(KindTimeout, err, "completion response read timed out")
		}
		d.recordFailure(KindUpstreamFailure)
		return nil, wrapError(KindUpstreamFailure, err, "read completion response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		d.recordFailure(KindUpstreamRateLimited)
		return nil, newError(KindUpstreamRateLimited, "completion endpoint is rate limiting requests")
	case resp.StatusCode == http.StatusPaymentRequired:
		d.recordFailure(KindPaymentRequired)
		return nil, newError(KindPaymentRequired, "completion endpoint requires payment")
	case resp.StatusCode != http.StatusOK:
		d.recordFailure(KindUpstreamFailure)
		slog.Error("completion endpoint returned error",
			"status", resp.StatusCode,
			"body_size", len(respBody),
		)
		return nil, newError(KindUpstreamFailure, "completion endpoint returned status %d", resp.StatusCode)
	}

	result, derr := d.extractResult(req.Type, contract, respBody)
	if derr != nil {
		d.recordFailure(derr.Kind)
		return nil, derr
	}
	return result, nil
}

// extractResult pulls the forced tool invocation out of the completion
// response and shape-checks its arguments against the contract.
func (d *Dispatcher) extractResult(genType types.GenerationType, contract ToolContract, respBody []byte) (*types.GenerationResult, *Error) {
	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return nil, wrapError(KindUpstreamFailure, err, "unmarshal completion response")
	}

	if len(cr.Choices) == 0 || len(cr.Choices[0].Message.ToolCalls) == 0 {
		return nil, newError(KindSchemaViolation, "completion endpoint returned no structured response")
	}

	call := cr.Choices[0].Message.ToolCalls[0]
	if call.Function.Name != contract.ToolName {
		// The endpoint ignored the forced tool choice.
		return nil, newError(KindConfiguration,
			"completion endpoint invoked tool %q, expected %q", call.Function.Name, contract.ToolName)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(call.Function.Arguments), &payload); err != nil {
		return nil, wrapError(KindSchemaViolation, err, "tool arguments are not valid JSON")
	}

	if err := validateShape(genType, contract, payload); err != nil {
		return nil, err
	}

	return &types.GenerationResult{
		Type:    genType,
		Payload: json.RawMessage(call.Function.Arguments),
	}, nil
}

func (d *Dispatcher) recordFailure(kind Kind) {
	if d.metrics != nil {
		d.metrics.RecordUpstreamFailure(string(kind))
	}
}

func isTimeout(err error, ctx context.Context) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Wire types for the completion endpoint's chat API.

type chatRequest struct {
	Model      string          `json:"model"`
	Messages   []chatMessage   `json:"messages"`
	Tools      []chatTool      `json:"tools"`
	ToolChoice *chatToolChoice `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type chatToolChoice struct {
	Type     string                 `json:"type"`
	Function chatToolChoiceFunction `json:"function"`
}

type chatToolChoiceFunction struct {
	Name string `json:"name"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string `json:"role"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
