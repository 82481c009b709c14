package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/okrforge/gateway/internal/auth"
	"github.com/okrforge/gateway/internal/dispatch"
	"github.com/okrforge/gateway/internal/httputil"
	"github.com/okrforge/gateway/internal/policy"
	"github.com/okrforge/gateway/internal/store"
	"github.com/okrforge/gateway/internal/telemetry"
	"github.com/okrforge/gateway/internal/threat"
	"github.com/okrforge/gateway/internal/types"
	"github.com/okrforge/gateway/internal/validate"
)

// Handler holds dependencies for the generation endpoint. Auth and rate
// limiting run as middleware before it; everything from the body read onward
// happens here, in a fixed order, short-circuiting on the first failure.
type Handler struct {
	scanner    *threat.Scanner
	limits     func() validate.Limits
	dispatcher *dispatch.Dispatcher
	evaluator  *policy.Evaluator
	metrics    *telemetry.Metrics
	results    *store.Results
}

func NewHandler(limits func() validate.Limits, dispatcher *dispatch.Dispatcher, evaluator *policy.Evaluator, metrics *telemetry.Metrics, results *store.Results) *Handler {
	return &Handler{
		scanner:    threat.NewScanner(),
		limits:     limits,
		dispatcher: dispatcher,
		evaluator:  evaluator,
		metrics:    metrics,
		results:    results,
	}
}

// Generate handles POST /v1/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, "Not authenticated")
		return
	}

	limits := h.limits()

	// Raw size is checked before any parse attempt. The reader is capped one
	// byte past the ceiling so an oversized body is detected without being
	// buffered whole.
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(limits.MaxPayloadBytes)+1))
	if err != nil {
		h.reject(reqID, caller.Subject, "malformed", "error", err.Error())
		httputil.WriteBadRequestError(w, "Failed to read request body")
		return
	}

	if res := limits.PayloadSize(body); !res.Valid {
		h.reject(reqID, caller.Subject, "payload_too_large", "size_bytes", res.Measured)
		httputil.WritePayloadTooLargeError(w, res.Reason)
		return
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		h.reject(reqID, caller.Subject, "malformed", "error", err.Error())
		httputil.WriteBadRequestError(w, "Invalid JSON: "+err.Error())
		return
	}

	// Checked again on the parsed structure's serialized form: a payload can
	// re-serialize larger than the bytes it arrived in.
	reserialized, err := json.Marshal(parsed)
	if err != nil {
		h.reject(reqID, caller.Subject, "malformed", "error", err.Error())
		httputil.WriteBadRequestError(w, "Request body could not be processed")
		return
	}
	if res := limits.PayloadSize(reserialized); !res.Valid {
		h.reject(reqID, caller.Subject, "payload_too_large", "size_bytes", res.Measured)
		httputil.WritePayloadTooLargeError(w, res.Reason)
		return
	}

	if res := validate.RequestType(parsed["type"]); !res.Valid {
		h.reject(reqID, caller.Subject, "invalid_type")
		httputil.WriteBadRequestError(w, res.Reason)
		return
	}
	genType := types.GenerationType(parsed["type"].(string))

	if res := validate.Prompt(parsed["prompt"]); !res.Valid {
		h.reject(reqID, caller.Subject, "missing_prompt")
		httputil.WriteBadRequestError(w, res.Reason)
		return
	}
	prompt := parsed["prompt"].(string)

	if res := limits.PromptLength(prompt); !res.Valid {
		h.reject(reqID, caller.Subject, "invalid_prompt_length", "length", res.Measured)
		httputil.WriteBadRequestError(w, res.Reason)
		return
	}

	if labels := h.scanner.Detect(prompt); len(labels) > 0 {
		detected := threat.LabelStrings(labels)
		h.reject(reqID, caller.Subject, "threat_detected", "labels", detected)
		httputil.WriteThreatDetectedError(w, "Request content failed security screening", detected)
		return
	}

	genReq := &types.GenerationRequest{
		RequestID:  reqID,
		CallerID:   caller.Subject,
		Type:       genType,
		Prompt:     validate.Sanitize(prompt),
		ReceivedAt: receivedAt,
		RawSize:    len(body),
	}

	if h.evaluator != nil && h.evaluator.Enabled() {
		if d := h.evaluator.Check(r.Context(), genReq); !d.Allowed {
			h.reject(reqID, caller.Subject, "policy_denied", "reason", d.Reason)
			httputil.WritePolicyDeniedError(w, "Request denied by organization policy: "+d.Reason)
			return
		}
	}

	result, err := h.dispatcher.Dispatch(r.Context(), genReq)
	if err != nil {
		h.writeDispatchError(w, reqID, caller.Subject, genReq, err)
		return
	}

	if h.results != nil {
		// Persistence is advisory; it must never delay or fail the response.
		go func(req types.GenerationRequest, payload []byte) {
			if err := h.results.Save(context.Background(), req.CallerID, req.Type, req.Prompt, payload); err != nil {
				slog.Warn("failed to persist generation result",
					"request_id", req.RequestID,
					"caller", req.CallerID,
					"error", err,
				)
			}
		}(*genReq, result.Payload)
	}

	duration := time.Since(receivedAt)
	slog.Info("request completed",
		"request_id", reqID,
		"caller", caller.Subject,
		"type", string(genType),
		"prompt_length", len(genReq.Prompt),
		"duration_ms", duration.Milliseconds(),
		"status_code", http.StatusOK,
	)
	if h.metrics != nil {
		h.metrics.RecordRequest(string(genType), "200", float64(duration.Milliseconds()))
	}

	w.Header().Set("Content-Type", "application/json")
	httputil.SetSecurityHeaders(w.Header())
	w.Write(result.Payload)
}

// reject logs the structured security event for a gate rejection. Logging
// never blocks the response.
func (h *Handler) reject(reqID, caller, category string, attrs ...interface{}) {
	args := append([]interface{}{
		"request_id", reqID,
		"caller", caller,
		"category", category,
	}, attrs...)
	slog.Warn("request rejected", args...)
	if h.metrics != nil {
		h.metrics.RecordGateRejection(category)
	}
}

func (h *Handler) writeDispatchError(w http.ResponseWriter, reqID, caller string, req *types.GenerationRequest, err error) {
	var derr *dispatch.Error
	if !errors.As(err, &derr) {
		h.logUpstreamFailure(reqID, caller, req, "internal", err)
		httputil.WriteInternalError(w, "Generation failed")
		return
	}

	h.logUpstreamFailure(reqID, caller, req, string(derr.Kind), err)

	switch derr.Kind {
	case dispatch.KindUpstreamRateLimited:
		httputil.WriteUpstreamRateLimitError(w, "The generation service is rate limiting requests. Try again shortly")
	case dispatch.KindPaymentRequired:
		httputil.WritePaymentRequiredError(w, "The generation service reported a billing problem")
	case dispatch.KindTimeout:
		httputil.WriteGatewayTimeoutError(w, "The generation service did not respond in time")
	case dispatch.KindSchemaViolation:
		httputil.WriteInternalError(w, "The generation service returned an unexpected structure")
	case dispatch.KindConfiguration:
		httputil.WriteInternalError(w, "Generation is misconfigured for this request type")
	default:
		httputil.WriteInternalError(w, "Generation failed")
	}
}

func (h *Handler) logUpstreamFailure(reqID, caller string, req *types.GenerationRequest, kind string, err error) {
	duration := time.Since(req.ReceivedAt)
	slog.Error("generation failed",
		"request_id", reqID,
		"caller", caller,
		"type", string(req.Type),
		"kind", kind,
		"duration_ms", duration.Milliseconds(),
		"error", err,
	)
	if h.metrics != nil {
		h.metrics.RecordRequest(string(req.Type), statusForKind(kind), float64(duration.Milliseconds()))
	}
}

func statusForKind(kind string) string {
	switch dispatch.Kind(kind) {
	case dispatch.KindUpstreamRateLimited:
		return strconv.Itoa(http.StatusTooManyRequests)
	case dispatch.KindPaymentRequired:
		return strconv.Itoa(http.StatusPaymentRequired)
	case dispatch.KindTimeout:
		return strconv.Itoa(http.StatusGatewayTimeout)
	default:
		return strconv.Itoa(http.StatusInternalServerError)
	}
}
