package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okrforge/gateway/internal/config"
	"github.com/okrforge/gateway/internal/types"
	"github.com/open-policy-agent/opa/rego"
)

// Input is the data sent to OPA for evaluation.
type Input struct {
	Caller  InputCaller  `json:"caller"`
	Request InputRequest `json:"request"`
	Time    InputTime    `json:"time"`
}

type InputCaller struct {
	ID string `json:"id"`
}

type InputRequest struct {
	Type         string `json:"type"`
	PromptLength int    `json:"prompt_length"`
}

type InputTime struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluator runs organization policies against admitted generation requests.
// It is an optional stage; when disabled the gate skips it entirely.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
}

// NewEvaluator creates a policy evaluator. Call Load() to compile policies.
func NewEvaluator(cfg func() config.PolicyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load reads every .rego file in the configured bundle path and compiles
// the set. Subdirectories and non-rego files are skipped.
func (e *Evaluator) Load() error {
	dir := e.cfg().BundlePath
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read policy bundle %s: %w", dir, err)
	}

	modules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read policy %s: %w", entry.Name(), err)
		}
		modules[entry.Name()] = string(src)
	}
	return e.LoadFromModules(modules)
}

// LoadFromModules compiles policies from provided module sources (useful for testing).
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){
		rego.Query("[data.okrforge.policy.allow, data.okrforge.policy.reason]"),
	}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Check evaluates the request against the loaded policies. An enabled
// evaluator with no loaded policies fails closed, as does an evaluation
// error or timeout.
func (e *Evaluator) Check(ctx context.Context, req *types.GenerationRequest) Decision {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		return Decision{Allowed: false, Reason: "no policies loaded"}
	}

	timeout := e.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now().UTC()
	input := Input{
		Caller: InputCaller{ID: req.CallerID},
		Request: InputRequest{
			Type:         string(req.Type),
			PromptLength: len([]rune(req.Prompt)),
		},
		Time: InputTime{Hour: now.Hour(), Day: now.Weekday().String()},
	}

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return Decision{Allowed: false, Reason: fmt.Sprintf("policy evaluation error: %v", err)}
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allowed: false, Reason: "no policy result"}
	}

	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return Decision{Allowed: false, Reason: "unexpected policy result format"}
	}

	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return Decision{Allowed: allowed, Reason: reason}
}
