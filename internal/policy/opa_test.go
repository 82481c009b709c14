package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okrforge/gateway/internal/config"
	"github.com/okrforge/gateway/internal/types"
)

func testCfg() func() config.PolicyConfig {
	return func() config.PolicyConfig {
		return config.PolicyConfig{
			Enabled:           true,
			EvaluationTimeout: 100 * time.Millisecond,
		}
	}
}

const defaultPolicy = `
package okrforge.policy

import rego.v1

default allow := true
default reason := ""

deny contains msg if {
	input.request.type == "implementation"
	input.time.day == "Sunday"
	msg := "implementation plans are not generated on Sundays"
}

allow := false if {
	count(deny) > 0
}

reason := concat("; ", deny) if {
	count(deny) > 0
}
`

func loadTestEvaluator(t *testing.T, policy string) *Evaluator {
	t.Helper()
	e := NewEvaluator(testCfg())
	if err := e.LoadFromModules(map[string]string{"test.rego": policy}); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	return e
}

func TestCheck_AllowByDefault(t *testing.T) {
	e := loadTestEvaluator(t, defaultPolicy)

	d := e.Check(context.Background(), &types.GenerationRequest{
		CallerID: "user-1",
		Type:     types.TypeFeatures,
		Prompt:   "Increase monthly active users by 40%",
	})
	if !d.Allowed {
		t.Errorf("expected allowed, got denied: %s", d.Reason)
	}
}

func TestCheck_DenyWithReason(t *testing.T) {
	denyAll := `
package okrforge.policy

import rego.v1

default allow := false
default reason := "generation is disabled for this deployment"
`
	e := loadTestEvaluator(t, denyAll)

	d := e.Check(context.Background(), &types.GenerationRequest{
		CallerID: "user-1",
		Type:     types.TypeKPIs,
		Prompt:   "Reduce churn below 2%",
	})
	if d.Allowed {
		t.Error("expected denied")
	}
	if d.Reason == "" {
		t.Error("expected non-empty reason")
	}
}

func TestCheck_NoPoliciesFailsClosed(t *testing.T) {
	e := NewEvaluator(testCfg())
	d := e.Check(context.Background(), &types.GenerationRequest{CallerID: "user-1"})
	if d.Allowed {
		t.Error("expected fail-closed when no policies are loaded")
	}
}

func TestCheck_PromptLengthRule(t *testing.T) {
	lengthPolicy := `
package okrforge.policy

import rego.v1

default allow := true
default reason := ""

allow := false if {
	input.request.prompt_length > 1000
}

reason := "prompts above 1000 characters need manual review" if {
	input.request.prompt_length > 1000
}
`
	e := loadTestEvaluator(t, lengthPolicy)

	long := make([]rune, 1500)
	for i := range long {
		long[i] = 'a'
	}
	d := e.Check(context.Background(), &types.GenerationRequest{
		CallerID: "user-1",
		Type:     types.TypeFeatures,
		Prompt:   string(long),
	})
	if d.Allowed {
		t.Error("expected denial for over-length prompt")
	}
}

func TestLoad_FromBundleDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "base.rego"), []byte(defaultPolicy), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-rego files and subdirectories are skipped, not errors.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a policy"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatal(err)
	}

	e := NewEvaluator(func() config.PolicyConfig {
		return config.PolicyConfig{
			Enabled:           true,
			BundlePath:        dir,
			EvaluationTimeout: 100 * time.Millisecond,
		}
	})
	if err := e.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	d := e.Check(context.Background(), &types.GenerationRequest{
		CallerID: "user-1",
		Type:     types.TypeFeatures,
		Prompt:   "Increase monthly active users by 40%",
	})
	if !d.Allowed {
		t.Errorf("expected allowed after bundle load, got denied: %s", d.Reason)
	}
}

func TestLoad_MissingBundleDir(t *testing.T) {
	e := NewEvaluator(func() config.PolicyConfig {
		return config.PolicyConfig{Enabled: true, BundlePath: "/nonexistent/policies"}
	})
	if err := e.Load(); err == nil {
		t.Error("expected error for missing bundle directory")
	}
}
