package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/morezero/capability-gateway/pkg/money"
	"github.com/morezero/capability-gateway/pkg/planner"
	"github.com/morezero/capability-gateway/pkg/registry"
)

func testCatalog() []registry.Capability {
	return []registry.Capability{
		{ID: "screenshot", Name: "Screenshot", CostMicros: 10000, SourceTier: registry.Native},
		{ID: "ocr", Name: "OCR", CostMicros: 10000, SourceTier: registry.Native},
	}
}

func fakePlannerServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestPlannerPlanHappyPath(t *testing.T) {
	reply := `{"steps":[{"capabilityId":"screenshot","params":{"url":"https://example.com"}},{"capabilityId":"ocr","inputMapping":{"url":"steps[0].data.url"}}],"estimatedCost":5}`
	srv := fakePlannerServer(t, reply)
	defer srv.Close()

	p := NewPlanner(planner.New(srv.URL, "test-key", "test-model"))
	plan, err := p.Plan(context.Background(), "read the text on example.com", testCatalog(), 100_000)
	if err != nil {
		t.Fatalf("plan_test - unexpected error: %v", err)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("plan_test - got %d steps, want 2", len(plan.Steps))
	}
	// estimatedCost is always recomputed from the registry, never trusted
	// from the LLM's own figure.
	if plan.EstimatedCost != 20000 {
		t.Errorf("plan_test - estimated cost = %d, want recomputed 20000", plan.EstimatedCost)
	}
}

func TestPlannerPlanToleratesMarkdownFence(t *testing.T) {
	reply := "```json\n" + `{"steps":[{"capabilityId":"screenshot"}],"estimatedCost":1}` + "\n```"
	srv := fakePlannerServer(t, reply)
	defer srv.Close()

	p := NewPlanner(planner.New(srv.URL, "test-key", "test-model"))
	plan, err := p.Plan(context.Background(), "take a screenshot", testCatalog(), 100_000)
	if err != nil {
		t.Fatalf("plan_test - unexpected error: %v", err)
	}
	if len(plan.Steps) != 1 {
		t.Errorf("plan_test - got %d steps, want 1", len(plan.Steps))
	}
}

func TestPlannerPlanUnknownCapabilityRejected(t *testing.T) {
	reply := `{"steps":[{"capabilityId":"not-real"}],"estimatedCost":1}`
	srv := fakePlannerServer(t, reply)
	defer srv.Close()

	p := NewPlanner(planner.New(srv.URL, "test-key", "test-model"))
	_, err := p.Plan(context.Background(), "do something", testCatalog(), 100_000)
	if err == nil {
		t.Fatalf("plan_test - expected error for unknown capability")
	}
}

func TestPlannerNotConfiguredFailsClosed(t *testing.T) {
	p := NewPlanner(planner.New("http://unused", "", "test-model"))
	if p.Configured() {
		t.Fatalf("plan_test - expected Configured() false with empty api key")
	}
	_, err := p.Plan(context.Background(), "x", testCatalog(), 100_000)
	if err == nil {
		t.Fatalf("plan_test - expected error when planner not configured")
	}
}

func TestValidateStepCountBounds(t *testing.T) {
	catalog := testCatalog()
	steps := make([]Step, 0, maxSteps+1)
	for i := 0; i <= maxSteps; i++ {
		steps = append(steps, Step{CapabilityID: "screenshot"})
	}
	plan := &Plan{Steps: steps}
	if err := validate(plan, catalog, money.Micros(1_000_000)); err == nil {
		t.Errorf("validate_test - expected error for %d steps exceeding max %d", len(steps), maxSteps)
	}

	plan = &Plan{Steps: nil}
	if err := validate(plan, catalog, money.Micros(1_000_000)); err == nil {
		t.Errorf("validate_test - expected error for zero steps")
	}
}

func TestValidateBudgetCeiling(t *testing.T) {
	catalog := []registry.Capability{
		{ID: "expensive", CostMicros: 600_000, SourceTier: registry.Native},
	}
	plan := &Plan{Steps: []Step{{CapabilityID: "expensive"}}}
	// budget of $1 still clamps to the hard ceiling of $0.50.
	if err := validate(plan, catalog, money.Micros(1_000_000)); err == nil {
		t.Errorf("validate_test - expected hard ceiling to reject a %s plan", money.Format(600_000))
	}
}

func TestValidateRecomputesEstimatedCost(t *testing.T) {
	catalog := testCatalog()
	plan := &Plan{
		Steps:         []Step{{CapabilityID: "screenshot"}, {CapabilityID: "ocr"}},
		EstimatedCost: 1, // a deliberately wrong, attacker-controlled figure
	}
	if err := validate(plan, catalog, money.Micros(1_000_000)); err != nil {
		t.Fatalf("validate_test - unexpected error: %v", err)
	}
	if plan.EstimatedCost != 20000 {
		t.Errorf("validate_test - estimated cost = %d, want recomputed 20000", plan.EstimatedCost)
	}
}

func TestExtractJSONVariants(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Sure, here's the plan:\n{\"a\":1}\nhope that helps", `{"a":1}`},
	}
	for _, c := range cases {
		got := extractJSON(c.in)
		if got != c.want {
			t.Errorf("extractJSON(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
