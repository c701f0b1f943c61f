package intent_test

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"

	"github.com/voxpilot/voxpilot/internal/intent"
)

// FuzzValidatePlan hammers the validator with arbitrary bytes and with
// mutated near-valid documents. The validator must never panic, and any plan
// it accepts must satisfy the invariants the engine relies on.
func FuzzValidatePlan(f *testing.F) {
	f.Add([]byte(`{"version":"v1","intents":[{"type":"navigate","args":{"url":"https://example.com"}}],"confidence":0.5}`))
	f.Add([]byte(`{"version":"v2"}`))
	f.Add([]byte(`{{{`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"version":"v1","intents":[{"type":"click","target":{"role":"button","name":"Go"},"retries":3}],"confidence":1}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		mutated, err := consumer.GetBytes()
		if err != nil {
			mutated = data
		}

		for _, candidate := range [][]byte{data, mutated} {
			plan, err := intent.ValidatePlan(candidate)
			if err != nil {
				if plan != nil {
					t.Fatalf("validator returned both a plan and an error for %q", candidate)
				}
				continue
			}
			// Accepted plans must uphold the schema invariants.
			if plan.Version != "v1" {
				t.Fatalf("accepted plan with version %q", plan.Version)
			}
			if len(plan.Intents) == 0 {
				t.Fatal("accepted plan with no intents")
			}
			if plan.Confidence < 0 || plan.Confidence > 1 {
				t.Fatalf("accepted plan with confidence %v", plan.Confidence)
			}
			for i, in := range plan.Intents {
				if in.Retries < 0 || in.Retries > 3 {
					t.Fatalf("intent %d accepted with retries %d", i, in.Retries)
				}
				if in.Args == nil {
					t.Fatalf("intent %d accepted with nil args", i)
				}
				if in.TimeoutMs != nil && *in.TimeoutMs <= 0 {
					t.Fatalf("intent %d accepted with timeout %d", i, *in.TimeoutMs)
				}
			}
		}
	})
}
