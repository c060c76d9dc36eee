package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// planSchema is built once from the Plan struct and shown to the model in
// the repair prompt; validate does not evaluate it.
var planSchema = jsonschema.Reflect(&Plan{})

// completer is the subset of OpenAIGenerator that Repairer depends on,
// narrowed so tests can supply a fake without standing up a real client.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Repairer wraps a completer with the one-repair-retry validation flow:
// a malformed first completion gets one re-prompt that includes the
// validation error and the raw output, then either validates or hard-fails.
type Repairer struct {
	gen    completer
	schema string
}

// NewRepairer builds a Repairer, serializing planSchema once.
func NewRepairer(gen completer) (*Repairer, error) {
	body, err := json.Marshal(planSchema)
	if err != nil {
		return nil, fmt.Errorf("encoding plan schema: %w", err)
	}
	return &Repairer{gen: gen, schema: string(body)}, nil
}

// GeneratePlan implements Collaborator, running the two-attempt state
// machine: Initial → OutputValidated|OutputInvalid → Repaired →
// OutputValidated|HardFail.
func (r *Repairer) GeneratePlan(ctx context.Context, req Request) (*Plan, error) {
	system, user := buildPrompt(req, req.SchemaSubset)

	raw, err := r.gen.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("generating plan: %w", err)
	}

	plan, verr := validate(raw)
	if verr == nil {
		return plan, nil
	}

	if repaired, coerced := attemptCoercion(raw); coerced {
		if plan, verr := validate(repaired); verr == nil {
			return plan, nil
		}
	}

	repairUser := fmt.Sprintf(
		"Your previous response was invalid JSON for the required schema.\n\nSchema:\n%s\n\nYour previous output:\n%s\n\nValidation error: %s\n\nReturn ONLY a corrected JSON object.",
		r.schema, raw, verr)
	raw2, err := r.gen.Complete(ctx, system, repairUser)
	if err != nil {
		return nil, fmt.Errorf("repair attempt failed to call model: %w", err)
	}

	plan2, verr2 := validate(raw2)
	if verr2 != nil {
		return nil, fmt.Errorf("LLM output failed validation after repair: %w", verr2)
	}
	return plan2, nil
}

// validate decodes raw JSON into a Plan and checks by hand that sql is
// non-empty and confidence is in [0,1].
func validate(raw string) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if p.SQL == "" {
		return nil, fmt.Errorf("missing required field: sql")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range [0,1]", p.Confidence)
	}
	return &p, nil
}

// attemptCoercion patches the handful of obviously-fixable shapes a model
// commonly emits (a confidence string like "0.8" instead of a number)
// before spending a full repair round-trip on the model.
func attemptCoercion(raw string) (string, bool) {
	confidence := gjson.Get(raw, "confidence")
	if !confidence.Exists() || confidence.Type != gjson.String {
		return raw, false
	}
	var f float64
	if _, err := fmt.Sscanf(confidence.String(), "%g", &f); err != nil {
		return raw, false
	}
	patched, err := sjson.Set(raw, "confidence", f)
	if err != nil {
		return raw, false
	}
	return patched, true
}
