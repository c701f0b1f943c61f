package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/voxpilot/voxpilot/api/schemas"
)

// jsonx is the decoder used on untrusted planner output. jsoniter keeps the
// hot validation path cheap while staying drop-in compatible with
// encoding/json semantics (numbers as float64, RawMessage support).
var jsonx = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultRetries = 1
	maxRetries     = 3
)

// collector accumulates field errors so a rejected document reports every
// violation at once.
type collector struct {
	fields []FieldError
}

func (c *collector) add(path, constraint string) {
	c.fields = append(c.fields, FieldError{Path: path, Constraint: constraint})
}

func (c *collector) addf(path, format string, args ...any) {
	c.add(path, fmt.Sprintf(format, args...))
}

func (c *collector) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: c.fields}
}

// ValidatePlan strictly validates raw bytes against the Plan shape, applying
// defaults as it goes. On failure it returns a *ValidationError enumerating
// every offending field; the input is never partially accepted.
func ValidatePlan(raw []byte) (*schemas.Plan, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Path: "$", Constraint: err.Error()}}}
	}

	c := &collector{}
	plan := validatePlanObject(obj, c)
	if err := c.err(); err != nil {
		return nil, err
	}
	return plan, nil
}

// ValidateIntent strictly validates raw bytes against the Intent shape.
func ValidateIntent(raw []byte) (*schemas.Intent, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Path: "$", Constraint: err.Error()}}}
	}

	c := &collector{}
	in := validateIntentObject(obj, "$", c)
	if err := c.err(); err != nil {
		return nil, err
	}
	return in, nil
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := jsonx.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("must be a JSON object: %v", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("must be a JSON object, got null")
	}
	return obj, nil
}

var planKeys = map[string]bool{
	"version": true, "intents": true, "context_updates": true,
	"confidence": true, "tts_summary": true, "follow_up_question": true,
}

func validatePlanObject(obj map[string]json.RawMessage, c *collector) *schemas.Plan {
	rejectUnknownKeys(obj, planKeys, "$", c)

	plan := &schemas.Plan{
		ContextUpdates: map[string]any{},
	}

	// version: required literal tag. Unknown format tags are rejected here
	// rather than guessed at downstream.
	if raw, ok := obj["version"]; !ok {
		c.add("$.version", "is required")
	} else if v, ok := decodeString(raw, "$.version", c); ok {
		if v != schemas.PlanVersion {
			c.addf("$.version", "unsupported plan version %q (want %q)", v, schemas.PlanVersion)
		}
		plan.Version = v
	}

	// intents: required, non-empty, each element validated independently so
	// errors across intents accumulate.
	if raw, ok := obj["intents"]; !ok {
		c.add("$.intents", "is required")
	} else {
		var items []json.RawMessage
		if err := jsonx.Unmarshal(raw, &items); err != nil {
			c.add("$.intents", "must be an array")
		} else if len(items) == 0 {
			c.add("$.intents", "must not be empty")
		} else {
			plan.Intents = make([]schemas.Intent, 0, len(items))
			for i, item := range items {
				path := fmt.Sprintf("$.intents[%d]", i)
				itemObj, err := decodeObject(item)
				if err != nil {
					c.add(path, err.Error())
					continue
				}
				if in := validateIntentObject(itemObj, path, c); in != nil {
					plan.Intents = append(plan.Intents, *in)
				}
			}
		}
	}

	if raw, ok := obj["context_updates"]; ok {
		if err := jsonx.Unmarshal(raw, &plan.ContextUpdates); err != nil || plan.ContextUpdates == nil {
			c.add("$.context_updates", "must be an object")
			plan.ContextUpdates = map[string]any{}
		}
	}

	// confidence: required, strictly bounded. Out-of-range input fails
	// validation; it is never silently clamped.
	if raw, ok := obj["confidence"]; !ok {
		c.add("$.confidence", "is required")
	} else if v, ok := decodeNumber(raw, "$.confidence", c); ok {
		if v < 0 || v > 1 {
			c.addf("$.confidence", "must be within [0, 1], got %v", v)
		}
		plan.Confidence = v
	}

	if raw, ok := obj["tts_summary"]; ok {
		if v, ok := decodeString(raw, "$.tts_summary", c); ok {
			plan.TTSSummary = v
		}
	}

	// follow_up_question is explicitly nullable: null means "no question".
	if raw, ok := obj["follow_up_question"]; ok && !isNull(raw) {
		if v, ok := decodeString(raw, "$.follow_up_question", c); ok {
			plan.FollowUpQuestion = &v
		}
	}

	return plan
}

var intentKeys = map[string]bool{
	"type": true, "args": true, "target": true, "priority": true,
	"requires_confirmation": true, "timeout_ms": true, "retries": true,
}

var validIntentTypes = func() map[schemas.IntentType]bool {
	m := make(map[schemas.IntentType]bool)
	for _, t := range schemas.AllIntentTypes() {
		m[t] = true
	}
	return m
}()

var validStrategies = func() map[schemas.TargetStrategy]bool {
	m := make(map[schemas.TargetStrategy]bool)
	for _, s := range schemas.AllTargetStrategies() {
		m[s] = true
	}
	return m
}()

func validateIntentObject(obj map[string]json.RawMessage, path string, c *collector) *schemas.Intent {
	rejectUnknownKeys(obj, intentKeys, path, c)

	// Defaults are applied here, during validation, never before it.
	in := &schemas.Intent{
		Args:    map[string]any{},
		Retries: defaultRetries,
	}

	if raw, ok := obj["type"]; !ok {
		c.add(path+".type", "is required")
	} else if v, ok := decodeString(raw, path+".type", c); ok {
		t := schemas.IntentType(v)
		if !validIntentTypes[t] {
			c.addf(path+".type", "unknown intent type %q", v)
		}
		in.Type = t
	}

	if raw, ok := obj["args"]; ok && !isNull(raw) {
		if err := jsonx.Unmarshal(raw, &in.Args); err != nil || in.Args == nil {
			c.add(path+".args", "must be an object")
			in.Args = map[string]any{}
		}
	}

	if raw, ok := obj["target"]; ok && !isNull(raw) {
		in.Target = validateTargetObject(raw, path+".target", c)
	}

	if raw, ok := obj["priority"]; ok {
		if v, ok := decodeInteger(raw, path+".priority", c); ok {
			in.Priority = v
		}
	}

	if raw, ok := obj["requires_confirmation"]; ok {
		if err := jsonx.Unmarshal(raw, &in.RequiresConfirmation); err != nil {
			c.add(path+".requires_confirmation", "must be a boolean")
		}
	}

	if raw, ok := obj["timeout_ms"]; ok && !isNull(raw) {
		if v, ok := decodeInteger(raw, path+".timeout_ms", c); ok {
			if v <= 0 {
				c.addf(path+".timeout_ms", "must be positive, got %d", v)
			} else {
				in.TimeoutMs = &v
			}
		}
	}

	if raw, ok := obj["retries"]; ok {
		if v, ok := decodeInteger(raw, path+".retries", c); ok {
			if v < 0 || v > maxRetries {
				c.addf(path+".retries", "must be within [0, %d], got %d", maxRetries, v)
			} else {
				in.Retries = v
			}
		}
	}

	return in
}

var targetKeys = map[string]bool{
	"strategy": true, "selector": true, "text": true, "role": true, "name": true,
}

func validateTargetObject(raw json.RawMessage, path string, c *collector) *schemas.Target {
	obj, err := decodeObject(raw)
	if err != nil {
		c.add(path, err.Error())
		return nil
	}
	rejectUnknownKeys(obj, targetKeys, path, c)

	target := &schemas.Target{Strategy: schemas.StrategyAuto}

	if rawStrategy, ok := obj["strategy"]; ok {
		if v, ok := decodeString(rawStrategy, path+".strategy", c); ok {
			s := schemas.TargetStrategy(v)
			if !validStrategies[s] {
				c.addf(path+".strategy", "unknown target strategy %q", v)
			}
			target.Strategy = s
		}
	}

	for key, dst := range map[string]*string{
		"selector": &target.Selector,
		"text":     &target.Text,
		"role":     &target.Role,
		"name":     &target.Name,
	} {
		if rawField, ok := obj[key]; ok {
			if v, ok := decodeString(rawField, path+"."+key, c); ok {
				*dst = v
			}
		}
	}

	if target.Empty() {
		c.add(path, "must carry a selector, a text, or a role with a name")
	}
	return target
}

func rejectUnknownKeys(obj map[string]json.RawMessage, allowed map[string]bool, path string, c *collector) {
	var unknown []string
	for key := range obj {
		if !allowed[key] {
			unknown = append(unknown, key)
		}
	}
	// Deterministic error ordering for callers and tests.
	sort.Strings(unknown)
	for _, key := range unknown {
		c.addf(path+"."+key, "unknown field %q", key)
	}
}

func decodeString(raw json.RawMessage, path string, c *collector) (string, bool) {
	var v string
	if err := jsonx.Unmarshal(raw, &v); err != nil {
		c.add(path, "must be a string")
		return "", false
	}
	return v, true
}

func decodeNumber(raw json.RawMessage, path string, c *collector) (float64, bool) {
	var v float64
	if err := jsonx.Unmarshal(raw, &v); err != nil {
		c.add(path, "must be a number")
		return 0, false
	}
	return v, true
}

// isNull reports whether a raw value is JSON null. jsoniter hands null map
// values through as an empty RawMessage rather than the literal bytes, so an
// empty value counts as null too.
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func decodeInteger(raw json.RawMessage, path string, c *collector) (int, bool) {
	v, ok := decodeNumber(raw, path, c)
	if !ok {
		return 0, false
	}
	if v != math.Trunc(v) {
		c.addf(path, "must be an integer, got %v", v)
		return 0, false
	}
	return int(v), true
}

// ExtractJSON pulls the first JSON object out of a model response, tolerating
// markdown fences and prose around the payload.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	if m := jsonBlockRegex.FindStringSubmatch(response); len(m) > 1 {
		return m[1]
	}
	return response
}
