package schemas

import "time"

// IntentType identifies a single executable browser action.
type IntentType string

const (
	IntentTypeNavigate     IntentType = "navigate"
	IntentTypeSearch       IntentType = "search"
	IntentTypeClick        IntentType = "click"
	IntentTypeText         IntentType = "type"
	IntentTypeSelect       IntentType = "select"
	IntentTypeScroll       IntentType = "scroll"
	IntentTypeBack         IntentType = "back"
	IntentTypeForward      IntentType = "forward"
	IntentTypeWaitFor      IntentType = "wait_for"
	IntentTypeUpload       IntentType = "upload"
	IntentTypeExtractTable IntentType = "extract_table"
	IntentTypeScreenshot   IntentType = "screenshot"
	IntentTypeSort         IntentType = "sort"
	IntentTypeFilter       IntentType = "filter"
	IntentTypeSummarize    IntentType = "summarize"
	IntentTypeConfirm      IntentType = "confirm"
	IntentTypeCancel       IntentType = "cancel"
	IntentTypeUnknown      IntentType = "unknown"
)

func (t IntentType) String() string { return string(t) }

// AllIntentTypes returns the closed set of intent types accepted by the
// validator. The execution engine's dispatch table is checked against this
// set in tests so the two can never drift apart silently.
func AllIntentTypes() []IntentType {
	return []IntentType{
		IntentTypeNavigate, IntentTypeSearch, IntentTypeClick, IntentTypeText,
		IntentTypeSelect, IntentTypeScroll, IntentTypeBack, IntentTypeForward,
		IntentTypeWaitFor, IntentTypeUpload, IntentTypeExtractTable,
		IntentTypeScreenshot, IntentTypeSort, IntentTypeFilter,
		IntentTypeSummarize, IntentTypeConfirm, IntentTypeCancel,
		IntentTypeUnknown,
	}
}

// TargetStrategy declares how a Target locates a DOM element.
type TargetStrategy string

const (
	StrategyAuto  TargetStrategy = "auto"
	StrategyCSS   TargetStrategy = "css"
	StrategyText  TargetStrategy = "text"
	StrategyRole  TargetStrategy = "role"
	StrategyARIA  TargetStrategy = "aria"
	StrategyXPath TargetStrategy = "xpath"
)

func (s TargetStrategy) String() string { return string(s) }

// AllTargetStrategies returns the closed set of target strategies.
func AllTargetStrategies() []TargetStrategy {
	return []TargetStrategy{
		StrategyAuto, StrategyCSS, StrategyText, StrategyRole, StrategyARIA, StrategyXPath,
	}
}

// Target describes how to locate the DOM element an intent operates on.
// Exactly one of Selector, Text, or Role+Name must be populated.
type Target struct {
	Strategy TargetStrategy `json:"strategy"`
	Selector string         `json:"selector,omitempty"`
	Text     string         `json:"text,omitempty"`
	Role     string         `json:"role,omitempty"`
	Name     string         `json:"name,omitempty"`
}

// Empty reports whether the target carries no locator at all.
func (t *Target) Empty() bool {
	if t == nil {
		return true
	}
	return t.Selector == "" && t.Text == "" && (t.Role == "" || t.Name == "")
}

// Intent is the atomic unit of executable intention. Args is an open mapping
// interpreted per Type; the validator narrows it before the engine sees it.
type Intent struct {
	Type                 IntentType     `json:"type"`
	Args                 map[string]any `json:"args"`
	Target               *Target        `json:"target,omitempty"`
	Priority             int            `json:"priority"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	TimeoutMs            *int           `json:"timeout_ms,omitempty"`
	Retries              int            `json:"retries"`
}

// StringArg returns the named argument as a string, or def when absent or of
// another type.
func (in Intent) StringArg(key, def string) string {
	if v, ok := in.Args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// IntArg returns the named argument as an int. JSON numbers decode as
// float64, so both representations are accepted.
func (in Intent) IntArg(key string, def int) int {
	switch v := in.Args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// StringsArg returns the named argument as a string slice.
func (in Intent) StringsArg(key string) []string {
	raw, ok := in.Args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// EffectiveTimeout resolves the per-step deadline, falling back to def when
// the intent does not carry one.
func (in Intent) EffectiveTimeout(def time.Duration) time.Duration {
	if in.TimeoutMs != nil && *in.TimeoutMs > 0 {
		return time.Duration(*in.TimeoutMs) * time.Millisecond
	}
	return def
}

// PlanVersion is the literal format tag carried by every plan.
const PlanVersion = "v1"

// Plan is the parsed and validated output of the intent generator for one
// user utterance.
type Plan struct {
	Version          string         `json:"version"`
	Intents          []Intent       `json:"intents"`
	ContextUpdates   map[string]any `json:"context_updates"`
	Confidence       float64        `json:"confidence"`
	TTSSummary       string         `json:"tts_summary,omitempty"`
	FollowUpQuestion *string        `json:"follow_up_question,omitempty"`
}
