package schemas_test

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpilot/voxpilot/api/schemas"
)

// TestIntentTypeConstants pins the wire values of the closed enum. These
// strings appear in API payloads and planner prompts, so accidental renames
// must be caught here.
func TestIntentTypeConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		constant schemas.IntentType
		expected string
	}{
		{schemas.IntentTypeNavigate, "navigate"},
		{schemas.IntentTypeSearch, "search"},
		{schemas.IntentTypeClick, "click"},
		{schemas.IntentTypeText, "type"},
		{schemas.IntentTypeSelect, "select"},
		{schemas.IntentTypeScroll, "scroll"},
		{schemas.IntentTypeBack, "back"},
		{schemas.IntentTypeForward, "forward"},
		{schemas.IntentTypeWaitFor, "wait_for"},
		{schemas.IntentTypeUpload, "upload"},
		{schemas.IntentTypeExtractTable, "extract_table"},
		{schemas.IntentTypeScreenshot, "screenshot"},
		{schemas.IntentTypeSort, "sort"},
		{schemas.IntentTypeFilter, "filter"},
		{schemas.IntentTypeSummarize, "summarize"},
		{schemas.IntentTypeConfirm, "confirm"},
		{schemas.IntentTypeCancel, "cancel"},
		{schemas.IntentTypeUnknown, "unknown"},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.constant.String())
		})
	}

	// The helper must enumerate every constant above, no more, no fewer.
	all := schemas.AllIntentTypes()
	require.Len(t, all, len(testCases))
	seen := make(map[schemas.IntentType]bool, len(all))
	for _, it := range all {
		seen[it] = true
	}
	for _, tc := range testCases {
		assert.True(t, seen[tc.constant], "AllIntentTypes is missing %q", tc.constant)
	}
}

// TestStructJSONTags verifies the json tags on the boundary structs via
// reflection. The tags are the API contract with the planner and the UI.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "Intent",
			structRef: schemas.Intent{},
			expectedTags: map[string]string{
				"Type":                 "type",
				"Args":                 "args",
				"Target":               "target,omitempty",
				"Priority":             "priority",
				"RequiresConfirmation": "requires_confirmation",
				"TimeoutMs":            "timeout_ms,omitempty",
				"Retries":              "retries",
			},
		},
		{
			name:      "Plan",
			structRef: schemas.Plan{},
			expectedTags: map[string]string{
				"Version":          "version",
				"Intents":          "intents",
				"ContextUpdates":   "context_updates",
				"Confidence":       "confidence",
				"TTSSummary":       "tts_summary,omitempty",
				"FollowUpQuestion": "follow_up_question,omitempty",
			},
		},
		{
			name:      "StepResult",
			structRef: schemas.StepResult{},
			expectedTags: map[string]string{
				"Intent":     "intent",
				"OK":         "ok",
				"Error":      "error,omitempty",
				"Data":       "data,omitempty",
				"Screenshot": "screenshot,omitempty",
				"DataPaths":  "data_paths,omitempty",
				"Analysis":   "analysis,omitempty",
			},
		},
		{
			name:      "ExecuteRequest",
			structRef: schemas.ExecuteRequest{},
			expectedTags: map[string]string{
				"SessionID": "session_id,omitempty",
				"Intents":   "intents",
			},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			structType := reflect.TypeOf(tt.structRef)
			for fieldName, expectedTag := range tt.expectedTags {
				field, found := structType.FieldByName(fieldName)
				require.True(t, found, "field %q not found on %s", fieldName, tt.name)
				assert.Equal(t, expectedTag, field.Tag.Get("json"), "tag mismatch for %s.%s", tt.name, fieldName)
			}
		})
	}
}

func TestIntentArgHelpers(t *testing.T) {
	t.Parallel()
	in := schemas.Intent{
		Type: schemas.IntentTypeExtractTable,
		Args: map[string]any{
			"query":   "mechanical keyboards",
			"limit":   float64(5), // json numbers decode as float64
			"columns": []any{"title", "price"},
		},
	}

	assert.Equal(t, "mechanical keyboards", in.StringArg("query", ""))
	assert.Equal(t, "fallback", in.StringArg("missing", "fallback"))
	assert.Equal(t, 5, in.IntArg("limit", 20))
	assert.Equal(t, 20, in.IntArg("missing", 20))
	assert.Equal(t, []string{"title", "price"}, in.StringsArg("columns"))
	assert.Nil(t, in.StringsArg("query"))
}

func TestEffectiveTimeout(t *testing.T) {
	t.Parallel()
	def := 15 * time.Second

	in := schemas.Intent{Type: schemas.IntentTypeClick}
	assert.Equal(t, def, in.EffectiveTimeout(def))

	ms := 2500
	in.TimeoutMs = &ms
	assert.Equal(t, 2500*time.Millisecond, in.EffectiveTimeout(def))

	zero := 0
	in.TimeoutMs = &zero
	assert.Equal(t, def, in.EffectiveTimeout(def), "non-positive timeout falls back to the default")
}

func TestTargetEmpty(t *testing.T) {
	t.Parallel()
	assert.True(t, (*schemas.Target)(nil).Empty())
	assert.True(t, (&schemas.Target{Strategy: schemas.StrategyAuto}).Empty())
	assert.True(t, (&schemas.Target{Role: "button"}).Empty(), "role without a name is not a locator")
	assert.False(t, (&schemas.Target{Selector: "#go"}).Empty())
	assert.False(t, (&schemas.Target{Text: "Add to cart"}).Empty())
	assert.False(t, (&schemas.Target{Role: "button", Name: "Search"}).Empty())
}

func TestBestSearchElement(t *testing.T) {
	t.Parallel()
	analysis := &schemas.PageAnalysis{
		SearchElements: []schemas.DOMElement{
			{Selector: "#hidden", Score: 12, Visible: false, Enabled: true},
			{Selector: "#search", Score: 9, Visible: true, Enabled: true},
			{Selector: "#other", Score: 3, Visible: true, Enabled: true},
		},
	}
	best := analysis.BestSearchElement()
	require.NotNil(t, best)
	assert.Equal(t, "#search", best.Selector, "the first interactable candidate wins; ranking is the analyzer's job")

	var nilAnalysis *schemas.PageAnalysis
	assert.Nil(t, nilAnalysis.BestSearchElement())
}

// TestPlanSerializationCycle round-trips a representative plan and checks
// data integrity across the wire boundary.
func TestPlanSerializationCycle(t *testing.T) {
	t.Parallel()
	timeoutMs := 5000
	followUp := "Which of the two accounts should I use?"
	plan := schemas.Plan{
		Version: schemas.PlanVersion,
		Intents: []schemas.Intent{
			{
				Type: schemas.IntentTypeNavigate,
				Args: map[string]any{"url": "https://example.com"},
			},
			{
				Type:      schemas.IntentTypeClick,
				Args:      map[string]any{},
				Target:    &schemas.Target{Strategy: schemas.StrategyText, Text: "Sign in"},
				TimeoutMs: &timeoutMs,
				Retries:   2,
			},
		},
		ContextUpdates:   map[string]any{"last_query": "sign in"},
		Confidence:       0.85,
		TTSSummary:       "Opening example.com and clicking sign in.",
		FollowUpQuestion: &followUp,
	}

	data, err := json.Marshal(plan)
	require.NoError(t, err)

	var decoded schemas.Plan
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, reflect.DeepEqual(plan, decoded), "plan must survive a marshal/unmarshal cycle unchanged")
}
