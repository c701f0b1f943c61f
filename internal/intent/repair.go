package intent

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/api/schemas"
)

// Message roles mirror the usual chat-completion convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation handed to a Generator.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces a candidate plan document from a conversation. The
// concrete implementation (an LLM client) lives outside this package; tests
// substitute fakes.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

var jsonBlockRegex = regexp.MustCompile("(?s)(?:```json\\s*|```\\s*|)(\\{.*\\})(?:\\s*```|)")

// GeneratePlan runs the generate/validate/repair protocol: one generation,
// and on schema failure exactly one corrective re-generation. It makes at
// most two generator calls per request, never more.
//
// The three failure modes are distinguishable for callers:
//   - *GenerationError: the generator itself failed (either attempt);
//     short-circuits without a repair attempt.
//   - ErrRepairExhausted (via *RepairError): both candidates failed
//     validation.
//   - A valid plan, otherwise.
func GeneratePlan(ctx context.Context, gen Generator, messages []Message, logger *zap.Logger) (*schemas.Plan, error) {
	first, err := gen.Generate(ctx, messages)
	if err != nil {
		return nil, &GenerationError{Attempt: 1, Err: err}
	}

	plan, verr := validateCandidate(first)
	if verr == nil {
		return plan, nil
	}
	logger.Warn("Generated plan failed validation, issuing repair attempt",
		zap.Int("violations", len(verr.Fields)),
		zap.String("first_violation", verr.Fields[0].String()))

	repaired := append(append([]Message{}, messages...),
		Message{Role: RoleAssistant, Content: first},
		Message{Role: RoleUser, Content: repairInstruction(verr)},
	)

	second, err := gen.Generate(ctx, repaired)
	if err != nil {
		return nil, &GenerationError{Attempt: 2, Err: err}
	}

	plan, verr2 := validateCandidate(second)
	if verr2 == nil {
		logger.Info("Repair attempt produced a valid plan")
		return plan, nil
	}
	return nil, &RepairError{First: verr, Second: verr2}
}

func validateCandidate(response string) (*schemas.Plan, *ValidationError) {
	plan, err := ValidatePlan([]byte(ExtractJSON(response)))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, &ValidationError{Fields: []FieldError{{Path: "$", Constraint: err.Error()}}}
	}
	return plan, nil
}

func repairInstruction(verr *ValidationError) string {
	return fmt.Sprintf(
		"Your previous response did not conform to the plan schema. Violations: %v. "+
			"Respond again with ONLY a single corrected JSON object, no prose, no markdown fences, "+
			"fixing every violation listed above.", verr)
}
