package chat

import (
	"errors"
	"fmt"

	"github.com/coachly/coachd/services/subscription"
)

var (
	ErrAgentNotFound        = errors.New("agent not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyMessage         = errors.New("message cannot be empty")
)

// GateError carries the subscription denial that blocked the message.
type GateError struct {
	Denial subscription.Denial
}

func (e *GateError) Error() string {
	return fmt.Sprintf("message gated: %s", e.Denial.Code)
}

// AssessmentRequiredError blocks the first user message of a new
// conversation until the gating assessment is completed.
type AssessmentRequiredError struct {
	AssessmentID string
}

func (e *AssessmentRequiredError) Error() string {
	return fmt.Sprintf("assessment %q must be completed first", e.AssessmentID)
}
