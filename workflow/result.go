package workflow

// Status is the outward state of one engine call.
type Status string

const (
	// StatusDone means every step ran to completion.
	StatusDone Status = "DONE"
	// StatusHalt means the flow paused for further client input; all state
	// lives in the returned continuation token.
	StatusHalt Status = "HALT"
	// StatusFail means the flow aborted. State is discarded, never leaked.
	StatusFail Status = "FAIL"
)

type stepOutcome uint8

const (
	outcomeOk stepOutcome = iota
	outcomeHalt
	outcomeFail
)

// StepResult is the tagged outcome of one step invocation: exactly one of
// Ok, Halt, or Fail. Construct through the package functions; the zero value
// is Ok with no payload.
type StepResult struct {
	outcome stepOutcome

	// Payload is returned to the caller on Halt (and merged into the DONE
	// response for the final Ok).
	Payload map[string]any

	// Hint is the public hint code. Deliberately generic for business
	// rejections so callers cannot enumerate accounts.
	Hint string

	// Reason is the internal reason code. Audit-only, never client-visible.
	Reason string
}

// Ok advances to the next step. payload may be nil.
func Ok(payload map[string]any) StepResult {
	return StepResult{outcome: outcomeOk, Payload: payload}
}

// Halt pauses the flow and hands control back to the client.
func Halt(hint string, payload map[string]any) StepResult {
	return StepResult{outcome: outcomeHalt, Hint: hint, Payload: payload}
}

// Fail aborts the flow. hint is client-visible; reason is audit-only.
func Fail(hint, reason string) StepResult {
	return StepResult{outcome: outcomeFail, Hint: hint, Reason: reason}
}

// IsOk reports whether the step advanced the flow.
func (r StepResult) IsOk() bool { return r.outcome == outcomeOk }

// IsHalt reports whether the step paused the flow.
func (r StepResult) IsHalt() bool { return r.outcome == outcomeHalt }

// IsFail reports whether the step aborted the flow.
func (r StepResult) IsFail() bool { return r.outcome == outcomeFail }

// Response is the engine's outward result for one start/resume call.
type Response struct {
	Status Status

	// Token is the continuation token, set only on HALT.
	Token string

	// Hint is the public hint code for HALT and FAIL.
	Hint string

	// Reason is the internal reason code, set only on FAIL. It must be
	// stripped before the response crosses the service boundary.
	Reason string

	// Payload carries step output on HALT and DONE.
	Payload map[string]any

	// Bag is the final state snapshot, set only on DONE.
	Bag map[string]any
}
