package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ppcloud/idp/internal/crypt"
	"github.com/ppcloud/idp/userdata"
	"github.com/ppcloud/idp/workflow"
)

const (
	defaultOTPTTLSeconds = 300
	defaultOTPDigits     = 6
)

// otpSendStep creates a challenge, delivers the code, and halts the flow
// until the caller comes back with it. For lookup purposes (password
// reset), an unknown identifier gets a decoy challenge so the response is
// indistinguishable from the real thing.
type otpSendStep struct {
	deps         Deps
	purpose      string
	ttlSeconds   int
	digits       int
	lookupUser   bool
	nextWorkflow string
}

func newOTPSendStep(deps Deps, cfg workflow.StepConfig) (workflow.Step, error) {
	purpose := cfg.StringParam("purpose", "")
	if purpose == "" {
		return nil, fmt.Errorf("step %s: purpose param required", cfg.StepID)
	}

	digits := cfg.IntParam("digits", defaultOTPDigits)
	if digits < 4 || digits > 10 {
		return nil, fmt.Errorf("step %s: digits out of range", cfg.StepID)
	}

	return &otpSendStep{
		deps:         deps,
		purpose:      purpose,
		ttlSeconds:   cfg.IntParam("ttlSeconds", defaultOTPTTLSeconds),
		digits:       digits,
		lookupUser:   cfg.BoolParam("lookupUser", false),
		nextWorkflow: cfg.StringParam("nextWorkflow", ""),
	}, nil
}

func (s *otpSendStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, _ any) workflow.StepResult {
	typ, norm, ok := bagIdentifier(bag)
	if !ok {
		return workflow.Fail(HintInternalError, "IDENTIFIER_NOT_IN_BAG")
	}

	if s.lookupUser {
		ident, err := s.deps.Users.FindIdentifier(ctx, env.TenantID, typ, norm)
		switch {
		case errors.Is(err, userdata.ErrNotFound):
			// Unknown identifier: answer with a decoy challenge that can
			// never verify. Nothing is sent.
			return s.halt(bag, uuid.NewString())
		case err != nil:
			return workflow.Fail(HintInternalError, "STORE_ERROR")
		}
		bag.PutString(workflow.KeyUserID, ident.UserID)
	}

	code, err := crypt.NewOTP(s.digits)
	if err != nil {
		return workflow.Fail(HintInternalError, "OTP_GENERATE_ERROR")
	}

	challenge := &userdata.OTPChallenge{
		TenantID:    env.TenantID,
		ID:          uuid.NewString(),
		Target:      norm,
		Purpose:     s.purpose,
		CodeHash:    crypt.SHA256Base64URL(code),
		MaxAttempts: userdata.DefaultOTPMaxAttempts,
		ExpiresAt:   env.Now.Add(s.ttl()),
		CreatedAt:   env.Now,
	}
	if err := s.deps.Users.CreateOTP(ctx, challenge); err != nil {
		return workflow.Fail(HintInternalError, "STORE_ERROR")
	}

	if err := s.deps.Sender.Send(ctx, norm, code, s.purpose); err != nil {
		s.deps.Logger.ErrorContext(ctx, "otp delivery failed",
			"purpose", s.purpose, "error", err)
		return workflow.Fail(HintInternalError, "OTP_SEND_ERROR")
	}

	return s.halt(bag, challenge.ID)
}

func (s *otpSendStep) halt(bag workflow.Bag, challengeID string) workflow.StepResult {
	bag.PutString(workflow.KeyOTPChallengeID, challengeID)
	if s.nextWorkflow != "" {
		bag.PutString(workflow.KeyNextWorkflow, s.nextWorkflow)
	}
	return workflow.Halt(HintNeedVerifyCode, map[string]any{
		"challengeId":      challengeID,
		"expiresInSeconds": s.ttlSeconds,
	})
}

func (s *otpSendStep) ttl() time.Duration {
	return time.Duration(s.ttlSeconds) * time.Second
}

// otpVerifyStep runs the atomic code check. grantsAuth marks OTP success
// as a completed authentication so the flow may issue tokens.
type otpVerifyStep struct {
	deps       Deps
	purpose    string
	grantsAuth bool
}

func newOTPVerifyStep(deps Deps, cfg workflow.StepConfig) (workflow.Step, error) {
	purpose := cfg.StringParam("purpose", "")
	if purpose == "" {
		return nil, fmt.Errorf("step %s: purpose param required", cfg.StepID)
	}
	return &otpVerifyStep{
		deps:       deps,
		purpose:    purpose,
		grantsAuth: cfg.BoolParam("grantsAuth", false),
	}, nil
}

func (s *otpVerifyStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, input any) workflow.StepResult {
	carrier, ok := input.(codeCarrier)
	if !ok {
		return workflow.Fail(HintBadRequest, "INPUT_MISSING_CODE")
	}
	challengeID, code := carrier.codeInput()

	// The challenge must be the one this flow opened.
	expected, err := bag.String(workflow.KeyOTPChallengeID)
	if err != nil || challengeID == "" || challengeID != expected {
		return workflow.Fail(HintVerifyRejected, "CHALLENGE_MISMATCH")
	}

	res, err := s.deps.Users.VerifyOTP(ctx, env.TenantID, challengeID, crypt.SHA256Base64URL(code), env.Now)
	if err != nil {
		return workflow.Fail(HintInternalError, "STORE_ERROR")
	}
	if !res.OK {
		return workflow.Fail(HintVerifyRejected, res.Reason)
	}

	bag.PutBool(workflow.KeyOTPVerified, true)
	if s.grantsAuth {
		bag.PutBool(workflow.KeyAuthOK, true)
		bag.PutString(workflow.KeyAuthMethod, "otp")
	}
	return workflow.Ok(nil)
}
