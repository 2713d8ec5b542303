package steps

import (
	"context"
	"time"

	"github.com/ppcloud/idp/internal/crypt"
	"github.com/ppcloud/idp/userdata"
	"github.com/ppcloud/idp/workflow"
)

const defaultActionTokenTTLSeconds = 900

// actionTokenIssueStep converts a passed OTP gate into a one-time action
// token. The plain token goes to the caller only; the store keeps its hash.
type actionTokenIssueStep struct {
	deps         Deps
	purpose      string
	ttlSeconds   int
	nextWorkflow string
}

func newActionTokenIssueStep(deps Deps, cfg workflow.StepConfig) (workflow.Step, error) {
	return &actionTokenIssueStep{
		deps:         deps,
		purpose:      cfg.StringParam("purpose", PurposePasswordReset),
		ttlSeconds:   cfg.IntParam("ttlSeconds", defaultActionTokenTTLSeconds),
		nextWorkflow: cfg.StringParam("nextWorkflow", ""),
	}, nil
}

func (s *actionTokenIssueStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, _ any) workflow.StepResult {
	verified, err := bag.BoolDefault(workflow.KeyOTPVerified, false)
	if err != nil || !verified {
		return workflow.Fail(HintResetRejected, "OTP_NOT_VERIFIED")
	}
	userID, err := bag.String(workflow.KeyUserID)
	if err != nil {
		return workflow.Fail(HintResetRejected, "USER_NOT_FOUND")
	}

	plain, err := crypt.NewOpaqueToken(crypt.OpaqueTokenBytes)
	if err != nil {
		return workflow.Fail(HintInternalError, "TOKEN_GENERATE_ERROR")
	}

	payload := map[string]string{}
	if typ, norm, ok := bagIdentifier(bag); ok {
		payload["idf.type"] = string(typ)
		payload["idf.norm"] = norm
	}

	tok := &userdata.ActionToken{
		TenantID:  env.TenantID,
		Hash:      crypt.SHA256Base64URL(plain),
		UserID:    userID,
		Purpose:   s.purpose,
		Payload:   payload,
		ExpiresAt: env.Now.Add(time.Duration(s.ttlSeconds) * time.Second),
	}
	if err := s.deps.Users.CreateActionToken(ctx, tok); err != nil {
		return workflow.Fail(HintInternalError, "STORE_ERROR")
	}

	if s.nextWorkflow != "" {
		bag.PutString(workflow.KeyNextWorkflow, s.nextWorkflow)
	}
	return workflow.Halt(HintResetTokenIssued, map[string]any{
		"resetToken":       plain,
		"expiresInSeconds": s.ttlSeconds,
	})
}

// actionTokenConsumeStep redeems the one-time token. Exactly one attempt
// can win; everything else gets the same rejection hint.
type actionTokenConsumeStep struct {
	deps    Deps
	purpose string
}

func newActionTokenConsumeStep(deps Deps, cfg workflow.StepConfig) (workflow.Step, error) {
	return &actionTokenConsumeStep{
		deps:    deps,
		purpose: cfg.StringParam("purpose", PurposePasswordReset),
	}, nil
}

func (s *actionTokenConsumeStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, input any) workflow.StepResult {
	carrier, ok := input.(resetTokenCarrier)
	if !ok || carrier.resetTokenInput() == "" {
		return workflow.Fail(HintBadRequest, "INPUT_MISSING_TOKEN")
	}

	res, err := s.deps.Users.ConsumeActionToken(
		ctx, env.TenantID,
		crypt.SHA256Base64URL(carrier.resetTokenInput()),
		s.purpose, env.Now,
	)
	if err != nil {
		return workflow.Fail(HintInternalError, "STORE_ERROR")
	}
	if !res.OK {
		return workflow.Fail(HintResetRejected, res.Reason)
	}

	bag.PutString(workflow.KeyActionTokenUserID, res.UserID)
	bag.PutStringMap(workflow.KeyActionTokenPayload, res.Payload)
	return workflow.Ok(nil)
}

// passwordSetNewStep writes the new credential and cuts every refresh
// token the user holds, so a reset ends all existing sessions.
type passwordSetNewStep struct {
	deps      Deps
	revokeAll bool
}

func newPasswordSetNewStep(deps Deps, cfg workflow.StepConfig) (workflow.Step, error) {
	return &passwordSetNewStep{
		deps:      deps,
		revokeAll: cfg.BoolParam("revokeSessions", true),
	}, nil
}

func (s *passwordSetNewStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, input any) workflow.StepResult {
	carrier, ok := input.(passwordCarrier)
	if !ok || carrier.passwordInput() == "" {
		return workflow.Fail(HintBadRequest, "INPUT_MISSING_PASSWORD")
	}
	plain := carrier.passwordInput()
	if len(plain) < minPasswordBytes {
		return workflow.Fail(HintResetRejected, "PASSWORD_TOO_SHORT")
	}

	userID, err := bag.String(workflow.KeyActionTokenUserID)
	if err != nil {
		return workflow.Fail(HintResetRejected, "USER_NOT_FOUND")
	}

	hash, err := s.deps.Passwords.Hash(plain)
	if err != nil {
		return workflow.Fail(HintInternalError, "HASH_ERROR")
	}
	rec := &userdata.PasswordRecord{
		TenantID:  env.TenantID,
		UserID:    userID,
		Hash:      hash,
		UpdatedAt: env.Now,
	}
	if err := s.deps.Users.SavePassword(ctx, rec); err != nil {
		return workflow.Fail(HintInternalError, "STORE_ERROR")
	}

	if s.revokeAll {
		if err := s.deps.Tokens.RevokeAll(ctx, env.TenantID, userID); err != nil {
			s.deps.Logger.ErrorContext(ctx, "revoke-all after reset failed",
				"user_id", userID, "error", err)
		}
	}

	bag.PutString(workflow.KeyResult, "PASSWORD_UPDATED")
	return workflow.Ok(nil)
}
