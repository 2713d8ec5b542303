package steps

import (
	"context"
	"errors"

	"github.com/ppcloud/idp/internal/crypt"
	"github.com/ppcloud/idp/userdata"
	"github.com/ppcloud/idp/workflow"
)

const defaultMaxPasswordFails = 10

// loginLookupStep resolves the identifier to a user and tells the client
// which factor comes next. The answer shape is identical for unknown
// identifiers; they just end in a generic failure one step later.
type loginLookupStep struct {
	deps            Deps
	nextWorkflowPwd string
	nextWorkflowOTP string
	fallbackToOTP   bool
}

func newLoginLookupStep(deps Deps, cfg workflow.StepConfig) (workflow.Step, error) {
	return &loginLookupStep{
		deps:            deps,
		nextWorkflowPwd: cfg.StringParam("nextWorkflowPassword", ""),
		nextWorkflowOTP: cfg.StringParam("nextWorkflowOtp", ""),
		fallbackToOTP:   cfg.BoolParam("otpWhenNoPassword", true),
	}, nil
}

func (s *loginLookupStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, _ any) workflow.StepResult {
	typ, norm, ok := bagIdentifier(bag)
	if !ok {
		return workflow.Fail(HintInternalError, "IDENTIFIER_NOT_IN_BAG")
	}

	nextAction := "PWD"
	nextWorkflow := s.nextWorkflowPwd

	ident, err := s.deps.Users.FindIdentifier(ctx, env.TenantID, typ, norm)
	switch {
	case errors.Is(err, userdata.ErrNotFound):
		// Continue to the password step with no bound user; it fails
		// generically there.
	case err != nil:
		return workflow.Fail(HintInternalError, "STORE_ERROR")
	default:
		bag.PutString(workflow.KeyUserID, ident.UserID)
		if s.fallbackToOTP {
			if _, err := s.deps.Users.FindPassword(ctx, env.TenantID, ident.UserID); errors.Is(err, userdata.ErrNotFound) {
				nextAction = "OTP"
				nextWorkflow = s.nextWorkflowOTP
			} else if err != nil {
				return workflow.Fail(HintInternalError, "STORE_ERROR")
			}
		}
	}

	if nextWorkflow != "" {
		bag.PutString(workflow.KeyNextWorkflow, nextWorkflow)
	}
	return workflow.Halt(HintContinue, map[string]any{
		"nextAction": nextAction,
	})
}

// loginVerifyPasswordStep checks the password factor. Every rejection is
// the same generic hint; internal reasons record the real cause for audit.
type loginVerifyPasswordStep struct {
	deps     Deps
	maxFails int
}

func newLoginVerifyPasswordStep(deps Deps, cfg workflow.StepConfig) (workflow.Step, error) {
	return &loginVerifyPasswordStep{
		deps:     deps,
		maxFails: cfg.IntParam("maxFails", defaultMaxPasswordFails),
	}, nil
}

func (s *loginVerifyPasswordStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, input any) workflow.StepResult {
	carrier, ok := input.(passwordCarrier)
	if !ok || carrier.passwordInput() == "" {
		return workflow.Fail(HintBadRequest, "INPUT_MISSING_PASSWORD")
	}
	plain := carrier.passwordInput()

	userID, err := bag.String(workflow.KeyUserID)
	if err != nil {
		return workflow.Fail(HintLoginFailed, "USER_NOT_FOUND")
	}

	user, err := s.deps.Users.FindUser(ctx, env.TenantID, userID)
	if err != nil {
		return workflow.Fail(HintLoginFailed, "USER_NOT_FOUND")
	}
	if user.Status != userdata.UserStatusActive {
		return workflow.Fail(HintLoginFailed, "USER_INACTIVE")
	}

	rec, err := s.deps.Users.FindPassword(ctx, env.TenantID, userID)
	if err != nil {
		return workflow.Fail(HintLoginFailed, "NO_PASSWORD_SET")
	}
	if s.maxFails > 0 && rec.FailCount >= s.maxFails {
		return workflow.Fail(HintLoginFailed, "TOO_MANY_FAILURES")
	}

	match, err := s.deps.Passwords.Verify(plain, rec.Hash)
	if err != nil {
		return workflow.Fail(HintInternalError, "HASH_ERROR")
	}
	if !match {
		if _, err := s.deps.Users.BumpPasswordFail(ctx, env.TenantID, userID); err != nil {
			s.deps.Logger.WarnContext(ctx, "bump password fail counter", "error", err)
		}
		return workflow.Fail(HintLoginFailed, "PASSWORD_MISMATCH")
	}

	if err := s.deps.Users.ClearPasswordFail(ctx, env.TenantID, userID); err != nil {
		s.deps.Logger.WarnContext(ctx, "clear password fail counter", "error", err)
	}
	s.maybeRehash(ctx, env, rec, plain)

	bag.PutBool(workflow.KeyAuthOK, true)
	bag.PutString(workflow.KeyAuthMethod, "pwd")
	return workflow.Ok(nil)
}

// maybeRehash upgrades the stored hash after a successful verify. Best
// effort; the login has already succeeded.
func (s *loginVerifyPasswordStep) maybeRehash(ctx context.Context, env workflow.Env, rec *userdata.PasswordRecord, plain string) {
	needs, err := s.deps.Passwords.NeedsRehash(rec.Hash)
	if err != nil || !needs {
		return
	}
	hash, err := s.deps.Passwords.Hash(plain)
	if err != nil {
		return
	}
	rec.Hash = hash
	rec.UpdatedAt = env.Now
	if err := s.deps.Users.SavePassword(ctx, rec); err != nil {
		s.deps.Logger.WarnContext(ctx, "password rehash save failed", "error", err)
	}
}

// deviceUpsertSeenStep records the device fingerprint against the user.
// Tracking failures never block the flow.
type deviceUpsertSeenStep struct {
	deps Deps
}

func (s *deviceUpsertSeenStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, _ any) workflow.StepResult {
	userID, err := bag.String(workflow.KeyUserID)
	if err != nil {
		return workflow.Ok(nil)
	}

	if _, err := s.deps.Users.UpsertDeviceSeen(ctx, env.TenantID, userID, crypt.DeviceHash(env.DeviceFingerprint), env.Now); err != nil {
		s.deps.Logger.WarnContext(ctx, "device upsert failed",
			"user_id", userID, "error", err)
	}
	return workflow.Ok(nil)
}
