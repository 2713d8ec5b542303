package steps

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ppcloud/idp/userdata"
	"github.com/ppcloud/idp/workflow"
)

const minPasswordBytes = 10

// registerCreateUserStep creates the account and binds the identifier,
// unverified. Registration is the one flow where "identifier exists" is
// told to the caller; sign-up UX needs it and the subsequent OTP gate
// limits probing value.
type registerCreateUserStep struct {
	deps Deps
}

func (s *registerCreateUserStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, input any) workflow.StepResult {
	typ, norm, ok := bagIdentifier(bag)
	if !ok {
		return workflow.Fail(HintInternalError, "IDENTIFIER_NOT_IN_BAG")
	}

	_, err := s.deps.Users.FindIdentifier(ctx, env.TenantID, typ, norm)
	switch {
	case err == nil:
		return workflow.Fail(HintRegisterRejected, "IDENTIFIER_EXISTS")
	case !errors.Is(err, userdata.ErrNotFound):
		return workflow.Fail(HintInternalError, "STORE_ERROR")
	}

	user := &userdata.User{
		TenantID:  env.TenantID,
		ID:        uuid.NewString(),
		Status:    userdata.UserStatusActive,
		CreatedAt: env.Now,
	}
	if err := s.deps.Users.CreateUser(ctx, user); err != nil {
		return workflow.Fail(HintInternalError, "STORE_ERROR")
	}

	ident := &userdata.Identifier{
		TenantID:  env.TenantID,
		Type:      typ,
		Norm:      norm,
		UserID:    user.ID,
		CreatedAt: env.Now,
	}
	if err := s.deps.Users.SaveIdentifier(ctx, ident); err != nil {
		if errors.Is(err, userdata.ErrDuplicate) {
			// Lost a concurrent registration race on the same identifier.
			return workflow.Fail(HintRegisterRejected, "IDENTIFIER_EXISTS")
		}
		return workflow.Fail(HintInternalError, "STORE_ERROR")
	}

	if carrier, ok := input.(passwordCarrier); ok && carrier.passwordInput() != "" {
		plain := carrier.passwordInput()
		if len(plain) < minPasswordBytes {
			return workflow.Fail(HintRegisterRejected, "PASSWORD_TOO_SHORT")
		}
		hash, err := s.deps.Passwords.Hash(plain)
		if err != nil {
			return workflow.Fail(HintInternalError, "HASH_ERROR")
		}
		rec := &userdata.PasswordRecord{
			TenantID:  env.TenantID,
			UserID:    user.ID,
			Hash:      hash,
			UpdatedAt: env.Now,
		}
		if err := s.deps.Users.SavePassword(ctx, rec); err != nil {
			return workflow.Fail(HintInternalError, "STORE_ERROR")
		}
	}

	bag.PutString(workflow.KeyUserID, user.ID)
	return workflow.Ok(nil)
}

// markVerifiedStep flips the flow's identifier to verified after the OTP
// gate has passed.
type markVerifiedStep struct {
	deps Deps
}

func (s *markVerifiedStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, _ any) workflow.StepResult {
	typ, norm, ok := bagIdentifier(bag)
	if !ok {
		return workflow.Fail(HintInternalError, "IDENTIFIER_NOT_IN_BAG")
	}

	if verified, err := bag.BoolDefault(workflow.KeyOTPVerified, false); err != nil || !verified {
		return workflow.Fail(HintInternalError, "OTP_NOT_VERIFIED")
	}

	if err := s.deps.Users.MarkIdentifierVerified(ctx, env.TenantID, typ, norm); err != nil {
		return workflow.Fail(HintInternalError, "STORE_ERROR")
	}
	return workflow.Ok(nil)
}
