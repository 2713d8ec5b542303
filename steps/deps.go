package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppcloud/idp/identifier"
	"github.com/ppcloud/idp/password"
	"github.com/ppcloud/idp/token"
	"github.com/ppcloud/idp/userdata"
	"github.com/ppcloud/idp/workflow"
)

// Step type names used in workflow definitions.
const (
	TypeNormalizeIdentifier    = "NORMALIZE_IDENTIFIER"
	TypeRegisterCreateUser     = "REGISTER_CREATE_USER"
	TypeOTPSend                = "OTP_SEND"
	TypeOTPVerify              = "OTP_VERIFY"
	TypeIdentifierMarkVerified = "IDENTIFIER_MARK_VERIFIED"
	TypeLoginLookup            = "LOGIN_LOOKUP"
	TypeLoginVerifyPassword    = "LOGIN_VERIFY_PASSWORD"
	TypeDeviceUpsertSeen       = "DEVICE_UPSERT_SEEN"
	TypeIssueTokens            = "ISSUE_TOKENS"
	TypeActionTokenIssue       = "ACTION_TOKEN_ISSUE"
	TypeActionTokenConsume     = "ACTION_TOKEN_CONSUME"
	TypePasswordSetNew         = "PASSWORD_SET_NEW"
)

// Public hints steps emit. Kept coarse so responses never leak account
// state; precise causes travel in internal reasons only.
const (
	HintNeedVerifyCode   = "NEED_VERIFY_CODE"
	HintContinue         = "CONTINUE"
	HintResetTokenIssued = "RESET_TOKEN_ISSUED"
	HintLoginFailed      = "LOGIN_FAILED"
	HintRegisterRejected = "REGISTER_REJECTED"
	HintVerifyRejected   = "VERIFY_CODE_INVALID"
	HintResetRejected    = "RESET_REJECTED"
	HintBadRequest       = "BAD_REQUEST"
	HintInternalError    = "INTERNAL_ERROR"
)

// OTP purposes.
const (
	PurposeRegister      = "register"
	PurposeLogin         = "login"
	PurposePasswordReset = "password_reset"
)

// OTPSender delivers a code to a target out of band.
type OTPSender interface {
	Send(ctx context.Context, target, code, purpose string) error
}

// LogSender logs codes instead of delivering them. Development only.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, target, code, purpose string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "otp code (dev sender)",
		"target", target, "code", code, "purpose", purpose)
	return nil
}

// Deps are the services injected into every step. All fields except Logger
// are required.
type Deps struct {
	Users      userdata.Access
	Normalizer identifier.Normalizer
	Passwords  *password.Delegating
	Tokens     *token.Service
	Sender     OTPSender
	Logger     *slog.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Users == nil:
		return errors.New("userdata access required")
	case d.Normalizer == nil:
		return errors.New("identifier normalizer required")
	case d.Passwords == nil:
		return errors.New("password hasher required")
	case d.Tokens == nil:
		return errors.New("token service required")
	case d.Sender == nil:
		return errors.New("otp sender required")
	}
	return nil
}

// Factory builds the built-in steps. Implements [workflow.Factory].
type Factory struct {
	deps Deps
}

// NewFactory validates deps and returns a step factory.
func NewFactory(deps Deps) (*Factory, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Factory{deps: deps}, nil
}

func (f *Factory) Create(cfg workflow.StepConfig) (workflow.Step, error) {
	switch cfg.StepType {
	case TypeNormalizeIdentifier:
		return &normalizeIdentifierStep{deps: f.deps}, nil
	case TypeRegisterCreateUser:
		return &registerCreateUserStep{deps: f.deps}, nil
	case TypeOTPSend:
		return newOTPSendStep(f.deps, cfg)
	case TypeOTPVerify:
		return newOTPVerifyStep(f.deps, cfg)
	case TypeIdentifierMarkVerified:
		return &markVerifiedStep{deps: f.deps}, nil
	case TypeLoginLookup:
		return newLoginLookupStep(f.deps, cfg)
	case TypeLoginVerifyPassword:
		return newLoginVerifyPasswordStep(f.deps, cfg)
	case TypeDeviceUpsertSeen:
		return &deviceUpsertSeenStep{deps: f.deps}, nil
	case TypeIssueTokens:
		return newIssueTokensStep(f.deps, cfg)
	case TypeActionTokenIssue:
		return newActionTokenIssueStep(f.deps, cfg)
	case TypeActionTokenConsume:
		return newActionTokenConsumeStep(f.deps, cfg)
	case TypePasswordSetNew:
		return newPasswordSetNewStep(f.deps, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", workflow.ErrUnknownStepType, cfg.StepType)
	}
}
