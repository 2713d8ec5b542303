package steps

import (
	"context"

	"github.com/ppcloud/idp/token"
	"github.com/ppcloud/idp/workflow"
)

// issueTokensStep mints the credential pair once the flow has proven
// authentication. The pair lands in the bag so the engine's DONE response
// carries it.
type issueTokensStep struct {
	deps           Deps
	includeRefresh bool
}

func newIssueTokensStep(deps Deps, cfg workflow.StepConfig) (workflow.Step, error) {
	return &issueTokensStep{
		deps:           deps,
		includeRefresh: cfg.BoolParam("includeRefresh", true),
	}, nil
}

func (s *issueTokensStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, _ any) workflow.StepResult {
	authOK, err := bag.BoolDefault(workflow.KeyAuthOK, false)
	if err != nil || !authOK {
		return workflow.Fail(HintLoginFailed, "NOT_AUTHENTICATED")
	}
	userID, err := bag.String(workflow.KeyUserID)
	if err != nil {
		return workflow.Fail(HintLoginFailed, "USER_NOT_FOUND")
	}
	authMethod, err := bag.String(workflow.KeyAuthMethod)
	if err != nil {
		authMethod = ""
	}

	pair, err := s.deps.Tokens.Issue(ctx, token.IssueContext{
		TenantID:          env.TenantID,
		ClientID:          env.ClientID,
		UserID:            userID,
		DeviceFingerprint: env.DeviceFingerprint,
		AuthMethod:        authMethod,
		IncludeRefresh:    s.includeRefresh,
	})
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "token issue failed",
			"user_id", userID, "error", err)
		return workflow.Fail(HintInternalError, "TOKEN_ISSUE_ERROR")
	}

	tokens := map[string]any{
		"accessToken": pair.AccessToken,
		"tokenType":   pair.TokenType,
		"expiresIn":   pair.ExpiresIn,
	}
	if pair.RefreshToken != "" {
		tokens["refreshToken"] = pair.RefreshToken
	}
	if err := bag.PutAny(workflow.KeyTokens, tokens); err != nil {
		return workflow.Fail(HintInternalError, "BAG_ERROR")
	}
	return workflow.Ok(nil)
}
