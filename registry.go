package idp

import (
	"github.com/ppcloud/idp/steps"
	"github.com/ppcloud/idp/workflow"
)

// Built-in workflow ids. These are wire values: continuation tokens embed
// them, so renaming one invalidates every in-flight flow.
const (
	WFRegisterStartV1  = "WF_REGISTER_START_V1"
	WFRegisterVerifyV1 = "WF_REGISTER_VERIFY_V1"
	WFLoginIdentifyV1  = "WF_LOGIN_IDENTIFY_V1"
	WFLoginPasswordV1  = "WF_LOGIN_PASSWORD_V1"
	WFLoginPasswordV2  = "WF_LOGIN_PASSWORD_V2"
	WFResetStartV1     = "WF_RESET_START_V1"
	WFResetVerifyV1    = "WF_RESET_VERIFY_V1"
	WFResetCommitV1    = "WF_RESET_COMMIT_V1"
)

var versionV1 = workflow.Version{Major: 1, Minor: 0}

// builtinDefinitions is the fixed first-stage orchestration. A config- or
// database-backed registry can replace it without touching the engine; the
// step library stays the same either way.
func builtinDefinitions(otp OTPConfig) []workflow.Definition {
	otpParams := func(purpose string, extra map[string]any) map[string]any {
		p := map[string]any{
			"purpose":    purpose,
			"digits":     otp.Digits,
			"ttlSeconds": int(otp.TTL.Seconds()),
		}
		for k, v := range extra {
			p[k] = v
		}
		return p
	}

	return []workflow.Definition{
		// Registration: create the user, send the code, halt. The verify
		// workflow is bound into the continuation token.
		{
			WorkflowID: WFRegisterStartV1,
			Version:    versionV1,
			Steps: []workflow.StepConfig{
				{StepID: "normalize", StepType: steps.TypeNormalizeIdentifier},
				{StepID: "register", StepType: steps.TypeRegisterCreateUser},
				{StepID: "sendOtp", StepType: steps.TypeOTPSend,
					Params: otpParams(steps.PurposeRegister, map[string]any{
						"nextWorkflow": WFRegisterVerifyV1,
					})},
			},
		},
		{
			WorkflowID: WFRegisterVerifyV1,
			Version:    versionV1,
			Steps: []workflow.StepConfig{
				{StepID: "verifyOtp", StepType: steps.TypeOTPVerify,
					Params: map[string]any{
						"purpose":    steps.PurposeRegister,
						"grantsAuth": true,
					}},
				{StepID: "markVerified", StepType: steps.TypeIdentifierMarkVerified},
				{StepID: "device", StepType: steps.TypeDeviceUpsertSeen},
				{StepID: "tokens", StepType: steps.TypeIssueTokens},
			},
		},

		// Login, two-workflow variant: identify halts and switches the
		// continuation token to the password workflow.
		{
			WorkflowID: WFLoginIdentifyV1,
			Version:    versionV1,
			Steps: []workflow.StepConfig{
				{StepID: "normalize", StepType: steps.TypeNormalizeIdentifier},
				{StepID: "lookup", StepType: steps.TypeLoginLookup,
					Params: map[string]any{
						"nextWorkflowPassword": WFLoginPasswordV1,
						"otpWhenNoPassword":    false,
					}},
			},
		},
		{
			WorkflowID: WFLoginPasswordV1,
			Version:    versionV1,
			Steps: []workflow.StepConfig{
				{StepID: "password", StepType: steps.TypeLoginVerifyPassword},
				{StepID: "device", StepType: steps.TypeDeviceUpsertSeen},
				{StepID: "tokens", StepType: steps.TypeIssueTokens},
			},
		},

		// Login, single-workflow variant: the lookup halt stays inside this
		// definition and the resume lands on the password step.
		{
			WorkflowID: WFLoginPasswordV2,
			Version:    versionV1,
			Steps: []workflow.StepConfig{
				{StepID: "normalize", StepType: steps.TypeNormalizeIdentifier},
				{StepID: "lookup", StepType: steps.TypeLoginLookup,
					Params: map[string]any{
						"otpWhenNoPassword": false,
					}},
				{StepID: "password", StepType: steps.TypeLoginVerifyPassword},
				{StepID: "device", StepType: steps.TypeDeviceUpsertSeen},
				{StepID: "tokens", StepType: steps.TypeIssueTokens},
			},
		},

		// Password reset: send, verify into a one-time action token, commit.
		{
			WorkflowID: WFResetStartV1,
			Version:    versionV1,
			Steps: []workflow.StepConfig{
				{StepID: "normalize", StepType: steps.TypeNormalizeIdentifier},
				{StepID: "sendOtp", StepType: steps.TypeOTPSend,
					Params: otpParams(steps.PurposePasswordReset, map[string]any{
						"lookupUser":   true,
						"nextWorkflow": WFResetVerifyV1,
					})},
			},
		},
		{
			WorkflowID: WFResetVerifyV1,
			Version:    versionV1,
			Steps: []workflow.StepConfig{
				{StepID: "verifyOtp", StepType: steps.TypeOTPVerify,
					Params: map[string]any{
						"purpose": steps.PurposePasswordReset,
					}},
				{StepID: "issueToken", StepType: steps.TypeActionTokenIssue,
					Params: map[string]any{
						"ttlSeconds":   900,
						"nextWorkflow": WFResetCommitV1,
					}},
			},
		},
		{
			WorkflowID: WFResetCommitV1,
			Version:    versionV1,
			Steps: []workflow.StepConfig{
				{StepID: "consume", StepType: steps.TypeActionTokenConsume},
				{StepID: "setPassword", StepType: steps.TypePasswordSetNew},
			},
		},
	}
}
